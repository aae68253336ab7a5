package handlers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	apperr "github.com/yungbote/bookrec-backend/internal/pkg/errors"
)

func int64Param(c *gin.Context, name string) (int64, error) {
	raw := strings.TrimSpace(c.Param(name))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", apperr.ErrInvalidArgument, name, raw)
	}
	return id, nil
}

func intQuery(c *gin.Context, name string, def int) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", apperr.ErrInvalidArgument, name, raw)
	}
	return n, nil
}

func boolQuery(c *gin.Context, name string) bool {
	v, _ := strconv.ParseBool(strings.TrimSpace(c.Query(name)))
	return v
}
