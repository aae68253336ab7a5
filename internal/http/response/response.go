package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperr "github.com/yungbote/bookrec-backend/internal/pkg/errors"
	"github.com/yungbote/bookrec-backend/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondServiceError maps a service error onto a status. fallbackCode is
// used for anything that is not a known sentinel.
func RespondServiceError(c *gin.Context, fallbackCode string, err error) {
	var ae *apierr.Error
	switch {
	case errors.As(err, &ae):
		RespondError(c, ae.Status, ae.Code, ae.Err)
	case errors.Is(err, apperr.ErrInvalidArgument):
		RespondError(c, http.StatusBadRequest, "invalid_argument", err)
	case errors.Is(err, apperr.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, apperr.ErrUnavailable):
		RespondError(c, http.StatusServiceUnavailable, "unavailable", err)
	default:
		RespondError(c, http.StatusInternalServerError, fallbackCode, err)
	}
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
