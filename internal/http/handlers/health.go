package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yungbote/bookrec-backend/internal/platform/kvstore"
)

type HealthHandler struct {
	kv kvstore.Store
	db *gorm.DB
}

func NewHealthHandler(kv kvstore.Store, db *gorm.DB) *HealthHandler {
	return &HealthHandler{kv: kv, db: db}
}

// GET /healthz
//
// Redis being down only degrades serving; the relational store is required.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	out := gin.H{"status": "ok"}
	if h.kv != nil {
		if err := h.kv.Ping(ctx); err != nil {
			out["redis"] = "down"
			out["status"] = "degraded"
		} else {
			out["redis"] = "ok"
		}
	}
	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			out["database"] = "down"
			out["status"] = "down"
			status = http.StatusServiceUnavailable
		} else {
			out["database"] = "ok"
		}
	}
	c.JSON(status, out)
}
