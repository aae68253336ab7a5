package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/bookrec-backend/internal/diversity"
	"github.com/yungbote/bookrec-backend/internal/http/response"
	apperr "github.com/yungbote/bookrec-backend/internal/pkg/errors"
	"github.com/yungbote/bookrec-backend/internal/services"
)

const maxRecommendationLimit = 100

type RecommendationHandler struct {
	recs services.RecommendationService
}

func NewRecommendationHandler(recs services.RecommendationService) *RecommendationHandler {
	return &RecommendationHandler{recs: recs}
}

// GET /api/recommendations/:user_id?limit=&diversity=&refresh=
func (h *RecommendationHandler) GetRecommendations(c *gin.Context) {
	userID, err := int64Param(c, "user_id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_user_id", err)
		return
	}
	limit, err := intQuery(c, "limit", 0)
	if err != nil || limit > maxRecommendationLimit {
		response.RespondError(c, http.StatusBadRequest, "invalid_limit", fmt.Errorf("limit must be between 0 and %d", maxRecommendationLimit))
		return
	}
	// An absent mode lets the service apply its configured default.
	var mode diversity.Mode
	if raw := c.Query("diversity"); raw != "" {
		if mode, err = diversity.ParseMode(raw); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_diversity_mode", err)
			return
		}
	}

	recs, err := h.recs.GetRecommendations(c.Request.Context(), userID, limit, mode, boolQuery(c, "refresh"))
	if err != nil {
		response.RespondServiceError(c, "recommendations_failed", err)
		return
	}
	response.RespondOK(c, gin.H{
		"user_id":         userID,
		"recommendations": recs,
		"count":           len(recs),
	})
}

type coldStartRequest struct {
	Categories []string `json:"categories"`
	Moods      []string `json:"moods"`
	Limit      int      `json:"limit"`
}

// POST /api/recommendations/cold-start
func (h *RecommendationHandler) ColdStart(c *gin.Context) {
	var req coldStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if len(req.Categories) == 0 {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", fmt.Errorf("%w: categories are required", apperr.ErrInvalidArgument))
		return
	}
	if req.Limit <= 0 || req.Limit > maxRecommendationLimit {
		req.Limit = 10
	}
	recs, err := h.recs.ColdStart(c.Request.Context(), req.Categories, req.Moods, req.Limit)
	if err != nil {
		response.RespondServiceError(c, "cold_start_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"recommendations": recs, "count": len(recs)})
}

// GET /api/recommendations/:user_id/diversity?limit=
func (h *RecommendationHandler) DiversityMetrics(c *gin.Context) {
	userID, err := int64Param(c, "user_id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_user_id", err)
		return
	}
	limit, err := intQuery(c, "limit", 0)
	if err != nil || limit > maxRecommendationLimit {
		response.RespondError(c, http.StatusBadRequest, "invalid_limit", fmt.Errorf("limit must be between 0 and %d", maxRecommendationLimit))
		return
	}
	m, err := h.recs.DiversityMetrics(c.Request.Context(), userID, limit)
	if err != nil {
		response.RespondServiceError(c, "diversity_metrics_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"user_id": userID, "metrics": m})
}
