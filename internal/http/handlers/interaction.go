package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/bookrec-backend/internal/http/response"
	"github.com/yungbote/bookrec-backend/internal/services"
)

type InteractionHandler struct {
	interactions services.InteractionService
}

func NewInteractionHandler(interactions services.InteractionService) *InteractionHandler {
	return &InteractionHandler{interactions: interactions}
}

type recordInteractionRequest struct {
	BookID          int64    `json:"book_id" binding:"required"`
	InteractionType string   `json:"interaction_type" binding:"required"`
	Rating          *int     `json:"rating"`
	Comment         string   `json:"comment"`
	DurationSeconds *float64 `json:"duration_seconds"`
}

// POST /api/users/:user_id/interactions
func (h *InteractionHandler) RecordInteraction(c *gin.Context) {
	userID, err := int64Param(c, "user_id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_user_id", err)
		return
	}
	var req recordInteractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.interactions.RecordInteraction(c.Request.Context(), userID, services.InteractionInput{
		BookID:          req.BookID,
		InteractionType: req.InteractionType,
		Rating:          req.Rating,
		Comment:         req.Comment,
		DurationSeconds: req.DurationSeconds,
	})
	if err != nil {
		response.RespondServiceError(c, "record_interaction_failed", err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

type recordExposureRequest struct {
	BookIDs []int64 `json:"book_ids" binding:"required"`
}

// POST /api/users/:user_id/exposures
func (h *InteractionHandler) RecordExposure(c *gin.Context) {
	userID, err := int64Param(c, "user_id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_user_id", err)
		return
	}
	var req recordExposureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	implicit, err := h.interactions.RecordExposure(c.Request.Context(), userID, req.BookIDs)
	if err != nil {
		response.RespondServiceError(c, "record_exposure_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"recorded": len(req.BookIDs), "implicit_feedback": implicit})
}

type recordSearchRequest struct {
	Query string `json:"query" binding:"required"`
}

// POST /api/users/:user_id/searches
func (h *InteractionHandler) RecordSearch(c *gin.Context) {
	userID, err := int64Param(c, "user_id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_user_id", err)
		return
	}
	var req recordSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	row, err := h.interactions.RecordSearch(c.Request.Context(), userID, req.Query)
	if err != nil {
		response.RespondServiceError(c, "record_search_failed", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"search": row})
}
