package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/bookrec-backend/internal/http/response"
	"github.com/yungbote/bookrec-backend/internal/services"
)

type FeedbackHandler struct {
	feedback services.NegativeFeedbackService
}

func NewFeedbackHandler(feedback services.NegativeFeedbackService) *FeedbackHandler {
	return &FeedbackHandler{feedback: feedback}
}

type submitFeedbackRequest struct {
	BookID       int64  `json:"book_id" binding:"required"`
	FeedbackType string `json:"feedback_type" binding:"required"`
	Reason       string `json:"reason"`
	Strength     int    `json:"strength"`
}

// POST /api/users/:user_id/negative-feedback
func (h *FeedbackHandler) Submit(c *gin.Context) {
	userID, err := int64Param(c, "user_id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_user_id", err)
		return
	}
	var req submitFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if req.Strength == 0 {
		req.Strength = 1
	}
	row, err := h.feedback.Submit(c.Request.Context(), userID, req.BookID, req.FeedbackType, req.Reason, req.Strength)
	if err != nil {
		response.RespondServiceError(c, "submit_feedback_failed", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"feedback": row})
}

// DELETE /api/users/:user_id/negative-feedback/:book_id
func (h *FeedbackHandler) Remove(c *gin.Context) {
	userID, err := int64Param(c, "user_id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_user_id", err)
		return
	}
	bookID, err := int64Param(c, "book_id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_book_id", err)
		return
	}
	removed, err := h.feedback.Remove(c.Request.Context(), userID, bookID)
	if err != nil {
		response.RespondServiceError(c, "remove_feedback_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"removed": removed})
}

// GET /api/users/:user_id/negative-feedback/stats
func (h *FeedbackHandler) Stats(c *gin.Context) {
	userID, err := int64Param(c, "user_id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_user_id", err)
		return
	}
	stats, err := h.feedback.Stats(c.Request.Context(), userID)
	if err != nil {
		response.RespondServiceError(c, "feedback_stats_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"stats": stats})
}
