package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/ThreatCanvas/internal/application/assistant"
	apperrors "github.com/turtacn/ThreatCanvas/pkg/errors"
)

// AssistantHandler serves the chat endpoints.  When the assistant is not
// configured the routes respond 503.
type AssistantHandler struct {
	svc assistant.Service
}

func NewAssistantHandler(svc assistant.Service) *AssistantHandler {
	return &AssistantHandler{svc: svc}
}

func (h *AssistantHandler) available(c *gin.Context) bool {
	if h.svc == nil {
		respondErr(c, apperrors.New(apperrors.ErrCodeProviderUnavailable, "assistant is not configured"))
		return false
	}
	return true
}

type chatRequest struct {
	ModelID string              `json:"model_id"`
	Message string              `json:"message" binding:"required"`
	History []assistant.Message `json:"history"`
}

func (h *AssistantHandler) Chat(c *gin.Context) {
	if !h.available(c) {
		return
	}
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid chat request"))
		return
	}

	result, err := h.svc.Chat(c.Request.Context(), &assistant.ChatInput{
		ModelID: req.ModelID,
		Message: req.Message,
		History: req.History,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

func (h *AssistantHandler) SuggestThreats(c *gin.Context) {
	if !h.available(c) {
		return
	}
	result, err := h.svc.SuggestThreats(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}
