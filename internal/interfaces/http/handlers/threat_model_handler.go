package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	tmservice "github.com/turtacn/ThreatCanvas/internal/application/threatmodel"
	"github.com/turtacn/ThreatCanvas/internal/interfaces/http/middleware"
	apperrors "github.com/turtacn/ThreatCanvas/pkg/errors"
)

// ThreatModelHandler serves the threat model CRUD endpoints.
type ThreatModelHandler struct {
	svc tmservice.Service
}

func NewThreatModelHandler(svc tmservice.Service) *ThreatModelHandler {
	return &ThreatModelHandler{svc: svc}
}

type createModelRequest struct {
	Name         string `json:"name" binding:"required"`
	Description  string `json:"description"`
	ResponseText string `json:"response_text"`
}

func (h *ThreatModelHandler) Create(c *gin.Context) {
	var req createModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid request body"))
		return
	}

	detail, err := h.svc.Create(c.Request.Context(), &tmservice.CreateInput{
		Name:         req.Name,
		Description:  req.Description,
		ResponseText: req.ResponseText,
		CreatedBy:    middleware.Actor(c),
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, http.StatusCreated, detail)
}

func (h *ThreatModelHandler) List(c *gin.Context) {
	var query struct {
		Status string `form:"status"`
		Search string `form:"search"`
		Page   int    `form:"page"`
		Size   int    `form:"size"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		respondErr(c, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid query parameters"))
		return
	}

	result, err := h.svc.List(c.Request.Context(), &tmservice.ListInput{
		Status: query.Status,
		Search: query.Search,
		Page:   query.Page,
		Size:   query.Size,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

func (h *ThreatModelHandler) Get(c *gin.Context) {
	detail, err := h.svc.GetDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, http.StatusOK, detail)
}

type updateModelRequest struct {
	Name         *string `json:"name"`
	Description  *string `json:"description"`
	Status       *string `json:"status"`
	ResponseText *string `json:"response_text"`
}

func (h *ThreatModelHandler) Update(c *gin.Context) {
	var req updateModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid request body"))
		return
	}

	detail, err := h.svc.Update(c.Request.Context(), &tmservice.UpdateInput{
		ID:           c.Param("id"),
		Name:         req.Name,
		Description:  req.Description,
		Status:       req.Status,
		ResponseText: req.ResponseText,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, http.StatusOK, detail)
}

func (h *ThreatModelHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"deleted": true})
}
