package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/ThreatCanvas/internal/application/merge"
	tmservice "github.com/turtacn/ThreatCanvas/internal/application/threatmodel"
	"github.com/turtacn/ThreatCanvas/internal/interfaces/http/middleware"
	apperrors "github.com/turtacn/ThreatCanvas/pkg/errors"
)

// MergeHandler serves the merge endpoint.  A request carrying curated
// merged_content runs the manual strategy; otherwise the automatic merge
// consolidates the sources' threats.
type MergeHandler struct {
	svc    merge.Service
	models tmservice.Service
}

func NewMergeHandler(svc merge.Service, models tmservice.Service) *MergeHandler {
	return &MergeHandler{svc: svc, models: models}
}

type mergeRequest struct {
	SourceModelIDs       []string `json:"source_model_ids" binding:"required"`
	MergedContent        string   `json:"merged_content"`
	SelectedThreatTitles []string `json:"selected_threat_titles"`
}

func (h *MergeHandler) Merge(c *gin.Context) {
	var req mergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperrors.Wrap(err, apperrors.ErrCodeInvalidMergeRequest, "invalid merge request"))
		return
	}

	primaryID := c.Param("id")
	mergedBy := middleware.Actor(c)

	var (
		result *merge.MergeResult
		err    error
	)
	if req.MergedContent != "" {
		result, err = h.svc.MergeManual(c.Request.Context(), &merge.ManualMergeInput{
			PrimaryID:            primaryID,
			SourceIDs:            req.SourceModelIDs,
			MergedContent:        req.MergedContent,
			SelectedThreatTitles: req.SelectedThreatTitles,
			MergedBy:             mergedBy,
		})
	} else {
		result, err = h.svc.Merge(c.Request.Context(), &merge.MergeInput{
			PrimaryID: primaryID,
			SourceIDs: req.SourceModelIDs,
			MergedBy:  mergedBy,
		})
	}
	if err != nil {
		respondErr(c, err)
		return
	}

	h.models.InvalidateCache(c.Request.Context(), primaryID)
	respondOK(c, http.StatusOK, result)
}
