package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/ThreatCanvas/internal/application/ragingest"
	"github.com/turtacn/ThreatCanvas/internal/application/reporting"
	apperrors "github.com/turtacn/ThreatCanvas/pkg/errors"
)

// ReportHandler serves report generation and retrieval ingestion.
type ReportHandler struct {
	reports reporting.Service
	ingest  ragingest.Service
}

func NewReportHandler(reports reporting.Service, ingest ragingest.Service) *ReportHandler {
	return &ReportHandler{reports: reports, ingest: ingest}
}

func (h *ReportHandler) Generate(c *gin.Context) {
	export, _ := strconv.ParseBool(c.DefaultQuery("export", "false"))
	report, err := h.reports.Generate(c.Request.Context(), &reporting.GenerateInput{
		ModelID: c.Param("id"),
		Export:  export,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, http.StatusOK, report)
}

func (h *ReportHandler) Ingest(c *gin.Context) {
	if h.ingest == nil {
		respondErr(c, apperrors.New(apperrors.ErrCodeServiceUnavailable, "ingestion is not configured"))
		return
	}
	full, _ := strconv.ParseBool(c.DefaultQuery("full", "false"))
	result, err := h.ingest.IngestModel(c.Request.Context(), c.Param("id"), full)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}
