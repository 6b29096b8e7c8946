package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/ThreatCanvas/internal/infrastructure/search/opensearch"
	apperrors "github.com/turtacn/ThreatCanvas/pkg/errors"
)

// SearchHandler serves full-text threat search backed by OpenSearch.
type SearchHandler struct {
	indexer *opensearch.ThreatIndexer
}

func NewSearchHandler(indexer *opensearch.ThreatIndexer) *SearchHandler {
	return &SearchHandler{indexer: indexer}
}

func (h *SearchHandler) Search(c *gin.Context) {
	if h.indexer == nil {
		respondErr(c, apperrors.New(apperrors.ErrCodeServiceUnavailable, "search is not configured"))
		return
	}
	query := c.Query("q")
	if query == "" {
		respondErr(c, apperrors.New(apperrors.ErrCodeValidation, "query parameter q is required"))
		return
	}
	size, _ := strconv.Atoi(c.DefaultQuery("size", "10"))

	results, err := h.indexer.SearchThreats(c.Request.Context(), query, size)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"query": query, "results": results})
}
