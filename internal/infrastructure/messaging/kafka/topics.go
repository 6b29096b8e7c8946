// Package kafka publishes and consumes threat-model lifecycle events.
package kafka

import (
	"time"

	"github.com/turtacn/ThreatCanvas/internal/domain/threatmodel"
)

// Topics carrying threat model events.
const (
	TopicModelMerged = "threatcanvas.threatmodel.merged"
)

// MergeEvent is the message emitted after a merge commits.  Consumers use
// it to refresh the search index and the retrieval chunks for the primary
// model.
type MergeEvent struct {
	ModelID       string                   `json:"model_id"`
	ModelName     string                   `json:"model_name"`
	ModelVersion  string                   `json:"model_version"`
	MergedFrom    []string                 `json:"merged_from"`
	MergedBy      string                   `json:"merged_by"`
	MergeStrategy string                   `json:"merge_strategy"`
	Metrics       threatmodel.MergeMetrics `json:"metrics"`
	OccurredAt    time.Time                `json:"occurred_at"`
}
