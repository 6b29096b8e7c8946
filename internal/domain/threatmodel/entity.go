// Package threatmodel defines the threat model aggregate and the
// persistence ports the application layer depends on.
package threatmodel

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StatusDraft is the lifecycle status assigned to newly created models and
// reassigned to a primary model after a merge, marking it for re-review.
const StatusDraft = "Draft"

// ThreatModel is the aggregate root.  ResponseText holds the raw Markdown
// the model was generated from; threats extracted from it live in their own
// table and are loaded separately.
type ThreatModel struct {
	ID            uuid.UUID      `json:"id"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	Status        string         `json:"status"`
	ModelVersion  string         `json:"model_version"`
	ResponseText  string         `json:"response_text,omitempty"`
	MergeMetadata *MergeMetadata `json:"merge_metadata,omitempty"`
	CreatedBy     string         `json:"created_by,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// RatingMedium is the default impact / likelihood rating for threats that
// were never explicitly scored.
const RatingMedium = "medium"

// Threat is a persisted threat row belonging to one model.  Source records
// provenance: the name of the model the threat was merged in from, or empty
// for threats native to the model.
type Threat struct {
	ID          uuid.UUID `json:"id"`
	ModelID     uuid.UUID `json:"model_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Mitigation  string    `json:"mitigation,omitempty"`
	Impact      string    `json:"impact"`
	Likelihood  string    `json:"likelihood"`
	RiskScore   int       `json:"risk_score"`
	Source      string    `json:"source,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Safeguard is a mitigation control scoped to one model and linked to
// threats with a per-link effectiveness rating.
type Safeguard struct {
	ID          uuid.UUID `json:"id"`
	ModelID     uuid.UUID `json:"model_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// DefaultEffectiveness is used for a threat-safeguard link copied during a
// merge when the source link carried no rating.
const DefaultEffectiveness = 50

// SafeguardLink is a safeguard together with its effectiveness for one
// specific threat.
type SafeguardLink struct {
	Safeguard
	Effectiveness int `json:"effectiveness"`
}

// Merge strategies recorded in MergeMetadata.
const (
	MergeStrategyAutomatic = "automatic"
	MergeStrategyManual    = "manual"
)

// MergeMetadata is the audit record written onto the primary model after a
// merge.  It replaces any metadata from a previous merge; history beyond
// the latest merge is carried by the emitted merge events.
type MergeMetadata struct {
	MergedFrom    []string     `json:"merged_from"`
	SourceModels  []string     `json:"source_models"`
	MergedAt      time.Time    `json:"merged_at"`
	MergedBy      string       `json:"merged_by"`
	MergeStrategy string       `json:"merge_strategy"`
	Metrics       MergeMetrics `json:"metrics"`
}

// SourceModelDetail is the per-source breakdown inside MergeMetrics.
type SourceModelDetail struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	TotalThreats   int    `json:"total_threats"`
	ThreatsAdded   int    `json:"threats_added"`
	ThreatsSkipped int    `json:"threats_skipped"`
}

// MergeMetrics counts what the merge did.  ThreatsAdded plus
// DuplicatesSkipped always equals the number of candidate threats
// considered across all sources, and the ModelDetails rows sum to the
// aggregate counters.
type MergeMetrics struct {
	TotalSourceThreats    int                 `json:"total_source_threats"`
	ThreatsAdded          int                 `json:"total_threats_added"`
	DuplicatesSkipped     int                 `json:"total_threats_skipped"`
	SafeguardsCopied      int                 `json:"total_safeguards_added"`
	SourceModelsProcessed int                 `json:"source_models_processed"`
	ModelDetails          []SourceModelDetail `json:"model_details,omitempty"`
}

// ModelSummary is a listing row: the model plus aggregates over its threats.
type ModelSummary struct {
	ThreatModel
	ThreatCount  int     `json:"threat_count"`
	AvgRiskScore float64 `json:"avg_risk_score"`
}

// ModelDetail is a fully loaded model with its threats.
type ModelDetail struct {
	ThreatModel
	Threats []Threat `json:"threats"`
}

// BumpVersion increments a decimal version string by one tenth: "1.0"
// becomes "1.1", "1.9" becomes "2.0".  Unparseable input restarts the
// version at "1.1".  Arithmetic is done in integer tenths so the result
// never picks up float noise.
func BumpVersion(v string) string {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		f = 1.0
	}
	tenths := int(math.Round(f*10)) + 1
	return fmt.Sprintf("%d.%d", tenths/10, tenths%10)
}
