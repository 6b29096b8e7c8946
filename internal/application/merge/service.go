// Package merge provides the application-level service that consolidates
// several threat models into one.  The whole merge runs inside a single
// database transaction; candidate threats come from persisted rows when the
// source has them and from Markdown extraction when it does not.
package merge

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/ThreatCanvas/internal/domain/threat"
	"github.com/turtacn/ThreatCanvas/internal/domain/threatmodel"
	"github.com/turtacn/ThreatCanvas/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/ThreatCanvas/pkg/errors"
)

// Service merges threat models.
type Service interface {
	Merge(ctx context.Context, input *MergeInput) (*MergeResult, error)
	MergeManual(ctx context.Context, input *ManualMergeInput) (*MergeResult, error)
}

// Notifier receives the outcome of a committed merge.  Implementations
// must not fail the merge: delivery errors are theirs to log.
type Notifier interface {
	MergeCompleted(ctx context.Context, primary *threatmodel.ThreatModel, md *threatmodel.MergeMetadata)
}

// Instrumenter records merge telemetry.
type Instrumenter interface {
	ObserveMerge(strategy string, metrics threatmodel.MergeMetrics, duration time.Duration, err error)
}

// MergeInput is a request to merge the threats of SourceIDs into PrimaryID.
type MergeInput struct {
	PrimaryID string
	SourceIDs []string
	MergedBy  string
}

// ManualMergeInput is a client-curated merge: the caller supplies the final
// Markdown and, optionally, the titles of the threats to keep from it.
type ManualMergeInput struct {
	PrimaryID            string
	SourceIDs            []string
	MergedContent        string
	SelectedThreatTitles []string
	MergedBy             string
}

// SkippedSource names a source model that was dropped from the merge and why.
type SkippedSource struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// MergeResult reports what the merge produced.
type MergeResult struct {
	ModelID        string                   `json:"model_id"`
	ModelVersion   string                   `json:"model_version"`
	Status         string                   `json:"status"`
	MergedFrom     []string                 `json:"merged_from"`
	SkippedSources []SkippedSource          `json:"skipped_sources,omitempty"`
	Metrics        threatmodel.MergeMetrics `json:"metrics"`
}

type serviceImpl struct {
	store    threatmodel.MergeStore
	notifier Notifier
	metrics  Instrumenter
	logger   logging.Logger
}

// NewService creates the merge service.  notifier and metrics may be nil.
func NewService(store threatmodel.MergeStore, notifier Notifier, metrics Instrumenter, logger logging.Logger) Service {
	return &serviceImpl{
		store:    store,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
	}
}

// candidate is one threat under consideration during a merge.  sourceThreatID
// is zero when the candidate was extracted from Markdown rather than loaded
// from a row, in which case it has no safeguards to copy.
type candidate struct {
	rec            threat.Record
	risk           int
	impact         string
	likelihood     string
	sourceThreatID uuid.UUID
	sourceName     string
}

func (s *serviceImpl) Merge(ctx context.Context, input *MergeInput) (*MergeResult, error) {
	start := time.Now()
	result, err := s.merge(ctx, input)
	if s.metrics != nil {
		var m threatmodel.MergeMetrics
		if result != nil {
			m = result.Metrics
		}
		s.metrics.ObserveMerge(threatmodel.MergeStrategyAutomatic, m, time.Since(start), err)
	}
	return result, err
}

func (s *serviceImpl) merge(ctx context.Context, input *MergeInput) (*MergeResult, error) {
	primaryID, sourceIDs, skipped, err := s.validate(input.PrimaryID, input.SourceIDs)
	if err != nil {
		return nil, err
	}

	var (
		primary *threatmodel.ThreatModel
		md      *threatmodel.MergeMetadata
		result  *MergeResult
	)
	err = s.store.WithTx(ctx, func(tx threatmodel.MergeTx) error {
		primary, err = tx.GetModelForUpdate(ctx, primaryID)
		if err != nil {
			return err
		}

		existing, err := s.loadExistingRecords(ctx, tx, primary)
		if err != nil {
			return err
		}

		metrics := threatmodel.MergeMetrics{}
		var mergedFrom, sourceNames []string
		for _, sourceID := range sourceIDs {
			source, err := tx.GetModel(ctx, sourceID)
			if err != nil {
				if apperrors.IsNotFound(err) {
					skipped = append(skipped, SkippedSource{ID: sourceID.String(), Reason: "not found"})
					continue
				}
				return err
			}
			cands, err := s.loadCandidates(ctx, tx, source)
			if err != nil {
				return err
			}
			detail := threatmodel.SourceModelDetail{ID: source.ID.String(), Name: source.Name}
			for _, c := range cands {
				metrics.TotalSourceThreats++
				detail.TotalThreats++
				if threat.IsDuplicate(c.rec, existing) {
					metrics.DuplicatesSkipped++
					detail.ThreatsSkipped++
					continue
				}
				copied, err := s.insertCandidate(ctx, tx, primary.ID, c)
				if err != nil {
					return err
				}
				existing = append(existing, c.rec)
				metrics.ThreatsAdded++
				detail.ThreatsAdded++
				metrics.SafeguardsCopied += copied
			}
			metrics.SourceModelsProcessed++
			metrics.ModelDetails = append(metrics.ModelDetails, detail)
			mergedFrom = append(mergedFrom, source.ID.String())
			sourceNames = append(sourceNames, source.Name)
		}

		newVersion := threatmodel.BumpVersion(primary.ModelVersion)
		md = &threatmodel.MergeMetadata{
			MergedFrom:    mergedFrom,
			SourceModels:  sourceNames,
			MergedAt:      time.Now().UTC(),
			MergedBy:      input.MergedBy,
			MergeStrategy: threatmodel.MergeStrategyAutomatic,
			Metrics:       metrics,
		}
		if err := tx.FinalizeMerge(ctx, primary.ID, newVersion, md); err != nil {
			return err
		}
		primary.ModelVersion = newVersion
		primary.Status = threatmodel.StatusDraft
		primary.MergeMetadata = md

		result = &MergeResult{
			ModelID:        primary.ID.String(),
			ModelVersion:   newVersion,
			Status:         threatmodel.StatusDraft,
			MergedFrom:     mergedFrom,
			SkippedSources: skipped,
			Metrics:        metrics,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("threat models merged",
		logging.String("model_id", result.ModelID),
		logging.String("version", result.ModelVersion),
		logging.Int("threats_added", result.Metrics.ThreatsAdded),
		logging.Int("duplicates_skipped", result.Metrics.DuplicatesSkipped),
	)
	s.notify(ctx, primary, md)
	return result, nil
}

func (s *serviceImpl) MergeManual(ctx context.Context, input *ManualMergeInput) (*MergeResult, error) {
	start := time.Now()
	result, err := s.mergeManual(ctx, input)
	if s.metrics != nil {
		var m threatmodel.MergeMetrics
		if result != nil {
			m = result.Metrics
		}
		s.metrics.ObserveMerge(threatmodel.MergeStrategyManual, m, time.Since(start), err)
	}
	return result, err
}

func (s *serviceImpl) mergeManual(ctx context.Context, input *ManualMergeInput) (*MergeResult, error) {
	if strings.TrimSpace(input.MergedContent) == "" {
		return nil, apperrors.New(apperrors.ErrCodeInvalidMergeRequest, "merged content is required")
	}
	primaryID, sourceIDs, skipped, err := s.validate(input.PrimaryID, input.SourceIDs)
	if err != nil {
		return nil, err
	}

	selected := make(map[string]struct{}, len(input.SelectedThreatTitles))
	for _, title := range input.SelectedThreatTitles {
		selected[strings.ToLower(strings.TrimSpace(title))] = struct{}{}
	}

	var (
		primary *threatmodel.ThreatModel
		md      *threatmodel.MergeMetadata
		result  *MergeResult
	)
	err = s.store.WithTx(ctx, func(tx threatmodel.MergeTx) error {
		primary, err = tx.GetModelForUpdate(ctx, primaryID)
		if err != nil {
			return err
		}

		var mergedFrom, sourceNames []string
		for _, sourceID := range sourceIDs {
			source, err := tx.GetModel(ctx, sourceID)
			if err != nil {
				if apperrors.IsNotFound(err) {
					skipped = append(skipped, SkippedSource{ID: sourceID.String(), Reason: "not found"})
					continue
				}
				return err
			}
			mergedFrom = append(mergedFrom, source.ID.String())
			sourceNames = append(sourceNames, source.Name)
		}

		// The curated Markdown replaces the primary's content wholesale, so
		// its threat rows are rebuilt from that Markdown rather than merged
		// incrementally.
		if err := tx.DeleteThreats(ctx, primary.ID); err != nil {
			return err
		}
		metrics := threatmodel.MergeMetrics{SourceModelsProcessed: len(mergedFrom)}
		// The curated content is the single contributor here, so it gets the
		// one per-source breakdown row.
		detail := threatmodel.SourceModelDetail{ID: primary.ID.String(), Name: "curated content"}
		for _, rec := range threat.Extract(input.MergedContent) {
			metrics.TotalSourceThreats++
			detail.TotalThreats++
			if len(selected) > 0 {
				if _, ok := selected[strings.ToLower(rec.Title)]; !ok {
					metrics.DuplicatesSkipped++
					detail.ThreatsSkipped++
					continue
				}
			}
			c := candidate{rec: rec, risk: threat.ScoreRisk(rec.Description)}
			if _, err := s.insertCandidate(ctx, tx, primary.ID, c); err != nil {
				return err
			}
			metrics.ThreatsAdded++
			detail.ThreatsAdded++
		}
		metrics.ModelDetails = append(metrics.ModelDetails, detail)

		newVersion := threatmodel.BumpVersion(primary.ModelVersion)
		md = &threatmodel.MergeMetadata{
			MergedFrom:    mergedFrom,
			SourceModels:  sourceNames,
			MergedAt:      time.Now().UTC(),
			MergedBy:      input.MergedBy,
			MergeStrategy: threatmodel.MergeStrategyManual,
			Metrics:       metrics,
		}
		if err := tx.UpdateModelContent(ctx, primary.ID, input.MergedContent); err != nil {
			return err
		}
		primary.ResponseText = input.MergedContent
		if err := tx.FinalizeMerge(ctx, primary.ID, newVersion, md); err != nil {
			return err
		}
		primary.ModelVersion = newVersion
		primary.Status = threatmodel.StatusDraft
		primary.MergeMetadata = md

		result = &MergeResult{
			ModelID:        primary.ID.String(),
			ModelVersion:   newVersion,
			Status:         threatmodel.StatusDraft,
			MergedFrom:     mergedFrom,
			SkippedSources: skipped,
			Metrics:        metrics,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("manual merge applied",
		logging.String("model_id", result.ModelID),
		logging.String("version", result.ModelVersion),
		logging.Int("threats_added", result.Metrics.ThreatsAdded),
	)
	s.notify(ctx, primary, md)
	return result, nil
}

// validate parses the primary and source IDs.  A malformed primary ID fails
// the merge with a not-found class error; a malformed source ID only drops
// that source.  Sources equal to the primary are dropped so a model is
// never merged into itself.
func (s *serviceImpl) validate(primary string, sources []string) (uuid.UUID, []uuid.UUID, []SkippedSource, error) {
	primaryID, err := uuid.Parse(primary)
	if err != nil {
		return uuid.Nil, nil, nil, apperrors.New(apperrors.ErrCodeMalformedModelID, "malformed threat model id").WithDetail(primary)
	}
	if len(sources) == 0 {
		return uuid.Nil, nil, nil, apperrors.New(apperrors.ErrCodeInvalidMergeRequest, "at least one source model is required")
	}

	var (
		ids     []uuid.UUID
		skipped []SkippedSource
		seen    = map[uuid.UUID]struct{}{primaryID: {}}
	)
	for _, raw := range sources {
		id, err := uuid.Parse(raw)
		if err != nil {
			skipped = append(skipped, SkippedSource{ID: raw, Reason: "malformed id"})
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return uuid.Nil, nil, nil, apperrors.New(apperrors.ErrCodeInvalidMergeRequest, "no usable source models")
	}
	return primaryID, ids, skipped, nil
}

// loadExistingRecords builds the dedup baseline for the primary model: its
// threat rows, or threats extracted from its Markdown when it has no rows.
func (s *serviceImpl) loadExistingRecords(ctx context.Context, tx threatmodel.MergeTx, primary *threatmodel.ThreatModel) ([]threat.Record, error) {
	rows, err := tx.ListThreats(ctx, primary.ID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return threat.Extract(primary.ResponseText), nil
	}
	recs := make([]threat.Record, len(rows))
	for i, r := range rows {
		recs[i] = threat.Record{Title: r.Title, Description: r.Description, Mitigation: r.Mitigation}
	}
	return recs, nil
}

// loadCandidates gathers the threats a source model contributes: its rows,
// or an extraction from its Markdown when it has none.
func (s *serviceImpl) loadCandidates(ctx context.Context, tx threatmodel.MergeTx, source *threatmodel.ThreatModel) ([]candidate, error) {
	rows, err := tx.ListThreats(ctx, source.ID)
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 {
		cands := make([]candidate, len(rows))
		for i, r := range rows {
			risk := r.RiskScore
			if risk == 0 {
				risk = threat.ScoreRisk(r.Description)
			}
			cands[i] = candidate{
				rec:            threat.Record{Title: r.Title, Description: r.Description, Mitigation: r.Mitigation},
				risk:           risk,
				impact:         r.Impact,
				likelihood:     r.Likelihood,
				sourceThreatID: r.ID,
				sourceName:     source.Name,
			}
		}
		return cands, nil
	}

	recs := threat.Extract(source.ResponseText)
	cands := make([]candidate, len(recs))
	for i, rec := range recs {
		cands[i] = candidate{rec: rec, risk: threat.ScoreRisk(rec.Description), sourceName: source.Name}
	}
	return cands, nil
}

// insertCandidate persists one accepted candidate as a threat of the
// primary model and copies the safeguards of its source row, deduplicating
// safeguards by title within the primary.  It returns how many safeguard
// links were created.
func (s *serviceImpl) insertCandidate(ctx context.Context, tx threatmodel.MergeTx, primaryID uuid.UUID, c candidate) (int, error) {
	now := time.Now().UTC()
	impact := c.impact
	if impact == "" {
		impact = threatmodel.RatingMedium
	}
	likelihood := c.likelihood
	if likelihood == "" {
		likelihood = threatmodel.RatingMedium
	}
	t := &threatmodel.Threat{
		ID:          uuid.New(),
		ModelID:     primaryID,
		Title:       c.rec.Title,
		Description: c.rec.Description,
		Mitigation:  c.rec.Mitigation,
		Impact:      impact,
		Likelihood:  likelihood,
		RiskScore:   c.risk,
		Source:      c.sourceName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.InsertThreat(ctx, t); err != nil {
		return 0, err
	}
	if c.sourceThreatID == uuid.Nil {
		return 0, nil
	}

	links, err := tx.ListThreatSafeguards(ctx, c.sourceThreatID)
	if err != nil {
		return 0, err
	}
	copied := 0
	for _, link := range links {
		sg, err := tx.FindSafeguardByTitle(ctx, primaryID, link.Title)
		if err != nil && !apperrors.IsNotFound(err) {
			return copied, err
		}
		if sg == nil || apperrors.IsNotFound(err) {
			sg = &threatmodel.Safeguard{
				ID:          uuid.New(),
				ModelID:     primaryID,
				Title:       link.Title,
				Description: link.Description,
				CreatedAt:   now,
			}
			if err := tx.InsertSafeguard(ctx, sg); err != nil {
				return copied, err
			}
		}
		effectiveness := link.Effectiveness
		if effectiveness <= 0 {
			effectiveness = threatmodel.DefaultEffectiveness
		}
		if err := tx.LinkSafeguard(ctx, t.ID, sg.ID, effectiveness); err != nil {
			return copied, err
		}
		copied++
	}
	return copied, nil
}

func (s *serviceImpl) notify(ctx context.Context, primary *threatmodel.ThreatModel, md *threatmodel.MergeMetadata) {
	if s.notifier == nil || primary == nil || md == nil {
		return
	}
	s.notifier.MergeCompleted(context.WithoutCancel(ctx), primary, md)
}
