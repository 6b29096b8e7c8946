package merge

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ThreatCanvas/internal/domain/threatmodel"
	"github.com/turtacn/ThreatCanvas/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/ThreatCanvas/pkg/errors"
)

type finalizeCall struct {
	id      uuid.UUID
	version string
	md      *threatmodel.MergeMetadata
}

// mockTx is an in-memory MergeTx.  failInsertAfter > 0 makes InsertThreat
// fail once that many inserts have succeeded, to exercise rollback paths.
type mockTx struct {
	models     map[uuid.UUID]*threatmodel.ThreatModel
	threats    map[uuid.UUID][]threatmodel.Threat
	safeguards map[uuid.UUID][]threatmodel.Safeguard
	links      map[uuid.UUID][]threatmodel.SafeguardLink

	finalized       *finalizeCall
	lockCount       int
	inserts         int
	failInsertAfter int
}

func newMockTx() *mockTx {
	return &mockTx{
		models:     map[uuid.UUID]*threatmodel.ThreatModel{},
		threats:    map[uuid.UUID][]threatmodel.Threat{},
		safeguards: map[uuid.UUID][]threatmodel.Safeguard{},
		links:      map[uuid.UUID][]threatmodel.SafeguardLink{},
	}
}

func (m *mockTx) GetModelForUpdate(_ context.Context, id uuid.UUID) (*threatmodel.ThreatModel, error) {
	m.lockCount++
	return m.GetModel(context.Background(), id)
}

func (m *mockTx) GetModel(_ context.Context, id uuid.UUID) (*threatmodel.ThreatModel, error) {
	tm, ok := m.models[id]
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeModelNotFound, "threat model not found")
	}
	return tm, nil
}

func (m *mockTx) ListThreats(_ context.Context, modelID uuid.UUID) ([]threatmodel.Threat, error) {
	return m.threats[modelID], nil
}

func (m *mockTx) InsertThreat(_ context.Context, t *threatmodel.Threat) error {
	if m.failInsertAfter > 0 && m.inserts >= m.failInsertAfter {
		return apperrors.New(apperrors.CodeDatabaseError, "insert failed")
	}
	m.inserts++
	m.threats[t.ModelID] = append(m.threats[t.ModelID], *t)
	return nil
}

func (m *mockTx) DeleteThreats(_ context.Context, modelID uuid.UUID) error {
	delete(m.threats, modelID)
	return nil
}

func (m *mockTx) ListThreatSafeguards(_ context.Context, threatID uuid.UUID) ([]threatmodel.SafeguardLink, error) {
	return m.links[threatID], nil
}

func (m *mockTx) FindSafeguardByTitle(_ context.Context, modelID uuid.UUID, title string) (*threatmodel.Safeguard, error) {
	for i := range m.safeguards[modelID] {
		if m.safeguards[modelID][i].Title == title {
			return &m.safeguards[modelID][i], nil
		}
	}
	return nil, apperrors.New(apperrors.ErrCodeThreatNotFound, "safeguard not found")
}

func (m *mockTx) InsertSafeguard(_ context.Context, s *threatmodel.Safeguard) error {
	m.safeguards[s.ModelID] = append(m.safeguards[s.ModelID], *s)
	return nil
}

func (m *mockTx) LinkSafeguard(_ context.Context, threatID, safeguardID uuid.UUID, effectiveness int) error {
	m.links[threatID] = append(m.links[threatID], threatmodel.SafeguardLink{
		Safeguard:     threatmodel.Safeguard{ID: safeguardID},
		Effectiveness: effectiveness,
	})
	return nil
}

func (m *mockTx) UpdateModelContent(_ context.Context, id uuid.UUID, responseText string) error {
	tm, ok := m.models[id]
	if !ok {
		return apperrors.New(apperrors.ErrCodeModelNotFound, "threat model not found")
	}
	tm.ResponseText = responseText
	return nil
}

func (m *mockTx) FinalizeMerge(_ context.Context, id uuid.UUID, version string, md *threatmodel.MergeMetadata) error {
	m.finalized = &finalizeCall{id: id, version: version, md: md}
	if tm, ok := m.models[id]; ok {
		tm.ModelVersion = version
		tm.Status = threatmodel.StatusDraft
		tm.MergeMetadata = md
	}
	return nil
}

type mockStore struct {
	tx         *mockTx
	committed  bool
	rolledBack bool
}

func (s *mockStore) WithTx(_ context.Context, fn func(threatmodel.MergeTx) error) error {
	if err := fn(s.tx); err != nil {
		s.rolledBack = true
		return err
	}
	s.committed = true
	return nil
}

func newTestService(tx *mockTx) (Service, *mockStore) {
	store := &mockStore{tx: tx}
	return NewService(store, nil, nil, logging.NewNopLogger()), store
}

func addModel(tx *mockTx, name, version, responseText string) *threatmodel.ThreatModel {
	tm := &threatmodel.ThreatModel{
		ID:           uuid.New(),
		Name:         name,
		Status:       threatmodel.StatusDraft,
		ModelVersion: version,
		ResponseText: responseText,
		CreatedAt:    time.Now().UTC(),
	}
	tx.models[tm.ID] = tm
	return tm
}

func addThreat(tx *mockTx, modelID uuid.UUID, title, desc string, risk int) *threatmodel.Threat {
	t := threatmodel.Threat{
		ID:          uuid.New(),
		ModelID:     modelID,
		Title:       title,
		Description: desc,
		RiskScore:   risk,
	}
	tx.threats[modelID] = append(tx.threats[modelID], t)
	return &t
}

func TestMergeRequiresSources(t *testing.T) {
	tx := newMockTx()
	primary := addModel(tx, "Primary", "1.0", "")
	svc, _ := newTestService(tx)

	_, err := svc.Merge(context.Background(), &MergeInput{PrimaryID: primary.ID.String()})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidMergeRequest, apperrors.GetCode(err))
}

func TestMergeRejectsSelfMerge(t *testing.T) {
	tx := newMockTx()
	primary := addModel(tx, "Primary", "1.0", "")
	svc, _ := newTestService(tx)

	_, err := svc.Merge(context.Background(), &MergeInput{
		PrimaryID: primary.ID.String(),
		SourceIDs: []string{primary.ID.String()},
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidMergeRequest, apperrors.GetCode(err))
}

func TestMergeMalformedPrimaryID(t *testing.T) {
	tx := newMockTx()
	svc, store := newTestService(tx)

	_, err := svc.Merge(context.Background(), &MergeInput{
		PrimaryID: "not-a-uuid",
		SourceIDs: []string{uuid.NewString()},
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeMalformedModelID, apperrors.GetCode(err))
	assert.True(t, apperrors.IsNotFound(err))
	assert.False(t, store.committed)
}

func TestMergeSkipsMalformedSourceID(t *testing.T) {
	tx := newMockTx()
	primary := addModel(tx, "Primary", "1.0", "")
	source := addModel(tx, "Source", "1.0", "")
	addThreat(tx, source.ID, "Credential Stuffing", "Reused passwords tested against the login API.", 60)
	svc, _ := newTestService(tx)

	res, err := svc.Merge(context.Background(), &MergeInput{
		PrimaryID: primary.ID.String(),
		SourceIDs: []string{"zzzz-not-valid", source.ID.String()},
	})
	require.NoError(t, err)
	require.Len(t, res.SkippedSources, 1)
	assert.Equal(t, "zzzz-not-valid", res.SkippedSources[0].ID)
	assert.Equal(t, "malformed id", res.SkippedSources[0].Reason)
	assert.Equal(t, 1, res.Metrics.ThreatsAdded)
}

func TestMergeSkipsMissingSource(t *testing.T) {
	tx := newMockTx()
	primary := addModel(tx, "Primary", "1.0", "")
	missing := uuid.NewString()
	svc, _ := newTestService(tx)

	res, err := svc.Merge(context.Background(), &MergeInput{
		PrimaryID: primary.ID.String(),
		SourceIDs: []string{missing},
	})
	require.NoError(t, err)
	require.Len(t, res.SkippedSources, 1)
	assert.Equal(t, missing, res.SkippedSources[0].ID)
	assert.Equal(t, "not found", res.SkippedSources[0].Reason)
	assert.Zero(t, res.Metrics.ThreatsAdded)
}

func TestMergePrimaryNotFound(t *testing.T) {
	tx := newMockTx()
	svc, store := newTestService(tx)

	_, err := svc.Merge(context.Background(), &MergeInput{
		PrimaryID: uuid.NewString(),
		SourceIDs: []string{uuid.NewString()},
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeModelNotFound, apperrors.GetCode(err))
	assert.True(t, store.rolledBack)
}

func TestMergeDeduplicates(t *testing.T) {
	tx := newMockTx()
	primary := addModel(tx, "Primary", "1.0", "")
	addThreat(tx, primary.ID, "SQL Injection in the Login Form", "Attacker supplies crafted SQL via the username field.", 70)

	source := addModel(tx, "Source", "1.0", "")
	addThreat(tx, source.ID, "sql injection in the login form", "Exact title match differs only by case.", 70)
	addThreat(tx, source.ID, "SQL Injection in Login Form", "Near-identical title should be dropped.", 70)
	addThreat(tx, source.ID, "Server-Side Request Forgery", "URL preview feature reaches internal metadata endpoints.", 65)

	svc, _ := newTestService(tx)
	res, err := svc.Merge(context.Background(), &MergeInput{
		PrimaryID: primary.ID.String(),
		SourceIDs: []string{source.ID.String()},
		MergedBy:  "analyst@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Metrics.TotalSourceThreats)
	assert.Equal(t, 1, res.Metrics.ThreatsAdded)
	assert.Equal(t, 2, res.Metrics.DuplicatesSkipped)

	rows := tx.threats[primary.ID]
	require.Len(t, rows, 2)
	added := rows[1]
	assert.Equal(t, "Server-Side Request Forgery", added.Title)
	assert.Equal(t, "Source", added.Source)
	assert.Equal(t, 65, added.RiskScore)
}

func TestMergeDedupAcrossSources(t *testing.T) {
	tx := newMockTx()
	primary := addModel(tx, "Primary", "1.0", "")
	a := addModel(tx, "Source A", "1.0", "")
	b := addModel(tx, "Source B", "1.0", "")
	addThreat(tx, a.ID, "Token Replay", "Stolen session tokens are replayed against the API.", 55)
	addThreat(tx, b.ID, "Token Replay", "Same threat contributed by a second source.", 55)

	svc, _ := newTestService(tx)
	res, err := svc.Merge(context.Background(), &MergeInput{
		PrimaryID: primary.ID.String(),
		SourceIDs: []string{a.ID.String(), b.ID.String()},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Metrics.TotalSourceThreats)
	assert.Equal(t, 1, res.Metrics.ThreatsAdded, "later sources dedup against threats accepted earlier in the same merge")
	assert.Equal(t, 1, res.Metrics.DuplicatesSkipped)

	assert.Equal(t, 2, res.Metrics.SourceModelsProcessed)
	require.Len(t, res.Metrics.ModelDetails, 2)
	assert.Equal(t, "Source A", res.Metrics.ModelDetails[0].Name)
	assert.Equal(t, 1, res.Metrics.ModelDetails[0].ThreatsAdded)
	assert.Equal(t, "Source B", res.Metrics.ModelDetails[1].Name)
	assert.Equal(t, 1, res.Metrics.ModelDetails[1].ThreatsSkipped)
}

func TestMergeExtractionFallback(t *testing.T) {
	tx := newMockTx()
	primary := addModel(tx, "Primary", "1.0", "## Threat: Phishing\n\nEmployees receive credential-harvesting emails.\n")
	source := addModel(tx, "Source", "1.0", `## Threat: Phishing

Employees receive credential-harvesting emails.

## Threat: Unpatched Dependencies

**Description:** Known critical injection flaws remain exploitable in old libraries.

**Mitigation:** Automate dependency updates.
`)

	svc, _ := newTestService(tx)
	res, err := svc.Merge(context.Background(), &MergeInput{
		PrimaryID: primary.ID.String(),
		SourceIDs: []string{source.ID.String()},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Metrics.TotalSourceThreats)
	assert.Equal(t, 1, res.Metrics.ThreatsAdded, "phishing duplicates the primary's extracted baseline")
	assert.Equal(t, 1, res.Metrics.DuplicatesSkipped)

	rows := tx.threats[primary.ID]
	require.Len(t, rows, 1)
	assert.Equal(t, "Unpatched Dependencies", rows[0].Title)
	assert.Equal(t, "Automate dependency updates.", rows[0].Mitigation)
	assert.GreaterOrEqual(t, rows[0].RiskScore, 1)
	assert.LessOrEqual(t, rows[0].RiskScore, 100)
	assert.Equal(t, 60, rows[0].RiskScore, "critical and injection keywords raise the base score")
}

func TestMergeMetricsConsistency(t *testing.T) {
	tx := newMockTx()
	primary := addModel(tx, "Primary", "1.0", "")
	source := addModel(tx, "Source", "1.0", "")
	addThreat(tx, source.ID, "Threat One Title Here", "First distinct description of a problem.", 40)
	addThreat(tx, source.ID, "Threat Two Title Here", "Second distinct description of a problem entirely.", 40)
	addThreat(tx, source.ID, "Threat One Title Here", "Duplicate of the first.", 40)

	svc, _ := newTestService(tx)
	res, err := svc.Merge(context.Background(), &MergeInput{
		PrimaryID: primary.ID.String(),
		SourceIDs: []string{source.ID.String()},
	})
	require.NoError(t, err)
	assert.Equal(t, res.Metrics.TotalSourceThreats, res.Metrics.ThreatsAdded+res.Metrics.DuplicatesSkipped)

	var added, skipped, total int
	for _, d := range res.Metrics.ModelDetails {
		added += d.ThreatsAdded
		skipped += d.ThreatsSkipped
		total += d.TotalThreats
	}
	assert.Equal(t, res.Metrics.ThreatsAdded, added)
	assert.Equal(t, res.Metrics.DuplicatesSkipped, skipped)
	assert.Equal(t, res.Metrics.TotalSourceThreats, total)
}

func TestMergeFinalizesVersionAndMetadata(t *testing.T) {
	tx := newMockTx()
	primary := addModel(tx, "Primary", "1.9", "")
	source := addModel(tx, "Payments Model", "1.0", "")
	addThreat(tx, source.ID, "Race Condition in Checkout", "Double-spend through concurrent checkout requests.", 50)

	svc, store := newTestService(tx)
	res, err := svc.Merge(context.Background(), &MergeInput{
		PrimaryID: primary.ID.String(),
		SourceIDs: []string{source.ID.String()},
		MergedBy:  "analyst@example.com",
	})
	require.NoError(t, err)
	assert.True(t, store.committed)
	assert.Equal(t, 1, tx.lockCount, "primary row must be locked exactly once")

	assert.Equal(t, "2.0", res.ModelVersion)
	assert.Equal(t, threatmodel.StatusDraft, res.Status)

	require.NotNil(t, tx.finalized)
	md := tx.finalized.md
	assert.Equal(t, threatmodel.MergeStrategyAutomatic, md.MergeStrategy)
	assert.Equal(t, "analyst@example.com", md.MergedBy)
	assert.Equal(t, []string{source.ID.String()}, md.MergedFrom)
	assert.Equal(t, []string{"Payments Model"}, md.SourceModels)
	assert.WithinDuration(t, time.Now().UTC(), md.MergedAt, 5*time.Second)
	assert.Equal(t, res.Metrics, md.Metrics)
}

func TestMergeRollsBackOnInsertFailure(t *testing.T) {
	tx := newMockTx()
	primary := addModel(tx, "Primary", "1.0", "")
	source := addModel(tx, "Source", "1.0", "")
	addThreat(tx, source.ID, "First Distinct Threat Title", "First distinct description of the issue.", 40)
	addThreat(tx, source.ID, "Second Distinct Threat Title", "Second entirely unrelated problem statement.", 40)
	tx.failInsertAfter = 1

	svc, store := newTestService(tx)
	res, err := svc.Merge(context.Background(), &MergeInput{
		PrimaryID: primary.ID.String(),
		SourceIDs: []string{source.ID.String()},
	})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, store.rolledBack)
	assert.False(t, store.committed)
	assert.Nil(t, tx.finalized, "a failed merge must not bump the version")
}

func TestMergeCopiesSafeguards(t *testing.T) {
	tx := newMockTx()
	primary := addModel(tx, "Primary", "1.0", "")
	source := addModel(tx, "Source", "1.0", "")
	st := addThreat(tx, source.ID, "Unencrypted Backups", "Backups are written to disk without encryption.", 45)

	sg := threatmodel.Safeguard{ID: uuid.New(), ModelID: source.ID, Title: "Encrypt backups at rest"}
	tx.safeguards[source.ID] = append(tx.safeguards[source.ID], sg)
	tx.links[st.ID] = []threatmodel.SafeguardLink{{Safeguard: sg, Effectiveness: 0}}

	svc, _ := newTestService(tx)
	res, err := svc.Merge(context.Background(), &MergeInput{
		PrimaryID: primary.ID.String(),
		SourceIDs: []string{source.ID.String()},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Metrics.SafeguardsCopied)

	require.Len(t, tx.safeguards[primary.ID], 1)
	assert.Equal(t, "Encrypt backups at rest", tx.safeguards[primary.ID][0].Title)

	newThreat := tx.threats[primary.ID][0]
	require.Len(t, tx.links[newThreat.ID], 1)
	assert.Equal(t, threatmodel.DefaultEffectiveness, tx.links[newThreat.ID][0].Effectiveness)
}

func TestMergeManual(t *testing.T) {
	tx := newMockTx()
	primary := addModel(tx, "Primary", "2.3", "old content")
	addThreat(tx, primary.ID, "Stale Threat", "Superseded by the curated merge.", 30)
	source := addModel(tx, "Source", "1.0", "")

	content := `## Threat: Kept Threat

**Description:** Curated by the analyst and selected for the final model.

## Threat: Dropped Threat

**Description:** Present in the draft but not selected.
`
	svc, _ := newTestService(tx)
	res, err := svc.MergeManual(context.Background(), &ManualMergeInput{
		PrimaryID:            primary.ID.String(),
		SourceIDs:            []string{source.ID.String()},
		MergedContent:        content,
		SelectedThreatTitles: []string{"kept threat"},
		MergedBy:             "analyst@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, "2.4", res.ModelVersion)
	assert.Equal(t, 2, res.Metrics.TotalSourceThreats)
	assert.Equal(t, 1, res.Metrics.ThreatsAdded)
	assert.Equal(t, 1, res.Metrics.SourceModelsProcessed)
	require.Len(t, res.Metrics.ModelDetails, 1)
	assert.Equal(t, "curated content", res.Metrics.ModelDetails[0].Name)

	rows := tx.threats[primary.ID]
	require.Len(t, rows, 1, "pre-merge threat rows are replaced by the curated content")
	assert.Equal(t, "Kept Threat", rows[0].Title)

	assert.Equal(t, content, primary.ResponseText)
	require.NotNil(t, tx.finalized)
	assert.Equal(t, threatmodel.MergeStrategyManual, tx.finalized.md.MergeStrategy)
}

func TestMergeManualRequiresContent(t *testing.T) {
	tx := newMockTx()
	primary := addModel(tx, "Primary", "1.0", "")
	svc, _ := newTestService(tx)

	_, err := svc.MergeManual(context.Background(), &ManualMergeInput{
		PrimaryID: primary.ID.String(),
		SourceIDs: []string{uuid.NewString()},
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidMergeRequest, apperrors.GetCode(err))
}
