package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/turtacn/ThreatCanvas/internal/domain/threatmodel"
	"github.com/turtacn/ThreatCanvas/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ThreatCanvas/pkg/errors"
)

const threatIndexMapping = `{
  "settings": {"number_of_shards": 1, "number_of_replicas": 1},
  "mappings": {
    "properties": {
      "model_id":      {"type": "keyword"},
      "model_name":    {"type": "keyword"},
      "model_version": {"type": "keyword"},
      "title":         {"type": "text"},
      "description":   {"type": "text"},
      "mitigation":    {"type": "text"},
      "impact":        {"type": "keyword"},
      "likelihood":    {"type": "keyword"},
      "risk_score":    {"type": "integer"},
      "source":        {"type": "keyword"},
      "indexed_at":    {"type": "date"}
    }
  }
}`

// threatDocument is the indexed shape of one threat.
type threatDocument struct {
	ModelID      string    `json:"model_id"`
	ModelName    string    `json:"model_name"`
	ModelVersion string    `json:"model_version"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Mitigation   string    `json:"mitigation"`
	Impact       string    `json:"impact"`
	Likelihood   string    `json:"likelihood"`
	RiskScore    int       `json:"risk_score"`
	Source       string    `json:"source"`
	IndexedAt    time.Time `json:"indexed_at"`
}

// ThreatIndexer keeps the threat index in sync with the database after
// merges.  Documents are addressed by threat ID so re-indexing a model is
// idempotent.
type ThreatIndexer struct {
	client      *opensearch.Client
	indexPrefix string
	logger      logging.Logger
}

func NewThreatIndexer(client *opensearch.Client, indexPrefix string, logger logging.Logger) *ThreatIndexer {
	if indexPrefix == "" {
		indexPrefix = "threatcanvas"
	}
	return &ThreatIndexer{client: client, indexPrefix: indexPrefix, logger: logger}
}

func (i *ThreatIndexer) indexName() string {
	return i.indexPrefix + "-threats"
}

// EnsureIndex creates the threat index if it does not exist.
func (i *ThreatIndexer) EnsureIndex(ctx context.Context) error {
	exists := opensearchapi.IndicesExistsRequest{Index: []string{i.indexName()}}
	res, err := exists.Do(ctx, i.client)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to check threat index")
	}
	defer res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	create := opensearchapi.IndicesCreateRequest{
		Index: i.indexName(),
		Body:  strings.NewReader(threatIndexMapping),
	}
	cres, err := create.Do(ctx, i.client)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to create threat index")
	}
	defer cres.Body.Close()
	if cres.IsError() {
		return errors.New(errors.ErrCodeExternalService, "threat index creation rejected").WithDetail(cres.Status())
	}
	i.logger.Info("created threat index", logging.String("index", i.indexName()))
	return nil
}

// IndexModelThreats bulk-indexes all threats of one model.
func (i *ThreatIndexer) IndexModelThreats(ctx context.Context, model *threatmodel.ThreatModel, threats []threatmodel.Threat) error {
	if len(threats) == 0 {
		return nil
	}

	var buf bytes.Buffer
	now := time.Now().UTC()
	for _, t := range threats {
		meta := fmt.Sprintf(`{"index":{"_index":%q,"_id":%q}}`, i.indexName(), t.ID.String())
		buf.WriteString(meta)
		buf.WriteByte('\n')
		doc, err := json.Marshal(threatDocument{
			ModelID:      model.ID.String(),
			ModelName:    model.Name,
			ModelVersion: model.ModelVersion,
			Title:        t.Title,
			Description:  t.Description,
			Mitigation:   t.Mitigation,
			Impact:       t.Impact,
			Likelihood:   t.Likelihood,
			RiskScore:    t.RiskScore,
			Source:       t.Source,
			IndexedAt:    now,
		})
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode threat document")
		}
		buf.Write(doc)
		buf.WriteByte('\n')
	}

	req := opensearchapi.BulkRequest{Body: bytes.NewReader(buf.Bytes())}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "bulk index failed")
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return errors.New(errors.ErrCodeExternalService, "bulk index rejected").WithDetail(string(body))
	}

	i.logger.Info("indexed model threats",
		logging.String("model_id", model.ID.String()),
		logging.Int("count", len(threats)),
	)
	return nil
}

// DeleteModelThreats removes every indexed threat of a model, used before a
// re-index or when a model is deleted.
func (i *ThreatIndexer) DeleteModelThreats(ctx context.Context, modelID string) error {
	query := fmt.Sprintf(`{"query":{"term":{"model_id":%q}}}`, modelID)
	req := opensearchapi.DeleteByQueryRequest{
		Index: []string{i.indexName()},
		Body:  strings.NewReader(query),
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "delete by query failed")
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != 404 {
		return errors.New(errors.ErrCodeExternalService, "delete by query rejected").WithDetail(res.Status())
	}
	return nil
}

// SearchResult is one hit from SearchThreats.
type SearchResult struct {
	ThreatID     string  `json:"threat_id"`
	ModelID      string  `json:"model_id"`
	ModelName    string  `json:"model_name"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	RiskScore    int     `json:"risk_score"`
	Score        float64 `json:"score"`
}

// SearchThreats runs a multi-field match query across indexed threats.
func (i *ThreatIndexer) SearchThreats(ctx context.Context, query string, size int) ([]SearchResult, error) {
	if size <= 0 {
		size = 10
	}
	body := map[string]any{
		"size": size,
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  query,
				"fields": []string{"title^2", "description", "mitigation"},
			},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode search query")
	}

	req := opensearchapi.SearchRequest{
		Index: []string{i.indexName()},
		Body:  bytes.NewReader(payload),
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "threat search failed")
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, errors.New(errors.ErrCodeExternalService, "threat search rejected").WithDetail(res.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID     string         `json:"_id"`
				Score  float64        `json:"_score"`
				Source threatDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode search response")
	}

	out := make([]SearchResult, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		out = append(out, SearchResult{
			ThreatID:    h.ID,
			ModelID:     h.Source.ModelID,
			ModelName:   h.Source.ModelName,
			Title:       h.Source.Title,
			Description: h.Source.Description,
			RiskScore:   h.Source.RiskScore,
			Score:       h.Score,
		})
	}
	return out, nil
}
