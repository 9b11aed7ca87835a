package verification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/google/uuid"
)

// Entry is one validation attempt to persist. Error and coordinates are
// nullable; the store stamps createdAt server-side.
type Entry struct {
	Username string   `json:"username"`
	Postcode string   `json:"postcode"`
	Suburb   string   `json:"suburb"`
	State    string   `json:"state"`
	Success  bool     `json:"success"`
	Message  string   `json:"message"`
	Error    *string  `json:"error"`
	Lat      *float64 `json:"lat"`
	Lng      *float64 `json:"lng"`
}

// Record is a stored entry read back with its document id.
type Record struct {
	ID        string   `json:"id"`
	Username  string   `json:"username"`
	Postcode  string   `json:"postcode"`
	Suburb    string   `json:"suburb"`
	State     string   `json:"state"`
	Success   bool     `json:"success"`
	Message   string   `json:"message"`
	Error     *string  `json:"error"`
	Lat       *float64 `json:"lat"`
	Lng       *float64 `json:"lng"`
	CreatedAt string   `json:"createdAt"`
}

// Store is the log store surface handlers and resolvers depend on.
type Store interface {
	Log(ctx context.Context, entry Entry) (string, error)
	FetchRecent(ctx context.Context, limit int) ([]Record, error)
}

// ESStore keeps verification logs in an Elasticsearch index.
type ESStore struct {
	client *elasticsearch.Client
	index  string
}

func NewESStore(client *elasticsearch.Client, index string) *ESStore {
	return &ESStore{client: client, index: index}
}

// EnsureIndex creates the index with its mapping if missing. Idempotent;
// meant to run once at bootstrap, not per request.
func (s *ESStore) EnsureIndex(ctx context.Context) error {
	res, err := s.client.Indices.Exists(
		[]string{s.index},
		s.client.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("check index %s: %w", s.index, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusOK {
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("check index %s: %s", s.index, res.Status())
	}

	mapping := map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"username":  map[string]any{"type": "keyword"},
				"postcode":  map[string]any{"type": "keyword"},
				"suburb":    map[string]any{"type": "keyword"},
				"state":     map[string]any{"type": "keyword"},
				"success":   map[string]any{"type": "boolean"},
				"message":   map[string]any{"type": "text"},
				"error":     map[string]any{"type": "text"},
				"lat":       map[string]any{"type": "float"},
				"lng":       map[string]any{"type": "float"},
				"createdAt": map[string]any{"type": "date"},
			},
		},
	}

	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(mapping); err != nil {
		return fmt.Errorf("encode index mapping: %w", err)
	}

	createRes, err := s.client.Indices.Create(
		s.index,
		s.client.Indices.Create.WithContext(ctx),
		s.client.Indices.Create.WithBody(&body),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w", s.index, err)
	}
	defer createRes.Body.Close()

	if createRes.IsError() {
		return fmt.Errorf("create index %s: %s", s.index, createRes.Status())
	}

	return nil
}

func (s *ESStore) Log(ctx context.Context, entry Entry) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate log id: %w", err)
	}

	doc := struct {
		Entry
		CreatedAt string `json:"createdAt"`
	}{
		Entry:     entry,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}

	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(doc); err != nil {
		return "", fmt.Errorf("encode log entry: %w", err)
	}

	res, err := s.client.Index(
		s.index,
		&body,
		s.client.Index.WithContext(ctx),
		s.client.Index.WithDocumentID(id.String()),
		s.client.Index.WithRefresh("wait_for"),
	)
	if err != nil {
		return "", fmt.Errorf("index log entry: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return "", fmt.Errorf("index log entry: %s", res.Status())
	}

	return id.String(), nil
}

func (s *ESStore) FetchRecent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	query := map[string]any{
		"size": limit,
		"sort": []any{
			map[string]any{
				"createdAt": map[string]any{
					"order":         "desc",
					"unmapped_type": "date",
					"missing":       "_last",
				},
			},
		},
	}

	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(query); err != nil {
		return nil, fmt.Errorf("encode search query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(&body),
	)
	if err != nil {
		return nil, fmt.Errorf("search logs: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search logs: %s", res.Status())
	}

	var payload struct {
		Hits struct {
			Hits []struct {
				ID     string          `json:"_id"`
				Source json.RawMessage `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	records := make([]Record, 0, len(payload.Hits.Hits))
	for _, hit := range payload.Hits.Hits {
		var record Record
		if err := json.Unmarshal(hit.Source, &record); err != nil {
			return nil, fmt.Errorf("decode log document %s: %w", hit.ID, err)
		}
		record.ID = hit.ID
		records = append(records, record)
	}

	return records, nil
}

// Ping checks cluster reachability for the health endpoint.
func (s *ESStore) Ping(ctx context.Context) error {
	res, err := s.client.Ping(s.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("ping elasticsearch: %s", res.Status())
	}
	return nil
}
