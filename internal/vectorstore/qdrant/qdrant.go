package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"pdfchat/internal/domain"
	"pdfchat/internal/httpretry"
)

// Storage is a minimal REST client to Qdrant.
// It assumes cosine distance and creates the collection if missing.
type Storage struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client
	retry      httpretry.Policy
}

type Config struct {
	URL    string
	APIKey string
	// Prefix is joined with the document id to name the collection.
	Prefix  string
	Timeout time.Duration
}

func NewStorage(cfg Config, key string) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "pdfchat"
	}
	return &Storage{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: prefix + "_" + key,
		client:     &http.Client{Timeout: timeout},
		retry:      httpretry.Default(),
	}
}

// Factory returns a vectorstore.Factory creating one collection per key.
func Factory(cfg Config) func(context.Context, string) (domain.VectorStore, error) {
	return func(_ context.Context, key string) (domain.VectorStore, error) {
		if cfg.URL == "" {
			return nil, errors.New("qdrant: url is required")
		}
		return NewStorage(cfg, key), nil
	}
}

func (s *Storage) Collection() string { return s.collection }

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.dimension = dimension

	_, err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil)
	if err == nil {
		return nil
	}
	var se *httpretry.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		return fmt.Errorf("qdrant: inspect collection %s: %w", s.collection, err)
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	if _, err := s.do(ctx, http.MethodPut, s.collectionURL(""), body); err != nil {
		return fmt.Errorf("qdrant: create collection %s: %w", s.collection, err)
	}
	return nil
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	points := make([]map[string]any, len(chunks))
	for i := range chunks {
		points[i] = map[string]any{
			"id":     PointID(chunks[i].ChunkID),
			"vector": vectors[i],
			"payload": map[string]any{
				"document_id": chunks[i].DocumentID,
				"chunk_id":    chunks[i].ChunkID,
				"index":       chunks[i].Index,
				"page":        chunks[i].Page,
				"text":        chunks[i].Text,
			},
		}
	}
	_, err := s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), map[string]any{"points": points})
	return err
}

func (s *Storage) Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	raw, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), req)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload struct {
				DocumentID string `json:"document_id"`
				ChunkID    string `json:"chunk_id"`
				Index      int    `json:"index"`
				Page       int    `json:"page"`
				Text       string `json:"text"`
			} `json:"payload"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("qdrant: decode search response: %w", err)
	}
	results := make([]domain.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		p := r.Payload
		results = append(results, domain.SearchResult{
			Chunk: domain.Chunk{
				DocumentID: p.DocumentID,
				ChunkID:    p.ChunkID,
				Index:      p.Index,
				Page:       p.Page,
				Text:       p.Text,
			},
			Score: r.Score,
		})
	}
	return results, nil
}

// Clear removes every point in the collection, keeping its schema.
func (s *Storage) Clear(ctx context.Context) error {
	body := map[string]any{"filter": map[string]any{}}
	_, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/delete?wait=true"), body)
	var se *httpretry.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}

// Drop deletes the collection.
func (s *Storage) Drop(ctx context.Context) error {
	_, err := s.do(ctx, http.MethodDelete, s.collectionURL(""), nil)
	return err
}

// PointID maps a chunk id onto the UUID point ids Qdrant accepts.
func PointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
}

func (s *Storage) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

func (s *Storage) do(ctx context.Context, method, url string, body any) ([]byte, error) {
	var data []byte
	if body != nil {
		var err error
		if data, err = json.Marshal(body); err != nil {
			return nil, err
		}
	}
	return s.retry.Do(ctx, s.client, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		if data != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if s.apiKey != "" {
			req.Header.Set("api-key", s.apiKey)
		}
		return req, nil
	})
}
