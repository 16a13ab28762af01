// Package vectorstore is a minimal REST gateway to a Qdrant-compatible
// vector database: named collections, point upsert, filtered delete, and
// nearest-neighbor search.
package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Payload is the metadata stored with every point. The document_id field
// is the filter key for per-document deletion.
type Payload struct {
	DocumentID    string `json:"document_id"`
	DocumentTitle string `json:"document_title"`
	PageNumber    int    `json:"page_number"`
	Text          string `json:"text"`
}

// Point is one vector with its caller-generated unique id and payload.
type Point struct {
	ID      string    `json:"id"`
	Vector  []float32 `json:"vector"`
	Payload Payload   `json:"payload"`
}

// ScoredPoint is a search hit: similarity score plus stored payload,
// returned best-first.
type ScoredPoint struct {
	Score   float64 `json:"score"`
	Payload Payload `json:"payload"`
}

// Qdrant talks to a Qdrant server over its REST API. Collections are
// created with cosine distance.
type Qdrant struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a Qdrant gateway for the given base URL. The API key may be
// empty for unauthenticated local instances.
func New(baseURL, apiKey string) *Qdrant {
	return &Qdrant{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Exists reports whether a collection of that name exists remotely.
func (q *Qdrant) Exists(ctx context.Context, name string) (bool, error) {
	req, err := q.newRequest(ctx, http.MethodGet, "/collections/"+name, nil)
	if err != nil {
		return false, err
	}
	resp, err := q.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("probing collection %s: %w", name, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("probing collection %s: unexpected status %s", name, resp.Status)
	}
}

// Create creates a collection with cosine distance and the given
// dimensionality.
func (q *Qdrant) Create(ctx context.Context, name string, vectorSize int) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	return q.send(ctx, http.MethodPut, "/collections/"+name, body, nil)
}

// Ensure is a lazy, idempotent create-if-absent. A failed existence probe
// is treated as "absent" and creation is attempted anyway.
func (q *Qdrant) Ensure(ctx context.Context, name string, vectorSize int) error {
	exists, err := q.Exists(ctx, name)
	if err != nil {
		slog.Debug("collection probe failed, attempting create", "collection", name, "error", err)
	}
	if exists {
		return nil
	}
	if err := q.Create(ctx, name, vectorSize); err != nil {
		return fmt.Errorf("creating collection %s: %w", name, err)
	}
	return nil
}

// Upsert writes points into the collection, waiting for the operation to
// be applied.
func (q *Qdrant) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	body := map[string]any{"points": points}
	if err := q.send(ctx, http.MethodPut, "/collections/"+collection+"/points?wait=true", body, nil); err != nil {
		return fmt.Errorf("upserting %d points into %s: %w", len(points), collection, err)
	}
	return nil
}

// DeleteByDocument removes every point whose payload document_id matches,
// without knowing individual point ids.
func (q *Qdrant) DeleteByDocument(ctx context.Context, collection, documentID string) error {
	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{
					"key":   "document_id",
					"match": map[string]any{"value": documentID},
				},
			},
		},
	}
	if err := q.send(ctx, http.MethodPost, "/collections/"+collection+"/points/delete?wait=true", body, nil); err != nil {
		return fmt.Errorf("deleting points for document %s from %s: %w", documentID, collection, err)
	}
	return nil
}

// Search returns up to limit nearest points by cosine similarity,
// best-first, with payloads.
func (q *Qdrant) Search(ctx context.Context, collection string, vector []float32, limit int) ([]ScoredPoint, error) {
	body := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	var out struct {
		Result []ScoredPoint `json:"result"`
	}
	if err := q.send(ctx, http.MethodPost, "/collections/"+collection+"/points/search", body, &out); err != nil {
		return nil, fmt.Errorf("searching %s: %w", collection, err)
	}
	return out.Result, nil
}

func (q *Qdrant) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
	return req, nil
}

func (q *Qdrant) send(ctx context.Context, method, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshalling request: %w", err)
	}
	req, err := q.newRequest(ctx, method, path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	resp, err := q.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
