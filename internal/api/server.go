// Package api exposes the HTTP and MCP surfaces: collection management,
// file uploads, question answering, and session history.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/docsift/docsift/internal/answer"
	"github.com/docsift/docsift/internal/ingest"
	"github.com/docsift/docsift/internal/session"
	"github.com/docsift/docsift/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB
const maxUploadMemory = 32 << 20   // 32MB before multipart spills to disk

// FileIngestor indexes one uploaded file into a collection.
type FileIngestor interface {
	IngestFile(ctx context.Context, collection storage.Collection, filename string, r io.ReadSeeker) (ingest.Result, error)
}

// Answerer answers one question against a collection.
type Answerer interface {
	Ask(ctx context.Context, collection storage.Collection, question string) (answer.Answer, error)
}

// VectorDeleter removes a document's points from a collection.
type VectorDeleter interface {
	DeleteByDocument(ctx context.Context, collection, documentID string) error
}

// Deps holds everything the HTTP handlers need.
type Deps struct {
	Store             *storage.Store
	Files             *storage.FileStore
	Ingestor          FileIngestor
	Answerer          Answerer
	Vectors           VectorDeleter
	History           *session.History
	Token             string
	DefaultEmbedModel string
}

// NewHandler builds the HTTP router. /health is open; everything else
// requires the bearer token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/collections", handleListCollections(deps))
		r.Post("/collections", handleCreateCollection(deps))
		r.Post("/collections/{name}/files", handleUpload(deps))
		r.Get("/files", handleListFiles(deps))
		r.Delete("/files/{id}", handleDeleteFile(deps))
		r.Post("/ask", handleAsk(deps))
		r.Get("/history", handleGetHistory(deps))
		r.Delete("/history", handleClearHistory(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
