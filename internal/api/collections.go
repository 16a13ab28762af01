package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/docsift/docsift/internal/storage"
)

type createCollectionRequest struct {
	Name           string `json:"name"`
	EmbeddingModel string `json:"embedding_model"`
	VectorSize     int    `json:"vector_size"`
}

type collectionResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	EmbeddingModel string `json:"embedding_model"`
	VectorSize     int    `json:"vector_size"`
	CreatedAt      string `json:"created_at"`
}

func toCollectionResponse(c storage.Collection) collectionResponse {
	return collectionResponse{
		ID:             c.ID,
		Name:           c.Name,
		EmbeddingModel: c.EmbeddingModel,
		VectorSize:     c.VectorSize,
		CreatedAt:      c.CreatedAt.Format(time.RFC3339),
	}
}

func handleCreateCollection(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req createCollectionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if req.Name == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "name is required")
			return
		}
		if req.VectorSize <= 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "vector_size must be positive")
			return
		}
		if req.EmbeddingModel == "" {
			req.EmbeddingModel = deps.DefaultEmbedModel
		}

		c := storage.Collection{
			ID:             uuid.New().String(),
			Name:           req.Name,
			EmbeddingModel: req.EmbeddingModel,
			VectorSize:     req.VectorSize,
			CreatedAt:      time.Now().UTC(),
		}
		err := deps.Store.CreateCollection(c)
		if errors.Is(err, storage.ErrExists) {
			httpError(w, http.StatusConflict, "conflict", "collection %q already exists", req.Name)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create collection: %v", err)
			return
		}

		writeJSON(w, http.StatusCreated, toCollectionResponse(c))
	}
}

func handleListCollections(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		collections, err := deps.Store.ListCollections()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list collections: %v", err)
			return
		}

		out := make([]collectionResponse, 0, len(collections))
		for _, c := range collections {
			out = append(out, toCollectionResponse(c))
		}
		writeJSON(w, http.StatusOK, out)
	}
}
