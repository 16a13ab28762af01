package api

import (
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/docsift/docsift/internal/storage"
)

type fileResult struct {
	File       string `json:"file"`
	Status     string `json:"status"` // ingested, skipped, failed
	DocumentID string `json:"document_id,omitempty"`
	Chunks     int    `json:"chunks,omitempty"`
	Error      string `json:"error,omitempty"`
}

func handleUpload(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		collection, err := deps.Store.GetCollectionByName(name)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "collection %q not found", name)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get collection: %v", err)
			return
		}

		if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart form: %v", err)
			return
		}
		defer r.MultipartForm.RemoveAll()

		headers := r.MultipartForm.File["files"]
		if len(headers) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "no files provided; use multipart field \"files\"")
			return
		}

		// Files are processed one at a time; a failure in one file does
		// not abort the rest of the upload.
		results := make([]fileResult, 0, len(headers))
		for _, hdr := range headers {
			results = append(results, ingestOne(r, deps, collection, hdr))
		}

		writeJSON(w, http.StatusOK, map[string]any{"results": results})
	}
}

func ingestOne(r *http.Request, deps Deps, collection storage.Collection, hdr *multipart.FileHeader) fileResult {
	f, err := hdr.Open()
	if err != nil {
		return fileResult{File: hdr.Filename, Status: "failed", Error: err.Error()}
	}
	defer f.Close()

	res, err := deps.Ingestor.IngestFile(r.Context(), collection, hdr.Filename, f)
	if err != nil {
		slog.Error("ingest failed", "file", hdr.Filename, "collection", collection.Name, "error", err)
		return fileResult{File: hdr.Filename, Status: "failed", Error: err.Error()}
	}
	if res.Skipped {
		return fileResult{File: hdr.Filename, Status: "skipped", DocumentID: res.Document.ID}
	}
	return fileResult{
		File:       hdr.Filename,
		Status:     "ingested",
		DocumentID: res.Document.ID,
		Chunks:     res.ChunkCount,
	}
}

type membershipResponse struct {
	ID           string `json:"id"`
	DocumentID   string `json:"document_id"`
	Title        string `json:"title"`
	Collection   string `json:"collection"`
	Status       string `json:"status"`
	ChunkCount   int    `json:"chunk_count"`
	VectorizedAt string `json:"vectorized_at,omitempty"`
}

func handleListFiles(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		infos, err := deps.Store.ListMemberships()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list files: %v", err)
			return
		}

		out := make([]membershipResponse, 0, len(infos))
		for _, info := range infos {
			m := membershipResponse{
				ID:         info.ID,
				DocumentID: info.DocumentID,
				Title:      info.DocumentTitle,
				Collection: info.CollectionName,
				Status:     string(info.Status),
				ChunkCount: info.ChunkCount,
			}
			if !info.VectorizedAt.IsZero() {
				m.VectorizedAt = info.VectorizedAt.Format(time.RFC3339)
			}
			out = append(out, m)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleDeleteFile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		info, err := deps.Store.GetMembership(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "file not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get file: %v", err)
			return
		}

		resp := map[string]string{"status": "deleted"}

		// A failed vector delete leaves orphan points behind, which is
		// harmless; metadata cleanup proceeds regardless.
		if err := deps.Vectors.DeleteByDocument(r.Context(), info.CollectionName, info.DocumentID); err != nil {
			slog.Warn("vector delete failed",
				"document_id", info.DocumentID,
				"collection", info.CollectionName,
				"error", err,
			)
			resp["warning"] = "vector cleanup failed; points may remain in the collection"
		}

		if err := deps.Store.DeleteMembership(id); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete file: %v", err)
			return
		}

		remaining, err := deps.Store.CountMembershipsForDocument(info.DocumentID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to check document references: %v", err)
			return
		}
		if remaining == 0 {
			if err := deps.Store.DeleteDocument(info.DocumentID); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to delete document: %v", err)
				return
			}
			if err := deps.Files.Remove(info.ContentHash); err != nil {
				slog.Warn("removing stored file failed", "hash", info.ContentHash, "error", err)
			}
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
