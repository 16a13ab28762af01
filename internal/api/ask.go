package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/docsift/docsift/internal/session"
	"github.com/docsift/docsift/internal/storage"
)

// SessionCookie names the cookie carrying the QA-history session id.
// Clients that span processes (the CLI) persist its value between
// invocations so all commands share one history.
const SessionCookie = "docsift_session"

type askRequest struct {
	Collection string `json:"collection"`
	Question   string `json:"question"`
}

func handleAsk(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req askRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		// Validate before touching the embedding provider or Qdrant.
		if req.Collection == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "collection is required")
			return
		}
		if req.Question == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question is required")
			return
		}

		collection, err := deps.Store.GetCollectionByName(req.Collection)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "collection %q not found", req.Collection)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get collection: %v", err)
			return
		}

		ans, err := deps.Answerer.Ask(r.Context(), collection, req.Question)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "failed to answer: %v", err)
			return
		}

		deps.History.Add(sessionID(w, r), session.Exchange{
			Collection: collection.Name,
			Question:   req.Question,
			Answer:     ans.Text,
			Sources:    ans.Sources,
		})

		writeJSON(w, http.StatusOK, ans)
	}
}

func handleGetHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.History.List(sessionID(w, r)))
	}
}

func handleClearHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.History.Clear(sessionID(w, r))
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
	}
}

// sessionID reads the session cookie, minting one when absent.
func sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	id := uuid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}
