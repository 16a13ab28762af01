package vectorstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// fakeQdrant records requests and serves canned collection state.
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string]bool
	created     []string
	deletes     []map[string]any
	upserts     []map[string]any
}

func newFakeQdrant(existing ...string) *fakeQdrant {
	f := &fakeQdrant{collections: make(map[string]bool)}
	for _, name := range existing {
		f.collections[name] = true
	}
	return f
}

func (f *fakeQdrant) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /collections/{name}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if !f.collections[r.PathValue("name")] {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"result":{}}`))
	})
	mux.HandleFunc("PUT /collections/{name}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		name := r.PathValue("name")
		f.collections[name] = true
		f.created = append(f.created, name)
		w.Write([]byte(`{"result":true}`))
	})
	mux.HandleFunc("PUT /collections/{name}/points", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.upserts = append(f.upserts, body)
		f.mu.Unlock()
		w.Write([]byte(`{"result":{"status":"completed"}}`))
	})
	mux.HandleFunc("POST /collections/{name}/points/delete", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.deletes = append(f.deletes, body)
		f.mu.Unlock()
		w.Write([]byte(`{"result":{"status":"completed"}}`))
	})
	mux.HandleFunc("POST /collections/{name}/points/search", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"result": []map[string]any{
				{"score": 0.92, "payload": map[string]any{"document_id": "d1", "document_title": "Manual", "page_number": 3, "text": "chunk one"}},
				{"score": 0.71, "payload": map[string]any{"document_id": "d2", "document_title": "Guide", "page_number": 1, "text": "chunk two"}},
			},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestEnsure_CreatesWhenAbsent(t *testing.T) {
	fake := newFakeQdrant()
	srv := fake.server(t)

	q := New(srv.URL, "")
	if err := q.Ensure(context.Background(), "invoices", 1536); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if len(fake.created) != 1 || fake.created[0] != "invoices" {
		t.Errorf("created = %v, want [invoices]", fake.created)
	}
}

func TestEnsure_NoOpWhenPresent(t *testing.T) {
	fake := newFakeQdrant("invoices")
	srv := fake.server(t)

	q := New(srv.URL, "")
	if err := q.Ensure(context.Background(), "invoices", 1536); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if len(fake.created) != 0 {
		t.Errorf("created = %v, want none", fake.created)
	}
}

func TestEnsure_ProbeFailureFallsBackToCreate(t *testing.T) {
	var created bool
	mux := http.NewServeMux()
	mux.HandleFunc("GET /collections/{name}", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal", http.StatusInternalServerError)
	})
	mux.HandleFunc("PUT /collections/{name}", func(w http.ResponseWriter, r *http.Request) {
		created = true
		w.Write([]byte(`{"result":true}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	q := New(srv.URL, "")
	if err := q.Ensure(context.Background(), "c", 8); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if !created {
		t.Error("probe failure did not fall through to create")
	}
}

func TestUpsert_SendsPoints(t *testing.T) {
	fake := newFakeQdrant("c")
	srv := fake.server(t)

	q := New(srv.URL, "")
	err := q.Upsert(context.Background(), "c", []Point{
		{ID: "p1", Vector: []float32{0.1, 0.2}, Payload: Payload{DocumentID: "d1", DocumentTitle: "T", PageNumber: 2, Text: "hello"}},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if len(fake.upserts) != 1 {
		t.Fatalf("got %d upsert calls, want 1", len(fake.upserts))
	}
	points := fake.upserts[0]["points"].([]any)
	if len(points) != 1 {
		t.Fatalf("got %d points, want 1", len(points))
	}
	payload := points[0].(map[string]any)["payload"].(map[string]any)
	if payload["document_id"] != "d1" || payload["page_number"] != float64(2) {
		t.Errorf("payload = %v", payload)
	}
}

func TestUpsert_EmptyIsNoOp(t *testing.T) {
	q := New("http://unreachable.invalid", "")
	if err := q.Upsert(context.Background(), "c", nil); err != nil {
		t.Fatalf("Upsert(nil): %v", err)
	}
}

func TestDeleteByDocument_FilterShape(t *testing.T) {
	fake := newFakeQdrant("c")
	srv := fake.server(t)

	q := New(srv.URL, "")
	if err := q.DeleteByDocument(context.Background(), "c", "doc-42"); err != nil {
		t.Fatalf("DeleteByDocument: %v", err)
	}

	if len(fake.deletes) != 1 {
		t.Fatalf("got %d delete calls, want 1", len(fake.deletes))
	}
	filter := fake.deletes[0]["filter"].(map[string]any)
	must := filter["must"].([]any)
	cond := must[0].(map[string]any)
	if cond["key"] != "document_id" {
		t.Errorf("filter key = %v, want document_id", cond["key"])
	}
	if cond["match"].(map[string]any)["value"] != "doc-42" {
		t.Errorf("filter value = %v, want doc-42", cond["match"])
	}
}

func TestSearch_ParsesHits(t *testing.T) {
	fake := newFakeQdrant("c")
	srv := fake.server(t)

	q := New(srv.URL, "")
	hits, err := q.Search(context.Background(), "c", []float32{0.5}, 20)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].Score < hits[1].Score {
		t.Error("hits not best-first")
	}
	if hits[0].Payload.DocumentID != "d1" || hits[0].Payload.PageNumber != 3 {
		t.Errorf("payload = %+v", hits[0].Payload)
	}
}
