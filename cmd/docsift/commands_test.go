package main

import (
	"bytes"
	"context"
	"encoding/json"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/docsift/docsift/internal/api"
)

type recordedRequest struct {
	Method      string
	Path        string
	Body        string
	Auth        string
	ContentType string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method:      r.Method,
			Path:        r.URL.RequestURI(),
			Body:        body.String(),
			Auth:        r.Header.Get("Authorization"),
			ContentType: r.Header.Get("Content-Type"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestAskRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /ask": `{"answer":"Serial: XK-2209","sources":[{"file":"manual.pdf","page":3}]}`,
	})

	resp, err := ts.client().post(ctx, "/ask", map[string]string{
		"collection": "docs",
		"question":   "what is the serial number?",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		Answer string `json:"answer"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result.Answer != "Serial: XK-2209" {
		t.Errorf("answer = %q", result.Answer)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}

	var body map[string]string
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["collection"] != "docs" {
		t.Errorf("body.collection = %q, want docs", body["collection"])
	}
}

func TestUploadFiles_Multipart(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /collections/docs/files": `{"results":[{"file":"a.txt","status":"ingested","chunks":2}]}`,
	})

	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("some text content"), 0o644); err != nil {
		t.Fatal(err)
	}

	resp, err := ts.client().uploadFiles(ctx, "docs", []string{path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Path != "/collections/docs/files" {
		t.Errorf("path = %q", r.Path)
	}
	if !strings.HasPrefix(r.ContentType, "multipart/form-data") {
		t.Fatalf("content type = %q, want multipart", r.ContentType)
	}

	// Parse the recorded multipart body back to confirm the file part.
	_, params, err := mime.ParseMediaType(r.ContentType)
	if err != nil {
		t.Fatal(err)
	}
	mr := multipart.NewReader(strings.NewReader(r.Body), params["boundary"])
	part, err := mr.NextPart()
	if err != nil {
		t.Fatalf("reading multipart: %v", err)
	}
	if part.FormName() != "files" {
		t.Errorf("form field = %q, want files", part.FormName())
	}
	if part.FileName() != "a.txt" {
		t.Errorf("file name = %q, want a.txt", part.FileName())
	}
	var content bytes.Buffer
	content.ReadFrom(part)
	if content.String() != "some text content" {
		t.Errorf("part content = %q", content.String())
	}
}

func TestUploadFiles_MissingLocalFile(t *testing.T) {
	ts := newTestServer(t, nil)

	_, err := ts.client().uploadFiles(ctx, "docs", []string{"/nonexistent/file.txt"})
	if err == nil {
		t.Fatal("expected error for missing local file")
	}
	if len(ts.requests) != 0 {
		t.Errorf("no request should be sent when a local file is missing")
	}
}

func TestSessionSharedAcrossInvocations(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie(api.SessionCookie); err == nil {
			seen = append(seen, c.Value)
		} else {
			seen = append(seen, "")
			http.SetCookie(w, &http.Cookie{Name: api.SessionCookie, Value: "sess-1", Path: "/"})
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"answer":"ok","sources":[]}`))
	}))
	t.Cleanup(srv.Close)

	sessionPath := filepath.Join(t.TempDir(), "session")
	client := func() *apiClient {
		return &apiClient{
			baseURL:     srv.URL,
			token:       "test-token",
			httpClient:  srv.Client(),
			sessionPath: sessionPath,
		}
	}

	// Two separate clients model two CLI processes sharing only the
	// session file: ask first, then read history.
	resp, err := client().post(ctx, "/ask", map[string]string{"collection": "c", "question": "q"})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	resp.Body.Close()

	resp, err = client().get(ctx, "/history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	resp.Body.Close()

	if len(seen) != 2 {
		t.Fatalf("got %d requests, want 2", len(seen))
	}
	if seen[0] != "" {
		t.Errorf("first request carried cookie %q before any was minted", seen[0])
	}
	if seen[1] != "sess-1" {
		t.Errorf("second request cookie = %q, want sess-1", seen[1])
	}
}

func TestDecodeJSON_ServerError(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := ts.client().get(ctx, "/collections")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var out any
	err = decodeJSON(resp, &out)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error = %q, want it to mention the status code", err)
	}
}
