package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docsift/docsift/internal/api"
	"github.com/docsift/docsift/internal/config"
)

type apiClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	// sessionPath stores the server-minted session cookie between
	// invocations; each CLI command is a fresh process.
	sessionPath string
}

var newAPIClient = func() (*apiClient, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if cfg.Server.APIToken == "" {
		return nil, fmt.Errorf("missing API token: set DOCSIFT_API_TOKEN")
	}

	return &apiClient{
		baseURL: fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port),
		token:   cfg.Server.APIToken,
		// Uploads run extraction and embedding synchronously, so the
		// client waits a while.
		httpClient:  &http.Client{Timeout: 5 * time.Minute},
		sessionPath: filepath.Join(cfg.Storage.DataDir, "session"),
	}, nil
}

// attachSession adds the session cookie saved by an earlier invocation,
// if any.
func (c *apiClient) attachSession(req *http.Request) {
	if c.sessionPath == "" {
		return
	}
	data, err := os.ReadFile(c.sessionPath)
	if err != nil {
		return
	}
	if id := strings.TrimSpace(string(data)); id != "" {
		req.AddCookie(&http.Cookie{Name: api.SessionCookie, Value: id})
	}
}

// saveSession persists the session cookie the server minted so later
// commands read and clear the same history.
func (c *apiClient) saveSession(resp *http.Response) {
	if c.sessionPath == "" {
		return
	}
	for _, cookie := range resp.Cookies() {
		if cookie.Name == api.SessionCookie && cookie.Value != "" {
			if err := os.WriteFile(c.sessionPath, []byte(cookie.Value), 0o600); err != nil {
				printWarning("could not save session: %v", err)
			}
			return
		}
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.attachSession(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server not reachable — is docsift running? (%w)", err)
	}
	c.saveSession(resp)
	return resp, nil
}

func (c *apiClient) get(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, "GET", path, nil)
}

func (c *apiClient) post(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.do(ctx, "POST", path, body)
}

func (c *apiClient) delete(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, "DELETE", path, nil)
}

// uploadFiles streams local files as a multipart request to the upload
// endpoint of one collection.
func (c *apiClient) uploadFiles(ctx context.Context, collection string, paths []string) (*http.Response, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", p, err)
		}
		part, err := w.CreateFormFile("files", filepath.Base(p))
		if err != nil {
			f.Close()
			return nil, err
		}
		if _, err := io.Copy(part, f); err != nil {
			f.Close()
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		f.Close()
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/collections/%s/files", c.baseURL, collection)
	req, err := http.NewRequestWithContext(ctx, "POST", url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", w.FormDataContentType())
	c.attachSession(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server not reachable — is docsift running? (%w)", err)
	}
	c.saveSession(resp)
	return resp, nil
}

func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("server returned %d (failed to read body: %w)", resp.StatusCode, err)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
