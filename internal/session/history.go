// Package session keeps a bounded, in-memory question-answer history per
// browser session. Nothing here survives a process restart.
package session

import (
	"sync"

	"github.com/docsift/docsift/internal/answer"
)

// MaxExchanges bounds how many recent exchanges a session keeps.
const MaxExchanges = 20

// Exchange is one answered question.
type Exchange struct {
	Collection string          `json:"collection"`
	Question   string          `json:"question"`
	Answer     string          `json:"answer"`
	Sources    []answer.Source `json:"sources"`
}

// History stores per-session exchange lists, most recent first.
type History struct {
	mu       sync.Mutex
	sessions map[string][]Exchange
}

// NewHistory creates an empty History.
func NewHistory() *History {
	return &History{sessions: make(map[string][]Exchange)}
}

// Add prepends an exchange to the session's list, trimming to
// MaxExchanges.
func (h *History) Add(sessionID string, e Exchange) {
	h.mu.Lock()
	defer h.mu.Unlock()

	list := append([]Exchange{e}, h.sessions[sessionID]...)
	if len(list) > MaxExchanges {
		list = list[:MaxExchanges]
	}
	h.sessions[sessionID] = list
}

// List returns the session's exchanges, most recent first. The returned
// slice is a copy.
func (h *History) List(sessionID string) []Exchange {
	h.mu.Lock()
	defer h.mu.Unlock()

	list := h.sessions[sessionID]
	out := make([]Exchange, len(list))
	copy(out, list)
	return out
}

// Clear drops the session's history.
func (h *History) Clear(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, sessionID)
}
