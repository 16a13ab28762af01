package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrExists is returned when a uniqueness constraint would be violated.
var ErrExists = errors.New("already exists")

// Collection is a named vector index. All vectors stored under it share
// its embedding model and dimensionality. Never mutated after creation.
type Collection struct {
	ID             string
	Name           string
	EmbeddingModel string
	VectorSize     int
	CreatedAt      time.Time
}

// Document is one uploaded file, identified by its content hash: uploading
// byte-identical content reuses the existing record.
type Document struct {
	ID          string
	Title       string
	ContentHash string
	UploadedAt  time.Time
}

// MembershipStatus is the indexing state of a document within a collection.
type MembershipStatus string

const (
	StatusPending    MembershipStatus = "pending"
	StatusProcessing MembershipStatus = "processing"
	StatusCompleted  MembershipStatus = "completed"
	StatusFailed     MembershipStatus = "failed"
)

// CanTransition reports whether moving from s to next is a legal forward
// transition. Statuses only move forward; failure is terminal.
func (s MembershipStatus) CanTransition(next MembershipStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// Membership records one document's indexing status within one collection.
// At most one exists per (document, collection) pair.
type Membership struct {
	ID           string
	DocumentID   string
	CollectionID string
	Status       MembershipStatus
	ChunkCount   int
	VectorizedAt time.Time // zero until completed
}

// MembershipInfo is a membership joined with its document and collection
// for listing and deletion workflows.
type MembershipInfo struct {
	Membership
	DocumentTitle  string
	ContentHash    string
	CollectionName string
}
