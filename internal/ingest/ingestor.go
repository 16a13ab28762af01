// Package ingest orchestrates one file's journey into a collection:
// extract pages, chunk, batch-embed, upsert vectors, and record the
// membership — all scoped to a single metadata transaction.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/docsift/docsift/internal/chunker"
	"github.com/docsift/docsift/internal/extract"
	"github.com/docsift/docsift/internal/storage"
	"github.com/docsift/docsift/internal/vectorstore"
)

// EmbedBatchSize bounds how many chunks go into one embedding call.
const EmbedBatchSize = 50

// PageExtractor produces per-page text from a file stream.
type PageExtractor interface {
	Extract(ctx context.Context, r io.ReadSeeker, filename string) ([]extract.Page, error)
}

// Embedder converts an ordered batch of texts into vectors, same length
// and order.
type Embedder interface {
	Embed(ctx context.Context, texts []string, model string) ([][]float32, error)
}

// VectorStore is the subset of gateway operations ingestion needs.
type VectorStore interface {
	Ensure(ctx context.Context, name string, vectorSize int) error
	Upsert(ctx context.Context, collection string, points []vectorstore.Point) error
}

// Ingestor wires the pipeline stages together.
type Ingestor struct {
	store     *storage.Store
	files     *storage.FileStore
	extractor PageExtractor
	embedder  Embedder
	vectors   VectorStore
	chunkSize int
	logger    *slog.Logger
}

// New creates an Ingestor with the given dependencies.
func New(store *storage.Store, files *storage.FileStore, extractor PageExtractor, embedder Embedder, vectors VectorStore) *Ingestor {
	return &Ingestor{
		store:     store,
		files:     files,
		extractor: extractor,
		embedder:  embedder,
		vectors:   vectors,
		chunkSize: chunker.DefaultSize,
		logger:    slog.Default(),
	}
}

// Result reports what one IngestFile call did.
type Result struct {
	Document   storage.Document
	Membership storage.Membership
	ChunkCount int
	// Skipped is true when the (document, collection) pair was already
	// indexed and the call was a no-op.
	Skipped bool
}

// IngestFile indexes one uploaded file into the collection. The call is
// idempotent per content hash: re-uploading identical bytes into the same
// collection skips without error. Any failure between membership creation
// and completion rolls the whole transaction back, so a membership either
// ends completed or does not exist.
func (i *Ingestor) IngestFile(ctx context.Context, collection storage.Collection, filename string, r io.ReadSeeker) (Result, error) {
	hash, err := hashContent(r)
	if err != nil {
		return Result{}, fmt.Errorf("hashing %s: %w", filename, err)
	}

	var res Result
	err = i.store.WithTx(ctx, func(tx *storage.Tx) error {
		now := time.Now().UTC()
		doc, _, err := tx.GetOrCreateDocument(hash, filepath.Base(filename), uuid.New().String(), now)
		if err != nil {
			return fmt.Errorf("resolving document: %w", err)
		}
		res.Document = doc

		membership, err := tx.CreateMembership(uuid.New().String(), doc.ID, collection.ID)
		if errors.Is(err, storage.ErrExists) {
			res.Skipped = true
			return nil
		}
		if err != nil {
			return fmt.Errorf("creating membership: %w", err)
		}
		res.Membership = membership

		if err := tx.StartMembership(membership.ID); err != nil {
			return fmt.Errorf("starting membership: %w", err)
		}

		if err := i.vectors.Ensure(ctx, collection.Name, collection.VectorSize); err != nil {
			return fmt.Errorf("ensuring collection: %w", err)
		}

		points, err := i.vectorize(ctx, collection, doc, r)
		if err != nil {
			return err
		}

		if len(points) > 0 {
			if err := i.vectors.Upsert(ctx, collection.Name, points); err != nil {
				return fmt.Errorf("upserting points: %w", err)
			}
		}

		// A document with no extractable text still completes, as empty.
		res.ChunkCount = len(points)
		res.Membership.ChunkCount = len(points)
		res.Membership.Status = storage.StatusCompleted
		return tx.CompleteMembership(membership.ID, len(points), now)
	})
	if err != nil {
		return Result{}, err
	}

	if !res.Skipped {
		if err := i.files.Save(hash, r); err != nil {
			i.logger.Warn("storing original file failed", "hash", hash, "error", err)
		}
		i.logger.Info("document ingested",
			"document_id", res.Document.ID,
			"collection", collection.Name,
			"chunks", res.ChunkCount,
		)
	}
	return res, nil
}

// vectorize extracts pages, chunks them, embeds chunks in bounded batches,
// and builds one point per chunk. Pages are processed in document order and
// chunk order is preserved into point order so citations stay correct.
func (i *Ingestor) vectorize(ctx context.Context, collection storage.Collection, doc storage.Document, r io.ReadSeeker) ([]vectorstore.Point, error) {
	pages, err := i.extractor.Extract(ctx, r, doc.Title)
	if err != nil {
		return nil, fmt.Errorf("extracting text: %w", err)
	}

	var points []vectorstore.Point
	for _, page := range pages {
		chunks := chunker.Split(page.Text, i.chunkSize)
		if len(chunks) == 0 {
			continue
		}

		vectors, err := i.embedChunks(ctx, chunks, collection.EmbeddingModel)
		if err != nil {
			return nil, fmt.Errorf("embedding page %d: %w", page.Number, err)
		}

		for idx, chunk := range chunks {
			points = append(points, vectorstore.Point{
				ID:     uuid.New().String(),
				Vector: vectors[idx],
				Payload: vectorstore.Payload{
					DocumentID:    doc.ID,
					DocumentTitle: doc.Title,
					PageNumber:    page.Number,
					Text:          chunk,
				},
			})
		}
	}
	return points, nil
}

// embedChunks calls the embedder in batches of EmbedBatchSize and
// concatenates the results in original order. Any batch failure fails the
// whole document.
func (i *Ingestor) embedChunks(ctx context.Context, chunks []string, model string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += EmbedBatchSize {
		end := start + EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch, err := i.embedder.Embed(ctx, chunks[start:end], model)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// hashContent hashes the full stream and rewinds it.
func hashContent(r io.ReadSeeker) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
