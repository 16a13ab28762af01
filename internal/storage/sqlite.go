// Package storage persists collection, document, and membership metadata
// in SQLite, plus the original uploaded bytes on disk.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database with methods for collections, documents,
// and memberships.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used
// by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "docsift.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection for tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrate reads embedded SQL migration files and applies any that haven't
// been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// --- Collections ---

// CreateCollection inserts a new collection. Returns ErrExists when the
// name is taken.
func (s *Store) CreateCollection(c Collection) error {
	_, err := s.db.Exec(`
		INSERT INTO collections (id, name, embedding_model, vector_size, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.EmbeddingModel, c.VectorSize, c.CreatedAt.UTC().Format(time.RFC3339),
	)
	if isUniqueViolation(err) {
		return ErrExists
	}
	return err
}

// GetCollectionByName returns the collection with the given name.
func (s *Store) GetCollectionByName(name string) (Collection, error) {
	return s.scanCollection(s.db.QueryRow(`
		SELECT id, name, embedding_model, vector_size, created_at
		FROM collections WHERE name = ?`, name))
}

// ListCollections returns all collections ordered by name.
func (s *Store) ListCollections() ([]Collection, error) {
	rows, err := s.db.Query(`
		SELECT id, name, embedding_model, vector_size, created_at
		FROM collections ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var collections []Collection
	for rows.Next() {
		c, err := s.scanCollection(rows)
		if err != nil {
			return nil, err
		}
		collections = append(collections, c)
	}
	return collections, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanCollection(row rowScanner) (Collection, error) {
	var c Collection
	var createdAt string
	err := row.Scan(&c.ID, &c.Name, &c.EmbeddingModel, &c.VectorSize, &createdAt)
	if err == sql.ErrNoRows {
		return Collection{}, ErrNotFound
	}
	if err != nil {
		return Collection{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Collection{}, fmt.Errorf("parsing created_at: %w", err)
	}
	c.CreatedAt = t
	return c, nil
}

// --- Memberships ---

const membershipInfoQuery = `
	SELECT m.id, m.document_id, m.collection_id, m.status, m.chunk_count,
	       COALESCE(m.vectorized_at, ''), d.title, d.content_hash, c.name
	FROM memberships m
	JOIN documents d ON d.id = m.document_id
	JOIN collections c ON c.id = m.collection_id`

// ListMemberships returns all memberships with document and collection
// details, most recently uploaded documents first.
func (s *Store) ListMemberships() ([]MembershipInfo, error) {
	rows, err := s.db.Query(membershipInfoQuery + ` ORDER BY d.uploaded_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var infos []MembershipInfo
	for rows.Next() {
		info, err := scanMembershipInfo(rows)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// GetMembership returns one membership with document and collection details.
func (s *Store) GetMembership(id string) (MembershipInfo, error) {
	info, err := scanMembershipInfo(s.db.QueryRow(membershipInfoQuery+` WHERE m.id = ?`, id))
	if err == sql.ErrNoRows {
		return MembershipInfo{}, ErrNotFound
	}
	return info, err
}

func scanMembershipInfo(row rowScanner) (MembershipInfo, error) {
	var info MembershipInfo
	var status, vectorizedAt string
	err := row.Scan(&info.ID, &info.DocumentID, &info.CollectionID, &status, &info.ChunkCount,
		&vectorizedAt, &info.DocumentTitle, &info.ContentHash, &info.CollectionName)
	if err != nil {
		return MembershipInfo{}, err
	}
	info.Status = MembershipStatus(status)
	if vectorizedAt != "" {
		t, err := time.Parse(time.RFC3339, vectorizedAt)
		if err != nil {
			return MembershipInfo{}, fmt.Errorf("parsing vectorized_at: %w", err)
		}
		info.VectorizedAt = t
	}
	return info, nil
}

// DeleteMembership removes one membership record.
func (s *Store) DeleteMembership(id string) error {
	res, err := s.db.Exec(`DELETE FROM memberships WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountMembershipsForDocument returns how many collections still reference
// the document.
func (s *Store) CountMembershipsForDocument(documentID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM memberships WHERE document_id = ?`, documentID).Scan(&n)
	return n, err
}

// DeleteDocument removes a document record. Memberships cascade.
func (s *Store) DeleteDocument(id string) error {
	_, err := s.db.Exec(`DELETE FROM documents WHERE id = ?`, id)
	return err
}

// --- Ingest transaction ---

// Tx scopes metadata writes of one ingestion run to a single SQL
// transaction: if the run fails, the membership (and any document created
// for it) never becomes visible.
type Tx struct {
	tx *sql.Tx
}

// WithTx runs fn inside a transaction, committing on nil and rolling back
// on error.
func (s *Store) WithTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(&Tx{tx: tx}); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// GetOrCreateDocument finds the document with the given content hash or
// inserts a new one. The returned bool reports whether it was created.
func (t *Tx) GetOrCreateDocument(hash, title string, id string, now time.Time) (Document, bool, error) {
	var d Document
	var uploadedAt string
	err := t.tx.QueryRow(`
		SELECT id, title, content_hash, uploaded_at FROM documents WHERE content_hash = ?`, hash,
	).Scan(&d.ID, &d.Title, &d.ContentHash, &uploadedAt)
	if err == nil {
		ts, perr := time.Parse(time.RFC3339, uploadedAt)
		if perr != nil {
			return Document{}, false, fmt.Errorf("parsing uploaded_at: %w", perr)
		}
		d.UploadedAt = ts
		return d, false, nil
	}
	if err != sql.ErrNoRows {
		return Document{}, false, err
	}

	d = Document{ID: id, Title: title, ContentHash: hash, UploadedAt: now.UTC()}
	if _, err := t.tx.Exec(`
		INSERT INTO documents (id, title, content_hash, uploaded_at) VALUES (?, ?, ?, ?)`,
		d.ID, d.Title, d.ContentHash, d.UploadedAt.Format(time.RFC3339),
	); err != nil {
		return Document{}, false, fmt.Errorf("inserting document: %w", err)
	}
	return d, true, nil
}

// CreateMembership inserts a membership in the pending state. Returns
// ErrExists when the (document, collection) pair is already indexed; the
// uniqueness constraint backs this up against concurrent ingests.
func (t *Tx) CreateMembership(id, documentID, collectionID string) (Membership, error) {
	var existing int
	err := t.tx.QueryRow(`
		SELECT COUNT(*) FROM memberships WHERE document_id = ? AND collection_id = ?`,
		documentID, collectionID,
	).Scan(&existing)
	if err != nil {
		return Membership{}, err
	}
	if existing > 0 {
		return Membership{}, ErrExists
	}

	m := Membership{
		ID:           id,
		DocumentID:   documentID,
		CollectionID: collectionID,
		Status:       StatusPending,
	}
	if _, err := t.tx.Exec(`
		INSERT INTO memberships (id, document_id, collection_id, status, chunk_count)
		VALUES (?, ?, ?, ?, 0)`,
		m.ID, m.DocumentID, m.CollectionID, string(m.Status),
	); err != nil {
		if isUniqueViolation(err) {
			return Membership{}, ErrExists
		}
		return Membership{}, fmt.Errorf("inserting membership: %w", err)
	}
	return m, nil
}

// StartMembership transitions a membership from pending to processing,
// marking the start of extraction and embedding work.
func (t *Tx) StartMembership(id string) error {
	var current string
	err := t.tx.QueryRow(`SELECT status FROM memberships WHERE id = ?`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if !MembershipStatus(current).CanTransition(StatusProcessing) {
		return fmt.Errorf("illegal status transition %s -> %s", current, StatusProcessing)
	}

	_, err = t.tx.Exec(`UPDATE memberships SET status = ? WHERE id = ?`,
		string(StatusProcessing), id,
	)
	return err
}

// CompleteMembership transitions a membership to completed, recording the
// chunk count and vectorization time. The transition is validated against
// the stored status.
func (t *Tx) CompleteMembership(id string, chunkCount int, at time.Time) error {
	var current string
	err := t.tx.QueryRow(`SELECT status FROM memberships WHERE id = ?`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if !MembershipStatus(current).CanTransition(StatusCompleted) {
		return fmt.Errorf("illegal status transition %s -> %s", current, StatusCompleted)
	}

	_, err = t.tx.Exec(`
		UPDATE memberships SET status = ?, chunk_count = ?, vectorized_at = ? WHERE id = ?`,
		string(StatusCompleted), chunkCount, at.UTC().Format(time.RFC3339), id,
	)
	return err
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
