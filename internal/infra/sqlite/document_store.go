package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fardannozami/healthsync/internal/domain"
)

const DefaultPollInterval = 2 * time.Second

// DocumentStore keeps path-addressed JSON documents in SQLite. Every write
// bumps a revision counter for the document and for its parent collection;
// live feeds poll those counters.
type DocumentStore struct {
	db           *sql.DB
	pollInterval time.Duration
	log          *zap.Logger
}

func NewDocumentStore(db *sql.DB, pollInterval time.Duration, logger *zap.Logger) *DocumentStore {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentStore{db: db, pollInterval: pollInterval, log: logger.Named("sqlite")}
}

func (s *DocumentStore) InitTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS documents (
			path TEXT PRIMARY KEY,
			parent TEXT NOT NULL,
			doc_id TEXT NOT NULL,
			data TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_documents_parent ON documents(parent);
		CREATE TABLE IF NOT EXISTS revisions (
			path TEXT PRIMARY KEY,
			rev INTEGER NOT NULL DEFAULT 0
		);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *DocumentStore) Read(ctx context.Context, path string) (domain.RemoteDoc, error) {
	if !domain.IsDocumentPath(path) {
		return domain.RemoteDoc{}, fmt.Errorf("read %q: not a document path: %w", path, domain.ErrInvalidInput)
	}
	query := `SELECT doc_id, data FROM documents WHERE path = ?`
	var doc domain.RemoteDoc
	var data string
	err := s.db.QueryRowContext(ctx, query, path).Scan(&doc.ID, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RemoteDoc{}, fmt.Errorf("read %q: %w", path, domain.ErrNotFound)
	}
	if err != nil {
		return domain.RemoteDoc{}, err
	}
	doc.Data = json.RawMessage(data)
	return doc, nil
}

// Write stores value at path. MergeFields overlays the top-level fields of
// value onto the stored object; ReplaceCollection overwrites it.
func (s *DocumentStore) Write(ctx context.Context, path string, value any, mode domain.WriteMode) error {
	if !domain.IsDocumentPath(path) {
		return fmt.Errorf("write %q: not a document path: %w", path, domain.ErrInvalidInput)
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("write %q: %w", path, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if mode == domain.MergeFields {
		var existing string
		err := tx.QueryRowContext(ctx, `SELECT data FROM documents WHERE path = ?`, path).Scan(&existing)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return err
		default:
			if data, err = mergeFields([]byte(existing), data); err != nil {
				return fmt.Errorf("write %q: %w", path, err)
			}
		}
	}

	parent, id := domain.SplitPath(path)
	query := `
		INSERT INTO documents (path, parent, doc_id, data, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at
	`
	if _, err := tx.ExecContext(ctx, query, path, parent, id, string(data), time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}
	if err := bumpRevisions(ctx, tx, path, parent); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes the document at path. A missing document is not an error.
func (s *DocumentStore) Delete(ctx context.Context, path string) error {
	if !domain.IsDocumentPath(path) {
		return fmt.Errorf("delete %q: not a document path: %w", path, domain.ErrInvalidInput)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, path)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}
	parent, _ := domain.SplitPath(path)
	if err := bumpRevisions(ctx, tx, path, parent); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *DocumentStore) List(ctx context.Context, path string) ([]domain.RemoteDoc, error) {
	if domain.IsDocumentPath(path) {
		return nil, fmt.Errorf("list %q: not a collection path: %w", path, domain.ErrInvalidInput)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT doc_id, data FROM documents WHERE parent = ? ORDER BY doc_id`, path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []domain.RemoteDoc
	for rows.Next() {
		var doc domain.RemoteDoc
		var data string
		if err := rows.Scan(&doc.ID, &data); err != nil {
			return nil, err
		}
		doc.Data = json.RawMessage(data)
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Append stores value under a generated id inside the collection at path.
func (s *DocumentStore) Append(ctx context.Context, path string, value any) (string, error) {
	id := uuid.NewString()
	if err := s.Write(ctx, path+"/"+id, value, domain.ReplaceCollection); err != nil {
		return "", err
	}
	return id, nil
}

// Subscribe delivers the current contents of path right away and again
// after every change to it. A document path yields at most one document.
func (s *DocumentStore) Subscribe(path string, onChange domain.ChangeHandler) (domain.Disposable, error) {
	if path == "" {
		return nil, fmt.Errorf("subscribe: empty path: %w", domain.ErrInvalidInput)
	}
	p := &poller{
		store:    s,
		path:     path,
		onChange: onChange,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go p.run()
	return p, nil
}

func (s *DocumentStore) revision(ctx context.Context, path string) (int64, error) {
	var rev int64
	err := s.db.QueryRowContext(ctx, `SELECT rev FROM revisions WHERE path = ?`, path).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return rev, err
}

func (s *DocumentStore) snapshot(ctx context.Context, path string) ([]domain.RemoteDoc, error) {
	if !domain.IsDocumentPath(path) {
		return s.List(ctx, path)
	}
	doc, err := s.Read(ctx, path)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []domain.RemoteDoc{doc}, nil
}

type poller struct {
	store    *DocumentStore
	path     string
	onChange domain.ChangeHandler

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func (p *poller) run() {
	defer close(p.done)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-p.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	last := int64(-1)
	ticker := time.NewTicker(p.store.pollInterval)
	defer ticker.Stop()
	for {
		rev, err := p.store.revision(ctx, p.path)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.onChange(nil, fmt.Errorf("poll %s: %w", p.path, err))
		} else if rev != last {
			docs, err := p.store.snapshot(ctx, p.path)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				p.onChange(nil, fmt.Errorf("snapshot %s: %w", p.path, err))
			} else {
				last = rev
				p.onChange(docs, nil)
			}
		}

		select {
		case <-p.stop:
			return
		case <-ticker.C:
		}
	}
}

// Close stops polling and waits for an in-progress delivery to finish. It
// must not be called from inside the change handler.
func (p *poller) Close() error {
	p.closeOnce.Do(func() { close(p.stop) })
	<-p.done
	return nil
}

func bumpRevisions(ctx context.Context, tx *sql.Tx, paths ...string) error {
	query := `
		INSERT INTO revisions (path, rev) VALUES (?, 1)
		ON CONFLICT(path) DO UPDATE SET rev = rev + 1
	`
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, query, p); err != nil {
			return err
		}
	}
	return nil
}

func mergeFields(existing, next []byte) ([]byte, error) {
	var over map[string]json.RawMessage
	if err := json.Unmarshal(next, &over); err != nil {
		return nil, fmt.Errorf("merge needs an object: %w", domain.ErrInvalidInput)
	}
	var base map[string]json.RawMessage
	if err := json.Unmarshal(existing, &base); err != nil || base == nil {
		base = make(map[string]json.RawMessage, len(over))
	}
	maps.Copy(base, over)
	return json.Marshal(base)
}
