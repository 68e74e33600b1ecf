// Package store persists successful form submissions in SQLite and answers
// "has this value been submitted before" lookups for the unique validator.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"html"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	_ "github.com/ncruces/go-sqlite3/driver" // registers the "sqlite3" driver
	_ "github.com/ncruces/go-sqlite3/embed"  // bundled SQLite build

	"github.com/zjrosen/formflow/internal/log"
)

// ErrNotOpen is returned by operations on a closed store.
var ErrNotOpen = errors.New("store: not open")

// Submission is one persisted successful submit.
type Submission struct {
	ID        string
	Form      string
	Data      map[string]any
	CreatedAt time.Time
}

// Store is a SQLite-backed submission store.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	policy *bluemonday.Policy
}

// Open opens (creating if needed) the database at path and applies pending
// migrations. ":memory:" opens a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // sqlite
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("opening store %s: %w", path, err)
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating store %s: %w", path, err)
	}
	log.Debug(log.CatStore, "store opened", "path", path)

	return &Store{db: db, path: path, policy: bluemonday.StrictPolicy()}, nil
}

// Path returns the database path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database. Closing twice returns ErrNotOpen.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ErrNotOpen
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) conn() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrNotOpen
	}
	return s.db, nil
}

// Save stores data as a submission of form. String values are stripped of
// markup before they are written, text is otherwise kept as typed; skip lists
// fields that must not be stored (secrets).
func (s *Store) Save(ctx context.Context, form string, data map[string]any, skip ...string) (Submission, error) {
	db, err := s.conn()
	if err != nil {
		return Submission{}, err
	}

	clean := make(map[string]any, len(data))
	for name, v := range data {
		if slices.Contains(skip, name) {
			continue
		}
		if str, ok := v.(string); ok {
			v = s.stripMarkup(str)
		}
		clean[name] = v
	}

	payload, err := json.Marshal(clean)
	if err != nil {
		return Submission{}, fmt.Errorf("encoding submission: %w", err)
	}

	sub := Submission{
		ID:        uuid.NewString(),
		Form:      form,
		Data:      clean,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	err = withTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO submissions(id, form, payload, created_at) VALUES (?, ?, ?, ?)`,
			sub.ID, sub.Form, string(payload), sub.CreatedAt.Unix(),
		); err != nil {
			return err
		}
		for _, name := range slices.Sorted(maps.Keys(clean)) {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO submission_values(submission_id, field, value) VALUES (?, ?, ?)`,
				sub.ID, name, lookupKey(clean[name]),
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Submission{}, fmt.Errorf("saving submission: %w", err)
	}

	log.Info(log.CatStore, "submission saved", "id", sub.ID, "form", form, "fields", len(clean))
	return sub, nil
}

// Exists reports whether any stored submission has value in field. value goes
// through the same markup stripping as Save, then is compared
// case-insensitively after trimming.
func (s *Store) Exists(ctx context.Context, field, value string) (bool, error) {
	db, err := s.conn()
	if err != nil {
		return false, err
	}
	var n int
	err = db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM submission_values WHERE field = ? AND value = ?`,
		field, lookupKey(s.stripMarkup(value)),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("looking up %s: %w", field, err)
	}
	return n > 0, nil
}

// List returns the newest submissions first. limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, limit int) ([]Submission, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx,
		`SELECT id, form, payload, created_at FROM submissions ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing submissions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Submission
	for rows.Next() {
		var (
			sub       Submission
			payload   string
			createdAt int64
		)
		if err := rows.Scan(&sub.ID, &sub.Form, &payload, &createdAt); err != nil {
			return nil, err
		}
		sub.CreatedAt = time.Unix(createdAt, 0).UTC()
		if err := json.Unmarshal([]byte(payload), &sub.Data); err != nil {
			return nil, fmt.Errorf("decoding submission %s: %w", sub.ID, err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// Count returns the number of stored submissions.
func (s *Store) Count(ctx context.Context) (int, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(1) FROM submissions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting submissions: %w", err)
	}
	return n, nil
}

// stripMarkup removes tags from str. The policy escapes the text it keeps,
// which is undone so "Tom & Jerry" is stored as typed.
func (s *Store) stripMarkup(str string) string {
	return html.UnescapeString(s.policy.Sanitize(str))
}

func lookupKey(v any) string {
	var s string
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		s = v
	default:
		s = fmt.Sprint(v)
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// withTx runs fn in a transaction.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
