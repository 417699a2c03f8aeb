// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package archive keeps a SQLite history of completed review runs so a
// report can be read back without repeating OCR or completion calls.
package archive

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/statement-review/pkg/types"
)

const dbFile = "history.db"

// DefaultLimit caps List when no limit is given.
const DefaultLimit = 20

var (
	// ErrNotFound is returned by Get when no run matches the ID.
	ErrNotFound = errors.New("run not found")

	// ErrAmbiguous is returned by Get when an ID prefix matches several runs.
	ErrAmbiguous = errors.New("ambiguous run id")
)

// Store manages the run history database.
type Store struct {
	db *sql.DB
}

// Summary is one line of the run history.
type Summary struct {
	ID         string
	Source     string
	PageCount  int
	Reviewers  int
	Missing    []string
	FinishedAt time.Time
}

// Open opens or creates dir/history.db and its schema.
func Open(cfg types.ArchiveConfig) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("archive directory not configured")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}

	dbPath := filepath.Join(cfg.Dir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			document_hash TEXT NOT NULL,
			page_count INTEGER NOT NULL,
			missing TEXT,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS reviews (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			persona TEXT NOT NULL,
			label TEXT,
			role TEXT,
			model TEXT,
			content TEXT NOT NULL,
			PRIMARY KEY (run_id, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_finished_at ON runs(finished_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_document_hash ON runs(document_hash)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// DocumentHash returns the hex SHA-256 of the document text.
func DocumentHash(doc types.SourceDocument) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(doc.Text)))
}

// runID is the first 12 hex characters of SHA-256(hash + finish time).
func runID(docHash string, finished time.Time) string {
	h := sha256.New()
	h.Write([]byte(docHash))
	h.Write([]byte(finished.UTC().Format(time.RFC3339Nano)))
	return fmt.Sprintf("%x", h.Sum(nil))[:12]
}

// Save records a successful run. The aggregator review is stored at
// position 0 and the specialists follow in panel order.
func (s *Store) Save(ctx context.Context, source string, doc types.SourceDocument, report *types.Report) (types.RunRecord, error) {
	if report == nil {
		return types.RunRecord{}, fmt.Errorf("saving run: nil report")
	}

	rec := types.RunRecord{
		Source:       source,
		DocumentHash: DocumentHash(doc),
		PageCount:    doc.PageCount(),
		Report:       *report,
	}
	rec.ID = runID(rec.DocumentHash, report.FinishedAt)

	missing, err := json.Marshal(report.Missing)
	if err != nil {
		return types.RunRecord{}, fmt.Errorf("encoding missing reviewers: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.RunRecord{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, source, document_hash, page_count, missing, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Source, rec.DocumentHash, rec.PageCount, string(missing),
		report.StartedAt.UTC().Format(time.RFC3339Nano),
		report.FinishedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return types.RunRecord{}, fmt.Errorf("inserting run %s: %w", rec.ID, err)
	}

	reviews := append([]types.ReviewResult{report.Final}, report.Specialists...)
	for i, r := range reviews {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO reviews (run_id, position, persona, label, role, model, content)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, i, r.Persona, r.Label, r.Role, r.Model, r.Text,
		); err != nil {
			return types.RunRecord{}, fmt.Errorf("inserting review %s: %w", r.Persona, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return types.RunRecord{}, fmt.Errorf("committing run %s: %w", rec.ID, err)
	}
	return rec, nil
}

// List returns the most recent runs first. A non-positive limit uses
// DefaultLimit.
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.source, r.page_count, r.missing, r.finished_at,
		        (SELECT count(*) FROM reviews v WHERE v.run_id = r.id AND v.position > 0)
		 FROM runs r
		 ORDER BY r.finished_at DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum      Summary
			missing  sql.NullString
			finished string
		)
		if err := rows.Scan(&sum.ID, &sum.Source, &sum.PageCount, &missing, &finished, &sum.Reviewers); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if sum.Missing, err = decodeMissing(missing); err != nil {
			return nil, err
		}
		if sum.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			return nil, fmt.Errorf("parsing finish time of %s: %w", sum.ID, err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Get loads a run by ID or unique ID prefix.
func (s *Store) Get(ctx context.Context, id string) (types.RunRecord, error) {
	if id == "" || strings.Trim(id, "0123456789abcdef") != "" {
		return types.RunRecord{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, document_hash, page_count, missing, started_at, finished_at
		 FROM runs WHERE id LIKE ? || '%' LIMIT 2`, id)
	if err != nil {
		return types.RunRecord{}, fmt.Errorf("querying run %s: %w", id, err)
	}

	var (
		matches           []types.RunRecord
		missing           sql.NullString
		started, finished string
	)
	for rows.Next() {
		var rec types.RunRecord
		if err := rows.Scan(&rec.ID, &rec.Source, &rec.DocumentHash, &rec.PageCount, &missing, &started, &finished); err != nil {
			rows.Close()
			return types.RunRecord{}, fmt.Errorf("scanning run: %w", err)
		}
		if rec.Report.Missing, err = decodeMissing(missing); err != nil {
			rows.Close()
			return types.RunRecord{}, err
		}
		if rec.Report.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			rows.Close()
			return types.RunRecord{}, fmt.Errorf("parsing start time: %w", err)
		}
		if rec.Report.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			rows.Close()
			return types.RunRecord{}, fmt.Errorf("parsing finish time: %w", err)
		}
		matches = append(matches, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return types.RunRecord{}, fmt.Errorf("reading run %s: %w", id, err)
	}

	switch len(matches) {
	case 0:
		return types.RunRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	case 1:
	default:
		return types.RunRecord{}, fmt.Errorf("%w: %s", ErrAmbiguous, id)
	}

	rec := matches[0]
	if err := s.loadReviews(ctx, &rec); err != nil {
		return types.RunRecord{}, err
	}
	return rec, nil
}

func (s *Store) loadReviews(ctx context.Context, rec *types.RunRecord) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT position, persona, label, role, model, content
		 FROM reviews WHERE run_id = ? ORDER BY position`, rec.ID)
	if err != nil {
		return fmt.Errorf("querying reviews of %s: %w", rec.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			pos                int
			r                  types.ReviewResult
			label, role, model sql.NullString
		)
		if err := rows.Scan(&pos, &r.Persona, &label, &role, &model, &r.Text); err != nil {
			return fmt.Errorf("scanning review: %w", err)
		}
		r.Label, r.Role, r.Model = label.String, role.String, model.String
		if pos == 0 {
			rec.Report.Final = r
			continue
		}
		rec.Report.Specialists = append(rec.Report.Specialists, r)
	}
	return rows.Err()
}

func decodeMissing(ns sql.NullString) ([]string, error) {
	if !ns.Valid || ns.String == "" || ns.String == "null" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		return nil, fmt.Errorf("decoding missing reviewers: %w", err)
	}
	return out, nil
}
