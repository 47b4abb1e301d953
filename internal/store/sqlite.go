package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"resumatch/internal/types"
)

// SQLiteStore keeps résumés in a single-file database. WAL mode lets the
// HTTP handlers read while uploads write.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ ResumeStore = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS resumes (
	id              TEXT PRIMARY KEY,
	filename        TEXT NOT NULL,
	fingerprint     TEXT NOT NULL UNIQUE,
	normalized_text TEXT NOT NULL,
	record          TEXT,
	uploaded_at     DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_resumes_fingerprint ON resumes(fingerprint);
`

// NewSQLiteStore opens (creating if needed) the database under dataDir.
// An empty dataDir defaults to ~/.resumatch/data.
func NewSQLiteStore(dataDir string) (*SQLiteStore, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".resumatch", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "resumes.db")

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteStore{db: db, path: dbPath}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save inserts the résumé, generating an ID when absent. If the fingerprint
// is already stored the existing row wins and is returned unchanged.
func (s *SQLiteStore) Save(ctx context.Context, resume *types.StoredResume) (*types.StoredResume, error) {
	if existing, err := s.GetByFingerprint(ctx, resume.Fingerprint); err == nil {
		return existing, nil
	} else if !IsNotFound(err) {
		return nil, err
	}

	saved := *resume
	if saved.ID == "" {
		saved.ID = uuid.NewString()
	}
	if saved.UploadedAt.IsZero() {
		saved.UploadedAt = time.Now().UTC()
	}

	recordJSON, err := json.Marshal(saved.Record)
	if err != nil {
		return nil, fmt.Errorf("marshalling record: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO resumes (id, filename, fingerprint, normalized_text, record, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, saved.ID, saved.Filename, string(saved.Fingerprint), saved.NormalizedText,
		string(recordJSON), saved.UploadedAt)
	if err != nil {
		return nil, fmt.Errorf("saving resume: %w", err)
	}

	return &saved, nil
}

// Get retrieves a résumé by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*types.StoredResume, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, filename, fingerprint, normalized_text, record, uploaded_at
		FROM resumes WHERE id = ?
	`, id)
	return scanResume(row)
}

// GetByFingerprint retrieves a résumé by content fingerprint.
func (s *SQLiteStore) GetByFingerprint(ctx context.Context, fp types.Fingerprint) (*types.StoredResume, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, filename, fingerprint, normalized_text, record, uploaded_at
		FROM resumes WHERE fingerprint = ?
	`, string(fp))
	return scanResume(row)
}

// List returns all stored résumés, newest first.
func (s *SQLiteStore) List(ctx context.Context) ([]types.StoredResume, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filename, fingerprint, normalized_text, record, uploaded_at
		FROM resumes ORDER BY uploaded_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying resumes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var resumes []types.StoredResume
	for rows.Next() {
		resume, err := scanResumeRows(rows)
		if err != nil {
			return nil, err
		}
		resumes = append(resumes, *resume)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating resumes: %w", err)
	}
	return resumes, nil
}

// Delete removes a résumé. Deleting a missing ID is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM resumes WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting resume: %w", err)
	}
	return nil
}

func scanResume(row *sql.Row) (*types.StoredResume, error) {
	var resume types.StoredResume
	var fingerprint string
	var recordJSON sql.NullString

	if err := row.Scan(&resume.ID, &resume.Filename, &fingerprint,
		&resume.NormalizedText, &recordJSON, &resume.UploadedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning resume: %w", err)
	}

	resume.Fingerprint = types.Fingerprint(fingerprint)
	if err := unmarshalRecord(recordJSON, &resume); err != nil {
		return nil, err
	}
	return &resume, nil
}

func scanResumeRows(rows *sql.Rows) (*types.StoredResume, error) {
	var resume types.StoredResume
	var fingerprint string
	var recordJSON sql.NullString

	if err := rows.Scan(&resume.ID, &resume.Filename, &fingerprint,
		&resume.NormalizedText, &recordJSON, &resume.UploadedAt); err != nil {
		return nil, fmt.Errorf("scanning resume: %w", err)
	}

	resume.Fingerprint = types.Fingerprint(fingerprint)
	if err := unmarshalRecord(recordJSON, &resume); err != nil {
		return nil, err
	}
	return &resume, nil
}

func unmarshalRecord(recordJSON sql.NullString, resume *types.StoredResume) error {
	if !recordJSON.Valid || recordJSON.String == "" || recordJSON.String == "null" {
		return nil
	}
	var record types.CandidateRecord
	if err := json.Unmarshal([]byte(recordJSON.String), &record); err != nil {
		return fmt.Errorf("unmarshaling record: %w", err)
	}
	resume.Record = &record
	return nil
}
