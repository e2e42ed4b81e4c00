package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/codebuildervaibhav/case-review/internal/types"

	_ "modernc.org/sqlite"
)

var (
	// ErrCaseNotFound is returned when no case has the requested id
	ErrCaseNotFound = errors.New("case not found")
	// ErrCaseExists is returned when creating a case whose id is taken
	ErrCaseExists = errors.New("case already exists")
)

// FileRecord is one audio source of a case with its pipeline output
type FileRecord struct {
	Filename   string
	Transcript []byte
	Summary    string
}

// CaseSummary is a row of the case listing
type CaseSummary struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	FileCount   int       `json:"file_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// CaseStore handles SQLite database operations for cases
type CaseStore struct {
	db *sql.DB
}

// NewCaseStore opens (and if needed creates) the case database
func NewCaseStore(dbPath string) (*CaseStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer keeps sqlite from returning SQLITE_BUSY under the worker pool
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS cases (
		id TEXT PRIMARY KEY,
		description TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS case_files (
		case_id TEXT NOT NULL,
		filename TEXT NOT NULL,
		position INTEGER NOT NULL,
		transcript BLOB,
		summary TEXT,
		PRIMARY KEY (case_id, filename)
	);

	CREATE TABLE IF NOT EXISTS case_graphs (
		case_id TEXT PRIMARY KEY,
		graph TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cases_created_at ON cases(created_at);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &CaseStore{db: db}, nil
}

// CreateCase inserts a new case in the created state
func (cs *CaseStore) CreateCase(id, description string) error {
	now := time.Now()
	_, err := cs.db.Exec(`
	INSERT INTO cases (id, description, status, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	`, id, description, types.StatusCreated, now, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") || strings.Contains(err.Error(), "PRIMARY KEY") {
			return ErrCaseExists
		}
		return fmt.Errorf("failed to create case: %w", err)
	}
	return nil
}

// GetStatus returns the processing status of a case
func (cs *CaseStore) GetStatus(id string) (string, error) {
	var status string
	err := cs.db.QueryRow(`SELECT status FROM cases WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrCaseNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get status: %w", err)
	}
	if status == "" {
		status = types.StatusUnknown
	}
	return status, nil
}

// SetStatus updates the processing status of a case
func (cs *CaseStore) SetStatus(id, status string) error {
	res, err := cs.db.Exec(`UPDATE cases SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrCaseNotFound
	}
	return nil
}

// ReplaceCaseData swaps all files and the graph of a case in one transaction.
// Files keep the order given; repeated filenames keep their first occurrence.
func (cs *CaseStore) ReplaceCaseData(id string, files []FileRecord, graph types.Graph) error {
	graphJSON, err := json.Marshal(graph)
	if err != nil {
		return fmt.Errorf("failed to marshal graph: %w", err)
	}

	tx, err := cs.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM cases WHERE id = ?`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to look up case: %w", err)
	}
	if exists == 0 {
		return ErrCaseNotFound
	}

	if _, err := tx.Exec(`DELETE FROM case_files WHERE case_id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear files: %w", err)
	}

	seen := make(map[string]bool, len(files))
	pos := 0
	for _, f := range files {
		if seen[f.Filename] {
			continue
		}
		seen[f.Filename] = true
		_, err := tx.Exec(`
		INSERT INTO case_files (case_id, filename, position, transcript, summary)
		VALUES (?, ?, ?, ?, ?)
		`, id, f.Filename, pos, f.Transcript, f.Summary)
		if err != nil {
			return fmt.Errorf("failed to save file %s: %w", f.Filename, err)
		}
		pos++
	}

	_, err = tx.Exec(`
	INSERT INTO case_graphs (case_id, graph) VALUES (?, ?)
	ON CONFLICT(case_id) DO UPDATE SET graph = excluded.graph
	`, id, string(graphJSON))
	if err != nil {
		return fmt.Errorf("failed to save graph: %w", err)
	}

	if _, err := tx.Exec(`UPDATE cases SET updated_at = ? WHERE id = ?`, time.Now(), id); err != nil {
		return fmt.Errorf("failed to touch case: %w", err)
	}

	return tx.Commit()
}

// GetCase retrieves a case with its files, transcripts, summaries and graph
func (cs *CaseStore) GetCase(id string) (*types.Case, error) {
	c := &types.Case{
		Transcripts: make(map[string][]byte),
		Summaries:   make(map[string]string),
	}

	err := cs.db.QueryRow(`
	SELECT id, description, status, created_at, updated_at FROM cases WHERE id = ?
	`, id).Scan(&c.ID, &c.Description, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get case: %w", err)
	}

	rows, err := cs.db.Query(`
	SELECT filename, transcript, summary FROM case_files WHERE case_id = ? ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name       string
			transcript []byte
			summary    sql.NullString
		)
		if err := rows.Scan(&name, &transcript, &summary); err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		c.Files = append(c.Files, name)
		if transcript != nil {
			c.Transcripts[name] = transcript
		}
		if summary.Valid && summary.String != "" {
			c.Summaries[name] = summary.String
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	var graphJSON string
	err = cs.db.QueryRow(`SELECT graph FROM case_graphs WHERE case_id = ?`, id).Scan(&graphJSON)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("failed to get graph: %w", err)
	default:
		if err := json.Unmarshal([]byte(graphJSON), &c.Graph); err != nil {
			return nil, fmt.Errorf("failed to parse graph: %w", err)
		}
	}

	return c, nil
}

// ListCases returns the most recent cases
func (cs *CaseStore) ListCases(limit int) ([]CaseSummary, error) {
	rows, err := cs.db.Query(`
	SELECT c.id, c.description, c.status, c.created_at,
		(SELECT COUNT(*) FROM case_files f WHERE f.case_id = c.id)
	FROM cases c ORDER BY c.created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	defer rows.Close()

	cases := []CaseSummary{}
	for rows.Next() {
		var s CaseSummary
		if err := rows.Scan(&s.ID, &s.Description, &s.Status, &s.CreatedAt, &s.FileCount); err != nil {
			return nil, fmt.Errorf("failed to scan case row: %w", err)
		}
		cases = append(cases, s)
	}

	return cases, rows.Err()
}

// Close closes the database connection
func (cs *CaseStore) Close() error {
	return cs.db.Close()
}
