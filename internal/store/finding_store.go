package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/vbonduro/firecheck/internal/domain"
)

// NewFindingRecord is the row content for a finding about to be inserted.
type NewFindingRecord struct {
	Project     string
	Category    domain.Category
	Location    string
	Description string
	Remark      string
	PhotoKey    string
	PhotoMIME   string
}

type FindingStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewFindingStore(db *sql.DB) *FindingStore {
	return &FindingStore{db: db, now: time.Now}
}

// WithClock replaces the timestamp source used for created_at.
func (s *FindingStore) WithClock(now func() time.Time) *FindingStore {
	s.now = now
	return s
}

const findingColumns = `id, project, category, location, description, remark, photo_key, photo_mime, created_at`

func (s *FindingStore) Create(ctx context.Context, rec NewFindingRecord) (*domain.Finding, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO findings (project, category, location, description, remark, photo_key, photo_mime, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.Project, string(rec.Category), rec.Location, rec.Description, rec.Remark, rec.PhotoKey, rec.PhotoMIME, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to create finding: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

func (s *FindingStore) GetByID(ctx context.Context, id int64) (*domain.Finding, error) {
	f, err := scanFinding(s.db.QueryRowContext(ctx, `
		SELECT `+findingColumns+` FROM findings WHERE id = ?
	`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get finding: %w", err)
	}
	return f, nil
}

// ListByProject returns the project's findings newest first.
func (s *FindingStore) ListByProject(ctx context.Context, project string) ([]*domain.Finding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+findingColumns+` FROM findings
		WHERE project = ? ORDER BY created_at DESC, id DESC
	`, project)
	if err != nil {
		return nil, fmt.Errorf("failed to list findings: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("failed to close rows", "error", err)
		}
	}()

	findings := make([]*domain.Finding, 0)
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan finding: %w", err)
		}
		findings = append(findings, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating findings: %w", err)
	}

	return findings, nil
}

// ListProjects returns each distinct project name once, the project with the
// most recent finding first.
func (s *FindingStore) ListProjects(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project FROM findings
		GROUP BY project
		ORDER BY MAX(created_at) DESC, MAX(id) DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("failed to close rows", "error", err)
		}
	}()

	projects := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}

	return projects, nil
}

// Delete removes the finding. It reports whether a row existed; a missing id
// is not an error.
func (s *FindingStore) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM findings WHERE id = ?
	`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete finding: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

func (s *FindingStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM findings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count findings: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFinding(row rowScanner) (*domain.Finding, error) {
	f := &domain.Finding{}
	var category string
	if err := row.Scan(&f.ID, &f.Project, &category, &f.Location, &f.Description,
		&f.Remark, &f.PhotoKey, &f.PhotoMIME, &f.CreatedAt); err != nil {
		return nil, err
	}
	f.Category = domain.Category(category)
	return f, nil
}
