package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/vbonduro/firecheck/internal/domain"
	"github.com/vbonduro/firecheck/internal/photostore"
	"github.com/vbonduro/firecheck/internal/report"
	"github.com/vbonduro/firecheck/internal/store"
)

// ErrNotFound is returned when a finding, or the photo it refers to, does not
// exist.
var ErrNotFound = errors.New("not found")

// findingRepository is the subset of store.FindingStore that FindingService requires.
type findingRepository interface {
	Create(ctx context.Context, rec store.NewFindingRecord) (*domain.Finding, error)
	GetByID(ctx context.Context, id int64) (*domain.Finding, error)
	ListByProject(ctx context.Context, project string) ([]*domain.Finding, error)
	ListProjects(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

// reportRenderer is implemented by report.Renderer.
type reportRenderer interface {
	Render(project string, entries []report.Entry) (*report.Document, error)
}

// recorder is implemented by metrics.Metrics.
type recorder interface {
	FindingAdded(category domain.Category)
	FindingDeleted()
	ReportRendered(d time.Duration, photoFallbacks int)
}

type nopRecorder struct{}

func (nopRecorder) FindingAdded(domain.Category)      {}
func (nopRecorder) FindingDeleted()                   {}
func (nopRecorder) ReportRendered(time.Duration, int) {}

// NewFinding is the user input for a finding. Category accepts the full
// category name or its "building"/"equipment" alias.
type NewFinding struct {
	Project     string
	Category    string
	Location    string
	Description string
	Remark      string
	Photo       []byte
}

type FindingService struct {
	findings       findingRepository
	photoStg       photostore.PhotoStore
	renderer       reportRenderer
	metrics        recorder
	logger         *slog.Logger
	defaultProject string
}

func NewFindingService(
	findings findingRepository,
	photoStg photostore.PhotoStore,
	renderer reportRenderer,
	metrics recorder,
	logger *slog.Logger,
	defaultProject string,
) *FindingService {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	if defaultProject == "" {
		defaultProject = domain.DefaultProject
	}
	return &FindingService{
		findings:       findings,
		photoStg:       photoStg,
		renderer:       renderer,
		metrics:        metrics,
		logger:         logger,
		defaultProject: defaultProject,
	}
}

// DefaultProject is the project name used for blank input.
func (s *FindingService) DefaultProject() string {
	return s.defaultProject
}

// ProjectName trims name and substitutes the default project for blank input.
func (s *FindingService) ProjectName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return s.defaultProject
	}
	return name
}

// AddFinding validates input, stores the photo if present, and persists the
// finding. Nothing is stored when validation fails.
func (s *FindingService) AddFinding(ctx context.Context, in NewFinding) (*domain.Finding, error) {
	category, err := domain.ParseCategory(in.Category)
	if err != nil {
		return nil, err
	}
	rec := store.NewFindingRecord{
		Project:     s.ProjectName(in.Project),
		Category:    category,
		Location:    strings.TrimSpace(in.Location),
		Description: strings.TrimSpace(in.Description),
		Remark:      strings.TrimSpace(in.Remark),
	}
	if rec.Location == "" {
		return nil, &domain.ValidationError{Field: "location"}
	}
	if rec.Description == "" {
		return nil, &domain.ValidationError{Field: "description"}
	}

	if len(in.Photo) > 0 {
		rec.PhotoMIME = photostore.DetectMIME(in.Photo)
		key, err := s.photoStg.Save(ctx, "finding", rec.PhotoMIME, bytes.NewReader(in.Photo))
		if err != nil {
			return nil, fmt.Errorf("failed to save photo: %w", err)
		}
		rec.PhotoKey = key
		s.logger.Debug("photo saved", "storage_key", key, "mime_type", rec.PhotoMIME, "bytes", len(in.Photo))
	}

	f, err := s.findings.Create(ctx, rec)
	if err != nil {
		if rec.PhotoKey != "" {
			if stgErr := s.photoStg.Delete(ctx, rec.PhotoKey); stgErr != nil {
				s.logger.Error("failed to roll back photo after insert error", "storage_key", rec.PhotoKey, "error", stgErr)
			}
		}
		return nil, err
	}

	s.metrics.FindingAdded(f.Category)
	s.logger.Info("finding added", "finding_id", f.ID, "project", f.Project, "category", string(f.Category))
	return f, nil
}

// ListFindings returns the project's findings newest first.
func (s *FindingService) ListFindings(ctx context.Context, project string) ([]*domain.Finding, error) {
	return s.findings.ListByProject(ctx, s.ProjectName(project))
}

// DeleteFinding removes the finding and its photo. Deleting an id that does
// not exist is a no-op.
func (s *FindingService) DeleteFinding(ctx context.Context, id int64) error {
	f, err := s.findings.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if f == nil {
		return nil
	}

	deleted, err := s.findings.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return nil
	}
	s.metrics.FindingDeleted()
	s.logger.Info("finding deleted", "finding_id", id, "project", f.Project)

	if f.HasPhoto() {
		if err := s.photoStg.Delete(ctx, f.PhotoKey); err != nil && !errors.Is(err, photostore.ErrNotFound) {
			s.logger.Error("failed to delete photo file", "finding_id", id, "storage_key", f.PhotoKey, "error", err)
		}
	}
	return nil
}

// ListProjects returns every project name, most recently used first. With no
// findings recorded it returns the default project alone.
func (s *FindingService) ListProjects(ctx context.Context) ([]string, error) {
	projects, err := s.findings.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		return []string{s.defaultProject}, nil
	}
	return projects, nil
}

// GetPhoto opens the photo attached to a finding. The caller closes the reader.
func (s *FindingService) GetPhoto(ctx context.Context, id int64) (io.ReadCloser, string, error) {
	f, err := s.findings.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if f == nil || !f.HasPhoto() {
		return nil, "", ErrNotFound
	}

	rc, _, err := s.photoStg.Get(ctx, f.PhotoKey)
	if errors.Is(err, photostore.ErrNotFound) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to get photo: %w", err)
	}
	return rc, f.PhotoMIME, nil
}

// RenderReport builds the .docx report for a project with findings in the
// order they were recorded.
func (s *FindingService) RenderReport(ctx context.Context, project string) (*report.Document, error) {
	start := time.Now()
	project = s.ProjectName(project)

	findings, err := s.findings.ListByProject(ctx, project)
	if err != nil {
		return nil, err
	}
	slices.Reverse(findings)

	entries := make([]report.Entry, 0, len(findings))
	for _, f := range findings {
		entry := report.Entry{
			Category:    f.Category,
			Location:    f.Location,
			Description: f.Description,
			Remark:      f.Remark,
		}
		if f.HasPhoto() {
			photo, err := s.loadPhoto(ctx, f)
			if err != nil {
				return nil, err
			}
			entry.Photo = photo
		}
		entries = append(entries, entry)
	}

	doc, err := s.renderer.Render(project, entries)
	if err != nil {
		return nil, fmt.Errorf("failed to render report: %w", err)
	}

	s.metrics.ReportRendered(time.Since(start), doc.PhotoFallbacks)
	s.logger.Info("report rendered", "project", project, "findings", len(entries),
		"photos_embedded", doc.PhotosEmbedded, "photo_fallbacks", doc.PhotoFallbacks, "bytes", len(doc.Data))
	return doc, nil
}

// loadPhoto reads a finding's photo bytes. A photo missing from storage is
// rendered as if none had been attached.
func (s *FindingService) loadPhoto(ctx context.Context, f *domain.Finding) ([]byte, error) {
	rc, _, err := s.photoStg.Get(ctx, f.PhotoKey)
	if errors.Is(err, photostore.ErrNotFound) {
		s.logger.Warn("photo missing from storage", "finding_id", f.ID, "storage_key", f.PhotoKey)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get photo for finding %d: %w", f.ID, err)
	}
	defer func() {
		if err := rc.Close(); err != nil {
			s.logger.Error("failed to close photo", "finding_id", f.ID, "error", err)
		}
	}()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read photo for finding %d: %w", f.ID, err)
	}
	return data, nil
}
