package web

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"

	"github.com/vbonduro/firecheck/internal/domain"
	"github.com/vbonduro/firecheck/internal/service"
)

const maxPhotoSize = 50 * 1024 * 1024 // 50 MB

// msgRequired is shown when location or description is left blank.
const msgRequired = "位置和描述必填！"

const msgBadCategory = "请选择问题类别！"

// formValues echoes submitted input back into the capture form after a
// validation error.
type formValues struct {
	Category    string
	Location    string
	Description string
	Remark      string
}

type listView struct {
	Project  string
	Findings []*domain.Finding
}

type pageView struct {
	Project    string
	Projects   []string
	Categories []domain.Category
	List       listView
	Form       formValues
	Error      string
}

func (s *Server) handleListFindings(w http.ResponseWriter, r *http.Request) {
	project := s.service.ProjectName(r.URL.Query().Get("project"))
	s.renderFindingsPage(w, r, http.StatusOK, project, formValues{Category: "building"}, "")
}

func (s *Server) renderFindingsPage(w http.ResponseWriter, r *http.Request, status int, project string, form formValues, errMsg string) {
	projects, err := s.service.ListProjects(r.Context())
	if err != nil {
		http.Error(w, "failed to list projects", http.StatusInternalServerError)
		s.logger.Error("list projects failed", "error", err)
		return
	}
	// A project with no findings yet is only known through the URL.
	if !slices.Contains(projects, project) {
		projects = append(projects, project)
	}

	findings, err := s.service.ListFindings(r.Context(), project)
	if err != nil {
		http.Error(w, "failed to list findings", http.StatusInternalServerError)
		s.logger.Error("list findings failed", "project", project, "error", err)
		return
	}

	view := pageView{
		Project:    project,
		Projects:   projects,
		Categories: domain.Categories,
		List:       listView{Project: project, Findings: findings},
		Form:       form,
		Error:      errMsg,
	}
	if err := s.renderPage(w, status, view,
		"base.html", "pages/findings.html", "partials/finding_list.html", "partials/form_error.html",
	); err != nil {
		s.logger.Error("render page failed", "error", err)
	}
}

func (s *Server) renderList(w http.ResponseWriter, r *http.Request, project string) {
	findings, err := s.service.ListFindings(r.Context(), project)
	if err != nil {
		http.Error(w, "failed to list findings", http.StatusInternalServerError)
		s.logger.Error("list findings failed", "project", project, "error", err)
		return
	}
	if err := s.renderPartial(w, http.StatusOK, "partials/finding_list.html",
		listView{Project: project, Findings: findings}); err != nil {
		s.logger.Error("render partial failed", "error", err)
	}
}

func (s *Server) handleCreateFinding(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPhotoSize)
	if err := r.ParseMultipartForm(maxPhotoSize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		http.Error(w, "failed to parse form", http.StatusBadRequest)
		return
	}

	photo, err := readPhoto(r, s.logger)
	if err != nil {
		http.Error(w, "failed to read photo", http.StatusBadRequest)
		return
	}

	project := s.service.ProjectName(r.FormValue("project"))
	form := formValues{
		Category:    r.FormValue("category"),
		Location:    r.FormValue("location"),
		Description: r.FormValue("description"),
		Remark:      r.FormValue("remark"),
	}

	_, err = s.service.AddFinding(r.Context(), service.NewFinding{
		Project:     project,
		Category:    form.Category,
		Location:    form.Location,
		Description: form.Description,
		Remark:      form.Remark,
		Photo:       photo,
	})
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		msg := validationMessage(verr)
		if isHTMX(r) {
			w.Header().Set("HX-Retarget", "#form-error")
			w.Header().Set("HX-Reswap", "innerHTML")
			if err := s.renderPartial(w, http.StatusUnprocessableEntity, "partials/form_error.html", msg); err != nil {
				s.logger.Error("render partial failed", "error", err)
			}
			return
		}
		s.renderFindingsPage(w, r, http.StatusUnprocessableEntity, project, form, msg)
		return
	}
	if err != nil {
		http.Error(w, "failed to add finding", http.StatusInternalServerError)
		s.logger.Error("add finding failed", "project", project, "error", err)
		return
	}

	if isHTMX(r) {
		w.Header().Set("HX-Trigger", "finding-added")
		s.renderList(w, r, project)
		return
	}
	http.Redirect(w, r, "/findings?"+string(projectQuery(project)), http.StatusSeeOther)
}

// readPhoto returns the uploaded photo bytes, or nil when no file was sent.
func readPhoto(r *http.Request, logger *slog.Logger) ([]byte, error) {
	file, _, err := r.FormFile("photo")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closeWithLog(file, "upload file", logger)
	return io.ReadAll(file)
}

func validationMessage(verr *domain.ValidationError) string {
	if verr.Field == "category" {
		return msgBadCategory
	}
	return msgRequired
}

func (s *Server) handleDeleteFinding(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		http.Error(w, "invalid finding id", http.StatusBadRequest)
		return
	}

	if err := s.service.DeleteFinding(r.Context(), id); err != nil {
		http.Error(w, "failed to delete finding", http.StatusInternalServerError)
		s.logger.Error("delete finding failed", "finding_id", id, "error", err)
		return
	}

	s.renderList(w, r, s.service.ProjectName(r.URL.Query().Get("project")))
}

func (s *Server) handleDeleteFindingForm(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		http.Error(w, "invalid finding id", http.StatusBadRequest)
		return
	}

	if err := s.service.DeleteFinding(r.Context(), id); err != nil {
		http.Error(w, "failed to delete finding", http.StatusInternalServerError)
		s.logger.Error("delete finding failed", "finding_id", id, "error", err)
		return
	}

	project := s.service.ProjectName(r.FormValue("project"))
	http.Redirect(w, r, "/findings?"+string(projectQuery(project)), http.StatusSeeOther)
}

func (s *Server) handleGetPhoto(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		http.Error(w, "invalid finding id", http.StatusBadRequest)
		return
	}

	reader, mimeType, err := s.service.GetPhoto(r.Context(), id)
	if errors.Is(err, service.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, "failed to get photo", http.StatusInternalServerError)
		s.logger.Error("get photo failed", "finding_id", id, "error", err)
		return
	}
	defer closeWithLog(reader, "photo reader", s.logger)

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "private, max-age=86400")
	if _, err := io.Copy(w, reader); err != nil {
		s.logger.Error("write photo failed", "finding_id", id, "error", err)
	}
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// parseID extracts the {id} path variable and returns it as int64.
func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

// closeWithLog closes c and logs any error, using label to identify the resource.
func closeWithLog(c io.Closer, label string, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Error("failed to close resource", "label", label, "error", err)
	}
}
