package web

import (
	"encoding/json"
	"mime"
	"net/http"
	"strconv"

	"github.com/vbonduro/firecheck/internal/report"
)

func (s *Server) handleDownloadReport(w http.ResponseWriter, r *http.Request) {
	project := s.service.ProjectName(r.URL.Query().Get("project"))

	doc, err := s.service.RenderReport(r.Context(), project)
	if err != nil {
		http.Error(w, "failed to render report", http.StatusInternalServerError)
		s.logger.Error("render report failed", "project", project, "error", err)
		return
	}

	// Non-ASCII file names are encoded as RFC 2231 filename*.
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.FileName}))
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Data)))
	if _, err := w.Write(doc.Data); err != nil {
		s.logger.Error("write report failed", "project", project, "error", err)
	}
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.service.ListProjects(r.Context())
	if err != nil {
		http.Error(w, "failed to list projects", http.StatusInternalServerError)
		s.logger.Error("list projects failed", "error", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(projects); err != nil {
		s.logger.Error("encode projects failed", "error", err)
	}
}
