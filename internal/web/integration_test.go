package web_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/vbonduro/firecheck/internal/db"
	"github.com/vbonduro/firecheck/internal/metrics"
	"github.com/vbonduro/firecheck/internal/photostore"
	"github.com/vbonduro/firecheck/internal/report"
	"github.com/vbonduro/firecheck/internal/service"
	"github.com/vbonduro/firecheck/internal/store"
	"github.com/vbonduro/firecheck/internal/web"
	"github.com/vbonduro/firecheck/internal/web/templates"
)

// memPhotoStore is a simple in-memory implementation of photostore.PhotoStore.
type memPhotoStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	mimes   map[string]string
	counter int
}

func newMemPhotoStore() *memPhotoStore {
	return &memPhotoStore{
		data:  make(map[string][]byte),
		mimes: make(map[string]string),
	}
}

func (m *memPhotoStore) Save(_ context.Context, prefix, mimeType string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	key := fmt.Sprintf("%s_%d", prefix, m.counter)
	m.data[key] = data
	m.mimes[key] = mimeType
	return key, nil
}

func (m *memPhotoStore) Get(_ context.Context, key string) (io.ReadCloser, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[key]
	if !ok {
		return nil, "", photostore.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), m.mimes[key], nil
}

func (m *memPhotoStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; !ok {
		return photostore.ErrNotFound
	}
	delete(m.data, key)
	delete(m.mimes, key)
	return nil
}

func (m *memPhotoStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// noRedirect is a client that returns redirects instead of following them.
var noRedirect = &http.Client{
	CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
}

// newTestServer sets up a real web.Server backed by in-memory SQLite and an
// in-memory photo store.
func newTestServer(t *testing.T) (*httptest.Server, *memPhotoStore) {
	t.Helper()
	database, err := db.OpenForTesting()
	if err != nil {
		t.Fatalf("OpenForTesting: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	photos := newMemPhotoStore()
	svc := service.NewFindingService(
		store.NewFindingStore(database),
		photos,
		report.NewRenderer(logger),
		m,
		logger,
		"",
	)
	srv := httptest.NewServer(web.NewServer(svc, templates.FS, m, logger))
	t.Cleanup(func() {
		srv.Close()
		_ = database.Close()
	})
	return srv, photos
}

type findingForm struct {
	project, category, location, description, remark string
	photo                                            []byte
}

// buildMultipartBody creates the multipart/form-data body posted by the capture form.
func buildMultipartBody(t *testing.T, f findingForm) (body *bytes.Buffer, contentType string) {
	t.Helper()
	body = &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range map[string]string{
		"project":     f.project,
		"category":    f.category,
		"location":    f.location,
		"description": f.description,
		"remark":      f.remark,
	} {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	if f.photo != nil {
		fw, err := w.CreateFormFile("photo", "photo.png")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(f.photo); err != nil {
			t.Fatalf("write photo data: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return body, w.FormDataContentType()
}

func postFinding(t *testing.T, srv *httptest.Server, f findingForm, htmx bool) *http.Response {
	t.Helper()
	body, contentType := buildMultipartBody(t, f)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/findings", body)
	if err != nil {
		t.Fatalf("new POST request: %v", err)
	}
	req.Header.Set("Content-Type", contentType)
	if htmx {
		req.Header.Set("HX-Request", "true")
	}
	resp, err := noRedirect.Do(req)
	if err != nil {
		t.Fatalf("POST /findings: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func get(t *testing.T, srv *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := noRedirect.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("expected %d, got %d: %s", want, resp.StatusCode, readBody(t, resp))
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 6))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestIntegration_RootRedirects(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := get(t, srv, "/")
	expectStatus(t, resp, http.StatusSeeOther)
	if got := resp.Header.Get("Location"); got != "/findings" {
		t.Errorf("Location = %q, want /findings", got)
	}
}

func TestIntegration_ListFindingsEmpty(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := get(t, srv, "/findings")
	expectStatus(t, resp, http.StatusOK)

	body := readBody(t, resp)
	for _, want := range []string{"当前项目：默认项目", "已记录 (0)", "暂无记录"} {
		if !strings.Contains(body, want) {
			t.Errorf("page does not contain %q", want)
		}
	}
	if got := resp.Header.Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
}

func TestIntegration_PendingProjectIsSelectable(t *testing.T) {
	srv, _ := newTestServer(t)

	body := readBody(t, get(t, srv, "/findings?project="+url.QueryEscape("新工地")))
	if !strings.Contains(body, `<option value="新工地" selected>`) {
		t.Errorf("pending project not offered as selected option:\n%s", body)
	}
	if !strings.Contains(body, `<option value="默认项目">`) {
		t.Errorf("default project missing from switcher")
	}
}

var (
	selectPattern = regexp.MustCompile(`(?s)<select name="project"[^>]*>(.*?)</select>`)
	optionPattern = regexp.MustCompile(`<option value="[^"]*"( selected)?>[^<]*</option>`)
)

func TestIntegration_FindingsPageMarkup(t *testing.T) {
	srv, _ := newTestServer(t)
	for _, p := range []string{"A", "B", "C"} {
		postFinding(t, srv, findingForm{project: p, category: "building", location: "L", description: "d"}, true)
	}
	pending := "新工地"

	body := readBody(t, get(t, srv, "/findings?project="+url.QueryEscape(pending)))

	m := selectPattern.FindStringSubmatch(body)
	if m == nil {
		t.Fatalf("project switcher not found:\n%s", body)
	}
	options := optionPattern.FindAllStringSubmatch(m[1], -1)
	if len(options) != 4 {
		t.Errorf("expected 4 project options, got %d", len(options))
	}
	if rest := strings.TrimSpace(optionPattern.ReplaceAllString(m[1], "")); rest != "" {
		t.Errorf("project switcher holds more than options: %q", rest)
	}
	selected := 0
	for _, o := range options {
		if o[1] != "" {
			selected++
		}
	}
	if selected != 1 || !strings.Contains(m[1], `<option value="`+pending+`" selected>`) {
		t.Errorf("expected only the pending project selected:\n%s", m[1])
	}

	if got := strings.Count(body, `type="radio" name="category"`); got != 2 {
		t.Errorf("expected 2 category radios, got %d", got)
	}
	if got := strings.Count(body, "htmx:afterRequest"); got != 1 {
		t.Errorf("expected the form reset listener once, got %d", got)
	}

	wantHref := `href="/report?project=` + url.QueryEscape(pending) + `"`
	if !strings.Contains(body, wantHref) {
		t.Errorf("report link not encoded, want %s", wantHref)
	}
}

func TestIntegration_CreateFinding_HTMX(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postFinding(t, srv, findingForm{
		project: "P", category: "building", location: "8楼楼梯间", description: "防火门常开",
	}, true)
	expectStatus(t, resp, http.StatusOK)

	body := readBody(t, resp)
	if !strings.Contains(body, "8楼楼梯间") || !strings.Contains(body, "已记录 (1)") {
		t.Errorf("list partial missing new finding:\n%s", body)
	}
	if strings.Contains(body, "<html") {
		t.Errorf("HTMX response should be a partial, got full page")
	}
}

func TestIntegration_CreateFinding_Redirect(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postFinding(t, srv, findingForm{
		project: "工地 A", category: "equipment", location: "Room B", description: "灭火器过期",
	}, false)
	expectStatus(t, resp, http.StatusSeeOther)

	want := "/findings?project=" + url.QueryEscape("工地 A")
	if got := resp.Header.Get("Location"); got != want {
		t.Errorf("Location = %q, want %q", got, want)
	}

	body := readBody(t, get(t, srv, want))
	if !strings.Contains(body, "灭火器过期") || !strings.Contains(body, "消防设施") {
		t.Errorf("page missing finding:\n%s", body)
	}
}

func TestIntegration_CreateFinding_ValidationError(t *testing.T) {
	srv, photos := newTestServer(t)

	resp := postFinding(t, srv, findingForm{
		project: "P", category: "building", location: "  ", description: "desc", photo: pngBytes(t),
	}, false)
	expectStatus(t, resp, http.StatusUnprocessableEntity)

	body := readBody(t, resp)
	if !strings.Contains(body, "位置和描述必填！") {
		t.Errorf("page missing validation message:\n%s", body)
	}
	if !strings.Contains(body, "已记录 (0)") {
		t.Errorf("invalid finding should not be listed")
	}
	if photos.Len() != 0 {
		t.Errorf("photo stored for invalid finding")
	}
}

func TestIntegration_CreateFinding_ValidationErrorHTMX(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postFinding(t, srv, findingForm{project: "P", category: "building", location: "L"}, true)
	expectStatus(t, resp, http.StatusUnprocessableEntity)

	if got := resp.Header.Get("HX-Retarget"); got != "#form-error" {
		t.Errorf("HX-Retarget = %q, want #form-error", got)
	}
	if body := readBody(t, resp); !strings.Contains(body, "位置和描述必填！") {
		t.Errorf("fragment missing validation message: %s", body)
	}
}

func TestIntegration_DeleteFinding(t *testing.T) {
	srv, photos := newTestServer(t)

	postFinding(t, srv, findingForm{
		project: "P", category: "building", location: "Room A", description: "F1", photo: pngBytes(t),
	}, true)

	for range 2 {
		req, err := http.NewRequest(http.MethodDelete, srv.URL+"/findings/1?project=P", nil)
		if err != nil {
			t.Fatalf("new DELETE request: %v", err)
		}
		req.Header.Set("HX-Request", "true")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("DELETE /findings/1: %v", err)
		}
		expectStatus(t, resp, http.StatusOK)
		body := readBody(t, resp)
		_ = resp.Body.Close()
		if strings.Contains(body, "Room A") || !strings.Contains(body, "已记录 (0)") {
			t.Errorf("deleted finding still listed:\n%s", body)
		}
	}
	if photos.Len() != 0 {
		t.Errorf("photo not removed with finding")
	}
}

func TestIntegration_DeleteFindingForm(t *testing.T) {
	srv, _ := newTestServer(t)

	postFinding(t, srv, findingForm{project: "P", category: "building", location: "Room A", description: "F1"}, true)

	resp, err := noRedirect.PostForm(srv.URL+"/findings/1/delete", url.Values{"project": {"P"}})
	if err != nil {
		t.Fatalf("POST /findings/1/delete: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	expectStatus(t, resp, http.StatusSeeOther)
	if got := resp.Header.Get("Location"); got != "/findings?project=P" {
		t.Errorf("Location = %q", got)
	}

	if body := readBody(t, get(t, srv, "/findings?project=P")); strings.Contains(body, "Room A") {
		t.Errorf("deleted finding still listed")
	}
}

func TestIntegration_GetPhoto(t *testing.T) {
	srv, _ := newTestServer(t)
	data := pngBytes(t)

	postFinding(t, srv, findingForm{project: "P", category: "building", location: "L", description: "D", photo: data}, true)
	postFinding(t, srv, findingForm{project: "P", category: "building", location: "L", description: "no photo"}, true)

	resp := get(t, srv, "/findings/1/photo")
	expectStatus(t, resp, http.StatusOK)
	if got := resp.Header.Get("Content-Type"); got != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", got)
	}
	if body := readBody(t, resp); body != string(data) {
		t.Errorf("photo bytes differ")
	}

	expectStatus(t, get(t, srv, "/findings/2/photo"), http.StatusNotFound)
	expectStatus(t, get(t, srv, "/findings/99/photo"), http.StatusNotFound)
	expectStatus(t, get(t, srv, "/findings/abc/photo"), http.StatusBadRequest)
}

func TestIntegration_DownloadReport(t *testing.T) {
	srv, _ := newTestServer(t)
	project := "工地A"

	postFinding(t, srv, findingForm{project: project, category: "building", location: "Room A", description: "F1", photo: pngBytes(t)}, true)
	postFinding(t, srv, findingForm{project: project, category: "equipment", location: "Room B", description: "F2"}, true)

	resp := get(t, srv, "/report?project="+url.QueryEscape(project))
	expectStatus(t, resp, http.StatusOK)

	if got := resp.Header.Get("Content-Type"); got != report.ContentType {
		t.Errorf("Content-Type = %q", got)
	}
	_, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition"))
	if err != nil {
		t.Fatalf("parse Content-Disposition: %v", err)
	}
	if got := params["filename"]; got != "工地A_消防问题清单.docx" {
		t.Errorf("filename = %q", got)
	}

	data := []byte(readBody(t, resp))
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("report is not a zip package: %v", err)
	}
	var docXML string
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open document.xml: %v", err)
		}
		b, _ := io.ReadAll(rc)
		_ = rc.Close()
		docXML = string(b)
	}
	f1, f2 := strings.Index(docXML, "问题描述：F1"), strings.Index(docXML, "问题描述：F2")
	if f1 < 0 || f2 < 0 || f1 > f2 {
		t.Errorf("report should list F1 in section one before F2 in section two")
	}
}

func TestIntegration_ListProjects(t *testing.T) {
	srv, _ := newTestServer(t)

	var projects []string
	if err := json.NewDecoder(get(t, srv, "/projects").Body).Decode(&projects); err != nil {
		t.Fatalf("decode projects: %v", err)
	}
	if len(projects) != 1 || projects[0] != "默认项目" {
		t.Errorf("projects = %v, want [默认项目]", projects)
	}

	postFinding(t, srv, findingForm{project: "Alpha", category: "building", location: "L", description: "D"}, true)
	postFinding(t, srv, findingForm{project: "Beta", category: "building", location: "L", description: "D"}, true)

	projects = nil
	if err := json.NewDecoder(get(t, srv, "/projects").Body).Decode(&projects); err != nil {
		t.Fatalf("decode projects: %v", err)
	}
	if len(projects) != 2 || projects[0] != "Beta" || projects[1] != "Alpha" {
		t.Errorf("projects = %v, want [Beta Alpha]", projects)
	}
}

func TestIntegration_HealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := get(t, srv, "/healthz")
	expectStatus(t, resp, http.StatusOK)
	if body := readBody(t, resp); body != "ok" {
		t.Errorf("healthz body = %q", body)
	}

	postFinding(t, srv, findingForm{project: "P", category: "building", location: "L", description: "D"}, true)

	body := readBody(t, get(t, srv, "/metrics"))
	for _, want := range []string{
		`firecheck_http_requests_total{method="GET",status="200"} 1`,
		`firecheck_findings_added_total{category="建筑防火问题清单"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}
