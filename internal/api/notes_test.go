package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kalambet/mdnotes/internal/apperr"
	"github.com/kalambet/mdnotes/internal/backup"
	"github.com/kalambet/mdnotes/internal/grammar"
	"github.com/kalambet/mdnotes/internal/ingest"
	"github.com/kalambet/mdnotes/internal/render"
	"github.com/kalambet/mdnotes/internal/storage"
)

type mockIngester struct {
	ingestFn func(ctx context.Context, src ingest.Source) (ingest.Result, error)
}

func (m *mockIngester) Ingest(ctx context.Context, src ingest.Source) (ingest.Result, error) {
	return m.ingestFn(ctx, src)
}

type testServer struct {
	*env
	deps    Deps
	handler http.Handler
	backups *backup.Store
	staging string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	e := newEnv(t)
	backups := backup.New(filepath.Join(t.TempDir(), "backups"))
	staging := t.TempDir()
	deps := Deps{
		Ingester: ingest.New(backups, e.objects, e.store, 1024),
		Notes:    e.store,
		Reader:   e.reader,
		Grammar: &mockGrammar{checkFn: func(ctx context.Context, id string) (grammar.Report, error) {
			text, err := e.reader.Content(ctx, id)
			if err != nil {
				return grammar.Report{}, err
			}
			return grammar.BuildReport(id, text, nil), nil
		}},
		Renderer:       render.New(),
		StagingDir:     staging,
		MaxUploadBytes: 1024,
		Logger:         discardLogger(),
	}
	return &testServer{env: e, deps: deps, handler: NewRouter(deps), backups: backups, staging: staging}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, field, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	io.WriteString(fw, content)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/notes/create", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return body["error"]
}

func stagedFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestCreateNote_Success(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(uploadRequest(t, "file", "todo.md", "# Todo\n\n- write tests\n"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var res ingest.Result
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res.Status != "success" || res.Message != "document saved successfully" || res.DocumentID == "" {
		t.Errorf("result = %+v", res)
	}

	note, err := s.store.GetNote(context.Background(), res.DocumentID)
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if !strings.HasSuffix(note.BackupPath, "-todo.md") {
		t.Errorf("backup path %q does not keep the original name", note.BackupPath)
	}
	if left := stagedFiles(t, s.staging); len(left) != 0 {
		t.Errorf("staging dir not cleaned: %v", left)
	}

	// The stored content can be read back twice with identical bytes.
	for i := 0; i < 2; i++ {
		rec := s.do(httptest.NewRequest(http.MethodGet, "/api/notes/"+res.DocumentID+"/content", nil))
		if rec.Code != http.StatusOK || rec.Body.String() != "# Todo\n\n- write tests\n" {
			t.Errorf("content #%d: %d %q", i, rec.Code, rec.Body)
		}
		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
			t.Errorf("content type = %q", ct)
		}
	}
}

func TestCreateNote_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		req     func(t *testing.T) *http.Request
		wantMsg string
	}{
		{
			name:    "no file field",
			req:     func(t *testing.T) *http.Request { return uploadRequest(t, "other", "a.md", "x") },
			wantMsg: "No file uploaded. Please upload a markdown file.",
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/api/notes/create", strings.NewReader("{}"))
			},
			wantMsg: "No file uploaded. Please upload a markdown file.",
		},
		{
			name:    "wrong extension",
			req:     func(t *testing.T) *http.Request { return uploadRequest(t, "file", "notes.txt", "x") },
			wantMsg: "Only .md (markdown) files are allowed",
		},
		{
			name:    "empty file",
			req:     func(t *testing.T) *http.Request { return uploadRequest(t, "file", "empty.md", "") },
			wantMsg: "file is empty",
		},
		{
			name:    "over the limit",
			req:     func(t *testing.T) *http.Request { return uploadRequest(t, "file", "big.md", strings.Repeat("a", 2048)) },
			wantMsg: "exceeds maximum",
		},
		{
			name:    "body too large",
			req:     func(t *testing.T) *http.Request { return uploadRequest(t, "file", "huge.md", strings.Repeat("a", 2<<20)) },
			wantMsg: "exceeds maximum",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			rec := s.do(tt.req(t))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (body %s)", rec.Code, rec.Body)
			}
			if msg := decodeError(t, rec); !strings.Contains(msg, tt.wantMsg) {
				t.Errorf("error = %q, want %q", msg, tt.wantMsg)
			}
			paths, err := s.backups.List()
			if err != nil {
				t.Fatal(err)
			}
			if len(paths) != 0 || s.objects.Len() != 0 {
				t.Errorf("rejected upload left %d backups and %d objects", len(paths), s.objects.Len())
			}
			if left := stagedFiles(t, s.staging); len(left) != 0 {
				t.Errorf("staging dir not cleaned: %v", left)
			}
		})
	}
}

func TestCreateNote_PipelineFailureIs500(t *testing.T) {
	s := newTestServer(t)
	var stagedPath string
	s.deps.Ingester = &mockIngester{ingestFn: func(_ context.Context, src ingest.Source) (ingest.Result, error) {
		stagedPath = src.Path
		if src.Name != "a.md" {
			t.Errorf("Source.Name = %q, want a.md", src.Name)
		}
		return ingest.Result{}, apperr.E(apperr.UploadFailed, "failed to upload file", nil)
	}}
	handler := NewRouter(s.deps)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, uploadRequest(t, "file", "a.md", "hello"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if msg := decodeError(t, rec); msg != "failed to upload file" {
		t.Errorf("error = %q", msg)
	}
	if _, err := os.Stat(stagedPath); !os.IsNotExist(err) {
		t.Errorf("staged file %s not removed after failure", stagedPath)
	}
}

func TestListAndGetNotes(t *testing.T) {
	s := newTestServer(t)
	a := s.addNote(t, "# A")
	s.addNote(t, "# B")

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/notes?limit=1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var list []storage.Note
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("limit=1 returned %d notes", len(list))
	}

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/notes/"+a.ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var got storage.Note
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.ID != a.ID || got.ObjectKey != a.ObjectKey {
		t.Errorf("note = %+v", got)
	}
}

func TestListNotes_EmptyIsArray(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/notes", nil))
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("got %d %q, want 200 []", rec.Code, rec.Body)
	}
}

func TestNotFoundRoutes(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{
		"/api/notes/missing",
		"/api/notes/missing/content",
		"/api/notes/missing/grammar-check",
		"/api/notes/missing/render",
	} {
		rec := s.do(httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", path, rec.Code)
			continue
		}
		if msg := decodeError(t, rec); msg == "" {
			t.Errorf("%s: empty error message", path)
		}
	}
}

func TestGrammarCheckRoute(t *testing.T) {
	s := newTestServer(t)
	n := s.addNote(t, "Some text.")

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/notes/"+n.ID+"/grammar-check", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var rep grammar.Report
	if err := json.NewDecoder(rec.Body).Decode(&rep); err != nil {
		t.Fatal(err)
	}
	if rep.NoteID != n.ID || rep.OriginalText != "Some text." || rep.Status != "success" {
		t.Errorf("report = %+v", rep)
	}
}

func TestGrammarCheckRoute_ServiceFailure(t *testing.T) {
	s := newTestServer(t)
	s.deps.Grammar = &mockGrammar{checkFn: func(context.Context, string) (grammar.Report, error) {
		return grammar.Report{}, apperr.E(apperr.GrammarCheckFailed, "Grammar check failed", nil)
	}}
	rec := httptest.NewRecorder()
	NewRouter(s.deps).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/notes/x/grammar-check", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestRenderRoute(t *testing.T) {
	s := newTestServer(t)
	n := s.addNote(t, "# Heading\n\nParagraph.\n")

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/notes/"+n.ID+"/render", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type = %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{"<title>Note - " + n.ID + "</title>", `<h1 id="heading">Heading</h1>`, "<p>Paragraph.</p>"} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("health = %d %s", rec.Code, rec.Body)
	}
}

func TestRecovererReturns500(t *testing.T) {
	s := newTestServer(t)
	s.deps.Grammar = &mockGrammar{checkFn: func(context.Context, string) (grammar.Report, error) {
		panic("boom")
	}}
	rec := httptest.NewRecorder()
	NewRouter(s.deps).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/notes/x/grammar-check", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperr.E(apperr.InvalidInput, "bad", nil), http.StatusBadRequest},
		{apperr.E(apperr.NotFound, "gone", nil), http.StatusNotFound},
		{storage.ErrNotFound, http.StatusNotFound},
		{apperr.E(apperr.BackupFailed, "disk", nil), http.StatusInternalServerError},
		{apperr.E(apperr.PersistenceError, "db", nil), http.StatusInternalServerError},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
