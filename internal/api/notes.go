// Package api serves the note HTTP API and the MCP tool server.
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/mdnotes/internal/grammar"
	"github.com/kalambet/mdnotes/internal/ingest"
	"github.com/kalambet/mdnotes/internal/objectstore"
	"github.com/kalambet/mdnotes/internal/storage"
)

const (
	// multipartOverhead is allowed on top of the file size for headers and
	// boundaries.
	multipartOverhead = 1 << 20
	// multipartMemory is kept in memory while parsing; larger parts spill to
	// temp files.
	multipartMemory = 1 << 20
)

// Ingester runs the ingestion pipeline on a staged file.
type Ingester interface {
	Ingest(ctx context.Context, src ingest.Source) (ingest.Result, error)
}

// NoteLister lists stored notes.
type NoteLister interface {
	ListNotes(ctx context.Context, limit, offset int) ([]storage.Note, error)
}

// NoteReader loads a note record or its markdown content.
type NoteReader interface {
	Note(ctx context.Context, id string) (storage.Note, error)
	Content(ctx context.Context, id string) (string, error)
}

// GrammarChecker produces the grammar report of a note.
type GrammarChecker interface {
	Check(ctx context.Context, id string) (grammar.Report, error)
}

// PageRenderer renders note markdown as an HTML page.
type PageRenderer interface {
	Page(noteID, markdown string) ([]byte, error)
}

type Deps struct {
	Ingester Ingester
	Notes    NoteLister
	Reader   NoteReader
	Grammar  GrammarChecker
	Renderer PageRenderer
	// StagingDir receives uploads before ingestion; empty means os.TempDir().
	StagingDir     string
	MaxUploadBytes int64
	Logger         *slog.Logger
}

// NewRouter returns the full HTTP handler.
func NewRouter(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = objectstore.DefaultMaxSize
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLog(deps.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)
	r.Route("/api/notes", func(r chi.Router) {
		r.Get("/", handleListNotes(deps))
		r.Post("/create", handleCreateNote(deps))
		r.Get("/{id}", handleGetNote(deps))
		r.Get("/{id}/content", handleGetContent(deps))
		r.Get("/{id}/grammar-check", handleGrammarCheck(deps))
		r.Get("/{id}/render", handleRender(deps))
	})
	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleCreateNote(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := deps.MaxUploadBytes + multipartOverhead
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		defer r.Body.Close()

		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) || r.ContentLength > limit {
				httpError(w, http.StatusBadRequest, "file size exceeds maximum allowed size of %d bytes", deps.MaxUploadBytes)
				return
			}
			httpError(w, http.StatusBadRequest, "No file uploaded. Please upload a markdown file.")
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "No file uploaded. Please upload a markdown file.")
			return
		}
		defer file.Close()

		if header.Filename == "" {
			httpError(w, http.StatusBadRequest, "No file selected")
			return
		}
		if !strings.EqualFold(filepath.Ext(header.Filename), ".md") {
			httpError(w, http.StatusBadRequest, "Only .md (markdown) files are allowed")
			return
		}

		staged, err := stage(deps.StagingDir, file)
		if err != nil {
			deps.Logger.Error("staging upload failed", "error", err)
			httpError(w, http.StatusInternalServerError, "failed to stage upload: %v", err)
			return
		}
		defer os.Remove(staged) //nolint:errcheck

		res, err := deps.Ingester.Ingest(r.Context(), ingest.Source{Path: staged, Name: header.Filename})
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, res)
	}
}

// stage copies the uploaded part into a temp file and returns its path.
func stage(dir string, src multipart.File) (string, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return "", err
		}
	}
	tmp, err := os.CreateTemp(dir, "note_*.md")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

func handleListNotes(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		notes, err := deps.Notes.ListNotes(r.Context(), limit, offset)
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		if notes == nil {
			notes = []storage.Note{}
		}
		writeJSON(w, http.StatusOK, notes)
	}
}

func handleGetNote(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		note, err := deps.Reader.Note(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, note)
	}
}

func handleGetContent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		content, err := deps.Reader.Content(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		io.WriteString(w, content)
	}
}

func handleGrammarCheck(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := deps.Grammar.Check(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func handleRender(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		content, err := deps.Reader.Content(r.Context(), id)
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		page, err := deps.Renderer.Page(id, content)
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(page)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
