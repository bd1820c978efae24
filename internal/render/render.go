// Package render converts note markdown into a standalone HTML page.
package render

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

// Renderer is safe for concurrent use.
type Renderer struct {
	md   goldmark.Markdown
	page *template.Template
}

// New builds a renderer with GFM tables, strikethrough, task lists, linkify
// and automatic heading ids. Raw HTML in notes is omitted from the output.
func New() *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Linkify,
			extension.TaskList,
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &Renderer{
		md:   md,
		page: template.Must(template.New("page").Parse(pageTemplate)),
	}
}

// HTML converts markdown to an HTML fragment.
func (r *Renderer) HTML(markdown string) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(markdown), &buf); err != nil {
		return nil, fmt.Errorf("markdown parse: %w", err)
	}
	return buf.Bytes(), nil
}

// Page renders markdown inside the note page for noteID.
func (r *Renderer) Page(noteID, markdown string) ([]byte, error) {
	body, err := r.HTML(markdown)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	err = r.page.Execute(&buf, struct {
		NoteID string
		Body   template.HTML
	}{
		NoteID: noteID,
		Body:   template.HTML(body), // goldmark output, raw HTML already dropped
	})
	if err != nil {
		return nil, fmt.Errorf("executing page template: %w", err)
	}
	return buf.Bytes(), nil
}
