package grammar

import (
	"context"
	"log/slog"
	"time"

	"github.com/kalambet/mdnotes/internal/apperr"
)

const (
	maxSuggestions = 3
	defaultType    = "grammar"
)

// ContentReader returns the markdown text of a note.
type ContentReader interface {
	Content(ctx context.Context, id string) (string, error)
}

// ErrorRecord is one issue in a Report.
type ErrorRecord struct {
	ErrorID     int      `json:"error_id"`
	Type        string   `json:"type"`
	Category    string   `json:"category"`
	Message     string   `json:"message"`
	Context     string   `json:"context"`
	Offset      int      `json:"offset"`
	Length      int      `json:"length"`
	Original    string   `json:"original"`
	Suggestions []string `json:"suggestions"`
	Rule        string   `json:"rule"`
}

type Statistics struct {
	TotalErrors    int `json:"total_errors"`
	GrammarErrors  int `json:"grammar_errors"`
	SpellingErrors int `json:"spelling_errors"`
	StyleErrors    int `json:"style_errors"`
}

// Report is the grammar check result for one note.
type Report struct {
	Status        string        `json:"status"`
	NoteID        string        `json:"note_id"`
	OriginalText  string        `json:"original_text"`
	CorrectedText string        `json:"corrected_text"`
	Statistics    Statistics    `json:"statistics"`
	Errors        []ErrorRecord `json:"errors"`
}

// Service checks stored notes.
type Service struct {
	notes   ContentReader
	checker Checker
	timeout time.Duration
	logger  *slog.Logger
}

// NewService returns a Service. timeout bounds each checker call; <= 0
// selects 30 seconds.
func NewService(notes ContentReader, checker Checker, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{
		notes:   notes,
		checker: checker,
		timeout: timeout,
		logger:  slog.Default(),
	}
}

// Check fetches note id and reports its issues. A missing note is NotFound;
// any other failure is GrammarCheckFailed.
func (s *Service) Check(ctx context.Context, id string) (Report, error) {
	text, err := s.notes.Content(ctx, id)
	if err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return Report{}, err
		}
		return Report{}, apperr.E(apperr.GrammarCheckFailed, "Grammar check failed", err)
	}

	checkCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	matches, err := s.checker.Check(checkCtx, text)
	if err != nil {
		return Report{}, apperr.E(apperr.GrammarCheckFailed, "Grammar check failed", err)
	}
	s.logger.Debug("grammar check", "note_id", id, "matches", len(matches), "duration_ms", time.Since(start).Milliseconds())

	return BuildReport(id, text, matches), nil
}

// BuildReport turns checker matches into a Report.
func BuildReport(id, text string, matches []Match) Report {
	runes := []rune(text)
	errs := make([]ErrorRecord, 0, len(matches))
	var stats Statistics
	for _, m := range matches {
		typ := m.IssueType
		if typ == "" {
			typ = defaultType
		}
		suggestions := m.Replacements
		if len(suggestions) > maxSuggestions {
			suggestions = suggestions[:maxSuggestions]
		}
		if suggestions == nil {
			suggestions = []string{}
		}

		errs = append(errs, ErrorRecord{
			ErrorID:     len(errs) + 1,
			Type:        typ,
			Category:    m.Category,
			Message:     m.Message,
			Context:     m.Context,
			Offset:      m.Offset,
			Length:      m.Length,
			Original:    span(runes, m.Offset, m.Length),
			Suggestions: suggestions,
			Rule:        m.RuleID,
		})

		switch typ {
		case "grammar", "typographical":
			stats.GrammarErrors++
		case "misspelling":
			stats.SpellingErrors++
		case "style":
			stats.StyleErrors++
		}
	}
	stats.TotalErrors = len(errs)

	return Report{
		Status:        "success",
		NoteID:        id,
		OriginalText:  text,
		CorrectedText: Correct(text, matches),
		Statistics:    stats,
		Errors:        errs,
	}
}
