package grammar

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/kalambet/mdnotes/internal/apperr"
)

type mockReader struct {
	contentFn func(ctx context.Context, id string) (string, error)
}

func (m *mockReader) Content(ctx context.Context, id string) (string, error) {
	return m.contentFn(ctx, id)
}

type mockChecker struct {
	checkFn func(ctx context.Context, text string) ([]Match, error)
}

func (m *mockChecker) Check(ctx context.Context, text string) ([]Match, error) {
	return m.checkFn(ctx, text)
}

func staticReader(text string) *mockReader {
	return &mockReader{contentFn: func(context.Context, string) (string, error) { return text, nil }}
}

func TestServiceCheck_Report(t *testing.T) {
	text := "I has a apple. Thiss is very very good."
	checker := &mockChecker{checkFn: func(_ context.Context, got string) ([]Match, error) {
		if got != text {
			t.Errorf("checker got %q", got)
		}
		return []Match{
			{RuleID: "HAVE_PART_AGREEMENT", Message: "agreement", Offset: 2, Length: 3, Replacements: []string{"have"}, Category: "GRAMMAR", IssueType: "grammar"},
			{RuleID: "EN_A_VS_AN", Message: "use an", Offset: 6, Length: 1, Replacements: []string{"an"}, Category: "MISC", IssueType: "typographical"},
			{RuleID: "MORFOLOGIK_RULE_EN_US", Message: "typo", Offset: 15, Length: 5, Replacements: []string{"This", "Thus", "Thesis", "Theirs"}, Category: "TYPOS", IssueType: "misspelling"},
			{RuleID: "EN_REPEATEDWORDS", Message: "repeated", Offset: 24, Length: 9, Category: "STYLE", IssueType: "style"},
			{RuleID: "UNKNOWN", Message: "something", Offset: 0, Length: 1},
		}, nil
	}}

	rep, err := NewService(staticReader(text), checker, time.Second).Check(context.Background(), "note-1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}

	if rep.Status != "success" || rep.NoteID != "note-1" || rep.OriginalText != text {
		t.Errorf("header = %q %q %q", rep.Status, rep.NoteID, rep.OriginalText)
	}
	if rep.CorrectedText != "I have an apple. This is very very good." {
		t.Errorf("CorrectedText = %q", rep.CorrectedText)
	}
	want := Statistics{TotalErrors: 5, GrammarErrors: 3, SpellingErrors: 1, StyleErrors: 1}
	if rep.Statistics != want {
		t.Errorf("Statistics = %+v, want %+v", rep.Statistics, want)
	}

	for i, e := range rep.Errors {
		if e.ErrorID != i+1 {
			t.Errorf("errors[%d].ErrorID = %d", i, e.ErrorID)
		}
	}
	if rep.Errors[0].Original != "has" || rep.Errors[2].Original != "Thiss" {
		t.Errorf("originals = %q, %q", rep.Errors[0].Original, rep.Errors[2].Original)
	}
	if len(rep.Errors[2].Suggestions) != 3 {
		t.Errorf("suggestions = %v, want at most 3", rep.Errors[2].Suggestions)
	}
	if rep.Errors[3].Suggestions == nil {
		t.Error("suggestions should be an empty list, not null")
	}
	if rep.Errors[4].Type != "grammar" {
		t.Errorf("missing issue type should default to grammar, got %q", rep.Errors[4].Type)
	}
}

func TestReportJSONShape(t *testing.T) {
	rep := BuildReport("n", "Thiss", []Match{{RuleID: "R", Offset: 0, Length: 5, IssueType: "misspelling"}})
	b, err := json.Marshal(rep)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"status", "note_id", "original_text", "corrected_text", "statistics", "errors"} {
		if _, ok := m[k]; !ok {
			t.Errorf("report JSON missing %q: %s", k, b)
		}
	}
	e := m["errors"].([]any)[0].(map[string]any)
	for _, k := range []string{"error_id", "type", "category", "message", "context", "offset", "length", "original", "suggestions", "rule"} {
		if _, ok := e[k]; !ok {
			t.Errorf("error JSON missing %q", k)
		}
	}
}

func TestServiceCheck_NotFound(t *testing.T) {
	reader := &mockReader{contentFn: func(context.Context, string) (string, error) {
		return "", apperr.E(apperr.NotFound, "note not found", nil)
	}}
	checker := &mockChecker{checkFn: func(context.Context, string) ([]Match, error) {
		t.Fatal("checker must not run for a missing note")
		return nil, nil
	}}

	_, err := NewService(reader, checker, 0).Check(context.Background(), "missing")
	if !apperr.Is(err, apperr.NotFound) {
		t.Errorf("err = %v, want NotFound", err)
	}
}

func TestServiceCheck_Failures(t *testing.T) {
	fetchFail := &mockReader{contentFn: func(context.Context, string) (string, error) {
		return "", apperr.E(apperr.FetchFailed, "fetching object", errors.New("connection reset"))
	}}
	checkFail := &mockChecker{checkFn: func(context.Context, string) ([]Match, error) {
		return nil, errors.New("service unavailable")
	}}
	ok := &mockChecker{checkFn: func(context.Context, string) ([]Match, error) { return nil, nil }}

	if _, err := NewService(fetchFail, ok, 0).Check(context.Background(), "id"); !apperr.Is(err, apperr.GrammarCheckFailed) {
		t.Errorf("fetch failure: err = %v, want GrammarCheckFailed", err)
	}
	if _, err := NewService(staticReader("text"), checkFail, 0).Check(context.Background(), "id"); !apperr.Is(err, apperr.GrammarCheckFailed) {
		t.Errorf("checker failure: err = %v, want GrammarCheckFailed", err)
	}
}

func TestServiceCheck_AppliesTimeout(t *testing.T) {
	checker := &mockChecker{checkFn: func(ctx context.Context, _ string) ([]Match, error) {
		deadline, ok := ctx.Deadline()
		if !ok {
			t.Fatal("checker context has no deadline")
		}
		if time.Until(deadline) > 100*time.Millisecond {
			t.Errorf("deadline %v is further than the configured timeout", time.Until(deadline))
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	_, err := NewService(staticReader("text"), checker, 50*time.Millisecond).Check(context.Background(), "id")
	if !apperr.Is(err, apperr.GrammarCheckFailed) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want GrammarCheckFailed wrapping DeadlineExceeded", err)
	}
}
