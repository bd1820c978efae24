// Package grammar checks note text with LanguageTool and builds the
// correction report served to clients.
package grammar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode/utf16"
)

// DefaultBaseURL is the public LanguageTool API.
const DefaultBaseURL = "https://api.languagetoolplus.com/v2"

// Match is one issue reported by the checker. Offset and Length count runes
// of the checked text.
type Match struct {
	RuleID       string
	Message      string
	Replacements []string
	Offset       int
	Length       int
	Context      string
	Category     string
	IssueType    string
}

// Checker finds grammar, spelling and style issues in text.
type Checker interface {
	Check(ctx context.Context, text string) ([]Match, error)
}

// LanguageToolOptions configures the LanguageTool client.
type LanguageToolOptions struct {
	BaseURL  string
	Language string
	// Username and APIKey are only needed for premium accounts.
	Username string
	APIKey   string
	Timeout  time.Duration
}

// LanguageTool talks to a LanguageTool server over its HTTP API.
type LanguageTool struct {
	baseURL    string
	language   string
	username   string
	apiKey     string
	httpClient *http.Client
}

// NewLanguageTool creates a client. Empty options fall back to the public
// API, en-US and a 30 second timeout.
func NewLanguageTool(opts LanguageToolOptions) *LanguageTool {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Language == "" {
		opts.Language = "en-US"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &LanguageTool{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		language: opts.Language,
		username: opts.Username,
		apiKey:   opts.APIKey,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
	}
}

// checkResponse mirrors the JSON returned by POST /check.
type checkResponse struct {
	Matches []ltMatch `json:"matches"`
}

type ltMatch struct {
	Message      string `json:"message"`
	Offset       int    `json:"offset"`
	Length       int    `json:"length"`
	Replacements []struct {
		Value string `json:"value"`
	} `json:"replacements"`
	Context struct {
		Text string `json:"text"`
	} `json:"context"`
	Rule struct {
		ID        string `json:"id"`
		IssueType string `json:"issueType"`
		Category  struct {
			ID string `json:"id"`
		} `json:"category"`
	} `json:"rule"`
}

// Check sends text to /check and returns the matches in server order.
func (c *LanguageTool) Check(ctx context.Context, text string) ([]Match, error) {
	form := url.Values{}
	form.Set("text", text)
	form.Set("language", c.language)
	if c.username != "" && c.apiKey != "" {
		form.Set("username", c.username)
		form.Set("apiKey", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/check", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting grammar check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var cr checkResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	idx := newOffsetIndex(text)
	matches := make([]Match, 0, len(cr.Matches))
	for _, m := range cr.Matches {
		start := idx.runeOffset(m.Offset)
		end := idx.runeOffset(m.Offset + m.Length)
		repl := make([]string, len(m.Replacements))
		for i, r := range m.Replacements {
			repl[i] = r.Value
		}
		matches = append(matches, Match{
			RuleID:       m.Rule.ID,
			Message:      m.Message,
			Replacements: repl,
			Offset:       start,
			Length:       end - start,
			Context:      m.Context.Text,
			Category:     m.Rule.Category.ID,
			IssueType:    m.Rule.IssueType,
		})
	}
	return matches, nil
}

// offsetIndex converts LanguageTool offsets, which count UTF-16 code
// units, to rune offsets.
type offsetIndex struct {
	// units[i] is the UTF-16 offset at which rune i starts.
	units []int
}

func newOffsetIndex(text string) offsetIndex {
	units := make([]int, 0, len(text)+1)
	n := 0
	for _, r := range text {
		units = append(units, n)
		n += utf16.RuneLen(r)
	}
	units = append(units, n)
	return offsetIndex{units: units}
}

func (x offsetIndex) runeOffset(u int) int {
	i := sort.SearchInts(x.units, u)
	if i >= len(x.units) {
		return len(x.units) - 1
	}
	return i
}
