package site

import (
	"encoding/json"
	"time"

	"github.com/starford/bread/internal/models"
)

// Outcome summarises a build.
type Outcome string

const (
	// OutcomeSuccess means every document was written.
	OutcomeSuccess Outcome = "success"
	// OutcomePartial means some documents failed and were left out.
	OutcomePartial Outcome = "partial"
	// OutcomeFatal means the build was aborted.
	OutcomeFatal Outcome = "fatal"
)

// Page is one document that made it to the output.
type Page struct {
	Doc      *models.Document
	Checksum string // of the rendered bytes
}

// Failure is a document left out of the build.
type Failure struct {
	Path string
	Err  error
}

// MarshalJSON renders the error as a message.
func (f Failure) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Path  string `json:"path"`
		Error string `json:"error"`
	}{f.Path, f.Err.Error()})
}

// Report is the result of one build.
type Report struct {
	Outcome    Outcome
	StartedAt  time.Time
	FinishedAt time.Time
	Discovered int
	Pages      []Page
	Assets     int
	Failures   []Failure
	Fatal      error
	Written    []string
}

// Duration is the wall time of the build.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Err returns the fatal error, or nil for success and partial builds.
func (r *Report) Err() error {
	return r.Fatal
}

// MarshalJSON renders the report for the HTTP API and MCP tools.
func (r *Report) MarshalJSON() ([]byte, error) {
	type page struct {
		Path     string `json:"path"`
		URL      string `json:"url"`
		Title    string `json:"title"`
		Checksum string `json:"checksum"`
	}
	pages := make([]page, len(r.Pages))
	for i, p := range r.Pages {
		pages[i] = page{Path: p.Doc.Path, URL: p.Doc.URL, Title: p.Doc.Title, Checksum: p.Checksum}
	}
	failures := r.Failures
	if failures == nil {
		failures = []Failure{}
	}
	var fatal string
	if r.Fatal != nil {
		fatal = r.Fatal.Error()
	}
	return json.Marshal(struct {
		Outcome    Outcome   `json:"outcome"`
		StartedAt  time.Time `json:"started_at"`
		FinishedAt time.Time `json:"finished_at"`
		DurationMS int64     `json:"duration_ms"`
		Discovered int       `json:"discovered"`
		Assets     int       `json:"assets"`
		Pages      []page    `json:"pages"`
		Failures   []Failure `json:"failures"`
		Fatal      string    `json:"fatal,omitempty"`
	}{
		Outcome:    r.Outcome,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		DurationMS: r.Duration().Milliseconds(),
		Discovered: r.Discovered,
		Assets:     r.Assets,
		Pages:      pages,
		Failures:   failures,
		Fatal:      fatal,
	})
}
