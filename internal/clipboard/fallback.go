package clipboard

import (
	"bytes"
	"context"
	"html/template"
	"log/slog"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

// Presenter shows text the user must copy by hand after a failed write.
type Presenter interface {
	Present(ctx context.Context, text string) error
}

// Entry is one text handed to the fallback.
type Entry struct {
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Fallback keeps the last texts that could not be written and renders them
// as a self-contained page with a selectable text area.
type Fallback struct {
	mu      sync.Mutex
	entries []Entry
	max     int
	policy  *bluemonday.Policy
	logger  *slog.Logger
}

// NewFallback creates a Fallback holding up to max entries (default 20).
func NewFallback(max int, logger *slog.Logger) *Fallback {
	if max <= 0 {
		max = 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := bluemonday.NewPolicy()
	p.AllowElements("html", "head", "title", "body", "h1", "p", "textarea", "time")
	p.AllowAttrs("readonly", "rows", "cols").OnElements("textarea")
	p.AllowAttrs("datetime").OnElements("time")
	return &Fallback{max: max, policy: p, logger: logger}
}

// Present implements Presenter.
func (f *Fallback) Present(_ context.Context, text string) error {
	f.mu.Lock()
	f.entries = append(f.entries, Entry{Text: text, At: time.Now()})
	if len(f.entries) > f.max {
		f.entries = f.entries[len(f.entries)-f.max:]
	}
	f.mu.Unlock()
	f.logger.Info("clipboard: fallback presented", "bytes", len(text))
	return nil
}

// Entries returns the held entries, newest last.
func (f *Fallback) Entries() []Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Entry(nil), f.entries...)
}

var pageTmpl = template.Must(template.New("fallback").Parse(`<html><head><title>poundlens: copy manually</title></head><body>
<h1>Copy manually</h1>
{{range .}}<p><time datetime="{{.At.Format "2006-01-02T15:04:05Z07:00"}}">{{.At.Format "15:04:05"}}</time></p>
<textarea readonly rows="6" cols="60">{{.Text}}</textarea>
{{else}}<p>Nothing to copy.</p>
{{end}}</body></html>`))

// Page renders the entries as HTML. The output is passed through the
// sanitizer so host-page text can never smuggle markup in.
func (f *Fallback) Page() ([]byte, error) {
	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, f.Entries()); err != nil {
		return nil, err
	}
	return f.policy.SanitizeBytes(buf.Bytes()), nil
}

// Presenters shows text through every presenter in order and returns the
// first error.
type Presenters []Presenter

// Present implements Presenter.
func (ps Presenters) Present(ctx context.Context, text string) error {
	var first error
	for _, p := range ps {
		if err := p.Present(ctx, text); err != nil && first == nil {
			first = err
		}
	}
	return first
}
