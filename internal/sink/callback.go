package sink

import (
	"context"

	"github.com/hazyhaar/poundlens/internal/orchestrate"
)

// ReportFunc is called for each pass report.
type ReportFunc func(ctx context.Context, rep orchestrate.Report) error

// CopyFunc is called for each copy event.
type CopyFunc func(ctx context.Context, ev CopyEvent) error

// Callback delivers events through Go function calls, for embedders that
// run poundlens in-process.
type Callback struct {
	onReport ReportFunc
	onCopy   CopyFunc
}

// NewCallback creates a Callback sink. Either handler may be nil.
func NewCallback(onReport ReportFunc, onCopy CopyFunc) *Callback {
	return &Callback{onReport: onReport, onCopy: onCopy}
}

func (c *Callback) SendReport(ctx context.Context, rep orchestrate.Report) error {
	if c.onReport != nil {
		return c.onReport(ctx, rep)
	}
	return nil
}

func (c *Callback) SendCopy(ctx context.Context, ev CopyEvent) error {
	if c.onCopy != nil {
		return c.onCopy(ctx, ev)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
