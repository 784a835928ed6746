// Package sink delivers pass reports and copy events to output backends.
package sink

import (
	"context"
	"time"

	"github.com/hazyhaar/poundlens/entity"
	"github.com/hazyhaar/poundlens/internal/orchestrate"
)

// CopyEvent records the outcome of one copy activation.
type CopyEvent struct {
	Entity entity.ID `json:"entity"`
	Text   string    `json:"text"`
	OK     bool      `json:"ok"`
	Error  string    `json:"error,omitempty"`
	At     time.Time `json:"at"`
}

// Sink is the output interface.
type Sink interface {
	SendReport(ctx context.Context, rep orchestrate.Report) error
	SendCopy(ctx context.Context, ev CopyEvent) error
	Close() error
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
