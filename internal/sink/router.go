package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/poundlens/internal/config"
	"github.com/hazyhaar/poundlens/internal/orchestrate"
)

// Router fans out events to all configured sinks. One sink error does not
// block the others: errors are logged and the first is returned.
type Router struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRouter creates a fan-out router delivering to all sinks.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

// FromConfig builds a Router from sink definitions. Extra sinks, such as
// callbacks, are appended after the configured ones.
func FromConfig(cfgs []config.SinkConfig, logger *slog.Logger, extra ...Sink) (*Router, error) {
	var sinks []Sink
	for _, c := range cfgs {
		switch c.Type {
		case "stdout":
			sinks = append(sinks, NewStdout(nil))
		case "webhook":
			if c.URL == "" {
				return nil, errors.New("sink: webhook without url")
			}
			sinks = append(sinks, NewWebhook(c.URL, WithWebhookLogger(logger)))
		default:
			return nil, fmt.Errorf("sink: unknown type %q", c.Type)
		}
	}
	return NewRouter(logger, append(sinks, extra...)...), nil
}

// Len returns the number of sinks.
func (r *Router) Len() int { return len(r.sinks) }

func (r *Router) SendReport(ctx context.Context, rep orchestrate.Report) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.SendReport(ctx, rep); err != nil {
			r.logger.Warn("sink: send report failed", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Router) SendCopy(ctx context.Context, ev CopyEvent) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.SendCopy(ctx, ev); err != nil {
			r.logger.Warn("sink: send copy failed", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Router) Close() error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
