// Package clipboard models the clipboard-write capability used by copy
// controls and the visible fallback shown when a write fails.
package clipboard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/atotto/clipboard"
)

// ErrUnsupported is returned by System when the host has no clipboard
// utility (no xclip, xsel or wl-copy on Linux).
var ErrUnsupported = errors.New("clipboard: unsupported on this host")

// Writer writes text to a clipboard.
type Writer interface {
	Write(ctx context.Context, text string) error
}

// writeAll is swapped in tests.
var writeAll = clipboard.WriteAll

// System writes to the operating system clipboard.
type System struct{}

// Write implements Writer.
func (System) Write(ctx context.Context, text string) error {
	if clipboard.Unsupported {
		return ErrUnsupported
	}
	done := make(chan error, 1)
	go func() { done <- writeAll(text) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("clipboard: write: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Memory keeps every written text. It backs headless sessions and tests.
type Memory struct {
	mu    sync.Mutex
	texts []string
}

// Write implements Writer.
func (m *Memory) Write(_ context.Context, text string) error {
	m.mu.Lock()
	m.texts = append(m.texts, text)
	m.mu.Unlock()
	return nil
}

// Last returns the most recent text, or "".
func (m *Memory) Last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.texts) == 0 {
		return ""
	}
	return m.texts[len(m.texts)-1]
}

// All returns a copy of every written text in order.
func (m *Memory) All() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

// Failing rejects every write with Err.
type Failing struct {
	Err error
}

// Write implements Writer.
func (f Failing) Write(context.Context, string) error {
	if f.Err == nil {
		return errors.New("clipboard: write refused")
	}
	return f.Err
}
