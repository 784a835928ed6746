// Package monitor owns the document and schedules annotation passes.
//
// One goroutine runs the loop. Page updates, clicks and passes are tasks
// executed on it, so the document needs no locking. Passes are triggered
// by an initial delay, by relevant mutations after a debounce, and by a
// periodic ticker.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/poundlens/dom"
)

// ErrStopped is returned by Do once the loop has exited.
var ErrStopped = errors.New("monitor: stopped")

// Pass reasons.
const (
	ReasonInitial  = "initial"
	ReasonMutation = "mutation"
	ReasonInterval = "interval"
)

// PassFunc runs one pass over the document.
type PassFunc func(ctx context.Context, doc *dom.Document, reason string)

// Config for creating a Monitor.
type Config struct {
	Filter       *Filter
	Pass         PassFunc
	InitialDelay time.Duration
	Debounce     time.Duration
	MaxWait      time.Duration
	Interval     time.Duration
	// Observe, when set, sees every drained batch of records before the
	// filter does, including changes to injected elements.
	Observe func(doc *dom.Document, recs []dom.Record)
	Logger  *slog.Logger
}

type task struct {
	fn   func(*dom.Document) error
	done chan error
}

// Monitor serialises all access to one document.
type Monitor struct {
	doc    *dom.Document
	cfg    Config
	logger *slog.Logger

	tasks     chan task
	debouncer *debouncer

	mu      sync.Mutex
	posted  []func()
	timers  map[*time.Timer]struct{}
	postSig chan struct{}

	stopped  chan struct{}
	stopOnce sync.Once
}

// New creates a Monitor for doc. Run must be called to start it.
func New(doc *dom.Document, cfg Config) *Monitor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.InitialDelay < 0 {
		cfg.InitialDelay = 0
	}
	return &Monitor{
		doc:       doc,
		cfg:       cfg,
		logger:    cfg.Logger,
		tasks:     make(chan task),
		debouncer: newDebouncer(debounceConfig{Window: cfg.Debounce, MaxWait: cfg.MaxWait}),
		timers:    make(map[*time.Timer]struct{}),
		postSig:   make(chan struct{}, 1),
		stopped:   make(chan struct{}),
	}
}

// Run executes the loop until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	defer m.shutdown()

	initial := time.NewTimer(m.cfg.InitialDelay)
	defer initial.Stop()
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.logger.Info("monitor: started",
		"initial_delay", m.cfg.InitialDelay, "debounce", m.cfg.Debounce, "interval", m.cfg.Interval)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor: stopped")
			return nil

		case t := <-m.tasks:
			t.done <- t.fn(m.doc)
			m.drain()

		case <-m.postSig:
			for _, fn := range m.takePosted() {
				fn()
			}
			m.drain()

		case <-initial.C:
			m.pass(ctx, ReasonInitial)

		case <-m.debouncer.timerC():
			n := m.debouncer.fire()
			m.logger.Debug("monitor: debounce fired", "changes", n)
			m.pass(ctx, ReasonMutation)

		case <-ticker.C:
			m.pass(ctx, ReasonInterval)
		}
	}
}

func (m *Monitor) pass(ctx context.Context, reason string) {
	if m.cfg.Pass != nil {
		m.cfg.Pass(ctx, m.doc, reason)
	}
	m.drain()
}

// drain consumes pending mutation records and arms the debouncer for the
// relevant ones.
func (m *Monitor) drain() {
	recs := m.doc.TakeRecords()
	if len(recs) == 0 {
		return
	}
	if m.cfg.Observe != nil {
		m.cfg.Observe(m.doc, recs)
	}
	if m.cfg.Filter == nil {
		return
	}
	if n := m.cfg.Filter.Count(recs); n > 0 {
		m.logger.Debug("monitor: relevant changes", "records", len(recs), "relevant", n)
		m.debouncer.add(n)
	}
}

// Do runs fn on the loop and returns its error.
func (m *Monitor) Do(ctx context.Context, fn func(*dom.Document) error) error {
	t := task{fn: fn, done: make(chan error, 1)}
	select {
	case m.tasks <- t:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.stopped:
		return ErrStopped
	}
	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-m.stopped:
		return ErrStopped
	}
}

// Post queues fn to run on the loop. It never blocks.
func (m *Monitor) Post(fn func()) {
	m.mu.Lock()
	m.posted = append(m.posted, fn)
	m.mu.Unlock()
	select {
	case m.postSig <- struct{}{}:
	default:
	}
}

// After queues fn to run on the loop once d has elapsed.
func (m *Monitor) After(d time.Duration, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timers == nil {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		m.mu.Lock()
		delete(m.timers, t)
		m.mu.Unlock()
		m.Post(fn)
	})
	m.timers[t] = struct{}{}
}

func (m *Monitor) takePosted() []func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	fns := m.posted
	m.posted = nil
	return fns
}

// Done is closed when the loop has exited.
func (m *Monitor) Done() <-chan struct{} { return m.stopped }

func (m *Monitor) shutdown() {
	m.stopOnce.Do(func() {
		m.debouncer.stop()
		m.mu.Lock()
		for t := range m.timers {
			t.Stop()
		}
		m.timers = nil
		m.posted = nil
		m.mu.Unlock()
		close(m.stopped)
	})
}
