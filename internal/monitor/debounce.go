package monitor

import "time"

// debounceConfig controls the batching behaviour.
type debounceConfig struct {
	// Window is the quiet time after the last relevant change. Default: 300ms.
	Window time.Duration
	// MaxWait bounds the delay since the first change of a burst. Default: 2s.
	MaxWait time.Duration
}

func (dc *debounceConfig) defaults() {
	if dc.Window <= 0 {
		dc.Window = 300 * time.Millisecond
	}
	if dc.MaxWait < dc.Window {
		dc.MaxWait = dc.Window
	}
}

// debouncer coalesces bursts of relevant changes into one pass. The timer
// restarts on every change but never fires later than MaxWait after the
// first one. It is owned by the monitor loop.
type debouncer struct {
	cfg     debounceConfig
	pending int
	first   time.Time
	timer   *time.Timer
	timerCh <-chan time.Time
	now     func() time.Time
}

func newDebouncer(cfg debounceConfig) *debouncer {
	cfg.defaults()
	return &debouncer{cfg: cfg, now: time.Now}
}

// add records n relevant changes and (re)arms the timer.
func (d *debouncer) add(n int) {
	if n <= 0 {
		return
	}
	now := d.now()
	if d.pending == 0 {
		d.first = now
	}
	d.pending += n

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.NewTimer(d.delay(now))
	d.timerCh = d.timer.C
}

// delay is the time left before the timer must fire.
func (d *debouncer) delay(now time.Time) time.Duration {
	left := d.cfg.MaxWait - now.Sub(d.first)
	if left < 0 {
		return 0
	}
	if left < d.cfg.Window {
		return left
	}
	return d.cfg.Window
}

// timerC returns the channel that fires when the window expires.
func (d *debouncer) timerC() <-chan time.Time {
	return d.timerCh
}

// fire resets the debouncer and returns the number of coalesced changes.
func (d *debouncer) fire() int {
	n := d.pending
	d.pending = 0
	d.stop()
	return n
}

func (d *debouncer) stop() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
		d.timerCh = nil
	}
}
