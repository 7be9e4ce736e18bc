// Package monitor watches the system clipboard for external changes.
//
// The monitor compares the backend's change count on every tick and reads
// the payload only when the count moved. Writes the daemon itself makes are
// announced with SuppressNext so they are not reported back as captures.
package monitor

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.klb.dev/popstash/internal/history"
)

// DefaultInterval is the default poll period.
const DefaultInterval = 500 * time.Millisecond

// Source is the clipboard as seen by the monitor.
type Source interface {
	ChangeCount() int64
	ReadText() (string, error)
	ReadImage() ([]byte, error)
}

// Ticker abstracts time.Ticker so tests can drive polls by hand.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewTicker returns a Ticker backed by time.Ticker.
func NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		d = DefaultInterval
	}
	return realTicker{time.NewTicker(d)}
}

// Capture is one detected external clipboard change.
type Capture struct {
	Content     history.Content
	ChangeCount int64
	At          time.Time
}

// Monitor polls a Source. Poll and SuppressNext are safe for concurrent use.
type Monitor struct {
	src Source
	out chan Capture

	mu       sync.Mutex
	last     int64
	suppress bool
	holds    int
}

// New returns a Monitor that treats the current clipboard state as already
// seen. buf is the capacity of the Captures channel.
func New(src Source, buf int) *Monitor {
	return &Monitor{
		src:  src,
		out:  make(chan Capture, buf),
		last: src.ChangeCount(),
	}
}

// Captures delivers changes detected by Run.
func (m *Monitor) Captures() <-chan Capture { return m.out }

// SuppressNext swallows the next detected change. Call it just before a
// programmatic clipboard write.
func (m *Monitor) SuppressNext() {
	m.mu.Lock()
	m.suppress = true
	m.mu.Unlock()
}

// Hold stops reporting changes until the matching Release. Captures use it
// around their own copy keystroke.
func (m *Monitor) Hold() {
	m.mu.Lock()
	m.holds++
	m.mu.Unlock()
}

// Release ends a Hold. When the last hold ends, every change made while
// held is marked as seen and never reported.
func (m *Monitor) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.holds == 0 {
		return
	}
	m.holds--
	if m.holds > 0 {
		return
	}
	if cc := m.src.ChangeCount(); cc != m.last {
		slog.Debug("clipboard changes absorbed by hold", "from", m.last, "to", cc)
		m.last = cc
	}
}

// Poll checks the change count once. It returns a capture when the count
// moved, the change was not suppressed and the clipboard holds an image or
// non-blank text. Images take precedence; text is trimmed. Nothing is
// reported while a Hold is active.
func (m *Monitor) Poll() (Capture, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.holds > 0 {
		return Capture{}, false
	}

	cc := m.src.ChangeCount()
	if cc == m.last {
		return Capture{}, false
	}
	m.last = cc

	if m.suppress {
		m.suppress = false
		slog.Debug("clipboard change suppressed", "change_count", cc)
		return Capture{}, false
	}

	now := time.Now()
	if img, err := m.src.ReadImage(); err != nil {
		slog.Warn("clipboard image read failed", "err", err)
	} else if len(img) > 0 {
		return Capture{Content: history.Image(img), ChangeCount: cc, At: now}, true
	}

	text, err := m.src.ReadText()
	if err != nil {
		slog.Warn("clipboard text read failed", "err", err)
		return Capture{}, false
	}
	if text = strings.TrimSpace(text); text == "" {
		return Capture{}, false
	}
	return Capture{Content: history.Text(text), ChangeCount: cc, At: now}, true
}

// Run polls on every tick until ctx is done. The ticker is stopped on return.
// Captures are delivered without blocking; if the consumer is behind the
// capture is dropped.
func (m *Monitor) Run(ctx context.Context, t Ticker) error {
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C():
			c, ok := m.Poll()
			if !ok {
				continue
			}
			select {
			case m.out <- c:
			default:
				slog.Warn("capture channel full, dropping", "change_count", c.ChangeCount)
			}
		}
	}
}
