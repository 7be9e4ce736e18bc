// Package hub implements the one-way event broker.
// Producers (the history store and the capture orchestrator) publish events;
// subscribers (the IPC watch stream, metrics, the log) receive them through a
// non-blocking Send. Producers never hold references to subscribers.
package hub

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.klb.dev/popstash/internal/history"
)

// Kind classifies an event.
type Kind string

const (
	KindHistory Kind = "history"
	KindCapture Kind = "capture"
	KindPrompt  Kind = "prompt"
)

// HistoryChange reports a committed history mutation.
type HistoryChange struct {
	Op          string   `json:"op"`
	IDs         []string `json:"ids,omitempty"`
	Pruned      []string `json:"pruned,omitempty"`
	Len         int      `json:"len"`
	LastAddedID string   `json:"lastAddedId,omitempty"`
}

// CaptureChange reports a capture state transition (KindCapture) or a
// prompt being shown or dismissed (KindPrompt).
type CaptureChange struct {
	State       string `json:"state"`
	PromptID    string `json:"promptId,omitempty"`
	Trigger     string `json:"trigger,omitempty"`
	Stage       string `json:"stage,omitempty"`
	Text        string `json:"text,omitempty"`
	ItemID      string `json:"itemId,omitempty"`
	ReadOnly    bool   `json:"readOnly,omitempty"`
	FromHistory bool   `json:"fromHistory,omitempty"`
	Err         string `json:"err,omitempty"`
}

// Event is delivered to subscribers. History is set for KindHistory,
// Capture for the other kinds.
type Event struct {
	Kind    Kind           `json:"kind"`
	Time    time.Time      `json:"time"`
	History *HistoryChange `json:"history,omitempty"`
	Capture *CaptureChange `json:"capture,omitempty"`
}

// HistoryEvent converts a store change into an Event.
func HistoryEvent(c history.Change) Event {
	return Event{
		Kind: KindHistory,
		History: &HistoryChange{
			Op:          string(c.Op),
			IDs:         c.IDs,
			Pruned:      c.Pruned,
			Len:         c.Len,
			LastAddedID: c.LastAddedID,
		},
	}
}

// Subscriber is anything that can receive events from the hub.
type Subscriber interface {
	ID() string
	// Kinds lists the event kinds wanted; empty means all.
	Kinds() []Kind
	// Send delivers an event. Must be non-blocking.
	Send(Event)
}

// Hub routes events to all registered subscribers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]Subscriber
	latest map[Kind]Event
	now    func() time.Time
}

// New returns an empty Hub.
func New() *Hub {
	return &Hub{
		subs:   make(map[string]Subscriber),
		latest: make(map[Kind]Event),
		now:    time.Now,
	}
}

// Register adds a subscriber and immediately delivers the latest capture
// and prompt events, so late subscribers see a pending prompt.
func (h *Hub) Register(s Subscriber) {
	h.mu.Lock()
	h.subs[s.ID()] = s
	var replay []Event
	for _, k := range []Kind{KindCapture, KindPrompt} {
		if e, ok := h.latest[k]; ok && wants(s, k) {
			replay = append(replay, e)
		}
	}
	total := len(h.subs)
	h.mu.Unlock()

	slog.Debug("subscriber registered", "subscriber", s.ID(), "total", total)

	slices.SortFunc(replay, func(a, b Event) int { return a.Time.Compare(b.Time) })
	for _, e := range replay {
		s.Send(e)
	}
}

// Unregister removes a subscriber from the hub.
func (h *Hub) Unregister(s Subscriber) {
	h.mu.Lock()
	delete(h.subs, s.ID())
	total := len(h.subs)
	h.mu.Unlock()

	slog.Debug("subscriber unregistered", "subscriber", s.ID(), "total", total)
}

// Publish records e as the latest of its kind and fans it out.
func (h *Hub) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = h.now()
	}

	h.mu.Lock()
	h.latest[e.Kind] = e
	targets := make([]Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		if wants(s, e.Kind) {
			targets = append(targets, s)
		}
	}
	h.mu.Unlock()

	for _, s := range targets {
		s.Send(e)
	}
}

// Latest returns the most recent event of kind.
func (h *Hub) Latest(kind Kind) (Event, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.latest[kind]
	return e, ok
}

// Subscribers returns the number of registered subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func wants(s Subscriber, k Kind) bool {
	kinds := s.Kinds()
	return len(kinds) == 0 || slices.Contains(kinds, k)
}

// ChanSubscriber buffers events on a channel. When the buffer is full new
// events are dropped.
type ChanSubscriber struct {
	id    string
	kinds []Kind
	ch    chan Event
}

// NewChanSubscriber returns a subscriber with a buffer of size buf.
func NewChanSubscriber(id string, buf int, kinds ...Kind) *ChanSubscriber {
	return &ChanSubscriber{id: id, kinds: kinds, ch: make(chan Event, buf)}
}

func (c *ChanSubscriber) ID() string      { return c.id }
func (c *ChanSubscriber) Kinds() []Kind   { return c.kinds }
func (c *ChanSubscriber) C() <-chan Event { return c.ch }

func (c *ChanSubscriber) Send(e Event) {
	select {
	case c.ch <- e:
	default:
		slog.Warn("subscriber channel full, dropping", "subscriber", c.id, "kind", e.Kind)
	}
}
