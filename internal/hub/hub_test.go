package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/popstash/internal/history"
)

func capture(state string) Event {
	return Event{Kind: KindCapture, Capture: &CaptureChange{State: state}}
}

func TestPublishFiltersByKind(t *testing.T) {
	h := New()
	all := NewChanSubscriber("all", 4)
	caps := NewChanSubscriber("caps", 4, KindCapture)
	h.Register(all)
	h.Register(caps)
	require.Equal(t, 2, h.Subscribers())

	h.Publish(HistoryEvent(history.Change{Op: history.OpInsert, IDs: []string{"a"}, Len: 1}))
	h.Publish(capture("idle"))

	require.Len(t, all.C(), 2)
	require.Len(t, caps.C(), 1)

	e := <-all.C()
	assert.Equal(t, KindHistory, e.Kind)
	assert.Equal(t, "insert", e.History.Op)
	assert.False(t, e.Time.IsZero())

	e = <-caps.C()
	assert.Equal(t, "idle", e.Capture.State)
}

func TestRegisterReplaysLatestCapture(t *testing.T) {
	h := New()
	h.Publish(capture("capturing"))
	h.Publish(capture("awaiting_confirmation"))
	h.Publish(HistoryEvent(history.Change{Op: history.OpInsert}))

	late := NewChanSubscriber("late", 4)
	h.Register(late)
	require.Len(t, late.C(), 1)
	assert.Equal(t, "awaiting_confirmation", (<-late.C()).Capture.State)

	histOnly := NewChanSubscriber("hist", 4, KindHistory)
	h.Register(histOnly)
	assert.Empty(t, histOnly.C())
}

func TestUnregisterStopsDelivery(t *testing.T) {
	h := New()
	s := NewChanSubscriber("s", 1)
	h.Register(s)
	h.Unregister(s)
	h.Publish(capture("idle"))
	assert.Empty(t, s.C())
	assert.Zero(t, h.Subscribers())
}

func TestChanSubscriberDropsWhenFull(t *testing.T) {
	s := NewChanSubscriber("s", 1)
	s.Send(capture("a"))
	s.Send(capture("b"))
	require.Len(t, s.C(), 1)
	assert.Equal(t, "a", (<-s.C()).Capture.State)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", Preview("short", 10))
	assert.Equal(t, "héll…", Preview("héllo world", 4))
}

func TestRegisterReplaysPromptAfterCapture(t *testing.T) {
	h := New()
	h.Publish(capture("awaiting_confirmation"))
	h.Publish(Event{Kind: KindPrompt, Capture: &CaptureChange{State: "shown", PromptID: "p1", Text: "hi"}})

	s := NewChanSubscriber("ui", 4, KindPrompt, KindCapture)
	h.Register(s)
	require.Len(t, s.C(), 2)
	assert.Equal(t, KindCapture, (<-s.C()).Kind)
	p := <-s.C()
	assert.Equal(t, KindPrompt, p.Kind)
	assert.Equal(t, "p1", p.Capture.PromptID)
}
