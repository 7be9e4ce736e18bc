package resolve

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/popstash/internal/history"
)

type fakeAX struct {
	granted   bool
	requested int
	selected  string
	err       error
	queries   int
}

func (f *fakeAX) PermissionGranted() bool { return f.granted }
func (f *fakeAX) RequestPermission()      { f.requested++ }
func (f *fakeAX) SelectedText(context.Context) (string, error) {
	f.queries++
	return f.selected, f.err
}

// fakeDesk models the clipboard and the copy shortcut together: SendCopy
// replaces the clipboard with onCopy when set.
type fakeDesk struct {
	text    string
	onCopy  *string
	copies  int
	copyErr error
	reads   int
}

func (f *fakeDesk) ReadText() (string, error) { f.reads++; return f.text, nil }
func (f *fakeDesk) SendCopy(context.Context) error {
	f.copies++
	if f.onCopy != nil {
		f.text = *f.onCopy
	}
	return f.copyErr
}

type fakeHistory struct {
	item *history.Item
}

func (f fakeHistory) MostRecent() (history.Item, bool) {
	if f.item == nil {
		return history.Item{}, false
	}
	return *f.item, true
}

func strPtr(s string) *string { return &s }

type sleeps struct{ got []time.Duration }

func (s *sleeps) sleep(_ context.Context, d time.Duration) error {
	s.got = append(s.got, d)
	return nil
}

func newResolver(ax *fakeAX, desk *fakeDesk, h History, sl *sleeps) *Resolver {
	return New(ax, desk, desk, h, WithSleep(sl.sleep))
}

func TestAccessibilityWins(t *testing.T) {
	ax := &fakeAX{granted: true, selected: "hello"}
	desk := &fakeDesk{text: "foo", onCopy: strPtr("bar")}
	sl := &sleeps{}

	res, err := newResolver(ax, desk, fakeHistory{}, sl).Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Resolution{Text: "hello", Stage: StageAccessibility}, res)
	assert.Zero(t, desk.copies, "no synthetic copy after accessibility hit")
	assert.Empty(t, sl.got)
}

func TestCopyStage(t *testing.T) {
	for _, tc := range []struct {
		name      string
		ax        *fakeAX
		before    string
		onCopy    *string
		wantText  string
		wantStage Stage
	}{
		{"new selection", &fakeAX{granted: true}, "foo", strPtr("bar"), "bar", StageCopy},
		{"unchanged clipboard", &fakeAX{granted: true}, "foo", nil, "foo", StageClipboard},
		{"copy produced blank", &fakeAX{granted: true}, "foo", strPtr("  \n"), "foo", StageClipboard},
		{"whitespace selection", &fakeAX{granted: true, selected: " \t"}, "", strPtr("bar"), "bar", StageCopy},
		{"accessibility error", &fakeAX{granted: true, err: errors.New("no element")}, "", strPtr("bar"), "bar", StageCopy},
		{"copied text trimmed", &fakeAX{granted: true}, "", strPtr("selected line\n"), "selected line", StageCopy},
		{"clipboard text trimmed", &fakeAX{granted: true}, "  kept\n", nil, "kept", StageClipboard},
	} {
		t.Run(tc.name, func(t *testing.T) {
			desk := &fakeDesk{text: tc.before, onCopy: tc.onCopy}
			sl := &sleeps{}
			res, err := newResolver(tc.ax, desk, fakeHistory{}, sl).Resolve(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.wantText, res.Text)
			assert.Equal(t, tc.wantStage, res.Stage)
			assert.False(t, res.FromHistory)
			assert.Equal(t, 1, desk.copies)
			assert.Equal(t, []time.Duration{250 * time.Millisecond}, sl.got)
		})
	}
}

func TestKeystrokeFailureStillCompares(t *testing.T) {
	desk := &fakeDesk{text: "foo", copyErr: errors.New("no xdotool")}
	res, err := newResolver(&fakeAX{granted: true}, desk, fakeHistory{}, &sleeps{}).Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "foo", res.Text)
}

func TestHistoryFallback(t *testing.T) {
	text := history.Item{ID: "1", Content: history.Text("from before")}
	img := history.Item{ID: "2", Content: history.Image([]byte{1})}

	res, err := newResolver(&fakeAX{granted: true}, &fakeDesk{}, fakeHistory{&text}, &sleeps{}).Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Resolution{Text: "from before", Stage: StageHistory, FromHistory: true}, res)

	res, err = newResolver(&fakeAX{granted: true}, &fakeDesk{}, fakeHistory{&img}, &sleeps{}).Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Image content", res.Text)
	assert.True(t, res.FromHistory)
}

func TestAccessibilityTextTrimmed(t *testing.T) {
	ax := &fakeAX{granted: true, selected: "\thello \n"}
	res, err := newResolver(ax, &fakeDesk{}, fakeHistory{}, &sleeps{}).Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Text)
}

type maxItems int

func (m maxItems) MaxHistoryItems() int  { return int(m) }
func (m maxItems) UnpinMovesToTop() bool { return false }

func TestHistoryFallbackSkipsOlderPinned(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := history.New(maxItems(10), history.WithClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	}))
	old := store.Insert(history.Text("old pinned"), history.Source{})
	_, err := store.TogglePin(old)
	require.NoError(t, err)
	store.Insert(history.Text("newest"), history.Source{})

	res, err := newResolver(&fakeAX{granted: true}, &fakeDesk{}, store, &sleeps{}).Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Resolution{Text: "newest", Stage: StageHistory, FromHistory: true}, res)
}

func TestTerminalFallback(t *testing.T) {
	var stages []Stage
	r := New(&fakeAX{granted: true}, &fakeDesk{}, &fakeDesk{}, fakeHistory{},
		WithSleep((&sleeps{}).sleep),
		WithObserver(func(s Stage) { stages = append(stages, s) }))

	res, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Terminal)
	assert.Equal(t, TerminalMessage, res.Text)
	assert.Equal(t, "No text selected and clipboard is empty.\nTry selecting some text first.", res.Text)
	assert.Equal(t, []Stage{StageTerminal}, stages)
}

func TestPermissionDeniedAborts(t *testing.T) {
	ax := &fakeAX{granted: false, selected: "hello"}
	desk := &fakeDesk{text: "foo"}
	_, err := newResolver(ax, desk, fakeHistory{}, &sleeps{}).Resolve(context.Background())
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Equal(t, 1, ax.requested)
	assert.Zero(t, ax.queries)
	assert.Zero(t, desk.copies)
	assert.Zero(t, desk.reads)
}

func TestCancelledDuringCopyWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := New(&fakeAX{granted: true}, &fakeDesk{}, &fakeDesk{text: "x"}, fakeHistory{})
	_, err := r.Resolve(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRealSleepWaitsCopyDelay(t *testing.T) {
	start := time.Now()
	require.NoError(t, sleepCtx(context.Background(), CopyDelay))
	assert.GreaterOrEqual(t, time.Since(start), CopyDelay)
}
