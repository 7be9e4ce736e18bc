package history

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type settings struct {
	max   int
	boost bool
}

func (s *settings) MaxHistoryItems() int  { return s.max }
func (s *settings) UnpinMovesToTop() bool { return s.boost }

// fakeClock advances one second on every call so timestamps are distinct.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestStore(t *testing.T, cfg *settings, opts ...Option) *Store {
	t.Helper()
	n := 0
	base := []Option{
		WithClock(newFakeClock().Now),
		WithIDFunc(func() string { n++; return fmt.Sprintf("id-%d", n) }),
	}
	return New(cfg, append(base, opts...)...)
}

func previews(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Preview()
	}
	return out
}

func TestInsertDedupsByContent(t *testing.T) {
	s := newTestStore(t, &settings{max: 10})
	s.Insert(Text("a"), Source{Name: "Terminal"})
	s.Insert(Text("b"), Source{})
	first := s.Insert(Text("c"), Source{})
	require.Equal(t, 3, s.Len())

	again := s.Insert(Text("a"), Source{Name: "Editor"})
	assert.Equal(t, 3, s.Len(), "length unchanged after duplicate insert")
	assert.Equal(t, []string{"a", "c", "b"}, previews(s.Items()))
	assert.NotEqual(t, first, again)
	assert.Equal(t, again, s.LastAddedID())

	it, ok := s.Get(again)
	require.True(t, ok)
	assert.Equal(t, "Editor", it.Source.Name)
	assert.Equal(t, "Editor", it.OriginalSource.Name, "original source defaults to source")
}

func TestInsertDedupDistinguishesVariants(t *testing.T) {
	s := newTestStore(t, &settings{max: 10})
	s.Insert(Text("Image"), Source{})
	s.Insert(Image([]byte{1, 2, 3}), Source{})
	s.Insert(Image([]byte{1, 2, 3}), Source{})
	s.Insert(Image([]byte{1, 2, 4}), Source{})
	assert.Equal(t, 3, s.Len())
}

func TestPinnedPrecedeUnpinned(t *testing.T) {
	s := newTestStore(t, &settings{max: 20})
	var ids []string
	for i := range 8 {
		ids = append(ids, s.Insert(Text(fmt.Sprint(i)), Source{}))
	}
	for _, i := range []int{1, 6, 3} {
		pinned, err := s.TogglePin(ids[i])
		require.NoError(t, err)
		require.True(t, pinned)
	}
	s.Insert(Text("late"), Source{})

	items := s.Items()
	seenUnpinned := false
	for _, it := range items {
		if !it.IsPinned {
			seenUnpinned = true
			continue
		}
		assert.False(t, seenUnpinned, "pinned item %s after an unpinned one", it.ID)
	}
	assert.Equal(t, []string{"1", "6", "3", "late", "7", "5", "4", "2", "0"}, previews(items))
}

func TestPinOrderingStability(t *testing.T) {
	s := newTestStore(t, &settings{max: 10})
	a := s.Insert(Text("A"), Source{})
	b := s.Insert(Text("B"), Source{})
	s.Insert(Text("C"), Source{})

	_, err := s.TogglePin(a)
	require.NoError(t, err)
	_, err = s.TogglePin(b)
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "C"}, previews(s.Items()))
	it, _ := s.Get(a)
	assert.False(t, it.PinnedAt.IsZero())
	assert.True(t, it.UnpinnedAt.IsZero())
}

func TestPinnedWithoutTimestampFollowTimestamped(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newTestStore(t, &settings{max: 10})
	s.Seed([]Item{
		{ID: "legacy-old", Content: Text("legacy-old"), DateAdded: base, IsPinned: true},
		{ID: "legacy-new", Content: Text("legacy-new"), DateAdded: base.Add(time.Hour), IsPinned: true},
		{ID: "stamped", Content: Text("stamped"), DateAdded: base, IsPinned: true, PinnedAt: base.Add(2 * time.Hour)},
		{ID: "free", Content: Text("free"), DateAdded: base.Add(3 * time.Hour)},
	})
	assert.Equal(t, []string{"stamped", "legacy-new", "legacy-old", "free"}, previews(s.Items()))
}

func TestUnpinRecencyBoost(t *testing.T) {
	for _, tc := range []struct {
		name  string
		boost bool
		want  []string
	}{
		{"chronological", false, []string{"c", "b", "a"}},
		{"recency boost", true, []string{"a", "c", "b"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestStore(t, &settings{max: 10, boost: tc.boost})
			a := s.Insert(Text("a"), Source{})
			s.Insert(Text("b"), Source{})
			s.Insert(Text("c"), Source{})

			pinned, err := s.TogglePin(a)
			require.NoError(t, err)
			require.True(t, pinned)
			pinned, err = s.TogglePin(a)
			require.NoError(t, err)
			require.False(t, pinned)

			assert.Equal(t, tc.want, previews(s.Items()))
			it, _ := s.Get(a)
			assert.True(t, it.PinnedAt.IsZero())
			assert.False(t, it.UnpinnedAt.IsZero())
		})
	}
}

func TestTogglePinUnknown(t *testing.T) {
	s := newTestStore(t, &settings{max: 10})
	_, err := s.TogglePin("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPruneKeepsMostRecent(t *testing.T) {
	s := newTestStore(t, &settings{max: 2})
	s.Insert(Text("one"), Source{})
	s.Insert(Text("two"), Source{})
	s.Insert(Text("three"), Source{})
	assert.Equal(t, []string{"three", "two"}, previews(s.Items()))
}

func TestPruneIgnoresPinState(t *testing.T) {
	s := newTestStore(t, &settings{max: 2})
	a := s.Insert(Text("a"), Source{})
	b := s.Insert(Text("b"), Source{})
	_, _ = s.TogglePin(a)
	_, _ = s.TogglePin(b)
	c := s.Insert(Text("c"), Source{})

	assert.Equal(t, []string{"a", "b"}, previews(s.Items()))
	assert.Empty(t, s.LastAddedID(), "pruned item is no longer the last added")
	_, ok := s.Get(c)
	assert.False(t, ok)
}

func TestNonPositiveMaxUsesDefault(t *testing.T) {
	s := newTestStore(t, &settings{max: 0})
	for i := range DefaultMaxItems + 5 {
		s.Insert(Text(fmt.Sprint(i)), Source{})
	}
	assert.Equal(t, DefaultMaxItems, s.Len())
}

func TestReconfigureShrinks(t *testing.T) {
	cfg := &settings{max: 5}
	s := newTestStore(t, cfg)
	for i := range 5 {
		s.Insert(Text(fmt.Sprint(i)), Source{})
	}
	cfg.max = 3
	s.Reconfigure()
	assert.Equal(t, []string{"4", "3", "2"}, previews(s.Items()))
}

func TestQuery(t *testing.T) {
	s := newTestStore(t, &settings{max: 10})
	s.Insert(Text("shell"), Source{})
	s.Insert(Text("world"), Source{})
	s.Insert(Text("hello"), Source{})
	s.Insert(Image([]byte{0xff}), Source{})

	assert.Equal(t, []string{"hello", "shell"}, previews(s.Query("ell")))
	assert.Equal(t, []string{"hello", "shell"}, previews(s.Query("ELL")))
	assert.Equal(t, []string{"Image"}, previews(s.Query("imag")))
	assert.Len(t, s.Query(""), 4)
	assert.Empty(t, s.Query("zzz"))
}

func TestFinalizeEdit(t *testing.T) {
	editor := Source{Name: "PopStash", BundleID: "dev.klb.popstash"}
	front := Source{Name: "Safari", BundleID: "com.apple.Safari"}

	t.Run("carries original source", func(t *testing.T) {
		s := newTestStore(t, &settings{max: 10})
		id := s.Insert(Text("draft"), front)
		orig, _ := s.Get(id)

		edited := s.FinalizeEdit(&orig, "final", editor, Source{Name: "Other"})
		it, ok := s.Get(edited)
		require.True(t, ok)
		assert.Equal(t, "final", it.Content.Text())
		assert.Equal(t, editor, it.Source)
		assert.Equal(t, front, it.OriginalSource)
		assert.Equal(t, []string{"final", "draft"}, previews(s.Items()))
	})

	t.Run("unchanged text replaces optimistic insert", func(t *testing.T) {
		s := newTestStore(t, &settings{max: 10})
		id := s.Insert(Text("same"), front)
		orig, _ := s.Get(id)

		edited := s.FinalizeEdit(&orig, "same", editor, front)
		assert.Equal(t, 1, s.Len())
		assert.Equal(t, edited, s.LastAddedID())
		it, _ := s.Get(edited)
		assert.Equal(t, editor, it.Source)
		assert.Equal(t, front, it.OriginalSource)
	})

	t.Run("no prior item uses frontmost", func(t *testing.T) {
		s := newTestStore(t, &settings{max: 10})
		id := s.FinalizeEdit(nil, "fresh", editor, front)
		it, _ := s.Get(id)
		assert.Equal(t, front, it.OriginalSource)
	})
}

func TestDeleteAndClear(t *testing.T) {
	s := newTestStore(t, &settings{max: 10})
	a := s.Insert(Text("a"), Source{})
	b := s.Insert(Text("b"), Source{})
	c := s.Insert(Text("c"), Source{})

	require.NoError(t, s.Delete(b))
	assert.ErrorIs(t, s.Delete(b), ErrNotFound)
	assert.Equal(t, 1, s.DeleteMany([]string{a, "missing"}))
	assert.Equal(t, []string{"c"}, previews(s.Items()))

	require.NoError(t, s.Delete(c))
	assert.Empty(t, s.LastAddedID())

	s.Insert(Text("x"), Source{})
	s.Clear()
	assert.Zero(t, s.Len())
	_, ok := s.MostRecent()
	assert.False(t, ok)
}

func TestMostRecentIgnoresPinOrder(t *testing.T) {
	s := newTestStore(t, &settings{max: 10})
	old := s.Insert(Text("old pinned"), Source{})
	_, err := s.TogglePin(old)
	require.NoError(t, err)
	s.Insert(Text("newest"), Source{})

	require.Equal(t, []string{"old pinned", "newest"}, previews(s.Items()))
	it, ok := s.MostRecent()
	require.True(t, ok)
	assert.Equal(t, "newest", it.Preview())
}

type recordingPersister struct {
	mu    sync.Mutex
	saves [][]Item
	fail  bool
}

func (p *recordingPersister) Save(items []Item) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("disk full")
	}
	p.saves = append(p.saves, items)
	return nil
}

func TestWriteThroughAndChangeHook(t *testing.T) {
	p := &recordingPersister{}
	var changes []Change
	s := newTestStore(t, &settings{max: 2},
		WithPersister(p),
		WithChangeHook(func(c Change) { changes = append(changes, c) }))

	a := s.Insert(Text("a"), Source{})
	s.Insert(Text("b"), Source{})
	s.Insert(Text("c"), Source{})
	_, err := s.TogglePin("missing")
	require.Error(t, err)

	require.Len(t, p.saves, 3, "failed toggle does not save")
	assert.Equal(t, []string{"c", "b"}, previews(p.saves[2]))

	require.Len(t, changes, 3)
	assert.Equal(t, OpInsert, changes[2].Op)
	assert.Equal(t, []string{a}, changes[2].Pruned)
	assert.Equal(t, 2, changes[2].Len)
}

func TestSaveFailureKeepsMemoryState(t *testing.T) {
	p := &recordingPersister{fail: true}
	s := newTestStore(t, &settings{max: 10}, WithPersister(p))
	s.Insert(Text("kept"), Source{})
	assert.Equal(t, 1, s.Len())

	p.fail = false
	s.Insert(Text("next"), Source{})
	require.Len(t, p.saves, 1)
	assert.Equal(t, []string{"next", "kept"}, previews(p.saves[0]))
}

func TestFailedSaveStillSupersedesOlderSnapshot(t *testing.T) {
	p := &recordingPersister{fail: true}
	s := newTestStore(t, &settings{max: 10}, WithPersister(p))
	older := []Item{{ID: "1", Content: Text("older")}}
	newer := []Item{{ID: "2", Content: Text("newer")}, older[0]}

	s.persist(2, newer)
	p.fail = false
	s.persist(1, older)
	assert.Empty(t, p.saves, "an older snapshot never follows a newer attempt")

	s.persist(3, newer)
	require.Len(t, p.saves, 1)
	assert.Equal(t, []string{"newer", "older"}, previews(p.saves[0]))
}

func TestSeedDoesNotPersist(t *testing.T) {
	p := &recordingPersister{}
	s := newTestStore(t, &settings{max: 10}, WithPersister(p))
	now := time.Now()
	s.Seed([]Item{
		{ID: "1", Content: Text("x"), DateAdded: now},
		{ID: "1", Content: Text("y"), DateAdded: now},
		{ID: "2", Content: Text("x"), DateAdded: now},
	})
	assert.Equal(t, 1, s.Len())
	assert.Empty(t, p.saves)
}

func TestConcurrentInsertsHoldInvariants(t *testing.T) {
	s := New(&settings{max: 50})
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 40 {
				id := s.Insert(Text(fmt.Sprintf("%d", i%20)), Source{})
				if i%7 == g%7 {
					_, _ = s.TogglePin(id)
				}
			}
		}()
	}
	wg.Wait()

	items := s.Items()
	assert.LessOrEqual(t, len(items), 50)
	seen := map[string]bool{}
	unpinned := false
	for _, it := range items {
		assert.False(t, seen[it.Content.Text()], "duplicate content %q", it.Content.Text())
		seen[it.Content.Text()] = true
		if !it.IsPinned {
			unpinned = true
		} else {
			assert.False(t, unpinned)
		}
	}
}
