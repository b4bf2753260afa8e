package notify

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTimer struct {
	d       time.Duration
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) after(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{d: d, fn: fn}
	c.timers = append(c.timers, t)
	return t
}

// fire runs a timer callback even if it was stopped, the way a timer that already
// fired but has not yet acquired the lock would.
func (c *fakeClock) fire(i int) {
	c.timers[i].fn()
}

func TestShowReplacesAndStaleTimerIsHarmless(t *testing.T) {
	clock := &fakeClock{}
	ch := NewChannel(WithAfterFunc(clock.after))

	ch.Show(KindSuccess, "first")
	second := ch.Show(KindError, "second")

	require.Len(t, clock.timers, 2)
	assert.True(t, clock.timers[0].stopped, "first timer cancelled on replace")
	assert.Equal(t, DefaultTTL, clock.timers[1].d)

	clock.fire(0)
	got, ok := ch.Current()
	require.True(t, ok)
	assert.Equal(t, second.ID, got.ID)
	assert.Equal(t, "second", got.Message)

	clock.fire(1)
	_, ok = ch.Current()
	assert.False(t, ok)
}

func TestDismissCancelsTimer(t *testing.T) {
	clock := &fakeClock{}
	ch := NewChannel(WithAfterFunc(clock.after), WithTTL(time.Second))

	first := ch.Success("saved")
	ch.Dismiss()
	assert.True(t, clock.timers[0].stopped)
	_, ok := ch.Current()
	assert.False(t, ok)

	next := ch.Success("again")
	clock.fire(0)
	got, ok := ch.Current()
	require.True(t, ok)
	assert.Equal(t, next.ID, got.ID)
	assert.NotEqual(t, first.ID, next.ID)
}

func TestDismissIDOnlyMatchesVisible(t *testing.T) {
	clock := &fakeClock{}
	ch := NewChannel(WithAfterFunc(clock.after))

	old := ch.Error("one")
	ch.Error("two")
	assert.False(t, ch.DismissID(old.ID))
	_, ok := ch.Current()
	assert.True(t, ok)
}

func TestCloseStopsTimerAndIgnoresShow(t *testing.T) {
	clock := &fakeClock{}
	ch := NewChannel(WithAfterFunc(clock.after))
	ch.Success("one")
	ch.Close()
	assert.True(t, clock.timers[0].stopped)

	ch.Success("late")
	_, ok := ch.Current()
	assert.False(t, ok)
	assert.Len(t, clock.timers, 1)
}

func TestRealTimerExpires(t *testing.T) {
	ch := NewChannel(WithTTL(20 * time.Millisecond))
	ch.Success("bye")
	assert.Eventually(t, func() bool {
		_, ok := ch.Current()
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestCleanStripsMarkupAndCaps(t *testing.T) {
	assert.Equal(t, "Only 2 left & hurry", Clean("<b>Only 2 left</b> &amp; <script>x</script>hurry"))
	assert.Equal(t, "Failed", Message("  <i></i> ", "Failed"))
	assert.Equal(t, "Added", Message("Added", "Added to cart"))

	long := Clean(strings.Repeat("a", 500))
	assert.Equal(t, maxMessageRunes, len([]rune(long)))
	assert.True(t, strings.HasSuffix(long, "…"))
}
