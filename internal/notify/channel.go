// Package notify implements the single-slot, auto-expiring status message shown on a page.
package notify

import (
	"html"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
)

// DefaultTTL is how long a notification stays visible.
const DefaultTTL = 3000 * time.Millisecond

const maxMessageRunes = 240

// Kind classifies a notification.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Notification is one visible status message.
type Notification struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Timer is the cancellable handle returned by an AfterFunc.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it through StdAfterFunc.
type AfterFunc func(d time.Duration, f func()) Timer

// StdAfterFunc wraps time.AfterFunc.
func StdAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Channel holds at most one notification. Each notification owns its timer; showing a
// new one stops the previous timer first, and a stale timer never clears a successor.
type Channel struct {
	mu      sync.Mutex
	ttl     time.Duration
	after   AfterFunc
	now     func() time.Time
	current *Notification
	timer   Timer
	closed  bool
}

// Option customises a Channel.
type Option func(*Channel)

// WithTTL overrides the auto-dismiss delay.
func WithTTL(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithAfterFunc injects the timer factory.
func WithAfterFunc(f AfterFunc) Option {
	return func(c *Channel) {
		if f != nil {
			c.after = f
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Channel) {
		if now != nil {
			c.now = now
		}
	}
}

// NewChannel returns an empty channel.
func NewChannel(opts ...Option) *Channel {
	c := &Channel{ttl: DefaultTTL, after: StdAfterFunc, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Success shows a success notification.
func (c *Channel) Success(message string) Notification { return c.Show(KindSuccess, message) }

// Error shows an error notification.
func (c *Channel) Error(message string) Notification { return c.Show(KindError, message) }

// Show replaces any visible notification. After Close it records nothing.
func (c *Channel) Show(kind Kind, message string) Notification {
	n := Notification{
		ID:      ulid.Make().String(),
		Kind:    kind,
		Message: Clean(message),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	n.CreatedAt = c.now().UTC()
	if c.closed {
		return n
	}
	c.stopLocked()
	c.current = &n
	id := n.ID
	c.timer = c.after(c.ttl, func() { c.expire(id) })
	return n
}

// Current returns the visible notification.
func (c *Channel) Current() (Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Notification{}, false
	}
	return *c.current, true
}

// Dismiss clears the visible notification and cancels its timer.
func (c *Channel) Dismiss() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.current = nil
}

// DismissID clears the notification only if it is still the visible one.
func (c *Channel) DismissID(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil || c.current.ID != id {
		return false
	}
	c.stopLocked()
	c.current = nil
	return true
}

// Close stops the pending timer and ignores later Show calls.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.current = nil
	c.closed = true
}

func (c *Channel) expire(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil || c.current.ID != id {
		return
	}
	c.current = nil
	c.timer = nil
}

func (c *Channel) stopLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

var strict = bluemonday.StrictPolicy()

// Clean reduces a possibly server-supplied message to capped plain text.
func Clean(message string) string {
	text := html.UnescapeString(strict.Sanitize(message))
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= maxMessageRunes {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:maxMessageRunes-1])) + "…"
}

// Message returns the cleaned server message, or fallback when it is empty.
func Message(server, fallback string) string {
	if text := Clean(server); text != "" {
		return text
	}
	return fallback
}
