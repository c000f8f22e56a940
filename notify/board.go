// Package notify holds the notice currently shown to a user. A notice is
// dismissed explicitly or expires after a fixed time.
package notify

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultTTL is how long a notice stays visible.
const DefaultTTL = 5 * time.Second

// Level is the severity of a notice.
type Level string

const (
	Error   Level = "error"
	Warning Level = "warning"
	Info    Level = "info"
)

type Notice struct {
	Message   string    `json:"message"`
	Level     Level     `json:"type"`
	PostedAt  time.Time `json:"postedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Board holds at most one notice. Posting replaces the current one.
type Board struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	notice *Notice
}

type Option func(*Board)

func WithTTL(d time.Duration) Option {
	return func(b *Board) { b.ttl = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Board) { b.now = now }
}

func NewBoard(opts ...Option) *Board {
	b := &Board{ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Post shows message at level. An empty message falls back to a generic one.
func (b *Board) Post(level Level, message string) Notice {
	if message == "" {
		message = "An unexpected error occurred"
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	n := Notice{Message: message, Level: level, PostedAt: now, ExpiresAt: now.Add(b.ttl)}
	b.notice = &n
	return n
}

// Fail posts err as an error notice, using message in place of err's text
// when message is set.
func (b *Board) Fail(err error, message string) Notice {
	logrus.WithError(err).Error(message)
	if message == "" && err != nil {
		message = err.Error()
	}
	return b.Post(Error, message)
}

// Current returns the visible notice, if any.
func (b *Board) Current() (Notice, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.notice == nil {
		return Notice{}, false
	}
	if !b.now().Before(b.notice.ExpiresAt) {
		b.notice = nil
		return Notice{}, false
	}
	return *b.notice, true
}

// Clear dismisses the visible notice.
func (b *Board) Clear() {
	b.mu.Lock()
	b.notice = nil
	b.mu.Unlock()
}
