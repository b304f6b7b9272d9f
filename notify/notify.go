// Package notify shows short-lived success and error messages after
// mutations and keeps a bounded history of them.
package notify

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultHistorySize is how many notifications are kept when no size is configured.
const DefaultHistorySize = 20

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

func (l Level) symbol() string {
	if l == LevelError {
		return "✖"
	}
	return "✔"
}

type Notification struct {
	ID      string    `json:"id"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

func (n Notification) String() string {
	return n.Level.symbol() + " " + n.Message
}

// History stores notifications, newest first.
type History interface {
	Append(n Notification) error
	Recent(limit int) ([]Notification, error)
}

// Center prints notifications and records them in a History.
type Center struct {
	mu      sync.Mutex
	out     io.Writer
	history History
	now     func() time.Time
	logger  *slog.Logger
}

type Option func(*Center)

func WithClock(now func() time.Time) Option {
	return func(c *Center) { c.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Center) { c.logger = l }
}

// NewCenter writes to out (nil discards) and records into history (nil keeps
// an in-memory ring of DefaultHistorySize).
func NewCenter(out io.Writer, history History, opts ...Option) *Center {
	if out == nil {
		out = io.Discard
	}
	if history == nil {
		history = NewMemoryHistory(DefaultHistorySize)
	}
	c := &Center{out: out, history: history, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Center) Success(msg string) Notification { return c.emit(LevelSuccess, msg) }

func (c *Center) Error(msg string) Notification { return c.emit(LevelError, msg) }

// Recent returns up to limit notifications, newest first.
func (c *Center) Recent(limit int) ([]Notification, error) {
	return c.history.Recent(limit)
}

func (c *Center) emit(level Level, msg string) Notification {
	n := Notification{ID: uuid.NewString(), Level: level, Message: msg, At: c.now()}

	c.mu.Lock()
	fmt.Fprintln(c.out, n.String())
	c.mu.Unlock()

	if err := c.history.Append(n); err != nil {
		c.logger.Warn("notification history append failed", slog.Any("error", err))
	}
	return n
}

// MemoryHistory is a fixed-size ring kept in process memory.
type MemoryHistory struct {
	mu    sync.Mutex
	max   int
	items []Notification // oldest first
}

func NewMemoryHistory(max int) *MemoryHistory {
	if max <= 0 {
		max = DefaultHistorySize
	}
	return &MemoryHistory{max: max}
}

func (h *MemoryHistory) Append(n Notification) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = append(h.items, n)
	if over := len(h.items) - h.max; over > 0 {
		h.items = append(h.items[:0:0], h.items[over:]...)
	}
	return nil
}

func (h *MemoryHistory) Recent(limit int) ([]Notification, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if limit <= 0 || limit > len(h.items) {
		limit = len(h.items)
	}
	out := make([]Notification, 0, limit)
	for i := len(h.items) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, h.items[i])
	}
	return out, nil
}
