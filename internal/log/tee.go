package log

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Record is a flattened log record delivered to Tee subscribers.
type Record struct {
	Time    time.Time      `json:"timestamp"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// Tee is a slog.Handler that passes records to a primary handler and also
// hands a flattened copy to the current subscriber.
type Tee struct {
	primary slog.Handler
	sub     *subscriber
	attrs   []slog.Attr
	group   string
}

type subscriber struct {
	mu sync.RWMutex
	fn func(Record)
}

// NewTee wraps primary.
func NewTee(primary slog.Handler) *Tee {
	return &Tee{primary: primary, sub: &subscriber{}}
}

// Subscribe sets the record callback. It is shared with every handler
// derived through WithAttrs and WithGroup.
func (t *Tee) Subscribe(fn func(Record)) {
	t.sub.mu.Lock()
	t.sub.fn = fn
	t.sub.mu.Unlock()
}

func (t *Tee) Enabled(ctx context.Context, l slog.Level) bool {
	return t.primary.Enabled(ctx, l)
}

func (t *Tee) Handle(ctx context.Context, r slog.Record) error {
	err := t.primary.Handle(ctx, r)

	t.sub.mu.RLock()
	fn := t.sub.fn
	t.sub.mu.RUnlock()
	if fn == nil {
		return err
	}

	rec := Record{
		Time:    r.Time,
		Level:   LevelName(r.Level),
		Message: r.Message,
	}
	if len(t.attrs) > 0 || r.NumAttrs() > 0 {
		rec.Attrs = make(map[string]any, len(t.attrs)+r.NumAttrs())
		for _, a := range t.attrs {
			rec.Attrs[a.Key] = a.Value.Resolve().Any()
		}
		r.Attrs(func(a slog.Attr) bool {
			key := a.Key
			if t.group != "" {
				key = t.group + "." + key
			}
			rec.Attrs[key] = a.Value.Resolve().Any()
			return true
		})
	}
	fn(rec)
	return err
}

func (t *Tee) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(t.attrs)+len(attrs))
	merged = append(merged, t.attrs...)
	for _, a := range attrs {
		if t.group != "" {
			a.Key = t.group + "." + a.Key
		}
		merged = append(merged, a)
	}
	return &Tee{primary: t.primary.WithAttrs(attrs), sub: t.sub, attrs: merged, group: t.group}
}

func (t *Tee) WithGroup(name string) slog.Handler {
	if name == "" {
		return t
	}
	group := name
	if t.group != "" {
		group = t.group + "." + name
	}
	return &Tee{primary: t.primary.WithGroup(name), sub: t.sub, attrs: t.attrs, group: group}
}
