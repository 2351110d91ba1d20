// Package notify delivers transient user-facing messages raised by the stores.
package notify

import (
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// Notifier shows a transient message to the user.
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// Nop drops every message.
type Nop struct{}

func (Nop) Success(string) {}
func (Nop) Error(string)   {}

// Writer prints messages line by line, e.g. to stderr.
type Writer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewWriter returns a Writer notifier.
func NewWriter(out io.Writer) *Writer { return &Writer{out: out} }

func (w *Writer) Success(msg string) { w.write("ok", msg) }
func (w *Writer) Error(msg string)   { w.write("error", msg) }

func (w *Writer) write(level, msg string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.out, "[%s] %s\n", level, msg)
}

// Zap forwards messages to a logger; used when there is no terminal to show them on.
type Zap struct{ Log *zap.Logger }

func (z Zap) Success(msg string) { z.Log.Info("notify", zap.String("msg", msg)) }
func (z Zap) Error(msg string)   { z.Log.Warn("notify", zap.String("msg", msg)) }

// Message is one recorded notification.
type Message struct {
	Level string
	Text  string
}

// Recorder keeps every message; safe for concurrent use.
type Recorder struct {
	mu   sync.Mutex
	msgs []Message
}

func (r *Recorder) Success(msg string) { r.add("success", msg) }
func (r *Recorder) Error(msg string)   { r.add("error", msg) }

func (r *Recorder) add(level, msg string) {
	r.mu.Lock()
	r.msgs = append(r.msgs, Message{Level: level, Text: msg})
	r.mu.Unlock()
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.msgs...)
}

// Errors returns the text of recorded error messages.
func (r *Recorder) Errors() []string { return r.texts("error") }

// Successes returns the text of recorded success messages.
func (r *Recorder) Successes() []string { return r.texts("success") }

func (r *Recorder) texts(level string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.msgs {
		if m.Level == level {
			out = append(out, m.Text)
		}
	}
	return out
}

// Reset drops recorded messages.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.msgs = nil
	r.mu.Unlock()
}
