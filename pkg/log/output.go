package log

import (
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// ConsoleOutput writes formatted entries to stderr.
type ConsoleOutput struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleOutput creates a ConsoleOutput writing to stderr.
func NewConsoleOutput() *ConsoleOutput {
	return &ConsoleOutput{w: os.Stderr}
}

// NewWriterOutput creates an Output writing to an arbitrary writer.
// Used by tests to capture log lines.
func NewWriterOutput(w io.Writer) *ConsoleOutput {
	return &ConsoleOutput{w: w}
}

// Write writes the formatted entry.
func (o *ConsoleOutput) Write(_ *Entry, formatted []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, err := o.w.Write(formatted)
	return err
}

// Close is a no-op for console output.
func (o *ConsoleOutput) Close() error { return nil }

// RedirectStdLog routes the standard library logger (used by Pebble) through
// the given Logger at info level.
func RedirectStdLog(logger Logger) {
	log.SetFlags(0)
	log.SetOutput(stdlogAdapter{logger: logger})
}

type stdlogAdapter struct {
	logger Logger
}

func (a stdlogAdapter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	if msg != "" {
		a.logger.Info(msg, Str("source", "stdlog"))
	}
	return len(p), nil
}
