// Package streamio handles container output: concurrency-safe sink writers
// and demultiplexing of the engine's interleaved stdout/stderr stream.
package streamio

import (
	"io"
	"sync"
)

// StreamWriter wraps an output sink so that the log drain goroutine and the
// invocation response path can write to it concurrently. Writes are
// serialized; interleaving between writers is acceptable, torn writes are
// not. A nil StreamWriter discards everything.
type StreamWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewStreamWriter wraps w. Returns nil for a nil writer so that absent
// sinks can be passed through untouched.
func NewStreamWriter(w io.Writer) *StreamWriter {
	if w == nil {
		return nil
	}
	return &StreamWriter{w: w}
}

// WriteBytes writes raw bytes to the sink.
func (s *StreamWriter) WriteBytes(p []byte) error {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.w.Write(p)
	return err
}

// WriteString writes decoded text to the sink.
func (s *StreamWriter) WriteString(str string) error {
	return s.WriteBytes([]byte(str))
}
