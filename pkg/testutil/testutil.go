// Package testutil provides fakes shared by the tap's tests.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/bronto-tap/pkg/catalog"
	"github.com/ajitpratap0/bronto-tap/pkg/models"
	"github.com/ajitpratap0/bronto-tap/pkg/state"
)

// TestLogger creates a test logger that writes to the test output.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// Message is one message captured by MemorySink.
type Message struct {
	Type      string
	Stream    string
	Record    *models.Record
	Bookmarks state.Bookmarks
}

// MemorySink records the message stream in memory.
type MemorySink struct {
	mu       sync.Mutex
	Messages []Message
}

// WriteSchema implements core.Sink.
func (s *MemorySink) WriteSchema(stream string, _ *catalog.Schema, _, _ []string) error {
	s.append(Message{Type: "SCHEMA", Stream: stream})
	return nil
}

// WriteRecord implements core.Sink.
func (s *MemorySink) WriteRecord(stream string, rec *models.Record) error {
	s.append(Message{Type: "RECORD", Stream: stream, Record: rec})
	return nil
}

// WriteState implements core.Sink.
func (s *MemorySink) WriteState(b state.Bookmarks) error {
	s.append(Message{Type: "STATE", Bookmarks: b})
	return nil
}

func (s *MemorySink) append(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = append(s.Messages, m)
}

// Types returns the message types in order, e.g. SCHEMA:contact, RECORD:contact, STATE.
func (s *MemorySink) Types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.Messages))
	for i, m := range s.Messages {
		if m.Stream != "" {
			out[i] = m.Type + ":" + m.Stream
		} else {
			out[i] = m.Type
		}
	}
	return out
}

// Records returns the records written for stream.
func (s *MemorySink) Records(stream string) []*models.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Record
	for _, m := range s.Messages {
		if m.Type == "RECORD" && m.Stream == stream {
			out = append(out, m.Record)
		}
	}
	return out
}

// LastState returns the last STATE written, and false when there was none.
func (s *MemorySink) LastState() (state.Bookmarks, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Type == "STATE" {
			return s.Messages[i].Bookmarks, true
		}
	}
	return state.Bookmarks{}, false
}

// MemoryStore is a state.Store kept in memory.
type MemoryStore struct {
	mu      sync.Mutex
	Current state.Bookmarks
	Saves   int
	Closed  bool
	SaveErr error
}

// Load implements state.Store.
func (s *MemoryStore) Load(context.Context) (state.Bookmarks, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Current, nil
}

// Save implements state.Store.
func (s *MemoryStore) Save(_ context.Context, b state.Bookmarks) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.Current = b
	s.Saves++
	return nil
}

// Close implements state.Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}
