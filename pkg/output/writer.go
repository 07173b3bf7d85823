// Package output writes the tap's message stream: one JSON object per line,
// of type SCHEMA, RECORD or STATE.
package output

import (
	"bufio"
	"io"
	"os"
	"sync"

	"github.com/ajitpratap0/bronto-tap/pkg/catalog"
	"github.com/ajitpratap0/bronto-tap/pkg/compression"
	"github.com/ajitpratap0/bronto-tap/pkg/config"
	"github.com/ajitpratap0/bronto-tap/pkg/errors"
	"github.com/ajitpratap0/bronto-tap/pkg/json"
	"github.com/ajitpratap0/bronto-tap/pkg/models"
	"github.com/ajitpratap0/bronto-tap/pkg/state"
)

// Message types.
const (
	TypeSchema = "SCHEMA"
	TypeRecord = "RECORD"
	TypeState  = "STATE"
)

type schemaMessage struct {
	Type               string          `json:"type"`
	Stream             string          `json:"stream"`
	Schema             *catalog.Schema `json:"schema"`
	KeyProperties      []string        `json:"key_properties"`
	BookmarkProperties []string        `json:"bookmark_properties,omitempty"`
}

type recordMessage struct {
	Type   string         `json:"type"`
	Stream string         `json:"stream"`
	Record *models.Record `json:"record"`
}

type stateMessage struct {
	Type  string          `json:"type"`
	Value state.Bookmarks `json:"value"`
}

// Writer serializes messages to an underlying stream. Records are buffered;
// every STATE message is flushed so a consumer never sees a bookmark before
// the records it covers.
type Writer struct {
	mu      sync.Mutex
	buf     *bufio.Writer
	enc     *json.Encoder
	closers []io.Closer
}

// NewWriter writes messages to w.
func NewWriter(w io.Writer) *Writer {
	buf := bufio.NewWriterSize(w, 64*1024)
	return &Writer{buf: buf, enc: json.NewEncoder(buf)}
}

// Open returns a writer for the configured destination: standard output when
// no path is set, otherwise a file compressed with the configured algorithm.
func Open(cfg config.OutputConfig) (*Writer, error) {
	if cfg.Path == "" {
		return NewWriter(os.Stdout), nil
	}

	alg, err := compression.ParseAlgorithm(cfg.Compression)
	if err != nil {
		return nil, err
	}

	f, err := os.Create(cfg.Path) //nolint:gosec // G304: path comes from the config file
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create output file").
			WithDetail("path", cfg.Path)
	}
	cw, err := compression.NewWriter(f, &compression.Config{Algorithm: alg, Level: compression.Default})
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	w := NewWriter(cw)
	// The compressor must flush its trailer before the file is closed.
	w.closers = []io.Closer{cw, f}
	return w, nil
}

// WriteSchema writes a SCHEMA message.
func (w *Writer) WriteSchema(stream string, schema *catalog.Schema, keyProperties, bookmarkProperties []string) error {
	if keyProperties == nil {
		keyProperties = []string{}
	}
	return w.write(schemaMessage{
		Type:               TypeSchema,
		Stream:             stream,
		Schema:             schema,
		KeyProperties:      keyProperties,
		BookmarkProperties: bookmarkProperties,
	}, false)
}

// WriteRecord writes a RECORD message.
func (w *Writer) WriteRecord(stream string, record *models.Record) error {
	return w.write(recordMessage{Type: TypeRecord, Stream: stream, Record: record}, false)
}

// WriteState writes a STATE message and flushes.
func (w *Writer) WriteState(b state.Bookmarks) error {
	return w.write(stateMessage{Type: TypeState, Value: b}, true)
}

func (w *Writer) write(msg interface{}, flush bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Encode appends the newline.
	if err := w.enc.Encode(msg); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write message")
	}
	if flush {
		return w.flush()
	}
	return nil
}

// Flush writes buffered messages through.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flush()
}

func (w *Writer) flush() error {
	if err := w.buf.Flush(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to flush output")
	}
	return nil
}

// Close flushes and releases the destination. Standard output is left open.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	err := w.flush()
	for _, c := range w.closers {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, errors.ErrorTypeFile, "failed to close output")
		}
	}
	w.closers = nil
	return err
}
