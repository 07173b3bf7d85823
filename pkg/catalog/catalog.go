// Package catalog describes the streams a run extracts: their schemas, key
// properties, replication method and the selection metadata that decides which
// streams and fields are emitted.
package catalog

import (
	"os"
	"strings"

	"github.com/ajitpratap0/bronto-tap/pkg/errors"
	"github.com/ajitpratap0/bronto-tap/pkg/json"
)

// Replication methods.
const (
	ReplicationIncremental = "INCREMENTAL"
	ReplicationFullTable   = "FULL_TABLE"
)

// Entry is one stream of a catalog.
type Entry struct {
	TapStreamID       string   `json:"tap_stream_id,omitempty"`
	Stream            string   `json:"stream"`
	KeyProperties     []string `json:"key_properties"`
	ReplicationMethod string   `json:"replication_method,omitempty"`
	Schema            *Schema  `json:"schema"`
	Metadata          Metadata `json:"metadata,omitempty"`
}

// NewEntry builds a discovery entry: the stream is available but unselected,
// and each property keeps the metadata its schema declares.
func NewEntry(stream string, keyProperties []string, replicationMethod string, schema *Schema) *Entry {
	return &Entry{
		TapStreamID:       stream,
		Stream:            stream,
		KeyProperties:     append([]string(nil), keyProperties...),
		ReplicationMethod: replicationMethod,
		Schema:            schema.Clone(),
		Metadata:          NewMetadata(InclusionAvailable, false),
	}
}

// ID returns tap_stream_id, falling back to the stream name.
func (e *Entry) ID() string {
	if e.TapStreamID != "" {
		return e.TapStreamID
	}
	return e.Stream
}

// IsSelected reports whether the stream is selected. Entry metadata wins;
// without it the schema's top-level metadata is consulted.
func (e *Entry) IsSelected() bool {
	if len(e.Metadata) > 0 {
		return e.Metadata.IsSelected()
	}
	if e.Schema != nil {
		return e.Schema.Metadata.IsSelected()
	}
	return false
}

// Replication returns the entry's replication method, or def when unset.
func (e *Entry) Replication(def string) string {
	if m := strings.ToUpper(strings.TrimSpace(e.ReplicationMethod)); m != "" {
		return m
	}
	return def
}

// SelectAll marks the stream and every available property selected.
func (e *Entry) SelectAll() {
	if e.Metadata == nil {
		e.Metadata = NewMetadata(InclusionAvailable, false)
	}
	e.Metadata.SetSelected(true)

	if e.Schema == nil {
		return
	}
	if e.Schema.Metadata != nil {
		e.Schema.Metadata.SetSelected(true)
	}
	for _, name := range e.Schema.Properties.Names() {
		prop, _ := e.Schema.Properties.Get(name)
		if prop == nil {
			continue
		}
		if prop.Metadata == nil {
			prop.Metadata = NewMetadata(InclusionAvailable, false)
		}
		if prop.Metadata.Inclusion() == InclusionAvailable {
			prop.Metadata.SetSelected(true)
		}
	}
}

// Catalog is the set of streams offered to or requested by a run.
type Catalog struct {
	Streams []*Entry `json:"streams"`
}

// Get returns the entry with the given stream id.
func (c *Catalog) Get(stream string) (*Entry, bool) {
	for _, e := range c.Streams {
		if e.ID() == stream || e.Stream == stream {
			return e, true
		}
	}
	return nil, false
}

// Load reads a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the command line
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read catalog file").
			WithDetail("path", path)
	}
	return Parse(data)
}

// Parse decodes a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to decode catalog")
	}
	for i, e := range c.Streams {
		if e == nil || e.Stream == "" {
			return nil, errors.Newf(errors.ErrorTypeConfig, "catalog stream %d has no stream name", i)
		}
	}
	return &c, nil
}
