// Package state holds the per-stream bookmarks that let a run resume where the
// previous one stopped, and the stores they are persisted to.
package state

import (
	"bytes"
	"os"
	"sort"
	"time"

	"github.com/ajitpratap0/bronto-tap/pkg/errors"
	"github.com/ajitpratap0/bronto-tap/pkg/json"
	"github.com/ajitpratap0/bronto-tap/pkg/models"
)

// Bookmarks maps a stream to its named cursor values. The value is immutable:
// Set returns an updated copy and never touches the receiver, so a snapshot
// handed to a writer or store cannot change underneath it.
type Bookmarks struct {
	tables map[string]map[string]interface{}
}

// New returns empty bookmarks.
func New() Bookmarks {
	return Bookmarks{}
}

// Get returns the value of field for table.
func (b Bookmarks) Get(table, field string) (interface{}, bool) {
	fields, ok := b.tables[table]
	if !ok {
		return nil, false
	}
	v, ok := fields[field]
	return v, ok
}

// GetTime returns the value of field for table parsed as a timestamp. The
// boolean is false when no value is stored.
func (b Bookmarks) GetTime(table, field string) (time.Time, bool, error) {
	v, ok := b.Get(table, field)
	if !ok || v == nil {
		return time.Time{}, false, nil
	}

	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true, nil
	case string:
		parsed, err := models.ParseTimestamp(t)
		if err != nil {
			return time.Time{}, false, errors.Wrap(err, errors.ErrorTypeData, "invalid bookmark").
				WithDetail("table", table).
				WithDetail("field", field)
		}
		return parsed, true, nil
	default:
		return time.Time{}, false, errors.Newf(errors.ErrorTypeData, "bookmark %s.%s is not a timestamp", table, field)
	}
}

// Set returns a copy of b with field of table set to value. Time values are
// stored in canonical string form.
func (b Bookmarks) Set(table, field string, value interface{}) Bookmarks {
	if t, ok := value.(time.Time); ok {
		value = models.FormatTimestamp(t)
	}

	tables := make(map[string]map[string]interface{}, len(b.tables)+1)
	for name, fields := range b.tables {
		tables[name] = fields
	}

	fields := make(map[string]interface{}, len(b.tables[table])+1)
	for k, v := range b.tables[table] {
		fields[k] = v
	}
	fields[field] = value
	tables[table] = fields

	return Bookmarks{tables: tables}
}

// Tables returns the names of tables with bookmarks, sorted.
func (b Bookmarks) Tables() []string {
	names := make([]string, 0, len(b.tables))
	for name := range b.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsEmpty reports whether no bookmark is stored.
func (b Bookmarks) IsEmpty() bool {
	return len(b.tables) == 0
}

type document struct {
	Bookmarks map[string]map[string]interface{} `json:"bookmarks"`
}

// MarshalJSON writes the state document {"bookmarks": {...}}.
func (b Bookmarks) MarshalJSON() ([]byte, error) {
	tables := b.tables
	if tables == nil {
		tables = map[string]map[string]interface{}{}
	}
	return json.Marshal(document{Bookmarks: tables})
}

// UnmarshalJSON reads a state document. A document without a "bookmarks" key
// is read as a flat {table: {field: value}} mapping.
func (b *Bookmarks) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	src := data
	if inner, ok := raw["bookmarks"]; ok {
		src = inner
	}

	var tables map[string]map[string]interface{}
	if len(bytes.TrimSpace(src)) > 0 {
		if err := json.Unmarshal(src, &tables); err != nil {
			return err
		}
	}
	*b = Bookmarks{tables: tables}
	return nil
}

// Parse decodes a state document. Empty input yields empty bookmarks.
func Parse(data []byte) (Bookmarks, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return New(), nil
	}
	var b Bookmarks
	if err := json.Unmarshal(data, &b); err != nil {
		return New(), errors.Wrap(err, errors.ErrorTypeConfig, "failed to decode state")
	}
	return b, nil
}

// Load reads a state file. A path of "" yields empty bookmarks.
func Load(path string) (Bookmarks, error) {
	if path == "" {
		return New(), nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the command line
	if err != nil {
		return New(), errors.Wrap(err, errors.ErrorTypeConfig, "failed to read state file").
			WithDetail("path", path)
	}
	return Parse(data)
}
