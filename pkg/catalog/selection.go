package catalog

import (
	"time"

	"github.com/ajitpratap0/bronto-tap/pkg/models"
)

// Selection is the ordered set of fields a stream emits.
type Selection struct {
	fields     []string
	index      map[string]struct{}
	timestamps map[string]struct{}
}

// ComputeSelection applies the selection predicate once to every property of
// schema, in declaration order.
func ComputeSelection(schema *Schema) *Selection {
	sel := &Selection{
		index:      make(map[string]struct{}),
		timestamps: make(map[string]struct{}),
	}
	if schema == nil {
		return sel
	}

	for _, name := range schema.Properties.Names() {
		prop, _ := schema.Properties.Get(name)
		if prop == nil || !prop.Metadata.IsSelected() {
			continue
		}
		sel.fields = append(sel.fields, name)
		sel.index[name] = struct{}{}
		if prop.IsDateTime() {
			sel.timestamps[name] = struct{}{}
		}
	}
	return sel
}

// Fields returns the selected field names.
func (s *Selection) Fields() []string {
	out := make([]string, len(s.fields))
	copy(out, s.fields)
	return out
}

// Contains reports whether name is selected.
func (s *Selection) Contains(name string) bool {
	_, ok := s.index[name]
	return ok
}

// ContainsAny reports whether at least one of names is selected.
func (s *Selection) ContainsAny(names ...string) bool {
	for _, n := range names {
		if s.Contains(n) {
			return true
		}
	}
	return false
}

// Len returns the number of selected fields.
func (s *Selection) Len() int {
	return len(s.fields)
}

// Project copies the selected fields present in raw into a new record, in
// selection order. Time values, and strings of date-time properties, are
// normalized to the canonical timestamp form.
func (s *Selection) Project(raw *models.Record) *models.Record {
	out := models.NewRecord()
	for _, name := range s.fields {
		v, ok := raw.Get(name)
		if !ok {
			continue
		}
		out.Set(name, s.normalize(name, v))
	}
	return out
}

func (s *Selection) normalize(name string, v interface{}) interface{} {
	switch v.(type) {
	case time.Time, *time.Time:
		return models.NormalizeTimestamp(v)
	case string:
		if _, ok := s.timestamps[name]; ok {
			return models.NormalizeTimestamp(v)
		}
	}
	return v
}
