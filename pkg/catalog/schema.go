package catalog

import (
	"bytes"
	"fmt"

	"github.com/ajitpratap0/bronto-tap/pkg/json"
	"github.com/ajitpratap0/bronto-tap/pkg/models"
)

// FormatDateTime marks string properties that carry timestamps.
const FormatDateTime = "date-time"

// Schema is the subset of JSON Schema used to describe stream records. Each
// property carries its selection metadata inline.
type Schema struct {
	Type                 TypeList    `json:"type,omitempty"`
	Format               string      `json:"format,omitempty"`
	Description          string      `json:"description,omitempty"`
	Properties           *Properties `json:"properties,omitempty"`
	Items                *Schema     `json:"items,omitempty"`
	AdditionalProperties *bool       `json:"additionalProperties,omitempty"`
	Metadata             Metadata    `json:"metadata,omitempty"`
}

// ParseSchema decodes a JSON schema document.
func ParseSchema(data []byte) (*Schema, error) {
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// IsDateTime reports whether values of this schema are timestamps.
func (s *Schema) IsDateTime() bool {
	return s != nil && s.Format == FormatDateTime
}

// Has reports whether t is one of the declared types.
func (s *Schema) Has(t string) bool {
	if s == nil {
		return false
	}
	for _, v := range s.Type {
		if v == t {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (s *Schema) Clone() *Schema {
	if s == nil {
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("catalog: schema does not round-trip: %v", err))
	}
	out, err := ParseSchema(data)
	if err != nil {
		panic(fmt.Sprintf("catalog: schema does not round-trip: %v", err))
	}
	return out
}

// TypeList holds the JSON Schema "type" keyword, which may be a single name or
// a list of names.
type TypeList []string

// MarshalJSON writes a single type as a bare string.
func (t TypeList) MarshalJSON() ([]byte, error) {
	if len(t) == 1 {
		return json.Marshal(t[0])
	}
	return json.Marshal([]string(t))
}

// UnmarshalJSON accepts a string or a list of strings.
func (t *TypeList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var one string
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		*t = TypeList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*t = TypeList(many)
	return nil
}

// Properties is an ordered set of named property schemas.
type Properties struct {
	names  []string
	byName map[string]*Schema
}

// NewProperties creates an empty property set.
func NewProperties() *Properties {
	return &Properties{byName: make(map[string]*Schema)}
}

// Set adds or replaces a property, keeping the position of an existing one.
func (p *Properties) Set(name string, s *Schema) *Properties {
	if p.byName == nil {
		p.byName = make(map[string]*Schema)
	}
	if _, ok := p.byName[name]; !ok {
		p.names = append(p.names, name)
	}
	p.byName[name] = s
	return p
}

// Get returns the named property schema.
func (p *Properties) Get(name string) (*Schema, bool) {
	if p == nil {
		return nil, false
	}
	s, ok := p.byName[name]
	return s, ok
}

// Names returns property names in declaration order.
func (p *Properties) Names() []string {
	if p == nil {
		return nil
	}
	out := make([]string, len(p.names))
	copy(out, p.names)
	return out
}

// Len returns the number of properties.
func (p *Properties) Len() int {
	if p == nil {
		return 0
	}
	return len(p.names)
}

// MarshalJSON writes properties in declaration order.
func (p *Properties) MarshalJSON() ([]byte, error) {
	rec := models.NewRecord()
	for _, name := range p.names {
		rec.Set(name, p.byName[name])
	}
	return rec.MarshalJSON()
}

// UnmarshalJSON reads properties keeping declaration order.
func (p *Properties) UnmarshalJSON(data []byte) error {
	var rec models.Record
	if err := rec.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("properties: %w", err)
	}

	out := NewProperties()
	var decodeErr error
	rec.Range(func(name string, value interface{}) bool {
		raw, err := json.Marshal(value)
		if err != nil {
			decodeErr = err
			return false
		}
		var s Schema
		if err := json.Unmarshal(raw, &s); err != nil {
			decodeErr = fmt.Errorf("property %q: %w", name, err)
			return false
		}
		out.Set(name, &s)
		return true
	})
	if decodeErr != nil {
		return decodeErr
	}

	*p = *out
	return nil
}
