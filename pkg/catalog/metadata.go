package catalog

import (
	"github.com/ajitpratap0/bronto-tap/pkg/json"
)

// Inclusion values.
const (
	InclusionAutomatic   = "automatic"
	InclusionAvailable   = "available"
	InclusionUnsupported = "unsupported"
)

// Metadata keys.
const (
	keyInclusion         = "inclusion"
	keySelected          = "selected"
	keySelectedByDefault = "selected-by-default"
)

// Metadata is the selection sidecar attached to a catalog entry or a schema
// property. Values are kept as decoded so that a wrongly typed flag reads as
// "not selected" instead of failing the catalog load.
type Metadata map[string]interface{}

// NewMetadata builds metadata with the given inclusion and default selection.
func NewMetadata(inclusion string, selectedByDefault bool) Metadata {
	return Metadata{
		keyInclusion:         inclusion,
		keySelectedByDefault: selectedByDefault,
	}
}

// Inclusion returns the inclusion value, or "" when absent or not a string.
func (m Metadata) Inclusion() string {
	s, _ := m[keyInclusion].(string)
	return s
}

// SetSelected records an explicit selection choice.
func (m Metadata) SetSelected(selected bool) {
	m[keySelected] = selected
}

// IsSelected reports whether the field or stream is selected: automatic
// inclusion always is; available inclusion is when "selected" is true, or when
// "selected" is unset and "selected-by-default" is true.
func (m Metadata) IsSelected() bool {
	switch m.Inclusion() {
	case InclusionAutomatic:
		return true
	case InclusionAvailable:
	default:
		return false
	}

	if v, ok := m[keySelected]; ok && v != nil {
		b, isBool := v.(bool)
		return isBool && b
	}

	b, isBool := m[keySelectedByDefault].(bool)
	return isBool && b
}

// UnmarshalJSON treats anything but an object as empty metadata.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		*m = Metadata{}
		return nil
	}
	*m = Metadata(obj)
	return nil
}
