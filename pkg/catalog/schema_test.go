package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/bronto-tap/pkg/json"
)

const sampleSchema = `{
	"type": "object",
	"properties": {
		"zeta": {"type": ["null", "string"], "metadata": {"inclusion": "available"}},
		"id": {"type": "string", "metadata": {"inclusion": "automatic"}},
		"created": {"type": ["null", "string"], "format": "date-time", "metadata": {"inclusion": "available", "selected": true}},
		"tags": {"type": ["null", "array"], "items": {"type": "string"}, "metadata": {"inclusion": "available"}}
	},
	"additionalProperties": false,
	"metadata": {"inclusion": "available", "selected-by-default": false}
}`

func TestParseSchema_KeepsPropertyOrder(t *testing.T) {
	s, err := ParseSchema([]byte(sampleSchema))
	require.NoError(t, err)

	assert.Equal(t, TypeList{"object"}, s.Type)
	assert.Equal(t, []string{"zeta", "id", "created", "tags"}, s.Properties.Names())

	created, ok := s.Properties.Get("created")
	require.True(t, ok)
	assert.True(t, created.IsDateTime())
	assert.True(t, created.Has("null"))

	tags, _ := s.Properties.Get("tags")
	require.NotNil(t, tags.Items)
	assert.True(t, tags.Items.Has("string"))

	require.NotNil(t, s.AdditionalProperties)
	assert.False(t, *s.AdditionalProperties)
}

func TestSchema_MarshalRoundTrip(t *testing.T) {
	s, err := ParseSchema([]byte(sampleSchema))
	require.NoError(t, err)

	data, err := json.Marshal(s)
	require.NoError(t, err)

	again, err := ParseSchema(data)
	require.NoError(t, err)
	assert.Equal(t, s.Properties.Names(), again.Properties.Names())

	// single types are written bare, unions as lists
	assert.Contains(t, string(data), `"id":{"type":"string"`)
	assert.Contains(t, string(data), `"zeta":{"type":["null","string"]`)
}

func TestSchema_Clone(t *testing.T) {
	s, err := ParseSchema([]byte(sampleSchema))
	require.NoError(t, err)

	c := s.Clone()
	zeta, _ := c.Properties.Get("zeta")
	zeta.Metadata.SetSelected(true)

	orig, _ := s.Properties.Get("zeta")
	assert.False(t, orig.Metadata.IsSelected())
	assert.True(t, zeta.Metadata.IsSelected())
}
