package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/bronto-tap/pkg/errors"
	"github.com/ajitpratap0/bronto-tap/pkg/json"
)

func TestBookmarks_SetIsCopyOnWrite(t *testing.T) {
	empty := New()
	first := empty.Set("contact", "modified", "2020-01-01T06:00:00Z")
	second := first.Set("contact", "modified", "2020-01-01T12:00:00Z")
	third := second.Set("list", "page", 3)

	_, ok := empty.Get("contact", "modified")
	assert.False(t, ok)

	v, _ := first.Get("contact", "modified")
	assert.Equal(t, "2020-01-01T06:00:00Z", v)

	v, _ = second.Get("contact", "modified")
	assert.Equal(t, "2020-01-01T12:00:00Z", v)

	_, ok = second.Get("list", "page")
	assert.False(t, ok)
	assert.Equal(t, []string{"contact", "list"}, third.Tables())
	assert.True(t, empty.IsEmpty())
	assert.False(t, third.IsEmpty())
}

func TestBookmarks_SetTimeIsCanonical(t *testing.T) {
	cst := time.FixedZone("CST", -6*3600)
	b := New().Set("outbound_activity", "createdDate", time.Date(2020, 1, 1, 0, 0, 0, 999, cst))

	v, _ := b.Get("outbound_activity", "createdDate")
	assert.Equal(t, "2020-01-01T06:00:00Z", v)

	got, ok, err := b.GetTime("outbound_activity", "createdDate")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Date(2020, 1, 1, 6, 0, 0, 0, time.UTC), got)
}

func TestBookmarks_GetTime(t *testing.T) {
	b := New().
		Set("contact", "modified", "2020-01-01T00:00:00-06:00").
		Set("contact", "bad", "soon").
		Set("contact", "count", 4)

	got, ok, err := b.GetTime("contact", "modified")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Date(2020, 1, 1, 6, 0, 0, 0, time.UTC), got)

	_, ok, err = b.GetTime("contact", "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = b.GetTime("contact", "bad")
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))

	_, _, err = b.GetTime("contact", "count")
	assert.Error(t, err)
}

func TestBookmarks_JSON(t *testing.T) {
	b := New().Set("contact", "modified", "2020-01-01T06:00:00Z")

	data, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, `{"bookmarks":{"contact":{"modified":"2020-01-01T06:00:00Z"}}}`, string(data))

	parsed, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, b, parsed)

	data, err = json.Marshal(New())
	require.NoError(t, err)
	assert.Equal(t, `{"bookmarks":{}}`, string(data))
}

func TestParse_FlatLayout(t *testing.T) {
	b, err := Parse([]byte(`{"contact":{"modified":"2020-01-01T06:00:00Z"}}`))
	require.NoError(t, err)

	v, ok := b.Get("contact", "modified")
	require.True(t, ok)
	assert.Equal(t, "2020-01-01T06:00:00Z", v)
}

func TestParse_EmptyAndInvalid(t *testing.T) {
	b, err := Parse(nil)
	require.NoError(t, err)
	assert.True(t, b.IsEmpty())

	b, err = Parse([]byte(`{"bookmarks":null}`))
	require.NoError(t, err)
	assert.True(t, b.IsEmpty())

	_, err = Parse([]byte(`{"bookmarks":`))
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestLoad(t *testing.T) {
	b, err := Load("")
	require.NoError(t, err)
	assert.True(t, b.IsEmpty())

	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"bookmarks":{"list":{"x":"y"}}}`), 0o600))
	b, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"list"}, b.Tables())

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}
