package bronto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/bronto-tap/pkg/catalog"
	"github.com/ajitpratap0/bronto-tap/pkg/errors"
	"github.com/ajitpratap0/bronto-tap/pkg/models"
)

func contactSchema(t *testing.T) *catalog.Schema {
	t.Helper()
	s, err := loadSchema("contact")
	require.NoError(t, err)
	return s
}

func TestCoerce(t *testing.T) {
	rec := models.NewRecord().
		Set("id", "c1").
		Set("modified", "2017-01-02T03:04:05.000Z").
		Set("deleted", "false").
		Set("numSends", "12").
		Set("totalRevenue", "").
		Set("listIds", "l1").
		Set("unknown", "kept")

	require.NoError(t, coerce(rec, contactSchema(t)))

	v, _ := rec.Get("modified")
	assert.Equal(t, time.Date(2017, 1, 2, 3, 4, 5, 0, time.UTC), v)
	v, _ = rec.Get("deleted")
	assert.Equal(t, false, v)
	v, _ = rec.Get("numSends")
	assert.Equal(t, 12.0, v)
	v, ok := rec.Get("totalRevenue")
	assert.True(t, ok)
	assert.Nil(t, v)
	v, _ = rec.Get("listIds")
	assert.Equal(t, []interface{}{"l1"}, v)
	v, _ = rec.Get("unknown")
	assert.Equal(t, "kept", v)
}

func TestCoerce_Integer(t *testing.T) {
	s, err := loadSchema("list")
	require.NoError(t, err)

	rec := models.NewRecord().Set("id", "l1").Set("activeCount", "42")
	require.NoError(t, coerce(rec, s))
	v, _ := rec.Get("activeCount")
	assert.Equal(t, int64(42), v)
}

func TestCoerce_InvalidValue(t *testing.T) {
	rec := models.NewRecord().Set("numSends", "many")
	err := coerce(rec, contactSchema(t))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))

	var e *errors.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "numSends", e.Details["field"])
}

func TestFlatten(t *testing.T) {
	nested := models.NewRecord().Set("totalOrders", "3").Set("id", "shadow")
	rec := models.NewRecord().Set("id", "c1").Set("readOnlyContactData", nested).Set("email", "a@example.com")

	flatten(rec, "readOnlyContactData")

	assert.False(t, rec.Has("readOnlyContactData"))
	assert.Equal(t, []string{"id", "email", "totalOrders"}, rec.Keys())
	v, _ := rec.Get("id")
	assert.Equal(t, "shadow", v)
}

func TestFlatten_Missing(t *testing.T) {
	rec := models.NewRecord().Set("id", "c1")
	flatten(rec, "readOnlyContactData")
	assert.Equal(t, []string{"id"}, rec.Keys())
}
