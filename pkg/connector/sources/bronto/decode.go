package bronto

import (
	"strconv"

	"github.com/ajitpratap0/bronto-tap/pkg/catalog"
	"github.com/ajitpratap0/bronto-tap/pkg/errors"
	"github.com/ajitpratap0/bronto-tap/pkg/models"
)

// coerce converts the text values of rec to the types schema declares, in
// place. Fields the schema does not know are left as decoded.
func coerce(rec *models.Record, schema *catalog.Schema) error {
	if schema == nil || schema.Properties == nil {
		return nil
	}
	for _, key := range rec.Keys() {
		prop, ok := schema.Properties.Get(key)
		if !ok || prop == nil {
			continue
		}
		v, _ := rec.Get(key)
		converted, err := coerceValue(v, prop)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to decode field").
				WithDetail("field", key)
		}
		rec.Set(key, converted)
	}
	return nil
}

func coerceValue(v interface{}, prop *catalog.Schema) (interface{}, error) {
	if v == nil {
		return nil, nil
	}

	if prop.Has("array") {
		items, ok := v.([]interface{})
		if !ok {
			items = []interface{}{v}
		}
		out := make([]interface{}, 0, len(items))
		for _, item := range items {
			if prop.Items == nil {
				out = append(out, item)
				continue
			}
			c, err := coerceValue(item, prop.Items)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		return out, nil
	}

	switch t := v.(type) {
	case *models.Record:
		if err := coerce(t, prop); err != nil {
			return nil, err
		}
		return t, nil
	case string:
		return coerceText(t, prop)
	default:
		return v, nil
	}
}

func coerceText(s string, prop *catalog.Schema) (interface{}, error) {
	switch {
	case prop.IsDateTime():
		if s == "" {
			return nil, nil
		}
		return models.ParseTimestamp(s)
	case prop.Has("integer"):
		if s == "" {
			return nil, nil
		}
		return strconv.ParseInt(s, 10, 64)
	case prop.Has("number"):
		if s == "" {
			return nil, nil
		}
		return strconv.ParseFloat(s, 64)
	case prop.Has("boolean"):
		if s == "" {
			return nil, nil
		}
		return strconv.ParseBool(s)
	default:
		return s, nil
	}
}

// flatten lifts the fields of the nested record under key into rec, removing
// key. Nested fields overwrite top-level fields of the same name.
func flatten(rec *models.Record, key string) {
	v, ok := rec.Get(key)
	if !ok {
		return
	}
	rec.Delete(key)

	nested, ok := v.(*models.Record)
	if !ok {
		return
	}
	nested.Range(func(k string, val interface{}) bool {
		rec.Set(k, val)
		return true
	})
}
