package base

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ajitpratap0/bronto-tap/pkg/catalog"
	"github.com/ajitpratap0/bronto-tap/pkg/models"
)

// DerivedID computes a surrogate key for records that have no natural one.
// The key is the md5 hex digest of the non-empty values of a fixed field
// list, joined with "|".
type DerivedID struct {
	Field      string
	From       []string
	timestamps map[string]struct{}
}

// NewDerivedID returns a deriver that writes to field. Properties of schema
// with a date-time format are hashed in canonical timestamp form, so a value
// hashes the same whether the client returned it as a string or a time.
func NewDerivedID(field string, from []string, schema *catalog.Schema) *DerivedID {
	d := &DerivedID{
		Field:      field,
		From:       append([]string(nil), from...),
		timestamps: make(map[string]struct{}),
	}
	if schema != nil && schema.Properties != nil {
		for _, name := range from {
			if prop, ok := schema.Properties.Get(name); ok && prop.IsDateTime() {
				d.timestamps[name] = struct{}{}
			}
		}
	}
	return d
}

// Compute returns the id of rec. Absent, nil and empty values are skipped.
//
// Field names are not part of the digest, so the same values sitting in
// different fields of the list hash alike: {contactId: a, segmentId: b} and
// {listId: a, segmentId: b} share an id. The scheme is kept byte-compatible
// with ids already stored downstream, which rules out adding separators for
// skipped fields.
func (d *DerivedID) Compute(rec *models.Record) string {
	parts := make([]string, 0, len(d.From))
	for _, name := range d.From {
		v, ok := rec.Get(name)
		if !ok {
			continue
		}
		s := d.format(name, v)
		if s == "" {
			continue
		}
		parts = append(parts, s)
	}

	sum := md5.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// Apply sets the derived id on rec.
func (d *DerivedID) Apply(rec *models.Record) {
	rec.Set(d.Field, d.Compute(rec))
}

func (d *DerivedID) format(name string, v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		if _, ok := d.timestamps[name]; ok && t != "" {
			if s, ok := models.NormalizeTimestamp(t).(string); ok {
				return s
			}
		}
		return t
	case time.Time:
		return models.FormatTimestamp(t)
	case *time.Time:
		if t == nil {
			return ""
		}
		return models.FormatTimestamp(*t)
	default:
		return fmt.Sprint(t)
	}
}
