package bronto

import (
	"context"
	"embed"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/bronto-tap/pkg/catalog"
	"github.com/ajitpratap0/bronto-tap/pkg/connector/core"
	"github.com/ajitpratap0/bronto-tap/pkg/connector/registry"
	"github.com/ajitpratap0/bronto-tap/pkg/models"
	"github.com/ajitpratap0/bronto-tap/pkg/window"
)

// Stream names.
const (
	StreamContact          = "contact"
	StreamInboundActivity  = "inbound_activity"
	StreamList             = "list"
	StreamOutboundActivity = "outbound_activity"
	StreamUnsubscribe      = "unsubscribe"
)

const (
	contactInterval     = 6 * time.Hour
	unsubscribeInterval = 6 * time.Hour
	activityInterval    = time.Hour

	// Activities can be reclassified after they are first read, and the API
	// only serves the last 30 days of them.
	activityRewind    = 3 * 24 * time.Hour
	activityRetention = 30 * 24 * time.Hour
)

// activityIDFields feed the surrogate key of activity records.
var activityIDFields = []string{
	"createdDate", "activityType", "contactId",
	"listId", "segmentId", "keywordId", "messageId",
}

// contactDataGroups are the optional blocks of contact data. A block is only
// requested when one of its fields is selected.
var contactDataGroups = []struct {
	flag   string
	label  string
	fields []string
}{
	{"includeGeoIpData", "geo-IP", []string{"geoIPCity", "geoIPStateRegion", "geoIPZip", "geoIPCountry", "geoIPCountryCode"}},
	{"includeTechnologyData", "technology", []string{"primaryBrowser", "mobileBrowser", "primaryEmailClient", "mobileEmailClient", "operatingSystem"}},
	{"includeRFMData", "RFM", []string{"firstOrderDate", "lastOrderDate", "lastOrderTotal", "totalOrders", "totalRevenue", "averageOrderValue"}},
	{"includeEngagementData", "engagement", []string{"lastDeliveryDate", "lastOpenDate", "lastClickDate"}},
}

//go:embed schemas/*.json
var schemaFiles embed.FS

func loadSchema(name string) (*catalog.Schema, error) {
	data, err := schemaFiles.ReadFile("schemas/" + name + ".json")
	if err != nil {
		return nil, err
	}
	s, err := catalog.ParseSchema(data)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", name, err)
	}
	return s, nil
}

func (s *Source) buildStreams() error {
	schemas := make(map[string]*catalog.Schema)
	for _, name := range []string{"activity", "contact", "list", "unsubscribe"} {
		schema, err := loadSchema(name)
		if err != nil {
			return err
		}
		schemas[name] = schema
	}

	s.streams = []*registry.Stream{
		{
			Name:             StreamContact,
			KeyProperties:    []string{"id"},
			Replication:      catalog.ReplicationIncremental,
			BookmarkProperty: "modified",
			Interval:         contactInterval,
			Pagination:       core.PaginationNumbered,
			Schema:           schemas["contact"],
			NewQuery:         s.contactQuery(schemas["contact"]),
		},
		{
			Name:             StreamInboundActivity,
			KeyProperties:    []string{"id"},
			Replication:      catalog.ReplicationIncremental,
			BookmarkProperty: "createdDate",
			Interval:         activityInterval,
			Pagination:       core.PaginationDirectional,
			StartPolicy:      window.StartPolicy{Rewind: activityRewind, Retention: activityRetention},
			Schema:           schemas["activity"].Clone(),
			DerivedIDField:   "id",
			DerivedIDFrom:    activityIDFields,
			NewQuery:         s.activityQuery("readRecentInboundActivities", schemas["activity"]),
		},
		{
			Name:          StreamList,
			KeyProperties: []string{"id"},
			Replication:   catalog.ReplicationFullTable,
			Pagination:    core.PaginationNumbered,
			Schema:        schemas["list"],
			NewQuery:      s.listQuery(schemas["list"]),
		},
		{
			Name:             StreamOutboundActivity,
			KeyProperties:    []string{"id"},
			Replication:      catalog.ReplicationIncremental,
			BookmarkProperty: "createdDate",
			Interval:         activityInterval,
			Pagination:       core.PaginationDirectional,
			StartPolicy:      window.StartPolicy{Rewind: activityRewind, Retention: activityRetention},
			Schema:           schemas["activity"].Clone(),
			DerivedIDField:   "id",
			DerivedIDFrom:    activityIDFields,
			NewQuery:         s.activityQuery("readRecentOutboundActivities", schemas["activity"]),
		},
		{
			Name:             StreamUnsubscribe,
			KeyProperties:    []string{"contactId", "method", "created"},
			Replication:      catalog.ReplicationIncremental,
			BookmarkProperty: "start_date",
			Interval:         unsubscribeInterval,
			Pagination:       core.PaginationNumbered,
			Schema:           schemas["unsubscribe"],
			NewQuery:         s.unsubscribeQuery(schemas["unsubscribe"]),
		},
	}
	return nil
}

func (s *Source) contactQuery(schema *catalog.Schema) func(*catalog.Selection, *zap.Logger) core.QueryFunc {
	return func(sel *catalog.Selection, logger *zap.Logger) core.QueryFunc {
		flags := make(Params, 0, len(contactDataGroups))
		for _, g := range contactDataGroups {
			include := sel.ContainsAny(g.fields...)
			if include {
				logger.Info("including optional contact data", zap.String("group", g.label))
			}
			flags = append(flags, Param{Name: g.flag, Value: include})
		}

		return func(ctx context.Context, w window.Window, c core.Cursor) (core.PageResult, error) {
			params := Params{
				{Name: "filter", Value: Params{
					{Name: "type", Value: "AND"},
					{Name: "modified", Value: []Params{
						{{Name: "operator", Value: "AfterOrSameDay"}, {Name: "value", Value: w.Start}},
						{{Name: "operator", Value: "Before"}, {Name: "value", Value: w.End}},
					}},
				}},
				{Name: "includeLists", Value: true},
				{Name: "pageNumber", Value: c.Page},
				{Name: "includeSMSKeywords", Value: true},
			}
			params = append(params, flags...)

			return s.read(ctx, "readContacts", params, schema, func(rec *models.Record) {
				flatten(rec, "readOnlyContactData")
			})
		}
	}
}

func (s *Source) unsubscribeQuery(schema *catalog.Schema) func(*catalog.Selection, *zap.Logger) core.QueryFunc {
	return func(*catalog.Selection, *zap.Logger) core.QueryFunc {
		return func(ctx context.Context, w window.Window, c core.Cursor) (core.PageResult, error) {
			params := Params{
				{Name: "filter", Value: Params{
					{Name: "start", Value: w.Start},
					{Name: "end", Value: w.End},
				}},
				{Name: "pageNumber", Value: c.Page},
			}
			return s.read(ctx, "readUnsubscribes", params, schema, nil)
		}
	}
}

func (s *Source) activityQuery(operation string, schema *catalog.Schema) func(*catalog.Selection, *zap.Logger) core.QueryFunc {
	return func(*catalog.Selection, *zap.Logger) core.QueryFunc {
		return func(ctx context.Context, w window.Window, c core.Cursor) (core.PageResult, error) {
			direction := c.Direction
			if direction == "" {
				direction = core.DirectionFirst
			}
			params := Params{
				{Name: "filter", Value: Params{
					{Name: "start", Value: w.Start},
					{Name: "end", Value: w.End},
					{Name: "size", Value: s.pageSize},
					{Name: "readDirection", Value: string(direction)},
				}},
			}

			res, err := s.read(ctx, operation, params, schema, nil)
			if IsFault(err, FaultNoMoreResults) {
				return core.EndOfWindow(), nil
			}
			return res, err
		}
	}
}

func (s *Source) listQuery(schema *catalog.Schema) func(*catalog.Selection, *zap.Logger) core.QueryFunc {
	return func(*catalog.Selection, *zap.Logger) core.QueryFunc {
		return func(ctx context.Context, _ window.Window, c core.Cursor) (core.PageResult, error) {
			params := Params{
				{Name: "filter", Value: Params{}},
				{Name: "pageNumber", Value: c.Page},
				{Name: "pageSize", Value: s.pageSize},
			}
			return s.read(ctx, "readLists", params, schema, nil)
		}
	}
}

// read calls operation and decodes each returned element into a record.
func (s *Source) read(ctx context.Context, operation string, params Params, schema *catalog.Schema, shape func(*models.Record)) (core.PageResult, error) {
	returns, err := s.client.Call(ctx, operation, params)
	if err != nil {
		return core.PageResult{}, err
	}

	records := make([]*models.Record, 0, len(returns))
	for _, el := range returns {
		rec := el.Record()
		if shape != nil {
			shape(rec)
		}
		if err := coerce(rec, schema); err != nil {
			return core.PageResult{}, err
		}
		records = append(records, rec)
	}
	return core.Page(records), nil
}
