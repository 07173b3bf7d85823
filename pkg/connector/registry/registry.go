// Package registry maps source names to factories and catalog entries to the
// engine configuration of the stream they name.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/bronto-tap/pkg/catalog"
	"github.com/ajitpratap0/bronto-tap/pkg/config"
	"github.com/ajitpratap0/bronto-tap/pkg/connector/base"
	"github.com/ajitpratap0/bronto-tap/pkg/connector/core"
	"github.com/ajitpratap0/bronto-tap/pkg/connector/engine"
	"github.com/ajitpratap0/bronto-tap/pkg/errors"
	"github.com/ajitpratap0/bronto-tap/pkg/window"
)

// Stream is the static definition of one stream of a source.
type Stream struct {
	Name          string
	KeyProperties []string
	// Replication is the default method when the catalog does not set one.
	Replication      string
	BookmarkProperty string
	Interval         time.Duration
	Pagination       core.Pagination
	StartPolicy      window.StartPolicy
	Schema           *catalog.Schema

	// DerivedIDField receives the hash of DerivedIDFrom when set.
	DerivedIDField string
	DerivedIDFrom  []string

	// NewQuery binds the stream's page query to the fields selected for a
	// run.
	NewQuery func(sel *catalog.Selection, logger *zap.Logger) core.QueryFunc
}

// Source is a connected remote API and the streams it offers.
type Source interface {
	core.Session
	Streams() []*Stream
	Close() error
}

// SourceFactory creates a source from the tap configuration.
type SourceFactory func(cfg *config.Config, logger *zap.Logger) (Source, error)

// Registry manages source registration and instantiation
type Registry struct {
	sources map[string]SourceFactory
	mu      sync.RWMutex
}

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates a new source registry
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]SourceFactory),
	}
}

// RegisterSource registers a source factory
func (r *Registry) RegisterSource(name string, factory SourceFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[name]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("source %s already registered", name))
	}

	r.sources[name] = factory
	return nil
}

// CreateSource creates a source instance
func (r *Registry) CreateSource(name string, cfg *config.Config, logger *zap.Logger) (Source, error) {
	r.mu.RLock()
	factory, exists := r.sources[name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("source %s not found", name))
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	source, err := factory(cfg, logger.With(zap.String("source", name)))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, fmt.Sprintf("failed to create source %s", name))
	}

	return source, nil
}

// ListSources returns the registered source names, sorted
func (r *Registry) ListSources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]string, 0, len(r.sources))
	for name := range r.sources {
		sources = append(sources, name)
	}
	sort.Strings(sources)
	return sources
}

// HasSource checks if a source is registered
func (r *Registry) HasSource(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.sources[name]
	return exists
}

// Global registry functions

// RegisterSource registers a source factory in the global registry
func RegisterSource(name string, factory SourceFactory) error {
	return globalRegistry.RegisterSource(name, factory)
}

// CreateSource creates a source from the global registry
func CreateSource(name string, cfg *config.Config, logger *zap.Logger) (Source, error) {
	return globalRegistry.CreateSource(name, cfg, logger)
}

// ListSources lists the sources of the global registry
func ListSources() []string {
	return globalRegistry.ListSources()
}

// GetGlobalRegistry returns the global registry instance
func GetGlobalRegistry() *Registry {
	return globalRegistry
}

// Streams indexes the streams of one source by name, in declaration order.
type Streams struct {
	session core.Session
	order   []string
	byName  map[string]*Stream
}

// NewStreams indexes the streams of src.
func NewStreams(src Source) (*Streams, error) {
	s := &Streams{
		session: src,
		byName:  make(map[string]*Stream),
	}
	for _, st := range src.Streams() {
		if _, exists := s.byName[st.Name]; exists {
			return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("stream %s defined twice", st.Name))
		}
		s.byName[st.Name] = st
		s.order = append(s.order, st.Name)
	}
	return s, nil
}

// Get returns the stream called name.
func (s *Streams) Get(name string) (*Stream, bool) {
	st, ok := s.byName[name]
	return st, ok
}

// Names returns the stream names in declaration order.
func (s *Streams) Names() []string {
	return append([]string(nil), s.order...)
}

// Discover builds the catalog of every stream. Streams and available fields
// are left unselected unless selectAll is set.
func (s *Streams) Discover(selectAll bool) *catalog.Catalog {
	cat := &catalog.Catalog{}
	for _, name := range s.order {
		st := s.byName[name]
		entry := catalog.NewEntry(st.Name, st.KeyProperties, st.Replication, st.Schema)
		if selectAll {
			entry.SelectAll()
		}
		cat.Streams = append(cat.Streams, entry)
	}
	return cat
}

// Resolve turns a catalog entry into the engine configuration of its stream.
// The entry's schema, key properties and replication method take precedence
// over the stream's defaults.
func (s *Streams) Resolve(entry *catalog.Entry, logger *zap.Logger) (*engine.Table, error) {
	st, ok := s.byName[entry.Stream]
	if !ok {
		st, ok = s.byName[entry.ID()]
	}
	if !ok {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("unknown stream %s", entry.Stream))
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	schema := entry.Schema
	if schema == nil {
		schema = st.Schema
	}
	keys := entry.KeyProperties
	if len(keys) == 0 {
		keys = st.KeyProperties
	}
	sel := catalog.ComputeSelection(schema)

	table := &engine.Table{
		Stream:           st.Name,
		KeyProperties:    keys,
		Schema:           schema,
		Selection:        sel,
		Replication:      entry.Replication(st.Replication),
		BookmarkProperty: st.BookmarkProperty,
		Interval:         st.Interval,
		StartPolicy:      st.StartPolicy,
		Pagination:       st.Pagination,
		Session:          s.session,
		Query:            st.NewQuery(sel, logger.With(zap.String("stream", st.Name))),
	}
	if st.DerivedIDField != "" {
		table.DerivedID = base.NewDerivedID(st.DerivedIDField, st.DerivedIDFrom, schema)
	}
	return table, nil
}
