// Package bronto implements the Bronto SOAP source: the API client, the
// definitions of the contact, list, unsubscribe and activity streams, and
// their schemas.
package bronto

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/bronto-tap/pkg/config"
	"github.com/ajitpratap0/bronto-tap/pkg/connector/registry"
	"github.com/ajitpratap0/bronto-tap/pkg/errors"
)

// SourceName is the name the source registers under.
const SourceName = "bronto"

// Source is a Bronto account reachable with one API token.
type Source struct {
	client   *Client
	pageSize int
	streams  []*registry.Stream
	logger   *zap.Logger
}

// NewSource creates a source from the tap configuration.
func NewSource(cfg *config.Config, logger *zap.Logger) (*Source, error) {
	if cfg == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = config.DefaultPageSize
	}

	s := &Source{
		client: NewClient(ClientConfig{
			Endpoint:       cfg.Endpoint,
			Token:          cfg.Token,
			RequestTimeout: cfg.RequestTimeout,
			RateLimit:      float64(cfg.RateLimitPerSec),
		}, logger),
		pageSize: pageSize,
		logger:   logger,
	}
	if err := s.buildStreams(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "invalid embedded schema")
	}
	return s, nil
}

// Login opens or refreshes the API session.
func (s *Source) Login(ctx context.Context) error {
	return s.client.Login(ctx)
}

// Streams returns the stream definitions in discovery order.
func (s *Source) Streams() []*registry.Stream {
	return s.streams
}

// Close releases the client.
func (s *Source) Close() error {
	return s.client.Close()
}

func init() {
	_ = registry.RegisterSource(SourceName, func(cfg *config.Config, logger *zap.Logger) (registry.Source, error) {
		src, err := NewSource(cfg, logger)
		if err != nil {
			return nil, err
		}
		return src, nil
	})
}
