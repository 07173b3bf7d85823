package bronto

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/bronto-tap/pkg/clients"
	"github.com/ajitpratap0/bronto-tap/pkg/errors"
	"github.com/ajitpratap0/bronto-tap/pkg/metrics"
)

// DefaultSessionTTL is how long a session is reused before Login opens a new
// one. The API expires idle sessions after twenty minutes.
const DefaultSessionTTL = 15 * time.Minute

// Client calls the SOAP API. It holds one session at a time and is not meant
// for concurrent use by several streams.
type Client struct {
	endpoint   string
	token      string
	http       *clients.HTTPClient
	sessionTTL time.Duration
	now        func() time.Time
	logger     *zap.Logger

	mu        sync.Mutex
	sessionID string
	loggedIn  time.Time
}

// ClientConfig configures a Client.
type ClientConfig struct {
	Endpoint       string
	Token          string
	RequestTimeout time.Duration
	RateLimit      float64
	SessionTTL     time.Duration
}

// NewClient creates a client. No request is made until Login.
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	httpCfg := clients.DefaultHTTPConfig()
	if cfg.RequestTimeout > 0 {
		httpCfg.RequestTimeout = cfg.RequestTimeout
	}
	httpCfg.RateLimit = cfg.RateLimit

	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	return &Client{
		endpoint:   cfg.Endpoint,
		token:      cfg.Token,
		http:       clients.NewHTTPClient(httpCfg, logger),
		sessionTTL: ttl,
		now:        time.Now,
		logger:     logger.With(zap.String("component", "soap_client")),
	}
}

// Login opens a session, or keeps the current one while it is younger than
// the session TTL.
func (c *Client) Login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessionID != "" && c.now().Sub(c.loggedIn) < c.sessionTTL {
		return nil
	}

	returns, err := c.call(ctx, "login", "", Params{{Name: "apiToken", Value: c.token}})
	if err != nil {
		c.sessionID = ""
		if errors.IsType(err, errors.ErrorTypeTimeout) {
			return err
		}
		return errors.Wrap(err, errors.ErrorTypeAuthentication, "login failed")
	}
	if len(returns) == 0 || returns[0].text == "" {
		return errors.New(errors.ErrorTypeAuthentication, "login returned no session id")
	}

	c.sessionID = returns[0].text
	c.loggedIn = c.now()
	c.logger.Debug("session opened")
	return nil
}

// Invalidate drops the current session so the next Login opens a new one.
func (c *Client) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = ""
}

// expire drops session if it is still the current one.
func (c *Client) expire(session string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionID == session {
		c.sessionID = ""
	}
}

// Call invokes operation with the current session and returns the elements
// of its response.
func (c *Client) Call(ctx context.Context, operation string, params Params) ([]*Element, error) {
	c.mu.Lock()
	session := c.sessionID
	c.mu.Unlock()

	if session == "" {
		return nil, errors.Newf(errors.ErrorTypeAuthentication, "%s called without a session", operation)
	}
	return c.call(ctx, operation, session, params)
}

func (c *Client) call(ctx context.Context, operation, session string, params Params) ([]*Element, error) {
	body, err := encodeEnvelope(operation, session, params)
	if err != nil {
		metrics.RemoteCalls.WithLabelValues(operation, "error").Inc()
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to encode request").
			WithDetail("operation", operation)
	}

	resp, err := c.http.Post(ctx, c.endpoint, bytes.NewReader(body), map[string]string{
		"Content-Type": "text/xml; charset=utf-8",
		"SOAPAction":   `""`,
	})
	if err != nil {
		if clients.IsTimeout(err) {
			metrics.RemoteCalls.WithLabelValues(operation, "timeout").Inc()
			return nil, errors.Wrap(err, errors.ErrorTypeTimeout, "request timed out").
				WithDetail("operation", operation)
		}
		metrics.RemoteCalls.WithLabelValues(operation, "error").Inc()
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "request failed").
			WithDetail("operation", operation)
	}
	defer resp.Body.Close()

	returns, err := decodeResponse(resp.Body)
	if err != nil {
		var fault *Fault
		if errors.As(err, &fault) {
			metrics.RemoteCalls.WithLabelValues(operation, "fault").Inc()
			if session != "" && fault.SessionRejected() {
				c.expire(session)
				c.logger.Warn("session rejected, dropping it", zap.String("operation", operation))
				return nil, errors.Wrap(fault, errors.ErrorTypeSessionExpired, "session expired").
					WithDetail("operation", operation).
					WithDetail("code", fault.Code)
			}
			return nil, errors.Wrap(fault, errors.ErrorTypeRemoteFault, "remote fault").
				WithDetail("operation", operation).
				WithDetail("code", fault.Code)
		}
		if clients.IsTimeout(err) {
			metrics.RemoteCalls.WithLabelValues(operation, "timeout").Inc()
			return nil, errors.Wrap(err, errors.ErrorTypeTimeout, "response timed out").
				WithDetail("operation", operation)
		}
		metrics.RemoteCalls.WithLabelValues(operation, "error").Inc()
		if resp.StatusCode != http.StatusOK {
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, fmt.Sprintf("%s returned HTTP %d", operation, resp.StatusCode))
		}
		return nil, errors.Wrap(err, errors.ErrorTypeData, fmt.Sprintf("failed to decode %s response", operation))
	}

	metrics.RemoteCalls.WithLabelValues(operation, "ok").Inc()
	return returns, nil
}

// Close releases the client's connections.
func (c *Client) Close() error {
	stats := c.http.GetStats()
	c.logger.Info("client closed",
		zap.Int64("requests", stats.TotalRequests),
		zap.Int64("failed", stats.FailedRequests),
		zap.Float64("success_rate", stats.SuccessRate))
	return c.http.Close()
}
