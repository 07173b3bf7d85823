package bronto

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/bronto-tap/pkg/connector/base"
	"github.com/ajitpratap0/bronto-tap/pkg/connector/core"
	"github.com/ajitpratap0/bronto-tap/pkg/errors"
	"github.com/ajitpratap0/bronto-tap/pkg/models"
	"github.com/ajitpratap0/bronto-tap/pkg/window"
)

// fakeAPI answers SOAP requests by operation name.
type fakeAPI struct {
	mu       sync.Mutex
	requests []request
	handlers map[string]func(body string) (int, string)
}

type request struct {
	operation string
	body      string
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	api := &fakeAPI{handlers: map[string]func(string) (int, string){
		"login": func(string) (int, string) { return http.StatusOK, loginResponse("sess-1") },
	}}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return api, srv
}

func (f *fakeAPI) on(operation string, h func(body string) (int, string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[operation] = h
}

func (f *fakeAPI) calls(operation string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, r := range f.requests {
		if r.operation == operation {
			out = append(out, r.body)
		}
	}
	return out
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	body := string(data)
	op := operationOf(body)

	f.mu.Lock()
	f.requests = append(f.requests, request{operation: op, body: body})
	h, ok := f.handlers[op]
	f.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, faultEnvelope("101: unknown operation "+op))
		return
	}
	status, resp := h(body)
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, resp)
}

func operationOf(body string) string {
	i := strings.Index(body, "<soapenv:Body><v4:")
	if i < 0 {
		return ""
	}
	rest := body[i+len("<soapenv:Body><v4:"):]
	return rest[:strings.IndexAny(rest, "> /")]
}

func loginResponse(session string) string {
	return envelope(`<ns2:loginResponse xmlns:ns2="http://api.bronto.com/v4"><return>` + session + `</return></ns2:loginResponse>`)
}

func newTestClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	c := NewClient(ClientConfig{Endpoint: endpoint, Token: "secret"}, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClient_LoginAndCall(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.on("readLists", func(string) (int, string) {
		return http.StatusOK, envelope(`<ns2:readListsResponse xmlns:ns2="http://api.bronto.com/v4"><return><id>l1</id></return></ns2:readListsResponse>`)
	})
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, c.Login(ctx))
	returns, err := c.Call(ctx, "readLists", Params{{Name: "pageNumber", Value: 1}})
	require.NoError(t, err)
	require.Len(t, returns, 1)

	logins := api.calls("login")
	require.Len(t, logins, 1)
	assert.Contains(t, logins[0], "<apiToken>secret</apiToken>")

	reads := api.calls("readLists")
	require.Len(t, reads, 1)
	assert.Contains(t, reads[0], "<sessionId>sess-1</sessionId>")
}

func TestClient_SessionReuse(t *testing.T) {
	api, srv := newFakeAPI(t)
	c := newTestClient(t, srv.URL)
	now := time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Login(ctx))
	now = now.Add(DefaultSessionTTL - time.Second)
	require.NoError(t, c.Login(ctx))
	assert.Len(t, api.calls("login"), 1)

	now = now.Add(2 * time.Second)
	require.NoError(t, c.Login(ctx))
	assert.Len(t, api.calls("login"), 2)

	c.Invalidate()
	require.NoError(t, c.Login(ctx))
	assert.Len(t, api.calls("login"), 3)
}

// expiringAPI hands out sess-1, sess-2, ... and rejects readLists made with
// sess-1 as expired.
func expiringAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	api, srv := newFakeAPI(t)
	var mu sync.Mutex
	issued := 0
	api.on("login", func(string) (int, string) {
		mu.Lock()
		defer mu.Unlock()
		issued++
		return http.StatusOK, loginResponse(fmt.Sprintf("sess-%d", issued))
	})
	api.on("readLists", func(body string) (int, string) {
		if strings.Contains(body, "<sessionId>sess-1</sessionId>") {
			return http.StatusInternalServerError, faultEnvelope("106: Session has expired")
		}
		return http.StatusOK, envelope(`<ns2:readListsResponse xmlns:ns2="http://api.bronto.com/v4"><return><id>l1</id></return></ns2:readListsResponse>`)
	})
	return api, srv
}

func TestClient_ExpiredSessionIsDropped(t *testing.T) {
	api, srv := expiringAPI(t)
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, c.Login(ctx))
	_, err := c.Call(ctx, "readLists", Params{{Name: "pageNumber", Value: 1}})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSessionExpired))
	assert.True(t, errors.IsRetryable(err))
	assert.True(t, IsFault(err, FaultSessionExpired))

	require.NoError(t, c.Login(ctx), "login opens a new session despite the TTL")
	assert.Len(t, api.calls("login"), 2)

	returns, err := c.Call(ctx, "readLists", Params{{Name: "pageNumber", Value: 1}})
	require.NoError(t, err)
	require.Len(t, returns, 1)

	reads := api.calls("readLists")
	require.Len(t, reads, 2)
	assert.Contains(t, reads[1], "<sessionId>sess-2</sessionId>")
}

func TestClient_ExpiredSessionDuringPaging(t *testing.T) {
	api, srv := expiringAPI(t)
	c := newTestClient(t, srv.URL)

	query := func(ctx context.Context, _ window.Window, cur core.Cursor) (core.PageResult, error) {
		if cur.Page > 1 {
			return core.Page(nil), nil
		}
		returns, err := c.Call(ctx, "readLists", Params{{Name: "pageNumber", Value: cur.Page}})
		if err != nil {
			return core.PageResult{}, err
		}
		return core.Page([]*models.Record{returns[0].Record()}), nil
	}

	it := base.NewPageIterator("list", c, query, core.PaginationNumbered, base.NewRetryPolicy(3, 0), zaptest.NewLogger(t))
	pages := it.Pages(context.Background(), window.Window{})

	require.True(t, pages.Next())
	require.Len(t, pages.Records(), 1)
	assert.False(t, pages.Next())
	require.NoError(t, pages.Err())

	assert.Len(t, api.calls("login"), 2)
	assert.Len(t, api.calls("readLists"), 2)
}

func TestFault_SessionRejected(t *testing.T) {
	assert.True(t, newFault("106: Session has expired", "").SessionRejected())
	assert.True(t, newFault("Invalid session", "").SessionRejected())
	assert.False(t, newFault("105: Invalid filter", "").SessionRejected())
	assert.False(t, newFault("116: There are no more results.", "").SessionRejected())
}

func TestClient_CallWithoutSession(t *testing.T) {
	_, srv := newFakeAPI(t)
	c := newTestClient(t, srv.URL)

	_, err := c.Call(context.Background(), "readLists", nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeAuthentication))
}

func TestClient_LoginFault(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.on("login", func(string) (int, string) {
		return http.StatusInternalServerError, faultEnvelope("102: Invalid API token")
	})
	c := newTestClient(t, srv.URL)

	err := c.Login(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
	assert.True(t, IsFault(err, 102))
}

func TestClient_LoginEmptySession(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.on("login", func(string) (int, string) { return http.StatusOK, loginResponse("") })
	c := newTestClient(t, srv.URL)

	err := c.Login(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeAuthentication))
}

func TestClient_Fault(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.on("readRecentOutboundActivities", func(string) (int, string) {
		return http.StatusInternalServerError, faultEnvelope("116: There are no more results.")
	})
	c := newTestClient(t, srv.URL)
	ctx := context.Background()
	require.NoError(t, c.Login(ctx))

	_, err := c.Call(ctx, "readRecentOutboundActivities", nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeRemoteFault))
	assert.True(t, IsFault(err, FaultNoMoreResults))
	assert.False(t, errors.IsRetryable(err))
}

func TestClient_Timeout(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.on("readLists", func(string) (int, string) {
		time.Sleep(200 * time.Millisecond)
		return http.StatusOK, envelope("")
	})
	c := NewClient(ClientConfig{Endpoint: srv.URL, Token: "secret", RequestTimeout: 50 * time.Millisecond}, zaptest.NewLogger(t))
	defer c.Close()
	ctx := context.Background()
	require.NoError(t, c.Login(ctx))

	_, err := c.Call(ctx, "readLists", nil)
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))
}

func TestClient_HTTPError(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.on("readLists", func(string) (int, string) {
		return http.StatusBadGateway, "<html>bad gateway</html>"
	})
	c := newTestClient(t, srv.URL)
	ctx := context.Background()
	require.NoError(t, c.Login(ctx))

	_, err := c.Call(ctx, "readLists", nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
	assert.Contains(t, err.Error(), "502")
}

func TestClient_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := newTestClient(t, url)
	err := c.Login(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeAuthentication))
}
