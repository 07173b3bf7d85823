package base

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/bronto-tap/pkg/connector/core"
	"github.com/ajitpratap0/bronto-tap/pkg/errors"
	"github.com/ajitpratap0/bronto-tap/pkg/models"
	"github.com/ajitpratap0/bronto-tap/pkg/window"
)

type countingSession struct {
	logins int
	err    error
}

func (s *countingSession) Login(context.Context) error {
	s.logins++
	return s.err
}

type step struct {
	result core.PageResult
	err    error
}

// scriptedQuery replays steps in order and records the cursors it was given.
type scriptedQuery struct {
	steps   []step
	cursors []core.Cursor
}

func (q *scriptedQuery) fn(_ context.Context, _ window.Window, c core.Cursor) (core.PageResult, error) {
	q.cursors = append(q.cursors, c)
	if len(q.cursors) > len(q.steps) {
		return core.Page(nil), nil
	}
	s := q.steps[len(q.cursors)-1]
	return s.result, s.err
}

func records(ids ...string) []*models.Record {
	out := make([]*models.Record, len(ids))
	for i, id := range ids {
		out[i] = models.NewRecord().Set("id", id)
	}
	return out
}

func ids(batch []*models.Record) []string {
	out := make([]string, len(batch))
	for i, r := range batch {
		v, _ := r.Get("id")
		out[i] = v.(string)
	}
	return out
}

var testWindow = window.Window{
	Start: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2020, 1, 1, 6, 0, 0, 0, time.UTC),
}

func collect(t *testing.T, pages *Pages) [][]string {
	t.Helper()
	var out [][]string
	for pages.Next() {
		out = append(out, ids(pages.Records()))
	}
	return out
}

func fastRetry() *RetryPolicy {
	return NewRetryPolicy(5, 0)
}

func TestPages_NumberedUntilEmptyPage(t *testing.T) {
	session := &countingSession{}
	q := &scriptedQuery{steps: []step{
		{result: core.Page(records("a", "b"))},
		{result: core.Page(records("c"))},
		{result: core.Page(nil)},
	}}

	it := NewPageIterator("contact", session, q.fn, core.PaginationNumbered, fastRetry(), zaptest.NewLogger(t))
	pages := it.Pages(context.Background(), testWindow)

	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, collect(t, pages))
	require.NoError(t, pages.Err())
	assert.Equal(t, 2, pages.Fetched())
	assert.Equal(t, []core.Cursor{{Page: 1}, {Page: 2}, {Page: 3}}, q.cursors)
	assert.Equal(t, 3, session.logins, "login before every page request")
	assert.False(t, pages.Next(), "exhausted iterator stays exhausted")
	assert.Len(t, q.cursors, 3)
}

func TestPages_DirectionalEndOfWindow(t *testing.T) {
	q := &scriptedQuery{steps: []step{
		{result: core.Page(records("a", "b", "c"))},
		{result: core.EndOfWindow()},
	}}

	it := NewPageIterator("outbound_activity", nil, q.fn, core.PaginationDirectional, fastRetry(), zaptest.NewLogger(t))
	pages := it.Pages(context.Background(), testWindow)

	assert.Equal(t, [][]string{{"a", "b", "c"}}, collect(t, pages))
	require.NoError(t, pages.Err())
	assert.Equal(t, []core.Cursor{
		{Page: 1, Direction: core.DirectionFirst},
		{Page: 2, Direction: core.DirectionNext},
	}, q.cursors)
}

func TestPages_RetriesTimeoutOnSamePage(t *testing.T) {
	session := &countingSession{}
	timeout := errors.New(errors.ErrorTypeTimeout, "socket timeout")
	q := &scriptedQuery{steps: []step{
		{result: core.Page(records("a"))},
		{err: timeout},
		{err: timeout},
		{result: core.Page(records("b"))},
		{result: core.Page(nil)},
	}}

	it := NewPageIterator("contact", session, q.fn, core.PaginationNumbered, fastRetry(), zaptest.NewLogger(t))
	pages := it.Pages(context.Background(), testWindow)

	assert.Equal(t, [][]string{{"a"}, {"b"}}, collect(t, pages))
	require.NoError(t, pages.Err())
	assert.Equal(t, []int{1, 2, 2, 2, 3}, pageNumbers(q.cursors))
	assert.Equal(t, 5, session.logins)
}

func TestPages_ExpiredSessionLogsInAndRepeatsPage(t *testing.T) {
	session := &countingSession{}
	expired := errors.New(errors.ErrorTypeSessionExpired, "106: Session has expired")
	q := &scriptedQuery{steps: []step{
		{result: core.Page(records("a"))},
		{err: expired},
		{result: core.Page(records("b"))},
		{result: core.Page(nil)},
	}}

	it := NewPageIterator("contact", session, q.fn, core.PaginationNumbered, fastRetry(), zaptest.NewLogger(t))
	pages := it.Pages(context.Background(), testWindow)

	assert.Equal(t, [][]string{{"a"}, {"b"}}, collect(t, pages))
	require.NoError(t, pages.Err())
	assert.Equal(t, []int{1, 2, 2, 3}, pageNumbers(q.cursors))
	assert.Equal(t, 4, session.logins, "login again before repeating the rejected page")
}

func TestPages_TimeoutExhaustion(t *testing.T) {
	timeout := errors.New(errors.ErrorTypeTimeout, "socket timeout")
	q := &scriptedQuery{steps: []step{
		{result: core.Page(records("a"))},
		{err: timeout}, {err: timeout}, {err: timeout}, {err: timeout}, {err: timeout},
		{result: core.Page(records("never"))},
	}}

	it := NewPageIterator("contact", nil, q.fn, core.PaginationNumbered, fastRetry(), zaptest.NewLogger(t))
	pages := it.Pages(context.Background(), testWindow)

	assert.Equal(t, [][]string{{"a"}}, collect(t, pages))
	err := pages.Err()
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTimeout))
	assert.False(t, errors.IsFatal(err))
	assert.Len(t, q.cursors, 6)
}

func TestPages_OtherFaultIsNotRetried(t *testing.T) {
	fault := errors.New(errors.ErrorTypeRemoteFault, "117: invalid filter")
	q := &scriptedQuery{steps: []step{{err: fault}}}

	it := NewPageIterator("contact", nil, q.fn, core.PaginationDirectional, fastRetry(), zaptest.NewLogger(t))
	pages := it.Pages(context.Background(), testWindow)

	assert.False(t, pages.Next())
	assert.Same(t, fault, pages.Err())
	assert.Len(t, q.cursors, 1)
}

func TestPages_LoginFailureIsFatal(t *testing.T) {
	session := &countingSession{err: errors.New(errors.ErrorTypeRemoteFault, "103: authentication failed")}
	q := &scriptedQuery{steps: []step{{result: core.Page(records("a"))}}}

	it := NewPageIterator("contact", session, q.fn, core.PaginationNumbered, fastRetry(), zaptest.NewLogger(t))
	pages := it.Pages(context.Background(), testWindow)

	assert.False(t, pages.Next())
	assert.True(t, errors.IsFatal(pages.Err()))
	assert.Empty(t, q.cursors, "no query without a session")
	assert.Equal(t, 1, session.logins)
}

func TestPages_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	q := &scriptedQuery{}
	it := NewPageIterator("contact", nil, q.fn, core.PaginationNumbered, fastRetry(), zaptest.NewLogger(t))
	pages := it.Pages(ctx, testWindow)

	assert.False(t, pages.Next())
	assert.ErrorIs(t, pages.Err(), context.Canceled)
	assert.Empty(t, q.cursors)
}

func pageNumbers(cursors []core.Cursor) []int {
	out := make([]int, len(cursors))
	for i, c := range cursors {
		out[i] = c.Page
	}
	return out
}
