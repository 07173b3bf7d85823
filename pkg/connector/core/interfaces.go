// Package core defines the contracts between the sync engine and the remote
// source it reads from, and between the engine and the message sink it writes
// to.
package core

import (
	"context"

	"github.com/ajitpratap0/bronto-tap/pkg/catalog"
	"github.com/ajitpratap0/bronto-tap/pkg/models"
	"github.com/ajitpratap0/bronto-tap/pkg/state"
	"github.com/ajitpratap0/bronto-tap/pkg/window"
)

// Session opens or refreshes an authenticated session with the remote API.
// Login is called before every page request and must be cheap when the
// current session is still valid.
type Session interface {
	Login(ctx context.Context) error
}

// Pagination is how a stream moves between pages of one window.
type Pagination int

const (
	// PaginationNumbered requests page 1, 2, 3, ... until an empty page.
	PaginationNumbered Pagination = iota
	// PaginationDirectional requests FIRST, then NEXT until the remote
	// signals there is nothing left.
	PaginationDirectional
)

func (p Pagination) String() string {
	switch p {
	case PaginationNumbered:
		return "numbered"
	case PaginationDirectional:
		return "directional"
	default:
		return "unknown"
	}
}

// Direction of a directional read.
type Direction string

const (
	DirectionFirst Direction = "FIRST"
	DirectionNext  Direction = "NEXT"
)

// Cursor locates one page within a window. It is only meaningful for the
// window it was created for.
type Cursor struct {
	Page      int
	Direction Direction
}

// FirstCursor returns the cursor of the first page of a window.
func FirstCursor(p Pagination) Cursor {
	if p == PaginationDirectional {
		return Cursor{Page: 1, Direction: DirectionFirst}
	}
	return Cursor{Page: 1}
}

// Next returns the cursor of the following page.
func (c Cursor) Next() Cursor {
	next := Cursor{Page: c.Page + 1}
	if c.Direction != "" {
		next.Direction = DirectionNext
	}
	return next
}

// Outcome classifies a page response.
type Outcome int

const (
	// OutcomePage carries records. An empty page ends the window.
	OutcomePage Outcome = iota
	// OutcomeEndOfWindow is the remote's explicit "no more results" signal.
	OutcomeEndOfWindow
)

// PageResult is one page response.
type PageResult struct {
	Outcome Outcome
	Records []*models.Record
}

// Page wraps records into a page result.
func Page(records []*models.Record) PageResult {
	return PageResult{Outcome: OutcomePage, Records: records}
}

// EndOfWindow is the result of a read past the last page.
func EndOfWindow() PageResult {
	return PageResult{Outcome: OutcomeEndOfWindow}
}

// Done reports whether the window has no further pages.
func (r PageResult) Done() bool {
	return r.Outcome == OutcomeEndOfWindow || len(r.Records) == 0
}

// QueryFunc reads one page of a window. Unwindowed streams receive the zero
// Window. Errors are real failures: the end of data is reported through the
// result, never as an error.
type QueryFunc func(ctx context.Context, w window.Window, c Cursor) (PageResult, error)

// Sink receives the message stream.
type Sink interface {
	WriteSchema(stream string, schema *catalog.Schema, keyProperties, bookmarkProperties []string) error
	WriteRecord(stream string, record *models.Record) error
	WriteState(b state.Bookmarks) error
}

// StateSaver persists bookmarks after each completed window.
type StateSaver interface {
	Save(ctx context.Context, b state.Bookmarks) error
}
