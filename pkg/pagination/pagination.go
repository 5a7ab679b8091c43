// Package pagination walks cursor-paginated MCP list results.
//
// MCP list methods return a page of items and an opaque nextCursor. An
// empty cursor ends the listing. Collector follows the cursor chain for a
// caller-supplied fetch function and guards against providers that never
// stop paging.
package pagination

import (
	"context"
	"errors"
	"fmt"
)

// DefaultMaxPages bounds how many pages a single listing may span.
const DefaultMaxPages = 100

var (
	// ErrTooManyPages is returned when the page limit is reached while the
	// provider still reports a next cursor.
	ErrTooManyPages = errors.New("pagination exceeded page limit")

	// ErrRepeatedCursor is returned when a provider hands back a cursor it
	// already returned, which would loop forever.
	ErrRepeatedCursor = errors.New("pagination cursor repeated")
)

// FetchFunc fetches the page that starts at cursor. An empty cursor asks
// for the first page. It returns the page's items and the cursor of the
// next page, or "" when there are no more pages.
type FetchFunc[T any] func(ctx context.Context, cursor string) (items []T, nextCursor string, err error)

// Collector accumulates the items of a cursor-paginated listing.
type Collector[T any] struct {
	// MaxPages bounds the number of fetches. Zero means DefaultMaxPages.
	MaxPages int

	// Pages is the number of pages fetched so far.
	Pages int
	// NextCursor is the cursor of the next page, empty when done.
	NextCursor string

	seen map[string]struct{}
}

// NewCollector creates a collector with the given page bound.
func NewCollector[T any](maxPages int) *Collector[T] {
	return &Collector[T]{MaxPages: maxPages}
}

// Collect fetches every page and returns all items in order. On error the
// items gathered so far are returned alongside it.
func (c *Collector[T]) Collect(ctx context.Context, fetch FetchFunc[T]) ([]T, error) {
	maxPages := c.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	if c.seen == nil {
		c.seen = make(map[string]struct{})
	}

	var all []T
	for {
		if err := ctx.Err(); err != nil {
			return all, err
		}
		if c.Pages >= maxPages {
			return all, fmt.Errorf("%w: %d pages", ErrTooManyPages, maxPages)
		}

		items, next, err := fetch(ctx, c.NextCursor)
		if err != nil {
			return all, err
		}
		c.Pages++
		all = append(all, items...)

		if next == "" {
			c.NextCursor = ""
			return all, nil
		}
		if _, dup := c.seen[next]; dup {
			return all, fmt.Errorf("%w: %q", ErrRepeatedCursor, next)
		}
		c.seen[next] = struct{}{}
		c.NextCursor = next
	}
}

// CollectAll is shorthand for NewCollector(maxPages).Collect(ctx, fetch).
func CollectAll[T any](ctx context.Context, maxPages int, fetch FetchFunc[T]) ([]T, error) {
	return NewCollector[T](maxPages).Collect(ctx, fetch)
}
