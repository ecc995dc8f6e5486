package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const defaultReadTimeout = 5 * time.Second

// ErrEmpty is returned when storage answered but holds no venues.
var ErrEmpty = errors.New("venue catalog is empty")

// Source is the storage query that returns every venue row.
type Source interface {
	ListVenues(ctx context.Context) ([]Venue, error)
}

// Reader fetches the full venue set under its own short deadline.
type Reader struct {
	source  Source
	timeout time.Duration
}

// NewReader creates a Reader. If timeout <= 0, it defaults to 5s.
func NewReader(source Source, timeout time.Duration) *Reader {
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}
	return &Reader{source: source, timeout: timeout}
}

// Fetch reads the catalog. The read is bounded by the reader's timeout and by
// any earlier deadline already on ctx.
func (r *Reader) Fetch(ctx context.Context) (*Catalog, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	venues, err := r.source.ListVenues(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing venues: %w", err)
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("listing venues: %w", ctx.Err())
	}
	c := New(venues)
	if c.Len() == 0 {
		return nil, ErrEmpty
	}
	return c, nil
}
