package archive

import (
	"context"
	"time"

	"heliodata/pkg/timerange"
)

// Request identifies one sample of one product to fetch
type Request struct {
	Mission string
	Product string
	// Time is the nominal sample time
	Time time.Time
	// Range is the partition the sample belongs to
	Range timerange.TimeRange
	// Margin bounds how far from Time the archive may search
	Margin time.Duration
	// Identity is passed opaquely to the archive (e-mail, token, ...)
	Identity string
}

// Fetcher retrieves one sample into a local temporary file and returns its
// path. A sample the archive does not hold is reported with an error
// matching errors.ErrNotAvailable.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (string, error)
}

// FetcherFunc adapts a function to the Fetcher interface
type FetcherFunc func(ctx context.Context, req Request) (string, error)

// Fetch calls f(ctx, req)
func (f FetcherFunc) Fetch(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
