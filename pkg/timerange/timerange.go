package timerange

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	errs "heliodata/pkg/errors"
)

// Granularity is the unit used to chunk a global span into sub-ranges
type Granularity string

const (
	Year  Granularity = "year"
	Month Granularity = "month"
)

// TimeLayout is the timestamp format accepted on the command line and
// used in sample keys.
const TimeLayout = "2006-01-02T15:04:05"

// fileLayout drops the colons so sample timestamps are safe in file names
const fileLayout = "2006-01-02T150405"

// ParseGranularity converts a user-supplied interval name
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(strings.ToLower(strings.TrimSpace(s))) {
	case Year:
		return Year, nil
	case Month:
		return Month, nil
	default:
		return "", fmt.Errorf("interval must be 'year' or 'month', got %q", s)
	}
}

// TimeRange is a half-open interval [Start, End)
type TimeRange struct {
	Start       time.Time
	End         time.Time
	Granularity Granularity
}

// Duration returns End - Start
func (tr TimeRange) Duration() time.Duration {
	return tr.End.Sub(tr.Start)
}

// Contains reports whether t falls in [Start, End)
func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.Start) && t.Before(tr.End)
}

// Label is the directory component for the range: YYYY or YYYY/MM
func (tr TimeRange) Label() string {
	if tr.Granularity == Month {
		return filepath.Join(fmt.Sprintf("%04d", tr.Start.Year()), fmt.Sprintf("%02d", int(tr.Start.Month())))
	}
	return fmt.Sprintf("%04d", tr.Start.Year())
}

// Key is the ledger key for the whole range: YYYY or YYYY-MM
func (tr TimeRange) Key() string {
	if tr.Granularity == Month {
		return tr.Start.Format("2006-01")
	}
	return tr.Start.Format("2006")
}

func (tr TimeRange) String() string {
	return fmt.Sprintf("[%s, %s)", tr.Start.Format(TimeLayout), tr.End.Format(TimeLayout))
}

// Partition splits [start, end) into calendar years or months. The first
// and last ranges are clipped to the bounds. start == end yields an empty
// slice; start after end is an InvalidRange error.
func Partition(start, end time.Time, g Granularity) ([]TimeRange, error) {
	if g != Year && g != Month {
		return nil, errs.InvalidRange("unknown granularity %q", g)
	}
	if start.After(end) {
		return nil, errs.InvalidRange("start %s is after end %s", start.Format(TimeLayout), end.Format(TimeLayout))
	}

	var ranges []TimeRange
	for cur := start; cur.Before(end); {
		next := nextBoundary(cur, g)
		if next.After(end) {
			next = end
		}
		ranges = append(ranges, TimeRange{Start: cur, End: next, Granularity: g})
		cur = next
	}
	return ranges, nil
}

// nextBoundary returns the first calendar boundary strictly after t
func nextBoundary(t time.Time, g Granularity) time.Time {
	loc := t.Location()
	if g == Year {
		return time.Date(t.Year()+1, time.January, 1, 0, 0, 0, 0, loc)
	}
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, loc)
}

// YearBounds converts an inclusive year span into [start, end) bounds
func YearBounds(startYear, endYear int) (time.Time, time.Time, error) {
	if startYear > endYear {
		return time.Time{}, time.Time{}, errs.InvalidRange("start year %d is after end year %d", startYear, endYear)
	}
	start := time.Date(startYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(endYear+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	return start, end, nil
}

// Samples returns start, start+cadence, ... strictly before End
func Samples(tr TimeRange, cadence time.Duration) ([]time.Time, error) {
	if cadence <= 0 {
		return nil, fmt.Errorf("cadence must be positive, got %s", cadence)
	}
	var out []time.Time
	for t := tr.Start; t.Before(tr.End); t = t.Add(cadence) {
		out = append(out, t)
	}
	return out, nil
}

// SampleKey is the ledger key for one sample of one product
func SampleKey(product string, t time.Time) string {
	return product + "@" + t.UTC().Format(TimeLayout)
}

// ParseSampleKey splits a key produced by SampleKey
func ParseSampleKey(key string) (string, time.Time, error) {
	i := strings.LastIndex(key, "@")
	if i <= 0 {
		return "", time.Time{}, fmt.Errorf("malformed sample key %q", key)
	}
	t, err := time.ParseInLocation(TimeLayout, key[i+1:], time.UTC)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("malformed sample key %q: %w", key, err)
	}
	return key[:i], t, nil
}

// RangeOf returns the unclipped calendar range of granularity g holding t
func RangeOf(t time.Time, g Granularity) TimeRange {
	loc := t.Location()
	start := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, loc)
	if g == Month {
		start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	}
	return TimeRange{Start: start, End: nextBoundary(start, g), Granularity: g}
}

// RangeKey is the ledger key for a whole range of one product
func RangeKey(product string, tr TimeRange) string {
	return product + "@" + tr.Key()
}

// FileStem is the file-name form of a sample timestamp
func FileStem(t time.Time) string {
	return t.UTC().Format(fileLayout)
}

// ResultPath is root/product/label. It does not touch the filesystem.
func ResultPath(root, product string, tr TimeRange) string {
	return filepath.Join(root, filepath.FromSlash(product), tr.Label())
}

// ParseTime accepts TimeLayout, RFC3339 or a bare date, all as UTC
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{TimeLayout, time.RFC3339, "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errs.InvalidRange("cannot parse time %q", s)
}
