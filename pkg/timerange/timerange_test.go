package timerange

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "heliodata/pkg/errors"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPartitionMonthExample(t *testing.T) {
	ranges, err := Partition(date(2020, 1, 1), date(2020, 4, 15), Month)
	require.NoError(t, err)
	require.Len(t, ranges, 4)

	want := [][2]time.Time{
		{date(2020, 1, 1), date(2020, 2, 1)},
		{date(2020, 2, 1), date(2020, 3, 1)},
		{date(2020, 3, 1), date(2020, 4, 1)},
		{date(2020, 4, 1), date(2020, 4, 15)},
	}
	for i, w := range want {
		assert.True(t, ranges[i].Start.Equal(w[0]), "range %d start", i)
		assert.True(t, ranges[i].End.Equal(w[1]), "range %d end", i)
		assert.Equal(t, Month, ranges[i].Granularity)
	}
}

func TestPartitionYearClipping(t *testing.T) {
	start := time.Date(2019, 6, 15, 12, 0, 0, 0, time.UTC)
	end := time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)

	ranges, err := Partition(start, end, Year)
	require.NoError(t, err)
	require.Len(t, ranges, 3)

	assert.True(t, ranges[0].Start.Equal(start))
	assert.True(t, ranges[0].End.Equal(date(2020, 1, 1)))
	assert.True(t, ranges[1].Start.Equal(date(2020, 1, 1)))
	assert.True(t, ranges[1].End.Equal(date(2021, 1, 1)))
	assert.True(t, ranges[2].End.Equal(end))
}

func TestPartitionEmptyAndInvalid(t *testing.T) {
	t0 := date(2022, 5, 5)

	ranges, err := Partition(t0, t0, Year)
	require.NoError(t, err)
	assert.Empty(t, ranges)

	_, err = Partition(t0.Add(time.Hour), t0, Month)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrInvalidRange))

	_, err = Partition(t0, t0.Add(time.Hour), Granularity("week"))
	assert.True(t, errors.Is(err, errs.ErrInvalidRange))
}

func TestPartitionCoversSpan(t *testing.T) {
	spans := []struct {
		start, end time.Time
	}{
		{date(2010, 1, 1), date(2025, 1, 1)},
		{time.Date(2011, 2, 28, 23, 0, 0, 0, time.UTC), date(2011, 3, 1)},
		{date(2016, 2, 1), date(2016, 3, 1)},
		{time.Date(2012, 12, 31, 6, 30, 0, 0, time.UTC), time.Date(2014, 7, 9, 18, 0, 0, 0, time.UTC)},
	}

	for _, g := range []Granularity{Year, Month} {
		for _, s := range spans {
			ranges, err := Partition(s.start, s.end, g)
			require.NoError(t, err)
			require.NotEmpty(t, ranges)

			assert.True(t, ranges[0].Start.Equal(s.start))
			assert.True(t, ranges[len(ranges)-1].End.Equal(s.end))

			var total time.Duration
			for i, r := range ranges {
				assert.True(t, r.Start.Before(r.End), "empty range at %d", i)
				if i > 0 {
					assert.True(t, ranges[i-1].End.Equal(r.Start), "gap or overlap at %d", i)
				}
				total += r.Duration()
			}
			assert.Equal(t, s.end.Sub(s.start), total)

			again, err := Partition(s.start, s.end, g)
			require.NoError(t, err)
			assert.Equal(t, ranges, again)
		}
	}
}

func TestLabelsAndKeys(t *testing.T) {
	month := TimeRange{Start: date(2020, 3, 1), End: date(2020, 4, 1), Granularity: Month}
	year := TimeRange{Start: date(2020, 1, 1), End: date(2021, 1, 1), Granularity: Year}

	assert.Equal(t, filepath.Join("2020", "03"), month.Label())
	assert.Equal(t, "2020-03", month.Key())
	assert.Equal(t, "2020", year.Label())
	assert.Equal(t, "2020", year.Key())

	assert.Equal(t, filepath.Join("/data", "171", "2020", "03"), ResultPath("/data", "171", month))
	assert.Equal(t, ResultPath("/data", "171", month), ResultPath("/data", "171", month))
	assert.Equal(t, "171@2020-03", RangeKey("171", month))
}

func TestSamples(t *testing.T) {
	tr := TimeRange{Start: date(2020, 1, 1), End: date(2020, 1, 3), Granularity: Month}

	samples, err := Samples(tr, 12*time.Hour)
	require.NoError(t, err)
	require.Len(t, samples, 4)
	assert.True(t, samples[3].Equal(time.Date(2020, 1, 2, 12, 0, 0, 0, time.UTC)))

	assert.Equal(t, "171@2020-01-02T12:00:00", SampleKey("171", samples[3]))
	assert.Equal(t, "2020-01-02T120000", FileStem(samples[3]))

	_, err = Samples(tr, 0)
	assert.Error(t, err)
}

func TestParseHelpers(t *testing.T) {
	g, err := ParseGranularity(" Month ")
	require.NoError(t, err)
	assert.Equal(t, Month, g)

	_, err = ParseGranularity("week")
	assert.Error(t, err)

	ts, err := ParseTime("2021-01-01T06:00:00")
	require.NoError(t, err)
	assert.Equal(t, 6, ts.Hour())

	ts, err = ParseTime("2021-01-01")
	require.NoError(t, err)
	assert.True(t, ts.Equal(date(2021, 1, 1)))

	_, err = ParseTime("yesterday")
	assert.True(t, errors.Is(err, errs.ErrInvalidRange))

	start, end, err := YearBounds(2010, 2012)
	require.NoError(t, err)
	assert.True(t, start.Equal(date(2010, 1, 1)))
	assert.True(t, end.Equal(date(2013, 1, 1)))

	_, _, err = YearBounds(2013, 2012)
	assert.True(t, errors.Is(err, errs.ErrInvalidRange))
}

func TestParseSampleKeyAndRangeOf(t *testing.T) {
	ts := time.Date(2014, 9, 30, 6, 0, 0, 0, time.UTC)

	product, got, err := ParseSampleKey(SampleKey("b/171", ts))
	require.NoError(t, err)
	assert.Equal(t, "b/171", product)
	assert.True(t, got.Equal(ts))

	_, _, err = ParseSampleKey("0171")
	assert.Error(t, err)
	_, _, err = ParseSampleKey("0171@2014-09")
	assert.Error(t, err)

	month := RangeOf(ts, Month)
	assert.Equal(t, "b/171@2014-09", RangeKey("b/171", month))
	assert.True(t, month.End.Equal(date(2014, 10, 1)))
	assert.True(t, month.Contains(ts))

	year := RangeOf(ts, Year)
	assert.Equal(t, "2014", year.Key())
	assert.True(t, year.Start.Equal(date(2014, 1, 1)))
}
