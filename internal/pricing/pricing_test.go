package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedSourceDeterministic(t *testing.T) {
	now := func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	src := &SimulatedSource{now: now}

	a, err := src.Fetch(context.Background(), "Sony WH-1000XM4")
	require.NoError(t, err)
	b, err := src.Fetch(context.Background(), "Sony WH-1000XM4")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	other, err := src.Fetch(context.Background(), "Nintendo Switch")
	require.NoError(t, err)
	assert.NotEqual(t, a, other)
}

func TestSimulatedSourceSeries(t *testing.T) {
	now := func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	src := &SimulatedSource{now: now}

	points, err := src.Fetch(context.Background(), "vintage lamp")
	require.NoError(t, err)
	require.Len(t, points, simulatedWindowDays)

	for i, p := range points {
		assert.GreaterOrEqual(t, p.Price, 5.0, "price floor at index %d", i)
		if i > 0 {
			assert.True(t, p.Date.After(points[i-1].Date), "dates must ascend")
		}
	}
	// The series ends at the current day.
	assert.Equal(t, now().Truncate(24*time.Hour), points[len(points)-1].Date)
}

type countingSource struct {
	calls  int
	points []PricePoint
}

func (c *countingSource) Fetch(_ context.Context, _ string) ([]PricePoint, error) {
	c.calls++
	return c.points, nil
}

func TestFetcherSilentSkip(t *testing.T) {
	src := &countingSource{points: []PricePoint{{Price: 10}}}
	f := NewFetcher(src)

	points, err := f.Fetch(context.Background(), "", "ebay-key")
	assert.NoError(t, err)
	assert.Nil(t, points)

	points, err = f.Fetch(context.Background(), "lamp", "")
	assert.NoError(t, err)
	assert.Nil(t, points)

	assert.Zero(t, src.calls, "source must not be called without item name and key")
}

func TestFetcherCaches(t *testing.T) {
	src := &countingSource{points: []PricePoint{
		{Date: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), Price: 42.5},
	}}
	f := NewFetcher(src)

	first, err := f.Fetch(context.Background(), "lamp", "ebay-key")
	require.NoError(t, err)
	second, err := f.Fetch(context.Background(), "lamp", "ebay-key")
	require.NoError(t, err)

	assert.Equal(t, 1, src.calls)
	assert.Equal(t, first, second)

	// A different item misses the cache.
	_, err = f.Fetch(context.Background(), "chair", "ebay-key")
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestSummarize(t *testing.T) {
	points := []PricePoint{
		{Price: 10},
		{Price: 30},
		{Price: 20},
	}
	s := Summarize(points)
	assert.Equal(t, 10.0, s.Min)
	assert.Equal(t, 30.0, s.Max)
	assert.Equal(t, 20.0, s.Average)
	assert.Equal(t, 3, s.Count)

	empty := Summarize(nil)
	assert.Zero(t, empty.Count)
	assert.Zero(t, empty.Min)
}
