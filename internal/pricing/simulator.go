package pricing

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"time"
)

const simulatedWindowDays = 90

// SimulatedSource produces a plausible-looking random walk over the last
// 90 days. The walk is seeded from the item name so the same item always
// shows the same series.
type SimulatedSource struct {
	now func() time.Time
}

// NewSimulatedSource creates the default simulated price source.
func NewSimulatedSource() *SimulatedSource {
	return &SimulatedSource{now: time.Now}
}

// Fetch implements Source. It never fails; the error return exists only
// to satisfy the interface a real provider would need.
func (s *SimulatedSource) Fetch(_ context.Context, itemName string) ([]PricePoint, error) {
	h := fnv.New64a()
	h.Write([]byte(itemName))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	// Base price between $20 and $420, drifting up to ±3% per day
	price := 20 + rng.Float64()*400
	end := s.now().Truncate(24 * time.Hour)

	points := make([]PricePoint, 0, simulatedWindowDays)
	for i := simulatedWindowDays - 1; i >= 0; i-- {
		step := 1 + (rng.Float64()*2-1)*0.03
		price = math.Max(5, price*step)
		points = append(points, PricePoint{
			Date:  end.AddDate(0, 0, -i),
			Price: round2(price),
		})
	}
	return points, nil
}
