package city

import (
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// noiseFraction bounds the pseudo-random perturbation to ±10% of the
// base signal, so demand never goes negative.
const noiseFraction = 0.10

// DemandModel computes the time-of-day demand signal for a zone.
// It is a pure function of (zone, tick) for a fixed seed; callers persist
// the result into the zone's history.
type DemandModel struct {
	noise    opensimplex.Noise
	dayTicks int
	zoneIdx  map[string]int
}

func NewDemandModel(seed int64, dayTicks int, zoneIDs []string) *DemandModel {
	idx := make(map[string]int, len(zoneIDs))
	for i, id := range zoneIDs {
		idx[id] = i
	}
	return &DemandModel{
		noise:    opensimplex.New(seed),
		dayTicks: dayTicks,
		zoneIdx:  idx,
	}
}

// DemandAt returns the nonnegative demand signal for the zone at the given
// tick. The signal depends only on the minute of day, so minute 0 of day
// N+1 equals minute 0 of day N under the same seed.
func (m *DemandModel) DemandAt(z *Zone, tick uint64) float64 {
	minute := int(tick % uint64(m.dayTicks))

	signal := z.MaxOrders * z.BaseMultiplier
	amp := z.MaxOrders * (z.PeakMultiplier - z.BaseMultiplier)
	for _, w := range z.PeakHours {
		center := float64(w.Start+w.End) / 2
		sigma := float64(w.End-w.Start) / 4
		if sigma < 30 {
			sigma = 30
		}
		d := m.ringDistance(float64(minute), center)
		signal += amp * math.Exp(-(d*d)/(2*sigma*sigma))
	}

	// Smooth bounded noise over (zone, minute-of-day). Eval2 is in [-1, 1].
	n := m.noise.Eval2(float64(m.zoneIdx[z.ID])*17.31, float64(minute)*0.05)
	signal *= 1 + noiseFraction*n
	if signal < 0 {
		return 0
	}
	return signal
}

// ringDistance measures minute distance on the circular day.
func (m *DemandModel) ringDistance(a, b float64) float64 {
	d := math.Abs(a - b)
	if day := float64(m.dayTicks); d > day/2 {
		d = day - d
	}
	return d
}
