package city

// PeakWindow is a half-open [Start, End) range of minutes into the day.
type PeakWindow struct {
	Start int
	End   int
}

// Zone is a named area with its own demand curve, parking capacity and
// pairwise travel costs. Zones are created once at startup and never
// deleted during a run.
type Zone struct {
	ID              string
	BaseMultiplier  float64
	PeakMultiplier  float64
	PeakHours       []PeakWindow
	MaxOrders       float64
	ParkingCapacity int
	TravelCost      map[string]int // minutes to every other zone

	// currentDemand is the value computed for the tick being processed.
	// Owned by the world loop, like everything else on this struct.
	currentDemand float64

	history []float64
}

func (z *Zone) appendDemand(v float64, cap int) {
	z.currentDemand = v
	z.history = append(z.history, v)
	if len(z.history) > cap {
		// Evict oldest-first.
		z.history = z.history[len(z.history)-cap:]
	}
}

// History returns a copy of the bounded recent demand values, oldest first.
func (z *Zone) History() []float64 {
	out := make([]float64, len(z.history))
	copy(out, z.history)
	return out
}
