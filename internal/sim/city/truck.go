package city

import "math"

// Status is the truck lifecycle state.
type Status string

const (
	StatusIdle       Status = "IDLE"
	StatusMoving     Status = "MOVING"
	StatusServing    Status = "SERVING"
	StatusRestocking Status = "RESTOCKING"
)

// Truck is one vehicle of the fleet. Trucks are created at startup and
// mutated only by the world loop: by the per-tick state machine and by
// accepted agent actions at tick boundaries.
type Truck struct {
	ID     string
	Status Status

	CurrentZone     string
	DestinationZone string // set only while MOVING
	ArrivalTick     uint64 // valid while MOVING

	Inventory       int
	MaxInventory    int
	SpeedMultiplier float64

	TotalRevenue       float64
	RestockFixedFee    float64
	RestockPerUnitCost float64

	// RestockZone is the configured depot the truck returns to when it
	// runs dry on its own.
	RestockZone      string
	RestockUntilTick uint64 // valid while RESTOCKING

	// restockBound marks a MOVING leg that ends in a restock dwell rather
	// than service.
	restockBound bool
}

// travelTicks converts a zone-pair travel cost to whole ticks for this
// truck. Zero when from == to.
func (t *Truck) travelTicks(w *World, from, to string) uint64 {
	if from == to {
		return 0
	}
	cost := w.zoneByID[from].TravelCost[to]
	return uint64(math.Ceil(float64(cost) / t.SpeedMultiplier))
}

// advanceTruck moves the truck's state machine by exactly one tick.
// At most one structural transition happens per call.
func (w *World) advanceTruck(t *Truck, tick uint64) {
	switch t.Status {
	case StatusServing:
		if t.Inventory == 0 {
			// Sold out on a previous tick; head for the depot now.
			w.beginRestockReturn(t, tick)
			return
		}
		demand := w.zoneByID[t.CurrentZone].currentDemand
		sold := int(math.Floor(demand))
		if sold > t.Inventory {
			sold = t.Inventory
		}
		if sold > 0 {
			t.Inventory -= sold
			t.TotalRevenue += float64(sold) * w.cfg.UnitPrice
		}

	case StatusMoving:
		if tick < t.ArrivalTick {
			return
		}
		dest := t.DestinationZone
		t.CurrentZone = dest
		t.DestinationZone = ""
		switch {
		case t.restockBound:
			t.restockBound = false
			t.Status = StatusRestocking
			t.RestockUntilTick = tick + uint64(w.cfg.RestockTicks)
		case t.Inventory == 0:
			w.beginRestockReturn(t, tick)
		case w.zoneByID[dest].currentDemand > 0:
			t.Status = StatusServing
		default:
			t.Status = StatusIdle
		}

	case StatusRestocking:
		if tick < t.RestockUntilTick {
			return
		}
		// Refill and charge in one step; revenue may dip negative.
		units := t.MaxInventory - t.Inventory
		t.Inventory = t.MaxInventory
		t.TotalRevenue -= t.RestockFixedFee + t.RestockPerUnitCost*float64(units)
		t.RestockUntilTick = 0
		t.Status = StatusIdle

	case StatusIdle:
		if t.Inventory == 0 {
			w.beginRestockReturn(t, tick)
		}
	}
}

// beginRestockReturn sends an empty truck toward its depot, or starts the
// restock dwell immediately when it is already there.
func (w *World) beginRestockReturn(t *Truck, tick uint64) {
	if t.CurrentZone == t.RestockZone {
		t.Status = StatusRestocking
		t.RestockUntilTick = tick + uint64(w.cfg.RestockTicks)
		return
	}
	t.Status = StatusMoving
	t.DestinationZone = t.RestockZone
	t.ArrivalTick = tick + t.travelTicks(w, t.CurrentZone, t.RestockZone)
	t.restockBound = true
}
