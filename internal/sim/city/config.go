package city

import (
	"fmt"
	"time"
)

// Config is the static simulation configuration, read once at startup.
// Validation failures here are the only fatal error class.
type Config struct {
	ID string

	TickPeriod   time.Duration
	DayTicks     int
	RestockTicks int
	HistoryCap   int
	Seed         int64
	UnitPrice    float64

	Zones  []ZoneConfig
	Trucks []TruckConfig
}

type ZoneConfig struct {
	ID              string
	BaseMultiplier  float64
	PeakMultiplier  float64
	PeakHours       []PeakWindow
	MaxOrders       float64
	ParkingCapacity int
	TravelCost      map[string]int
}

type TruckConfig struct {
	ID                 string
	StartZone          string
	Inventory          int
	MaxInventory       int
	SpeedMultiplier    float64
	RestockFixedFee    float64
	RestockPerUnitCost float64
	RestockZone        string
}

func (c *Config) Validate() error {
	if c.TickPeriod <= 0 {
		return fmt.Errorf("tick period must be positive, got %v", c.TickPeriod)
	}
	if c.DayTicks <= 0 {
		return fmt.Errorf("day length must be positive, got %d ticks", c.DayTicks)
	}
	if c.RestockTicks < 0 {
		return fmt.Errorf("restock ticks must be nonnegative, got %d", c.RestockTicks)
	}
	if c.HistoryCap <= 0 {
		return fmt.Errorf("history cap must be positive, got %d", c.HistoryCap)
	}
	if len(c.Zones) == 0 {
		return fmt.Errorf("at least one zone is required")
	}

	zoneIDs := map[string]bool{}
	for _, z := range c.Zones {
		if z.ID == "" {
			return fmt.Errorf("zone with empty id")
		}
		if zoneIDs[z.ID] {
			return fmt.Errorf("duplicate zone id %q", z.ID)
		}
		zoneIDs[z.ID] = true
	}

	for _, z := range c.Zones {
		if z.BaseMultiplier > z.PeakMultiplier {
			return fmt.Errorf("zone %s: base multiplier %v exceeds peak %v", z.ID, z.BaseMultiplier, z.PeakMultiplier)
		}
		if z.MaxOrders < 0 {
			return fmt.Errorf("zone %s: negative max orders", z.ID)
		}
		if z.ParkingCapacity < 0 {
			return fmt.Errorf("zone %s: negative parking capacity", z.ID)
		}
		for _, w := range z.PeakHours {
			if w.Start < 0 || w.End > c.DayTicks || w.Start >= w.End {
				return fmt.Errorf("zone %s: bad peak window [%d, %d)", z.ID, w.Start, w.End)
			}
		}
		for other, cost := range z.TravelCost {
			if !zoneIDs[other] {
				return fmt.Errorf("zone %s: travel cost references unknown zone %q", z.ID, other)
			}
			if cost <= 0 {
				return fmt.Errorf("zone %s -> %s: travel cost must be positive, got %d", z.ID, other, cost)
			}
		}
	}

	// The matrix must be symmetric and defined for every pair.
	for _, a := range c.Zones {
		for _, b := range c.Zones {
			if a.ID == b.ID {
				continue
			}
			ab, ok := a.TravelCost[b.ID]
			if !ok {
				return fmt.Errorf("travel cost %s -> %s is undefined", a.ID, b.ID)
			}
			ba, ok := b.TravelCost[a.ID]
			if !ok {
				return fmt.Errorf("travel cost %s -> %s is undefined", b.ID, a.ID)
			}
			if ab != ba {
				return fmt.Errorf("travel cost %s <-> %s is asymmetric: %d vs %d", a.ID, b.ID, ab, ba)
			}
		}
	}

	truckIDs := map[string]bool{}
	for _, t := range c.Trucks {
		if t.ID == "" {
			return fmt.Errorf("truck with empty id")
		}
		if truckIDs[t.ID] {
			return fmt.Errorf("duplicate truck id %q", t.ID)
		}
		truckIDs[t.ID] = true
		if !zoneIDs[t.StartZone] {
			return fmt.Errorf("truck %s: unknown start zone %q", t.ID, t.StartZone)
		}
		if t.RestockZone != "" && !zoneIDs[t.RestockZone] {
			return fmt.Errorf("truck %s: unknown restock zone %q", t.ID, t.RestockZone)
		}
		if t.MaxInventory <= 0 {
			return fmt.Errorf("truck %s: max inventory must be positive, got %d", t.ID, t.MaxInventory)
		}
		if t.Inventory < 0 || t.Inventory > t.MaxInventory {
			return fmt.Errorf("truck %s: inventory %d outside [0, %d]", t.ID, t.Inventory, t.MaxInventory)
		}
		if t.SpeedMultiplier <= 0 {
			return fmt.Errorf("truck %s: speed multiplier must be positive, got %v", t.ID, t.SpeedMultiplier)
		}
	}
	return nil
}
