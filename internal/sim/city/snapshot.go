package city

// Snapshot is an immutable copy of the world published once per tick.
// Field names are the wire schema; the stream, the read endpoint and the
// shared-state slot all carry this exact document.
type Snapshot struct {
	Tick        uint64          `json:"tick"`
	Day         int             `json:"day"`
	CurrentTime int             `json:"current_time"` // minutes into the day
	Zones       []ZoneSnapshot  `json:"zones"`
	Trucks      []TruckSnapshot `json:"trucks"`
}

type ZoneSnapshot struct {
	ID           string    `json:"id"`
	Demand       []float64 `json:"demand"` // bounded recent history, oldest first
	MaxOrders    float64   `json:"max_orders"`
	ParkingSpots int       `json:"num_of_parking_spots"`
	PeakHours    [][2]int  `json:"peak_hours"`
}

type TruckSnapshot struct {
	ID              string  `json:"id"`
	Status          Status  `json:"status"`
	CurrentZone     string  `json:"current_zone"`
	DestinationZone string  `json:"destination_zone,omitempty"`
	Inventory       int     `json:"inventory"`
	MaxInventory    int     `json:"max_inventory"`
	TotalRevenue    float64 `json:"total_revenue"`
	ArrivalTime     *uint64 `json:"arrival_time,omitempty"`
}

// exportSnapshot deep-copies the current state. Must run on the loop.
func (w *World) exportSnapshot(tick uint64) *Snapshot {
	s := &Snapshot{
		Tick:        tick,
		Day:         int(tick / uint64(w.cfg.DayTicks)),
		CurrentTime: int(tick % uint64(w.cfg.DayTicks)),
		Zones:       make([]ZoneSnapshot, 0, len(w.zones)),
		Trucks:      make([]TruckSnapshot, 0, len(w.trucks)),
	}
	for _, z := range w.zones {
		peaks := make([][2]int, 0, len(z.PeakHours))
		for _, p := range z.PeakHours {
			peaks = append(peaks, [2]int{p.Start, p.End})
		}
		s.Zones = append(s.Zones, ZoneSnapshot{
			ID:           z.ID,
			Demand:       z.History(),
			MaxOrders:    z.MaxOrders,
			ParkingSpots: z.ParkingCapacity,
			PeakHours:    peaks,
		})
	}
	for _, t := range w.trucks {
		ts := TruckSnapshot{
			ID:           t.ID,
			Status:       t.Status,
			CurrentZone:  t.CurrentZone,
			Inventory:    t.Inventory,
			MaxInventory: t.MaxInventory,
			TotalRevenue: t.TotalRevenue,
		}
		if t.Status == StatusMoving {
			ts.DestinationZone = t.DestinationZone
			arrival := t.ArrivalTick
			ts.ArrivalTime = &arrival
		}
		s.Trucks = append(s.Trucks, ts)
	}
	return s
}
