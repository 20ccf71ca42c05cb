// Package tuning loads the static city layout and simulation parameters.
// Everything here is read once at startup; there is no hot reload.
package tuning

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"fleetfeast.ai/internal/sim/city"
)

type Tuning struct {
	CityID string `yaml:"city_id"`

	TickPeriodMS  int   `yaml:"tick_period_ms"`
	AgentPeriodMS int   `yaml:"agent_period_ms"`
	DayTicks      int   `yaml:"day_ticks"`
	RestockTicks  int   `yaml:"restock_ticks"`
	HistoryCap    int   `yaml:"history_cap"`
	Seed          int64 `yaml:"seed"`

	UnitPrice float64 `yaml:"unit_price"`

	Zones  []ZoneSpec  `yaml:"zones"`
	Trucks []TruckSpec `yaml:"trucks"`
}

type ZoneSpec struct {
	ID             string         `yaml:"id"`
	BaseMultiplier float64        `yaml:"base_multiplier"`
	PeakMultiplier float64        `yaml:"peak_multiplier"`
	PeakHours      [][2]int       `yaml:"peak_hours"` // [startMinute, endMinute] pairs
	MaxOrders      float64        `yaml:"max_orders"`
	ParkingSpots   int            `yaml:"parking_spots"`
	TravelCostMin  map[string]int `yaml:"travel_cost_minutes"`
}

type TruckSpec struct {
	ID                 string  `yaml:"id"`
	StartZone          string  `yaml:"start_zone"`
	Inventory          int     `yaml:"inventory"`
	MaxInventory       int     `yaml:"max_inventory"`
	SpeedMultiplier    float64 `yaml:"speed_multiplier"`
	RestockFixedFee    float64 `yaml:"restock_fixed_fee"`
	RestockPerUnitCost float64 `yaml:"restock_per_unit_cost"`
	RestockZone        string  `yaml:"restock_zone"`
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("city config: %w", err)
	}
	return t, nil
}

// Config converts the file form into the simulation's validated config.
func (t Tuning) Config() city.Config {
	cfg := city.Config{
		ID:           t.CityID,
		TickPeriod:   time.Duration(t.TickPeriodMS) * time.Millisecond,
		DayTicks:     t.DayTicks,
		RestockTicks: t.RestockTicks,
		HistoryCap:   t.HistoryCap,
		Seed:         t.Seed,
		UnitPrice:    t.UnitPrice,
	}
	for _, z := range t.Zones {
		peaks := make([]city.PeakWindow, 0, len(z.PeakHours))
		for _, p := range z.PeakHours {
			peaks = append(peaks, city.PeakWindow{Start: p[0], End: p[1]})
		}
		cfg.Zones = append(cfg.Zones, city.ZoneConfig{
			ID:              z.ID,
			BaseMultiplier:  z.BaseMultiplier,
			PeakMultiplier:  z.PeakMultiplier,
			PeakHours:       peaks,
			MaxOrders:       z.MaxOrders,
			ParkingCapacity: z.ParkingSpots,
			TravelCost:      z.TravelCostMin,
		})
	}
	for _, tr := range t.Trucks {
		cfg.Trucks = append(cfg.Trucks, city.TruckConfig{
			ID:                 tr.ID,
			StartZone:          tr.StartZone,
			Inventory:          tr.Inventory,
			MaxInventory:       tr.MaxInventory,
			SpeedMultiplier:    tr.SpeedMultiplier,
			RestockFixedFee:    tr.RestockFixedFee,
			RestockPerUnitCost: tr.RestockPerUnitCost,
			RestockZone:        tr.RestockZone,
		})
	}
	return cfg
}

// AgentPeriod returns the decision cycle period.
func (t Tuning) AgentPeriod() time.Duration {
	return time.Duration(t.AgentPeriodMS) * time.Millisecond
}

// Defaults is the stock five-zone city with its three-truck fleet.
func Defaults() Tuning {
	return Tuning{
		CityID:        "fleetfeast",
		TickPeriodMS:  1000,
		AgentPeriodMS: 30000,
		DayTicks:      1440,
		RestockTicks:  10,
		HistoryCap:    180,
		Seed:          1337,
		UnitPrice:     100,
		Zones: []ZoneSpec{
			{
				ID:             "downtown-1",
				BaseMultiplier: 1.0,
				PeakMultiplier: 2.5,
				PeakHours:      [][2]int{{11 * 60, 14 * 60}, {18 * 60, 21 * 60}},
				MaxOrders:      20,
				ParkingSpots:   2,
				TravelCostMin: map[string]int{
					"university-1":  10,
					"park-1":        15,
					"residential-1": 30,
					"stadium-1":     25,
				},
			},
			{
				ID:             "university-1",
				BaseMultiplier: 0.6,
				PeakMultiplier: 2.0,
				PeakHours:      [][2]int{{12 * 60, 15 * 60}, {22 * 60, 24 * 60}},
				MaxOrders:      15,
				ParkingSpots:   1,
				TravelCostMin: map[string]int{
					"downtown-1":    10,
					"residential-1": 15,
					"park-1":        20,
					"stadium-1":     30,
				},
			},
			{
				ID:             "park-1",
				BaseMultiplier: 0.4,
				PeakMultiplier: 1.8,
				PeakHours:      [][2]int{{10 * 60, 17 * 60}},
				MaxOrders:      12,
				ParkingSpots:   1,
				TravelCostMin: map[string]int{
					"downtown-1":    15,
					"residential-1": 10,
					"stadium-1":     20,
					"university-1":  20,
				},
			},
			{
				ID:             "residential-1",
				BaseMultiplier: 0.8,
				PeakMultiplier: 2.2,
				PeakHours:      [][2]int{{17 * 60, 20 * 60}},
				MaxOrders:      18,
				ParkingSpots:   2,
				TravelCostMin: map[string]int{
					"park-1":       10,
					"university-1": 15,
					"downtown-1":   30,
					"stadium-1":    25,
				},
			},
			{
				ID:             "stadium-1",
				BaseMultiplier: 0.0,
				PeakMultiplier: 3.0,
				PeakHours:      [][2]int{{18 * 60, 22 * 60}},
				MaxOrders:      30,
				ParkingSpots:   1,
				TravelCostMin: map[string]int{
					"park-1":        20,
					"downtown-1":    25,
					"residential-1": 25,
					"university-1":  30,
				},
			},
		},
		Trucks: []TruckSpec{
			{
				ID:                 "truck-1",
				StartZone:          "downtown-1",
				Inventory:          150,
				MaxInventory:       200,
				SpeedMultiplier:    0.5,
				RestockFixedFee:    500,
				RestockPerUnitCost: 20,
				RestockZone:        "downtown-1",
			},
			{
				ID:                 "truck-2",
				StartZone:          "university-1",
				Inventory:          70,
				MaxInventory:       100,
				SpeedMultiplier:    1.0,
				RestockFixedFee:    500,
				RestockPerUnitCost: 20,
				RestockZone:        "downtown-1",
			},
			{
				ID:                 "truck-3",
				StartZone:          "residential-1",
				Inventory:          50,
				MaxInventory:       50,
				SpeedMultiplier:    0.8,
				RestockFixedFee:    500,
				RestockPerUnitCost: 20,
				RestockZone:        "residential-1",
			},
		},
	}
}
