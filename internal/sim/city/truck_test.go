package city

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		ID:           "testcity",
		TickPeriod:   time.Second,
		DayTicks:     1440,
		RestockTicks: 10,
		HistoryCap:   32,
		Seed:         1337,
		UnitPrice:    100,
		Zones: []ZoneConfig{
			{
				ID:              "downtown-1",
				BaseMultiplier:  1.0,
				PeakMultiplier:  2.5,
				PeakHours:       []PeakWindow{{Start: 660, End: 840}},
				MaxOrders:       20,
				ParkingCapacity: 2,
				TravelCost:      map[string]int{"university-1": 10, "park-1": 15},
			},
			{
				ID:              "university-1",
				BaseMultiplier:  0.6,
				PeakMultiplier:  2.0,
				MaxOrders:       15,
				ParkingCapacity: 1,
				TravelCost:      map[string]int{"downtown-1": 10, "park-1": 20},
			},
			{
				ID:              "park-1",
				BaseMultiplier:  0.4,
				PeakMultiplier:  1.8,
				MaxOrders:       12,
				ParkingCapacity: 1,
				TravelCost:      map[string]int{"downtown-1": 15, "university-1": 20},
			},
		},
		Trucks: []TruckConfig{
			{
				ID:                 "truck-1",
				StartZone:          "downtown-1",
				Inventory:          50,
				MaxInventory:       50,
				SpeedMultiplier:    1.0,
				RestockFixedFee:    500,
				RestockPerUnitCost: 20,
				RestockZone:        "downtown-1",
			},
			{
				ID:                 "truck-2",
				StartZone:          "university-1",
				Inventory:          30,
				MaxInventory:       100,
				SpeedMultiplier:    0.5,
				RestockFixedFee:    500,
				RestockPerUnitCost: 20,
				RestockZone:        "downtown-1",
			},
		},
	}
}

func newTestWorld(t *testing.T) *World {
	t.Helper()
	w, err := New(testConfig(), NewMemoryQueue(), nil)
	require.NoError(t, err)
	return w
}

func TestTravelTicks(t *testing.T) {
	w := newTestWorld(t)
	fast := w.truckByID["truck-1"] // speed 1.0
	slow := w.truckByID["truck-2"] // speed 0.5

	require.Equal(t, uint64(10), fast.travelTicks(w, "downtown-1", "university-1"))
	require.Equal(t, uint64(20), slow.travelTicks(w, "downtown-1", "university-1"))
	require.Equal(t, uint64(0), fast.travelTicks(w, "downtown-1", "downtown-1"))

	// Fractional speeds round the leg up to whole ticks.
	slow.SpeedMultiplier = 0.8
	require.Equal(t, uint64(13), slow.travelTicks(w, "downtown-1", "university-1"))
}

func TestServing_SellsMinOfInventoryAndDemand(t *testing.T) {
	w := newTestWorld(t)
	tr := w.truckByID["truck-1"]
	tr.Status = StatusServing
	tr.Inventory = 5
	w.zoneByID["downtown-1"].currentDemand = 8.3

	w.advanceTruck(tr, 100)

	// Only 5 units were available even though demand floored to 8.
	require.Equal(t, 0, tr.Inventory)
	require.Equal(t, 500.0, tr.TotalRevenue)
	require.Equal(t, StatusServing, tr.Status)

	// Sold out: the next tick heads for the depot, which is right here, so
	// the restock dwell starts immediately.
	w.advanceTruck(tr, 101)
	require.Equal(t, StatusRestocking, tr.Status)
	require.Equal(t, uint64(111), tr.RestockUntilTick)
}

func TestServing_PartialSale(t *testing.T) {
	w := newTestWorld(t)
	tr := w.truckByID["truck-1"]
	tr.Status = StatusServing
	w.zoneByID["downtown-1"].currentDemand = 8.9

	w.advanceTruck(tr, 100)

	require.Equal(t, 42, tr.Inventory)
	require.Equal(t, 800.0, tr.TotalRevenue)
	require.Equal(t, StatusServing, tr.Status)
}

func TestMoving_ArrivalStartsServiceWhenDemandPresent(t *testing.T) {
	w := newTestWorld(t)
	tr := w.truckByID["truck-1"]
	tr.Status = StatusMoving
	tr.DestinationZone = "university-1"
	tr.ArrivalTick = 110
	w.zoneByID["university-1"].currentDemand = 3

	w.advanceTruck(tr, 109)
	require.Equal(t, StatusMoving, tr.Status, "must not arrive early")

	w.advanceTruck(tr, 110)
	require.Equal(t, StatusServing, tr.Status)
	require.Equal(t, "university-1", tr.CurrentZone)
	require.Empty(t, tr.DestinationZone)
}

func TestMoving_ArrivalIdlesWhenNoDemand(t *testing.T) {
	w := newTestWorld(t)
	tr := w.truckByID["truck-1"]
	tr.Status = StatusMoving
	tr.DestinationZone = "park-1"
	tr.ArrivalTick = 50
	w.zoneByID["park-1"].currentDemand = 0

	w.advanceTruck(tr, 50)
	require.Equal(t, StatusIdle, tr.Status)
}

func TestRestocking_RefillAndChargeAreAtomic(t *testing.T) {
	w := newTestWorld(t)
	tr := w.truckByID["truck-1"]
	tr.Status = StatusRestocking
	tr.Inventory = 10
	tr.TotalRevenue = 2000
	tr.RestockUntilTick = 115

	w.advanceTruck(tr, 114)
	require.Equal(t, StatusRestocking, tr.Status)
	require.Equal(t, 10, tr.Inventory)

	w.advanceTruck(tr, 115)
	require.Equal(t, StatusIdle, tr.Status)
	require.Equal(t, 50, tr.Inventory)
	// 500 fixed + 20 per unit for the 40 units loaded.
	require.Equal(t, 2000.0-1300.0, tr.TotalRevenue)
}

func TestIdleEmpty_ReturnsToDepotThenRestocks(t *testing.T) {
	w := newTestWorld(t)
	tr := w.truckByID["truck-1"]
	tr.Status = StatusIdle
	tr.CurrentZone = "university-1"
	tr.Inventory = 0

	w.advanceTruck(tr, 200)
	require.Equal(t, StatusMoving, tr.Status)
	require.Equal(t, "downtown-1", tr.DestinationZone)
	require.Equal(t, uint64(210), tr.ArrivalTick)

	// Arrival at the depot starts the dwell, never service, even with the
	// zone in demand.
	w.zoneByID["downtown-1"].currentDemand = 9
	w.advanceTruck(tr, 210)
	require.Equal(t, StatusRestocking, tr.Status)
	require.Equal(t, uint64(220), tr.RestockUntilTick)

	w.advanceTruck(tr, 220)
	require.Equal(t, StatusIdle, tr.Status)
	require.Equal(t, tr.MaxInventory, tr.Inventory)
}

func TestInventoryNeverNegative(t *testing.T) {
	w := newTestWorld(t)
	tr := w.truckByID["truck-1"]
	tr.Status = StatusServing
	tr.Inventory = 3
	w.zoneByID["downtown-1"].currentDemand = 100

	w.advanceTruck(tr, 10)
	require.Equal(t, 0, tr.Inventory)
	require.Equal(t, 300.0, tr.TotalRevenue)
}
