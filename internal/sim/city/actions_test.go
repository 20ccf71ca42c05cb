package city

import (
	"testing"

	"github.com/stretchr/testify/require"

	"fleetfeast.ai/internal/protocol"
)

func TestApplyActions_HoldIsAlwaysAcceptedAndChangesNothing(t *testing.T) {
	w := newTestWorld(t)
	before := *w.truckByID["truck-1"]

	results := w.applyActions([]PendingAction{
		{ID: "a1", Type: ActionHold, TruckID: "truck-1"},
		{ID: "a2", Type: ActionHold},
	}, 10)

	require.Len(t, results, 2)
	for _, r := range results {
		require.True(t, r.Accepted)
		require.Empty(t, r.Code)
	}
	require.Equal(t, before, *w.truckByID["truck-1"])
}

func TestApplyDispatch_UnknownIDs(t *testing.T) {
	w := newTestWorld(t)

	results := w.applyActions([]PendingAction{
		{Type: ActionDispatch, TruckID: "nope", TargetZone: "downtown-1"},
		{Type: ActionDispatch, TruckID: "truck-1", TargetZone: "atlantis"},
	}, 10)

	require.False(t, results[0].Accepted)
	require.Equal(t, protocol.ErrUnknownTruck, results[0].Code)
	require.False(t, results[1].Accepted)
	require.Equal(t, protocol.ErrUnknownZone, results[1].Code)
	// Rejections never disturb the truck.
	require.Equal(t, StatusIdle, w.truckByID["truck-1"].Status)
}

func TestApplyDispatch_StartsLeg(t *testing.T) {
	w := newTestWorld(t)

	results := w.applyActions([]PendingAction{
		{Type: ActionDispatch, TruckID: "truck-1", TargetZone: "university-1"},
	}, 100)

	require.True(t, results[0].Accepted)
	tr := w.truckByID["truck-1"]
	require.Equal(t, StatusMoving, tr.Status)
	require.Equal(t, "university-1", tr.DestinationZone)
	require.Equal(t, uint64(110), tr.ArrivalTick)
}

func TestApplyDispatch_RerouteRecomputesArrival(t *testing.T) {
	w := newTestWorld(t)
	tr := w.truckByID["truck-1"]
	tr.Status = StatusMoving
	tr.DestinationZone = "university-1"
	tr.ArrivalTick = 105

	results := w.applyActions([]PendingAction{
		{Type: ActionDispatch, TruckID: "truck-1", TargetZone: "park-1"},
	}, 100)

	require.True(t, results[0].Accepted)
	require.Equal(t, "park-1", tr.DestinationZone)
	// The leg restarts from the zone the truck last departed.
	require.Equal(t, uint64(115), tr.ArrivalTick)
}

func TestApplyDispatch_CurrentZoneIsServeNoOp(t *testing.T) {
	w := newTestWorld(t)

	results := w.applyActions([]PendingAction{
		{Type: ActionDispatch, TruckID: "truck-1", TargetZone: "downtown-1"},
	}, 100)

	require.True(t, results[0].Accepted)
	tr := w.truckByID["truck-1"]
	require.Equal(t, StatusServing, tr.Status)
	require.Equal(t, "downtown-1", tr.CurrentZone)
	require.Empty(t, tr.DestinationZone)
}

func TestApplyDispatch_RejectedWhileRestocking(t *testing.T) {
	w := newTestWorld(t)
	tr := w.truckByID["truck-1"]
	tr.Status = StatusRestocking
	tr.RestockUntilTick = 120

	results := w.applyActions([]PendingAction{
		{Type: ActionDispatch, TruckID: "truck-1", TargetZone: "park-1"},
	}, 100)

	require.False(t, results[0].Accepted)
	require.Equal(t, protocol.ErrInvalidState, results[0].Code)
	require.Equal(t, StatusRestocking, tr.Status)
	require.Equal(t, uint64(120), tr.RestockUntilTick)
}

func TestApplyRestock(t *testing.T) {
	w := newTestWorld(t)

	results := w.applyActions([]PendingAction{
		{Type: ActionRestock, TruckID: "truck-1"},
	}, 100)

	require.True(t, results[0].Accepted)
	tr := w.truckByID["truck-1"]
	require.Equal(t, StatusRestocking, tr.Status)
	require.Equal(t, uint64(110), tr.RestockUntilTick)
}

func TestApplyRestock_RejectedWhenNotIdle(t *testing.T) {
	w := newTestWorld(t)
	tr := w.truckByID["truck-1"]
	tr.Status = StatusServing

	results := w.applyActions([]PendingAction{
		{Type: ActionRestock, TruckID: "truck-1"},
	}, 100)

	require.False(t, results[0].Accepted)
	require.Equal(t, protocol.ErrInvalidState, results[0].Code)
	require.Equal(t, StatusServing, tr.Status)
}

func TestApplyRestock_RejectedWhenParkingFull(t *testing.T) {
	w := newTestWorld(t)
	// university-1 has one parking spot, already taken by truck-2.
	tr := w.truckByID["truck-1"]
	tr.CurrentZone = "university-1"

	results := w.applyActions([]PendingAction{
		{Type: ActionRestock, TruckID: "truck-1"},
	}, 100)

	require.False(t, results[0].Accepted)
	require.Equal(t, protocol.ErrNoParking, results[0].Code)
	require.Equal(t, StatusIdle, tr.Status)
}

func TestApplyActions_LastStructuralActionWins(t *testing.T) {
	w := newTestWorld(t)

	results := w.applyActions([]PendingAction{
		{ID: "first", Type: ActionDispatch, TruckID: "truck-1", TargetZone: "university-1"},
		{ID: "mid", Type: ActionHold, TruckID: "truck-1"},
		{ID: "last", Type: ActionDispatch, TruckID: "truck-1", TargetZone: "park-1"},
	}, 100)

	require.False(t, results[0].Accepted)
	require.Equal(t, protocol.ErrSuperseded, results[0].Code)
	require.True(t, results[1].Accepted, "hold takes no part in the overwrite rule")
	require.True(t, results[2].Accepted)

	tr := w.truckByID["truck-1"]
	require.Equal(t, "park-1", tr.DestinationZone)
	require.Equal(t, uint64(115), tr.ArrivalTick, "effects must not compound")
}

func TestApplyActions_BurstAcrossTrucks(t *testing.T) {
	w := newTestWorld(t)

	results := w.applyActions([]PendingAction{
		{Type: ActionDispatch, TruckID: "truck-1", TargetZone: "park-1"},
		{Type: ActionDispatch, TruckID: "truck-2", TargetZone: "park-1"},
	}, 100)

	require.True(t, results[0].Accepted)
	require.True(t, results[1].Accepted)
	require.Equal(t, StatusMoving, w.truckByID["truck-1"].Status)
	require.Equal(t, StatusMoving, w.truckByID["truck-2"].Status)
}

func TestApplyActions_ResultCodesAreKnown(t *testing.T) {
	w := newTestWorld(t)
	w.truckByID["truck-2"].Status = StatusRestocking

	// One action per outcome class; every code the processor emits must be
	// in the published taxonomy (accepted results carry the empty code).
	results := w.applyActions([]PendingAction{
		{Type: ActionHold, TruckID: "truck-1"},
		{Type: ActionDispatch, TruckID: "nope", TargetZone: "park-1"},
		{Type: ActionDispatch, TruckID: "truck-2", TargetZone: "park-1"},
		{Type: ActionType("teleport")},
		{Type: ActionDispatch, TruckID: "truck-2", TargetZone: "university-1"},
		{Type: ActionDispatch, TruckID: "truck-1", TargetZone: "atlantis"},
	}, 100)

	require.Len(t, results, 6)
	for i, r := range results {
		require.True(t, protocol.IsKnownCode(r.Code), "result %d code %q", i, r.Code)
	}
	require.Equal(t, protocol.ErrUnknownTruck, results[1].Code)
	require.Equal(t, protocol.ErrSuperseded, results[2].Code)
	require.Equal(t, protocol.ErrBadRequest, results[3].Code)
	require.Equal(t, protocol.ErrInvalidState, results[4].Code)
	require.Equal(t, protocol.ErrUnknownZone, results[5].Code)
}

func TestApplyActions_UnknownTypeRejected(t *testing.T) {
	w := newTestWorld(t)

	results := w.applyActions([]PendingAction{
		{Type: ActionType("teleport"), TruckID: "truck-1"},
		{}, // undecodable queue entries surface as the zero action
	}, 100)

	require.False(t, results[0].Accepted)
	require.Equal(t, protocol.ErrBadRequest, results[0].Code)
	require.False(t, results[1].Accepted)
	require.Equal(t, protocol.ErrBadRequest, results[1].Code)
}
