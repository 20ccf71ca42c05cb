package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fleetfeast.ai/internal/protocol"
	"fleetfeast.ai/internal/sim/city"
)

type makerFunc func(ctx context.Context, dc DecisionContext) (ToolCall, error)

func (f makerFunc) Decide(ctx context.Context, dc DecisionContext) (ToolCall, error) {
	return f(ctx, dc)
}

type recordingLog struct {
	entries []DecisionEntry
}

func (l *recordingLog) WriteDecision(e DecisionEntry) error {
	l.entries = append(l.entries, e)
	return nil
}

func bridgeTestConfig() city.Config {
	return city.Config{
		ID:           "testcity",
		TickPeriod:   time.Second,
		DayTicks:     1440,
		RestockTicks: 10,
		HistoryCap:   32,
		Seed:         1337,
		UnitPrice:    100,
		Zones: []city.ZoneConfig{
			{
				ID:              "downtown-1",
				BaseMultiplier:  1.0,
				PeakMultiplier:  2.5,
				PeakHours:       []city.PeakWindow{{Start: 660, End: 840}},
				MaxOrders:       20,
				ParkingCapacity: 2,
				TravelCost:      map[string]int{"park-1": 15},
			},
			{
				ID:              "park-1",
				BaseMultiplier:  0.1,
				PeakMultiplier:  0.5,
				MaxOrders:       12,
				ParkingCapacity: 1,
				TravelCost:      map[string]int{"downtown-1": 15},
			},
		},
		Trucks: []city.TruckConfig{
			{
				ID:                 "truck-1",
				StartZone:          "downtown-1",
				Inventory:          50,
				MaxInventory:       50,
				SpeedMultiplier:    1.0,
				RestockFixedFee:    500,
				RestockPerUnitCost: 20,
			},
		},
	}
}

func newBridgeHarness(t *testing.T, maker DecisionMaker) (*Bridge, *city.World, *city.MemoryQueue, *recordingLog) {
	t.Helper()
	queue := city.NewMemoryQueue()
	w, err := city.New(bridgeTestConfig(), queue, nil)
	require.NoError(t, err)

	b := New(w, queue, maker, 50*time.Millisecond, nil)
	rec := &recordingLog{}
	b.SetDecisionLog(rec)
	return b, w, queue, rec
}

func drained(t *testing.T, q *city.MemoryQueue) []city.PendingAction {
	t.Helper()
	batch, err := q.DrainAll()
	require.NoError(t, err)
	return batch
}

func TestRunCycle_NothingPublishedYet(t *testing.T) {
	called := false
	b, _, queue, rec := newBridgeHarness(t, makerFunc(func(context.Context, DecisionContext) (ToolCall, error) {
		called = true
		return ToolCall{Tool: "hold"}, nil
	}))

	b.RunCycle(context.Background())

	require.False(t, called, "no decision without a snapshot")
	require.Empty(t, drained(t, queue))
	require.Empty(t, rec.entries)
}

func TestRunCycle_DispatchBecomesExactlyOneQueueEntry(t *testing.T) {
	b, w, queue, rec := newBridgeHarness(t, makerFunc(func(_ context.Context, dc DecisionContext) (ToolCall, error) {
		require.NotNil(t, dc.State)
		require.NotEmpty(t, dc.Ranked)
		return ToolCall{
			Tool:       "dispatch",
			TruckID:    "truck-1",
			TargetZone: "park-1",
			Reasoning:  "cover the park",
		}, nil
	}))
	w.StepOnce(nil)

	b.RunCycle(context.Background())

	batch := drained(t, queue)
	require.Len(t, batch, 1)
	require.Equal(t, city.ActionDispatch, batch[0].Type)
	require.Equal(t, "truck-1", batch[0].TruckID)
	require.Equal(t, "park-1", batch[0].TargetZone)
	require.NotEmpty(t, batch[0].ID)

	require.Len(t, rec.entries, 1)
	require.Equal(t, batch[0].ID, rec.entries[0].ActionID)
	require.Empty(t, rec.entries[0].Code)
}

func TestRunCycle_TimeoutIsImplicitHold(t *testing.T) {
	b, w, queue, rec := newBridgeHarness(t, makerFunc(func(ctx context.Context, _ DecisionContext) (ToolCall, error) {
		<-ctx.Done()
		return ToolCall{}, ctx.Err()
	}))
	w.StepOnce(nil)

	b.RunCycle(context.Background())

	require.Empty(t, drained(t, queue), "implicit hold enqueues nothing")
	require.Len(t, rec.entries, 1)
	require.Equal(t, protocol.ErrDecisionTimeout, rec.entries[0].Code)
}

func TestRunCycle_MakerErrorIsImplicitHold(t *testing.T) {
	b, w, queue, rec := newBridgeHarness(t, makerFunc(func(context.Context, DecisionContext) (ToolCall, error) {
		return ToolCall{}, errors.New("boom")
	}))
	w.StepOnce(nil)

	b.RunCycle(context.Background())

	require.Empty(t, drained(t, queue))
	require.Len(t, rec.entries, 1)
	require.Equal(t, protocol.ErrDecisionUnavailable, rec.entries[0].Code)
}

func TestRunCycle_MalformedToolHolds(t *testing.T) {
	cases := []ToolCall{
		{Tool: "teleport", TruckID: "truck-1"},
		{Tool: "dispatch", TruckID: "truck-1"}, // missing target_zone
		{Tool: "restock"},                      // missing truck_id
	}
	for _, call := range cases {
		call := call
		b, w, queue, rec := newBridgeHarness(t, makerFunc(func(context.Context, DecisionContext) (ToolCall, error) {
			return call, nil
		}))
		w.StepOnce(nil)

		b.RunCycle(context.Background())

		require.Empty(t, drained(t, queue), "tool %q", call.Tool)
		require.Len(t, rec.entries, 1)
		require.Equal(t, protocol.ErrDecisionMalformed, rec.entries[0].Code)
	}
}

func TestRunCycle_ExplicitHoldIsEnqueued(t *testing.T) {
	b, w, queue, _ := newBridgeHarness(t, makerFunc(func(context.Context, DecisionContext) (ToolCall, error) {
		return ToolCall{Tool: "hold", Reasoning: "fleet is positioned"}, nil
	}))
	w.StepOnce(nil)

	b.RunCycle(context.Background())

	batch := drained(t, queue)
	require.Len(t, batch, 1)
	require.Equal(t, city.ActionHold, batch[0].Type)
}

func TestRunCycle_ForecastAnsweredWithinCycle(t *testing.T) {
	round := 0
	b, w, queue, _ := newBridgeHarness(t, makerFunc(func(_ context.Context, dc DecisionContext) (ToolCall, error) {
		round++
		if round == 1 {
			require.Empty(t, dc.Forecasts)
			return ToolCall{Tool: "forecast", ZoneID: "downtown-1", HoursAhead: 2}, nil
		}
		require.Len(t, dc.Forecasts, 1)
		require.Equal(t, "downtown-1", dc.Forecasts[0].ZoneID)
		require.Len(t, dc.Forecasts[0].HourlyOrders, 2)
		return ToolCall{Tool: "hold"}, nil
	}))
	w.StepOnce(nil)

	b.RunCycle(context.Background())

	require.Equal(t, 2, round)
	batch := drained(t, queue)
	require.Len(t, batch, 1, "forecast never enters the queue")
	require.Equal(t, city.ActionHold, batch[0].Type)
}

func TestRunCycle_ForecastRoundBudget(t *testing.T) {
	rounds := 0
	b, w, queue, rec := newBridgeHarness(t, makerFunc(func(context.Context, DecisionContext) (ToolCall, error) {
		rounds++
		return ToolCall{Tool: "forecast", ZoneID: "downtown-1"}, nil
	}))
	w.StepOnce(nil)

	b.RunCycle(context.Background())

	require.Equal(t, 4, rounds, "three answered rounds, then the budget trips")
	require.Empty(t, drained(t, queue))
	require.Len(t, rec.entries, 1)
	require.Equal(t, protocol.ErrDecisionMalformed, rec.entries[0].Code)
}

func TestRunCycle_RejectionsReachNextContext(t *testing.T) {
	var seen []city.ActionResult
	b, w, _, _ := newBridgeHarness(t, makerFunc(func(_ context.Context, dc DecisionContext) (ToolCall, error) {
		seen = dc.Rejections
		return ToolCall{Tool: "hold"}, nil
	}))
	w.StepOnce([]city.PendingAction{
		{ID: "bad", Type: city.ActionDispatch, TruckID: "truck-1", TargetZone: "atlantis"},
	})

	b.RunCycle(context.Background())

	require.Len(t, seen, 1)
	require.Equal(t, protocol.ErrUnknownZone, seen[0].Code)
}
