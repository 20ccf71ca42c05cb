package bridge

import (
	"context"

	"fleetfeast.ai/internal/sim/city"
)

// GreedyPolicy is the built-in decision-maker used when no external
// service is configured: send the fullest idle truck to the hottest
// uncovered zone, restock nearly empty idle trucks, otherwise hold.
type GreedyPolicy struct {
	// RestockBelow is the inventory fraction under which an idle truck
	// restocks in place instead of taking a dispatch.
	RestockBelow float64
}

func NewGreedyPolicy() *GreedyPolicy {
	return &GreedyPolicy{RestockBelow: 0.2}
}

func (p *GreedyPolicy) Decide(_ context.Context, dc DecisionContext) (ToolCall, error) {
	if dc.State == nil {
		return ToolCall{Tool: string(city.ActionHold)}, nil
	}

	covered := map[string]bool{}
	for _, t := range dc.State.Trucks {
		switch t.Status {
		case city.StatusMoving:
			covered[t.DestinationZone] = true
		case city.StatusServing, city.StatusRestocking:
			covered[t.CurrentZone] = true
		}
	}

	var idle []city.TruckSnapshot
	for _, t := range dc.State.Trucks {
		if t.Status == city.StatusIdle {
			idle = append(idle, t)
		}
	}
	if len(idle) == 0 {
		return ToolCall{Tool: string(city.ActionHold), Reasoning: "no idle trucks"}, nil
	}

	// Nearly empty trucks restock before they take another leg.
	for _, t := range idle {
		if t.MaxInventory > 0 && float64(t.Inventory) < p.RestockBelow*float64(t.MaxInventory) {
			return ToolCall{
				Tool:      string(city.ActionRestock),
				TruckID:   t.ID,
				Reasoning: "inventory low; restocking in place",
			}, nil
		}
	}

	// Fullest idle truck takes the hottest zone nobody is covering.
	best := idle[0]
	for _, t := range idle[1:] {
		if t.Inventory > best.Inventory {
			best = t
		}
	}
	for _, zf := range dc.Ranked {
		if covered[zf.ZoneID] || zf.ZoneID == best.CurrentZone {
			continue
		}
		if zf.MeanOrders <= 0 {
			break // ranked descending; nothing left worth a trip
		}
		return ToolCall{
			Tool:       string(city.ActionDispatch),
			TruckID:    best.ID,
			TargetZone: zf.ZoneID,
			Reasoning:  "highest uncovered projected demand",
		}, nil
	}
	return ToolCall{Tool: string(city.ActionHold), Reasoning: "all demand covered"}, nil
}

var _ DecisionMaker = (*GreedyPolicy)(nil)
