package city

import (
	"fmt"

	"fleetfeast.ai/internal/protocol"
)

// ActionType tags a queued agent instruction. Forecast is read-only and is
// answered synchronously by the bridge; it never enters the queue.
type ActionType string

const (
	ActionDispatch ActionType = "dispatch"
	ActionRestock  ActionType = "restock"
	ActionForecast ActionType = "forecast"
	ActionHold     ActionType = "hold"
)

// PendingAction is one queued instruction awaiting application at the next
// tick boundary. Consumed exactly once, then discarded.
type PendingAction struct {
	ID         string     `json:"id,omitempty"`
	Type       ActionType `json:"type"`
	TruckID    string     `json:"truck_id,omitempty"`
	TargetZone string     `json:"target_zone,omitempty"`
	ZoneID     string     `json:"zone_id,omitempty"`
	HoursAhead int        `json:"hours_ahead,omitempty"`
	Reasoning  string     `json:"reasoning,omitempty"`
}

// ActionResult records the outcome of one drained action. Rejections are
// recoverable: they reach the decision log, never the loop's control flow.
type ActionResult struct {
	Action   PendingAction `json:"action"`
	Accepted bool          `json:"accepted"`
	Code     string        `json:"code,omitempty"`
	Detail   string        `json:"detail,omitempty"`
}

// ActionQueue is the single shared mutable structure between the bridge
// (producer) and the world loop (consumer). Enqueue may be called
// concurrently; DrainAll removes the whole backlog as one atomic batch, so
// nothing enqueued after a drain is applied in that same tick.
type ActionQueue interface {
	Enqueue(a PendingAction) error
	DrainAll() ([]PendingAction, error)
}

// applyActions drains one batch in FIFO order at the tick boundary.
// When several structural actions target the same truck in one batch the
// last one wins: earlier ones are superseded, not compounded. Hold is a
// pure acknowledgment and takes no part in the overwrite rule.
func (w *World) applyActions(batch []PendingAction, tick uint64) []ActionResult {
	results := make([]ActionResult, len(batch))
	lastForTruck := map[string]int{}
	for i, a := range batch {
		if a.Type == ActionDispatch || a.Type == ActionRestock {
			lastForTruck[a.TruckID] = i
		}
	}

	for i, a := range batch {
		switch a.Type {
		case ActionHold:
			results[i] = ActionResult{Action: a, Accepted: true}
		case ActionDispatch, ActionRestock:
			if lastForTruck[a.TruckID] != i {
				results[i] = ActionResult{
					Action: a,
					Code:   protocol.ErrSuperseded,
					Detail: "a later action in the same batch targets this truck",
				}
				continue
			}
			if a.Type == ActionDispatch {
				results[i] = w.applyDispatch(a, tick)
			} else {
				results[i] = w.applyRestock(a, tick)
			}
		default:
			results[i] = ActionResult{
				Action: a,
				Code:   protocol.ErrBadRequest,
				Detail: fmt.Sprintf("unknown action type %q", a.Type),
			}
		}
	}
	return results
}

func (w *World) applyDispatch(a PendingAction, tick uint64) ActionResult {
	t, ok := w.truckByID[a.TruckID]
	if !ok {
		return ActionResult{Action: a, Code: protocol.ErrUnknownTruck, Detail: a.TruckID}
	}
	z, ok := w.zoneByID[a.TargetZone]
	if !ok {
		return ActionResult{Action: a, Code: protocol.ErrUnknownZone, Detail: a.TargetZone}
	}
	if t.Status == StatusRestocking {
		return ActionResult{
			Action: a,
			Code:   protocol.ErrInvalidState,
			Detail: "cannot dispatch a restocking truck",
		}
	}

	if t.Status != StatusMoving && z.ID == t.CurrentZone {
		// Already there: no-op transition straight to service.
		t.Status = StatusServing
		t.DestinationZone = ""
		return ActionResult{Action: a, Accepted: true}
	}

	// Fresh dispatch or reroute. A moving truck restarts the leg from the
	// zone it last departed; travel time uses the standard formula.
	t.Status = StatusMoving
	t.DestinationZone = z.ID
	t.ArrivalTick = tick + t.travelTicks(w, t.CurrentZone, z.ID)
	t.restockBound = false
	return ActionResult{Action: a, Accepted: true}
}

func (w *World) applyRestock(a PendingAction, tick uint64) ActionResult {
	t, ok := w.truckByID[a.TruckID]
	if !ok {
		return ActionResult{Action: a, Code: protocol.ErrUnknownTruck, Detail: a.TruckID}
	}
	if t.Status != StatusIdle {
		return ActionResult{
			Action: a,
			Code:   protocol.ErrInvalidState,
			Detail: fmt.Sprintf("invalid state for restock: %s", t.Status),
		}
	}
	z := w.zoneByID[t.CurrentZone]
	if w.parkedAt(z.ID, t.ID) >= z.ParkingCapacity {
		return ActionResult{
			Action: a,
			Code:   protocol.ErrNoParking,
			Detail: fmt.Sprintf("no free parking at %s", z.ID),
		}
	}
	t.Status = StatusRestocking
	t.RestockUntilTick = tick + uint64(w.cfg.RestockTicks)
	return ActionResult{Action: a, Accepted: true}
}

func errUnknownZone(id string) error {
	return fmt.Errorf("%s: unknown zone %q", protocol.ErrUnknownZone, id)
}

// parkedAt counts trucks occupying a zone's parking, excluding the one
// asking.
func (w *World) parkedAt(zoneID, exceptTruck string) int {
	n := 0
	for _, t := range w.trucks {
		if t.ID == exceptTruck || t.Status == StatusMoving {
			continue
		}
		if t.CurrentZone == zoneID {
			n++
		}
	}
	return n
}
