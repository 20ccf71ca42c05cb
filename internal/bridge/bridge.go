// Package bridge consults the external decision-maker on its own slow
// period and turns at most one tool call per cycle into a queued action.
// It only ever reads published snapshots; the simulation loop is never
// blocked by anything the bridge does.
package bridge

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fleetfeast.ai/internal/protocol"
	"fleetfeast.ai/internal/sim/city"
)

// ToolCall is one decision from the external decision-maker.
type ToolCall struct {
	Tool       string `json:"tool"` // dispatch | restock | forecast | hold
	TruckID    string `json:"truck_id,omitempty"`
	TargetZone string `json:"target_zone,omitempty"`
	ZoneID     string `json:"zone_id,omitempty"`
	HoursAhead int    `json:"hours_ahead,omitempty"`
	Reasoning  string `json:"reasoning,omitempty"`
}

// ForecastAnswer is a synchronously resolved forecast tool call, fed back
// into the same cycle's next round.
type ForecastAnswer struct {
	ZoneID       string    `json:"zone_id"`
	FromTick     uint64    `json:"from_tick"`
	HourlyOrders []float64 `json:"hourly_orders"`
}

// DecisionContext is everything the decision-maker sees for one round.
type DecisionContext struct {
	Cycle      uint64              `json:"cycle"`
	Tick       uint64              `json:"tick"`
	State      *city.Snapshot      `json:"state"`
	Ranked     []city.ZoneForecast `json:"ranked_forecast"`
	Forecasts  []ForecastAnswer    `json:"forecasts,omitempty"`
	Rejections []city.ActionResult `json:"rejections,omitempty"`
}

// DecisionMaker produces one tool call for the given context. Implementations
// must respect ctx; the bridge enforces a per-cycle deadline through it.
type DecisionMaker interface {
	Decide(ctx context.Context, dc DecisionContext) (ToolCall, error)
}

// DecisionEntry records one cycle's outcome for the decision log.
type DecisionEntry struct {
	Cycle      uint64              `json:"cycle"`
	Tick       uint64              `json:"tick"`
	Call       ToolCall            `json:"call"`
	ActionID   string              `json:"action_id,omitempty"`
	Code       string              `json:"code,omitempty"`
	Detail     string              `json:"detail,omitempty"`
	Rejections []city.ActionResult `json:"rejections,omitempty"`
}

// DecisionLog is implemented in internal/persistence/log; nil disables
// logging.
type DecisionLog interface {
	WriteDecision(entry DecisionEntry) error
}

type Bridge struct {
	world   *city.World
	queue   city.ActionQueue
	maker   DecisionMaker
	period  time.Duration
	timeout time.Duration
	declog  DecisionLog
	log     *logrus.Entry

	cycle uint64

	// forecast tool calls are read-only and answered in-cycle; this bounds
	// how many rounds one cycle may spend before it must act or hold.
	maxForecastRounds int
}

func New(w *city.World, queue city.ActionQueue, maker DecisionMaker, period time.Duration, logger *logrus.Logger) *Bridge {
	if logger == nil {
		logger = logrus.New()
	}
	timeout := period / 2
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Bridge{
		world:             w,
		queue:             queue,
		maker:             maker,
		period:            period,
		timeout:           timeout,
		log:               logger.WithField("component", "bridge"),
		maxForecastRounds: 3,
	}
}

func (b *Bridge) SetDecisionLog(l DecisionLog) { b.declog = l }

// Run consults the decision-maker once per period until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			b.RunCycle(ctx)
		}
	}
}

// RunCycle executes one decision cycle: snapshot, consult, enqueue at most
// one action. Exported so tests and replay tooling can drive cycles
// directly.
func (b *Bridge) RunCycle(ctx context.Context) {
	b.cycle++
	snap, ok := b.world.LatestSnapshot()
	if !ok {
		return // nothing published yet
	}

	cctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	dc := DecisionContext{
		Cycle:      b.cycle,
		Tick:       snap.Tick,
		State:      snap,
		Ranked:     b.world.RankedForecast(3),
		Rejections: rejectionsOnly(b.world.LastResults()),
	}

	for round := 0; ; round++ {
		call, err := b.maker.Decide(cctx, dc)
		if err != nil {
			code := protocol.ErrDecisionUnavailable
			if cctx.Err() != nil {
				code = protocol.ErrDecisionTimeout
			}
			// Implicit hold: recoverable, nothing enqueued.
			b.log.WithError(err).WithField("code", code).Warn("decision cycle failed; holding")
			b.writeDecision(dc.Tick, ToolCall{Tool: string(city.ActionHold)}, "", code, err.Error(), dc.Rejections)
			return
		}

		if call.Tool == string(city.ActionForecast) {
			if round >= b.maxForecastRounds {
				b.log.Warn("forecast round budget exhausted; holding")
				b.writeDecision(dc.Tick, call, "", protocol.ErrDecisionMalformed, "too many forecast rounds", dc.Rejections)
				return
			}
			ans, err := b.answerForecast(call)
			if err != nil {
				b.writeDecision(dc.Tick, call, "", protocol.ErrUnknownZone, err.Error(), dc.Rejections)
				return
			}
			dc.Forecasts = append(dc.Forecasts, ans)
			continue
		}

		action, code, detail := b.toPending(call)
		if code != "" {
			b.log.WithFields(logrus.Fields{"code": code, "tool": call.Tool}).Warn("malformed tool call; holding")
			b.writeDecision(dc.Tick, call, "", code, detail, dc.Rejections)
			return
		}
		if err := b.queue.Enqueue(action); err != nil {
			b.log.WithError(err).Warn("enqueue failed; holding")
			b.writeDecision(dc.Tick, call, "", protocol.ErrStoreUnavailable, err.Error(), dc.Rejections)
			return
		}
		b.log.WithFields(logrus.Fields{
			"tool":   call.Tool,
			"action": action.ID,
			"truck":  action.TruckID,
		}).Info("action enqueued")
		b.writeDecision(dc.Tick, call, action.ID, "", "", dc.Rejections)
		return
	}
}

// answerForecast resolves a forecast tool call synchronously. Forecast never
// enters the queue.
func (b *Bridge) answerForecast(call ToolCall) (ForecastAnswer, error) {
	hours := call.HoursAhead
	if hours <= 0 {
		hours = 1
	}
	tick := b.world.CurrentTick()
	hourly, err := b.world.Forecast(call.ZoneID, hours)
	if err != nil {
		return ForecastAnswer{}, err
	}
	return ForecastAnswer{ZoneID: call.ZoneID, FromTick: tick, HourlyOrders: hourly}, nil
}

// toPending validates the tool call shape and mints the queue entry.
// Semantic validation (unknown truck, invalid state) happens at apply time.
func (b *Bridge) toPending(call ToolCall) (city.PendingAction, string, string) {
	a := city.PendingAction{
		ID:        uuid.NewString(),
		Type:      city.ActionType(call.Tool),
		TruckID:   call.TruckID,
		Reasoning: call.Reasoning,
	}
	switch a.Type {
	case city.ActionDispatch:
		if call.TruckID == "" || call.TargetZone == "" {
			return city.PendingAction{}, protocol.ErrDecisionMalformed, "dispatch requires truck_id and target_zone"
		}
		a.TargetZone = call.TargetZone
	case city.ActionRestock:
		if call.TruckID == "" {
			return city.PendingAction{}, protocol.ErrDecisionMalformed, "restock requires truck_id"
		}
	case city.ActionHold:
		// Explicit hold is a real acknowledgment and does get enqueued.
	default:
		return city.PendingAction{}, protocol.ErrDecisionMalformed, "unknown tool: " + call.Tool
	}
	return a, "", ""
}

func (b *Bridge) writeDecision(tick uint64, call ToolCall, actionID, code, detail string, rejections []city.ActionResult) {
	if b.declog == nil {
		return
	}
	err := b.declog.WriteDecision(DecisionEntry{
		Cycle:      b.cycle,
		Tick:       tick,
		Call:       call,
		ActionID:   actionID,
		Code:       code,
		Detail:     detail,
		Rejections: rejections,
	})
	if err != nil {
		b.log.WithError(err).Warn("decision log write failed")
	}
}

func rejectionsOnly(results []city.ActionResult) []city.ActionResult {
	var out []city.ActionResult
	for _, r := range results {
		if !r.Accepted {
			out = append(out, r)
		}
	}
	return out
}
