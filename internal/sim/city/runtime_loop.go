package city

import (
	"context"
	"time"
)

// Run drives the simulation at the configured fixed wall-clock period.
// One in-game minute elapses per tick. The loop never compresses ticks:
// if a step overruns, the next one still waits for the following boundary.
func (w *World) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.TickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.subJoin:
			w.handleSubscriberJoin(req)
		case id := <-w.subLeave:
			w.handleSubscriberLeave(id)
		case <-ticker.C:
			w.step()
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// StepOnce advances the world by a single tick with an explicit action
// batch, bypassing the queue. Same ordering semantics as the live loop;
// intended for deterministic replays and tests.
func (w *World) StepOnce(batch []PendingAction) (tick uint64, digest string) {
	tick = w.tick.Load()
	w.stepWith(batch)
	b := w.LatestJSON()
	return tick, w.stateDigest(b)
}

func (w *World) handleSubscriberJoin(req SubscriberJoin) {
	w.subscribers[req.ID] = req.Out
	w.log.WithField("subscriber", req.ID).Debug("subscriber joined")
}

func (w *World) handleSubscriberLeave(id string) {
	if ch, ok := w.subscribers[id]; ok {
		delete(w.subscribers, id)
		close(ch)
	}
}
