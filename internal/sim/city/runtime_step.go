package city

import "time"

// step advances the world by one tick: drain and apply pending actions,
// recompute demand, advance every truck, publish the snapshot.
func (w *World) step() {
	batch, err := w.queue.DrainAll()
	if err != nil {
		// Transient store trouble: run the tick with an empty batch and
		// let the producer's entries survive for the next drain.
		w.log.WithError(err).Warn("action queue drain failed; applying empty batch")
		batch = nil
	}
	w.stepWith(batch)
}

func (w *World) stepWith(batch []PendingAction) {
	stepStart := time.Now()
	nowTick := w.tick.Load()

	// 1. Apply queued actions at the boundary, FIFO.
	results := w.applyActions(batch, nowTick)

	// 2. Recompute demand for every zone and append to history.
	for _, z := range w.zones {
		z.appendDemand(w.demand.DemandAt(z, nowTick), w.cfg.HistoryCap)
	}

	// 3. Advance every truck by exactly one tick.
	for _, t := range w.trucks {
		w.advanceTruck(t, nowTick)
	}

	// 4. Publish an immutable snapshot; fan-out holds no lock and a slow
	// subscriber only ever loses its own oldest unread snapshot.
	snap := w.exportSnapshot(nowTick)
	payload := marshalSnapshot(snap)
	w.latestSnap.Store(snap)
	w.latestJSON.Store(payload)
	w.lastResults.Store(results)
	for _, ch := range w.subscribers {
		sendLatest(ch, payload)
	}
	if w.stateSink != nil {
		select {
		case w.stateSink <- PublishedState{Tick: nowTick, Payload: payload}:
		default:
			// Writer is backed up; the next tick's state supersedes this one.
		}
	}

	if w.tickLogger != nil {
		_ = w.tickLogger.WriteTick(TickLogEntry{
			Tick:    nowTick,
			Results: results,
			Digest:  w.stateDigest(payload),
		})
	}

	rejected := 0
	for _, r := range results {
		if !r.Accepted {
			rejected++
		}
	}
	revenue := 0.0
	for _, t := range w.trucks {
		revenue += t.TotalRevenue
	}
	w.metrics.Store(WorldMetrics{
		Tick:            w.tick.Add(1),
		Subscribers:     len(w.subscribers),
		StepMS:          float64(time.Since(stepStart).Microseconds()) / 1000.0,
		ActionsDrained:  len(batch),
		ActionsRejected: rejected,
		FleetRevenue:    revenue,
	})
}
