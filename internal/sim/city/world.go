package city

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// World is the single-threaded authoritative simulation. All mutable state
// must be accessed only from the world loop goroutine; everything exposed
// outward is an immutable snapshot taken at publish time.
type World struct {
	cfg    Config
	demand *DemandModel

	tick atomic.Uint64

	zones     []*Zone // ordered per config
	zoneByID  map[string]*Zone
	trucks    []*Truck // ordered per config
	truckByID map[string]*Truck

	queue ActionQueue

	subJoin  chan SubscriberJoin
	subLeave chan string
	stop     chan struct{}

	subscribers map[string]chan []byte

	// latest published snapshot, for lock-free synchronous reads.
	latestJSON atomic.Value // []byte
	latestSnap atomic.Value // *Snapshot

	// results of the most recent drain, for the bridge's next context.
	lastResults atomic.Value // []ActionResult

	metrics atomic.Value // WorldMetrics

	// Optional sinks (may be nil). Writing happens off-thread; a backed-up
	// sink drops rather than stalls the loop.
	tickLogger TickLogger
	stateSink  chan<- PublishedState

	log *logrus.Entry
}

// SubscriberJoin registers an observer output channel with the loop.
// The channel is independently bounded; a full channel loses its oldest
// unread snapshot, never blocking the publisher.
type SubscriberJoin struct {
	ID  string
	Out chan []byte
}

// PublishedState is the per-tick hand-off to the shared-state writer.
type PublishedState struct {
	Tick    uint64
	Payload []byte
}

// TickLogger records one entry per tick. Implemented in
// internal/persistence/log.
type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type TickLogEntry struct {
	Tick    uint64         `json:"tick"`
	Results []ActionResult `json:"results,omitempty"`
	Digest  string         `json:"digest"`
}

// WorldMetrics is a point-in-time operational summary, safe to read from
// any goroutine.
type WorldMetrics struct {
	Tick            uint64  `json:"tick"`
	Subscribers     int     `json:"subscribers"`
	StepMS          float64 `json:"step_ms"`
	ActionsDrained  int     `json:"actions_drained"`
	ActionsRejected int     `json:"actions_rejected"`
	FleetRevenue    float64 `json:"fleet_revenue"`
}

func New(cfg Config, queue ActionQueue, logger *logrus.Logger) (*World, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if queue == nil {
		queue = NewMemoryQueue()
	}
	if logger == nil {
		logger = logrus.New()
	}

	w := &World{
		cfg:         cfg,
		zoneByID:    make(map[string]*Zone, len(cfg.Zones)),
		truckByID:   make(map[string]*Truck, len(cfg.Trucks)),
		queue:       queue,
		subJoin:     make(chan SubscriberJoin, 16),
		subLeave:    make(chan string, 16),
		stop:        make(chan struct{}),
		subscribers: make(map[string]chan []byte),
		log:         logger.WithField("component", "world"),
	}

	zoneIDs := make([]string, 0, len(cfg.Zones))
	for _, zc := range cfg.Zones {
		z := &Zone{
			ID:              zc.ID,
			BaseMultiplier:  zc.BaseMultiplier,
			PeakMultiplier:  zc.PeakMultiplier,
			PeakHours:       append([]PeakWindow(nil), zc.PeakHours...),
			MaxOrders:       zc.MaxOrders,
			ParkingCapacity: zc.ParkingCapacity,
			TravelCost:      zc.TravelCost,
		}
		w.zones = append(w.zones, z)
		w.zoneByID[z.ID] = z
		zoneIDs = append(zoneIDs, z.ID)
	}
	w.demand = NewDemandModel(cfg.Seed, cfg.DayTicks, zoneIDs)

	for _, tc := range cfg.Trucks {
		restockZone := tc.RestockZone
		if restockZone == "" {
			restockZone = tc.StartZone
		}
		t := &Truck{
			ID:                 tc.ID,
			Status:             StatusIdle,
			CurrentZone:        tc.StartZone,
			Inventory:          tc.Inventory,
			MaxInventory:       tc.MaxInventory,
			SpeedMultiplier:    tc.SpeedMultiplier,
			RestockFixedFee:    tc.RestockFixedFee,
			RestockPerUnitCost: tc.RestockPerUnitCost,
			RestockZone:        restockZone,
		}
		w.trucks = append(w.trucks, t)
		w.truckByID[t.ID] = t
	}

	return w, nil
}

func (w *World) ID() string                            { return w.cfg.ID }
func (w *World) CurrentTick() uint64                   { return w.tick.Load() }
func (w *World) DayTicks() int                         { return w.cfg.DayTicks }
func (w *World) Queue() ActionQueue                    { return w.queue }
func (w *World) SetTickLogger(l TickLogger)            { w.tickLogger = l }
func (w *World) SetStateSink(ch chan<- PublishedState) { w.stateSink = ch }

func (w *World) SubscriberJoinC() chan<- SubscriberJoin { return w.subJoin }
func (w *World) SubscriberLeaveC() chan<- string        { return w.subLeave }

func (w *World) Metrics() WorldMetrics {
	if m, ok := w.metrics.Load().(WorldMetrics); ok {
		return m
	}
	return WorldMetrics{}
}

// LatestJSON returns the most recently published snapshot document, or nil
// before the first tick.
func (w *World) LatestJSON() []byte {
	if b, ok := w.latestJSON.Load().([]byte); ok {
		return b
	}
	return nil
}

// LatestSnapshot returns the most recently published snapshot.
func (w *World) LatestSnapshot() (*Snapshot, bool) {
	s, ok := w.latestSnap.Load().(*Snapshot)
	return s, ok && s != nil
}

// LastResults returns the outcomes of the most recent drain, so the bridge
// can surface rejections in the agent's next context.
func (w *World) LastResults() []ActionResult {
	if r, ok := w.lastResults.Load().([]ActionResult); ok {
		return r
	}
	return nil
}

// Forecast projects a zone's hourly demand from the latest published tick.
// Pure function of static config and tick, so it is safe off-loop.
func (w *World) Forecast(zoneID string, hours int) ([]float64, error) {
	z, ok := w.zoneByID[zoneID]
	if !ok {
		return nil, errUnknownZone(zoneID)
	}
	return w.demand.HourlyForecast(z, w.tick.Load(), hours), nil
}

// RankedForecast returns all zones ranked by projected demand from the
// latest published tick.
func (w *World) RankedForecast(hours int) []ZoneForecast {
	return w.demand.RankZones(w.zones, w.tick.Load(), hours)
}

func (w *World) stateDigest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8])
}

func marshalSnapshot(s *Snapshot) []byte {
	b, err := json.Marshal(s)
	if err != nil {
		// Snapshot types contain nothing unmarshalable; treat as impossible.
		panic(err)
	}
	return b
}

// sendLatest delivers b without ever blocking: when the subscriber's queue
// is full its oldest unread snapshot is dropped first.
func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
