// Package archive persists one compressed record per completed in-game day:
// the final published state document plus the demand series the collector
// observed while the day ran.
package archive

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"
)

type Header struct {
	Version int    `json:"version"`
	CityID  string `json:"city_id"`
	Day     int    `json:"day"`
	EndTick uint64 `json:"end_tick"`
}

type DayArchiveV1 struct {
	Header Header `json:"header"`

	Seed     int64 `json:"seed"`
	DayTicks int   `json:"day_ticks"`

	// FinalState is the last snapshot document published before midnight.
	FinalState json.RawMessage `json:"final_state"`

	// DemandSeries holds the per-zone demand values observed during the day,
	// in tick order. Best effort: a backed-up writer may leave gaps.
	DemandSeries map[string][]float64 `json:"demand_series"`

	RevenueByTruck map[string]float64 `json:"revenue_by_truck"`
}

type archiveMeta struct {
	Day       int    `json:"day"`
	EndTick   uint64 `json:"end_tick"`
	Seed      int64  `json:"seed"`
	Archive   string `json:"archive"`
	CreatedAt string `json:"created_at"`
	DayTicks  int    `json:"day_ticks"`
}

// WriteDayArchive writes arch to path: a JSON header line for cheap
// inspection, then the gob body, all inside one zstd stream.
func WriteDayArchive(path string, arch DayArchiveV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(arch.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&arch); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadDayArchive(path string) (DayArchiveV1, error) {
	var arch DayArchiveV1
	f, err := os.Open(path)
	if err != nil {
		return arch, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return arch, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Skip the header line; the gob body carries the header too.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&arch); err != nil {
		return arch, fmt.Errorf("gob decode: %w", err)
	}
	return arch, nil
}

// Collector watches the published state stream and cuts one archive per
// completed day. It runs on the state-writer goroutine, never on the
// simulation loop.
type Collector struct {
	dataDir  string
	cityID   string
	seed     int64
	dayTicks int
	log      *logrus.Entry

	demand  map[string][]float64
	revenue map[string]float64
}

func NewCollector(dataDir, cityID string, seed int64, dayTicks int, logger *logrus.Logger) *Collector {
	if logger == nil {
		logger = logrus.New()
	}
	return &Collector{
		dataDir:  dataDir,
		cityID:   cityID,
		seed:     seed,
		dayTicks: dayTicks,
		log:      logger.WithField("component", "archive"),
		demand:   make(map[string][]float64),
		revenue:  make(map[string]float64),
	}
}

// observedState is the slice of the snapshot document the collector needs.
// The zone demand field on the wire is the bounded recent history, oldest
// first; the last element is the tick being observed.
type observedState struct {
	Tick  uint64 `json:"tick"`
	Zones []struct {
		ID     string    `json:"id"`
		Demand []float64 `json:"demand"`
	} `json:"zones"`
	Trucks []struct {
		ID           string  `json:"id"`
		TotalRevenue float64 `json:"total_revenue"`
	} `json:"trucks"`
}

// Observe records one published state. When tick is the last tick of a day
// it writes the day's archive and resets the accumulated series.
func (c *Collector) Observe(tick uint64, payload []byte) (archivedPath string, archived bool, err error) {
	var st observedState
	if err := json.Unmarshal(payload, &st); err != nil {
		return "", false, err
	}
	for _, z := range st.Zones {
		if n := len(z.Demand); n > 0 {
			c.demand[z.ID] = append(c.demand[z.ID], z.Demand[n-1])
		}
	}
	for _, t := range st.Trucks {
		c.revenue[t.ID] = t.TotalRevenue
	}

	if c.dayTicks <= 0 || (tick+1)%uint64(c.dayTicks) != 0 {
		return "", false, nil
	}
	day := int((tick + 1) / uint64(c.dayTicks))

	arch := DayArchiveV1{
		Header: Header{
			Version: 1,
			CityID:  c.cityID,
			Day:     day,
			EndTick: tick,
		},
		Seed:           c.seed,
		DayTicks:       c.dayTicks,
		FinalState:     json.RawMessage(payload),
		DemandSeries:   c.demand,
		RevenueByTruck: c.revenue,
	}

	dir := filepath.Join(c.dataDir, "archives", fmt.Sprintf("day_%04d", day))
	path := filepath.Join(dir, "day.bin.zst")
	if err := WriteDayArchive(path, arch); err != nil {
		return "", false, err
	}

	meta := archiveMeta{
		Day:       day,
		EndTick:   tick,
		Seed:      c.seed,
		Archive:   filepath.Base(path),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
		DayTicks:  c.dayTicks,
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(dir, "meta.json"), b, 0o644)
	}

	c.demand = make(map[string][]float64)
	c.revenue = make(map[string]float64)
	c.log.WithFields(logrus.Fields{"day": day, "end_tick": tick}).Info("day archived")
	return path, true, nil
}
