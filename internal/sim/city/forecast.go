package city

import "sort"

// ZoneForecast summarizes a zone's projected demand over a horizon.
type ZoneForecast struct {
	ZoneID       string    `json:"zone_id"`
	HourlyOrders []float64 `json:"hourly_orders"`
	MeanOrders   float64   `json:"mean_orders"`
}

// HourlyForecast projects the zone's demand from the given tick, returning
// one mean value per hour of the horizon. The projection uses the same
// model as the live demand curve, noise included, so it is deterministic
// for a fixed seed.
func (m *DemandModel) HourlyForecast(z *Zone, fromTick uint64, hours int) []float64 {
	if hours <= 0 {
		hours = 1
	}
	out := make([]float64, 0, hours)
	for h := 0; h < hours; h++ {
		sum := 0.0
		for min := 0; min < 60; min++ {
			sum += m.DemandAt(z, fromTick+uint64(h*60+min))
		}
		out = append(out, sum/60)
	}
	return out
}

// RankZones returns per-zone forecasts sorted by mean projected demand,
// highest first. Ties break on zone id so the ordering is stable.
func (m *DemandModel) RankZones(zones []*Zone, fromTick uint64, hours int) []ZoneForecast {
	out := make([]ZoneForecast, 0, len(zones))
	for _, z := range zones {
		hourly := m.HourlyForecast(z, fromTick, hours)
		mean := 0.0
		for _, v := range hourly {
			mean += v
		}
		mean /= float64(len(hourly))
		out = append(out, ZoneForecast{ZoneID: z.ID, HourlyOrders: hourly, MeanOrders: mean})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MeanOrders != out[j].MeanOrders {
			return out[i].MeanOrders > out[j].MeanOrders
		}
		return out[i].ZoneID < out[j].ZoneID
	})
	return out
}
