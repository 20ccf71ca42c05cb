package protocol

// SubmitResponse acknowledges an action submission.
type SubmitResponse struct {
	Accepted bool   `json:"accepted"`
	ID       string `json:"id,omitempty"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message,omitempty"`
}

// ForecastResponse answers a forecast request synchronously.
type ForecastResponse struct {
	ZoneID       string    `json:"zone_id"`
	FromTick     uint64    `json:"from_tick"`
	HourlyOrders []float64 `json:"hourly_orders"`
}

// HealthResponse reports shared-state store reachability.
type HealthResponse struct {
	Status            string `json:"status"`
	Store             string `json:"store"`
	SnapshotWriteFail int    `json:"snapshot_write_failures,omitempty"`
	Error             string `json:"error,omitempty"`
}
