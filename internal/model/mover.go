package model

// Metrics holds the five OHLC fields of a bar
type Metrics struct {
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// Mover is a ticker ranked by its change between the latest two datetimes
type Mover struct {
	Profile        Company `json:"profile"`
	CurrentMetrics Metrics `json:"current_metrics"`
	MetricDeltas   Metrics `json:"metric_deltas"`
}

// MoversResponse is the list envelope for market movers
type MoversResponse struct {
	Count int     `json:"count"`
	Items []Mover `json:"items"`
}
