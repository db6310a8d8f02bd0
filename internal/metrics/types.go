package metrics

import "time"

// Stats represents aggregated daily statistics
type Stats struct {
	TotalPublished int64              `json:"total_published"`
	TotalGenerated int64              `json:"total_generated"`
	TotalFailed    int64              `json:"total_failed"`
	TotalCost      float64            `json:"total_cost"`
	Destinations   []DestinationStats `json:"destinations"`
	LastTick       time.Time          `json:"last_tick"`
}

// DestinationStats represents publish statistics for one destination
type DestinationStats struct {
	Name      string `json:"name"`
	Published int64  `json:"published"`
}
