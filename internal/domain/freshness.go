package domain

import "time"

// FreshnessReport describes how current a table's data is at a point in time.
// FreshnessSeconds is the age of the most recent write; P95FreshnessSeconds
// is the 95th percentile of per-row age, so a stalled subset shows up even
// while the newest row stays fresh.
type FreshnessReport struct {
	Table               string
	TotalRecords        int64
	LatestUpdate        *time.Time // nil when the table is empty
	FreshnessSeconds    float64
	P95FreshnessSeconds float64
}
