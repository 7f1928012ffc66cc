package domain

// Stats is a read-only rollup over the queue and configuration counters.
type Stats struct {
	TotalScanned  int64      `json:"totalScanned"`
	TotalQueued   int64      `json:"totalQueued"`
	TotalPending  int64      `json:"totalPending"`
	TotalApproved int64      `json:"totalApproved"`
	TotalListed   int64      `json:"totalListed"`
	TotalRejected int64      `json:"totalRejected"`
	TotalExpired  int64      `json:"totalExpired"`
	ByDay         []DayStats `json:"byDay"`
}

// DayStats counts items discovered on one UTC day, split by their current status.
type DayStats struct {
	Day      string `json:"day"`
	Queued   int64  `json:"queued"`
	Approved int64  `json:"approved"`
	Listed   int64  `json:"listed"`
	Rejected int64  `json:"rejected"`
}

// StatsWindowDays bounds the ByDay breakdown.
const StatsWindowDays = 30
