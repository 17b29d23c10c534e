package domain

import "time"

// MaintenanceStats counts rows removed from the processed table.
type MaintenanceStats struct {
	Expired int64
	Stale   int64
}

// CollectStats summarizes one collector stage across all sources.
type CollectStats struct {
	Fetched      int
	Inserted     int
	Duplicates   int
	SkippedStale int
	SourceErrors int
	StoreErrors  int
}

// ProcessStats summarizes one processor stage.
type ProcessStats struct {
	Selected    int
	Relevant    int
	Irrelevant  int
	Expired     int
	Quarantined int
	Retried     int
	Published   int
	Errors      int
}

// RunStats is the outcome of a full maintenance-collect-process run.
type RunStats struct {
	Maintenance MaintenanceStats
	Collect     CollectStats
	Process     ProcessStats
	Duration    time.Duration
}
