package model

import "time"

// RunStatus is the persisted status of an update_log row.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// UpdateRun summarises one orchestrator invocation that reached the running state.
type UpdateRun struct {
	ID              int64     `json:"id"`
	UpdateType      string    `json:"updateType"`
	SymbolsUpdated  int       `json:"symbolsUpdated"`
	RecordsInserted int       `json:"recordsInserted"`
	RecordsUpdated  int       `json:"recordsUpdated"`
	DurationSeconds float64   `json:"durationSeconds"`
	Status          RunStatus `json:"status"`
	ErrorMessage    string    `json:"errorMessage,omitempty"`
	StartedAt       time.Time `json:"startedAt"`
	CompletedAt     time.Time `json:"completedAt"`
}

// MergeResult reports what a merge batch did for one symbol.
// Updated counts every overwrite of an existing key, including identical rewrites;
// ChangedDates holds only dates that were inserted or whose stored content differed.
type MergeResult struct {
	Inserted     int
	Updated      int
	Rejected     int
	ChangedDates []time.Time
}

// ChangedRange returns the inclusive range spanned by ChangedDates.
func (r MergeResult) ChangedRange() DateRange {
	if len(r.ChangedDates) == 0 {
		return DateRange{}
	}
	dr := DateRange{From: r.ChangedDates[0], To: r.ChangedDates[0]}
	for _, d := range r.ChangedDates[1:] {
		if d.Before(dr.From) {
			dr.From = d
		}
		if d.After(dr.To) {
			dr.To = d
		}
	}
	return dr
}

// UpdateStatus is the staleness gate's view of the store.
type UpdateStatus struct {
	LastSuccess        *time.Time `json:"lastSuccess"`
	StalenessThreshold string     `json:"stalenessThreshold"`
	Due                bool       `json:"due"`
	LatestRun          *UpdateRun `json:"latestRun"`
}
