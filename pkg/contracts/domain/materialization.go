package domain

import (
	"time"
)

// DateStatus is the terminal state of one requested date within a run.
type DateStatus string

const (
	DateStatusWritten      DateStatus = "written"
	DateStatusNoData       DateStatus = "no_data"
	DateStatusFailed       DateStatus = "failed"
	DateStatusNotAttempted DateStatus = "not_attempted"
	DateStatusSkipped      DateStatus = "skipped"
)

// Failure reasons reported for failed dates.
const (
	ReasonRetriesExhausted = "retries_exhausted"
	ReasonFetchRejected    = "fetch_rejected"
	ReasonNoValidRecords   = "no_valid_records"
	ReasonStoreWrite       = "store_write"
	ReasonNotPublished     = "not_published"
)

// DateOutcome records what happened to a single date.
type DateOutcome struct {
	Date     time.Time  `json:"date"`
	Status   DateStatus `json:"status"`
	Records  int        `json:"records"`
	Dropped  int        `json:"dropped"`
	Attempts int        `json:"attempts"`
	Reason   string     `json:"reason,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// DateFailure is a failed date with the reason it failed.
type DateFailure struct {
	Date     time.Time `json:"date"`
	Reason   string    `json:"reason"`
	Attempts int       `json:"attempts"`
	Error    string    `json:"error,omitempty"`
}

// MaterializationResult summarizes one materialize run.
type MaterializationResult struct {
	RunID      string    `json:"run_id"`
	Range      DateRange `json:"range"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Written      []time.Time   `json:"written"`
	NoData       []time.Time   `json:"no_data"`
	Failed       []DateFailure `json:"failed"`
	NotAttempted []time.Time   `json:"not_attempted"`
	Skipped      []time.Time   `json:"skipped"`

	RecordsUpserted int  `json:"records_upserted"`
	RecordsDropped  int  `json:"records_dropped"`
	Cancelled       bool `json:"cancelled"`

	// Outcomes holds one entry per requested date in ascending order.
	Outcomes []DateOutcome `json:"outcomes"`
}

// Succeeded is true when no date failed and every missing date was attempted.
func (r *MaterializationResult) Succeeded() bool {
	return len(r.Failed) == 0 && len(r.NotAttempted) == 0
}

// Duration of the run.
func (r *MaterializationResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// FailedDates returns the dates of Failed in order.
func (r *MaterializationResult) FailedDates() []time.Time {
	out := make([]time.Time, 0, len(r.Failed))
	for _, f := range r.Failed {
		out = append(out, f.Date)
	}
	return out
}

// Record folds an outcome into the summary lists and counters.
func (r *MaterializationResult) Record(o DateOutcome) {
	r.Outcomes = append(r.Outcomes, o)
	r.RecordsDropped += o.Dropped
	switch o.Status {
	case DateStatusWritten:
		r.Written = append(r.Written, o.Date)
		r.RecordsUpserted += o.Records
	case DateStatusNoData:
		r.NoData = append(r.NoData, o.Date)
	case DateStatusFailed:
		r.Failed = append(r.Failed, DateFailure{
			Date:     o.Date,
			Reason:   o.Reason,
			Attempts: o.Attempts,
			Error:    o.Error,
		})
	case DateStatusNotAttempted:
		r.NotAttempted = append(r.NotAttempted, o.Date)
	case DateStatusSkipped:
		r.Skipped = append(r.Skipped, o.Date)
	}
}
