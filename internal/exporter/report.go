package exporter

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"

	"navpulse/pkg/contracts/domain"
)

// ReportHeaders are the columns of a run report.
var ReportHeaders = []string{
	"run_id",
	"date",
	"status",
	"records",
	"dropped",
	"attempts",
	"reason",
	"error",
}

// RunReporter writes the per-run materialization report
type RunReporter struct {
	writer *CSVWriter
}

// NewRunReporter creates a reporter writing through w
func NewRunReporter(w *CSVWriter) *RunReporter {
	return &RunReporter{writer: w}
}

// Write stores materialization_YYYYMMDD_HHMMSS.csv in the reports directory,
// one row per requested date, and returns its path.
func (r *RunReporter) Write(result *domain.MaterializationResult) (string, error) {
	if result == nil {
		return "", fmt.Errorf("no result to report")
	}

	rows := make([][]string, 0, len(result.Outcomes))
	for _, o := range result.Outcomes {
		rows = append(rows, outcomeToCSVRow(result.RunID, o))
	}

	path := r.writer.paths.GetRunReportPath(result.StartedAt)
	return r.writer.WriteCSV(path, WriteOptions{
		Headers: ReportHeaders,
		Records: rows,
	})
}

func outcomeToCSVRow(runID string, o domain.DateOutcome) []string {
	return []string{
		runID,
		formatDate(o.Date),
		string(o.Status),
		formatInt(o.Records),
		formatInt(o.Dropped),
		formatInt(o.Attempts),
		o.Reason,
		o.Error,
	}
}

// SummaryRows renders the run totals as key/value rows.
func SummaryRows(result *domain.MaterializationResult) [][]string {
	return [][]string{
		{"run_id", result.RunID},
		{"from", formatDate(result.Range.Start)},
		{"to", formatDate(result.Range.End)},
		{"started_at", formatTimestamp(result.StartedAt)},
		{"finished_at", formatTimestamp(result.FinishedAt)},
		{"duration_seconds", formatSeconds(result.Duration())},
		{"written", formatInt(len(result.Written))},
		{"no_data", formatInt(len(result.NoData))},
		{"failed", formatInt(len(result.Failed))},
		{"not_attempted", formatInt(len(result.NotAttempted))},
		{"skipped", formatInt(len(result.Skipped))},
		{"records_upserted", formatInt(result.RecordsUpserted)},
		{"records_dropped", formatInt(result.RecordsDropped)},
	}
}

// WriteSummary stores the run totals next to the per-date report as
// materialization_YYYYMMDD_HHMMSS_summary.csv.
func (r *RunReporter) WriteSummary(result *domain.MaterializationResult) (string, error) {
	if result == nil {
		return "", fmt.Errorf("no result to report")
	}
	path := r.writer.paths.GetReportPath(fmt.Sprintf("materialization_%s_summary.csv",
		result.StartedAt.UTC().Format("20060102_150405")))
	return r.writer.WriteCSV(path, WriteOptions{
		Headers: []string{"metric", "value"},
		Records: SummaryRows(result),
	})
}

// Completeness statuses.
const (
	StatusComplete   = "COMPLETE"
	StatusIncomplete = "INCOMPLETE"
	StatusHoliday    = "HOLIDAY"
)

const (
	DefaultCompletenessWindow    = 5
	DefaultCompletenessThreshold = 0.95

	// below this ratio a date is taken for a market holiday, not a short fetch
	holidayRatio = 0.5
)

// CompletenessHeaders are the columns of a completeness report.
var CompletenessHeaders = []string{
	"date",
	"scheme_count",
	"expected_count",
	"completeness_ratio",
	"status",
}

// CompletenessRow rates the scheme count of one stored date.
type CompletenessRow struct {
	Date     time.Time `json:"date"`
	Schemes  int       `json:"schemes"`
	Expected int       `json:"expected"`
	Ratio    float64   `json:"ratio"`
	Status   string    `json:"status"`
}

// CompletenessSummary counts the rated dates per status.
type CompletenessSummary struct {
	Dates           int      `json:"dates"`
	Complete        int      `json:"complete"`
	Incomplete      int      `json:"incomplete"`
	Holiday         int      `json:"holiday"`
	IncompleteDates []string `json:"incomplete_dates,omitempty"`
}

// Completeness rates each date against the rounded mean scheme count of the
// window dates before it. The first date, having none, is rated against the
// median of all counts. A ratio at or above threshold is COMPLETE, one below
// half is a HOLIDAY, anything between is INCOMPLETE.
func Completeness(counts []domain.DailySchemeCount, window int, threshold float64) []CompletenessRow {
	if len(counts) == 0 {
		return nil
	}
	if window < 1 {
		window = DefaultCompletenessWindow
	}
	sorted := slices.Clone(counts)
	slices.SortFunc(sorted, func(a, b domain.DailySchemeCount) int { return a.Date.Compare(b.Date) })

	median := medianSchemes(sorted)
	rows := make([]CompletenessRow, len(sorted))
	for i, c := range sorted {
		expected := median
		if i > 0 {
			sum := 0
			from := max(0, i-window)
			for _, prev := range sorted[from:i] {
				sum += prev.Schemes
			}
			expected = int(math.Round(float64(sum) / float64(i-from)))
		}

		row := CompletenessRow{Date: c.Date, Schemes: c.Schemes, Expected: expected}
		if expected > 0 {
			row.Ratio = float64(c.Schemes) / float64(expected)
		}
		switch {
		case row.Ratio >= threshold:
			row.Status = StatusComplete
		case row.Ratio < holidayRatio:
			row.Status = StatusHoliday
		default:
			row.Status = StatusIncomplete
		}
		rows[i] = row
	}
	return rows
}

func medianSchemes(counts []domain.DailySchemeCount) int {
	n := make([]int, len(counts))
	for i, c := range counts {
		n[i] = c.Schemes
	}
	slices.Sort(n)
	mid := len(n) / 2
	if len(n)%2 == 1 {
		return n[mid]
	}
	return (n[mid-1] + n[mid]) / 2
}

// SummarizeCompleteness counts rows per status.
func SummarizeCompleteness(rows []CompletenessRow) CompletenessSummary {
	s := CompletenessSummary{Dates: len(rows)}
	for _, r := range rows {
		switch r.Status {
		case StatusComplete:
			s.Complete++
		case StatusHoliday:
			s.Holiday++
		default:
			s.Incomplete++
			s.IncompleteDates = append(s.IncompleteDates, formatDate(r.Date))
		}
	}
	return s
}

// WriteCompleteness stores nav_validation_YYYYMMDD.csv for the day of at in
// the reports directory and returns its path.
func (r *RunReporter) WriteCompleteness(rows []CompletenessRow, at time.Time) (string, error) {
	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		records = append(records, []string{
			formatDate(row.Date),
			formatInt(row.Schemes),
			formatInt(row.Expected),
			strconv.FormatFloat(row.Ratio, 'f', 4, 64),
			row.Status,
		})
	}
	return r.writer.WriteCSV(r.writer.paths.GetValidationReportPath(at), WriteOptions{
		Headers: CompletenessHeaders,
		Records: records,
	})
}
