// Package report aggregates verification outcomes into an immutable run report.
package report

import (
	"strconv"
	"time"

	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/endpoint"
	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/errors"
	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/verify"
)

// EndpointResult joins a descriptor with its verification outcome.
type EndpointResult struct {
	Method       string        `json:"method" yaml:"method"`
	PathTemplate string        `json:"path_template" yaml:"path_template"`
	Category     string        `json:"category" yaml:"category"`
	Priority     int           `json:"priority" yaml:"priority"`
	Status       verify.Status `json:"status" yaml:"status"`
	StatusCode   int           `json:"status_code,omitempty" yaml:"status_code,omitempty"`
	Attempts     int           `json:"attempts" yaml:"attempts"`
	ElapsedMs    int64         `json:"elapsed_ms" yaml:"elapsed_ms"`
	Summary      string        `json:"summary,omitempty" yaml:"summary,omitempty"`
	Error        string        `json:"error,omitempty" yaml:"error,omitempty"`
	SourceCount  int           `json:"source_count" yaml:"source_count"`
}

// Stats summarizes a run.
type Stats struct {
	TotalRecords   int            `json:"total_records" yaml:"total_records"`
	SkippedRecords int            `json:"skipped_records" yaml:"skipped_records"`
	TotalEndpoints int            `json:"total_endpoints" yaml:"total_endpoints"`
	ByStatus       map[string]int `json:"by_status" yaml:"by_status"`
	ByCategory     map[string]int `json:"by_category" yaml:"by_category"`
	SuccessRate    float64        `json:"success_rate" yaml:"success_rate"`
	TotalElapsedMs int64          `json:"total_elapsed_ms" yaml:"total_elapsed_ms"`
}

// Report is the final, immutable artifact of one run. Once built it is
// never mutated; consumers only read it.
type Report struct {
	RunID            string           `json:"run_id" yaml:"run_id"`
	Target           string           `json:"target,omitempty" yaml:"target,omitempty"`
	StartedAt        time.Time        `json:"started_at" yaml:"started_at"`
	FinishedAt       time.Time        `json:"finished_at" yaml:"finished_at"`
	FinalSessionMode string           `json:"final_session_mode" yaml:"final_session_mode"`
	Stats            Stats            `json:"stats" yaml:"stats"`
	Endpoints        []EndpointResult `json:"endpoints" yaml:"endpoints"`
}

// Aggregator builds reports. Aggregation is pure: it performs no I/O and
// touches no state outside its arguments.
type Aggregator struct{}

// NewAggregator creates an aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Input carries everything a report is built from.
type Input struct {
	RunID            string
	Target           string
	StartedAt        time.Time
	FinishedAt       time.Time
	FinalSessionMode string
	TotalRecords     int
	SkippedRecords   int
	Descriptors      []*endpoint.Descriptor
	Outcomes         []*verify.Outcome
}

// Aggregate joins descriptors with their outcomes, preserving the
// verification order. A mismatch between the two sets means the pipeline
// lost or duplicated work and is reported as a fatal consistency error.
func (a *Aggregator) Aggregate(in Input) (*Report, error) {
	if len(in.Descriptors) != len(in.Outcomes) {
		return nil, errors.NewConsistencyError(
			"descriptor and outcome counts diverge: " +
				strconv.Itoa(len(in.Descriptors)) + " vs " + strconv.Itoa(len(in.Outcomes)))
	}

	results := make([]EndpointResult, 0, len(in.Outcomes))
	stats := Stats{
		TotalRecords:   in.TotalRecords,
		SkippedRecords: in.SkippedRecords,
		TotalEndpoints: len(in.Descriptors),
		ByStatus:       make(map[string]int),
		ByCategory:     make(map[string]int),
	}

	succeeded := 0
	for i, o := range in.Outcomes {
		d := in.Descriptors[i]
		if d.Method != o.Method || d.PathTemplate != o.PathTemplate {
			return nil, errors.NewConsistencyError(
				"outcome at position " + strconv.Itoa(i) + " does not match its descriptor: " +
					d.Key() + " vs " + o.Method + " " + o.PathTemplate)
		}

		results = append(results, EndpointResult{
			Method:       o.Method,
			PathTemplate: o.PathTemplate,
			Category:     o.Category,
			Priority:     o.Priority,
			Status:       o.Status,
			StatusCode:   o.StatusCode,
			Attempts:     o.Attempts,
			ElapsedMs:    o.Elapsed.Milliseconds(),
			Summary:      o.Summary,
			Error:        o.Error,
			SourceCount:  len(d.SourceRecordIDs),
		})

		stats.ByStatus[string(o.Status)]++
		stats.ByCategory[o.Category]++
		stats.TotalElapsedMs += o.Elapsed.Milliseconds()
		if o.Succeeded() {
			succeeded++
		}
	}

	if len(results) > 0 {
		stats.SuccessRate = float64(succeeded) / float64(len(results))
	}

	return &Report{
		RunID:            in.RunID,
		Target:           in.Target,
		StartedAt:        in.StartedAt,
		FinishedAt:       in.FinishedAt,
		FinalSessionMode: in.FinalSessionMode,
		Stats:            stats,
		Endpoints:        results,
	}, nil
}
