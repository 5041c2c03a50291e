// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import "time"

// RqstStats contains a set of common runtime stats reported at both the
// Summary and Scenario level
type RqstStats struct {
	// TimingResultsNanos contains the duration of each request.
	TimingResultsNanos []time.Duration
	// TotalRqsts is the overall number of requests made during the run
	TotalRqsts int64
	// TotalRequestDurationNanos is the sum of all request run durations
	TotalRequestDurationNanos time.Duration
	// MaxRqstDurationNanos is the longest request duration
	MaxRqstDurationNanos time.Duration
	// MinRqstDurationNanos is the smallest request duration
	MinRqstDurationNanos time.Duration
	// AvgRqstDurationNanos is the average duration of a request
	AvgRqstDurationNanos time.Duration
}

// CheckStats counts the outcomes of a named check
type CheckStats struct {
	Passes int64
	Fails  int64
}

// ScenarioResults is used to report the results of a load test run
// for a given scenario.
type ScenarioResults struct {
	// Name is the scenario name
	Name string
	// Metric is the name of the trend metric the latencies were recorded into
	Metric string
	// Iterations is the number of completed virtual user iterations
	Iterations int64
	// FailedRqsts is the number of requests that errored or didn't return 200
	FailedRqsts int64
	// HTTPStatusDist is a map of HTTP Status (e.g., 200, 201, 404, etc)
	// to the number of occurrences. Transport errors are counted under 0.
	HTTPStatusDist map[int]int
	// Checks are keyed by check name
	Checks map[string]*CheckStats
	// RqstStats is the trend for the scenario's metric
	RqstStats RqstStats
}

// ErrorRate is the fraction of requests that failed
func (s ScenarioResults) ErrorRate() float64 {
	if s.RqstStats.TotalRqsts == 0 {
		return 0
	}
	return float64(s.FailedRqsts) / float64(s.RqstStats.TotalRqsts)
}

// ThresholdResult is the outcome of evaluating one threshold
type ThresholdResult struct {
	// Metric is the metric the threshold applies to, e.g.,
	// http_req_failed{scenario:sql_logic}
	Metric string
	// Condition is the threshold expression, e.g., p(95)<500ms
	Condition string
	// Observed is the measured value
	Observed string
	Passed   bool
}

// RunResults is used to report an overview of the results of a
// load test run
type RunResults struct {
	// RunID uniquely identifies the run
	RunID string
	// RunSummary is a roll-up of the detailed run results
	RunSummary RunSummary
	// Scenarios are the per scenario results keyed by scenario name
	Scenarios map[string]*ScenarioResults
	// Thresholds are the evaluated pass/fail conditions
	Thresholds []ThresholdResult
	// Passed is true when every threshold passed
	Passed bool
}

// RunSummary is a roll-up of the detailed run results
type RunSummary struct {
	// RqstRatePerSec is the overall request rate per second
	RqstRatePerSec float64
	// RunDurationNanos is the wall clock duration of the test
	RunDurationNanos time.Duration
	// RqstStats is a summary of runtime statistics
	RqstStats RqstStats
	// FailedRqsts is the number of failed requests across all scenarios
	FailedRqsts int64
}
