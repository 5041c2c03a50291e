// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package internal

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youngkin/availbench/api"
)

func checks(scenario string, statusOK, fast bool) []Check {
	return []Check{
		{Name: scenario + " status is 200", Passed: statusOK},
		{Name: scenario + " response time < 1000ms", Passed: fast},
	}
}

func TestResponseHandler(t *testing.T) {
	responseC := make(chan Response, 10)
	rh := &ResponseHandler{ResponseC: responseC, DoneC: make(chan struct{})}
	go rh.Start()

	resps := []Response{
		{Scenario: "service_logic", Metric: "service_logic_duration", HTTPStatus: http.StatusOK,
			RequestDuration: 100 * time.Millisecond, Checks: checks("service_logic", true, true)},
		{Scenario: "service_logic", Metric: "service_logic_duration", HTTPStatus: http.StatusOK,
			RequestDuration: 1500 * time.Millisecond, Checks: checks("service_logic", true, false)},
		{Scenario: "service_logic", Metric: "service_logic_duration", HTTPStatus: http.StatusBadRequest,
			RequestDuration: 50 * time.Millisecond, Checks: checks("service_logic", false, true)},
		{Scenario: "sql_logic", Metric: "sql_logic_duration", HTTPStatus: http.StatusOK,
			RequestDuration: 200 * time.Millisecond, Checks: checks("sql_logic", true, true)},
		{Scenario: "sql_logic", Metric: "sql_logic_duration", Err: errors.New("connection refused"),
			RequestDuration: 10 * time.Millisecond, Checks: checks("sql_logic", false, false)},
	}
	for _, resp := range resps {
		responseC <- resp
	}
	close(responseC)
	<-rh.DoneC

	results := rh.Results()
	summary := results.RunSummary
	assert.EqualValues(t, 5, summary.RqstStats.TotalRqsts)
	assert.EqualValues(t, 2, summary.FailedRqsts)
	assert.Equal(t, 10*time.Millisecond, summary.RqstStats.MinRqstDurationNanos)
	assert.Equal(t, 1500*time.Millisecond, summary.RqstStats.MaxRqstDurationNanos)
	assert.Equal(t, 1860*time.Millisecond, summary.RqstStats.TotalRequestDurationNanos)
	assert.Equal(t, 372*time.Millisecond, summary.RqstStats.AvgRqstDurationNanos)
	assert.Len(t, summary.RqstStats.TimingResultsNanos, 5)

	require.Len(t, results.Scenarios, 2)

	svc := results.Scenarios["service_logic"]
	require.NotNil(t, svc)
	assert.Equal(t, "service_logic_duration", svc.Metric)
	assert.EqualValues(t, 3, svc.RqstStats.TotalRqsts)
	assert.EqualValues(t, 1, svc.FailedRqsts)
	assert.InDelta(t, 1.0/3, svc.ErrorRate(), 0.0001)
	assert.Equal(t, map[int]int{http.StatusOK: 2, http.StatusBadRequest: 1}, svc.HTTPStatusDist)
	assert.Equal(t, map[string]*api.CheckStats{
		"service_logic status is 200":          {Passes: 2, Fails: 1},
		"service_logic response time < 1000ms": {Passes: 2, Fails: 1},
	}, svc.Checks)
	assert.Equal(t, 50*time.Millisecond, svc.RqstStats.MinRqstDurationNanos)
	assert.Equal(t, 550*time.Millisecond, svc.RqstStats.AvgRqstDurationNanos)

	sql := results.Scenarios["sql_logic"]
	require.NotNil(t, sql)
	assert.EqualValues(t, 1, sql.FailedRqsts)
	assert.Equal(t, map[int]int{http.StatusOK: 1, 0: 1}, sql.HTTPStatusDist)
	assert.Equal(t, 0.5, sql.ErrorRate())
}

func TestResponseHandlerNoResponses(t *testing.T) {
	responseC := make(chan Response)
	rh := &ResponseHandler{ResponseC: responseC, DoneC: make(chan struct{})}
	go rh.Start()
	close(responseC)
	<-rh.DoneC

	results := rh.Results()
	assert.Empty(t, results.Scenarios)
	assert.EqualValues(t, 0, results.RunSummary.RqstStats.TotalRqsts)
	assert.Equal(t, time.Duration(0), results.RunSummary.RqstStats.MinRqstDurationNanos)
	assert.Equal(t, time.Duration(0), results.RunSummary.RqstStats.MaxRqstDurationNanos)
	assert.Equal(t, float64(0), results.RunSummary.RqstRatePerSec)
}
