// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api provides the public datastructures that can be used to
// create a runtime configuration file and to consume the results of a run.
package api

import (
	"errors"
	"fmt"
)

// ErrInvalidBounds is returned when a DateRangeBounds can't be used to
// generate date ranges.
var ErrInvalidBounds = errors.New("invalid date range bounds")

// Scenario describes one group of virtual users repeatedly calling a single
// availability endpoint for a fixed amount of time.
type Scenario struct {
	// Name identifies the scenario in checks, thresholds and reports
	// (e.g., service_logic).
	Name string `json:"name" yaml:"name"`
	// Path is the endpoint path. The literal "{roomId}" is replaced with the
	// room id of the virtual user making the request.
	Path string `json:"path" yaml:"path"`
	// Metric is the name of the trend metric latencies are recorded into.
	Metric string `json:"metric" yaml:"metric"`
	// VUs is the number of concurrently running virtual users.
	VUs int `json:"vus" yaml:"vus"`
	// RunDuration is how long the scenario runs, expressed as a Go duration
	// (e.g., 10s for 10 seconds, 5m for 5 minutes).
	RunDuration string `json:"runDuration" yaml:"runDuration"`
	// ThinkTime is the pause each virtual user takes between iterations.
	ThinkTime string `json:"thinkTime" yaml:"thinkTime"`
	// CheckLabel prefixes the names of the scenario's per-request checks
	// (e.g., serviceLogic status is 200). Defaults to Name.
	CheckLabel string `json:"checkLabel" yaml:"checkLabel"`
	// CheckLatency is the advisory latency limit used by the per-request
	// response time check. It never cuts a request short.
	CheckLatency string `json:"checkLatency" yaml:"checkLatency"`
}

// Thresholds are the pass/fail conditions evaluated once the run completes.
type Thresholds struct {
	// P95Latency is the limit for the 95th percentile of all request
	// durations across every scenario.
	P95Latency string `json:"p95Latency" yaml:"p95Latency"`
	// MaxErrorRate is the per scenario failed request rate limit, 0.01 is 1%.
	MaxErrorRate float64 `json:"maxErrorRate" yaml:"maxErrorRate"`
}

// DateRangeBounds are the inclusive limits used to generate the dates
// selected in each availability update.
type DateRangeBounds struct {
	// MinRanges and MaxRanges limit how many date ranges a request carries
	MinRanges int `json:"minRanges" yaml:"minRanges"`
	MaxRanges int `json:"maxRanges" yaml:"maxRanges"`
	// MinDurationDays and MaxDurationDays limit the number of days between
	// a range's start and end date. Zero yields a single day range.
	MinDurationDays int `json:"minDurationDays" yaml:"minDurationDays"`
	MaxDurationDays int `json:"maxDurationDays" yaml:"maxDurationDays"`
	// MinStartDaysAhead and MaxStartDaysAhead limit how far from today the
	// first range starts
	MinStartDaysAhead int `json:"minStartDaysAhead" yaml:"minStartDaysAhead"`
	MaxStartDaysAhead int `json:"maxStartDaysAhead" yaml:"maxStartDaysAhead"`
}

// Validate reports whether the bounds are usable. Every bound must be
// non-negative and every minimum must not exceed its maximum.
func (b DateRangeBounds) Validate() error {
	pairs := []struct {
		name     string
		min, max int
	}{
		{"ranges", b.MinRanges, b.MaxRanges},
		{"duration days", b.MinDurationDays, b.MaxDurationDays},
		{"start days ahead", b.MinStartDaysAhead, b.MaxStartDaysAhead},
	}
	for _, p := range pairs {
		if p.min < 0 || p.max < 0 {
			return fmt.Errorf("%w: %s bounds must not be negative, got [%d, %d]", ErrInvalidBounds, p.name, p.min, p.max)
		}
		if p.min > p.max {
			return fmt.Errorf("%w: %s minimum %d is greater than maximum %d", ErrInvalidBounds, p.name, p.min, p.max)
		}
	}
	return nil
}

// LoadTestConfig contains all the information needed to configure
// and execute a load test run
type LoadTestConfig struct {
	// BaseURL is the scheme, host and port of the service under test
	// (e.g., http://localhost:8080)
	BaseURL string `json:"baseURL" yaml:"baseURL"`
	// LoginPath is the path used to authenticate the synthetic users
	LoginPath string `json:"loginPath" yaml:"loginPath"`
	// NumUsers is the size of the synthetic user roster,
	// user1@test.com through user<NumUsers>@test.com
	NumUsers int `json:"numUsers" yaml:"numUsers"`
	// EmailFormat is the fmt format used to build each user's email from
	// its 1-based index
	EmailFormat string `json:"emailFormat" yaml:"emailFormat"`
	// Password is shared by every synthetic user
	Password string `json:"password" yaml:"password"`
	// LoginConcurrency is the number of logins in flight during setup
	LoginConcurrency int `json:"loginConcurrency" yaml:"loginConcurrency"`
	// UserOffset is added to a virtual user's number to get its user index.
	// The user index is also the id of the room the virtual user updates.
	UserOffset int `json:"userOffset" yaml:"userOffset"`
	// RqstTimeout is the HTTP client timeout for every request
	RqstTimeout string `json:"rqstTimeout" yaml:"rqstTimeout"`
	// UserAgent is sent with every request
	UserAgent string `json:"userAgent" yaml:"userAgent"`
	// NoConnectionReuse disables HTTP keep-alives
	NoConnectionReuse bool `json:"noConnectionReuse" yaml:"noConnectionReuse"`
	// CACertFile is an optional PEM file of CA certificates trusted in
	// addition to the system pool, e.g., for a self-signed server
	CACertFile string `json:"caCertFile" yaml:"caCertFile"`
	// ClientCertFile and ClientKeyFile are the PEM certificate and key
	// presented to servers requiring client authentication. Both or neither
	// must be set.
	ClientCertFile string `json:"clientCertFile" yaml:"clientCertFile"`
	ClientKeyFile  string `json:"clientKeyFile" yaml:"clientKeyFile"`
	// Seed makes the generated payloads reproducible. Zero means a
	// different sequence every run.
	Seed int64 `json:"seed" yaml:"seed"`
	// OutputType specifies if the report will be written as text or JSON.
	// Acceptable values are "text" and "json". Defaults to "text".
	OutputType string `json:"outputType" yaml:"outputType"`
	// DateRanges bounds the generated availability payloads
	DateRanges DateRangeBounds `json:"dateRanges" yaml:"dateRanges"`
	// Thresholds decide whether the run passed
	Thresholds Thresholds `json:"thresholds" yaml:"thresholds"`
	// Scenarios run in parallel, each against its own endpoint
	Scenarios []Scenario `json:"scenarios" yaml:"scenarios"`
}
