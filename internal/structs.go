// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package internal

import (
	"net/http"
	"time"
)

// Check is the outcome of a single non-fatal assertion about a response
type Check struct {
	Name   string
	Passed bool
}

// Response contains information describing the results
// of a request made by a scenario's virtual user
type Response struct {
	Scenario string
	Metric   string
	// HTTPStatus is 0 when the request failed before a response was received
	HTTPStatus      int
	RequestDuration time.Duration
	Err             error
	Checks          []Check
}

// Failed reports whether the request counts against the scenario's error rate
func (r Response) Failed() bool {
	return r.Err != nil || r.HTTPStatus != http.StatusOK
}
