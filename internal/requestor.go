// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/youngkin/availbench/api"
)

const roomIDParam = "{roomId}"

// Requestor makes the availability update requests for a single scenario.
// It's shared by all of the scenario's virtual users and holds no per
// iteration state.
type Requestor struct {
	Client   *http.Client
	BaseURL  string
	Scenario api.Scenario
	Bounds   api.DateRangeBounds
	// Tokens are index aligned with the user roster, Tokens[0] is user 1's
	Tokens       []string
	CheckLatency time.Duration
	UserAgent    string
	// ResponseC receives the outcome of every request
	ResponseC chan<- Response
	// Today returns the current date. Defaults to time.Now.
	Today func() time.Time
}

// ProcessRqst sends one availability update for the room owned by
// userIdx (1-based) and reports the outcome on ResponseC.
func (r Requestor) ProcessRqst(ctx context.Context, userIdx int, rnd *rand.Rand) {
	resp := Response{Scenario: r.Scenario.Name, Metric: r.Scenario.Metric}

	req, err := r.newRequest(ctx, userIdx, rnd)
	if err != nil {
		log.Error().Err(err).Msgf("%s: unable to create request for user %d", r.Scenario.Name, userIdx)
		resp.Err = err
		r.report(resp)
		return
	}

	start := time.Now()
	httpResp, err := r.Client.Do(req)
	if err != nil {
		resp.RequestDuration = time.Since(start)
		log.Debug().Err(err).Msgf("%s: error sending request for user %d", r.Scenario.Name, userIdx)
		resp.Err = err
		r.report(resp)
		return
	}
	// Drain the body so the connection can be reused and the measured
	// duration includes receiving the response.
	_, err = io.Copy(io.Discard, httpResp.Body)
	httpResp.Body.Close()
	resp.RequestDuration = time.Since(start)
	resp.HTTPStatus = httpResp.StatusCode
	if err != nil {
		resp.Err = fmt.Errorf("reading response body: %w", err)
	}
	r.report(resp)
}

func (r Requestor) newRequest(ctx context.Context, userIdx int, rnd *rand.Rand) (*http.Request, error) {
	if userIdx < 1 || userIdx > len(r.Tokens) {
		return nil, fmt.Errorf("user index %d has no token, %d tokens available", userIdx, len(r.Tokens))
	}
	token := r.Tokens[userIdx-1]
	roomID := userIdx

	today := time.Now
	if r.Today != nil {
		today = r.Today
	}
	dateSelected, err := GenerateDateRanges(rnd, today(), r.Bounds)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(api.AvailabilityUpdateRequest{
		DateSelected: dateSelected,
		IsAvailable:  rnd.Float64() < 0.5,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling availability update: %w", err)
	}

	url := r.BaseURL + strings.ReplaceAll(r.Scenario.Path, roomIDParam, strconv.Itoa(roomID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if r.UserAgent != "" {
		req.Header.Set("User-Agent", r.UserAgent)
	}
	return req, nil
}

// report attaches the scenario's checks to resp and forwards it
func (r Requestor) report(resp Response) {
	label := r.Scenario.CheckLabel
	if label == "" {
		label = r.Scenario.Name
	}
	resp.Checks = []Check{
		{
			Name:   fmt.Sprintf("%s status is 200", label),
			Passed: resp.Err == nil && resp.HTTPStatus == http.StatusOK,
		},
		{
			Name:   fmt.Sprintf("%s response time < %s", label, formatLimit(r.CheckLatency)),
			Passed: resp.Err == nil && resp.RequestDuration < r.CheckLatency,
		},
	}
	r.ResponseC <- resp
}

// formatLimit renders whole millisecond durations the way thresholds are
// usually written, e.g., 1000ms rather than 1s.
func formatLimit(d time.Duration) string {
	if d%time.Millisecond == 0 {
		return fmt.Sprintf("%dms", d/time.Millisecond)
	}
	return d.String()
}
