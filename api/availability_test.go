// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailabilityUpdateRequestWireFormat(t *testing.T) {
	rqst := AvailabilityUpdateRequest{
		DateSelected: []DateRange{
			{StartDate: NewDate(time.Date(2026, time.December, 30, 15, 4, 5, 0, time.Local)), EndDate: NewDate(time.Date(2027, time.January, 2, 0, 0, 0, 0, time.UTC))},
		},
		IsAvailable: true,
	}

	b, err := json.Marshal(rqst)
	require.NoError(t, err)
	assert.JSONEq(t, `{"dateSelected":[{"startDate":"2026-12-30","endDate":"2027-01-02"}],"isAvailable":true}`, string(b))

	var decoded AvailabilityUpdateRequest
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, rqst, decoded)
}

func TestDateUnmarshalErrors(t *testing.T) {
	var d Date
	assert.Error(t, json.Unmarshal([]byte(`"2026-13-01"`), &d))
	assert.Error(t, json.Unmarshal([]byte(`"12/30/2026"`), &d))
	assert.Error(t, json.Unmarshal([]byte(`20261230`), &d))
}

func TestDateRangeBoundsValidate(t *testing.T) {
	tests := []struct {
		name       string
		bounds     DateRangeBounds
		shouldFail bool
	}{
		{name: "equal bounds", bounds: DateRangeBounds{MinRanges: 3, MaxRanges: 3, MinDurationDays: 2, MaxDurationDays: 2, MinStartDaysAhead: 1, MaxStartDaysAhead: 1}},
		{name: "zeros", bounds: DateRangeBounds{}},
		{name: "ranges reversed", bounds: DateRangeBounds{MinRanges: 2, MaxRanges: 1}, shouldFail: true},
		{name: "negative start", bounds: DateRangeBounds{MinRanges: 1, MaxRanges: 1, MinStartDaysAhead: -1}, shouldFail: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.bounds.Validate()
			if tc.shouldFail {
				assert.ErrorIs(t, err, ErrInvalidBounds)
				return
			}
			assert.NoError(t, err)
		})
	}
}
