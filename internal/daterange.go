// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package internal

import (
	"time"

	"github.com/youngkin/availbench/api"
)

const (
	minRangeGapDays = 1
	maxRangeGapDays = 7
)

// IntSource is the source of randomness used to generate date ranges.
// *rand.Rand satisfies it.
type IntSource interface {
	// Intn returns a value in [0, n)
	Intn(n int) int
}

// randInt returns a value in [min, max], both ends included
func randInt(src IntSource, min, max int) int {
	return min + src.Intn(max-min+1)
}

// GenerateDateRanges returns between b.MinRanges and b.MaxRanges date ranges.
// The first range starts MinStartDaysAhead to MaxStartDaysAhead days after
// today, each following range starts 1 to 7 days after the previous one ends.
// Every range lasts MinDurationDays to MaxDurationDays days past its start.
func GenerateDateRanges(src IntSource, today time.Time, b api.DateRangeBounds) ([]api.DateRange, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	numRanges := randInt(src, b.MinRanges, b.MaxRanges)
	ranges := make([]api.DateRange, 0, numRanges)
	day := api.NewDate(today)

	var lastEnd api.Date
	for i := 0; i < numRanges; i++ {
		var start api.Date
		if i == 0 {
			start = day.AddDays(randInt(src, b.MinStartDaysAhead, b.MaxStartDaysAhead))
		} else {
			start = lastEnd.AddDays(randInt(src, minRangeGapDays, maxRangeGapDays))
		}
		end := start.AddDays(randInt(src, b.MinDurationDays, b.MaxDurationDays))

		ranges = append(ranges, api.DateRange{StartDate: start, EndDate: end})
		lastEnd = end
	}
	return ranges, nil
}
