// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the wire format of a Date
const DateLayout = "2006-01-02"

// Credential identifies one synthetic user
type Credential struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Date is a calendar date. The wrapped time is always midnight UTC.
type Date struct {
	time.Time
}

// NewDate returns the calendar date of t, ignoring its clock and location
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD date
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", s, err)
	}
	return Date{t}, nil
}

// AddDays returns the date n calendar days after d
func (d Date) AddDays(n int) Date {
	return Date{d.AddDate(0, 0, n)}
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

// MarshalJSON encodes the date as "YYYY-MM-DD"
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes a "YYYY-MM-DD" string
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DateRange is an inclusive range of calendar dates
type DateRange struct {
	StartDate Date `json:"startDate"`
	EndDate   Date `json:"endDate"`
}

// AvailabilityUpdateRequest is the payload sent to the availability endpoints
type AvailabilityUpdateRequest struct {
	DateSelected []DateRange `json:"dateSelected"`
	IsAvailable  bool        `json:"isAvailable"`
}
