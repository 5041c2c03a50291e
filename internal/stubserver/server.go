// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package stubserver is a small in-memory stand-in for the booking
// service's login and room availability endpoints. It lets availbench be
// exercised without the real service.
package stubserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/youngkin/availbench/api"
	"golang.org/x/crypto/bcrypt"
)

// Config configures a Server
type Config struct {
	// NumUsers is the size of the synthetic user roster
	NumUsers int
	// EmailFormat is the fmt format of a user's email given its index
	EmailFormat string
	// Password is shared by every user
	Password string
	// Secret signs the issued tokens
	Secret []byte
	// TokenTTL is how long an issued token is valid
	TokenTTL time.Duration
	// ServiceDelay and SQLDelay are added to every availability update made
	// through the respective endpoint
	ServiceDelay time.Duration
	SQLDelay     time.Duration
	// Now returns the current time used to reject dates in the past.
	// Defaults to time.Now. Token lifetimes always use the wall clock.
	Now func() time.Time
}

// Server implements the login and availability endpoints
type Server struct {
	config  Config
	pwHash  []byte
	emails  map[string]int
	mu      sync.Mutex
	rooms   map[int]map[string]bool
	updates map[string]int
}

// New returns a Server for config
func New(config Config) (*Server, error) {
	if config.NumUsers < 1 {
		return nil, fmt.Errorf("NumUsers must be at least 1, got %d", config.NumUsers)
	}
	if len(config.Secret) == 0 {
		return nil, errors.New("a token signing secret is required")
	}
	if config.TokenTTL == 0 {
		config.TokenTTL = time.Hour
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	// MinCost, every run starts with hundreds of logins
	pwHash, err := bcrypt.GenerateFromPassword([]byte(config.Password), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	emails := make(map[string]int, config.NumUsers)
	for i := 1; i <= config.NumUsers; i++ {
		emails[fmt.Sprintf(config.EmailFormat, i)] = i
	}

	return &Server{
		config:  config,
		pwHash:  pwHash,
		emails:  emails,
		rooms:   make(map[int]map[string]bool),
		updates: make(map[string]int),
	}, nil
}

// Handler returns the server's routes wrapped in access logging
func (s *Server) Handler(logger zerolog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /users/login", s.login)
	mux.HandleFunc("POST /host/rooms/{roomId}/availability", s.availability("service", s.config.ServiceDelay))
	mux.HandleFunc("POST /host/rooms/{roomId}/availability/sql", s.availability("sql", s.config.SQLDelay))

	h := hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str("url", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("")
	})(mux)
	return hlog.NewHandler(logger)(h)
}

// Available reports the stored availability of a room on a date
func (s *Server) Available(roomID int, date api.Date) (available, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	available, ok = s.rooms[roomID][date.String()]
	return available, ok
}

// Updates returns the number of accepted updates keyed by endpoint
// ("service" or "sql")
func (s *Server) Updates() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	updates := make(map[string]int, len(s.updates))
	for k, v := range s.updates {
		updates[k] = v
	}
	return updates
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var cred api.Credential
	if err := json.NewDecoder(r.Body).Decode(&cred); err != nil {
		http.Error(w, "malformed login request", http.StatusBadRequest)
		return
	}

	userIdx, ok := s.emails[cred.Email]
	if !ok {
		http.Error(w, "invalid email or password", http.StatusUnauthorized)
		return
	}
	if err := bcrypt.CompareHashAndPassword(s.pwHash, []byte(cred.Password)); err != nil {
		http.Error(w, "invalid email or password", http.StatusUnauthorized)
		return
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   strconv.Itoa(userIdx),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TokenTTL)),
	})
	signed, err := token.SignedString(s.config.Secret)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("signing token")
		http.Error(w, "unable to issue token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(signed))
}

func (s *Server) availability(endpoint string, delay time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userIdx, err := s.authenticate(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		roomID, err := strconv.Atoi(r.PathValue("roomId"))
		if err != nil {
			http.Error(w, "invalid room id", http.StatusBadRequest)
			return
		}
		if roomID != userIdx {
			http.Error(w, "room is not owned by the user", http.StatusForbidden)
			return
		}

		var rqst api.AvailabilityUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&rqst); err != nil {
			http.Error(w, "malformed availability update: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := ValidateDateSelected(rqst.DateSelected, api.NewDate(s.config.Now())); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if delay > 0 {
			time.Sleep(delay)
		}
		s.apply(endpoint, roomID, rqst)
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) authenticate(r *http.Request) (int, error) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return 0, errors.New("missing bearer token")
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(strings.TrimPrefix(auth, "Bearer "), claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.config.Secret, nil
	})
	if err != nil {
		return 0, fmt.Errorf("invalid token: %w", err)
	}

	userIdx, err := strconv.Atoi(claims.Subject)
	if err != nil {
		return 0, fmt.Errorf("invalid token subject %q", claims.Subject)
	}
	return userIdx, nil
}

func (s *Server) apply(endpoint string, roomID int, rqst api.AvailabilityUpdateRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	calendar, ok := s.rooms[roomID]
	if !ok {
		calendar = make(map[string]bool)
		s.rooms[roomID] = calendar
	}
	for _, dr := range rqst.DateSelected {
		for d := dr.StartDate; !d.After(dr.EndDate.Time); d = d.AddDays(1) {
			calendar[d.String()] = rqst.IsAvailable
		}
	}
	s.updates[endpoint]++
}

// ValidateDateSelected checks the selected dates the way the booking
// service does: at least one range, every range starts on or before its
// end, nothing starts before today and, once sorted, no two ranges overlap.
func ValidateDateSelected(dateSelected []api.DateRange, today api.Date) error {
	if len(dateSelected) == 0 {
		return errors.New("dateSelected must not be empty")
	}

	sorted := make([]api.DateRange, len(dateSelected))
	copy(sorted, dateSelected)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartDate.Before(sorted[j].StartDate.Time) })

	for i, dr := range sorted {
		if dr.StartDate.After(dr.EndDate.Time) {
			return fmt.Errorf("startDate %s is after endDate %s", dr.StartDate, dr.EndDate)
		}
		if i > 0 && !dr.StartDate.After(sorted[i-1].EndDate.Time) {
			return fmt.Errorf("date range starting %s overlaps range ending %s", dr.StartDate, sorted[i-1].EndDate)
		}
	}
	if sorted[0].StartDate.Before(today.Time) {
		return fmt.Errorf("startDate %s is in the past", sorted[0].StartDate)
	}
	return nil
}
