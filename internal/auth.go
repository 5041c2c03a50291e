// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/youngkin/availbench/api"
	"golang.org/x/sync/errgroup"
)

// ErrTokenSetup is returned when any synthetic user fails to log in
var ErrTokenSetup = errors.New("token setup failed")

// maxTokenBytes caps how much of a login response body is read
const maxTokenBytes = 64 * 1024

// Credentials returns the synthetic user roster described by the config.
// The i'th credential (0-based) belongs to user i+1.
func Credentials(config api.LoadTestConfig) []api.Credential {
	creds := make([]api.Credential, config.NumUsers)
	for i := range creds {
		creds[i] = api.Credential{
			Email:    fmt.Sprintf(config.EmailFormat, i+1),
			Password: config.Password,
		}
	}
	return creds
}

// TokenFetcher logs in the synthetic users before load generation starts
type TokenFetcher struct {
	Client   *http.Client
	LoginURL string
	// Concurrency is the number of logins in flight, values below 1 mean 1
	Concurrency int
	UserAgent   string
}

// FetchTokens logs in every credential and returns the tokens in the same
// order as creds. Either all tokens are returned or none are; the first
// failed login cancels the remaining ones.
func (tf TokenFetcher) FetchTokens(ctx context.Context, creds []api.Credential) ([]string, error) {
	log.Info().Msgf("Fetching tokens for %d users from %s", len(creds), tf.LoginURL)

	limit := tf.Concurrency
	if limit < 1 {
		limit = 1
	}

	tokens := make([]string, len(creds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, cred := range creds {
		i, cred := i, cred
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			token, err := tf.login(gctx, cred)
			if err != nil {
				return fmt.Errorf("%w: login for user %s: %w", ErrTokenSetup, cred.Email, err)
			}
			tokens[i] = token
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Info().Msgf("Fetched %d tokens", len(tokens))
	return tokens, nil
}

func (tf TokenFetcher) login(ctx context.Context, cred api.Credential) (string, error) {
	body, err := json.Marshal(cred)
	if err != nil {
		return "", fmt.Errorf("marshaling login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tf.LoginURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tf.UserAgent != "" {
		req.Header.Set("User-Agent", tf.UserAgent)
	}

	resp, err := tf.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenBytes))
	if err != nil {
		return "", fmt.Errorf("reading login response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Error().Msgf("Login failed for user %s, status %d", cred.Email, resp.StatusCode)
		return "", fmt.Errorf("unexpected HTTP status %d", resp.StatusCode)
	}

	token := strings.TrimSpace(string(respBody))
	if token == "" {
		return "", errors.New("empty token in login response")
	}
	log.Debug().Msgf("Fetched token for user %s", cred.Email)
	return token, nil
}
