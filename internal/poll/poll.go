// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package poll implements a single fetch and resolve pass for one provider.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/icecream-benelux/internal/geo"
	"github.com/wneessen/icecream-benelux/internal/http"
	"github.com/wneessen/icecream-benelux/internal/logger"
	"github.com/wneessen/icecream-benelux/internal/nearest"
	"github.com/wneessen/icecream-benelux/internal/provider"
)

// State is the state of a poll cycle.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateSuccess
	StateEmpty
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateSuccess:
		return "success"
	case StateEmpty:
		return "empty"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrNoData is the cause of a failed cycle whose fetch did not return any data.
var ErrNoData = errors.New("no data received")

// Error describes why a poll cycle failed.
type Error struct {
	ProviderID string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("poll of %s failed: %s", e.ProviderID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Outcome is the result of one poll cycle.
type Outcome struct {
	ProviderID string
	State      State
	// Result holds the nearest vehicle if State is StateSuccess.
	Result   nearest.Result
	Err      *Error
	Started  time.Time
	Duration time.Duration
}

// Fetcher retrieves decoded JSON.
type Fetcher interface {
	Fetch(ctx context.Context, opts http.FetchOptions) (any, bool)
}

// Cycle polls one provider and resolves the vehicle closest to home.
type Cycle struct {
	spec    provider.Spec
	home    geo.Coordinate
	fetcher Fetcher
	opts    http.FetchOptions
	logger  *logger.Logger
}

// New returns a Cycle for the given provider. The fetch options are used as template; URL,
// method and retry statuses are taken from the provider Spec.
func New(spec provider.Spec, home geo.Coordinate, fetcher Fetcher, opts http.FetchOptions,
	log *logger.Logger,
) (*Cycle, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if !home.Valid() {
		return nil, fmt.Errorf("invalid home coordinate: %s", home)
	}
	opts.URL = spec.Endpoint
	opts.Method = spec.Method
	if len(spec.RetryStatuses) > 0 {
		opts.RetryStatuses = spec.RetryStatuses
	}
	return &Cycle{
		spec:    spec,
		home:    home,
		fetcher: fetcher,
		opts:    opts,
		logger:  log,
	}, nil
}

// Spec returns the provider Spec of the cycle.
func (c *Cycle) Spec() provider.Spec {
	return c.spec
}

// Run executes one poll cycle. It never panics and never returns an error on its own: every
// failure is reported through the Outcome.
func (c *Cycle) Run(ctx context.Context) (outcome Outcome) {
	outcome = Outcome{ProviderID: c.spec.ID, State: StateFetching, Started: time.Now()}
	defer func() {
		outcome.Duration = time.Since(outcome.Started)
	}()

	raw, ok := c.fetcher.Fetch(ctx, c.opts)
	if !ok {
		return c.fail(outcome, ErrNoData)
	}

	candidates, result, found, err := c.resolve(raw)
	if err != nil {
		return c.fail(outcome, err)
	}
	c.logger.Debug("resolved vehicles", slog.String("source", c.spec.ID),
		slog.Int("candidates", len(candidates)), slog.Bool("found", found))
	if !found {
		outcome.State = StateEmpty
		return outcome
	}
	outcome.State = StateSuccess
	outcome.Result = result
	return outcome
}

// resolve parses the raw response and finds the nearest candidate, turning a panic in either
// step into an error.
func (c *Cycle) resolve(raw any) (candidates []provider.Candidate, result nearest.Result, found bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to resolve vehicles: %v", r)
		}
	}()
	candidates = c.spec.Parse(raw)
	result, found = nearest.Find(candidates, c.home)
	return candidates, result, found, nil
}

func (c *Cycle) fail(outcome Outcome, err error) Outcome {
	outcome.State = StateFailed
	outcome.Err = &Error{ProviderID: c.spec.ID, Err: err}
	c.logger.Error("poll cycle failed", logger.Err(err), slog.String("source", c.spec.ID))
	return outcome
}
