// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/wneessen/icecream-benelux/internal/logger"
)

const (
	DefaultAttempts = 3
	DefaultDelay    = time.Second * 2
)

// FetchOptions controls a single Fetch call.
type FetchOptions struct {
	URL     string
	Method  string
	Query   url.Values
	Headers map[string]string

	// Attempts is the maximum number of requests issued before giving up.
	Attempts int
	// Delay is the wait time between two attempts.
	Delay time.Duration
	// Timeout bounds each single attempt.
	Timeout time.Duration
	// RetryStatuses are status codes that trigger a retry even if they indicate success.
	RetryStatuses []int
	// RetryOnEmpty retries when the response body is empty.
	RetryOnEmpty bool
}

// DefaultFetchOptions returns FetchOptions for a GET request on endpoint with the default
// retry behaviour.
func DefaultFetchOptions(endpoint string) FetchOptions {
	return FetchOptions{
		URL:          endpoint,
		Method:       http.MethodGet,
		Attempts:     DefaultAttempts,
		Delay:        DefaultDelay,
		Timeout:      DefaultTimeout,
		RetryOnEmpty: true,
	}
}

// Fetch requests opts.URL and returns the decoded JSON body. Transport errors, HTTP error
// statuses, retry statuses and (if enabled) empty bodies are retried up to opts.Attempts times,
// waiting opts.Delay in between. A body that is not valid JSON ends the fetch without further
// attempts. Fetch returns false instead of an error: no data for this round is a regular outcome.
func (h *Client) Fetch(ctx context.Context, opts FetchOptions) (any, bool) {
	if opts.Method == "" {
		opts.Method = http.MethodGet
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	for attempt := 1; attempt <= opts.Attempts; attempt++ {
		if attempt > 1 && !sleepOrDone(ctx, opts.Delay) {
			return nil, false
		}
		attrs := []any{
			slog.String("url", opts.URL), slog.Int("attempt", attempt),
			slog.Int("attempts", opts.Attempts), slog.Duration("delay", opts.Delay),
		}

		status, body, err := h.do(ctx, opts.Method, opts.URL, opts.Query, opts.Headers, opts.Timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil, false
			}
			h.logger.Error("error during request", append(attrs, logger.Err(err))...)
			continue
		}
		if slices.Contains(opts.RetryStatuses, status) ||
			(opts.RetryOnEmpty && len(bytes.TrimSpace(body)) == 0) {
			h.logger.Debug("request failed with retry status or empty response",
				append(attrs, slog.Int("status", status))...)
			continue
		}
		if status >= http.StatusBadRequest {
			h.logger.Error("HTTP error occurred",
				append(attrs, logger.Err(fmt.Errorf("%d %s", status, http.StatusText(status))))...)
			continue
		}

		var data any
		if err = json.Unmarshal(body, &data); err != nil {
			h.logger.Error("failed to decode JSON response", append(attrs, logger.Err(err))...)
			return nil, false
		}
		return data, true
	}

	return nil, false
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
