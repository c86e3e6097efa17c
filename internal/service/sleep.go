// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/icecream-benelux/internal/logger"
)

const (
	logindInterface   = "org.freedesktop.login1.Manager"
	logindSleepMember = "PrepareForSleep"

	resumeDebounce     = 2 * time.Second
	resumeNetworkDelay = 10 * time.Second
	busRetryDelay      = 5 * time.Second
	sleepSignalBuffer  = 8
)

// resumeDebouncer drops resume events that follow the previous one within the window.
type resumeDebouncer struct {
	window time.Duration
	last   time.Time
}

func (d *resumeDebouncer) allow(now time.Time) bool {
	if !d.last.IsZero() && now.Sub(d.last) < d.window {
		return false
	}
	d.last = now
	return true
}

// monitorSleepResume polls all providers whenever logind reports a resume from suspend. The
// subscription is re-established until the context is cancelled.
func (s *Service) monitorSleepResume(ctx context.Context) {
	debouncer := &resumeDebouncer{window: resumeDebounce}
	for {
		if err := s.watchSleepSignals(ctx, debouncer); err != nil {
			s.logger.Debug("sleep monitoring interrupted", logger.Err(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(busRetryDelay):
		}
	}
}

// watchSleepSignals subscribes to the logind sleep signal on the system bus and processes incoming
// signals until the connection is lost or the context is cancelled.
func (s *Service) watchSleepSignals(ctx context.Context, debouncer *resumeDebouncer) error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("failed to connect to system bus: %w", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			s.logger.Error("failed to close system bus connection", logger.Err(err))
		}
	}()

	if err = conn.AddMatchSignal(dbus.WithMatchInterface(logindInterface),
		dbus.WithMatchMember(logindSleepMember)); err != nil {
		return fmt.Errorf("failed to subscribe to %s.%s: %w", logindInterface, logindSleepMember, err)
	}
	signals := make(chan *dbus.Signal, sleepSignalBuffer)
	conn.Signal(signals)
	defer conn.RemoveSignal(signals)
	s.logger.Debug("subscribed to sleep signals", slog.String("interface", logindInterface),
		slog.String("member", logindSleepMember))

	for {
		select {
		case <-ctx.Done():
			return nil
		case sgn, ok := <-signals:
			if !ok {
				return errors.New("system bus connection closed")
			}
			s.processSleepSignal(ctx, sgn, debouncer)
		}
	}
}

// processSleepSignal refreshes all providers on PrepareForSleep(false), once the network had time
// to come back up.
func (s *Service) processSleepSignal(ctx context.Context, sgn *dbus.Signal, debouncer *resumeDebouncer) {
	if sgn == nil || len(sgn.Body) != 1 {
		return
	}
	if sleeping, ok := sgn.Body[0].(bool); !ok || sleeping {
		return
	}
	if !debouncer.allow(time.Now()) {
		s.logger.Debug("ignoring repeated resume signal")
		return
	}

	select {
	case <-ctx.Done():
		return
	case <-time.After(resumeNetworkDelay):
	}
	s.logger.Debug("resumed from sleep, polling all providers")
	s.refresh(ctx)
}
