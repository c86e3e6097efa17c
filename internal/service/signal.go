// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

type signalSource interface {
	Notify(c chan<- os.Signal, sig ...os.Signal)
	Stop(c chan<- os.Signal)
}

type stdLibSignalSource struct{}

func (stdLibSignalSource) Notify(c chan<- os.Signal, sig ...os.Signal) {
	signal.Notify(c, sig...)
}

func (stdLibSignalSource) Stop(c chan<- os.Signal) {
	signal.Stop(c)
}

// HandleSignals refreshes all providers on SIGUSR1 and logs the current sensor states on SIGUSR2.
func (s *Service) HandleSignals(ctx context.Context, sigChan chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigChan:
			switch sig {
			case syscall.SIGUSR1:
				s.logger.Debug("received refresh signal, polling all providers")
				s.refresh(ctx)
			case syscall.SIGUSR2:
				s.logState()
			}
		}
	}
}

func (s *Service) logState() {
	for _, state := range s.snapshot() {
		attrs := []any{
			slog.String("source", state.ProviderID),
			slog.String("unique_id", state.UniqueID),
			slog.String("distance", state.Distance.String()),
			slog.String("state", state.LastState.String()),
		}
		if state.Attributes != nil {
			attrs = append(attrs, slog.String("label", state.Attributes.Label),
				slog.String("status", state.Attributes.Status))
		}
		if state.LastError != nil {
			attrs = append(attrs, slog.String("last_error", state.LastError.Error()))
		}
		s.logger.Info("current sensor state", attrs...)
	}
}
