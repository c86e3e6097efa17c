// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package metrics exposes poll outcomes and sensor distances as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wneessen/icecream-benelux/internal/logger"
	"github.com/wneessen/icecream-benelux/internal/poll"
	"github.com/wneessen/icecream-benelux/internal/sensor"
)

const (
	namespace       = "icecream_benelux"
	shutdownTimeout = time.Second * 5
)

type Metrics struct {
	registry *prometheus.Registry
	polls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	distance *prometheus.GaugeVec
	known    *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Number of finished poll cycles by provider and outcome state.",
		}, []string{"provider", "state"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Duration of poll cycles including fetch retries.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"provider"}),
		distance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "distance_kilometers",
			Help:      "Distance from home to the nearest active vehicle of a provider.",
		}, []string{"provider", "unique_id"}),
		known: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensor_known",
			Help:      "Whether the distance of a provider is currently known (1) or unknown (0).",
		}, []string{"provider"}),
	}
	m.registry.MustRegister(m.polls, m.duration, m.distance, m.known,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return m
}

// Observe records a finished poll cycle.
func (m *Metrics) Observe(outcome poll.Outcome) {
	m.polls.WithLabelValues(outcome.ProviderID, outcome.State.String()).Inc()
	m.duration.WithLabelValues(outcome.ProviderID).Observe(outcome.Duration.Seconds())
}

// SetSensor records the presented state of a sensor. Unknown sensors have their distance series
// removed.
func (m *Metrics) SetSensor(s sensor.Sensor) {
	if !s.Known() {
		m.distance.DeleteLabelValues(s.ProviderID, s.UniqueID)
		m.known.WithLabelValues(s.ProviderID).Set(0)
		return
	}
	m.distance.WithLabelValues(s.ProviderID, s.UniqueID).Set(s.Distance.Value())
	m.known.WithLabelValues(s.ProviderID).Set(1)
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes the metrics on /metrics at the given address until the context is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, log *logger.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: time.Second * 10,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to shut down metrics server", logger.Err(err))
		}
	}()

	log.Info("serving metrics", slog.String("address", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve metrics: %w", err)
	}
	return nil
}
