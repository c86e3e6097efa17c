// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	stdhttp "net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"testing/synctest"
	tt "text/template"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/icecream-benelux/internal/config"
	"github.com/wneessen/icecream-benelux/internal/geo"
	"github.com/wneessen/icecream-benelux/internal/i18n"
	"github.com/wneessen/icecream-benelux/internal/logger"
	"github.com/wneessen/icecream-benelux/internal/nearest"
	"github.com/wneessen/icecream-benelux/internal/poll"
	"github.com/wneessen/icecream-benelux/internal/sensor"
	"github.com/wneessen/icecream-benelux/internal/testhelper"
)

var home = geo.Coordinate{Lat: 51.1658, Lon: 4.4251}

func TestNew(t *testing.T) {
	t.Run("new service succeeds", func(t *testing.T) {
		serv, err := testService(t, nil)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		if len(serv.cycles) != 2 || len(serv.sensors) != 2 {
			t.Errorf("expected 2 cycles and sensors, got %d and %d", len(serv.cycles), len(serv.sensors))
		}
		if serv.metrics != nil || serv.mqtt != nil {
			t.Error("expected optional sinks to be disabled")
		}
	})
	t.Run("nil logger fails", func(t *testing.T) {
		conf, err := config.New()
		if err != nil {
			t.Fatalf("failed to create config: %s", err)
		}
		lang, err := i18n.New("en")
		if err != nil {
			t.Fatalf("failed to create i18n provider: %s", err)
		}
		if _, err = New(conf, nil, lang, home); err == nil {
			t.Error("expected service to fail")
		}
	})
	t.Run("invalid configuration fails", func(t *testing.T) {
		tests := []struct {
			name    string
			confFn  func(conf *config.Config)
			wantErr string
		}{
			{
				"invalid template",
				func(conf *config.Config) { conf.Templates.Text = "{{invalid" },
				"failed to create presenter",
			},
			{
				"unknown company",
				func(conf *config.Config) { conf.Companies = []string{"ola_ola"} },
				"failed to select providers: unknown provider",
			},
			{
				"unknown failure policy",
				func(conf *config.Config) { conf.FailurePolicy = "explode" },
				"invalid failure policy: unknown policy: explode",
			},
			{
				"unknown empty policy",
				func(conf *config.Config) { conf.EmptyPolicy = "explode" },
				"invalid empty policy: unknown policy: explode",
			},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				_, err := testService(t, tc.confFn)
				if err == nil {
					t.Fatal("expected service to fail")
				}
				if !strings.Contains(err.Error(), tc.wantErr) {
					t.Errorf("expected error to contain %q, got %q", tc.wantErr, err)
				}
			})
		}
	})
	t.Run("optional sinks are created when configured", func(t *testing.T) {
		serv, err := testService(t, func(conf *config.Config) {
			conf.Metrics.Listen = "127.0.0.1:0"
			conf.MQTT.Broker = "tcp://127.0.0.1:1883"
		})
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		if serv.metrics == nil {
			t.Error("expected metrics to be enabled")
		}
		if serv.mqtt == nil || serv.publisher == nil {
			t.Error("expected MQTT to be enabled")
		}
	})
}

func TestService_Run(t *testing.T) {
	t.Run("start the service and gracefully shut it down", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			serv, err := testService(t, nil)
			if err != nil {
				t.Fatalf("failed to create service: %s", err)
			}
			serv.output = io.Discard
			mockTransport(t, serv, nil)

			done := make(chan struct{})
			go func() {
				defer close(done)
				if err := serv.Run(ctx); err != nil {
					t.Errorf("failed to run service: %s", err)
				}
			}()

			cancel()
			synctest.Wait()
			select {
			case <-done:
			default:
				t.Fatal("expected service to be stopped")
			}
		})
	})
	t.Run("service polls all providers and prints the sensors", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			serv, err := testService(t, nil)
			if err != nil {
				t.Fatalf("failed to create service: %s", err)
			}
			buf := &syncBuffer{buf: bytes.NewBuffer(nil)}
			serv.output = buf
			mockTransport(t, serv, nil)

			done := make(chan struct{})
			go func() {
				defer close(done)
				if err := serv.Run(ctx); err != nil {
					t.Errorf("failed to run service: %s", err)
				}
			}()

			time.Sleep(serv.config.Intervals.Output + time.Second)
			synctest.Wait()
			cancel()
			<-done

			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			var output printedOutput
			if err = json.Unmarshal([]byte(lines[len(lines)-1]), &output); err != nil {
				t.Fatalf("failed to unmarshal JSON: %s", err)
			}
			if output.Class != OutputClass {
				t.Errorf("expected class %q, got %q", OutputClass, output.Class)
			}
			wantText := "48.82 km"
			if output.Text != wantText {
				t.Errorf("expected text %q, got %q", wantText, output.Text)
			}
			if !strings.Contains(output.Tooltip, "#1 Pistache (online)") {
				t.Errorf("expected tooltip to contain the joris van, got %q", output.Tooltip)
			}
			if len(output.Sensors) != 2 || output.Sensors[0].Distance != 48.82 {
				t.Errorf("expected de_kremkerre_melle at 48.82 km, got %+v", output.Sensors)
			}
		})
	})
	t.Run("signals are registered and released", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			serv, err := testService(t, nil)
			if err != nil {
				t.Fatalf("failed to create service: %s", err)
			}
			serv.output = io.Discard
			mockTransport(t, serv, nil)
			signals := &fakeSignalSource{}
			serv.SignalSrc = signals

			done := make(chan struct{})
			go func() {
				defer close(done)
				if err := serv.Run(ctx); err != nil {
					t.Errorf("failed to run service: %s", err)
				}
			}()
			synctest.Wait()
			notified, stopped := signals.state()
			if len(notified) != 2 || notified[0] != syscall.SIGUSR1 || notified[1] != syscall.SIGUSR2 {
				t.Errorf("expected SIGUSR1 and SIGUSR2 to be registered, got %v", notified)
			}
			if stopped {
				t.Error("expected signals to be registered while running")
			}

			cancel()
			<-done
			synctest.Wait()
			if _, stopped = signals.state(); !stopped {
				t.Error("expected signals to be released after shutdown")
			}
		})
	})
	t.Run("starting the service fails on invalid interval", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			serv, err := testService(t, nil)
			if err != nil {
				t.Fatalf("failed to create service: %s", err)
			}
			serv.config.Intervals.Output = 0
			mockTransport(t, serv, nil)
			err = serv.Run(t.Context())
			if err == nil {
				t.Fatal("expected service to fail")
			}
			wantErr := `failed to create sensor_output_job`
			if !strings.Contains(err.Error(), wantErr) {
				t.Errorf("expected error to contain %q, got %q", wantErr, err)
			}
		})
	})
}

func TestService_printOutput(t *testing.T) {
	t.Run("unknown sensors are printed", func(t *testing.T) {
		serv, err := testService(t, nil)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		buf := bytes.NewBuffer(nil)
		serv.output = buf
		serv.printOutput(t.Context())

		var output printedOutput
		if err = json.Unmarshal(buf.Bytes(), &output); err != nil {
			t.Fatalf("failed to unmarshal JSON: %s", err)
		}
		if output.Class != OutputClass {
			t.Errorf("expected class %q, got %q", OutputClass, output.Class)
		}
		if output.Text != "unknown" {
			t.Errorf("expected text unknown, got %q", output.Text)
		}
		if len(output.Sensors) != 2 {
			t.Fatalf("expected 2 sensors, got %d", len(output.Sensors))
		}
		if output.Sensors[0].Company != "de_kremkerre_melle" || output.Sensors[1].Company != "joris_beerse" {
			t.Errorf("expected sensors in selection order, got %+v", output.Sensors)
		}
		for _, s := range output.Sensors {
			if s.Distance != "unknown" {
				t.Errorf("expected unknown distance, got %v", s.Distance)
			}
			if s.Attributes == nil || len(s.Attributes) != 0 {
				t.Errorf("expected empty attributes, got %v", s.Attributes)
			}
		}
	})
	t.Run("known sensors are printed", func(t *testing.T) {
		serv, err := testService(t, nil)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		buf := bytes.NewBuffer(nil)
		serv.output = buf
		serv.applyOutcome(successOutcome("joris_beerse", 7.123))
		serv.printOutput(t.Context())

		var output printedOutput
		if err = json.Unmarshal(buf.Bytes(), &output); err != nil {
			t.Fatalf("failed to unmarshal JSON: %s", err)
		}
		if output.Text != "7.12 km" {
			t.Errorf("expected text 7.12 km, got %q", output.Text)
		}
		if len(output.Sensors) != 2 {
			t.Fatalf("expected 2 sensors, got %d", len(output.Sensors))
		}
		joris := output.Sensors[1]
		if joris.Company != "joris_beerse" || joris.Name != "Joris Beerse" {
			t.Errorf("unexpected sensor %+v", joris)
		}
		if joris.UniqueID != "ice_cream_benelux_joris_beerse_51.1658_4.4251" {
			t.Errorf("unexpected unique id %q", joris.UniqueID)
		}
		if joris.Distance != 7.12 {
			t.Errorf("expected distance 7.12, got %v", joris.Distance)
		}
		if joris.Attributes["company"] != "joris_beerse" || joris.Attributes["label"] != "Van 1" ||
			joris.Attributes["status"] != "online" || joris.Attributes["distance"] != 7.12 {
			t.Errorf("unexpected attributes %v", joris.Attributes)
		}
		if output.Sensors[0].Distance != "unknown" {
			t.Errorf("expected de_kremkerre_melle to be unknown, got %v", output.Sensors[0].Distance)
		}
	})
	t.Run("output is empty on failing writer", func(t *testing.T) {
		serv, err := testService(t, nil)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		logBuf := bytes.NewBuffer(nil)
		serv.logger = logger.NewLogger(slog.LevelError, logBuf)
		serv.output = &failWriter{}
		serv.printOutput(t.Context())
		if !strings.Contains(logBuf.String(), `msg="failed to encode sensor output"`) {
			t.Errorf("expected encoding error to be logged, got %q", logBuf.String())
		}
	})
	t.Run("printing fails on template rendering", func(t *testing.T) {
		serv, err := testService(t, nil)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		buf := bytes.NewBuffer(nil)
		serv.output = buf
		logBuf := bytes.NewBuffer(nil)
		serv.logger = logger.NewLogger(slog.LevelError, logBuf)
		tpl, err := tt.New("text").Parse("{{.Data}}")
		if err != nil {
			t.Fatalf("failed to parse template: %s", err)
		}
		serv.presenter.TextTemplate = tpl
		serv.printOutput(t.Context())
		if buf.Len() != 0 {
			t.Errorf("expected output buffer to be empty, got %q", buf.String())
		}
		if !strings.Contains(logBuf.String(), `msg="failed to render templates"`) {
			t.Errorf("expected rendering error to be logged, got %q", logBuf.String())
		}
	})
}

func TestService_applyOutcome(t *testing.T) {
	t.Run("failure keeps the last distance with keep policy", func(t *testing.T) {
		serv, err := testService(t, nil)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		serv.applyOutcome(successOutcome("joris_beerse", 3.0))
		serv.applyOutcome(failedOutcome("joris_beerse"))
		state := serv.sensorByID(t, "joris_beerse")
		if !state.Known() || state.Distance.Value() != 3.0 {
			t.Errorf("expected distance to be kept, got %s", state.Distance)
		}
		if state.LastState != poll.StateFailed {
			t.Errorf("expected last state failed, got %s", state.LastState)
		}
	})
	t.Run("failure resets the distance with reset policy", func(t *testing.T) {
		serv, err := testService(t, func(conf *config.Config) { conf.FailurePolicy = config.PolicyReset })
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		serv.applyOutcome(successOutcome("joris_beerse", 3.0))
		serv.applyOutcome(failedOutcome("joris_beerse"))
		if state := serv.sensorByID(t, "joris_beerse"); state.Known() {
			t.Errorf("expected distance to be unknown, got %s", state.Distance)
		}
	})
	t.Run("empty outcome resets the distance by default", func(t *testing.T) {
		serv, err := testService(t, nil)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		serv.applyOutcome(successOutcome("joris_beerse", 3.0))
		serv.applyOutcome(emptyOutcome("joris_beerse"))
		if state := serv.sensorByID(t, "joris_beerse"); state.Known() {
			t.Errorf("expected distance to be unknown, got %s", state.Distance)
		}
	})
	t.Run("empty outcome keeps the distance with keep policy", func(t *testing.T) {
		serv, err := testService(t, func(conf *config.Config) { conf.EmptyPolicy = config.PolicyKeep })
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		serv.applyOutcome(successOutcome("joris_beerse", 3.0))
		serv.applyOutcome(emptyOutcome("joris_beerse"))
		state := serv.sensorByID(t, "joris_beerse")
		if !state.Known() || state.Distance.Value() != 3.0 {
			t.Errorf("expected distance to be kept, got %s", state.Distance)
		}
		if state.LastState != poll.StateEmpty {
			t.Errorf("expected last state empty, got %s", state.LastState)
		}
	})
	t.Run("outcome for unknown provider is logged", func(t *testing.T) {
		serv, err := testService(t, nil)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		buf := bytes.NewBuffer(nil)
		serv.logger = logger.NewLogger(slog.LevelError, buf)
		serv.applyOutcome(successOutcome("pitz_stekene", 1.0))
		wantLog := `msg="received outcome for unknown provider" source=pitz_stekene`
		if !strings.Contains(buf.String(), wantLog) {
			t.Errorf("expected log to contain %q, got %q", wantLog, buf.String())
		}
	})
	t.Run("sensor states are forwarded to the publisher", func(t *testing.T) {
		serv, err := testService(t, nil)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		pub := &mockPublisher{}
		serv.publisher = pub
		serv.applyOutcome(successOutcome("joris_beerse", 3.0))
		if len(pub.published) != 1 {
			t.Fatalf("expected 1 published state, got %d", len(pub.published))
		}
		if pub.published[0].UniqueID != "ice_cream_benelux_joris_beerse_51.1658_4.4251" {
			t.Errorf("unexpected unique id %q", pub.published[0].UniqueID)
		}
	})
	t.Run("publisher errors are logged", func(t *testing.T) {
		serv, err := testService(t, nil)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		buf := bytes.NewBuffer(nil)
		serv.logger = logger.NewLogger(slog.LevelError, buf)
		serv.publisher = &mockPublisher{shouldFail: true}
		serv.applyOutcome(successOutcome("joris_beerse", 3.0))
		wantLog := `msg="failed to publish sensor state" error="intentionally failing" source=joris_beerse`
		if !strings.Contains(buf.String(), wantLog) {
			t.Errorf("expected log to contain %q, got %q", wantLog, buf.String())
		}
	})
	t.Run("metrics are updated when enabled", func(t *testing.T) {
		serv, err := testService(t, func(conf *config.Config) { conf.Metrics.Listen = "127.0.0.1:0" })
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		serv.applyOutcome(successOutcome("joris_beerse", 3.0))
		recorder := newRecorder(t, serv)
		want := `icecream_benelux_distance_kilometers{provider="joris_beerse",` +
			`unique_id="ice_cream_benelux_joris_beerse_51.1658_4.4251"} 3`
		if !strings.Contains(recorder, want) {
			t.Errorf("expected metrics to contain %q", want)
		}
	})
}

func TestService_poll(t *testing.T) {
	t.Run("poll outside of daylight is skipped", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			serv, err := testService(t, func(conf *config.Config) { conf.Intervals.DaylightOnly = true })
			if err != nil {
				t.Fatalf("failed to create service: %s", err)
			}
			requests := mockTransport(t, serv, nil)
			// synctest starts the fake clock at midnight UTC, 2000-01-01
			serv.poll(t.Context(), serv.cycles[0], false)
			if requests.Load() != 0 {
				t.Errorf("expected no requests, got %d", requests.Load())
			}
			serv.poll(t.Context(), serv.cycles[0], true)
			if requests.Load() != 1 {
				t.Errorf("expected forced poll to request once, got %d", requests.Load())
			}
		})
	})
	t.Run("refresh polls all providers", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			serv, err := testService(t, nil)
			if err != nil {
				t.Fatalf("failed to create service: %s", err)
			}
			serv.output = io.Discard
			mockTransport(t, serv, nil)
			serv.refresh(t.Context())

			kremkerre := serv.sensorByID(t, "de_kremkerre_melle")
			if kremkerre.Distance.Value() != 48.82 {
				t.Errorf("expected distance 48.82, got %s", kremkerre.Distance)
			}
			joris := serv.sensorByID(t, "joris_beerse")
			if joris.Attributes == nil || joris.Attributes.Label != "#1 Pistache" {
				t.Errorf("expected nearest joris van #1 Pistache, got %+v", joris.Attributes)
			}
		})
	})
	t.Run("failing provider does not affect the others", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			serv, err := testService(t, nil)
			if err != nil {
				t.Fatalf("failed to create service: %s", err)
			}
			serv.output = io.Discard
			mockTransport(t, serv, map[string]bool{"api.icecorp.be": true})
			serv.refresh(t.Context())

			if state := serv.sensorByID(t, "de_kremkerre_melle"); !state.Known() {
				t.Error("expected de_kremkerre_melle to be known")
			}
			state := serv.sensorByID(t, "joris_beerse")
			if state.Known() || state.LastState != poll.StateFailed {
				t.Errorf("expected joris_beerse to have failed, got %s", state.LastState)
			}
		})
	})
}

func TestService_isDaylight(t *testing.T) {
	serv, err := testService(t, nil)
	if err != nil {
		t.Fatalf("failed to create service: %s", err)
	}
	tests := []struct {
		name string
		time time.Time
		want bool
	}{
		{"summer noon", time.Date(2026, 6, 21, 12, 0, 0, 0, time.UTC), true},
		{"summer night", time.Date(2026, 6, 21, 23, 30, 0, 0, time.UTC), false},
		{"winter morning", time.Date(2026, 12, 21, 6, 0, 0, 0, time.UTC), false},
		{"winter afternoon", time.Date(2026, 12, 21, 13, 0, 0, 0, time.UTC), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := serv.isDaylight(tc.time); got != tc.want {
				t.Errorf("expected daylight to be %t, got %t", tc.want, got)
			}
		})
	}
}

func TestService_HandleSignals(t *testing.T) {
	t.Run("USR1 signal is handled", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			serv, err := testService(t, nil)
			if err != nil {
				t.Fatalf("failed to create service: %s", err)
			}
			buf := &syncBuffer{buf: bytes.NewBuffer(nil)}
			serv.output = buf
			mockTransport(t, serv, nil)

			sigChan := make(chan os.Signal, 1)
			go serv.HandleSignals(ctx, sigChan)
			sigChan <- syscall.SIGUSR1
			synctest.Wait()

			if state := serv.sensorByID(t, "de_kremkerre_melle"); !state.Known() {
				t.Error("expected sensor to be known after refresh")
			}
			if !strings.Contains(buf.String(), `"text":"48.82 km"`) {
				t.Errorf("expected refreshed output, got %q", buf.String())
			}
			cancel()
		})
	})
	t.Run("USR2 signal is handled", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			serv, err := testService(t, nil)
			if err != nil {
				t.Fatalf("failed to create service: %s", err)
			}
			buf := &syncBuffer{buf: bytes.NewBuffer(nil)}
			serv.logger = logger.NewLogger(slog.LevelInfo, buf)
			serv.applyOutcome(failedOutcome("joris_beerse"))

			sigChan := make(chan os.Signal, 1)
			go serv.HandleSignals(ctx, sigChan)
			sigChan <- syscall.SIGUSR2
			synctest.Wait()

			wantLog := `msg="current sensor state" source=de_kremkerre_melle ` +
				`unique_id=ice_cream_benelux_de_kremkerre_melle_51.1658_4.4251 distance=unknown state=idle`
			if !strings.Contains(buf.String(), wantLog) {
				t.Errorf("expected log to contain %q, got %q", wantLog, buf.String())
			}
			wantLog = `distance=unknown state=failed last_error="poll of joris_beerse failed: no data received"`
			if !strings.Contains(buf.String(), wantLog) {
				t.Errorf("expected log to contain %q, got %q", wantLog, buf.String())
			}
			cancel()
		})
	})
}

func TestService_processSleepSignal(t *testing.T) {
	tests := []struct {
		name         string
		body         []any
		wantRequests int32
	}{
		{"resume triggers a refresh", []any{false}, 2},
		{"going to sleep is ignored", []any{true}, 0},
		{"invalid body is ignored", []any{"false"}, 0},
		{"empty body is ignored", nil, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			synctest.Test(t, func(t *testing.T) {
				serv, err := testService(t, nil)
				if err != nil {
					t.Fatalf("failed to create service: %s", err)
				}
				serv.output = io.Discard
				requests := mockTransport(t, serv, nil)

				debouncer := &resumeDebouncer{window: resumeDebounce}
				serv.processSleepSignal(t.Context(), &dbus.Signal{Body: tc.body}, debouncer)
				if got := requests.Load(); got != tc.wantRequests {
					t.Errorf("expected %d requests, got %d", tc.wantRequests, got)
				}
			})
		})
	}
	t.Run("resume events are debounced", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			serv, err := testService(t, nil)
			if err != nil {
				t.Fatalf("failed to create service: %s", err)
			}
			serv.output = io.Discard
			requests := mockTransport(t, serv, nil)

			debouncer := &resumeDebouncer{window: resumeDebounce, last: time.Now()}
			serv.processSleepSignal(t.Context(), &dbus.Signal{Body: []any{false}}, debouncer)
			if got := requests.Load(); got != 0 {
				t.Errorf("expected no requests, got %d", got)
			}
		})
	})
}

func testService(t *testing.T, confFn func(conf *config.Config)) (*Service, error) {
	t.Helper()
	conf, err := config.New()
	if err != nil {
		return nil, err
	}
	conf.Locale = "en"
	conf.Companies = []string{"de_kremkerre_melle", "joris_beerse"}
	if confFn != nil {
		confFn(conf)
	}

	log := logger.NewLogger(conf.LogLevel, io.Discard)
	lang, err := i18n.New(conf.Locale)
	if err != nil {
		return nil, err
	}
	serv, err := New(conf, log, lang, home)
	if err != nil {
		return nil, err
	}
	serv.SignalSrc = &fakeSignalSource{}
	serv.watchResume = func(context.Context) {}
	t.Cleanup(func() { _ = serv.scheduler.Shutdown() })
	return serv, nil
}

// mockTransport replaces the HTTP transport of the service with fixture responses. Requests to the
// failing hosts return a server error.
func mockTransport(t *testing.T, serv *Service, failing map[string]bool) *atomic.Int32 {
	t.Helper()
	fixtures := map[string]string{
		"ijsjesradar.be": "../../testdata/ijsjesradar.json",
		"api.icecorp.be": "../../testdata/icecorp.json",
	}
	requests := new(atomic.Int32)
	serv.http.Transport = testhelper.MockRoundTripper{Fn: func(req *stdhttp.Request) (*stdhttp.Response, error) {
		requests.Add(1)
		if failing[req.URL.Host] {
			return &stdhttp.Response{
				StatusCode: stdhttp.StatusInternalServerError,
				Body:       io.NopCloser(bytes.NewBufferString("internal server error")),
				Header:     make(stdhttp.Header),
			}, nil
		}
		file, ok := fixtures[req.URL.Host]
		if !ok {
			return nil, fmt.Errorf("unexpected host %q", req.URL.Host)
		}
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		return &stdhttp.Response{
			StatusCode: stdhttp.StatusOK,
			Body:       io.NopCloser(bytes.NewReader(data)),
			Header:     make(stdhttp.Header),
		}, nil
	}}
	return requests
}

func (s *Service) sensorByID(t *testing.T, id string) sensor.Sensor {
	t.Helper()
	for _, state := range s.snapshot() {
		if state.ProviderID == id {
			return state
		}
	}
	t.Fatalf("sensor %s not found", id)
	return sensor.Sensor{}
}

func newRecorder(t *testing.T, serv *Service) string {
	t.Helper()
	req, err := stdhttp.NewRequestWithContext(t.Context(), stdhttp.MethodGet, "/metrics", nil)
	if err != nil {
		t.Fatalf("failed to create request: %s", err)
	}
	rec := &responseRecorder{header: make(stdhttp.Header), body: bytes.NewBuffer(nil)}
	serv.metrics.Handler().ServeHTTP(rec, req)
	return rec.body.String()
}

func successOutcome(id string, distance float64) poll.Outcome {
	return poll.Outcome{
		ProviderID: id,
		State:      poll.StateSuccess,
		Result: nearest.Result{
			ProviderID: id,
			Label:      "Van 1",
			Coordinate: geo.Coordinate{Lat: 51.2, Lon: 4.4},
			Status:     "online",
			Distance:   distance,
		},
		Started: time.Now(),
	}
}

func emptyOutcome(id string) poll.Outcome {
	return poll.Outcome{ProviderID: id, State: poll.StateEmpty, Started: time.Now()}
}

func failedOutcome(id string) poll.Outcome {
	return poll.Outcome{
		ProviderID: id,
		State:      poll.StateFailed,
		Err:        &poll.Error{ProviderID: id, Err: poll.ErrNoData},
		Started:    time.Now(),
	}
}

// printedOutput mirrors one output line, with distances decoded as number or "unknown".
type printedOutput struct {
	Text    string `json:"text"`
	Tooltip string `json:"tooltip"`
	Class   string `json:"class"`
	Sensors []struct {
		Company    string         `json:"company"`
		Name       string         `json:"name"`
		UniqueID   string         `json:"unique_id"`
		Distance   any            `json:"distance"`
		Attributes map[string]any `json:"attributes"`
	} `json:"sensors"`
}

// fakeSignalSource records signal registrations instead of touching the process signal handlers.
type fakeSignalSource struct {
	mu       sync.Mutex
	notified []os.Signal
	stopped  bool
}

func (f *fakeSignalSource) Notify(_ chan<- os.Signal, sig ...os.Signal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, sig...)
}

func (f *fakeSignalSource) Stop(chan<- os.Signal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeSignalSource) state() ([]os.Signal, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]os.Signal(nil), f.notified...), f.stopped
}

type (
	failWriter    struct{}
	mockPublisher struct {
		shouldFail bool
		published  []sensor.Sensor
	}
	responseRecorder struct {
		header stdhttp.Header
		body   *bytes.Buffer
	}
	syncBuffer struct {
		mu  sync.Mutex
		buf *bytes.Buffer
	}
)

func (f failWriter) Write([]byte) (int, error) { return 0, fmt.Errorf("failed to write") }

func (m *mockPublisher) Publish(s sensor.Sensor) error {
	if m.shouldFail {
		return errors.New("intentionally failing")
	}
	m.published = append(m.published, s)
	return nil
}

func (r *responseRecorder) Header() stdhttp.Header      { return r.header }
func (r *responseRecorder) Write(p []byte) (int, error) { return r.body.Write(p) }
func (r *responseRecorder) WriteHeader(int)             {}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}
