// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/nathan-osman/go-sunrise"
	"github.com/vorlif/spreak"

	"github.com/wneessen/icecream-benelux/internal/config"
	"github.com/wneessen/icecream-benelux/internal/geo"
	"github.com/wneessen/icecream-benelux/internal/http"
	"github.com/wneessen/icecream-benelux/internal/logger"
	"github.com/wneessen/icecream-benelux/internal/metrics"
	"github.com/wneessen/icecream-benelux/internal/mqtt"
	"github.com/wneessen/icecream-benelux/internal/poll"
	"github.com/wneessen/icecream-benelux/internal/presenter"
	"github.com/wneessen/icecream-benelux/internal/provider"
	"github.com/wneessen/icecream-benelux/internal/sensor"
)

const OutputClass = "icecream-benelux"

type outputData struct {
	Text    string          `json:"text"`
	Tooltip string          `json:"tooltip"`
	Class   string          `json:"class"`
	Sensors []sensor.Sensor `json:"sensors"`
}

// statePublisher receives every sensor state after a poll cycle.
type statePublisher interface {
	Publish(sensor.Sensor) error
}

type Service struct {
	SignalSrc signalSource
	// watchResume runs for the lifetime of Run and refreshes all providers after a resume.
	watchResume func(context.Context)

	config    *config.Config
	home      geo.Coordinate
	http      *http.Client
	logger    *logger.Logger
	policies  sensor.Policies
	presenter *presenter.Presenter
	scheduler gocron.Scheduler
	cycles    []*poll.Cycle
	jobs      []gocron.Job
	output    io.Writer

	metrics   *metrics.Metrics
	mqtt      *mqtt.Client
	publisher statePublisher

	sensorLock sync.RWMutex
	sensors    map[string]*sensor.Sensor
}

func New(conf *config.Config, log *logger.Logger, lang *spreak.Localizer, home geo.Coordinate) (*Service, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	pres, err := presenter.New(conf, lang)
	if err != nil {
		return nil, fmt.Errorf("failed to create presenter: %w", err)
	}
	failurePolicy, err := sensor.ParsePolicy(conf.FailurePolicy)
	if err != nil {
		return nil, fmt.Errorf("invalid failure policy: %w", err)
	}
	emptyPolicy, err := sensor.ParsePolicy(conf.EmptyPolicy)
	if err != nil {
		return nil, fmt.Errorf("invalid empty policy: %w", err)
	}
	specs, err := provider.NewTable().Select(conf.Companies)
	if err != nil {
		return nil, fmt.Errorf("failed to select providers: %w", err)
	}

	service := &Service{
		SignalSrc: stdLibSignalSource{},
		config:    conf,
		home:      home,
		http:      http.New(log),
		logger:    log,
		policies:  sensor.Policies{Failure: failurePolicy, Empty: emptyPolicy},
		presenter: pres,
		scheduler: scheduler,
		output:    os.Stdout,
		sensors:   make(map[string]*sensor.Sensor, len(specs)),
	}
	service.watchResume = service.monitorSleepResume

	opts := http.FetchOptions{
		Attempts:     conf.Fetch.Attempts,
		Delay:        conf.Fetch.Delay,
		Timeout:      conf.Fetch.Timeout,
		RetryOnEmpty: conf.Fetch.RetryOnEmpty == nil || *conf.Fetch.RetryOnEmpty,
	}
	for _, spec := range specs {
		cycle, err := poll.New(spec, home, service.http, opts, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create poll cycle for %s: %w", spec.ID, err)
		}
		service.cycles = append(service.cycles, cycle)
		state := sensor.New(spec, home)
		service.sensors[spec.ID] = &state
	}

	if conf.Metrics.Listen != "" {
		service.metrics = metrics.New()
	}
	if conf.MQTT.Broker != "" {
		client, err := mqtt.New(conf, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create MQTT client: %w", err)
		}
		service.mqtt = client
		service.publisher = client
	}

	return service, nil
}

func (s *Service) Run(ctx context.Context) error {
	if s.mqtt != nil {
		if err := s.mqtt.Connect(); err != nil {
			return err
		}
		defer s.mqtt.Disconnect()
	}
	if s.metrics != nil {
		go func() {
			if err := s.metrics.Serve(ctx, s.config.Metrics.Listen, s.logger); err != nil {
				s.logger.Error("metrics server stopped", logger.Err(err))
			}
		}()
	}

	// Start scheduled jobs
	for _, cycle := range s.cycles {
		if err := s.createScheduledJob(ctx, s.config.Intervals.Poll, s.pollTask(cycle),
			"poll_"+cycle.Spec().ID); err != nil {
			return err
		}
	}
	if err := s.createScheduledJob(ctx, s.config.Intervals.Output, s.printOutput,
		"sensor_output_job"); err != nil {
		return err
	}
	s.scheduler.Start()

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	s.SignalSrc.Notify(sigChan, syscall.SIGUSR1, syscall.SIGUSR2)
	go func() {
		defer s.SignalSrc.Stop(sigChan)
		s.HandleSignals(ctx, sigChan)
	}()

	// Refresh all providers after the system resumed from sleep
	go s.watchResume(ctx)

	s.logger.Info("service started", slog.Int("providers", len(s.cycles)),
		slog.String("home", s.home.String()))

	// Wait for the context to cancel
	<-ctx.Done()
	return s.scheduler.Shutdown()
}

func (s *Service) createScheduledJob(ctx context.Context, interval time.Duration, task func(context.Context),
	jobName string,
) error {
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName(jobName),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", jobName, err)
	}
	s.jobs = append(s.jobs, job)
	return nil
}

// pollTask returns the scheduled task for a poll cycle.
func (s *Service) pollTask(cycle *poll.Cycle) func(context.Context) {
	return func(ctx context.Context) {
		s.poll(ctx, cycle, false)
	}
}

// poll runs one poll cycle and applies its outcome. Unless forced, polls outside daylight are
// skipped if daylight_only is enabled.
func (s *Service) poll(ctx context.Context, cycle *poll.Cycle, force bool) {
	if !force && s.config.Intervals.DaylightOnly && !s.isDaylight(time.Now()) {
		s.logger.Debug("skipping poll outside of daylight", slog.String("source", cycle.Spec().ID))
		return
	}
	s.applyOutcome(cycle.Run(ctx))
}

// refresh polls all providers concurrently and prints the result.
func (s *Service) refresh(ctx context.Context) {
	wg := sync.WaitGroup{}
	for _, cycle := range s.cycles {
		wg.Go(func() {
			s.poll(ctx, cycle, true)
		})
	}
	wg.Wait()
	s.printOutput(ctx)
}

// applyOutcome updates the sensor of the outcome's provider and forwards it to the enabled sinks.
func (s *Service) applyOutcome(outcome poll.Outcome) {
	s.sensorLock.Lock()
	state, ok := s.sensors[outcome.ProviderID]
	if !ok {
		s.sensorLock.Unlock()
		s.logger.Error("received outcome for unknown provider", slog.String("source", outcome.ProviderID))
		return
	}
	state.Apply(outcome, s.policies)
	snapshot := *state
	s.sensorLock.Unlock()

	s.logger.Debug("poll cycle finished", slog.String("source", outcome.ProviderID),
		slog.String("state", outcome.State.String()), slog.String("distance", snapshot.Distance.String()),
		slog.Duration("duration", outcome.Duration))

	if s.metrics != nil {
		s.metrics.Observe(outcome)
		s.metrics.SetSensor(snapshot)
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(snapshot); err != nil {
			s.logger.Error("failed to publish sensor state", logger.Err(err),
				slog.String("source", outcome.ProviderID))
		}
	}
}

// snapshot returns a copy of all sensors in provider selection order.
func (s *Service) snapshot() []sensor.Sensor {
	s.sensorLock.RLock()
	defer s.sensorLock.RUnlock()
	sensors := make([]sensor.Sensor, 0, len(s.cycles))
	for _, cycle := range s.cycles {
		if state, ok := s.sensors[cycle.Spec().ID]; ok {
			sensors = append(sensors, *state)
		}
	}
	return sensors
}

// printOutput renders the current sensor states and writes them as JSON line to the output.
func (s *Service) printOutput(context.Context) {
	sensors := s.snapshot()
	rendered, err := s.presenter.Render(s.presenter.BuildContext(sensors, time.Now()))
	if err != nil {
		s.logger.Error("failed to render templates", logger.Err(err))
		return
	}

	output := outputData{
		Text:    rendered["text"],
		Tooltip: rendered["tooltip"],
		Class:   OutputClass,
		Sensors: sensors,
	}
	if err = json.NewEncoder(s.output).Encode(output); err != nil {
		s.logger.Error("failed to encode sensor output", logger.Err(err))
	}
}

// isDaylight reports whether the sun is up at the home location. Days without sunrise or sunset
// count as daylight.
func (s *Service) isDaylight(now time.Time) bool {
	now = now.UTC()
	rise, set := sunrise.SunriseSunset(s.home.Lat, s.home.Lon, now.Year(), now.Month(), now.Day())
	if rise.IsZero() || set.IsZero() {
		return true
	}
	return now.After(rise) && now.Before(set)
}
