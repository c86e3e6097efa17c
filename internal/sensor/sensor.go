// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package sensor holds the presented state of one provider between poll cycles.
package sensor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/wneessen/icecream-benelux/internal/geo"
	"github.com/wneessen/icecream-benelux/internal/poll"
	"github.com/wneessen/icecream-benelux/internal/provider"
	"github.com/wneessen/icecream-benelux/internal/vartype"
)

const uniqueIDPrefix = "ice_cream_benelux"

// Policy decides whether a poll cycle without a result keeps the presented state.
type Policy int

const (
	// PolicyKeep keeps the last known distance and attributes.
	PolicyKeep Policy = iota
	// PolicyReset turns the sensor to unknown.
	PolicyReset
)

// Policies holds the Policy for failed and for empty poll cycles.
type Policies struct {
	Failure Policy
	Empty   Policy
}

// DefaultPolicies keeps the last value when a provider could not be reached and turns the sensor
// unknown when a provider reports no active vehicle.
var DefaultPolicies = Policies{Failure: PolicyKeep, Empty: PolicyReset}

// ParsePolicy returns the Policy for its configuration name.
func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "keep":
		return PolicyKeep, nil
	case "reset":
		return PolicyReset, nil
	default:
		return PolicyKeep, fmt.Errorf("unknown policy: %s", name)
	}
}

// Attributes describe the nearest vehicle of a provider.
type Attributes struct {
	Company   string  `json:"company"`
	Label     string  `json:"label"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Status    string  `json:"status"`
	Distance  float64 `json:"distance"`
}

// Sensor is the presented state of one provider.
type Sensor struct {
	ProviderID string
	Name       string
	UniqueID   string
	Distance   vartype.VarFloat64
	// Attributes is nil while the distance is unknown.
	Attributes *Attributes
	LastState  poll.State
	LastError  error
	Updated    time.Time
}

// New returns an unknown Sensor for the given provider and home coordinate.
func New(spec provider.Spec, home geo.Coordinate) Sensor {
	return Sensor{
		ProviderID: spec.ID,
		Name:       spec.Name,
		UniqueID:   UniqueID(spec.ID, home),
		LastState:  poll.StateIdle,
	}
}

// UniqueID returns the stable identifier of a provider's sensor at the given home coordinate.
func UniqueID(providerID string, home geo.Coordinate) string {
	return fmt.Sprintf("%s_%s_%s_%s", uniqueIDPrefix, providerID,
		strconv.FormatFloat(home.Lat, 'f', -1, 64), strconv.FormatFloat(home.Lon, 'f', -1, 64))
}

// Apply updates the Sensor with the Outcome of a poll cycle.
func (s *Sensor) Apply(outcome poll.Outcome, policies Policies) {
	s.LastState = outcome.State
	s.LastError = nil
	s.Updated = outcome.Started.Add(outcome.Duration)

	switch outcome.State {
	case poll.StateSuccess:
		distance := outcome.Result.RoundedDistance()
		s.Distance.Set(distance)
		s.Attributes = &Attributes{
			Company:   s.ProviderID,
			Label:     outcome.Result.Label,
			Latitude:  outcome.Result.Coordinate.Lat,
			Longitude: outcome.Result.Coordinate.Lon,
			Status:    outcome.Result.Status,
			Distance:  distance,
		}
	case poll.StateEmpty:
		if policies.Empty == PolicyReset {
			s.reset()
		}
	case poll.StateFailed:
		if outcome.Err != nil {
			s.LastError = outcome.Err
		}
		if policies.Failure == PolicyReset {
			s.reset()
		}
	}
}

// Known reports whether the Sensor currently has a distance.
func (s *Sensor) Known() bool {
	return s.Distance.IsSet()
}

func (s *Sensor) reset() {
	s.Distance.Reset()
	s.Attributes = nil
}

// MarshalJSON encodes the Sensor as output record. Unknown sensors carry the "unknown" distance
// and empty attributes.
func (s Sensor) MarshalJSON() ([]byte, error) {
	var attributes any = struct{}{}
	if s.Attributes != nil {
		attributes = s.Attributes
	}
	return json.Marshal(struct {
		Company    string             `json:"company"`
		Name       string             `json:"name"`
		UniqueID   string             `json:"unique_id"`
		Distance   vartype.VarFloat64 `json:"distance"`
		Attributes any                `json:"attributes"`
	}{
		Company:    s.ProviderID,
		Name:       s.Name,
		UniqueID:   s.UniqueID,
		Distance:   s.Distance,
		Attributes: attributes,
	})
}
