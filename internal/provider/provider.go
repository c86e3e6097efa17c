// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package provider normalizes the vehicle feeds of the supported ice cream companies into
// a common Candidate record.
package provider

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wneessen/icecream-benelux/internal/geo"
)

// Family describes the structural layout of a provider response.
type Family int

const (
	// FamilyEnvelope responses are JSON objects carrying the vehicles in a "data" array.
	FamilyEnvelope Family = iota
	// FamilyList responses are bare JSON arrays of vehicles.
	FamilyList
)

func (f Family) String() string {
	switch f {
	case FamilyEnvelope:
		return "envelope"
	case FamilyList:
		return "list"
	default:
		return "unknown"
	}
}

// Record is a single decoded vehicle object of a provider response.
type Record = map[string]any

// Filter reports whether a record is eligible to become a Candidate.
type Filter func(Record) bool

// StatusFunc derives the status string of a record.
type StatusFunc func(Record) string

// Candidate is a vehicle reported by a provider with a known position.
type Candidate struct {
	ProviderID string
	Label      string
	Coordinate geo.Coordinate
	Status     string
}

// Spec describes how to fetch and normalize the vehicles of one provider.
type Spec struct {
	ID       string
	Name     string
	Endpoint string
	Method   string
	Family   Family

	// Dot separated paths to the coordinate and label fields of a record.
	LatField   string
	LonField   string
	LabelField string

	Filter Filter
	Status StatusFunc

	// RetryStatuses are provider specific status codes the fetcher retries on.
	RetryStatuses []int
}

// Parse extracts the candidates from a decoded provider response. It never fails: a response
// of the wrong shape yields no candidates and records without coordinates are skipped.
func (s Spec) Parse(raw any) []Candidate {
	var records []any
	switch s.Family {
	case FamilyEnvelope:
		envelope, ok := raw.(map[string]any)
		if !ok {
			return nil
		}
		records, _ = envelope["data"].([]any)
	case FamilyList:
		records, _ = raw.([]any)
	}

	candidates := make([]Candidate, 0, len(records))
	for _, item := range records {
		record, ok := item.(Record)
		if !ok {
			continue
		}
		if s.Filter != nil && !s.Filter(record) {
			continue
		}
		lat, ok := lookupFloat(record, s.LatField)
		if !ok {
			continue
		}
		lon, ok := lookupFloat(record, s.LonField)
		if !ok {
			continue
		}
		candidate := Candidate{
			ProviderID: s.ID,
			Label:      lookupString(record, s.LabelField),
			Coordinate: geo.Coordinate{Lat: lat, Lon: lon},
		}
		if s.Status != nil {
			candidate.Status = s.Status(record)
		}
		candidates = append(candidates, candidate)
	}
	return candidates
}

// CompanyOnline accepts records whose company_ref equals ref and whose status is "online".
func CompanyOnline(ref string) Filter {
	return func(r Record) bool {
		return lookupString(r, "company_ref") == ref && lookupString(r, "status") == "online"
	}
}

// IsActive accepts records whose boolean field is true.
func IsActive(field string) Filter {
	return func(r Record) bool {
		active, _ := lookup(r, field)
		b, ok := active.(bool)
		return ok && b
	}
}

// StatusField returns the field value as status, optionally lower-cased.
func StatusField(field string, lower bool) StatusFunc {
	return func(r Record) string {
		status := lookupString(r, field)
		if lower {
			return strings.ToLower(status)
		}
		return status
	}
}

// ActiveStatus maps a boolean field to "active" or "inactive".
func ActiveStatus(field string) StatusFunc {
	return func(r Record) string {
		if IsActive(field)(r) {
			return "active"
		}
		return "inactive"
	}
}

// lookup resolves a dot separated path in a record.
func lookup(r Record, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	var current any = r
	for _, key := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		if current, ok = obj[key]; !ok {
			return nil, false
		}
	}
	return current, current != nil
}

func lookupFloat(r Record, path string) (float64, bool) {
	val, ok := lookup(r, path)
	if !ok {
		return 0, false
	}
	switch v := val.(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func lookupString(r Record, path string) string {
	val, ok := lookup(r, path)
	if !ok {
		return ""
	}
	if s, isString := val.(string); isString {
		return s
	}
	return fmt.Sprint(val)
}
