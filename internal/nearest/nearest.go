// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package nearest selects the candidate closest to a reference coordinate.
package nearest

import (
	"math"

	"github.com/wneessen/icecream-benelux/internal/geo"
	"github.com/wneessen/icecream-benelux/internal/provider"
)

// DistancePrecision is the number of decimals used when presenting distances.
const DistancePrecision = 2

// Result is the candidate closest to the reference coordinate.
type Result struct {
	ProviderID string
	Label      string
	Coordinate geo.Coordinate
	Status     string
	// Distance is the unrounded great-circle distance to the reference in kilometers.
	Distance float64
}

// RoundedDistance returns the distance rounded for presentation.
func (r Result) RoundedDistance() float64 {
	return geo.Round(r.Distance, DistancePrecision)
}

// Find returns the candidate with the smallest distance to ref. Ties are resolved in favor of
// the candidate that comes first. Candidates with an undefined distance are ignored. If there
// are no candidates, Find returns false.
func Find(candidates []provider.Candidate, ref geo.Coordinate) (Result, bool) {
	var result Result
	found := false
	for _, candidate := range candidates {
		distance := geo.Distance(candidate.Coordinate, ref)
		if math.IsNaN(distance) || found && distance >= result.Distance {
			continue
		}
		result = Result{
			ProviderID: candidate.ProviderID,
			Label:      candidate.Label,
			Coordinate: candidate.Coordinate,
			Status:     candidate.Status,
			Distance:   distance,
		}
		found = true
	}
	return result, found
}
