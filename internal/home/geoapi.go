// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package home

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/wneessen/icecream-benelux/internal/geo"
	"github.com/wneessen/icecream-benelux/internal/http"
)

const (
	geoAPIEndpoint = "https://geoapi.info/api/geo"
	lookupTimeout  = time.Second * 5
	// IP based coordinates are city level at best
	truncPrecision = 4
)

// GeoAPILocator resolves the home coordinate from the public IP address.
type GeoAPILocator struct {
	http     *http.Client
	endpoint string
}

type geoAPIResult struct {
	IP       string `json:"ip"`
	Location struct {
		CountryCode string `json:"country,omitempty"`
		City        string `json:"city,omitempty"`
		Coordinates struct {
			Latitude  string `json:"latitude"`
			Longitude string `json:"longitude"`
		} `json:"coordinates"`
	} `json:"location"`
}

func NewGeoAPILocator(client *http.Client) (*GeoAPILocator, error) {
	if client == nil {
		return nil, fmt.Errorf("http client is required")
	}
	return &GeoAPILocator{http: client, endpoint: geoAPIEndpoint}, nil
}

func (l *GeoAPILocator) Name() string {
	return "geoapi"
}

func (l *GeoAPILocator) Locate(ctx context.Context) (geo.Coordinate, error) {
	result := new(geoAPIResult)
	status, err := l.http.GetWithTimeout(ctx, l.endpoint, result, nil, nil, lookupTimeout)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("failed to get geolocation data from API: %w", err)
	}
	if status >= 400 {
		return geo.Coordinate{}, fmt.Errorf("geolocation API returned status %d", status)
	}

	lat, err := strconv.ParseFloat(result.Location.Coordinates.Latitude, 64)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("failed to parse latitude from API response: %w", err)
	}
	lon, err := strconv.ParseFloat(result.Location.Coordinates.Longitude, 64)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("failed to parse longitude from API response: %w", err)
	}
	return geo.Coordinate{
		Lat: geo.Truncate(lat, truncPrecision),
		Lon: geo.Truncate(lon, truncPrecision),
	}, nil
}
