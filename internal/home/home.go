// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package home resolves the home coordinate that distances are measured against.
package home

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wneessen/icecream-benelux/internal/config"
	"github.com/wneessen/icecream-benelux/internal/geo"
	"github.com/wneessen/icecream-benelux/internal/http"
	"github.com/wneessen/icecream-benelux/internal/logger"
)

// SourceConfig is the source name of a coordinate taken from the configuration.
const SourceConfig = "config"

var ErrNoCoordinates = errors.New("no valid home coordinates found")

// Locator resolves a coordinate from a single source.
type Locator interface {
	Name() string
	Locate(ctx context.Context) (geo.Coordinate, error)
}

// Locators returns the locator chain enabled in the configuration, in lookup order.
func Locators(conf *config.Config, client *http.Client) ([]Locator, error) {
	locators := make([]Locator, 0, 2)
	if !conf.Home.DisableFile {
		locators = append(locators, NewFileLocator(conf.Home.File))
	}
	if !conf.Home.DisableGeoAPI {
		locator, err := NewGeoAPILocator(client)
		if err != nil {
			return nil, fmt.Errorf("failed to create GeoAPI locator: %w", err)
		}
		locators = append(locators, locator)
	}
	return locators, nil
}

// Resolve returns the configured home coordinate or, if unset, the first valid coordinate found
// by the locators. The second return value names the source of the coordinate.
func Resolve(ctx context.Context, conf *config.Config, log *logger.Logger, locators ...Locator) (geo.Coordinate, string, error) {
	if coord, ok := conf.HomeCoordinate(); ok {
		return coord, SourceConfig, nil
	}
	for _, locator := range locators {
		coord, err := locator.Locate(ctx)
		if err != nil {
			log.Debug("home locator failed", logger.Err(err), slog.String("source", locator.Name()))
			continue
		}
		if !coord.Valid() {
			log.Debug("home locator returned invalid coordinate", slog.String("source", locator.Name()),
				slog.String("coordinate", coord.String()))
			continue
		}
		return coord, locator.Name(), nil
	}
	return geo.Coordinate{}, "", ErrNoCoordinates
}
