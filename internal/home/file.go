// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package home

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/wneessen/icecream-benelux/internal/geo"
)

// FileLocator reads the home coordinate from a file holding a "lat,lon" line. Empty lines and
// lines starting with # are skipped.
type FileLocator struct {
	path string
}

func NewFileLocator(path string) *FileLocator {
	return &FileLocator{path: path}
}

func (l *FileLocator) Name() string {
	return "home_file"
}

func (l *FileLocator) Locate(_ context.Context) (geo.Coordinate, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("failed to read home file %q: %w", l.path, err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		coords := strings.Split(line, ",")
		if len(coords) != 2 {
			continue
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(coords[0]), 64)
		if err != nil {
			continue
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(coords[1]), 64)
		if err != nil {
			continue
		}
		return geo.Coordinate{Lat: lat, Lon: lon}, nil
	}
	return geo.Coordinate{}, fmt.Errorf("home file %q: %w", l.path, ErrNoCoordinates)
}
