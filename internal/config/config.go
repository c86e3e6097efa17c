// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kkyr/fig"

	"github.com/wneessen/icecream-benelux/internal/geo"
	"github.com/wneessen/icecream-benelux/internal/provider"
)

const (
	configEnv = "ICECREAMBENELUX"

	PolicyKeep  = "keep"
	PolicyReset = "reset"

	DefaultTextTpl    = "{{with .Nearest}}{{floatFormat .Distance 2}} km{{else}}{{loc \"unknown\"}}{{end}}"
	DefaultTooltipTpl = "{{range .Sensors}}{{pad .Name 26}} {{if .Known}}{{floatFormat .Distance 2}} km, " +
		"{{.Label}} ({{loc .Status}}){{else}}{{loc \"unknown\"}}{{end}}\n{{end}}" +
		"{{loc \"updated\"}}: {{localizedTime .UpdateTime}}"
)

// Config represents the application's configuration structure.
type Config struct {
	Locale   string     `fig:"locale"`
	LogLevel slog.Level `fig:"loglevel" default:"0"`

	// Companies holds the ids of the polled providers. Empty selects all providers.
	Companies []string `fig:"companies"`
	// Allowed values: keep, reset
	FailurePolicy string `fig:"failure_policy" default:"keep"`
	// Allowed values: keep, reset
	EmptyPolicy string `fig:"empty_policy" default:"reset"`

	Home struct {
		Latitude      *float64 `fig:"latitude"`
		Longitude     *float64 `fig:"longitude"`
		File          string   `fig:"file"`
		DisableFile   bool     `fig:"disable_file"`
		DisableGeoAPI bool     `fig:"disable_geoapi"`
	} `fig:"home"`

	Intervals struct {
		Poll         time.Duration `fig:"poll" default:"1m"`
		Output       time.Duration `fig:"output" default:"30s"`
		DaylightOnly bool          `fig:"daylight_only"`
	} `fig:"intervals"`

	Fetch struct {
		Attempts     int           `fig:"attempts" default:"3"`
		Delay        time.Duration `fig:"delay" default:"2s"`
		Timeout      time.Duration `fig:"timeout" default:"10s"`
		RetryOnEmpty *bool         `fig:"retry_on_empty"`
	} `fig:"fetch"`

	Templates struct {
		Text    string `fig:"text"`
		Tooltip string `fig:"tooltip"`
	} `fig:"templates"`

	Metrics struct {
		Listen string `fig:"listen"`
	} `fig:"metrics"`

	MQTT struct {
		Broker      string `fig:"broker"`
		ClientID    string `fig:"client_id" default:"icecream-benelux"`
		Username    string `fig:"username"`
		Password    string `fig:"password"`
		TopicPrefix string `fig:"topic_prefix" default:"icecream_benelux"`
	} `fig:"mqtt"`
}

func NewFromFile(path, file string) (*Config, error) {
	conf := new(Config)
	_, err := os.Stat(filepath.Join(path, file))
	if err != nil {
		return conf, fmt.Errorf("failed to read Config: %w", err)
	}
	if err = fig.Load(conf, fig.Dirs(path), fig.File(file), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

func New() (*Config, error) {
	conf := new(Config)
	if err := fig.Load(conf, fig.AllowNoFile(), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

func (c *Config) Validate() error {
	table := provider.NewTable()
	if len(c.Companies) == 0 {
		c.Companies = table.IDs()
	}
	if _, err := table.Select(c.Companies); err != nil {
		return fmt.Errorf("invalid companies: %w", err)
	}
	if c.FailurePolicy != PolicyKeep && c.FailurePolicy != PolicyReset {
		return fmt.Errorf("invalid failure policy: %s", c.FailurePolicy)
	}
	if c.EmptyPolicy != PolicyKeep && c.EmptyPolicy != PolicyReset {
		return fmt.Errorf("invalid empty policy: %s", c.EmptyPolicy)
	}
	if (c.Home.Latitude == nil) != (c.Home.Longitude == nil) {
		return fmt.Errorf("home latitude and longitude must be set together")
	}
	if home, ok := c.HomeCoordinate(); ok && !home.Valid() {
		return fmt.Errorf("invalid home coordinate: %s", home)
	}
	if c.Intervals.Poll <= 0 {
		return fmt.Errorf("invalid poll interval: %s", c.Intervals.Poll)
	}
	if c.Intervals.Output <= 0 {
		return fmt.Errorf("invalid output interval: %s", c.Intervals.Output)
	}
	if c.Fetch.Attempts < 1 {
		return fmt.Errorf("invalid fetch attempts: %d", c.Fetch.Attempts)
	}
	if c.Fetch.Delay < 0 {
		return fmt.Errorf("invalid fetch delay: %s", c.Fetch.Delay)
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("invalid fetch timeout: %s", c.Fetch.Timeout)
	}
	if c.Fetch.RetryOnEmpty == nil {
		retry := true
		c.Fetch.RetryOnEmpty = &retry
	}
	if c.Locale == "" {
		c.Locale = getLocale()
	}
	if c.Templates.Text == "" {
		c.Templates.Text = DefaultTextTpl
	}
	if c.Templates.Tooltip == "" {
		c.Templates.Tooltip = DefaultTooltipTpl
	}
	if c.Home.File == "" {
		home, _ := os.UserHomeDir()
		c.Home.File = filepath.Join(home, ".config", "icecream-benelux", "home")
	}

	return nil
}

// HomeCoordinate returns the configured home coordinate, if any.
func (c *Config) HomeCoordinate() (geo.Coordinate, bool) {
	if c.Home.Latitude == nil || c.Home.Longitude == nil {
		return geo.Coordinate{}, false
	}
	return geo.Coordinate{Lat: *c.Home.Latitude, Lon: *c.Home.Longitude}, true
}

func getLocale() string {
	locale := os.Getenv("LC_MESSAGES")
	if idx := strings.Index(locale, "."); idx != -1 {
		lang := locale[:idx]
		return strings.ReplaceAll(lang, "_", "-")
	}
	return locale
}
