// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

//go:build linux

// Package main implements the icecream-benelux service.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/wneessen/icecream-benelux/internal/config"
	"github.com/wneessen/icecream-benelux/internal/home"
	"github.com/wneessen/icecream-benelux/internal/http"
	"github.com/wneessen/icecream-benelux/internal/i18n"
	"github.com/wneessen/icecream-benelux/internal/logger"
	"github.com/wneessen/icecream-benelux/internal/service"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGABRT, os.Interrupt)
	defer cancel()

	// Initialize Logger
	log := logger.New(slog.LevelError)

	// Read config
	confRead := false
	confPath := flag.String("config", "", "path to the config file")
	flag.Parse()

	// Read default config
	conf, err := config.New()
	if err != nil {
		log.Error("failed to load config", logger.Err(err))
		os.Exit(1)
	}

	// If config file was specified, read it
	if *confPath != "" {
		conf, err = config.NewFromFile(filepath.Dir(*confPath), filepath.Base(*confPath))
		if err != nil {
			log.Error("failed to load config from file", logger.Err(err))
			os.Exit(1)
		}
		confRead = true
	}

	// Check if we have a config file in the default location
	if path, file := findConfigFile(); !confRead && (path != "" && file != "") {
		conf, err = config.NewFromFile(path, file)
		if err != nil {
			log.Error("failed to load config from file", logger.Err(err))
			os.Exit(1)
		}
	}

	log = logger.New(conf.LogLevel)
	t, err := i18n.New(conf.Locale)
	if err != nil {
		log.Error("failed to initialize localizer", logger.Err(err))
		os.Exit(1)
	}

	// Resolve the home location all distances are measured from
	locators, err := home.Locators(conf, http.New(log))
	if err != nil {
		log.Error("failed to initialize home locators", logger.Err(err))
		os.Exit(1)
	}
	coord, source, err := home.Resolve(ctx, conf, log, locators...)
	if err != nil {
		log.Error("failed to resolve home location", logger.Err(err))
		os.Exit(1)
	}
	log.Debug("resolved home location", slog.String("home", coord.String()), slog.String("source", source))

	// Initialize the service
	serv, err := service.New(conf, log, t, coord)
	if err != nil {
		log.Error("failed to initialize icecream-benelux service", logger.Err(err))
		os.Exit(1)
	}

	// Start the service loop
	log.Info("starting icecream-benelux service", slog.String("version", version),
		slog.String("commit", commit), slog.String("date", date))
	if err = serv.Run(ctx); err != nil {
		log.Error("failed to start icecream-benelux service", logger.Err(err))
	}
	log.Info("shutting down icecream-benelux service")
}

func findConfigFile() (string, string) {
	homedir, err := os.UserHomeDir()
	if err != nil {
		return "", ""
	}
	exts := []string{"toml", "yaml", "yml", "json"}
	for _, ext := range exts {
		path := filepath.Join(homedir, ".config", "icecream-benelux", "config."+ext)
		if _, err = os.Stat(path); err == nil {
			return filepath.Dir(path), filepath.Base(path)
		}
	}
	return "", ""
}
