package main

import (
	"fmt"
	"net"

	"github.com/mtprotogo/core/events"
	"github.com/mtprotogo/core/internal/config"
	"github.com/mtprotogo/core/mtcstats"
)

// buildObserverFactories wires the configured stats sinks into
// events.ObserverFactory, starting a scrape listener for Prometheus when
// enabled; the returned closers stop that listener on shutdown.
func buildObserverFactories(cfg config.Stats) ([]events.ObserverFactory, []func() error, error) {
	var (
		factories []events.ObserverFactory
		closers   []func() error
	)

	if cfg.Prometheus.Enabled {
		prefix := cfg.Prometheus.MetricPrefix
		if prefix == "" {
			prefix = "mtcoreclient"
		}

		path := cfg.Prometheus.HTTPPath
		if path == "" {
			path = "/metrics"
		}

		promFactory := mtcstats.NewPrometheus(prefix, path)

		listener, err := net.Listen("tcp", cfg.Prometheus.BindTo)
		if err != nil {
			return nil, nil, fmt.Errorf("mtcoreclient: cannot bind prometheus listener %s: %w", cfg.Prometheus.BindTo, err)
		}

		go func() {
			_ = promFactory.Serve(listener)
		}()

		factories = append(factories, promFactory.Make)
		closers = append(closers, promFactory.Close)
	}

	if cfg.StatsD.Enabled {
		prefix := cfg.StatsD.MetricPrefix
		if prefix == "" {
			prefix = "mtcoreclient"
		}

		statsdFactory := mtcstats.NewStatsD(cfg.StatsD.Address, prefix)
		factories = append(factories, statsdFactory.Make)
	}

	return factories, closers, nil
}
