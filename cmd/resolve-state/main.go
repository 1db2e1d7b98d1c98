package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/matrix-org/stateres"
	"github.com/matrix-org/stateres/caching"
	"github.com/matrix-org/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// This is a utility for running state resolution against a room described
// by a YAML fixture. The fixture lists the events of the room and the state
// at each fork, and the resolved state is printed.
//
// Usage: ./resolve-state --fixture=room.yaml [--cache-config=cache.yaml] [--verbose]

var (
	fixturePath     = flag.String("fixture", "", "the YAML fixture describing the room")
	cacheConfigPath = flag.String("cache-config", "", "a YAML file configuring the event cache")
	roomVersion     = flag.String("room-version", "", "the room version to resolve as, overriding the fixture")
	verbose         = flag.Bool("verbose", false, "log at debug level")
)

type options struct {
	fixturePath     string
	cacheConfigPath string
	roomVersion     string
}

func main() {
	flag.Parse()
	logrus.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000000000Z07:00",
		FullTimestamp:   true,
	})
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	if *fixturePath == "" {
		flag.Usage()
		os.Exit(2)
	}

	err := run(context.Background(), os.Stdout, options{
		fixturePath:     *fixturePath,
		cacheConfigPath: *cacheConfigPath,
		roomVersion:     *roomVersion,
	})
	if err != nil {
		logrus.WithError(err).Fatal("Failed to resolve state")
	}
}

func run(ctx context.Context, out io.Writer, opts options) error {
	f, err := loadFixture(opts.fixturePath)
	if err != nil {
		return err
	}
	version := stateres.RoomVersion(f.RoomVersion)
	if opts.roomVersion != "" {
		version = stateres.RoomVersion(opts.roomVersion)
	}
	logger := logrus.WithFields(logrus.Fields{
		"room_id":      f.RoomID,
		"room_version": version,
	})
	ctx = util.ContextWithLogger(ctx, logger)

	store, stateMaps, err := f.build()
	if err != nil {
		return fmt.Errorf("failed to build fixture: %w", err)
	}

	cfg := &caching.Config{}
	cfg.Defaults()
	if opts.cacheConfigPath != "" {
		if cfg, err = caching.LoadConfig(opts.cacheConfigPath); err != nil {
			return err
		}
	}
	registry := prometheus.NewRegistry()
	cfg.Registerer = registry
	cache, err := caching.NewEventStore(store, *cfg)
	if err != nil {
		return err
	}
	defer cache.Close()

	logger.Infof("Resolving %d state maps over %d events", len(stateMaps), len(store))
	resolved, err := stateres.ResolveStateConflictsForRoomVersion(ctx, version, stateMaps, cache)
	if err != nil {
		return err
	}
	logCacheMetrics(logger, registry)

	fmt.Fprintln(out, "Resolved state contains", len(resolved), "events")
	for _, key := range resolved.Keys() {
		eventID := resolved[key]
		fmt.Fprintln(out)
		fmt.Fprintf(out, "* %s %s %q\n", eventID, key.EventType, key.StateKey)
		if event, ok := cache.Event(eventID); ok {
			fmt.Fprintf(out, "  %s\n", string(event.Content()))
		}
	}
	return nil
}

func logCacheMetrics(logger *logrus.Entry, registry *prometheus.Registry) {
	families, err := registry.Gather()
	if err != nil {
		logger.WithError(err).Warn("Failed to gather cache metrics")
		return
	}
	fields := logrus.Fields{}
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			name := family.GetName()
			for _, label := range metric.GetLabel() {
				name += "_" + label.GetValue()
			}
			switch {
			case metric.GetCounter() != nil:
				fields[name] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				fields[name] = metric.GetGauge().GetValue()
			}
		}
	}
	logger.WithFields(fields).Debug("Event cache metrics")
}
