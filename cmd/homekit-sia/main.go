package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"
	"github.com/caarlos0/env/v11"
	sia "github.com/caarlos0/homekit-sia"
	logp "github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

var log = logp.NewWithOptions(os.Stderr, logp.Options{
	ReportTimestamp: true,
	TimeFormat:      time.Kitchen,
	Prefix:          "homekit",
})

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const manufacturer = "SIA"

func main() {
	log.Info(
		"homekit-sia",
		"version", version,
		"commit", commit,
		"date", date,
		"info", "Homekit bridge for SIA alarm zones",
	)

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatal(
			"could not parse env",
			"err",
			strings.TrimPrefix(strings.ReplaceAll(err.Error(), "; ", "\n"), "env: ")+"\n",
		)
	}
	if cfg.Debug {
		log.SetLevel(logp.DebugLevel)
		sia.SetLogLevel(logp.DebugLevel)
	}

	zones, err := cfg.allZones()
	if err != nil {
		log.Fatal("invalid zones configuration", "err", err)
	}
	log.Info(
		"loading accessories",
		"ping_margin", cfg.PingMargin,
		"zones", zones.String(),
	)

	fs := hap.NewFsStore(cfg.DB)
	store := newZoneStore(fs)

	dispatch := newDispatcher(zones, store)
	scheduler := sia.NewTimerScheduler(sia.SystemClock{})
	registerPendingTimers(scheduler.Pending)
	registry := sia.NewRegistry(
		sia.WithScheduler(scheduler),
		sia.WithNotifier(dispatch.notify),
	)
	defer registry.Close()

	sensors, accessories, err := setupZones(registry, store, cfg.PingMargin, zones)
	if err != nil {
		log.Fatal("could not init accessories", "err", err)
	}
	dispatch.sensors = sensors
	for _, state := range registry.States() {
		dispatch.observe(state)
	}

	if cfg.MQTT.Broker != "" {
		presenter, err := newMQTTPresenter(cfg.MQTT)
		if err != nil {
			log.Fatal("could not init mqtt", "err", err)
		}
		defer presenter.Close()
		if err := presenter.Announce(zones); err != nil {
			log.Error("could not announce zones", "err", err)
		}
		for _, state := range registry.States() {
			if err := presenter.Update(state); err != nil {
				log.Error("could not publish zone state", "zone", state.ID, "err", err)
			}
		}
		dispatch.publisher = presenter
		log.Info("publishing to mqtt", "broker", cfg.MQTT.Broker, "topic", cfg.MQTT.Topic)
	}

	var macAddr string
	if cfg.PanelHost != "" {
		macAddr, err = sia.MacAddress(cfg.PanelHost)
		if err != nil {
			log.Warn(
				"could not get the mac address, needs 'cap_net_raw+ep' capabilities",
				"err", err,
			)
		}
	}

	bridge := accessory.NewBridge(accessory.Info{
		Name:         "SIA Bridge",
		SerialNumber: macAddr,
		Manufacturer: manufacturer,
		Firmware:     version,
	})

	server, err := hap.NewServer(fs, bridge.A, accessories...)
	if err != nil {
		log.Fatal("fail to create server", "error", err)
	}
	server.Addr = cfg.Address
	if cfg.Pin != "" {
		server.Pin = cfg.Pin
	}
	server.ServeMux().Handle("/metrics", promhttp.Handler())
	server.ServeMux().Handle("/zones", zonesHandler(registry))

	receiver := sia.NewReceiver(registry, cfg.IdleTimeout)
	receiver.OnEvent = func(evt sia.Event, _ sia.ZoneChange, err error) {
		if err != nil {
			rejectedCounter.Inc()
			return
		}
		if evt.IsPing() {
			eventsCounter.WithLabelValues("ping").Inc()
			return
		}
		eventsCounter.WithLabelValues("state").Inc()
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	signal.Notify(c, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-c
		log.Info("stopping server")
		signal.Stop(c)
		cancel()
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatch.run(ctx)
	})
	g.Go(func() error {
		return receiver.ListenAndServe(ctx, cfg.EventsAddress)
	})
	g.Go(func() error {
		log.Info("starting server", "addr", server.Addr)
		if err := server.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("failed to close server", "err", err)
	}
}
