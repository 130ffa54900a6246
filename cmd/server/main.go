package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/localbridge/hl7bridge/internal/api"
	"github.com/localbridge/hl7bridge/internal/channelconfig"
	"github.com/localbridge/hl7bridge/internal/config"
	"github.com/localbridge/hl7bridge/internal/eventbus"
	"github.com/localbridge/hl7bridge/internal/inbound"
	"github.com/localbridge/hl7bridge/internal/model"
	"github.com/localbridge/hl7bridge/internal/outbound"
	"github.com/localbridge/hl7bridge/internal/runtime"
	"github.com/localbridge/hl7bridge/internal/stats"
	"github.com/localbridge/hl7bridge/internal/translate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	statsStore, err := stats.Open(cfg.StatsPath)
	if err != nil {
		slog.Error("stats store open failed", "error", err)
		os.Exit(1)
	}

	var bus *eventbus.Bus
	if cfg.EventBusEnable {
		bus, err = eventbus.Start(cfg.DataDir)
		if err != nil {
			slog.Warn("event bus failed to start, continuing without it", "error", err)
			bus = nil
		} else {
			defer bus.Close()
		}
	}

	translateManager := runtime.NewManager[*translate.Channel](model.KindTranslate, statsStore, bus)
	inboundManager := runtime.NewManager[*inbound.Channel](model.KindInbound, statsStore, bus)
	outboundManager := runtime.NewManager[*outbound.Channel](model.KindOutbound, statsStore, bus)

	if err := loadTranslateChannels(ctx, cfg.ConfRoot, statsStore, bus, translateManager); err != nil {
		slog.Error("translate channel load failed", "error", err)
		os.Exit(1)
	}
	if err := loadInboundChannels(ctx, cfg.ConfRoot, statsStore, bus, inboundManager); err != nil {
		slog.Error("inbound channel load failed", "error", err)
		os.Exit(1)
	}
	if err := loadOutboundChannels(ctx, cfg.ConfRoot, statsStore, bus, outboundManager); err != nil {
		slog.Error("outbound channel load failed", "error", err)
		os.Exit(1)
	}

	adminServer := api.New(cfg.AdminPort, translateManager, inboundManager, outboundManager, statsStore, bus)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := adminServer.Start(ctx); err != nil {
			slog.Error("admin server error", "error", err)
		}
	}()

	slog.Info("hl7bridge started",
		"confRoot", cfg.ConfRoot,
		"adminPort", cfg.AdminPort,
		"translateChannels", len(translateManager.GetAllNames()),
		"inboundChannels", len(inboundManager.GetAllNames()),
		"outboundChannels", len(outboundManager.GetAllNames()),
	)

	<-sigChan
	slog.Info("shutdown signal received, draining")

	cancel()

	translateManager.StopAll()
	inboundManager.StopAll()
	outboundManager.StopAll()

	wg.Wait()
	slog.Info("hl7bridge stopped")
}

func loadTranslateChannels(ctx context.Context, confRoot string, store *stats.Store, bus *eventbus.Bus, m *runtime.Manager[*translate.Channel]) error {
	configs, err := channelconfig.LoadTranslate(confRoot)
	if err != nil {
		return err
	}
	channels := make([]*translate.Channel, 0, len(configs))
	for _, cfg := range configs {
		ch, err := translate.New(cfg, confRoot, cfg.YamlDir, store, bus)
		if err != nil {
			slog.Warn("translate channel skipped: build failed", "name", cfg.Name, "err", err)
			continue
		}
		channels = append(channels, ch)
	}
	m.LoadAndStart(ctx, channels)
	return nil
}

func loadInboundChannels(ctx context.Context, confRoot string, store *stats.Store, bus *eventbus.Bus, m *runtime.Manager[*inbound.Channel]) error {
	configs, err := channelconfig.LoadInbound(confRoot)
	if err != nil {
		return err
	}
	channels := make([]*inbound.Channel, 0, len(configs))
	for _, cfg := range configs {
		ch, err := inbound.New(cfg, store, bus)
		if err != nil {
			slog.Warn("inbound channel skipped: build failed", "name", cfg.Name, "err", err)
			continue
		}
		channels = append(channels, ch)
	}
	m.LoadAndStart(ctx, channels)
	return nil
}

func loadOutboundChannels(ctx context.Context, confRoot string, store *stats.Store, bus *eventbus.Bus, m *runtime.Manager[*outbound.Channel]) error {
	configs, err := channelconfig.LoadOutbound(confRoot)
	if err != nil {
		return err
	}
	channels := make([]*outbound.Channel, 0, len(configs))
	for _, cfg := range configs {
		channels = append(channels, outbound.New(cfg, store, bus))
	}
	m.LoadAndStart(ctx, channels)
	return nil
}
