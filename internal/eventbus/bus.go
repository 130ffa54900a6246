// Package eventbus wraps an embedded single-node NATS server with
// JetStream enabled, used as a best-effort audit trail of channel
// lifecycle and activity events. It is never the authoritative source
// of per-channel counters — that is the stats store's job — so a bus
// failure degrades observability, not correctness.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/localbridge/hl7bridge/internal/model"
)

const streamName = "CHANNEL_EVENTS"
const subjectPrefix = "channel.events."

// Bus is a running embedded NATS server plus the JetStream context used
// to publish ChannelEvents.
type Bus struct {
	server *server.Server
	nc     *nats.Conn
	js     jetstream.JetStream
}

// Start boots the embedded server under dataDir and provisions the
// CHANNEL_EVENTS stream. The server listens only on a loopback/random
// port for in-process use.
func Start(dataDir string) (*Bus, error) {
	opts := &server.Options{
		JetStream: true,
		StoreDir:  filepath.Join(dataDir, "eventbus-store"),
		Host:      "127.0.0.1",
		Port:      -1,
		HTTPPort:  -1,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("eventbus: create server: %w", err)
	}
	ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		return nil, fmt.Errorf("eventbus: server did not become ready")
	}

	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("eventbus: connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		ns.Shutdown()
		return nil, fmt.Errorf("eventbus: jetstream: %w", err)
	}

	b := &Bus{server: ns, nc: nc, js: js}
	if err := b.createStream(); err != nil {
		b.Close()
		return nil, err
	}

	slog.Info("event bus started", "url", ns.ClientURL())
	return b, nil
}

func (b *Bus) createStream() error {
	_, err := b.js.CreateOrUpdateStream(context.Background(), jetstream.StreamConfig{
		Name:        streamName,
		Description: "audit trail of channel lifecycle and activity events",
		Subjects:    []string{subjectPrefix + ">"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		MaxMsgs:     1_000_000,
		MaxBytes:    1 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		return fmt.Errorf("eventbus: create stream %s: %w", streamName, err)
	}
	return nil
}

// Publish sends an event onto the bus, best-effort: callers should log
// a failure and proceed, never block a channel transition on it.
func (b *Bus) Publish(ctx context.Context, evt model.ChannelEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("eventbus: marshal event: %w", err)
	}
	subject := subjectPrefix + string(evt.Kind) + "." + evt.ChannelName
	if _, err := b.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("eventbus: publish: %w", err)
	}
	return nil
}

// PublishChannelEvent builds and publishes a ChannelEvent for the given
// channel, best-effort. b may be nil (event bus disabled or failed to
// start), in which case this is a no-op — callers never need to guard
// the call themselves.
func (b *Bus) PublishChannelEvent(ctx context.Context, kind model.ChannelKind, channelName string, eventType model.EventType, detail string) error {
	if b == nil {
		return nil
	}
	return b.Publish(ctx, model.ChannelEvent{
		ID:          uuid.NewString(),
		Kind:        kind,
		ChannelName: channelName,
		EventType:   eventType,
		Timestamp:   time.Now(),
		Detail:      detail,
	})
}

// Close shuts down the NATS connection and embedded server.
func (b *Bus) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
	if b.server != nil {
		b.server.Shutdown()
		b.server.WaitForShutdown()
	}
}
