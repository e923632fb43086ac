// Package nats mirrors the in-process event stream to NATS JetStream so
// external consumers can follow runs durably.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/CrewForge/internal/domain/event"
	"github.com/Strob0t/CrewForge/internal/port/eventbus"
)

const streamName = "CREWFORGE"

// Mirror republishes bus events to JetStream subjects derived from the
// event type ("task.created" becomes "events.task.created").
type Mirror struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

// Connect establishes a connection to NATS and ensures the stream exists.
func Connect(ctx context.Context, url string, logger *slog.Logger) (*Mirror, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"events.>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	logger.Info("nats connected", "url", url, "stream", streamName)
	return &Mirror{nc: nc, js: js, logger: logger}, nil
}

// Run subscribes to the bus and republishes every event until the context is
// canceled. Publish failures are logged and skipped; the local bus is the
// source of truth and the mirror is best effort.
func (m *Mirror) Run(ctx context.Context, bus eventbus.Bus) {
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			subject := subjectFor(ev.Type)
			if _, err := m.js.Publish(ctx, subject, ev.JSON()); err != nil {
				m.logger.Warn("nats mirror publish failed", "subject", subject, "error", err)
			}
		}
	}
}

// Close shuts down the NATS connection.
func (m *Mirror) Close() error {
	m.nc.Close()
	return nil
}

func subjectFor(t event.Type) string {
	token := strings.ReplaceAll(string(t), " ", "_")
	return "events." + token
}
