// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

//go:build nats

package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"

	"github.com/mayak870/gatehouse/internal/config"
	"github.com/mayak870/gatehouse/internal/logging"
)

// bridgedTopics are mirrored to NATS for multi-campus consumers.
var bridgedTopics = []string{
	TopicCheckedIn,
	TopicCheckedOut,
	TopicPickupRecorded,
	TopicCodeIssued,
}

// NATSBridge mirrors bus topics onto NATS JetStream subjects so other
// campuses and reporting consumers see the live attendance feed. Compiled
// in with -tags nats; the stub build ships a no-op.
type NATSBridge struct {
	bus       *Bus
	cfg       config.NATSConfig
	publisher message.Publisher

	mu     sync.Mutex
	closed bool
}

// NewNATSBridge connects to NATS and prepares the mirror.
func NewNATSBridge(bus *Bus, cfg config.NATSConfig) (*NATSBridge, error) {
	logger := newWatermillLogger()

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: true,
			TrackMsgId:    true,
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create nats publisher: %w", err)
	}

	return &NATSBridge{bus: bus, cfg: cfg, publisher: pub}, nil
}

// Serve subscribes to every bridged topic and mirrors messages until ctx
// ends. Implements suture.Service.
func (b *NATSBridge) Serve(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, topic := range bridgedTopics {
		msgs, err := b.bus.Subscribe(ctx, topic)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}

		subject := b.cfg.TopicPrefix + "." + topic
		wg.Add(1)
		go func(topic, subject string, msgs <-chan *message.Message) {
			defer wg.Done()
			for msg := range msgs {
				if msg.Metadata.Get(natsgo.MsgIdHdr) == "" {
					msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
				}
				if err := b.publisher.Publish(subject, msg); err != nil {
					logging.Warn().Err(err).Str("subject", subject).Msg("NATS mirror publish failed")
				}
				msg.Ack()
			}
		}(topic, subject, msgs)
	}

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// Close releases the NATS connection.
func (b *NATSBridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.publisher.Close()
}

// String identifies the bridge in supervisor logs.
func (b *NATSBridge) String() string {
	return "nats-bridge"
}
