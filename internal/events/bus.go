// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

package events

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/mayak870/gatehouse/internal/config"
	"github.com/mayak870/gatehouse/internal/logging"
	"github.com/mayak870/gatehouse/internal/metrics"
)

// Bus wraps a Watermill gochannel pub/sub. Publishes run behind a
// circuit breaker so a wedged subscriber chain degrades to dropped
// events instead of blocked check-ins.
type Bus struct {
	pubsub  *gochannel.GoChannel
	breaker *gobreaker.CircuitBreaker[interface{}]
	timeout time.Duration
}

// NewBus creates the in-process bus.
func NewBus(cfg config.EventsConfig) *Bus {
	buffer := cfg.BufferSize
	if buffer <= 0 {
		buffer = 256
	}
	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: int64(buffer),
	}, newWatermillLogger())

	breaker := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:    "event-bus",
		Timeout: timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Event bus breaker state change")
		},
	})

	return &Bus{pubsub: pubsub, breaker: breaker, timeout: timeout}
}

// Subscribe returns a channel of messages for topic, valid until ctx ends.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, topic)
}

// Close shuts the bus down; in-flight messages are dropped.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}

// publish marshals payload and sends it through the breaker. Failures are
// logged, never propagated: the bus is advisory, the database commit that
// preceded the publish is the record of truth.
func (b *Bus) publish(topic string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error().Err(err).Str("topic", topic).Msg("Event marshal failed")
		return
	}

	_, err = b.breaker.Execute(func() (interface{}, error) {
		msg := message.NewMessage(uuid.NewString(), data)
		return nil, b.pubsub.Publish(topic, msg)
	})
	if err != nil {
		logging.Warn().Err(err).Str("topic", topic).Msg("Event publish dropped")
		return
	}
	metrics.EventsPublished.WithLabelValues(topic).Inc()
}

// CheckedIn publishes an attendance.checked_in event.
func (b *Bus) CheckedIn(evt CheckedInEvent) {
	if evt.ID == uuid.Nil {
		evt.ID = uuid.New()
	}
	b.publish(TopicCheckedIn, evt)
}

// CheckedOut publishes an attendance.checked_out event.
func (b *Bus) CheckedOut(evt CheckedOutEvent) {
	if evt.ID == uuid.Nil {
		evt.ID = uuid.New()
	}
	b.publish(TopicCheckedOut, evt)
}

// PickupRecorded publishes a pickup.recorded event.
func (b *Bus) PickupRecorded(evt PickupRecordedEvent) {
	if evt.ID == uuid.Nil {
		evt.ID = uuid.New()
	}
	b.publish(TopicPickupRecorded, evt)
}

// CodeIssued publishes a code.issued event.
func (b *Bus) CodeIssued(evt CodeIssuedEvent) {
	if evt.ID == uuid.Nil {
		evt.ID = uuid.New()
	}
	b.publish(TopicCodeIssued, evt)
}

// watermillLogger bridges Watermill's logging into zerolog.
type watermillLogger struct {
	fields watermill.LogFields
}

func newWatermillLogger() watermill.LoggerAdapter {
	return &watermillLogger{}
}

func (l *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	logging.Error().Err(err).Fields(map[string]interface{}(l.fields.Add(fields))).Msg(msg)
}

func (l *watermillLogger) Info(msg string, fields watermill.LogFields) {
	logging.Debug().Fields(map[string]interface{}(l.fields.Add(fields))).Msg(msg)
}

func (l *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	logging.Debug().Fields(map[string]interface{}(l.fields.Add(fields))).Msg(msg)
}

func (l *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	logging.Debug().Fields(map[string]interface{}(l.fields.Add(fields))).Msg(msg)
}

func (l *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{fields: l.fields.Add(fields)}
}
