// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

package websocket

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/mayak870/gatehouse/internal/events"
	"github.com/mayak870/gatehouse/internal/logging"
)

// Subscriber is the event bus surface the forwarder consumes.
// Satisfied by *events.Bus.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
}

// Forwarder bridges the in-process event bus to the hub so dashboards
// see check-ins, checkouts, and pickups as they happen.
type Forwarder struct {
	bus Subscriber
	hub *Hub
}

// NewForwarder creates the bus-to-hub bridge.
func NewForwarder(bus Subscriber, hub *Hub) *Forwarder {
	return &Forwarder{bus: bus, hub: hub}
}

// topicMessageTypes maps bus topics to dashboard message types.
var topicMessageTypes = map[string]string{
	events.TopicCheckedIn:      MessageTypeCheckedIn,
	events.TopicCheckedOut:     MessageTypeCheckedOut,
	events.TopicPickupRecorded: MessageTypePickup,
}

// Serve blocks, forwarding bus events to the hub until ctx is canceled.
// Implements suture.Service.
func (f *Forwarder) Serve(ctx context.Context) error {
	for topic, messageType := range topicMessageTypes {
		ch, err := f.bus.Subscribe(ctx, topic)
		if err != nil {
			return err
		}
		go f.forward(ctx, messageType, ch)
	}

	<-ctx.Done()
	return ctx.Err()
}

// String names the service in supervisor logs.
func (f *Forwarder) String() string { return "websocket-forwarder" }

func (f *Forwarder) forward(ctx context.Context, messageType string, ch <-chan *message.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			f.hub.BroadcastRaw(messageType, msg.Payload)
			msg.Ack()
			logging.Debug().Str("message_type", messageType).Msg("forwarded event to websocket clients")
		}
	}
}
