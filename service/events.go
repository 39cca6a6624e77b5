package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"constellation/record"
)

// EventType names a client lifecycle notification point.
type EventType string

const (
	BeforeCreate EventType = "client.before_create"
	AfterCreate  EventType = "client.created"
	BeforeUpdate EventType = "client.before_update"
	AfterUpdate  EventType = "client.updated"
	BeforeDelete EventType = "client.before_delete"
	AfterDelete  EventType = "client.deleted"
)

// Event is delivered to listeners at each notification point.
type Event struct {
	Type     EventType
	ClientID string
	Client   *record.Client

	// Original is the pre-update snapshot, set for update events only.
	Original *record.Client

	// Attributes are the caller's input for create and update events.
	Attributes record.Attributes
}

// Listener observes client lifecycle events. A listener failure is logged
// and never affects the operation being observed.
type Listener func(ctx context.Context, event Event) error

type dispatcher struct {
	listeners []Listener
	logger    *zap.Logger
}

func (d *dispatcher) notify(ctx context.Context, event Event) {
	for i, l := range d.listeners {
		if err := d.call(ctx, l, event); err != nil {
			d.logger.Warn("client listener failed",
				zap.String("event", string(event.Type)),
				zap.Int("listener", i),
				zap.String("client_id", event.ClientID),
				zap.Error(err))
		}
	}
}

func (d *dispatcher) call(ctx context.Context, l Listener, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panicked: %v", r)
		}
	}()
	return l(ctx, event)
}
