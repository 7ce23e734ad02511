package service

import (
	"context"

	"bookworms/internal/domain"
	"bookworms/internal/notify"
)

// EventPublisher receives domain events for the admin panel feed.
type EventPublisher interface {
	Publish(ev domain.Event)
}

// Announcer posts a message to the group.
type Announcer interface {
	Announce(ctx context.Context, msg notify.Message) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(domain.Event) {}

func orNop(p EventPublisher) EventPublisher {
	if p == nil {
		return nopPublisher{}
	}
	return p
}
