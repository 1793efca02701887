package adapter

import "research-orchestrator/internal/domain/model"

// EventPublisher broadcasts pipeline events. Publish never blocks.
type EventPublisher interface {
	Publish(evt model.Event)
}
