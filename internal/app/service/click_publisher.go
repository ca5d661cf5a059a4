package service

import (
	"encoding/json"

	"github.com/beaconbio/beacon/internal/app/model"
	"github.com/nats-io/nats.go"
)

// ClickPublisher publishes persisted click events to NATS JetStream for
// downstream consumers (live counters, exports). Publishing is best-effort;
// the tracked outcome never depends on it.
type ClickPublisher struct {
	js nats.JetStreamContext
}

// NewClickPublisher creates a new click event publisher.
func NewClickPublisher(js nats.JetStreamContext) *ClickPublisher {
	return &ClickPublisher{js: js}
}

// Publish sends one tracked event to the stream.
func (p *ClickPublisher) Publish(event *model.ClickEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = p.js.Publish(model.ClickStreamSubject, data)
	return err
}
