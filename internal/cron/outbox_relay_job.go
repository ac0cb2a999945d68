package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/stockengine/internal/events"
)

type outboxPublisher interface {
	PublishPending(ctx context.Context) (events.RelayResult, error)
}

// NewOutboxRelayJob builds the job that forwards pending outbox rows to Kafka.
func NewOutboxRelayJob(publisher outboxPublisher) (Job, error) {
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &outboxRelayJob{publisher: publisher}, nil
}

type outboxRelayJob struct {
	publisher outboxPublisher
}

func (j *outboxRelayJob) Name() string { return "outbox-relay" }

func (j *outboxRelayJob) Run(ctx context.Context) error {
	if _, err := j.publisher.PublishPending(ctx); err != nil {
		return fmt.Errorf("outbox relay: %w", err)
	}
	return nil
}
