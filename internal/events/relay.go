package events

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/multierr"

	"github.com/angelmondragon/stockengine/pkg/db/models"
	"github.com/angelmondragon/stockengine/pkg/logger"
	"github.com/angelmondragon/stockengine/pkg/outbox"
)

const (
	defaultRelayBatch       = 50
	defaultRelayMaxAttempts = 10
)

// RelayResult summarizes one relay pass.
type RelayResult struct {
	Published int
	Failed    int
}

// RelayParams configure the outbox relay.
type RelayParams struct {
	Repository  *outbox.Repository
	Writer      MessageWriter
	Logger      *logger.Logger
	BatchSize   int
	MaxAttempts int
}

// Relay publishes unpublished outbox rows to Kafka, oldest first. Delivery is
// at least once: a crash between the write and the mark republishes the row.
type Relay struct {
	repo        *outbox.Repository
	writer      MessageWriter
	logg        *logger.Logger
	batch       int
	maxAttempts int
	now         func() time.Time
}

// NewRelay builds a relay.
func NewRelay(params RelayParams) (*Relay, error) {
	if params.Repository == nil {
		return nil, errors.New("outbox repository required")
	}
	if params.Writer == nil {
		return nil, errors.New("kafka writer required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultRelayBatch
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultRelayMaxAttempts
	}
	return &Relay{
		repo:        params.Repository,
		writer:      params.Writer,
		logg:        params.Logger,
		batch:       batch,
		maxAttempts: maxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// PublishPending drains one batch. Per-row publish failures are recorded on
// the row and combined into the returned error.
func (r *Relay) PublishPending(ctx context.Context) (RelayResult, error) {
	var result RelayResult
	rows, err := r.repo.FetchUnpublished(ctx, r.batch, r.maxAttempts)
	if err != nil {
		return result, err
	}

	var failures error
	for _, row := range rows {
		if err := r.writer.WriteMessages(ctx, message(row)); err != nil {
			result.Failed++
			failures = multierr.Append(failures, err)
			if markErr := r.repo.MarkFailed(ctx, row.ID, err); markErr != nil {
				failures = multierr.Append(failures, markErr)
			}
			continue
		}
		if err := r.repo.MarkPublished(ctx, row.ID, r.now()); err != nil {
			failures = multierr.Append(failures, err)
			continue
		}
		result.Published++
	}

	if len(rows) > 0 {
		logCtx := r.logg.WithFields(ctx, map[string]any{
			"published": result.Published,
			"failed":    result.Failed,
		})
		r.logg.Info(logCtx, "outbox relay pass complete")
	}
	return result, failures
}

func message(row models.OutboxEvent) kafka.Message {
	return kafka.Message{
		Key:   []byte(row.AggregateID.String()),
		Value: row.Payload,
		Time:  row.CreatedAt,
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(row.EventType)},
			{Key: headerAggregateType, Value: []byte(row.AggregateType)},
		},
	}
}
