package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockengine/internal/orders"
	"github.com/angelmondragon/stockengine/pkg/db"
	"github.com/angelmondragon/stockengine/pkg/db/dbtest"
	"github.com/angelmondragon/stockengine/pkg/db/models"
	"github.com/angelmondragon/stockengine/pkg/enums"
	"github.com/angelmondragon/stockengine/pkg/logger"
	"github.com/angelmondragon/stockengine/pkg/outbox"
)

type fakeWriter struct {
	mu       sync.Mutex
	failKeys map[string]bool
	messages []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, msg := range msgs {
		if w.failKeys[string(msg.Key)] {
			return errors.New("leader not available")
		}
		w.messages = append(w.messages, msg)
	}
	return nil
}

type stubEmitter struct {
	calls int
	err   error
}

func (s *stubEmitter) Emit(context.Context, orders.StatusChange) error {
	s.calls++
	return s.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "events-test", Output: io.Discard})
}

func statusChange() orders.StatusChange {
	userID := uuid.New()
	return orders.StatusChange{
		Order: &models.Order{
			ID:              uuid.New(),
			UserID:          &userID,
			Status:          enums.OrderStatusProcessing,
			StatusUpdatedAt: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
			PaymentID:       "pi_123",
		},
		Old: enums.OrderStatusPending,
		New: enums.OrderStatusProcessing,
	}
}

func decodeEvent(t *testing.T, raw []byte) (outbox.PayloadEnvelope, OrderStatusChangedEvent) {
	t.Helper()
	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(raw, &envelope))
	var data OrderStatusChangedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	return envelope, data
}

func TestOutboxEmitterQueuesStatusChange(t *testing.T) {
	conn := dbtest.Open(t)
	svc := outbox.NewService(outbox.NewRepository(conn), testLogger())
	emitter, err := NewOutboxEmitter(db.NewFromConn(conn), svc)
	require.NoError(t, err)

	change := statusChange()
	require.NoError(t, emitter.Emit(context.Background(), change))

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	row := rows[0]
	require.Equal(t, enums.EventOrderStatusChanged, row.EventType)
	require.Equal(t, enums.AggregateOrder, row.AggregateType)
	require.Equal(t, change.Order.ID, row.AggregateID)
	require.Nil(t, row.PublishedAt)

	envelope, data := decodeEvent(t, row.Payload)
	require.Equal(t, 1, envelope.Version)
	require.Equal(t, string(enums.EventOrderStatusChanged), envelope.EventType)
	require.NotNil(t, envelope.Actor)
	require.Equal(t, *change.Order.UserID, envelope.Actor.UserID)
	require.Equal(t, enums.OrderStatusPending, data.OldStatus)
	require.Equal(t, enums.OrderStatusProcessing, data.NewStatus)
	require.Equal(t, "pi_123", data.PaymentID)
}

func TestKafkaEmitterKeysByOrder(t *testing.T) {
	writer := &fakeWriter{}
	emitter, err := NewKafkaEmitter(writer)
	require.NoError(t, err)

	change := statusChange()
	require.NoError(t, emitter.Emit(context.Background(), change))
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	require.Equal(t, change.Order.ID.String(), string(msg.Key))
	require.Equal(t, headerEventType, msg.Headers[0].Key)
	require.Equal(t, string(enums.EventOrderStatusChanged), string(msg.Headers[0].Value))
	_, data := decodeEvent(t, msg.Value)
	require.Equal(t, change.Order.ID, data.OrderID)
}

func TestEmittersRejectMissingOrder(t *testing.T) {
	emitter, err := NewKafkaEmitter(&fakeWriter{})
	require.NoError(t, err)
	require.Error(t, emitter.Emit(context.Background(), orders.StatusChange{}))
}

func TestMultiRunsEveryEmitter(t *testing.T) {
	failing := &stubEmitter{err: errors.New("sink down")}
	healthy := &stubEmitter{}

	err := Multi{failing, nil, healthy}.Emit(context.Background(), statusChange())
	require.Error(t, err)
	require.Contains(t, err.Error(), "sink down")
	require.Equal(t, 1, failing.calls)
	require.Equal(t, 1, healthy.calls)

	require.NoError(t, Multi{healthy}.Emit(context.Background(), statusChange()))
}

func TestRelayPublishesAndRecordsFailures(t *testing.T) {
	conn := dbtest.Open(t)
	repo := outbox.NewRepository(conn)
	svc := outbox.NewService(repo, testLogger())
	ctx := context.Background()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		change := statusChange()
		ids = append(ids, change.Order.ID)
		require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
			return svc.Emit(ctx, tx, domainEvent(change))
		}))
	}

	writer := &fakeWriter{failKeys: map[string]bool{ids[1].String(): true}}
	relay, err := NewRelay(RelayParams{Repository: repo, Writer: writer, Logger: testLogger()})
	require.NoError(t, err)

	result, err := relay.PublishPending(ctx)
	require.Error(t, err)
	require.Equal(t, RelayResult{Published: 2, Failed: 1}, result)

	var failed models.OutboxEvent
	require.NoError(t, conn.First(&failed, "aggregate_id = ?", ids[1]).Error)
	require.Nil(t, failed.PublishedAt)
	require.Equal(t, 1, failed.AttemptCount)
	require.NotNil(t, failed.LastError)

	writer.failKeys = nil
	result, err = relay.PublishPending(ctx)
	require.NoError(t, err)
	require.Equal(t, RelayResult{Published: 1}, result)
	require.Len(t, writer.messages, 3)

	result, err = relay.PublishPending(ctx)
	require.NoError(t, err)
	require.Zero(t, result.Published)
}

func TestRelaySkipsExhaustedRows(t *testing.T) {
	conn := dbtest.Open(t)
	repo := outbox.NewRepository(conn)
	svc := outbox.NewService(repo, testLogger())
	ctx := context.Background()

	change := statusChange()
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(ctx, tx, domainEvent(change))
	}))
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("aggregate_id = ?", change.Order.ID).Update("attempt_count", 3).Error)

	writer := &fakeWriter{}
	relay, err := NewRelay(RelayParams{Repository: repo, Writer: writer, Logger: testLogger(), MaxAttempts: 3})
	require.NoError(t, err)

	result, err := relay.PublishPending(ctx)
	require.NoError(t, err)
	require.Zero(t, result.Published)
	require.Empty(t, writer.messages)
}
