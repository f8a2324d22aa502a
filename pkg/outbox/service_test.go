package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-engine/pkg/db/dbtest"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	"github.com/angelmondragon/settlement-engine/pkg/outbox/payloads"
)

func TestEmitWritesEnvelope(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	orderID := uuid.New()

	err := svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Data:          payloads.OrderCreated{OrderID: orderID, TotalCents: 80750, Currency: "usd"},
	})
	require.NoError(t, err)

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	var env PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &env))
	assert.Equal(t, 1, env.Version)
	assert.NotEmpty(t, env.EventID)

	var data payloads.OrderCreated
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, int64(80750), data.TotalCents)
}

func TestEmitRejectsUnknownTypes(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)
	err := svc.Emit(context.Background(), conn, DomainEvent{EventType: "nope", AggregateType: enums.AggregateOrder})
	require.Error(t, err)
	require.Error(t, svc.Emit(context.Background(), nil, DomainEvent{}))
}

func TestFetchUnpublishedSkipsExhaustedAndPublished(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)

	fresh := models.OutboxEvent{EventType: enums.EventPayoutPaid, AggregateType: enums.AggregatePayout, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	exhausted := models.OutboxEvent{EventType: enums.EventPayoutPaid, AggregateType: enums.AggregatePayout, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), AttemptCount: 5}
	published := models.OutboxEvent{EventType: enums.EventPayoutPaid, AggregateType: enums.AggregatePayout, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	for _, row := range []*models.OutboxEvent{&fresh, &exhausted, &published} {
		require.NoError(t, conn.Create(row).Error)
	}
	require.NoError(t, repo.MarkPublishedTx(nil, published.ID))

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, fresh.ID, rows[0].ID)

	require.NoError(t, repo.MarkFailedTx(conn, fresh.ID, errors.New("unavailable")))
	var reloaded models.OutboxEvent
	require.NoError(t, conn.First(&reloaded, "id = ?", fresh.ID).Error)
	assert.Equal(t, 1, reloaded.AttemptCount)
	require.NotNil(t, reloaded.LastError)
	assert.Equal(t, "unavailable", *reloaded.LastError)

	require.NoError(t, repo.MarkTerminalTx(conn, fresh.ID, errors.New("bad payload"), 5))
	rows, err = repo.FetchUnpublishedForPublish(conn, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDecodeEnvelope(t *testing.T) {
	row := models.OutboxEvent{
		EventType:     enums.EventRefundProcessed,
		AggregateType: enums.AggregateRefund,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1,"eventId":"evt-1","occurredAt":"2026-01-02T03:04:05Z","data":{}}`),
	}
	env, err := DecodeEnvelope(row)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", env.EventID)

	row.Payload = json.RawMessage(`not-json`)
	_, err = DecodeEnvelope(row)
	require.Error(t, err)

	row.Payload = json.RawMessage(`{"version":1,"data":{}}`)
	_, err = DecodeEnvelope(row)
	require.Error(t, err)

	row.Payload = json.RawMessage(`{"version":1,"eventId":"evt-2","data":{}}`)
	row.EventType = "legacy_event"
	_, err = DecodeEnvelope(row)
	require.Error(t, err)
}

func TestDeletePublishedBeforeKeepsPendingAndRecent(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)

	event := func() models.OutboxEvent {
		return models.OutboxEvent{EventType: enums.EventPayoutPaid, AggregateType: enums.AggregatePayout, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	}
	old, recent, pending := event(), event(), event()
	for _, row := range []*models.OutboxEvent{&old, &recent, &pending} {
		require.NoError(t, conn.Create(row).Error)
	}
	now := time.Now().UTC()
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("id = ?", old.ID).Update("published_at", now.Add(-40*24*time.Hour)).Error)
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("id = ?", recent.ID).Update("published_at", now.Add(-time.Hour)).Error)

	deleted, err := repo.DeletePublishedBefore(context.Background(), nil, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var remaining int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&remaining).Error)
	assert.Equal(t, int64(2), remaining)
}

type recordingInserter struct {
	rows []models.OutboxEvent
}

func (r *recordingInserter) Insert(_ *gorm.DB, event models.OutboxEvent) error {
	r.rows = append(r.rows, event)
	return nil
}

func TestEmitStampsOccurredAtAndActor(t *testing.T) {
	ins := &recordingInserter{}
	svc := NewService(ins, nil)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	actor := &ActorRef{ActorID: uuid.New(), Role: "admin"}

	err := svc.Emit(context.Background(), &gorm.DB{}, DomainEvent{
		EventType:     enums.EventPayoutPaid,
		AggregateType: enums.AggregatePayout,
		AggregateID:   uuid.New(),
		Actor:         actor,
		Data:          map[string]int{"amount_cents": 100},
	})
	require.NoError(t, err)
	require.Len(t, ins.rows, 1)

	env, err := DecodeEnvelope(ins.rows[0])
	require.NoError(t, err)
	assert.True(t, fixed.Equal(env.OccurredAt))
	require.NotNil(t, env.Actor)
	assert.Equal(t, actor.ActorID, env.Actor.ActorID)
	parsed, err := uuid.Parse(env.EventID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}
