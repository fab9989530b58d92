package repository

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/goccy/go-json"

	"conversions-relay-service/internal/model"
)

// EventRepository persists delivery records. Status transitions are written
// as new row versions; ReplacingMergeTree collapses them by id.
type EventRepository interface {
	// Create inserts a single delivery record version.
	Create(ctx context.Context, event model.Event) error

	// CreateBatch inserts multiple record versions in one prepared batch.
	CreateBatch(ctx context.Context, events []model.Event) error
}

type eventRepository struct {
	conn clickhouse.Conn
}

// NewEventRepository creates an EventRepository backed by ClickHouse.
func NewEventRepository(conn clickhouse.Conn) EventRepository {
	return &eventRepository{conn: conn}
}

const insertEventQuery = `
	INSERT INTO conversion_events (id, pixel_id, event_name, event_time, status, user_data, custom_data, response, trace_id, error_message, attempt_count, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`

func (r *eventRepository) Create(ctx context.Context, event model.Event) error {
	userData, customData, err := marshalEventJSON(event)
	if err != nil {
		return err
	}

	return r.conn.Exec(ctx, insertEventQuery,
		event.ID,
		event.PixelID,
		event.EventName,
		event.EventTime,
		event.Status,
		userData,
		customData,
		event.ResponsePayload,
		event.TraceID,
		event.ErrorMessage,
		event.AttemptCount,
		event.UpdatedAt,
	)
}

func (r *eventRepository) CreateBatch(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := r.conn.PrepareBatch(ctx, insertEventQuery)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, event := range events {
		userData, customData, err := marshalEventJSON(event)
		if err != nil {
			return err
		}
		if err := batch.Append(
			event.ID,
			event.PixelID,
			event.EventName,
			event.EventTime,
			event.Status,
			userData,
			customData,
			event.ResponsePayload,
			event.TraceID,
			event.ErrorMessage,
			event.AttemptCount,
			event.UpdatedAt,
		); err != nil {
			return fmt.Errorf("append batch row: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

func marshalEventJSON(event model.Event) (string, string, error) {
	userData, err := json.Marshal(event.UserData)
	if err != nil {
		return "", "", fmt.Errorf("marshal user_data: %w", err)
	}

	customData := []byte("{}")
	if event.CustomData != nil {
		customData, err = json.Marshal(event.CustomData)
		if err != nil {
			return "", "", fmt.Errorf("marshal custom_data: %w", err)
		}
	}
	return string(userData), string(customData), nil
}
