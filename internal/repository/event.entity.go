package repository

import (
	"encoding/json"
	"time"

	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/model"
)

type EventEntity struct {
	ID        int64     `db:"id"         gorm:"primaryKey;autoIncrement;column:id"`
	EventType string    `db:"event_type" gorm:"column:event_type;not null;index"`
	Payload   string    `db:"payload"    gorm:"column:payload;type:text"`
	CreatedAt time.Time `db:"created_at" gorm:"column:created_at;autoCreateTime"`
}

func (EventEntity) TableName() string {
	return "events"
}

func toEventEntity(m *model.Event) *EventEntity {
	if m == nil {
		return nil
	}
	return &EventEntity{
		ID:        m.ID,
		EventType: m.EventType,
		Payload:   string(m.Payload),
		CreatedAt: m.CreatedAt,
	}
}

func toEventModel(e *EventEntity) *model.Event {
	if e == nil {
		return nil
	}
	return &model.Event{
		ID:        e.ID,
		EventType: e.EventType,
		Payload:   json.RawMessage(e.Payload),
		CreatedAt: e.CreatedAt,
	}
}

func toEventModels(entities []*EventEntity) []*model.Event {
	if entities == nil {
		return nil
	}
	models := make([]*model.Event, len(entities))
	for i, e := range entities {
		models[i] = toEventModel(e)
	}
	return models
}
