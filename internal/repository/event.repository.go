package repository

import (
	"context"

	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/model"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/pkg/pg"
)

// EventRepository is the append-only audit log. There is deliberately no
// update or delete surface.
type EventRepository struct {
	*pg.DB
}

func NewEventRepository(db *pg.DB) *EventRepository {
	return &EventRepository{
		db,
	}
}

func (r *EventRepository) Append(ctx context.Context, ev *model.Event) (*model.Event, error) {
	entity := toEventEntity(ev)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toEventModel(entity), nil
}

func (r *EventRepository) ListByType(ctx context.Context, eventType string, limit int) ([]*model.Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}

	var entities []*EventEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("event_type = ?", eventType).
		Order("created_at DESC").
		Limit(limit).
		Find(&entities).Error
	if err != nil {
		return nil, err
	}

	return toEventModels(entities), nil
}

func (r *EventRepository) CountByType(ctx context.Context, eventType string) (int64, error) {
	var total int64
	err := r.Read(ctx).WithContext(ctx).
		Model(&EventEntity{}).
		Where("event_type = ?", eventType).
		Count(&total).Error
	return total, err
}
