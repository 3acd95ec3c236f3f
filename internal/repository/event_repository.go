package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"aura-identity-service/internal/domain"
)

// maxEventPage は ListEvents が1回に返す最大件数。
const maxEventPage = 500

// EventModel はイベントログの1行。種別ごとに使わない列は空のまま。
type EventModel struct {
	Seq               uint64    `gorm:"primaryKey;autoIncrement"`
	ID                string    `gorm:"type:char(36);not null;uniqueIndex:uk_events_id"`
	Height            uint64    `gorm:"not null;index:idx_events_height"`
	Type              string    `gorm:"type:varchar(32);not null;index:idx_events_type"`
	Account           string    `gorm:"type:varchar(64)"`
	Trustee           string    `gorm:"type:varchar(64)"`
	LostAccount       string    `gorm:"type:varchar(64)"`
	RequestingAccount string    `gorm:"type:varchar(64)"`
	NewAccount        string    `gorm:"type:varchar(64)"`
	DID               *string   `gorm:"column:did;type:char(64)"`
	Threshold         uint8     `gorm:"not null;default:0"`
	TotalTrustees     uint8     `gorm:"not null;default:0"`
	CreatedAt         time.Time `gorm:"not null;autoCreateTime"`
}

// TableName はテーブル名を返す。
func (EventModel) TableName() string {
	return "events"
}

func (m *EventModel) toDomain() (*domain.Event, error) {
	event := &domain.Event{
		Seq:               m.Seq,
		ID:                m.ID,
		Height:            m.Height,
		Type:              domain.EventType(m.Type),
		Account:           domain.AccountID(m.Account),
		Trustee:           domain.AccountID(m.Trustee),
		LostAccount:       domain.AccountID(m.LostAccount),
		RequestingAccount: domain.AccountID(m.RequestingAccount),
		NewAccount:        domain.AccountID(m.NewAccount),
		Threshold:         m.Threshold,
		TotalTrustees:     m.TotalTrustees,
	}
	if m.DID != nil {
		did, err := domain.ParseDID(*m.DID)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", m.Seq, err)
		}
		event.DID = &did
	}
	return event, nil
}

// EventRepository は追記専用のイベントログを提供する。
type EventRepository struct {
	db *gorm.DB
}

// NewEventRepository は新しいEventRepositoryを生成する。
func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// AppendEvent はイベントを追記し、採番された seq を event に反映する。
func (r *EventRepository) AppendEvent(ctx context.Context, event *domain.Event) error {
	model := &EventModel{
		ID:                event.ID,
		Height:            event.Height,
		Type:              string(event.Type),
		Account:           string(event.Account),
		Trustee:           string(event.Trustee),
		LostAccount:       string(event.LostAccount),
		RequestingAccount: string(event.RequestingAccount),
		NewAccount:        string(event.NewAccount),
		Threshold:         event.Threshold,
		TotalTrustees:     event.TotalTrustees,
	}
	if event.DID != nil {
		did := event.DID.Hex()
		model.DID = &did
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to append event",
			"operation", "append_event",
			"type", event.Type,
			"error", err,
		)
		return err
	}
	event.Seq = model.Seq
	return nil
}

// ListEvents は seq が after より大きいイベントを古い順に最大 limit 件返す。
func (r *EventRepository) ListEvents(ctx context.Context, after uint64, limit int) ([]*domain.Event, error) {
	if limit <= 0 || limit > maxEventPage {
		limit = maxEventPage
	}
	var models []EventModel
	err := r.db.WithContext(ctx).
		Where("seq > ?", after).
		Order("seq ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to list events",
			"operation", "list_events",
			"after", after,
			"error", err,
		)
		return nil, err
	}

	events := make([]*domain.Event, 0, len(models))
	for i := range models {
		event, err := models[i].toDomain()
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}
