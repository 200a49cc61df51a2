package kgorm

import (
	"context"

	"github.com/cksportal/hubid/core/audit"
	"gorm.io/gorm"
)

// AuditRepository persists audit events in audit_events.
type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

var _ audit.AuditStore = (*AuditRepository)(nil)

func (r *AuditRepository) SaveEvent(ctx context.Context, event *audit.AuditEvent) error {
	return r.db.WithContext(ctx).Create(fromCoreAuditEvent(event)).Error
}

func (r *AuditRepository) Query(ctx context.Context, filter audit.Filter) ([]audit.AuditEvent, error) {
	q := r.db.WithContext(ctx).Model(&gormAuditEvent{})
	if filter.ActorID != "" {
		q = q.Where("actor_id = ?", filter.ActorID)
	}
	if filter.SubjectID != "" {
		q = q.Where("subject_id = ?", filter.SubjectID)
	}
	if len(filter.Types) > 0 {
		q = q.Where("type IN ?", filter.Types)
	}
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.Statuses)
	}
	if !filter.StartTime.IsZero() {
		q = q.Where("created_at >= ?", filter.StartTime)
	}
	if !filter.EndTime.IsZero() {
		q = q.Where("created_at <= ?", filter.EndTime)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var rows []gormAuditEvent
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}

	events := make([]audit.AuditEvent, 0, len(rows))
	for i := range rows {
		events = append(events, toCoreAuditEvent(&rows[i]))
	}
	return events, nil
}
