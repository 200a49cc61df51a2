// Package audit records security-relevant events of the hub identity service:
// provisioning, identity linking and password recovery.
//
// Events are built with the fluent EventBuilder and persisted through an
// AuditStore (kgorm provides the GORM implementation):
//
//	audit.NewEvent(audit.EventRecoveryRequested).
//	    Subject("CON-007").
//	    Success().
//	    Save(ctx, store)
package audit

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// JSON is raw JSON stored in a text or json column.
type JSON []byte

func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
	case string:
		*j = []byte(v)
	default:
		return errors.New("invalid type for JSON")
	}
	return nil
}

func (j JSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *JSON) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*j = nil
		return nil
	}
	*j = append((*j)[0:0], data...)
	return nil
}

// AuditEvent is a single audit record.
type AuditEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	ActorID   string    `json:"actor_id"`   // external id or code of whoever acted
	SubjectID string    `json:"subject_id"` // canonical code of the affected account
	Status    string    `json:"status"`     // "success", "failure", "blocked"
	Message   string    `json:"message"`
	Metadata  JSON      `json:"metadata"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditStore persists and queries audit events.
type AuditStore interface {
	SaveEvent(ctx context.Context, event *AuditEvent) error
	Query(ctx context.Context, filter Filter) ([]AuditEvent, error)
}

// Filter for querying audit events.
type Filter struct {
	ActorID   string
	SubjectID string
	Types     []string
	Statuses  []string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
	Offset    int
}

const (
	EventAccountProvisioned = "account.provisioned"
	EventAccountLinked      = "account.linked"
	EventAccountUnlinked    = "account.unlinked"
	EventCodeGenerated      = "account.code.generated"

	EventRecoveryRequested = "auth.recovery.requested"
	EventRecoveryDispatch  = "auth.recovery.dispatched"
	EventPasswordReset     = "auth.password.reset"
	EventResetForbidden    = "auth.password.reset.forbidden"

	EventRateLimited = "security.rate_limited"
)

// ---- Event Builder ----

// EventBuilder provides a fluent API for creating audit events.
type EventBuilder struct {
	event *AuditEvent
}

// NewEvent starts building a new audit event.
func NewEvent(eventType string) *EventBuilder {
	return &EventBuilder{
		event: &AuditEvent{
			ID:        uuid.NewString(),
			Type:      eventType,
			CreatedAt: time.Now(),
		},
	}
}

func (b *EventBuilder) Actor(actorID string) *EventBuilder {
	b.event.ActorID = actorID
	return b
}

func (b *EventBuilder) Subject(subjectID string) *EventBuilder {
	b.event.SubjectID = subjectID
	return b
}

func (b *EventBuilder) Success() *EventBuilder {
	b.event.Status = "success"
	return b
}

func (b *EventBuilder) Failure() *EventBuilder {
	b.event.Status = "failure"
	return b
}

func (b *EventBuilder) Blocked() *EventBuilder {
	b.event.Status = "blocked"
	return b
}

func (b *EventBuilder) Message(msg string) *EventBuilder {
	b.event.Message = msg
	return b
}

// Metadata marshals meta into the event. Values that cannot be marshalled
// are dropped.
func (b *EventBuilder) Metadata(meta map[string]any) *EventBuilder {
	if raw, err := json.Marshal(meta); err == nil {
		b.event.Metadata = raw
	}
	return b
}

// Build returns the constructed event.
func (b *EventBuilder) Build() *AuditEvent {
	return b.event
}

// Save persists the event using the provided store.
func (b *EventBuilder) Save(ctx context.Context, store AuditStore) error {
	return store.SaveEvent(ctx, b.event)
}

// ---- Hooks ----

// Hooks provides extension points for audit behavior.
type Hooks struct {
	// BeforeSave may modify the event or return an error to drop it.
	BeforeSave func(ctx context.Context, event *AuditEvent) error

	// AfterSave is called after an event is persisted.
	AfterSave func(ctx context.Context, event *AuditEvent)
}

// Logger wraps an AuditStore and applies hooks. A Logger with a nil store
// discards every event, so components can hold one unconditionally.
type Logger struct {
	store AuditStore
	hooks Hooks
}

// NewLogger creates a new audit logger.
func NewLogger(store AuditStore, hooks Hooks) *Logger {
	return &Logger{store: store, hooks: hooks}
}

// Log persists an audit event with hooks applied.
func (l *Logger) Log(ctx context.Context, event *AuditEvent) error {
	if l == nil || l.store == nil {
		return nil
	}

	if l.hooks.BeforeSave != nil {
		if err := l.hooks.BeforeSave(ctx, event); err != nil {
			return err
		}
	}

	if err := l.store.SaveEvent(ctx, event); err != nil {
		return err
	}

	if l.hooks.AfterSave != nil {
		l.hooks.AfterSave(ctx, event)
	}
	return nil
}

// Query delegates to the store.
func (l *Logger) Query(ctx context.Context, filter Filter) ([]AuditEvent, error) {
	if l == nil || l.store == nil {
		return nil, nil
	}
	return l.store.Query(ctx, filter)
}
