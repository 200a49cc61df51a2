package flow

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/cksportal/hubid/core/audit"
	"github.com/cksportal/hubid/core/domain"
)

type contactKey struct {
	kind domain.EntityKind
	code string
}

// memoryStore is an in-memory account store keyed by kind and code.
type memoryStore struct {
	mu       sync.Mutex
	contacts map[contactKey]*domain.Contact
	rows     map[contactKey]domain.AccountRow
	lookups  []contactKey
	err      error
	linkErr  error
	deleted  []string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		contacts: make(map[contactKey]*domain.Contact),
		rows:     make(map[contactKey]domain.AccountRow),
	}
}

func (s *memoryStore) put(kind domain.EntityKind, code string, c domain.Contact) {
	s.contacts[contactKey{kind, code}] = &c
}

func (s *memoryStore) GetContactByRoleAndCode(ctx context.Context, kind domain.EntityKind, code string) (*domain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups = append(s.lookups, contactKey{kind, code})
	if s.err != nil {
		return nil, s.err
	}
	c, ok := s.contacts[contactKey{kind, strings.ToUpper(code)}]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *memoryStore) InsertAccount(ctx context.Context, kind domain.EntityKind, row domain.AccountRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.rows[contactKey{kind, row.Code}] = row
	s.contacts[contactKey{kind, row.Code}] = &domain.Contact{Email: row.Email, DisplayName: row.Name}
	return nil
}

func (s *memoryStore) DeleteAccount(ctx context.Context, kind domain.EntityKind, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, contactKey{kind, code})
	delete(s.contacts, contactKey{kind, code})
	s.deleted = append(s.deleted, code)
	return nil
}

func (s *memoryStore) LinkExternalIdentity(ctx context.Context, kind domain.EntityKind, code, externalID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.linkErr != nil {
		return false, s.linkErr
	}
	c, ok := s.contacts[contactKey{kind, strings.ToUpper(strings.TrimSpace(code))}]
	if !ok || externalID == "" {
		return false, nil
	}
	c.ExternalID = externalID
	return true, nil
}

func (s *memoryStore) UnlinkExternalIdentity(ctx context.Context, kind domain.EntityKind, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[contactKey{kind, strings.ToUpper(strings.TrimSpace(code))}]
	if !ok || c.ExternalID == "" {
		return false, nil
	}
	c.ExternalID = ""
	return true, nil
}

type memoryAuditStore struct {
	mu     sync.Mutex
	events []audit.AuditEvent
}

func (m *memoryAuditStore) SaveEvent(ctx context.Context, e *audit.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *e)
	return nil
}

func (m *memoryAuditStore) Query(ctx context.Context, f audit.Filter) ([]audit.AuditEvent, error) {
	return nil, errors.New("not implemented")
}

func (m *memoryAuditStore) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type+":"+e.Status)
	}
	return out
}

type countingRecorder struct {
	mu        sync.Mutex
	recovery  map[string]int
	provision map[bool]int
	codes     int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{recovery: map[string]int{}, provision: map[bool]int{}}
}

func (r *countingRecorder) RecordCodeGenerated(context.Context, string) {
	r.mu.Lock()
	r.codes++
	r.mu.Unlock()
}

func (r *countingRecorder) RecordRecovery(_ context.Context, flow, outcome string) {
	r.mu.Lock()
	r.recovery[flow+"/"+outcome]++
	r.mu.Unlock()
}

func (r *countingRecorder) RecordProvisioning(_ context.Context, _ string, success bool) {
	r.mu.Lock()
	r.provision[success]++
	r.mu.Unlock()
}
