package issuer

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MemoryIssuer is an in-process Issuer. It records password resets so tests
// can assert on them.
type MemoryIssuer struct {
	mu          sync.Mutex
	users       map[string]*User
	order       []string
	resets      []string
	invitations []Invitation
	nextID      int

	// Fail, when set, is returned by every call.
	Fail error
}

func NewMemoryIssuer() *MemoryIssuer {
	return &MemoryIssuer{users: make(map[string]*User)}
}

var _ Issuer = (*MemoryIssuer)(nil)

func (m *MemoryIssuer) GetUser(ctx context.Context, userID string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	u, ok := m.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// CreateUser rejects email addresses and usernames already in use, the way
// the real issuer does.
func (m *MemoryIssuer) CreateUser(ctx context.Context, params CreateUserParams) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	for _, email := range params.EmailAddresses {
		if m.findLocked("", func(u *User) bool { return hasEmail(u, email) }) != nil {
			return nil, &APIError{StatusCode: 422, Code: CodeIdentifierExists, Message: "That email address is taken. Please try another."}
		}
	}
	if err := m.checkUsernameLocked("", params.Username); err != nil {
		return nil, err
	}
	m.nextID++
	u := &User{
		ID:             fmt.Sprintf("user_%d", m.nextID),
		Username:       params.Username,
		ExternalID:     params.ExternalID,
		EmailAddresses: append([]string(nil), params.EmailAddresses...),
		PublicMetadata: params.PublicMetadata,
	}
	m.users[u.ID] = u
	m.order = append(m.order, u.ID)
	cp := *u
	return &cp, nil
}

func (m *MemoryIssuer) UpdateUser(ctx context.Context, userID string, params UpdateUserParams) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	u, ok := m.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	if params.Username != nil {
		if err := m.checkUsernameLocked(userID, *params.Username); err != nil {
			return nil, err
		}
	}
	if params.Username != nil {
		u.Username = *params.Username
	}
	if params.ExternalID != nil {
		u.ExternalID = *params.ExternalID
	}
	if params.PublicMetadata != nil {
		u.PublicMetadata = params.PublicMetadata
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryIssuer) ListUsersByEmail(ctx context.Context, email string) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	var out []User
	for _, id := range m.order {
		if u := m.users[id]; hasEmail(u, email) {
			out = append(out, *u)
		}
	}
	return out, nil
}

// findLocked returns the first user other than skipID matching fn.
func (m *MemoryIssuer) findLocked(skipID string, fn func(*User) bool) *User {
	for _, id := range m.order {
		if id != skipID && fn(m.users[id]) {
			return m.users[id]
		}
	}
	return nil
}

func (m *MemoryIssuer) checkUsernameLocked(skipID, username string) error {
	if username == "" {
		return nil
	}
	if m.findLocked(skipID, func(u *User) bool { return strings.EqualFold(u.Username, username) }) != nil {
		return &APIError{StatusCode: 422, Code: CodeIdentifierExists, Message: "That username is taken. Please try another."}
	}
	return nil
}

func hasEmail(u *User, email string) bool {
	for _, e := range u.EmailAddresses {
		if strings.EqualFold(e, email) {
			return true
		}
	}
	return false
}

func (m *MemoryIssuer) SendPasswordReset(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	if _, ok := m.users[userID]; !ok {
		return ErrUserNotFound
	}
	m.resets = append(m.resets, userID)
	return nil
}

func (m *MemoryIssuer) CreateInvitation(ctx context.Context, email string, metadata map[string]any) (*Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	inv := Invitation{ID: fmt.Sprintf("inv_%d", len(m.invitations)+1), EmailAddress: email, Metadata: metadata}
	m.invitations = append(m.invitations, inv)
	return &inv, nil
}

// AddUser registers an existing user, returning its id.
func (m *MemoryIssuer) AddUser(u User) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		m.nextID++
		u.ID = fmt.Sprintf("user_%d", m.nextID)
	}
	if _, exists := m.users[u.ID]; !exists {
		m.order = append(m.order, u.ID)
	}
	m.users[u.ID] = &u
	return u.ID
}

// Resets returns the user ids that received a password reset, in order.
func (m *MemoryIssuer) Resets() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.resets...)
}

// Invitations returns the invitations created so far.
func (m *MemoryIssuer) Invitations() []Invitation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Invitation(nil), m.invitations...)
}
