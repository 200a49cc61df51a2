// Package issuer talks to the external identity issuer that owns user
// credentials for the portal.
//
// The issuer is a black box that hands out opaque user ids. The service only
// needs a handful of its operations, captured by the Issuer interface:
//
//	iss := issuer.NewHTTPClient(issuer.HTTPConfig{BaseURL: url, SecretKey: key})
//	users, err := iss.ListUsersByEmail(ctx, "ops@acme.test")
//	err = iss.SendPasswordReset(ctx, users[0].ID)
//
// MemoryIssuer implements the same interface in process for tests and local
// development.
package issuer

import (
	"context"
	"errors"
	"fmt"
)

var ErrUserNotFound = errors.New("issuer: user not found")

// User is the issuer's view of an account.
type User struct {
	ID             string         `json:"id"`
	Username       string         `json:"username,omitempty"`
	ExternalID     string         `json:"external_id,omitempty"`
	EmailAddresses []string       `json:"email_addresses,omitempty"`
	PublicMetadata map[string]any `json:"public_metadata,omitempty"`
}

// CreateUserParams describes a user to create.
type CreateUserParams struct {
	Username                string         `json:"username,omitempty"`
	ExternalID              string         `json:"external_id,omitempty"`
	EmailAddresses          []string       `json:"email_address,omitempty"`
	PublicMetadata          map[string]any `json:"public_metadata,omitempty"`
	SkipPasswordRequirement bool           `json:"skip_password_requirement,omitempty"`
}

// UpdateUserParams holds the fields to change. Nil fields are left alone.
type UpdateUserParams struct {
	Username       *string        `json:"username,omitempty"`
	ExternalID     *string        `json:"external_id,omitempty"`
	PublicMetadata map[string]any `json:"public_metadata,omitempty"`
}

// Invitation is a pending sign-up invitation.
type Invitation struct {
	ID           string         `json:"id"`
	EmailAddress string         `json:"email_address"`
	Metadata     map[string]any `json:"public_metadata,omitempty"`
}

// Issuer is the subset of issuer operations the service consumes.
type Issuer interface {
	GetUser(ctx context.Context, userID string) (*User, error)
	CreateUser(ctx context.Context, params CreateUserParams) (*User, error)
	UpdateUser(ctx context.Context, userID string, params UpdateUserParams) (*User, error)
	ListUsersByEmail(ctx context.Context, email string) ([]User, error)
	SendPasswordReset(ctx context.Context, userID string) error
	CreateInvitation(ctx context.Context, email string, metadata map[string]any) (*Invitation, error)
}

// Error codes the issuer reports when an identifier is already taken.
const (
	CodeIdentifierExists   = "form_identifier_exists"
	CodeEmailAddressExists = "email_address_exists"
	CodeUsernameExists     = "username_exists"
)

// APIError is returned for non-2xx issuer responses. Code is the issuer's
// machine readable error code, when it sent one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("issuer: HTTP %d", e.StatusCode)
	}
	return e.Message
}

// IsIdentifierTaken reports whether err says an email address or username
// is already in use by another issuer user.
func IsIdentifierTaken(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case CodeIdentifierExists, CodeEmailAddressExists, CodeUsernameExists:
		return true
	}
	return false
}

// IsNotFound reports whether err means the issuer has no such user.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 404
	}
	return errors.Is(err, ErrUserNotFound)
}
