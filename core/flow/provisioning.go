package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cksportal/hubid/core/audit"
	"github.com/cksportal/hubid/core/code"
	"github.com/cksportal/hubid/core/domain"
	"github.com/cksportal/hubid/core/issuer"
	"github.com/cksportal/hubid/core/telemetry"
	"go.uber.org/zap"
)

const defaultStatus = "active"

// CodeGenerator mints canonical codes. sequence.Generator implements it.
type CodeGenerator interface {
	Generate(ctx context.Context, kind domain.EntityKind) (string, error)
}

// ProvisioningStore is the storage needed to create and link accounts.
type ProvisioningStore interface {
	domain.ContactFinder
	domain.AccountWriter
	domain.AccountLinker
}

// ProfileInput is the data supplied when creating an account.
type ProfileInput struct {
	Name        string `json:"name"`
	MainContact string `json:"mainContact,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Address     string `json:"address,omitempty"`
	Status      string `json:"status,omitempty"`
}

// Provisioned describes a newly created account.
type Provisioned struct {
	Kind       domain.EntityKind `json:"kind"`
	Code       string            `json:"cksCode"`
	ExternalID string            `json:"clerkUserId"`
	Email      string            `json:"email,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// UnlinkResult reports what an unlink request found and did.
type UnlinkResult struct {
	Kind            domain.EntityKind `json:"entityType"`
	Code            string            `json:"entityId"`
	WasLinked       bool              `json:"wasLinked"`
	Unlinked        bool              `json:"unlinked"`
	AlreadyUnlinked bool              `json:"alreadyUnlinked"`
}

// ProvisioningManager creates accounts: it mints a code, writes the role
// row, registers the user with the issuer and links the two.
type ProvisioningManager struct {
	codes  CodeGenerator
	store  ProvisioningStore
	issuer issuer.Issuer
	options
}

func NewProvisioningManager(codes CodeGenerator, store ProvisioningStore, iss issuer.Issuer, opts ...Option) *ProvisioningManager {
	return &ProvisioningManager{
		codes:   codes,
		store:   store,
		issuer:  iss,
		options: buildOptions(opts),
	}
}

// Provision creates an account of kind. If the issuer user cannot be
// created or linked the role row is removed again, so a failed call leaves
// no account behind. The minted code is not reused.
func (m *ProvisioningManager) Provision(ctx context.Context, kind domain.EntityKind, in ProfileInput, actorID string) (_ *Provisioned, err error) {
	ctx, span := telemetry.StartSpan(ctx, "hubid.provision", telemetry.SpanOptions{Kind: kind.String()})
	defer func() {
		telemetry.EndSpan(span, err)
		m.recorder.RecordProvisioning(ctx, kind.String(), err == nil)
	}()

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	status := strings.TrimSpace(in.Status)
	if status == "" {
		status = defaultStatus
	}

	c, err := m.codes.Generate(ctx, kind)
	if err != nil {
		return nil, err
	}
	m.recorder.RecordCodeGenerated(ctx, kind.String())

	row := domain.AccountRow{
		Code:        c,
		Name:        name,
		MainContact: strings.TrimSpace(in.MainContact),
		Email:       email,
		Phone:       strings.TrimSpace(in.Phone),
		Address:     strings.TrimSpace(in.Address),
		Status:      status,
	}
	if err := m.store.InsertAccount(ctx, kind, row); err != nil {
		return nil, err
	}

	userID, err := m.registerUser(ctx, kind, row)
	if err != nil {
		m.logger.Error("provisioning: issuer registration failed",
			zap.String("code", c),
			zap.String("kind", kind.String()),
			zap.Error(err),
		)
		if cleanupErr := m.store.DeleteAccount(ctx, kind, c); cleanupErr != nil {
			m.logger.Warn("provisioning: failed to remove account after issuer error",
				zap.String("code", c),
				zap.Error(cleanupErr),
			)
		}
		m.record(ctx, audit.NewEvent(audit.EventAccountProvisioned).
			Actor(actorID).
			Subject(c).
			Failure().
			Message(err.Error()))
		return nil, fmt.Errorf("provision %s %s: %w", kind, c, err)
	}

	m.record(ctx, audit.NewEvent(audit.EventAccountProvisioned).
		Actor(actorID).
		Subject(c).
		Success().
		Metadata(map[string]any{"kind": kind.String(), "name": name, "clerkUserId": userID}))

	return &Provisioned{
		Kind:       kind,
		Code:       c,
		ExternalID: userID,
		Email:      email,
		CreatedAt:  time.Now(),
	}, nil
}

// registerUser creates the issuer user for row and links it.
func (m *ProvisioningManager) registerUser(ctx context.Context, kind domain.EntityKind, row domain.AccountRow) (string, error) {
	metadata := map[string]any{
		"cksCode": row.Code,
		"role":    kind.String(),
	}
	if row.MainContact != "" {
		metadata["mainContact"] = row.MainContact
	}
	if row.Phone != "" {
		metadata["contactPhone"] = row.Phone
	}

	params := issuer.CreateUserParams{
		Username:                strings.ToLower(row.Code),
		ExternalID:              row.Code,
		PublicMetadata:          metadata,
		SkipPasswordRequirement: true,
	}
	if row.Email != "" {
		params.EmailAddresses = []string{row.Email}
	}

	user, err := m.issuer.CreateUser(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrIssuer, err)
	}

	linked, err := m.store.LinkExternalIdentity(ctx, kind, row.Code, user.ID)
	if err != nil {
		return "", err
	}
	if !linked {
		return "", errors.New("flow: account row disappeared before it could be linked")
	}
	return user.ID, nil
}

// Link attaches externalID to an existing account and audits the change.
func (m *ProvisioningManager) Link(ctx context.Context, kind domain.EntityKind, cksCode, externalID, actorID string) (bool, error) {
	linked, err := m.store.LinkExternalIdentity(ctx, kind, cksCode, externalID)
	if err != nil {
		return false, err
	}
	if linked {
		m.record(ctx, audit.NewEvent(audit.EventAccountLinked).
			Actor(actorID).
			Subject(normalizedCode(cksCode)).
			Success().
			Metadata(map[string]any{"kind": kind.String(), "clerkUserId": strings.TrimSpace(externalID)}))
	}
	return linked, nil
}

// Unlink clears the external identity of an account and audits the change.
// It returns ErrAccountNotFound when no account of kind has the code; an
// account without a link is reported as already unlinked.
func (m *ProvisioningManager) Unlink(ctx context.Context, kind domain.EntityKind, cksCode, actorID string) (*UnlinkResult, error) {
	c := normalizedCode(cksCode)
	contact, err := m.store.GetContactByRoleAndCode(ctx, kind, cksCode)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		return nil, ErrAccountNotFound
	}

	res := &UnlinkResult{Kind: kind, Code: c}
	if contact.ExternalID == "" {
		res.AlreadyUnlinked = true
		return res, nil
	}

	res.WasLinked = true
	res.Unlinked, err = m.store.UnlinkExternalIdentity(ctx, kind, cksCode)
	if err != nil {
		return nil, err
	}
	if res.Unlinked {
		m.record(ctx, audit.NewEvent(audit.EventAccountUnlinked).
			Actor(actorID).
			Subject(c).
			Success().
			Metadata(map[string]any{"kind": kind.String(), "clerkUserId": contact.ExternalID}))
	} else {
		// Cleared concurrently between the lookup and the update.
		res.AlreadyUnlinked = true
	}
	return res, nil
}

// EnsureIssuerUser makes sure the account has a working issuer user and
// returns it. A linked user that still exists is reused. Otherwise a user is
// created from the account's email; if the issuer already has a user with
// that email, that user is adopted instead. The user's username and metadata
// are aligned with the account and the account is (re)linked to it.
func (m *ProvisioningManager) EnsureIssuerUser(ctx context.Context, kind domain.EntityKind, cksCode, actorID string) (_ *issuer.User, err error) {
	ctx, span := telemetry.StartSpan(ctx, "hubid.ensure_issuer_user", telemetry.SpanOptions{Kind: kind.String()})
	defer func() { telemetry.EndSpan(span, err) }()

	c, ok := code.Normalize(cksCode)
	if !ok {
		return nil, ErrInvalidInput
	}
	contact, err := m.store.GetContactByRoleAndCode(ctx, kind, c)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		return nil, ErrAccountNotFound
	}

	var user *issuer.User
	if contact.ExternalID != "" {
		user, err = m.issuer.GetUser(ctx, contact.ExternalID)
		switch {
		case issuer.IsNotFound(err):
			m.logger.Warn("linked issuer user no longer exists",
				zap.String("code", c),
				zap.String("clerk_user_id", contact.ExternalID),
			)
			user = nil
		case err != nil:
			return nil, fmt.Errorf("%w: %w", ErrIssuer, err)
		}
	}

	metadata := map[string]any{"role": kind.String(), "cksCode": c}
	if user == nil {
		if user, err = m.createOrAdoptUser(ctx, c, contact.Email, metadata); err != nil {
			return nil, err
		}
	}

	username := strings.ToLower(c)
	if !strings.EqualFold(user.Username, username) || user.PublicMetadata["cksCode"] != c || user.PublicMetadata["role"] != kind.String() {
		merged := make(map[string]any, len(user.PublicMetadata)+len(metadata))
		for k, v := range user.PublicMetadata {
			merged[k] = v
		}
		for k, v := range metadata {
			merged[k] = v
		}
		updated, err := m.issuer.UpdateUser(ctx, user.ID, issuer.UpdateUserParams{Username: &username, PublicMetadata: merged})
		if issuer.IsIdentifierTaken(err) {
			return nil, fmt.Errorf("%w: code %s is already registered with the issuer", ErrConflict, c)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrIssuer, err)
		}
		user = updated
	}

	if contact.ExternalID != user.ID {
		linked, err := m.Link(ctx, kind, c, user.ID, actorID)
		if err != nil {
			return nil, err
		}
		if !linked {
			return nil, ErrAccountNotFound
		}
	}
	return user, nil
}

// createOrAdoptUser creates an issuer user for the account, falling back to
// an existing user with the same email.
func (m *ProvisioningManager) createOrAdoptUser(ctx context.Context, c, email string, metadata map[string]any) (*issuer.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, ErrNoContact
	}

	user, err := m.issuer.CreateUser(ctx, issuer.CreateUserParams{
		Username:                strings.ToLower(c),
		ExternalID:              c,
		EmailAddresses:          []string{email},
		PublicMetadata:          metadata,
		SkipPasswordRequirement: true,
	})
	if err == nil {
		return user, nil
	}
	if !issuer.IsIdentifierTaken(err) {
		return nil, fmt.Errorf("%w: %w", ErrIssuer, err)
	}

	users, listErr := m.issuer.ListUsersByEmail(ctx, email)
	if listErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrIssuer, listErr)
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrIssuer, err)
	}
	m.logger.Info("adopting existing issuer user",
		zap.String("code", c),
		zap.String("clerk_user_id", users[0].ID),
	)
	return &users[0], nil
}

// Invite sends an issuer invitation carrying the account's code and role,
// for accounts created without a user.
func (m *ProvisioningManager) Invite(ctx context.Context, kind domain.EntityKind, cksCode, email string) (*issuer.Invitation, error) {
	addr := strings.ToLower(strings.TrimSpace(email))
	c, ok := code.Normalize(cksCode)
	if addr == "" || !ok {
		return nil, ErrInvalidInput
	}
	inv, err := m.issuer.CreateInvitation(ctx, addr, map[string]any{"cksCode": c, "role": kind.String()})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIssuer, err)
	}
	return inv, nil
}

func normalizedCode(raw string) string {
	c, _ := code.Normalize(raw)
	return c
}
