package flow

import (
	"context"
	"fmt"
	"strings"

	"github.com/cksportal/hubid/core/audit"
	"github.com/cksportal/hubid/core/code"
	"github.com/cksportal/hubid/core/domain"
	"github.com/cksportal/hubid/core/issuer"
	"github.com/cksportal/hubid/core/registry"
	"github.com/cksportal/hubid/core/telemetry"
	"go.uber.org/zap"
)

// Recovery outcomes reported to the Recorder.
const (
	OutcomeDispatched = "dispatched"
	OutcomeNotFound   = "not_found"
	OutcomeForbidden  = "forbidden"
	OutcomeError      = "error"
)

// RecoveryManager triggers password resets through the identity issuer.
type RecoveryManager struct {
	registry *registry.Registry
	contacts domain.ContactFinder
	issuer   issuer.Issuer
	options
}

func NewRecoveryManager(reg *registry.Registry, contacts domain.ContactFinder, iss issuer.Issuer, opts ...Option) *RecoveryManager {
	return &RecoveryManager{
		registry: reg,
		contacts: contacts,
		issuer:   iss,
		options:  buildOptions(opts),
	}
}

// RequestPasswordReset sends a reset email to userID on behalf of the
// authenticated callerID. A caller may only reset their own password.
func (m *RecoveryManager) RequestPasswordReset(ctx context.Context, callerID, userID string) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "hubid.recovery.self", telemetry.SpanOptions{ExternalID: callerID, Flow: "self"})
	defer func() { telemetry.EndSpan(span, err) }()

	caller := strings.TrimSpace(callerID)
	target := strings.TrimSpace(userID)

	if caller == "" || caller != target {
		m.recorder.RecordRecovery(ctx, "self", OutcomeForbidden)
		m.record(ctx, audit.NewEvent(audit.EventResetForbidden).
			Actor(caller).
			Blocked().
			Metadata(map[string]any{"requested_user_id": target}))
		return ErrForbidden
	}

	if err := m.issuer.SendPasswordReset(ctx, target); err != nil {
		m.recorder.RecordRecovery(ctx, "self", OutcomeError)
		m.logger.Error("password reset request failed", zap.String("user_id", target), zap.Error(err))
		m.record(ctx, audit.NewEvent(audit.EventPasswordReset).
			Actor(caller).
			Failure().
			Message(err.Error()))
		return fmt.Errorf("%w: %w", ErrIssuer, err)
	}

	m.recorder.RecordRecovery(ctx, "self", OutcomeDispatched)
	m.record(ctx, audit.NewEvent(audit.EventPasswordReset).Actor(caller).Success())
	return nil
}

// ForgotPassword starts an unauthenticated reset for the account owning
// rawCode. It never reports whether the account exists: every outcome,
// including internal failures, is logged and audited but not returned.
func (m *RecoveryManager) ForgotPassword(ctx context.Context, rawCode string) {
	ctx, span := telemetry.StartSpan(ctx, "hubid.recovery.forgot", telemetry.SpanOptions{Flow: "forgot"})
	defer span.End()

	c, ok := code.Normalize(rawCode)
	if !ok {
		m.recorder.RecordRecovery(ctx, "forgot", OutcomeNotFound)
		return
	}

	m.record(ctx, audit.NewEvent(audit.EventRecoveryRequested).Subject(c).Success())

	kind, ok := m.registry.KindForPrefix(code.Prefix(c))
	if !ok {
		m.logger.Info("forgot password: unknown code prefix", zap.String("code", c))
		m.recorder.RecordRecovery(ctx, "forgot", OutcomeNotFound)
		return
	}

	userID, err := m.resolveUser(ctx, kind, c)
	if err != nil {
		telemetry.SetSpanError(span, err)
		m.logger.Error("forgot password: lookup failed",
			zap.String("code", c),
			zap.String("kind", kind.String()),
			zap.Error(err),
		)
		m.recorder.RecordRecovery(ctx, "forgot", OutcomeError)
		m.record(ctx, audit.NewEvent(audit.EventRecoveryDispatch).Subject(c).Failure().Message(err.Error()))
		return
	}
	if userID == "" {
		m.recorder.RecordRecovery(ctx, "forgot", OutcomeNotFound)
		return
	}

	if err := m.issuer.SendPasswordReset(ctx, userID); err != nil {
		telemetry.SetSpanError(span, err)
		m.logger.Error("forgot password: issuer reset failed",
			zap.String("code", c),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		m.recorder.RecordRecovery(ctx, "forgot", OutcomeError)
		m.record(ctx, audit.NewEvent(audit.EventRecoveryDispatch).Subject(c).Failure().Message(err.Error()))
		return
	}

	m.recorder.RecordRecovery(ctx, "forgot", OutcomeDispatched)
	m.record(ctx, audit.NewEvent(audit.EventRecoveryDispatch).
		Subject(c).
		Success().
		Metadata(map[string]any{"kind": kind.String()}))
}

// AdminPasswordReset sends a reset for the account of kind owning cksCode.
// Unlike ForgotPassword it reports what happened: false with a nil error
// means the account does not exist.
func (m *RecoveryManager) AdminPasswordReset(ctx context.Context, actorID string, kind domain.EntityKind, cksCode string) (bool, error) {
	c, ok := code.Normalize(cksCode)
	if !ok {
		return false, ErrInvalidInput
	}
	if _, ok := m.registry.Lookup(kind); !ok {
		return false, ErrInvalidInput
	}

	contact, err := m.contacts.GetContactByRoleAndCode(ctx, kind, c)
	if err != nil {
		return false, err
	}
	if contact == nil {
		m.recorder.RecordRecovery(ctx, "admin", OutcomeNotFound)
		return false, nil
	}

	userID, err := m.userForContact(ctx, contact)
	if err != nil {
		m.recorder.RecordRecovery(ctx, "admin", OutcomeError)
		return false, err
	}
	if userID == "" {
		m.recorder.RecordRecovery(ctx, "admin", OutcomeNotFound)
		return true, ErrNoContact
	}

	if err := m.issuer.SendPasswordReset(ctx, userID); err != nil {
		m.recorder.RecordRecovery(ctx, "admin", OutcomeError)
		m.record(ctx, audit.NewEvent(audit.EventPasswordReset).Actor(actorID).Subject(c).Failure().Message(err.Error()))
		return true, fmt.Errorf("%w: %w", ErrIssuer, err)
	}

	m.recorder.RecordRecovery(ctx, "admin", OutcomeDispatched)
	m.record(ctx, audit.NewEvent(audit.EventPasswordReset).Actor(actorID).Subject(c).Success())
	return true, nil
}

// resolveUser finds the issuer user id for the account of kind owning c.
// An empty id with a nil error means nothing to reset.
func (m *RecoveryManager) resolveUser(ctx context.Context, kind domain.EntityKind, c string) (string, error) {
	contact, err := m.contacts.GetContactByRoleAndCode(ctx, kind, c)
	if err != nil || contact == nil {
		return "", err
	}
	return m.userForContact(ctx, contact)
}

// userForContact prefers the linked identity and falls back to the first
// issuer user registered under the contact's email.
func (m *RecoveryManager) userForContact(ctx context.Context, contact *domain.Contact) (string, error) {
	if contact.ExternalID != "" {
		return contact.ExternalID, nil
	}
	if contact.Email == "" {
		return "", nil
	}

	users, err := m.issuer.ListUsersByEmail(ctx, contact.Email)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrIssuer, err)
	}
	if len(users) == 0 {
		return "", nil
	}
	return users[0].ID, nil
}
