// Package flow implements the account flows that sit on top of identity
// resolution: password recovery, account provisioning and the rate limiting
// that guards the unauthenticated entry points.
//
// Flows talk to the store only through the interfaces in core/domain and to
// the identity issuer only through core/issuer, so both can be substituted
// in tests:
//
//	recovery := flow.NewRecoveryManager(reg, accounts, iss,
//	    flow.WithLogger(logger.Log),
//	    flow.WithAudit(audit.NewLogger(auditStore, audit.Hooks{})),
//	)
//	recovery.ForgotPassword(ctx, "con-007")
package flow

import (
	"context"
	"errors"

	"github.com/cksportal/hubid/core/audit"
	"go.uber.org/zap"
)

var (
	// ErrForbidden is returned when a caller asks for a reset of an
	// identity that is not their own.
	ErrForbidden = errors.New("flow: forbidden")
	// ErrIssuer wraps failures reported by the identity issuer.
	ErrIssuer = errors.New("flow: issuer request failed")
	// ErrAccountNotFound is returned by admin-facing operations only.
	ErrAccountNotFound = errors.New("flow: account not found")
	ErrNoContact       = errors.New("flow: account has no linked identity or email")
	ErrInvalidInput    = errors.New("flow: invalid input")
	// ErrConflict is returned when an identifier the account needs is
	// already held by another issuer user.
	ErrConflict = errors.New("flow: identifier already in use")
)

// Recorder receives flow metrics. telemetry.Provider implements it.
type Recorder interface {
	RecordCodeGenerated(ctx context.Context, kind string)
	RecordRecovery(ctx context.Context, flow, outcome string)
	RecordProvisioning(ctx context.Context, kind string, success bool)
}

type nopRecorder struct{}

func (nopRecorder) RecordCodeGenerated(context.Context, string)      {}
func (nopRecorder) RecordRecovery(context.Context, string, string)   {}
func (nopRecorder) RecordProvisioning(context.Context, string, bool) {}

// options are shared by the managers in this package.
type options struct {
	logger   *zap.Logger
	audit    *audit.Logger
	recorder Recorder
}

// Option configures a manager.
type Option func(*options)

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithAudit records flow events through l.
func WithAudit(l *audit.Logger) Option {
	return func(o *options) { o.audit = l }
}

func WithRecorder(r Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop(), recorder: nopRecorder{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// record saves an audit event, logging rather than returning failures.
func (o options) record(ctx context.Context, b *audit.EventBuilder) {
	if err := o.audit.Log(ctx, b.Build()); err != nil {
		o.logger.Warn("failed to save audit event", zap.Error(err))
	}
}
