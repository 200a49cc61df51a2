package kgorm

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cksportal/hubid/core/code"
	"github.com/cksportal/hubid/core/domain"
	"github.com/cksportal/hubid/core/registry"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AccountRepository resolves business accounts across the admin table and
// the role tables described by a registry.
//
// The admin table is always consulted first. Role tables are then searched
// in registry declaration order, and the first match wins.
type AccountRepository struct {
	db       *gorm.DB
	registry *registry.Registry
	policy   domain.RolePolicy
	logger   *zap.Logger
	now      func() time.Time
}

// AccountOption configures an AccountRepository.
type AccountOption func(*AccountRepository)

// WithRolePolicy sets how unrecognized admin roles are treated.
func WithRolePolicy(p domain.RolePolicy) AccountOption {
	return func(r *AccountRepository) { r.policy = p }
}

func WithLogger(l *zap.Logger) AccountOption {
	return func(r *AccountRepository) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides the time source used for updated_at.
func WithClock(now func() time.Time) AccountOption {
	return func(r *AccountRepository) { r.now = now }
}

func NewAccountRepository(db *gorm.DB, reg *registry.Registry, opts ...AccountOption) *AccountRepository {
	r := &AccountRepository{
		db:       db,
		registry: reg,
		policy:   domain.RolePolicyLegacy,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ domain.AccountStore = (*AccountRepository)(nil)

// FindAccountByExternalID returns the account linked to externalID, or nil.
// External ids are opaque, so they are trimmed but not case-folded.
func (r *AccountRepository) FindAccountByExternalID(ctx context.Context, externalID string) (*domain.HubAccountRecord, error) {
	id := strings.TrimSpace(externalID)
	if id == "" {
		return nil, nil
	}

	admin := r.registry.Admin()
	if admin.Statements.SelectByLink != "" {
		row, err := r.queryRow(ctx, admin, admin.Statements.SelectByLink, id)
		if err != nil {
			return nil, err
		}
		if rec := r.mapAdminRow(admin, row); rec != nil {
			return rec, nil
		}
	}

	for _, entry := range r.registry.Entries() {
		if entry.Statements.SelectByLink == "" {
			continue
		}
		row, err := r.queryRow(ctx, entry, entry.Statements.SelectByLink, id)
		if err != nil {
			return nil, err
		}
		if rec := mapRoleRow(entry, row); rec != nil {
			return rec, nil
		}
	}

	return nil, nil
}

// FindAccountByCode returns the account owning the canonical code, or nil.
func (r *AccountRepository) FindAccountByCode(ctx context.Context, cksCode string) (*domain.HubAccountRecord, error) {
	c, ok := code.Normalize(cksCode)
	if !ok {
		return nil, nil
	}

	admin := r.registry.Admin()
	row, err := r.queryRow(ctx, admin, admin.Statements.SelectByCode, c)
	if err != nil {
		return nil, err
	}
	if rec := r.mapAdminRow(admin, row); rec != nil {
		return rec, nil
	}

	for _, entry := range r.registry.Entries() {
		row, err := r.queryRow(ctx, entry, entry.Statements.SelectByCode, c)
		if err != nil {
			return nil, err
		}
		if rec := mapRoleRow(entry, row); rec != nil {
			return rec, nil
		}
	}

	return nil, nil
}

// GetContactByRoleAndCode looks the code up in the table of kind only. A
// code that exists under another role yields nil.
func (r *AccountRepository) GetContactByRoleAndCode(ctx context.Context, kind domain.EntityKind, cksCode string) (*domain.Contact, error) {
	c, ok := code.Normalize(cksCode)
	if !ok {
		return nil, nil
	}
	entry, ok := r.registry.Lookup(kind)
	if !ok {
		return nil, nil
	}

	row, err := r.queryRow(ctx, entry, entry.Statements.SelectByCode, c)
	if err != nil || row == nil {
		return nil, err
	}

	contact := &domain.Contact{DisplayName: displayName(entry, row)}
	if entry.EmailColumn != "" {
		contact.Email = row[entry.EmailColumn]
	}
	if entry.LinkColumn != "" {
		contact.ExternalID = row[entry.LinkColumn]
	}
	return contact, nil
}

// LinkExternalIdentity stores externalID on the row of kind matching the
// code. It reports whether a row was updated.
func (r *AccountRepository) LinkExternalIdentity(ctx context.Context, kind domain.EntityKind, cksCode, externalID string) (bool, error) {
	c, ok := code.Normalize(cksCode)
	id := strings.TrimSpace(externalID)
	if !ok || id == "" {
		return false, nil
	}
	entry, ok := r.registry.Lookup(kind)
	if !ok || entry.Statements.Link == "" {
		return false, nil
	}

	res := r.db.WithContext(ctx).Exec(entry.Statements.Link, id, r.now(), c)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UnlinkExternalIdentity clears the link of the matching row if it is set.
// Unlinking an account without a link returns false.
func (r *AccountRepository) UnlinkExternalIdentity(ctx context.Context, kind domain.EntityKind, cksCode string) (bool, error) {
	c, ok := code.Normalize(cksCode)
	if !ok {
		return false, nil
	}
	entry, ok := r.registry.Lookup(kind)
	if !ok || entry.Statements.Unlink == "" {
		return false, nil
	}

	res := r.db.WithContext(ctx).Exec(entry.Statements.Unlink, r.now(), c)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// InsertAccount creates the role-table row for a provisioned account.
func (r *AccountRepository) InsertAccount(ctx context.Context, kind domain.EntityKind, row domain.AccountRow) error {
	model, ok := newAccountModel(kind, row)
	if !ok {
		return fmt.Errorf("kgorm: no model for kind %q", kind)
	}
	return r.db.WithContext(ctx).Create(model).Error
}

// DeleteAccount removes the role-table row matching the code.
func (r *AccountRepository) DeleteAccount(ctx context.Context, kind domain.EntityKind, cksCode string) error {
	c, ok := code.Normalize(cksCode)
	if !ok {
		return nil
	}
	entry, ok := r.registry.Lookup(kind)
	if !ok {
		return fmt.Errorf("kgorm: no table for kind %q", kind)
	}
	return r.db.WithContext(ctx).Exec(entry.Statements.Delete, c).Error
}

// queryRow runs a single-row statement and returns the trimmed, non-empty
// column values keyed by column name. A missing row yields a nil map.
func (r *AccountRepository) queryRow(ctx context.Context, entry *registry.Entry, stmt string, arg any) (map[string]string, error) {
	rows, err := r.db.WithContext(ctx).Raw(stmt, arg).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	columns := entry.Statements.Columns
	values := make([]sql.NullString, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}

	out := make(map[string]string, len(columns))
	for i, col := range columns {
		if !values[i].Valid {
			continue
		}
		if v := strings.TrimSpace(values[i].String); v != "" {
			out[col] = v
		}
	}
	return out, nil
}

func (r *AccountRepository) mapAdminRow(entry *registry.Entry, row map[string]string) *domain.HubAccountRecord {
	if row == nil {
		return nil
	}
	c, ok := code.Normalize(row[entry.CodeColumn])
	if !ok {
		return nil
	}

	role, ok := r.policy.ResolveAdminRole(row[entry.RoleColumn])
	if !ok {
		r.logger.Warn("ignoring admin account with unrecognized role",
			zap.String("code", c),
			zap.String("role", row[entry.RoleColumn]),
		)
		return nil
	}

	rec := &domain.HubAccountRecord{
		Role:        role,
		Code:        c,
		DisplayName: displayName(entry, row),
	}
	if entry.StatusColumn != "" {
		rec.Status = row[entry.StatusColumn]
	}
	if entry.EmailColumn != "" {
		rec.Email = row[entry.EmailColumn]
	}
	return rec
}

func mapRoleRow(entry *registry.Entry, row map[string]string) *domain.HubAccountRecord {
	if row == nil {
		return nil
	}
	c, ok := code.Normalize(row[entry.CodeColumn])
	if !ok {
		return nil
	}

	rec := &domain.HubAccountRecord{
		Role:        entry.Kind.Role(),
		Code:        c,
		DisplayName: displayName(entry, row),
	}
	if entry.StatusColumn != "" {
		rec.Status = row[entry.StatusColumn]
	}
	if entry.EmailColumn != "" {
		rec.Email = row[entry.EmailColumn]
	}
	return rec
}

func displayName(entry *registry.Entry, row map[string]string) string {
	for _, col := range entry.NameColumns {
		if v := row[col]; v != "" {
			return v
		}
	}
	return ""
}
