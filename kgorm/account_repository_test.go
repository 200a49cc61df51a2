package kgorm

import (
	"context"
	"testing"
	"time"

	"github.com/cksportal/hubid/core/domain"
	"github.com/cksportal/hubid/core/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, repo *Repository, rows ...any) {
	t.Helper()
	for _, row := range rows {
		require.NoError(t, repo.DB().Create(row).Error)
	}
}

func TestFindAccountByCodeAdminPrecedence(t *testing.T) {
	repo := newTestRepository(t)
	accounts := NewAccountRepository(repo.DB(), registry.Default())
	ctx := context.Background()

	seed(t, repo,
		&AdminUser{CksCode: "CON-007", Role: "admin", Status: "active", FullName: strPtr("Ada Admin")},
		&Contractor{ContractorID: "CON-007", Name: "Acme", Status: "active"},
	)

	rec, err := accounts.FindAccountByCode(ctx, " con-007 ")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domain.RoleAdmin, rec.Role)
	assert.Equal(t, "CON-007", rec.Code)
	assert.Equal(t, "Ada Admin", rec.DisplayName)
}

func TestFindAccountByCodeRoleTable(t *testing.T) {
	repo := newTestRepository(t)
	accounts := NewAccountRepository(repo.DB(), registry.Default())
	ctx := context.Background()

	seed(t, repo,
		&Contractor{ContractorID: "con-010", Name: "Acme Ltd", ContactPerson: strPtr("  "), Email: strPtr("ops@acme.test"), Status: "active"},
	)

	rec, err := accounts.FindAccountByCode(ctx, "CON-010")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domain.Role("contractor"), rec.Role)
	assert.Equal(t, "CON-010", rec.Code)
	assert.Equal(t, "Acme Ltd", rec.DisplayName, "blank contact_person falls back to name")
	assert.Equal(t, "ops@acme.test", rec.Email)
	assert.Equal(t, "active", rec.Status)

	for _, missing := range []string{"", "   ", "CON-404"} {
		rec, err := accounts.FindAccountByCode(ctx, missing)
		require.NoError(t, err)
		assert.Nil(t, rec, missing)
	}
}

func TestFindAccountByExternalID(t *testing.T) {
	repo := newTestRepository(t)
	accounts := NewAccountRepository(repo.DB(), registry.Default())
	ctx := context.Background()

	seed(t, repo,
		&AdminUser{CksCode: "ADM-001", Role: "admin", Status: "active", ClerkUserID: strPtr("user_admin")},
		&Manager{ManagerID: "MGR-001", Name: "Morgan", Status: "active", ClerkUserID: strPtr("user_admin")},
		&Customer{CustomerID: "CUS-002", Name: "Bistro", MainContact: strPtr("Casey"), Status: "active", ClerkUserID: strPtr("user_dup")},
		&Crew{CrewID: "CRW-003", Name: "Robin", Status: "active", ClerkUserID: strPtr("user_dup")},
	)

	rec, err := accounts.FindAccountByExternalID(ctx, " user_admin ")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domain.RoleAdmin, rec.Role)
	assert.Equal(t, "ADM-001", rec.Code)

	rec, err = accounts.FindAccountByExternalID(ctx, "user_dup")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domain.Role("customer"), rec.Role, "declaration order breaks ties")
	assert.Equal(t, "Casey", rec.DisplayName)

	rec, err = accounts.FindAccountByExternalID(ctx, "USER_DUP")
	require.NoError(t, err)
	assert.Nil(t, rec, "external ids are not case-folded")

	rec, err = accounts.FindAccountByExternalID(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestGetContactByRoleAndCodeIsRoleScoped(t *testing.T) {
	repo := newTestRepository(t)
	accounts := NewAccountRepository(repo.DB(), registry.Default())
	ctx := context.Background()

	seed(t, repo,
		&Customer{CustomerID: "CON-999", Name: "Misfiled", Email: strPtr("x@y.test"), Status: "active"},
		&Warehouse{WarehouseID: "WHS-004", Name: "North", MainContact: strPtr("Wren"), Email: strPtr("north@wh.test"), Status: "active", ClerkUserID: strPtr("user_wh")},
		&Crew{CrewID: "CRW-005", Name: "  ", Status: "active"},
	)

	contact, err := accounts.GetContactByRoleAndCode(ctx, domain.KindContractor, "CON-999")
	require.NoError(t, err)
	assert.Nil(t, contact)

	contact, err = accounts.GetContactByRoleAndCode(ctx, domain.KindWarehouse, "whs-004")
	require.NoError(t, err)
	require.NotNil(t, contact)
	assert.Equal(t, domain.Contact{Email: "north@wh.test", DisplayName: "Wren", ExternalID: "user_wh"}, *contact)

	contact, err = accounts.GetContactByRoleAndCode(ctx, domain.KindCrew, "CRW-005")
	require.NoError(t, err)
	require.NotNil(t, contact)
	assert.Empty(t, contact.DisplayName)
	assert.Empty(t, contact.ExternalID)
}

func TestLinkAndUnlinkExternalIdentity(t *testing.T) {
	repo := newTestRepository(t)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	accounts := NewAccountRepository(repo.DB(), registry.Default(), WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	seed(t, repo, &Manager{ManagerID: "MGR-003", Name: "Morgan", Status: "active"})

	ok, err := accounts.UnlinkExternalIdentity(ctx, domain.KindManager, "MGR-003")
	require.NoError(t, err)
	assert.False(t, ok, "unlinking an unlinked account is a no-op")

	ok, err = accounts.LinkExternalIdentity(ctx, domain.KindManager, "mgr-003", "ext_abc")
	require.NoError(t, err)
	assert.True(t, ok)

	rec, err := accounts.FindAccountByExternalID(ctx, "ext_abc")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domain.Role("manager"), rec.Role)
	assert.Equal(t, "MGR-003", rec.Code)

	var m Manager
	require.NoError(t, repo.DB().First(&m, "manager_id = ?", "MGR-003").Error)
	assert.WithinDuration(t, fixed, m.UpdatedAt, time.Second, "link bumps updated_at")

	ok, err = accounts.UnlinkExternalIdentity(ctx, domain.KindManager, "MGR-003")
	require.NoError(t, err)
	assert.True(t, ok)

	rec, err = accounts.FindAccountByExternalID(ctx, "ext_abc")
	require.NoError(t, err)
	assert.Nil(t, rec)

	ok, err = accounts.UnlinkExternalIdentity(ctx, domain.KindManager, "MGR-003")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLinkRejectsInvalidInput(t *testing.T) {
	repo := newTestRepository(t)
	accounts := NewAccountRepository(repo.DB(), registry.Default())
	ctx := context.Background()

	seed(t, repo, &Center{CenterID: "CEN-001", Name: "Hub", Status: "active"})

	cases := []struct {
		name       string
		kind       domain.EntityKind
		code, extID string
	}{
		{"empty code", domain.KindCenter, " ", "ext"},
		{"empty external id", domain.KindCenter, "CEN-001", "  "},
		{"missing code", domain.KindCenter, "CEN-404", "ext"},
		{"wrong role", domain.KindCrew, "CEN-001", "ext"},
		{"unknown kind", domain.EntityKind("admin"), "CEN-001", "ext"},
	}
	for _, tc := range cases {
		ok, err := accounts.LinkExternalIdentity(ctx, tc.kind, tc.code, tc.extID)
		require.NoError(t, err, tc.name)
		assert.False(t, ok, tc.name)
	}
}

func TestRolePolicy(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	seed(t, repo, &AdminUser{CksCode: "ADM-009", Role: "superuser", Status: "active"})

	legacy := NewAccountRepository(repo.DB(), registry.Default())
	rec, err := legacy.FindAccountByCode(ctx, "ADM-009")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domain.RoleAdmin, rec.Role)

	strict := NewAccountRepository(repo.DB(), registry.Default(), WithRolePolicy(domain.RolePolicyStrict))
	rec, err = strict.FindAccountByCode(ctx, "ADM-009")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestInsertAndDeleteAccount(t *testing.T) {
	repo := newTestRepository(t)
	accounts := NewAccountRepository(repo.DB(), registry.Default())
	ctx := context.Background()

	err := accounts.InsertAccount(ctx, domain.KindContractor, domain.AccountRow{
		Code:        "CON-001",
		Name:        " Acme ",
		MainContact: "Jo Contact",
		Email:       "JO@ACME.TEST",
	})
	require.NoError(t, err)

	rec, err := accounts.FindAccountByCode(ctx, "CON-001")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Jo Contact", rec.DisplayName)
	assert.Equal(t, "jo@acme.test", rec.Email)
	assert.Equal(t, "active", rec.Status)

	require.NoError(t, accounts.DeleteAccount(ctx, domain.KindContractor, "con-001"))
	rec, err = accounts.FindAccountByCode(ctx, "CON-001")
	require.NoError(t, err)
	assert.Nil(t, rec)

	assert.Error(t, accounts.InsertAccount(ctx, domain.EntityKind("admin"), domain.AccountRow{Code: "X-1"}))
}
