// Package domain defines the account types and storage contracts of the hub
// identity service.
//
// Storage implementations live elsewhere (see the kgorm package for the GORM
// implementation). Everything above the storage layer depends only on the
// interfaces declared here.
//
// # Interfaces
//
//   - AccountFinder: resolve an external identity or a canonical code to an account
//   - ContactFinder: role-scoped contact lookup used by account recovery
//   - AccountLinker: attach or detach an external identity
//   - AccountWriter: insert and remove role-table rows during provisioning
//   - AccountStore: all of the above
package domain

import "context"

// AccountFinder resolves accounts. A nil record with a nil error means the
// account does not exist.
type AccountFinder interface {
	FindAccountByExternalID(ctx context.Context, externalID string) (*HubAccountRecord, error)
	FindAccountByCode(ctx context.Context, code string) (*HubAccountRecord, error)
}

type ContactFinder interface {
	GetContactByRoleAndCode(ctx context.Context, kind EntityKind, code string) (*Contact, error)
}

type AccountLinker interface {
	LinkExternalIdentity(ctx context.Context, kind EntityKind, code, externalID string) (bool, error)
	UnlinkExternalIdentity(ctx context.Context, kind EntityKind, code string) (bool, error)
}

type AccountWriter interface {
	InsertAccount(ctx context.Context, kind EntityKind, row AccountRow) error
	DeleteAccount(ctx context.Context, kind EntityKind, code string) error
}

// AccountStore is the composite storage contract.
type AccountStore interface {
	AccountFinder
	ContactFinder
	AccountLinker
	AccountWriter
}
