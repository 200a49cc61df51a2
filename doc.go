// Package hubid resolves portal users to their business accounts.
//
// Every account in the hub (manager, contractor, customer, center, crew,
// warehouse, admin) is identified by a canonical code such as CON-007. An
// external identity issuer authenticates users; this module maps the
// issuer's user id onto the account that owns it, mints new codes from
// per-kind sequences, and runs the password recovery flows that go back
// through the issuer.
//
// # Subpackages
//
//   - core/code: canonical code parsing and normalization
//   - core/registry: descriptions of the account tables
//   - core/sequence: code generation over named sequences
//   - core/identity: the lookup and generation facade
//   - core/flow: recovery, provisioning and rate limiting
//   - core/issuer: the identity issuer client
//   - core/session: session token verification
//   - kgorm: GORM storage for accounts, sequences and audit events
//   - api: echo handlers
package hubid
