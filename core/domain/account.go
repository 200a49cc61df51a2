package domain

import "strings"

// EntityKind is a business role that owns a canonical code.
type EntityKind string

const (
	KindManager    EntityKind = "manager"
	KindContractor EntityKind = "contractor"
	KindCustomer   EntityKind = "customer"
	KindCenter     EntityKind = "center"
	KindCrew       EntityKind = "crew"
	KindWarehouse  EntityKind = "warehouse"
)

// Kinds lists every EntityKind in declaration order. Resolution across role
// tables follows this order.
var Kinds = []EntityKind{
	KindManager,
	KindContractor,
	KindCustomer,
	KindCenter,
	KindCrew,
	KindWarehouse,
}

// ParseKind maps an untyped role string onto the closed set of kinds.
func ParseKind(s string) (EntityKind, bool) {
	k := EntityKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, true
		}
	}
	return "", false
}

func (k EntityKind) String() string { return string(k) }

// Role is the role attached to a resolved account: an EntityKind or admin.
type Role string

const RoleAdmin Role = "admin"

// Role returns the account role for an entity kind.
func (k EntityKind) Role() Role { return Role(k) }

// IsAdmin reports whether the role is the admin role.
func (r Role) IsAdmin() bool { return r == RoleAdmin }

// HubAccountRecord is the normalized view of a business account. It is
// built fresh on every lookup and never persisted. Empty strings mean the
// underlying column was NULL or blank.
type HubAccountRecord struct {
	Role        Role   `json:"role"`
	Code        string `json:"cksCode"`
	Status      string `json:"status,omitempty"`
	DisplayName string `json:"fullName,omitempty"`
	Email       string `json:"email,omitempty"`
}

// Contact is the recovery-relevant slice of a single role-table row.
type Contact struct {
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"fullName,omitempty"`
	ExternalID  string `json:"clerkUserId,omitempty"`
}

// AccountRow is the data written for a freshly provisioned account.
type AccountRow struct {
	Code        string
	Name        string
	MainContact string
	Email       string
	Phone       string
	Address     string
	Status      string
}

// RolePolicy decides how the role column of an admin-table row is read.
type RolePolicy string

const (
	// RolePolicyLegacy reads blank or unrecognized roles as admin.
	RolePolicyLegacy RolePolicy = "legacy"
	// RolePolicyStrict drops admin rows whose role is not recognized.
	RolePolicyStrict RolePolicy = "strict"
)

// ResolveAdminRole maps the raw role column of an admin row to a Role. The
// second result is false when the row must be ignored.
func (p RolePolicy) ResolveAdminRole(raw string) (Role, bool) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" || normalized == string(RoleAdmin) {
		return RoleAdmin, true
	}
	if k, ok := ParseKind(normalized); ok {
		return k.Role(), true
	}
	if p == RolePolicyStrict {
		return "", false
	}
	return RoleAdmin, true
}
