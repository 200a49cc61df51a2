package kgorm

import (
	"strings"
	"time"

	"github.com/cksportal/hubid/core/audit"
	"github.com/cksportal/hubid/core/domain"
)

type Manager struct {
	ManagerID   string  `gorm:"column:manager_id;primaryKey;size:32"`
	Name        string  `gorm:"column:name;not null"`
	Email       *string `gorm:"column:email"`
	Phone       *string `gorm:"column:phone"`
	Address     *string `gorm:"column:address"`
	Status      string  `gorm:"column:status;default:active"`
	ClerkUserID *string `gorm:"column:clerk_user_id;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Manager) TableName() string { return "managers" }

type Contractor struct {
	ContractorID  string  `gorm:"column:contractor_id;primaryKey;size:32"`
	Name          string  `gorm:"column:name;not null"`
	ContactPerson *string `gorm:"column:contact_person"`
	Email         *string `gorm:"column:email"`
	Phone         *string `gorm:"column:phone"`
	Address       *string `gorm:"column:address"`
	Status        string  `gorm:"column:status;default:active"`
	ClerkUserID   *string `gorm:"column:clerk_user_id;index"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (Contractor) TableName() string { return "contractors" }

type Customer struct {
	CustomerID  string  `gorm:"column:customer_id;primaryKey;size:32"`
	Name        string  `gorm:"column:name;not null"`
	MainContact *string `gorm:"column:main_contact"`
	Email       *string `gorm:"column:email"`
	Phone       *string `gorm:"column:phone"`
	Address     *string `gorm:"column:address"`
	Status      string  `gorm:"column:status;default:active"`
	ClerkUserID *string `gorm:"column:clerk_user_id;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Customer) TableName() string { return "customers" }

type Center struct {
	CenterID    string  `gorm:"column:center_id;primaryKey;size:32"`
	Name        string  `gorm:"column:name;not null"`
	MainContact *string `gorm:"column:main_contact"`
	Email       *string `gorm:"column:email"`
	Phone       *string `gorm:"column:phone"`
	Address     *string `gorm:"column:address"`
	Status      string  `gorm:"column:status;default:active"`
	ClerkUserID *string `gorm:"column:clerk_user_id;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Center) TableName() string { return "centers" }

type Crew struct {
	CrewID      string  `gorm:"column:crew_id;primaryKey;size:32"`
	Name        string  `gorm:"column:name;not null"`
	Email       *string `gorm:"column:email"`
	Phone       *string `gorm:"column:phone"`
	Address     *string `gorm:"column:address"`
	Status      string  `gorm:"column:status;default:active"`
	ClerkUserID *string `gorm:"column:clerk_user_id;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Crew) TableName() string { return "crew" }

type Warehouse struct {
	WarehouseID string  `gorm:"column:warehouse_id;primaryKey;size:32"`
	Name        string  `gorm:"column:name;not null"`
	MainContact *string `gorm:"column:main_contact"`
	Email       *string `gorm:"column:email"`
	Phone       *string `gorm:"column:phone"`
	Address     *string `gorm:"column:address"`
	Status      string  `gorm:"column:status;default:active"`
	ClerkUserID *string `gorm:"column:clerk_user_id;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Warehouse) TableName() string { return "warehouses" }

type AdminUser struct {
	CksCode     string  `gorm:"column:cks_code;primaryKey;size:32"`
	Role        string  `gorm:"column:role;default:admin"`
	Status      string  `gorm:"column:status;default:active"`
	FullName    *string `gorm:"column:full_name"`
	Email       *string `gorm:"column:email"`
	ClerkUserID *string `gorm:"column:clerk_user_id;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (AdminUser) TableName() string { return "admin_users" }

// identityCounter backs sequences on stores without CREATE SEQUENCE.
type identityCounter struct {
	Name  string `gorm:"column:name;primaryKey;size:64"`
	Value int64  `gorm:"column:value;not null"`
}

func (identityCounter) TableName() string { return "identity_counters" }

type gormAuditEvent struct {
	ID        string `gorm:"primaryKey"`
	Type      string `gorm:"index"`
	ActorID   string `gorm:"index"`
	SubjectID string `gorm:"index"`
	Status    string `gorm:"index"`
	Message   string
	Metadata  audit.JSON `gorm:"type:json"`
	CreatedAt time.Time  `gorm:"index"`
}

func (gormAuditEvent) TableName() string { return "audit_events" }

func fromCoreAuditEvent(e *audit.AuditEvent) *gormAuditEvent {
	return &gormAuditEvent{
		ID:        e.ID,
		Type:      e.Type,
		ActorID:   e.ActorID,
		SubjectID: e.SubjectID,
		Status:    e.Status,
		Message:   e.Message,
		Metadata:  e.Metadata,
		CreatedAt: e.CreatedAt,
	}
}

func toCoreAuditEvent(e *gormAuditEvent) audit.AuditEvent {
	return audit.AuditEvent{
		ID:        e.ID,
		Type:      e.Type,
		ActorID:   e.ActorID,
		SubjectID: e.SubjectID,
		Status:    e.Status,
		Message:   e.Message,
		Metadata:  e.Metadata,
		CreatedAt: e.CreatedAt,
	}
}

func nullable(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func lowerNullable(s string) *string {
	return nullable(strings.ToLower(s))
}

// newAccountModel builds the gorm model for a freshly provisioned row.
func newAccountModel(kind domain.EntityKind, row domain.AccountRow) (any, bool) {
	status := row.Status
	if status == "" {
		status = "active"
	}
	name := strings.TrimSpace(row.Name)
	email := lowerNullable(row.Email)
	phone := nullable(row.Phone)
	address := nullable(row.Address)
	contact := nullable(row.MainContact)

	switch kind {
	case domain.KindManager:
		return &Manager{ManagerID: row.Code, Name: name, Email: email, Phone: phone, Address: address, Status: status}, true
	case domain.KindContractor:
		return &Contractor{ContractorID: row.Code, Name: name, ContactPerson: contact, Email: email, Phone: phone, Address: address, Status: status}, true
	case domain.KindCustomer:
		return &Customer{CustomerID: row.Code, Name: name, MainContact: contact, Email: email, Phone: phone, Address: address, Status: status}, true
	case domain.KindCenter:
		return &Center{CenterID: row.Code, Name: name, MainContact: contact, Email: email, Phone: phone, Address: address, Status: status}, true
	case domain.KindCrew:
		return &Crew{CrewID: row.Code, Name: name, Email: email, Phone: phone, Address: address, Status: status}, true
	case domain.KindWarehouse:
		return &Warehouse{WarehouseID: row.Code, Name: name, MainContact: contact, Email: email, Phone: phone, Address: address, Status: status}, true
	}
	return nil, false
}
