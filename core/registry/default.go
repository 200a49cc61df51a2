package registry

import "github.com/cksportal/hubid/core/domain"

const linkColumn = "clerk_user_id"

// AdminTable describes the dedicated admin_users table.
var AdminTable = Descriptor{
	Table:        "admin_users",
	CodeColumn:   "cks_code",
	NameColumns:  []string{"full_name"},
	StatusColumn: "status",
	EmailColumn:  "email",
	LinkColumn:   linkColumn,
	RoleColumn:   "role",
}

// RoleTables describes the production role tables in declaration order.
var RoleTables = []Descriptor{
	{
		Kind:         domain.KindManager,
		Prefix:       "MGR",
		Sequence:     "manager_id_seq",
		Table:        "managers",
		CodeColumn:   "manager_id",
		NameColumns:  []string{"name"},
		StatusColumn: "status",
		EmailColumn:  "email",
		LinkColumn:   linkColumn,
	},
	{
		Kind:         domain.KindContractor,
		Prefix:       "CON",
		Sequence:     "contractor_id_seq",
		Table:        "contractors",
		CodeColumn:   "contractor_id",
		NameColumns:  []string{"contact_person", "name"},
		StatusColumn: "status",
		EmailColumn:  "email",
		LinkColumn:   linkColumn,
	},
	{
		Kind:         domain.KindCustomer,
		Prefix:       "CUS",
		Aliases:      []string{"CUST"},
		Sequence:     "customer_id_seq",
		Table:        "customers",
		CodeColumn:   "customer_id",
		NameColumns:  []string{"main_contact", "name"},
		StatusColumn: "status",
		EmailColumn:  "email",
		LinkColumn:   linkColumn,
	},
	{
		Kind:         domain.KindCenter,
		Prefix:       "CEN",
		Aliases:      []string{"CTR"},
		Sequence:     "center_id_seq",
		Table:        "centers",
		CodeColumn:   "center_id",
		NameColumns:  []string{"main_contact", "name"},
		StatusColumn: "status",
		EmailColumn:  "email",
		LinkColumn:   linkColumn,
	},
	{
		Kind:         domain.KindCrew,
		Prefix:       "CRW",
		Aliases:      []string{"CREW"},
		Sequence:     "crew_id_seq",
		Table:        "crew",
		CodeColumn:   "crew_id",
		NameColumns:  []string{"name"},
		StatusColumn: "status",
		EmailColumn:  "email",
		LinkColumn:   linkColumn,
	},
	{
		Kind:         domain.KindWarehouse,
		Prefix:       "WHS",
		Aliases:      []string{"WAR"},
		Sequence:     "warehouse_id_seq",
		Table:        "warehouses",
		CodeColumn:   "warehouse_id",
		NameColumns:  []string{"main_contact", "name"},
		StatusColumn: "status",
		EmailColumn:  "email",
		LinkColumn:   linkColumn,
	},
}

// Default builds the production registry.
func Default() *Registry {
	return MustNew(AdminTable, RoleTables...)
}
