// Package registry describes the tables that hold business accounts.
//
// Every EntityKind owns exactly one role table. The columns differ between
// tables (a contractor's display name lives in contact_person, a crew
// member's in name), so each table is described by a Descriptor. The admin
// table is described the same way and carries an extra role column.
//
// A Registry is built once at startup and handed to the storage layer. All
// identifiers are validated in New, and the SQL statements used against each
// table are rendered there as well, so nothing is interpolated into query
// text at request time:
//
//	reg := registry.Default()
//	entry, ok := reg.Lookup(domain.KindContractor)
//	db.Raw(entry.Statements.SelectByCode, "CON-007")
package registry

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/cksportal/hubid/core/domain"
)

var (
	ErrInvalidIdentifier = errors.New("registry: invalid identifier")
	ErrDuplicateKind     = errors.New("registry: duplicate descriptor")
	ErrUnknownKind       = errors.New("registry: unknown entity kind")
	ErrDuplicatePrefix   = errors.New("registry: duplicate code prefix")
)

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Descriptor is the static description of one account table.
type Descriptor struct {
	Kind domain.EntityKind // empty for the admin table

	Prefix   string   // canonical code prefix, e.g. CON
	Aliases  []string // legacy prefixes that resolve to the same kind
	Sequence string   // sequence backing code generation

	Table        string
	CodeColumn   string
	NameColumns  []string // first non-empty value wins
	StatusColumn string
	EmailColumn  string
	LinkColumn   string
	RoleColumn   string // admin table only
}

// Statements are the SQL templates rendered for a Descriptor. Placeholders
// use ?, which gorm rewrites for the active dialect.
type Statements struct {
	Columns      []string
	SelectByCode string
	SelectByLink string
	Link         string
	Unlink       string
	Delete       string
}

// Entry couples a descriptor with its rendered statements.
type Entry struct {
	Descriptor
	Statements Statements
}

// Registry is an immutable set of entries.
type Registry struct {
	kinds     []domain.EntityKind
	entries   map[domain.EntityKind]*Entry
	admin     *Entry
	prefixes  map[string]domain.EntityKind
	sequences []string
}

// New validates the descriptors and compiles their statements. Role
// descriptors are kept in the order given, which is the order used when an
// identity is searched across tables.
func New(admin Descriptor, roles ...Descriptor) (*Registry, error) {
	r := &Registry{
		entries:  make(map[domain.EntityKind]*Entry, len(roles)),
		prefixes: make(map[string]domain.EntityKind),
	}

	adminEntry, err := compile(admin)
	if err != nil {
		return nil, fmt.Errorf("admin table: %w", err)
	}
	r.admin = adminEntry

	for _, d := range roles {
		if _, ok := domain.ParseKind(string(d.Kind)); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownKind, d.Kind)
		}
		if _, dup := r.entries[d.Kind]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateKind, d.Kind)
		}
		if d.Sequence == "" {
			return nil, fmt.Errorf("%w: %s has no sequence", ErrInvalidIdentifier, d.Kind)
		}
		e, err := compile(d)
		if err != nil {
			return nil, fmt.Errorf("%s table: %w", d.Kind, err)
		}
		for _, p := range append([]string{d.Prefix}, d.Aliases...) {
			p = strings.ToUpper(strings.TrimSpace(p))
			if p == "" {
				continue
			}
			if other, dup := r.prefixes[p]; dup {
				return nil, fmt.Errorf("%w: %s used by %s and %s", ErrDuplicatePrefix, p, other, d.Kind)
			}
			r.prefixes[p] = d.Kind
		}
		r.kinds = append(r.kinds, d.Kind)
		r.entries[d.Kind] = e
		r.sequences = append(r.sequences, d.Sequence)
	}

	return r, nil
}

// MustNew is New that panics on error.
func MustNew(admin Descriptor, roles ...Descriptor) *Registry {
	r, err := New(admin, roles...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the entry for kind.
func (r *Registry) Lookup(kind domain.EntityKind) (*Entry, bool) {
	e, ok := r.entries[kind]
	return e, ok
}

// Descriptor returns the static description of the table owning kind.
func (r *Registry) Descriptor(kind domain.EntityKind) (Descriptor, bool) {
	e, ok := r.entries[kind]
	if !ok {
		return Descriptor{}, false
	}
	return e.Descriptor, true
}

// Admin returns the admin table entry.
func (r *Registry) Admin() *Entry { return r.admin }

// Kinds returns the registered kinds in declaration order.
func (r *Registry) Kinds() []domain.EntityKind {
	out := make([]domain.EntityKind, len(r.kinds))
	copy(out, r.kinds)
	return out
}

// Entries returns the role entries in declaration order.
func (r *Registry) Entries() []*Entry {
	out := make([]*Entry, 0, len(r.kinds))
	for _, k := range r.kinds {
		out = append(out, r.entries[k])
	}
	return out
}

// SequenceNames is the allow-list of sequences code generation may touch.
func (r *Registry) SequenceNames() []string {
	out := make([]string, len(r.sequences))
	copy(out, r.sequences)
	return out
}

// KindForPrefix maps a code prefix (canonical or alias) to its kind.
func (r *Registry) KindForPrefix(prefix string) (domain.EntityKind, bool) {
	k, ok := r.prefixes[strings.ToUpper(strings.TrimSpace(prefix))]
	return k, ok
}

func validIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

func compile(d Descriptor) (*Entry, error) {
	required := []string{d.Table, d.CodeColumn}
	for _, id := range required {
		if !validIdentifier(id) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
		}
	}
	if d.Sequence != "" && !validIdentifier(d.Sequence) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIdentifier, d.Sequence)
	}

	columns := []string{d.CodeColumn}
	seen := map[string]bool{d.CodeColumn: true}
	add := func(col string) error {
		if col == "" || seen[col] {
			return nil
		}
		if !validIdentifier(col) {
			return fmt.Errorf("%w: %q", ErrInvalidIdentifier, col)
		}
		seen[col] = true
		columns = append(columns, col)
		return nil
	}
	for _, col := range d.NameColumns {
		if col == "" {
			return nil, fmt.Errorf("%w: empty name column", ErrInvalidIdentifier)
		}
		if err := add(col); err != nil {
			return nil, err
		}
	}
	for _, col := range []string{d.StatusColumn, d.EmailColumn, d.LinkColumn, d.RoleColumn} {
		if err := add(col); err != nil {
			return nil, err
		}
	}

	d.NameColumns = append([]string(nil), d.NameColumns...)
	d.Aliases = append([]string(nil), d.Aliases...)

	sel := "SELECT " + strings.Join(columns, ", ") + " FROM " + d.Table
	byCode := "UPPER(" + d.CodeColumn + ") = ?"

	st := Statements{
		Columns:      columns,
		SelectByCode: sel + " WHERE " + byCode + " LIMIT 1",
		Delete:       "DELETE FROM " + d.Table + " WHERE " + byCode,
	}
	if d.LinkColumn != "" {
		st.SelectByLink = sel + " WHERE " + d.LinkColumn + " = ? LIMIT 1"
		st.Link = "UPDATE " + d.Table + " SET " + d.LinkColumn + " = ?, updated_at = ? WHERE " + byCode
		st.Unlink = "UPDATE " + d.Table + " SET " + d.LinkColumn + " = NULL, updated_at = ? WHERE " +
			byCode + " AND " + d.LinkColumn + " IS NOT NULL"
	}

	return &Entry{Descriptor: d, Statements: st}, nil
}
