package kgorm

import (
	"context"
	"database/sql"

	"github.com/cksportal/hubid/core/sequence"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NewSequenceAllocator returns the allocator suited to the dialect of db:
// native sequences on PostgreSQL, the identity_counters table elsewhere.
func NewSequenceAllocator(db *gorm.DB, allow sequence.AllowList) sequence.Allocator {
	switch db.Dialector.Name() {
	case "postgres":
		return &PostgresSequenceAllocator{db: db, allow: allow}
	case "mysql":
		return &CounterTableAllocator{db: db, allow: allow, lastInsertID: true}
	default:
		return &CounterTableAllocator{db: db, allow: allow}
	}
}

// PostgresSequenceAllocator uses CREATE SEQUENCE / nextval.
type PostgresSequenceAllocator struct {
	db    *gorm.DB
	allow sequence.AllowList
}

func (a *PostgresSequenceAllocator) Ensure(ctx context.Context, name string) error {
	if err := a.allow.Check(name); err != nil {
		return err
	}
	return a.db.WithContext(ctx).Exec("CREATE SEQUENCE IF NOT EXISTS " + name + " AS BIGINT START 1").Error
}

func (a *PostgresSequenceAllocator) Next(ctx context.Context, name string) (int64, error) {
	if err := a.allow.Check(name); err != nil {
		return 0, err
	}
	rows, err := a.db.WithContext(ctx).Raw("SELECT nextval('" + name + "')").Rows()
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	return scanCounter(rows)
}

// CounterTableAllocator keeps one row per sequence in identity_counters and
// increments it with a single atomic UPDATE.
type CounterTableAllocator struct {
	db    *gorm.DB
	allow sequence.AllowList
	// lastInsertID selects the MySQL form, which has no UPDATE ... RETURNING.
	lastInsertID bool
}

func (a *CounterTableAllocator) Ensure(ctx context.Context, name string) error {
	if err := a.allow.Check(name); err != nil {
		return err
	}
	return a.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&identityCounter{Name: name}).Error
}

func (a *CounterTableAllocator) Next(ctx context.Context, name string) (int64, error) {
	if err := a.allow.Check(name); err != nil {
		return 0, err
	}
	if a.lastInsertID {
		return a.nextLastInsertID(ctx, name)
	}

	rows, err := a.db.WithContext(ctx).
		Raw("UPDATE identity_counters SET value = value + 1 WHERE name = ? RETURNING value", name).
		Rows()
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	return scanCounter(rows)
}

// nextLastInsertID pins one connection so LAST_INSERT_ID reads the value set
// by the preceding UPDATE.
func (a *CounterTableAllocator) nextLastInsertID(ctx context.Context, name string) (int64, error) {
	var value int64
	err := a.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		res := conn.Exec("UPDATE identity_counters SET value = LAST_INSERT_ID(value + 1) WHERE name = ?", name)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return sequence.ErrSequenceRead
		}
		rows, err := conn.Raw("SELECT LAST_INSERT_ID()").Rows()
		if err != nil {
			return err
		}
		defer rows.Close()
		value, err = scanCounter(rows)
		return err
	})
	return value, err
}

func scanCounter(rows *sql.Rows) (int64, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, err
		}
		return 0, sequence.ErrSequenceRead
	}
	var raw sql.NullString
	if err := rows.Scan(&raw); err != nil {
		return 0, err
	}
	if !raw.Valid {
		return 0, sequence.ErrSequenceFormat
	}
	return sequence.ParseValue(raw.String)
}
