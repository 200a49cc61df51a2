package kgorm

import (
	"context"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Repository owns the gorm handle and the schema of the hub tables.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) DB() *gorm.DB {
	return r.db
}

func init() {
	Register("sqlite", sqlite.Open)
	Register("postgres", postgres.Open)
	Register("mysql", mysql.Open)
}

// Models returns the base models managed by AutoMigrate.
func Models() []any {
	return []any{
		&AdminUser{},
		&Manager{},
		&Contractor{},
		&Customer{},
		&Center{},
		&Crew{},
		&Warehouse{},
		&identityCounter{},
		&gormAuditEvent{},
	}
}

func (r *Repository) AutoMigrate(models ...any) error {
	allModels := append(Models(), models...)
	return r.db.AutoMigrate(allModels...)
}

// Ping checks the underlying connection.
func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Dialect returns the gorm dialector name (sqlite, postgres, mysql).
func (r *Repository) Dialect() string {
	return r.db.Dialector.Name()
}

// Close releases the connection pool.
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
