package kgorm

import (
	"fmt"
	"sync"

	"gorm.io/gorm"
)

// DialectorOpener is an alias for a function that returns a gorm.Dialector for a given DSN.
type DialectorOpener = func(string) gorm.Dialector

// Factory builds a Repository without going through a registered dialector.
type Factory = func(dsn string, extra any) (*Repository, error)

var (
	registryMu sync.RWMutex
	providers  = make(map[string]any)
)

// Options tunes NewStorage when passed as its extra argument.
type Options struct {
	Config      *gorm.Config
	SkipMigrate bool
	// MaxOpenConns limits the pool when > 0.
	MaxOpenConns int
}

// Register adds a new storage provider to the registry.
// Provider can be a DialectorOpener or a Factory.
func Register(name string, provider any) {
	registryMu.Lock()
	defer registryMu.Unlock()
	providers[name] = provider
}

// NewStorage opens the named storage provider and migrates the hub schema.
// extra may be nil, a *gorm.Config or Options.
func NewStorage(name string, dsn string, extra any, models ...any) (*Repository, error) {
	registryMu.RLock()
	provider, ok := providers[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("gorm: unknown storage provider %q", name)
	}

	if opener, ok := provider.(DialectorOpener); ok {
		var opts Options
		switch e := extra.(type) {
		case *gorm.Config:
			opts.Config = e
		case Options:
			opts = e
		}
		if opts.Config == nil {
			opts.Config = &gorm.Config{}
		}

		db, err := gorm.Open(opener(dsn), opts.Config)
		if err != nil {
			return nil, err
		}

		if opts.MaxOpenConns > 0 {
			sqlDB, err := db.DB()
			if err != nil {
				return nil, err
			}
			sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
		}

		repo := NewRepository(db)
		if !opts.SkipMigrate {
			if err := repo.AutoMigrate(models...); err != nil {
				return nil, err
			}
		}

		return repo, nil
	}

	if factory, ok := provider.(Factory); ok {
		return factory(dsn, extra)
	}

	return nil, fmt.Errorf("gorm: provider %q registered with incompatible type (expected DialectorOpener or Factory)", name)
}
