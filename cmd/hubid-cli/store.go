package main

import (
	"fmt"

	"github.com/cksportal/hubid/core/config"
	"github.com/cksportal/hubid/core/domain"
	"github.com/cksportal/hubid/core/identity"
	"github.com/cksportal/hubid/core/registry"
	"github.com/cksportal/hubid/core/sequence"
	"github.com/cksportal/hubid/kgorm"
)

// store bundles what the database commands need.
type store struct {
	repo     *kgorm.Repository
	accounts *kgorm.AccountRepository
	identity *identity.Service
}

func openStore(migrate bool) (*store, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	policy, _ := cfg.RolePolicy()

	repo, err := kgorm.NewStorage(cfg.DBType, cfg.DSN, kgorm.Options{SkipMigrate: !migrate})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.DBType, err)
	}

	reg := registry.Default()
	accounts := kgorm.NewAccountRepository(repo.DB(), reg, kgorm.WithRolePolicy(policy))
	allocator := kgorm.NewSequenceAllocator(repo.DB(), sequence.NewAllowList(reg.SequenceNames()...))

	return &store{
		repo:     repo,
		accounts: accounts,
		identity: identity.NewService(sequence.NewGenerator(reg, allocator), accounts),
	}, nil
}

func (s *store) Close() error { return s.repo.Close() }

func parseKind(raw string) (domain.EntityKind, error) {
	kind, ok := domain.ParseKind(raw)
	if !ok {
		return "", fmt.Errorf("unknown account kind %q", raw)
	}
	return kind, nil
}
