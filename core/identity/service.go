// Package identity is the single seam the rest of the portal uses for
// canonical codes and account resolution.
//
// Service adds no behavior of its own. It forwards to a code generator and an
// account finder so callers, and their tests, depend on one small type:
//
//	svc := identity.NewService(generator, accounts)
//	c, err := svc.Generate(ctx, domain.KindCenter)
//	acct, err := svc.FindAccountByExternalID(ctx, userID)
package identity

import (
	"context"

	"github.com/cksportal/hubid/core/code"
	"github.com/cksportal/hubid/core/domain"
)

// Generator mints canonical codes.
type Generator interface {
	Generate(ctx context.Context, kind domain.EntityKind) (string, error)
}

// Service is the identity façade.
type Service struct {
	generator Generator
	accounts  domain.AccountFinder
}

func NewService(generator Generator, accounts domain.AccountFinder) *Service {
	return &Service{generator: generator, accounts: accounts}
}

func (s *Service) Generate(ctx context.Context, kind domain.EntityKind) (string, error) {
	return s.generator.Generate(ctx, kind)
}

func (s *Service) FindAccountByExternalID(ctx context.Context, externalID string) (*domain.HubAccountRecord, error) {
	return s.accounts.FindAccountByExternalID(ctx, externalID)
}

func (s *Service) FindAccountByCode(ctx context.Context, cksCode string) (*domain.HubAccountRecord, error) {
	return s.accounts.FindAccountByCode(ctx, cksCode)
}

// NormalizeCode trims and uppercases a canonical code. The second result is
// false for empty input.
func (s *Service) NormalizeCode(raw string) (string, bool) {
	return code.Normalize(raw)
}
