package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/cksportal/hubid/core/domain"
)

type stubGenerator struct {
	kinds []domain.EntityKind
	err   error
}

func (g *stubGenerator) Generate(ctx context.Context, kind domain.EntityKind) (string, error) {
	g.kinds = append(g.kinds, kind)
	if g.err != nil {
		return "", g.err
	}
	return "CEN-001", nil
}

type stubFinder struct {
	byExternal map[string]*domain.HubAccountRecord
	byCode     map[string]*domain.HubAccountRecord
}

func (f *stubFinder) FindAccountByExternalID(ctx context.Context, id string) (*domain.HubAccountRecord, error) {
	return f.byExternal[id], nil
}

func (f *stubFinder) FindAccountByCode(ctx context.Context, c string) (*domain.HubAccountRecord, error) {
	return f.byCode[c], nil
}

func TestServiceDelegates(t *testing.T) {
	gen := &stubGenerator{}
	rec := &domain.HubAccountRecord{Role: "center", Code: "CEN-001"}
	finder := &stubFinder{
		byExternal: map[string]*domain.HubAccountRecord{"user_1": rec},
		byCode:     map[string]*domain.HubAccountRecord{"CEN-001": rec},
	}
	svc := NewService(gen, finder)
	ctx := context.Background()

	c, err := svc.Generate(ctx, domain.KindCenter)
	if err != nil || c != "CEN-001" {
		t.Fatalf("Generate = (%q, %v)", c, err)
	}
	if len(gen.kinds) != 1 || gen.kinds[0] != domain.KindCenter {
		t.Errorf("generator saw %v", gen.kinds)
	}

	if got, _ := svc.FindAccountByExternalID(ctx, "user_1"); got != rec {
		t.Errorf("FindAccountByExternalID returned %v", got)
	}
	if got, _ := svc.FindAccountByCode(ctx, "CEN-001"); got != rec {
		t.Errorf("FindAccountByCode returned %v", got)
	}
	if got, _ := svc.FindAccountByCode(ctx, "CEN-404"); got != nil {
		t.Errorf("expected nil for unknown code, got %v", got)
	}
}

func TestServiceGenerateError(t *testing.T) {
	boom := errors.New("boom")
	svc := NewService(&stubGenerator{err: boom}, &stubFinder{})
	if _, err := svc.Generate(context.Background(), domain.KindCrew); !errors.Is(err, boom) {
		t.Errorf("expected generator error, got %v", err)
	}
}

func TestNormalizeCode(t *testing.T) {
	svc := NewService(nil, nil)
	if c, ok := svc.NormalizeCode(" con-007 "); !ok || c != "CON-007" {
		t.Errorf("NormalizeCode = (%q, %v)", c, ok)
	}
	if _, ok := svc.NormalizeCode(""); ok {
		t.Error("expected empty code to normalize to absence")
	}
}
