package sequence

import (
	"context"
	"fmt"

	"github.com/cksportal/hubid/core/code"
	"github.com/cksportal/hubid/core/domain"
	"github.com/cksportal/hubid/core/registry"
)

// Generator mints canonical codes for entity kinds.
type Generator struct {
	registry  *registry.Registry
	allocator Allocator
}

func NewGenerator(reg *registry.Registry, allocator Allocator) *Generator {
	return &Generator{registry: reg, allocator: allocator}
}

// Generate allocates the next value for kind and formats it. Codes for a kind
// are strictly increasing in allocation order and never repeat.
func (g *Generator) Generate(ctx context.Context, kind domain.EntityKind) (string, error) {
	entry, ok := g.registry.Lookup(kind)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedEntityKind, kind)
	}

	if err := g.allocator.Ensure(ctx, entry.Sequence); err != nil {
		return "", err
	}
	value, err := g.allocator.Next(ctx, entry.Sequence)
	if err != nil {
		return "", err
	}

	return code.Format(entry.Prefix, value), nil
}
