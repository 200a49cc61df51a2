package sequence

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cksportal/hubid/core/domain"
	"github.com/cksportal/hubid/core/registry"
)

type memoryAllocator struct {
	mu      sync.Mutex
	allow   AllowList
	values  map[string]int64
	ensured map[string]int
}

func newMemoryAllocator(names ...string) *memoryAllocator {
	return &memoryAllocator{
		allow:   NewAllowList(names...),
		values:  make(map[string]int64),
		ensured: make(map[string]int),
	}
}

func (m *memoryAllocator) Ensure(ctx context.Context, name string) error {
	if err := m.allow.Check(name); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensured[name]++
	return nil
}

func (m *memoryAllocator) Next(ctx context.Context, name string) (int64, error) {
	if err := m.allow.Check(name); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[name]++
	return m.values[name], nil
}

func TestGenerateSequential(t *testing.T) {
	reg := registry.Default()
	alloc := newMemoryAllocator(reg.SequenceNames()...)
	gen := NewGenerator(reg, alloc)
	ctx := context.Background()

	want := []string{"CON-001", "CON-002", "CON-003"}
	for _, w := range want {
		got, err := gen.Generate(ctx, domain.KindContractor)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if got != w {
			t.Errorf("expected %s, got %s", w, got)
		}
	}

	got, _ := gen.Generate(ctx, domain.KindManager)
	if got != "MGR-001" {
		t.Errorf("kinds must use independent sequences, got %s", got)
	}
	if alloc.ensured["contractor_id_seq"] != 3 {
		t.Errorf("expected Ensure on every allocation, got %d", alloc.ensured["contractor_id_seq"])
	}
}

func TestGenerateUnsupportedKind(t *testing.T) {
	reg := registry.Default()
	gen := NewGenerator(reg, newMemoryAllocator(reg.SequenceNames()...))

	_, err := gen.Generate(context.Background(), domain.EntityKind("admin"))
	if !errors.Is(err, ErrUnsupportedEntityKind) {
		t.Fatalf("expected ErrUnsupportedEntityKind, got %v", err)
	}
}

func TestGenerateConcurrentUnique(t *testing.T) {
	reg := registry.Default()
	gen := NewGenerator(reg, newMemoryAllocator(reg.SequenceNames()...))

	const workers = 16
	const perWorker = 25

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				c, err := gen.Generate(context.Background(), domain.KindCrew)
				if err != nil {
					t.Errorf("generate: %v", err)
					return
				}
				mu.Lock()
				if seen[c] {
					t.Errorf("duplicate code %s", c)
				}
				seen[c] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Errorf("expected %d codes, got %d", workers*perWorker, len(seen))
	}
}

func TestAllowListCheck(t *testing.T) {
	a := NewAllowList("contractor_id_seq", "Bad_Seq", "evil_seq; drop")

	if err := a.Check("contractor_id_seq"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	for _, name := range []string{"manager_id_seq", "Bad_Seq", "evil_seq; drop", ""} {
		if err := a.Check(name); !errors.Is(err, ErrUnsupportedSequence) {
			t.Errorf("Check(%q): expected ErrUnsupportedSequence, got %v", name, err)
		}
	}
}

func TestParseValue(t *testing.T) {
	if v, err := ParseValue(" 42 "); err != nil || v != 42 {
		t.Errorf("ParseValue: got (%d, %v)", v, err)
	}
	if _, err := ParseValue("forty-two"); !errors.Is(err, ErrSequenceFormat) {
		t.Errorf("expected ErrSequenceFormat, got %v", err)
	}
}
