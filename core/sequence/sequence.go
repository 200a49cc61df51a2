// Package sequence mints canonical codes from durable counters.
//
// Each EntityKind owns one monotonic sequence (manager_id_seq,
// contractor_id_seq, ...). An Allocator hides how the store implements the
// counter; the Generator composes it with code.Format:
//
//	gen := sequence.NewGenerator(reg, allocator)
//	c, err := gen.Generate(ctx, domain.KindContractor) // "CON-008"
//
// Sequence names end up inside query text because SQL cannot bind them as
// parameters. AllowList.Check must therefore pass before an Allocator
// renders any statement.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	ErrUnsupportedSequence   = errors.New("sequence: unsupported sequence")
	ErrSequenceRead          = errors.New("sequence: increment returned no row")
	ErrSequenceFormat        = errors.New("sequence: value is not numeric")
	ErrUnsupportedEntityKind = errors.New("sequence: unsupported entity kind")
)

// Allocator hands out values from named counters.
type Allocator interface {
	// Ensure creates the named sequence if it does not exist.
	Ensure(ctx context.Context, name string) error
	// Next increments the named sequence and returns the new value. Two
	// concurrent callers never observe the same value.
	Next(ctx context.Context, name string) (int64, error)
}

var namePattern = regexp.MustCompile(`^[a-z_]+$`)

// AllowList is the fixed set of sequence names an Allocator may touch.
type AllowList struct {
	names map[string]struct{}
}

func NewAllowList(names ...string) AllowList {
	a := AllowList{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		a.names[n] = struct{}{}
	}
	return a
}

// Check returns ErrUnsupportedSequence unless name is allow-listed and made
// of lowercase letters and underscores only.
func (a AllowList) Check(name string) error {
	if _, ok := a.names[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedSequence, name)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrUnsupportedSequence, name)
	}
	return nil
}

// ParseValue converts a raw counter value read from the store.
func ParseValue(raw string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrSequenceFormat, raw)
	}
	return v, nil
}
