// Package tier defines the closed, totally ordered set of sensitivity tiers
// used throughout the dispatch pipeline. Every tier comparison in the service
// goes through this package; string equality alone is never sufficient.
package tier

import (
	"errors"
	"fmt"
	"strings"
)

// Tier is a named sensitivity level with a fixed rank.
type Tier string

// The five tiers in ascending privilege order.
const (
	System       Tier = "system"
	Social       Tier = "social"
	Personal     Tier = "personal"
	Confidential Tier = "confidential"
	Restricted   Tier = "restricted"
)

// ErrUnknownTier is returned when a name is not part of the closed tier set.
// Unknown tiers are a hard validation failure, never a default.
var ErrUnknownTier = errors.New("unknown tier")

var ranks = map[Tier]int{
	System:       1,
	Social:       2,
	Personal:     3,
	Confidential: 4,
	Restricted:   5,
}

var ordered = []Tier{System, Social, Personal, Confidential, Restricted}

// Parse validates a tier name against the closed set.
func Parse(name string) (Tier, error) {
	t := Tier(strings.TrimSpace(strings.ToLower(name)))
	if _, ok := ranks[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTier, name)
	}
	return t, nil
}

// Rank returns the numeric privilege rank of a tier. Zero means unknown.
func (t Tier) Rank() int {
	return ranks[t]
}

// Valid reports whether the tier belongs to the closed set.
func (t Tier) Valid() bool {
	_, ok := ranks[t]
	return ok
}

// AtLeast reports whether t carries at least the privilege of other. Both
// tiers must be valid; comparisons involving an unknown tier are always false.
func (t Tier) AtLeast(other Tier) bool {
	tr, ok := ranks[t]
	if !ok {
		return false
	}
	or, ok := ranks[other]
	if !ok {
		return false
	}
	return tr >= or
}

// String implements fmt.Stringer.
func (t Tier) String() string { return string(t) }

// All returns the tiers in ascending privilege order. The returned slice is a
// copy; callers may not mutate the canonical ordering.
func All() []Tier {
	out := make([]Tier, len(ordered))
	copy(out, ordered)
	return out
}
