package tier_test

import (
	"errors"
	"testing"

	"github.com/example/dispatch-service/internal/tier"
)

func TestParseAcceptsKnownTiers(t *testing.T) {
	cases := []struct {
		input string
		want  tier.Tier
	}{
		{"system", tier.System},
		{"social", tier.Social},
		{"personal", tier.Personal},
		{"confidential", tier.Confidential},
		{"restricted", tier.Restricted},
		{"  Restricted ", tier.Restricted},
		{"SYSTEM", tier.System},
	}

	for _, tc := range cases {
		got, err := tier.Parse(tc.input)
		if err != nil {
			t.Fatalf("Parse(%q) returned error: %v", tc.input, err)
		}
		if got != tc.want {
			t.Fatalf("Parse(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestParseRejectsUnknownTiers(t *testing.T) {
	for _, input := range []string{"", "admin", "public", "restricted2"} {
		if _, err := tier.Parse(input); !errors.Is(err, tier.ErrUnknownTier) {
			t.Fatalf("Parse(%q) error = %v, want ErrUnknownTier", input, err)
		}
	}
}

func TestOrderingIsStrict(t *testing.T) {
	all := tier.All()
	if len(all) != 5 {
		t.Fatalf("expected 5 tiers, got %d", len(all))
	}

	for i := 1; i < len(all); i++ {
		lower, higher := all[i-1], all[i]
		if !higher.AtLeast(lower) {
			t.Errorf("%s should be at least %s", higher, lower)
		}
		if lower.AtLeast(higher) {
			t.Errorf("%s should not be at least %s", lower, higher)
		}
	}

	for _, tr := range all {
		if !tr.AtLeast(tr) {
			t.Errorf("%s should be at least itself", tr)
		}
	}
}

func TestAtLeastIsFalseForUnknownTiers(t *testing.T) {
	unknown := tier.Tier("admin")
	if unknown.AtLeast(tier.System) {
		t.Error("unknown tier must never satisfy AtLeast")
	}
	if tier.Restricted.AtLeast(unknown) {
		t.Error("comparison against an unknown tier must be false")
	}
	if unknown.Valid() {
		t.Error("unknown tier must not be valid")
	}
}
