package authz

import (
	"context"
	"fmt"
	"reflect"

	"github.com/rs/zerolog"

	"github.com/example/dispatch-service/internal/tier"
)

// StaticAuthority is an Authority backed by a fixed caller-to-tier permission
// table. In production the table lives in the external policy engine, not
// here; this implementation applies the documented policy so stub behaviour
// stays realistic, and it is swappable without touching the gate.
type StaticAuthority struct {
	logger zerolog.Logger
	policy map[string]map[tier.Tier]struct{}
}

// DefaultCallerPolicy is the documented permission table: which calling
// services may send which tiers.
func DefaultCallerPolicy() map[string][]tier.Tier {
	return map[string][]tier.Tier{
		"auth-service": {tier.System},
		"game-state":   {tier.System, tier.Social, tier.Personal},
		"chat-service": {tier.Social},
		"bank-service": {tier.Restricted},
		// internal test caller
		"test": {tier.System, tier.Social, tier.Personal, tier.Confidential, tier.Restricted},
	}
}

// NewStaticAuthority builds an authority from a caller policy table.
func NewStaticAuthority(policy map[string][]tier.Tier, logger zerolog.Logger) *StaticAuthority {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	table := make(map[string]map[tier.Tier]struct{}, len(policy))
	for caller, tiers := range policy {
		set := make(map[tier.Tier]struct{}, len(tiers))
		for _, t := range tiers {
			set[t] = struct{}{}
		}
		table[caller] = set
	}

	return &StaticAuthority{logger: logger, policy: table}
}

// Evaluate implements Authority. The enforced tier always equals the
// requested tier here; a production authority may pin a different one, which
// is why the result carries it separately.
func (a *StaticAuthority) Evaluate(ctx context.Context, caller string, t tier.Tier, messageType, recipientIdentity string) (Verdict, error) {
	if err := ctx.Err(); err != nil {
		return Verdict{}, err
	}

	a.logger.Debug().
		Str("caller", caller).
		Str("tier", t.String()).
		Str("message_type", messageType).
		Str("recipient_identity", recipientIdentity).
		Msg("authz: evaluating caller policy")

	allowed, ok := a.policy[caller]
	if !ok {
		return Verdict{
			Authorized: false,
			Reason:     fmt.Sprintf("service %q is not a registered caller", caller),
		}, nil
	}
	if _, permitted := allowed[t]; !permitted {
		return Verdict{
			Authorized: false,
			Reason:     fmt.Sprintf("service %q is not permitted to send %q tier", caller, t),
		}, nil
	}

	return Verdict{Authorized: true, EnforcedTier: t}, nil
}
