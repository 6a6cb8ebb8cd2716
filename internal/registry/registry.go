// Package registry holds the declarative message-type catalogue. The registry
// is the sole definition of which message types exist and what shape their
// payloads must have. It is built once at process start and never mutated, so
// concurrent readers need no synchronisation.
package registry

import (
	"fmt"

	"github.com/example/dispatch-service/internal/tier"
)

// Spec describes a single message type: the least privileged tier allowed to
// send it, the payload fields that must be present, and a human description.
type Spec struct {
	MinimumTier    tier.Tier `json:"minimum_tier"`
	RequiredFields []string  `json:"required_fields"`
	Description    string    `json:"description"`
}

// Registry is an immutable mapping from message-type name to its spec.
type Registry struct {
	specs map[string]Spec
}

// New builds a registry from the supplied specs. The input map is copied so
// later mutation by the caller cannot leak into the registry.
func New(specs map[string]Spec) *Registry {
	copied := make(map[string]Spec, len(specs))
	for name, spec := range specs {
		fields := make([]string, len(spec.RequiredFields))
		copy(fields, spec.RequiredFields)
		spec.RequiredFields = fields
		copied[name] = spec
	}
	return &Registry{specs: copied}
}

// Default returns the registry for this deployment. The honeypot type
// password_reset stays registered so it passes schema validation; the
// authorization gate intercepts it before anything would render.
func Default() *Registry {
	return New(map[string]Spec{
		"verify_email": {
			MinimumTier:    tier.System,
			RequiredFields: []string{"verification_url", "expires_in"},
			Description:    "New account email verification link",
		},
		"magic_link": {
			MinimumTier:    tier.System,
			RequiredFields: []string{"magic_url", "expires_in"},
			Description:    "One-time account setup link",
		},
		"password_reset": {
			MinimumTier:    tier.System,
			RequiredFields: []string{"reset_url", "expires_in"},
			Description:    "[HONEYPOT] Password reset — not a valid operation in this system",
		},
		"game_invite": {
			MinimumTier:    tier.Social,
			RequiredFields: []string{"inviter_name", "table_name", "join_url"},
			Description:    "Player-to-player game invitation",
		},
		"game_result_notify": {
			MinimumTier:    tier.Social,
			RequiredFields: []string{"result", "net_change"},
			Description:    "Notification of game result to interested party",
		},
		"session_summary": {
			MinimumTier:    tier.Personal,
			RequiredFields: []string{"hands_played", "net_result", "session_start", "session_end"},
			Description:    "Player's own session win/loss summary",
		},
		"account_flag_notice": {
			MinimumTier:    tier.Confidential,
			RequiredFields: []string{"reason", "action_taken"},
			Description:    "Account moderation or flag notification",
		},
		"transaction_receipt": {
			MinimumTier:    tier.Restricted,
			RequiredFields: []string{"transaction_id", "amount", "type", "timestamp", "balance_after"},
			Description:    "Bank transaction receipt — always encrypted, always to registered address",
		},
	})
}

// Lookup returns the spec for a message type.
func (r *Registry) Lookup(messageType string) (Spec, bool) {
	spec, ok := r.specs[messageType]
	return spec, ok
}

// Specs returns a copy of the full catalogue, for the read-only listing
// endpoint.
func (r *Registry) Specs() map[string]Spec {
	out := make(map[string]Spec, len(r.specs))
	for name, spec := range r.specs {
		fields := make([]string, len(spec.RequiredFields))
		copy(fields, spec.RequiredFields)
		spec.RequiredFields = fields
		out[name] = spec
	}
	return out
}

// Validate checks a payload against the spec for the given message type under
// the enforced tier. An unknown type yields a single error and no further
// checks. Otherwise every applicable error is collected: one ordering error
// when the tier ranks below the spec's minimum, plus one error per required
// field that is absent or null.
func (r *Registry) Validate(messageType string, t tier.Tier, payload map[string]any) []string {
	spec, ok := r.specs[messageType]
	if !ok {
		return []string{fmt.Sprintf("unknown message type: %s", messageType)}
	}

	var errs []string
	if t.Rank() < spec.MinimumTier.Rank() {
		errs = append(errs, fmt.Sprintf(
			"message type %q requires minimum tier %q, got %q", messageType, spec.MinimumTier, t))
	}
	for _, field := range spec.RequiredFields {
		value, present := payload[field]
		if !present || value == nil {
			errs = append(errs, fmt.Sprintf("missing required payload field: %q", field))
		}
	}
	return errs
}
