// Package encrypt decides whether a message body must be encrypted for its
// enforced tier and applies encryption through the external key service.
// Actual public-key cryptography and key storage live behind the KeyService
// contract; this package owns only the policy.
package encrypt

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/rs/zerolog"

	"github.com/example/dispatch-service/internal/tier"
)

// Decision is the tier-driven encryption outcome for a request.
type Decision string

const (
	// DecisionMandatory means the tier requires encryption and any waiver is
	// ignored.
	DecisionMandatory Decision = "mandatory"
	// DecisionDefault means the tier encrypts by default but the data owner
	// may waive it with a token.
	DecisionDefault Decision = "default"
	// DecisionWaived means the data owner waived the default encryption.
	DecisionWaived Decision = "waived"
	// DecisionNone means the tier never encrypts.
	DecisionNone Decision = "none"
)

// Encrypt reports whether the decision results in an encrypted body.
func (d Decision) Encrypt() bool {
	return d == DecisionMandatory || d == DecisionDefault
}

// Sentinel errors for the two rejection paths of this package.
var (
	// ErrWaiverTokenMissing is returned when a waiver is requested without a
	// token. Token validity beyond being non-empty is the external
	// authority's concern.
	ErrWaiverTokenMissing = errors.New("encryption waiver requires a waiver token")
	// ErrNoKey means no public key is on record for the recipient, or the
	// recipient has no identity to look a key up by. The pipeline must
	// reject rather than fall back to plaintext.
	ErrNoKey = errors.New("no public key on record")
)

// KeyService is the external key/encryption collaborator.
type KeyService interface {
	PublicKeyFor(ctx context.Context, identity string) (string, error)
	Encrypt(plaintext, publicKey string) (string, error)
}

// Decide applies the tier decision table. Confidential and restricted are
// mandatory regardless of the waiver flag; personal defaults to encryption but
// may be waived with a non-empty token; lower tiers never encrypt.
func Decide(enforced tier.Tier, waived bool, waiverToken string) (Decision, error) {
	switch {
	case enforced.AtLeast(tier.Confidential):
		return DecisionMandatory, nil
	case enforced == tier.Personal:
		if !waived {
			return DecisionDefault, nil
		}
		if strings.TrimSpace(waiverToken) == "" {
			return "", ErrWaiverTokenMissing
		}
		return DecisionWaived, nil
	default:
		return DecisionNone, nil
	}
}

// Gate applies encryption through the key service.
type Gate struct {
	keys   KeyService
	logger zerolog.Logger
}

// NewGate constructs an encryption gate. The key service is required.
func NewGate(keys KeyService, logger zerolog.Logger) (*Gate, error) {
	if keys == nil {
		return nil, errors.New("encrypt: key service dependency is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &Gate{keys: keys, logger: logger}, nil
}

// Apply encrypts plaintext for the identity's public key. An empty identity
// (literal recipient) or a key-service miss yields ErrNoKey; any other
// failure is a collaborator fault.
func (g *Gate) Apply(ctx context.Context, plaintext, identity string) (string, error) {
	if strings.TrimSpace(identity) == "" {
		return "", fmt.Errorf("%w: no identity to look up a public key", ErrNoKey)
	}

	key, err := g.keys.PublicKeyFor(ctx, identity)
	if err != nil {
		if errors.Is(err, ErrNoKey) {
			return "", fmt.Errorf("%w: identity %s", ErrNoKey, identity)
		}
		return "", fmt.Errorf("encrypt: fetch public key for %s: %w", identity, err)
	}
	if key == "" {
		return "", fmt.Errorf("%w: identity %s", ErrNoKey, identity)
	}

	ciphertext, err := g.keys.Encrypt(plaintext, key)
	if err != nil {
		return "", fmt.Errorf("encrypt: encrypt for %s: %w", identity, err)
	}

	g.logger.Debug().
		Str("identity", identity).
		Msg("encrypt: body encrypted with recipient public key")

	return ciphertext, nil
}
