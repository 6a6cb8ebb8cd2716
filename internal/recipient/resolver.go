// Package recipient maps a recipient descriptor to a deliverable address.
// Low tiers accept literal addresses verbatim; personal and above require a
// registered identity, and the restricted tier additionally pins the final
// destination to the address on record for the account.
package recipient

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/dispatch-service/internal/models"
	"github.com/example/dispatch-service/internal/tier"
)

// Sentinel errors surfaced by Resolve. Callers classify them with errors.Is;
// anything else is a directory collaborator failure.
var (
	// ErrNotFound means the directory definitively has no address for the
	// identity. Distinct from a directory fault: a miss is the caller's
	// problem, a fault is ours.
	ErrNotFound = errors.New("recipient not found")
	// ErrInvalidRecipient is returned when the enforced tier does not accept
	// the recipient descriptor kind.
	ErrInvalidRecipient = errors.New("invalid recipient for tier")
	// ErrAddressMismatch is returned at the restricted tier when the resolved
	// destination does not byte-match the account's registered address, or
	// when a caller-supplied literal was offered at all.
	ErrAddressMismatch = errors.New("restricted address mismatch")
)

const defaultLookupTimeout = 3 * time.Second

// Directory is the external identity directory collaborator. AddressFor
// returns ErrNotFound (possibly wrapped) when no address is on record.
type Directory interface {
	AddressFor(ctx context.Context, identity string) (string, error)
}

// Resolution is the outcome of a successful resolve. Identity is empty when
// the recipient was a literal address.
type Resolution struct {
	Address  string
	Identity string
}

// Option customises resolver behaviour.
type Option func(*Resolver)

// WithLookupTimeout bounds each directory lookup.
func WithLookupTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// Resolver turns recipient descriptors into deliverable addresses.
type Resolver struct {
	directory Directory
	logger    zerolog.Logger
	timeout   time.Duration
}

// NewResolver constructs a Resolver. The directory dependency is required.
func NewResolver(directory Directory, logger zerolog.Logger, opts ...Option) (*Resolver, error) {
	if directory == nil {
		return nil, errors.New("recipient: directory dependency is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	r := &Resolver{
		directory: directory,
		logger:    logger,
		timeout:   defaultLookupTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// Resolve maps the descriptor to the final destination address under the
// enforced tier's rules. Restricted-tier requests resolve twice: once for the
// destination and once for the registered account address, which must be
// byte-equal. A literal at the restricted tier is rejected through the same
// pinning path even when it happens to match the record, because caller input
// is never a trusted resolution path at the highest sensitivity.
func (r *Resolver) Resolve(ctx context.Context, rec models.Recipient, enforced tier.Tier) (Resolution, error) {
	if enforced == tier.Restricted {
		return r.resolveRestricted(ctx, rec)
	}

	if !rec.IsIdentity() {
		if enforced.AtLeast(tier.Personal) {
			return Resolution{}, fmt.Errorf(
				"%w: %s tier requires a registered identity recipient, not a raw address",
				ErrInvalidRecipient, enforced)
		}
		return Resolution{Address: rec.Value}, nil
	}

	address, err := r.lookup(ctx, rec.Value)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Address: address, Identity: rec.Value}, nil
}

func (r *Resolver) resolveRestricted(ctx context.Context, rec models.Recipient) (Resolution, error) {
	if !rec.IsIdentity() {
		return Resolution{}, fmt.Errorf(
			"%w: caller-supplied addresses are never trusted at the restricted tier", ErrAddressMismatch)
	}

	destination, err := r.lookup(ctx, rec.Value)
	if err != nil {
		return Resolution{}, err
	}

	registered, err := r.lookup(ctx, rec.Value)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Resolution{}, fmt.Errorf("%w: no registered address on account for %s", ErrNotFound, rec.Value)
		}
		return Resolution{}, err
	}

	if destination != registered {
		r.logger.Warn().
			Str("identity", rec.Value).
			Msg("recipient: restricted-tier destination does not match registered address")
		return Resolution{}, fmt.Errorf(
			"%w: resolved address does not match account registered address", ErrAddressMismatch)
	}

	return Resolution{Address: registered, Identity: rec.Value}, nil
}

func (r *Resolver) lookup(ctx context.Context, identity string) (string, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	address, err := r.directory.AddressFor(lookupCtx, identity)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", fmt.Errorf("%w: no registered address for %s", ErrNotFound, identity)
		}
		return "", fmt.Errorf("recipient: directory lookup for %s: %w", identity, err)
	}
	if address == "" {
		return "", fmt.Errorf("%w: no registered address for %s", ErrNotFound, identity)
	}
	return address, nil
}
