package encrypt

import (
	"context"
	"reflect"

	"github.com/rs/zerolog"
)

// StubKeyService stands in for the real key service. It logs intent and
// returns the plaintext unchanged so output stays readable in development.
// Production swaps this for a client of the auth service's key endpoint; user
// public keys are registered there during the WebAuthn flow and private keys
// never leave the user's device.
type StubKeyService struct {
	logger zerolog.Logger
}

// NewStubKeyService constructs the stub.
func NewStubKeyService(logger zerolog.Logger) *StubKeyService {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &StubKeyService{logger: logger}
}

// PublicKeyFor implements KeyService with a deterministic stub key.
func (s *StubKeyService) PublicKeyFor(ctx context.Context, identity string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.logger.Info().
		Str("identity", identity).
		Msg("encrypt stub: would fetch public key from auth service")
	return "stub-public-key-for-" + identity, nil
}

// Encrypt implements KeyService. The stub returns the plaintext so message
// bodies remain inspectable in logs and MailHog.
func (s *StubKeyService) Encrypt(plaintext, publicKey string) (string, error) {
	s.logger.Info().
		Str("key", truncate(publicKey, 40)).
		Int("plaintext_bytes", len(plaintext)).
		Msg("encrypt stub: would encrypt with recipient public key")
	return plaintext, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
