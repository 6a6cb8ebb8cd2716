// Package authz implements the authorization gate. The authorization decision
// itself is always delegated to an external authority; the gate's own
// responsibility is the independent honeypot check, which runs regardless of
// what the authority answered and is never revealed to the caller.
package authz

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

// genericDenialReason is the reason returned for every local rejection. The
// caller must not be able to distinguish a policy denial from a tripped
// honeypot, so the honeypot path reuses this exact string.
const genericDenialReason = "Message type not available"

const defaultAuthorityTimeout = 5 * time.Second

// Verdict is the external authority's answer to an evaluation request.
type Verdict struct {
	Authorized   bool
	EnforcedTier tier.Tier
	Reason       string
}

// Authority is the external policy engine the gate delegates decisions to.
type Authority interface {
	Evaluate(ctx context.Context, caller string, t tier.Tier, messageType, recipientIdentity string) (Verdict, error)
}

// Alert describes a security-relevant detection raised by the gate. Alerts
// travel on their own channel and are never reflected in the API response.
type Alert struct {
	MessageID   string
	Caller      string
	RequestID   string
	Tier        tier.Tier
	MessageType string
	Detail      string
}

// AlertSink receives security alerts. Implementations must be safe for
// concurrent use.
type AlertSink interface {
	RaiseAlert(ctx context.Context, alert Alert)
}

// Option customises gate behaviour.
type Option func(*Gate)

// WithHoneypotTypes replaces the set of honeypot message types.
func WithHoneypotTypes(types ...string) Option {
	return func(g *Gate) {
		set := make(map[string]struct{}, len(types))
		for _, t := range types {
			set[t] = struct{}{}
		}
		g.honeypots = set
	}
}

// WithAuthorityTimeout bounds how long a single authority evaluation may take.
func WithAuthorityTimeout(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// Gate wraps the external authority with the local honeypot side-channel.
type Gate struct {
	authority Authority
	alerts    AlertSink
	logger    zerolog.Logger
	honeypots map[string]struct{}
	timeout   time.Duration
}

// NewGate constructs a Gate. The authority dependency is required; the alert
// sink may be nil, in which case alerts are only logged.
func NewGate(authority Authority, alerts AlertSink, logger zerolog.Logger, opts ...Option) (*Gate, error) {
	if authority == nil {
		return nil, errors.New("authz: authority dependency is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	g := &Gate{
		authority: authority,
		alerts:    alerts,
		logger:    logger,
		honeypots: map[string]struct{}{
			// Passkey-only system: there are no passwords to reset, so any
			// request for this type is an attacker probing a retired flow.
			"password_reset": {},
		},
		timeout: defaultAuthorityTimeout,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	return g, nil
}

// Check evaluates a request. A non-nil error means the external authority was
// unreachable or faulted; that is a collaborator failure, not a rejection.
// The honeypot check runs before anything is returned: a honeypot type is
// unconditionally denied with the generic reason, raising exactly one alert,
// and the authority's verdict (and any authority error) is discarded so the
// response timing and shape match an ordinary denial.
func (g *Gate) Check(ctx context.Context, messageID string, req models.AuthRequest) (models.AuthResult, error) {
	evalCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	verdict, err := g.authority.Evaluate(evalCtx, req.CallerService, req.Tier, req.MessageType, req.RecipientIdentity)

	if _, tripped := g.honeypots[req.MessageType]; tripped {
		detail := fmt.Sprintf("honeypot message type %q requested by %s", req.MessageType, req.CallerService)
		alert := Alert{
			MessageID:   messageID,
			Caller:      req.CallerService,
			RequestID:   req.RequestID,
			Tier:        req.Tier,
			MessageType: req.MessageType,
			Detail:      detail,
		}
		g.logger.Warn().
			Str("message_id", messageID).
			Str("caller", req.CallerService).
			Str("request_id", req.RequestID).
			Str("tier", req.Tier.String()).
			Str("message_type", req.MessageType).
			Str("channel", "security-alert").
			Msg("authz: honeypot message type triggered; flagging calling service for review")
		if g.alerts != nil {
			g.alerts.RaiseAlert(ctx, alert)
		}
		return models.AuthResult{
			Authorized:    false,
			Reason:        genericDenialReason,
			SecurityAlert: true,
			AlertDetail:   detail,
		}, nil
	}

	if err != nil {
		return models.AuthResult{}, fmt.Errorf("authz: authority evaluation: %w", err)
	}

	if !verdict.Authorized {
		reason := verdict.Reason
		if reason == "" {
			reason = genericDenialReason
		}
		return models.AuthResult{Authorized: false, Reason: reason}, nil
	}

	enforced := verdict.EnforcedTier
	if !enforced.Valid() {
		// The authority approved without pinning a tier; fall back to the
		// requested one. Downstream stages only ever read the enforced tier.
		enforced = req.Tier
	}

	return models.AuthResult{Authorized: true, EnforcedTier: enforced}, nil
}
