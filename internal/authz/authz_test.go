package authz_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/dispatch-service/internal/authz"
	"github.com/example/dispatch-service/internal/models"
	"github.com/example/dispatch-service/internal/tier"
)

type stubAuthority struct {
	verdict authz.Verdict
	err     error

	mu    sync.Mutex
	calls int
}

func (s *stubAuthority) Evaluate(_ context.Context, _ string, _ tier.Tier, _ string, _ string) (authz.Verdict, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.verdict, s.err
}

type alertCollector struct {
	mu     sync.Mutex
	alerts []authz.Alert
}

func (c *alertCollector) RaiseAlert(_ context.Context, alert authz.Alert) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, alert)
}

func (c *alertCollector) collected() []authz.Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]authz.Alert, len(c.alerts))
	copy(out, c.alerts)
	return out
}

func newGate(t *testing.T, authority authz.Authority, sink authz.AlertSink, opts ...authz.Option) *authz.Gate {
	t.Helper()
	gate, err := authz.NewGate(authority, sink, zerolog.Nop(), opts...)
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	return gate
}

func TestCheckAuthorizedCarriesEnforcedTier(t *testing.T) {
	authority := &stubAuthority{verdict: authz.Verdict{Authorized: true, EnforcedTier: tier.Social}}
	gate := newGate(t, authority, nil)

	result, err := gate.Check(context.Background(), "msg-1", models.AuthRequest{
		CallerService: "game-state",
		RequestID:     "req-1",
		Tier:          tier.Personal,
		MessageType:   "game_invite",
	})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !result.Authorized {
		t.Fatal("expected authorization")
	}
	if result.EnforcedTier != tier.Social {
		t.Fatalf("enforced tier = %q, want the authority's pinned tier", result.EnforcedTier)
	}
}

func TestCheckFallsBackToRequestedTier(t *testing.T) {
	authority := &stubAuthority{verdict: authz.Verdict{Authorized: true}}
	gate := newGate(t, authority, nil)

	result, err := gate.Check(context.Background(), "msg-1", models.AuthRequest{
		CallerService: "game-state",
		Tier:          tier.Personal,
		MessageType:   "session_summary",
	})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if result.EnforcedTier != tier.Personal {
		t.Fatalf("enforced tier = %q, want requested tier fallback", result.EnforcedTier)
	}
}

func TestCheckDeniedKeepsAuthorityReason(t *testing.T) {
	authority := &stubAuthority{verdict: authz.Verdict{Authorized: false, Reason: "not permitted"}}
	gate := newGate(t, authority, nil)

	result, err := gate.Check(context.Background(), "msg-1", models.AuthRequest{
		CallerService: "chat-service",
		Tier:          tier.Restricted,
		MessageType:   "transaction_receipt",
	})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if result.Authorized {
		t.Fatal("expected denial")
	}
	if result.Reason != "not permitted" {
		t.Fatalf("reason = %q", result.Reason)
	}
	if result.SecurityAlert {
		t.Fatal("ordinary denial must not flag a security alert")
	}
}

func TestCheckAuthorityFaultIsAnError(t *testing.T) {
	authority := &stubAuthority{err: errors.New("connection refused")}
	gate := newGate(t, authority, nil)

	_, err := gate.Check(context.Background(), "msg-1", models.AuthRequest{
		CallerService: "game-state",
		Tier:          tier.Social,
		MessageType:   "game_invite",
	})
	if err == nil {
		t.Fatal("authority fault must surface as an error, not a denial")
	}
}

func TestHoneypotDenialIsGenericAndRaisesOneAlert(t *testing.T) {
	// Authority approval is irrelevant for honeypot types.
	authority := &stubAuthority{verdict: authz.Verdict{Authorized: true, EnforcedTier: tier.System}}
	sink := &alertCollector{}
	gate := newGate(t, authority, sink)

	result, err := gate.Check(context.Background(), "msg-7", models.AuthRequest{
		CallerService: "auth-service",
		RequestID:     "req-7",
		Tier:          tier.System,
		MessageType:   "password_reset",
	})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if result.Authorized {
		t.Fatal("honeypot type must always be denied")
	}
	if result.Reason != "Message type not available" {
		t.Fatalf("honeypot denial must use the generic reason, got %q", result.Reason)
	}
	if !result.SecurityAlert {
		t.Fatal("honeypot denial must flag a security alert")
	}

	alerts := sink.collected()
	if len(alerts) != 1 {
		t.Fatalf("expected exactly one alert, got %d", len(alerts))
	}
	if alerts[0].MessageID != "msg-7" || alerts[0].Caller != "auth-service" {
		t.Fatalf("alert not correlated to the request: %+v", alerts[0])
	}
}

func TestHoneypotDiscardsAuthorityError(t *testing.T) {
	authority := &stubAuthority{err: errors.New("policy engine down")}
	sink := &alertCollector{}
	gate := newGate(t, authority, sink)

	result, err := gate.Check(context.Background(), "msg-8", models.AuthRequest{
		CallerService: "game-state",
		Tier:          tier.System,
		MessageType:   "password_reset",
	})
	if err != nil {
		t.Fatalf("honeypot check must not surface authority faults: %v", err)
	}
	if result.Authorized || !result.SecurityAlert {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(sink.collected()) != 1 {
		t.Fatal("expected exactly one alert")
	}
}

func TestWithHoneypotTypesReplacesDefaults(t *testing.T) {
	authority := &stubAuthority{verdict: authz.Verdict{Authorized: true, EnforcedTier: tier.System}}
	sink := &alertCollector{}
	gate := newGate(t, authority, sink, authz.WithHoneypotTypes("account_takeover"))

	// password_reset no longer trips the side-channel.
	result, err := gate.Check(context.Background(), "msg-9", models.AuthRequest{
		CallerService: "auth-service",
		Tier:          tier.System,
		MessageType:   "password_reset",
	})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !result.Authorized {
		t.Fatal("replaced honeypot set should let password_reset through to the authority")
	}
	if len(sink.collected()) != 0 {
		t.Fatal("no alert expected for a non-honeypot type")
	}
}

func TestCheckAppliesAuthorityTimeout(t *testing.T) {
	slow := authorityFunc(func(ctx context.Context) (authz.Verdict, error) {
		select {
		case <-ctx.Done():
			return authz.Verdict{}, ctx.Err()
		case <-time.After(200 * time.Millisecond):
			return authz.Verdict{Authorized: true, EnforcedTier: tier.System}, nil
		}
	})
	gate := newGate(t, slow, nil, authz.WithAuthorityTimeout(10*time.Millisecond))

	_, err := gate.Check(context.Background(), "msg-10", models.AuthRequest{
		CallerService: "auth-service",
		Tier:          tier.System,
		MessageType:   "verify_email",
	})
	if err == nil {
		t.Fatal("expected a timeout error from the bounded authority call")
	}
}

type authorityFunc func(ctx context.Context) (authz.Verdict, error)

func (f authorityFunc) Evaluate(ctx context.Context, _ string, _ tier.Tier, _ string, _ string) (authz.Verdict, error) {
	return f(ctx)
}

func TestStaticAuthorityAppliesCallerPolicy(t *testing.T) {
	authority := authz.NewStaticAuthority(authz.DefaultCallerPolicy(), zerolog.Nop())

	verdict, err := authority.Evaluate(context.Background(), "bank-service", tier.Restricted, "transaction_receipt", "user-1")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !verdict.Authorized || verdict.EnforcedTier != tier.Restricted {
		t.Fatalf("bank-service should send restricted: %+v", verdict)
	}

	verdict, err = authority.Evaluate(context.Background(), "chat-service", tier.Restricted, "transaction_receipt", "")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if verdict.Authorized {
		t.Fatal("chat-service must not send restricted")
	}

	verdict, err = authority.Evaluate(context.Background(), "unknown-service", tier.Social, "game_invite", "")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if verdict.Authorized {
		t.Fatal("unregistered callers must be denied")
	}
}
