// Package pipeline sequences every dispatch stage and is the single source of
// truth for acceptance and rejection. Each request runs the nine stages at
// most once, in order, and terminates at the first violated invariant.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/dispatch-service/internal/authz"
	"github.com/example/dispatch-service/internal/encrypt"
	"github.com/example/dispatch-service/internal/models"
	"github.com/example/dispatch-service/internal/recipient"
	"github.com/example/dispatch-service/internal/registry"
	"github.com/example/dispatch-service/internal/render"
	"github.com/example/dispatch-service/internal/tier"
	"github.com/example/dispatch-service/internal/transport"
)

const defaultTransportTimeout = 10 * time.Second

// Dependencies collects the collaborators a Pipeline needs. All fields except
// Logger and Now are required.
type Dependencies struct {
	Gate      *authz.Gate
	Resolver  *recipient.Resolver
	Registry  *registry.Registry
	Encryptor *encrypt.Gate
	Deliverer transport.Deliverer
	Logger    zerolog.Logger
	NewID     func() string
}

// Option customises pipeline behaviour.
type Option func(*Pipeline)

// WithTransportTimeout bounds the delivery handoff.
func WithTransportTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.transportTimeout = d
		}
	}
}

// Pipeline is the dispatch orchestrator. It holds no per-request state; a
// single instance serves any number of concurrent requests.
type Pipeline struct {
	gate      *authz.Gate
	resolver  *recipient.Resolver
	registry  *registry.Registry
	encryptor *encrypt.Gate
	deliverer transport.Deliverer
	logger    zerolog.Logger
	newID     func() string

	transportTimeout time.Duration
}

// New constructs a Pipeline, validating its dependencies up front so
// misconfiguration fails at startup rather than mid-request.
func New(deps Dependencies, opts ...Option) (*Pipeline, error) {
	if deps.Gate == nil {
		return nil, errors.New("pipeline: authorization gate dependency is required")
	}
	if deps.Resolver == nil {
		return nil, errors.New("pipeline: recipient resolver dependency is required")
	}
	if deps.Registry == nil {
		return nil, errors.New("pipeline: message type registry dependency is required")
	}
	if deps.Encryptor == nil {
		return nil, errors.New("pipeline: encryption gate dependency is required")
	}
	if deps.Deliverer == nil {
		return nil, errors.New("pipeline: deliverer dependency is required")
	}

	logger := deps.Logger
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	logger = logger.With().Str("component", "pipeline").Logger()

	newID := deps.NewID
	if newID == nil {
		newID = func() string { return uuid.NewString() }
	}

	p := &Pipeline{
		gate:             deps.Gate,
		resolver:         deps.Resolver,
		registry:         deps.Registry,
		encryptor:        deps.Encryptor,
		deliverer:        deps.Deliverer,
		logger:           logger,
		newID:            newID,
		transportTimeout: defaultTransportTimeout,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	return p, nil
}

// Process runs the full pipeline for one request. It never retries a stage;
// the result status distinguishes caller faults (rejected) from collaborator
// faults (error).
func (p *Pipeline) Process(ctx context.Context, req models.SendRequest) models.SendResult {
	// Stage 1: request schema. No message id exists yet, so these rejections
	// carry none.
	requestedTier, rejection := p.validateSchema(req)
	if rejection != nil {
		return *rejection
	}

	// The id is minted exactly once, before any external call, so later
	// stages and collaborator logs can all be correlated to it.
	messageID := p.newID()

	log := p.logger.With().
		Str("message_id", messageID).
		Str("caller", req.Caller.Service).
		Str("tier", requestedTier.String()).
		Str("message_type", req.MessageType).
		Logger()
	log.Info().Msg("pipeline: processing send request")

	// Stage 2: authorization plus the gate's honeypot side-channel.
	authResult, err := p.gate.Check(ctx, messageID, models.AuthRequest{
		CallerService:     req.Caller.Service,
		RequestID:         req.Caller.RequestID,
		Tier:              requestedTier,
		MessageType:       req.MessageType,
		RecipientIdentity: identityOf(req.Recipient),
	})
	if err != nil {
		return p.fail(log, messageID, "", models.CodeAuthUnavailable, err)
	}
	if !authResult.Authorized {
		return p.reject(log, messageID, "", models.CodeAuthDenied, authResult.Reason)
	}

	// From here on only the enforced tier is consulted; the requested tier is
	// never re-read.
	enforced := authResult.EnforcedTier

	// Stages 3 and 4: tier/recipient compatibility, then resolution with
	// restricted-tier pinning.
	resolution, err := p.resolver.Resolve(ctx, req.Recipient, enforced)
	if err != nil {
		switch {
		case errors.Is(err, recipient.ErrInvalidRecipient):
			return p.reject(log, messageID, enforced, models.CodeInvalidRecipient, err.Error())
		case errors.Is(err, recipient.ErrAddressMismatch):
			return p.reject(log, messageID, enforced, models.CodeRestrictedAddressMismatch, err.Error())
		case errors.Is(err, recipient.ErrNotFound):
			return p.reject(log, messageID, enforced, models.CodeRecipientNotFound, err.Error())
		default:
			return p.fail(log, messageID, enforced, models.CodeDirectoryUnavailable, err)
		}
	}

	// Stage 5: payload validation against the registry.
	if errs := p.registry.Validate(req.MessageType, enforced, req.Payload); len(errs) > 0 {
		code := models.CodePayloadValidationFailed
		if strings.HasPrefix(errs[0], "unknown message type") {
			code = models.CodeUnknownMessageType
		}
		return p.reject(log, messageID, enforced, code, strings.Join(errs, "; "))
	}

	// Stage 6: encryption decision.
	decision, err := encrypt.Decide(enforced, req.Options.EncryptionWaived, req.Options.WaiverToken)
	if err != nil {
		return p.reject(log, messageID, enforced, models.CodeWaiverTokenInvalid, err.Error())
	}
	shouldEncrypt := decision.Encrypt()

	// Stage 7: rendering. The renderer only ever produces a rich body when
	// the pipeline does not intend to encrypt.
	content, err := render.Render(req.MessageType, req.Payload, shouldEncrypt)
	if err != nil {
		// validate already guaranteed the type is registered, so this is a
		// programming error, not caller input.
		return p.fail(log, messageID, enforced, models.CodeInternalError, err)
	}

	// Stage 8: encryption application.
	bodyText := content.Text
	encrypted := false
	if shouldEncrypt {
		ciphertext, err := p.encryptor.Apply(ctx, content.Text, resolution.Identity)
		if err != nil {
			if errors.Is(err, encrypt.ErrNoKey) {
				return p.reject(log, messageID, enforced, models.CodeEncryptionKeyMissing, err.Error())
			}
			return p.fail(log, messageID, enforced, models.CodeKeyServiceUnavailable, err)
		}
		bodyText = ciphertext
		encrypted = true
	}

	bodyHTML := content.HTML
	if encrypted {
		// Invariant: an encrypted result never carries a rich body.
		bodyHTML = ""
	}

	// Stage 9: transport handoff.
	deliverCtx, cancel := context.WithTimeout(ctx, p.transportTimeout)
	defer cancel()

	msg := &transport.Message{
		ToAddress: resolution.Address,
		Subject:   content.Subject,
		BodyText:  bodyText,
		BodyHTML:  bodyHTML,
		MessageID: messageID,
		Encrypted: encrypted,
		Tier:      enforced,
	}
	if err := p.deliverer.Deliver(deliverCtx, msg); err != nil {
		log.Error().Err(err).Str("stage", "transport").Msg("pipeline: transport handoff failed")
		return models.SendResult{
			Status:       models.StatusError,
			MessageID:    messageID,
			EnforcedTier: enforced,
			Encrypted:    models.EncryptedFlag(encrypted),
			Error: &models.ErrorDetail{
				Code:    models.CodeSMTPUnavailable,
				Message: err.Error(),
			},
		}
	}

	log.Info().
		Str("enforced_tier", enforced.String()).
		Bool("encrypted", encrypted).
		Msg("pipeline: message queued")

	return models.SendResult{
		Status:       models.StatusQueued,
		MessageID:    messageID,
		EnforcedTier: enforced,
		Encrypted:    models.EncryptedFlag(encrypted),
	}
}

// validateSchema is stage 1. It returns the parsed requested tier or a
// terminal rejection.
func (p *Pipeline) validateSchema(req models.SendRequest) (tier.Tier, *models.SendResult) {
	if strings.TrimSpace(req.Caller.Service) == "" || strings.TrimSpace(req.Caller.RequestID) == "" {
		return "", schemaRejection("caller.service and caller.request_id are required")
	}

	requestedTier, err := tier.Parse(req.Tier)
	if err != nil {
		return "", schemaRejection(fmt.Sprintf("unknown tier: %q", req.Tier))
	}

	if req.Recipient.Type != models.RecipientEmail && req.Recipient.Type != models.RecipientIdentity {
		return "", schemaRejection(fmt.Sprintf(
			"recipient.type must be %q or %q", models.RecipientEmail, models.RecipientIdentity))
	}
	if strings.TrimSpace(req.Recipient.Value) == "" {
		return "", schemaRejection("recipient.value is required")
	}

	return requestedTier, nil
}

func schemaRejection(message string) *models.SendResult {
	return &models.SendResult{
		Status: models.StatusRejected,
		Error: &models.ErrorDetail{
			Code:    models.CodeInvalidSchema,
			Message: message,
		},
	}
}

func (p *Pipeline) reject(log zerolog.Logger, messageID string, enforced tier.Tier, code, message string) models.SendResult {
	log.Warn().
		Str("code", code).
		Str("reason", message).
		Msg("pipeline: request rejected")
	return models.SendResult{
		Status:       models.StatusRejected,
		MessageID:    messageID,
		EnforcedTier: enforced,
		Error: &models.ErrorDetail{
			Code:    code,
			Message: message,
		},
	}
}

func (p *Pipeline) fail(log zerolog.Logger, messageID string, enforced tier.Tier, code string, err error) models.SendResult {
	log.Error().
		Str("code", code).
		Err(err).
		Msg("pipeline: collaborator failure")
	return models.SendResult{
		Status:       models.StatusError,
		MessageID:    messageID,
		EnforcedTier: enforced,
		Error: &models.ErrorDetail{
			Code:    code,
			Message: err.Error(),
		},
	}
}

func identityOf(rec models.Recipient) string {
	if rec.IsIdentity() {
		return rec.Value
	}
	return ""
}
