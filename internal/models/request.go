package models

import "github.com/example/dispatch-service/internal/tier"

// Recipient kinds accepted on a send request.
const (
	RecipientEmail    = "email"
	RecipientIdentity = "identity_reference"
)

// Caller identifies the service issuing a send request together with its own
// correlation id.
type Caller struct {
	Service   string `json:"service"`
	RequestID string `json:"request_id"`
}

// Recipient describes who the message is for: either a literal email address
// or a reference into the identity directory.
type Recipient struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Options carries the caller-controlled knobs of a send request.
type Options struct {
	EncryptionWaived bool   `json:"encryption_waived"`
	WaiverToken      string `json:"waiver_token,omitempty"`
}

// SendRequest is the normalized form of a dispatch request. It is constructed
// once at the edge (HTTP handler or Kafka ingress) and treated as immutable by
// every pipeline stage.
type SendRequest struct {
	Caller      Caller         `json:"caller"`
	Tier        string         `json:"tier"`
	MessageType string         `json:"message_type"`
	Recipient   Recipient      `json:"recipient"`
	Payload     map[string]any `json:"payload"`
	Options     Options        `json:"options"`
}

// IsIdentity reports whether the recipient is an identity reference.
func (r Recipient) IsIdentity() bool { return r.Type == RecipientIdentity }

// AuthRequest is the question put to the authorization gate.
type AuthRequest struct {
	CallerService     string
	RequestID         string
	Tier              tier.Tier
	MessageType       string
	RecipientIdentity string // empty for literal email recipients
}

// AuthResult is the gate's answer. EnforcedTier is the tier the rest of the
// pipeline must use; downstream stages never re-read the requested tier.
type AuthResult struct {
	Authorized    bool
	EnforcedTier  tier.Tier
	Reason        string
	SecurityAlert bool
	AlertDetail   string
}
