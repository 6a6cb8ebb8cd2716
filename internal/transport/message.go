// Package transport delivers finished messages. It is the only package that
// knows about SMTP; everything above it speaks Message and nothing else.
package transport

import (
	"context"

	"github.com/example/dispatch-service/internal/tier"
)

// Message is the normalized envelope handed to a Deliverer. The transport has
// no knowledge of what tiers mean; the tag is carried through for audit only.
// BodyHTML is mutually exclusive with encryption: the pipeline never attaches
// a rich body to an encrypted message.
type Message struct {
	ToAddress string
	Subject   string
	BodyText  string
	BodyHTML  string
	MessageID string
	Encrypted bool
	Tier      tier.Tier
}

// Deliverer is the delivery collaborator contract. A nil error means the
// message was accepted for delivery, not that it was delivered.
type Deliverer interface {
	Deliver(ctx context.Context, msg *Message) error
}
