package models

import "github.com/example/dispatch-service/internal/tier"

// Terminal statuses of a pipeline run.
const (
	StatusQueued   = "queued"
	StatusRejected = "rejected"
	StatusError    = "error"
)

// Rejection codes (client input or policy problems, HTTP 4xx semantics).
const (
	CodeInvalidSchema             = "invalid_schema"
	CodeAuthDenied                = "auth_denied"
	CodeInvalidRecipient          = "invalid_recipient"
	CodeRecipientNotFound         = "recipient_not_found"
	CodeRestrictedAddressMismatch = "restricted_address_mismatch"
	CodeUnknownMessageType        = "unknown_message_type"
	CodePayloadValidationFailed   = "payload_validation_failed"
	CodeWaiverTokenInvalid        = "waiver_token_invalid"
	CodeEncryptionKeyMissing      = "encryption_key_missing"
)

// Collaborator failure codes (downstream unavailability, HTTP 5xx semantics).
const (
	CodeAuthUnavailable       = "auth_unavailable"
	CodeDirectoryUnavailable  = "directory_unavailable"
	CodeKeyServiceUnavailable = "key_service_unavailable"
	CodeSMTPUnavailable       = "smtp_unavailable"
	CodeInternalError         = "internal_error"
)

// ErrorDetail is the nested error object carried by rejected and error
// results on the wire.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SendResult is the terminal outcome of a pipeline run. MessageID is populated
// only once an id has been minted, i.e. schema validation passed. Encrypted
// stays nil until the run reaches the encryption stage, so earlier rejections
// serialize without the field.
type SendResult struct {
	Status       string       `json:"status"`
	MessageID    string       `json:"message_id,omitempty"`
	EnforcedTier tier.Tier    `json:"enforced_tier,omitempty"`
	Encrypted    *bool        `json:"encrypted,omitempty"`
	Error        *ErrorDetail `json:"error,omitempty"`
}

// EncryptedFlag boxes v for the Encrypted field.
func EncryptedFlag(v bool) *bool {
	return &v
}

// WasEncrypted reports whether the body was encrypted before handoff.
func (r SendResult) WasEncrypted() bool {
	return r.Encrypted != nil && *r.Encrypted
}

// ErrorCode returns the nested error code, or "" for queued results.
func (r SendResult) ErrorCode() string {
	if r.Error == nil {
		return ""
	}
	return r.Error.Code
}

// ErrorMessage returns the nested error message, or "" for queued results.
func (r SendResult) ErrorMessage() string {
	if r.Error == nil {
		return ""
	}
	return r.Error.Message
}
