// Package render maps validated payloads to message content. Rendering is a
// pure function of its arguments: no I/O, no tier knowledge, no payload
// mutation, and identical inputs always produce byte-identical output.
package render

import (
	"fmt"
	"strconv"
	"strings"
)

// EncryptedNotice is prepended to the plain-text body when the pipeline
// intends to encrypt. The rich body is never produced in that case.
const EncryptedNotice = "\n[This message is encrypted end-to-end]\n"

// Content is the rendered output for a message. HTML is empty for most
// message types; it is only produced where it meaningfully improves
// readability, and never when the body will be encrypted.
type Content struct {
	Subject string
	Text    string
	HTML    string
}

type renderFunc func(payload map[string]any) Content

var renderers = map[string]renderFunc{
	"verify_email":        renderVerifyEmail,
	"magic_link":          renderMagicLink,
	"password_reset":      renderPasswordReset,
	"game_invite":         renderGameInvite,
	"game_result_notify":  renderGameResultNotify,
	"session_summary":     renderSessionSummary,
	"account_flag_notice": renderAccountFlagNotice,
	"transaction_receipt": renderTransactionReceipt,
}

// Render produces the subject, plain-text body and optional rich body for a
// message type. Calling Render with a type that is not in the registry is a
// programming error: payload validation must already have rejected it, so the
// call fails loudly instead of returning a partial result.
func Render(messageType string, payload map[string]any, wasEncrypted bool) (Content, error) {
	fn, ok := renderers[messageType]
	if !ok {
		return Content{}, fmt.Errorf("render: no renderer registered for message type %q", messageType)
	}

	content := fn(payload)
	if wasEncrypted {
		content.Text = EncryptedNotice + content.Text
		content.HTML = ""
	}
	return content, nil
}

func str(payload map[string]any, key string) string {
	value, ok := payload[key]
	if !ok || value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprint(value)
}

func num(payload map[string]any, key string) float64 {
	switch v := payload[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func signed(n float64) string {
	if n >= 0 {
		return fmt.Sprintf("+%v", trimFloat(n))
	}
	return trimFloat(n)
}

func trimFloat(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

func renderVerifyEmail(p map[string]any) Content {
	url := str(p, "verification_url")
	expires := str(p, "expires_in")
	text := "Please verify your email address by clicking the link below.\n\n" +
		url + "\n\n" +
		"This link expires in " + expires + ".\n\n" +
		"Note: This is a one-time verification link. " +
		"Future logins use your registered email, no passwords."
	inner := fmt.Sprintf(verifyEmailInner, url, expires, url)
	return Content{
		Subject: "Verify your Swarm Blackjack account",
		Text:    text,
		HTML:    htmlWrap("Verify your Swarm Blackjack account", inner),
	}
}

func renderMagicLink(p map[string]any) Content {
	url := str(p, "magic_url")
	expires := str(p, "expires_in")
	text := "Click the link below to complete your account setup.\n\n" +
		url + "\n\n" +
		"This link expires in " + expires + " and can only be used once."
	inner := fmt.Sprintf(magicLinkInner, url, expires)
	return Content{
		Subject: "Your Swarm Blackjack setup link",
		Text:    text,
		HTML:    htmlWrap("Your Swarm Blackjack setup link", inner),
	}
}

// renderPasswordReset exists only so the honeypot type has a registered
// renderer. The authorization gate rejects the message long before rendering.
func renderPasswordReset(p map[string]any) Content {
	return Content{
		Subject: "Password reset",
		Text: "[This message type is a honeypot and should never render]\n\n" +
			str(p, "reset_url"),
	}
}

func renderGameInvite(p map[string]any) Content {
	inviter := str(p, "inviter_name")
	return Content{
		Subject: inviter + " invited you to a game",
		Text: inviter + " has invited you to join their table: " + str(p, "table_name") + "\n\n" +
			"Join here: " + str(p, "join_url"),
	}
}

func renderGameResultNotify(p map[string]any) Content {
	result := strings.ToUpper(str(p, "result"))
	change := num(p, "net_change")
	return Content{
		Subject: "Game result: " + result,
		Text: "Your recent game has concluded.\n\n" +
			"Result: " + result + "\n" +
			"Net change: " + signed(change) + "\n\n" +
			"Log in to view your full session history.",
	}
}

func renderSessionSummary(p map[string]any) Content {
	net := num(p, "net_result")
	return Content{
		Subject: "Your session summary",
		Text: "Session Summary\n---------------\n" +
			"Hands played : " + str(p, "hands_played") + "\n" +
			"Net result   : " + signed(net) + "\n" +
			"Started      : " + str(p, "session_start") + "\n" +
			"Ended        : " + str(p, "session_end") + "\n\n" +
			"This summary is for your records only.",
	}
}

func renderAccountFlagNotice(p map[string]any) Content {
	return Content{
		Subject: "Important notice regarding your account",
		Text: "An action has been taken on your Swarm Blackjack account.\n\n" +
			"Reason      : " + str(p, "reason") + "\n" +
			"Action taken: " + str(p, "action_taken") + "\n\n" +
			"If you believe this is in error, please contact support.",
	}
}

func renderTransactionReceipt(p map[string]any) Content {
	return Content{
		Subject: "Transaction receipt: " + strings.ToUpper(str(p, "type")),
		Text: "Transaction Receipt\n-------------------\n" +
			"Transaction ID : " + str(p, "transaction_id") + "\n" +
			"Type           : " + str(p, "type") + "\n" +
			"Amount         : " + str(p, "amount") + "\n" +
			"Timestamp      : " + str(p, "timestamp") + "\n" +
			"Balance after  : " + str(p, "balance_after") + "\n\n" +
			"If you did not authorize this transaction, contact support immediately.",
	}
}
