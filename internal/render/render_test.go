package render_test

import (
	"strings"
	"testing"

	"github.com/example/dispatch-service/internal/render"
)

func TestRenderUnknownTypeFailsLoudly(t *testing.T) {
	if _, err := render.Render("newsletter", nil, false); err == nil {
		t.Fatal("rendering an unregistered type must return an error")
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	payload := map[string]any{
		"inviter_name": "ada",
		"table_name":   "high-rollers",
		"join_url":     "https://example.test/join/1",
	}

	first, err := render.Render("game_invite", payload, false)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	second, err := render.Render("game_invite", payload, false)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if first != second {
		t.Error("identical inputs must produce identical output")
	}

	if payload["inviter_name"] != "ada" {
		t.Error("rendering must not mutate the payload")
	}
}

func TestRenderEncryptedPrependsNoticeAndDropsHTML(t *testing.T) {
	payload := map[string]any{
		"verification_url": "https://example.test/verify/abc",
		"expires_in":       "24 hours",
	}

	plain, err := render.Render("verify_email", payload, false)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if plain.HTML == "" {
		t.Error("verify_email should produce a rich body when not encrypting")
	}
	if strings.Contains(plain.Text, render.EncryptedNotice) {
		t.Error("unencrypted render must not carry the encrypted notice")
	}

	enc, err := render.Render("verify_email", payload, true)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.HasPrefix(enc.Text, render.EncryptedNotice) {
		t.Error("encrypted render must prepend the notice to the text body")
	}
	if enc.HTML != "" {
		t.Error("encrypted render must never carry a rich body")
	}
	if enc.Subject != plain.Subject {
		t.Error("encryption must not change the subject")
	}
}

func TestRenderGameResultFormatsNetChange(t *testing.T) {
	win, err := render.Render("game_result_notify", map[string]any{
		"result":     "win",
		"net_change": 125.5,
	}, false)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(win.Subject, "WIN") {
		t.Errorf("subject should contain upper-cased result, got %q", win.Subject)
	}
	if !strings.Contains(win.Text, "Net change: +125.5") {
		t.Errorf("positive change should carry an explicit sign, got %q", win.Text)
	}

	loss, err := render.Render("game_result_notify", map[string]any{
		"result":     "loss",
		"net_change": -40,
	}, false)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(loss.Text, "Net change: -40") {
		t.Errorf("negative change should keep its sign, got %q", loss.Text)
	}
}

func TestRenderTransactionReceiptHasNoRichBody(t *testing.T) {
	content, err := render.Render("transaction_receipt", map[string]any{
		"transaction_id": "tx-1",
		"amount":         "100",
		"type":           "deposit",
		"timestamp":      "2026-01-02T03:04:05Z",
		"balance_after":  "350",
	}, false)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if content.HTML != "" {
		t.Error("transaction_receipt never produces a rich body")
	}
	if !strings.Contains(content.Subject, "DEPOSIT") {
		t.Errorf("subject should include the transaction type, got %q", content.Subject)
	}
}
