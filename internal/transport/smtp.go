package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/dispatch-service/internal/config"
)

// SMTPOption configures the SMTP deliverer.
type SMTPOption func(*SMTPDeliverer)

// WithTLSConfig overrides the TLS configuration used when negotiating STARTTLS.
func WithTLSConfig(cfg *tls.Config) SMTPOption {
	return func(d *SMTPDeliverer) {
		d.tlsConfig = cfg
	}
}

// WithDialer swaps the network dialer used to establish SMTP connections.
func WithDialer(dialer Dialer) SMTPOption {
	return func(d *SMTPDeliverer) {
		if dialer != nil {
			d.dialer = dialer
		}
	}
}

// WithAuth supplies a custom SMTP auth strategy. When omitted the deliverer
// uses the credentials from the supplied configuration.
func WithAuth(auth smtp.Auth) SMTPOption {
	return func(d *SMTPDeliverer) {
		d.auth = auth
	}
}

// WithClock replaces the clock used for the Date header.
func WithClock(now func() time.Time) SMTPOption {
	return func(d *SMTPDeliverer) {
		if now != nil {
			d.now = now
		}
	}
}

// WithHelloName customises the EHLO/HELO identity presented to the server.
func WithHelloName(name string) SMTPOption {
	return func(d *SMTPDeliverer) {
		if strings.TrimSpace(name) != "" {
			d.helloName = strings.TrimSpace(name)
		}
	}
}

// Dialer abstracts net.Dialer to simplify testing.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// SMTPDeliverer implements Deliverer against a real SMTP backend. For dev the
// backend is MailHog with no auth; for production, point it at a relay and
// set credentials plus STARTTLS.
type SMTPDeliverer struct {
	logger    zerolog.Logger
	host      string
	port      int
	from      string
	useTLS    bool
	auth      smtp.Auth
	tlsConfig *tls.Config
	dialer    Dialer
	now       func() time.Time
	helloName string
}

// NewSMTPDeliverer constructs a Deliverer backed by an SMTP server.
func NewSMTPDeliverer(cfg config.SMTPConfig, logger zerolog.Logger, opts ...SMTPOption) (*SMTPDeliverer, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("smtp transport: host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("smtp transport: invalid port %d", cfg.Port)
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("smtp transport: from address is required")
	}

	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	d := &SMTPDeliverer{
		logger:    logger,
		host:      cfg.Host,
		port:      cfg.Port,
		from:      strings.TrimSpace(cfg.From),
		useTLS:    cfg.UseTLS,
		dialer:    &net.Dialer{Timeout: 30 * time.Second},
		now:       time.Now,
		helloName: "localhost",
	}

	if strings.TrimSpace(cfg.User) != "" {
		d.auth = smtp.PlainAuth("", cfg.User, cfg.Pass, cfg.Host)
	}

	d.tlsConfig = &tls.Config{
		ServerName: cfg.Host,
		MinVersion: tls.VersionTLS12,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}

	return d, nil
}

// Deliver sends the message over SMTP. Success means the server accepted the
// message, not that it reached the recipient.
func (d *SMTPDeliverer) Deliver(ctx context.Context, msg *Message) error {
	if msg == nil {
		return errors.New("smtp transport: message is required")
	}

	to, err := normalizeEnvelopeAddress(msg.ToAddress)
	if err != nil {
		return fmt.Errorf("smtp transport: invalid destination address: %w", err)
	}
	from, err := normalizeEnvelopeAddress(d.from)
	if err != nil {
		return fmt.Errorf("smtp transport: invalid from address: %w", err)
	}

	raw, err := d.buildMIME(msg)
	if err != nil {
		return err
	}

	if err := d.send(ctx, from, to, raw); err != nil {
		return err
	}

	d.logger.Info().
		Str("message_id", msg.MessageID).
		Str("to", to).
		Str("subject", msg.Subject).
		Str("tier", msg.Tier.String()).
		Bool("encrypted", msg.Encrypted).
		Msg("smtp transport: message accepted")

	return nil
}

func (d *SMTPDeliverer) send(ctx context.Context, from, to string, raw []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := net.JoinHostPort(d.host, strconv.Itoa(d.port))
	conn, err := d.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp transport: dial: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	defer close(done)

	client, err := smtp.NewClient(conn, d.host)
	if err != nil {
		return fmt.Errorf("smtp transport: new client: %w", err)
	}
	defer client.Close()

	if err := client.Hello(d.helloName); err != nil {
		return fmt.Errorf("smtp transport: hello: %w", err)
	}

	if d.useTLS {
		if cfg := d.sessionTLSConfig(); cfg != nil {
			if ok, _ := client.Extension("STARTTLS"); ok {
				if err := client.StartTLS(cfg); err != nil {
					return fmt.Errorf("smtp transport: starttls: %w", err)
				}
			}
		}
	}

	if d.auth != nil {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(d.auth); err != nil {
				return fmt.Errorf("smtp transport: auth: %w", err)
			}
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("smtp transport: mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp transport: rcpt to %s: %w", to, err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp transport: data: %w", err)
	}
	if _, err := writer.Write(raw); err != nil {
		_ = writer.Close()
		return fmt.Errorf("smtp transport: data write: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("smtp transport: data close: %w", err)
	}

	if err := client.Quit(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("smtp transport: quit: %w", err)
	}

	return ctx.Err()
}

// buildMIME renders the message as either a simple text/plain body or a
// multipart/alternative with text and HTML parts when a rich body exists.
func (d *SMTPDeliverer) buildMIME(msg *Message) ([]byte, error) {
	headers := map[string]string{
		"From":                 d.from,
		"To":                   msg.ToAddress,
		"Subject":              sanitizeHeaderValue(msg.Subject),
		"Date":                 d.now().UTC().Format(time.RFC1123Z),
		"MIME-Version":         "1.0",
		"Message-Id":           fmt.Sprintf("<%s@%s>", msg.MessageID, domainOf(d.from)),
		"X-Message-ID":         msg.MessageID,
		"X-Dispatch-Tier":      msg.Tier.String(),
		"X-Dispatch-Encrypted": strconv.FormatBool(msg.Encrypted),
	}

	var buf bytes.Buffer
	body := &bytes.Buffer{}

	if msg.BodyHTML != "" {
		mp := multipart.NewWriter(body)
		headers["Content-Type"] = "multipart/alternative; boundary=" + mp.Boundary()

		textPart, err := mp.CreatePart(textproto.MIMEHeader{
			"Content-Type": []string{"text/plain; charset=UTF-8"},
		})
		if err != nil {
			return nil, fmt.Errorf("smtp transport: text part: %w", err)
		}
		if _, err := textPart.Write([]byte(normalizeBody(msg.BodyText))); err != nil {
			return nil, fmt.Errorf("smtp transport: text part write: %w", err)
		}

		htmlPart, err := mp.CreatePart(textproto.MIMEHeader{
			"Content-Type": []string{"text/html; charset=UTF-8"},
		})
		if err != nil {
			return nil, fmt.Errorf("smtp transport: html part: %w", err)
		}
		if _, err := htmlPart.Write([]byte(normalizeBody(msg.BodyHTML))); err != nil {
			return nil, fmt.Errorf("smtp transport: html part write: %w", err)
		}

		if err := mp.Close(); err != nil {
			return nil, fmt.Errorf("smtp transport: close multipart: %w", err)
		}
	} else {
		headers["Content-Type"] = "text/plain; charset=UTF-8"
		body.WriteString(normalizeBody(msg.BodyText))
	}

	keys := make([]string, 0, len(headers))
	for key := range headers {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := headers[key]
		if value == "" {
			continue
		}
		buf.WriteString(key)
		buf.WriteString(": ")
		buf.WriteString(value)
		buf.WriteString("\r\n")
	}
	buf.WriteString("\r\n")
	buf.Write(body.Bytes())

	return buf.Bytes(), nil
}

func (d *SMTPDeliverer) sessionTLSConfig() *tls.Config {
	if d.tlsConfig == nil {
		return nil
	}
	cfg := d.tlsConfig.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = d.host
	}
	return cfg
}

func domainOf(address string) string {
	if idx := strings.LastIndex(address, "@"); idx >= 0 && idx < len(address)-1 {
		return address[idx+1:]
	}
	return "localhost"
}

func normalizeBody(body string) string {
	if body == "" {
		return ""
	}
	normalized := strings.ReplaceAll(body, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	return strings.ReplaceAll(normalized, "\n", "\r\n")
}

func sanitizeHeaderValue(value string) string {
	clean := strings.ReplaceAll(value, "\r", " ")
	clean = strings.ReplaceAll(clean, "\n", " ")
	return strings.TrimSpace(clean)
}

func normalizeEnvelopeAddress(value string) (string, error) {
	addr, err := mail.ParseAddress(value)
	if err != nil {
		return "", err
	}
	if addr.Address == "" {
		return "", errors.New("empty address")
	}
	return addr.Address, nil
}
