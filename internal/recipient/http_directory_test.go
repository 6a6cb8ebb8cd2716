package recipient_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/example/dispatch-service/internal/recipient"
)

type stubHTTPClient struct {
	status  int
	body    string
	err     error
	lastURL string
}

func (c *stubHTTPClient) Do(req *http.Request) (*http.Response, error) {
	c.lastURL = req.URL.String()
	if c.err != nil {
		return nil, c.err
	}
	return &http.Response{
		StatusCode: c.status,
		Body:       io.NopCloser(strings.NewReader(c.body)),
		Header:     make(http.Header),
	}, nil
}

func newDirectory(t *testing.T, client *stubHTTPClient) *recipient.HTTPDirectory {
	t.Helper()
	dir, err := recipient.NewHTTPDirectory("http://auth-service:3006", zerolog.Nop(), recipient.WithHTTPClient(client))
	if err != nil {
		t.Fatalf("NewHTTPDirectory: %v", err)
	}
	return dir
}

func TestNewHTTPDirectoryRejectsBadBaseURL(t *testing.T) {
	for _, base := range []string{"", "   ", "ftp://auth", "auth-service"} {
		if _, err := recipient.NewHTTPDirectory(base, zerolog.Nop()); err == nil {
			t.Errorf("base URL %q should be rejected", base)
		}
	}
}

func TestAddressForResolvesAndNormalizes(t *testing.T) {
	client := &stubHTTPClient{status: http.StatusOK, body: `{"email":"Player@Example.Test"}`}
	dir := newDirectory(t, client)

	addr, err := dir.AddressFor(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("AddressFor: %v", err)
	}
	if addr != "player@example.test" {
		t.Fatalf("address = %q, want normalized lowercase", addr)
	}
	if client.lastURL != "http://auth-service:3006/users/user-1/email" {
		t.Fatalf("unexpected lookup URL %q", client.lastURL)
	}
}

func TestAddressForNotFound(t *testing.T) {
	dir := newDirectory(t, &stubHTTPClient{status: http.StatusNotFound, body: `{"error":"no such user"}`})

	_, err := dir.AddressFor(context.Background(), "ghost")
	if !errors.Is(err, recipient.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestAddressForEmptyEmailIsAMiss(t *testing.T) {
	dir := newDirectory(t, &stubHTTPClient{status: http.StatusOK, body: `{"email":""}`})

	_, err := dir.AddressFor(context.Background(), "user-1")
	if !errors.Is(err, recipient.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestAddressForServerErrorIsAFault(t *testing.T) {
	dir := newDirectory(t, &stubHTTPClient{status: http.StatusInternalServerError, body: "boom"})

	_, err := dir.AddressFor(context.Background(), "user-1")
	if err == nil {
		t.Fatal("expected an error")
	}
	if errors.Is(err, recipient.ErrNotFound) {
		t.Fatal("a 5xx must not be treated as a definitive miss")
	}
}

func TestAddressForTransportErrorIsAFault(t *testing.T) {
	dir := newDirectory(t, &stubHTTPClient{err: errors.New("dial tcp: connection refused")})

	_, err := dir.AddressFor(context.Background(), "user-1")
	if err == nil {
		t.Fatal("expected an error")
	}
	if errors.Is(err, recipient.ErrNotFound) {
		t.Fatal("a transport failure must not be treated as a definitive miss")
	}
}
