package recipient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/dispatch-service/internal/util"
)

// HTTPClient abstracts the http.Client Do method for easier testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DirectoryOption customises the HTTP directory client.
type DirectoryOption func(*HTTPDirectory)

// WithHTTPClient overrides the HTTP client used to reach the auth service.
func WithHTTPClient(client HTTPClient) DirectoryOption {
	return func(d *HTTPDirectory) {
		if client != nil {
			d.httpClient = client
		}
	}
}

// WithBodyLimit adjusts how many bytes are read from a directory response.
func WithBodyLimit(limit int64) DirectoryOption {
	return func(d *HTTPDirectory) {
		if limit > 0 {
			d.maxBodyBytes = limit
		}
	}
}

// HTTPDirectory resolves identities through the auth service, which owns the
// user registry. Lookups are expected to be wrapped with a bounded timeout by
// the caller (the Resolver does this).
type HTTPDirectory struct {
	logger       zerolog.Logger
	baseURL      string
	httpClient   HTTPClient
	maxBodyBytes int64
}

// NewHTTPDirectory constructs a directory client for the given auth-service
// base URL.
func NewHTTPDirectory(baseURL string, logger zerolog.Logger, opts ...DirectoryOption) (*HTTPDirectory, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("recipient: directory base URL is required")
	}
	validated, err := util.ValidateHTTPURL(baseURL)
	if err != nil {
		return nil, fmt.Errorf("recipient: directory base URL: %w", err)
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	d := &HTTPDirectory{
		logger:       logger,
		baseURL:      strings.TrimRight(validated, "/"),
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		maxBodyBytes: 16 * 1024,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d, nil
}

// AddressFor implements Directory via GET {base}/users/{identity}/email.
// A 404 is a definitive miss and maps to ErrNotFound; every other failure is
// a collaborator fault.
func (d *HTTPDirectory) AddressFor(ctx context.Context, identity string) (string, error) {
	if strings.TrimSpace(identity) == "" {
		return "", fmt.Errorf("%w: empty identity", ErrNotFound)
	}

	endpoint := fmt.Sprintf("%s/users/%s/email", d.baseURL, url.PathEscape(identity))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("recipient: build directory request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("recipient: directory request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("recipient: read directory response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("recipient: directory returned status %d", resp.StatusCode)
	}

	var payload struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("recipient: decode directory response: %w", err)
	}
	if strings.TrimSpace(payload.Email) == "" {
		return "", ErrNotFound
	}

	address, err := util.NormalizeEmail(strings.TrimSpace(payload.Email))
	if err != nil {
		return "", fmt.Errorf("recipient: directory returned malformed address: %w", err)
	}

	d.logger.Debug().
		Str("identity", identity).
		Str("address", address).
		Msg("recipient: identity resolved")

	return address, nil
}
