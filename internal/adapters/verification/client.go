package verification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/byteom/scanstation/internal/core/domain"
	"github.com/byteom/scanstation/internal/core/ports"
	"github.com/byteom/scanstation/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20
)

// Config configures a Client.
type Config struct {
	BaseURL string
	Token   string
	Profile domain.Profile
	Timeout time.Duration
}

// envelope is the response shape shared by every scan endpoint.
type envelope struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

// Client posts scanned payloads to the verification backend.
type Client struct {
	url      string
	token    string
	profile  domain.Profile
	endpoint profile
	client   *http.Client
}

// NewClient creates a client for the profile's endpoint. A nil httpClient
// gets an instrumented client with cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	endpoint, ok := profiles[cfg.Profile]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidProfile, cfg.Profile)
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("verification base url is required")
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Client{
		url:      strings.TrimRight(cfg.BaseURL, "/") + endpoint.path,
		token:    cfg.Token,
		profile:  cfg.Profile,
		endpoint: endpoint,
		client:   httpClient,
	}, nil
}

// Verify sends one payload. It never retries.
func (c *Client) Verify(ctx context.Context, payload string) (domain.ScanOutcome, error) {
	ctx, span := telemetry.Tracer("verification").Start(ctx, "verification.Verify")
	defer span.End()
	span.SetAttributes(attribute.String("scan.profile", string(c.profile)))

	outcome, err := c.verify(ctx, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return outcome, err
}

func (c *Client) verify(ctx context.Context, payload string) (domain.ScanOutcome, error) {
	body, err := json.Marshal(map[string]string{c.endpoint.field: payload})
	if err != nil {
		return domain.ScanOutcome{}, &domain.VerificationError{Kind: domain.FailureTransport, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return domain.ScanOutcome{}, &domain.VerificationError{Kind: domain.FailureTransport, Err: fmt.Errorf("build verify request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.ScanOutcome{}, &domain.VerificationError{Kind: domain.FailureTransport, Err: fmt.Errorf("verify request: %w", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return domain.ScanOutcome{}, &domain.VerificationError{Kind: domain.FailureTransport, StatusCode: resp.StatusCode, Err: fmt.Errorf("read verify response: %w", err)}
	}

	return c.classify(resp.StatusCode, raw)
}

// classify maps a response to an outcome or a typed failure.
func (c *Client) classify(status int, raw []byte) (domain.ScanOutcome, error) {
	ok2xx := status >= 200 && status < 300

	// Without an envelope a non-2xx is a transport problem.
	unparsed := func(reason string) error {
		if ok2xx {
			return &domain.VerificationError{Kind: domain.FailureMalformed, StatusCode: status, Err: errors.New(reason)}
		}
		return &domain.VerificationError{Kind: domain.FailureTransport, StatusCode: status, Err: fmt.Errorf("server returned %d: %s", status, reason)}
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return domain.ScanOutcome{}, unparsed("empty response body")
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return domain.ScanOutcome{}, unparsed("invalid json: " + err.Error())
	}
	if env.Success == nil {
		return domain.ScanOutcome{}, unparsed("response without success flag")
	}

	if !*env.Success {
		msg := env.Message
		if msg == "" {
			msg = env.Error
		}
		return domain.ScanOutcome{}, &domain.VerificationError{Kind: domain.FailureRejected, StatusCode: status, Message: msg}
	}

	if !ok2xx || len(env.Data) == 0 || string(env.Data) == "null" {
		return domain.ScanOutcome{}, &domain.VerificationError{
			Kind:       domain.FailureMalformed,
			StatusCode: status,
			Err:        errors.New("success response without data"),
		}
	}

	outcome, err := c.endpoint.decode(env.Data)
	if err != nil {
		return domain.ScanOutcome{}, &domain.VerificationError{Kind: domain.FailureMalformed, StatusCode: status, Err: err}
	}
	outcome.Message = env.Message
	return outcome, nil
}

var _ ports.Verifier = (*Client)(nil)
