// Package fcm is a client for the Firebase Cloud Messaging legacy HTTP
// API: it builds send payloads, posts them, and reconciles the
// provider's per-recipient results into a structured report.
package fcm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// DefaultEndpoint is the legacy HTTP send endpoint.
const DefaultEndpoint = "https://fcm.googleapis.com/fcm/send"

// Options carries the optional client knobs; the zero value is a
// working production configuration.
type Options struct {
	// Endpoint overrides DefaultEndpoint, used by tests and local
	// mock providers.
	Endpoint string
	// Timeout bounds each send attempt. Zero leaves the underlying
	// HTTP client's timeout untouched.
	Timeout time.Duration
	// Debug logs request and response summaries at debug level.
	Debug bool
	// Logger receives the client's log output. Nil means a no-op
	// logger, or a development logger when Debug is set.
	Logger *zap.Logger
	// HTTPClient replaces the default resty client, for callers that
	// manage transport settings themselves.
	HTTPClient *resty.Client
}

// Client sends messages through the legacy HTTP API. Each send is a
// single POST: no retries, no backoff.
type Client struct {
	apiKey   string
	endpoint string
	client   *resty.Client
	logger   *zap.Logger
	debug    bool
}

func New(apiKey string) (*Client, error) {
	return NewWithOptions(apiKey, Options{})
}

func NewWithOptions(apiKey string, opts Options) (*Client, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return nil, fmt.Errorf("api key is required")
	}

	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		if opts.Debug {
			debugLogger, err := zap.NewDevelopment()
			if err != nil {
				return nil, fmt.Errorf("build debug logger: %w", err)
			}
			logger = debugLogger
		} else {
			logger = zap.NewNop()
		}
	}

	client := opts.HTTPClient
	if client == nil {
		client = resty.New()
	}
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}
	client.SetRetryCount(0)

	return &Client{
		apiKey:   key,
		endpoint: endpoint,
		client:   client,
		logger:   logger,
		debug:    opts.Debug,
	}, nil
}

// SendData validates and sends a JSON message, then reconciles the
// provider's results against the addressed recipients.
func (c *Client) SendData(ctx context.Context, fields *Fields) (*Report, error) {
	payload, err := JSONPayload(fields)
	if err != nil {
		return nil, err
	}

	body, err := c.post(ctx, payload)
	if err != nil {
		return nil, err
	}

	var response Response
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("decode provider response: %w", err)
	}

	return Reconcile(fields.Recipients(), &response)
}

// SendNotification sends a display notification. The legacy API
// distinguishes notification and data sends only by which fields the
// caller set, so this is SendData under another name.
func (c *Client) SendNotification(ctx context.Context, fields *Fields) (*Report, error) {
	return c.SendData(ctx, fields)
}

// SendPlainText sends a form-encoded message and returns the raw
// response body. Plain-text sends have no structured per-recipient
// results, so nothing is reconciled.
func (c *Client) SendPlainText(ctx context.Context, fields *Fields) ([]byte, error) {
	payload, err := PlainTextPayload(fields)
	if err != nil {
		return nil, err
	}

	return c.post(ctx, payload)
}

func (c *Client) post(ctx context.Context, payload Payload) ([]byte, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("client is not initialized")
	}

	if c.debug {
		c.logger.Debug("sending fcm request",
			zap.String("endpoint", c.endpoint),
			zap.String("content_type", payload.ContentType()),
			zap.ByteString("body", payload.Body()),
		)
	}

	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", payload.ContentType()).
		SetHeader("Authorization", "key="+c.apiKey).
		SetBody(payload.Body()).
		Post(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("fcm request failed: %w", err)
	}

	statusCode := response.StatusCode()
	body := response.Body()

	if c.debug {
		c.logger.Debug("fcm response received",
			zap.Int("status", statusCode),
			zap.ByteString("body", body),
		)
	}

	switch statusCode {
	case http.StatusOK:
		return body, nil
	case http.StatusBadRequest:
		return nil, newProviderError(statusCode, ErrMalformedRequest, body)
	case http.StatusUnauthorized:
		return nil, newProviderError(statusCode, ErrAuthentication, body)
	case http.StatusServiceUnavailable:
		return nil, newProviderError(statusCode, ErrUnavailable, body)
	default:
		return nil, newProviderError(statusCode, ErrInternal, body)
	}
}
