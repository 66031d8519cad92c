// Package hubspot is a small client for the HubSpot CRM v3 REST API covering
// what the sync needs: property metadata, search, paged listing, single and
// batch writes, owners and pipelines.
//
// Every request passes a static rate limiter and a circuit breaker. Errors
// are classified into the apperr taxonomy: a 409 or a message saying the
// record already exists becomes *apperr.ConflictError, a 404 matches
// ErrNotFound, anything else is *apperr.TransportError.
package hubspot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/johnwards/hubsync/internal/domain"
	"github.com/johnwards/hubsync/internal/logging"
)

// DefaultBaseURL is the production API host.
const DefaultBaseURL = "https://api.hubapi.com"

// DefaultRequestsPerSecond keeps a single run below the private-app burst
// limit.
const DefaultRequestsPerSecond = 9

// Options configures a Client.
type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// RequestsPerSecond caps the request rate; 0 disables the limiter.
	RequestsPerSecond float64
	// FailureThreshold is the number of consecutive server or network
	// failures that opens the breaker. Default 5.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open. Default 30s.
	OpenTimeout time.Duration
	HTTPClient  *http.Client
	// OnRequest is called after every request with the operation name and
	// the HTTP status (0 when no response was received).
	OnRequest func(operation string, status int)
}

// Client talks to the HubSpot API.
type Client struct {
	baseURL   string
	token     string
	http      *http.Client
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker[*response]
	onRequest func(string, int)
}

type response struct {
	status int
	body   []byte
}

// New creates a Client.
func New(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	threshold := opts.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	openTimeout := opts.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}

	onRequest := opts.OnRequest
	if onRequest == nil {
		onRequest = func(string, int) {}
	}

	return &Client{
		baseURL: baseURL,
		token:   opts.Token,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, 1),
		breaker: gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
			Name:        "hubspot",
			MaxRequests: 1,
			Timeout:     openTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			IsSuccessful: func(err error) bool {
				return err == nil || isClientError(err)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logging.Warn().
					Str("breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("circuit breaker state changed")
			},
		}),
		onRequest: onRequest,
	}
}

// do performs one request and decodes a successful JSON body into out (when
// out is non-nil). Non-2xx responses are returned as *APIError before
// classification.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode %s request: %w", op, err)
		}
		payload = b
	}

	resp, err := c.breaker.Execute(func() (*response, error) {
		return c.send(ctx, method, path, payload)
	})
	status := 0
	if resp != nil {
		status = resp.status
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
	}
	c.onRequest(op, status)
	if err != nil {
		return status, err
	}

	if out != nil && len(resp.body) > 0 {
		if err := json.Unmarshal(resp.body, out); err != nil {
			return resp.status, fmt.Errorf("decode %s response: %w", op, err)
		}
	}
	return resp.status, nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte) (*response, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if res.StatusCode >= 400 {
		return &response{status: res.StatusCode}, decodeAPIError(res.StatusCode, data)
	}
	return &response{status: res.StatusCode, body: data}, nil
}

// Ping lists one contact to check credentials and connectivity.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ListObjects(ctx, domain.ObjectContacts, domain.ListOpts{Limit: 1})
	return err
}
