package custody

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/p2pcash/escrowd/internal/circuitbreaker"
)

// HTTPClient talks to the custody provider's REST API.
//
// Transport failures and 5xx answers map to ErrUnavailable; 4xx answers map
// to ErrRejected. A circuit breaker sheds load while the provider is down so
// release retries do not hammer a dead upstream.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *circuitbreaker.Breaker
}

// NewHTTPClient creates a custody client for the given provider base URL.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		breaker: circuitbreaker.New("custody", 5, 30*time.Second),
	}
}

type createAddressRequest struct {
	Asset          string `json:"asset"`
	ExpectedAmount string `json:"expectedAmount"`
}

type createAddressResponse struct {
	Address string `json:"address"`
}

// CreateEscrowAddress provisions a deposit address for a new escrow.
func (c *HTTPClient) CreateEscrowAddress(ctx context.Context, asset, expectedAmount string) (string, error) {
	var out createAddressResponse
	err := c.do(ctx, http.MethodPost, "/v1/addresses", createAddressRequest{
		Asset:          asset,
		ExpectedAmount: expectedAmount,
	}, &out)
	if err != nil {
		return "", err
	}
	if out.Address == "" {
		return "", fmt.Errorf("%w: empty address in response", ErrUnavailable)
	}
	return out.Address, nil
}

// GetDepositStatus reports what the provider has seen on an address.
func (c *HTTPClient) GetDepositStatus(ctx context.Context, address string) (*DepositStatus, error) {
	var out DepositStatus
	if err := c.do(ctx, http.MethodGet, "/v1/addresses/"+address+"/deposit", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type releaseRequest struct {
	EscrowID    string `json:"escrowId"`
	Destination string `json:"destination"`
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
}

type releaseResponse struct {
	TxRef string `json:"txRef"`
}

// ReleaseFunds moves the custodied amount to the destination.
// The escrow ID doubles as the provider-side idempotency key.
func (c *HTTPClient) ReleaseFunds(ctx context.Context, escrowID, destination, asset, amount string) (string, error) {
	var out releaseResponse
	err := c.do(ctx, http.MethodPost, "/v1/releases", releaseRequest{
		EscrowID:    escrowID,
		Destination: destination,
		Asset:       asset,
		Amount:      amount,
	}, &out)
	if err != nil {
		return "", err
	}
	if out.TxRef == "" {
		return "", fmt.Errorf("%w: empty txRef in response", ErrUnavailable)
	}
	return out.TxRef, nil
}

// GetReleaseStatus reports whether a prior ReleaseFunds went through.
func (c *HTTPClient) GetReleaseStatus(ctx context.Context, escrowID string) (*ReleaseStatus, error) {
	var out ReleaseStatus
	err := c.do(ctx, http.MethodGet, "/v1/releases/"+escrowID, nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// do performs one JSON round-trip against the provider.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	if !c.breaker.Allow() {
		custodyBreakerRejects.Inc()
		return fmt.Errorf("%w: circuit open", ErrUnavailable)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: marshal request: %v", ErrRejected, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrRejected, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	custodyRequestDuration.WithLabelValues(method + " " + path).Observe(time.Since(start).Seconds())
	if err != nil {
		c.breaker.RecordFailure()
		custodyRequestsTotal.WithLabelValues("transport_error").Inc()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		c.breaker.RecordSuccess()
		custodyRequestsTotal.WithLabelValues("ok").Inc()
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
			}
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		c.breaker.RecordSuccess()
		custodyRequestsTotal.WithLabelValues("not_found").Inc()
		return ErrUnknownRelease
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// The provider understood us and said no. Not retryable.
		c.breaker.RecordSuccess()
		custodyRequestsTotal.WithLabelValues("rejected").Inc()
		return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, readErrorBody(resp.Body))
	default:
		c.breaker.RecordFailure()
		custodyRequestsTotal.WithLabelValues("upstream_error").Inc()
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
}

func readErrorBody(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil || len(data) == 0 {
		return "no detail"
	}
	return string(data)
}

// Compile-time assertion that HTTPClient implements Adapter.
var _ Adapter = (*HTTPClient)(nil)
