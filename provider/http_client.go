package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mstgnz/walletpay/infra/config"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	// gateway answers are small JSON documents
	maxResponseBytes = 1 << 20
)

// HTTPClientConfig configures a ProviderHTTPClient
type HTTPClientConfig struct {
	BaseURL        string
	Timeout        time.Duration
	DefaultHeaders map[string]string
	Transport      http.RoundTripper
}

// HTTPRequest is one JSON call to a gateway. Endpoint is joined to the base
// URL unless it is absolute.
type HTTPRequest struct {
	Method      string
	Endpoint    string
	Headers     map[string]string
	Body        any
	QueryParams map[string]string
}

type HTTPResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// HTTPStatusError is returned for non-2xx answers. The body stays on
// Response for the gateway to interpret and is kept out of the message.
type HTTPStatusError struct {
	StatusCode int
	Response   *HTTPResponse
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP error %d", e.StatusCode)
}

// ProviderHTTPClient sends JSON requests to REST gateways
type ProviderHTTPClient struct {
	baseURL string
	headers map[string]string
	client  *http.Client
}

func NewProviderHTTPClient(cfg *HTTPClientConfig) *ProviderHTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	return &ProviderHTTPClient{
		baseURL: cfg.BaseURL,
		headers: maps.Clone(cfg.DefaultHeaders),
		client:  &http.Client{Timeout: timeout, Transport: cfg.Transport},
	}
}

// SendJSON performs req. A non-2xx answer returns the response together
// with an *HTTPStatusError; transport failures return no response.
func (c *ProviderHTTPClient) SendJSON(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error) {
	target, err := c.resolve(req.Endpoint, req.QueryParams)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal JSON body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for _, headers := range []map[string]string{c.headers, req.Headers} {
		for k, v := range headers {
			httpReq.Header.Set(k, v)
		}
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	out := &HTTPResponse{StatusCode: resp.StatusCode, Headers: resp.Header, Body: raw}
	if resp.StatusCode/100 != 2 {
		return out, &HTTPStatusError{StatusCode: resp.StatusCode, Response: out}
	}
	return out, nil
}

// ParseJSONResponse decodes the response body into target
func (c *ProviderHTTPClient) ParseJSONResponse(resp *HTTPResponse, target any) error {
	return json.Unmarshal(resp.Body, target)
}

func (c *ProviderHTTPClient) resolve(endpoint string, query map[string]string) (string, error) {
	raw := endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		raw = joinURL(c.baseURL, endpoint)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, v := range query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func joinURL(base, endpoint string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(endpoint, "/")
}

// CreateHTTPClientConfig returns the configuration REST gateways start from
func CreateHTTPClientConfig(baseURL string, timeout time.Duration) *HTTPClientConfig {
	return &HTTPClientConfig{
		BaseURL: baseURL,
		Timeout: timeout,
		DefaultHeaders: map[string]string{
			"Accept":     "application/json",
			"User-Agent": "WalletPay/" + config.Version,
		},
	}
}
