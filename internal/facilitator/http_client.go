package facilitator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/umbra-labs/x402-gateway/internal/x402types"
)

// HTTPClient is a thin HTTP client to a facilitator's /verify, /settle, and
// /supported endpoints. It is grounded on the teacher's RemoteFacilitator
// (gateway/x402/facilitator.go), generalized to the full VerifyRequest /
// SettleRequest / SupportedPaymentKindsResponse wire shapes.
type HTTPClient struct {
	baseURL     *url.URL
	verifyURL   *url.URL
	settleURL   *url.URL
	supportedURL *url.URL
	httpClient  *http.Client
	headers     http.Header
	timeout     time.Duration
}

// NewHTTPClient builds an HTTPClient against baseURL, normalizing it with a
// trailing slash so relative joins ("./verify" etc.) resolve correctly.
func NewHTTPClient(baseURL string, timeout time.Duration) (*HTTPClient, error) {
	normalized := strings.TrimRight(baseURL, "/") + "/"
	parsed, err := url.Parse(normalized)
	if err != nil {
		return nil, urlParseError("parsing facilitator base url", err)
	}
	verifyURL, err := parsed.Parse("./verify")
	if err != nil {
		return nil, urlParseError("constructing /verify url", err)
	}
	settleURL, err := parsed.Parse("./settle")
	if err != nil {
		return nil, urlParseError("constructing /settle url", err)
	}
	supportedURL, err := parsed.Parse("./supported")
	if err != nil {
		return nil, urlParseError("constructing /supported url", err)
	}
	return &HTTPClient{
		baseURL:      parsed,
		verifyURL:    verifyURL,
		settleURL:    settleURL,
		supportedURL: supportedURL,
		httpClient:   defaultHTTPClient,
		headers:      make(http.Header),
		timeout:      timeout,
	}, nil
}

// WithHeaders returns a copy of the client carrying additional headers sent
// on every request (e.g. an auth token for a gated facilitator).
func (c *HTTPClient) WithHeaders(headers http.Header) *HTTPClient {
	cp := *c
	cp.headers = headers.Clone()
	return &cp
}

// wireSettleResponse mirrors the facilitator's /settle JSON shape; Receipt
// is base64-encoded on the wire and decoded into SettleResponse.Receipt.
type wireSettleResponse struct {
	Success     bool                           `json:"success"`
	ErrorReason x402types.FacilitatorErrorReason `json:"errorReason,omitempty"`
	Receipt     string                         `json:"receipt,omitempty"`
	Network     string                         `json:"network,omitempty"`
	Transaction string                         `json:"transaction,omitempty"`
}

// Verify implements Client.
func (c *HTTPClient) Verify(ctx context.Context, req x402types.VerifyRequest) (x402types.VerifyResponse, error) {
	var resp x402types.VerifyResponse
	if err := c.postJSON(ctx, c.verifyURL, "POST /verify", req, &resp); err != nil {
		return x402types.VerifyResponse{}, err
	}
	return resp, nil
}

// Settle implements Client.
func (c *HTTPClient) Settle(ctx context.Context, req x402types.SettleRequest) (x402types.SettleResponse, error) {
	var wire wireSettleResponse
	if err := c.postJSON(ctx, c.settleURL, "POST /settle", req, &wire); err != nil {
		return x402types.SettleResponse{}, err
	}
	var receipt []byte
	if wire.Receipt != "" {
		decoded, err := x402types.DecodeReceipt(wire.Receipt)
		if err != nil {
			return x402types.SettleResponse{}, jsonError("POST /settle", fmt.Errorf("decoding receipt: %w", err))
		}
		receipt = decoded
	}
	return x402types.SettleResponse{
		Success:     wire.Success,
		ErrorReason: wire.ErrorReason,
		Receipt:     receipt,
		Network:     wire.Network,
		Transaction: wire.Transaction,
	}, nil
}

// Supported implements Client.
func (c *HTTPClient) Supported(ctx context.Context) (x402types.SupportedPaymentKindsResponse, error) {
	var resp x402types.SupportedPaymentKindsResponse
	if err := c.getJSON(ctx, c.supportedURL, "GET /supported", &resp); err != nil {
		return x402types.SupportedPaymentKindsResponse{}, err
	}
	return resp, nil
}

func (c *HTTPClient) postJSON(ctx context.Context, target *url.URL, context_ string, payload any, dst any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return jsonError(context_, err)
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return transportError(context_, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for key, values := range c.headers {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	return c.doAndDecode(httpReq, context_, dst)
}

func (c *HTTPClient) getJSON(ctx context.Context, target *url.URL, context_ string, dst any) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return transportError(context_, err)
	}
	for key, values := range c.headers {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	return c.doAndDecode(httpReq, context_, dst)
}

func (c *HTTPClient) doAndDecode(httpReq *http.Request, context_ string, dst any) error {
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return transportError(context_, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return bodyReadError(context_, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(context_, resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, dst); err != nil {
		return jsonError(context_, err)
	}
	return nil
}

func (c *HTTPClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

var _ Client = (*HTTPClient)(nil)
