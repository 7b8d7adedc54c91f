// Package facilitator talks to the x402 facilitator: the out-of-process
// service that verifies and settles on-chain payment authorizations. The
// gateway never speaks to any blockchain directly; this package is its sole
// bridge to one.
package facilitator

import (
	"context"
	"fmt"
	"net/http"

	"github.com/umbra-labs/x402-gateway/internal/x402types"
)

// Client is the capability set the paygate needs from a facilitator. The
// gateway is polymorphic over this interface: a real HTTP client in
// production, an in-memory mock in tests.
type Client interface {
	Verify(ctx context.Context, req x402types.VerifyRequest) (x402types.VerifyResponse, error)
	Settle(ctx context.Context, req x402types.SettleRequest) (x402types.SettleResponse, error)
	Supported(ctx context.Context) (x402types.SupportedPaymentKindsResponse, error)
}

// Error is a tagged variant distinguishing transport failures, response
// deserialization failures, and non-2xx facilitator responses from each
// other, so the paygate can surface them with appropriate diagnostic detail
// without ever panicking.
type Error struct {
	Kind    ErrorKind
	Context string
	Status  int
	Body    string
	Err     error
}

// ErrorKind tags the failure mode of a facilitator call.
type ErrorKind int

const (
	// KindURLParse means the facilitator base URL or a derived endpoint URL
	// failed to parse.
	KindURLParse ErrorKind = iota
	// KindTransport means the HTTP request itself failed (DNS, connect,
	// TLS, timeout, context cancellation).
	KindTransport
	// KindJSONDeserialize means a 2xx response body failed to decode.
	KindJSONDeserialize
	// KindHTTPStatus means the facilitator returned a non-2xx status; Body
	// captures the raw response for diagnostic surfacing in 402 bodies.
	KindHTTPStatus
	// KindBodyRead means reading the response body itself failed.
	KindBodyRead
)

func (e *Error) Error() string {
	switch e.Kind {
	case KindURLParse:
		return fmt.Sprintf("facilitator: url parse error (%s): %v", e.Context, e.Err)
	case KindTransport:
		return fmt.Sprintf("facilitator: transport error (%s): %v", e.Context, e.Err)
	case KindJSONDeserialize:
		return fmt.Sprintf("facilitator: failed to deserialize response (%s): %v", e.Context, e.Err)
	case KindHTTPStatus:
		return fmt.Sprintf("facilitator: unexpected status %d (%s): %s", e.Status, e.Context, e.Body)
	case KindBodyRead:
		return fmt.Sprintf("facilitator: failed to read response body (%s): %v", e.Context, e.Err)
	default:
		return fmt.Sprintf("facilitator: error (%s): %v", e.Context, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func urlParseError(context string, err error) error {
	return &Error{Kind: KindURLParse, Context: context, Err: err}
}

func transportError(context string, err error) error {
	return &Error{Kind: KindTransport, Context: context, Err: err}
}

func jsonError(context string, err error) error {
	return &Error{Kind: KindJSONDeserialize, Context: context, Err: err}
}

func statusError(context string, status int, body string) error {
	return &Error{Kind: KindHTTPStatus, Context: context, Status: status, Body: body}
}

func bodyReadError(context string, err error) error {
	return &Error{Kind: KindBodyRead, Context: context, Err: err}
}

// defaultHTTPClient is shared by facilitator clients that do not specify
// their own; its connection pool is reused across all requests, per the
// concurrency model's "shared read-only resources" design.
var defaultHTTPClient = &http.Client{}
