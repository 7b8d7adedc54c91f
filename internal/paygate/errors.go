package paygate

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/umbra-labs/x402-gateway/internal/x402types"
)

// Error is the 402 response the gate returns whenever it cannot admit a
// request: no payment header, a malformed one, a payment that matches
// nothing on offer, facilitator verification/settlement failure, or no
// payment configuration published for the target API. Every variant is
// rendered as HTTP 402, mirroring the original's X402Error; the payment
// variants carry the offers the caller could retry with, while the
// config-unavailable and facilitator-unavailable variants carry an empty
// accepts list.
type Error struct {
	reason  string
	accepts []x402types.PaymentRequirement
}

func (e *Error) Error() string {
	return fmt.Sprintf("402 Payment Required: %s", e.reason)
}

// WriteResponse renders the error as the gateway's standard 402 JSON body.
func (e *Error) WriteResponse(w http.ResponseWriter) {
	body := x402types.PaymentRequiredResponse{
		X402Version: x402types.VersionV1,
		Error:       e.reason,
		Accepts:     e.accepts,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	_ = json.NewEncoder(w).Encode(body)
}

func paymentHeaderRequired(accepts []x402types.PaymentRequirement) *Error {
	return &Error{reason: "X-PAYMENT header is required", accepts: accepts}
}

func invalidPaymentHeader(accepts []x402types.PaymentRequirement) *Error {
	return &Error{reason: "Invalid or malformed payment header", accepts: accepts}
}

func noPaymentMatching(accepts []x402types.PaymentRequirement) *Error {
	return &Error{reason: "Unable to find matching payment requirements", accepts: accepts}
}

func verificationFailed(reason string, accepts []x402types.PaymentRequirement) *Error {
	return &Error{reason: fmt.Sprintf("Verification Failed: %s", reason), accepts: accepts}
}

func settlementFailed(reason string, accepts []x402types.PaymentRequirement) *Error {
	return &Error{reason: fmt.Sprintf("Settlement Failed: %s", reason), accepts: accepts}
}

// configUnavailable is returned instead of a hardcoded fallback price when
// a dynamic route's target API has no enabled payment configuration
// published. It renders as 402 with accepts left empty: there is nothing to
// quote, which is a meaningfully different condition from "you didn't pay
// the advertised price" and must not be papered over with a made-up one.
func configUnavailable() *Error {
	return &Error{
		reason:  "config_unavailable: no payment configuration is published for this API",
		accepts: []x402types.PaymentRequirement{},
	}
}

// facilitatorUnavailable is returned when the facilitator's /supported call
// fails while enriching offers with a fee payer. accepts is left empty: the
// caller cannot be quoted offers that were never enriched for its network.
func facilitatorUnavailable(reason string) *Error {
	return &Error{
		reason:  fmt.Sprintf("facilitator unavailable: %s", reason),
		accepts: []x402types.PaymentRequirement{},
	}
}
