// Package x402types holds the wire and domain types of the x402 payment
// protocol: addresses, amounts, price tags, payment requirements, and the
// verify/settle request/response pairs exchanged with a facilitator.
package x402types

import "encoding/json"

// Scheme identifies a payment scheme. Only "exact" is used by this gateway.
type Scheme string

// SchemeExact is the only payment scheme the facilitator contract in use
// supports: the payer authorizes an exact, pre-agreed transfer amount.
const SchemeExact Scheme = "exact"

// X402Version is the protocol version carried on every payload/response.
type X402Version int

// VersionV1 is the only protocol version this gateway speaks.
const VersionV1 X402Version = 1

// PaymentRequirement is a single advertised offer: the terms under which the
// gateway will accept payment for a resource. ResourceURL must be set on
// every requirement handed to a client — see PaymentRequirementPartial for
// the pre-resource-resolution variant.
type PaymentRequirement struct {
	Scheme            Scheme          `json:"scheme"`
	Network           string          `json:"network"`
	MaxAmountRequired TokenAmount     `json:"maxAmountRequired,string"`
	ResourceURL       string          `json:"resource"`
	Description       string          `json:"description"`
	MimeType          string          `json:"mimeType,omitempty"`
	PayTo             MixedAddress    `json:"payTo"`
	MaxTimeoutSeconds int             `json:"maxTimeoutSeconds"`
	Asset             MixedAddress    `json:"asset"`
	Extra             json.RawMessage `json:"extra,omitempty"`
	OutputSchema      json.RawMessage `json:"outputSchema,omitempty"`
}

// PaymentRequirementPartial is a PaymentRequirement missing ResourceURL,
// held by a route that defers resource resolution to request time (see
// requirements.Offers).
type PaymentRequirementPartial struct {
	Scheme            Scheme
	Network           string
	MaxAmountRequired TokenAmount
	Description       string
	MimeType          string
	PayTo             MixedAddress
	MaxTimeoutSeconds int
	Asset             MixedAddress
	Extra             json.RawMessage
	OutputSchema      json.RawMessage
}

// Resolve fills in ResourceURL to produce a complete PaymentRequirement.
func (p PaymentRequirementPartial) Resolve(resourceURL string) PaymentRequirement {
	return PaymentRequirement{
		Scheme:            p.Scheme,
		Network:           p.Network,
		MaxAmountRequired: p.MaxAmountRequired,
		ResourceURL:       resourceURL,
		Description:       p.Description,
		MimeType:          p.MimeType,
		PayTo:             p.PayTo,
		MaxTimeoutSeconds: p.MaxTimeoutSeconds,
		Asset:             p.Asset,
		Extra:             p.Extra,
		OutputSchema:      p.OutputSchema,
	}
}

// PaymentRequiredResponse is the 402 response body.
type PaymentRequiredResponse struct {
	X402Version X402Version          `json:"x402Version"`
	Error       string               `json:"error"`
	Accepts     []PaymentRequirement `json:"accepts"`
}

// PaymentPayload is decoded from the base64-encoded X-Payment request
// header. The gateway never inspects Payload itself — only the facilitator
// understands scheme-specific payload contents.
type PaymentPayload struct {
	X402Version X402Version     `json:"x402Version"`
	Scheme      Scheme          `json:"scheme"`
	Network     string          `json:"network"`
	Payload     json.RawMessage `json:"payload"`
}

// VerifyRequest pairs a payment payload with the requirement it is being
// checked against.
type VerifyRequest struct {
	X402Version         X402Version        `json:"x402Version"`
	PaymentPayload      PaymentPayload     `json:"paymentPayload"`
	PaymentRequirements PaymentRequirement `json:"paymentRequirements"`
}

// SettleRequest is bit-for-bit the VerifyRequest that most recently
// succeeded verification; it is never constructed independently.
type SettleRequest = VerifyRequest

// InvalidReason enumerates the facilitator's machine-readable reasons a
// payment failed verification or settlement.
type InvalidReason string

// VerifyResponse is the facilitator's answer to a /verify call: either Valid
// (with the payer address) or Invalid (with a reason).
type VerifyResponse struct {
	IsValid bool           `json:"isValid"`
	Payer   string         `json:"payer,omitempty"`
	Reason  InvalidReason  `json:"invalidReason,omitempty"`
	Message string         `json:"invalidReasonMessage,omitempty"`
}

// FacilitatorErrorReason enumerates the facilitator's machine-readable
// settlement failure reasons. InvalidScheme is used as the fallback when a
// failed settlement carries no explicit reason.
type FacilitatorErrorReason string

// InvalidScheme is the fallback settlement failure reason when the
// facilitator reports failure without an explicit error_reason.
const InvalidScheme FacilitatorErrorReason = "invalid_scheme"

// SettleResponse is the facilitator's answer to a /settle call.
type SettleResponse struct {
	Success     bool                   `json:"success"`
	ErrorReason FacilitatorErrorReason `json:"errorReason,omitempty"`
	Receipt     []byte                 `json:"-"`
	Network     string                 `json:"network,omitempty"`
	Transaction string                 `json:"transaction,omitempty"`
}

// SupportedPaymentKind is one entry of a facilitator's /supported response:
// a (scheme, network) pair it can verify/settle, with optional network-
// specific metadata (e.g. a Solana fee payer).
type SupportedPaymentKind struct {
	X402Version X402Version     `json:"x402Version"`
	Scheme      Scheme          `json:"scheme"`
	Network     string          `json:"network"`
	Extra       json.RawMessage `json:"extra,omitempty"`
}

// SupportedPaymentKindsResponse is the facilitator's /supported response.
type SupportedPaymentKindsResponse struct {
	Kinds []SupportedPaymentKind `json:"kinds"`
}

// FeePayerExtra is the shape of SupportedPaymentKind.Extra for SVM networks:
// the address that pays transaction fees on the payer's behalf.
type FeePayerExtra struct {
	FeePayer string `json:"feePayer"`
}
