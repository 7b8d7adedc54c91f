// Package paygate implements the x402 payment gate: for every request it
// resolves the offers a route will accept, demands and verifies an X-Payment
// header against them, forwards to the wrapped handler only once verified,
// and settles the payment after a successful response. Grounded on
// X402Paygate/X402MiddlewareService in
// original_source/crates/middleware/src/layer.rs, restructured into Go's
// http.Handler-wrapping idiom the way the teacher wraps its proxy handler.
package paygate

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/umbra-labs/x402-gateway/internal/apilookup"
	"github.com/umbra-labs/x402-gateway/internal/facilitator"
	"github.com/umbra-labs/x402-gateway/internal/requirements"
	"github.com/umbra-labs/x402-gateway/internal/x402types"
)

// PaymentHeader is the request header a paying client sends its base64 x402
// payment payload in.
const PaymentHeader = "X-Payment"

// PaymentResponseHeader carries the base64-encoded JSON settlement response
// (including its receipt) back to the client on a successfully settled
// response.
const PaymentResponseHeader = "X-Payment-Response"

// Gate wraps an inner http.Handler with the x402 payment flow. A Gate is
// safe for concurrent use and cheap to build once per route at startup.
type Gate struct {
	Facilitator facilitator.Client
	Offers      requirements.Offers
	// Lookup resolves a published API's payment_config for the dynamic
	// proxy route. Nil for routes with statically configured offers.
	Lookup apilookup.Lookup
}

// Wrap returns an http.Handler that enforces the payment gate in front of
// next.
func (g *Gate) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.serve(w, r, next)
	})
}

func (g *Gate) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	ctx := r.Context()

	accepts, gateErr := g.resolveRequirements(r)
	if gateErr != nil {
		gateErr.WriteResponse(w)
		return
	}

	payload, gateErr := g.extractPaymentPayload(ctx, r, accepts)
	if gateErr != nil {
		gateErr.WriteResponse(w)
		return
	}

	verifyReq, gateErr := g.verifyPayment(ctx, payload, accepts)
	if gateErr != nil {
		gateErr.WriteResponse(w)
		return
	}

	buffered := newBufferedResponse()
	next.ServeHTTP(buffered, r)

	if buffered.statusCode >= 400 {
		buffered.flushTo(w)
		return
	}

	settlement, gateErr := g.settlePayment(ctx, verifyReq, accepts)
	if gateErr != nil {
		gateErr.WriteResponse(w)
		return
	}

	encoded, err := x402types.EncodeSettlementHeader(settlement)
	if err != nil {
		settlementFailed(err.Error(), accepts).WriteResponse(w)
		return
	}
	buffered.header.Set(PaymentResponseHeader, encoded)
	buffered.flushTo(w)
}

// resolveRequirements computes the PaymentRequirement set for this request,
// applying a per-API payment_config override on the dynamic proxy route
// when one is configured.
func (g *Gate) resolveRequirements(r *http.Request) ([]x402types.PaymentRequirement, *Error) {
	base := g.Offers.Resolve(r.URL)

	apiID, hasAPIID := apilookup.APIIDFromContext(r.Context())
	if !hasAPIID || g.Lookup == nil {
		return base, nil
	}

	api, err := g.Lookup.Lookup(r.Context(), apiID)
	if err != nil {
		slog.Error("api lookup failed", "api_id", apiID, "err", err)
		return nil, configUnavailable()
	}
	if api == nil || api.PaymentConfig == nil || !api.PaymentConfig.Enabled {
		return nil, configUnavailable()
	}

	payTo, err := x402types.ParseMixedAddress(api.PaymentConfig.SolPublicKey)
	if err != nil {
		slog.Error("published api has unparseable pay_to address", "api_id", apiID, "err", err)
		return nil, configUnavailable()
	}
	amount, convErr := x402types.MoneyAmount(api.PaymentConfig.CostPerRequest).ToTokenAmount(6)
	if convErr != nil {
		slog.Error("published api has invalid cost_per_request", "api_id", apiID, "err", convErr)
		return nil, configUnavailable()
	}

	return requirements.WithOverride(base, payTo, amount), nil
}

func (g *Gate) extractPaymentPayload(ctx context.Context, r *http.Request, accepts []x402types.PaymentRequirement) (x402types.PaymentPayload, *Error) {
	header := r.Header.Get(PaymentHeader)
	if header == "" {
		enriched, gateErr := g.enrichWithFeePayer(ctx, accepts)
		if gateErr != nil {
			return x402types.PaymentPayload{}, gateErr
		}
		return x402types.PaymentPayload{}, paymentHeaderRequired(enriched)
	}
	payload, err := x402types.DecodePaymentPayload(header)
	if err != nil {
		return x402types.PaymentPayload{}, invalidPaymentHeader(accepts)
	}
	return payload, nil
}

// enrichWithFeePayer adds the facilitator's per-network feePayer (if any) to
// each offered requirement's Extra, so an SVM client knows who covers
// transaction fees before it signs. If the facilitator's /supported call
// fails, the 402 still returns but with an error body describing the
// facilitator failure and an empty accepts, per the gateway's documented
// behavior for a facilitator outage.
func (g *Gate) enrichWithFeePayer(ctx context.Context, accepts []x402types.PaymentRequirement) ([]x402types.PaymentRequirement, *Error) {
	supported, err := g.Facilitator.Supported(ctx)
	if err != nil {
		return nil, facilitatorUnavailable(err.Error())
	}
	feePayerByNetwork := make(map[string]string, len(supported.Kinds))
	for _, kind := range supported.Kinds {
		if len(kind.Extra) == 0 {
			continue
		}
		var extra x402types.FeePayerExtra
		if err := json.Unmarshal(kind.Extra, &extra); err == nil && extra.FeePayer != "" {
			feePayerByNetwork[kind.Network] = extra.FeePayer
		}
	}
	if len(feePayerByNetwork) == 0 {
		return accepts, nil
	}
	enriched := make([]x402types.PaymentRequirement, len(accepts))
	copy(enriched, accepts)
	for i, r := range enriched {
		feePayer, ok := feePayerByNetwork[r.Network]
		if !ok {
			continue
		}
		extraJSON, err := json.Marshal(x402types.FeePayerExtra{FeePayer: feePayer})
		if err != nil {
			continue
		}
		r.Extra = extraJSON
		enriched[i] = r
	}
	return enriched, nil
}

func (g *Gate) verifyPayment(ctx context.Context, payload x402types.PaymentPayload, accepts []x402types.PaymentRequirement) (x402types.VerifyRequest, *Error) {
	selected, ok := findMatching(accepts, payload)
	if !ok {
		return x402types.VerifyRequest{}, noPaymentMatching(accepts)
	}
	verifyReq := x402types.VerifyRequest{
		X402Version:         payload.X402Version,
		PaymentPayload:      payload,
		PaymentRequirements: selected,
	}
	resp, err := g.Facilitator.Verify(ctx, verifyReq)
	if err != nil {
		return x402types.VerifyRequest{}, verificationFailed(err.Error(), accepts)
	}
	if !resp.IsValid {
		return x402types.VerifyRequest{}, verificationFailed(string(resp.Reason), accepts)
	}
	return verifyReq, nil
}

func (g *Gate) settlePayment(ctx context.Context, verifyReq x402types.VerifyRequest, accepts []x402types.PaymentRequirement) (x402types.SettleResponse, *Error) {
	resp, err := g.Facilitator.Settle(ctx, verifyReq)
	if err != nil {
		return x402types.SettleResponse{}, settlementFailed(err.Error(), accepts)
	}
	if !resp.Success {
		reason := resp.ErrorReason
		if reason == "" {
			reason = x402types.InvalidScheme
		}
		return x402types.SettleResponse{}, settlementFailed(string(reason), accepts)
	}
	return resp, nil
}

func findMatching(accepts []x402types.PaymentRequirement, payload x402types.PaymentPayload) (x402types.PaymentRequirement, bool) {
	for _, r := range accepts {
		if r.Scheme == payload.Scheme && r.Network == payload.Network {
			return r, true
		}
	}
	return x402types.PaymentRequirement{}, false
}
