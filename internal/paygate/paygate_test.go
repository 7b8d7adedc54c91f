package paygate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/umbra-labs/x402-gateway/internal/apilookup"
	"github.com/umbra-labs/x402-gateway/internal/facilitator"
	"github.com/umbra-labs/x402-gateway/internal/proxy"
	"github.com/umbra-labs/x402-gateway/internal/requirements"
	"github.com/umbra-labs/x402-gateway/internal/x402types"
)

var errSupportedUnavailable = errors.New("facilitator: supported unreachable")

func testOffers(t *testing.T) requirements.Offers {
	t.Helper()
	asset, err := x402types.ParseMixedAddress("0x036CbD53842c5426634E7929541eC2318f3dCF7e")
	if err != nil {
		t.Fatalf("parse asset: %v", err)
	}
	token := x402types.USDCDeployment("eip155:84532", asset, x402types.EIP712Domain{Name: "USDC", Version: "2"})
	payee, err := x402types.ParseMixedAddress("8hAVK73RZdtyP2kE82ohAsAGgKaxffS6pU7B9bxRg2RL")
	if err != nil {
		t.Fatalf("parse payee: %v", err)
	}
	tag, err := x402types.NewPriceTagBuilder(token).Amount(0.1).PayTo(payee).Build()
	if err != nil {
		t.Fatalf("build price tag: %v", err)
	}
	offers, err := requirements.NewReady([]x402types.PriceTag{tag}, requirements.RouteMetadata{Description: "test resource"}, "https://gateway.example.com/v1/resource")
	if err != nil {
		t.Fatalf("new ready offers: %v", err)
	}
	return offers
}

func encodedPaymentHeader(t *testing.T) string {
	t.Helper()
	payload := x402types.PaymentPayload{
		X402Version: x402types.VersionV1,
		Scheme:      x402types.SchemeExact,
		Network:     "eip155:84532",
		Payload:     json.RawMessage(`{"signature":"0xabc"}`),
	}
	header, err := x402types.EncodePaymentPayload(payload)
	if err != nil {
		t.Fatalf("encode payment payload: %v", err)
	}
	return header
}

func TestGateReturns402WithoutPaymentHeader(t *testing.T) {
	gate := &Gate{Facilitator: facilitator.NewMock(), Offers: testOffers(t)}
	innerCalled := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { innerCalled = true })

	req := httptest.NewRequest(http.MethodGet, "/v1/resource", nil)
	rec := httptest.NewRecorder()
	gate.Wrap(inner).ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", rec.Code)
	}
	if innerCalled {
		t.Fatalf("inner handler must not be called without a payment header")
	}
	var body x402types.PaymentRequiredResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Accepts) != 1 {
		t.Fatalf("expected 1 accepted offer, got %d", len(body.Accepts))
	}
}

func TestGateForwardsAndSettlesOnValidPayment(t *testing.T) {
	mock := facilitator.NewMock()
	gate := &Gate{Facilitator: mock, Offers: testOffers(t)}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("upstream body"))
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/resource", nil)
	req.Header.Set(PaymentHeader, encodedPaymentHeader(t))
	rec := httptest.NewRecorder()
	gate.Wrap(inner).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "upstream body" {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
	if rec.Header().Get(PaymentResponseHeader) == "" {
		t.Fatalf("expected X-Payment-Response header on success")
	}
	if len(mock.SettleCalls) != 1 {
		t.Fatalf("expected exactly one settle call, got %d", len(mock.SettleCalls))
	}
}

func TestGateSkipsSettleOnUpstreamError(t *testing.T) {
	mock := facilitator.NewMock()
	gate := &Gate{Facilitator: mock, Offers: testOffers(t)}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("not found"))
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/resource", nil)
	req.Header.Set(PaymentHeader, encodedPaymentHeader(t))
	rec := httptest.NewRecorder()
	gate.Wrap(inner).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected upstream 404 to pass through, got %d", rec.Code)
	}
	if len(mock.SettleCalls) != 0 {
		t.Fatalf("settle must not be called when upstream errors, got %d calls", len(mock.SettleCalls))
	}
	if rec.Header().Get(PaymentResponseHeader) != "" {
		t.Fatalf("X-Payment-Response must not appear without settlement")
	}
}

// TestGateSkipsSettleOnRealUpstream500 wires the real proxy.Handler (not a
// hand-written fake inner handler) behind the real Gate, against an upstream
// that returns a genuine HTTP 500, to exercise the outer-status propagation
// the gate's >=400 check depends on end-to-end.
func TestGateSkipsSettleOnRealUpstream500(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"upstream broke"}`))
	}))
	defer upstream.Close()

	lookup := stubLookup{api: &apilookup.Api{ID: "api-1", UserID: "user-1", BaseURL: upstream.URL}}
	mock := facilitator.NewMock()
	gate := &Gate{Facilitator: mock, Offers: testOffers(t)}
	proxyHandler := proxy.NewHandler(lookup)
	proxyHandler.Client = upstream.Client()

	router := chi.NewRouter()
	router.Post("/users/{userID}/apis/{apiID}", gate.Wrap(proxyHandler).ServeHTTP)

	reqBody, _ := json.Marshal(proxy.Request{Method: apilookup.MethodGet})
	req := httptest.NewRequest(http.MethodPost, "/users/user-1/apis/api-1", bytes.NewReader(reqBody))
	req.Header.Set(PaymentHeader, encodedPaymentHeader(t))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected the real upstream 500 to surface as the outer status, got %d", rec.Code)
	}
	if len(mock.SettleCalls) != 0 {
		t.Fatalf("settle must not be called when the real upstream call fails, got %d calls", len(mock.SettleCalls))
	}
	if rec.Header().Get(PaymentResponseHeader) != "" {
		t.Fatalf("X-Payment-Response must not appear without settlement")
	}
}

func TestGateReturns402WithEmptyAcceptsWhenFacilitatorSupportedFails(t *testing.T) {
	mock := facilitator.NewMock()
	mock.SupportedFunc = func(context.Context) (x402types.SupportedPaymentKindsResponse, error) {
		return x402types.SupportedPaymentKindsResponse{}, errSupportedUnavailable
	}
	gate := &Gate{Facilitator: mock, Offers: testOffers(t)}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("inner must not be called without a payment header")
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/resource", nil)
	rec := httptest.NewRecorder()
	gate.Wrap(inner).ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", rec.Code)
	}
	var body x402types.PaymentRequiredResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error == "" {
		t.Fatalf("expected a non-empty error describing the facilitator failure")
	}
	if len(body.Accepts) != 0 {
		t.Fatalf("expected accepts to be empty when the facilitator is unavailable, got %d", len(body.Accepts))
	}
}

func TestGateRejectsInvalidVerification(t *testing.T) {
	mock := facilitator.NewMock()
	mock.VerifyFunc = func(ctx context.Context, req x402types.VerifyRequest) (x402types.VerifyResponse, error) {
		return x402types.VerifyResponse{IsValid: false, Reason: "bad_signature"}, nil
	}
	gate := &Gate{Facilitator: mock, Offers: testOffers(t)}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("inner must not be called on failed verification")
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/resource", nil)
	req.Header.Set(PaymentHeader, encodedPaymentHeader(t))
	rec := httptest.NewRecorder()
	gate.Wrap(inner).ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", rec.Code)
	}
}

func TestGateRejectsNoMatchingRequirement(t *testing.T) {
	mock := facilitator.NewMock()
	gate := &Gate{Facilitator: mock, Offers: testOffers(t)}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("inner must not be called without a matching requirement")
	})

	payload := x402types.PaymentPayload{
		X402Version: x402types.VersionV1,
		Scheme:      x402types.SchemeExact,
		Network:     "eip155:1", // not offered
		Payload:     json.RawMessage(`{}`),
	}
	header, err := x402types.EncodePaymentPayload(payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/resource", nil)
	req.Header.Set(PaymentHeader, header)
	rec := httptest.NewRecorder()
	gate.Wrap(inner).ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", rec.Code)
	}
}

type stubLookup struct {
	api *apilookup.Api
	err error
}

func (s stubLookup) Lookup(ctx context.Context, apiID string) (*apilookup.Api, error) {
	return s.api, s.err
}

func TestGateRejectsMissingPaymentConfigWith402(t *testing.T) {
	mock := facilitator.NewMock()
	gate := &Gate{
		Facilitator: mock,
		Offers:      testOffers(t),
		Lookup:      stubLookup{api: &apilookup.Api{ID: "api-1"}},
	}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("inner must not be called with no payment config")
	})

	req := httptest.NewRequest(http.MethodGet, "/apis/api-1/search", nil)
	req = req.WithContext(apilookup.WithAPIID(req.Context(), "api-1"))
	rec := httptest.NewRecorder()
	gate.Wrap(inner).ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", rec.Code)
	}
	var body x402types.PaymentRequiredResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error == "" {
		t.Fatalf("expected non-empty error reason")
	}
}

func TestGateAppliesPaymentConfigOverride(t *testing.T) {
	mock := facilitator.NewMock()
	gate := &Gate{
		Facilitator: mock,
		Offers:      testOffers(t),
		Lookup: stubLookup{api: &apilookup.Api{
			ID: "api-1",
			PaymentConfig: &apilookup.PaymentConfig{
				SolPublicKey:   "8hAVK73RZdtyP2kE82ohAsAGgKaxffS6pU7B9bxRg2RL",
				CostPerRequest: 0.5,
				Enabled:        true,
			},
		}},
	}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/apis/api-1/search", nil)
	req = req.WithContext(apilookup.WithAPIID(req.Context(), "api-1"))
	rec := httptest.NewRecorder()
	gate.Wrap(inner).ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402 (no payment header sent), got %d", rec.Code)
	}
	var body x402types.PaymentRequiredResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Accepts) != 1 {
		t.Fatalf("expected 1 offer, got %d", len(body.Accepts))
	}
	if body.Accepts[0].MaxAmountRequired != 500000 {
		t.Fatalf("expected overridden amount 500000, got %d", body.Accepts[0].MaxAmountRequired)
	}
}
