package facilitator

import (
	"context"
	"testing"

	"github.com/umbra-labs/x402-gateway/internal/x402types"
)

func TestMockDefaultApprovesAndSettles(t *testing.T) {
	mock := NewMock()
	verifyResp, err := mock.Verify(context.Background(), x402types.VerifyRequest{})
	if err != nil || !verifyResp.IsValid {
		t.Fatalf("expected valid, got %+v err=%v", verifyResp, err)
	}
	settleResp, err := mock.Settle(context.Background(), x402types.SettleRequest{})
	if err != nil || !settleResp.Success {
		t.Fatalf("expected success, got %+v err=%v", settleResp, err)
	}
	if len(mock.VerifyCalls) != 1 || len(mock.SettleCalls) != 1 {
		t.Fatalf("expected calls to be recorded")
	}
}

func TestMockCanBeScriptedToReject(t *testing.T) {
	mock := NewMock()
	mock.VerifyFunc = func(context.Context, x402types.VerifyRequest) (x402types.VerifyResponse, error) {
		return x402types.VerifyResponse{IsValid: false, Reason: x402types.InvalidReason("invalid_signature")}, nil
	}
	resp, err := mock.Verify(context.Background(), x402types.VerifyRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.IsValid {
		t.Fatalf("expected invalid response")
	}
}
