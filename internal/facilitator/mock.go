package facilitator

import (
	"context"
	"sync"

	"github.com/umbra-labs/x402-gateway/internal/x402types"
)

// Mock is an in-memory Client for tests: it never touches the network and
// lets callers script exact Verify/Settle outcomes per call. Grounded on the
// mock facilitator pattern in mark3labs-x402-go's test suite.
type Mock struct {
	mu sync.Mutex

	VerifyFunc    func(ctx context.Context, req x402types.VerifyRequest) (x402types.VerifyResponse, error)
	SettleFunc    func(ctx context.Context, req x402types.SettleRequest) (x402types.SettleResponse, error)
	SupportedFunc func(ctx context.Context) (x402types.SupportedPaymentKindsResponse, error)

	VerifyCalls    []x402types.VerifyRequest
	SettleCalls    []x402types.SettleRequest
	SupportedCalls int
}

// NewMock returns a Mock that approves and settles every payment by default.
func NewMock() *Mock {
	return &Mock{
		VerifyFunc: func(context.Context, x402types.VerifyRequest) (x402types.VerifyResponse, error) {
			return x402types.VerifyResponse{IsValid: true}, nil
		},
		SettleFunc: func(context.Context, x402types.SettleRequest) (x402types.SettleResponse, error) {
			return x402types.SettleResponse{Success: true, Transaction: "0xmocktx"}, nil
		},
		SupportedFunc: func(context.Context) (x402types.SupportedPaymentKindsResponse, error) {
			return x402types.SupportedPaymentKindsResponse{
				Kinds: []x402types.SupportedPaymentKind{
					{Scheme: x402types.SchemeExact, Network: "eip155:84532"},
				},
			}, nil
		},
	}
}

func (m *Mock) Verify(ctx context.Context, req x402types.VerifyRequest) (x402types.VerifyResponse, error) {
	m.mu.Lock()
	m.VerifyCalls = append(m.VerifyCalls, req)
	m.mu.Unlock()
	return m.VerifyFunc(ctx, req)
}

func (m *Mock) Settle(ctx context.Context, req x402types.SettleRequest) (x402types.SettleResponse, error) {
	m.mu.Lock()
	m.SettleCalls = append(m.SettleCalls, req)
	m.mu.Unlock()
	return m.SettleFunc(ctx, req)
}

func (m *Mock) Supported(ctx context.Context) (x402types.SupportedPaymentKindsResponse, error) {
	m.mu.Lock()
	m.SupportedCalls++
	m.mu.Unlock()
	return m.SupportedFunc(ctx)
}

var _ Client = (*Mock)(nil)
