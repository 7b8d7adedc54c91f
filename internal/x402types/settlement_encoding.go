package x402types

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// wireSettleResponse is SettleResponse's JSON wire shape: Receipt, which the
// domain type carries as raw bytes, is base64-encoded on the wire like every
// other example repo's settlement payload.
type wireSettleResponse struct {
	Success     bool                   `json:"success"`
	ErrorReason FacilitatorErrorReason `json:"errorReason,omitempty"`
	Receipt     string                 `json:"receipt,omitempty"`
	Network     string                 `json:"network,omitempty"`
	Transaction string                 `json:"transaction,omitempty"`
}

// EncodeSettlementHeader renders a SettleResponse as the base64-encoded JSON
// carried in the X-Payment-Response header.
func EncodeSettlementHeader(resp SettleResponse) (string, error) {
	wire := wireSettleResponse{
		Success:     resp.Success,
		ErrorReason: resp.ErrorReason,
		Network:     resp.Network,
		Transaction: resp.Transaction,
	}
	if len(resp.Receipt) > 0 {
		wire.Receipt = base64.StdEncoding.EncodeToString(resp.Receipt)
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("marshalling settlement response: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
