package x402types

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// DecodePaymentPayload decodes the X-Payment header value: base64-encoded
// JSON carrying a PaymentPayload.
func DecodePaymentPayload(header string) (PaymentPayload, error) {
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return PaymentPayload{}, fmt.Errorf("decoding payment header: %w", err)
	}
	var payload PaymentPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return PaymentPayload{}, fmt.Errorf("parsing payment payload: %w", err)
	}
	return payload, nil
}

// EncodePaymentPayload is the inverse of DecodePaymentPayload, used by tests
// and by the client-facing tooling that builds X-Payment headers.
func EncodePaymentPayload(payload PaymentPayload) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshalling payment payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// EncodeReceipt base64-encodes a settlement receipt for the
// X-Payment-Response header.
func EncodeReceipt(receipt []byte) string {
	return base64.StdEncoding.EncodeToString(receipt)
}

// DecodeReceipt is the inverse of EncodeReceipt.
func DecodeReceipt(encoded string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(encoded)
}
