// Package local implements a self-hosted x402 facilitator: it verifies
// EIP-3009 TransferWithAuthorization signatures and submits the settlement
// transaction directly to the token contract, paying gas from a relayer
// wallet. It is an optional, non-default facilitator.Client implementation —
// the gateway's core payment gate never imports this package; an operator
// wires it in explicitly in place of facilitator.HTTPClient when they choose
// to run without a third-party facilitator.
package local

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/umbra-labs/x402-gateway/internal/facilitator"
	"github.com/umbra-labs/x402-gateway/internal/x402types"
)

var (
	domainTypeHash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)",
	))
	authTypeHash = crypto.Keccak256Hash([]byte(
		"TransferWithAuthorization(address from,address to,uint256 value,uint256 validAfter,uint256 validBefore,bytes32 nonce)",
	))
	transferWithAuthSelector = crypto.Keccak256([]byte(
		"transferWithAuthorization(address,address,uint256,uint256,uint256,bytes32,uint8,bytes32,bytes32)",
	))[:4]
)

// Facilitator implements facilitator.Client against a single EVM chain,
// settling EIP-3009 authorizations with its own relayer key instead of
// delegating to a remote facilitator service.
type Facilitator struct {
	rpcURL     string
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
	network    string // e.g. "eip155:84532"
}

// New creates a Facilitator. privateKeyHex is the hex-encoded relayer key
// that pays gas for every settlement; network is the CAIP-2 identifier this
// facilitator is willing to settle (e.g. "eip155:84532").
func New(rpcURL, privateKeyHex, network string) (*Facilitator, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid relayer private key: %w", err)
	}
	chainID, err := chainIDFromNetwork(network)
	if err != nil {
		return nil, err
	}
	return &Facilitator{
		rpcURL:     rpcURL,
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
		chainID:    chainID,
		network:    network,
	}, nil
}

// Address is the relayer's EVM address, logged at startup so an operator can
// fund it.
func (f *Facilitator) Address() common.Address { return f.address }

func chainIDFromNetwork(network string) (*big.Int, error) {
	parts := strings.SplitN(network, ":", 2)
	if len(parts) != 2 || parts[0] != "eip155" {
		return nil, fmt.Errorf("local facilitator only supports eip155 networks, got %q", network)
	}
	chainID := new(big.Int)
	if _, ok := chainID.SetString(parts[1], 10); !ok {
		return nil, fmt.Errorf("invalid chain id in network %q", network)
	}
	return chainID, nil
}

// authorizationPayload is the scheme-specific payload shape carried inside
// PaymentPayload.Payload for scheme "exact" on an eip155 network.
type authorizationPayload struct {
	Signature     string `json:"signature"`
	Authorization struct {
		From        string `json:"from"`
		To          string `json:"to"`
		Value       string `json:"value"`
		ValidAfter  string `json:"validAfter"`
		ValidBefore string `json:"validBefore"`
		Nonce       string `json:"nonce"`
	} `json:"authorization"`
}

func parseAuthorizationPayload(raw json.RawMessage) (*authorizationPayload, error) {
	var p authorizationPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parsing authorization payload: %w", err)
	}
	return &p, nil
}

func pad32(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[len(b)-32:]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

func addrPad(a common.Address) []byte {
	padded := make([]byte, 32)
	copy(padded[12:], a.Bytes())
	return padded
}

func domainSeparator(name, version string, chainID *big.Int, contract common.Address) common.Hash {
	enc := make([]byte, 5*32)
	copy(enc[0:32], domainTypeHash.Bytes())
	copy(enc[32:64], crypto.Keccak256([]byte(name)))
	copy(enc[64:96], crypto.Keccak256([]byte(version)))
	copy(enc[96:128], pad32(chainID))
	copy(enc[128:160], addrPad(contract))
	return crypto.Keccak256Hash(enc)
}

func authHash(from, to common.Address, value, validAfter, validBefore *big.Int, nonce [32]byte) common.Hash {
	enc := make([]byte, 7*32)
	copy(enc[0:32], authTypeHash.Bytes())
	copy(enc[32:64], addrPad(from))
	copy(enc[64:96], addrPad(to))
	copy(enc[96:128], pad32(value))
	copy(enc[128:160], pad32(validAfter))
	copy(enc[160:192], pad32(validBefore))
	copy(enc[192:224], nonce[:])
	return crypto.Keccak256Hash(enc)
}

func mustBigInt(s string) (*big.Int, bool) {
	n := new(big.Int)
	_, ok := n.SetString(s, 10)
	return n, ok
}

func (f *Facilitator) eip712Digest(req x402types.VerifyRequest, p *authorizationPayload) (common.Hash, [32]byte, error) {
	var domain x402types.EIP712Domain
	if err := json.Unmarshal(req.PaymentRequirements.Extra, &domain); err != nil {
		return common.Hash{}, [32]byte{}, fmt.Errorf("requirement missing eip-712 domain extra: %w", err)
	}

	assetAddr := common.HexToAddress(req.PaymentRequirements.Asset.String())
	from := common.HexToAddress(p.Authorization.From)
	to := common.HexToAddress(p.Authorization.To)

	value, ok := mustBigInt(p.Authorization.Value)
	if !ok {
		return common.Hash{}, [32]byte{}, fmt.Errorf("invalid authorization value %q", p.Authorization.Value)
	}
	validAfter, ok := mustBigInt(p.Authorization.ValidAfter)
	if !ok {
		return common.Hash{}, [32]byte{}, fmt.Errorf("invalid validAfter %q", p.Authorization.ValidAfter)
	}
	validBefore, ok := mustBigInt(p.Authorization.ValidBefore)
	if !ok {
		return common.Hash{}, [32]byte{}, fmt.Errorf("invalid validBefore %q", p.Authorization.ValidBefore)
	}

	nonceHex := strings.TrimPrefix(p.Authorization.Nonce, "0x")
	nonceBytes, err := hex.DecodeString(nonceHex)
	if err != nil {
		return common.Hash{}, [32]byte{}, fmt.Errorf("invalid nonce: %w", err)
	}
	var nonce [32]byte
	copy(nonce[32-len(nonceBytes):], nonceBytes)

	ds := domainSeparator(domain.Name, domain.Version, f.chainID, assetAddr)
	ah := authHash(from, to, value, validAfter, validBefore, nonce)
	digest := crypto.Keccak256Hash(append([]byte{0x19, 0x01}, append(ds.Bytes(), ah.Bytes()...)...))
	return digest, nonce, nil
}

// Verify checks the EIP-3009 signature and offer terms without touching the
// chain. It returns an error only for a malformed request; an invalid
// payment is reported through VerifyResponse.IsValid, matching the contract
// a real facilitator would honor.
func (f *Facilitator) Verify(_ context.Context, req x402types.VerifyRequest) (x402types.VerifyResponse, error) {
	p, err := parseAuthorizationPayload(req.PaymentPayload.Payload)
	if err != nil {
		return x402types.VerifyResponse{}, err
	}

	validBefore, ok := mustBigInt(p.Authorization.ValidBefore)
	if !ok {
		return x402types.VerifyResponse{}, fmt.Errorf("invalid validBefore %q", p.Authorization.ValidBefore)
	}
	if validBefore.Int64() < time.Now().Unix() {
		return x402types.VerifyResponse{IsValid: false, Reason: "authorization_expired"}, nil
	}

	digest, _, err := f.eip712Digest(req, p)
	if err != nil {
		return x402types.VerifyResponse{}, err
	}

	sigHex := strings.TrimPrefix(p.Signature, "0x")
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != 65 {
		return x402types.VerifyResponse{IsValid: false, Reason: "malformed_signature"}, nil
	}
	normalized := append([]byte(nil), sig...)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}

	pubBytes, err := crypto.Ecrecover(digest.Bytes(), normalized)
	if err != nil {
		return x402types.VerifyResponse{IsValid: false, Reason: "signature_recovery_failed"}, nil
	}
	pub, err := crypto.UnmarshalPubkey(pubBytes)
	if err != nil {
		return x402types.VerifyResponse{IsValid: false, Reason: "signature_recovery_failed"}, nil
	}
	recovered := crypto.PubkeyToAddress(*pub)
	expected := common.HexToAddress(p.Authorization.From)
	if recovered != expected {
		return x402types.VerifyResponse{IsValid: false, Reason: "signature_mismatch"}, nil
	}

	authTo := common.HexToAddress(p.Authorization.To)
	reqPayTo := common.HexToAddress(req.PaymentRequirements.PayTo.String())
	if authTo != reqPayTo {
		return x402types.VerifyResponse{IsValid: false, Reason: "pay_to_mismatch"}, nil
	}

	authValue, ok := mustBigInt(p.Authorization.Value)
	if !ok {
		return x402types.VerifyResponse{}, fmt.Errorf("invalid authorization value %q", p.Authorization.Value)
	}
	required := new(big.Int).SetUint64(uint64(req.PaymentRequirements.MaxAmountRequired))
	if authValue.Cmp(required) < 0 {
		return x402types.VerifyResponse{IsValid: false, Reason: "insufficient_amount"}, nil
	}

	slog.Info("local facilitator verify ok", "payer", recovered.Hex(), "amount", authValue.String())
	return x402types.VerifyResponse{IsValid: true, Payer: recovered.Hex()}, nil
}

// Settle submits transferWithAuthorization to the asset contract, paying gas
// from the relayer key. It returns an error for a malformed request and for
// RPC failures (dial, pending nonce, latest header) or a signing failure. A
// failed gas estimate falls back to a fixed gas limit. A broadcast the node
// rejects is reported as a SettleResponse with Success=false.
func (f *Facilitator) Settle(ctx context.Context, req x402types.SettleRequest) (x402types.SettleResponse, error) {
	p, err := parseAuthorizationPayload(req.PaymentPayload.Payload)
	if err != nil {
		return x402types.SettleResponse{}, err
	}

	_, nonce32, err := f.eip712Digest(req, p)
	if err != nil {
		return x402types.SettleResponse{}, err
	}

	from := common.HexToAddress(p.Authorization.From)
	to := common.HexToAddress(p.Authorization.To)
	assetAddr := common.HexToAddress(req.PaymentRequirements.Asset.String())

	value, _ := mustBigInt(p.Authorization.Value)
	validAfter, _ := mustBigInt(p.Authorization.ValidAfter)
	validBefore, _ := mustBigInt(p.Authorization.ValidBefore)

	sigHex := strings.TrimPrefix(p.Signature, "0x")
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != 65 {
		return x402types.SettleResponse{}, fmt.Errorf("invalid signature for settlement")
	}
	var r, s [32]byte
	copy(r[:], sig[:32])
	copy(s[:], sig[32:64])
	v := sig[64]
	if v < 27 {
		v += 27
	}

	callData := packTransferWithAuth(from, to, value, validAfter, validBefore, nonce32, v, r, s)

	client, err := ethclient.DialContext(ctx, f.rpcURL)
	if err != nil {
		return x402types.SettleResponse{}, fmt.Errorf("rpc connect: %w", err)
	}
	defer client.Close()

	txNonce, err := client.PendingNonceAt(ctx, f.address)
	if err != nil {
		return x402types.SettleResponse{}, fmt.Errorf("pending nonce: %w", err)
	}

	gasLimit := uint64(100_000)
	if est, err := client.EstimateGas(ctx, ethereum.CallMsg{From: f.address, To: &assetAddr, Data: callData}); err == nil {
		gasLimit = est * 12 / 10
	}

	header, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return x402types.SettleResponse{}, fmt.Errorf("latest header: %w", err)
	}
	tip := big.NewInt(1e9)
	feeCap := new(big.Int).Add(header.BaseFee, tip)

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   f.chainID,
		Nonce:     txNonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &assetAddr,
		Value:     new(big.Int),
		Data:      callData,
	})
	signed, err := types.SignTx(tx, types.NewLondonSigner(f.chainID), f.privateKey)
	if err != nil {
		return x402types.SettleResponse{}, fmt.Errorf("signing settlement tx: %w", err)
	}
	if err := client.SendTransaction(ctx, signed); err != nil {
		return x402types.SettleResponse{Success: false, ErrorReason: "transaction_failed"}, nil
	}

	slog.Info("local facilitator settlement submitted",
		"hash", signed.Hash().Hex(), "from", from.Hex(), "to", to.Hex(), "value", value.String())
	return x402types.SettleResponse{
		Success:     true,
		Network:     req.PaymentRequirements.Network,
		Transaction: signed.Hash().Hex(),
	}, nil
}

// Supported reports the single (exact, eip155) pair this relayer will
// settle.
func (f *Facilitator) Supported(context.Context) (x402types.SupportedPaymentKindsResponse, error) {
	return x402types.SupportedPaymentKindsResponse{
		Kinds: []x402types.SupportedPaymentKind{
			{X402Version: x402types.VersionV1, Scheme: x402types.SchemeExact, Network: f.network},
		},
	}, nil
}

// packTransferWithAuth ABI-encodes the USDC transferWithAuthorization call
// by hand, avoiding a runtime abi.JSON parse for a single fixed signature.
func packTransferWithAuth(
	from, to common.Address,
	value, validAfter, validBefore *big.Int,
	nonce [32]byte,
	v uint8,
	r, s [32]byte,
) []byte {
	data := make([]byte, 4+9*32)
	copy(data[:4], transferWithAuthSelector)
	offset := 4
	copy(data[offset+12:offset+32], from.Bytes())
	offset += 32
	copy(data[offset+12:offset+32], to.Bytes())
	offset += 32
	copy(data[offset:offset+32], pad32(value))
	offset += 32
	copy(data[offset:offset+32], pad32(validAfter))
	offset += 32
	copy(data[offset:offset+32], pad32(validBefore))
	offset += 32
	copy(data[offset:offset+32], nonce[:])
	offset += 32
	data[offset+31] = v
	offset += 32
	copy(data[offset:offset+32], r[:])
	offset += 32
	copy(data[offset:offset+32], s[:])
	return data
}

var _ facilitator.Client = (*Facilitator)(nil)
