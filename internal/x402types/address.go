package x402types

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/mr-tron/base58"
)

// ChainKind tags which chain family a MixedAddress belongs to.
type ChainKind int

const (
	// ChainUnknown is the zero value; a MixedAddress in this state has no bytes.
	ChainUnknown ChainKind = iota
	// ChainEVM identifies a 20-byte EVM (Ethereum-family) address.
	ChainEVM
	// ChainSolana identifies a 32-byte Solana public key.
	ChainSolana
)

var evmAddressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// MixedAddress is a chain-agnostic payee/asset address. It is represented as
// a tagged variant rather than a bare string so that callers cannot mix up
// an EVM address with a Solana pubkey at the type level.
type MixedAddress struct {
	kind  ChainKind
	bytes []byte
}

// EVMAddress builds a MixedAddress from a 20-byte EVM address.
func EVMAddress(raw [20]byte) MixedAddress {
	return MixedAddress{kind: ChainEVM, bytes: raw[:]}
}

// SolanaAddress builds a MixedAddress from a 32-byte Solana public key.
func SolanaAddress(raw [32]byte) MixedAddress {
	return MixedAddress{kind: ChainSolana, bytes: raw[:]}
}

// ParseMixedAddress parses an address string, inferring the chain kind from
// its shape: "0x" + 40 hex chars is EVM, anything else is attempted as a
// base58-encoded 32-byte Solana public key.
func ParseMixedAddress(s string) (MixedAddress, error) {
	s = strings.TrimSpace(s)
	if evmAddressPattern.MatchString(s) {
		raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
		if err != nil {
			return MixedAddress{}, fmt.Errorf("parsing evm address %q: %w", s, err)
		}
		var out [20]byte
		copy(out[:], raw)
		return EVMAddress(out), nil
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return MixedAddress{}, fmt.Errorf("parsing address %q: not a valid EVM or Solana address: %w", s, err)
	}
	if len(raw) != 32 {
		return MixedAddress{}, fmt.Errorf("parsing solana address %q: expected 32 bytes, got %d", s, len(raw))
	}
	var out [32]byte
	copy(out[:], raw)
	return SolanaAddress(out), nil
}

// Kind reports which chain family the address belongs to.
func (a MixedAddress) Kind() ChainKind { return a.kind }

// IsZero reports whether the address carries no bytes.
func (a MixedAddress) IsZero() bool { return a.kind == ChainUnknown }

// String renders the address in its chain's native textual form.
func (a MixedAddress) String() string {
	switch a.kind {
	case ChainEVM:
		return "0x" + hex.EncodeToString(a.bytes)
	case ChainSolana:
		return base58.Encode(a.bytes)
	default:
		return ""
	}
}

// MarshalJSON renders the address as its native string form.
func (a MixedAddress) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON parses the address from its native string form.
func (a *MixedAddress) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" {
		*a = MixedAddress{}
		return nil
	}
	parsed, err := ParseMixedAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Equal reports whether two addresses refer to the same chain and bytes.
func (a MixedAddress) Equal(other MixedAddress) bool {
	return a.kind == other.kind && string(a.bytes) == string(other.bytes)
}
