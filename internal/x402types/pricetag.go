package x402types

import "errors"

// PriceTag is the fully resolved payee/amount/token triple a route is
// willing to accept as payment.
type PriceTag struct {
	PayTo  MixedAddress
	Amount TokenAmount
	Token  TokenDeployment
}

// Errors returned by PriceTagBuilder.Build when a required field is absent
// or an amount fails to convert to base units.
var (
	ErrNoAmount  = errors.New("no amount provided")
	ErrNoPayTo   = errors.New("no pay_to address provided")
	ErrBadAmount = errors.New("invalid amount value")
)

// PriceTagBuilder accumulates a token deployment, an amount, and a payee
// before producing a PriceTag. Using a builder (rather than a struct with
// optional fields) pushes "amount and payee are both required" into the
// call site instead of a runtime nil check scattered across callers.
type PriceTagBuilder struct {
	token     TokenDeployment
	money     *MoneyAmount
	tokenAmt  *TokenAmount
	payTo     *MixedAddress
}

// NewPriceTagBuilder starts a builder for a given token deployment.
func NewPriceTagBuilder(token TokenDeployment) *PriceTagBuilder {
	return &PriceTagBuilder{token: token}
}

// Amount sets a human-denominated amount (e.g. 0.1 USDC), converted to base
// units at Build time using the token's decimal precision.
func (b *PriceTagBuilder) Amount(amount MoneyAmount) *PriceTagBuilder {
	b.money = &amount
	b.tokenAmt = nil
	return b
}

// TokenAmount sets an amount already expressed in base units.
func (b *PriceTagBuilder) TokenAmount(amount TokenAmount) *PriceTagBuilder {
	b.tokenAmt = &amount
	b.money = nil
	return b
}

// PayTo sets the receiving address.
func (b *PriceTagBuilder) PayTo(addr MixedAddress) *PriceTagBuilder {
	b.payTo = &addr
	return b
}

// Build validates that both an amount and a payee were provided and
// produces the resulting PriceTag.
func (b *PriceTagBuilder) Build() (PriceTag, error) {
	if b.payTo == nil {
		return PriceTag{}, ErrNoPayTo
	}
	var amount TokenAmount
	switch {
	case b.tokenAmt != nil:
		amount = *b.tokenAmt
	case b.money != nil:
		converted, err := b.money.ToTokenAmount(b.token.Decimals)
		if err != nil {
			return PriceTag{}, ErrBadAmount
		}
		amount = converted
	default:
		return PriceTag{}, ErrNoAmount
	}
	return PriceTag{
		PayTo:  *b.payTo,
		Amount: amount,
		Token:  b.token,
	}, nil
}

// MustBuild panics on a build error; intended for package-level fixed price
// tags constructed once at startup from trusted configuration.
func (b *PriceTagBuilder) MustBuild() PriceTag {
	tag, err := b.Build()
	if err != nil {
		panic(err)
	}
	return tag
}
