package registry

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// PoolState is implemented by decoded pool accounts that can be turned
// into a top-of-book quote.
type PoolState interface {
	// Price is the quote-per-base price implied by the pool, in UI units.
	Price() (decimal.Decimal, bool)
	// Depth is the base and quote liquidity available at Price, in UI units.
	Depth() (base, quote decimal.Decimal)
}

// Uint128 is a little-endian unsigned 128-bit integer.
type Uint128 struct {
	Lo uint64
	Hi uint64
}

// Big returns v as a big.Int.
func (v Uint128) Big() *big.Int {
	n := new(big.Int).SetUint64(v.Hi)
	n.Lsh(n, 64)
	return n.Or(n, new(big.Int).SetUint64(v.Lo))
}

// Decimal returns v as an integral decimal.
func (v Uint128) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(v.Big(), 0)
}

var q64 = decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), 64), 0)

const priceScale = 18

func fromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// MaxMintDecimals bounds the mint decimals accepted from account data. Real
// mints use at most a few tens; larger values would overflow the decimal
// exponent or make the arithmetic unbounded.
const MaxMintDecimals = 36

func scaleDown(raw decimal.Decimal, decimals uint64) decimal.Decimal {
	return raw.Shift(-int32(decimals))
}

// ConstantProductPool is the state account of a constant-product AMM pool.
// It has no account discriminator.
type ConstantProductPool struct {
	Status              uint64
	Nonce               uint64
	BaseDecimals        uint64
	QuoteDecimals       uint64
	TradeFeeNumerator   uint64
	TradeFeeDenominator uint64
	BaseReserve         uint64
	QuoteReserve        uint64
	BaseMint            Pubkey
	QuoteMint           Pubkey
	BaseVault           Pubkey
	QuoteVault          Pubkey
	LPMint              Pubkey
	OpenOrders          Pubkey
	Reserved            [2]uint64
}

func (p ConstantProductPool) decimalsOK() bool {
	return p.BaseDecimals <= MaxMintDecimals && p.QuoteDecimals <= MaxMintDecimals
}

// Depth returns both reserves in UI units, or zero depth when the mint
// decimals are out of range.
func (p ConstantProductPool) Depth() (base, quote decimal.Decimal) {
	if !p.decimalsOK() {
		return decimal.Zero, decimal.Zero
	}
	return scaleDown(fromUint64(p.BaseReserve), p.BaseDecimals),
		scaleDown(fromUint64(p.QuoteReserve), p.QuoteDecimals)
}

// Price is quote reserve over base reserve. It is unset for an empty pool
// or out-of-range decimals.
func (p ConstantProductPool) Price() (decimal.Decimal, bool) {
	base, quote := p.Depth()
	if base.IsZero() || quote.IsZero() {
		return decimal.Zero, false
	}
	return quote.DivRound(base, priceScale), true
}

// ConcentratedPool is the state account of a concentrated-liquidity pool.
// It follows an 8-byte account discriminator.
type ConcentratedPool struct {
	Bump           uint8
	AmmConfig      Pubkey
	Owner          Pubkey
	TokenMint0     Pubkey
	TokenMint1     Pubkey
	TokenVault0    Pubkey
	TokenVault1    Pubkey
	ObservationKey Pubkey
	MintDecimals0  uint8
	MintDecimals1  uint8
	TickSpacing    uint16
	Liquidity      Uint128
	SqrtPriceX64   Uint128
	TickCurrent    int32
}

func (p ConcentratedPool) sqrtPrice() decimal.Decimal {
	if p.MintDecimals0 > MaxMintDecimals || p.MintDecimals1 > MaxMintDecimals {
		return decimal.Zero
	}
	return p.SqrtPriceX64.Decimal().DivRound(q64, priceScale)
}

// Price is (sqrtPriceX64 / 2^64)^2 adjusted for mint decimals.
func (p ConcentratedPool) Price() (decimal.Decimal, bool) {
	s := p.sqrtPrice()
	if s.IsZero() {
		return decimal.Zero, false
	}
	raw := s.Mul(s)
	return raw.Shift(int32(p.MintDecimals0) - int32(p.MintDecimals1)).Round(priceScale), true
}

// Depth returns the virtual reserves at the current tick: L/sqrtP of token
// 0 and L*sqrtP of token 1.
func (p ConcentratedPool) Depth() (base, quote decimal.Decimal) {
	s := p.sqrtPrice()
	if s.IsZero() {
		return decimal.Zero, decimal.Zero
	}
	l := p.Liquidity.Decimal()
	base = scaleDown(l.DivRound(s, priceScale), uint64(p.MintDecimals0))
	quote = scaleDown(l.Mul(s), uint64(p.MintDecimals1))
	return base, quote
}

// SwapBaseIn sells an exact amount of the input token.
type SwapBaseIn struct {
	AmountIn         uint64
	MinimumAmountOut uint64
}

// SwapBaseOut buys an exact amount of the output token.
type SwapBaseOut struct {
	MaxAmountIn uint64
	AmountOut   uint64
}

// ConcentratedSwap is the swap instruction of the concentrated-liquidity
// program.
type ConcentratedSwap struct {
	Amount               uint64
	OtherAmountThreshold uint64
	SqrtPriceLimitX64    Uint128
	IsBaseInput          bool
}

// Route is a router instruction forwarding a single swap.
type Route struct {
	InAmount        uint64
	QuotedOutAmount uint64
	SlippageBps     uint16
	PlatformFeeBps  uint8
}

// RouteWithTokenLedger is the versioned router instruction. Its
// discriminator extends the Route discriminator.
type RouteWithTokenLedger struct {
	Route
	TokenLedger Pubkey
}
