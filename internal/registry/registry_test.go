package registry

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func programID(b byte) ProgramID {
	var p ProgramID
	for i := range p {
		p[i] = b + byte(i)
	}
	return p
}

func encode(t *testing.T, disc []byte, v any, tail int) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(disc)
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, v))
	buf.Write(make([]byte, tail))
	return buf.Bytes()
}

type short struct{ A uint64 }

type long struct {
	A uint64
	B uint32
}

func TestLookupInstruction_LongestPrefixWins(t *testing.T) {
	r := New()
	p := programID(1)
	require.NoError(t, r.Register(InstructionKey(p, []byte{1, 2}), "short", Fixed[short]()))
	require.NoError(t, r.Register(InstructionKey(p, []byte{1, 2, 3, 4}), "long", Fixed[long]()))

	item, ok := r.LookupInstruction(p, []byte{1, 2, 3, 4, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	require.True(t, ok)
	assert.Equal(t, "long", item.Name())

	item, ok = r.LookupInstruction(p, []byte{1, 2, 9, 9, 0, 0, 0, 0, 0, 0, 0, 0})
	require.True(t, ok)
	assert.Equal(t, "short", item.Name())

	_, ok = r.LookupInstruction(p, []byte{7})
	assert.False(t, ok)
	_, ok = r.LookupInstruction(programID(2), []byte{1, 2, 3, 4})
	assert.False(t, ok)
}

func TestLookupInstruction_RegistrationOrderDoesNotMatter(t *testing.T) {
	r := New()
	p := programID(1)
	require.NoError(t, r.Register(InstructionKey(p, []byte{1, 2, 3, 4}), "long", Fixed[long]()))
	require.NoError(t, r.Register(InstructionKey(p, []byte{1, 2}), "short", Fixed[short]()))

	item, ok := r.LookupInstruction(p, []byte{1, 2, 3, 4, 5})
	require.True(t, ok)
	assert.Equal(t, "long", item.Name())
}

func TestLookupAccount_ExactSizeOnly(t *testing.T) {
	r := New()
	p := programID(1)
	require.NoError(t, r.Register(AccountKey(p, 8, nil), "short", Fixed[short]()))

	item, ok := r.LookupAccount(p, 8)
	require.True(t, ok)
	assert.Equal(t, "short", item.Name())

	_, ok = r.LookupAccount(p, 9)
	assert.False(t, ok)
	_, ok = r.LookupAccount(programID(2), 8)
	assert.False(t, ok)
}

func TestRegister_DuplicateKeyIsRejected(t *testing.T) {
	r := New()
	p := programID(1)
	require.NoError(t, r.Register(AccountKey(p, 8, nil), "first", Fixed[short]()))
	err := r.Register(AccountKey(p, 8, nil), "second", Fixed[short]())
	assert.ErrorIs(t, err, ErrDuplicateKey)

	item, _ := r.LookupAccount(p, 8)
	assert.Equal(t, "first", item.Name())

	require.NoError(t, r.Register(InstructionKey(p, []byte{5}), "first", Fixed[short]()))
	err = r.Register(InstructionKey(p, []byte{5}), "second", Fixed[short]())
	assert.ErrorIs(t, err, ErrDuplicateKey)
	assert.Equal(t, 2, r.Len())
}

func TestRegister_RejectsBadInput(t *testing.T) {
	r := New()
	p := programID(1)

	err := r.Register(AccountKey(p, 4, nil), "too-small", Fixed[short]())
	assert.ErrorIs(t, err, ErrInvalidKey)

	err = r.Register(AccountKey(p, 64, nil), "slice", Fixed[struct{ B []byte }]())
	assert.ErrorIs(t, err, ErrInvalidLayout)

	err = r.Register(Key{Program: p}, "no-kind", Fixed[short]())
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestItemDecode_ValidatesPayload(t *testing.T) {
	r := New()
	p := programID(1)
	disc := []byte{0xaa, 0xbb}
	require.NoError(t, r.Register(AccountKey(p, 2+12+4, disc), "long", Fixed[long]()))

	payload := encode(t, disc, long{A: 42, B: 7}, 4)
	item, v, ok := r.DecodeAccount(p, payload)
	require.True(t, ok)
	assert.Equal(t, "long", item.Name())
	assert.Equal(t, long{A: 42, B: 7}, v)

	_, ok = item.Decode(payload[:10])
	assert.False(t, ok, "truncated payload")

	bad := bytes.Clone(payload)
	bad[0] = 0
	_, ok = item.Decode(bad)
	assert.False(t, ok, "discriminator mismatch")

	var nilItem *Item
	_, ok = nilItem.Decode(payload)
	assert.False(t, ok)
}

func TestDecode_NeverPanicsOnGarbage(t *testing.T) {
	a, c, rt := programID(1), programID(50), programID(100)
	r, err := Default(Programs{ConstantProduct: a, Concentrated: c, Router: rt})
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 2000; i++ {
		buf := make([]byte, rng.Intn(400))
		rng.Read(buf)
		assert.NotPanics(t, func() {
			for _, p := range []ProgramID{a, c, rt} {
				r.DecodeAccount(p, buf)
				r.DecodeInstruction(p, buf)
			}
		})
	}
}

func TestDefault_ConstantProductPool(t *testing.T) {
	p := programID(1)
	r, err := Default(Programs{ConstantProduct: p})
	require.NoError(t, err)

	pool := ConstantProductPool{
		BaseDecimals:  9,
		QuoteDecimals: 6,
		BaseReserve:   2_000_000_000,
		QuoteReserve:  300_000_000,
	}
	data := encode(t, nil, pool, 0)
	require.Len(t, data, ConstantProductPoolSize)

	_, v, ok := r.DecodeAccount(p, data)
	require.True(t, ok)
	state, ok := v.(PoolState)
	require.True(t, ok)

	price, ok := state.Price()
	require.True(t, ok)
	assert.True(t, price.Equal(decimal.NewFromInt(150)), price.String())

	base, quote := state.Depth()
	assert.True(t, base.Equal(decimal.NewFromInt(2)))
	assert.True(t, quote.Equal(decimal.NewFromInt(300)))
}

func TestPoolState_RejectsOutOfRangeDecimals(t *testing.T) {
	cp := ConstantProductPool{BaseDecimals: 1 << 31, QuoteDecimals: 6, BaseReserve: 1, QuoteReserve: 1}
	_, ok := cp.Price()
	assert.False(t, ok)
	base, quote := cp.Depth()
	assert.True(t, base.IsZero())
	assert.True(t, quote.IsZero())

	cp = ConstantProductPool{BaseDecimals: MaxMintDecimals, QuoteDecimals: MaxMintDecimals, BaseReserve: 2, QuoteReserve: 4}
	price, ok := cp.Price()
	require.True(t, ok)
	assert.True(t, price.Equal(decimal.NewFromInt(2)), price.String())

	cl := ConcentratedPool{MintDecimals0: 200, MintDecimals1: 6, Liquidity: Uint128{Lo: 1}, SqrtPriceX64: Uint128{Hi: 1}}
	_, ok = cl.Price()
	assert.False(t, ok)
	base, quote = cl.Depth()
	assert.True(t, base.IsZero())
	assert.True(t, quote.IsZero())
}

func TestDefault_ConcentratedPool(t *testing.T) {
	p := programID(9)
	r, err := Default(Programs{Concentrated: p})
	require.NoError(t, err)

	pool := ConcentratedPool{
		MintDecimals0: 9,
		MintDecimals1: 6,
		Liquidity:     Uint128{Lo: 1_000_000},
		SqrtPriceX64:  Uint128{Hi: 2},
	}
	data := encode(t, ConcentratedPoolDiscriminator, pool, ConcentratedPoolSize-8-binary.Size(pool))
	require.Len(t, data, ConcentratedPoolSize)

	_, v, ok := r.DecodeAccount(p, data)
	require.True(t, ok)
	got := v.(ConcentratedPool)
	assert.Equal(t, pool, got)

	price, ok := got.Price()
	require.True(t, ok)
	assert.True(t, price.Equal(decimal.NewFromInt(4000)), price.String())

	base, quote := got.Depth()
	assert.True(t, base.Equal(decimal.RequireFromString("0.0005")), base.String())
	assert.True(t, quote.Equal(decimal.NewFromInt(2)), quote.String())
}

func TestDefault_RouterInstructions(t *testing.T) {
	p := programID(3)
	r, err := Default(Programs{Router: p})
	require.NoError(t, err)

	route := Route{InAmount: 10, QuotedOutAmount: 20, SlippageBps: 50}
	item, v, ok := r.DecodeInstruction(p, encode(t, RouteDiscriminator, route, 0))
	require.True(t, ok)
	assert.Equal(t, "route", item.Name())
	assert.Equal(t, route, v)

	ledger := RouteWithTokenLedger{Route: route, TokenLedger: Pubkey{1}}
	item, v, ok = r.DecodeInstruction(p, encode(t, RouteWithTokenLedgerDiscriminator, ledger, 0))
	require.True(t, ok)
	assert.Equal(t, "route_with_token_ledger", item.Name())
	assert.Equal(t, ledger, v)
}

func TestAnchorDiscriminator(t *testing.T) {
	d := AnchorDiscriminator("global", "swap")
	assert.Len(t, d, 8)
	assert.Equal(t, d, AnchorDiscriminator("global", "swap"))
	assert.NotEqual(t, d, AnchorDiscriminator("global", "swap_v2"))
}

func TestProgramID_Base58(t *testing.T) {
	p := programID(7)
	parsed, err := ParseProgramID(p.String())
	require.NoError(t, err)
	assert.Equal(t, p, parsed)

	_, err = ParseProgramID("0OIl")
	assert.Error(t, err)
	_, err = ParseProgramID("abc")
	assert.Error(t, err)

	assert.True(t, ProgramID{}.IsZero())
	assert.Panics(t, func() { MustProgramID("not base58 0") })
}

func TestDecodeUpdate_DispatchesByKind(t *testing.T) {
	r := New()
	p := programID(1)
	require.NoError(t, r.Register(AccountKey(p, 8, nil), "acct", Fixed[short]()))
	require.NoError(t, r.Register(InstructionKey(p, []byte{7}), "ix", Fixed[short]()))

	item, v, ok := r.DecodeUpdate(RawUpdate{Program: p, Kind: KindAccount, Data: encode(t, nil, short{A: 5}, 0)})
	require.True(t, ok)
	assert.Equal(t, "acct", item.Name())
	assert.Equal(t, short{A: 5}, v)

	item, v, ok = r.DecodeUpdate(RawUpdate{Program: p, Kind: KindInstruction, Data: encode(t, []byte{7}, short{A: 6}, 0)})
	require.True(t, ok)
	assert.Equal(t, "ix", item.Name())
	assert.Equal(t, short{A: 6}, v)

	_, _, ok = r.DecodeUpdate(RawUpdate{Program: p, Data: encode(t, nil, short{A: 5}, 0)})
	assert.False(t, ok)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Account ")
	require.NoError(t, err)
	assert.Equal(t, KindAccount, k)

	k, err = ParseKind("instruction")
	require.NoError(t, err)
	assert.Equal(t, KindInstruction, k)

	_, err = ParseKind("block")
	assert.ErrorIs(t, err, ErrInvalidKey)
}
