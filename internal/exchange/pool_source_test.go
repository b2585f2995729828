package exchange

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/registry"
)

func key32(b byte) [32]byte {
	var k [32]byte
	for i := range k {
		k[i] = b + byte(i)
	}
	return k
}

func encodeLE(t *testing.T, disc []byte, v any) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(disc)
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, v))
	return buf.Bytes()
}

func poolFixture(t *testing.T) (registry.ProgramID, registry.Pubkey, *registry.Registry) {
	t.Helper()
	program := registry.ProgramID(key32(1))
	reg, err := registry.Default(registry.Programs{ConstantProduct: program})
	require.NoError(t, err)
	return program, registry.Pubkey(key32(80)), reg
}

func solPool(t *testing.T) []byte {
	return encodeLE(t, nil, registry.ConstantProductPool{
		BaseDecimals:  9,
		QuoteDecimals: 6,
		BaseReserve:   2_000_000_000,
		QuoteReserve:  300_000_000,
	})
}

func TestPoolSource_AccountBecomesMarketEvent(t *testing.T) {
	program, addr, reg := poolFixture(t)
	var got []domain.MarketEvent
	src := NewPoolSource(nil, reg, map[registry.Pubkey]string{addr: "SOLUSDC"},
		func(ev domain.MarketEvent) { got = append(got, ev) }, discardLogger())

	require.NoError(t, src.Handle(context.Background(), registry.RawUpdate{
		Program: program, Kind: registry.KindAccount, Address: addr, Slot: 777, Data: solPool(t),
	}))

	require.Len(t, got, 1)
	ev := got[0]
	assert.Equal(t, "SOLUSDC", ev.Symbol)
	assert.Equal(t, uint64(777), ev.Sequence)
	assert.Equal(t, "chain", ev.Source)
	assert.Equal(t, "150", ev.BidPrice.String())
	assert.Equal(t, "150", ev.AskPrice.String())
	assert.Equal(t, "2", ev.BidQty.String())
}

func TestPoolSource_OutOfRangeDecimalsProduceNoEvent(t *testing.T) {
	program, addr, reg := poolFixture(t)
	src := NewPoolSource(nil, reg, map[registry.Pubkey]string{addr: "SOLUSDC"},
		func(domain.MarketEvent) { t.Fatal("no event expected") }, discardLogger())

	for _, pool := range []registry.ConstantProductPool{
		{BaseDecimals: 1 << 31, QuoteDecimals: 6, BaseReserve: 1, QuoteReserve: 1},
		{BaseDecimals: 1_000_000_000, QuoteDecimals: 6, BaseReserve: 1, QuoteReserve: 1},
		{BaseDecimals: 9, QuoteDecimals: ^uint64(0), BaseReserve: 1, QuoteReserve: 1},
	} {
		done := make(chan error, 1)
		go func() {
			done <- src.Handle(context.Background(), registry.RawUpdate{
				Program: program, Kind: registry.KindAccount, Address: addr, Slot: 1,
				Data: encodeLE(t, nil, pool),
			})
		}()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatalf("Handle hung on decimals %d/%d", pool.BaseDecimals, pool.QuoteDecimals)
		}
	}

	decoded, _, _ := src.Stats()
	assert.Equal(t, uint64(3), decoded)
}

func TestPoolSource_IgnoresUnmappedAndUnknown(t *testing.T) {
	program, _, reg := poolFixture(t)
	src := NewPoolSource(nil, reg, nil,
		func(domain.MarketEvent) { t.Fatal("no event expected") }, discardLogger())
	ctx := context.Background()

	// Decodes, but the address is not mapped to a symbol.
	require.NoError(t, src.Handle(ctx, registry.RawUpdate{Program: program, Kind: registry.KindAccount, Data: solPool(t)}))
	// Unknown program.
	require.NoError(t, src.Handle(ctx, registry.RawUpdate{Program: registry.ProgramID(key32(9)), Kind: registry.KindAccount, Data: solPool(t)}))
	// Wrong size.
	require.NoError(t, src.Handle(ctx, registry.RawUpdate{Program: program, Kind: registry.KindAccount, Data: []byte{1, 2, 3}}))

	decoded, unknown, _ := src.Stats()
	assert.Equal(t, uint64(1), decoded)
	assert.Equal(t, uint64(2), unknown)
}

func TestPoolSource_CountsInstructions(t *testing.T) {
	program, _, reg := poolFixture(t)
	src := NewPoolSource(nil, reg, nil, func(domain.MarketEvent) {}, discardLogger())
	data := encodeLE(t, registry.SwapBaseInDiscriminator, registry.SwapBaseIn{AmountIn: 10, MinimumAmountOut: 9})

	for range 2 {
		require.NoError(t, src.Handle(context.Background(), registry.RawUpdate{
			Program: program, Kind: registry.KindInstruction, Data: data,
		}))
	}
	assert.Equal(t, map[string]uint64{"swap_base_in": 2}, src.Instructions())
}

type fakeReader struct {
	updates []registry.RawUpdate
	invalid []error
	closed  atomic.Int32
}

func (f *fakeReader) Consume(ctx context.Context, handler func(context.Context, registry.RawUpdate) error, onInvalid func(error)) error {
	for _, err := range f.invalid {
		onInvalid(err)
	}
	for _, u := range f.updates {
		if err := handler(ctx, u); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeReader) Close() error {
	f.closed.Add(1)
	return nil
}

func TestPoolSource_RunOpensAndClosesReader(t *testing.T) {
	program, addr, reg := poolFixture(t)
	reader := &fakeReader{
		updates: []registry.RawUpdate{{Program: program, Kind: registry.KindAccount, Address: addr, Slot: 1, Data: solPool(t)}},
		invalid: []error{errors.New("missing kind header")},
	}
	events := make(chan domain.MarketEvent, 1)
	src := NewPoolSource(func() UpdateReader { return reader }, reg, map[registry.Pubkey]string{addr: "SOLUSDC"},
		func(ev domain.MarketEvent) { events <- ev }, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	ev := <-events
	assert.Equal(t, "SOLUSDC", ev.Symbol)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, int32(1), reader.closed.Load())

	_, _, invalid := src.Stats()
	assert.Equal(t, uint64(1), invalid)
}

func TestPoolsFromConfig(t *testing.T) {
	addr := registry.Pubkey(key32(80))
	pools, err := PoolsFromConfig(map[string]string{addr.String(): "solusdc"})
	require.NoError(t, err)
	assert.Equal(t, "SOLUSDC", pools[addr])

	_, err = PoolsFromConfig(map[string]string{"nope": "X"})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}
