package registry

import (
	"crypto/sha256"
	"errors"
)

// Programs names the on-chain programs whose layouts Default registers.
// Unset programs are skipped.
type Programs struct {
	ConstantProduct ProgramID
	Concentrated    ProgramID
	Router          ProgramID
}

// Account sizes of the registered pool layouts.
const (
	ConstantProductPoolSize = 272
	ConcentratedPoolSize    = 8 + 265 + 64
)

// Instruction discriminators.
var (
	SwapBaseInDiscriminator  = []byte{9}
	SwapBaseOutDiscriminator = []byte{11}

	RouteDiscriminator                = []byte{0xe5}
	RouteWithTokenLedgerDiscriminator = []byte{0xe5, 0x17}

	ConcentratedPoolDiscriminator = AnchorDiscriminator("account", "PoolState")
	ConcentratedSwapDiscriminator = AnchorDiscriminator("global", "swap")
)

// AnchorDiscriminator is the first eight bytes of sha256("<namespace>:<name>").
func AnchorDiscriminator(namespace, name string) []byte {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	return sum[:8]
}

// Default builds the registry for the given programs.
func Default(p Programs) (*Registry, error) {
	r := New()
	var errs []error
	reg := func(key Key, name string, layout Layout) {
		if err := r.Register(key, name, layout); err != nil {
			errs = append(errs, err)
		}
	}

	if !p.ConstantProduct.IsZero() {
		reg(AccountKey(p.ConstantProduct, ConstantProductPoolSize, nil),
			"constant_product_pool", Fixed[ConstantProductPool]())
		reg(InstructionKey(p.ConstantProduct, SwapBaseInDiscriminator),
			"swap_base_in", Fixed[SwapBaseIn]())
		reg(InstructionKey(p.ConstantProduct, SwapBaseOutDiscriminator),
			"swap_base_out", Fixed[SwapBaseOut]())
	}
	if !p.Concentrated.IsZero() {
		reg(AccountKey(p.Concentrated, ConcentratedPoolSize, ConcentratedPoolDiscriminator),
			"concentrated_pool", Fixed[ConcentratedPool]())
		reg(InstructionKey(p.Concentrated, ConcentratedSwapDiscriminator),
			"concentrated_swap", Fixed[ConcentratedSwap]())
	}
	if !p.Router.IsZero() {
		reg(InstructionKey(p.Router, RouteDiscriminator),
			"route", Fixed[Route]())
		reg(InstructionKey(p.Router, RouteWithTokenLedgerDiscriminator),
			"route_with_token_ledger", Fixed[RouteWithTokenLedger]())
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return r, nil
}
