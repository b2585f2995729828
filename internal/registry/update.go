package registry

import (
	"fmt"
	"strings"
)

// RawUpdate is one undecoded buffer delivered by a chain-data stream: the
// full account data for KindAccount, or the instruction data for
// KindInstruction.
type RawUpdate struct {
	Program ProgramID
	Kind    KeyKind
	Address Pubkey
	Slot    uint64
	Data    []byte
}

// ParseKind maps "account" and "instruction" to their KeyKind.
func ParseKind(s string) (KeyKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "account":
		return KindAccount, nil
	case "instruction":
		return KindInstruction, nil
	default:
		return 0, fmt.Errorf("%w: kind %q", ErrInvalidKey, s)
	}
}

// DecodeUpdate dispatches u to DecodeAccount or DecodeInstruction by its
// kind. Unknown kinds never match.
func (r *Registry) DecodeUpdate(u RawUpdate) (*Item, any, bool) {
	switch u.Kind {
	case KindAccount:
		return r.DecodeAccount(u.Program, u.Data)
	case KindInstruction:
		return r.DecodeInstruction(u.Program, u.Data)
	default:
		return nil, nil, false
	}
}
