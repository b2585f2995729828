package registry

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// ProgramID is a 32-byte on-chain program key.
type ProgramID [32]byte

// ParseProgramID decodes a base58 program key.
func ParseProgramID(s string) (ProgramID, error) {
	var id ProgramID
	raw, err := base58.Decode(s)
	if err != nil {
		return id, fmt.Errorf("registry: parse program id %q: %w", s, err)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("registry: program id %q decodes to %d bytes, want %d", s, len(raw), len(id))
	}
	copy(id[:], raw)
	return id, nil
}

// MustProgramID is ParseProgramID for compile-time constants.
func MustProgramID(s string) ProgramID {
	id, err := ParseProgramID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String renders the key in base58.
func (p ProgramID) String() string {
	return base58.Encode(p[:])
}

// IsZero reports whether the key is unset.
func (p ProgramID) IsZero() bool {
	return p == ProgramID{}
}

// Pubkey is a 32-byte account key embedded in decoded layouts.
type Pubkey [32]byte

// String renders the key in base58.
func (k Pubkey) String() string {
	return base58.Encode(k[:])
}

// ParsePubkey decodes a base58 account key.
func ParsePubkey(s string) (Pubkey, error) {
	id, err := ParseProgramID(s)
	if err != nil {
		return Pubkey{}, err
	}
	return Pubkey(id), nil
}
