// Package registry decodes raw account and instruction bytes received from
// a chain-data stream into typed Go values. Parsers are keyed by program and
// either account size or instruction discriminator; instruction lookup picks
// the most specific (longest) discriminator that prefixes the payload.
//
// Input bytes come from an untrusted source. Lookups and decoding never
// panic and report failure with a false result.
package registry

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrDuplicateKey  = errors.New("registry: duplicate key")
	ErrInvalidLayout = errors.New("registry: layout is not fixed-size")
	ErrInvalidKey    = errors.New("registry: invalid key")
)

// KeyKind tells account keys from instruction keys.
type KeyKind uint8

const (
	KindAccount KeyKind = iota + 1
	KindInstruction
)

func (k KeyKind) String() string {
	switch k {
	case KindAccount:
		return "account"
	case KindInstruction:
		return "instruction"
	default:
		return "unknown"
	}
}

// Key identifies a registered parser.
//
// Account keys are unique by (Program, Size); Discriminator, when set, is
// still verified on decode. Instruction keys are unique by (Program,
// Discriminator) and Size is unused.
type Key struct {
	Kind          KeyKind
	Program       ProgramID
	Size          int
	Discriminator []byte
}

// AccountKey builds an account key. disc may be nil for layouts without an
// account discriminator.
func AccountKey(program ProgramID, size int, disc []byte) Key {
	return Key{Kind: KindAccount, Program: program, Size: size, Discriminator: disc}
}

// InstructionKey builds an instruction key.
func InstructionKey(program ProgramID, disc []byte) Key {
	return Key{Kind: KindInstruction, Program: program, Discriminator: disc}
}

// Layout is a fixed-size little-endian structure decoder.
type Layout struct {
	Size   int
	decode func(body []byte) (any, bool)
}

// Fixed returns the Layout of T. T must consist only of fixed-size fields
// (integers, bools, arrays and nested structs of those); encoding/binary
// lays fields out back to back with no padding, which matches the on-wire
// layouts this package decodes.
func Fixed[T any]() Layout {
	var zero T
	return Layout{
		Size: binary.Size(zero),
		decode: func(body []byte) (any, bool) {
			var v T
			if _, err := binary.Decode(body, binary.LittleEndian, &v); err != nil {
				return nil, false
			}
			return v, true
		},
	}
}

// Item is a registered parser. Items are created by Register and are
// read-only afterwards.
type Item struct {
	name   string
	key    Key
	layout Layout
}

// Name returns the display name of the parser.
func (it *Item) Name() string { return it.name }

// Key returns the key the item was registered under.
func (it *Item) Key() Key { return it.key }

// FixedSize returns the size of the decoded structure, excluding the
// discriminator.
func (it *Item) FixedSize() int { return it.layout.Size }

// Decode validates payload against the item and decodes it. The payload
// must hold at least the discriminator plus the fixed structure; trailing
// bytes are ignored. The discriminator check is skipped when the item has
// none.
func (it *Item) Decode(payload []byte) (any, bool) {
	if it == nil || it.layout.decode == nil {
		return nil, false
	}
	disc := it.key.Discriminator
	if len(payload) < len(disc)+it.layout.Size {
		return nil, false
	}
	if len(disc) > 0 && !bytes.Equal(payload[:len(disc)], disc) {
		return nil, false
	}
	return it.layout.decode(payload[len(disc) : len(disc)+it.layout.Size])
}

type accountKey struct {
	program ProgramID
	size    int
}

// Registry is the keyed parser table.
type Registry struct {
	mu           sync.RWMutex
	accounts     map[accountKey]*Item
	instructions map[ProgramID][]*Item // sorted by discriminator length, longest first
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		accounts:     make(map[accountKey]*Item),
		instructions: make(map[ProgramID][]*Item),
	}
}

// Register adds a parser under key. Registering a second account parser
// for the same (program, size), or a second instruction parser for the same
// (program, discriminator), fails with ErrDuplicateKey and leaves the first
// registration in place.
func (r *Registry) Register(key Key, name string, layout Layout) error {
	if layout.Size < 0 || layout.decode == nil {
		return fmt.Errorf("%w: %s", ErrInvalidLayout, name)
	}
	key.Discriminator = bytes.Clone(key.Discriminator)

	r.mu.Lock()
	defer r.mu.Unlock()

	item := &Item{name: name, key: key, layout: layout}

	switch key.Kind {
	case KindAccount:
		if key.Size < len(key.Discriminator)+layout.Size {
			return fmt.Errorf("%w: account %s size %d smaller than discriminator+layout %d",
				ErrInvalidKey, name, key.Size, len(key.Discriminator)+layout.Size)
		}
		ak := accountKey{program: key.Program, size: key.Size}
		if prev, ok := r.accounts[ak]; ok {
			return fmt.Errorf("%w: account %s/%d already registered as %s",
				ErrDuplicateKey, key.Program, key.Size, prev.name)
		}
		r.accounts[ak] = item

	case KindInstruction:
		items := r.instructions[key.Program]
		for _, prev := range items {
			if bytes.Equal(prev.key.Discriminator, key.Discriminator) {
				return fmt.Errorf("%w: instruction %s/%x already registered as %s",
					ErrDuplicateKey, key.Program, key.Discriminator, prev.name)
			}
		}
		items = append(items, item)
		sort.SliceStable(items, func(i, j int) bool {
			return len(items[i].key.Discriminator) > len(items[j].key.Discriminator)
		})
		r.instructions[key.Program] = items

	default:
		return fmt.Errorf("%w: kind %d for %s", ErrInvalidKey, key.Kind, name)
	}
	return nil
}

// LookupAccount returns the account parser registered for exactly
// (program, size).
func (r *Registry) LookupAccount(program ProgramID, size int) (*Item, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.accounts[accountKey{program: program, size: size}]
	return item, ok
}

// LookupInstruction returns the instruction parser of program whose
// discriminator is the longest prefix of payload.
func (r *Registry) LookupInstruction(program ProgramID, payload []byte) (*Item, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, item := range r.instructions[program] {
		if bytes.HasPrefix(payload, item.key.Discriminator) {
			return item, true
		}
	}
	return nil, false
}

// Decode decodes payload with item. It is a convenience for item.Decode.
func (r *Registry) Decode(item *Item, payload []byte) (any, bool) {
	return item.Decode(payload)
}

// DecodeAccount looks up and decodes an account in one step.
func (r *Registry) DecodeAccount(program ProgramID, data []byte) (*Item, any, bool) {
	item, ok := r.LookupAccount(program, len(data))
	if !ok {
		return nil, nil, false
	}
	v, ok := item.Decode(data)
	if !ok {
		return item, nil, false
	}
	return item, v, true
}

// DecodeInstruction looks up and decodes an instruction in one step.
func (r *Registry) DecodeInstruction(program ProgramID, data []byte) (*Item, any, bool) {
	item, ok := r.LookupInstruction(program, data)
	if !ok {
		return nil, nil, false
	}
	v, ok := item.Decode(data)
	if !ok {
		return item, nil, false
	}
	return item, v, true
}

// Len returns the number of registered parsers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := len(r.accounts)
	for _, items := range r.instructions {
		n += len(items)
	}
	return n
}
