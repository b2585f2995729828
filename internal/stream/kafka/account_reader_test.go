package kafka

import (
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbengine/internal/registry"
)

func key(b byte) [32]byte {
	var k [32]byte
	for i := range k {
		k[i] = b + byte(i)
	}
	return k
}

func TestToRawUpdate(t *testing.T) {
	program := registry.ProgramID(key(1))
	address := registry.Pubkey(key(50))

	u, err := ToRawUpdate(kafka.Message{
		Offset: 9,
		Key:    []byte(program.String()),
		Value:  []byte{1, 2, 3},
		Headers: []kafka.Header{
			{Key: HeaderKind, Value: []byte("account")},
			{Key: HeaderAddress, Value: []byte(address.String())},
			{Key: HeaderSlot, Value: []byte("250000001")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, program, u.Program)
	assert.Equal(t, registry.KindAccount, u.Kind)
	assert.Equal(t, address, u.Address)
	assert.Equal(t, uint64(250000001), u.Slot)
	assert.Equal(t, []byte{1, 2, 3}, u.Data)
}

func TestToRawUpdate_SlotDefaultsToOffset(t *testing.T) {
	program := registry.ProgramID(key(1))
	u, err := ToRawUpdate(kafka.Message{
		Offset:  42,
		Key:     []byte(program.String()),
		Headers: []kafka.Header{{Key: HeaderKind, Value: []byte("instruction")}},
	})
	require.NoError(t, err)
	assert.Equal(t, registry.KindInstruction, u.Kind)
	assert.Equal(t, uint64(42), u.Slot)
	assert.True(t, u.Address == registry.Pubkey{})
}

func TestToRawUpdate_Invalid(t *testing.T) {
	program := []byte(registry.ProgramID(key(1)).String())
	kind := kafka.Header{Key: HeaderKind, Value: []byte("account")}

	cases := map[string]kafka.Message{
		"bad key":      {Key: []byte("not-base58-0OIl"), Headers: []kafka.Header{kind}},
		"missing kind": {Key: program},
		"unknown kind": {Key: program, Headers: []kafka.Header{{Key: HeaderKind, Value: []byte("block")}}},
		"bad slot":     {Key: program, Headers: []kafka.Header{kind, {Key: HeaderSlot, Value: []byte("-1")}}},
		"bad address":  {Key: program, Headers: []kafka.Header{kind, {Key: HeaderAddress, Value: []byte("abc")}}},
	}
	for name, msg := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ToRawUpdate(msg)
			assert.Error(t, err)
		})
	}
}
