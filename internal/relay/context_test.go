package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextSlotEmpty(t *testing.T) {
	slot := NewContextSlot()

	payload, version, ok := slot.Get()
	assert.False(t, ok)
	assert.Nil(t, payload)
	assert.Zero(t, version)
}

func TestContextSlotLastWriteWins(t *testing.T) {
	slot := NewContextSlot()

	slot.Set([]byte("first"))
	slot.Set([]byte("second"))

	payload, version, ok := slot.Get()
	require.True(t, ok)
	assert.Equal(t, []byte("second"), payload)
	assert.Equal(t, uint64(2), version)
}

func TestContextSlotCopiesPayload(t *testing.T) {
	slot := NewContextSlot()

	in := []byte("payload")
	slot.Set(in)
	in[0] = 'X'

	out, _, ok := slot.Get()
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), out)

	out[0] = 'Y'
	again, _, _ := slot.Get()
	assert.Equal(t, []byte("payload"), again)
}
