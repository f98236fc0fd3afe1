package compression

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressor(t *testing.T) {
	c := &Compressor{Threshold: 64}

	t.Run("Small_Payload_Untouched", func(t *testing.T) {
		data := []byte(`{"id":"a"}`)
		out, err := c.Compress(data)
		require.NoError(t, err)
		assert.Equal(t, data, out)
		assert.False(t, IsCompressed(out))
	})

	t.Run("Round_Trip", func(t *testing.T) {
		data := bytes.Repeat([]byte(`{"vector":[0.125,0.25,0.5]},`), 200)
		out, err := c.Compress(data)
		require.NoError(t, err)
		assert.True(t, IsCompressed(out))
		assert.Less(t, len(out), len(data))

		back, err := c.Decompress(out)
		require.NoError(t, err)
		assert.Equal(t, data, back)
	})

	t.Run("Plain_Data_Passes_Through", func(t *testing.T) {
		data := []byte("plain json")
		back, err := c.Decompress(data)
		require.NoError(t, err)
		assert.Equal(t, data, back)
	})

	t.Run("Corrupt_Frame", func(t *testing.T) {
		_, err := c.Decompress(append([]byte{0x28, 0xb5, 0x2f, 0xfd}, 0xff, 0x00, 0x13))
		assert.Error(t, err)
	})
}
