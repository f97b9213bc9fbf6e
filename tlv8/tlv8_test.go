package tlv8

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	items := []Item{
		{Tag: 0x01, Value: []byte{0x03}},
		{Tag: 0x03, Value: []byte("hello")},
	}

	encoded := Encode(items...)
	decoded, err := Decode(encoded)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.Equal(t, items[0].Value, decoded[0].Value)
	assert.Equal(t, items[1].Value, decoded[1].Value)
}

func TestEncodeDecodeFragmentedValue(t *testing.T) {
	value := bytes.Repeat([]byte{0x42}, 612)
	encoded := Encode(Item{Tag: 0x09, Value: value})

	// 612 bytes => 255 + 255 + 102 => three fragments of the same tag.
	require.Len(t, encoded, 2+255+2+255+2+102)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, value, decoded[0].Value)
}

func TestDecodeDistinctTagsNotMerged(t *testing.T) {
	encoded := Encode(
		Item{Tag: 0x01, Value: []byte{0x01}},
		Item{Tag: 0x02, Value: []byte{0x02}},
		Item{Tag: 0x01, Value: []byte{0x03}},
	)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	require.Len(t, decoded, 3)
	assert.Equal(t, byte(0x01), decoded[2].Tag)
	assert.Equal(t, []byte{0x03}, decoded[2].Value)
}

func TestDecodeTruncated(t *testing.T) {
	_, err := Decode([]byte{0x01, 0x05, 0x01, 0x02})
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestEncodeEmptyValue(t *testing.T) {
	encoded := Encode(Item{Tag: 0x06, Value: nil})
	decoded, err := Decode(encoded)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Empty(t, decoded[0].Value)
}

func TestGetHelpers(t *testing.T) {
	items := []Item{EncodeUint8(0x06, 2), EncodeUint32(0x07, 123456)}

	b, ok := GetByte(items, 0x06)
	require.True(t, ok)
	assert.Equal(t, byte(2), b)

	v, ok := GetUint32(items, 0x07)
	require.True(t, ok)
	assert.Equal(t, uint32(123456), v)

	_, ok = Get(items, 0xFF)
	assert.False(t, ok)
}
