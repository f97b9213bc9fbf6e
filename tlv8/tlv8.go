// Package tlv8 implements Apple's length-prefixed tag-value-length encoding
// used throughout the pairing handshakes.
package tlv8

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// MaxFragmentLen is the largest value length a single TLV8 item may carry;
// longer values are split into consecutive same-tag fragments.
const MaxFragmentLen = 255

// ErrTruncated is returned when the byte stream ends mid-item.
var ErrTruncated = errors.New("tlv8: truncated item")

// Item is a single decoded (or pre-fragmentation) tag/value pair.
type Item struct {
	Tag   byte
	Value []byte
}

// Encode serializes items in order, splitting any value longer than
// MaxFragmentLen into consecutive fragments carrying the same tag.
func Encode(items ...Item) []byte {
	var buf bytes.Buffer
	for _, it := range items {
		v := it.Value
		if len(v) == 0 {
			buf.WriteByte(it.Tag)
			buf.WriteByte(0)
			continue
		}
		for len(v) > 0 {
			n := len(v)
			if n > MaxFragmentLen {
				n = MaxFragmentLen
			}
			buf.WriteByte(it.Tag)
			buf.WriteByte(byte(n))
			buf.Write(v[:n])
			v = v[n:]
		}
	}
	return buf.Bytes()
}

// EncodeUint8 is a convenience wrapper for single-byte integer tags.
func EncodeUint8(tag byte, v uint8) Item {
	return Item{Tag: tag, Value: []byte{v}}
}

// EncodeUint32 encodes v as 4 little-endian bytes.
func EncodeUint32(tag byte, v uint32) Item {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return Item{Tag: tag, Value: b}
}

// Decode parses a TLV8 byte stream, concatenating adjacent fragments of the
// same tag into a single Item while preserving the order in which distinct
// tag runs first appear. Two items are considered fragments of the same
// logical value only when they are adjacent in the stream with identical
// tags; a different tag in between starts a new, independent item even if
// that tag repeats later.
func Decode(data []byte) ([]Item, error) {
	var items []Item

	i := 0
	for i < len(data) {
		if i+2 > len(data) {
			return nil, ErrTruncated
		}
		tag := data[i]
		length := int(data[i+1])
		i += 2
		if i+length > len(data) {
			return nil, ErrTruncated
		}
		value := data[i : i+length]
		i += length

		if n := len(items); n > 0 && items[n-1].Tag == tag {
			items[n-1].Value = append(items[n-1].Value, value...)
			continue
		}

		items = append(items, Item{Tag: tag, Value: append([]byte(nil), value...)})
	}

	return items, nil
}

// GetByte returns the first byte of the tag's value, and whether the tag
// was present at all.
func GetByte(items []Item, tag byte) (byte, bool) {
	for _, it := range items {
		if it.Tag == tag {
			if len(it.Value) == 0 {
				return 0, true
			}
			return it.Value[0], true
		}
	}
	return 0, false
}

// Get returns the raw value bytes for tag, or nil if absent.
func Get(items []Item, tag byte) ([]byte, bool) {
	for _, it := range items {
		if it.Tag == tag {
			return it.Value, true
		}
	}
	return nil, false
}

// GetUint32 decodes a little-endian uint32 value for tag.
func GetUint32(items []Item, tag byte) (uint32, bool) {
	v, ok := Get(items, tag)
	if !ok || len(v) < 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(v), true
}
