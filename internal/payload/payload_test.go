package payload

import (
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	tests := []struct {
		name string
		in   Payload
	}{
		{"empty", Payload{}},
		{"single field", Payload{"name": "Alpha"}},
		{"empty values kept", Payload{"name": "", "code": "A1"}},
		{"unicode and separators", Payload{"name": "Cruz Roja Española", "comments": "a,b;\"c\"\n<d>"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(Encode(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.in, got)
		})
	}
}

func TestEncode_Deterministic(t *testing.T) {
	a := Payload{}
	b := Payload{}
	for _, k := range []string{"name", "code", "um", "model", "year"} {
		a[k] = k + "-value"
	}
	for _, k := range []string{"year", "model", "um", "code", "name"} {
		b[k] = k + "-value"
	}
	assert.Equal(t, Encode(a), Encode(b))
}

func TestEncode_Layout(t *testing.T) {
	data := Encode(Payload{"a": "b"})
	assert.Equal(t, []byte("IMPL"), data[:4])
	assert.Equal(t, Version, data[4])
	assert.Equal(t, []byte{1, 1, 'a', 1, 'b'}, data[5:10])
	assert.Len(t, data, 14)
}

func TestDecode_Corrupt(t *testing.T) {
	valid := Encode(Payload{"name": "Alpha", "code": "A1"})

	cases := map[string][]byte{
		"nil":            nil,
		"truncated":      valid[:len(valid)/2],
		"missing crc":    valid[:len(valid)-4],
		"bad magic":      append([]byte("XXXX"), valid[4:]...),
		"flipped byte":   flip(valid, 8),
		"trailing bytes": append(append([]byte{}, valid...), 0),
		"legacy pickle":  []byte("(dp0\nS'name'\np1\nS'Alpha'\np2\ns."),
	}

	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := Decode(data)
			assert.ErrorIs(t, err, ErrCorrupt)
			assert.Nil(t, got)
		})
	}
}

func TestDecode_UnsupportedVersion(t *testing.T) {
	data := Encode(Payload{"name": "Alpha"})
	data[4] = 9
	reseal(data)

	_, err := Decode(data)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestDecode_RejectsUnsortedKeys(t *testing.T) {
	body := []byte("IMPL")
	body = append(body, Version, 2, 1, 'b', 0, 1, 'a', 0)
	data := append(body, 0, 0, 0, 0)
	reseal(data)

	_, err := Decode(data)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func flip(data []byte, i int) []byte {
	out := append([]byte{}, data...)
	out[i] ^= 0xff
	return out
}

func reseal(data []byte) {
	body := data[:len(data)-4]
	binary.BigEndian.PutUint32(data[len(data)-4:], crc32.ChecksumIEEE(body))
}
