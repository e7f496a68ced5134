// Package payload encodes staged row payloads.
//
// Layout (version 1):
//
//	"IMPL" | version byte | uvarint pair count |
//	  (uvarint key len | key | uvarint value len | value)* |
//	CRC32 (IEEE, big endian) of everything before it
//
// Keys are written in ascending order, so equal maps always encode to equal bytes.
package payload

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"sort"
	"unicode/utf8"
)

const (
	Version byte = 1

	magic = "IMPL"
	// maxPairs caps decode allocations for hostile counts.
	maxPairs = 1 << 16
)

var (
	ErrCorrupt            = errors.New("payload corrupt")
	ErrUnsupportedVersion = errors.New("payload version unsupported")
)

// Payload maps target field names to cell text.
type Payload map[string]string

// Keys returns the field names in ascending order.
func (p Payload) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Encode serializes p deterministically.
func Encode(p Payload) []byte {
	var buf bytes.Buffer
	buf.WriteString(magic)
	buf.WriteByte(Version)

	var tmp [binary.MaxVarintLen64]byte
	writeUvarint := func(v uint64) {
		n := binary.PutUvarint(tmp[:], v)
		buf.Write(tmp[:n])
	}

	writeUvarint(uint64(len(p)))
	for _, k := range p.Keys() {
		v := p[k]
		writeUvarint(uint64(len(k)))
		buf.WriteString(k)
		writeUvarint(uint64(len(v)))
		buf.WriteString(v)
	}

	sum := crc32.ChecksumIEEE(buf.Bytes())
	var trailer [4]byte
	binary.BigEndian.PutUint32(trailer[:], sum)
	buf.Write(trailer[:])
	return buf.Bytes()
}

// Decode parses bytes written by Encode. It never returns a partial payload.
func Decode(data []byte) (Payload, error) {
	if len(data) < len(magic)+1+1+4 {
		return nil, fmt.Errorf("%w: %d bytes is too short", ErrCorrupt, len(data))
	}
	if string(data[:len(magic)]) != magic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}

	body, trailer := data[:len(data)-4], data[len(data)-4:]
	if crc32.ChecksumIEEE(body) != binary.BigEndian.Uint32(trailer) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	if v := body[len(magic)]; v != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}

	r := &reader{buf: body[len(magic)+1:]}
	count, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	if count > maxPairs {
		return nil, fmt.Errorf("%w: %d pairs", ErrCorrupt, count)
	}

	p := make(Payload, count)
	prev := ""
	for i := uint64(0); i < count; i++ {
		k, err := r.str()
		if err != nil {
			return nil, err
		}
		v, err := r.str()
		if err != nil {
			return nil, err
		}
		if i > 0 && k <= prev {
			return nil, fmt.Errorf("%w: keys out of order", ErrCorrupt)
		}
		prev = k
		p[k] = v
	}
	if len(r.buf) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(r.buf))
	}
	return p, nil
}

type reader struct {
	buf []byte
}

func (r *reader) uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.buf)
	if n <= 0 {
		return 0, fmt.Errorf("%w: bad length prefix", ErrCorrupt)
	}
	r.buf = r.buf[n:]
	return v, nil
}

func (r *reader) str() (string, error) {
	n, err := r.uvarint()
	if err != nil {
		return "", err
	}
	if n > uint64(len(r.buf)) {
		return "", fmt.Errorf("%w: length %d exceeds remaining %d bytes", ErrCorrupt, n, len(r.buf))
	}
	s := string(r.buf[:n])
	r.buf = r.buf[n:]
	if !utf8.ValidString(s) {
		return "", fmt.Errorf("%w: invalid UTF-8", ErrCorrupt)
	}
	return s, nil
}
