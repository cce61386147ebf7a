// Package flagcodec encodes small fixed-layout records of unsigned integers.
//
// A record is written as a version byte, a presence bitmask and then every
// non-zero field in declaration order:
//
//	[version][mask uvarint][field uvarint]...
//
// Bit i of the mask is set iff field i is non-zero, so all-default records
// cost two bytes and absent fields decode back to zero.
package flagcodec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// MaxFields is the largest record a single mask can describe.
const MaxFields = 64

// ErrCorrupt is wrapped by every decode error.
var ErrCorrupt = errors.New("corrupt record")

var (
	ErrEmpty        = fmt.Errorf("%w: empty input", ErrCorrupt)
	ErrVersion      = fmt.Errorf("%w: unsupported version", ErrCorrupt)
	ErrUnknownFlags = fmt.Errorf("%w: unknown presence flags", ErrCorrupt)
	ErrTruncated    = fmt.Errorf("%w: truncated", ErrCorrupt)
	ErrTrailingData = fmt.Errorf("%w: trailing data", ErrCorrupt)
)

// Encode appends the record for fields to a new buffer. It panics if more than
// MaxFields fields are given; layouts are fixed at compile time.
func Encode(version byte, fields []uint64) []byte {
	if len(fields) > MaxFields {
		panic(fmt.Sprintf("flagcodec: %d fields exceed mask width", len(fields)))
	}

	var mask uint64
	for i, f := range fields {
		if f != 0 {
			mask |= 1 << uint(i)
		}
	}

	buf := make([]byte, 0, 1+binary.MaxVarintLen64*(1+len(fields)))
	buf = append(buf, version)
	buf = binary.AppendUvarint(buf, mask)
	for _, f := range fields {
		if f != 0 {
			buf = binary.AppendUvarint(buf, f)
		}
	}
	return buf
}

// Decode parses a record of n fields written by Encode with the same version.
// Absent fields are returned as zero.
func Decode(data []byte, version byte, n int) ([]uint64, error) {
	if n < 0 || n > MaxFields {
		return nil, fmt.Errorf("flagcodec: invalid field count %d", n)
	}
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if data[0] != version {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVersion, data[0], version)
	}
	pos := 1

	mask, k := binary.Uvarint(data[pos:])
	if k <= 0 {
		return nil, fmt.Errorf("%w: presence mask", ErrTruncated)
	}
	pos += k

	if n < MaxFields && mask>>uint(n) != 0 {
		return nil, fmt.Errorf("%w: mask %#x for %d fields", ErrUnknownFlags, mask, n)
	}

	fields := make([]uint64, n)
	for i := range n {
		if mask&(1<<uint(i)) == 0 {
			continue
		}
		v, k := binary.Uvarint(data[pos:])
		if k <= 0 {
			return nil, fmt.Errorf("%w: field %d", ErrTruncated, i)
		}
		if v == 0 {
			// Encode never writes a present zero.
			return nil, fmt.Errorf("%w: field %d flagged present but zero", ErrCorrupt, i)
		}
		fields[i] = v
		pos += k
	}

	if pos != len(data) {
		return nil, fmt.Errorf("%w: %d bytes", ErrTrailingData, len(data)-pos)
	}
	return fields, nil
}
