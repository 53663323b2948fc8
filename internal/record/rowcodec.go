package record

import (
	"errors"
	"fmt"
	"math"

	"github.com/njudb/njudb/internal/alias/bx"
	"github.com/njudb/njudb/internal/storage"
)

var (
	ErrSchemaMismatch             = errors.New("record: value count does not match schema")
	ErrSchemaMismatchNotAllowNull = errors.New("record: column does not allow NULL")
	ErrSchemaMismatchNotInt32     = errors.New("record: value is not an int32-compatible type")
	ErrVarTooLong                 = errors.New("record: variable-length value exceeds u16")
	ErrBadBuffer                  = errors.New("record: buffer too short to decode")
	ErrUnsupportedType            = errors.New("record: unsupported column type")
	ErrUnknownColumn              = errors.New("record: unknown column")
)

// EncodeRow packs values according to schema into a compact row image:
//
//	[nullmap: ceil(N/8) bytes, bit=1 => NULL] [field0] [field1] ...
//
// Variable-length fields (TEXT/BYTES) are prefixed with a u16 length.
func EncodeRow(s Schema, values []any) ([]byte, error) {
	nc := s.NumCols()
	if len(values) != nc {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrSchemaMismatch, nc, len(values))
	}

	nbBytes := (nc + 7) / 8
	out := make([]byte, nbBytes)

	for i, col := range s.Cols {
		v := values[i]
		if v == nil {
			if !col.Nullable {
				return nil, fmt.Errorf("%w: column %q", ErrSchemaMismatchNotAllowNull, col.Name)
			}
			out[i/8] |= 1 << (uint(i) & 7)
			continue
		}

		switch col.Type {
		case ColInt32:
			x, ok := asInt32(v)
			if !ok {
				return nil, fmt.Errorf("%w: column %q", ErrSchemaMismatchNotInt32, col.Name)
			}
			var b [4]byte
			bx.PutU32(b[:], uint32(x))
			out = append(out, b[:]...)

		case ColInt64:
			x, ok := asInt64(v)
			if !ok {
				return nil, fmt.Errorf("%w: column %q is not int64-compatible", ErrSchemaMismatch, col.Name)
			}
			var b [8]byte
			bx.PutU64(b[:], uint64(x))
			out = append(out, b[:]...)

		case ColBool:
			x, ok := v.(bool)
			if !ok {
				return nil, fmt.Errorf("%w: column %q is not a bool", ErrSchemaMismatch, col.Name)
			}
			if x {
				out = append(out, 1)
			} else {
				out = append(out, 0)
			}

		case ColFloat64:
			x, ok := asFloat64(v)
			if !ok {
				return nil, fmt.Errorf("%w: column %q is not float64-compatible", ErrSchemaMismatch, col.Name)
			}
			var b [8]byte
			bx.PutU64(b[:], math.Float64bits(x))
			out = append(out, b[:]...)

		case ColText:
			str, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%w: column %q is not a string", ErrSchemaMismatch, col.Name)
			}
			bs := []byte(str)
			if len(bs) > math.MaxUint16 {
				return nil, fmt.Errorf("%w: column %q", ErrVarTooLong, col.Name)
			}
			var l [2]byte
			bx.PutU16(l[:], uint16(len(bs)))
			out = append(out, l[:]...)
			out = append(out, bs...)

		case ColBytes:
			bs, ok := v.([]byte)
			if !ok {
				return nil, fmt.Errorf("%w: column %q is not []byte", ErrSchemaMismatch, col.Name)
			}
			if len(bs) > math.MaxUint16 {
				return nil, fmt.Errorf("%w: column %q", ErrVarTooLong, col.Name)
			}
			var l [2]byte
			bx.PutU16(l[:], uint16(len(bs)))
			out = append(out, l[:]...)
			out = append(out, bs...)

		default:
			return nil, fmt.Errorf("%w: column %q has type %d", ErrUnsupportedType, col.Name, col.Type)
		}
	}
	return out, nil
}

// DecodeRow reverses EncodeRow.
func DecodeRow(s Schema, buf []byte) ([]any, error) {
	nc := s.NumCols()
	nbBytes := (nc + 7) / 8
	if len(buf) < nbBytes {
		return nil, fmt.Errorf("%w: need %d nullmap bytes, got %d", ErrBadBuffer, nbBytes, len(buf))
	}
	nullmap := buf[:nbBytes]
	i := nbBytes

	out := make([]any, nc)
	for colIdx, col := range s.Cols {
		isNull := (nullmap[colIdx/8]>>(uint(colIdx)&7))&1 == 1
		if isNull {
			out[colIdx] = nil
			continue
		}

		switch col.Type {
		case ColInt32:
			if i+4 > len(buf) {
				return nil, ErrBadBuffer
			}
			out[colIdx] = int32(bx.U32(buf[i : i+4]))
			i += 4

		case ColInt64:
			if i+8 > len(buf) {
				return nil, ErrBadBuffer
			}
			out[colIdx] = int64(bx.U64(buf[i : i+8]))
			i += 8

		case ColBool:
			if i+1 > len(buf) {
				return nil, ErrBadBuffer
			}
			out[colIdx] = buf[i] != 0
			i++

		case ColFloat64:
			if i+8 > len(buf) {
				return nil, ErrBadBuffer
			}
			out[colIdx] = math.Float64frombits(bx.U64(buf[i : i+8]))
			i += 8

		case ColText:
			if i+2 > len(buf) {
				return nil, ErrBadBuffer
			}
			l := int(bx.U16(buf[i : i+2]))
			i += 2
			if i+l > len(buf) {
				return nil, ErrBadBuffer
			}
			out[colIdx] = string(buf[i : i+l])
			i += l

		case ColBytes:
			if i+2 > len(buf) {
				return nil, ErrBadBuffer
			}
			l := int(bx.U16(buf[i : i+2]))
			i += 2
			if i+l > len(buf) {
				return nil, ErrBadBuffer
			}
			cp := make([]byte, l)
			copy(cp, buf[i:i+l])
			out[colIdx] = cp
			i += l

		default:
			return nil, fmt.Errorf("%w: column %q has type %d", ErrUnsupportedType, col.Name, col.Type)
		}
	}
	return out, nil
}

func asInt32(v any) (int32, bool) {
	switch x := v.(type) {
	case int32:
		return x, true
	case int:
		if x >= math.MinInt32 && x <= math.MaxInt32 {
			return int32(x), true
		}
	case int64:
		if x >= math.MinInt32 && x <= math.MaxInt32 {
			return int32(x), true
		}
	}
	return 0, false
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	}
	return 0, false
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	}
	return 0, false
}

// EncodeFixedRow packs values into the N-ary slot layout a heap page uses:
// a null bitmap followed by a fixed-width payload of exactly
// s.RecordSize() bytes. TEXT/BYTES columns are never inlined; their bytes
// are always written through ovf and the payload only carries the 8-byte
// overflow reference (firstPageID uint32, length uint32), which is what
// keeps every row the same width for a given schema.
func EncodeFixedRow(s Schema, values []any, ovf *storage.OverflowManager) (nullmap, payload []byte, err error) {
	nc := s.NumCols()
	if len(values) != nc {
		return nil, nil, fmt.Errorf("%w: expected %d values, got %d", ErrSchemaMismatch, nc, len(values))
	}

	nullmap = make([]byte, s.NullMapSize())
	payload = make([]byte, s.RecordSize())

	for i, col := range s.Cols {
		off := s.FieldOffset(i)
		v := values[i]
		if v == nil {
			if !col.Nullable {
				return nil, nil, fmt.Errorf("%w: column %q", ErrSchemaMismatchNotAllowNull, col.Name)
			}
			nullmap[i/8] |= 1 << (uint(i) & 7)
			continue
		}

		switch col.Type {
		case ColInt32:
			x, ok := asInt32(v)
			if !ok {
				return nil, nil, fmt.Errorf("%w: column %q", ErrSchemaMismatchNotInt32, col.Name)
			}
			bx.PutU32(payload[off:], uint32(x))

		case ColInt64:
			x, ok := asInt64(v)
			if !ok {
				return nil, nil, fmt.Errorf("%w: column %q is not int64-compatible", ErrSchemaMismatch, col.Name)
			}
			bx.PutU64(payload[off:], uint64(x))

		case ColBool:
			x, ok := v.(bool)
			if !ok {
				return nil, nil, fmt.Errorf("%w: column %q is not a bool", ErrSchemaMismatch, col.Name)
			}
			if x {
				payload[off] = 1
			}

		case ColFloat64:
			x, ok := asFloat64(v)
			if !ok {
				return nil, nil, fmt.Errorf("%w: column %q is not float64-compatible", ErrSchemaMismatch, col.Name)
			}
			bx.PutU64(payload[off:], math.Float64bits(x))

		case ColText, ColBytes:
			var bs []byte
			switch x := v.(type) {
			case string:
				bs = []byte(x)
			case []byte:
				bs = x
			default:
				return nil, nil, fmt.Errorf("%w: column %q has wrong Go type", ErrSchemaMismatch, col.Name)
			}
			if ovf == nil {
				return nil, nil, fmt.Errorf("record: column %q needs an overflow manager", col.Name)
			}
			ref, werr := ovf.Write(bs)
			if werr != nil {
				return nil, nil, werr
			}
			bx.PutU32(payload[off:], ref.FirstPageID)
			bx.PutU32(payload[off+4:], ref.Length)

		default:
			return nil, nil, fmt.Errorf("%w: column %q has type %d", ErrUnsupportedType, col.Name, col.Type)
		}
	}
	return nullmap, payload, nil
}

// DecodeFixedRow reverses EncodeFixedRow, following overflow references for
// TEXT/BYTES columns via ovf. TEXT columns decode back to string, BYTES to
// []byte.
func DecodeFixedRow(s Schema, nullmap, payload []byte, ovf *storage.OverflowManager) ([]any, error) {
	if len(nullmap) < s.NullMapSize() || len(payload) < s.RecordSize() {
		return nil, ErrBadBuffer
	}

	out := make([]any, s.NumCols())
	for i, col := range s.Cols {
		isNull := (nullmap[i/8]>>(uint(i)&7))&1 == 1
		if isNull {
			out[i] = nil
			continue
		}
		off := s.FieldOffset(i)

		switch col.Type {
		case ColInt32:
			out[i] = int32(bx.U32(payload[off : off+4]))
		case ColInt64:
			out[i] = int64(bx.U64(payload[off : off+8]))
		case ColBool:
			out[i] = payload[off] != 0
		case ColFloat64:
			out[i] = math.Float64frombits(bx.U64(payload[off : off+8]))
		case ColText, ColBytes:
			if ovf == nil {
				return nil, fmt.Errorf("record: column %q needs an overflow manager", col.Name)
			}
			first := bx.U32(payload[off : off+4])
			length := bx.U32(payload[off+4 : off+8])
			bs, rerr := ovf.Read(storage.OverflowRef{FirstPageID: first, Length: length})
			if rerr != nil {
				return nil, rerr
			}
			if col.Type == ColText {
				out[i] = string(bs)
			} else {
				out[i] = bs
			}
		default:
			return nil, fmt.Errorf("%w: column %q has type %d", ErrUnsupportedType, col.Name, col.Type)
		}
	}
	return out, nil
}
