package page

import (
	"encoding/binary"
	"fmt"

	"postgrustql/internal/types"
)

// Tuple header layout, fixed-width so that a logical delete (setting
// xmax) can rewrite it in place without touching the value payload or
// moving the slot: 8 bytes xmin, 1 byte xmax-present flag, 8 bytes xmax.
const tupleHeaderLen = 17

// EncodeTuple serializes xmin/xmax/values into a deterministic binary
// form (type tag byte + type-specific payload), self-describing so
// recovery reproduces identical bytes.
func EncodeTuple(xmin uint64, xmax *uint64, values []types.Value) []byte {
	buf := make([]byte, tupleHeaderLen)
	binary.BigEndian.PutUint64(buf[0:8], xmin)
	if xmax != nil {
		buf[8] = 1
		binary.BigEndian.PutUint64(buf[9:17], *xmax)
	}

	var countBuf [2]byte
	binary.BigEndian.PutUint16(countBuf[:], uint16(len(values)))
	buf = append(buf, countBuf[:]...)

	for _, v := range values {
		buf = appendValue(buf, v)
	}
	return buf
}

// DecodeTuple is the inverse of EncodeTuple.
func DecodeTuple(data []byte) (xmin uint64, xmax *uint64, values []types.Value, err error) {
	if len(data) < tupleHeaderLen+2 {
		return 0, nil, nil, fmt.Errorf("corrupt tuple: too short (%d bytes)", len(data))
	}
	xmin = binary.BigEndian.Uint64(data[0:8])
	if data[8] == 1 {
		x := binary.BigEndian.Uint64(data[9:17])
		xmax = &x
	}
	count := binary.BigEndian.Uint16(data[17:19])
	rest := data[19:]
	values = make([]types.Value, 0, count)
	for i := uint16(0); i < count; i++ {
		v, n, err := readValue(rest)
		if err != nil {
			return 0, nil, nil, err
		}
		values = append(values, v)
		rest = rest[n:]
	}
	return xmin, xmax, values, nil
}

// RewriteXmax overwrites just the xmax header field of an already
// encoded tuple in place, leaving the rest of the bytes untouched: the
// operation a logical DELETE/UPDATE performs.
func RewriteXmax(data []byte, xmax uint64) error {
	if len(data) < tupleHeaderLen {
		return fmt.Errorf("corrupt tuple: too short for header (%d bytes)", len(data))
	}
	data[8] = 1
	binary.BigEndian.PutUint64(data[9:17], xmax)
	return nil
}

// ClearXmax reverts a tuple to "not deleted"; used by ROLLBACK to
// restore a row that this aborting transaction had logically deleted.
func ClearXmax(data []byte) error {
	if len(data) < tupleHeaderLen {
		return fmt.Errorf("corrupt tuple: too short for header (%d bytes)", len(data))
	}
	data[8] = 0
	binary.BigEndian.PutUint64(data[9:17], 0)
	return nil
}

func ReadXmin(data []byte) (uint64, error) {
	if len(data) < tupleHeaderLen {
		return 0, fmt.Errorf("corrupt tuple: too short for header")
	}
	return binary.BigEndian.Uint64(data[0:8]), nil
}

func ReadXmax(data []byte) (*uint64, error) {
	if len(data) < tupleHeaderLen {
		return nil, fmt.Errorf("corrupt tuple: too short for header")
	}
	if data[8] == 0 {
		return nil, nil
	}
	x := binary.BigEndian.Uint64(data[9:17])
	return &x, nil
}

// value type tags for the deterministic binary encoding.
const (
	tagNull byte = iota
	tagSmallInt
	tagInteger
	tagReal
	tagDecimal
	tagText
	tagChar
	tagBoolean
	tagDate
	tagTimestamp
	tagTimestampTZ
	tagUUID
	tagJSON
	tagBytea
	tagEnum
)

func appendValue(buf []byte, v types.Value) []byte {
	if v.IsNull() {
		return append(buf, tagNull)
	}
	switch v.Kind {
	case types.KindSmallInt:
		buf = append(buf, tagSmallInt)
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(v.I16))
		return append(buf, b[:]...)
	case types.KindInteger, types.KindSerial, types.KindBigSerial:
		buf = append(buf, tagInteger)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(v.I64))
		return append(buf, b[:]...)
	case types.KindReal:
		buf = append(buf, tagReal)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], mathFloatBits(v.F64))
		return append(buf, b[:]...)
	case types.KindDecimal:
		buf = append(buf, tagDecimal)
		var b [16]byte
		binary.BigEndian.PutUint64(b[0:8], uint64(v.Dec.Unscaled))
		binary.BigEndian.PutUint32(b[8:12], uint32(v.Dec.Scale))
		return append(buf, b[:12]...)
	case types.KindText, types.KindChar, types.KindJSON:
		tag := tagText
		if v.Kind == types.KindChar {
			tag = tagChar
		} else if v.Kind == types.KindJSON {
			tag = tagJSON
		}
		buf = append(buf, tag)
		return appendBytes(buf, []byte(v.Str))
	case types.KindBoolean:
		buf = append(buf, tagBoolean)
		if v.Bool {
			return append(buf, 1)
		}
		return append(buf, 0)
	case types.KindDate:
		buf = append(buf, tagDate)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(v.Date.Unix()))
		return append(buf, b[:]...)
	case types.KindTimestamp:
		buf = append(buf, tagTimestamp)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(v.Timestamp.UnixNano()))
		return append(buf, b[:]...)
	case types.KindTimestampTZ:
		buf = append(buf, tagTimestampTZ)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(v.TimestampTZ.UnixNano()))
		return append(buf, b[:]...)
	case types.KindUUID:
		buf = append(buf, tagUUID)
		bs, _ := v.UUID.MarshalBinary()
		return append(buf, bs...)
	case types.KindBytea:
		buf = append(buf, tagBytea)
		return appendBytes(buf, v.Bytes)
	case types.KindEnum:
		buf = append(buf, tagEnum)
		buf = appendBytes(buf, []byte(v.EnumName))
		return appendBytes(buf, []byte(v.EnumValue))
	default:
		return append(buf, tagNull)
	}
}

func appendBytes(buf, data []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, data...)
}

func readValue(data []byte) (types.Value, int, error) {
	if len(data) < 1 {
		return types.Value{}, 0, fmt.Errorf("corrupt value: empty")
	}
	tag := data[0]
	rest := data[1:]
	switch tag {
	case tagNull:
		return types.Null(), 1, nil
	case tagSmallInt:
		if len(rest) < 2 {
			return types.Value{}, 0, fmt.Errorf("corrupt smallint value")
		}
		return types.NewSmallInt(int16(binary.BigEndian.Uint16(rest[:2]))), 3, nil
	case tagInteger:
		if len(rest) < 8 {
			return types.Value{}, 0, fmt.Errorf("corrupt integer value")
		}
		return types.NewInteger(int64(binary.BigEndian.Uint64(rest[:8]))), 9, nil
	case tagReal:
		if len(rest) < 8 {
			return types.Value{}, 0, fmt.Errorf("corrupt real value")
		}
		return types.NewReal(mathFloatFromBits(binary.BigEndian.Uint64(rest[:8]))), 9, nil
	case tagDecimal:
		if len(rest) < 12 {
			return types.Value{}, 0, fmt.Errorf("corrupt decimal value")
		}
		unscaled := int64(binary.BigEndian.Uint64(rest[0:8]))
		scale := int(binary.BigEndian.Uint32(rest[8:12]))
		return types.NewDecimal(types.Decimal128{Unscaled: unscaled, Scale: scale}), 13, nil
	case tagText, tagChar, tagJSON:
		s, n, err := readBytes(rest)
		if err != nil {
			return types.Value{}, 0, err
		}
		switch tag {
		case tagChar:
			return types.Value{Kind: types.KindChar, Str: string(s)}, n + 1, nil
		case tagJSON:
			return types.NewJSON(string(s)), n + 1, nil
		default:
			return types.NewText(string(s)), n + 1, nil
		}
	case tagBoolean:
		if len(rest) < 1 {
			return types.Value{}, 0, fmt.Errorf("corrupt boolean value")
		}
		return types.NewBoolean(rest[0] == 1), 2, nil
	case tagDate:
		if len(rest) < 8 {
			return types.Value{}, 0, fmt.Errorf("corrupt date value")
		}
		sec := int64(binary.BigEndian.Uint64(rest[:8]))
		return types.NewDate(secToUTC(sec)), 9, nil
	case tagTimestamp:
		if len(rest) < 8 {
			return types.Value{}, 0, fmt.Errorf("corrupt timestamp value")
		}
		nsec := int64(binary.BigEndian.Uint64(rest[:8]))
		return types.NewTimestamp(nsecToUTC(nsec)), 9, nil
	case tagTimestampTZ:
		if len(rest) < 8 {
			return types.Value{}, 0, fmt.Errorf("corrupt timestamptz value")
		}
		nsec := int64(binary.BigEndian.Uint64(rest[:8]))
		return types.NewTimestampTZ(nsecToUTC(nsec)), 9, nil
	case tagUUID:
		if len(rest) < 16 {
			return types.Value{}, 0, fmt.Errorf("corrupt uuid value")
		}
		u, err := uuidFromBytes(rest[:16])
		if err != nil {
			return types.Value{}, 0, err
		}
		return types.NewUUID(u), 17, nil
	case tagBytea:
		b, n, err := readBytes(rest)
		if err != nil {
			return types.Value{}, 0, err
		}
		return types.NewBytea(b), n + 1, nil
	case tagEnum:
		name, n1, err := readBytes(rest)
		if err != nil {
			return types.Value{}, 0, err
		}
		value, n2, err := readBytes(rest[n1:])
		if err != nil {
			return types.Value{}, 0, err
		}
		return types.NewEnum(string(name), string(value)), n1 + n2 + 1, nil
	default:
		return types.Value{}, 0, fmt.Errorf("corrupt value: unknown tag %d", tag)
	}
}

func readBytes(data []byte) ([]byte, int, error) {
	if len(data) < 4 {
		return nil, 0, fmt.Errorf("corrupt length-prefixed value")
	}
	n := binary.BigEndian.Uint32(data[:4])
	if uint32(len(data)-4) < n {
		return nil, 0, fmt.Errorf("corrupt length-prefixed value: truncated")
	}
	return data[4 : 4+n], int(4 + n), nil
}
