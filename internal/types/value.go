package types

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Value is a tagged variant over the scalar types a row column can hold.
// Only one of the typed fields is meaningful, selected by Kind.
type Value struct {
	Kind Kind

	I16         int16
	I64         int64
	F64         float64
	Dec         Decimal128
	Str         string // Text, Char (already right-padded), JSON
	Bool        bool
	Date        time.Time // truncated to Y-M-D
	Timestamp   time.Time // naive, no offset semantics
	TimestampTZ time.Time
	UUID        uuid.UUID
	Bytes       []byte
	EnumName    string
	EnumValue   string

	isNull bool
}

// Decimal128 is a fixed-precision decimal represented as an unscaled
// integer plus a scale, sufficient for precision up to 38.
type Decimal128 struct {
	Unscaled int64 // sufficient for the values this core ever parses/compares
	Scale    int
}

func (d Decimal128) String() string {
	neg := d.Unscaled < 0
	u := d.Unscaled
	if neg {
		u = -u
	}
	s := strconv.FormatInt(u, 10)
	if d.Scale > 0 {
		for len(s) <= d.Scale {
			s = "0" + s
		}
		s = s[:len(s)-d.Scale] + "." + s[len(s)-d.Scale:]
	}
	if neg {
		s = "-" + s
	}
	return s
}

func (d Decimal128) AsFloat() float64 {
	return float64(d.Unscaled) / math.Pow10(d.Scale)
}

// Null is the null value. Its Kind is irrelevant to equality/ordering.
func Null() Value { return Value{isNull: true} }

func (v Value) IsNull() bool { return v.isNull }

func NewSmallInt(i int16) Value     { return Value{Kind: KindSmallInt, I16: i} }
func NewInteger(i int64) Value      { return Value{Kind: KindInteger, I64: i} }
func NewReal(f float64) Value       { return Value{Kind: KindReal, F64: f} }
func NewDecimal(d Decimal128) Value { return Value{Kind: KindDecimal, Dec: d} }
func NewText(s string) Value        { return Value{Kind: KindText, Str: s} }
func NewChar(s string, length int) Value {
	if len(s) < length {
		s = s + strings.Repeat(" ", length-len(s))
	}
	return Value{Kind: KindChar, Str: s}
}
func NewBoolean(b bool) Value { return Value{Kind: KindBoolean, Bool: b} }
func NewDate(t time.Time) Value {
	y, m, d := t.Date()
	return Value{Kind: KindDate, Date: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}
func NewTimestamp(t time.Time) Value   { return Value{Kind: KindTimestamp, Timestamp: t} }
func NewTimestampTZ(t time.Time) Value { return Value{Kind: KindTimestampTZ, TimestampTZ: t} }
func NewUUID(u uuid.UUID) Value        { return Value{Kind: KindUUID, UUID: u} }
func NewJSON(s string) Value           { return Value{Kind: KindJSON, Str: s} }
func NewBytea(b []byte) Value          { return Value{Kind: KindBytea, Bytes: b} }
func NewEnum(typeName, member string) Value {
	return Value{Kind: KindEnum, EnumName: typeName, EnumValue: member}
}

// String renders the display form of v (used for wire protocol DataRow
// encoding and CLI-style printing).
func (v Value) String() string {
	if v.isNull {
		return "NULL"
	}
	switch v.Kind {
	case KindSmallInt:
		return strconv.FormatInt(int64(v.I16), 10)
	case KindInteger, KindSerial, KindBigSerial:
		return strconv.FormatInt(v.I64, 10)
	case KindReal:
		return strconv.FormatFloat(v.F64, 'g', -1, 64)
	case KindDecimal:
		return v.Dec.String()
	case KindText, KindChar, KindJSON:
		return v.Str
	case KindBoolean:
		return strconv.FormatBool(v.Bool)
	case KindDate:
		return v.Date.Format("2006-01-02")
	case KindTimestamp:
		return v.Timestamp.Format("2006-01-02 15:04:05")
	case KindTimestampTZ:
		return v.TimestampTZ.Format("2006-01-02 15:04:05Z07:00")
	case KindUUID:
		return v.UUID.String()
	case KindBytea:
		return "\\x" + hex.EncodeToString(v.Bytes)
	case KindEnum:
		return v.EnumValue
	default:
		return ""
	}
}

// Equal reports equality between values of the same type; comparing
// mismatched types always yields false (callers that need to surface a
// "type mismatch" error should call Compare instead).
func (v Value) Equal(o Value) bool {
	eq, err := v.Compare(o)
	if err != nil {
		return false
	}
	return eq == 0
}

// Compare defines ordering between like-typed values. NULL sorts greater
// than any non-null value (so NULLs sort last under ORDER BY ASC);
// comparing two different (non-null) kinds returns a "type mismatch"
// error.
func (v Value) Compare(o Value) (int, error) {
	if v.isNull && o.isNull {
		return 0, nil
	}
	if v.isNull {
		return 1, nil
	}
	if o.isNull {
		return -1, nil
	}
	if v.Kind != o.Kind {
		return 0, fmt.Errorf("type mismatch: %s vs %s", v.Kind, o.Kind)
	}
	switch v.Kind {
	case KindSmallInt:
		return cmpInt(int64(v.I16), int64(o.I16)), nil
	case KindInteger, KindSerial, KindBigSerial:
		return cmpInt(v.I64, o.I64), nil
	case KindReal:
		return cmpFloat(v.F64, o.F64), nil
	case KindDecimal:
		return cmpFloat(v.Dec.AsFloat(), o.Dec.AsFloat()), nil
	case KindText, KindChar, KindJSON:
		return strings.Compare(v.Str, o.Str), nil
	case KindBoolean:
		if v.Bool == o.Bool {
			return 0, nil
		}
		if !v.Bool {
			return -1, nil
		}
		return 1, nil
	case KindDate:
		return cmpTime(v.Date, o.Date), nil
	case KindTimestamp:
		return cmpTime(v.Timestamp, o.Timestamp), nil
	case KindTimestampTZ:
		return cmpTime(v.TimestampTZ, o.TimestampTZ), nil
	case KindUUID:
		return strings.Compare(v.UUID.String(), o.UUID.String()), nil
	case KindBytea:
		n := len(v.Bytes)
		if len(o.Bytes) < n {
			n = len(o.Bytes)
		}
		for i := 0; i < n; i++ {
			if v.Bytes[i] != o.Bytes[i] {
				return cmpInt(int64(v.Bytes[i]), int64(o.Bytes[i])), nil
			}
		}
		return cmpInt(int64(len(v.Bytes)), int64(len(o.Bytes))), nil
	case KindEnum:
		if v.EnumName != o.EnumName {
			return 0, fmt.Errorf("type mismatch: enum %s vs enum %s", v.EnumName, o.EnumName)
		}
		return strings.Compare(v.EnumValue, o.EnumValue), nil
	default:
		return 0, fmt.Errorf("type mismatch: uncomparable kind %s", v.Kind)
	}
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}

// ParseLiteral parses a SQL literal token into a Value without a target
// column type in hand (used by the parser to build constant AST nodes).
// Integer literals that fit in int16 become SmallInt; larger integers
// become Integer. Decimal literals prefer fixed precision and fall back
// to float on parse failure. Date-like strings are tried in order:
// YYYY-MM-DD, RFC3339 timestamp, naive "YYYY-MM-DD HH:MM:SS", else text.
// UUID literals are recognized by their hyphenated-hex shape.
func ParseLiteral(raw string, quoted bool) Value {
	if !quoted {
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			if i >= math.MinInt16 && i <= math.MaxInt16 {
				return NewSmallInt(int16(i))
			}
			return NewInteger(i)
		}
		if dec, ok := parseDecimalLiteral(raw); ok {
			return NewDecimal(dec)
		}
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return NewReal(f)
		}
		if strings.EqualFold(raw, "true") {
			return NewBoolean(true)
		}
		if strings.EqualFold(raw, "false") {
			return NewBoolean(false)
		}
		if strings.EqualFold(raw, "null") {
			return Null()
		}
	}

	if looksLikeUUID(raw) {
		if u, err := uuid.Parse(raw); err == nil {
			return NewUUID(u)
		}
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return NewDate(t)
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return NewTimestampTZ(t)
	}
	if t, err := time.Parse("2006-01-02 15:04:05", raw); err == nil {
		return NewTimestamp(t)
	}
	return NewText(raw)
}

func parseDecimalLiteral(raw string) (Decimal128, bool) {
	dot := strings.IndexByte(raw, '.')
	if dot < 0 {
		return Decimal128{}, false
	}
	whole := raw[:dot]
	frac := raw[dot+1:]
	if whole == "" || frac == "" {
		return Decimal128{}, false
	}
	combined := whole + frac
	i, err := strconv.ParseInt(combined, 10, 64)
	if err != nil {
		return Decimal128{}, false
	}
	return Decimal128{Unscaled: i, Scale: len(frac)}, true
}

func looksLikeUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	for i, c := range s {
		switch i {
		case 8, 13, 18, 23:
			if c != '-' {
				return false
			}
		default:
			if !isHexDigit(byte(c)) {
				return false
			}
		}
	}
	return true
}

func isHexDigit(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

// CoerceTo attempts to coerce v to the target data type, as required at
// INSERT/UPDATE time. Returns an error (caller maps to TypeMismatch) if
// no coercion rule applies.
func CoerceTo(v Value, target DataType) (Value, error) {
	if v.IsNull() {
		return v, nil
	}
	if v.Kind == target.Kind {
		if target.Kind == KindChar {
			return NewChar(strings.TrimRight(v.Str, " "), target.Length), nil
		}
		if target.Kind == KindEnum {
			if v.EnumName != target.EnumName {
				return Value{}, fmt.Errorf("type mismatch: enum %s vs enum %s", v.EnumName, target.EnumName)
			}
			if !containsStr(target.EnumValues, v.EnumValue) {
				return Value{}, fmt.Errorf("invalid enum value %q for type %s", v.EnumValue, target.EnumName)
			}
		}
		return v, nil
	}

	switch target.Kind {
	case KindSmallInt:
		if i, ok := asInt(v); ok && i >= math.MinInt16 && i <= math.MaxInt16 {
			return NewSmallInt(int16(i)), nil
		}
	case KindInteger, KindSerial, KindBigSerial:
		if i, ok := asInt(v); ok {
			return NewInteger(i), nil
		}
	case KindReal:
		if f, ok := asFloat(v); ok {
			return NewReal(f), nil
		}
	case KindDecimal:
		if f, ok := asFloat(v); ok {
			return NewDecimal(floatToDecimal(f, target.Scale)), nil
		}
	case KindText:
		if v.Kind == KindChar || v.Kind == KindJSON {
			return NewText(strings.TrimRight(v.Str, " ")), nil
		}
	case KindChar:
		if v.Kind == KindText {
			return NewChar(v.Str, target.Length), nil
		}
	case KindJSON:
		if v.Kind == KindText {
			return NewJSON(v.Str), nil
		}
	case KindBytea:
		if v.Kind == KindText && strings.HasPrefix(v.Str, `\x`) {
			b, err := hex.DecodeString(v.Str[2:])
			if err != nil {
				return Value{}, fmt.Errorf("invalid bytea literal %q", v.Str)
			}
			return NewBytea(b), nil
		}
	case KindTimestamp:
		if v.Kind == KindDate {
			return NewTimestamp(v.Date), nil
		}
	case KindTimestampTZ:
		if v.Kind == KindDate {
			return NewTimestampTZ(v.Date), nil
		}
	case KindEnum:
		if v.Kind == KindText {
			if !containsStr(target.EnumValues, v.Str) {
				return Value{}, fmt.Errorf("invalid enum value %q for type %s", v.Str, target.EnumName)
			}
			return NewEnum(target.EnumName, v.Str), nil
		}
	}
	return Value{}, fmt.Errorf("type mismatch: cannot coerce %s to %s", v.Kind, target)
}

func asInt(v Value) (int64, bool) {
	switch v.Kind {
	case KindSmallInt:
		return int64(v.I16), true
	case KindInteger, KindSerial, KindBigSerial:
		return v.I64, true
	case KindDecimal:
		return int64(v.Dec.AsFloat()), true
	case KindReal:
		return int64(v.F64), true
	}
	return 0, false
}

func asFloat(v Value) (float64, bool) {
	switch v.Kind {
	case KindSmallInt:
		return float64(v.I16), true
	case KindInteger, KindSerial, KindBigSerial:
		return float64(v.I64), true
	case KindReal:
		return v.F64, true
	case KindDecimal:
		return v.Dec.AsFloat(), true
	}
	return 0, false
}

func floatToDecimal(f float64, scale int) Decimal128 {
	return Decimal128{Unscaled: int64(math.Round(f * math.Pow10(scale))), Scale: scale}
}

func containsStr(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
