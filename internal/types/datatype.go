// Package types implements the scalar value and data-type model shared by
// the catalog, storage, and executor: a small closed set of SQL-ish types,
// their coercion rules, and their text/binary encodings.
package types

import "fmt"

// Kind tags the variant of a DataType.
type Kind string

const (
	KindSmallInt    Kind = "smallint"
	KindInteger     Kind = "integer"
	KindReal        Kind = "real"
	KindDecimal     Kind = "decimal"
	KindSerial      Kind = "serial"
	KindBigSerial   Kind = "bigserial"
	KindText        Kind = "text"
	KindChar        Kind = "char"
	KindBoolean     Kind = "boolean"
	KindDate        Kind = "date"
	KindTimestamp   Kind = "timestamp"
	KindTimestampTZ Kind = "timestamptz"
	KindUUID        Kind = "uuid"
	KindJSON        Kind = "json"
	KindBytea       Kind = "bytea"
	KindEnum        Kind = "enum"
)

// DataType describes the storage and validation rules for a column.
//
// Serial and BigSerial are integer types whose columns are auto-assigned
// from a per-table per-column monotonically increasing counter; they are
// implicitly NOT NULL and PRIMARY KEY (see catalog.Column).
type DataType struct {
	Kind Kind

	// Precision/Scale apply to KindDecimal only (precision<=38, scale<=precision).
	Precision int
	Scale     int

	// Length applies to KindChar only (fixed-length, right-padded).
	Length int

	// EnumName/EnumValues apply to KindEnum only.
	EnumName   string
	EnumValues []string
}

func SmallInt() DataType    { return DataType{Kind: KindSmallInt} }
func Integer() DataType     { return DataType{Kind: KindInteger} }
func Real() DataType        { return DataType{Kind: KindReal} }
func Serial() DataType      { return DataType{Kind: KindSerial} }
func BigSerial() DataType   { return DataType{Kind: KindBigSerial} }
func Text() DataType        { return DataType{Kind: KindText} }
func Boolean() DataType     { return DataType{Kind: KindBoolean} }
func Date() DataType        { return DataType{Kind: KindDate} }
func Timestamp() DataType   { return DataType{Kind: KindTimestamp} }
func TimestampTZ() DataType { return DataType{Kind: KindTimestampTZ} }
func UUID() DataType        { return DataType{Kind: KindUUID} }
func JSON() DataType        { return DataType{Kind: KindJSON} }
func Bytea() DataType       { return DataType{Kind: KindBytea} }

// Decimal returns a fixed-precision numeric type. Callers must ensure
// 0 < precision <= 38 and 0 <= scale <= precision; Validate checks this.
func Decimal(precision, scale int) DataType {
	return DataType{Kind: KindDecimal, Precision: precision, Scale: scale}
}

// Char returns a fixed-length, right-padded character type.
func Char(length int) DataType {
	return DataType{Kind: KindChar, Length: length}
}

// Enum returns a named enum type bound to an ordered list of members.
func Enum(name string, values []string) DataType {
	return DataType{Kind: KindEnum, EnumName: name, EnumValues: values}
}

// Validate checks internal consistency of precision/scale/length.
func (d DataType) Validate() error {
	switch d.Kind {
	case KindDecimal:
		if d.Precision <= 0 || d.Precision > 38 {
			return fmt.Errorf("decimal precision %d out of range (1-38)", d.Precision)
		}
		if d.Scale < 0 || d.Scale > d.Precision {
			return fmt.Errorf("decimal scale %d out of range (0-%d)", d.Scale, d.Precision)
		}
	case KindChar:
		if d.Length <= 0 {
			return fmt.Errorf("char length %d must be positive", d.Length)
		}
	case KindEnum:
		if d.EnumName == "" {
			return fmt.Errorf("enum type has no name")
		}
	}
	return nil
}

// IsIntegerLike reports whether the type is one of the auto-incrementing
// or plain integer kinds.
func (d DataType) IsIntegerLike() bool {
	switch d.Kind {
	case KindSmallInt, KindInteger, KindSerial, KindBigSerial:
		return true
	}
	return false
}

// IsSerial reports whether this column is auto-assigned from a sequence.
func (d DataType) IsSerial() bool {
	return d.Kind == KindSerial || d.Kind == KindBigSerial
}

func (d DataType) String() string {
	switch d.Kind {
	case KindDecimal:
		return fmt.Sprintf("DECIMAL(%d,%d)", d.Precision, d.Scale)
	case KindChar:
		return fmt.Sprintf("CHAR(%d)", d.Length)
	case KindEnum:
		return fmt.Sprintf("ENUM %s", d.EnumName)
	default:
		return string(d.Kind)
	}
}
