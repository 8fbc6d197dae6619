package pgwire

import (
	"fmt"

	"postgrustql/internal/types"
)

// DecodeQuery parses a simple-query frame's payload (a single
// NUL-terminated SQL string) into a Query message.
func DecodeQuery(payload []byte) (Query, error) {
	s, _, err := readCString(payload)
	if err != nil {
		return Query{}, err
	}
	return Query{SQL: s}, nil
}

// EncodeQuery serializes a Query message's payload.
func EncodeQuery(q Query) []byte {
	return appendCString(nil, q.SQL)
}

// EncodeRow text-encodes one result row as a DataRow payload: an int16
// column count, then per column an int32 byte length (-1 for NULL)
// followed by that many bytes of the value's textual representation.
// This server only ever replies in the text format (format code 0),
// never binary, matching "framing only" scope.
func EncodeRow(values []types.Value) []byte {
	buf := appendInt16(nil, int16(len(values)))
	for _, v := range values {
		if v.IsNull() {
			buf = appendInt32(buf, -1)
			continue
		}
		text := v.String()
		buf = appendInt32(buf, int32(len(text)))
		buf = append(buf, text...)
	}
	return buf
}

// DecodeRow parses a DataRow payload back into raw column bytes (nil for
// a column that was NULL). Used by tests and by any client-side code
// that reads this server's own wire output.
func DecodeRow(payload []byte) ([][]byte, error) {
	if len(payload) < 2 {
		return nil, fmt.Errorf("pgwire: truncated DataRow")
	}
	n := int(int16(uint16(payload[0])<<8 | uint16(payload[1])))
	rest := payload[2:]
	out := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		if len(rest) < 4 {
			return nil, fmt.Errorf("pgwire: truncated DataRow column %d", i)
		}
		length := int32(uint32(rest[0])<<24 | uint32(rest[1])<<16 | uint32(rest[2])<<8 | uint32(rest[3]))
		rest = rest[4:]
		if length < 0 {
			out = append(out, nil)
			continue
		}
		if len(rest) < int(length) {
			return nil, fmt.Errorf("pgwire: truncated DataRow column %d value", i)
		}
		out = append(out, rest[:length])
		rest = rest[length:]
	}
	return out, nil
}

// EncodeRowDescription serializes a RowDescription payload: an int16
// field count followed by each field's name and type metadata.
func EncodeRowDescription(fields []FieldDescription) []byte {
	buf := appendInt16(nil, int16(len(fields)))
	for _, f := range fields {
		buf = appendCString(buf, f.Name)
		buf = appendInt32(buf, f.TableOID)
		buf = appendInt16(buf, f.ColumnAttNum)
		buf = appendInt32(buf, f.TypeOID)
		buf = appendInt16(buf, f.TypeSize)
		buf = appendInt32(buf, f.TypeModifier)
		buf = appendInt16(buf, f.FormatCode)
	}
	return buf
}

// EncodeCommandComplete serializes a CommandComplete payload: one
// NUL-terminated completion tag string.
func EncodeCommandComplete(c CommandComplete) []byte {
	return appendCString(nil, c.Tag)
}

// EncodeReadyForQuery serializes a ReadyForQuery payload: one status byte.
func EncodeReadyForQuery(r ReadyForQuery) []byte {
	return []byte{byte(r.Status)}
}

// EncodeParameterStatus serializes a ParameterStatus payload: two
// NUL-terminated strings, name then value.
func EncodeParameterStatus(p ParameterStatus) []byte {
	buf := appendCString(nil, p.Name)
	return appendCString(buf, p.Value)
}

// EncodeAuthenticationOk serializes the AuthenticationOk payload: the
// fixed int32 code 0.
func EncodeAuthenticationOk() []byte {
	return appendInt32(nil, 0)
}

// EncodeAuthenticationCleartextPassword serializes the
// AuthenticationCleartextPassword payload: the fixed int32 code 3.
func EncodeAuthenticationCleartextPassword() []byte {
	return appendInt32(nil, 3)
}

// DecodePasswordMessage parses a PasswordMessage payload (one
// NUL-terminated string).
func DecodePasswordMessage(payload []byte) (PasswordMessage, error) {
	s, _, err := readCString(payload)
	if err != nil {
		return PasswordMessage{}, err
	}
	return PasswordMessage{Password: s}, nil
}

// EncodeErrorResponse serializes an ErrorResponse payload as a sequence
// of (field-type byte, NUL-terminated string) pairs ending in a bare
// NUL, per the protocol's ErrorResponse/NoticeResponse shape.
func EncodeErrorResponse(e ErrorResponse) []byte {
	var buf []byte
	buf = append(buf, 'S')
	buf = appendCString(buf, string(e.Severity))
	buf = append(buf, 'C')
	buf = appendCString(buf, string(e.Code))
	buf = append(buf, 'M')
	buf = appendCString(buf, e.Message)
	if e.Detail != "" {
		buf = append(buf, 'D')
		buf = appendCString(buf, e.Detail)
	}
	buf = append(buf, 0)
	return buf
}
