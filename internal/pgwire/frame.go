package pgwire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// maxMessageLength guards against a corrupt or hostile length prefix
// driving an unbounded allocation; no real statement or row payload this
// server produces approaches it.
const maxMessageLength = 64 << 20

// ReadFrame reads one (type byte, int32 length, payload) frame from r.
// length counts itself (4 bytes) plus the payload, matching the wire
// protocol's convention, so the returned payload is length-4 bytes long.
func ReadFrame(r io.Reader) (msgType byte, payload []byte, err error) {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}
	msgType = header[0]
	length := int32(binary.BigEndian.Uint32(header[1:5]))
	if length < 4 || int(length) > maxMessageLength {
		return 0, nil, fmt.Errorf("pgwire: invalid frame length %d", length)
	}
	payload = make([]byte, length-4)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return msgType, payload, nil
}

// WriteFrame writes one typed frame: msgType, then a big-endian int32
// length (self-inclusive), then payload.
func WriteFrame(w io.Writer, msgType byte, payload []byte) error {
	var header [5]byte
	header[0] = msgType
	binary.BigEndian.PutUint32(header[1:5], uint32(len(payload)+4))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadStartupMessage reads the untyped length-prefixed startup message:
// int32 length, int32 protocol version, then a sequence of
// NUL-terminated "key\x00value\x00" pairs ending in a bare \x00.
func ReadStartupMessage(r io.Reader) (StartupMessage, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return StartupMessage{}, err
	}
	length := int32(binary.BigEndian.Uint32(lenBuf[:]))
	if length < 8 || int(length) > maxMessageLength {
		return StartupMessage{}, fmt.Errorf("pgwire: invalid startup message length %d", length)
	}
	body := make([]byte, length-4)
	if _, err := io.ReadFull(r, body); err != nil {
		return StartupMessage{}, err
	}
	version := int32(binary.BigEndian.Uint32(body[:4]))
	params := map[string]string{}
	rest := body[4:]
	for len(rest) > 1 {
		key, rest2, err := readCString(rest)
		if err != nil {
			return StartupMessage{}, err
		}
		if key == "" {
			break
		}
		val, rest3, err := readCString(rest2)
		if err != nil {
			return StartupMessage{}, err
		}
		params[key] = val
		rest = rest3
	}
	return StartupMessage{ProtocolVersion: version, Parameters: params}, nil
}

func readCString(b []byte) (string, []byte, error) {
	for i, c := range b {
		if c == 0 {
			return string(b[:i]), b[i+1:], nil
		}
	}
	return "", nil, fmt.Errorf("pgwire: unterminated string")
}

func appendCString(buf []byte, s string) []byte {
	buf = append(buf, s...)
	return append(buf, 0)
}

func appendInt32(buf []byte, v int32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(v))
	return append(buf, tmp[:]...)
}

func appendInt16(buf []byte, v int16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], uint16(v))
	return append(buf, tmp[:]...)
}
