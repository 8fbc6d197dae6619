// Package wal implements the append-only write-ahead log: length- and
// LSN-prefixed records, segment rotation at 16 MiB, and redo-only
// recovery.
package wal

import (
	"encoding/binary"
	"fmt"

	"postgrustql/internal/storage/page"
)

// Kind identifies one of the six WAL record variants.
type Kind byte

const (
	KindBegin Kind = iota + 1
	KindInsert
	KindDelete
	KindCommit
	KindAbort
	KindCheckpoint
)

func (k Kind) String() string {
	switch k {
	case KindBegin:
		return "BEGIN"
	case KindInsert:
		return "INSERT"
	case KindDelete:
		return "DELETE"
	case KindCommit:
		return "COMMIT"
	case KindAbort:
		return "ABORT"
	case KindCheckpoint:
		return "CHECKPOINT"
	default:
		return "UNKNOWN"
	}
}

// Record is one WAL entry. Not every field is meaningful for every Kind:
// Begin/Commit/Abort use only TxID; Insert/Delete add Table/Row/Payload;
// Checkpoint uses ActiveTxIDs in place of TxID.
type Record struct {
	LSN         uint64
	Kind        Kind
	TxID        uint64
	Table       string
	Row         page.RowID
	Payload     []byte // Insert: new row bytes; Delete: old row image
	ActiveTxIDs []uint64
}

// Encode serializes a record to its on-segment byte form: the LSN, a
// length prefix for the body, then the body (kind, tx id, and per-kind
// fields).
func (r Record) Encode() []byte {
	var body []byte
	body = append(body, byte(r.Kind))
	body = appendUint64(body, r.TxID)

	switch r.Kind {
	case KindInsert, KindDelete:
		body = appendString(body, r.Table)
		body = appendUint32(body, uint32(r.Row.Page))
		body = appendUint16(body, r.Row.Slot)
		body = appendBytes(body, r.Payload)
	case KindCheckpoint:
		body = appendUint32(body, uint32(len(r.ActiveTxIDs)))
		for _, id := range r.ActiveTxIDs {
			body = appendUint64(body, id)
		}
	}

	out := make([]byte, 0, 12+len(body))
	out = appendUint64(out, r.LSN)
	out = appendUint32(out, uint32(len(body)))
	out = append(out, body...)
	return out
}

// decodeBody parses one record body (without its LSN/length prefix, which
// the reader has already consumed) for the given LSN.
func decodeBody(lsn uint64, body []byte) (Record, error) {
	if len(body) < 9 {
		return Record{}, fmt.Errorf("wal: truncated record body")
	}
	r := Record{LSN: lsn, Kind: Kind(body[0]), TxID: binary.BigEndian.Uint64(body[1:9])}
	rest := body[9:]

	switch r.Kind {
	case KindBegin, KindCommit, KindAbort:
		return r, nil
	case KindInsert, KindDelete:
		table, rest2, err := readString(rest)
		if err != nil {
			return Record{}, err
		}
		if len(rest2) < 6 {
			return Record{}, fmt.Errorf("wal: truncated row id")
		}
		pageID := binary.BigEndian.Uint32(rest2[0:4])
		slot := binary.BigEndian.Uint16(rest2[4:6])
		payload, _, err := readBytes(rest2[6:])
		if err != nil {
			return Record{}, err
		}
		r.Table = table
		r.Row = page.RowID{Page: page.ID(pageID), Slot: slot}
		r.Payload = payload
		return r, nil
	case KindCheckpoint:
		if len(rest) < 4 {
			return Record{}, fmt.Errorf("wal: truncated checkpoint count")
		}
		count := binary.BigEndian.Uint32(rest[0:4])
		rest = rest[4:]
		ids := make([]uint64, 0, count)
		for i := uint32(0); i < count; i++ {
			if len(rest) < 8 {
				return Record{}, fmt.Errorf("wal: truncated checkpoint active-tx list")
			}
			ids = append(ids, binary.BigEndian.Uint64(rest[0:8]))
			rest = rest[8:]
		}
		r.ActiveTxIDs = ids
		return r, nil
	default:
		return Record{}, fmt.Errorf("wal: unknown record kind %d", r.Kind)
	}
}

func appendUint64(b []byte, v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return append(b, buf[:]...)
}

func appendUint32(b []byte, v uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return append(b, buf[:]...)
}

func appendUint16(b []byte, v uint16) []byte {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	return append(b, buf[:]...)
}

func appendBytes(b []byte, v []byte) []byte {
	b = appendUint32(b, uint32(len(v)))
	return append(b, v...)
}

func appendString(b []byte, s string) []byte {
	return appendBytes(b, []byte(s))
}

func readBytes(b []byte) ([]byte, []byte, error) {
	if len(b) < 4 {
		return nil, nil, fmt.Errorf("wal: truncated length prefix")
	}
	n := binary.BigEndian.Uint32(b[0:4])
	b = b[4:]
	if uint32(len(b)) < n {
		return nil, nil, fmt.Errorf("wal: truncated payload")
	}
	return b[:n], b[n:], nil
}

func readString(b []byte) (string, []byte, error) {
	v, rest, err := readBytes(b)
	if err != nil {
		return "", nil, err
	}
	return string(v), rest, nil
}
