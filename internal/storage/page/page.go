// Package page implements the 8 KiB page-addressable table storage
// format: a fixed-size page holding a header, a slot
// directory growing from the end, and row tuples packed from the start.
package page

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Size is the fixed page size in bytes.
const Size = 8192

// headerLen is (page-id, free-space pointer, slot count, checksum).
const headerLen = 16

// slotLen is (offset uint16, length uint16, deleted byte, pad byte).
const slotLen = 6

// ID identifies a page within a table's page file.
type ID uint32

// RowID is a page-local row identifier: (page-id, slot-index).
type RowID struct {
	Page ID
	Slot uint16
}

func (r RowID) Less(o RowID) bool {
	if r.Page != o.Page {
		return r.Page < o.Page
	}
	return r.Slot < o.Slot
}

// Page is one in-memory 8 KiB page. Callers mutate it through Insert/
// MarkDeleted/RewriteAt, then persist the raw bytes via Bytes().
type Page struct {
	id        ID
	freeStart uint16 // offset where the next tuple is appended
	slots     []slotEntry
	body      [Size]byte // raw page storage; tuples are packed at [headerLen:freeStart]
}

type slotEntry struct {
	offset  uint16
	length  uint16
	deleted bool
}

// New creates an empty page with the given id.
func New(id ID) *Page {
	p := &Page{id: id, freeStart: headerLen}
	return p
}

func (p *Page) ID() ID { return p.id }

// FreeSpace returns the number of bytes available for a new tuple,
// accounting for the slot directory's growth from the end of the page.
func (p *Page) FreeSpace() int {
	slotDirStart := Size - len(p.slots)*slotLen
	return slotDirStart - int(p.freeStart)
}

// CanFit reports whether a tuple of tupleLen bytes fits, including the
// cost of the new slot directory entry it would need.
func (p *Page) CanFit(tupleLen int) bool {
	return p.FreeSpace() >= tupleLen+slotLen
}

// Insert appends tuple bytes and a new slot entry, returning the slot
// index. Callers must have already checked CanFit.
func (p *Page) Insert(tuple []byte) (uint16, error) {
	if !p.CanFit(len(tuple)) {
		return 0, fmt.Errorf("page %d: insufficient free space for %d-byte tuple", p.id, len(tuple))
	}
	offset := p.freeStart
	copy(p.body[offset:], tuple)
	p.freeStart += uint16(len(tuple))
	p.slots = append(p.slots, slotEntry{offset: offset, length: uint16(len(tuple))})
	return uint16(len(p.slots) - 1), nil
}

// Read returns the raw tuple bytes for slot, and whether that slot is
// still live (not logically deleted).
func (p *Page) Read(slot uint16) ([]byte, bool, error) {
	if int(slot) >= len(p.slots) {
		return nil, false, fmt.Errorf("page %d: slot %d out of range", p.id, slot)
	}
	e := p.slots[slot]
	return p.body[e.offset : e.offset+e.length], !e.deleted, nil
}

// RewriteAt overwrites the tuple bytes for slot in place. The caller is
// responsible for only changing fixed-width header fields (xmin/xmax,
// see page.RewriteXmax/ClearXmax), never the tuple's length.
func (p *Page) RewriteAt(slot uint16, mutate func([]byte) error) error {
	if int(slot) >= len(p.slots) {
		return fmt.Errorf("page %d: slot %d out of range", p.id, slot)
	}
	e := p.slots[slot]
	return mutate(p.body[e.offset : e.offset+e.length])
}

// MarkDeleted flips the slot's deleted flag.
func (p *Page) MarkDeleted(slot uint16) error {
	if int(slot) >= len(p.slots) {
		return fmt.Errorf("page %d: slot %d out of range", p.id, slot)
	}
	p.slots[slot].deleted = true
	return nil
}

// ClearDeleted reverts a slot's deleted flag, used by ROLLBACK to undo a
// logical delete of a row this transaction itself inserted.
func (p *Page) ClearDeleted(slot uint16) error {
	if int(slot) >= len(p.slots) {
		return fmt.Errorf("page %d: slot %d out of range", p.id, slot)
	}
	p.slots[slot].deleted = false
	return nil
}

// SlotCount returns the number of slot directory entries (including
// deleted ones).
func (p *Page) SlotCount() int { return len(p.slots) }

// IsDeleted reports a slot's logical-delete flag.
func (p *Page) IsDeleted(slot uint16) bool {
	if int(slot) >= len(p.slots) {
		return true
	}
	return p.slots[slot].deleted
}

// RebuildKeeping compacts the page in place, discarding every slot for
// which keep returns false (and every already-deleted slot), then
// re-inserting the surviving tuples from scratch. This is the per-page
// step of VACUUM. Surviving tuples always fit, since the rebuild only
// ever keeps a subset of what the page held before.
func (p *Page) RebuildKeeping(keep func(tuple []byte) bool) {
	old := p.slots
	oldBody := p.body
	p.slots = nil
	p.freeStart = headerLen
	for _, e := range old {
		if e.deleted {
			continue
		}
		tuple := oldBody[e.offset : e.offset+e.length]
		if !keep(tuple) {
			continue
		}
		if _, err := p.Insert(append([]byte(nil), tuple...)); err != nil {
			panic(fmt.Sprintf("page %d: rebuild of a subset of its own tuples overflowed: %v", p.id, err))
		}
	}
}

// Scan invokes fn for every live slot in ascending slot-index order,
// stopping early if fn returns false.
func (p *Page) Scan(fn func(slot uint16, tuple []byte) bool) {
	for i, e := range p.slots {
		if e.deleted {
			continue
		}
		if !fn(uint16(i), p.body[e.offset:e.offset+e.length]) {
			return
		}
	}
}

// Bytes serializes the page to its on-disk 8 KiB representation,
// stamping a checksum over the header fields and tuple/slot payload.
func (p *Page) Bytes() [Size]byte {
	var out [Size]byte
	binary.BigEndian.PutUint32(out[0:4], uint32(p.id))
	binary.BigEndian.PutUint16(out[4:6], p.freeStart)
	binary.BigEndian.PutUint16(out[6:8], uint16(len(p.slots)))
	// out[8:12] checksum, filled in below
	copy(out[headerLen:p.freeStart], p.body[headerLen:p.freeStart])

	slotDirStart := Size - len(p.slots)*slotLen
	for i, e := range p.slots {
		off := slotDirStart + i*slotLen
		binary.BigEndian.PutUint16(out[off:off+2], e.offset)
		binary.BigEndian.PutUint16(out[off+2:off+4], e.length)
		if e.deleted {
			out[off+4] = 1
		}
	}

	sum := crc32.ChecksumIEEE(out[headerLen:])
	binary.BigEndian.PutUint32(out[8:12], sum)
	return out
}

// Load deserializes a page previously produced by Bytes, verifying its
// checksum (a mismatch is surfaced as a Serialization error by callers).
func Load(raw [Size]byte) (*Page, error) {
	id := ID(binary.BigEndian.Uint32(raw[0:4]))
	freeStart := binary.BigEndian.Uint16(raw[4:6])
	slotCount := binary.BigEndian.Uint16(raw[6:8])
	wantSum := binary.BigEndian.Uint32(raw[8:12])

	gotSum := crc32.ChecksumIEEE(raw[headerLen:])
	if gotSum != wantSum {
		return nil, fmt.Errorf("page %d: checksum mismatch (corrupt page)", id)
	}

	p := &Page{id: id, freeStart: freeStart}
	p.body = raw

	slotDirStart := Size - int(slotCount)*slotLen
	p.slots = make([]slotEntry, slotCount)
	for i := 0; i < int(slotCount); i++ {
		off := slotDirStart + i*slotLen
		p.slots[i] = slotEntry{
			offset:  binary.BigEndian.Uint16(raw[off : off+2]),
			length:  binary.BigEndian.Uint16(raw[off+2 : off+4]),
			deleted: raw[off+4] == 1,
		}
	}
	return p, nil
}
