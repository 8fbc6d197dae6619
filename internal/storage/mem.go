package storage

import (
	"sync"

	"postgrustql/internal/storage/page"
	"postgrustql/internal/types"
)

// MemRowStorage is a test-only RowStorage backed by a plain slice. It
// has no WAL, no durability, and no page format, and is never wired
// into the server binary, only into internal/exec's unit
// tests, where exercising the full page/buffer/WAL stack per test would
// be needless overhead.
type MemRowStorage struct {
	mu   sync.Mutex
	rows []*memRow
}

type memRow struct {
	xmin   uint64
	xmax   *uint64
	values []types.Value
	slot   uint16
}

// NewMemRowStorage returns an empty in-memory RowStorage.
func NewMemRowStorage() *MemRowStorage {
	return &MemRowStorage{}
}

func (m *MemRowStorage) Insert(xmin uint64, values []types.Value) (page.RowID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot := uint16(len(m.rows))
	cp := append([]types.Value(nil), values...)
	m.rows = append(m.rows, &memRow{xmin: xmin, values: cp, slot: slot})
	return page.RowID{Page: 0, Slot: slot}, nil
}

func (m *MemRowStorage) Scan(fn func(Row) bool) error {
	m.mu.Lock()
	rows := append([]*memRow(nil), m.rows...)
	m.mu.Unlock()

	for _, r := range rows {
		row := Row{ID: page.RowID{Page: 0, Slot: r.slot}, Xmin: r.xmin, Xmax: r.xmax, Values: r.values}
		if !fn(row) {
			return nil
		}
	}
	return nil
}

func (m *MemRowStorage) StampXmax(id page.RowID, xid uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.slot == id.Slot {
			v := xid
			r.xmax = &v
			return nil
		}
	}
	return nil
}

func (m *MemRowStorage) ClearXmax(id page.RowID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.slot == id.Slot {
			r.xmax = nil
			return nil
		}
	}
	return nil
}

func (m *MemRowStorage) MarkDeleted(id page.RowID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.rows {
		if r.slot == id.Slot {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *MemRowStorage) Count() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows), nil
}

// Vacuum drops every row whose xmax is set and <= minActive, mirroring
// PagedStorage.Vacuum's semantics for the in-memory test implementation.
func (m *MemRowStorage) Vacuum(minActive uint64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rows[:0]
	removed := 0
	for _, r := range m.rows {
		if r.xmax != nil && *r.xmax <= minActive {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	m.rows = kept
	return removed, nil
}

func (m *MemRowStorage) Flush() error { return nil }
