package storage

import (
	"fmt"
	"sync"

	"postgrustql/internal/storage/buffer"
	"postgrustql/internal/storage/page"
	"postgrustql/internal/types"
)

// PagedStorage is the on-disk RowStorage implementation: a table's page
// file, fronted by a shared buffer pool. Every page access is routed
// through the pool rather than holding pages resident here.
type PagedStorage struct {
	mu      sync.Mutex
	file    *page.File
	pool    *buffer.Pool
	pageIDs []page.ID
}

// Open builds a PagedStorage over an already-open page file, discovering
// its existing pages by page count.
func Open(file *page.File, pool *buffer.Pool) *PagedStorage {
	ps := &PagedStorage{file: file, pool: pool}
	n := file.NumPages()
	ps.pageIDs = make([]page.ID, n)
	for i := uint32(0); i < n; i++ {
		ps.pageIDs[i] = page.ID(i)
	}
	return ps
}

func (ps *PagedStorage) bufID(id page.ID) buffer.ID {
	return buffer.ID{File: ps.file, Page: id}
}

// Insert places a new tuple version on the first page with room for it,
// allocating a fresh page when none has any.
func (ps *PagedStorage) Insert(xmin uint64, values []types.Value) (page.RowID, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	tuple := page.EncodeTuple(xmin, nil, values)

	for _, id := range ps.pageIDs {
		pg, fi, err := ps.pool.Fetch(ps.bufID(id))
		if err != nil {
			return page.RowID{}, err
		}
		if pg.CanFit(len(tuple)) {
			slot, err := pg.Insert(tuple)
			if err != nil {
				_ = ps.pool.Unpin(fi, false)
				return page.RowID{}, err
			}
			if err := ps.pool.Unpin(fi, true); err != nil {
				return page.RowID{}, err
			}
			return page.RowID{Page: id, Slot: slot}, nil
		}
		if err := ps.pool.Unpin(fi, false); err != nil {
			return page.RowID{}, err
		}
	}

	newID := ps.file.AllocatePage()
	pg := page.New(newID)
	slot, err := pg.Insert(tuple)
	if err != nil {
		return page.RowID{}, fmt.Errorf("tuple too large for an empty page: %w", err)
	}
	fi, err := ps.pool.FetchNew(ps.bufID(newID), pg)
	if err != nil {
		return page.RowID{}, err
	}
	if err := ps.pool.Unpin(fi, true); err != nil {
		return page.RowID{}, err
	}
	ps.pageIDs = append(ps.pageIDs, newID)
	return page.RowID{Page: newID, Slot: slot}, nil
}

// Scan walks every page in allocation order, yielding every live tuple
// version.
func (ps *PagedStorage) Scan(fn func(Row) bool) error {
	ps.mu.Lock()
	pageIDs := append([]page.ID(nil), ps.pageIDs...)
	ps.mu.Unlock()

	for _, id := range pageIDs {
		pg, fi, err := ps.pool.Fetch(ps.bufID(id))
		if err != nil {
			return err
		}
		var stop bool
		var scanErr error
		pg.Scan(func(slot uint16, tuple []byte) bool {
			xmin, xmax, values, err := page.DecodeTuple(tuple)
			if err != nil {
				scanErr = err
				return false
			}
			row := Row{ID: page.RowID{Page: id, Slot: slot}, Xmin: xmin, Xmax: xmax, Values: values}
			if !fn(row) {
				stop = true
				return false
			}
			return true
		})
		if unpinErr := ps.pool.Unpin(fi, false); unpinErr != nil && scanErr == nil {
			scanErr = unpinErr
		}
		if scanErr != nil {
			return scanErr
		}
		if stop {
			return nil
		}
	}
	return nil
}

// StampXmax rewrites a tuple's xmax header field in place.
func (ps *PagedStorage) StampXmax(id page.RowID, xid uint64) error {
	pg, fi, err := ps.pool.Fetch(ps.bufID(id.Page))
	if err != nil {
		return err
	}
	err = pg.RewriteAt(id.Slot, func(b []byte) error { return page.RewriteXmax(b, xid) })
	if unpinErr := ps.pool.Unpin(fi, err == nil); unpinErr != nil && err == nil {
		err = unpinErr
	}
	return err
}

// ClearXmax undoes StampXmax, used by ROLLBACK.
func (ps *PagedStorage) ClearXmax(id page.RowID) error {
	pg, fi, err := ps.pool.Fetch(ps.bufID(id.Page))
	if err != nil {
		return err
	}
	err = pg.RewriteAt(id.Slot, func(b []byte) error { return page.ClearXmax(b) })
	if unpinErr := ps.pool.Unpin(fi, err == nil); unpinErr != nil && err == nil {
		err = unpinErr
	}
	return err
}

// MarkDeleted flags a tuple's slot as physically dead on its page.
func (ps *PagedStorage) MarkDeleted(id page.RowID) error {
	pg, fi, err := ps.pool.Fetch(ps.bufID(id.Page))
	if err != nil {
		return err
	}
	err = pg.MarkDeleted(id.Slot)
	if unpinErr := ps.pool.Unpin(fi, err == nil); unpinErr != nil && err == nil {
		err = unpinErr
	}
	return err
}

// Count returns the number of physically present tuple versions across
// every page.
func (ps *PagedStorage) Count() (int, error) {
	n := 0
	err := ps.Scan(func(Row) bool {
		n++
		return true
	})
	return n, err
}

// Vacuum rewrites every page in place, discarding tuple versions whose
// xmax is set and <= minActive, and returns the count of
// versions removed.
func (ps *PagedStorage) Vacuum(minActive uint64) (int, error) {
	ps.mu.Lock()
	pageIDs := append([]page.ID(nil), ps.pageIDs...)
	ps.mu.Unlock()

	removed := 0
	for _, id := range pageIDs {
		pg, fi, err := ps.pool.Fetch(ps.bufID(id))
		if err != nil {
			return removed, err
		}

		var removedHere int
		var decodeErr error
		pg.RebuildKeeping(func(tuple []byte) bool {
			xmax, err := page.ReadXmax(tuple)
			if err != nil {
				decodeErr = err
				return true
			}
			if xmax != nil && *xmax <= minActive {
				removedHere++
				return false
			}
			return true
		})

		if unpinErr := ps.pool.Unpin(fi, removedHere > 0); unpinErr != nil {
			return removed, unpinErr
		}
		if decodeErr != nil {
			return removed, decodeErr
		}
		removed += removedHere
	}
	return removed, nil
}

// Flush writes every dirty buffered page belonging to this table through
// to disk. Since the pool is shared across tables, this flushes the
// whole pool; it is only called at checkpoint time, where a full flush
// is wanted anyway.
func (ps *PagedStorage) Flush() error {
	return ps.pool.FlushAll()
}
