// Package storage defines the RowStorage abstraction that the executor
// operates against: a single interface with two implementations, a
// paged on-disk one and an in-memory one kept around for tests.
package storage

import (
	"postgrustql/internal/storage/page"
	"postgrustql/internal/types"
)

// Row is one tuple version read back from storage, carrying its MVCC
// stamp so the executor's snapshot-visibility check can
// decide whether the calling transaction may see it.
type Row struct {
	ID     page.RowID
	Xmin   uint64
	Xmax   *uint64
	Values []types.Value
}

// RowStorage is the interface the executor uses for every table access.
// Implementations never filter on MVCC visibility themselves (that is
// the transaction manager's job, internal/txn); they hand back every
// physically-present tuple version, live or not.
type RowStorage interface {
	// Insert appends a new tuple version stamped with xmin, returning its
	// row id.
	Insert(xmin uint64, values []types.Value) (page.RowID, error)

	// Scan invokes fn for every tuple version not logically deleted at
	// the storage layer, in an unspecified but stable order. It stops
	// early if fn returns false.
	Scan(fn func(Row) bool) error

	// StampXmax rewrites the xmax header field of an existing tuple
	// version in place, marking it as deleted/superseded by xid.
	StampXmax(id page.RowID, xid uint64) error

	// ClearXmax reverts a previous StampXmax call; used by ROLLBACK to
	// undo a delete/update performed by the aborting transaction.
	ClearXmax(id page.RowID) error

	// MarkDeleted flags a tuple version's slot as physically dead,
	// removing it from future Scans. Used by ROLLBACK to undo a row this
	// transaction itself inserted, not by DELETE,
	// which only stamps xmax and leaves physical removal to VACUUM.
	MarkDeleted(id page.RowID) error

	// Count returns the number of tuple versions physically present
	// (including dead ones not yet vacuumed).
	Count() (int, error)

	// Vacuum physically removes every tuple version whose xmax is set and
	// <= minActive, the lowest active transaction id at VACUUM time. It returns the number of tuple versions removed.
	Vacuum(minActive uint64) (int, error)

	// Flush writes any buffered dirty pages through to disk.
	Flush() error
}
