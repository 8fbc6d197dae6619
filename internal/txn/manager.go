// Package txn implements the transaction manager: a process-wide tx-id
// counter, the active-transaction set that snapshots read under MVCC
// visibility rely on, and the BEGIN/COMMIT/ROLLBACK protocols. Every
// dependency (the WAL writer, a table resolver) is passed in explicitly
// rather than held as package-level state.
package txn

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"postgrustql/internal/storage"
	"postgrustql/internal/storage/page"
	"postgrustql/internal/wal"
)

// Manager issues transaction ids and tracks which are active, and owns
// the single write-serialization lock guarding all mutations of the
// catalog, row store, buffer pool dirty state, and WAL append position.
type Manager struct {
	mu        sync.Mutex
	nextID    uint64
	active    map[uint64]bool
	writeLock sync.Mutex
	wal       *wal.Writer
	log       *zap.Logger
}

// NewManager builds a transaction manager over an already-open WAL
// writer. Id 0 is reserved for pre-existing data, so the
// counter starts at 1.
func NewManager(w *wal.Writer, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{nextID: 1, active: map[uint64]bool{}, wal: w, log: log}
}

// Snapshot returns the set of transaction ids active right now, the
// basis of a statement's MVCC visibility check. Callers take a fresh one
// per statement, not per transaction (Read Committed).
func (m *Manager) Snapshot() map[uint64]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := make(map[uint64]bool, len(m.active))
	for id := range m.active {
		s[id] = true
	}
	return s
}

// Begin allocates a new transaction id, registers it active, and emits
// its Begin WAL record.
func (m *Manager) Begin() (*Tx, error) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.active[id] = true
	m.mu.Unlock()

	if _, err := m.wal.Append(wal.Record{Kind: wal.KindBegin, TxID: id}); err != nil {
		return nil, fmt.Errorf("txn: begin %d: %w", id, err)
	}
	return &Tx{mgr: m, id: id, open: true}, nil
}

// WriteEntry names one row this transaction inserted or logically
// deleted, for ROLLBACK's undo pass.
type WriteEntry struct {
	Table string
	Row   page.RowID
}

// Tx is one in-flight transaction: its id, write-set, and outbox of WAL
// records buffered until commit.
type Tx struct {
	mgr        *Manager
	id         uint64
	open       bool
	heldWrite  bool
	inserted   []WriteEntry
	deleted    []WriteEntry
	outbox     []wal.Record
}

func (tx *Tx) ID() uint64 { return tx.id }

// ensureWriteLock acquires the manager's write-serialization lock on the
// first mutating operation of this transaction, held until commit or
// rollback.
func (tx *Tx) ensureWriteLock() {
	if !tx.heldWrite {
		tx.mgr.writeLock.Lock()
		tx.heldWrite = true
	}
}

// RecordInsert buffers an Insert WAL record and write-set entry for a row
// this transaction just wrote via the page store. tupleBytes is the
// page-format encoded tuple.
func (tx *Tx) RecordInsert(table string, row page.RowID, tupleBytes []byte) {
	tx.ensureWriteLock()
	tx.inserted = append(tx.inserted, WriteEntry{Table: table, Row: row})
	tx.outbox = append(tx.outbox, wal.Record{Kind: wal.KindInsert, TxID: tx.id, Table: table, Row: row, Payload: tupleBytes})
}

// RecordDelete buffers a Delete WAL record and write-set entry for a row
// this transaction logically deleted (xmax already stamped by the
// caller). oldImage is the prior row's encoded tuple, for the log's
// self-describing record.
func (tx *Tx) RecordDelete(table string, row page.RowID, oldImage []byte) {
	tx.ensureWriteLock()
	tx.deleted = append(tx.deleted, WriteEntry{Table: table, Row: row})
	tx.outbox = append(tx.outbox, wal.Record{Kind: wal.KindDelete, TxID: tx.id, Table: table, Row: row, Payload: oldImage})
}

// Commit appends the transaction's buffered records and its Commit
// record, fsyncs the WAL, deregisters the transaction, and releases the
// write lock. Success is only reported after the Commit record is
// durable.
func (tx *Tx) Commit() error {
	if !tx.open {
		return fmt.Errorf("txn: commit on closed transaction %d", tx.id)
	}
	for _, r := range tx.outbox {
		if _, err := tx.mgr.wal.Append(r); err != nil {
			return fmt.Errorf("txn: commit %d: append buffered record: %w", tx.id, err)
		}
	}
	if _, err := tx.mgr.wal.Append(wal.Record{Kind: wal.KindCommit, TxID: tx.id}); err != nil {
		return fmt.Errorf("txn: commit %d: append commit record: %w", tx.id, err)
	}
	if err := tx.mgr.wal.Sync(); err != nil {
		tx.mgr.log.Error("wal sync failed during commit", zap.Uint64("tx_id", tx.id), zap.Error(err))
		return fmt.Errorf("txn: commit %d: fsync: %w", tx.id, err)
	}

	tx.mgr.mu.Lock()
	delete(tx.mgr.active, tx.id)
	tx.mgr.mu.Unlock()

	tx.releaseWriteLock()
	tx.open = false
	return nil
}

// TableResolver maps a table name in the write-set to the storage it
// lives in, so ROLLBACK can undo physical writes.
type TableResolver func(table string) storage.RowStorage

// Rollback undoes this transaction's physical writes: inserted rows are
// slot-deleted, logically deleted rows get their xmax cleared, and an
// Abort record is appended (no fsync). Sequence counters are not
// reverted; SERIAL values are never reused.
func (tx *Tx) Rollback(resolve TableResolver) error {
	if !tx.open {
		return fmt.Errorf("txn: rollback on closed transaction %d", tx.id)
	}

	for _, e := range tx.inserted {
		if st := resolve(e.Table); st != nil {
			if err := st.MarkDeleted(e.Row); err != nil {
				return fmt.Errorf("txn: rollback %d: undo insert into %s: %w", tx.id, e.Table, err)
			}
		}
	}
	for _, e := range tx.deleted {
		if st := resolve(e.Table); st != nil {
			if err := st.ClearXmax(e.Row); err != nil {
				return fmt.Errorf("txn: rollback %d: undo delete in %s: %w", tx.id, e.Table, err)
			}
		}
	}

	if _, err := tx.mgr.wal.Append(wal.Record{Kind: wal.KindAbort, TxID: tx.id}); err != nil {
		return fmt.Errorf("txn: rollback %d: append abort record: %w", tx.id, err)
	}

	tx.mgr.mu.Lock()
	delete(tx.mgr.active, tx.id)
	tx.mgr.mu.Unlock()

	tx.releaseWriteLock()
	tx.open = false
	return nil
}

func (tx *Tx) releaseWriteLock() {
	if tx.heldWrite {
		tx.mgr.writeLock.Unlock()
		tx.heldWrite = false
	}
}

// IsOpen reports whether the transaction is still active (neither
// committed nor rolled back).
func (tx *Tx) IsOpen() bool { return tx.open }

// PeekNextID returns the id that would be assigned to the next Begin,
// without allocating it. VACUUM uses this as the horizon when no
// transaction is currently active.
func (m *Manager) PeekNextID() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextID
}

// FastForward raises the counter so the next Begin issues at least
// minNext, never lowering it. Startup recovery calls this with one past
// the highest transaction id found in the WAL so a replayed-from-crash
// server never reissues an id a pre-crash transaction already held.
func (m *Manager) FastForward(minNext uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if minNext > m.nextID {
		m.nextID = minNext
	}
}
