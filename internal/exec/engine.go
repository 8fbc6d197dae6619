package exec

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"postgrustql/internal/catalog"
	"postgrustql/internal/storage"
	"postgrustql/internal/txn"
)

// StorageFactory opens or creates the on-disk (or in-memory, for tests)
// RowStorage backing one table. The executor never constructs a
// storage.RowStorage itself; cmd/postgrustql wires in
// internal/storage.PagedStorage while tests wire in
// internal/storage.MemRowStorage.
type StorageFactory func(database, table string) (storage.RowStorage, error)

// Engine is the server-wide executor state: the catalog, the transaction
// manager, and a registry of every table's open RowStorage, keyed by
// database then table name (both lower-cased, matching the catalog's own
// case-folding).
type Engine struct {
	mu       sync.Mutex
	Instance *catalog.ServerInstance
	Txns     *txn.Manager
	newStore StorageFactory
	stores   map[string]map[string]storage.RowStorage
	log      *zap.Logger
}

// NewEngine builds an executor engine over an already-initialized server
// instance and transaction manager.
func NewEngine(inst *catalog.ServerInstance, txns *txn.Manager, newStore StorageFactory, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		Instance: inst,
		Txns:     txns,
		newStore: newStore,
		stores:   map[string]map[string]storage.RowStorage{},
		log:      log,
	}
}

// storageFor returns the RowStorage backing db.table, opening it via the
// factory on first reference.
func (e *Engine) storageFor(db, table string) (storage.RowStorage, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	dbKey := strings.ToLower(db)
	tblKey := strings.ToLower(table)
	tbls, ok := e.stores[dbKey]
	if !ok {
		tbls = map[string]storage.RowStorage{}
		e.stores[dbKey] = tbls
	}
	if st, ok := tbls[tblKey]; ok {
		return st, nil
	}
	st, err := e.newStore(db, table)
	if err != nil {
		return nil, err
	}
	tbls[tblKey] = st
	return st, nil
}

// dropStorage removes a table's registry entry, e.g. on DROP TABLE.
// Closing/deleting the underlying page file is left to the caller that
// owns the factory (the registry only tracks what's already open).
func (e *Engine) dropStorage(db, table string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if tbls, ok := e.stores[strings.ToLower(db)]; ok {
		delete(tbls, strings.ToLower(table))
	}
}

// renameStorage moves a table's registry entry to match a renamed table,
// so subsequent storageFor calls under the new name find the same
// already-open RowStorage instead of opening a second one.
func (e *Engine) renameStorage(db, oldName, newName string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tbls, ok := e.stores[strings.ToLower(db)]
	if !ok {
		return
	}
	oldKey := strings.ToLower(oldName)
	st, ok := tbls[oldKey]
	if !ok {
		return
	}
	delete(tbls, oldKey)
	tbls[strings.ToLower(newName)] = st
}

// dropDatabaseStorage removes every registered table store for db, e.g.
// on DROP DATABASE.
func (e *Engine) dropDatabaseStorage(db string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.stores, strings.ToLower(db))
}

// StorageFor exposes storageFor to callers outside the package (the
// protocol front end's recovery/redo resolver and diagnostics), which
// cannot reach the registry's table/database lookup any other way since
// it is intentionally engine-private for everyday statement execution.
func (e *Engine) StorageFor(db, table string) (storage.RowStorage, error) {
	return e.storageFor(db, table)
}

// TableResolverFor exposes tableResolver to callers outside the package,
// e.g. the protocol front end's implicit-rollback-on-disconnect path.
func (e *Engine) TableResolverFor(db string) txn.TableResolver {
	return e.tableResolver(db)
}

// tableResolver builds a txn.TableResolver scoped to one database, for
// Tx.Rollback's undo pass.
func (e *Engine) tableResolver(db string) txn.TableResolver {
	return func(table string) storage.RowStorage {
		st, err := e.storageFor(db, table)
		if err != nil {
			return nil
		}
		return st
	}
}

// minActiveTxID returns the lowest currently-active transaction id, or
// the engine's next id if none are active: the horizon VACUUM uses to
// decide which dead tuple versions are safe to discard.
func (e *Engine) minActiveTxID() uint64 {
	active := e.Txns.Snapshot()
	min := e.Txns.PeekNextID()
	for id := range active {
		if id < min {
			min = id
		}
	}
	return min
}
