// Package catalog holds the single in-memory source of truth for
// databases, tables, columns, indexes, views, enum types, roles, users,
// and privileges.
package catalog

import (
	"fmt"
	"strings"
	"sync"

	"postgrustql/internal/types"
)

// ForeignKey is stored as a (table, column) name pair, resolved by
// lookup rather than by in-memory pointer, so the catalog stays a tree
// for serialization.
type ForeignKey struct {
	ReferencedTable  string
	ReferencedColumn string
}

// Column is (name, data-type, nullable, primary-key, unique, optional FK).
type Column struct {
	Name       string
	DataType   types.DataType
	Nullable   bool
	PrimaryKey bool
	Unique     bool
	ForeignKey *ForeignKey
}

// IndexKind distinguishes the two supported index implementations.
type IndexKind string

const (
	IndexBTree IndexKind = "btree"
	IndexHash  IndexKind = "hash"
)

// Index maps a concatenated key-tuple over one or more columns to a row
// identifier.
type Index struct {
	Name    string
	Kind    IndexKind
	Table   string
	Columns []string
	Unique  bool
}

// Table is (name, column sequence, per-column sequence counters). Row
// storage itself lives in internal/storage, addressed via the table's
// page file; the catalog only tracks column/constraint metadata and
// serial sequence state.
type Table struct {
	mu        sync.Mutex
	Name      string
	Owner     string
	Columns   []*Column
	sequences map[string]int64 // column name -> next value, for SERIAL/BIGSERIAL
}

// NewTable constructs a table, seeding sequence counters at 1 for every
// SERIAL/BIGSERIAL column.
func NewTable(name string, columns []*Column) *Table {
	t := &Table{Name: name, Columns: columns, sequences: map[string]int64{}}
	for _, c := range columns {
		if c.DataType.IsSerial() {
			t.sequences[c.Name] = 1
		}
	}
	return t
}

// NextSerial advances and returns the next sequence value for col. The
// sequence is advanced at assignment time, not at commit, and is never
// reset by rollback: callers must not "give back" a
// value once allocated, even if the statement that consumed it aborts.
func (t *Table) NextSerial(col string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	v := t.sequences[col]
	t.sequences[col] = v + 1
	return v
}

func (t *Table) FindColumn(name string) *Column {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c
		}
	}
	return nil
}

func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

func (t *Table) PrimaryKeyColumns() []*Column {
	var pk []*Column
	for _, c := range t.Columns {
		if c.PrimaryKey {
			pk = append(pk, c)
		}
	}
	return pk
}

// DropColumn removes column name from the table's metadata. Truncating
// every existing row's value slice at that index is the caller's
// responsibility (the executor does this against the row store so that
// rows-at-rest keep matching table.Columns.Len()).
func (t *Table) DropColumn(name string) (int, error) {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return -1, NewNotFound("column", name)
	}
	t.Columns = append(t.Columns[:idx], t.Columns[idx+1:]...)
	return idx, nil
}

// Privilege is a variant over the access rights a user can hold on a
// database; All dominates all others.
type Privilege string

const (
	PrivConnect Privilege = "CONNECT"
	PrivCreate  Privilege = "CREATE"
	PrivSelect  Privilege = "SELECT"
	PrivInsert  Privilege = "INSERT"
	PrivUpdate  Privilege = "UPDATE"
	PrivDelete  Privilege = "DELETE"
	PrivAll     Privilege = "ALL"
)

// DatabaseMetadata holds ownership and per-user privilege grants for one
// database.
type DatabaseMetadata struct {
	Owner      string
	Privileges map[string]map[Privilege]bool
}

// NewDatabaseMetadata grants the owner All at construction time.
func NewDatabaseMetadata(owner string) *DatabaseMetadata {
	return &DatabaseMetadata{
		Owner:      owner,
		Privileges: map[string]map[Privilege]bool{owner: {PrivAll: true}},
	}
}

func (m *DatabaseMetadata) Grant(user string, p Privilege) {
	if m.Privileges[user] == nil {
		m.Privileges[user] = map[Privilege]bool{}
	}
	if p == PrivAll {
		m.Privileges[user] = map[Privilege]bool{PrivAll: true}
		return
	}
	// An explicit ALL already held dominates a narrower grant.
	if m.Privileges[user][PrivAll] {
		return
	}
	m.Privileges[user][p] = true
}

func (m *DatabaseMetadata) Revoke(user string, p Privilege) {
	if m.Privileges[user] == nil {
		return
	}
	delete(m.Privileges[user], p)
}

func (m *DatabaseMetadata) HasPrivilege(user string, p Privilege) bool {
	privs := m.Privileges[user]
	if privs == nil {
		return false
	}
	return privs[PrivAll] || privs[p]
}

// Database holds tables, enum types, indexes, and stored views for one
// named database.
type Database struct {
	mu      sync.RWMutex
	Name    string
	Tables  map[string]*Table
	Enums   map[string][]string // enum type name -> ordered member list
	Indexes map[string]*Index
	Views   map[string]string // view name -> stored SELECT text
}

func NewDatabase(name string) *Database {
	return &Database{
		Name:    name,
		Tables:  map[string]*Table{},
		Enums:   map[string][]string{},
		Indexes: map[string]*Index{},
		Views:   map[string]string{},
	}
}

func (db *Database) CreateTable(t *Table) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	key := strings.ToLower(t.Name)
	if _, ok := db.Tables[key]; ok {
		return NewAlreadyExists("table", t.Name)
	}
	db.Tables[key] = t
	return nil
}

func (db *Database) DropTable(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	key := strings.ToLower(name)
	if _, ok := db.Tables[key]; !ok {
		return NewNotFound("table", name)
	}
	delete(db.Tables, key)
	return nil
}

func (db *Database) FindTable(name string) *Table {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.Tables[strings.ToLower(name)]
}

func (db *Database) CreateEnum(name string, values []string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	key := strings.ToLower(name)
	if _, ok := db.Enums[key]; ok {
		return NewAlreadyExists("type", name)
	}
	db.Enums[key] = values
	return nil
}

// DropEnum removes an enum type, refusing while any column still
// references it.
func (db *Database) DropEnum(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	key := strings.ToLower(name)
	if _, ok := db.Enums[key]; !ok {
		return NewNotFound("type", name)
	}
	for _, t := range db.Tables {
		for _, c := range t.Columns {
			if c.DataType.Kind == types.KindEnum && strings.EqualFold(c.DataType.EnumName, name) {
				return NewConstraintViolation("type", name, fmt.Sprintf("in use by column %s.%s", t.Name, c.Name))
			}
		}
	}
	delete(db.Enums, key)
	return nil
}

func (db *Database) CreateIndex(idx *Index) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	key := strings.ToLower(idx.Name)
	if _, ok := db.Indexes[key]; ok {
		return NewAlreadyExists("index", idx.Name)
	}
	db.Indexes[key] = idx
	return nil
}

func (db *Database) DropIndex(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	key := strings.ToLower(name)
	if _, ok := db.Indexes[key]; !ok {
		return NewNotFound("index", name)
	}
	delete(db.Indexes, key)
	return nil
}

func (db *Database) CreateView(name, selectText string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	key := strings.ToLower(name)
	if _, ok := db.Views[key]; ok {
		return NewAlreadyExists("view", name)
	}
	db.Views[key] = selectText
	return nil
}

func (db *Database) DropView(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	key := strings.ToLower(name)
	if _, ok := db.Views[key]; !ok {
		return NewNotFound("view", name)
	}
	delete(db.Views, key)
	return nil
}
