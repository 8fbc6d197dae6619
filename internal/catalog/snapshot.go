package catalog

import "strings"

// Snapshots are the serializable projections of the catalog's live
// types, used by internal/wal's checkpoint writer to persist
// catalog.bin without exporting the mutexes and unexported
// sequence maps that make Table/Database safe for concurrent use.

// TableSnapshot is Table's serializable form.
type TableSnapshot struct {
	Name      string
	Owner     string
	Columns   []*Column
	Sequences map[string]int64
}

func (t *Table) Snapshot() TableSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	seq := make(map[string]int64, len(t.sequences))
	for k, v := range t.sequences {
		seq[k] = v
	}
	return TableSnapshot{Name: t.Name, Owner: t.Owner, Columns: t.Columns, Sequences: seq}
}

// RestoreTable rebuilds a Table from a snapshot produced by Snapshot,
// including its in-flight sequence counters (NewTable would incorrectly
// reset them to 1).
func RestoreTable(s TableSnapshot) *Table {
	t := &Table{Name: s.Name, Owner: s.Owner, Columns: s.Columns, sequences: map[string]int64{}}
	for k, v := range s.Sequences {
		t.sequences[k] = v
	}
	return t
}

// DatabaseSnapshot is Database's serializable form.
type DatabaseSnapshot struct {
	Name    string
	Tables  []TableSnapshot
	Enums   map[string][]string
	Indexes map[string]*Index
	Views   map[string]string
}

func (db *Database) Snapshot() DatabaseSnapshot {
	db.mu.RLock()
	defer db.mu.RUnlock()
	s := DatabaseSnapshot{
		Name:    db.Name,
		Enums:   db.Enums,
		Indexes: db.Indexes,
		Views:   db.Views,
	}
	for _, t := range db.Tables {
		s.Tables = append(s.Tables, t.Snapshot())
	}
	return s
}

func RestoreDatabase(s DatabaseSnapshot) *Database {
	db := NewDatabase(s.Name)
	for _, ts := range s.Tables {
		db.Tables[strings.ToLower(ts.Name)] = RestoreTable(ts)
	}
	if s.Enums != nil {
		db.Enums = s.Enums
	}
	if s.Indexes != nil {
		db.Indexes = s.Indexes
	}
	if s.Views != nil {
		db.Views = s.Views
	}
	return db
}

// InstanceSnapshot is ServerInstance's serializable form, the payload
// written to catalog.bin at checkpoint time.
type InstanceSnapshot struct {
	Databases map[string]DatabaseSnapshot
	Metadata  map[string]*DatabaseMetadata
	Users     map[string]*User
	Roles     map[string]*Role
}

func (s *ServerInstance) Snapshot() InstanceSnapshot {
	out := InstanceSnapshot{
		Databases: make(map[string]DatabaseSnapshot, len(s.Databases)),
		Metadata:  s.Metadata,
		Users:     s.Users,
		Roles:     s.Roles,
	}
	for name, db := range s.Databases {
		out.Databases[name] = db.Snapshot()
	}
	return out
}

func RestoreInstance(s InstanceSnapshot) *ServerInstance {
	inst := NewServerInstance()
	for name, ds := range s.Databases {
		inst.Databases[name] = RestoreDatabase(ds)
	}
	if s.Metadata != nil {
		inst.Metadata = s.Metadata
	}
	if s.Users != nil {
		inst.Users = s.Users
	}
	if s.Roles != nil {
		inst.Roles = s.Roles
	}
	return inst
}
