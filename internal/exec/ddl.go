package exec

import (
	"fmt"
	"strings"

	"postgrustql/internal/catalog"
	"postgrustql/internal/sqlparse"
	"postgrustql/internal/storage"
	"postgrustql/internal/types"
)

// resolveColumnDef turns a parsed column definition into a catalog
// column, filling in a named enum type's member list from the database's
// registered enums (the parser has no catalog access, so it leaves
// DataType.EnumValues empty).
func resolveColumnDef(db *catalog.Database, cd sqlparse.ColumnDef) (*catalog.Column, error) {
	dt := cd.DataType
	if dt.Kind == types.KindEnum {
		values, ok := db.Enums[strings.ToLower(dt.EnumName)]
		if !ok {
			return nil, catalog.NewNotFound("type", dt.EnumName)
		}
		dt.EnumValues = values
	}
	return &catalog.Column{
		Name:       cd.Name,
		DataType:   dt,
		Nullable:   cd.Nullable,
		PrimaryKey: cd.PrimaryKey,
		Unique:     cd.Unique,
		ForeignKey: cd.ForeignKey,
	}, nil
}

func (s *Session) execCreateTable(st sqlparse.CreateTable) Result {
	db, meta, err := s.currentDB()
	if err != nil {
		return Err(err)
	}
	if err := s.requirePrivilege(meta, catalog.PrivCreate); err != nil {
		return Err(err)
	}

	cols := make([]*catalog.Column, 0, len(st.Columns))
	for _, cd := range st.Columns {
		col, err := resolveColumnDef(db, cd)
		if err != nil {
			return Err(err)
		}
		cols = append(cols, col)
	}

	table := catalog.NewTable(st.Name, cols)
	table.Owner = s.User.Username
	if err := db.CreateTable(table); err != nil {
		return Err(err)
	}
	return Ok(fmt.Sprintf("CREATE TABLE %s", st.Name))
}

func (s *Session) execDropTable(st sqlparse.DropTable) Result {
	db, meta, err := s.currentDB()
	if err != nil {
		return Err(err)
	}
	if err := s.requirePrivilege(meta, catalog.PrivCreate); err != nil {
		return Err(err)
	}
	if err := db.DropTable(st.Name); err != nil {
		return Err(err)
	}
	s.Engine.dropStorage(s.Database, st.Name)
	return Ok(fmt.Sprintf("DROP TABLE %s", st.Name))
}

// rewriteRows replaces every live row of db.table with transform(values)
// applied to its value slice, used by ALTER TABLE ADD/DROP COLUMN to
// keep rows-at-rest matching the table's changed column count. The old
// tuple is physically removed rather than logically deleted, since an
// ALTER already runs under the transaction manager's exclusive write
// lock and there is no older-snapshot reader left to preserve it for.
// The rewritten pages are left dirty in the buffer pool rather than
// flushed here: the new row shape must not reach disk before the next
// checkpoint persists the matching catalog, or a crash in between would
// leave rows whose length disagrees with the column count recovery
// reloads.
func rewriteRows(e *Engine, dbName, tableName string, transform func([]types.Value) []types.Value) error {
	st, err := e.storageFor(dbName, tableName)
	if err != nil {
		return err
	}
	type liveRow struct {
		id     storage.Row
		values []types.Value
	}
	var rows []liveRow
	if err := st.Scan(func(r storage.Row) bool {
		if r.Xmax == nil {
			rows = append(rows, liveRow{id: r, values: r.Values})
		}
		return true
	}); err != nil {
		return err
	}
	for _, r := range rows {
		if _, err := st.Insert(r.id.Xmin, transform(r.values)); err != nil {
			return err
		}
		if err := st.MarkDeleted(r.id.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) execAlterTable(st sqlparse.AlterTable) Result {
	db, meta, err := s.currentDB()
	if err != nil {
		return Err(err)
	}
	if err := s.requirePrivilege(meta, catalog.PrivCreate); err != nil {
		return Err(err)
	}
	table := db.FindTable(st.Name)
	if table == nil {
		return Err(catalog.NewNotFound("table", st.Name))
	}

	switch op := st.Operation.(type) {
	case sqlparse.AddColumn:
		col, err := resolveColumnDef(db, sqlparse.ColumnDef{
			Name: op.Column.Name, DataType: op.Column.DataType, Nullable: true,
		})
		if err != nil {
			return Err(err)
		}
		if op.Column.PrimaryKey || !op.Column.Nullable {
			return Err(catalog.NewConstraintViolation("column", op.Column.Name, "a new column added to an existing table must be nullable"))
		}
		table.Columns = append(table.Columns, col)
		if err := rewriteRows(s.Engine, s.Database, st.Name, func(vs []types.Value) []types.Value {
			return append(append([]types.Value(nil), vs...), types.Null())
		}); err != nil {
			return Err(err)
		}
		return Ok(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", st.Name, op.Column.Name))

	case sqlparse.DropColumnOp:
		idx, err := table.DropColumn(op.Name)
		if err != nil {
			return Err(err)
		}
		if err := rewriteRows(s.Engine, s.Database, st.Name, func(vs []types.Value) []types.Value {
			out := append([]types.Value(nil), vs[:idx]...)
			return append(out, vs[idx+1:]...)
		}); err != nil {
			return Err(err)
		}
		return Ok(fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", st.Name, op.Name))

	case sqlparse.RenameColumn:
		col := table.FindColumn(op.OldName)
		if col == nil {
			return Err(catalog.NewNotFound("column", op.OldName))
		}
		col.Name = op.NewName
		return Ok(fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", st.Name, op.OldName, op.NewName))

	case sqlparse.RenameTable:
		if err := db.DropTable(st.Name); err != nil {
			return Err(err)
		}
		table.Name = op.NewName
		if err := db.CreateTable(table); err != nil {
			return Err(err)
		}
		s.Engine.renameStorage(s.Database, st.Name, op.NewName)
		return Ok(fmt.Sprintf("ALTER TABLE %s RENAME TO %s", st.Name, op.NewName))

	case sqlparse.OwnerTo:
		table.Owner = op.NewOwner
		return Ok(fmt.Sprintf("ALTER TABLE %s OWNER TO %s", st.Name, op.NewOwner))

	default:
		return Err(fmt.Errorf("exec: unsupported ALTER TABLE operation %T", op))
	}
}

func (s *Session) execCreateDatabase(st sqlparse.CreateDatabase) Result {
	if !s.Engine.Instance.CanCreateDB(s.User) {
		return Err(catalog.NewPermissionDenied("database", st.Name, "user may not create databases"))
	}
	owner := st.Owner
	if owner == "" {
		owner = s.User.Username
	}
	if err := s.Engine.Instance.CreateDatabase(st.Name, owner); err != nil {
		return Err(err)
	}
	return Ok(fmt.Sprintf("CREATE DATABASE %s", st.Name))
}

func (s *Session) execDropDatabase(st sqlparse.DropDatabase) Result {
	meta := s.Engine.Instance.Metadata[strings.ToLower(st.Name)]
	if !s.Engine.Instance.IsSuperuser(s.User) && (meta == nil || meta.Owner != s.User.Username) {
		return Err(catalog.NewPermissionDenied("database", st.Name, "only the owner or a superuser may drop a database"))
	}
	if err := s.Engine.Instance.DropDatabase(st.Name); err != nil {
		return Err(err)
	}
	s.Engine.dropDatabaseStorage(st.Name)
	return Ok(fmt.Sprintf("DROP DATABASE %s", st.Name))
}

func (s *Session) execCreateUser(st sqlparse.CreateUser) Result {
	if !s.Engine.Instance.IsSuperuser(s.User) {
		return Err(catalog.NewPermissionDenied("user", st.Username, "only a superuser may create users"))
	}
	if err := s.Engine.Instance.CreateUser(st.Username, st.Password, st.IsSuperuser); err != nil {
		return Err(err)
	}
	return Ok(fmt.Sprintf("CREATE USER %s", st.Username))
}

func (s *Session) execDropUser(st sqlparse.DropUser) Result {
	if !s.Engine.Instance.IsSuperuser(s.User) {
		return Err(catalog.NewPermissionDenied("user", st.Username, "only a superuser may drop users"))
	}
	if err := s.Engine.Instance.DropUser(st.Username); err != nil {
		return Err(err)
	}
	return Ok(fmt.Sprintf("DROP USER %s", st.Username))
}

func (s *Session) execAlterUser(st sqlparse.AlterUser) Result {
	if !s.Engine.Instance.IsSuperuser(s.User) && s.User.Username != st.Username {
		return Err(catalog.NewPermissionDenied("user", st.Username, "may only change your own password"))
	}
	u, ok := s.Engine.Instance.Users[st.Username]
	if !ok {
		return Err(catalog.NewNotFound("user", st.Username))
	}
	u.SetPassword(st.Password)
	return Ok(fmt.Sprintf("ALTER USER %s", st.Username))
}

func (s *Session) execCreateRole(st sqlparse.CreateRole) Result {
	if !s.Engine.Instance.CanCreateRole(s.User) {
		return Err(catalog.NewPermissionDenied("role", st.RoleName, "user may not create roles"))
	}
	if err := s.Engine.Instance.CreateRole(st.RoleName); err != nil {
		return Err(err)
	}
	if st.IsSuperuser {
		s.Engine.Instance.Roles[st.RoleName].IsSuperuser = true
	}
	return Ok(fmt.Sprintf("CREATE ROLE %s", st.RoleName))
}

func (s *Session) execDropRole(st sqlparse.DropRole) Result {
	if !s.Engine.Instance.CanCreateRole(s.User) {
		return Err(catalog.NewPermissionDenied("role", st.RoleName, "user may not drop roles"))
	}
	if err := s.Engine.Instance.DropRole(st.RoleName); err != nil {
		return Err(err)
	}
	return Ok(fmt.Sprintf("DROP ROLE %s", st.RoleName))
}

func (s *Session) execGrantRole(st sqlparse.GrantRole) Result {
	if !s.Engine.Instance.IsSuperuser(s.User) {
		return Err(catalog.NewPermissionDenied("role", st.RoleName, "only a superuser may grant roles"))
	}
	if err := s.Engine.Instance.GrantRoleToUser(st.RoleName, st.ToUser); err != nil {
		return Err(err)
	}
	return Ok(fmt.Sprintf("GRANT %s TO %s", st.RoleName, st.ToUser))
}

func (s *Session) execRevokeRole(st sqlparse.RevokeRole) Result {
	if !s.Engine.Instance.IsSuperuser(s.User) {
		return Err(catalog.NewPermissionDenied("role", st.RoleName, "only a superuser may revoke roles"))
	}
	if err := s.Engine.Instance.RevokeRoleFromUser(st.RoleName, st.FromUser); err != nil {
		return Err(err)
	}
	return Ok(fmt.Sprintf("REVOKE %s FROM %s", st.RoleName, st.FromUser))
}

func (s *Session) execGrant(st sqlparse.Grant) Result {
	meta := s.Engine.Instance.Metadata[strings.ToLower(st.OnDatabase)]
	if meta == nil {
		return Err(catalog.NewNotFound("database", st.OnDatabase))
	}
	if !s.Engine.Instance.IsSuperuser(s.User) && meta.Owner != s.User.Username {
		return Err(catalog.NewPermissionDenied("database", st.OnDatabase, "only the owner or a superuser may grant privileges"))
	}
	if _, ok := s.Engine.Instance.Users[st.ToUser]; !ok {
		return Err(catalog.NewNotFound("user", st.ToUser))
	}
	meta.Grant(st.ToUser, st.Privilege)
	return Ok(fmt.Sprintf("GRANT %s ON DATABASE %s TO %s", st.Privilege, st.OnDatabase, st.ToUser))
}

func (s *Session) execRevoke(st sqlparse.Revoke) Result {
	meta := s.Engine.Instance.Metadata[strings.ToLower(st.OnDatabase)]
	if meta == nil {
		return Err(catalog.NewNotFound("database", st.OnDatabase))
	}
	if !s.Engine.Instance.IsSuperuser(s.User) && meta.Owner != s.User.Username {
		return Err(catalog.NewPermissionDenied("database", st.OnDatabase, "only the owner or a superuser may revoke privileges"))
	}
	meta.Revoke(st.FromUser, st.Privilege)
	return Ok(fmt.Sprintf("REVOKE %s ON DATABASE %s FROM %s", st.Privilege, st.OnDatabase, st.FromUser))
}

func (s *Session) execCreateType(st sqlparse.CreateType) Result {
	db, meta, err := s.currentDB()
	if err != nil {
		return Err(err)
	}
	if err := s.requirePrivilege(meta, catalog.PrivCreate); err != nil {
		return Err(err)
	}
	if err := db.CreateEnum(st.Name, st.Values); err != nil {
		return Err(err)
	}
	return Ok(fmt.Sprintf("CREATE TYPE %s", st.Name))
}

func (s *Session) execDropType(st sqlparse.DropType) Result {
	db, meta, err := s.currentDB()
	if err != nil {
		return Err(err)
	}
	if err := s.requirePrivilege(meta, catalog.PrivCreate); err != nil {
		return Err(err)
	}
	if err := db.DropEnum(st.Name); err != nil {
		return Err(err)
	}
	return Ok(fmt.Sprintf("DROP TYPE %s", st.Name))
}

func (s *Session) execCreateIndex(st sqlparse.CreateIndex) Result {
	db, meta, err := s.currentDB()
	if err != nil {
		return Err(err)
	}
	if err := s.requirePrivilege(meta, catalog.PrivCreate); err != nil {
		return Err(err)
	}
	if db.FindTable(st.Table) == nil {
		return Err(catalog.NewNotFound("table", st.Table))
	}
	idx := &catalog.Index{Name: st.Name, Kind: st.Kind, Table: st.Table, Columns: st.Columns, Unique: st.Unique}
	if err := db.CreateIndex(idx); err != nil {
		return Err(err)
	}
	return Ok(fmt.Sprintf("CREATE INDEX %s", st.Name))
}

func (s *Session) execDropIndex(st sqlparse.DropIndex) Result {
	db, meta, err := s.currentDB()
	if err != nil {
		return Err(err)
	}
	if err := s.requirePrivilege(meta, catalog.PrivCreate); err != nil {
		return Err(err)
	}
	if err := db.DropIndex(st.Name); err != nil {
		return Err(err)
	}
	return Ok(fmt.Sprintf("DROP INDEX %s", st.Name))
}

func (s *Session) execCreateView(st sqlparse.CreateView) Result {
	db, meta, err := s.currentDB()
	if err != nil {
		return Err(err)
	}
	if err := s.requirePrivilege(meta, catalog.PrivCreate); err != nil {
		return Err(err)
	}
	if err := db.CreateView(st.Name, st.Query); err != nil {
		return Err(err)
	}
	return Ok(fmt.Sprintf("CREATE VIEW %s", st.Name))
}

func (s *Session) execDropView(st sqlparse.DropView) Result {
	db, meta, err := s.currentDB()
	if err != nil {
		return Err(err)
	}
	if err := s.requirePrivilege(meta, catalog.PrivCreate); err != nil {
		return Err(err)
	}
	if err := db.DropView(st.Name); err != nil {
		return Err(err)
	}
	return Ok(fmt.Sprintf("DROP VIEW %s", st.Name))
}
