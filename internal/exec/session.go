package exec

import (
	"fmt"

	"postgrustql/internal/catalog"
	"postgrustql/internal/sqlparse"
	"postgrustql/internal/txn"
)

// Session is one connected client's state: which database it is attached
// to, which user it authenticated as, and its currently open explicit
// transaction, if any.
type Session struct {
	Engine   *Engine
	Database string
	User     *catalog.User
	Tx       *txn.Tx
}

// NewSession attaches a session to database as user.
func NewSession(e *Engine, database string, user *catalog.User) *Session {
	return &Session{Engine: e, Database: database, User: user}
}

// Execute runs one parsed statement to completion.
//
// Transaction-control statements (BEGIN/COMMIT/ROLLBACK) are handled
// directly against s.Tx. Every other statement either runs inside the
// session's already-open explicit transaction (in which case a failure
// fails only the statement; the transaction stays open for the client
// to retry or roll back) or, with no explicit transaction open, is
// wrapped in an implicit begin/commit pair with rollback on error so no
// transaction is ever leaked open.
func (s *Session) Execute(stmt sqlparse.Statement) Result {
	switch stmt.(type) {
	case sqlparse.Begin:
		return s.execBegin()
	case sqlparse.Commit:
		return s.execCommit()
	case sqlparse.Rollback:
		return s.execRollback()
	}

	if s.Tx != nil {
		return s.dispatch(stmt, s.Tx)
	}

	tx, err := s.Engine.Txns.Begin()
	if err != nil {
		return Err(err)
	}
	res := s.dispatch(stmt, tx)
	if res.IsError() {
		if rbErr := tx.Rollback(s.Engine.tableResolver(s.Database)); rbErr != nil {
			return Err(fmt.Errorf("%w (rollback also failed: %v)", res.Err, rbErr))
		}
		return res
	}
	if err := tx.Commit(); err != nil {
		return Err(err)
	}
	return res
}

func (s *Session) execBegin() Result {
	if s.Tx != nil {
		return Err(catalog.NewConstraintViolation("transaction", "", "a transaction is already open"))
	}
	tx, err := s.Engine.Txns.Begin()
	if err != nil {
		return Err(err)
	}
	s.Tx = tx
	return Ok("BEGIN")
}

func (s *Session) execCommit() Result {
	if s.Tx == nil {
		return Err(catalog.NewConstraintViolation("transaction", "", "no transaction is open"))
	}
	err := s.Tx.Commit()
	s.Tx = nil
	if err != nil {
		return Err(err)
	}
	return Ok("COMMIT")
}

func (s *Session) execRollback() Result {
	if s.Tx == nil {
		return Err(catalog.NewConstraintViolation("transaction", "", "no transaction is open"))
	}
	err := s.Tx.Rollback(s.Engine.tableResolver(s.Database))
	s.Tx = nil
	if err != nil {
		return Err(err)
	}
	return Ok("ROLLBACK")
}

// dispatch routes a non-transaction-control statement to its handler.
func (s *Session) dispatch(stmt sqlparse.Statement, tx *txn.Tx) Result {
	switch st := stmt.(type) {
	case sqlparse.CreateTable:
		return s.execCreateTable(st)
	case sqlparse.DropTable:
		return s.execDropTable(st)
	case sqlparse.AlterTable:
		return s.execAlterTable(st)
	case sqlparse.CreateDatabase:
		return s.execCreateDatabase(st)
	case sqlparse.DropDatabase:
		return s.execDropDatabase(st)
	case sqlparse.CreateUser:
		return s.execCreateUser(st)
	case sqlparse.DropUser:
		return s.execDropUser(st)
	case sqlparse.AlterUser:
		return s.execAlterUser(st)
	case sqlparse.CreateRole:
		return s.execCreateRole(st)
	case sqlparse.DropRole:
		return s.execDropRole(st)
	case sqlparse.GrantRole:
		return s.execGrantRole(st)
	case sqlparse.RevokeRole:
		return s.execRevokeRole(st)
	case sqlparse.Grant:
		return s.execGrant(st)
	case sqlparse.Revoke:
		return s.execRevoke(st)
	case sqlparse.CreateType:
		return s.execCreateType(st)
	case sqlparse.DropType:
		return s.execDropType(st)
	case sqlparse.CreateIndex:
		return s.execCreateIndex(st)
	case sqlparse.DropIndex:
		return s.execDropIndex(st)
	case sqlparse.CreateView:
		return s.execCreateView(st)
	case sqlparse.DropView:
		return s.execDropView(st)
	case sqlparse.Insert:
		return s.execInsert(st, tx)
	case sqlparse.Update:
		return s.execUpdate(st, tx)
	case sqlparse.Delete:
		return s.execDelete(st, tx)
	case sqlparse.Select:
		return s.execSelect(st, tx)
	case sqlparse.Explain:
		return s.execExplain(st, tx)
	case sqlparse.Vacuum:
		return s.execVacuum(st)
	case sqlparse.ShowTables:
		return s.execShowTables()
	case sqlparse.ShowUsers:
		return s.execShowUsers()
	case sqlparse.ShowDatabases:
		return s.execShowDatabases()
	default:
		return Err(fmt.Errorf("exec: unsupported statement type %T", stmt))
	}
}

// currentDB resolves the session's attached database and its metadata,
// failing if it no longer exists (e.g. dropped concurrently).
func (s *Session) currentDB() (*catalog.Database, *catalog.DatabaseMetadata, error) {
	db, ok := s.Engine.Instance.Databases[normalizeDBKey(s.Database)]
	if !ok {
		return nil, nil, catalog.NewNotFound("database", s.Database)
	}
	meta := s.Engine.Instance.Metadata[normalizeDBKey(s.Database)]
	return db, meta, nil
}

func normalizeDBKey(name string) string { return lower(name) }

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// requirePrivilege checks that the session's user may exercise p on the
// current database: superusers and the database owner
// bypass the check (ownership grants ALL at creation time, so this is
// really the same check, but superuser status never appears in a
// DatabaseMetadata grant table).
func (s *Session) requirePrivilege(meta *catalog.DatabaseMetadata, p catalog.Privilege) error {
	if s.User == nil {
		return catalog.NewPermissionDenied("database", s.Database, "not authenticated")
	}
	if s.Engine.Instance.IsSuperuser(s.User) {
		return nil
	}
	if meta != nil && meta.HasPrivilege(s.User.Username, p) {
		return nil
	}
	return catalog.NewPermissionDenied("database", s.Database, fmt.Sprintf("user %q lacks %s privilege", s.User.Username, p))
}
