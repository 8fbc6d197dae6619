package exec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postgrustql/internal/catalog"
	"postgrustql/internal/sqlparse"
	"postgrustql/internal/storage"
	"postgrustql/internal/txn"
	"postgrustql/internal/wal"
)

// newTestSession builds a session attached to a fresh "testdb" database
// owned by a freshly-initialized superuser, backed entirely by
// storage.MemRowStorage so each test table lives purely in memory.
func newTestSession(t *testing.T) *Session {
	t.Helper()
	w, err := wal.Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	inst := catalog.NewServerInstance()
	inst.Initialize("root", "rootpw", "testdb")

	mgr := txn.NewManager(w, nil)
	stores := map[string]storage.RowStorage{}
	factory := func(db, table string) (storage.RowStorage, error) {
		key := db + "." + table
		if st, ok := stores[key]; ok {
			return st, nil
		}
		st := storage.NewMemRowStorage()
		stores[key] = st
		return st, nil
	}
	engine := NewEngine(inst, mgr, factory, nil)
	return NewSession(engine, "testdb", inst.Users["root"])
}

func mustExec(t *testing.T, s *Session, sql string) Result {
	t.Helper()
	stmt, err := sqlparse.Parse(sql)
	require.NoError(t, err, "parsing %q", sql)
	res := s.Execute(stmt)
	require.False(t, res.IsError(), "executing %q: %v", sql, res.Err)
	return res
}

func TestCreateTableAndInsertSelect(t *testing.T) {
	s := newTestSession(t)
	mustExec(t, s, "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)")
	mustExec(t, s, "INSERT INTO users (id, name) VALUES (1, 'alice')")
	mustExec(t, s, "INSERT INTO users (id, name) VALUES (2, 'bob')")

	res := mustExec(t, s, "SELECT id, name FROM users WHERE id = 2")
	require.Equal(t, KindRowSet, res.Kind)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "bob", res.Rows[0][1].String())
}

func TestDropTypeRefusedWhileColumnReferencesIt(t *testing.T) {
	s := newTestSession(t)
	mustExec(t, s, "CREATE TYPE mood AS ENUM ('sad', 'happy')")
	mustExec(t, s, "CREATE TABLE people (id INTEGER PRIMARY KEY, feeling mood)")

	stmt, err := sqlparse.Parse("DROP TYPE mood")
	require.NoError(t, err)
	res := s.Execute(stmt)
	require.True(t, res.IsError())
	var cerr *catalog.Error
	require.ErrorAs(t, res.Err, &cerr)
	assert.Equal(t, catalog.KindConstraintViolation, cerr.ErrorKind)

	mustExec(t, s, "DROP TABLE people")
	mustExec(t, s, "DROP TYPE mood")
}

func TestInsertDuplicatePrimaryKeyFails(t *testing.T) {
	s := newTestSession(t)
	mustExec(t, s, "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)")
	mustExec(t, s, "INSERT INTO users (id, name) VALUES (1, 'alice')")

	stmt, err := sqlparse.Parse("INSERT INTO users (id, name) VALUES (1, 'again')")
	require.NoError(t, err)
	res := s.Execute(stmt)
	assert.True(t, res.IsError())
}

func TestUpdateIsLogicalDeleteThenInsert(t *testing.T) {
	s := newTestSession(t)
	mustExec(t, s, "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)")
	mustExec(t, s, "INSERT INTO users (id, name) VALUES (1, 'alice')")
	res := mustExec(t, s, "UPDATE users SET name = 'alicia' WHERE id = 1")
	assert.Equal(t, 1, res.Affected)

	sel := mustExec(t, s, "SELECT name FROM users WHERE id = 1")
	require.Len(t, sel.Rows, 1)
	assert.Equal(t, "alicia", sel.Rows[0][0].String())
}

func TestDeleteStampsXmaxOnly(t *testing.T) {
	s := newTestSession(t)
	mustExec(t, s, "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)")
	mustExec(t, s, "INSERT INTO users (id, name) VALUES (1, 'alice')")
	res := mustExec(t, s, "DELETE FROM users WHERE id = 1")
	assert.Equal(t, 1, res.Affected)

	sel := mustExec(t, s, "SELECT id FROM users")
	assert.Empty(t, sel.Rows)

	st, err := s.Engine.storageFor("testdb", "users")
	require.NoError(t, err)
	n, err := st.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n, "the dead tuple version is still physically present until VACUUM")
}

func TestSerialColumnAutoAssignsIncreasingIDs(t *testing.T) {
	s := newTestSession(t)
	mustExec(t, s, "CREATE TABLE s (id SERIAL, v TEXT)")
	mustExec(t, s, "INSERT INTO s (v) VALUES ('x')")
	mustExec(t, s, "INSERT INTO s (v) VALUES ('y')")

	res := mustExec(t, s, "SELECT id FROM s ORDER BY id ASC")
	require.Len(t, res.Rows, 2)
	assert.Equal(t, int64(1), res.Rows[0][0].I64)
	assert.Equal(t, int64(2), res.Rows[1][0].I64)
}

func TestSerialValuesNotReusedAfterRollback(t *testing.T) {
	s := newTestSession(t)
	mustExec(t, s, "CREATE TABLE s (id SERIAL, v TEXT)")
	mustExec(t, s, "INSERT INTO s (v) VALUES ('kept')")

	mustExec(t, s, "BEGIN")
	mustExec(t, s, "INSERT INTO s (v) VALUES ('discarded')")
	mustExec(t, s, "ROLLBACK")

	mustExec(t, s, "INSERT INTO s (v) VALUES ('after')")
	res := mustExec(t, s, "SELECT id FROM s ORDER BY id ASC")
	require.Len(t, res.Rows, 2)
	assert.Equal(t, int64(1), res.Rows[0][0].I64)
	assert.Equal(t, int64(3), res.Rows[1][0].I64, "the rolled-back insert's serial value is never handed out again")
}

func TestVacuumReclaimsDeadTuples(t *testing.T) {
	s := newTestSession(t)
	mustExec(t, s, "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)")
	mustExec(t, s, "INSERT INTO users (id, name) VALUES (1, 'alice')")
	mustExec(t, s, "DELETE FROM users WHERE id = 1")
	mustExec(t, s, "VACUUM users")

	st, err := s.Engine.storageFor("testdb", "users")
	require.NoError(t, err)
	n, err := st.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestInnerJoin(t *testing.T) {
	s := newTestSession(t)
	mustExec(t, s, "CREATE TABLE orders (id INTEGER PRIMARY KEY, user_id INTEGER)")
	mustExec(t, s, "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)")
	mustExec(t, s, "INSERT INTO users (id, name) VALUES (1, 'alice')")
	mustExec(t, s, "INSERT INTO orders (id, user_id) VALUES (100, 1)")

	res := mustExec(t, s, "SELECT orders.id, users.name FROM orders JOIN users ON orders.user_id = users.id")
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "alice", res.Rows[0][1].String())
}

func TestLeftJoinKeepsUnmatchedRow(t *testing.T) {
	s := newTestSession(t)
	mustExec(t, s, "CREATE TABLE orders (id INTEGER PRIMARY KEY, user_id INTEGER)")
	mustExec(t, s, "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)")
	mustExec(t, s, "INSERT INTO orders (id, user_id) VALUES (100, 99)")

	res := mustExec(t, s, "SELECT orders.id, users.name FROM orders LEFT JOIN users ON orders.user_id = users.id")
	require.Len(t, res.Rows, 1)
	assert.True(t, res.Rows[0][1].IsNull())
}

func TestLeftJoinWithAliasesNullPadsAndLimits(t *testing.T) {
	s := newTestSession(t)
	mustExec(t, s, "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)")
	mustExec(t, s, "CREATE TABLE orders (id INTEGER PRIMARY KEY, user_id INTEGER)")
	mustExec(t, s, "INSERT INTO users (id, name) VALUES (1, 'alice')")
	mustExec(t, s, "INSERT INTO users (id, name) VALUES (2, 'bob')")
	mustExec(t, s, "INSERT INTO users (id, name) VALUES (3, 'carol')")
	mustExec(t, s, "INSERT INTO orders (id, user_id) VALUES (100, 1)")

	res := mustExec(t, s, "SELECT u.name, o.id FROM users u LEFT JOIN orders o ON u.id = o.user_id ORDER BY u.name ASC LIMIT 2")
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "alice", res.Rows[0][0].String())
	assert.Equal(t, int64(100), res.Rows[0][1].I64)
	assert.Equal(t, "bob", res.Rows[1][0].String())
	assert.True(t, res.Rows[1][1].IsNull(), "bob has no orders, so o.id must be NULL")
}

func TestAggregateCountAndGroupBy(t *testing.T) {
	s := newTestSession(t)
	mustExec(t, s, "CREATE TABLE orders (id INTEGER PRIMARY KEY, user_id INTEGER, amount INTEGER)")
	mustExec(t, s, "INSERT INTO orders (id, user_id, amount) VALUES (1, 1, 10)")
	mustExec(t, s, "INSERT INTO orders (id, user_id, amount) VALUES (2, 1, 20)")
	mustExec(t, s, "INSERT INTO orders (id, user_id, amount) VALUES (3, 2, 5)")

	res := mustExec(t, s, "SELECT user_id, COUNT(*) FROM orders GROUP BY user_id ORDER BY user_id")
	require.Len(t, res.Rows, 2)
	assert.Equal(t, int64(2), res.Rows[0][1].I64)
	assert.Equal(t, int64(1), res.Rows[1][1].I64)
}

func TestAggregatesOverEmptyTable(t *testing.T) {
	s := newTestSession(t)
	mustExec(t, s, "CREATE TABLE orders (id INTEGER PRIMARY KEY, amount INTEGER)")

	res := mustExec(t, s, "SELECT COUNT(*), SUM(amount), AVG(amount), MIN(amount), MAX(amount) FROM orders")
	require.Len(t, res.Rows, 1)
	assert.Equal(t, int64(0), res.Rows[0][0].I64)
	for i := 1; i < 5; i++ {
		assert.True(t, res.Rows[0][i].IsNull(), "aggregate %d should be NULL over an empty table", i)
	}
}

func TestGroupByRejectsNonGroupedColumn(t *testing.T) {
	s := newTestSession(t)
	mustExec(t, s, "CREATE TABLE orders (id INTEGER PRIMARY KEY, user_id INTEGER, amount INTEGER)")
	mustExec(t, s, "INSERT INTO orders (id, user_id, amount) VALUES (1, 1, 10)")
	mustExec(t, s, "INSERT INTO orders (id, user_id, amount) VALUES (2, 1, 20)")

	stmt, err := sqlparse.Parse("SELECT id, COUNT(*) FROM orders GROUP BY user_id")
	require.NoError(t, err)
	res := s.Execute(stmt)
	assert.True(t, res.IsError(), "id is neither grouped nor aggregated, so the statement must fail")
}

func TestTransactionRollbackUndoesInsert(t *testing.T) {
	s := newTestSession(t)
	mustExec(t, s, "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)")
	mustExec(t, s, "BEGIN")
	mustExec(t, s, "INSERT INTO users (id, name) VALUES (1, 'alice')")
	mustExec(t, s, "ROLLBACK")

	res := mustExec(t, s, "SELECT id FROM users")
	assert.Empty(t, res.Rows)
}

func TestUpdateThenSelectInSameTransactionSeesOnlyNewRow(t *testing.T) {
	s := newTestSession(t)
	mustExec(t, s, "CREATE TABLE accounts (name TEXT PRIMARY KEY, balance INTEGER)")
	mustExec(t, s, "INSERT INTO accounts (name, balance) VALUES ('Alice', 1000)")

	mustExec(t, s, "BEGIN")
	mustExec(t, s, "UPDATE accounts SET balance = 1500 WHERE name = 'Alice'")

	res := mustExec(t, s, "SELECT balance FROM accounts WHERE name = 'Alice'")
	require.Len(t, res.Rows, 1, "the row this transaction just updated must not also show its own stale pre-update version")
	assert.Equal(t, int64(1500), res.Rows[0][0].I64)

	mustExec(t, s, "COMMIT")
}

func TestConcurrentSessionSeesPreUpdateValueUntilCommit(t *testing.T) {
	writer := newTestSession(t)
	mustExec(t, writer, "CREATE TABLE accounts (name TEXT PRIMARY KEY, balance INTEGER)")
	mustExec(t, writer, "INSERT INTO accounts (name, balance) VALUES ('Alice', 1000)")

	reader := NewSession(writer.Engine, "testdb", writer.User)

	mustExec(t, writer, "BEGIN")
	mustExec(t, writer, "UPDATE accounts SET balance = 1500 WHERE name = 'Alice'")

	res := mustExec(t, writer, "SELECT balance FROM accounts WHERE name = 'Alice'")
	require.Len(t, res.Rows, 1)
	assert.Equal(t, int64(1500), res.Rows[0][0].I64, "the writer sees its own uncommitted update")

	res = mustExec(t, reader, "SELECT balance FROM accounts WHERE name = 'Alice'")
	require.Len(t, res.Rows, 1)
	assert.Equal(t, int64(1000), res.Rows[0][0].I64, "another session still sees the committed value")

	mustExec(t, writer, "COMMIT")

	res = mustExec(t, reader, "SELECT balance FROM accounts WHERE name = 'Alice'")
	require.Len(t, res.Rows, 1)
	assert.Equal(t, int64(1500), res.Rows[0][0].I64, "the commit is visible at the reader's next statement")
}

func TestDeleteThenSelectInSameTransactionSeesNoRow(t *testing.T) {
	s := newTestSession(t)
	mustExec(t, s, "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)")
	mustExec(t, s, "INSERT INTO users (id, name) VALUES (1, 'alice')")

	mustExec(t, s, "BEGIN")
	mustExec(t, s, "DELETE FROM users WHERE id = 1")

	res := mustExec(t, s, "SELECT id FROM users WHERE id = 1")
	assert.Empty(t, res.Rows, "a transaction must not see the row it just deleted itself")

	mustExec(t, s, "COMMIT")
}

func TestPrivilegeDeniedForNonOwner(t *testing.T) {
	s := newTestSession(t)
	s.Engine.Instance.CreateUser("guest", "guestpw", false)
	mustExec(t, s, "CREATE TABLE secrets (id INTEGER PRIMARY KEY)")

	guestSession := NewSession(s.Engine, "testdb", s.Engine.Instance.Users["guest"])
	stmt, err := sqlparse.Parse("INSERT INTO secrets (id) VALUES (1)")
	require.NoError(t, err)
	res := guestSession.Execute(stmt)
	assert.True(t, res.IsError())
}

func TestShowTables(t *testing.T) {
	s := newTestSession(t)
	mustExec(t, s, "CREATE TABLE a (id INTEGER PRIMARY KEY)")
	mustExec(t, s, "CREATE TABLE b (id INTEGER PRIMARY KEY)")

	res := mustExec(t, s, "SHOW TABLES")
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "a", res.Rows[0][0].String())
	assert.Equal(t, "b", res.Rows[1][0].String())
}
