package sqlparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postgrustql/internal/catalog"
	"postgrustql/internal/types"
)

func TestParseCreateTable(t *testing.T) {
	stmt, err := Parse(`CREATE TABLE users (id SERIAL, name TEXT NOT NULL, age SMALLINT)`)
	require.NoError(t, err)
	ct, ok := stmt.(CreateTable)
	require.True(t, ok)
	assert.Equal(t, "users", ct.Name)
	require.Len(t, ct.Columns, 3)
	assert.Equal(t, "id", ct.Columns[0].Name)
	assert.Equal(t, types.KindSerial, ct.Columns[0].DataType.Kind)
	assert.True(t, ct.Columns[0].PrimaryKey)
	assert.False(t, ct.Columns[1].Nullable)
}

func TestParseCreateTableWithForeignKey(t *testing.T) {
	stmt, err := Parse(`CREATE TABLE orders (id SERIAL, user_id INTEGER REFERENCES users(id))`)
	require.NoError(t, err)
	ct := stmt.(CreateTable)
	require.NotNil(t, ct.Columns[1].ForeignKey)
	assert.Equal(t, "users", ct.Columns[1].ForeignKey.ReferencedTable)
	assert.Equal(t, "id", ct.Columns[1].ForeignKey.ReferencedColumn)
}

func TestParseAlterTableOperations(t *testing.T) {
	cases := map[string]AlterTableOp{
		"ALTER TABLE t ADD COLUMN x TEXT":        AddColumn{Column: ColumnDef{Name: "x", DataType: types.Text(), Nullable: true}},
		"ALTER TABLE t DROP COLUMN x":             DropColumnOp{Name: "x"},
		"ALTER TABLE t RENAME COLUMN x TO y":      RenameColumn{OldName: "x", NewName: "y"},
		"ALTER TABLE t RENAME TO t2":              RenameTable{NewName: "t2"},
		"ALTER TABLE t OWNER TO alice":            OwnerTo{NewOwner: "alice"},
	}
	for sql, want := range cases {
		stmt, err := Parse(sql)
		require.NoError(t, err, sql)
		at := stmt.(AlterTable)
		assert.Equal(t, "t", at.Name)
		assert.Equal(t, want, at.Operation)
	}
}

func TestParseCreateIndexUnique(t *testing.T) {
	stmt, err := Parse(`CREATE UNIQUE INDEX idx_email ON users (email) USING HASH`)
	require.NoError(t, err)
	ci := stmt.(CreateIndex)
	assert.True(t, ci.Unique)
	assert.Equal(t, catalog.IndexHash, ci.Kind)
	assert.Equal(t, []string{"email"}, ci.Columns)
}

func TestParseGrantDistinguishesRoleAndPrivilege(t *testing.T) {
	stmt, err := Parse(`GRANT admin TO alice`)
	require.NoError(t, err)
	gr := stmt.(GrantRole)
	assert.Equal(t, "admin", gr.RoleName)
	assert.Equal(t, "alice", gr.ToUser)

	stmt, err = Parse(`GRANT SELECT ON DATABASE maindb TO alice`)
	require.NoError(t, err)
	g := stmt.(Grant)
	assert.Equal(t, catalog.PrivSelect, g.Privilege)
	assert.Equal(t, "maindb", g.OnDatabase)
}

func TestParseCreateTypeEnum(t *testing.T) {
	stmt, err := Parse(`CREATE TYPE mood AS ENUM ('sad', 'ok', 'happy')`)
	require.NoError(t, err)
	ct := stmt.(CreateType)
	assert.Equal(t, "mood", ct.Name)
	assert.Equal(t, []string{"sad", "ok", "happy"}, ct.Values)
}

func TestParseDropType(t *testing.T) {
	stmt, err := Parse(`DROP TYPE mood`)
	require.NoError(t, err)
	assert.Equal(t, DropType{Name: "mood"}, stmt)
}

func TestParseCreateUserAndRole(t *testing.T) {
	stmt, err := Parse(`CREATE USER alice WITH PASSWORD 'secret' SUPERUSER`)
	require.NoError(t, err)
	cu := stmt.(CreateUser)
	assert.Equal(t, "alice", cu.Username)
	assert.Equal(t, "secret", cu.Password)
	assert.True(t, cu.IsSuperuser)

	stmt, err = Parse(`CREATE ROLE admin`)
	require.NoError(t, err)
	cr := stmt.(CreateRole)
	assert.Equal(t, "admin", cr.RoleName)
	assert.False(t, cr.IsSuperuser)
}

func TestParseCreateDatabaseWithOwner(t *testing.T) {
	stmt, err := Parse(`CREATE DATABASE maindb OWNER alice`)
	require.NoError(t, err)
	cd := stmt.(CreateDatabase)
	assert.Equal(t, "maindb", cd.Name)
	assert.Equal(t, "alice", cd.Owner)
}

func TestParseCreateViewKeepsQueryVerbatim(t *testing.T) {
	stmt, err := Parse(`CREATE VIEW active_users AS SELECT * FROM users WHERE active = true`)
	require.NoError(t, err)
	cv := stmt.(CreateView)
	assert.Equal(t, "active_users", cv.Name)
	assert.Contains(t, cv.Query, "SELECT")
}
