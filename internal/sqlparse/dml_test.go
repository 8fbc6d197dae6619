package sqlparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postgrustql/internal/types"
)

func TestParseInsertWithColumnList(t *testing.T) {
	stmt, err := Parse(`INSERT INTO users (id, name) VALUES (1, 'alice')`)
	require.NoError(t, err)
	ins := stmt.(Insert)
	assert.Equal(t, "users", ins.Table)
	assert.Equal(t, []string{"id", "name"}, ins.Columns)
	require.Len(t, ins.Values, 2)
	assert.True(t, types.NewSmallInt(1).Equal(ins.Values[0]))
	assert.Equal(t, "alice", ins.Values[1].String())
}

func TestParseInsertWithoutColumnList(t *testing.T) {
	stmt, err := Parse(`INSERT INTO users VALUES (1, 'bob')`)
	require.NoError(t, err)
	ins := stmt.(Insert)
	assert.Nil(t, ins.Columns)
}

func TestParseUpdateWithFilter(t *testing.T) {
	stmt, err := Parse(`UPDATE users SET name = 'carol', age = 30 WHERE id = 1`)
	require.NoError(t, err)
	upd := stmt.(Update)
	assert.Equal(t, "users", upd.Table)
	require.Len(t, upd.Assignments, 2)
	assert.Equal(t, "name", upd.Assignments[0].Column)
	eq, ok := upd.Filter.(Equals)
	require.True(t, ok)
	assert.Equal(t, "id", eq.Column)
}

func TestParseDeleteWithAndOrFilter(t *testing.T) {
	stmt, err := Parse(`DELETE FROM users WHERE age > 18 AND name != 'bob' OR id = 1`)
	require.NoError(t, err)
	del := stmt.(Delete)
	assert.Equal(t, "users", del.From)
	// AND binds tighter than OR: top level must be Or{And{...}, Equals{...}}
	or, ok := del.Filter.(Or)
	require.True(t, ok)
	_, ok = or.Left.(And)
	assert.True(t, ok)
	_, ok = or.Right.(Equals)
	assert.True(t, ok)
}

func TestParseDeleteWithoutFilter(t *testing.T) {
	stmt, err := Parse(`DELETE FROM users`)
	require.NoError(t, err)
	del := stmt.(Delete)
	assert.Nil(t, del.Filter)
}
