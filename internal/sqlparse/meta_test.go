package sqlparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseShowVariants(t *testing.T) {
	stmt, err := Parse(`SHOW TABLES`)
	require.NoError(t, err)
	assert.IsType(t, ShowTables{}, stmt)

	stmt, err = Parse(`\dt`)
	require.NoError(t, err)
	assert.IsType(t, ShowTables{}, stmt)

	stmt, err = Parse(`\du`)
	require.NoError(t, err)
	assert.IsType(t, ShowUsers{}, stmt)

	stmt, err = Parse(`\l`)
	require.NoError(t, err)
	assert.IsType(t, ShowDatabases{}, stmt)
}

func TestParseVacuumWithAndWithoutTable(t *testing.T) {
	stmt, err := Parse(`VACUUM`)
	require.NoError(t, err)
	assert.Equal(t, Vacuum{}, stmt)

	stmt, err = Parse(`VACUUM users`)
	require.NoError(t, err)
	assert.Equal(t, Vacuum{Table: "users"}, stmt)
}

func TestParseExplainWrapsSelect(t *testing.T) {
	stmt, err := Parse(`EXPLAIN SELECT * FROM users`)
	require.NoError(t, err)
	ex := stmt.(Explain)
	sel, ok := ex.Statement.(Select)
	require.True(t, ok)
	assert.Equal(t, "users", sel.From)
}

func TestParseExplainRejectsNonSelect(t *testing.T) {
	_, err := Parse(`EXPLAIN DELETE FROM users`)
	require.Error(t, err)
}

func TestParseTransactionStatements(t *testing.T) {
	stmt, err := Parse(`BEGIN`)
	require.NoError(t, err)
	assert.Equal(t, Begin{}, stmt)

	stmt, err = Parse(`START TRANSACTION`)
	require.NoError(t, err)
	assert.Equal(t, Begin{}, stmt)

	stmt, err = Parse(`COMMIT`)
	require.NoError(t, err)
	assert.Equal(t, Commit{}, stmt)

	stmt, err = Parse(`ROLLBACK TRANSACTION`)
	require.NoError(t, err)
	assert.Equal(t, Rollback{}, stmt)
}
