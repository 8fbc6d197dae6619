package sqlparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSelectStar(t *testing.T) {
	stmt, err := Parse(`SELECT * FROM users`)
	require.NoError(t, err)
	sel := stmt.(Select)
	require.Len(t, sel.Columns, 1)
	assert.Equal(t, "*", sel.Columns[0].Column)
	assert.Equal(t, "users", sel.From)
}

func TestParseSelectWithAggregateAndGroupBy(t *testing.T) {
	stmt, err := Parse(`SELECT dept, COUNT(*) FROM employees GROUP BY dept ORDER BY dept DESC LIMIT 10`)
	require.NoError(t, err)
	sel := stmt.(Select)
	require.Len(t, sel.Columns, 2)
	assert.Equal(t, ColRegular, sel.Columns[0].Kind)
	assert.Equal(t, ColAggregate, sel.Columns[1].Kind)
	assert.Equal(t, AggCount, sel.Columns[1].Aggregate.Kind)
	assert.Equal(t, []string{"dept"}, sel.GroupBy)
	require.NotNil(t, sel.OrderBy)
	assert.Equal(t, Desc, sel.OrderBy.Order)
	require.NotNil(t, sel.Limit)
	assert.Equal(t, 10, *sel.Limit)
}

func TestParseSelectWithJoinDefaultsToInner(t *testing.T) {
	stmt, err := Parse(`SELECT orders.id FROM orders JOIN users ON orders.user_id = users.id`)
	require.NoError(t, err)
	sel := stmt.(Select)
	require.Len(t, sel.Joins, 1)
	assert.Equal(t, JoinInner, sel.Joins[0].Kind)
	assert.Equal(t, "orders.user_id", sel.Joins[0].OnLeft)
	assert.Equal(t, "users.id", sel.Joins[0].OnRight)
}

func TestParseSelectWithTableAliases(t *testing.T) {
	stmt, err := Parse(`SELECT u.name, o.id FROM users u LEFT JOIN orders o ON u.id = o.user_id ORDER BY u.name ASC LIMIT 2`)
	require.NoError(t, err)
	sel := stmt.(Select)
	assert.Equal(t, "users", sel.From)
	assert.Equal(t, "u", sel.FromAlias)
	require.Len(t, sel.Joins, 1)
	assert.Equal(t, "orders", sel.Joins[0].Table)
	assert.Equal(t, "o", sel.Joins[0].Alias)
	assert.Equal(t, "u.id", sel.Joins[0].OnLeft)
	require.NotNil(t, sel.OrderBy)
	assert.Equal(t, "u.name", sel.OrderBy.Column)
	require.NotNil(t, sel.Limit)
	assert.Equal(t, 2, *sel.Limit)
}

func TestParseSelectWithLeftJoin(t *testing.T) {
	stmt, err := Parse(`SELECT * FROM orders LEFT JOIN users ON orders.user_id = users.id`)
	require.NoError(t, err)
	sel := stmt.(Select)
	require.Len(t, sel.Joins, 1)
	assert.Equal(t, JoinLeft, sel.Joins[0].Kind)
}

func TestParseConditionParenthesesOverridePrecedence(t *testing.T) {
	stmt, err := Parse(`SELECT * FROM t WHERE (a = 1 OR b = 2) AND c = 3`)
	require.NoError(t, err)
	sel := stmt.(Select)
	and, ok := sel.Filter.(And)
	require.True(t, ok)
	_, ok = and.Left.(Or)
	assert.True(t, ok)
	_, ok = and.Right.(Equals)
	assert.True(t, ok)
}
