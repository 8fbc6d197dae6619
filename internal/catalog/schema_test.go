package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postgrustql/internal/types"
)

func TestTableSerialSequenceStartsAtOne(t *testing.T) {
	tbl := NewTable("widgets", []*Column{
		{Name: "id", DataType: types.Serial(), PrimaryKey: true, Nullable: false},
		{Name: "name", DataType: types.Text()},
	})
	assert.Equal(t, int64(1), tbl.NextSerial("id"))
	assert.Equal(t, int64(2), tbl.NextSerial("id"))
	assert.Equal(t, int64(3), tbl.NextSerial("id"))
}

func TestDatabaseCreateTableAlreadyExists(t *testing.T) {
	db := NewDatabase("app")
	require.NoError(t, db.CreateTable(NewTable("users", nil)))

	err := db.CreateTable(NewTable("users", nil))
	require.Error(t, err)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindAlreadyExists, cerr.ErrorKind)
}

func TestDatabaseDropEnumInUseRejected(t *testing.T) {
	db := NewDatabase("app")
	require.NoError(t, db.CreateEnum("mood", []string{"happy", "sad"}))
	tbl := NewTable("people", []*Column{
		{Name: "mood", DataType: types.Enum("mood", []string{"happy", "sad"})},
	})
	require.NoError(t, db.CreateTable(tbl))

	err := db.DropEnum("mood")
	require.Error(t, err)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindConstraintViolation, cerr.ErrorKind)
}

func TestDatabaseMetadataOwnerGrantedAll(t *testing.T) {
	meta := NewDatabaseMetadata("alice")
	assert.True(t, meta.HasPrivilege("alice", PrivSelect))
	assert.False(t, meta.HasPrivilege("bob", PrivSelect))

	meta.Grant("bob", PrivSelect)
	assert.True(t, meta.HasPrivilege("bob", PrivSelect))
	assert.False(t, meta.HasPrivilege("bob", PrivInsert))

	meta.Grant("bob", PrivAll)
	meta.Revoke("bob", PrivSelect) // explicit ALL dominates narrower revoke attempts downstream
	assert.True(t, meta.HasPrivilege("bob", PrivSelect))
}

func TestGrantRoleToCycleRejected(t *testing.T) {
	s := NewServerInstance()
	require.NoError(t, s.CreateRole("a"))
	require.NoError(t, s.CreateRole("b"))
	require.NoError(t, s.GrantRoleTo("a", "b")) // b is member of a

	err := s.GrantRoleTo("b", "a") // would create a cycle
	require.Error(t, err)
}

func TestUserPasswordHash(t *testing.T) {
	u := NewUser("alice", "hunter2", false)
	assert.True(t, u.VerifyPassword("hunter2"))
	assert.False(t, u.VerifyPassword("wrong"))
	u.SetPassword("newpass")
	assert.True(t, u.VerifyPassword("newpass"))
}
