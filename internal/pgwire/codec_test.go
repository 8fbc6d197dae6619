package pgwire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postgrustql/internal/catalog"
	"postgrustql/internal/types"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, TypeQuery, EncodeQuery(Query{SQL: "SELECT 1"})))

	msgType, payload, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, TypeQuery, msgType)

	q, err := DecodeQuery(payload)
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", q.SQL)
}

func TestEncodeDecodeRowRoundTrip(t *testing.T) {
	row := []types.Value{types.NewInteger(42), types.Null(), types.NewText("hi")}
	payload := EncodeRow(row)

	cols, err := DecodeRow(payload)
	require.NoError(t, err)
	require.Len(t, cols, 3)
	assert.Equal(t, "42", string(cols[0]))
	assert.Nil(t, cols[1])
	assert.Equal(t, "hi", string(cols[2]))
}

func TestStartupMessageRoundTrip(t *testing.T) {
	body := appendInt32(nil, 196608)
	body = appendCString(body, "user")
	body = appendCString(body, "alice")
	body = append(body, 0)
	full := appendInt32(nil, int32(len(body)+4))
	full = append(full, body...)

	msg, err := ReadStartupMessage(bytes.NewReader(full))
	require.NoError(t, err)
	assert.Equal(t, int32(196608), msg.ProtocolVersion)
	assert.Equal(t, "alice", msg.Parameters["user"])
}

func TestErrorFromCatalogMapsSQLState(t *testing.T) {
	err := catalog.NewNotFound("table", "users")
	resp := ErrorFromCatalog(err)
	assert.Equal(t, SeverityError, resp.Severity)
	assert.Equal(t, UndefinedTable, resp.Code)
	assert.Contains(t, resp.Message, "users")
}
