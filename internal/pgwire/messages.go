package pgwire

// Frontend message type bytes (client -> server), per the PostgreSQL
// wire protocol's simple query subset this server speaks.
const (
	TypeQuery       byte = 'Q'
	TypeTerminate   byte = 'X'
	TypePassword    byte = 'p'
)

// Backend message type bytes (server -> client).
const (
	TypeAuthentication  byte = 'R'
	TypeParameterStatus byte = 'S'
	TypeBackendKeyData  byte = 'K'
	TypeReadyForQuery   byte = 'Z'
	TypeRowDescription  byte = 'T'
	TypeDataRow         byte = 'D'
	TypeCommandComplete byte = 'C'
	TypeEmptyQueryResp  byte = 'I'
	TypeErrorResponse   byte = 'E'
	TypeNoticeResponse  byte = 'N'
)

// StartupMessage is the untyped first message on a connection: a
// protocol version followed by key/value parameters ("user", "database",
// ...). It has no leading type byte, unlike every later message.
type StartupMessage struct {
	ProtocolVersion int32
	Parameters      map[string]string
}

// AuthenticationOk is the Authentication message with the OK (0) variant,
// sent once the password the client returned for an
// AuthenticationCleartextPassword challenge has been checked.
type AuthenticationOk struct{}

// AuthenticationCleartextPassword asks the client to send its password
// unencrypted in a PasswordMessage.
type AuthenticationCleartextPassword struct{}

type ParameterStatus struct {
	Name  string
	Value string
}

type BackendKeyData struct {
	ProcessID int32
	SecretKey int32
}

// TransactionStatus is ReadyForQuery's single status byte.
type TransactionStatus byte

const (
	TxIdle       TransactionStatus = 'I'
	TxInBlock    TransactionStatus = 'T'
	TxInFailed   TransactionStatus = 'E'
)

type ReadyForQuery struct {
	Status TransactionStatus
}

// Query is a frontend simple-query message carrying raw SQL text. The
// server parses it as a single statement (one trailing semicolon is
// allowed); text holding more than one statement is a parse error.
type Query struct {
	SQL string
}

// PasswordMessage carries a cleartext password in response to an
// AuthenticationCleartextPassword challenge.
type PasswordMessage struct {
	Password string
}

// FieldDescription is one column of a RowDescription.
type FieldDescription struct {
	Name         string
	TableOID     int32
	ColumnAttNum int16
	TypeOID      int32
	TypeSize     int16
	TypeModifier int32
	FormatCode   int16
}

type RowDescription struct {
	Fields []FieldDescription
}

// DataRow carries one result row as a sequence of column values, each
// either text-encoded bytes or NULL (nil).
type DataRow struct {
	Values [][]byte
}

// CommandComplete reports a statement's completion tag, e.g.
// "INSERT 0 1", "SELECT 3", "CREATE TABLE".
type CommandComplete struct {
	Tag string
}

// ErrorResponse mirrors the subset of fields lib-pq's Error struct
// exposes that this server can actually populate.
type ErrorResponse struct {
	Severity Severity
	Code     Code
	Message  string
	Detail   string
}

type Terminate struct{}
