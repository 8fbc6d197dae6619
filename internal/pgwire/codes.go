// Package pgwire defines the wire-level message shapes and SQLSTATE
// error vocabulary for a PostgreSQL-compatible front end: message
// struct types, (type byte, int32 length, payload) framing helpers, and
// row/query codecs. It does not run a TCP accept loop or negotiate a
// connection; that socket-handling layer lives in cmd/postgrustql.
package pgwire

import "postgrustql/internal/catalog"

// Code is a five-character PostgreSQL SQLSTATE error code, trimmed to
// the classes this server's error taxonomy (catalog.ErrorKind) actually
// raises.
type Code string

const (
	SuccessfulCompletion Code = "00000"

	ConnectionException                     Code = "08000"
	SQLclientUnableToEstablishSQLconnection Code = "08001"
	InvalidPassword                         Code = "28P01"
	InvalidAuthorizationSpecification       Code = "28000"

	InsufficientPrivilege Code = "42501"

	SyntaxError            Code = "42601"
	UndefinedColumn        Code = "42703"
	UndefinedTable         Code = "42P01"
	DuplicateTable         Code = "42P07"
	DuplicateColumn        Code = "42701"
	DatatypeMismatch       Code = "42804"

	IntegrityConstraintViolation Code = "23000"
	NotNullViolation             Code = "23502"
	ForeignKeyViolation          Code = "23503"
	UniqueViolation              Code = "23505"
	CheckViolation               Code = "23514"

	InvalidTransactionState Code = "25000"
	NoActiveSQLTransaction  Code = "25P01"
	ActiveSQLTransaction    Code = "25001"

	IoError            Code = "58030"
	InternalError      Code = "XX000"
	DataCorrupted      Code = "XX001"
)

// codeForKind maps this server's internal error taxonomy onto the
// closest standard SQLSTATE code.
func codeForKind(k catalog.ErrorKind) Code {
	switch k {
	case catalog.KindNotFound:
		return UndefinedTable
	case catalog.KindAlreadyExists:
		return DuplicateTable
	case catalog.KindTypeMismatch:
		return DatatypeMismatch
	case catalog.KindColumnCountMismatch:
		return SyntaxError
	case catalog.KindConstraintViolation:
		return IntegrityConstraintViolation
	case catalog.KindAuthenticationFailed:
		return InvalidPassword
	case catalog.KindPermissionDenied:
		return InsufficientPrivilege
	case catalog.KindParse:
		return SyntaxError
	case catalog.KindIo:
		return IoError
	case catalog.KindSerialization:
		return InternalError
	default:
		return InternalError
	}
}

// Severity is one of the fixed strings PostgreSQL's ErrorResponse 'S'
// field carries.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityFatal   Severity = "FATAL"
	SeverityPanic   Severity = "PANIC"
	SeverityWarning Severity = "WARNING"
	SeverityNotice  Severity = "NOTICE"
)

// ErrorFromCatalog builds an ErrorResponse payload from one of this
// server's *catalog.Error values.
func ErrorFromCatalog(err *catalog.Error) ErrorResponse {
	return ErrorResponse{
		Severity: SeverityError,
		Code:     codeForKind(err.ErrorKind),
		Message:  err.Error(),
	}
}
