// Package errors classifies storage errors raised by the MySQL key-value store.
package errors

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// DatabaseErrorType represents the type of database error.
type DatabaseErrorType int

const (
	// ErrorTypeUnknown represents an unclassified database error.
	ErrorTypeUnknown DatabaseErrorType = iota
	// ErrorTypeNotFound represents a missing row.
	ErrorTypeNotFound
	// ErrorTypeDataTooLong represents a value larger than its column (MySQL 1406, 1153).
	ErrorTypeDataTooLong
	// ErrorTypeDeadlock represents a deadlock or lock wait timeout (MySQL 1213, 1205).
	ErrorTypeDeadlock
	// ErrorTypeConnectionError represents a lost or refused connection.
	ErrorTypeConnectionError
	// ErrorTypeReadOnly represents a write against a read-only server (MySQL 1290, 1792).
	ErrorTypeReadOnly
	// ErrorTypeInvalidValue represents a rejected column value (MySQL 1048, 1366).
	ErrorTypeInvalidValue
)

var typeNames = map[DatabaseErrorType]string{
	ErrorTypeUnknown:         "unknown",
	ErrorTypeNotFound:        "not_found",
	ErrorTypeDataTooLong:     "data_too_long",
	ErrorTypeDeadlock:        "deadlock",
	ErrorTypeConnectionError: "connection",
	ErrorTypeReadOnly:        "read_only",
	ErrorTypeInvalidValue:    "invalid_value",
}

// String returns the snake_case name used in log fields.
func (t DatabaseErrorType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("DatabaseErrorType(%d)", int(t))
}

// DatabaseError wraps a database error with classification information.
type DatabaseError struct {
	Type         DatabaseErrorType
	OriginalErr  error
	MySQLErrCode uint16
	Message      string
}

// Error implements the error interface.
func (e *DatabaseError) Error() string {
	if e.MySQLErrCode > 0 {
		return fmt.Sprintf("%s (MySQL error %d): %v", e.Message, e.MySQLErrCode, e.OriginalErr)
	}
	return fmt.Sprintf("%s: %v", e.Message, e.OriginalErr)
}

// Unwrap returns the underlying error for errors.Is and errors.As compatibility.
func (e *DatabaseError) Unwrap() error {
	return e.OriginalErr
}

// Retryable reports whether repeating the same statement later may succeed.
func (e *DatabaseError) Retryable() bool {
	return e.Type == ErrorTypeDeadlock || e.Type == ErrorTypeConnectionError
}

// ClassifyDBError classifies a GORM or MySQL driver error. It returns nil for a nil error
// and returns an already classified error unchanged.
func ClassifyDBError(err error) *DatabaseError {
	if err == nil {
		return nil
	}

	var classified *DatabaseError
	if errors.As(err, &classified) {
		return classified
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &DatabaseError{
			Type:        ErrorTypeNotFound,
			OriginalErr: err,
			Message:     "record not found",
		}
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return classifyMySQLError(err, mysqlErr.Number)
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) || isConnectionError(err.Error()) {
		return &DatabaseError{
			Type:        ErrorTypeConnectionError,
			OriginalErr: err,
			Message:     "database connection error",
		}
	}

	return &DatabaseError{
		Type:        ErrorTypeUnknown,
		OriginalErr: err,
		Message:     "unknown database error",
	}
}

func classifyMySQLError(err error, code uint16) *DatabaseError {
	dbErr := &DatabaseError{
		OriginalErr:  err,
		MySQLErrCode: code,
	}

	switch code {
	case 1406, 1153: // ER_DATA_TOO_LONG, ER_NET_PACKET_TOO_LARGE
		dbErr.Type = ErrorTypeDataTooLong
		dbErr.Message = "value too large"
	case 1213, 1205: // ER_LOCK_DEADLOCK, ER_LOCK_WAIT_TIMEOUT
		dbErr.Type = ErrorTypeDeadlock
		dbErr.Message = "lock conflict"
	case 1290, 1792: // ER_OPTION_PREVENTS_STATEMENT, ER_CANT_EXECUTE_IN_READ_ONLY_TRANSACTION
		dbErr.Type = ErrorTypeReadOnly
		dbErr.Message = "database is read-only"
	case 1048, 1366: // ER_BAD_NULL_ERROR, ER_TRUNCATED_WRONG_VALUE_FOR_FIELD
		dbErr.Type = ErrorTypeInvalidValue
		dbErr.Message = "invalid column value"
	case 1040, 1053, 2002, 2003, 2006, 2013: // too many connections, shutdown, gone away, lost
		dbErr.Type = ErrorTypeConnectionError
		dbErr.Message = "database connection error"
	default:
		dbErr.Type = ErrorTypeUnknown
		dbErr.Message = "MySQL error"
	}

	return dbErr
}

var connectionKeywords = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"i/o timeout",
	"connection lost",
	"can't connect",
	"dial tcp",
}

func isConnectionError(errMsg string) bool {
	errMsg = strings.ToLower(errMsg)
	for _, keyword := range connectionKeywords {
		if strings.Contains(errMsg, keyword) {
			return true
		}
	}
	return false
}

// IsNotFoundError checks if the error is a record not found error.
func IsNotFoundError(err error) bool {
	dbErr := ClassifyDBError(err)
	return dbErr != nil && dbErr.Type == ErrorTypeNotFound
}

// IsRetryable checks if the error is transient.
func IsRetryable(err error) bool {
	dbErr := ClassifyDBError(err)
	return dbErr != nil && dbErr.Retryable()
}
