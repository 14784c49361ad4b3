package database

import (
	"errors"
	"fmt"
)

// Common database errors that can be checked using errors.Is()
var (
	// ErrNotFound is returned when a record is not found in the database.
	ErrNotFound = errors.New("record not found")

	// ErrNotConnected is returned when no healthy connection is available.
	ErrNotConnected = errors.New("database not connected")

	// ErrInvalidInput is returned when invalid input is provided to a method.
	ErrInvalidInput = errors.New("invalid input data")

	// ErrQueryFailed is returned when a query execution fails.
	ErrQueryFailed = errors.New("query execution failed")

	// ErrRejected is returned when the store refuses a mutation, e.g. a
	// permission failure. Callers surface these to the user; transient
	// connectivity errors are retried instead.
	ErrRejected = errors.New("operation rejected by store")
)

// DBError represents a database error with additional context.
type DBError struct {
	err     error
	context string
	query   string
	params  map[string]any
}

// NewDBError creates a new DBError with the given error and context.
// The context should describe what operation was being performed.
func NewDBError(err error, context string) *DBError {
	return &DBError{
		err:     err,
		context: context,
	}
}

// WithQuery adds query information to the error.
func (e *DBError) WithQuery(query string) *DBError {
	e.query = query
	return e
}

// WithParams adds query parameters to the error.
func (e *DBError) WithParams(params map[string]any) *DBError {
	e.params = params
	return e
}

// Error returns the error message.
func (e *DBError) Error() string {
	msg := e.context
	if e.query != "" {
		msg = fmt.Sprintf("%s\nQuery: %s", msg, e.query)
	}
	if len(e.params) > 0 {
		msg = fmt.Sprintf("%s\nParams: %+v", msg, e.params)
	}
	if e.err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *DBError) Unwrap() error {
	return e.err
}

// Is checks whether the target matches one of the common database errors.
func (e *DBError) Is(target error) bool {
	if target == nil {
		return e == nil
	}

	switch target {
	case ErrNotFound, ErrNotConnected, ErrInvalidInput, ErrQueryFailed, ErrRejected:
		return errors.Is(e.err, target)
	}

	return false
}

// WrapError wraps an error with additional context.
// If the error is already a DBError, it prepends the context instead.
func WrapError(err error, context string) *DBError {
	if err == nil {
		return nil
	}

	if dbErr, ok := err.(*DBError); ok {
		if dbErr.context != "" {
			context = fmt.Sprintf("%s: %s", context, dbErr.context)
		}
		dbErr.context = context
		return dbErr
	}

	return NewDBError(err, context)
}
