package common

import (
	"errors"
	"fmt"
)

// StoreErrType ...
type StoreErrType uint32

const (
	// KeyNotFound is returned when nothing is stored under the key.
	KeyNotFound StoreErrType = iota
	// Corrupt is returned when the stored value cannot be decoded.
	Corrupt
)

// String ...
func (t StoreErrType) String() string {
	switch t {
	case KeyNotFound:
		return "Not Found"
	case Corrupt:
		return "Corrupt"
	default:
		return "Unknown"
	}
}

// StoreErr is returned by the state stores. It records which kind of data was
// requested, under which key, and the underlying error if any.
type StoreErr struct {
	dataType string
	errType  StoreErrType
	key      string
	cause    error
}

// NewStoreErr ...
func NewStoreErr(dataType string, errType StoreErrType, key string) StoreErr {
	return StoreErr{
		dataType: dataType,
		errType:  errType,
		key:      key,
	}
}

// WithCause returns a copy of e wrapping cause.
func (e StoreErr) WithCause(cause error) StoreErr {
	e.cause = cause
	return e
}

// Error ...
func (e StoreErr) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s, %s, %s: %v", e.dataType, e.key, e.errType, e.cause)
	}
	return fmt.Sprintf("%s, %s, %s", e.dataType, e.key, e.errType)
}

// Unwrap ...
func (e StoreErr) Unwrap() error {
	return e.cause
}

// IsStore checks that err is, or wraps, a StoreErr whose code matches t.
func IsStore(err error, t StoreErrType) bool {
	var storeErr StoreErr
	return errors.As(err, &storeErr) && storeErr.errType == t
}
