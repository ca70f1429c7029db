package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientBalance indicates the exchange rejected the action due to insufficient funds.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrDuplicateOrder indicates the client order id has already been accepted before.
	ErrDuplicateOrder = errors.New("duplicate order")
	// ErrOrderNotFound indicates the order does not exist on exchange.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderRejected indicates the order was rejected by exchange.
	ErrOrderRejected = errors.New("order rejected")
	// ErrAuthFailed indicates the exchange refused the login on the private stream.
	ErrAuthFailed = errors.New("authentication failed")
	// ErrNoCredentials indicates a private operation was requested without api credentials.
	ErrNoCredentials = errors.New("api credentials not configured")
)

// DecodeError reports which instrument field could not be parsed.
type DecodeError struct {
	Field string
	Value string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("decode %s %q", e.Field, e.Value)
	}
	return fmt.Sprintf("decode %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func decodeErr(field, value string, err error) error {
	return &DecodeError{Field: field, Value: value, Err: err}
}

// DecodeField returns the failing field name when err carries a DecodeError.
func DecodeField(err error) string {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Field
	}
	return ""
}
