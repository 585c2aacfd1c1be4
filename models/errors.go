package models

import (
	"errors"
	"fmt"
)

var (
	ErrHistoryIncomplete  = errors.New("order history is incomplete")
	ErrUnknownMessageType = errors.New("unknown message type")
)

type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindExchange   ErrorKind = "exchange"
	KindStore      ErrorKind = "store"
	KindInternal   ErrorKind = "internal"
)

// ValidationError reports bad caller input. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

// ExchangeError wraps a remote API failure with the operation that caused it.
type ExchangeError struct {
	Exchange string
	Op       string
	Err      error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Exchange, e.Op, e.Err)
}

func (e *ExchangeError) Unwrap() error { return e.Err }

type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func KindOf(err error) ErrorKind {
	var validationErr *ValidationError
	var notFoundErr *NotFoundError
	var exchangeErr *ExchangeError
	var storeErr *StoreError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validationErr), errors.Is(err, ErrUnknownMessageType):
		return KindValidation
	case errors.As(err, &notFoundErr):
		return KindNotFound
	case errors.As(err, &exchangeErr):
		return KindExchange
	case errors.As(err, &storeErr):
		return KindStore
	default:
		return KindInternal
	}
}
