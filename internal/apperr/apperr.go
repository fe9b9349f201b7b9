// Package apperr defines the engine's error taxonomy. Services return these;
// the transport layer maps kinds to HTTP statuses and never inspects SQL
// errors directly.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindBusinessRule
	KindAuthorization
	// KindIntegrity marks an escrow/ledger invariant breach. Fatal: must be
	// alerted on, never silently absorbed.
	KindIntegrity
)

type Error struct {
	Kind Kind
	Code string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets sentinel errors built from the same kind+code match via errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

func Validation(code, msg string) *Error {
	return &Error{Kind: KindValidation, Code: code, Msg: msg}
}

func NotFound(code, msg string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Msg: msg}
}

func BusinessRule(code, msg string) *Error {
	return &Error{Kind: KindBusinessRule, Code: code, Msg: msg}
}

func Authorization(code, msg string) *Error {
	return &Error{Kind: KindAuthorization, Code: code, Msg: msg}
}

func Integrity(code, msg string, err error) *Error {
	return &Error{Kind: KindIntegrity, Code: code, Msg: msg, Err: err}
}

// KindOf returns the kind of err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// CodeOf returns the machine-readable code of err, or "" for untyped errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Shared sentinels. Compare with errors.Is.
var (
	ErrInsufficientFunds    = BusinessRule("INSUFFICIENT_FUNDS", "balance too low")
	ErrDuplicateTransaction = BusinessRule("DUPLICATE_TRANSACTION", "idempotency key already used")
	ErrNonceReused          = BusinessRule("NONCE_REUSED", "redemption nonce already used")
	ErrWrongState           = BusinessRule("WRONG_STATE", "entity is not in a state that allows this operation")
	ErrExpired              = BusinessRule("EXPIRED", "entity is past its expiry")
	ErrFrozen               = BusinessRule("FROZEN", "cap is frozen")
	ErrNotOwner             = Authorization("NOT_OWNER", "caller does not own this entity")
	ErrEscrowNegative       = Integrity("ESCROW_NEGATIVE", "escrow release would drive balance negative", nil)
)
