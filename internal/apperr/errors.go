// Package apperr defines the error classes shared by the engine and its adapters.
//
// Every error returned across a package boundary belongs to exactly one Kind.
// Callers classify with errors.Is against the Kind sentinels:
//
//	if errors.Is(err, apperr.ErrNotFound) { ... }
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for reporting and exit status.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindAlreadyExists
	KindPersistence
	KindNotification
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not found"
	case KindAlreadyExists:
		return "already exists"
	case KindPersistence:
		return "persistence"
	case KindNotification:
		return "notification"
	default:
		return "unknown"
	}
}

// Kind sentinels. Match with errors.Is.
var (
	ErrValidation    = &kindError{KindValidation}
	ErrNotFound      = &kindError{KindNotFound}
	ErrAlreadyExists = &kindError{KindAlreadyExists}
	ErrPersistence   = &kindError{KindPersistence}
	ErrNotification  = &kindError{KindNotification}
)

type kindError struct{ kind Kind }

func (e *kindError) Error() string { return e.kind.String() }

func sentinel(k Kind) error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindNotFound:
		return ErrNotFound
	case KindAlreadyExists:
		return ErrAlreadyExists
	case KindPersistence:
		return ErrPersistence
	case KindNotification:
		return ErrNotification
	default:
		return nil
	}
}

// Error is a classified error. Op names the failing operation ("add", "take"),
// Name the medication it concerned, if any.
type Error struct {
	Kind Kind
	Op   string
	Name string
	Msg  string
	Err  error

	// Archived is set on NotFound errors when the name exists in the archive.
	Archived bool
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel of e's kind.
func (e *Error) Is(target error) bool {
	s := sentinel(e.Kind)
	return s != nil && target == s
}

// Validation returns a validation error for op.
func Validation(op, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// NotFound returns a not-found error for the named medication.
func NotFound(op, name string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Name: name, Msg: fmt.Sprintf("medication %q not found", name)}
}

// AlreadyExists returns a conflict error for the named medication.
func AlreadyExists(op, name string) *Error {
	return &Error{Kind: KindAlreadyExists, Op: op, Name: name, Msg: fmt.Sprintf("medication %q already exists", name)}
}

// Persistence wraps an I/O or codec failure.
func Persistence(op string, err error) *Error {
	return &Error{Kind: KindPersistence, Op: op, Err: err}
}

// Notification wraps a delivery failure.
func Notification(op string, err error) *Error {
	return &Error{Kind: KindNotification, Op: op, Err: err}
}

// KindOf returns the kind of err, or KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k *kindError
	if errors.As(err, &k) {
		return k.kind
	}
	return KindUnknown
}

// IsArchived reports whether err is a NotFound error for an archived name.
func IsArchived(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindNotFound && e.Archived
}
