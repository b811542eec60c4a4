package main

import "github.com/stellarlinkco/pharm/internal/apperr"

// Exit codes. Validation, not-found and I/O failures are distinguishable so
// scripts can react to them.
const (
	exitOK            = 0
	exitUnexpected    = 1
	exitValidation    = 2
	exitNotFound      = 3
	exitAlreadyExists = 4
	exitIO            = 5
)

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return exitValidation
	case apperr.KindNotFound:
		return exitNotFound
	case apperr.KindAlreadyExists:
		return exitAlreadyExists
	case apperr.KindPersistence:
		return exitIO
	default:
		return exitUnexpected
	}
}
