package apperrors

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrFeatureDisabled = errors.New("reconciliation is not enabled for this organization")
	ErrInvalidInput    = errors.New("invalid input")
	ErrAlreadyResolved = errors.New("conflict is not pending or escalated")
	ErrVersionConflict = errors.New("record version conflict")
)
