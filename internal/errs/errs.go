package errs

import (
	"errors"
	"strings"
)

var (
	ErrNotImplemented   = errors.New("E0000: not implemented")
	ErrValidation       = errors.New("E0001: validation failed")
	ErrNotFound         = errors.New("E0002: not found")
	ErrAlreadyExists    = errors.New("E0003: already exists")
	ErrStore            = errors.New("E0004: database error")
	ErrGateway          = errors.New("E0005: payment gateway error")
	ErrUnauthorized     = errors.New("E0006: unauthorized")
	ErrForbidden        = errors.New("E0007: forbidden")
	ErrDeadlinePassed   = errors.New("E0008: registration deadline has passed")
	ErrPaymentRequired  = errors.New("E0009: payment not confirmed")
	ErrTeamLocked       = errors.New("E0010: team registration is locked")
	ErrInvalidStatus    = errors.New("E0011: invalid payment status")
	ErrInProgress       = errors.New("E0012: reconciliation already in progress")
	ErrInvalidSignature = errors.New("E0013: invalid webhook signature")
	ErrStorage          = errors.New("E0014: file storage error")
	ErrJWT              = errors.New("E0015: JWT failure")
	ErrQueue            = errors.New("E0016: queue error")
)

// Retryable reports whether the caller may simply try the same action again.
func Retryable(err error) bool {
	return errors.Is(err, ErrStore) ||
		errors.Is(err, ErrGateway) ||
		errors.Is(err, ErrInProgress) ||
		errors.Is(err, ErrStorage) ||
		errors.Is(err, ErrQueue)
}

type FieldError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param,omitempty"`
}

// ValidationError carries the offending fields and matches ErrValidation.
type ValidationError struct {
	Fields []FieldError
}

func Invalid(field, tag string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Tag: tag}}}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ":" + f.Tag
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, ", ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
