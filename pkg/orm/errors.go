package orm

import (
	"github.com/apexorm/apexorm/internal/orm/crud"
)

// Errors returned by query sets, managers and instances. Match them with
// errors.Is.
var (
	ErrNotFound            = crud.ErrNotFound
	ErrMultipleObjects     = crud.ErrMultipleObjects
	ErrValidationFailed    = crud.ErrValidationFailed
	ErrRequiredRelation    = crud.ErrRequiredRelation
	ErrNotBound            = crud.ErrNotBound
	ErrUsage               = crud.ErrUsage
	ErrIndexOutOfRange     = crud.ErrIndexOutOfRange
	ErrUniqueViolation     = crud.ErrUniqueViolation
	ErrForeignKeyViolation = crud.ErrForeignKeyViolation
	ErrNotNullViolation    = crud.ErrNotNullViolation
	ErrCheckViolation      = crud.ErrCheckViolation
	ErrUnresolvedRelation  = crud.ErrUnresolvedRelation
)
