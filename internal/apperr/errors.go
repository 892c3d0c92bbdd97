package apperr

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrIntegrity      = errors.New("integrity check failed")
	ErrSchemaNotReady = errors.New("schema not ready")
)
