package service

import (
	"errors"
	"fmt"

	"backend/internal/worksheet"
)

// Sentinel errors the handlers map onto HTTP statuses.
var (
	ErrNotFound  = errors.New("record not found")
	ErrForbidden = errors.New("operation not allowed for this role")
	// ErrConflict means a guarded transition lost to a concurrent writer; the
	// caller should reload and retry with fresh state.
	ErrConflict          = errors.New("record changed concurrently, reload and retry")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrReasonRequired    = errors.New("rejection reason is required")
	ErrStorage           = errors.New("object storage failure")
)

// ValidationError carries the per-field and per-row messages of a failed
// worksheet validation.
type ValidationError struct {
	Result worksheet.Result
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %d field error(s), %d row error(s)",
		len(e.Result.FieldErrors), len(e.Result.RowErrors))
}

// NewValidationError wraps a failed validation result.
func NewValidationError(res worksheet.Result) error {
	return &ValidationError{Result: res}
}
