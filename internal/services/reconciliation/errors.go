package reconciliation

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrApplyWithoutPreview guards against blind applies: Apply is only callable
// on a Run whose change-set was computed in this process.
var ErrApplyWithoutPreview = errors.New("reconciliation: apply requires a preview change-set from this process")

// ErrAlreadyApplied means the one-way preview->applied transition already
// happened for this run. Undoing a committed run takes a fresh reversing
// operation, not a second apply.
var ErrAlreadyApplied = errors.New("reconciliation: run already applied")

// ApplyAbortError wraps any mutation failure during commit. The whole batch
// transaction was rolled back; storage is exactly as it was before apply.
type ApplyAbortError struct {
	RunID uuid.UUID
	Err   error
}

func (e *ApplyAbortError) Error() string {
	return fmt.Sprintf("reconciliation: apply of run %s aborted, all changes rolled back: %v", e.RunID, e.Err)
}

func (e *ApplyAbortError) Unwrap() error { return e.Err }
