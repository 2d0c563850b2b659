package appointments

import "errors"

var (
	ErrNotFound          = errors.New("appointment not found")
	ErrForbidden         = errors.New("appointment belongs to another user")
	ErrInvalidTimeRange  = errors.New("start time must be before end time")
	ErrStartInPast       = errors.New("start time must not be in the past")
	ErrMissingName       = errors.New("customer name is required")
	ErrMissingPhone      = errors.New("customer phone is required")
	ErrCancelled         = errors.New("appointment is cancelled")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidStatus     = errors.New("invalid appointment status")
	// ErrDuplicateReference is returned by repositories when the unique
	// booking reference constraint rejects an insert.
	ErrDuplicateReference = errors.New("booking reference already exists")
	// ErrReferenceExhausted means no unused suffix was found for a reference.
	ErrReferenceExhausted = errors.New("could not allocate a unique booking reference")
)

// IsValidation reports whether err is a client input error.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrInvalidTimeRange, ErrStartInPast, ErrMissingName, ErrMissingPhone,
		ErrInvalidTransition, ErrInvalidStatus, ErrCancelled,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
