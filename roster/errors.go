/*
errors.go - Centralized error taxonomy for the coordination engine

PURPOSE:
  All error types in one place for consistency and discoverability. The API
  layer maps these to HTTP statuses; services never swallow or auto-retry
  them (retry-on-stale is a caller decision).

ERROR CATEGORIES:
  1. Lookup errors      - Unknown ids
  2. Transition errors  - State-machine violations
  3. Validation errors  - Ownership, eligibility, double-booking, balance, cap
  4. Commit errors      - Lost races detected inside the commit transaction

USAGE:
  Callers test with errors.Is():

    if errors.Is(err, roster.ErrStaleSwapState) {
        // duty set changed between proposal and commit; retry or cancel
    }

SEE ALSO:
  - leave.go, swap.go: Produce these errors
  - api/handlers.go:   Maps them to HTTP statuses
*/
package roster

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced doctor, duty, or request
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned on any attempt to move a request out
	// of a terminal state, or along an edge the state machine does not have.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrDutyNotOwned is returned when an actor names a duty that is not
	// theirs (proposing with someone else's duty, cancelling someone else's
	// request).
	ErrDutyNotOwned = errors.New("duty not owned by doctor")

	// ErrDutyNotEligible is returned when a duty's shift has already started
	// (or the date has passed), making it unavailable for swapping.
	ErrDutyNotEligible = errors.New("duty not eligible for swap")

	// ErrWouldCreateDoubleBooking is returned when a swap or assignment would
	// leave a doctor with two overlapping shifts on the same date.
	ErrWouldCreateDoubleBooking = errors.New("would create double booking")

	// ErrConcurrencyCapExceeded is returned by the approval-time hard gate
	// when admitting a leave would push a date over the per-day cap.
	ErrConcurrencyCapExceeded = errors.New("leave concurrency cap exceeded")

	// ErrInsufficientBalance is returned when an annual leave's duration
	// exceeds the doctor's remaining allotment.
	ErrInsufficientBalance = errors.New("insufficient leave balance")

	// ErrStaleSwapState is returned when commit-time re-validation fails
	// because the duty set changed after the swap was proposed. The request
	// is left pending so the caller can retry or cancel explicitly.
	ErrStaleSwapState = errors.New("stale swap state at commit")

	// ErrSwapAlreadyPending is returned when a duty already has an
	// unresolved pending swap touching it.
	ErrSwapAlreadyPending = errors.New("duty already has a pending swap")

	// ErrNotRequestOwner is returned when a doctor tries to cancel a request
	// they did not create, or respond to a swap they are not the target of.
	ErrNotRequestOwner = errors.New("not the owner of this request")

	// ErrInvalidRequest is returned for malformed input: reversed date
	// ranges, retroactive starts, unknown enum values.
	ErrInvalidRequest = errors.New("invalid request")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidTransitionError reports a rejected state-machine edge.
type InvalidTransitionError struct {
	Kind string // "leave" or "swap"
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s request: cannot transition from %s to %s", e.Kind, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// DoubleBookingError identifies the doctor and slot that would collide.
type DoubleBookingError struct {
	DoctorID DoctorID
	Date     Date
	Shift    Shift
}

func (e *DoubleBookingError) Error() string {
	return fmt.Sprintf("doctor %s already booked on %s %s", e.DoctorID, e.Date, e.Shift)
}

func (e *DoubleBookingError) Unwrap() error { return ErrWouldCreateDoubleBooking }

// CapExceededError identifies the first date in a range that would overflow
// the concurrent-leave cap.
type CapExceededError struct {
	Date Date
	Cap  int
}

func (e *CapExceededError) Error() string {
	return fmt.Sprintf("approving would exceed leave cap of %d on %s", e.Cap, e.Date)
}

func (e *CapExceededError) Unwrap() error { return ErrConcurrencyCapExceeded }

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	DoctorID  DoctorID
	Remaining string
	Requested int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("doctor %s has %s days remaining, requested %d", e.DoctorID, e.Remaining, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// StaleSwapError explains which commit-time re-check failed.
type StaleSwapError struct {
	SwapID SwapRequestID
	Reason string
}

func (e *StaleSwapError) Error() string {
	return fmt.Sprintf("swap %s: %s", e.SwapID, e.Reason)
}

func (e *StaleSwapError) Unwrap() error { return ErrStaleSwapState }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict returns true for errors where the request was well-formed but
// lost to current roster state (HTTP 409 territory).
func IsConflict(err error) bool {
	return errors.Is(err, ErrWouldCreateDoubleBooking) ||
		errors.Is(err, ErrConcurrencyCapExceeded) ||
		errors.Is(err, ErrStaleSwapState) ||
		errors.Is(err, ErrSwapAlreadyPending) ||
		errors.Is(err, ErrInvalidTransition)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrDutyNotOwned) ||
		errors.Is(err, ErrDutyNotEligible) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrNotRequestOwner) ||
		errors.Is(err, ErrInvalidRequest)
}
