/*
conflict.go - Shared validation logic (the Conflict Resolver)

PURPOSE:
  Pure, side-effect-free checks used by both the Leave Ledger and the Swap
  Coordinator. Centralizing them keeps the two workflows from drifting out
  of sync on what "conflict" means - the classic source of silent schedule
  corruption.

CHECKS:
  IsDoctorFree:         No duty at (date, shift) and no approved leave
  DutyEligible:         Shift has not started yet (facility-local cutoffs)
  WouldExceedCap:       Per-day concurrent-leave census against the cap
  HasSufficientBalance: Annual leave duration vs remaining allotment

THREAD SAFETY:
  The Resolver never mutates state and may be called freely from multiple
  goroutines. When called inside a store transaction it sees that
  transaction's snapshot.

SEE ALSO:
  - leave.go: Uses the cap and balance checks
  - swap.go:  Uses the freedom and eligibility checks
*/
package roster

import (
	"context"
	"time"
)

// Resolver evaluates roster conflicts. Zero-value fields fall back to
// DefaultCutoffs, UTC, and the wall clock.
type Resolver struct {
	// Cutoffs maps each shift to its facility-local start hour. A duty on
	// today's date stops being swap-eligible at its cutoff.
	Cutoffs map[Shift]int

	// Loc is the facility's timezone.
	Loc *time.Location

	// Now is injectable for tests.
	Now func() time.Time
}

func NewResolver(loc *time.Location) *Resolver {
	return &Resolver{Cutoffs: DefaultCutoffs, Loc: loc}
}

func (r *Resolver) location() *time.Location {
	if r.Loc != nil {
		return r.Loc
	}
	return time.UTC
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Resolver) cutoff(s Shift) int {
	if r.Cutoffs != nil {
		if h, ok := r.Cutoffs[s]; ok {
			return h
		}
	}
	return DefaultCutoffs[s]
}

// Today returns the current calendar day in the facility's timezone.
func (r *Resolver) Today() Date {
	return DateOf(r.now(), r.location())
}

// =============================================================================
// FREEDOM - Can this doctor take this slot?
// =============================================================================

// IsDoctorFree reports whether the doctor has no duty at (date, shift) and is
// not on approved leave covering date. ignoreDuties lists duty ids excluded
// from the check; swap validation passes the two duties being exchanged,
// since those slots are vacated by the exchange itself.
func (r *Resolver) IsDoctorFree(ctx context.Context, s Store, doctorID DoctorID, date Date, shift Shift, ignoreDuties ...DutyID) (bool, error) {
	duties, err := s.ListDutiesForDoctor(ctx, doctorID, date, date)
	if err != nil {
		return false, err
	}
	for _, d := range duties {
		if d.Shift != shift {
			continue
		}
		ignored := false
		for _, id := range ignoreDuties {
			if d.ID == id {
				ignored = true
				break
			}
		}
		if !ignored {
			return false, nil
		}
	}

	leaves, err := s.ListLeavesOverlapping(ctx, date, date, []LeaveStatus{LeaveApproved})
	if err != nil {
		return false, err
	}
	for _, l := range leaves {
		if l.DoctorID == doctorID {
			return false, nil
		}
	}
	return true, nil
}

// =============================================================================
// ELIGIBILITY - Has the duty's shift started?
// =============================================================================

// DutyEligible reports whether the duty can still be swapped: strictly
// future dates always, past dates never, and today's duties only before the
// shift's start cutoff.
func (r *Resolver) DutyEligible(duty *DutyAssignment) bool {
	today := r.Today()
	if duty.Date.After(today) {
		return true
	}
	if duty.Date.Before(today) {
		return false
	}
	start := time.Date(today.Year(), today.Month(), today.Day(), r.cutoff(duty.Shift), 0, 0, 0, r.location())
	return r.now().Before(start)
}

// =============================================================================
// CONCURRENCY CAP - How many doctors may be away on one date?
// =============================================================================

// WouldExceedCap reports whether admitting doctorID's leave on date would
// push the census above cap. includePending widens the census to pending
// requests: submission uses that wider census as an early warning, while the
// approval hard gate counts approved leaves only, so pending requests never
// reserve capacity.
func (r *Resolver) WouldExceedCap(ctx context.Context, s Store, date Date, doctorID DoctorID, cap int, includePending bool) (bool, error) {
	statuses := []LeaveStatus{LeaveApproved}
	if includePending {
		statuses = append(statuses, LeavePending)
	}
	leaves, err := s.ListLeavesOverlapping(ctx, date, date, statuses)
	if err != nil {
		return false, err
	}
	away := make(map[DoctorID]bool)
	for _, l := range leaves {
		if l.DoctorID != doctorID {
			away[l.DoctorID] = true
		}
	}
	return len(away)+1 > cap, nil
}

// =============================================================================
// BALANCE
// =============================================================================

// HasSufficientBalance reports whether a leave of the given type and
// duration fits the balance. Only annual leave consumes the allotment.
func (r *Resolver) HasSufficientBalance(balance *LeaveBalance, leaveType LeaveType, durationDays int) bool {
	if !leaveType.ConsumesBalance() {
		return true
	}
	return balance.Remaining().GreaterThanOrEqual(decimalFromInt(durationDays))
}
