/*
Package roster provides the scheduling coordination engine for the
emergency-department duty roster.

PURPOSE:
  This package contains the domain types and services that guard the roster's
  structural invariants while doctors request leave and trade assigned duties.
  Everything above it (calendar rendering, exports, notifications) only reads
  coordinator state or supplies plain records; everything below it is an
  injected store.

KEY CONCEPTS IN THIS FILE (types.go):
  - Date: A calendar day in the facility's reckoning (ledger and roster keys)
  - Shift: One of the three daily duty windows, each with a fixed start cutoff
  - DutyAssignment: One doctor's scheduled shift on one date
  - LeaveRequest / LeaveBalance: Leave lifecycle and per-doctor annual account
  - SwapRequest: A proposed exchange of two doctors' duties

DESIGN PRINCIPLES:
  1. Closed status sets: every lifecycle field is a typed enum with a central
     transition table, never free-form strings
  2. Precision: balances use decimal.Decimal to avoid floating-point errors
  3. Type Safety: strong typing for IDs prevents mixing doctor/duty/request IDs
  4. Server-side truth: every precondition is re-checked here, regardless of
     what the caller's UI allowed

SEE ALSO:
  - conflict.go: Shared validation (double-booking, eligibility, caps)
  - leave.go:    Leave Ledger service
  - swap.go:     Swap Coordinator service
  - store.go:    Persistence interfaces
*/
package roster

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type DoctorID string
type DutyID string
type LeaveRequestID string
type SwapRequestID string

// Doctor is the minimal entity record the coordinator needs; profile data
// lives elsewhere.
type Doctor struct {
	ID         DoctorID
	Name       string
	Department string
	CreatedAt  time.Time
}

// =============================================================================
// DATE - Calendar day, the grain at which leave and duties are keyed
// =============================================================================

// Date is a calendar day. The zero value is "no date". All comparisons are at
// day granularity; wall-clock time only matters for same-day shift cutoffs
// (see Resolver.DutyEligible).
type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses "2006-01-02".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{Time: t}, nil
}

// DateOf truncates an instant to the calendar day it falls on in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	lt := t.In(loc)
	return NewDate(lt.Year(), lt.Month(), lt.Day())
}

func (d Date) normalize() time.Time {
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, time.UTC)
}

func (d Date) Before(other Date) bool { return d.normalize().Before(other.normalize()) }
func (d Date) After(other Date) bool  { return d.normalize().After(other.normalize()) }
func (d Date) Equal(other Date) bool  { return d.normalize().Equal(other.normalize()) }
func (d Date) IsZero() bool           { return d.Time.IsZero() }

func (d Date) AddDays(n int) Date { return Date{Time: d.Time.AddDate(0, 0, n)} }

func (d Date) Year() int         { return d.Time.Year() }
func (d Date) Month() time.Month { return d.Time.Month() }
func (d Date) Day() int          { return d.Time.Day() }

func (d Date) String() string { return d.normalize().Format("2006-01-02") }

// DaysBetween returns to − from in whole days (0 when equal).
func DaysBetween(from, to Date) int {
	return int(to.normalize().Sub(from.normalize()).Hours() / 24)
}

// InclusiveDays is the day count of [from, to], both ends counted.
func InclusiveDays(from, to Date) int { return DaysBetween(from, to) + 1 }

func StartOfMonth(year int, month time.Month) Date { return NewDate(year, month, 1) }

func EndOfMonth(year int, month time.Month) Date {
	t := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	return Date{Time: t}
}

// =============================================================================
// SHIFT - The three daily duty windows
// =============================================================================

type Shift string

const (
	ShiftMorning Shift = "morning"
	ShiftEvening Shift = "evening"
	ShiftNight   Shift = "night"
)

func (s Shift) Valid() bool {
	switch s {
	case ShiftMorning, ShiftEvening, ShiftNight:
		return true
	}
	return false
}

// DefaultCutoffs are the facility-local start hours of each shift. A duty is
// no longer swappable once its shift has started.
var DefaultCutoffs = map[Shift]int{
	ShiftMorning: 7,
	ShiftEvening: 15,
	ShiftNight:   23,
}

// =============================================================================
// DUTY ASSIGNMENT - One doctor's scheduled shift on one date
// =============================================================================

type DutyAssignment struct {
	ID             DutyID
	DoctorID       DoctorID
	Date           Date
	Shift          Shift
	IsReferralDuty bool
}

// =============================================================================
// LEAVE - Requests and per-doctor annual balance
// =============================================================================

type LeaveType string

const (
	LeaveAnnual    LeaveType = "annual"
	LeaveSick      LeaveType = "sick"
	LeaveEmergency LeaveType = "emergency"
	LeavePersonal  LeaveType = "personal"
)

func (lt LeaveType) Valid() bool {
	switch lt {
	case LeaveAnnual, LeaveSick, LeaveEmergency, LeavePersonal:
		return true
	}
	return false
}

// ConsumesBalance reports whether approving this leave type decrements the
// doctor's annual allotment. Sick/emergency/personal are tracked for
// reporting only.
func (lt LeaveType) ConsumesBalance() bool { return lt == LeaveAnnual }

type LeaveStatus string

const (
	LeavePending   LeaveStatus = "pending"
	LeaveApproved  LeaveStatus = "approved"
	LeaveRejected  LeaveStatus = "rejected"
	LeaveCancelled LeaveStatus = "cancelled"
)

// leaveTransitions is the single source of truth for the leave state machine.
// Terminal states have no entry.
var leaveTransitions = map[LeaveStatus][]LeaveStatus{
	LeavePending: {LeaveApproved, LeaveRejected, LeaveCancelled},
}

func (s LeaveStatus) Terminal() bool { return len(leaveTransitions[s]) == 0 }

func (s LeaveStatus) CanTransitionTo(next LeaveStatus) bool {
	for _, allowed := range leaveTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type LeaveRequest struct {
	ID         LeaveRequestID
	DoctorID   DoctorID
	Type       LeaveType
	StartDate  Date
	EndDate    Date
	Status     LeaveStatus
	Reason     string
	AdminNotes string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Duration is the inclusive day count of the request.
func (lr *LeaveRequest) Duration() int { return InclusiveDays(lr.StartDate, lr.EndDate) }

// Covers reports whether the request's range includes the given date.
func (lr *LeaveRequest) Covers(d Date) bool {
	return !d.Before(lr.StartDate) && !d.After(lr.EndDate)
}

// Overlaps reports whether the request's range intersects [from, to].
func (lr *LeaveRequest) Overlaps(from, to Date) bool {
	return !lr.EndDate.Before(from) && !lr.StartDate.After(to)
}

// LeaveBalance is a doctor's annual leave account. Remaining must never go
// negative after a commit; the approval path re-verifies this even though
// submission already checked.
type LeaveBalance struct {
	DoctorID  DoctorID
	TotalDays decimal.Decimal
	UsedDays  decimal.Decimal
	UpdatedAt time.Time
}

func (b *LeaveBalance) Remaining() decimal.Decimal { return b.TotalDays.Sub(b.UsedDays) }

func decimalFromInt(n int) decimal.Decimal { return decimal.NewFromInt(int64(n)) }

// =============================================================================
// SWAP - A proposed exchange of two doctors' duties
// =============================================================================

type SwapStatus string

const (
	SwapPending   SwapStatus = "pending"
	SwapApproved  SwapStatus = "approved" // admin path, exchange committed
	SwapAccepted  SwapStatus = "accepted" // peer path, exchange committed
	SwapRejected  SwapStatus = "rejected" // admin path, no exchange
	SwapDeclined  SwapStatus = "declined" // peer path, no exchange
	SwapCancelled SwapStatus = "cancelled"
)

// swapTransitions encodes the two parallel resolution workflows: admin
// approve/reject and peer accept/decline, plus requestor cancellation.
var swapTransitions = map[SwapStatus][]SwapStatus{
	SwapPending: {SwapApproved, SwapAccepted, SwapRejected, SwapDeclined, SwapCancelled},
}

func (s SwapStatus) Terminal() bool { return len(swapTransitions[s]) == 0 }

func (s SwapStatus) CanTransitionTo(next SwapStatus) bool {
	for _, allowed := range swapTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type SwapRequest struct {
	ID              SwapRequestID
	RequestorID     DoctorID
	RequestorDutyID DutyID
	TargetID        DoctorID
	TargetDutyID    DutyID
	Reason          string
	Status          SwapStatus
	AdminNotes      string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Involves reports whether the doctor is a participant in this swap.
func (sr *SwapRequest) Involves(doctorID DoctorID) bool {
	return sr.RequestorID == doctorID || sr.TargetID == doctorID
}

// Touches reports whether the swap names the given duty on either side.
func (sr *SwapRequest) Touches(dutyID DutyID) bool {
	return sr.RequestorDutyID == dutyID || sr.TargetDutyID == dutyID
}
