/*
store.go - Persistence interfaces for the coordination engine

PURPOSE:
  Defines the interface between the coordinator and the database. The engine
  is written against these interfaces only, so it can run on SQLite in
  production and an in-memory store in tests without changing a line of
  domain logic.

KEY INTERFACES:
  DutyStore:   Roster records (the Roster Store of the system overview)
  LeaveStore:  Leave requests and balances
  SwapStore:   Swap requests
  DoctorStore: Doctor entity records
  AuditLog:    Append-only record of committed transitions
  TxStore:     Store plus WithTx for single-transaction mutations

TRANSACTION CONTRACT:
  Every mutating service operation runs inside WithTx. The implementation
  must serialize conflicting transactions: reads inside fn observe a
  consistent snapshot, and writes become visible atomically on commit. If fn
  returns an error nothing is persisted. This is what makes the two-sided
  duty exchange indivisible - no reader ever observes a half-exchanged pair.

ATOMIC EXCHANGE:
  ExchangeDuties swaps the DoctorID fields of two duty records as one write.
  Callers are expected to have re-validated eligibility inside the same
  transaction first; the store only guarantees indivisibility, not policy.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - roster/store/memory.go: In-memory for testing

SEE ALSO:
  - leave.go, swap.go: The services that consume these interfaces
*/
package roster

import (
	"context"
	"time"
)

// =============================================================================
// DUTY STORE - Roster records
// =============================================================================

type DutyStore interface {
	// GetDuty returns the duty or ErrNotFound.
	GetDuty(ctx context.Context, id DutyID) (*DutyAssignment, error)

	// PutDuty inserts or replaces a duty record. Used by seeding and
	// administrative roster edits; swap commits go through ExchangeDuties.
	PutDuty(ctx context.Context, duty *DutyAssignment) error

	// ListDutiesForDoctor returns the doctor's duties with dates in
	// [from, to], ordered by date then shift.
	ListDutiesForDoctor(ctx context.Context, doctorID DoctorID, from, to Date) ([]*DutyAssignment, error)

	// ListDutiesOnDate returns every duty on the given date.
	ListDutiesOnDate(ctx context.Context, date Date) ([]*DutyAssignment, error)

	// ExchangeDuties swaps the DoctorID fields of the two records as a
	// single indivisible write. Returns ErrNotFound if either id is unknown.
	ExchangeDuties(ctx context.Context, a, b DutyID) error
}

// =============================================================================
// LEAVE STORE - Requests and balances
// =============================================================================

type LeaveStore interface {
	GetLeave(ctx context.Context, id LeaveRequestID) (*LeaveRequest, error)
	PutLeave(ctx context.Context, req *LeaveRequest) error
	ListLeavesForDoctor(ctx context.Context, doctorID DoctorID) ([]*LeaveRequest, error)

	// ListLeavesOverlapping returns requests whose [StartDate, EndDate]
	// intersects [from, to], filtered to the given statuses (all statuses
	// when empty).
	ListLeavesOverlapping(ctx context.Context, from, to Date, statuses []LeaveStatus) ([]*LeaveRequest, error)

	// GetBalance returns the doctor's balance or ErrNotFound; lazy creation
	// is the service's job, not the store's.
	GetBalance(ctx context.Context, doctorID DoctorID) (*LeaveBalance, error)
	PutBalance(ctx context.Context, balance *LeaveBalance) error
}

// =============================================================================
// SWAP STORE - Swap requests
// =============================================================================

type SwapStore interface {
	GetSwap(ctx context.Context, id SwapRequestID) (*SwapRequest, error)
	PutSwap(ctx context.Context, req *SwapRequest) error

	// ListSwapsInvolving returns every swap where the doctor is requestor or
	// target, newest first.
	ListSwapsInvolving(ctx context.Context, doctorID DoctorID) ([]*SwapRequest, error)

	ListSwapsByStatus(ctx context.Context, status SwapStatus) ([]*SwapRequest, error)

	// ListPendingSwapsTouching returns unresolved pending swaps naming the
	// duty on either side. Used to enforce one-pending-swap-per-duty.
	ListPendingSwapsTouching(ctx context.Context, dutyID DutyID) ([]*SwapRequest, error)
}

// =============================================================================
// DOCTOR STORE
// =============================================================================

type DoctorStore interface {
	GetDoctor(ctx context.Context, id DoctorID) (*Doctor, error)
	PutDoctor(ctx context.Context, doctor *Doctor) error
	ListDoctors(ctx context.Context) ([]*Doctor, error)
}

// =============================================================================
// AUDIT LOG - Who did what when. Append-only.
// =============================================================================

type AuditAction string

const (
	AuditLeaveSubmitted  AuditAction = "leave_submitted"
	AuditLeaveApproved   AuditAction = "leave_approved"
	AuditLeaveRejected   AuditAction = "leave_rejected"
	AuditLeaveCancelled  AuditAction = "leave_cancelled"
	AuditSwapProposed    AuditAction = "swap_proposed"
	AuditSwapApproved    AuditAction = "swap_approved"
	AuditSwapRejected    AuditAction = "swap_rejected"
	AuditSwapAccepted    AuditAction = "swap_accepted"
	AuditSwapDeclined    AuditAction = "swap_declined"
	AuditSwapCancelled   AuditAction = "swap_cancelled"
	AuditDutiesExchanged AuditAction = "duties_exchanged"
)

type AuditEntry struct {
	ID        string
	At        time.Time
	ActorID   string // doctor or admin who triggered the transition
	Action    AuditAction
	SubjectID string // the request or duty acted on
	Detail    string
}

type AuditFilter struct {
	ActorID   string
	SubjectID string
	Actions   []AuditAction
	From      time.Time
	To        time.Time
}

type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

// =============================================================================
// AGGREGATE STORE
// =============================================================================

// Store aggregates all record sets the coordinator touches.
type Store interface {
	DutyStore
	LeaveStore
	SwapStore
	DoctorStore
	AuditLog
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
