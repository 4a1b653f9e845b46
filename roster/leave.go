/*
leave.go - The Leave Ledger

PURPOSE:
  Runs the leave request state machine and guards the two leave invariants:
  a doctor's remaining annual balance never goes negative, and no calendar
  date ever carries more approved leaves than the concurrency cap.

STATE MACHINE:
  pending --(admin approve)--> approved   (annual: balance debited atomically)
  pending --(admin reject)---> rejected
  pending --(owner cancel)---> cancelled
  Terminal states admit no further transition.

CAP POLICY (submission-soft / approval-hard):
  Submit runs the cap census over the whole range as a WARNING - the request
  is still created pending and the conflict message is returned to the
  caller. Approve re-runs the census as a hard gate counting approved leaves
  only, and fails with ErrConcurrencyCapExceeded, leaving the request
  pending. Pending requests therefore never reserve capacity; approval order
  decides admission.

BALANCE:
  Only annual leave consumes the allotment. Balances are created lazily with
  the configured default the first time a doctor touches leave. The approval
  path re-verifies remaining >= 0 even though submission already checked -
  concurrent approvals can change the balance between the two.

SEE ALSO:
  - conflict.go: The cap and balance checks
  - swap.go:     The sibling coordinator for duty swaps
*/
package roster

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultAnnualAllotment is the yearly leave grant for a doctor whose
// balance has not been provisioned explicitly.
var DefaultAnnualAllotment = decimal.NewFromInt(45)

// DefaultConcurrencyCap is the maximum number of doctors permitted on
// approved leave on the same calendar date.
const DefaultConcurrencyCap = 2

// LeaveService is the Leave Ledger. Safe for concurrent use; every mutation
// runs as a single store transaction.
type LeaveService struct {
	store    TxStore
	resolver *Resolver
	log      *zap.Logger

	// Cap is the per-day concurrent-leave limit.
	Cap int

	// Allotment is the lazily-granted annual balance.
	Allotment decimal.Decimal
}

func NewLeaveService(store TxStore, resolver *Resolver, log *zap.Logger) *LeaveService {
	if log == nil {
		log = zap.NewNop()
	}
	return &LeaveService{
		store:     store,
		resolver:  resolver,
		log:       log,
		Cap:       DefaultConcurrencyCap,
		Allotment: DefaultAnnualAllotment,
	}
}

// =============================================================================
// SUBMIT
// =============================================================================

// Submit creates a pending leave request. Validates date order, forbids
// retroactive starts, and requires sufficient balance for annual leave. The
// returned warning is non-empty when the range would breach the cap counting
// approved and pending leaves; the request is still created (final admission
// control belongs to Approve).
func (ls *LeaveService) Submit(ctx context.Context, doctorID DoctorID, leaveType LeaveType, start, end Date, reason string) (*LeaveRequest, string, error) {
	if !leaveType.Valid() {
		return nil, "", fmt.Errorf("unknown leave type %q: %w", leaveType, ErrInvalidRequest)
	}
	if end.Before(start) {
		return nil, "", fmt.Errorf("end date %s before start date %s: %w", end, start, ErrInvalidRequest)
	}
	if start.Before(ls.resolver.Today()) {
		return nil, "", fmt.Errorf("retroactive leave starting %s: %w", start, ErrInvalidRequest)
	}

	var req *LeaveRequest
	var warning string

	err := ls.store.WithTx(ctx, func(s Store) error {
		if _, err := s.GetDoctor(ctx, doctorID); err != nil {
			return err
		}

		balance, err := ls.balance(ctx, s, doctorID)
		if err != nil {
			return err
		}
		duration := InclusiveDays(start, end)
		if !ls.resolver.HasSufficientBalance(balance, leaveType, duration) {
			return &InsufficientBalanceError{
				DoctorID:  doctorID,
				Remaining: balance.Remaining().String(),
				Requested: duration,
			}
		}

		warning, err = ls.capWarning(ctx, s, doctorID, start, end)
		if err != nil {
			return err
		}

		now := time.Now()
		req = &LeaveRequest{
			ID:        LeaveRequestID(uuid.NewString()),
			DoctorID:  doctorID,
			Type:      leaveType,
			StartDate: start,
			EndDate:   end,
			Status:    LeavePending,
			Reason:    reason,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.PutLeave(ctx, req); err != nil {
			return err
		}
		return ls.audit(ctx, s, string(doctorID), AuditLeaveSubmitted, string(req.ID),
			fmt.Sprintf("%s %s..%s", leaveType, start, end))
	})
	if err != nil {
		return nil, "", err
	}

	ls.log.Info("leave submitted",
		zap.String("request", string(req.ID)),
		zap.String("doctor", string(doctorID)),
		zap.String("type", string(leaveType)),
		zap.Int("days", req.Duration()),
		zap.Bool("cap_warning", warning != ""))
	return req, warning, nil
}

// capWarning runs the soft census: approved plus pending leaves, every date
// in range. Returns a human-readable message for the first breached date.
func (ls *LeaveService) capWarning(ctx context.Context, s Store, doctorID DoctorID, start, end Date) (string, error) {
	for d := start; !d.After(end); d = d.AddDays(1) {
		exceeds, err := ls.resolver.WouldExceedCap(ctx, s, d, doctorID, ls.Cap, true)
		if err != nil {
			return "", err
		}
		if exceeds {
			return fmt.Sprintf("%s already has %d or more doctors requesting or on leave; approval may be refused", d, ls.Cap), nil
		}
	}
	return "", nil
}

// =============================================================================
// APPROVE / REJECT / CANCEL
// =============================================================================

// Approve moves a pending request to approved. The cap is re-checked as a
// hard gate over the full range, counting approved leaves only; annual leave
// debits the balance in the same transaction as the status write.
func (ls *LeaveService) Approve(ctx context.Context, id LeaveRequestID, actorID, adminNotes string) (*LeaveRequest, error) {
	var req *LeaveRequest
	err := ls.store.WithTx(ctx, func(s Store) error {
		var err error
		req, err = s.GetLeave(ctx, id)
		if err != nil {
			return err
		}
		if !req.Status.CanTransitionTo(LeaveApproved) {
			return &InvalidTransitionError{Kind: "leave", From: string(req.Status), To: string(LeaveApproved)}
		}

		for d := req.StartDate; !d.After(req.EndDate); d = d.AddDays(1) {
			exceeds, err := ls.resolver.WouldExceedCap(ctx, s, d, req.DoctorID, ls.Cap, false)
			if err != nil {
				return err
			}
			if exceeds {
				return &CapExceededError{Date: d, Cap: ls.Cap}
			}
		}

		if req.Type.ConsumesBalance() {
			balance, err := ls.balance(ctx, s, req.DoctorID)
			if err != nil {
				return err
			}
			debited := balance.UsedDays.Add(decimalFromInt(req.Duration()))
			if balance.TotalDays.Sub(debited).IsNegative() {
				return &InsufficientBalanceError{
					DoctorID:  req.DoctorID,
					Remaining: balance.Remaining().String(),
					Requested: req.Duration(),
				}
			}
			balance.UsedDays = debited
			balance.UpdatedAt = time.Now()
			if err := s.PutBalance(ctx, balance); err != nil {
				return err
			}
		}

		req.Status = LeaveApproved
		req.AdminNotes = adminNotes
		req.UpdatedAt = time.Now()
		if err := s.PutLeave(ctx, req); err != nil {
			return err
		}
		return ls.audit(ctx, s, actorID, AuditLeaveApproved, string(req.ID), adminNotes)
	})
	if err != nil {
		return nil, err
	}

	ls.log.Info("leave approved",
		zap.String("request", string(req.ID)),
		zap.String("doctor", string(req.DoctorID)),
		zap.String("actor", actorID))
	return req, nil
}

// Reject moves a pending request to rejected. No balance effect.
func (ls *LeaveService) Reject(ctx context.Context, id LeaveRequestID, actorID, reason string) (*LeaveRequest, error) {
	var req *LeaveRequest
	err := ls.store.WithTx(ctx, func(s Store) error {
		var err error
		req, err = s.GetLeave(ctx, id)
		if err != nil {
			return err
		}
		if !req.Status.CanTransitionTo(LeaveRejected) {
			return &InvalidTransitionError{Kind: "leave", From: string(req.Status), To: string(LeaveRejected)}
		}
		req.Status = LeaveRejected
		req.AdminNotes = reason
		req.UpdatedAt = time.Now()
		if err := s.PutLeave(ctx, req); err != nil {
			return err
		}
		return ls.audit(ctx, s, actorID, AuditLeaveRejected, string(req.ID), reason)
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// Cancel lets the owning doctor withdraw a still-pending request. No balance
// effect: the balance was never debited pre-approval.
func (ls *LeaveService) Cancel(ctx context.Context, id LeaveRequestID, byDoctorID DoctorID) (*LeaveRequest, error) {
	var req *LeaveRequest
	err := ls.store.WithTx(ctx, func(s Store) error {
		var err error
		req, err = s.GetLeave(ctx, id)
		if err != nil {
			return err
		}
		if req.DoctorID != byDoctorID {
			return fmt.Errorf("leave %s belongs to %s: %w", id, req.DoctorID, ErrNotRequestOwner)
		}
		if !req.Status.CanTransitionTo(LeaveCancelled) {
			return &InvalidTransitionError{Kind: "leave", From: string(req.Status), To: string(LeaveCancelled)}
		}
		req.Status = LeaveCancelled
		req.UpdatedAt = time.Now()
		if err := s.PutLeave(ctx, req); err != nil {
			return err
		}
		return ls.audit(ctx, s, string(byDoctorID), AuditLeaveCancelled, string(req.ID), "")
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// =============================================================================
// READS
// =============================================================================

// Balance returns the doctor's balance, creating it with the default
// allotment on first touch.
func (ls *LeaveService) Balance(ctx context.Context, doctorID DoctorID) (*LeaveBalance, error) {
	var balance *LeaveBalance
	err := ls.store.WithTx(ctx, func(s Store) error {
		if _, err := s.GetDoctor(ctx, doctorID); err != nil {
			return err
		}
		var err error
		balance, err = ls.balance(ctx, s, doctorID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

// ListForDoctor returns every leave request of the doctor.
func (ls *LeaveService) ListForDoctor(ctx context.Context, doctorID DoctorID) ([]*LeaveRequest, error) {
	return ls.store.ListLeavesForDoctor(ctx, doctorID)
}

// CalendarForMonth projects approved leaves onto the month's dates:
// date -> doctors away. Read-only; consumed by calendar rendering.
func (ls *LeaveService) CalendarForMonth(ctx context.Context, year int, month time.Month) (map[Date][]DoctorID, error) {
	from := StartOfMonth(year, month)
	to := EndOfMonth(year, month)
	leaves, err := ls.store.ListLeavesOverlapping(ctx, from, to, []LeaveStatus{LeaveApproved})
	if err != nil {
		return nil, err
	}

	cal := make(map[Date][]DoctorID)
	for _, l := range leaves {
		for d := l.StartDate; !d.After(l.EndDate); d = d.AddDays(1) {
			if d.Before(from) || d.After(to) {
				continue
			}
			key := NewDate(d.Year(), d.Month(), d.Day())
			cal[key] = append(cal[key], l.DoctorID)
		}
	}
	return cal, nil
}

// CheckConflicts runs the soft census over [start, end] without creating
// anything. Collaborators call this to show warnings before submission.
func (ls *LeaveService) CheckConflicts(ctx context.Context, doctorID DoctorID, start, end Date) (bool, string, error) {
	if end.Before(start) {
		return false, "", fmt.Errorf("end date %s before start date %s: %w", end, start, ErrInvalidRequest)
	}
	var warning string
	err := ls.store.WithTx(ctx, func(s Store) error {
		var err error
		warning, err = ls.capWarning(ctx, s, doctorID, start, end)
		return err
	})
	if err != nil {
		return false, "", err
	}
	return warning != "", warning, nil
}

// =============================================================================
// INTERNAL
// =============================================================================

func (ls *LeaveService) balance(ctx context.Context, s Store, doctorID DoctorID) (*LeaveBalance, error) {
	balance, err := s.GetBalance(ctx, doctorID)
	if err == nil {
		return balance, nil
	}
	if !IsNotFound(err) {
		return nil, err
	}
	balance = &LeaveBalance{
		DoctorID:  doctorID,
		TotalDays: ls.Allotment,
		UsedDays:  decimal.Zero,
		UpdatedAt: time.Now(),
	}
	if err := s.PutBalance(ctx, balance); err != nil {
		return nil, err
	}
	return balance, nil
}

func (ls *LeaveService) audit(ctx context.Context, s Store, actorID string, action AuditAction, subjectID, detail string) error {
	return s.AppendAudit(ctx, AuditEntry{
		ID:        uuid.NewString(),
		At:        time.Now(),
		ActorID:   actorID,
		Action:    action,
		SubjectID: subjectID,
		Detail:    detail,
	})
}
