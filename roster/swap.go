/*
swap.go - The Swap Coordinator

PURPOSE:
  Runs the duty-swap request state machine and performs the atomic two-sided
  duty exchange. This is the concurrency-sensitive heart of the engine: a
  half-completed swap silently corrupts the roster, so the exchange must
  never be observable in a partial state.

STATE MACHINE (two parallel resolution workflows, guarded identically):
  pending --(admin approve)--> approved --[atomic exchange]--> terminal
  pending --(admin reject)---> rejected
  pending --(target accept)--> accepted --[atomic exchange]--> terminal
  pending --(target decline)-> declined
  pending --(requestor cancel)-> cancelled

COMMIT-TIME RE-VALIDATION:
  Duties can change between proposal and commit (concurrent swaps, roster
  edits). Inside the commit transaction both duties are re-checked for
  existence, unchanged ownership, eligibility, and absence of double-booking
  against every OTHER assignment of both doctors. Any failure aborts with
  ErrStaleSwapState and the request stays pending - never silently
  terminalized - so the caller can retry or cancel explicitly.

SEE ALSO:
  - conflict.go: Freedom and eligibility checks
  - store.go:    ExchangeDuties and the WithTx contract
*/
package roster

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// targetSearchHorizonDays bounds how far ahead AvailableTargets scans for
// candidate duties.
const targetSearchHorizonDays = 365

// SwapService is the Swap Coordinator. Safe for concurrent use; every
// mutation runs as a single store transaction.
type SwapService struct {
	store    TxStore
	resolver *Resolver
	log      *zap.Logger
}

func NewSwapService(store TxStore, resolver *Resolver, log *zap.Logger) *SwapService {
	if log == nil {
		log = zap.NewNop()
	}
	return &SwapService{store: store, resolver: resolver, log: log}
}

// =============================================================================
// PROPOSE
// =============================================================================

// Propose creates a pending swap request after proving the exchange WOULD
// currently be valid: the requestor owns the offered duty, the target owns
// the desired duty, both shifts are still ahead of their cutoffs, neither
// duty is already claimed by another pending swap, and the exchange would
// not double-book either doctor.
func (ss *SwapService) Propose(ctx context.Context, requestorID DoctorID, requestorDutyID DutyID, targetID DoctorID, targetDutyID DutyID, reason string) (*SwapRequest, error) {
	if requestorDutyID == targetDutyID {
		return nil, fmt.Errorf("cannot swap a duty with itself: %w", ErrInvalidRequest)
	}
	if requestorID == targetID {
		return nil, fmt.Errorf("cannot swap with yourself: %w", ErrInvalidRequest)
	}

	var req *SwapRequest
	err := ss.store.WithTx(ctx, func(s Store) error {
		offered, err := s.GetDuty(ctx, requestorDutyID)
		if err != nil {
			return err
		}
		if offered.DoctorID != requestorID {
			return fmt.Errorf("duty %s belongs to %s: %w", requestorDutyID, offered.DoctorID, ErrDutyNotOwned)
		}
		desired, err := s.GetDuty(ctx, targetDutyID)
		if err != nil {
			return err
		}
		if desired.DoctorID != targetID {
			return fmt.Errorf("duty %s belongs to %s: %w", targetDutyID, desired.DoctorID, ErrDutyNotOwned)
		}

		if !ss.resolver.DutyEligible(offered) {
			return fmt.Errorf("offered duty %s on %s %s: %w", offered.ID, offered.Date, offered.Shift, ErrDutyNotEligible)
		}
		if !ss.resolver.DutyEligible(desired) {
			return fmt.Errorf("desired duty %s on %s %s: %w", desired.ID, desired.Date, desired.Shift, ErrDutyNotEligible)
		}

		for _, dutyID := range []DutyID{requestorDutyID, targetDutyID} {
			open, err := s.ListPendingSwapsTouching(ctx, dutyID)
			if err != nil {
				return err
			}
			if len(open) > 0 {
				return fmt.Errorf("duty %s is named by swap %s: %w", dutyID, open[0].ID, ErrSwapAlreadyPending)
			}
		}

		if err := ss.checkExchangeFree(ctx, s, offered, desired); err != nil {
			return err
		}

		now := time.Now()
		req = &SwapRequest{
			ID:              SwapRequestID(uuid.NewString()),
			RequestorID:     requestorID,
			RequestorDutyID: requestorDutyID,
			TargetID:        targetID,
			TargetDutyID:    targetDutyID,
			Reason:          reason,
			Status:          SwapPending,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.PutSwap(ctx, req); err != nil {
			return err
		}
		return ss.audit(ctx, s, string(requestorID), AuditSwapProposed, string(req.ID),
			fmt.Sprintf("%s <-> %s", requestorDutyID, targetDutyID))
	})
	if err != nil {
		return nil, err
	}

	ss.log.Info("swap proposed",
		zap.String("request", string(req.ID)),
		zap.String("requestor", string(requestorID)),
		zap.String("target", string(targetID)))
	return req, nil
}

// checkExchangeFree verifies that giving each doctor the other's slot would
// not double-book anyone. The two swapped duties themselves are excluded
// from the check since the exchange vacates them.
func (ss *SwapService) checkExchangeFree(ctx context.Context, s Store, offered, desired *DutyAssignment) error {
	ignore := []DutyID{offered.ID, desired.ID}

	free, err := ss.resolver.IsDoctorFree(ctx, s, desired.DoctorID, offered.Date, offered.Shift, ignore...)
	if err != nil {
		return err
	}
	if !free {
		return &DoubleBookingError{DoctorID: desired.DoctorID, Date: offered.Date, Shift: offered.Shift}
	}

	free, err = ss.resolver.IsDoctorFree(ctx, s, offered.DoctorID, desired.Date, desired.Shift, ignore...)
	if err != nil {
		return err
	}
	if !free {
		return &DoubleBookingError{DoctorID: offered.DoctorID, Date: desired.Date, Shift: desired.Shift}
	}
	return nil
}

// =============================================================================
// AVAILABLE TARGETS - Two-sided compatibility search
// =============================================================================

// SwapCandidate is a doctor the offered duty could be traded with, and the
// duties of theirs the trade could take.
type SwapCandidate struct {
	Doctor *Doctor
	Duties []*DutyAssignment
}

// AvailableTargets computes, for an offered duty, every other doctor with at
// least one swap-eligible duty whose exchange would double-book neither
// side. O(doctors x duties) over the search horizon.
func (ss *SwapService) AvailableTargets(ctx context.Context, dutyID DutyID) ([]SwapCandidate, error) {
	var candidates []SwapCandidate
	err := ss.store.WithTx(ctx, func(s Store) error {
		offered, err := s.GetDuty(ctx, dutyID)
		if err != nil {
			return err
		}
		if !ss.resolver.DutyEligible(offered) {
			return fmt.Errorf("offered duty %s on %s %s: %w", offered.ID, offered.Date, offered.Shift, ErrDutyNotEligible)
		}

		doctors, err := s.ListDoctors(ctx)
		if err != nil {
			return err
		}
		today := ss.resolver.Today()
		horizon := today.AddDays(targetSearchHorizonDays)

		for _, doc := range doctors {
			if doc.ID == offered.DoctorID {
				continue
			}
			duties, err := s.ListDutiesForDoctor(ctx, doc.ID, today, horizon)
			if err != nil {
				return err
			}
			var compatible []*DutyAssignment
			for _, duty := range duties {
				if !ss.resolver.DutyEligible(duty) {
					continue
				}
				if err := ss.checkExchangeFree(ctx, s, offered, duty); err != nil {
					if IsConflict(err) {
						continue
					}
					return err
				}
				compatible = append(compatible, duty)
			}
			if len(compatible) > 0 {
				candidates = append(candidates, SwapCandidate{Doctor: doc, Duties: compatible})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return candidates, nil
}

// =============================================================================
// RESOLUTION - Admin path and peer path
// =============================================================================

// Approve resolves a pending swap through the admin workflow and commits the
// exchange. On a lost race the request stays pending and ErrStaleSwapState
// is returned.
func (ss *SwapService) Approve(ctx context.Context, id SwapRequestID, actorID, adminNotes string) (*SwapRequest, error) {
	return ss.commit(ctx, id, SwapApproved, AuditSwapApproved, actorID, adminNotes, nil)
}

// Accept resolves a pending swap through the peer workflow: only the target
// doctor may accept, and the same exchange guard applies.
func (ss *SwapService) Accept(ctx context.Context, id SwapRequestID, byDoctorID DoctorID) (*SwapRequest, error) {
	return ss.commit(ctx, id, SwapAccepted, AuditSwapAccepted, string(byDoctorID), "", func(req *SwapRequest) error {
		if req.TargetID != byDoctorID {
			return fmt.Errorf("swap %s targets %s: %w", id, req.TargetID, ErrNotRequestOwner)
		}
		return nil
	})
}

// commit drives both terminal exchange paths. precondition, when non-nil,
// runs after the pending check and before the exchange.
func (ss *SwapService) commit(ctx context.Context, id SwapRequestID, terminal SwapStatus, action AuditAction, actorID, adminNotes string, precondition func(*SwapRequest) error) (*SwapRequest, error) {
	var req *SwapRequest
	err := ss.store.WithTx(ctx, func(s Store) error {
		var err error
		req, err = s.GetSwap(ctx, id)
		if err != nil {
			return err
		}
		if !req.Status.CanTransitionTo(terminal) {
			return &InvalidTransitionError{Kind: "swap", From: string(req.Status), To: string(terminal)}
		}
		if precondition != nil {
			if err := precondition(req); err != nil {
				return err
			}
		}

		if err := ss.revalidate(ctx, s, req); err != nil {
			return err
		}
		if err := s.ExchangeDuties(ctx, req.RequestorDutyID, req.TargetDutyID); err != nil {
			return err
		}

		req.Status = terminal
		req.AdminNotes = adminNotes
		req.UpdatedAt = time.Now()
		if err := s.PutSwap(ctx, req); err != nil {
			return err
		}
		if err := ss.audit(ctx, s, actorID, action, string(req.ID), adminNotes); err != nil {
			return err
		}
		return ss.audit(ctx, s, actorID, AuditDutiesExchanged, string(req.RequestorDutyID),
			fmt.Sprintf("with %s via swap %s", req.TargetDutyID, req.ID))
	})
	if err != nil {
		if req != nil {
			ss.log.Warn("swap commit aborted",
				zap.String("request", string(id)),
				zap.Error(err))
		}
		return nil, err
	}

	ss.log.Info("swap committed",
		zap.String("request", string(req.ID)),
		zap.String("status", string(req.Status)),
		zap.String("actor", actorID))
	return req, nil
}

// revalidate re-runs every proposal-time check inside the commit
// transaction, mapping failures to ErrStaleSwapState: the proposal was valid
// once, the world moved.
func (ss *SwapService) revalidate(ctx context.Context, s Store, req *SwapRequest) error {
	offered, err := s.GetDuty(ctx, req.RequestorDutyID)
	if err != nil {
		if IsNotFound(err) {
			return &StaleSwapError{SwapID: req.ID, Reason: "requestor duty no longer exists"}
		}
		return err
	}
	desired, err := s.GetDuty(ctx, req.TargetDutyID)
	if err != nil {
		if IsNotFound(err) {
			return &StaleSwapError{SwapID: req.ID, Reason: "target duty no longer exists"}
		}
		return err
	}
	if offered.DoctorID != req.RequestorID {
		return &StaleSwapError{SwapID: req.ID, Reason: fmt.Sprintf("requestor duty reassigned to %s", offered.DoctorID)}
	}
	if desired.DoctorID != req.TargetID {
		return &StaleSwapError{SwapID: req.ID, Reason: fmt.Sprintf("target duty reassigned to %s", desired.DoctorID)}
	}
	if !ss.resolver.DutyEligible(offered) {
		return &StaleSwapError{SwapID: req.ID, Reason: "requestor duty's shift has started"}
	}
	if !ss.resolver.DutyEligible(desired) {
		return &StaleSwapError{SwapID: req.ID, Reason: "target duty's shift has started"}
	}
	if err := ss.checkExchangeFree(ctx, s, offered, desired); err != nil {
		if IsConflict(err) {
			return &StaleSwapError{SwapID: req.ID, Reason: err.Error()}
		}
		return err
	}
	return nil
}

// Reject resolves a pending swap through the admin workflow without
// exchanging anything.
func (ss *SwapService) Reject(ctx context.Context, id SwapRequestID, actorID, reason string) (*SwapRequest, error) {
	return ss.terminate(ctx, id, SwapRejected, AuditSwapRejected, actorID, reason, nil)
}

// Decline lets the target doctor turn the swap down.
func (ss *SwapService) Decline(ctx context.Context, id SwapRequestID, byDoctorID DoctorID, reason string) (*SwapRequest, error) {
	return ss.terminate(ctx, id, SwapDeclined, AuditSwapDeclined, string(byDoctorID), reason, func(req *SwapRequest) error {
		if req.TargetID != byDoctorID {
			return fmt.Errorf("swap %s targets %s: %w", id, req.TargetID, ErrNotRequestOwner)
		}
		return nil
	})
}

// Cancel lets the requestor withdraw a still-pending swap.
func (ss *SwapService) Cancel(ctx context.Context, id SwapRequestID, byDoctorID DoctorID) (*SwapRequest, error) {
	return ss.terminate(ctx, id, SwapCancelled, AuditSwapCancelled, string(byDoctorID), "", func(req *SwapRequest) error {
		if req.RequestorID != byDoctorID {
			return fmt.Errorf("swap %s was proposed by %s: %w", id, req.RequestorID, ErrNotRequestOwner)
		}
		return nil
	})
}

// terminate is the shared no-exchange terminal write: status precondition,
// optional actor guard, then a single status update.
func (ss *SwapService) terminate(ctx context.Context, id SwapRequestID, terminal SwapStatus, action AuditAction, actorID, notes string, precondition func(*SwapRequest) error) (*SwapRequest, error) {
	var req *SwapRequest
	err := ss.store.WithTx(ctx, func(s Store) error {
		var err error
		req, err = s.GetSwap(ctx, id)
		if err != nil {
			return err
		}
		if !req.Status.CanTransitionTo(terminal) {
			return &InvalidTransitionError{Kind: "swap", From: string(req.Status), To: string(terminal)}
		}
		if precondition != nil {
			if err := precondition(req); err != nil {
				return err
			}
		}
		req.Status = terminal
		req.AdminNotes = notes
		req.UpdatedAt = time.Now()
		if err := s.PutSwap(ctx, req); err != nil {
			return err
		}
		return ss.audit(ctx, s, actorID, action, string(req.ID), notes)
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// =============================================================================
// READS
// =============================================================================

// MyRequests partitions a doctor's swaps into those they proposed and those
// proposed to them.
func (ss *SwapService) MyRequests(ctx context.Context, doctorID DoctorID) (sent, received []*SwapRequest, err error) {
	all, err := ss.store.ListSwapsInvolving(ctx, doctorID)
	if err != nil {
		return nil, nil, err
	}
	for _, req := range all {
		if req.RequestorID == doctorID {
			sent = append(sent, req)
		} else {
			received = append(received, req)
		}
	}
	return sent, received, nil
}

// AllPending returns every unresolved swap, for the admin queue.
func (ss *SwapService) AllPending(ctx context.Context) ([]*SwapRequest, error) {
	return ss.store.ListSwapsByStatus(ctx, SwapPending)
}

func (ss *SwapService) audit(ctx context.Context, s Store, actorID string, action AuditAction, subjectID, detail string) error {
	return s.AppendAudit(ctx, AuditEntry{
		ID:        uuid.NewString(),
		At:        time.Now(),
		ActorID:   actorID,
		Action:    action,
		SubjectID: subjectID,
		Detail:    detail,
	})
}
