package roster_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/roster-engine/roster"
	"github.com/warp/roster-engine/roster/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newLeaveEngine(t *testing.T) (*roster.LeaveService, *store.Memory) {
	t.Helper()
	m := store.NewMemory()
	ls := roster.NewLeaveService(m, newResolver(), nil)
	for _, id := range []string{"dr-a", "dr-b", "dr-c", "dr-d"} {
		seedDoctor(t, m, id)
	}
	return ls, m
}

// =============================================================================
// SUBMISSION
// =============================================================================

func TestLeave_Submit_CreatesPending(t *testing.T) {
	ls, _ := newLeaveEngine(t)
	ctx := context.Background()

	req, warning, err := ls.Submit(ctx, "dr-a", roster.LeaveAnnual, tomorrow(), tomorrow().AddDays(2), "family visit")
	require.NoError(t, err)

	assert.Equal(t, roster.LeavePending, req.Status)
	assert.Equal(t, 3, req.Duration())
	assert.Empty(t, warning, "empty roster has no cap conflict")
	assert.NotEmpty(t, req.ID)
}

func TestLeave_Submit_RejectsReversedRange(t *testing.T) {
	ls, _ := newLeaveEngine(t)

	_, _, err := ls.Submit(context.Background(), "dr-a", roster.LeaveAnnual, tomorrow().AddDays(2), tomorrow(), "")
	assert.ErrorIs(t, err, roster.ErrInvalidRequest)
}

func TestLeave_Submit_RejectsRetroactiveStart(t *testing.T) {
	ls, _ := newLeaveEngine(t)

	yesterday := today().AddDays(-1)
	_, _, err := ls.Submit(context.Background(), "dr-a", roster.LeaveSick, yesterday, tomorrow(), "")
	assert.ErrorIs(t, err, roster.ErrInvalidRequest)
}

func TestLeave_Submit_UnknownDoctor(t *testing.T) {
	ls, _ := newLeaveEngine(t)

	_, _, err := ls.Submit(context.Background(), "dr-nobody", roster.LeaveAnnual, tomorrow(), tomorrow(), "")
	assert.ErrorIs(t, err, roster.ErrNotFound)
}

func TestLeave_Submit_InsufficientBalance(t *testing.T) {
	// GIVEN: dr-a has 1 day remaining
	// WHEN: Requesting 3 days of annual leave
	// THEN: Submission fails; a 3-day sick leave still passes
	ls, m := newLeaveEngine(t)
	ctx := context.Background()

	require.NoError(t, m.PutBalance(ctx, &roster.LeaveBalance{
		DoctorID:  "dr-a",
		TotalDays: decimal.NewFromInt(45),
		UsedDays:  decimal.NewFromInt(44),
	}))

	_, _, err := ls.Submit(ctx, "dr-a", roster.LeaveAnnual, tomorrow(), tomorrow().AddDays(2), "")
	assert.ErrorIs(t, err, roster.ErrInsufficientBalance)

	_, _, err = ls.Submit(ctx, "dr-a", roster.LeaveSick, tomorrow(), tomorrow().AddDays(2), "")
	assert.NoError(t, err, "sick leave does not consume balance")
}

func TestLeave_Submit_CapConflictIsSoftWarning(t *testing.T) {
	// GIVEN: cap=2 with one approved and one pending leave covering the date
	// WHEN: A third doctor submits for the same date
	// THEN: The request is still created pending, with a warning attached
	ls, m := newLeaveEngine(t)
	ctx := context.Background()
	date := tomorrow()

	require.NoError(t, m.PutLeave(ctx, leaveCovering("lr-1", "dr-b", date, roster.LeaveApproved)))
	require.NoError(t, m.PutLeave(ctx, leaveCovering("lr-2", "dr-c", date, roster.LeavePending)))

	req, warning, err := ls.Submit(ctx, "dr-a", roster.LeaveAnnual, date, date, "")
	require.NoError(t, err, "cap conflict must not block submission")
	assert.Equal(t, roster.LeavePending, req.Status)
	assert.NotEmpty(t, warning)
	assert.Contains(t, warning, date.String())
}

// =============================================================================
// APPROVAL - Hard cap gate and balance debit
// =============================================================================

func TestLeave_Approve_DebitsAnnualBalance(t *testing.T) {
	// GIVEN: dr-a with a fresh 45-day balance and one other doctor approved
	//        for the middle date (cap=2 admits both)
	// WHEN: A 3-day annual request is approved
	// THEN: Balance becomes 45 total / 3 used
	ls, m := newLeaveEngine(t)
	ctx := context.Background()
	start := tomorrow()

	require.NoError(t, m.PutLeave(ctx, leaveCovering("lr-other", "dr-b", start.AddDays(1), roster.LeaveApproved)))

	req, _, err := ls.Submit(ctx, "dr-a", roster.LeaveAnnual, start, start.AddDays(2), "")
	require.NoError(t, err)

	approved, err := ls.Approve(ctx, req.ID, "admin-1", "ok")
	require.NoError(t, err)
	assert.Equal(t, roster.LeaveApproved, approved.Status)
	assert.Equal(t, "ok", approved.AdminNotes)

	balance, err := ls.Balance(ctx, "dr-a")
	require.NoError(t, err)
	assert.True(t, balance.UsedDays.Equal(decimal.NewFromInt(3)), "used = %s", balance.UsedDays)
	assert.True(t, balance.Remaining().Equal(decimal.NewFromInt(42)))
}

func TestLeave_Approve_CapGateFailsThirdDoctor(t *testing.T) {
	// GIVEN: Two doctors already approved covering the date (cap=2)
	// WHEN: A third doctor's pending request covering it is approved
	// THEN: ErrConcurrencyCapExceeded; the request stays pending and no
	//       balance moves
	ls, m := newLeaveEngine(t)
	ctx := context.Background()
	date := tomorrow()

	require.NoError(t, m.PutLeave(ctx, leaveCovering("lr-1", "dr-b", date, roster.LeaveApproved)))
	require.NoError(t, m.PutLeave(ctx, leaveCovering("lr-2", "dr-c", date, roster.LeaveApproved)))

	req, _, err := ls.Submit(ctx, "dr-a", roster.LeaveAnnual, date, date, "")
	require.NoError(t, err)

	_, err = ls.Approve(ctx, req.ID, "admin-1", "")
	assert.ErrorIs(t, err, roster.ErrConcurrencyCapExceeded)

	reloaded, err := m.GetLeave(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, roster.LeavePending, reloaded.Status, "failed approval leaves the request pending")

	balance, err := ls.Balance(ctx, "dr-a")
	require.NoError(t, err)
	assert.True(t, balance.UsedDays.IsZero(), "no balance effect on failed approval")
}

func TestLeave_Approve_PendingLeavesDoNotReserveCapacity(t *testing.T) {
	// Two pending requests on a date do not block an approval there; the
	// hard gate counts approved leaves only.
	ls, m := newLeaveEngine(t)
	ctx := context.Background()
	date := tomorrow()

	require.NoError(t, m.PutLeave(ctx, leaveCovering("lr-1", "dr-b", date, roster.LeavePending)))
	require.NoError(t, m.PutLeave(ctx, leaveCovering("lr-2", "dr-c", date, roster.LeavePending)))

	req, _, err := ls.Submit(ctx, "dr-a", roster.LeaveAnnual, date, date, "")
	require.NoError(t, err)

	_, err = ls.Approve(ctx, req.ID, "admin-1", "")
	assert.NoError(t, err)
}

func TestLeave_Approve_NonAnnualLeavesBalanceUntouched(t *testing.T) {
	ls, _ := newLeaveEngine(t)
	ctx := context.Background()

	req, _, err := ls.Submit(ctx, "dr-a", roster.LeaveEmergency, tomorrow(), tomorrow().AddDays(4), "")
	require.NoError(t, err)

	_, err = ls.Approve(ctx, req.ID, "admin-1", "")
	require.NoError(t, err)

	balance, err := ls.Balance(ctx, "dr-a")
	require.NoError(t, err)
	assert.True(t, balance.UsedDays.IsZero())
}

// =============================================================================
// TERMINAL IMMUTABILITY
// =============================================================================

func TestLeave_TerminalStates_RejectAllTransitions(t *testing.T) {
	ls, m := newLeaveEngine(t)
	ctx := context.Background()

	req, _, err := ls.Submit(ctx, "dr-a", roster.LeaveAnnual, tomorrow(), tomorrow(), "")
	require.NoError(t, err)
	_, err = ls.Reject(ctx, req.ID, "admin-1", "understaffed")
	require.NoError(t, err)

	// Every further transition out of rejected must fail.
	_, err = ls.Approve(ctx, req.ID, "admin-1", "")
	assert.ErrorIs(t, err, roster.ErrInvalidTransition)
	_, err = ls.Reject(ctx, req.ID, "admin-1", "")
	assert.ErrorIs(t, err, roster.ErrInvalidTransition)
	_, err = ls.Cancel(ctx, req.ID, "dr-a")
	assert.ErrorIs(t, err, roster.ErrInvalidTransition)

	reloaded, err := m.GetLeave(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, roster.LeaveRejected, reloaded.Status)
	assert.Equal(t, "understaffed", reloaded.AdminNotes, "failed transitions mutate nothing")
}

func TestLeave_Cancel_OwnerOnly(t *testing.T) {
	ls, _ := newLeaveEngine(t)
	ctx := context.Background()

	req, _, err := ls.Submit(ctx, "dr-a", roster.LeaveAnnual, tomorrow(), tomorrow(), "")
	require.NoError(t, err)

	_, err = ls.Cancel(ctx, req.ID, "dr-b")
	assert.ErrorIs(t, err, roster.ErrNotRequestOwner)

	cancelled, err := ls.Cancel(ctx, req.ID, "dr-a")
	require.NoError(t, err)
	assert.Equal(t, roster.LeaveCancelled, cancelled.Status)
}

func TestLeave_Cancel_NoBalanceEffect(t *testing.T) {
	ls, _ := newLeaveEngine(t)
	ctx := context.Background()

	req, _, err := ls.Submit(ctx, "dr-a", roster.LeaveAnnual, tomorrow(), tomorrow().AddDays(4), "")
	require.NoError(t, err)
	_, err = ls.Cancel(ctx, req.ID, "dr-a")
	require.NoError(t, err)

	balance, err := ls.Balance(ctx, "dr-a")
	require.NoError(t, err)
	assert.True(t, balance.UsedDays.IsZero(), "balance was never debited pre-approval")
}

// =============================================================================
// READS
// =============================================================================

func TestLeave_Balance_LazyCreation(t *testing.T) {
	ls, _ := newLeaveEngine(t)

	balance, err := ls.Balance(context.Background(), "dr-a")
	require.NoError(t, err)
	assert.True(t, balance.TotalDays.Equal(roster.DefaultAnnualAllotment))
	assert.True(t, balance.UsedDays.IsZero())
}

func TestLeave_Balance_UnknownDoctor(t *testing.T) {
	ls, _ := newLeaveEngine(t)

	_, err := ls.Balance(context.Background(), "dr-nobody")
	assert.ErrorIs(t, err, roster.ErrNotFound)
}

func TestLeave_CalendarForMonth(t *testing.T) {
	// GIVEN: An approved leave spanning the month boundary and a pending one
	// WHEN: Projecting March
	// THEN: Only approved dates inside March appear
	ls, m := newLeaveEngine(t)
	ctx := context.Background()

	require.NoError(t, m.PutLeave(ctx, &roster.LeaveRequest{
		ID:        "lr-span",
		DoctorID:  "dr-b",
		Type:      roster.LeaveAnnual,
		StartDate: roster.NewDate(2026, time.March, 30),
		EndDate:   roster.NewDate(2026, time.April, 2),
		Status:    roster.LeaveApproved,
	}))
	require.NoError(t, m.PutLeave(ctx, leaveCovering("lr-pending", "dr-c", roster.NewDate(2026, time.March, 15), roster.LeavePending)))

	cal, err := ls.CalendarForMonth(ctx, 2026, time.March)
	require.NoError(t, err)

	assert.Equal(t, []roster.DoctorID{"dr-b"}, cal[roster.NewDate(2026, time.March, 30)])
	assert.Equal(t, []roster.DoctorID{"dr-b"}, cal[roster.NewDate(2026, time.March, 31)])
	assert.NotContains(t, cal, roster.NewDate(2026, time.April, 1), "April dates excluded")
	assert.NotContains(t, cal, roster.NewDate(2026, time.March, 15), "pending leaves excluded")
}

func TestLeave_CheckConflicts(t *testing.T) {
	ls, m := newLeaveEngine(t)
	ctx := context.Background()
	date := tomorrow()

	require.NoError(t, m.PutLeave(ctx, leaveCovering("lr-1", "dr-b", date, roster.LeaveApproved)))
	require.NoError(t, m.PutLeave(ctx, leaveCovering("lr-2", "dr-c", date, roster.LeaveApproved)))

	hasConflict, message, err := ls.CheckConflicts(ctx, "dr-a", date, date)
	require.NoError(t, err)
	assert.True(t, hasConflict)
	assert.NotEmpty(t, message)

	hasConflict, _, err = ls.CheckConflicts(ctx, "dr-a", date.AddDays(5), date.AddDays(6))
	require.NoError(t, err)
	assert.False(t, hasConflict)
}
