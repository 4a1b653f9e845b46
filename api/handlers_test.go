package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/roster-engine/api"
	"github.com/warp/roster-engine/roster"
	"github.com/warp/roster-engine/roster/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var fixedNow = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

func tomorrow() roster.Date { return roster.NewDate(2026, time.March, 11) }

// newTestServer wires the full router over the in-memory store with a frozen
// clock, plus a few doctors and duties.
func newTestServer(t *testing.T) (*httptest.Server, *store.Memory) {
	t.Helper()
	m := store.NewMemory()
	r := roster.NewResolver(time.UTC)
	r.Now = func() time.Time { return fixedNow }

	h := api.NewHandler(m,
		roster.NewLeaveService(m, r, nil),
		roster.NewSwapService(m, r, nil),
		nil)
	srv := httptest.NewServer(api.NewRouter(h, nil, []string{"*"}))
	t.Cleanup(srv.Close)

	ctx := context.Background()
	for _, id := range []string{"dr-a", "dr-b", "dr-c"} {
		require.NoError(t, m.PutDoctor(ctx, &roster.Doctor{
			ID:        roster.DoctorID(id),
			Name:      id,
			CreatedAt: fixedNow,
		}))
	}
	require.NoError(t, m.PutDuty(ctx, &roster.DutyAssignment{
		ID: "duty-b", DoctorID: "dr-b", Date: tomorrow(), Shift: roster.ShiftMorning,
	}))
	require.NoError(t, m.PutDuty(ctx, &roster.DutyAssignment{
		ID: "duty-c", DoctorID: "dr-c", Date: tomorrow(), Shift: roster.ShiftEvening,
	}))
	return srv, m
}

func postJSON(t *testing.T, srv *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(buf))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func getJSON(t *testing.T, srv *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// =============================================================================
// LEAVE ENDPOINTS
// =============================================================================

func TestAPI_SubmitLeave_CreatedWithCapWarning(t *testing.T) {
	srv, m := newTestServer(t)
	ctx := context.Background()

	for i, id := range []string{"dr-b", "dr-c"} {
		require.NoError(t, m.PutLeave(ctx, &roster.LeaveRequest{
			ID:        roster.LeaveRequestID(fmt.Sprintf("lr-%d", i)),
			DoctorID:  roster.DoctorID(id),
			Type:      roster.LeaveAnnual,
			StartDate: tomorrow(),
			EndDate:   tomorrow(),
			Status:    roster.LeaveApproved,
		}))
	}

	resp := postJSON(t, srv, "/api/leaves", map[string]string{
		"doctor_id":  "dr-a",
		"type":       "annual",
		"start_date": "2026-03-11",
		"end_date":   "2026-03-12",
		"reason":     "conference",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decode[api.SubmitLeaveResponse](t, resp)
	assert.Equal(t, "pending", body.Request.Status)
	assert.Equal(t, 2, body.Request.Duration)
	assert.NotEmpty(t, body.Warning, "cap conflict surfaces as a warning, not an error")
}

func TestAPI_LeaveApproveFlow(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv, "/api/leaves", map[string]string{
		"doctor_id":  "dr-a",
		"type":       "annual",
		"start_date": "2026-03-11",
		"end_date":   "2026-03-13",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[api.SubmitLeaveResponse](t, resp)

	resp = postJSON(t, srv, "/api/leaves/"+created.Request.ID+"/approve", map[string]string{
		"actor_id": "admin-1",
		"notes":    "covered",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	approved := decode[api.LeaveDTO](t, resp)
	assert.Equal(t, "approved", approved.Status)

	// Re-approving a terminal request conflicts.
	resp = postJSON(t, srv, "/api/leaves/"+created.Request.ID+"/approve", map[string]string{"actor_id": "admin-1"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// The annual debit shows up in the balance.
	resp = getJSON(t, srv, "/api/doctors/dr-a/balance")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	balance := decode[api.BalanceDTO](t, resp)
	assert.Equal(t, "3", balance.UsedDays)
	assert.Equal(t, "42", balance.Remaining)
}

func TestAPI_ErrorMapping(t *testing.T) {
	srv, _ := newTestServer(t)

	// Unknown doctor -> 404.
	resp := getJSON(t, srv, "/api/doctors/dr-nobody/balance")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Reversed range -> 400.
	resp = postJSON(t, srv, "/api/leaves", map[string]string{
		"doctor_id":  "dr-a",
		"type":       "annual",
		"start_date": "2026-03-13",
		"end_date":   "2026-03-11",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Missing date query -> 400.
	resp = getJSON(t, srv, "/api/duties")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unknown swap -> 404.
	resp = postJSON(t, srv, "/api/swaps/sw-missing/approve", map[string]string{"actor_id": "admin-1"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_LeaveCalendar(t *testing.T) {
	srv, m := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, m.PutLeave(ctx, &roster.LeaveRequest{
		ID:        "lr-cal",
		DoctorID:  "dr-b",
		Type:      roster.LeaveAnnual,
		StartDate: roster.NewDate(2026, time.March, 15),
		EndDate:   roster.NewDate(2026, time.March, 16),
		Status:    roster.LeaveApproved,
	}))

	resp := getJSON(t, srv, "/api/leaves/calendar?year=2026&month=3")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cal := decode[map[string][]string](t, resp)
	assert.Equal(t, []string{"dr-b"}, cal["2026-03-15"])
	assert.Equal(t, []string{"dr-b"}, cal["2026-03-16"])
}

// =============================================================================
// SWAP ENDPOINTS
// =============================================================================

func TestAPI_SwapAcceptEndToEnd(t *testing.T) {
	// GIVEN: dr-b's morning and dr-c's evening duty tomorrow
	// WHEN: dr-b proposes a swap and dr-c accepts via X-Actor
	// THEN: Both duties change hands and the queue drains
	srv, m := newTestServer(t)
	ctx := context.Background()

	resp := postJSON(t, srv, "/api/swaps", map[string]string{
		"requestor_id":      "dr-b",
		"requestor_duty_id": "duty-b",
		"target_id":         "dr-c",
		"target_duty_id":    "duty-c",
		"reason":            "childcare",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[api.SwapDTO](t, resp)
	assert.Equal(t, "pending", created.Status)

	resp = getJSON(t, srv, "/api/swaps/pending")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pending := decode[[]api.SwapDTO](t, resp)
	require.Len(t, pending, 1)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/swaps/"+created.ID+"/accept", nil)
	require.NoError(t, err)
	req.Header.Set("X-Actor", "dr-c")
	acceptResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer acceptResp.Body.Close()
	require.Equal(t, http.StatusOK, acceptResp.StatusCode)
	accepted := decode[api.SwapDTO](t, acceptResp)
	assert.Equal(t, "accepted", accepted.Status)

	offered, err := m.GetDuty(ctx, "duty-b")
	require.NoError(t, err)
	assert.Equal(t, roster.DoctorID("dr-c"), offered.DoctorID)

	resp = getJSON(t, srv, "/api/swaps/pending")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pending = decode[[]api.SwapDTO](t, resp)
	assert.Empty(t, pending)
}

func TestAPI_SwapStaleCommitConflicts(t *testing.T) {
	srv, m := newTestServer(t)
	ctx := context.Background()

	resp := postJSON(t, srv, "/api/swaps", map[string]string{
		"requestor_id":      "dr-b",
		"requestor_duty_id": "duty-b",
		"target_id":         "dr-c",
		"target_duty_id":    "duty-c",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[api.SwapDTO](t, resp)

	// Reassign the target duty behind the proposal's back.
	require.NoError(t, m.PutDuty(ctx, &roster.DutyAssignment{
		ID: "duty-c", DoctorID: "dr-a", Date: tomorrow(), Shift: roster.ShiftEvening,
	}))

	resp = postJSON(t, srv, "/api/swaps/"+created.ID+"/approve", map[string]string{"actor_id": "admin-1"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	swap, err := m.GetSwap(ctx, roster.SwapRequestID(created.ID))
	require.NoError(t, err)
	assert.Equal(t, roster.SwapPending, swap.Status)
}

func TestAPI_SwapTargets(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := getJSON(t, srv, "/api/duties/duty-b/targets")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	candidates := decode[[]api.SwapCandidateDTO](t, resp)
	require.Len(t, candidates, 1)
	assert.Equal(t, "dr-c", candidates[0].Doctor.ID)
	require.Len(t, candidates[0].Duties, 1)
	assert.Equal(t, "duty-c", candidates[0].Duties[0].ID)
}

func TestAPI_DoctorSwapsPartition(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv, "/api/swaps", map[string]string{
		"requestor_id":      "dr-b",
		"requestor_duty_id": "duty-b",
		"target_id":         "dr-c",
		"target_duty_id":    "duty-c",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = getJSON(t, srv, "/api/doctors/dr-c/swaps")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	mine := decode[api.MyRequestsDTO](t, resp)
	assert.Empty(t, mine.Sent)
	assert.Len(t, mine.Received, 1)
}

// =============================================================================
// ADMIN AND HEALTH
// =============================================================================

func TestAPI_CreateDoctorAndDuty(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv, "/api/doctors", map[string]string{
		"id":         "dr-new",
		"name":       "New Doctor",
		"department": "Emergency",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = postJSON(t, srv, "/api/duties", map[string]any{
		"id":        "duty-new",
		"doctor_id": "dr-new",
		"date":      "2026-03-12",
		"shift":     "night",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = getJSON(t, srv, "/api/duties?date=2026-03-12")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	duties := decode[[]api.DutyDTO](t, resp)
	require.Len(t, duties, 1)
	assert.Equal(t, "dr-new", duties[0].DoctorID)

	// Validation still bites.
	resp = postJSON(t, srv, "/api/doctors", map[string]string{"id": "", "name": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = postJSON(t, srv, "/api/duties", map[string]string{
		"id": "x", "doctor_id": "dr-new", "date": "2026-03-12", "shift": "dawn",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_AuditTrail(t *testing.T) {
	srv, _ := newTestServer(t)

	// GIVEN a leave request that has been submitted and approved
	resp := postJSON(t, srv, "/api/leaves", map[string]string{
		"doctor_id":  "dr-a",
		"type":       "annual",
		"start_date": "2026-03-11",
		"end_date":   "2026-03-11",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[api.SubmitLeaveResponse](t, resp)

	resp = postJSON(t, srv, "/api/leaves/"+created.Request.ID+"/approve", map[string]string{"actor_id": "admin-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// WHEN querying the audit trail for that request
	resp = getJSON(t, srv, "/api/audit?subject_id="+created.Request.ID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	trail := decode[[]api.AuditEntryDTO](t, resp)

	// THEN both transitions are there, in order, with their actors
	require.Len(t, trail, 2)
	assert.Equal(t, "leave_submitted", trail[0].Action)
	assert.Equal(t, "dr-a", trail[0].ActorID)
	assert.Equal(t, "leave_approved", trail[1].Action)
	assert.Equal(t, "admin-1", trail[1].ActorID)

	// The action filter narrows the trail.
	resp = getJSON(t, srv, "/api/audit?action=leave_approved")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	approvals := decode[[]api.AuditEntryDTO](t, resp)
	require.Len(t, approvals, 1)
	assert.Equal(t, created.Request.ID, approvals[0].SubjectID)

	// Malformed time bounds are rejected.
	resp = getJSON(t, srv, "/api/audit?from=yesterday")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_Health(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := getJSON(t, srv, "/api/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
