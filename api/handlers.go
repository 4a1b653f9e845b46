/*
handlers.go - HTTP API handlers for the roster coordination engine

PURPOSE:
  Exposes the Leave Ledger and Swap Coordinator via REST. Handles HTTP
  request/response, JSON serialization, and delegates every decision to the
  domain services - no precondition lives only here.

ENDPOINTS:
  Doctors:
    GET    /api/doctors                    List all doctors
    POST   /api/doctors                    Create doctor
    GET    /api/doctors/{id}/duties        Duties in ?from=&to=
    GET    /api/doctors/{id}/balance       Leave balance
    GET    /api/doctors/{id}/swaps         Swaps sent and received

  Leave:
    POST   /api/leaves                     Submit (soft cap warning in response)
    POST   /api/leaves/{id}/approve        Admin, hard cap gate
    POST   /api/leaves/{id}/reject         Admin
    POST   /api/leaves/{id}/cancel         Owning doctor, pending only
    GET    /api/leaves/calendar            ?year=&month=
    GET    /api/leaves/conflicts           ?doctor_id=&start=&end=

  Duties and swaps:
    POST   /api/duties                     Administrative roster edit
    GET    /api/duties?date=               Duties on a date
    GET    /api/duties/{id}/targets        Two-sided compatibility search
    POST   /api/swaps                      Propose
    GET    /api/swaps/pending              Admin queue
    POST   /api/swaps/{id}/approve|reject  Admin path
    POST   /api/swaps/{id}/accept|decline  Target doctor path
    POST   /api/swaps/{id}/cancel          Requestor

ERROR HANDLING:
  Domain errors map to HTTP statuses via their sentinel class:
  - 400: malformed input, ownership/eligibility/balance failures
  - 404: unknown ids
  - 409: invalid transitions, cap breaches, double-booking, stale swaps
  - 500: everything else

SECURITY NOTE:
  Authentication is out of scope; the actor travels in the body or X-Actor
  header. Every gate is still enforced server-side.

SEE ALSO:
  - dto.go:    Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/roster-engine/roster"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store roster.TxStore
	Leave *roster.LeaveService
	Swap  *roster.SwapService
	Log   *zap.Logger
}

func NewHandler(store roster.TxStore, leave *roster.LeaveService, swap *roster.SwapService, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Store: store, Leave: leave, Swap: swap, Log: log}
}

// actor resolves who is acting: body field first, then X-Actor header.
func actor(r *http.Request, body DecisionRequest) string {
	if body.ActorID != "" {
		return body.ActorID
	}
	return r.Header.Get("X-Actor")
}

// =============================================================================
// DOCTOR HANDLERS
// =============================================================================

// ListDoctors returns all doctors.
func (h *Handler) ListDoctors(w http.ResponseWriter, r *http.Request) {
	doctors, err := h.Store.ListDoctors(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list doctors", err)
		return
	}
	dtos := make([]DoctorDTO, len(doctors))
	for i, d := range doctors {
		dtos[i] = toDoctorDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateDoctor registers a doctor record.
func (h *Handler) CreateDoctor(w http.ResponseWriter, r *http.Request) {
	var req CreateDoctorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}
	doctor := &roster.Doctor{
		ID:         roster.DoctorID(req.ID),
		Name:       req.Name,
		Department: req.Department,
		CreatedAt:  time.Now(),
	}
	if err := h.Store.PutDoctor(r.Context(), doctor); err != nil {
		h.writeDomainError(w, "Failed to create doctor", err)
		return
	}
	writeJSON(w, http.StatusCreated, toDoctorDTO(doctor))
}

// GetDoctorDuties returns a doctor's duties in ?from=&to= (default: the next
// 90 days).
func (h *Handler) GetDoctorDuties(w http.ResponseWriter, r *http.Request) {
	doctorID := roster.DoctorID(chi.URLParam(r, "id"))

	now := time.Now().UTC()
	from := roster.NewDate(now.Year(), now.Month(), now.Day())
	to := from.AddDays(90)
	var err error
	if s := r.URL.Query().Get("from"); s != "" {
		if from, err = roster.ParseDate(s); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from date", err)
			return
		}
	}
	if s := r.URL.Query().Get("to"); s != "" {
		if to, err = roster.ParseDate(s); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to date", err)
			return
		}
	}

	duties, err := h.Store.ListDutiesForDoctor(r.Context(), doctorID, from, to)
	if err != nil {
		h.writeDomainError(w, "Failed to list duties", err)
		return
	}
	writeJSON(w, http.StatusOK, toDutyDTOs(duties))
}

// GetBalance returns a doctor's leave balance, creating it lazily.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	doctorID := roster.DoctorID(chi.URLParam(r, "id"))
	balance, err := h.Leave.Balance(r.Context(), doctorID)
	if err != nil {
		h.writeDomainError(w, "Failed to get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(balance))
}

// GetDoctorSwaps returns the doctor's swap requests, partitioned.
func (h *Handler) GetDoctorSwaps(w http.ResponseWriter, r *http.Request) {
	doctorID := roster.DoctorID(chi.URLParam(r, "id"))
	sent, received, err := h.Swap.MyRequests(r.Context(), doctorID)
	if err != nil {
		h.writeDomainError(w, "Failed to list swaps", err)
		return
	}
	writeJSON(w, http.StatusOK, MyRequestsDTO{
		Sent:     toSwapDTOs(sent),
		Received: toSwapDTOs(received),
	})
}

// =============================================================================
// DUTY HANDLERS
// =============================================================================

// CreateDuty is the administrative roster edit used by seeding.
func (h *Handler) CreateDuty(w http.ResponseWriter, r *http.Request) {
	var req CreateDutyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	date, err := roster.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}
	shift := roster.Shift(req.Shift)
	if !shift.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid shift", nil)
		return
	}
	duty := &roster.DutyAssignment{
		ID:             roster.DutyID(req.ID),
		DoctorID:       roster.DoctorID(req.DoctorID),
		Date:           date,
		Shift:          shift,
		IsReferralDuty: req.IsReferralDuty,
	}
	if err := h.Store.PutDuty(r.Context(), duty); err != nil {
		h.writeDomainError(w, "Failed to create duty", err)
		return
	}
	writeJSON(w, http.StatusCreated, toDutyDTO(duty))
}

// ListDutiesOnDate returns every duty on ?date=.
func (h *Handler) ListDutiesOnDate(w http.ResponseWriter, r *http.Request) {
	date, err := roster.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or missing date", err)
		return
	}
	duties, err := h.Store.ListDutiesOnDate(r.Context(), date)
	if err != nil {
		h.writeDomainError(w, "Failed to list duties", err)
		return
	}
	writeJSON(w, http.StatusOK, toDutyDTOs(duties))
}

// GetSwapTargets runs the two-sided compatibility search for a duty.
func (h *Handler) GetSwapTargets(w http.ResponseWriter, r *http.Request) {
	dutyID := roster.DutyID(chi.URLParam(r, "id"))
	candidates, err := h.Swap.AvailableTargets(r.Context(), dutyID)
	if err != nil {
		h.writeDomainError(w, "Failed to compute swap targets", err)
		return
	}
	dtos := make([]SwapCandidateDTO, len(candidates))
	for i, c := range candidates {
		dtos[i] = SwapCandidateDTO{
			Doctor: toDoctorDTO(c.Doctor),
			Duties: toDutyDTOs(c.Duties),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// LEAVE HANDLERS
// =============================================================================

// SubmitLeave creates a pending leave request. A cap conflict does not block
// creation; it comes back as a warning in the response body.
func (h *Handler) SubmitLeave(w http.ResponseWriter, r *http.Request) {
	var req SubmitLeaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	start, err := roster.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start date", err)
		return
	}
	end, err := roster.ParseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end date", err)
		return
	}

	created, warning, err := h.Leave.Submit(r.Context(),
		roster.DoctorID(req.DoctorID), roster.LeaveType(req.Type), start, end, req.Reason)
	if err != nil {
		h.writeDomainError(w, "Failed to submit leave", err)
		return
	}
	writeJSON(w, http.StatusCreated, SubmitLeaveResponse{
		Request: toLeaveDTO(created),
		Warning: warning,
	})
}

// ApproveLeave runs the hard cap gate and debits annual balance.
func (h *Handler) ApproveLeave(w http.ResponseWriter, r *http.Request) {
	id := roster.LeaveRequestID(chi.URLParam(r, "id"))
	var body DecisionRequest
	json.NewDecoder(r.Body).Decode(&body)

	req, err := h.Leave.Approve(r.Context(), id, actor(r, body), body.Notes)
	if err != nil {
		h.writeDomainError(w, "Failed to approve leave", err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTO(req))
}

// RejectLeave terminates a pending request without balance effect.
func (h *Handler) RejectLeave(w http.ResponseWriter, r *http.Request) {
	id := roster.LeaveRequestID(chi.URLParam(r, "id"))
	var body DecisionRequest
	json.NewDecoder(r.Body).Decode(&body)

	req, err := h.Leave.Reject(r.Context(), id, actor(r, body), body.Reason)
	if err != nil {
		h.writeDomainError(w, "Failed to reject leave", err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTO(req))
}

// CancelLeave lets the owning doctor withdraw a pending request.
func (h *Handler) CancelLeave(w http.ResponseWriter, r *http.Request) {
	id := roster.LeaveRequestID(chi.URLParam(r, "id"))
	var body DecisionRequest
	json.NewDecoder(r.Body).Decode(&body)

	req, err := h.Leave.Cancel(r.Context(), id, roster.DoctorID(actor(r, body)))
	if err != nil {
		h.writeDomainError(w, "Failed to cancel leave", err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTO(req))
}

// LeaveCalendar projects approved leaves onto a month: date -> doctor ids.
func (h *Handler) LeaveCalendar(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}
	month, err := strconv.Atoi(r.URL.Query().Get("month"))
	if err != nil || month < 1 || month > 12 {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return
	}

	cal, err := h.Leave.CalendarForMonth(r.Context(), year, time.Month(month))
	if err != nil {
		h.writeDomainError(w, "Failed to build calendar", err)
		return
	}

	out := make(map[string][]string, len(cal))
	for date, doctors := range cal {
		ids := make([]string, len(doctors))
		for i, d := range doctors {
			ids[i] = string(d)
		}
		sort.Strings(ids)
		out[date.String()] = ids
	}
	writeJSON(w, http.StatusOK, out)
}

// CheckLeaveConflicts runs the soft census without creating anything.
func (h *Handler) CheckLeaveConflicts(w http.ResponseWriter, r *http.Request) {
	start, err := roster.ParseDate(r.URL.Query().Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start date", err)
		return
	}
	end, err := roster.ParseDate(r.URL.Query().Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end date", err)
		return
	}
	doctorID := roster.DoctorID(r.URL.Query().Get("doctor_id"))

	hasConflict, message, err := h.Leave.CheckConflicts(r.Context(), doctorID, start, end)
	if err != nil {
		h.writeDomainError(w, "Failed to check conflicts", err)
		return
	}
	writeJSON(w, http.StatusOK, ConflictCheckResponse{HasConflict: hasConflict, Message: message})
}

// =============================================================================
// SWAP HANDLERS
// =============================================================================

// ProposeSwap creates a pending swap after the two-sided pre-check.
func (h *Handler) ProposeSwap(w http.ResponseWriter, r *http.Request) {
	var req ProposeSwapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	created, err := h.Swap.Propose(r.Context(),
		roster.DoctorID(req.RequestorID), roster.DutyID(req.RequestorDutyID),
		roster.DoctorID(req.TargetID), roster.DutyID(req.TargetDutyID), req.Reason)
	if err != nil {
		h.writeDomainError(w, "Failed to propose swap", err)
		return
	}
	writeJSON(w, http.StatusCreated, toSwapDTO(created))
}

// ListPendingSwaps is the admin queue.
func (h *Handler) ListPendingSwaps(w http.ResponseWriter, r *http.Request) {
	swaps, err := h.Swap.AllPending(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list pending swaps", err)
		return
	}
	writeJSON(w, http.StatusOK, toSwapDTOs(swaps))
}

// ApproveSwap commits the exchange through the admin path. A lost race
// returns 409 with the request still pending.
func (h *Handler) ApproveSwap(w http.ResponseWriter, r *http.Request) {
	id := roster.SwapRequestID(chi.URLParam(r, "id"))
	var body DecisionRequest
	json.NewDecoder(r.Body).Decode(&body)

	req, err := h.Swap.Approve(r.Context(), id, actor(r, body), body.Notes)
	if err != nil {
		observeSwapResolution(err)
		h.writeDomainError(w, "Failed to approve swap", err)
		return
	}
	observeSwapResolution(nil)
	writeJSON(w, http.StatusOK, toSwapDTO(req))
}

// RejectSwap terminates through the admin path without exchanging.
func (h *Handler) RejectSwap(w http.ResponseWriter, r *http.Request) {
	id := roster.SwapRequestID(chi.URLParam(r, "id"))
	var body DecisionRequest
	json.NewDecoder(r.Body).Decode(&body)

	req, err := h.Swap.Reject(r.Context(), id, actor(r, body), body.Reason)
	if err != nil {
		h.writeDomainError(w, "Failed to reject swap", err)
		return
	}
	writeJSON(w, http.StatusOK, toSwapDTO(req))
}

// AcceptSwap commits the exchange through the peer path.
func (h *Handler) AcceptSwap(w http.ResponseWriter, r *http.Request) {
	id := roster.SwapRequestID(chi.URLParam(r, "id"))
	var body DecisionRequest
	json.NewDecoder(r.Body).Decode(&body)

	req, err := h.Swap.Accept(r.Context(), id, roster.DoctorID(actor(r, body)))
	if err != nil {
		observeSwapResolution(err)
		h.writeDomainError(w, "Failed to accept swap", err)
		return
	}
	observeSwapResolution(nil)
	writeJSON(w, http.StatusOK, toSwapDTO(req))
}

// DeclineSwap lets the target turn the proposal down.
func (h *Handler) DeclineSwap(w http.ResponseWriter, r *http.Request) {
	id := roster.SwapRequestID(chi.URLParam(r, "id"))
	var body DecisionRequest
	json.NewDecoder(r.Body).Decode(&body)

	req, err := h.Swap.Decline(r.Context(), id, roster.DoctorID(actor(r, body)), body.Reason)
	if err != nil {
		h.writeDomainError(w, "Failed to decline swap", err)
		return
	}
	writeJSON(w, http.StatusOK, toSwapDTO(req))
}

// CancelSwap lets the requestor withdraw a pending proposal.
func (h *Handler) CancelSwap(w http.ResponseWriter, r *http.Request) {
	id := roster.SwapRequestID(chi.URLParam(r, "id"))
	var body DecisionRequest
	json.NewDecoder(r.Body).Decode(&body)

	req, err := h.Swap.Cancel(r.Context(), id, roster.DoctorID(actor(r, body)))
	if err != nil {
		h.writeDomainError(w, "Failed to cancel swap", err)
		return
	}
	writeJSON(w, http.StatusOK, toSwapDTO(req))
}

// =============================================================================
// AUDIT HANDLERS
// =============================================================================

// QueryAuditLog returns the audit trail in chronological order, filtered by the
// optional actor_id, subject_id, action (repeatable), from and to (RFC3339)
// query parameters.
func (h *Handler) QueryAuditLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := roster.AuditFilter{
		ActorID:   q.Get("actor_id"),
		SubjectID: q.Get("subject_id"),
	}
	for _, a := range q["action"] {
		filter.Actions = append(filter.Actions, roster.AuditAction(a))
	}
	var err error
	if s := q.Get("from"); s != "" {
		if filter.From, err = time.Parse(time.RFC3339, s); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from time", err)
			return
		}
	}
	if s := q.Get("to"); s != "" {
		if filter.To, err = time.Parse(time.RFC3339, s); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to time", err)
			return
		}
	}

	entries, err := h.Store.QueryAudit(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, "Failed to query audit log", err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditEntryDTOs(entries))
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Log.Error(message, zap.Error(err))
	}
	writeError(w, status, message, err)
}

// statusFor maps the domain error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case roster.IsNotFound(err):
		return http.StatusNotFound
	case roster.IsConflict(err):
		return http.StatusConflict
	case roster.IsClientError(err):
		return http.StatusBadRequest
	case errors.Is(err, roster.ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
