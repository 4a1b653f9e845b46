/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Validation is done in handlers and services, not in DTOs. DTOs are pure
  data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/roster-engine/roster"
)

// =============================================================================
// DOCTORS
// =============================================================================

type DoctorDTO struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Department string `json:"department,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
}

func toDoctorDTO(d *roster.Doctor) DoctorDTO {
	return DoctorDTO{
		ID:         string(d.ID),
		Name:       d.Name,
		Department: d.Department,
		CreatedAt:  d.CreatedAt.Format(time.RFC3339),
	}
}

type CreateDoctorRequest struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Department string `json:"department"`
}

// =============================================================================
// DUTIES
// =============================================================================

type DutyDTO struct {
	ID             string `json:"id"`
	DoctorID       string `json:"doctor_id"`
	Date           string `json:"date"`
	Shift          string `json:"shift"`
	IsReferralDuty bool   `json:"is_referral_duty"`
}

func toDutyDTO(d *roster.DutyAssignment) DutyDTO {
	return DutyDTO{
		ID:             string(d.ID),
		DoctorID:       string(d.DoctorID),
		Date:           d.Date.String(),
		Shift:          string(d.Shift),
		IsReferralDuty: d.IsReferralDuty,
	}
}

func toDutyDTOs(duties []*roster.DutyAssignment) []DutyDTO {
	out := make([]DutyDTO, len(duties))
	for i, d := range duties {
		out[i] = toDutyDTO(d)
	}
	return out
}

// CreateDutyRequest covers administrative roster edits and seeding.
type CreateDutyRequest struct {
	ID             string `json:"id"`
	DoctorID       string `json:"doctor_id"`
	Date           string `json:"date"`
	Shift          string `json:"shift"`
	IsReferralDuty bool   `json:"is_referral_duty"`
}

// =============================================================================
// LEAVE
// =============================================================================

type LeaveDTO struct {
	ID         string `json:"id"`
	DoctorID   string `json:"doctor_id"`
	Type       string `json:"type"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	Duration   int    `json:"duration_days"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	AdminNotes string `json:"admin_notes,omitempty"`
	CreatedAt  string `json:"created_at"`
}

func toLeaveDTO(r *roster.LeaveRequest) LeaveDTO {
	return LeaveDTO{
		ID:         string(r.ID),
		DoctorID:   string(r.DoctorID),
		Type:       string(r.Type),
		StartDate:  r.StartDate.String(),
		EndDate:    r.EndDate.String(),
		Duration:   r.Duration(),
		Status:     string(r.Status),
		Reason:     r.Reason,
		AdminNotes: r.AdminNotes,
		CreatedAt:  r.CreatedAt.Format(time.RFC3339),
	}
}

type SubmitLeaveRequest struct {
	DoctorID  string `json:"doctor_id"`
	Type      string `json:"type"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Reason    string `json:"reason"`
}

// SubmitLeaveResponse carries the created request plus the non-blocking cap
// warning, when any.
type SubmitLeaveResponse struct {
	Request LeaveDTO `json:"request"`
	Warning string   `json:"warning,omitempty"`
}

type BalanceDTO struct {
	DoctorID  string `json:"doctor_id"`
	TotalDays string `json:"total_days"`
	UsedDays  string `json:"used_days"`
	Remaining string `json:"remaining"`
}

func toBalanceDTO(b *roster.LeaveBalance) BalanceDTO {
	return BalanceDTO{
		DoctorID:  string(b.DoctorID),
		TotalDays: b.TotalDays.String(),
		UsedDays:  b.UsedDays.String(),
		Remaining: b.Remaining().String(),
	}
}

type ConflictCheckResponse struct {
	HasConflict bool   `json:"has_conflict"`
	Message     string `json:"message,omitempty"`
}

// =============================================================================
// SWAPS
// =============================================================================

type SwapDTO struct {
	ID              string `json:"id"`
	RequestorID     string `json:"requestor_id"`
	RequestorDutyID string `json:"requestor_duty_id"`
	TargetID        string `json:"target_id"`
	TargetDutyID    string `json:"target_duty_id"`
	Reason          string `json:"reason,omitempty"`
	Status          string `json:"status"`
	AdminNotes      string `json:"admin_notes,omitempty"`
	CreatedAt       string `json:"created_at"`
}

func toSwapDTO(r *roster.SwapRequest) SwapDTO {
	return SwapDTO{
		ID:              string(r.ID),
		RequestorID:     string(r.RequestorID),
		RequestorDutyID: string(r.RequestorDutyID),
		TargetID:        string(r.TargetID),
		TargetDutyID:    string(r.TargetDutyID),
		Reason:          r.Reason,
		Status:          string(r.Status),
		AdminNotes:      r.AdminNotes,
		CreatedAt:       r.CreatedAt.Format(time.RFC3339),
	}
}

func toSwapDTOs(swaps []*roster.SwapRequest) []SwapDTO {
	out := make([]SwapDTO, len(swaps))
	for i, s := range swaps {
		out[i] = toSwapDTO(s)
	}
	return out
}

type ProposeSwapRequest struct {
	RequestorID     string `json:"requestor_id"`
	RequestorDutyID string `json:"requestor_duty_id"`
	TargetID        string `json:"target_id"`
	TargetDutyID    string `json:"target_duty_id"`
	Reason          string `json:"reason"`
}

type SwapCandidateDTO struct {
	Doctor DoctorDTO `json:"doctor"`
	Duties []DutyDTO `json:"available_duties"`
}

type MyRequestsDTO struct {
	Sent     []SwapDTO `json:"sent"`
	Received []SwapDTO `json:"received"`
}

// =============================================================================
// AUDIT
// =============================================================================

type AuditEntryDTO struct {
	ID        string `json:"id"`
	At        string `json:"at"`
	ActorID   string `json:"actor_id"`
	Action    string `json:"action"`
	SubjectID string `json:"subject_id"`
	Detail    string `json:"detail,omitempty"`
}

func toAuditEntryDTOs(entries []roster.AuditEntry) []AuditEntryDTO {
	out := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		out[i] = AuditEntryDTO{
			ID:        e.ID,
			At:        e.At.Format(time.RFC3339),
			ActorID:   e.ActorID,
			Action:    string(e.Action),
			SubjectID: e.SubjectID,
			Detail:    e.Detail,
		}
	}
	return out
}

// =============================================================================
// SHARED
// =============================================================================

// DecisionRequest is the body for approve/reject/accept/decline/cancel.
// ActorID may also come from the X-Actor header; the body wins when both are
// set.
type DecisionRequest struct {
	ActorID string `json:"actor_id"`
	Notes   string `json:"notes"`
	Reason  string `json:"reason"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
