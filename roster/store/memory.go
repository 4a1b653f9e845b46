// Package store provides in-memory Store implementations for tests and dev.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/roster-engine/roster"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements roster.TxStore with plain maps. WithTx takes the write
// lock for the whole transaction and restores a snapshot if fn fails, so the
// no-partial-effect contract holds exactly as it does on SQLite.
type Memory struct {
	mu       sync.RWMutex
	doctors  map[roster.DoctorID]*roster.Doctor
	duties   map[roster.DutyID]*roster.DutyAssignment
	leaves   map[roster.LeaveRequestID]*roster.LeaveRequest
	balances map[roster.DoctorID]*roster.LeaveBalance
	swaps    map[roster.SwapRequestID]*roster.SwapRequest
	audits   []roster.AuditEntry
}

func NewMemory() *Memory {
	return &Memory{
		doctors:  make(map[roster.DoctorID]*roster.Doctor),
		duties:   make(map[roster.DutyID]*roster.DutyAssignment),
		leaves:   make(map[roster.LeaveRequestID]*roster.LeaveRequest),
		balances: make(map[roster.DoctorID]*roster.LeaveBalance),
		swaps:    make(map[roster.SwapRequestID]*roster.SwapRequest),
	}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx serializes the transaction under the write lock. fn receives an
// unlocked view of the same store; a failing fn rolls the state back to the
// entry snapshot.
func (m *Memory) WithTx(ctx context.Context, fn func(roster.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshotLocked()
	if err := fn(&txView{m: m}); err != nil {
		m.restoreLocked(snap)
		return err
	}
	return nil
}

type snapshot struct {
	doctors  map[roster.DoctorID]*roster.Doctor
	duties   map[roster.DutyID]*roster.DutyAssignment
	leaves   map[roster.LeaveRequestID]*roster.LeaveRequest
	balances map[roster.DoctorID]*roster.LeaveBalance
	swaps    map[roster.SwapRequestID]*roster.SwapRequest
	audits   []roster.AuditEntry
}

func (m *Memory) snapshotLocked() snapshot {
	s := snapshot{
		doctors:  make(map[roster.DoctorID]*roster.Doctor, len(m.doctors)),
		duties:   make(map[roster.DutyID]*roster.DutyAssignment, len(m.duties)),
		leaves:   make(map[roster.LeaveRequestID]*roster.LeaveRequest, len(m.leaves)),
		balances: make(map[roster.DoctorID]*roster.LeaveBalance, len(m.balances)),
		swaps:    make(map[roster.SwapRequestID]*roster.SwapRequest, len(m.swaps)),
		audits:   append([]roster.AuditEntry(nil), m.audits...),
	}
	for k, v := range m.doctors {
		c := *v
		s.doctors[k] = &c
	}
	for k, v := range m.duties {
		c := *v
		s.duties[k] = &c
	}
	for k, v := range m.leaves {
		c := *v
		s.leaves[k] = &c
	}
	for k, v := range m.balances {
		c := *v
		s.balances[k] = &c
	}
	for k, v := range m.swaps {
		c := *v
		s.swaps[k] = &c
	}
	return s
}

func (m *Memory) restoreLocked(s snapshot) {
	m.doctors = s.doctors
	m.duties = s.duties
	m.leaves = s.leaves
	m.balances = s.balances
	m.swaps = s.swaps
	m.audits = s.audits
}

// txView exposes the locked-method set as a roster.Store. Only valid inside
// WithTx, where the write lock is already held.
type txView struct{ m *Memory }

func (v *txView) GetDuty(_ context.Context, id roster.DutyID) (*roster.DutyAssignment, error) {
	return v.m.getDutyLocked(id)
}
func (v *txView) PutDuty(_ context.Context, d *roster.DutyAssignment) error {
	return v.m.putDutyLocked(d)
}
func (v *txView) ListDutiesForDoctor(_ context.Context, id roster.DoctorID, from, to roster.Date) ([]*roster.DutyAssignment, error) {
	return v.m.listDutiesForDoctorLocked(id, from, to)
}
func (v *txView) ListDutiesOnDate(_ context.Context, date roster.Date) ([]*roster.DutyAssignment, error) {
	return v.m.listDutiesOnDateLocked(date)
}
func (v *txView) ExchangeDuties(_ context.Context, a, b roster.DutyID) error {
	return v.m.exchangeDutiesLocked(a, b)
}
func (v *txView) GetLeave(_ context.Context, id roster.LeaveRequestID) (*roster.LeaveRequest, error) {
	return v.m.getLeaveLocked(id)
}
func (v *txView) PutLeave(_ context.Context, r *roster.LeaveRequest) error {
	return v.m.putLeaveLocked(r)
}
func (v *txView) ListLeavesForDoctor(_ context.Context, id roster.DoctorID) ([]*roster.LeaveRequest, error) {
	return v.m.listLeavesForDoctorLocked(id)
}
func (v *txView) ListLeavesOverlapping(_ context.Context, from, to roster.Date, statuses []roster.LeaveStatus) ([]*roster.LeaveRequest, error) {
	return v.m.listLeavesOverlappingLocked(from, to, statuses)
}
func (v *txView) GetBalance(_ context.Context, id roster.DoctorID) (*roster.LeaveBalance, error) {
	return v.m.getBalanceLocked(id)
}
func (v *txView) PutBalance(_ context.Context, b *roster.LeaveBalance) error {
	return v.m.putBalanceLocked(b)
}
func (v *txView) GetSwap(_ context.Context, id roster.SwapRequestID) (*roster.SwapRequest, error) {
	return v.m.getSwapLocked(id)
}
func (v *txView) PutSwap(_ context.Context, r *roster.SwapRequest) error {
	return v.m.putSwapLocked(r)
}
func (v *txView) ListSwapsInvolving(_ context.Context, id roster.DoctorID) ([]*roster.SwapRequest, error) {
	return v.m.listSwapsInvolvingLocked(id)
}
func (v *txView) ListSwapsByStatus(_ context.Context, status roster.SwapStatus) ([]*roster.SwapRequest, error) {
	return v.m.listSwapsByStatusLocked(status)
}
func (v *txView) ListPendingSwapsTouching(_ context.Context, id roster.DutyID) ([]*roster.SwapRequest, error) {
	return v.m.listPendingSwapsTouchingLocked(id)
}
func (v *txView) GetDoctor(_ context.Context, id roster.DoctorID) (*roster.Doctor, error) {
	return v.m.getDoctorLocked(id)
}
func (v *txView) PutDoctor(_ context.Context, d *roster.Doctor) error {
	return v.m.putDoctorLocked(d)
}
func (v *txView) ListDoctors(_ context.Context) ([]*roster.Doctor, error) {
	return v.m.listDoctorsLocked()
}
func (v *txView) AppendAudit(_ context.Context, e roster.AuditEntry) error {
	return v.m.appendAuditLocked(e)
}
func (v *txView) QueryAudit(_ context.Context, f roster.AuditFilter) ([]roster.AuditEntry, error) {
	return v.m.queryAuditLocked(f)
}

// =============================================================================
// DUTIES
// =============================================================================

var shiftRank = map[roster.Shift]int{
	roster.ShiftMorning: 0,
	roster.ShiftEvening: 1,
	roster.ShiftNight:   2,
}

func (m *Memory) GetDuty(_ context.Context, id roster.DutyID) (*roster.DutyAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getDutyLocked(id)
}

func (m *Memory) getDutyLocked(id roster.DutyID) (*roster.DutyAssignment, error) {
	d, ok := m.duties[id]
	if !ok {
		return nil, fmt.Errorf("duty %s: %w", id, roster.ErrNotFound)
	}
	c := *d
	return &c, nil
}

func (m *Memory) PutDuty(_ context.Context, d *roster.DutyAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putDutyLocked(d)
}

func (m *Memory) putDutyLocked(d *roster.DutyAssignment) error {
	c := *d
	m.duties[d.ID] = &c
	return nil
}

func (m *Memory) ListDutiesForDoctor(_ context.Context, id roster.DoctorID, from, to roster.Date) ([]*roster.DutyAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listDutiesForDoctorLocked(id, from, to)
}

func (m *Memory) listDutiesForDoctorLocked(id roster.DoctorID, from, to roster.Date) ([]*roster.DutyAssignment, error) {
	var result []*roster.DutyAssignment
	for _, d := range m.duties {
		if d.DoctorID != id || d.Date.Before(from) || d.Date.After(to) {
			continue
		}
		c := *d
		result = append(result, &c)
	}
	sortDuties(result)
	return result, nil
}

func (m *Memory) ListDutiesOnDate(_ context.Context, date roster.Date) ([]*roster.DutyAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listDutiesOnDateLocked(date)
}

func (m *Memory) listDutiesOnDateLocked(date roster.Date) ([]*roster.DutyAssignment, error) {
	var result []*roster.DutyAssignment
	for _, d := range m.duties {
		if d.Date.Equal(date) {
			c := *d
			result = append(result, &c)
		}
	}
	sortDuties(result)
	return result, nil
}

func sortDuties(duties []*roster.DutyAssignment) {
	sort.Slice(duties, func(i, j int) bool {
		if !duties[i].Date.Equal(duties[j].Date) {
			return duties[i].Date.Before(duties[j].Date)
		}
		if duties[i].Shift != duties[j].Shift {
			return shiftRank[duties[i].Shift] < shiftRank[duties[j].Shift]
		}
		return duties[i].ID < duties[j].ID
	})
}

func (m *Memory) ExchangeDuties(_ context.Context, a, b roster.DutyID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exchangeDutiesLocked(a, b)
}

func (m *Memory) exchangeDutiesLocked(a, b roster.DutyID) error {
	da, ok := m.duties[a]
	if !ok {
		return fmt.Errorf("duty %s: %w", a, roster.ErrNotFound)
	}
	db, ok := m.duties[b]
	if !ok {
		return fmt.Errorf("duty %s: %w", b, roster.ErrNotFound)
	}
	da.DoctorID, db.DoctorID = db.DoctorID, da.DoctorID
	return nil
}

// =============================================================================
// LEAVES
// =============================================================================

func (m *Memory) GetLeave(_ context.Context, id roster.LeaveRequestID) (*roster.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLeaveLocked(id)
}

func (m *Memory) getLeaveLocked(id roster.LeaveRequestID) (*roster.LeaveRequest, error) {
	r, ok := m.leaves[id]
	if !ok {
		return nil, fmt.Errorf("leave request %s: %w", id, roster.ErrNotFound)
	}
	c := *r
	return &c, nil
}

func (m *Memory) PutLeave(_ context.Context, r *roster.LeaveRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putLeaveLocked(r)
}

func (m *Memory) putLeaveLocked(r *roster.LeaveRequest) error {
	c := *r
	m.leaves[r.ID] = &c
	return nil
}

func (m *Memory) ListLeavesForDoctor(_ context.Context, id roster.DoctorID) ([]*roster.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLeavesForDoctorLocked(id)
}

func (m *Memory) listLeavesForDoctorLocked(id roster.DoctorID) ([]*roster.LeaveRequest, error) {
	var result []*roster.LeaveRequest
	for _, r := range m.leaves {
		if r.DoctorID == id {
			c := *r
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (m *Memory) ListLeavesOverlapping(_ context.Context, from, to roster.Date, statuses []roster.LeaveStatus) ([]*roster.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLeavesOverlappingLocked(from, to, statuses)
}

func (m *Memory) listLeavesOverlappingLocked(from, to roster.Date, statuses []roster.LeaveStatus) ([]*roster.LeaveRequest, error) {
	wanted := make(map[roster.LeaveStatus]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}
	var result []*roster.LeaveRequest
	for _, r := range m.leaves {
		if len(statuses) > 0 && !wanted[r.Status] {
			continue
		}
		if r.Overlaps(from, to) {
			c := *r
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m *Memory) GetBalance(_ context.Context, id roster.DoctorID) (*roster.LeaveBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getBalanceLocked(id)
}

func (m *Memory) getBalanceLocked(id roster.DoctorID) (*roster.LeaveBalance, error) {
	b, ok := m.balances[id]
	if !ok {
		return nil, fmt.Errorf("balance for doctor %s: %w", id, roster.ErrNotFound)
	}
	c := *b
	return &c, nil
}

func (m *Memory) PutBalance(_ context.Context, b *roster.LeaveBalance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putBalanceLocked(b)
}

func (m *Memory) putBalanceLocked(b *roster.LeaveBalance) error {
	c := *b
	m.balances[b.DoctorID] = &c
	return nil
}

// =============================================================================
// SWAPS
// =============================================================================

func (m *Memory) GetSwap(_ context.Context, id roster.SwapRequestID) (*roster.SwapRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getSwapLocked(id)
}

func (m *Memory) getSwapLocked(id roster.SwapRequestID) (*roster.SwapRequest, error) {
	r, ok := m.swaps[id]
	if !ok {
		return nil, fmt.Errorf("swap request %s: %w", id, roster.ErrNotFound)
	}
	c := *r
	return &c, nil
}

func (m *Memory) PutSwap(_ context.Context, r *roster.SwapRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putSwapLocked(r)
}

func (m *Memory) putSwapLocked(r *roster.SwapRequest) error {
	c := *r
	m.swaps[r.ID] = &c
	return nil
}

func (m *Memory) ListSwapsInvolving(_ context.Context, id roster.DoctorID) ([]*roster.SwapRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listSwapsInvolvingLocked(id)
}

func (m *Memory) listSwapsInvolvingLocked(id roster.DoctorID) ([]*roster.SwapRequest, error) {
	var result []*roster.SwapRequest
	for _, r := range m.swaps {
		if r.Involves(id) {
			c := *r
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (m *Memory) ListSwapsByStatus(_ context.Context, status roster.SwapStatus) ([]*roster.SwapRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listSwapsByStatusLocked(status)
}

func (m *Memory) listSwapsByStatusLocked(status roster.SwapStatus) ([]*roster.SwapRequest, error) {
	var result []*roster.SwapRequest
	for _, r := range m.swaps {
		if r.Status == status {
			c := *r
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m *Memory) ListPendingSwapsTouching(_ context.Context, id roster.DutyID) ([]*roster.SwapRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listPendingSwapsTouchingLocked(id)
}

func (m *Memory) listPendingSwapsTouchingLocked(id roster.DutyID) ([]*roster.SwapRequest, error) {
	var result []*roster.SwapRequest
	for _, r := range m.swaps {
		if r.Status == roster.SwapPending && r.Touches(id) {
			c := *r
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// =============================================================================
// DOCTORS
// =============================================================================

func (m *Memory) GetDoctor(_ context.Context, id roster.DoctorID) (*roster.Doctor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getDoctorLocked(id)
}

func (m *Memory) getDoctorLocked(id roster.DoctorID) (*roster.Doctor, error) {
	d, ok := m.doctors[id]
	if !ok {
		return nil, fmt.Errorf("doctor %s: %w", id, roster.ErrNotFound)
	}
	c := *d
	return &c, nil
}

func (m *Memory) PutDoctor(_ context.Context, d *roster.Doctor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putDoctorLocked(d)
}

func (m *Memory) putDoctorLocked(d *roster.Doctor) error {
	c := *d
	m.doctors[d.ID] = &c
	return nil
}

func (m *Memory) ListDoctors(_ context.Context) ([]*roster.Doctor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listDoctorsLocked()
}

func (m *Memory) listDoctorsLocked() ([]*roster.Doctor, error) {
	result := make([]*roster.Doctor, 0, len(m.doctors))
	for _, d := range m.doctors {
		c := *d
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// =============================================================================
// AUDIT
// =============================================================================

func (m *Memory) AppendAudit(_ context.Context, e roster.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendAuditLocked(e)
}

func (m *Memory) appendAuditLocked(e roster.AuditEntry) error {
	m.audits = append(m.audits, e)
	return nil
}

func (m *Memory) QueryAudit(_ context.Context, f roster.AuditFilter) ([]roster.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queryAuditLocked(f)
}

func (m *Memory) queryAuditLocked(f roster.AuditFilter) ([]roster.AuditEntry, error) {
	wanted := make(map[roster.AuditAction]bool, len(f.Actions))
	for _, a := range f.Actions {
		wanted[a] = true
	}
	var result []roster.AuditEntry
	for _, e := range m.audits {
		if f.ActorID != "" && e.ActorID != f.ActorID {
			continue
		}
		if f.SubjectID != "" && e.SubjectID != f.SubjectID {
			continue
		}
		if len(f.Actions) > 0 && !wanted[e.Action] {
			continue
		}
		if !f.From.IsZero() && e.At.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && e.At.After(f.To) {
			continue
		}
		result = append(result, e)
	}
	return result, nil
}
