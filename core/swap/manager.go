package swap

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openrota/openrota/core/audit"
	"github.com/openrota/openrota/core/compliance"
	"github.com/openrota/openrota/core/events"
	"github.com/openrota/openrota/core/logger"
	"github.com/openrota/openrota/core/model"
	"github.com/openrota/openrota/core/schedule"
	"github.com/openrota/openrota/internal/eventbus"
	"github.com/openrota/openrota/internal/rangelock"
)

// validationHorizonDays widens the re-validation window around the
// swapped blocks so trailing duty and rest windows see enough history.
const validationHorizonDays = 28

// Request describes a new swap proposal. TargetID may be uuid.Nil for a
// giveaway that leaves the slots open for later filling.
type Request struct {
	RequesterID uuid.UUID
	TargetID    uuid.UUID
	BlockIDs    []uuid.UUID
	RequestedBy string
	Reason      string
	Approvers   []string
}

// Manager drives the swap lifecycle against the committed store.
type Manager struct {
	store     schedule.Store
	validator *compliance.Validator
	acks      *compliance.AckRegistry
	locks     *rangelock.Manager
	bus       eventbus.EventBus
	trail     audit.Log
	log       logger.Logger
	cfg       Config
	clock     func() time.Time
}

func NewManager(store schedule.Store, validator *compliance.Validator, acks *compliance.AckRegistry,
	locks *rangelock.Manager, bus eventbus.EventBus, trail audit.Log, log logger.Logger, cfg Config) *Manager {
	cfg.SetDefaults()
	return &Manager{
		store:     store,
		validator: validator,
		acks:      acks,
		locks:     locks,
		bus:       bus,
		trail:     trail,
		log:       log,
		cfg:       cfg,
		clock:     time.Now,
	}
}

// Submit validates and persists a new PENDING swap request.
func (m *Manager) Submit(ctx context.Context, req Request) (model.SwapRecord, error) {
	if len(req.BlockIDs) == 0 {
		return model.SwapRecord{}, fmt.Errorf("swap request: no blocks named")
	}
	if len(req.Approvers) == 0 {
		return model.SwapRecord{}, fmt.Errorf("swap request: no approvers named")
	}
	held, err := m.store.AssignmentsFor(ctx, req.RequesterID, false)
	if err != nil {
		return model.SwapRecord{}, err
	}
	heldBlocks := make(map[uuid.UUID]bool, len(held))
	for _, a := range held {
		heldBlocks[a.BlockID] = true
	}
	for _, blockID := range req.BlockIDs {
		if !heldBlocks[blockID] {
			return model.SwapRecord{}, fmt.Errorf("swap request: requester %s holds no active assignment on block %s", req.RequesterID, blockID)
		}
	}

	rec := model.SwapRecord{
		ID:          uuid.New(),
		State:       model.SwapPending,
		RequestedBy: req.RequestedBy,
		Reason:      req.Reason,
		RequesterID: req.RequesterID,
		TargetID:    req.TargetID,
		BlockIDs:    append([]uuid.UUID(nil), req.BlockIDs...),
		Approvers:   append([]string(nil), req.Approvers...),
		RequestedAt: m.clock(),
	}
	if err := m.store.SaveSwap(ctx, rec); err != nil {
		return model.SwapRecord{}, err
	}
	m.emit(ctx, rec, "requested", req.RequestedBy, nil)
	return rec, nil
}

// Approve records one approver's affirmative response. The record moves
// to APPROVED once every named approver has responded affirmatively.
func (m *Manager) Approve(ctx context.Context, id uuid.UUID, approver, comment string) (model.SwapRecord, error) {
	rec, err := m.store.Swap(ctx, id)
	if err != nil {
		return model.SwapRecord{}, err
	}
	if rec.State != model.SwapPending {
		return model.SwapRecord{}, fmt.Errorf("swap %s: cannot approve in state %s", id, rec.State)
	}
	if !named(rec.Approvers, approver) {
		return model.SwapRecord{}, fmt.Errorf("swap %s: %s is not a named approver", id, approver)
	}
	rec.Approvals = append(rec.Approvals, model.Approval{
		Approver: approver, Approved: true, Comment: comment, Timestamp: m.clock(),
	})
	if rec.FullyApproved() {
		if err := rec.Transition(model.SwapApproved, m.clock()); err != nil {
			return model.SwapRecord{}, err
		}
	}
	if err := m.store.SaveSwap(ctx, rec); err != nil {
		return model.SwapRecord{}, err
	}
	m.emit(ctx, rec, "approved", approver, nil)
	return rec, nil
}

// Reject closes a pending swap with a negative response from any named
// approver.
func (m *Manager) Reject(ctx context.Context, id uuid.UUID, approver, comment string) (model.SwapRecord, error) {
	rec, err := m.store.Swap(ctx, id)
	if err != nil {
		return model.SwapRecord{}, err
	}
	if !named(rec.Approvers, approver) {
		return model.SwapRecord{}, fmt.Errorf("swap %s: %s is not a named approver", id, approver)
	}
	rec.Approvals = append(rec.Approvals, model.Approval{
		Approver: approver, Approved: false, Comment: comment, Timestamp: m.clock(),
	})
	if err := rec.Transition(model.SwapRejected, m.clock()); err != nil {
		return model.SwapRecord{}, err
	}
	if err := m.store.SaveSwap(ctx, rec); err != nil {
		return model.SwapRecord{}, err
	}
	m.emit(ctx, rec, "rejected", approver, nil)
	return rec, nil
}

// Cancel withdraws a swap before execution.
func (m *Manager) Cancel(ctx context.Context, id uuid.UUID, actor string) (model.SwapRecord, error) {
	rec, err := m.store.Swap(ctx, id)
	if err != nil {
		return model.SwapRecord{}, err
	}
	if err := rec.Transition(model.SwapCancelled, m.clock()); err != nil {
		return model.SwapRecord{}, err
	}
	if err := m.store.SaveSwap(ctx, rec); err != nil {
		return model.SwapRecord{}, err
	}
	m.emit(ctx, rec, "cancelled", actor, nil)
	return rec, nil
}

// Execute applies an approved swap to the committed store. The affected
// date range is locked for the duration; the resulting schedule is
// re-validated first and execution aborts without any mutation when it
// would carry unacknowledged hard violations.
func (m *Manager) Execute(ctx context.Context, id uuid.UUID, actor string, view compliance.View) (model.SwapRecord, error) {
	rec, err := m.store.Swap(ctx, id)
	if err != nil {
		return model.SwapRecord{}, err
	}
	if !rec.State.CanTransition(model.SwapExecuted) {
		return model.SwapRecord{}, fmt.Errorf("swap %s: illegal transition %s -> %s", id, rec.State, model.SwapExecuted)
	}
	if !rec.FullyApproved() {
		return model.SwapRecord{}, fmt.Errorf("swap %s: not fully approved", id)
	}

	start, end, err := m.blockSpan(ctx, rec.BlockIDs)
	if err != nil {
		return model.SwapRecord{}, err
	}
	lease, err := m.locks.Acquire(ctx, start, end, "swap:"+id.String(), m.cfg.LockTimeout)
	if err != nil {
		return model.SwapRecord{}, err
	}
	defer lease.Release()

	affected, err := m.affectedRows(ctx, rec, start, end)
	if err != nil {
		return model.SwapRecord{}, err
	}
	if len(affected) == 0 {
		return model.SwapRecord{}, fmt.Errorf("swap %s: no active assignments to swap", id)
	}

	now := m.clock()
	replacement := m.replacementRows(rec, affected, now)

	if err := m.revalidate(ctx, rec, affected, replacement, start, end, view); err != nil {
		m.emit(ctx, rec, "executed", actor, err)
		return model.SwapRecord{}, err
	}

	void := make([]schedule.VoidRequest, 0, len(affected))
	for _, a := range affected {
		void = append(void, schedule.VoidRequest{ID: a.ID, Reason: "swap " + id.String(), At: now})
	}
	if err := m.store.ReplaceRows(ctx, void, replacement); err != nil {
		return model.SwapRecord{}, err
	}

	rec.Snapshot = affected
	if err := rec.Transition(model.SwapExecuted, now); err != nil {
		return model.SwapRecord{}, err
	}
	if err := m.store.SaveSwap(ctx, rec); err != nil {
		return model.SwapRecord{}, err
	}
	m.emit(ctx, rec, "executed", actor, nil)
	return rec, nil
}

// Rollback restores the exact pre-swap rows. It is allowed only within
// the configured window after execution, and refuses when rows
// committed since the swap now occupy the restored slots, or when the
// restored schedule would carry unacknowledged hard violations against
// rows committed after the swap.
func (m *Manager) Rollback(ctx context.Context, id uuid.UUID, actor string, view compliance.View) (model.SwapRecord, error) {
	rec, err := m.store.Swap(ctx, id)
	if err != nil {
		return model.SwapRecord{}, err
	}
	if !rec.State.CanTransition(model.SwapRolledBack) {
		return model.SwapRecord{}, fmt.Errorf("swap %s: illegal transition %s -> %s", id, rec.State, model.SwapRolledBack)
	}
	now := m.clock()
	if now.Sub(rec.ExecutedAt) > m.cfg.RollbackWindow {
		return model.SwapRecord{}, &RollbackWindowError{SwapID: id, ExecutedAt: rec.ExecutedAt, Window: m.cfg.RollbackWindow}
	}

	start, end, err := m.blockSpan(ctx, rec.BlockIDs)
	if err != nil {
		return model.SwapRecord{}, err
	}
	lease, err := m.locks.Acquire(ctx, start, end, "rollback:"+id.String(), m.cfg.LockTimeout)
	if err != nil {
		return model.SwapRecord{}, err
	}
	defer lease.Release()

	active, err := m.store.AssignmentsInRange(ctx, start, end, false)
	if err != nil {
		return model.SwapRecord{}, err
	}
	created := make([]model.Assignment, 0, len(active))
	occupied := make(map[string]uuid.UUID)
	for _, a := range active {
		if a.SwapID == rec.ID {
			created = append(created, a)
		} else {
			occupied[a.SlotKey()] = a.ID
		}
	}
	var blockedSlots []string
	for _, snap := range rec.Snapshot {
		if _, taken := occupied[snap.SlotKey()]; taken {
			blockedSlots = append(blockedSlots, snap.SlotKey())
		}
	}
	if len(blockedSlots) > 0 {
		return model.SwapRecord{}, &DependencyConflictError{SwapID: id, Slots: blockedSlots}
	}

	// Slot occupancy alone does not prove the revert is safe: rows
	// committed since the swap may clash with the restored ones through
	// duty-hour or rest rules. Re-validate the post-rollback schedule
	// the same way execution does.
	hard, err := m.hardRemaining(ctx, created, rec.Snapshot, start, end, view)
	if err != nil {
		return model.SwapRecord{}, err
	}
	if len(hard) > 0 {
		err := &DependencyConflictError{SwapID: id, Violations: hard}
		m.emit(ctx, rec, "rolled_back", actor, err)
		return model.SwapRecord{}, err
	}

	void := make([]schedule.VoidRequest, 0, len(created))
	for _, a := range created {
		void = append(void, schedule.VoidRequest{ID: a.ID, Reason: "rollback swap " + id.String(), At: now})
	}
	if err := m.store.ReplaceRows(ctx, void, rec.Snapshot); err != nil {
		return model.SwapRecord{}, err
	}

	if err := rec.Transition(model.SwapRolledBack, now); err != nil {
		return model.SwapRecord{}, err
	}
	if err := m.store.SaveSwap(ctx, rec); err != nil {
		return model.SwapRecord{}, err
	}
	m.emit(ctx, rec, "rolled_back", actor, nil)
	return rec, nil
}

// affectedRows returns the active rows the swap will rewrite: both
// sides' assignments on the named blocks.
func (m *Manager) affectedRows(ctx context.Context, rec model.SwapRecord, start, end time.Time) ([]model.Assignment, error) {
	active, err := m.store.AssignmentsInRange(ctx, start, end, false)
	if err != nil {
		return nil, err
	}
	wanted := make(map[uuid.UUID]bool, len(rec.BlockIDs))
	for _, id := range rec.BlockIDs {
		wanted[id] = true
	}
	var out []model.Assignment
	for _, a := range active {
		if !wanted[a.BlockID] {
			continue
		}
		if a.PersonID == rec.RequesterID || (rec.TargetID != uuid.Nil && a.PersonID == rec.TargetID) {
			out = append(out, a)
		}
	}
	return out, nil
}

// replacementRows builds the post-swap rows: each side takes the other's
// assignments. A giveaway produces no replacements and simply voids the
// requester's rows.
func (m *Manager) replacementRows(rec model.SwapRecord, affected []model.Assignment, now time.Time) []model.Assignment {
	if rec.TargetID == uuid.Nil {
		return nil
	}
	out := make([]model.Assignment, 0, len(affected))
	for _, a := range affected {
		next := a
		next.ID = uuid.New()
		if a.PersonID == rec.RequesterID {
			next.PersonID = rec.TargetID
		} else {
			next.PersonID = rec.RequesterID
		}
		next.RunID = uuid.Nil
		next.SwapID = rec.ID
		next.Score = 0
		next.Confidence = 0
		next.Alternatives = nil
		next.CreatedAt = now
		next.Seal()
		out = append(out, next)
	}
	return out
}

// revalidate runs the compliance rules over the schedule as it would
// look after the swap and aborts on unacknowledged hard violations.
func (m *Manager) revalidate(ctx context.Context, rec model.SwapRecord, affected, replacement []model.Assignment, start, end time.Time, view compliance.View) error {
	hard, err := m.hardRemaining(ctx, affected, replacement, start, end, view)
	if err != nil {
		return err
	}
	if len(hard) > 0 {
		return &ExecutionAbortedError{SwapID: rec.ID, Violations: hard}
	}
	return nil
}

// hardRemaining validates the hypothetical schedule obtained by dropping
// the given rows and adding their replacements, over a window widened by
// the validation horizon, and returns the unacknowledged hard
// violations that remain.
func (m *Manager) hardRemaining(ctx context.Context, drop, add []model.Assignment, start, end time.Time, view compliance.View) ([]model.Violation, error) {
	if m.validator == nil {
		return nil, nil
	}
	wide, err := m.store.AssignmentsInRange(ctx,
		start.AddDate(0, 0, -validationHorizonDays), end.AddDate(0, 0, validationHorizonDays), false)
	if err != nil {
		return nil, err
	}
	dropped := make(map[uuid.UUID]bool, len(drop))
	for _, a := range drop {
		dropped[a.ID] = true
	}
	hypothetical := make([]model.Assignment, 0, len(wide)+len(add))
	for _, a := range wide {
		if !dropped[a.ID] {
			hypothetical = append(hypothetical, a)
		}
	}
	hypothetical = append(hypothetical, add...)

	report := m.validator.Validate(hypothetical, view)
	remaining := len(report.Violations)
	if m.acks != nil {
		remaining = m.acks.Apply(&report)
	} else {
		remaining = model.CountUnacknowledgedHard(report.Violations)
	}
	if remaining == 0 {
		return nil, nil
	}
	var hard []model.Violation
	for _, v := range report.Violations {
		if v.Severity == model.SeverityHard && !v.Acknowledged {
			hard = append(hard, v)
		}
	}
	return hard, nil
}

// blockSpan resolves the calendar range covered by the named blocks.
func (m *Manager) blockSpan(ctx context.Context, blockIDs []uuid.UUID) (time.Time, time.Time, error) {
	var start, end time.Time
	for _, id := range blockIDs {
		b, err := m.store.Block(ctx, id)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		if start.IsZero() || b.Date.Before(start) {
			start = b.Date
		}
		if end.IsZero() || b.Date.After(end) {
			end = b.Date
		}
	}
	return start, end, nil
}

func (m *Manager) emit(ctx context.Context, rec model.SwapRecord, action, actor string, opErr error) {
	if m.trail != nil {
		detail := map[string]any{"state": rec.State.String()}
		if opErr != nil {
			detail["error"] = opErr.Error()
		}
		if err := m.trail.Append(ctx, audit.EventRecord{
			Timestamp: m.clock(),
			Kind:      audit.KindSwap,
			Actor:     actor,
			Entity:    rec.ID.String(),
			Detail:    detail,
		}); err != nil && m.log != nil {
			m.log.Errorf("audit append failed for swap %s: %v", rec.ID, err)
		}
	}
	if m.bus != nil {
		m.bus.Publish(events.SwapEvent{SwapID: rec.ID, Action: action, Actor: actor, Err: opErr})
	}
}

func named(approvers []string, who string) bool {
	for _, a := range approvers {
		if a == who {
			return true
		}
	}
	return false
}
