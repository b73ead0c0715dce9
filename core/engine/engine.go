// Package engine exposes the scheduling service surface: solve and
// commit, compliance audits, conflict scans and the swap lifecycle.
// Every mutating operation takes an explicit actor for the audit trail,
// and observers (bus, metrics, notifier) hear about state strictly
// after it has been committed.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openrota/openrota/core/audit"
	"github.com/openrota/openrota/core/compliance"
	"github.com/openrota/openrota/core/conflict"
	"github.com/openrota/openrota/core/constraint"
	"github.com/openrota/openrota/core/events"
	"github.com/openrota/openrota/core/logger"
	"github.com/openrota/openrota/core/metrics"
	"github.com/openrota/openrota/core/model"
	"github.com/openrota/openrota/core/notify"
	"github.com/openrota/openrota/core/schedctx"
	"github.com/openrota/openrota/core/schedule"
	"github.com/openrota/openrota/core/solver"
	"github.com/openrota/openrota/core/swap"
	"github.com/openrota/openrota/internal/eventbus"
	"github.com/openrota/openrota/internal/rangelock"
)

// Deps bundles the engine's collaborators. Nil observers (Bus, Sink,
// Trail, Notifier, Log) are replaced with no-ops.
type Deps struct {
	Store       schedule.Store
	Validator   *compliance.Validator
	Acks        *compliance.AckRegistry
	Constraints *constraint.Manager
	Solver      solver.Solver
	Swaps       *swap.Manager
	Locks       *rangelock.Manager
	Bus         eventbus.EventBus
	Trail       audit.Log
	Sink        metrics.Sink
	Notifier    notify.Notifier
	Log         logger.Logger

	// LockTimeout bounds the wait for the commit range lock.
	LockTimeout time.Duration
}

// Engine is the scheduling service facade.
type Engine struct {
	store       schedule.Store
	validator   *compliance.Validator
	acks        *compliance.AckRegistry
	constraints *constraint.Manager
	solver      solver.Solver
	swaps       *swap.Manager
	detector    *conflict.Detector
	resolver    *conflict.Resolver
	locks       *rangelock.Manager
	bus         eventbus.EventBus
	trail       audit.Log
	sink        metrics.Sink
	notifier    notify.Notifier
	log         logger.Logger
	lockTimeout time.Duration
	clock       func() time.Time
}

func New(d Deps) (*Engine, error) {
	if d.Store == nil {
		return nil, fmt.Errorf("engine: store is required")
	}
	if d.Solver == nil {
		return nil, fmt.Errorf("engine: solver is required")
	}
	if d.Constraints == nil {
		return nil, fmt.Errorf("engine: constraint manager is required")
	}
	if d.Locks == nil {
		d.Locks = rangelock.New()
	}
	if d.Trail == nil {
		d.Trail = audit.NopLog{}
	}
	if d.Sink == nil {
		d.Sink = metrics.NopSink{}
	}
	if d.Notifier == nil {
		d.Notifier = notify.NopNotifier{}
	}
	if d.Acks == nil {
		d.Acks = compliance.NewAckRegistry()
	}
	if d.LockTimeout <= 0 {
		d.LockTimeout = 5 * time.Second
	}
	if d.Swaps == nil {
		d.Swaps = swap.NewManager(d.Store, d.Validator, d.Acks, d.Locks, d.Bus, d.Trail, d.Log, swap.Config{})
	}
	return &Engine{
		store:       d.Store,
		validator:   d.Validator,
		acks:        d.Acks,
		constraints: d.Constraints,
		solver:      d.Solver,
		swaps:       d.Swaps,
		detector:    conflict.NewDetector(d.Validator, d.Log),
		resolver:    conflict.NewResolver(d.Constraints, d.Log),
		locks:       d.Locks,
		bus:         d.Bus,
		trail:       d.Trail,
		sink:        d.Sink,
		notifier:    d.Notifier,
		log:         d.Log,
		lockTimeout: d.LockTimeout,
		clock:       time.Now,
	}, nil
}

// Solve builds a planning snapshot from the input, runs the configured
// solver and commits the result. A result carrying unresolved hard
// violations is recorded but not committed.
func (e *Engine) Solve(ctx context.Context, in schedctx.Input, actor string, timeout time.Duration) (*solver.Result, model.ScheduleRun, error) {
	sctx, err := schedctx.Build(in)
	if err != nil {
		return nil, model.ScheduleRun{}, err
	}
	blocks := sctx.Blocks()
	if len(blocks) == 0 {
		return nil, model.ScheduleRun{}, fmt.Errorf("solve: no blocks in input")
	}
	start, end := blocks[0].Date, blocks[len(blocks)-1].Date

	lease, err := e.locks.Acquire(ctx, start, end, "solve:"+actor, e.lockTimeout)
	if err != nil {
		return nil, model.ScheduleRun{}, err
	}
	defer lease.Release()

	run := model.ScheduleRun{
		ID:        uuid.New(),
		Actor:     actor,
		Status:    model.RunPending,
		Start:     start,
		End:       end,
		StartedAt: e.clock(),
	}

	res, solveErr := e.solver.Solve(ctx, sctx, e.constraints, timeout)
	run.FinishedAt = e.clock()
	if solveErr != nil {
		var infeasible *solver.InfeasibleError
		if errors.As(solveErr, &infeasible) {
			run.Status = model.RunInfeasible
		} else {
			run.Status = model.RunFailed
		}
		run.Algorithm = e.solver.Name()
		_ = e.store.SaveRun(ctx, run)
		e.audit(ctx, audit.KindSolve, actor, run.ID.String(), map[string]any{"status": run.Status.String(), "error": solveErr.Error()})
		return nil, run, solveErr
	}

	run.Algorithm = res.Algorithm
	run.Score = res.Score
	for _, v := range res.Violations {
		if v.Severity == model.SeverityHard {
			run.HardViolations++
		} else {
			run.SoftViolations++
		}
		if v.Acknowledged {
			run.Acknowledged++
		}
	}
	switch {
	case !res.Success:
		run.Status = model.RunFailed
	case res.Complete:
		run.Status = model.RunSucceeded
	default:
		run.Status = model.RunIncomplete
	}

	if res.Success {
		rows := make([]model.Assignment, 0, len(res.Assignments)+len(res.CallAssignments))
		for _, a := range append(append([]model.Assignment(nil), res.Assignments...), res.CallAssignments...) {
			a.RunID = run.ID
			rows = append(rows, a)
		}
		if err := e.store.SaveBlocks(ctx, blocks); err != nil {
			return nil, run, err
		}
		// A re-solve supersedes whatever was committed for the range:
		// prior active rows are voided in the same transaction, keeping
		// at most one active row per person and block. Locked rows were
		// part of the solver's input and survive.
		prior, err := e.store.AssignmentsInRange(ctx, start, end, false)
		if err != nil {
			return nil, run, err
		}
		locked := make(map[uuid.UUID]bool, len(in.Locked))
		for _, l := range in.Locked {
			locked[l.ID] = true
		}
		var void []schedule.VoidRequest
		now := e.clock()
		for _, a := range prior {
			if locked[a.ID] {
				continue
			}
			void = append(void, schedule.VoidRequest{ID: a.ID, Reason: "superseded by run " + run.ID.String(), At: now})
		}
		if err := e.store.ReplaceRows(ctx, void, rows); err != nil {
			return nil, run, err
		}
	}
	if err := e.store.SaveRun(ctx, run); err != nil {
		return nil, run, err
	}

	e.audit(ctx, audit.KindCommit, actor, run.ID.String(), map[string]any{
		"status": run.Status.String(), "algorithm": run.Algorithm, "assignments": len(res.Assignments),
	})
	_ = e.sink.RecordSolve(metrics.SolveEvent{
		RunID: run.ID.String(), Algorithm: res.Algorithm,
		Success: res.Success, Complete: res.Complete,
		Assignments: len(res.Assignments), Score: res.Score,
		Duration: res.Duration, Time: run.FinishedAt,
	})
	e.publish(events.SolveEvent{
		RunID: run.ID, Algorithm: res.Algorithm, Success: res.Success, Complete: res.Complete,
		Assignments: len(res.Assignments), Score: res.Score, Duration: res.Duration,
	})
	if res.Success {
		e.notify(ctx, notify.Notification{
			Kind:    notify.KindSchedulePublished,
			Subject: "schedule published",
			Body: fmt.Sprintf("%s solver committed %d assignments for %s to %s",
				res.Algorithm, len(res.Assignments), start.Format("2006-01-02"), end.Format("2006-01-02")),
			Entity: run.ID.String(),
			At:     run.FinishedAt,
		})
	}
	return res, run, nil
}

// Validate audits the committed schedule over the snapshot's range and
// applies recorded acknowledgments.
func (e *Engine) Validate(ctx context.Context, sctx *schedctx.Context) (compliance.Report, error) {
	if e.validator == nil {
		return compliance.Report{Valid: true}, nil
	}
	blocks := sctx.Blocks()
	if len(blocks) == 0 {
		return compliance.Report{Valid: true}, nil
	}
	start, end := blocks[0].Date, blocks[len(blocks)-1].Date
	committed, err := e.store.AssignmentsInRange(ctx, start, end, false)
	if err != nil {
		return compliance.Report{}, err
	}
	report := e.validator.Validate(committed, sctx)
	remaining := e.acks.Apply(&report)

	hard, soft, acked := 0, 0, 0
	for _, v := range report.Violations {
		if v.Severity == model.SeverityHard {
			hard++
		} else {
			soft++
		}
		if v.Acknowledged {
			acked++
		}
	}
	e.audit(ctx, audit.KindValidate, "", "", map[string]any{
		"valid": report.Valid, "hard": hard, "soft": soft, "unacknowledged_hard": remaining,
	})
	_ = e.sink.RecordValidation(metrics.ValidationEvent{
		Valid: report.Valid, HardViolations: hard, SoftViolations: soft,
		Acknowledged: acked, CoverageRate: report.CoverageRate, Time: e.clock(),
	})
	e.publish(events.ValidationEvent{
		Start: start, End: end, Valid: report.Valid, Violations: len(report.Violations),
	})
	return report, nil
}

// ValidateFor audits one person's committed schedule. The full cohort
// is still evaluated (supervision and equity rules need it); only the
// violations touching the person are reported.
func (e *Engine) ValidateFor(ctx context.Context, sctx *schedctx.Context, personID uuid.UUID) (compliance.Report, error) {
	report, err := e.Validate(ctx, sctx)
	if err != nil {
		return compliance.Report{}, err
	}
	scoped := compliance.Report{Valid: true, CoverageRate: report.CoverageRate}
	for _, v := range report.Violations {
		if v.PersonID != personID {
			continue
		}
		scoped.Violations = append(scoped.Violations, v)
		scoped.TotalViolations++
		if v.Severity == model.SeverityHard && !v.Acknowledged {
			scoped.Valid = false
		}
	}
	e.publish(events.ValidationEvent{
		PersonID: personID, Valid: scoped.Valid, Violations: len(scoped.Violations),
	})
	return scoped, nil
}

// Acknowledge records that an actor reviewed and accepted a violation.
func (e *Engine) Acknowledge(ctx context.Context, v model.Violation, actor, reason string) {
	e.acks.Acknowledge(v, actor, reason, e.clock())
	e.audit(ctx, audit.KindAck, actor, compliance.Key(v), map[string]any{"reason": reason, "kind": string(v.Kind)})
}

// DetectConflicts scans the committed rows in the snapshot's range.
func (e *Engine) DetectConflicts(ctx context.Context, sctx *schedctx.Context) ([]conflict.Conflict, error) {
	blocks := sctx.Blocks()
	if len(blocks) == 0 {
		return nil, nil
	}
	start, end := blocks[0].Date, blocks[len(blocks)-1].Date
	committed, err := e.store.AssignmentsInRange(ctx, start, end, false)
	if err != nil {
		return nil, err
	}
	conflicts := e.detector.Detect(ctx, sctx, committed)

	byKind := make(map[string]int)
	for _, c := range conflicts {
		byKind[c.Kind.String()]++
	}
	e.audit(ctx, audit.KindConflict, "", "", map[string]any{"conflicts": len(conflicts)})
	_ = e.sink.RecordConflicts(metrics.ConflictEvent{Conflicts: len(conflicts), ByKind: byKind, Time: e.clock()})
	e.publish(events.ConflictEvent{Start: start, End: end, Conflicts: len(conflicts)})
	return conflicts, nil
}

// ProposeResolutions returns ranked remediation candidates for the
// given conflicts. Nothing is applied.
func (e *Engine) ProposeResolutions(ctx context.Context, sctx *schedctx.Context, conflicts []conflict.Conflict) ([]conflict.Resolution, error) {
	blocks := sctx.Blocks()
	if len(blocks) == 0 || len(conflicts) == 0 {
		return nil, nil
	}
	start, end := blocks[0].Date, blocks[len(blocks)-1].Date
	committed, err := e.store.AssignmentsInRange(ctx, start, end, false)
	if err != nil {
		return nil, err
	}
	return e.resolver.Propose(ctx, sctx, committed, conflicts), nil
}

// RequestSwap submits a new swap proposal.
func (e *Engine) RequestSwap(ctx context.Context, req swap.Request) (model.SwapRecord, error) {
	rec, err := e.swaps.Submit(ctx, req)
	if err != nil {
		return rec, err
	}
	_ = e.sink.RecordSwap(metrics.SwapEvent{SwapID: rec.ID.String(), Action: "requested", Outcome: "ok", Time: e.clock()})
	e.notify(ctx, notify.Notification{
		Kind: notify.KindSwapRequested, Recipient: approversRecipient(rec),
		Subject: "swap requested", Body: rec.Reason, Entity: rec.ID.String(), At: rec.RequestedAt,
	})
	return rec, nil
}

// ApproveSwap records one approver's affirmative response.
func (e *Engine) ApproveSwap(ctx context.Context, id uuid.UUID, approver, comment string) (model.SwapRecord, error) {
	rec, err := e.swaps.Approve(ctx, id, approver, comment)
	if err != nil {
		return rec, err
	}
	_ = e.sink.RecordSwap(metrics.SwapEvent{SwapID: id.String(), Action: "approved", Outcome: "ok", Time: e.clock()})
	if rec.State == model.SwapApproved {
		e.notify(ctx, notify.Notification{
			Kind: notify.KindSwapDecision, Recipient: rec.RequestedBy,
			Subject: "swap approved", Entity: rec.ID.String(), At: e.clock(),
		})
	}
	return rec, nil
}

// RejectSwap closes a pending swap with a refusal.
func (e *Engine) RejectSwap(ctx context.Context, id uuid.UUID, approver, comment string) (model.SwapRecord, error) {
	rec, err := e.swaps.Reject(ctx, id, approver, comment)
	if err != nil {
		return rec, err
	}
	_ = e.sink.RecordSwap(metrics.SwapEvent{SwapID: id.String(), Action: "rejected", Outcome: "ok", Time: e.clock()})
	e.notify(ctx, notify.Notification{
		Kind: notify.KindSwapDecision, Recipient: rec.RequestedBy,
		Subject: "swap rejected", Body: comment, Entity: rec.ID.String(), At: e.clock(),
	})
	return rec, nil
}

// CancelSwap withdraws a swap before execution.
func (e *Engine) CancelSwap(ctx context.Context, id uuid.UUID, actor string) (model.SwapRecord, error) {
	rec, err := e.swaps.Cancel(ctx, id, actor)
	if err != nil {
		return rec, err
	}
	_ = e.sink.RecordSwap(metrics.SwapEvent{SwapID: id.String(), Action: "cancelled", Outcome: "ok", Time: e.clock()})
	return rec, nil
}

// ExecuteSwap applies an approved swap. The snapshot supplies person and
// block context for re-validation.
func (e *Engine) ExecuteSwap(ctx context.Context, id uuid.UUID, actor string, sctx *schedctx.Context) (model.SwapRecord, error) {
	rec, err := e.swaps.Execute(ctx, id, actor, sctx)
	if err != nil {
		outcome := "error"
		var aborted *swap.ExecutionAbortedError
		if errors.As(err, &aborted) {
			outcome = "aborted"
		}
		_ = e.sink.RecordSwap(metrics.SwapEvent{SwapID: id.String(), Action: "executed", Outcome: outcome, Time: e.clock()})
		return rec, err
	}
	_ = e.sink.RecordSwap(metrics.SwapEvent{SwapID: id.String(), Action: "executed", Outcome: "ok", Time: e.clock()})
	e.notify(ctx, notify.Notification{
		Kind: notify.KindSwapExecuted, Recipient: rec.RequestedBy,
		Subject: "swap executed", Entity: rec.ID.String(), At: rec.ExecutedAt,
	})
	return rec, nil
}

// RollbackSwap restores the pre-swap rows within the rollback window.
// The snapshot supplies person and block context for re-validating the
// restored schedule against rows committed since the swap.
func (e *Engine) RollbackSwap(ctx context.Context, id uuid.UUID, actor string, sctx *schedctx.Context) (model.SwapRecord, error) {
	rec, err := e.swaps.Rollback(ctx, id, actor, sctx)
	if err != nil {
		outcome := "error"
		var blocked *swap.DependencyConflictError
		if errors.As(err, &blocked) {
			outcome = "aborted"
		}
		_ = e.sink.RecordSwap(metrics.SwapEvent{SwapID: id.String(), Action: "rolled_back", Outcome: outcome, Time: e.clock()})
		return rec, err
	}
	_ = e.sink.RecordSwap(metrics.SwapEvent{SwapID: id.String(), Action: "rolled_back", Outcome: "ok", Time: e.clock()})
	e.notify(ctx, notify.Notification{
		Kind: notify.KindSwapRolledBack, Recipient: rec.RequestedBy,
		Subject: "swap rolled back", Entity: rec.ID.String(), At: rec.RolledBackAt,
	})
	return rec, nil
}

func (e *Engine) audit(ctx context.Context, kind, actor, entity string, detail map[string]any) {
	if err := e.trail.Append(ctx, audit.EventRecord{
		Timestamp: e.clock(), Kind: kind, Actor: actor, Entity: entity, Detail: detail,
	}); err != nil && e.log != nil {
		e.log.Errorf("audit append failed: %v", err)
	}
}

func (e *Engine) publish(ev eventbus.Event) {
	if e.bus != nil {
		e.bus.Publish(ev)
	}
}

func (e *Engine) notify(ctx context.Context, n notify.Notification) {
	if err := e.notifier.Notify(ctx, n); err != nil && e.log != nil {
		e.log.Warnf("notification %s failed: %v", n.Kind, err)
	}
}

func approversRecipient(rec model.SwapRecord) string {
	if len(rec.Approvers) == 0 {
		return ""
	}
	return rec.Approvers[0]
}
