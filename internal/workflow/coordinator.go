// Package workflow implements the progress and validation engine: the
// per-activity and per-phase state machines plus the coordinator that turns
// them into atomic commands. Commands load the record, consult the
// authorization scope resolver, apply the transition, recompute the phase
// aggregate, persist with optimistic concurrency and finally emit a domain
// event for the notification side channel.
package workflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"residency-training-server/internal/authz"
	"residency-training-server/internal/models"
)

// maxAttempts bounds the retry-on-conflict loop for a single command.
const maxAttempts = 3

// Coordinator orchestrates workflow commands against one progress record at
// a time. It holds no mutable state of its own; all persistence goes through
// the injected stores.
type Coordinator struct {
	records ProgressStore
	users   UserDirectory
	catalog CatalogStore
	events  Dispatcher
	log     *zap.Logger
	clock   Clock
}

// NewCoordinator wires a coordinator. A nil logger or clock falls back to a
// no-op logger and the system clock.
func NewCoordinator(records ProgressStore, users UserDirectory, catalog CatalogStore, events Dispatcher, log *zap.Logger, clock Clock) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Coordinator{
		records: records,
		users:   users,
		catalog: catalog,
		events:  events,
		log:     log,
		clock:   clock,
	}
}

// zoneOf returns the user's zone, falling back to the hospital's zone when
// the denormalized field is empty.
func zoneOf(u *models.User) string {
	if u.ZoneID != "" {
		return u.ZoneID
	}
	if u.Hospital != nil {
		return u.Hospital.ZoneID
	}
	return ""
}

func actorContext(u *models.User) authz.Actor {
	return authz.Actor{
		ID:         u.ID,
		Role:       u.Role,
		HospitalID: u.HospitalID,
		ZoneID:     zoneOf(u),
		Specialty:  u.Specialty,
		SocietyID:  u.SocietyID,
	}
}

func ownerContext(u *models.User) authz.Owner {
	return authz.Owner{
		ID:         u.ID,
		HospitalID: u.HospitalID,
		ZoneID:     zoneOf(u),
		Specialty:  u.Specialty,
		SocietyID:  u.SocietyID,
	}
}

// mutate runs one guarded command against a record: resolve actor and owner,
// authorize, apply fn, persist with compare-and-swap and retry the whole
// read-modify-write cycle on conflict. All guards run before any persistence,
// so a failed command leaves no partial state behind.
func (co *Coordinator) mutate(ctx context.Context, actorID, recordID string, action authz.Action, fn func(actor *models.User, rec *models.ProgressRecord) error) (*models.ProgressRecord, error) {
	actor, err := co.users.Resolve(ctx, actorID)
	if err != nil {
		return nil, err
	}

	var rec *models.ProgressRecord
	for attempt := 1; ; attempt++ {
		rec, err = co.records.Get(ctx, recordID)
		if err != nil {
			return nil, err
		}
		owner, err := co.users.Resolve(ctx, rec.ResidentID)
		if err != nil {
			return nil, err
		}
		if !authz.CanAct(actorContext(actor), ownerContext(owner), action) {
			return nil, fmt.Errorf("%w: role %s may not %s record %s", ErrForbidden, actor.Role, action, recordID)
		}
		if err := fn(actor, rec); err != nil {
			return nil, err
		}
		err = co.records.Update(ctx, rec)
		if err == nil {
			return rec, nil
		}
		if !Retryable(err) || attempt >= maxAttempts {
			return nil, err
		}
		co.log.Debug("conflict on progress record, retrying",
			zap.String("record", recordID), zap.Int("attempt", attempt))
	}
}

// emit delivers a domain event. Dispatch failures are logged and swallowed:
// the committed transition is the source of truth.
func (co *Coordinator) emit(ctx context.Context, eventType, recordID, actorID string, activityIndex *int) {
	if co.events == nil {
		return
	}
	event := Event{
		Type:             eventType,
		ProgressRecordID: recordID,
		ActivityIndex:    activityIndex,
		ActorID:          actorID,
		Timestamp:        co.clock.Now(),
	}
	if err := co.events.Emit(ctx, event); err != nil {
		co.log.Warn("notification dispatch failed",
			zap.String("event", eventType), zap.String("record", recordID), zap.Error(err))
	}
}

func entryAt(rec *models.ProgressRecord, index int) (*models.ActivityProgress, error) {
	if index < 0 || index >= len(rec.Activities) {
		return nil, fmt.Errorf("%w: activity index %d out of range", ErrNotFound, index)
	}
	return &rec.Activities[index], nil
}

// SubmitActivity is the resident command completing one activity.
func (co *Coordinator) SubmitActivity(ctx context.Context, actorID, recordID string, index int, in SubmitInput) (*models.ProgressRecord, error) {
	rec, err := co.mutate(ctx, actorID, recordID, authz.ActionSubmit, func(_ *models.User, rec *models.ProgressRecord) error {
		entry, err := entryAt(rec, index)
		if err != nil {
			return err
		}
		if err := SubmitActivity(entry, in, co.clock.Now()); err != nil {
			return err
		}
		RecomputePhase(rec, co.clock.Now())
		return nil
	})
	observeCommand("submit_activity", err)
	if err != nil {
		return nil, err
	}
	co.log.Info("activity submitted",
		zap.String("record", recordID), zap.Int("index", index), zap.String("actor", actorID))
	co.emit(ctx, EventActivitySubmitted, recordID, actorID, &index)
	return rec, nil
}

// ValidateActivity is the supervisor command confirming an activity.
func (co *Coordinator) ValidateActivity(ctx context.Context, actorID, recordID string, index int, comentarios, firma string) (*models.ProgressRecord, error) {
	rec, err := co.mutate(ctx, actorID, recordID, authz.ActionValidate, func(_ *models.User, rec *models.ProgressRecord) error {
		entry, err := entryAt(rec, index)
		if err != nil {
			return err
		}
		if err := ValidateActivity(entry, comentarios, firma, co.clock.Now()); err != nil {
			return err
		}
		RecomputePhase(rec, co.clock.Now())
		return nil
	})
	observeCommand("validate_activity", err)
	if err != nil {
		return nil, err
	}
	co.log.Info("activity validated",
		zap.String("record", recordID), zap.Int("index", index), zap.String("actor", actorID))
	co.emit(ctx, EventActivityValidated, recordID, actorID, &index)
	return rec, nil
}

// RejectActivity is the supervisor command rejecting an activity.
func (co *Coordinator) RejectActivity(ctx context.Context, actorID, recordID string, index int, reason string) (*models.ProgressRecord, error) {
	rec, err := co.mutate(ctx, actorID, recordID, authz.ActionReject, func(_ *models.User, rec *models.ProgressRecord) error {
		entry, err := entryAt(rec, index)
		if err != nil {
			return err
		}
		if err := RejectActivity(entry, reason, co.clock.Now()); err != nil {
			return err
		}
		RecomputePhase(rec, co.clock.Now())
		return nil
	})
	observeCommand("reject_activity", err)
	if err != nil {
		return nil, err
	}
	co.log.Info("activity rejected",
		zap.String("record", recordID), zap.Int("index", index), zap.String("actor", actorID))
	co.emit(ctx, EventActivityRejected, recordID, actorID, &index)
	return rec, nil
}

// SetPhaseStatus is the supervisor-driven phase transition. Forward
// transitions re-check the aggregate guards against live activity states.
func (co *Coordinator) SetPhaseStatus(ctx context.Context, actorID, recordID string, status models.PhaseStatus) (*models.ProgressRecord, error) {
	rec, err := co.mutate(ctx, actorID, recordID, authz.ActionSetPhase, func(actor *models.User, rec *models.ProgressRecord) error {
		return TransitionPhase(rec, status, actor.ID, co.clock.Now())
	})
	observeCommand("set_phase", err)
	if err != nil {
		return nil, err
	}
	co.log.Info("phase status set",
		zap.String("record", recordID), zap.String("status", string(status)), zap.String("actor", actorID))
	co.emit(ctx, EventPhaseChanged, recordID, actorID, nil)
	return rec, nil
}

// ForceSetPhaseStatus is the admin override: it does not re-check the
// aggregate guards. Only administrators may call it.
func (co *Coordinator) ForceSetPhaseStatus(ctx context.Context, actorID, recordID string, status models.PhaseStatus) (*models.ProgressRecord, error) {
	rec, err := co.mutate(ctx, actorID, recordID, authz.ActionSetPhase, func(actor *models.User, rec *models.ProgressRecord) error {
		if actor.Role != models.RoleAdmin {
			return fmt.Errorf("%w: force-set requires administrator role", ErrForbidden)
		}
		ForceSetPhase(rec, status, actor.ID, co.clock.Now())
		return nil
	})
	observeCommand("force_set_phase", err)
	if err != nil {
		return nil, err
	}
	co.log.Info("phase status force-set",
		zap.String("record", recordID), zap.String("status", string(status)), zap.String("actor", actorID))
	co.emit(ctx, EventPhaseChanged, recordID, actorID, nil)
	return rec, nil
}

// ForceSetActivityStatus is the admin override for one activity entry,
// bypassing the normal transition guards. The phase aggregate is recomputed
// afterwards; a previously validated record is demoted first so the
// aggregate invariants keep holding.
func (co *Coordinator) ForceSetActivityStatus(ctx context.Context, actorID, recordID string, index int, status models.ActivityStatus) (*models.ProgressRecord, error) {
	rec, err := co.mutate(ctx, actorID, recordID, authz.ActionSetPhase, func(actor *models.User, rec *models.ProgressRecord) error {
		if actor.Role != models.RoleAdmin {
			return fmt.Errorf("%w: force-set requires administrator role", ErrForbidden)
		}
		entry, err := entryAt(rec, index)
		if err != nil {
			return err
		}
		ForceSetActivity(entry, status, co.clock.Now())
		if rec.EstadoGeneral == models.PhaseValidado && !allValidated(rec.Activities) {
			rec.EstadoGeneral = models.PhaseEnProgreso
			rec.FechaFin = nil
			rec.ValidadoPor = ""
		}
		RecomputePhase(rec, co.clock.Now())
		return nil
	})
	observeCommand("force_set_activity", err)
	if err != nil {
		return nil, err
	}
	co.log.Info("activity status force-set",
		zap.String("record", recordID), zap.Int("index", index), zap.String("status", string(status)), zap.String("actor", actorID))
	co.emit(ctx, EventPhaseChanged, recordID, actorID, &index)
	return rec, nil
}

// InitializeProgress bulk-provisions one progress record per catalog phase
// matching the trainee's program type. Entries for activities that do not
// require validation are created validated; the lowest-numbered phase starts
// en progreso, the rest bloqueada, and each record is recomputed once so an
// all-validated phase lands on completado immediately.
func (co *Coordinator) InitializeProgress(ctx context.Context, actorID, residentID string) ([]models.ProgressRecord, error) {
	records, err := co.initializeProgress(ctx, actorID, residentID)
	observeCommand("initialize_progress", err)
	if err != nil {
		return nil, err
	}
	for i := range records {
		co.emit(ctx, EventProgressCreated, records[i].ID, actorID, nil)
	}
	return records, nil
}

func (co *Coordinator) initializeProgress(ctx context.Context, actorID, residentID string) ([]models.ProgressRecord, error) {
	actor, err := co.users.Resolve(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !actor.Role.IsSupervisor() {
		return nil, fmt.Errorf("%w: provisioning requires a supervisor role", ErrForbidden)
	}
	resident, err := co.users.Resolve(ctx, residentID)
	if err != nil {
		return nil, err
	}
	if !resident.Role.IsTrainee() {
		return nil, fmt.Errorf("%w: user %s does not own progress records", ErrPreconditionFailed, residentID)
	}

	count, err := co.records.CountByResident(ctx, residentID)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, fmt.Errorf("%w: user %s", ErrAlreadyInitialized, residentID)
	}

	phases, err := co.catalog.PhasesForProgram(ctx, resident.Program)
	if err != nil {
		return nil, err
	}

	now := co.clock.Now()
	records := make([]models.ProgressRecord, 0, len(phases))
	for i, phase := range phases {
		entries := make([]models.ActivityProgress, 0, len(phase.Activities))
		for _, act := range phase.Activities {
			entry := models.ActivityProgress{
				ActivityID:         act.ID,
				Name:               act.Name,
				Type:               act.Type,
				RequiresValidation: act.RequiresValidation,
				RequiresAttachment: act.RequiresAttachment,
				RequiresSignature:  act.RequiresSignature,
				Estado:             models.ActivityPendiente,
			}
			if !act.RequiresValidation {
				entry.Estado = models.ActivityValidado
			}
			entries = append(entries, entry)
		}

		rec := models.ProgressRecord{
			ResidentID:    residentID,
			PhaseID:       phase.ID,
			EstadoGeneral: models.PhaseBloqueada,
			Activities:    entries,
		}
		if i == 0 {
			rec.EstadoGeneral = models.PhaseEnProgreso
		}
		RecomputePhase(&rec, now)
		records = append(records, rec)
	}

	if err := co.records.CreateBatch(ctx, records); err != nil {
		return nil, err
	}
	co.log.Info("progress provisioned",
		zap.String("resident", residentID), zap.Int("phases", len(records)), zap.String("actor", actorID))
	return records, nil
}

// ListForResident returns all progress records owned by a resident,
// scope-checked against the caller.
func (co *Coordinator) ListForResident(ctx context.Context, actorID, residentID string) ([]models.ProgressRecord, error) {
	actor, err := co.users.Resolve(ctx, actorID)
	if err != nil {
		return nil, err
	}
	owner, err := co.users.Resolve(ctx, residentID)
	if err != nil {
		return nil, err
	}
	if !authz.CanAct(actorContext(actor), ownerContext(owner), authz.ActionRead) {
		return nil, fmt.Errorf("%w: role %s may not read records of %s", ErrForbidden, actor.Role, residentID)
	}
	return co.records.ListByResident(ctx, residentID)
}

// PendingValidation is one flattened activity entry awaiting validation.
type PendingValidation struct {
	ProgressRecordID string                  `json:"progresoId"`
	ResidentID       string                  `json:"residenteId"`
	PhaseID          string                  `json:"faseId"`
	ActivityIndex    int                     `json:"indice"`
	Activity         models.ActivityProgress `json:"actividad"`
}

// PendingValidations lists every completado entry inside the caller's
// authorization window. Trainees have no validation window.
func (co *Coordinator) PendingValidations(ctx context.Context, actorID string) ([]PendingValidation, error) {
	actor, err := co.users.Resolve(ctx, actorID)
	if err != nil {
		return nil, err
	}
	filter, err := scopeFor(actor)
	if err != nil {
		return nil, err
	}
	records, err := co.records.ListPending(ctx, filter)
	if err != nil {
		return nil, err
	}

	pending := []PendingValidation{}
	for i := range records {
		rec := &records[i]
		for idx, entry := range rec.Activities {
			if entry.Estado != models.ActivityCompletado {
				continue
			}
			pending = append(pending, PendingValidation{
				ProgressRecordID: rec.ID,
				ResidentID:       rec.ResidentID,
				PhaseID:          rec.PhaseID,
				ActivityIndex:    idx,
				Activity:         entry,
			})
		}
	}
	return pending, nil
}

// scopeFor translates a supervisor's affiliation into a listing filter.
func scopeFor(actor *models.User) (ScopeFilter, error) {
	switch actor.Role {
	case models.RoleAdmin:
		return ScopeFilter{}, nil
	case models.RoleTutor:
		f := ScopeFilter{HospitalID: actor.HospitalID}
		if actor.Specialty != models.SpecialtyAll {
			f.Specialty = actor.Specialty
		}
		return f, nil
	case models.RoleCSM:
		return ScopeFilter{ZoneID: zoneOf(actor)}, nil
	case models.RoleProfessor:
		return ScopeFilter{SocietyID: actor.SocietyID}, nil
	default:
		return ScopeFilter{}, fmt.Errorf("%w: role %s has no validation window", ErrForbidden, actor.Role)
	}
}
