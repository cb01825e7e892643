package workflow

import (
	"fmt"
	"time"

	"residency-training-server/internal/models"
)

// allComplete reports whether every entry is completado or validado.
func allComplete(entries []models.ActivityProgress) bool {
	for _, e := range entries {
		if e.Estado != models.ActivityCompletado && e.Estado != models.ActivityValidado {
			return false
		}
	}
	return true
}

// allValidated reports whether every entry is validado.
func allValidated(entries []models.ActivityProgress) bool {
	for _, e := range entries {
		if e.Estado != models.ActivityValidado {
			return false
		}
	}
	return true
}

// RecomputePhase derives the aggregate status from the live activity states
// after an activity transition. It promotes bloqueada/en progreso to
// completado once every activity is complete, and demotes completado back to
// en progreso when one no longer is (admin resets, rejections). It never
// touches a validado record and never auto-promotes to validado: validation
// is always an explicit human action.
func RecomputePhase(record *models.ProgressRecord, now time.Time) {
	if record.EstadoGeneral == models.PhaseValidado {
		return
	}
	if allComplete(record.Activities) {
		if record.EstadoGeneral != models.PhaseCompletado {
			record.EstadoGeneral = models.PhaseCompletado
			if record.FechaFin == nil {
				t := now
				record.FechaFin = &t
			}
		}
		return
	}
	if record.EstadoGeneral == models.PhaseCompletado {
		record.EstadoGeneral = models.PhaseEnProgreso
		record.FechaFin = nil
	}
}

// TransitionPhase applies a supervisor-driven phase transition, re-checking
// the aggregate guards against the live activity states.
//
//   - completado requires every activity completado or validado
//   - validado requires every activity validado, and records the validator
//   - en progreso / bloqueada are the re-open escape hatch: always allowed,
//     clearing fechaFin and validadoPor if previously set
func TransitionPhase(record *models.ProgressRecord, status models.PhaseStatus, validatorID string, now time.Time) error {
	switch status {
	case models.PhaseCompletado:
		if !allComplete(record.Activities) {
			return fmt.Errorf("%w: not every activity is complete", ErrPreconditionFailed)
		}
		record.EstadoGeneral = models.PhaseCompletado
		if record.FechaFin == nil {
			t := now
			record.FechaFin = &t
		}
	case models.PhaseValidado:
		if !allValidated(record.Activities) {
			return fmt.Errorf("%w: not every activity is validated", ErrPreconditionFailed)
		}
		record.EstadoGeneral = models.PhaseValidado
		if record.FechaFin == nil {
			t := now
			record.FechaFin = &t
		}
		record.ValidadoPor = validatorID
	case models.PhaseEnProgreso, models.PhaseBloqueada:
		record.EstadoGeneral = status
		record.FechaFin = nil
		record.ValidadoPor = ""
	default:
		return fmt.Errorf("%w: unknown phase status %q", ErrPreconditionFailed, status)
	}
	return nil
}

// ForceSetPhase is the admin override. Unlike TransitionPhase it does not
// re-check the aggregate guards for completado/validado; the re-open states
// still clear fechaFin and validadoPor.
func ForceSetPhase(record *models.ProgressRecord, status models.PhaseStatus, validatorID string, now time.Time) {
	record.EstadoGeneral = status
	switch status {
	case models.PhaseCompletado:
		if record.FechaFin == nil {
			t := now
			record.FechaFin = &t
		}
	case models.PhaseValidado:
		if record.FechaFin == nil {
			t := now
			record.FechaFin = &t
		}
		record.ValidadoPor = validatorID
	case models.PhaseEnProgreso, models.PhaseBloqueada:
		record.FechaFin = nil
		record.ValidadoPor = ""
	}
}
