package workflow

import (
	"fmt"
	"time"

	"residency-training-server/internal/models"
)

// SubmitInput carries the resident-provided data for completing an activity.
type SubmitInput struct {
	Comentarios      string
	FechaRealizacion *time.Time
	Surgery          *models.SurgeryFields
}

// SubmitActivity moves an entry from pendiente to completado. Surgery-type
// activities must carry the surgery fields; all other types must not.
func SubmitActivity(entry *models.ActivityProgress, in SubmitInput, now time.Time) error {
	if entry.Estado != models.ActivityPendiente {
		return invalidTransition(string(entry.Estado), string(models.ActivityCompletado))
	}
	if entry.Type == models.ActivitySurgery {
		if in.Surgery == nil || (in.Surgery.Cirugia == "" && in.Surgery.OtraCirugia == "") {
			return fmt.Errorf("%w: surgery activity requires surgery fields", ErrInvalidTransition)
		}
	}

	entry.Estado = models.ActivityCompletado
	entry.ComentariosResidente = in.Comentarios
	if in.FechaRealizacion != nil {
		entry.FechaRealizacion = in.FechaRealizacion
	} else {
		t := now
		entry.FechaRealizacion = &t
	}
	if in.Surgery != nil {
		entry.SurgeryFields = *in.Surgery
	}
	return nil
}

// ValidateActivity moves an entry from completado to validado. The validating
// supervisor's signature is mandatory.
func ValidateActivity(entry *models.ActivityProgress, comentarios, firma string, now time.Time) error {
	if entry.Estado != models.ActivityCompletado {
		return invalidTransition(string(entry.Estado), string(models.ActivityValidado))
	}
	if firma == "" {
		return fmt.Errorf("%w: validation requires a signature", ErrInvalidTransition)
	}

	entry.Estado = models.ActivityValidado
	entry.ComentariosTutor = comentarios
	entry.FirmaDigital = firma
	t := now
	entry.FechaValidacion = &t
	return nil
}

// RejectActivity moves an entry from completado to rechazado. Rejection is
// terminal for the submission; only an admin override can reset the entry.
func RejectActivity(entry *models.ActivityProgress, reason string, now time.Time) error {
	if entry.Estado != models.ActivityCompletado {
		return invalidTransition(string(entry.Estado), string(models.ActivityRechazado))
	}
	if reason == "" {
		return fmt.Errorf("%w: rejection requires a reason", ErrInvalidTransition)
	}

	entry.Estado = models.ActivityRechazado
	entry.ComentariosRechazo = reason
	t := now
	entry.FechaRechazo = &t
	return nil
}

// ForceSetActivity is the admin override: it sets the status directly,
// bypassing transition guards, and stamps or clears the matching dates so the
// entry is consistent with its new status.
func ForceSetActivity(entry *models.ActivityProgress, status models.ActivityStatus, now time.Time) {
	entry.Estado = status
	t := now
	switch status {
	case models.ActivityPendiente:
		entry.FechaRealizacion = nil
		entry.FechaValidacion = nil
		entry.FechaRechazo = nil
		entry.FirmaDigital = ""
		entry.ComentariosRechazo = ""
	case models.ActivityCompletado:
		if entry.FechaRealizacion == nil {
			entry.FechaRealizacion = &t
		}
		entry.FechaValidacion = nil
		entry.FechaRechazo = nil
	case models.ActivityValidado:
		if entry.FechaValidacion == nil {
			entry.FechaValidacion = &t
		}
		entry.FechaRechazo = nil
	case models.ActivityRechazado:
		if entry.FechaRechazo == nil {
			entry.FechaRechazo = &t
		}
	}
}
