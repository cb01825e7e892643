package workflow

import (
	"context"
	"time"
)

// Event types emitted by the coordinator.
const (
	EventActivitySubmitted = "actividad.completada"
	EventActivityValidated = "actividad.validada"
	EventActivityRejected  = "actividad.rechazada"
	EventPhaseChanged      = "fase.estado"
	EventProgressCreated   = "progreso.inicializado"
)

// Event is the domain event handed to the notification dispatcher after a
// command commits. Dispatch is best-effort: a delivery failure never rolls
// back the committed transition.
type Event struct {
	Type             string    `json:"type"`
	ProgressRecordID string    `json:"progressRecordId"`
	ActivityIndex    *int      `json:"activityIndex,omitempty"`
	ActorID          string    `json:"actorId"`
	Timestamp        time.Time `json:"timestamp"`
}

// Dispatcher delivers domain events to the external notification side
// channel. Implementations live in internal/notify.
type Dispatcher interface {
	Emit(ctx context.Context, event Event) error
}

// Clock abstracts time so commands are deterministic under test.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
