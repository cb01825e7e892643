package models

import (
	"time"
)

// ActivityStatus is the status of a single activity-progress entry.
type ActivityStatus string

const (
	ActivityPendiente  ActivityStatus = "pendiente"
	ActivityCompletado ActivityStatus = "completado"
	ActivityRechazado  ActivityStatus = "rechazado"
	ActivityValidado   ActivityStatus = "validado"
)

// PhaseStatus is the aggregate status of a progress record.
type PhaseStatus string

const (
	PhaseBloqueada  PhaseStatus = "bloqueada"
	PhaseEnProgreso PhaseStatus = "en progreso"
	PhaseCompletado PhaseStatus = "completado"
	PhaseValidado   PhaseStatus = "validado"
)

// SurgeryFields carries the extra data required for surgery-type activities.
type SurgeryFields struct {
	Cirugia                 string `json:"cirugia,omitempty"`
	OtraCirugia             string `json:"otraCirugia,omitempty"`
	NombreCirujano          string `json:"nombreCirujano,omitempty"`
	PorcentajeParticipacion int    `json:"porcentajeParticipacion,omitempty"`
}

// ActivityProgress is one embedded entry of a progress record. Entries are
// identified by their index within the record; the index is stable for the
// record's lifetime. The catalog activity's type and flags are snapshotted at
// provisioning time so guard evaluation never depends on later catalog edits.
type ActivityProgress struct {
	ActivityID         string       `json:"actividadId"`
	Name               string       `json:"nombre"`
	Type               ActivityType `json:"tipo"`
	RequiresValidation bool         `json:"requiereValidacion"`
	RequiresAttachment bool         `json:"requiereAdjunto"`
	RequiresSignature  bool         `json:"requiereFirma"`

	Estado               ActivityStatus `json:"estado"`
	ComentariosResidente string         `json:"comentariosResidente,omitempty"`
	ComentariosTutor     string         `json:"comentariosTutor,omitempty"`
	ComentariosRechazo   string         `json:"comentariosRechazo,omitempty"`
	FirmaDigital         string         `json:"firmaDigital,omitempty"`

	FechaRealizacion *time.Time `json:"fechaRealizacion,omitempty"`
	FechaValidacion  *time.Time `json:"fechaValidacion,omitempty"`
	FechaRechazo     *time.Time `json:"fechaRechazo,omitempty"`

	SurgeryFields
}

// ProgressRecord is the unit of persistence for a resident's progress through
// one phase. The activities list is embedded as a JSON column; entries are
// addressed by integer index and never identified outside their parent.
// Version backs the optimistic compare-and-swap used to serialize concurrent
// commands against the same record.
type ProgressRecord struct {
	BaseModel
	ResidentID string `gorm:"size:36;index:idx_resident_phase,unique" json:"residentId"`
	PhaseID    string `gorm:"size:36;index:idx_resident_phase,unique" json:"faseId"`

	EstadoGeneral PhaseStatus        `gorm:"size:20;default:'en progreso'" json:"estadoGeneral"`
	Activities    []ActivityProgress `gorm:"type:json;serializer:json" json:"actividades"`
	FechaFin      *time.Time         `json:"fechaFin,omitempty"`
	ValidadoPor   string             `gorm:"size:36" json:"validadoPor,omitempty"`

	Version int64 `gorm:"not null;default:0" json:"-"`

	Resident *User  `gorm:"foreignKey:ResidentID" json:"-"`
	Phase    *Phase `gorm:"foreignKey:PhaseID" json:"-"`
}

// ActivityAttachment represents a file attached to one activity of a progress
// record, stored as binary data in the database.
type ActivityAttachment struct {
	BaseModel
	ProgressRecordID string `json:"progressRecordId" gorm:"not null;type:varchar(36);index"`
	ActivityIndex    int    `json:"activityIndex" gorm:"not null"`
	FileName         string `json:"fileName" gorm:"not null"`
	FileType         string `json:"fileType" gorm:"not null"`
	FileData         []byte `json:"-" gorm:"type:longblob;not null"` // File content as binary data (longblob for MySQL)
}
