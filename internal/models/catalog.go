package models

// ActivityType represents the kind of work an activity involves
type ActivityType string

const (
	ActivityTheory      ActivityType = "theory"
	ActivityPractice    ActivityType = "practice"
	ActivityEvaluation  ActivityType = "evaluation"
	ActivityObservation ActivityType = "observation"
	ActivitySurgery     ActivityType = "surgery"
)

// Phase is an ordered, numbered container of activities, scoped to one
// program type. Its identity is immutable once activities exist against it.
type Phase struct {
	BaseModel
	Name    string      `gorm:"size:150;not null" json:"name"`
	Number  int         `gorm:"not null;index" json:"number"`
	Program ProgramType `gorm:"size:20;default:'Residents'" json:"program"`

	Activities []Activity `gorm:"foreignKey:PhaseID" json:"activities,omitempty"`
}

// Activity is a catalog entry belonging to exactly one phase.
type Activity struct {
	BaseModel
	PhaseID string       `gorm:"size:36;index;not null" json:"phaseId"`
	Name    string       `gorm:"size:255;not null" json:"name"`
	Type    ActivityType `gorm:"size:20;not null" json:"type"`
	Order   int          `gorm:"column:activity_order;not null" json:"order"`

	RequiresValidation              bool `gorm:"default:true" json:"requiresValidation"`
	RequiresAttachment              bool `gorm:"default:false" json:"requiresAttachment"`
	RequiresSignature               bool `gorm:"default:false" json:"requiresSignature"`
	RequiresParticipationPercentage bool `gorm:"default:false" json:"requiresParticipationPercentage"`

	Phase *Phase `gorm:"foreignKey:PhaseID" json:"-"`
}
