package models

import (
	"golang.org/x/crypto/bcrypt"
)

// Role enum
type Role string

const (
	RoleAdmin       Role = "administrator"
	RoleResident    Role = "resident"
	RoleTutor       Role = "tutor"
	RoleParticipant Role = "participant"
	RoleProfessor   Role = "professor"
	RoleCSM         Role = "csm" // zone supervisor
)

// ProgramType separates the two training tracks a user can belong to.
type ProgramType string

const (
	ProgramResidents ProgramType = "Residents"
	ProgramSocieties ProgramType = "Societies"
)

// SpecialtyAll marks a tutor who supervises every specialty at their hospital.
const SpecialtyAll = "ALL"

// IsTrainee reports whether the role owns progress records.
func (r Role) IsTrainee() bool {
	return r == RoleResident || r == RoleParticipant
}

// IsSupervisor reports whether the role may validate or reject activities.
func (r Role) IsSupervisor() bool {
	return r == RoleTutor || r == RoleCSM || r == RoleProfessor || r == RoleAdmin
}

// User represents a user in the system
type User struct {
	BaseModel
	Email     string `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Password  string `gorm:"size:255;not null" json:"-"` // Never send password in JSON
	FirstName string `gorm:"size:100" json:"firstName"`
	LastName  string `gorm:"size:100" json:"lastName"`
	Role      Role   `gorm:"size:20;default:'resident'" json:"role"`

	// Organizational affiliation. ZoneID is denormalized from the hospital so
	// the scope resolver never needs a join on the hot path.
	HospitalID string      `gorm:"size:36;index" json:"hospitalId,omitempty"`
	ZoneID     string      `gorm:"size:36;index" json:"zoneId,omitempty"`
	Specialty  string      `gorm:"size:100" json:"specialty,omitempty"`
	SocietyID  string      `gorm:"size:36;index" json:"societyId,omitempty"`
	TutorID    string      `gorm:"size:36;index" json:"tutorId,omitempty"` // assigned supervisor
	Program    ProgramType `gorm:"size:20;default:'Residents'" json:"program"`

	// Relations (not always preloaded)
	Hospital      *Hospital       `gorm:"foreignKey:HospitalID" json:"-"`
	Society       *Society        `gorm:"foreignKey:SocietyID" json:"-"`
	RefreshTokens []RefreshToken  `gorm:"foreignKey:UserID" json:"-"`
	Progress      []ProgressRecord `gorm:"foreignKey:ResidentID" json:"-"`
}

// UserSanitized represents the user data that is safe to send in API responses.
type UserSanitized struct {
	ID         string      `json:"id"`
	Email      string      `json:"email"`
	FirstName  string      `json:"firstName"`
	LastName   string      `json:"lastName"`
	Role       Role        `json:"role"`
	HospitalID string      `json:"hospitalId,omitempty"`
	ZoneID     string      `json:"zoneId,omitempty"`
	Specialty  string      `json:"specialty,omitempty"`
	SocietyID  string      `json:"societyId,omitempty"`
	TutorID    string      `json:"tutorId,omitempty"`
	Program    ProgramType `json:"program"`
}

// SetPassword hashes a password and sets it on the user
func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashedPassword)
	return nil
}

// CheckPassword compares a password with the user's hashed password
func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
	return err == nil
}

// Sanitize creates a UserSanitized struct from a User model, excluding sensitive data.
func (u *User) Sanitize() UserSanitized {
	return UserSanitized{
		ID:         u.ID,
		Email:      u.Email,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Role:       u.Role,
		HospitalID: u.HospitalID,
		ZoneID:     u.ZoneID,
		Specialty:  u.Specialty,
		SocietyID:  u.SocietyID,
		TutorID:    u.TutorID,
		Program:    u.Program,
	}
}
