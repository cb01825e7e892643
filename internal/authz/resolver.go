// Package authz holds the authorization scope resolver: a pure predicate
// deciding whether an actor's role and organizational affiliation permit
// acting on another user's progress record. It is consulted before every
// read or mutation of a record not owned by the caller, and it never narrows
// data; it allows or denies the whole operation.
package authz

import (
	"residency-training-server/internal/models"
)

// Action is a kind of operation on a progress record.
type Action string

const (
	ActionRead     Action = "read"
	ActionSubmit   Action = "submit"
	ActionValidate Action = "validate"
	ActionReject   Action = "reject"
	ActionSetPhase Action = "set-phase"
)

// Actor is the caller's authorization-relevant identity, resolved from the
// user directory. IDs are opaque; the resolver performs no lookups itself.
type Actor struct {
	ID         string
	Role       models.Role
	HospitalID string
	ZoneID     string
	Specialty  string
	SocietyID  string
}

// Owner is the record owner's authorization-relevant identity.
type Owner struct {
	ID         string
	HospitalID string
	ZoneID     string
	Specialty  string
	SocietyID  string
}

// scopeRule decides whether the actor's affiliation covers the owner.
type scopeRule func(actor Actor, owner Owner) bool

// The permission matrix, one entry per role. Roles absent from the table are
// denied outright.
var scopeRules = map[models.Role]scopeRule{
	models.RoleAdmin: func(Actor, Owner) bool {
		return true
	},
	models.RoleResident: func(actor Actor, owner Owner) bool {
		return actor.ID == owner.ID
	},
	models.RoleParticipant: func(actor Actor, owner Owner) bool {
		return actor.ID == owner.ID
	},
	models.RoleTutor: func(actor Actor, owner Owner) bool {
		if actor.HospitalID == "" || actor.HospitalID != owner.HospitalID {
			return false
		}
		return actor.Specialty == models.SpecialtyAll || actor.Specialty == owner.Specialty
	},
	models.RoleCSM: func(actor Actor, owner Owner) bool {
		return actor.ZoneID != "" && actor.ZoneID == owner.ZoneID
	},
	models.RoleProfessor: func(actor Actor, owner Owner) bool {
		return owner.SocietyID != "" && actor.SocietyID == owner.SocietyID
	},
}

// CanAct reports whether the actor may perform the action on the owner's
// record. Mutating validation actions additionally require a supervisor
// role: trainees can never validate their own or others' activities.
func CanAct(actor Actor, owner Owner, action Action) bool {
	rule, ok := scopeRules[actor.Role]
	if !ok || !rule(actor, owner) {
		return false
	}
	switch action {
	case ActionValidate, ActionReject, ActionSetPhase:
		return actor.Role.IsSupervisor()
	case ActionSubmit:
		// Submissions come from the record owner; an administrator may
		// submit on a trainee's behalf.
		return actor.ID == owner.ID || actor.Role == models.RoleAdmin
	default:
		return true
	}
}
