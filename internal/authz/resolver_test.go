package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"residency-training-server/internal/models"
)

func TestCanAct_ScopeRules(t *testing.T) {
	owner := Owner{
		ID:         "res-1",
		HospitalID: "h-1",
		ZoneID:     "z-1",
		Specialty:  "Urology",
		SocietyID:  "",
	}
	societyOwner := Owner{
		ID:        "part-1",
		SocietyID: "s-1",
	}

	tests := []struct {
		name    string
		actor   Actor
		owner   Owner
		action  Action
		allowed bool
	}{
		{
			name:    "administrator always allowed",
			actor:   Actor{ID: "adm", Role: models.RoleAdmin},
			owner:   owner,
			action:  ActionValidate,
			allowed: true,
		},
		{
			name:    "resident reads own record",
			actor:   Actor{ID: "res-1", Role: models.RoleResident},
			owner:   owner,
			action:  ActionRead,
			allowed: true,
		},
		{
			name:    "resident denied on another resident's record",
			actor:   Actor{ID: "res-2", Role: models.RoleResident},
			owner:   owner,
			action:  ActionRead,
			allowed: false,
		},
		{
			name:    "resident can never validate, even their own activity",
			actor:   Actor{ID: "res-1", Role: models.RoleResident},
			owner:   owner,
			action:  ActionValidate,
			allowed: false,
		},
		{
			name:    "participant submits own record",
			actor:   Actor{ID: "part-1", Role: models.RoleParticipant, SocietyID: "s-1"},
			owner:   societyOwner,
			action:  ActionSubmit,
			allowed: true,
		},
		{
			name:    "tutor with ALL specialty at same hospital validates",
			actor:   Actor{ID: "tut-1", Role: models.RoleTutor, HospitalID: "h-1", Specialty: models.SpecialtyAll},
			owner:   owner,
			action:  ActionValidate,
			allowed: true,
		},
		{
			name:    "tutor with matching specialty validates",
			actor:   Actor{ID: "tut-2", Role: models.RoleTutor, HospitalID: "h-1", Specialty: "Urology"},
			owner:   owner,
			action:  ActionValidate,
			allowed: true,
		},
		{
			name:    "tutor with different specialty denied",
			actor:   Actor{ID: "tut-3", Role: models.RoleTutor, HospitalID: "h-1", Specialty: "Cardiology"},
			owner:   owner,
			action:  ActionValidate,
			allowed: false,
		},
		{
			name:    "tutor from another hospital denied",
			actor:   Actor{ID: "tut-4", Role: models.RoleTutor, HospitalID: "h-2", Specialty: models.SpecialtyAll},
			owner:   owner,
			action:  ActionValidate,
			allowed: false,
		},
		{
			name:    "tutor without hospital denied even when owner has none",
			actor:   Actor{ID: "tut-5", Role: models.RoleTutor, Specialty: models.SpecialtyAll},
			owner:   Owner{ID: "res-9"},
			action:  ActionRead,
			allowed: false,
		},
		{
			name:    "zone supervisor in matching zone validates",
			actor:   Actor{ID: "csm-1", Role: models.RoleCSM, ZoneID: "z-1"},
			owner:   owner,
			action:  ActionValidate,
			allowed: true,
		},
		{
			name:    "zone supervisor in other zone denied",
			actor:   Actor{ID: "csm-2", Role: models.RoleCSM, ZoneID: "z-2"},
			owner:   owner,
			action:  ActionValidate,
			allowed: false,
		},
		{
			name:    "professor with matching society rejects",
			actor:   Actor{ID: "prof-1", Role: models.RoleProfessor, SocietyID: "s-1"},
			owner:   societyOwner,
			action:  ActionReject,
			allowed: true,
		},
		{
			name:    "professor denied when the owner has no society",
			actor:   Actor{ID: "prof-1", Role: models.RoleProfessor, SocietyID: "s-1"},
			owner:   owner,
			action:  ActionRead,
			allowed: false,
		},
		{
			name:    "tutor may not submit on the resident's behalf",
			actor:   Actor{ID: "tut-1", Role: models.RoleTutor, HospitalID: "h-1", Specialty: models.SpecialtyAll},
			owner:   owner,
			action:  ActionSubmit,
			allowed: false,
		},
		{
			name:    "administrator may submit on a trainee's behalf",
			actor:   Actor{ID: "adm", Role: models.RoleAdmin},
			owner:   owner,
			action:  ActionSubmit,
			allowed: true,
		},
		{
			name:    "unknown role denied",
			actor:   Actor{ID: "x", Role: models.Role("ghost")},
			owner:   owner,
			action:  ActionRead,
			allowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanAct(tt.actor, tt.owner, tt.action))
		})
	}
}

func TestCanAct_SupervisorRolesForValidation(t *testing.T) {
	owner := Owner{ID: "res-1", HospitalID: "h-1", ZoneID: "z-1", Specialty: "Urology"}

	// csm passes the zone scope but must also carry a supervisor role for
	// validation actions; the same affiliation never unlocks submit.
	csm := Actor{ID: "csm-1", Role: models.RoleCSM, ZoneID: "z-1"}
	assert.True(t, CanAct(csm, owner, ActionValidate))
	assert.True(t, CanAct(csm, owner, ActionSetPhase))
	assert.False(t, CanAct(csm, owner, ActionSubmit))
}
