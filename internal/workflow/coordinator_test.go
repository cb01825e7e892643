package workflow_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"residency-training-server/internal/models"
	"residency-training-server/internal/store"
	"residency-training-server/internal/workflow"
)

type fakeDispatcher struct {
	mu     sync.Mutex
	events []workflow.Event
	err    error
}

func (d *fakeDispatcher) Emit(_ context.Context, e workflow.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.events = append(d.events, e)
	return nil
}

func (d *fakeDispatcher) types() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.events))
	for i, e := range d.events {
		out[i] = e.Type
	}
	return out
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// flakyStore fails a configured number of updates with a version conflict
// before delegating to the wrapped store.
type flakyStore struct {
	workflow.ProgressStore
	failures int
}

func (s *flakyStore) Update(ctx context.Context, record *models.ProgressRecord) error {
	if s.failures > 0 {
		s.failures--
		return fmt.Errorf("%w: simulated", workflow.ErrConflict)
	}
	return s.ProgressStore.Update(ctx, record)
}

type CoordinatorSuite struct {
	suite.Suite

	ctx     context.Context
	records *store.MemoryProgressStore
	users   *store.MemoryUserDirectory
	events  *fakeDispatcher
	coord   *workflow.Coordinator
}

func TestCoordinatorSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorSuite))
}

func (s *CoordinatorSuite) SetupTest() {
	s.ctx = context.Background()
	s.records = store.NewMemoryProgressStore()
	s.users = store.NewMemoryUserDirectory()
	s.events = &fakeDispatcher{}

	resident := models.User{
		BaseModel:  models.BaseModel{ID: "res-1"},
		Role:       models.RoleResident,
		HospitalID: "h1",
		ZoneID:     "z1",
		Specialty:  "Urology",
		Program:    models.ProgramResidents,
	}
	for _, u := range []models.User{
		resident,
		{BaseModel: models.BaseModel{ID: "res-2"}, Role: models.RoleResident, HospitalID: "h1", ZoneID: "z1", Specialty: "Cardiology", Program: models.ProgramResidents},
		{BaseModel: models.BaseModel{ID: "tut-1"}, Role: models.RoleTutor, HospitalID: "h1", ZoneID: "z1", Specialty: models.SpecialtyAll},
		{BaseModel: models.BaseModel{ID: "tut-2"}, Role: models.RoleTutor, HospitalID: "h2", ZoneID: "z2", Specialty: models.SpecialtyAll},
		{BaseModel: models.BaseModel{ID: "csm-1"}, Role: models.RoleCSM, ZoneID: "z1"},
		{BaseModel: models.BaseModel{ID: "prof-1"}, Role: models.RoleProfessor, SocietyID: "s1"},
		{BaseModel: models.BaseModel{ID: "adm-1"}, Role: models.RoleAdmin},
	} {
		s.users.Add(u)
	}
	s.records.SetOwner(resident)

	catalog := store.NewMemoryCatalogStore(
		models.Phase{
			BaseModel: models.BaseModel{ID: "ph-1"},
			Name:      "Fundamentos",
			Number:    1,
			Program:   models.ProgramResidents,
			Activities: []models.Activity{
				{BaseModel: models.BaseModel{ID: "act-1"}, Name: "Anatomia quirurgica", Type: models.ActivityTheory, RequiresValidation: true},
				{BaseModel: models.BaseModel{ID: "act-2"}, Name: "Nefrectomia asistida", Type: models.ActivitySurgery, RequiresValidation: true},
			},
		},
		models.Phase{
			BaseModel: models.BaseModel{ID: "ph-2"},
			Name:      "Autoformacion",
			Number:    2,
			Program:   models.ProgramResidents,
			Activities: []models.Activity{
				{BaseModel: models.BaseModel{ID: "act-3"}, Name: "Lectura guiada", Type: models.ActivityTheory},
				{BaseModel: models.BaseModel{ID: "act-4"}, Name: "Seminario online", Type: models.ActivityTheory},
				{BaseModel: models.BaseModel{ID: "act-5"}, Name: "Cuestionario", Type: models.ActivityEvaluation},
			},
		},
		models.Phase{
			BaseModel: models.BaseModel{ID: "ph-3"},
			Name:      "Consolidacion",
			Number:    3,
			Program:   models.ProgramResidents,
			Activities: []models.Activity{
				{BaseModel: models.BaseModel{ID: "act-6"}, Name: "Evaluacion final", Type: models.ActivityEvaluation, RequiresValidation: true},
			},
		},
	)

	s.coord = workflow.NewCoordinator(s.records, s.users, catalog, s.events, nil, fixedClock{t: testNow})

	_, err := s.coord.InitializeProgress(s.ctx, "adm-1", "res-1")
	s.Require().NoError(err)
	s.events.mu.Lock()
	s.events.events = nil
	s.events.mu.Unlock()
}

// recordForPhase fetches the resident's live record for one catalog phase.
func (s *CoordinatorSuite) recordForPhase(phaseID string) *models.ProgressRecord {
	records, err := s.records.ListByResident(s.ctx, "res-1")
	s.Require().NoError(err)
	for i := range records {
		if records[i].PhaseID == phaseID {
			return &records[i]
		}
	}
	s.Require().FailNowf("record not found", "no record for phase %s", phaseID)
	return nil
}

func (s *CoordinatorSuite) TestProvisioningShape() {
	first := s.recordForPhase("ph-1")
	s.Equal(models.PhaseEnProgreso, first.EstadoGeneral)
	s.Len(first.Activities, 2)
	s.Equal(models.ActivityPendiente, first.Activities[0].Estado)
	s.True(first.Activities[0].RequiresValidation)

	// Every activity in phase 2 skips validation, so provisioning lands the
	// whole record on completado immediately.
	second := s.recordForPhase("ph-2")
	s.Equal(models.PhaseCompletado, second.EstadoGeneral)
	for _, entry := range second.Activities {
		s.Equal(models.ActivityValidado, entry.Estado)
	}
	s.NotNil(second.FechaFin)

	third := s.recordForPhase("ph-3")
	s.Equal(models.PhaseBloqueada, third.EstadoGeneral)
}

func (s *CoordinatorSuite) TestProvisioningGuards() {
	_, err := s.coord.InitializeProgress(s.ctx, "adm-1", "res-1")
	s.ErrorIs(err, workflow.ErrAlreadyInitialized)

	_, err = s.coord.InitializeProgress(s.ctx, "res-2", "res-1")
	s.ErrorIs(err, workflow.ErrForbidden)

	_, err = s.coord.InitializeProgress(s.ctx, "adm-1", "tut-1")
	s.ErrorIs(err, workflow.ErrPreconditionFailed)

	_, err = s.coord.InitializeProgress(s.ctx, "adm-1", "nobody")
	s.ErrorIs(err, workflow.ErrNotFound)
}

func (s *CoordinatorSuite) TestSubmitValidateLifecycle() {
	rec := s.recordForPhase("ph-1")

	_, err := s.coord.SubmitActivity(s.ctx, "res-1", rec.ID, 0, workflow.SubmitInput{Comentarios: "hecho"})
	s.Require().NoError(err)

	updated, err := s.coord.ValidateActivity(s.ctx, "tut-1", rec.ID, 0, "bien", "firma-tut-1")
	s.Require().NoError(err)
	s.Equal(models.ActivityValidado, updated.Activities[0].Estado)
	s.Equal("firma-tut-1", updated.Activities[0].FirmaDigital)
	s.Equal(models.PhaseEnProgreso, updated.EstadoGeneral)

	// Surgery entries demand the surgery fields.
	_, err = s.coord.SubmitActivity(s.ctx, "res-1", rec.ID, 1, workflow.SubmitInput{})
	s.ErrorIs(err, workflow.ErrInvalidTransition)

	updated, err = s.coord.SubmitActivity(s.ctx, "res-1", rec.ID, 1, workflow.SubmitInput{
		Surgery: &models.SurgeryFields{Cirugia: "Nefrectomia", NombreCirujano: "Dra. Soler", PorcentajeParticipacion: 40},
	})
	s.Require().NoError(err)
	// Everything complete, but the phase never self-validates.
	s.Equal(models.PhaseCompletado, updated.EstadoGeneral)

	updated, err = s.coord.ValidateActivity(s.ctx, "tut-1", rec.ID, 1, "", "firma-tut-1")
	s.Require().NoError(err)
	s.Equal(models.PhaseCompletado, updated.EstadoGeneral)
	s.Empty(updated.ValidadoPor)

	updated, err = s.coord.SetPhaseStatus(s.ctx, "tut-1", rec.ID, models.PhaseValidado)
	s.Require().NoError(err)
	s.Equal(models.PhaseValidado, updated.EstadoGeneral)
	s.Equal("tut-1", updated.ValidadoPor)

	s.Equal([]string{
		workflow.EventActivitySubmitted,
		workflow.EventActivityValidated,
		workflow.EventActivitySubmitted,
		workflow.EventActivityValidated,
		workflow.EventPhaseChanged,
	}, s.events.types())
}

func (s *CoordinatorSuite) TestForbiddenLeavesRecordUntouched() {
	rec := s.recordForPhase("ph-1")
	_, err := s.coord.SubmitActivity(s.ctx, "res-1", rec.ID, 0, workflow.SubmitInput{})
	s.Require().NoError(err)
	before := s.recordForPhase("ph-1")

	// A tutor from another hospital has no window over this resident.
	_, err = s.coord.ValidateActivity(s.ctx, "tut-2", rec.ID, 0, "", "firma-tut-2")
	s.ErrorIs(err, workflow.ErrForbidden)

	// A resident cannot validate, not even their own work.
	_, err = s.coord.ValidateActivity(s.ctx, "res-1", rec.ID, 0, "", "firma-res-1")
	s.ErrorIs(err, workflow.ErrForbidden)

	// Another resident cannot submit on this record.
	_, err = s.coord.SubmitActivity(s.ctx, "res-2", rec.ID, 1, workflow.SubmitInput{})
	s.ErrorIs(err, workflow.ErrForbidden)

	after := s.recordForPhase("ph-1")
	s.Equal(before.Version, after.Version)
	s.Equal(before.Activities, after.Activities)
}

func (s *CoordinatorSuite) TestRejectionFlow() {
	rec := s.recordForPhase("ph-1")
	_, err := s.coord.SubmitActivity(s.ctx, "res-1", rec.ID, 0, workflow.SubmitInput{})
	s.Require().NoError(err)

	_, err = s.coord.RejectActivity(s.ctx, "tut-1", rec.ID, 0, "")
	s.ErrorIs(err, workflow.ErrInvalidTransition)

	updated, err := s.coord.RejectActivity(s.ctx, "tut-1", rec.ID, 0, "falta documentacion")
	s.Require().NoError(err)
	s.Equal(models.ActivityRechazado, updated.Activities[0].Estado)
	s.Equal(models.PhaseEnProgreso, updated.EstadoGeneral)

	// Rejection is terminal on the normal path.
	_, err = s.coord.SubmitActivity(s.ctx, "res-1", rec.ID, 0, workflow.SubmitInput{})
	s.ErrorIs(err, workflow.ErrInvalidTransition)

	// Only an administrator can reset the entry, after which the resident
	// can go through the normal path again.
	_, err = s.coord.ForceSetActivityStatus(s.ctx, "tut-1", rec.ID, 0, models.ActivityPendiente)
	s.ErrorIs(err, workflow.ErrForbidden)

	updated, err = s.coord.ForceSetActivityStatus(s.ctx, "adm-1", rec.ID, 0, models.ActivityPendiente)
	s.Require().NoError(err)
	s.Equal(models.ActivityPendiente, updated.Activities[0].Estado)
	s.Nil(updated.Activities[0].FechaRechazo)
	s.Empty(updated.Activities[0].ComentariosRechazo)

	_, err = s.coord.SubmitActivity(s.ctx, "res-1", rec.ID, 0, workflow.SubmitInput{})
	s.NoError(err)
}

func (s *CoordinatorSuite) TestPhaseGuardsThroughCoordinator() {
	rec := s.recordForPhase("ph-1")

	_, err := s.coord.SetPhaseStatus(s.ctx, "tut-1", rec.ID, models.PhaseValidado)
	s.ErrorIs(err, workflow.ErrPreconditionFailed)
	s.Equal(models.PhaseEnProgreso, s.recordForPhase("ph-1").EstadoGeneral)

	// The admin override skips the aggregate guards.
	updated, err := s.coord.ForceSetPhaseStatus(s.ctx, "adm-1", rec.ID, models.PhaseValidado)
	s.Require().NoError(err)
	s.Equal(models.PhaseValidado, updated.EstadoGeneral)
	s.Equal("adm-1", updated.ValidadoPor)

	_, err = s.coord.ForceSetPhaseStatus(s.ctx, "tut-1", rec.ID, models.PhaseBloqueada)
	s.ErrorIs(err, workflow.ErrForbidden)

	// Re-opening clears the validation stamps.
	updated, err = s.coord.SetPhaseStatus(s.ctx, "tut-1", rec.ID, models.PhaseEnProgreso)
	s.Require().NoError(err)
	s.Equal(models.PhaseEnProgreso, updated.EstadoGeneral)
	s.Nil(updated.FechaFin)
	s.Empty(updated.ValidadoPor)
}

func (s *CoordinatorSuite) TestForceSetActivityDemotesValidatedRecord() {
	rec := s.recordForPhase("ph-2")
	_, err := s.coord.SetPhaseStatus(s.ctx, "tut-1", rec.ID, models.PhaseValidado)
	s.Require().NoError(err)

	updated, err := s.coord.ForceSetActivityStatus(s.ctx, "adm-1", rec.ID, 0, models.ActivityPendiente)
	s.Require().NoError(err)
	s.Equal(models.PhaseEnProgreso, updated.EstadoGeneral)
	s.Empty(updated.ValidadoPor)
	s.Nil(updated.FechaFin)
}

func (s *CoordinatorSuite) TestConflictRetry() {
	base := s.records
	flaky := &flakyStore{ProgressStore: base, failures: 1}
	coord := workflow.NewCoordinator(flaky, s.users, store.NewMemoryCatalogStore(), s.events, nil, fixedClock{t: testNow})

	rec := s.recordForPhase("ph-1")
	updated, err := coord.SubmitActivity(s.ctx, "res-1", rec.ID, 0, workflow.SubmitInput{})
	s.Require().NoError(err)
	s.Equal(models.ActivityCompletado, updated.Activities[0].Estado)

	// Persistent contention surfaces the conflict after the retry budget.
	stubborn := &flakyStore{ProgressStore: base, failures: 10}
	coord = workflow.NewCoordinator(stubborn, s.users, store.NewMemoryCatalogStore(), s.events, nil, fixedClock{t: testNow})
	_, err = coord.SubmitActivity(s.ctx, "res-1", rec.ID, 1, workflow.SubmitInput{
		Surgery: &models.SurgeryFields{Cirugia: "Nefrectomia"},
	})
	s.ErrorIs(err, workflow.ErrConflict)
}

func (s *CoordinatorSuite) TestNotFound() {
	_, err := s.coord.SubmitActivity(s.ctx, "res-1", "no-such-record", 0, workflow.SubmitInput{})
	s.ErrorIs(err, workflow.ErrNotFound)

	rec := s.recordForPhase("ph-1")
	_, err = s.coord.SubmitActivity(s.ctx, "res-1", rec.ID, 7, workflow.SubmitInput{})
	s.ErrorIs(err, workflow.ErrNotFound)
}

func (s *CoordinatorSuite) TestListForResident() {
	records, err := s.coord.ListForResident(s.ctx, "res-1", "res-1")
	s.Require().NoError(err)
	s.Len(records, 3)

	records, err = s.coord.ListForResident(s.ctx, "tut-1", "res-1")
	s.Require().NoError(err)
	s.Len(records, 3)

	_, err = s.coord.ListForResident(s.ctx, "res-2", "res-1")
	s.ErrorIs(err, workflow.ErrForbidden)

	_, err = s.coord.ListForResident(s.ctx, "tut-2", "res-1")
	s.ErrorIs(err, workflow.ErrForbidden)
}

func (s *CoordinatorSuite) TestPendingValidationsScoping() {
	rec := s.recordForPhase("ph-1")
	_, err := s.coord.SubmitActivity(s.ctx, "res-1", rec.ID, 0, workflow.SubmitInput{})
	s.Require().NoError(err)

	pending, err := s.coord.PendingValidations(s.ctx, "tut-1")
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(rec.ID, pending[0].ProgressRecordID)
	s.Equal("res-1", pending[0].ResidentID)
	s.Equal(0, pending[0].ActivityIndex)
	s.Equal(models.ActivityCompletado, pending[0].Activity.Estado)

	pending, err = s.coord.PendingValidations(s.ctx, "csm-1")
	s.Require().NoError(err)
	s.Len(pending, 1)

	pending, err = s.coord.PendingValidations(s.ctx, "adm-1")
	s.Require().NoError(err)
	s.Len(pending, 1)

	// Out-of-window supervisors see an empty queue.
	pending, err = s.coord.PendingValidations(s.ctx, "tut-2")
	s.Require().NoError(err)
	s.Empty(pending)

	pending, err = s.coord.PendingValidations(s.ctx, "prof-1")
	s.Require().NoError(err)
	s.Empty(pending)

	// Trainees have no validation window at all.
	_, err = s.coord.PendingValidations(s.ctx, "res-1")
	s.ErrorIs(err, workflow.ErrForbidden)
}

func (s *CoordinatorSuite) TestDispatchFailureIsSwallowed() {
	s.events.err = fmt.Errorf("broker down")

	rec := s.recordForPhase("ph-1")
	updated, err := s.coord.SubmitActivity(s.ctx, "res-1", rec.ID, 0, workflow.SubmitInput{})
	s.Require().NoError(err)
	s.Equal(models.ActivityCompletado, updated.Activities[0].Estado)
}
