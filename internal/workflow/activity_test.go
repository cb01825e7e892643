package workflow_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"residency-training-server/internal/models"
	"residency-training-server/internal/workflow"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func pendingEntry(actType models.ActivityType) models.ActivityProgress {
	return models.ActivityProgress{
		ActivityID:         "act-1",
		Name:               "Ward rounds",
		Type:               actType,
		RequiresValidation: true,
		Estado:             models.ActivityPendiente,
	}
}

func TestSubmitActivity(t *testing.T) {
	t.Run("pendiente to completado stamps fechaRealizacion", func(t *testing.T) {
		entry := pendingEntry(models.ActivityPractice)
		err := workflow.SubmitActivity(&entry, workflow.SubmitInput{Comentarios: "done under supervision"}, testNow)
		require.NoError(t, err)
		assert.Equal(t, models.ActivityCompletado, entry.Estado)
		assert.Equal(t, "done under supervision", entry.ComentariosResidente)
		require.NotNil(t, entry.FechaRealizacion)
		assert.Equal(t, testNow, *entry.FechaRealizacion)
	})

	t.Run("explicit fechaRealizacion wins over the clock", func(t *testing.T) {
		entry := pendingEntry(models.ActivityTheory)
		performed := testNow.AddDate(0, 0, -3)
		err := workflow.SubmitActivity(&entry, workflow.SubmitInput{FechaRealizacion: &performed}, testNow)
		require.NoError(t, err)
		assert.Equal(t, performed, *entry.FechaRealizacion)
	})

	t.Run("surgery requires surgery fields", func(t *testing.T) {
		entry := pendingEntry(models.ActivitySurgery)
		err := workflow.SubmitActivity(&entry, workflow.SubmitInput{}, testNow)
		assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
		assert.Equal(t, models.ActivityPendiente, entry.Estado)

		err = workflow.SubmitActivity(&entry, workflow.SubmitInput{
			Surgery: &models.SurgeryFields{Cirugia: "Nephrectomy", NombreCirujano: "Dr. Ortega", PorcentajeParticipacion: 40},
		}, testNow)
		require.NoError(t, err)
		assert.Equal(t, models.ActivityCompletado, entry.Estado)
		assert.Equal(t, "Nephrectomy", entry.Cirugia)
	})

	t.Run("resubmission is not idempotent", func(t *testing.T) {
		entry := pendingEntry(models.ActivityTheory)
		require.NoError(t, workflow.SubmitActivity(&entry, workflow.SubmitInput{}, testNow))
		err := workflow.SubmitActivity(&entry, workflow.SubmitInput{}, testNow)
		assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
	})
}

func TestValidateActivity(t *testing.T) {
	t.Run("completado to validado with signature", func(t *testing.T) {
		entry := pendingEntry(models.ActivityTheory)
		require.NoError(t, workflow.SubmitActivity(&entry, workflow.SubmitInput{}, testNow))

		err := workflow.ValidateActivity(&entry, "well done", "T. Smith", testNow)
		require.NoError(t, err)
		assert.Equal(t, models.ActivityValidado, entry.Estado)
		assert.Equal(t, "T. Smith", entry.FirmaDigital)
		require.NotNil(t, entry.FechaValidacion)
	})

	t.Run("signature is mandatory", func(t *testing.T) {
		entry := pendingEntry(models.ActivityTheory)
		require.NoError(t, workflow.SubmitActivity(&entry, workflow.SubmitInput{}, testNow))
		err := workflow.ValidateActivity(&entry, "well done", "", testNow)
		assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
		assert.Equal(t, models.ActivityCompletado, entry.Estado)
	})

	t.Run("pendiente cannot jump to validado", func(t *testing.T) {
		entry := pendingEntry(models.ActivityTheory)
		err := workflow.ValidateActivity(&entry, "", "T. Smith", testNow)
		assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
		assert.Equal(t, models.ActivityPendiente, entry.Estado)
	})
}

func TestRejectActivity(t *testing.T) {
	t.Run("completado to rechazado with reason", func(t *testing.T) {
		entry := pendingEntry(models.ActivityTheory)
		require.NoError(t, workflow.SubmitActivity(&entry, workflow.SubmitInput{}, testNow))

		err := workflow.RejectActivity(&entry, "missing attachment", testNow)
		require.NoError(t, err)
		assert.Equal(t, models.ActivityRechazado, entry.Estado)
		assert.Equal(t, "missing attachment", entry.ComentariosRechazo)
		require.NotNil(t, entry.FechaRechazo)
	})

	t.Run("reason is mandatory", func(t *testing.T) {
		entry := pendingEntry(models.ActivityTheory)
		require.NoError(t, workflow.SubmitActivity(&entry, workflow.SubmitInput{}, testNow))
		err := workflow.RejectActivity(&entry, "", testNow)
		assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
	})

	t.Run("pendiente cannot jump to rechazado", func(t *testing.T) {
		entry := pendingEntry(models.ActivityTheory)
		err := workflow.RejectActivity(&entry, "nope", testNow)
		assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
	})

	t.Run("rechazado is terminal for the submission", func(t *testing.T) {
		entry := pendingEntry(models.ActivityTheory)
		require.NoError(t, workflow.SubmitActivity(&entry, workflow.SubmitInput{}, testNow))
		require.NoError(t, workflow.RejectActivity(&entry, "redo", testNow))

		assert.ErrorIs(t, workflow.SubmitActivity(&entry, workflow.SubmitInput{}, testNow), workflow.ErrInvalidTransition)
		assert.ErrorIs(t, workflow.ValidateActivity(&entry, "", "T. Smith", testNow), workflow.ErrInvalidTransition)
	})
}

func TestForceSetActivity(t *testing.T) {
	entry := pendingEntry(models.ActivityTheory)
	require.NoError(t, workflow.SubmitActivity(&entry, workflow.SubmitInput{}, testNow))
	require.NoError(t, workflow.RejectActivity(&entry, "redo", testNow))

	// Admin override resets the rejected entry back to pendiente, clearing
	// transition timestamps.
	workflow.ForceSetActivity(&entry, models.ActivityPendiente, testNow)
	assert.Equal(t, models.ActivityPendiente, entry.Estado)
	assert.Nil(t, entry.FechaRealizacion)
	assert.Nil(t, entry.FechaRechazo)
	assert.Empty(t, entry.ComentariosRechazo)

	// And the entry can go through the normal path again.
	require.NoError(t, workflow.SubmitActivity(&entry, workflow.SubmitInput{}, testNow))
	assert.Equal(t, models.ActivityCompletado, entry.Estado)
}
