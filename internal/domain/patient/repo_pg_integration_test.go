//go:build integration

package patient_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/ehrsync/internal/domain/client"
	"github.com/ehr/ehrsync/internal/domain/patient"
	"github.com/ehr/ehrsync/internal/platform/db/dbtest"
	"github.com/ehr/ehrsync/pkg/fhirmodels"
)

func TestPatientRepoPG_UpsertRoundTrip(t *testing.T) {
	pool := dbtest.NewPool(t)
	ctx := context.Background()

	clients := client.NewClientRepoPG(pool)
	north := &client.Client{Name: "North Clinic", Status: "active"}
	south := &client.Client{Name: "South Clinic", Status: "active"}
	require.NoError(t, clients.Create(ctx, north))
	require.NoError(t, clients.Create(ctx, south))

	repo := patient.NewPatientRepoPG(pool)
	dob := "1980-04-02"
	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	stored, err := repo.Upsert(ctx, &patient.Patient{
		ClientID: north.ID, EHRSystem: fhirmodels.EHRSystemEpic, ExternalPatientID: "E-100",
		FirstName: "Ana", LastName: "Lopez", DateOfBirth: &dob, Gender: "female",
		Phone: "555-0100", Address: map[string]any{"city": "Austin"}, MRN: "M1",
		RawData: map[string]any{"resourceType": "Patient", "id": "E-100"}, LastSynced: first,
	})
	require.NoError(t, err)
	assert.Equal(t, "Ana", stored.FirstName)
	assert.Equal(t, "Austin", stored.Address["city"])
	require.NotNil(t, stored.DateOfBirth)
	assert.Equal(t, dob, *stored.DateOfBirth)

	// Same key overwrites every non-key field and keeps the row id.
	second := first.Add(time.Hour)
	again, err := repo.Upsert(ctx, &patient.Patient{
		ClientID: north.ID, EHRSystem: fhirmodels.EHRSystemEpic, ExternalPatientID: "E-100",
		FirstName: "Anna", LastName: "Lopez", LastSynced: second,
	})
	require.NoError(t, err)
	assert.Equal(t, stored.ID, again.ID)
	assert.Equal(t, "Anna", again.FirstName)
	assert.Nil(t, again.DateOfBirth)
	assert.Empty(t, again.Phone)
	assert.Empty(t, again.Address)
	assert.True(t, again.LastSynced.Equal(second))

	// Same external id under another tenant or vendor is a separate row.
	other, err := repo.Upsert(ctx, &patient.Patient{
		ClientID: south.ID, EHRSystem: fhirmodels.EHRSystemEpic, ExternalPatientID: "E-100", LastSynced: first,
	})
	require.NoError(t, err)
	assert.NotEqual(t, stored.ID, other.ID)
	_, err = repo.Upsert(ctx, &patient.Patient{
		ClientID: north.ID, EHRSystem: fhirmodels.EHRSystemCerner, ExternalPatientID: "E-100", LastSynced: first,
	})
	require.NoError(t, err)

	items, total, err := repo.List(ctx, patient.ListFilter{ClientID: north.ID}, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, items, 2)

	items, total, err = repo.List(ctx, patient.ListFilter{ClientID: north.ID, EHRSystem: fhirmodels.EHRSystemEpic, Query: "ann"}, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, stored.ID, items[0].ID)

	_, err = repo.GetByID(ctx, south.ID, stored.ID)
	assert.ErrorIs(t, err, patient.ErrNotFound)
}
