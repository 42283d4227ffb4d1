package store

import (
	"context"
	"testing"

	"github.com/dukerupert/pillbox/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) (*FamilyStore, *MedicationStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err, "open test db")
	t.Cleanup(func() { db.Close() })
	return NewFamilyStore(db), NewMedicationStore(db)
}

func TestFamilyCreate(t *testing.T) {
	fs, _ := setupTestDB(t)
	ctx := context.Background()

	f, err := fs.Create(ctx, "Sharma", "sharma@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, f.ID)
	assert.Equal(t, "Sharma", f.Name)
	assert.Equal(t, "sharma@example.com", f.Email)
}

func TestFamilyGetByIDNotFound(t *testing.T) {
	fs, _ := setupTestDB(t)

	f, err := fs.GetByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestFamilyList(t *testing.T) {
	fs, _ := setupTestDB(t)
	ctx := context.Background()

	fs.Create(ctx, "Zeta", "z@example.com")
	fs.Create(ctx, "Alpha", "a@example.com")

	families, err := fs.List(ctx)
	require.NoError(t, err)
	require.Len(t, families, 2)
	assert.Equal(t, "Alpha", families[0].Name)
}

func TestFamilyUpdate(t *testing.T) {
	fs, _ := setupTestDB(t)
	ctx := context.Background()

	created, _ := fs.Create(ctx, "Old", "old@example.com")

	updated, err := fs.Update(ctx, created.ID, "New", "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, "New", updated.Name)
	assert.Equal(t, "new@example.com", updated.Email)

	_, err = fs.Update(ctx, "missing", "x", "x@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFamilyDeleteCascadesMedications(t *testing.T) {
	fs, ms := setupTestDB(t)
	ctx := context.Background()

	f, _ := fs.Create(ctx, "Sharma", "sharma@example.com")
	m, err := ms.Create(ctx, f.ID, "Aspirin", 10, nil)
	require.NoError(t, err)

	require.NoError(t, fs.Delete(ctx, f.ID))

	got, err := ms.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Nil(t, got, "medication is deleted with its family")
}
