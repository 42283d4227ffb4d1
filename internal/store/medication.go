package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dukerupert/pillbox/internal/inventory"
	"github.com/dukerupert/pillbox/internal/model"
	"github.com/dukerupert/pillbox/internal/schedule"
	"github.com/google/uuid"
)

const medicationSelect = `SELECT m.id, m.family_id, m.name, m.quantity, f.email, m.created_at, m.updated_at
FROM medications m JOIN families f ON f.id = m.family_id`

const reminderTimeSelect = `SELECT rt.medication_id, rt.slot, rt.time_of_day
FROM medication_reminder_times rt JOIN medications m ON m.id = rt.medication_id`

// ErrQuantityChanged is returned by SaveQuantity when the stored quantity moved
// since it was read.
var ErrQuantityChanged = errors.New("quantity changed since read")

type MedicationStore struct {
	db *sql.DB
}

func NewMedicationStore(db *sql.DB) *MedicationStore {
	return &MedicationStore{db: db}
}

func (s *MedicationStore) Create(ctx context.Context, familyID, name string, quantity int, times map[string]*schedule.TimeOfDay) (*model.Medication, error) {
	id := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO medications (id, family_id, name, quantity) VALUES (?, ?, ?, ?)",
		id, familyID, name, quantity,
	)
	if err != nil {
		return nil, fmt.Errorf("insert medication: %w", err)
	}

	if err := replaceReminderTimes(ctx, tx, id, times); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *MedicationStore) GetByID(ctx context.Context, id string) (*model.Medication, error) {
	meds, err := s.query(ctx, "WHERE m.id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(meds) == 0 {
		return nil, nil
	}
	return &meds[0], nil
}

// List returns every medication with its owner contact.
func (s *MedicationStore) List(ctx context.Context) ([]model.Medication, error) {
	return s.query(ctx, "")
}

// ListMedications is List under the name the reminder engine consumes.
func (s *MedicationStore) ListMedications(ctx context.Context) ([]model.Medication, error) {
	return s.List(ctx)
}

func (s *MedicationStore) ListByFamily(ctx context.Context, familyID string) ([]model.Medication, error) {
	return s.query(ctx, "WHERE m.family_id = ?", familyID)
}

// Update replaces name, quantity and the full set of reminder slots.
func (s *MedicationStore) Update(ctx context.Context, id, name string, quantity int, times map[string]*schedule.TimeOfDay) (*model.Medication, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		"UPDATE medications SET name = ?, quantity = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		name, quantity, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update medication: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return nil, fmt.Errorf("update medication %s: %w", id, err)
	}

	if err := replaceReminderTimes(ctx, tx, id, times); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(ctx, id)
}

// SaveQuantity persists only the quantity so concurrent schedule edits are not
// overwritten. The write only applies while the stored quantity still equals
// previous; otherwise ErrQuantityChanged is returned and nothing is written.
func (s *MedicationStore) SaveQuantity(ctx context.Context, id string, previous, quantity int) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE medications SET quantity = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND quantity = ?",
		quantity, id, previous,
	)
	if err != nil {
		return fmt.Errorf("save quantity: %w", err)
	}
	err = requireAffected(result)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("save quantity %s: %w", id, err)
	}

	var stored int
	err = s.db.QueryRowContext(ctx, "SELECT quantity FROM medications WHERE id = ?", id).Scan(&stored)
	if err == sql.ErrNoRows {
		return fmt.Errorf("save quantity %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("query quantity: %w", err)
	}
	return fmt.Errorf("save quantity %s: stored %d, expected %d: %w", id, stored, previous, ErrQuantityChanged)
}

// Restock adds units and returns the updated medication with the quantity it had before.
func (s *MedicationStore) Restock(ctx context.Context, id string, add int) (*model.Medication, int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var previous int
	err = tx.QueryRowContext(ctx, "SELECT quantity FROM medications WHERE id = ?", id).Scan(&previous)
	if err == sql.ErrNoRows {
		return nil, 0, fmt.Errorf("restock %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("query quantity: %w", err)
	}

	next, err := inventory.Restock(previous, add)
	if err != nil {
		return nil, 0, err
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE medications SET quantity = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		next, id,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("update quantity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("commit: %w", err)
	}

	m, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	return m, previous, nil
}

func (s *MedicationStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM medications WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete medication: %w", err)
	}
	return nil
}

func (s *MedicationStore) query(ctx context.Context, where string, args ...any) ([]model.Medication, error) {
	meds, err := s.scanMedications(ctx, where, args...)
	if err != nil || len(meds) == 0 {
		return meds, err
	}
	if err := s.attachReminderTimes(ctx, meds, where, args...); err != nil {
		return nil, err
	}
	return meds, nil
}

func (s *MedicationStore) scanMedications(ctx context.Context, where string, args ...any) ([]model.Medication, error) {
	rows, err := s.db.QueryContext(ctx, medicationSelect+" "+where+" ORDER BY m.name, m.id", args...)
	if err != nil {
		return nil, fmt.Errorf("query medications: %w", err)
	}
	defer rows.Close()

	var meds []model.Medication
	for rows.Next() {
		var m model.Medication
		if err := rows.Scan(&m.ID, &m.FamilyID, &m.Name, &m.Quantity, &m.OwnerContact, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan medication: %w", err)
		}
		m.ReminderTimes = map[string]*schedule.TimeOfDay{}
		meds = append(meds, m)
	}
	return meds, rows.Err()
}

func (s *MedicationStore) attachReminderTimes(ctx context.Context, meds []model.Medication, where string, args ...any) error {
	index := make(map[string]int, len(meds))
	for i, m := range meds {
		index[m.ID] = i
	}

	rows, err := s.db.QueryContext(ctx, reminderTimeSelect+" "+where, args...)
	if err != nil {
		return fmt.Errorf("query reminder times: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			medID, slot string
			raw         sql.NullString
		)
		if err := rows.Scan(&medID, &slot, &raw); err != nil {
			return fmt.Errorf("scan reminder time: %w", err)
		}
		i, ok := index[medID]
		if !ok {
			continue
		}
		// Unparsable stored values leave the slot inactive.
		var tod *schedule.TimeOfDay
		if raw.Valid {
			tod, _ = schedule.ParseTimeOfDay(raw.String)
		}
		meds[i].ReminderTimes[slot] = tod
	}
	return rows.Err()
}

func replaceReminderTimes(ctx context.Context, tx *sql.Tx, medicationID string, times map[string]*schedule.TimeOfDay) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM medication_reminder_times WHERE medication_id = ?", medicationID); err != nil {
		return fmt.Errorf("clear reminder times: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO medication_reminder_times (medication_id, slot, time_of_day) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare stmt: %w", err)
	}
	defer stmt.Close()

	for slot, tod := range times {
		var value sql.NullString
		if tod != nil {
			value = sql.NullString{String: tod.String(), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, medicationID, slot, value); err != nil {
			return fmt.Errorf("insert reminder time %q: %w", slot, err)
		}
	}
	return nil
}
