package model

import (
	"maps"
	"time"

	"github.com/dukerupert/pillbox/internal/schedule"
)

// Medication is a tracked medicine with remaining stock and daily reminder slots.
// A nil entry in ReminderTimes is an inactive slot.
type Medication struct {
	ID            string                         `json:"id"`
	FamilyID      string                         `json:"family_id"`
	Name          string                         `json:"name"`
	Quantity      int                            `json:"quantity"`
	ReminderTimes map[string]*schedule.TimeOfDay `json:"reminder_times"`
	OwnerContact  string                         `json:"owner_contact,omitempty"`
	CreatedAt     time.Time                      `json:"created_at"`
	UpdatedAt     time.Time                      `json:"updated_at"`
}

// WithQuantity returns a copy of m with a new quantity. The reminder map is
// cloned so the copy never aliases the original.
func (m Medication) WithQuantity(q int) Medication {
	m.ReminderTimes = maps.Clone(m.ReminderTimes)
	m.Quantity = q
	return m
}
