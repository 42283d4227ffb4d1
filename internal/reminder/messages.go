package reminder

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/dukerupert/pillbox/internal/model"
)

func reminderMessage(m model.Medication, slot string) (subject, body string) {
	at := ""
	if tod := m.ReminderTimes[slot]; tod != nil {
		at = " at " + tod.String()
	}
	subject = "Medicine Reminder - " + slotTitle(slot)
	body = fmt.Sprintf("Reminder: Take your medicine %s (%d left)%s.", m.Name, m.Quantity, at)
	return subject, body
}

func lowStockMessage(m model.Medication) (subject, body string) {
	subject = "Low Stock Alert - " + m.Name
	body = fmt.Sprintf("Low Stock Alert: Only %d units of %s left. Please restock soon.", m.Quantity, m.Name)
	return subject, body
}

// RestockMessage builds the notice sent to a family after a medication is restocked.
func RestockMessage(familyName string, m model.Medication, previous, added int) (subject, body string) {
	subject = "Medicine Restocked - " + m.Name
	body = fmt.Sprintf(
		"Hello %s,\n\nYour medicine %s has been restocked.\nPrevious Quantity: %d\nAdded: %d\nNew Quantity: %d\n\nStay healthy!\n- Pillbox",
		familyName, m.Name, previous, added, m.Quantity,
	)
	return subject, body
}

func slotTitle(slot string) string {
	r, size := utf8.DecodeRuneInString(slot)
	if r == utf8.RuneError {
		return slot
	}
	return string(unicode.ToUpper(r)) + slot[size:]
}
