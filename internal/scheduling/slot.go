package scheduling

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	dateLayout     = "2006-01-02"
	timeLayout     = "15:04"
	dateTimeLayout = "2006-01-02 15:04"
)

// timeForms are the textual renderings of a time of day we accept from
// callers. Whatever comes in, keys and storage only ever see 24-hour HH:MM.
var timeForms = []string{
	"15:04",
	"15:04:05",
	"3:04 PM",
	"3:04PM",
	"03:04 PM",
	"03:04PM",
}

// NormalizeTime converts any accepted time-of-day form to 24-hour HH:MM.
// Two renderings of the same instant must normalize identically, because
// the slot key is derived from this string.
func NormalizeTime(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrInvalidSlot
	}
	upper := strings.ToUpper(s)
	for _, layout := range timeForms {
		if t, err := time.Parse(layout, upper); err == nil {
			return t.Format(timeLayout), nil
		}
	}
	return "", fmt.Errorf("%w: unparseable time %q", ErrInvalidSlot, raw)
}

// ParseDate validates a calendar date in 2006-01-02 form.
func ParseDate(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return "", fmt.Errorf("%w: unparseable date %q", ErrInvalidSlot, raw)
	}
	return t.Format(dateLayout), nil
}

// SlotKey derives the deterministic lock key for a (doctor, date, time)
// slot: doctorID_date_time with colons and whitespace stripped. timeOfDay
// must already be normalized.
func SlotKey(doctorID uuid.UUID, date, timeOfDay string) string {
	clean := strings.NewReplacer(":", "", " ", "", "\t", "")
	return fmt.Sprintf("%s_%s_%s", doctorID, clean.Replace(date), clean.Replace(timeOfDay))
}

// slotKeyOf derives the key for an appointment's current slot. It returns
// false when the stored fields cannot produce a key (corrupt time), in
// which case callers skip the old-slot bookkeeping rather than fail.
func slotKeyOf(appt *Appointment) (string, bool) {
	norm, err := NormalizeTime(appt.TimeOfDay)
	if err != nil {
		return "", false
	}
	if _, err := ParseDate(appt.Date); err != nil {
		return "", false
	}
	return SlotKey(appt.DoctorID, appt.Date, norm), true
}

// slotDateTime resolves an appointment's date and time to a wall-clock
// instant, used by the cancellation policy.
func slotDateTime(appt *Appointment) (time.Time, error) {
	norm, err := NormalizeTime(appt.TimeOfDay)
	if err != nil {
		return time.Time{}, err
	}
	return time.ParseInLocation(dateTimeLayout, appt.Date+" "+norm, time.Local)
}
