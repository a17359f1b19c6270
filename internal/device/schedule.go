package device

import (
	"fmt"

	"github.com/ecosync/core/internal/protocol"
)

// SetScheduleWindow marks the half-open slot range [start, end) on one
// weekday with the given preset (true = day, false = night). Slots are
// 30-minute intervals from midnight, so 06:00-22:00 is slots 12 to 44.
func SetScheduleWindow(s *protocol.Schedule, day, start, end int, dayPreset bool) error {
	if day < 0 || day >= protocol.ScheduleDays {
		return fmt.Errorf("%w: day %d", ErrInvalidWindow, day)
	}
	if start < 0 || end > protocol.ScheduleSlots || start >= end {
		return fmt.Errorf("%w: slots [%d, %d)", ErrInvalidWindow, start, end)
	}
	for slot := start; slot < end; slot++ {
		s.Slots[day][slot] = dayPreset
	}
	return nil
}
