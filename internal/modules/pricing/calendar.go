// README: School-day calendar arithmetic for pricing and extensions.
package pricing

import (
	"time"

	"schoolride/internal/types"
)

// CountSchoolDays counts Monday to Friday dates in [start, end], both ends inclusive.
func CountSchoolDays(start, end time.Time) int {
	start, end = types.Day(start), types.Day(end)
	n := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if types.IsWeekday(d) {
			n++
		}
	}
	return n
}

// AddSchoolDays returns the date reached after n further school days past from.
func AddSchoolDays(from time.Time, n int) time.Time {
	d := types.Day(from)
	for n > 0 {
		d = d.AddDate(0, 0, 1)
		if types.IsWeekday(d) {
			n--
		}
	}
	return d
}
