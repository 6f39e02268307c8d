package airquality

import "time"

// BuildGrid returns the canonical timestamp grid for a query: one tick per
// year, month, day or hour across [start, end], derived purely from the
// requested range and independent of what data actually arrives. All ticks
// are UTC.
func BuildGrid(res Resolution, start, end time.Time) []time.Time {
	start = start.UTC()
	end = end.UTC()

	var grid []time.Time
	switch res {
	case ResolutionAnnual:
		for y := start.Year(); y <= end.Year(); y++ {
			grid = append(grid, time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC))
		}
	case ResolutionMonthly:
		tick := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
		last := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC)
		for !tick.After(last) {
			grid = append(grid, tick)
			tick = tick.AddDate(0, 1, 0)
		}
	case ResolutionDaily:
		tick := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
		last := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
		for !tick.After(last) {
			grid = append(grid, tick)
			tick = tick.AddDate(0, 0, 1)
		}
	case ResolutionHourly:
		tick := start.Truncate(time.Hour)
		last := end.Truncate(time.Hour)
		for !tick.After(last) {
			grid = append(grid, tick)
			tick = tick.Add(time.Hour)
		}
	}
	return grid
}

// bucket truncates a raw timestamp to the grid tick it belongs to for the
// calendar-aligned resolutions.
func bucket(res Resolution, t time.Time) time.Time {
	t = t.UTC()
	switch res {
	case ResolutionAnnual:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	case ResolutionMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case ResolutionDaily:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	default:
		return t.Truncate(time.Hour)
	}
}
