package airquality

import (
	"sort"
	"time"
)

// Tolerances are the per-resolution windows inside which a raw timestamp is
// snapped to a canonical grid tick. Annual and monthly series match by
// calendar bucket, so only the sub-daily resolutions carry a window.
type Tolerances struct {
	Daily  time.Duration
	Hourly time.Duration
}

// DefaultTolerances mirrors the source network's reporting jitter: hourly
// readings may drift up to half an hour, daily means up to half a day.
func DefaultTolerances() Tolerances {
	return Tolerances{
		Daily:  12 * time.Hour,
		Hourly: 30 * time.Minute,
	}
}

func (t Tolerances) window(res Resolution) time.Duration {
	switch res {
	case ResolutionDaily:
		return t.Daily
	case ResolutionHourly:
		return t.Hourly
	}
	return 0
}

// Normalize resamples a raw series onto the canonical grid. Each tick gets
// the raw reading that falls in its calendar bucket (annual/monthly) or the
// nearest reading within the tolerance window (daily/hourly); ticks with no
// matching reading are marked as gaps. No interpolation and no carry-forward:
// a monitoring outage must stay visible in the output. An empty raw series is
// not an error and yields a fully gapped result of grid length.
func Normalize(raw RawSeries, grid []time.Time, res Resolution, tol Tolerances) NormalizedSeries {
	out := make(NormalizedSeries, len(grid))
	for i, tick := range grid {
		out[i] = NormalizedPoint{Timestamp: tick, Gap: true}
	}
	if len(raw) == 0 {
		return out
	}

	switch res {
	case ResolutionAnnual, ResolutionMonthly:
		byBucket := make(map[time.Time]float64, len(raw))
		for _, p := range raw {
			b := bucket(res, p.Timestamp)
			if _, seen := byBucket[b]; !seen {
				byBucket[b] = p.Value
			}
		}
		for i, tick := range grid {
			if v, ok := byBucket[tick]; ok {
				out[i] = NormalizedPoint{Timestamp: tick, Value: v}
			}
		}

	default:
		sorted := make(RawSeries, len(raw))
		copy(sorted, raw)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		})

		window := tol.window(res)
		for i, tick := range grid {
			if p, ok := nearest(sorted, tick, window); ok {
				out[i] = NormalizedPoint{Timestamp: tick, Value: p.Value}
			}
		}
	}

	return out
}

// nearest returns the raw point closest to tick, provided it lies within the
// tolerance window.
func nearest(sorted RawSeries, tick time.Time, window time.Duration) (RawPoint, bool) {
	idx := sort.Search(len(sorted), func(i int) bool {
		return !sorted[i].Timestamp.Before(tick)
	})

	best := -1
	var bestDist time.Duration
	for _, i := range []int{idx - 1, idx} {
		if i < 0 || i >= len(sorted) {
			continue
		}
		d := absDuration(sorted[i].Timestamp.Sub(tick))
		if best == -1 || d < bestDist {
			best = i
			bestDist = d
		}
	}

	if best == -1 || bestDist > window {
		return RawPoint{}, false
	}
	return sorted[best], true
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
