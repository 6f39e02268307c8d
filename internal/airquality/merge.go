package airquality

import (
	"sort"
	"time"
)

// Merge outer-joins the normalized series of a batch onto the canonical grid.
// It emits exactly one TidyRow per grid tick x site x pollutant, ordered by
// timestamp, then site code, then pollutant code, regardless of fetch
// completion order. A (site, pollutant) pair wholly missing from the input
// (for example after an exhausted-retries failure upstream) contributes fully
// gapped rows rather than disappearing from the table.
func Merge(series map[SeriesKey]NormalizedSeries, grid []time.Time, sites []string, pollutants []PollutantKind) []TidyRow {
	orderedSites := make([]string, len(sites))
	copy(orderedSites, sites)
	sort.Strings(orderedSites)

	orderedPollutants := make([]PollutantKind, len(pollutants))
	copy(orderedPollutants, pollutants)
	sort.Slice(orderedPollutants, func(i, j int) bool {
		return orderedPollutants[i] < orderedPollutants[j]
	})

	rows := make([]TidyRow, 0, len(grid)*len(orderedSites)*len(orderedPollutants))
	for i, tick := range grid {
		for _, site := range orderedSites {
			for _, pollutant := range orderedPollutants {
				row := TidyRow{
					Timestamp: tick,
					Site:      site,
					Pollutant: pollutant,
					IsGap:     true,
				}

				if ns, ok := series[SeriesKey{Site: site, Pollutant: pollutant}]; ok && i < len(ns) {
					if p := ns[i]; !p.Gap {
						v := p.Value
						row.Value = &v
						row.IsGap = false
					}
				}

				rows = append(rows, row)
			}
		}
	}
	return rows
}
