// Package catalog holds the static reference data for the monitoring network:
// the fixed set of LAQN stations we query and the pollutant species with their
// WHO guideline and UK legal annual-mean limits. Both are loaded once at init
// and never mutated at runtime.
package catalog

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed sites.yaml
var sitesYAML []byte

// Site describes one monitoring station.
type Site struct {
	Code    string `yaml:"code" json:"code"`
	Name    string `yaml:"name" json:"name"`
	Borough string `yaml:"borough" json:"borough"`
}

// Pollutant describes one measured species. Limits are annual means in ug/m3
// and are informational for presentation consumers only; the pipeline never
// interprets them.
type Pollutant struct {
	// Code is the LAQN species code used on the wire (PM2.5 is "PM25").
	Code         string  `json:"code"`
	Name         string  `json:"name"`
	WHOGuideline float64 `json:"whoGuideline"`
	UKLimit      float64 `json:"ukLimit"`
}

var (
	sites       []Site
	sitesByCode map[string]Site

	pollutants = []Pollutant{
		{Code: "PM10", Name: "Particulate matter <=10um", WHOGuideline: 15, UKLimit: 40},
		{Code: "PM25", Name: "Particulate matter <=2.5um", WHOGuideline: 5, UKLimit: 25},
		{Code: "NO2", Name: "Nitrogen dioxide", WHOGuideline: 10, UKLimit: 40},
	}
	pollutantsByCode map[string]Pollutant
)

func init() {
	var doc struct {
		Sites []Site `yaml:"sites"`
	}
	if err := yaml.Unmarshal(sitesYAML, &doc); err != nil {
		panic(fmt.Sprintf("catalog: invalid embedded sites.yaml: %v", err))
	}
	if len(doc.Sites) == 0 {
		panic("catalog: embedded sites.yaml lists no sites")
	}

	sites = doc.Sites
	sort.Slice(sites, func(i, j int) bool { return sites[i].Code < sites[j].Code })

	sitesByCode = make(map[string]Site, len(sites))
	for _, s := range sites {
		sitesByCode[s.Code] = s
	}

	pollutantsByCode = make(map[string]Pollutant, len(pollutants))
	for _, p := range pollutants {
		pollutantsByCode[p.Code] = p
	}
}

// Sites returns all monitoring stations ordered by code.
func Sites() []Site {
	out := make([]Site, len(sites))
	copy(out, sites)
	return out
}

// SiteByCode looks up a station by its site code.
func SiteByCode(code string) (Site, bool) {
	s, ok := sitesByCode[code]
	return s, ok
}

// Pollutants returns all known pollutant species.
func Pollutants() []Pollutant {
	out := make([]Pollutant, len(pollutants))
	copy(out, pollutants)
	return out
}

// PollutantByCode looks up a pollutant by its species code.
func PollutantByCode(code string) (Pollutant, bool) {
	p, ok := pollutantsByCode[code]
	return p, ok
}
