package analysis

import (
	"fmt"
	"sort"

	"github.com/frances-ha/egm722/internal/feature"
)

// CountyTotal is one row of the population summary.
type CountyTotal struct {
	County string
	Total  float64
	// Wards counts join rows, so a ward straddling two counties counts in both.
	Wards int
}

// Summary is the per-county aggregate, ordered by county name.
type Summary []CountyTotal

// Get returns the row for county.
func (s Summary) Get(county string) (CountyTotal, bool) {
	for _, r := range s {
		if r.County == county {
			return r, true
		}
	}
	return CountyTotal{}, false
}

// Total sums every county row.
func (s Summary) Total() float64 {
	var t float64
	for _, r := range s {
		t += r.Total
	}
	return t
}

// numeric reads a value field; a present but blank cell counts as zero.
func numeric(f *feature.Feature, field string) (float64, error) {
	if v, ok := f.Properties[field]; ok && v == nil {
		return 0, nil
	}
	return f.Float(field)
}

// Aggregate groups join rows by the county's countyField and sums the ward's
// valueField. Wards in several counties contribute to each.
func Aggregate(rows []JoinRow, countyField, valueField string) (Summary, error) {
	byCounty := make(map[string]*CountyTotal)
	for _, r := range rows {
		name, err := r.County.String(countyField)
		if err != nil {
			return nil, fmt.Errorf("county %d: %w", r.CountyIndex, err)
		}
		v, err := numeric(r.Ward, valueField)
		if err != nil {
			return nil, fmt.Errorf("ward %d: %w", r.WardIndex, err)
		}
		ct, ok := byCounty[name]
		if !ok {
			ct = &CountyTotal{County: name}
			byCounty[name] = ct
		}
		ct.Total += v
		ct.Wards++
	}

	s := make(Summary, 0, len(byCounty))
	for _, ct := range byCounty {
		s = append(s, *ct)
	}
	sort.Slice(s, func(i, j int) bool { return s[i].County < s[j].County })
	return s, nil
}
