package analysis

import (
	"fmt"

	"github.com/frances-ha/egm722/internal/feature"
)

// Straddler is a ward that intersects more than one county.
type Straddler struct {
	WardIndex int
	Ward      *feature.Feature
	Counties  []string
}

// Straddlers lists the wards appearing in more than one join row, in ward
// order, with the names of the counties they touch. rows must be grouped by
// ward, as Join returns them.
func Straddlers(rows []JoinRow, countyField string) ([]Straddler, error) {
	var out []Straddler
	for i := 0; i < len(rows); {
		j := i
		for j < len(rows) && rows[j].WardIndex == rows[i].WardIndex {
			j++
		}
		if j-i > 1 {
			s := Straddler{WardIndex: rows[i].WardIndex, Ward: rows[i].Ward}
			for _, r := range rows[i:j] {
				name, err := r.County.String(countyField)
				if err != nil {
					return nil, fmt.Errorf("county %d: %w", r.CountyIndex, err)
				}
				s.Counties = append(s.Counties, name)
			}
			out = append(out, s)
		}
		i = j
	}
	return out, nil
}
