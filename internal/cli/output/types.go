package output

import "time"

// RunOutput is the JSON document `countymap run -o json` prints.
type RunOutput struct {
	RunID        string         `json:"run_id,omitempty"`
	Status       string         `json:"status"`
	Duration     string         `json:"duration"`
	TargetCRS    string         `json:"target_crs"`
	JoinRows     int            `json:"join_rows"`
	Counties     []CountyRow    `json:"counties"`
	Straddlers   []StraddlerRow `json:"straddlers"`
	Fragments    int            `json:"fragments"`
	ClipTotal    float64        `json:"clip_total"`
	MapPath      string         `json:"map_path,omitempty"`
	FragmentsOut string         `json:"fragments_out,omitempty"`
	DuckDB       string         `json:"duckdb,omitempty"`
}

// CountyRow is one county in run and history output.
type CountyRow struct {
	County         string  `json:"county"`
	Population     float64 `json:"population"`
	Wards          int     `json:"wards"`
	BoundaryLength float64 `json:"boundary_length"`
}

// StraddlerRow is a ward intersecting more than one county.
type StraddlerRow struct {
	Ward     int      `json:"ward"`
	Counties []string `json:"counties"`
}

// InspectOutput describes one dataset.
type InspectOutput struct {
	Path     string     `json:"path"`
	CRS      string     `json:"crs"`
	Features int        `json:"features"`
	Fields   []string   `json:"fields"`
	Bounds   []float64  `json:"bounds,omitempty"`
	Header   []string   `json:"header"`
	Rows     [][]string `json:"rows"`
}

// RunRecord is one run in history output.
type RunRecord struct {
	ID           string      `json:"id"`
	Status       string      `json:"status"`
	CountiesPath string      `json:"counties_path"`
	WardsPath    string      `json:"wards_path"`
	TargetCRS    string      `json:"target_crs"`
	MapPath      string      `json:"map_path,omitempty"`
	JoinRows     int         `json:"join_rows"`
	Fragments    int         `json:"fragments"`
	ClipTotal    float64     `json:"clip_total"`
	StartedAt    time.Time   `json:"started_at"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
	Error        string      `json:"error,omitempty"`
	Counties     []CountyRow `json:"counties,omitempty"`
}
