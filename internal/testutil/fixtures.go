package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
)

// WGS84WKT is the .prj content ArcGIS writes for plain lon/lat data.
const WGS84WKT = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

// Record is one shapefile row: clockwise shells, counter-clockwise holes.
type Record struct {
	Rings [][]shp.Point
	Attrs []any
}

// Box returns a clockwise closed ring.
func Box(x0, y0, x1, y1 float64) []shp.Point {
	return []shp.Point{{X: x0, Y: y0}, {X: x0, Y: y1}, {X: x1, Y: y1}, {X: x1, Y: y0}, {X: x0, Y: y0}}
}

// Reverse returns the ring with opposite winding.
func Reverse(ring []shp.Point) []shp.Point {
	out := make([]shp.Point, len(ring))
	for i, p := range ring {
		out[len(ring)-1-i] = p
	}
	return out
}

// WriteShapefile writes records as a polygon shapefile at path, plus a .prj
// when prj is non-empty.
func WriteShapefile(t testing.TB, path, prj string, fields []shp.Field, records []Record) {
	t.Helper()

	base := strings.TrimSuffix(path, filepath.Ext(path))
	w, err := shp.Create(base+".shp", shp.POLYGON)
	if err != nil {
		t.Fatalf("create shapefile %s: %v", path, err)
	}
	if err := w.SetFields(fields); err != nil {
		t.Fatalf("set fields: %v", err)
	}
	for _, rec := range records {
		poly := shp.Polygon(*shp.NewPolyLine(rec.Rings))
		n := w.Write(&poly)
		for i, v := range rec.Attrs {
			if err := w.WriteAttribute(int(n), i, v); err != nil {
				w.Close()
				t.Fatalf("record %d field %d: %v", n, i, err)
			}
		}
	}
	w.Close()

	// go-shp names the attribute table <base>dbf, without the dot.
	if err := os.Rename(base+"dbf", base+".dbf"); err != nil {
		t.Fatalf("rename dbf: %v", err)
	}

	if prj != "" {
		if err := os.WriteFile(base+".prj", []byte(prj), 0o644); err != nil {
			t.Fatalf("write prj: %v", err)
		}
	}
}

// Grid maps the planar fixture units below onto real coordinates.
type Grid struct {
	CRS    string
	X0, Y0 float64
	Scale  float64
}

// Planar keeps fixture units as-is in UTM 29N, offset into Northern Ireland.
var Planar = Grid{CRS: "EPSG:32629", X0: 600000, Y0: 6000000, Scale: 1000}

// Geographic places the fixture on a lon/lat grid around 7W 54N.
var Geographic = Grid{CRS: WGS84WKT, X0: -7, Y0: 54, Scale: 0.05}

func (g Grid) box(x0, y0, x1, y1 float64) []shp.Point {
	return Box(g.X0+x0*g.Scale, g.Y0+y0*g.Scale, g.X0+x1*g.Scale, g.Y0+y1*g.Scale)
}

// TwoCounties writes the standard fixture into dir and returns the county and
// ward shapefile paths.
//
// Counties ANTRIM [0,10]x[0,10] and DOWN [10,20]x[0,10]. Wards: Alpha inside
// ANTRIM (pop 1000), Bravo inside DOWN (pop 2000), Charlie straddling both at
// [8,12]x[5,8] (pop 3000).
func TwoCounties(t testing.TB, dir string, g Grid) (counties, wards string) {
	t.Helper()

	counties = filepath.Join(dir, "Counties.shp")
	wards = filepath.Join(dir, "NI_Wards.shp")

	WriteShapefile(t, counties, g.CRS,
		[]shp.Field{shp.StringField("CountyName", 32), shp.NumberField("Area_SqKM", 10)},
		[]Record{
			{Rings: [][]shp.Point{g.box(0, 0, 10, 10)}, Attrs: []any{"ANTRIM", 100}},
			{Rings: [][]shp.Point{g.box(10, 0, 20, 10)}, Attrs: []any{"DOWN", 100}},
		})

	WriteShapefile(t, wards, g.CRS,
		[]shp.Field{shp.StringField("Ward", 32), shp.NumberField("Population", 10)},
		[]Record{
			{Rings: [][]shp.Point{g.box(1, 1, 4, 4)}, Attrs: []any{"Alpha", 1000}},
			{Rings: [][]shp.Point{g.box(11, 1, 14, 4)}, Attrs: []any{"Bravo", 2000}},
			{Rings: [][]shp.Point{g.box(8, 5, 12, 8)}, Attrs: []any{"Charlie", 3000}},
		})
	return counties, wards
}
