package analysis

import (
	"context"
	"testing"

	"github.com/frances-ha/egm722/internal/feature"
	"github.com/frances-ha/egm722/internal/spatial"
	"github.com/frances-ha/egm722/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

const crs = "EPSG:32629"

func rect(x0, y0, x1, y1 float64) *geom.Polygon {
	return geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{x0, y0}, {x0, y1}, {x1, y1}, {x1, y0}, {x0, y0},
	}})
}

// fixture: two side-by-side counties and three wards, one straddling the
// shared boundary at x=10.
func fixture() (wards, counties *feature.Collection) {
	counties = feature.New(crs, "CountyName")
	counties.Add(&feature.Feature{Geometry: rect(0, 0, 10, 10), Properties: map[string]any{"CountyName": "ANTRIM"}})
	counties.Add(&feature.Feature{Geometry: rect(10, 0, 20, 10), Properties: map[string]any{"CountyName": "DOWN"}})

	wards = feature.New(crs, "Ward", "Population")
	wards.Add(&feature.Feature{Geometry: rect(1, 1, 4, 4), Properties: map[string]any{"Ward": "Alpha", "Population": 1000.0}})
	wards.Add(&feature.Feature{Geometry: rect(11, 1, 14, 4), Properties: map[string]any{"Ward": "Bravo", "Population": 2000.0}})
	wards.Add(&feature.Feature{Geometry: rect(8, 5, 12, 8), Properties: map[string]any{"Ward": "Charlie", "Population": 3000.0}})
	return wards, counties
}

func TestJoin(t *testing.T) {
	wards, counties := fixture()
	// Touches DOWN along x=20 only, and lies outside both counties otherwise.
	wards.Add(&feature.Feature{Geometry: rect(20, 0, 22, 2), Properties: map[string]any{"Ward": "Delta", "Population": 50.0}})
	// Far away: dropped by the inner join.
	wards.Add(&feature.Feature{Geometry: rect(100, 100, 101, 101), Properties: map[string]any{"Ward": "Echo", "Population": 10.0}})

	rows, err := Join(wards, counties)
	require.NoError(t, err)

	type pair struct{ ward, county int }
	var got []pair
	for _, r := range rows {
		got = append(got, pair{r.WardIndex, r.CountyIndex})
	}
	assert.Equal(t, []pair{{0, 0}, {1, 1}, {2, 0}, {2, 1}, {3, 1}}, got)

	assert.Equal(t, "Charlie", rows[2].Properties["Ward"])
	assert.Equal(t, "ANTRIM", rows[2].Properties["CountyName"])
	assert.Equal(t, 0.0, rows[2].Properties[IndexRight])
}

func TestJoin_RowsAlwaysIntersect(t *testing.T) {
	wards, counties := fixture()
	rows, err := Join(wards, counties)
	require.NoError(t, err)
	require.NotEmpty(t, rows)

	for _, r := range rows {
		wg, err := spatial.ToGEOS(r.Ward.Geometry)
		require.NoError(t, err)
		cg, err := spatial.ToGEOS(r.County.Geometry)
		require.NoError(t, err)
		ok, err := spatial.Intersects(wg, cg)
		require.NoError(t, err)
		assert.True(t, ok, "ward %d / county %d", r.WardIndex, r.CountyIndex)
		wg.Destroy()
		cg.Destroy()
	}
}

func TestJoin_ClashingFieldsAreSuffixed(t *testing.T) {
	wards, counties := fixture()
	for _, f := range wards.Features {
		f.Properties["Name"] = "ward"
	}
	wards.Fields = append(wards.Fields, "Name")
	for _, f := range counties.Features {
		f.Properties["Name"] = "county"
	}
	counties.Fields = append(counties.Fields, "Name")

	rows, err := Join(wards, counties)
	require.NoError(t, err)
	assert.Equal(t, "ward", rows[0].Properties["Name"+LeftSuffix])
	assert.Equal(t, "county", rows[0].Properties["Name"+RightSuffix])
	assert.NotContains(t, rows[0].Properties, "Name")

	fields := JoinFields(wards, counties)
	assert.Equal(t, []string{"Ward", "Population", "Name_left", IndexRight, "CountyName", "Name_right"}, fields)

	jc := JoinCollection(rows, wards, counties)
	assert.Equal(t, len(rows), jc.Len())
	assert.Same(t, wards.Features[0].Geometry, jc.Features[0].Geometry)
}

func TestJoin_CRSMismatch(t *testing.T) {
	wards, counties := fixture()
	counties.CRS = "EPSG:4326"

	_, err := Join(wards, counties)
	assert.ErrorIs(t, err, ErrCRSMismatch)

	_, err = ClipByCounty(context.Background(), wards, counties, ClipOptions{CountyField: "CountyName"})
	assert.ErrorIs(t, err, ErrCRSMismatch)
}

func TestAggregate(t *testing.T) {
	wards, counties := fixture()
	rows, err := Join(wards, counties)
	require.NoError(t, err)

	s, err := Aggregate(rows, "CountyName", "Population")
	require.NoError(t, err)

	assert.Equal(t, Summary{
		{County: "ANTRIM", Total: 4000, Wards: 2},
		{County: "DOWN", Total: 5000, Wards: 2},
	}, s)
	assert.Equal(t, 9000.0, s.Total())

	_, ok := s.Get("ARMAGH")
	assert.False(t, ok)
}

func TestAggregate_MatchesBruteForce(t *testing.T) {
	wards, counties := fixture()
	rows, err := Join(wards, counties)
	require.NoError(t, err)
	s, err := Aggregate(rows, "CountyName", "Population")
	require.NoError(t, err)

	for ci, county := range counties.Features {
		cg, err := spatial.ToGEOS(county.Geometry)
		require.NoError(t, err)
		var want float64
		for _, ward := range wards.Features {
			wg, err := spatial.ToGEOS(ward.Geometry)
			require.NoError(t, err)
			if ok, _ := spatial.Intersects(wg, cg); ok {
				pop, err := ward.Float("Population")
				require.NoError(t, err)
				want += pop
			}
			wg.Destroy()
		}
		cg.Destroy()

		name, err := county.String("CountyName")
		require.NoError(t, err)
		got, ok := s.Get(name)
		require.True(t, ok, "county %d", ci)
		assert.Equal(t, want, got.Total, name)
	}
}

func TestAggregate_Errors(t *testing.T) {
	wards, counties := fixture()
	wards.Features[0].Properties["Population"] = "many"
	rows, err := Join(wards, counties)
	require.NoError(t, err)

	_, err = Aggregate(rows, "CountyName", "Population")
	assert.Error(t, err)

	_, err = Aggregate(rows, "County", "Population")
	assert.ErrorIs(t, err, feature.ErrFieldNotFound)

	wards.Features[0].Properties["Population"] = nil
	s, err := Aggregate(rows, "CountyName", "Population")
	require.NoError(t, err)
	antrim, _ := s.Get("ANTRIM")
	assert.Equal(t, 3000.0, antrim.Total)
}

func TestStraddlers(t *testing.T) {
	wards, counties := fixture()
	rows, err := Join(wards, counties)
	require.NoError(t, err)

	st, err := Straddlers(rows, "CountyName")
	require.NoError(t, err)
	require.Len(t, st, 1)
	assert.Equal(t, 2, st[0].WardIndex)
	assert.Equal(t, []string{"ANTRIM", "DOWN"}, st[0].Counties)
}

func TestClipByCounty_TotalIsSumOfPerimeters(t *testing.T) {
	wards, counties := fixture()

	res, err := ClipByCounty(context.Background(), wards, counties, ClipOptions{
		CountyField: "CountyName",
		Logger:      testutil.NewTestLogger(t),
	})
	require.NoError(t, err)

	// Alpha 12, Bravo 12, Charlie split into two 2x3 pieces of 10 each.
	assert.InDelta(t, 44, res.Total, 1e-9)
	require.Equal(t, 4, res.Fragments.Len())
	assert.Equal(t, []CountyLength{
		{County: "ANTRIM", Fragments: 2, Length: 22},
		{County: "DOWN", Fragments: 2, Length: 22},
	}, res.PerCounty)

	var sum float64
	for _, f := range res.Fragments.Features {
		l, err := f.Float(FieldBoundaryLength)
		require.NoError(t, err)
		assert.InDelta(t, spatial.Perimeter(f.Geometry), l, 1e-9)
		sum += l
	}
	assert.InDelta(t, res.Total, sum, 1e-9)
}

func TestClipByCounty_FragmentAttributes(t *testing.T) {
	wards, counties := fixture()
	res, err := ClipByCounty(context.Background(), wards, counties, ClipOptions{CountyField: "CountyName"})
	require.NoError(t, err)

	var charlie []*feature.Feature
	for _, f := range res.Fragments.Features {
		if f.Properties["Ward"] == "Charlie" {
			charlie = append(charlie, f)
		}
	}
	require.Len(t, charlie, 2)
	assert.Equal(t, "ANTRIM", charlie[0].Properties["CountyName"])
	assert.Equal(t, "DOWN", charlie[1].Properties["CountyName"])
	// The population attribute survives clipping untouched.
	assert.Equal(t, 3000.0, charlie[0].Properties["Population"])
	assert.Contains(t, res.Fragments.Fields, FieldBoundaryLength)

	// The input layer is not modified.
	_, has := wards.Features[2].Properties[FieldBoundaryLength]
	assert.False(t, has)
}

func TestClipByCounty_TouchingWardHasNoFragment(t *testing.T) {
	wards, counties := fixture()
	wards.Add(&feature.Feature{Geometry: rect(20, 0, 22, 2), Properties: map[string]any{"Ward": "Delta", "Population": 50.0}})

	res, err := ClipByCounty(context.Background(), wards, counties, ClipOptions{CountyField: "CountyName"})
	require.NoError(t, err)
	for _, f := range res.Fragments.Features {
		assert.NotEqual(t, "Delta", f.Properties["Ward"])
	}
}

func TestClipByCounty_MultiRowCountyIsUnioned(t *testing.T) {
	wards, counties := fixture()
	// A detached piece of ANTRIM containing part of Bravo.
	counties.Add(&feature.Feature{Geometry: rect(12, 2, 13, 3), Properties: map[string]any{"CountyName": "ANTRIM"}})

	res, err := ClipByCounty(context.Background(), wards, counties, ClipOptions{CountyField: "CountyName"})
	require.NoError(t, err)
	require.Equal(t, "ANTRIM", res.PerCounty[0].County)
	assert.Equal(t, 3, res.PerCounty[0].Fragments)
	assert.Len(t, res.PerCounty, 2)
}

func TestClipByCounty_Cancelled(t *testing.T) {
	wards, counties := fixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ClipByCounty(ctx, wards, counties, ClipOptions{CountyField: "CountyName"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClipAndComplementReconstructWard(t *testing.T) {
	wards, counties := fixture()
	extent := rect(-100, -100, 100, 100)

	for _, county := range counties.Features {
		outside, err := Complement(extent, county.Geometry)
		require.NoError(t, err)
		require.NotNil(t, outside)

		for wi, ward := range wards.Features {
			in, err := Clip(ward.Geometry, county.Geometry)
			require.NoError(t, err)
			out, err := Clip(ward.Geometry, outside)
			require.NoError(t, err)

			var pieces []geom.T
			for _, p := range []geom.T{in, out} {
				if p != nil {
					pieces = append(pieces, p)
				}
			}
			rebuilt, err := spatial.Union(pieces...)
			require.NoError(t, err)
			require.NotNil(t, rebuilt, "ward %d", wi)

			diff, err := spatial.SymDifferenceArea(rebuilt, ward.Geometry)
			require.NoError(t, err)
			assert.InDelta(t, 0, diff, 1e-9, "ward %d", wi)
		}
	}
}
