package testutil

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTwoCounties_WritesSidecars(t *testing.T) {
	dir := t.TempDir()
	TwoCounties(t, dir, Planar)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	assert.Equal(t, []string{
		"Counties.dbf", "Counties.prj", "Counties.shp", "Counties.shx",
		"NI_Wards.dbf", "NI_Wards.prj", "NI_Wards.shp", "NI_Wards.shx",
	}, names)
}

func TestWriteShapefile_AttributesReadBack(t *testing.T) {
	dir := t.TempDir()
	_, wards := TwoCounties(t, dir, Planar)

	r, err := shp.Open(wards)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	fields := r.Fields()
	require.Len(t, fields, 2)
	assert.Equal(t, "Ward", strings.TrimRight(string(fields[0].Name[:]), "\x00"))

	var got []string
	for r.Next() {
		n, _ := r.Shape()
		got = append(got, cell(r.ReadAttribute(n, 0))+"="+cell(r.ReadAttribute(n, 1)))
	}
	assert.Equal(t, []string{"Alpha=1000", "Bravo=2000", "Charlie=3000"}, got)
}

func TestWriteShapefile_NoPRJ(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.shp")
	WriteShapefile(t, path, "", []shp.Field{shp.StringField("Name", 10)},
		[]Record{{Rings: [][]shp.Point{Box(0, 0, 1, 1)}, Attrs: []any{"x"}}})

	assert.FileExists(t, filepath.Join(filepath.Dir(path), "plain.dbf"))
	assert.NoFileExists(t, filepath.Join(filepath.Dir(path), "plain.prj"))
}

func cell(raw string) string {
	return strings.Trim(raw, "\x00 ")
}
