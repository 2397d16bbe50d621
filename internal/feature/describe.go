package feature

import (
	"fmt"
	"strings"

	"github.com/twpayne/go-geom"
)

// Describe summarises a geometry as "POLYGON (5 pts)" style text.
func Describe(g geom.T) string {
	switch x := g.(type) {
	case nil:
		return "EMPTY"
	case *geom.Polygon:
		return fmt.Sprintf("POLYGON (%d rings, %d pts)", x.NumLinearRings(), x.NumCoords())
	case *geom.MultiPolygon:
		return fmt.Sprintf("MULTIPOLYGON (%d parts, %d pts)", x.NumPolygons(), x.NumCoords())
	default:
		return fmt.Sprintf("%T", g)
	}
}

// ShortCRS collapses whitespace in a CRS definition and trims long WKT to 48
// characters for logs and tables.
func ShortCRS(crs string) string {
	crs = strings.Join(strings.Fields(crs), " ")
	if len(crs) > 48 {
		return crs[:45] + "..."
	}
	return crs
}
