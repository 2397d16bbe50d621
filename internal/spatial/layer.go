package spatial

import (
	"fmt"
	"sort"

	"github.com/frances-ha/egm722/internal/feature"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geos"
)

// strtreeNodeCapacity is the GEOS default.
const strtreeNodeCapacity = 10

// Layer holds a collection's geometries converted to GEOS once, indexed by
// an STRtree on their envelopes for pre-filtering.
type Layer struct {
	Collection *feature.Collection
	geoms      []*geos.Geom
	bounds     []*geom.Bounds
	tree       *geos.STRtree
}

// NewLayer converts every geometry in c. Call Destroy when done.
func NewLayer(c *feature.Collection) (*Layer, error) {
	l := &Layer{
		Collection: c,
		geoms:      make([]*geos.Geom, len(c.Features)),
		bounds:     make([]*geom.Bounds, len(c.Features)),
		tree:       geos.DefaultContext.NewSTRtree(strtreeNodeCapacity),
	}
	for i, f := range c.Features {
		if f.Geometry == nil {
			continue
		}
		g, err := ToGEOS(f.Geometry)
		if err != nil {
			l.Destroy()
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		l.geoms[i] = g
		l.bounds[i] = f.Geometry.Bounds()
		if err := l.tree.Insert(g, i); err != nil {
			l.Destroy()
			return nil, fmt.Errorf("index feature %d: %w", i, err)
		}
	}
	return l, nil
}

// Len returns the number of features in the layer.
func (l *Layer) Len() int { return len(l.geoms) }

// Geom returns the GEOS geometry of feature i, nil when it has none.
func (l *Layer) Geom(i int) *geos.Geom { return l.geoms[i] }

// Bounds returns the envelope of feature i.
func (l *Layer) Bounds(i int) *geom.Bounds { return l.bounds[i] }

// Candidates returns, in ascending order, the indices whose envelope
// intersects b. Touching envelopes count.
func (l *Layer) Candidates(b *geom.Bounds) []int {
	if b == nil || b.IsEmpty() {
		return nil
	}
	env := geos.NewGeomFromBounds(b.Min(0), b.Min(1), b.Max(0), b.Max(1))
	defer env.Destroy()

	var idx []int
	l.tree.Query(env, func(v any) {
		idx = append(idx, v.(int))
	})
	sort.Ints(idx)
	return idx
}

// Destroy releases the index and the GEOS geometries.
func (l *Layer) Destroy() {
	if l.tree != nil {
		l.tree.Destroy()
		l.tree = nil
	}
	for i, g := range l.geoms {
		if g != nil {
			g.Destroy()
			l.geoms[i] = nil
		}
	}
}
