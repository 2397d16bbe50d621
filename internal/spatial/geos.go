// Package spatial bridges go-geom geometries to GEOS for the topological
// operations the analysis needs: predicates, overlay and measurement.
//
// Geometries cross the boundary as WKB. GEOS reports topology failures by
// panicking inside go-geos; every exported function converts those panics
// into errors.
package spatial

import (
	"fmt"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	"github.com/twpayne/go-geos"
)

// ToGEOS converts a go-geom geometry to a GEOS geometry.
func ToGEOS(g geom.T) (*geos.Geom, error) {
	b, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return nil, fmt.Errorf("encode wkb: %w", err)
	}
	gg, err := geos.NewGeomFromWKB(b)
	if err != nil {
		return nil, fmt.Errorf("geos from wkb: %w", err)
	}
	return gg, nil
}

// FromGEOS converts a GEOS geometry back to go-geom.
func FromGEOS(g *geos.Geom) (geom.T, error) {
	t, err := wkb.Unmarshal(g.ToWKB())
	if err != nil {
		return nil, fmt.Errorf("decode wkb: %w", err)
	}
	return t, nil
}

func guard(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: geos: %v", op, r)
		}
	}()
	return fn()
}

// Intersects reports whether a and b share any point.
func Intersects(a, b *geos.Geom) (ok bool, err error) {
	err = guard("intersects", func() error {
		ok = a.Intersects(b)
		return nil
	})
	return ok, err
}

// Intersection returns the polygonal part of a ∩ b, or nil when the overlap
// has no area (disjoint, or touching along an edge or at a point).
func Intersection(a, b *geos.Geom) (geom.T, error) {
	return overlay("intersection", func() *geos.Geom { return a.Intersection(b) })
}

// Difference returns the polygonal part of a − b, or nil when nothing remains.
func Difference(a, b *geos.Geom) (geom.T, error) {
	return overlay("difference", func() *geos.Geom { return a.Difference(b) })
}

func overlay(op string, fn func() *geos.Geom) (geom.T, error) {
	var out geom.T
	err := guard(op, func() error {
		r := fn()
		if r == nil {
			return fmt.Errorf("%s returned no geometry", op)
		}
		defer r.Destroy()
		if r.IsEmpty() {
			return nil
		}
		t, err := FromGEOS(r)
		if err != nil {
			return err
		}
		out = Polygonal(t)
		return nil
	})
	return out, err
}

// Union merges geometries into one. It returns nil for no input.
func Union(gs ...geom.T) (geom.T, error) {
	if len(gs) == 0 {
		return nil, nil
	}
	var out geom.T
	err := guard("union", func() error {
		acc, err := ToGEOS(gs[0])
		if err != nil {
			return err
		}
		for _, g := range gs[1:] {
			next, err := ToGEOS(g)
			if err != nil {
				acc.Destroy()
				return err
			}
			merged := acc.Union(next)
			acc.Destroy()
			next.Destroy()
			acc = merged
		}
		defer acc.Destroy()
		t, err := FromGEOS(acc)
		if err != nil {
			return err
		}
		out = Polygonal(t)
		return nil
	})
	return out, err
}

// SymDifferenceArea returns the area of a △ b. Two geometries covering the
// same region yield zero, up to floating-point noise.
func SymDifferenceArea(a, b geom.T) (area float64, err error) {
	err = guard("symdifference", func() error {
		ga, err := ToGEOS(a)
		if err != nil {
			return err
		}
		defer ga.Destroy()
		gb, err := ToGEOS(b)
		if err != nil {
			return err
		}
		defer gb.Destroy()
		d := ga.SymDifference(gb)
		defer d.Destroy()
		area = d.Area()
		return nil
	})
	return area, err
}

// Polygonal keeps the areal part of an overlay result. Lines and points
// produced where shapes merely touch are dropped; nil means nothing remains.
func Polygonal(g geom.T) geom.T {
	switch x := g.(type) {
	case *geom.Polygon:
		if x.NumLinearRings() == 0 {
			return nil
		}
		return x
	case *geom.MultiPolygon:
		if x.NumPolygons() == 0 {
			return nil
		}
		if x.NumPolygons() == 1 {
			return x.Polygon(0)
		}
		return x
	case *geom.GeometryCollection:
		mp := geom.NewMultiPolygon(geom.XY)
		for _, part := range x.Geoms() {
			switch p := Polygonal(part).(type) {
			case *geom.Polygon:
				_ = mp.Push(p)
			case *geom.MultiPolygon:
				for i := 0; i < p.NumPolygons(); i++ {
					_ = mp.Push(p.Polygon(i))
				}
			}
		}
		return Polygonal(mp)
	default:
		return nil
	}
}

// Perimeter returns the total boundary length of a polygonal geometry,
// holes included. Non-polygonal input has no perimeter.
func Perimeter(g geom.T) float64 {
	switch x := g.(type) {
	case *geom.Polygon:
		return x.Length()
	case *geom.MultiPolygon:
		return x.Length()
	default:
		return 0
	}
}

// Area returns the planar area of a polygonal geometry.
func Area(g geom.T) float64 {
	switch x := g.(type) {
	case *geom.Polygon:
		return x.Area()
	case *geom.MultiPolygon:
		return x.Area()
	default:
		return 0
	}
}
