// Package project reprojects feature collections between coordinate
// reference systems using PROJ.
package project

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/frances-ha/egm722/internal/feature"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-proj/v10"
)

// DefaultTarget is UTM zone 29N on WGS84, the planar CRS the analysis runs in.
const DefaultTarget = "EPSG:32629"

// Geographic is the lon/lat CRS graticules are defined in.
const Geographic = "EPSG:4326"

// Projector transforms collections into a fixed target CRS.
// Transformations are created lazily and cached per source CRS.
type Projector struct {
	target string
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]*proj.PJ
}

// New creates a Projector targeting target. A nil logger discards output.
func New(target string, logger *slog.Logger) *Projector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if target == "" {
		target = DefaultTarget
	}
	return &Projector{
		target: target,
		logger: logger,
		cache:  make(map[string]*proj.PJ),
	}
}

// Target returns the CRS the projector writes.
func (p *Projector) Target() string { return p.target }

// transform returns a cached source->target transformation with lon/lat axis
// order for geographic CRSs.
func (p *Projector) transform(source string) (*proj.PJ, error) {
	if pj, ok := p.cache[source]; ok {
		return pj, nil
	}
	raw, err := proj.NewCRSToCRS(source, p.target, nil)
	if err != nil {
		return nil, fmt.Errorf("create transformation to %s: %w", p.target, err)
	}
	defer raw.Destroy()
	pj, err := raw.NormalizeForVisualization()
	if err != nil {
		return nil, fmt.Errorf("normalize axis order: %w", err)
	}
	p.logger.Debug("created transformation", "source", feature.ShortCRS(source), "target", p.target)
	p.cache[source] = pj
	return pj, nil
}

// Reproject returns a deep copy of c with every geometry transformed to the
// target CRS. Attributes are copied unchanged and c is left untouched.
func (p *Projector) Reproject(c *feature.Collection) (*feature.Collection, error) {
	if c.CRS == "" {
		return nil, fmt.Errorf("collection has no CRS")
	}
	out, err := c.Clone()
	if err != nil {
		return nil, err
	}
	out.CRS = p.target
	if c.CRS == p.target {
		return out, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pj, err := p.transform(c.CRS)
	if err != nil {
		return nil, err
	}
	for i, f := range out.Features {
		if err := forward(pj, f.Geometry); err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
	}
	return out, nil
}

// Inverse returns a deep copy of c (which must be in the target CRS)
// transformed back into source.
func (p *Projector) Inverse(c *feature.Collection, source string) (*feature.Collection, error) {
	if c.CRS != p.target {
		return nil, fmt.Errorf("collection is in %s, not %s", feature.ShortCRS(c.CRS), p.target)
	}
	out, err := c.Clone()
	if err != nil {
		return nil, err
	}
	out.CRS = source

	p.mu.Lock()
	defer p.mu.Unlock()

	pj, err := p.transform(source)
	if err != nil {
		return nil, err
	}
	for i, f := range out.Features {
		if f.Geometry == nil {
			continue
		}
		if err := pj.InverseFlatCoords(f.Geometry.FlatCoords(), f.Geometry.Stride(), -1, -1); err != nil {
			return nil, fmt.Errorf("feature %d: inverse: %w", i, err)
		}
	}
	return out, nil
}

// Points transforms interleaved x,y pairs from source into the target CRS in place.
func (p *Projector) Points(source string, xy []float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pj, err := p.transform(source)
	if err != nil {
		return err
	}
	return pj.ForwardFlatCoords(xy, 2, -1, -1)
}

// Close releases every cached transformation.
func (p *Projector) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, pj := range p.cache {
		pj.Destroy()
		delete(p.cache, k)
	}
}

func forward(pj *proj.PJ, g geom.T) error {
	if g == nil {
		return nil
	}
	if err := pj.ForwardFlatCoords(g.FlatCoords(), g.Stride(), -1, -1); err != nil {
		return fmt.Errorf("forward: %w", err)
	}
	return nil
}
