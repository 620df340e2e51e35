package parser

import (
	"math"
	"strconv"
	"strings"

	"github.com/floorplan-studio/backend/internal/models"
)

// insunitsScale maps DXF $INSUNITS codes to drawing-unit-to-meter
// multipliers. Unlisted codes mean "no explicit hint".
var insunitsScale = map[int]float64{
	1: 0.0254, // inches
	2: 0.3048, // feet
	4: 0.001,  // millimeters
	5: 0.01,   // centimeters
	6: 1,      // meters
}

// Normalizer derives the drawing bounds and re-expresses all coordinates
// in metric space with the origin at the bounds' minimum corner.
type Normalizer struct {
	cfg    Config
	header map[string]string
}

// NewNormalizer creates a Normalizer. The header carries explicit unit
// hints from the drawing, and may be nil.
func NewNormalizer(cfg Config, header map[string]string) *Normalizer {
	return &Normalizer{cfg: cfg, header: header}
}

// Normalize translates and scales the plan in a single idempotent pass:
// an already-normalized plan (scale recorded, minimum corner at zero)
// resolves to scale 1 and zero translation, so re-normalizing is a no-op.
// The returned flag reports whether the scale was resolved with confidence.
func (n *Normalizer) Normalize(fp *models.FloorPlan) bool {
	scale, confident := n.resolveScale(fp)

	minX, minY, maxX, maxY, ok := planExtent(fp)
	if !ok {
		fp.Bounds = models.Bounds{Scale: fp.Bounds.Scale}
		if fp.Bounds.Scale == 1 {
			fp.Bounds.Scale = scale
		}
		return confident
	}

	transform := func(p models.Point2D) models.Point2D {
		return models.Point2D{X: (p.X - minX) * scale, Y: (p.Y - minY) * scale}
	}

	for i := range fp.Walls {
		fp.Walls[i].Start = transform(fp.Walls[i].Start)
		fp.Walls[i].End = transform(fp.Walls[i].End)
		fp.Walls[i].Thickness *= scale
	}
	for i := range fp.Rooms {
		for j := range fp.Rooms[i].Polygon {
			fp.Rooms[i].Polygon[j] = transform(fp.Rooms[i].Polygon[j])
		}
		fp.Rooms[i].Position = transform(fp.Rooms[i].Position)
		fp.Rooms[i].Area *= scale * scale
	}
	for i := range fp.FurnitureBlocks {
		fp.FurnitureBlocks[i].Position = transform(fp.FurnitureBlocks[i].Position)
	}

	fp.Bounds = models.Bounds{
		Width:  (maxX - minX) * scale,
		Height: (maxY - minY) * scale,
		Scale:  fp.Bounds.Scale * scale,
	}

	return confident
}

// resolveScale picks the drawing-unit-to-meter multiplier. Precedence:
// already-normalized plan (scale 1), explicit header unit hint, modal
// wall-thickness inference.
func (n *Normalizer) resolveScale(fp *models.FloorPlan) (float64, bool) {
	// A plan with a non-unit recorded scale has already been normalized;
	// the unit hint was consumed on the first pass.
	if fp.Bounds.Scale != 1 && fp.Bounds.Scale != 0 {
		return 1, true
	}

	if n.header != nil {
		if raw, ok := n.header["$INSUNITS"]; ok {
			if code, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
				if s, ok := insunitsScale[code]; ok {
					return s, true
				}
			}
		}
	}

	return n.inferFromThickness(fp)
}

// inferFromThickness compares the most common wall thickness against the
// typical architectural wall band. The heuristic is tunable, not
// load-bearing: when every thickness is the configured default the
// inference carries no signal and resolves to 1 with low confidence.
func (n *Normalizer) inferFromThickness(fp *models.FloorPlan) (float64, bool) {
	if len(fp.Walls) == 0 {
		return 1, false
	}

	counts := make(map[float64]int)
	explicit := false
	for _, w := range fp.Walls {
		counts[w.Thickness]++
		if math.Abs(w.Thickness-n.cfg.DefaultWallThickness) > epsilon {
			explicit = true
		}
	}
	if !explicit {
		return 1, false
	}

	var modal float64
	best := 0
	for t, c := range counts {
		if c > best || (c == best && t < modal) {
			modal, best = t, c
		}
	}
	if modal < epsilon {
		return 1, false
	}

	scale := n.cfg.TargetWallThickness / modal

	// A modal thickness already inside the architectural band needs no
	// rescaling; treat near-unit factors as exactly 1.
	if math.Abs(scale-1) < 0.05 {
		return 1, true
	}
	return scale, true
}

// planExtent returns the axis-aligned bounding box over wall and room
// geometry, falling back to furniture positions when no geometry exists.
func planExtent(fp *models.FloorPlan) (minX, minY, maxX, maxY float64, ok bool) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)

	include := func(p models.Point2D) {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
		ok = true
	}

	for _, w := range fp.Walls {
		include(w.Start)
		include(w.End)
	}
	for _, r := range fp.Rooms {
		for _, p := range r.Polygon {
			include(p)
		}
	}
	if !ok {
		for _, f := range fp.FurnitureBlocks {
			include(f.Position)
		}
	}

	return minX, minY, maxX, maxY, ok
}
