package parser

import (
	"fmt"
	"math"

	"github.com/floorplan-studio/backend/internal/models"
)

// segment is one wall-like stroke extracted from a classified element.
type segment struct {
	start, end models.Point2D
	width      float64 // 0 when the source entity carries no explicit width
	wallType   models.WallType
	srcLine    int
}

// Reconstructor merges wall strokes into walls and closes boundary chains
// into room polygons.
type Reconstructor struct {
	cfg Config
}

// NewReconstructor creates a Reconstructor with the given tuning.
func NewReconstructor(cfg Config) *Reconstructor {
	return &Reconstructor{cfg: cfg}
}

// BuildWalls merges collinear, touching wall-role strokes into maximal
// walls. Duplicate and overlapping CAD strokes collapse into one wall.
// Merging an already-merged wall set yields the same set.
func (r *Reconstructor) BuildWalls(elements []models.ClassifiedElement) ([]models.Wall, []Finding) {
	segments := extractSegments(elements)

	findings := make([]Finding, 0)
	usable := make([]segment, 0, len(segments))
	for _, s := range segments {
		length := distance(s.start, s.end)
		if length < epsilon {
			findings = append(findings, Finding{
				Kind:    FindingShortWall,
				Message: fmt.Sprintf("zero-length wall stroke at (%.2f, %.2f)", s.start.X, s.start.Y),
			})
			continue
		}
		if length < r.cfg.MinWallLength {
			findings = append(findings, Finding{
				Kind:    FindingShortWall,
				Message: fmt.Sprintf("wall stroke shorter than %.2f units at (%.2f, %.2f)", r.cfg.MinWallLength, s.start.X, s.start.Y),
			})
		}
		usable = append(usable, s)
	}

	// Absorbing one stroke can extend a wall far enough to reach another,
	// so repeat the pass until a full pass merges nothing. Each merging
	// pass shortens the list, so this terminates.
	merged := usable
	for {
		next, changed := r.mergePass(merged)
		merged = next
		if !changed {
			break
		}
	}

	walls := make([]models.Wall, 0, len(merged))
	for i, s := range merged {
		thickness := s.width
		if thickness <= 0 {
			thickness = r.cfg.DefaultWallThickness
		}
		walls = append(walls, models.Wall{
			ID:        fmt.Sprintf("wall-%d", i+1),
			Start:     s.start,
			End:       s.end,
			Height:    r.cfg.DefaultWallHeight,
			Thickness: thickness,
			Type:      s.wallType,
		})
	}

	return walls, findings
}

// mergePass folds each segment into the first compatible segment already
// accumulated, reporting whether any merge happened.
func (r *Reconstructor) mergePass(segments []segment) ([]segment, bool) {
	out := make([]segment, 0, len(segments))
	changed := false
	for _, s := range segments {
		placed := false
		for i := range out {
			if out[i].wallType != s.wallType {
				continue
			}
			if r.canMerge(out[i], s) {
				out[i] = mergeSegments(out[i], s)
				placed = true
				changed = true
				break
			}
		}
		if !placed {
			out = append(out, s)
		}
	}
	return out, changed
}

// canMerge reports whether two segments are collinear within the angular
// tolerance and touch (or overlap) within the endpoint tolerance.
func (r *Reconstructor) canMerge(a, b segment) bool {
	da := direction(a)
	db := direction(b)

	// Angle between directions, sign-insensitive.
	dot := math.Abs(da.X*db.X + da.Y*db.Y)
	if dot > 1 {
		dot = 1
	}
	angle := math.Acos(dot) * 180 / math.Pi
	if angle > r.cfg.AngularToleranceDeg {
		return false
	}

	// Both endpoints of b must lie on a's carrier line.
	if perpDistance(a, b.start) > r.cfg.EndpointTolerance ||
		perpDistance(a, b.end) > r.cfg.EndpointTolerance {
		return false
	}

	// Projection intervals must overlap or be within tolerance.
	aMin, aMax := projectionInterval(a, a)
	bMin, bMax := projectionInterval(a, b)
	return bMin <= aMax+r.cfg.EndpointTolerance && aMin <= bMax+r.cfg.EndpointTolerance
}

// mergeSegments spans the extreme projections of both segments along the
// first segment's direction.
func mergeSegments(a, b segment) segment {
	d := direction(a)
	origin := a.start

	project := func(p models.Point2D) float64 {
		return (p.X-origin.X)*d.X + (p.Y-origin.Y)*d.Y
	}

	tMin, tMax := 0.0, project(a.end)
	if tMax < tMin {
		tMin, tMax = tMax, tMin
	}
	for _, p := range []models.Point2D{b.start, b.end} {
		t := project(p)
		if t < tMin {
			tMin = t
		}
		if t > tMax {
			tMax = t
		}
	}

	width := a.width
	if b.width > width {
		width = b.width
	}

	return segment{
		start:    models.Point2D{X: origin.X + d.X*tMin, Y: origin.Y + d.Y*tMin},
		end:      models.Point2D{X: origin.X + d.X*tMax, Y: origin.Y + d.Y*tMax},
		width:    width,
		wallType: a.wallType,
		srcLine:  a.srcLine,
	}
}

// BuildRooms groups boundary strokes into closed polygons using an
// endpoint-matching walk over a tolerance-bucketed endpoint grid, then
// computes each room's area and centroid. Chains that fail to return to
// their start are reported as findings, not rooms.
func (r *Reconstructor) BuildRooms(elements []models.ClassifiedElement) ([]models.Room, []Finding) {
	findings := make([]Finding, 0)
	polygons := make([][]models.Point2D, 0)

	// Closed polylines are already polygons.
	open := make([]segment, 0)
	for _, el := range elements {
		if el.Role != models.RoleRoomBoundary {
			continue
		}
		e := el.Entity
		if e.Kind == models.EntityKindPolyline && e.Closed && len(e.Points) >= 3 {
			polygons = append(polygons, e.Points)
			continue
		}
		for _, s := range entitySegments(e, models.WallTypeWall) {
			if distance(s.start, s.end) >= epsilon {
				open = append(open, s)
			}
		}
	}

	closed, unclosed := r.walkChains(open)
	polygons = append(polygons, closed...)
	for _, chain := range unclosed {
		findings = append(findings, Finding{
			Kind: FindingUnclosedRoom,
			Message: fmt.Sprintf("room boundary chain of %d segments does not close (free end at %.2f, %.2f)",
				len(chain)-1, chain[len(chain)-1].X, chain[len(chain)-1].Y),
		})
	}

	rooms := make([]models.Room, 0, len(polygons))
	for i, poly := range polygons {
		area := math.Abs(shoelaceArea(poly))
		if area < epsilon {
			findings = append(findings, Finding{
				Kind:    FindingZeroAreaRoom,
				Message: fmt.Sprintf("room polygon with %d vertices has non-positive area (self-intersecting or degenerate)", len(poly)),
			})
			continue
		}
		rooms = append(rooms, models.Room{
			ID:       fmt.Sprintf("room-%d", i+1),
			Polygon:  poly,
			Area:     area,
			Position: centroid(poly),
		})
	}

	return rooms, findings
}

// walkChains connects open segments end-to-end. A chain closes when the
// free end returns to within the endpoint tolerance of its start.
func (r *Reconstructor) walkChains(segments []segment) (closed [][]models.Point2D, unclosed [][]models.Point2D) {
	tol := r.cfg.EndpointTolerance
	grid := newEndpointGrid(tol)
	for i := range segments {
		grid.add(i, segments[i].start)
		grid.add(i, segments[i].end)
	}

	used := make([]bool, len(segments))

	for i := range segments {
		if used[i] {
			continue
		}
		used[i] = true

		chain := []models.Point2D{segments[i].start, segments[i].end}

		for {
			free := chain[len(chain)-1]

			// Closed when the free end meets the chain start again.
			if len(chain) >= 4 && distance(free, chain[0]) <= tol {
				closed = append(closed, chain[:len(chain)-1])
				chain = nil
				break
			}

			next := -1
			var nextPoint models.Point2D
			bestDist := tol + 1
			for _, j := range grid.near(free) {
				if used[j] {
					continue
				}
				if d := distance(segments[j].start, free); d <= tol && d < bestDist {
					next, nextPoint, bestDist = j, segments[j].end, d
				}
				if d := distance(segments[j].end, free); d <= tol && d < bestDist {
					next, nextPoint, bestDist = j, segments[j].start, d
				}
			}

			if next < 0 {
				break
			}
			used[next] = true
			chain = append(chain, nextPoint)
		}

		if chain != nil {
			// Triangle closing on the third point is valid: check once more
			// with the start included.
			if len(chain) >= 3 && distance(chain[len(chain)-1], chain[0]) <= tol {
				closed = append(closed, chain[:len(chain)-1])
			} else {
				unclosed = append(unclosed, chain)
			}
		}
	}

	return closed, unclosed
}

// endpointGrid buckets points on a tolerance-sized grid so chain walking
// avoids quadratic endpoint matching.
type endpointGrid struct {
	cell    float64
	buckets map[[2]int][]int
}

func newEndpointGrid(tolerance float64) *endpointGrid {
	cell := tolerance
	if cell <= 0 {
		cell = epsilon
	}
	return &endpointGrid{cell: cell, buckets: make(map[[2]int][]int)}
}

func (g *endpointGrid) key(p models.Point2D) [2]int {
	return [2]int{int(math.Floor(p.X / g.cell)), int(math.Floor(p.Y / g.cell))}
}

func (g *endpointGrid) add(id int, p models.Point2D) {
	k := g.key(p)
	g.buckets[k] = append(g.buckets[k], id)
}

// near returns candidate segment ids around p, covering the 3x3 cell
// neighborhood so tolerance matches across bucket edges are not missed.
func (g *endpointGrid) near(p models.Point2D) []int {
	k := g.key(p)
	out := make([]int, 0, 8)
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			out = append(out, g.buckets[[2]int{k[0] + dx, k[1] + dy}]...)
		}
	}
	return out
}

// extractSegments pulls wall-like strokes out of wall, door and window
// role elements, preserving the opening type.
func extractSegments(elements []models.ClassifiedElement) []segment {
	segments := make([]segment, 0, len(elements))
	for _, el := range elements {
		var wt models.WallType
		switch el.Role {
		case models.RoleWall:
			wt = models.WallTypeWall
		case models.RoleDoor:
			wt = models.WallTypeDoor
		case models.RoleWindow:
			wt = models.WallTypeWindow
		default:
			continue
		}
		segments = append(segments, entitySegments(el.Entity, wt)...)
	}
	return segments
}

// entitySegments decomposes one entity into strokes. Polylines contribute
// one stroke per edge, plus the closing edge when flagged closed.
func entitySegments(e models.RawEntity, wt models.WallType) []segment {
	width := 0.0
	if w, ok := e.Attributes["width"]; ok {
		fmt.Sscanf(w, "%g", &width)
	}

	switch e.Kind {
	case models.EntityKindLine:
		if len(e.Points) < 2 {
			return nil
		}
		return []segment{{start: e.Points[0], end: e.Points[1], width: width, wallType: wt, srcLine: e.Line}}
	case models.EntityKindPolyline:
		if len(e.Points) < 2 {
			return nil
		}
		out := make([]segment, 0, len(e.Points))
		for i := 0; i+1 < len(e.Points); i++ {
			out = append(out, segment{start: e.Points[i], end: e.Points[i+1], width: width, wallType: wt, srcLine: e.Line})
		}
		if e.Closed {
			out = append(out, segment{start: e.Points[len(e.Points)-1], end: e.Points[0], width: width, wallType: wt, srcLine: e.Line})
		}
		return out
	default:
		return nil
	}
}

const epsilon = 1e-9

func distance(a, b models.Point2D) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// direction returns the unit direction of a segment.
func direction(s segment) models.Point2D {
	d := distance(s.start, s.end)
	if d < epsilon {
		return models.Point2D{X: 1, Y: 0}
	}
	return models.Point2D{X: (s.end.X - s.start.X) / d, Y: (s.end.Y - s.start.Y) / d}
}

// perpDistance is the perpendicular distance from p to the carrier line
// of s.
func perpDistance(s segment, p models.Point2D) float64 {
	d := direction(s)
	vx, vy := p.X-s.start.X, p.Y-s.start.Y
	return math.Abs(vx*d.Y - vy*d.X)
}

// projectionInterval projects seg's endpoints onto base's direction axis.
func projectionInterval(base, seg segment) (float64, float64) {
	d := direction(base)
	origin := base.start
	t1 := (seg.start.X-origin.X)*d.X + (seg.start.Y-origin.Y)*d.Y
	t2 := (seg.end.X-origin.X)*d.X + (seg.end.Y-origin.Y)*d.Y
	if t1 > t2 {
		t1, t2 = t2, t1
	}
	return t1, t2
}

// shoelaceArea returns the signed polygon area. The polygon is implicitly
// closed; a duplicated final vertex is tolerated.
func shoelaceArea(poly []models.Point2D) float64 {
	n := len(poly)
	if n >= 2 && distance(poly[0], poly[n-1]) < epsilon {
		poly = poly[:n-1]
		n--
	}
	if n < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += poly[i].X*poly[j].Y - poly[j].X*poly[i].Y
	}
	return sum / 2
}

// centroid returns the area-weighted polygon centroid, falling back to the
// vertex average for degenerate polygons.
func centroid(poly []models.Point2D) models.Point2D {
	n := len(poly)
	if n >= 2 && distance(poly[0], poly[n-1]) < epsilon {
		poly = poly[:n-1]
		n--
	}
	if n == 0 {
		return models.Point2D{}
	}

	area := shoelaceArea(poly)
	if math.Abs(area) < epsilon {
		var cx, cy float64
		for _, p := range poly {
			cx += p.X
			cy += p.Y
		}
		return models.Point2D{X: cx / float64(n), Y: cy / float64(n)}
	}

	var cx, cy float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		cross := poly[i].X*poly[j].Y - poly[j].X*poly[i].Y
		cx += (poly[i].X + poly[j].X) * cross
		cy += (poly[i].Y + poly[j].Y) * cross
	}
	return models.Point2D{X: cx / (6 * area), Y: cy / (6 * area)}
}

// pointInPolygon reports whether p lies inside poly (ray casting).
func pointInPolygon(p models.Point2D, poly []models.Point2D) bool {
	n := len(poly)
	if n < 3 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		pi, pj := poly[i], poly[j]
		if (pi.Y > p.Y) != (pj.Y > p.Y) &&
			p.X < (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y)+pi.X {
			inside = !inside
		}
	}
	return inside
}
