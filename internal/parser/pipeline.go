package parser

import (
	"fmt"
	"math"
	"strconv"

	"github.com/floorplan-studio/backend/internal/models"
)

// Config is the process-wide pipeline tuning: tolerances, pattern tables
// and penalty weights. It is explicitly constructed, read-only after
// initialization, and passed into the pipeline entry point so concurrent
// invocations with different tuning never cross-contaminate.
type Config struct {
	// AngularToleranceDeg is the maximum angle between two strokes that
	// still counts as collinear.
	AngularToleranceDeg float64
	// EndpointTolerance is the maximum endpoint gap, in drawing units, for
	// wall merging and room chain closing.
	EndpointTolerance float64
	// MinWallLength is the minimum viable wall length in drawing units.
	MinWallLength float64
	// DefaultWallThickness is applied when a stroke carries no explicit
	// width, in drawing units.
	DefaultWallThickness float64
	// TargetWallThickness is the typical architectural wall thickness in
	// meters, used for scale inference.
	TargetWallThickness float64
	// DefaultWallHeight is the wall height in meters.
	DefaultWallHeight float64

	Patterns  PatternTable
	Penalties Penalties
}

// DefaultConfig returns the standard pipeline tuning.
func DefaultConfig() Config {
	return Config{
		AngularToleranceDeg:  1.0,
		EndpointTolerance:    0.05,
		MinWallLength:        0.1,
		DefaultWallThickness: 0.2,
		TargetWallThickness:  0.2,
		DefaultWallHeight:    2.7,
		Patterns:             DefaultPatternTable(),
		Penalties:            DefaultPenalties(),
	}
}

// ProgressFunc is called after each pipeline stage completes.
type ProgressFunc func(stage string, progress float64)

// Pipeline runs the full extraction: read, classify, reconstruct,
// normalize, score. One Pipeline is safe for concurrent use; each Run
// owns all of its intermediate state.
type Pipeline struct {
	cfg        Config
	reader     *Reader
	classifier *Classifier
	recon      *Reconstructor
	scorer     *Scorer
}

// NewPipeline creates a Pipeline with the given configuration.
func NewPipeline(cfg Config) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		reader:     NewReader(),
		classifier: NewClassifier(cfg.Patterns),
		recon:      NewReconstructor(cfg),
		scorer:     NewScorer(cfg.Penalties),
	}
}

// Run extracts a validated floor plan from raw drawing text. Geometry
// problems become health issues rather than errors; only input that cannot
// be tokenized at all fails, with a FormatError.
func (p *Pipeline) Run(text, fileName string, onProgress ProgressFunc) (*models.ParseResult, error) {
	report := func(stage string, pct float64) {
		if onProgress != nil {
			onProgress(stage, pct)
		}
	}

	drawing, err := p.reader.Read(text)
	if err != nil {
		return nil, err
	}
	report("read", 20)

	elements := p.classifier.Classify(drawing.Entities)
	report("classify", 35)

	findings := make([]Finding, 0)

	walls, wallFindings := p.recon.BuildWalls(elements)
	findings = append(findings, wallFindings...)
	report("walls", 55)

	rooms, roomFindings := p.recon.BuildRooms(elements)
	findings = append(findings, roomFindings...)
	report("rooms", 70)

	fp := models.NewFloorPlan()
	fp.Walls = walls
	fp.Rooms = rooms
	fp.FurnitureBlocks = extractFurniture(elements)

	labelRooms(fp.Rooms, elements)

	normalizer := NewNormalizer(p.cfg, drawing.Header)
	confident := normalizer.Normalize(fp)
	if !confident && len(fp.Walls) > 0 {
		findings = append(findings, Finding{
			Kind:    FindingLowConfidence,
			Message: "drawing declares no unit hint and wall thickness carries no scale signal; coordinates kept at unit scale",
		})
	}
	report("normalize", 85)

	for _, layer := range p.classifier.UnmappedLayers(drawing.Entities) {
		findings = append(findings, Finding{
			Kind:    FindingUnknownLayer,
			Message: fmt.Sprintf("layer %q matched no classification rule", layer),
		})
	}

	health := p.scorer.Score(findings)
	report("score", 100)

	return &models.ParseResult{
		Success:    true,
		SourceType: models.SourceTypeDXF,
		CADMetadata: models.CADMetadata{
			FileName: fileName,
			Entities: len(drawing.Entities),
		},
		FloorPlan: models.FloorPlanSummary{
			TotalArea: fp.TotalArea(),
			Bounds:    fp.Bounds,
			Scale:     fp.Bounds.Scale,
		},
		Rooms:       fp.Rooms,
		Walls:       fp.Walls,
		HealthCheck: *health,
	}, nil
}

// RunDegraded is the reduced-fidelity synchronous path used when the
// primary execution context is unavailable. It runs only the reader and a
// minimal classification pass: walls and rooms stay empty, the result
// reports entity count and nominal bounds, and a health issue records that
// the primary path was unavailable. It always returns a result.
func (p *Pipeline) RunDegraded(text, fileName, reason string) *models.ParseResult {
	findings := []Finding{{
		Kind:    FindingDegraded,
		Message: "primary extraction path unavailable, reduced-fidelity result: " + reason,
	}}

	entityCount := 0
	var bounds models.Bounds

	drawing, err := p.reader.Read(text)
	if err != nil {
		findings = append(findings, Finding{
			Kind:    FindingDegraded,
			Message: "drawing could not be tokenized: " + err.Error(),
		})
	} else {
		entityCount = len(drawing.Entities)
		bounds = nominalBounds(drawing.Entities)
	}

	health := p.scorer.Score(findings)

	return &models.ParseResult{
		Success:    true,
		SourceType: models.SourceTypeFallback,
		CADMetadata: models.CADMetadata{
			FileName: fileName,
			Entities: entityCount,
		},
		FloorPlan: models.FloorPlanSummary{
			Bounds: bounds,
			Scale:  1,
		},
		Rooms:       make([]models.Room, 0),
		Walls:       make([]models.Wall, 0),
		HealthCheck: *health,
	}
}

// nominalBounds is the raw point extent, unit scale, for degraded results.
func nominalBounds(entities []models.RawEntity) models.Bounds {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	found := false
	for _, e := range entities {
		for _, pt := range e.Points {
			minX = math.Min(minX, pt.X)
			minY = math.Min(minY, pt.Y)
			maxX = math.Max(maxX, pt.X)
			maxY = math.Max(maxY, pt.Y)
			found = true
		}
	}
	if !found {
		return models.Bounds{Scale: 1}
	}
	return models.Bounds{Width: maxX - minX, Height: maxY - minY, Scale: 1}
}

// extractFurniture turns furniture-role inserts into placed blocks.
func extractFurniture(elements []models.ClassifiedElement) []models.Furniture {
	furniture := make([]models.Furniture, 0)
	for _, el := range elements {
		if el.Role != models.RoleFurniture {
			continue
		}
		e := el.Entity
		var pos models.Point2D
		if len(e.Points) > 0 {
			pos = e.Points[0]
		}
		rotation := 0.0
		if raw, ok := e.Attributes["rotation"]; ok {
			if v, err := strconv.ParseFloat(raw, 64); err == nil {
				rotation = v
			}
		}
		furniture = append(furniture, models.Furniture{
			ID:       fmt.Sprintf("furn-%d", len(furniture)+1),
			Name:     e.Attributes["name"],
			Position: pos,
			Rotation: rotation,
		})
	}
	return furniture
}

// labelRooms attaches the first annotation found inside each room polygon
// as its label. Room type classification itself is delegated to the
// downstream label/area lookup.
func labelRooms(rooms []models.Room, elements []models.ClassifiedElement) {
	for i := range rooms {
		for _, el := range elements {
			if el.Role != models.RoleAnnotation || len(el.Entity.Points) == 0 {
				continue
			}
			text := el.Entity.Attributes["text"]
			if text == "" {
				continue
			}
			if pointInPolygon(el.Entity.Points[0], rooms[i].Polygon) {
				rooms[i].Label = text
				break
			}
		}
	}
}
