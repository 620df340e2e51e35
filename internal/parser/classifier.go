package parser

import (
	"strings"

	"github.com/floorplan-studio/backend/internal/models"
)

// PatternTable holds the layer-name and block-name substring patterns the
// classifier matches against. All matching is case-insensitive substring.
// The table is read-only after construction so concurrent invocations can
// share one instance.
type PatternTable struct {
	WallLayers      []string `yaml:"wallLayers"`
	DoorLayers      []string `yaml:"doorLayers"`
	WindowLayers    []string `yaml:"windowLayers"`
	RoomLayers      []string `yaml:"roomLayers"`
	FurnitureBlocks []string `yaml:"furnitureBlocks"`
	IgnoreLayers    []string `yaml:"ignoreLayers"`
}

// DefaultPatternTable returns the built-in CAD layer naming conventions.
func DefaultPatternTable() PatternTable {
	return PatternTable{
		WallLayers:      []string{"WALL", "A-WALL", "MUR"},
		DoorLayers:      []string{"DOOR", "A-DOOR"},
		WindowLayers:    []string{"WINDOW", "A-GLAZ", "GLAZ"},
		RoomLayers:      []string{"ROOM", "AREA", "SPACE", "A-AREA"},
		FurnitureBlocks: []string{"CHAIR", "DESK", "TABLE", "SOFA", "BED", "CABINET", "TOILET", "SINK", "FURN"},
		IgnoreLayers:    []string{"DEFPOINTS", "DIM", "HATCH", "TITLE"},
	}
}

// classifierRule is one (predicate, role) pair. Rules are evaluated in
// order; the first match wins and no entity ever receives two roles.
type classifierRule struct {
	name  string
	match func(e *models.RawEntity) bool
	role  models.Role
}

// Classifier maps raw entities to semantic roles using an ordered rule set.
type Classifier struct {
	rules []classifierRule
}

// NewClassifier builds a classifier from a pattern table. Rule order
// implements the tie-break contract: layer-name rules take precedence over
// entity-kind rules.
func NewClassifier(patterns PatternTable) *Classifier {
	matchLayer := func(candidates []string) func(e *models.RawEntity) bool {
		return func(e *models.RawEntity) bool {
			return matchesAny(e.Layer, candidates)
		}
	}

	rules := []classifierRule{
		{
			name:  "ignored-layer",
			match: matchLayer(patterns.IgnoreLayers),
			role:  models.RoleIgnored,
		},
		{
			name: "door-layer",
			match: func(e *models.RawEntity) bool {
				return isSegmentKind(e.Kind) && matchesAny(e.Layer, patterns.DoorLayers)
			},
			role: models.RoleDoor,
		},
		{
			name: "window-layer",
			match: func(e *models.RawEntity) bool {
				return isSegmentKind(e.Kind) && matchesAny(e.Layer, patterns.WindowLayers)
			},
			role: models.RoleWindow,
		},
		{
			name: "wall-layer",
			match: func(e *models.RawEntity) bool {
				return isSegmentKind(e.Kind) && matchesAny(e.Layer, patterns.WallLayers)
			},
			role: models.RoleWall,
		},
		{
			name: "room-layer",
			match: func(e *models.RawEntity) bool {
				return isSegmentKind(e.Kind) && matchesAny(e.Layer, patterns.RoomLayers)
			},
			role: models.RoleRoomBoundary,
		},
		{
			name: "furniture-block",
			match: func(e *models.RawEntity) bool {
				if e.Kind != models.EntityKindInsert {
					return false
				}
				return matchesAny(e.Attributes["name"], patterns.FurnitureBlocks)
			},
			role: models.RoleFurniture,
		},
		{
			name: "closed-polyline",
			match: func(e *models.RawEntity) bool {
				return e.Kind == models.EntityKindPolyline && e.Closed && len(e.Points) >= 3
			},
			role: models.RoleRoomBoundary,
		},
		{
			name: "text",
			match: func(e *models.RawEntity) bool {
				return e.Kind == models.EntityKindText
			},
			role: models.RoleAnnotation,
		},
	}

	return &Classifier{rules: rules}
}

// Classify assigns a role to every entity. Re-running on identical input
// always yields identical classification.
func (c *Classifier) Classify(entities []models.RawEntity) []models.ClassifiedElement {
	elements := make([]models.ClassifiedElement, 0, len(entities))
	for _, e := range entities {
		role, _ := c.classifyOne(&e)
		elements = append(elements, models.ClassifiedElement{
			Entity: e,
			Role:   role,
		})
	}
	return elements
}

// UnmappedLayers returns the distinct layer names whose entities matched no
// rule at all, in first-seen order. These layers feed the health scorer.
func (c *Classifier) UnmappedLayers(entities []models.RawEntity) []string {
	seen := make(map[string]struct{})
	layers := make([]string, 0)
	for _, e := range entities {
		if e.Layer == "" {
			continue
		}
		if _, matched := c.classifyOne(&e); matched {
			continue
		}
		if _, ok := seen[e.Layer]; ok {
			continue
		}
		seen[e.Layer] = struct{}{}
		layers = append(layers, e.Layer)
	}
	return layers
}

func (c *Classifier) classifyOne(e *models.RawEntity) (models.Role, bool) {
	for _, rule := range c.rules {
		if rule.match(e) {
			return rule.role, true
		}
	}
	return models.RoleIgnored, false
}

// isSegmentKind reports whether an entity carries wall-like line geometry.
func isSegmentKind(kind models.EntityKind) bool {
	return kind == models.EntityKindLine || kind == models.EntityKindPolyline
}

// matchesAny reports a case-insensitive substring match against any pattern.
func matchesAny(name string, patterns []string) bool {
	if name == "" {
		return false
	}
	upper := strings.ToUpper(name)
	for _, p := range patterns {
		if p != "" && strings.Contains(upper, strings.ToUpper(p)) {
			return true
		}
	}
	return false
}
