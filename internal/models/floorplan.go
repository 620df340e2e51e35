package models

// WallType distinguishes plain walls from openings that are geometrically
// wall segments.
type WallType string

const (
	WallTypeWall   WallType = "wall"
	WallTypeWindow WallType = "window"
	WallTypeDoor   WallType = "door"
)

// Wall is a reconstructed wall segment. Created by merging one or more
// collinear wall-role entities; immutable after creation.
// Invariants: Start != End, Thickness > 0, Height > 0.
type Wall struct {
	ID        string   `json:"id"`
	Start     Point2D  `json:"start"`
	End       Point2D  `json:"end"`
	Height    float64  `json:"height"`
	Thickness float64  `json:"thickness"`
	Type      WallType `json:"type"`
}

// Room is a closed room polygon with derived area and centroid.
// Invariants: Polygon has >= 3 vertices and Area > 0 for a usable room.
type Room struct {
	ID       string    `json:"id"`
	Label    string    `json:"label,omitempty"`
	Type     string    `json:"type,omitempty"`
	Polygon  []Point2D `json:"polygon"`
	Area     float64   `json:"area"`
	Position Point2D   `json:"position"` // centroid
}

// Furniture is a placed block reference (chair, desk, fixture).
type Furniture struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Position Point2D `json:"position"`
	Rotation float64 `json:"rotation,omitempty"`
}

// Bounds describes the normalized drawing extent.
type Bounds struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Scale  float64 `json:"scale"`
}

// FloorPlan is the aggregate root produced by one parse invocation.
// It exclusively owns its walls, rooms and furniture; a new parse always
// produces a new FloorPlan.
type FloorPlan struct {
	Bounds          Bounds      `json:"bounds"`
	Walls           []Wall      `json:"walls"`
	Rooms           []Room      `json:"rooms"`
	FurnitureBlocks []Furniture `json:"furnitureBlocks"`
}

// NewFloorPlan creates an empty FloorPlan with unit scale.
func NewFloorPlan() *FloorPlan {
	return &FloorPlan{
		Bounds:          Bounds{Scale: 1},
		Walls:           make([]Wall, 0),
		Rooms:           make([]Room, 0),
		FurnitureBlocks: make([]Furniture, 0),
	}
}

// TotalArea sums the usable room areas.
func (fp *FloorPlan) TotalArea() float64 {
	var total float64
	for _, r := range fp.Rooms {
		total += r.Area
	}
	return total
}
