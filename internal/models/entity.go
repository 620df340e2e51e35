// Package models contains domain types for the floor-plan extraction service.
package models

// EntityKind represents the kind of a raw drawing entity.
type EntityKind string

const (
	EntityKindLine     EntityKind = "line"
	EntityKindPolyline EntityKind = "polyline"
	EntityKindInsert   EntityKind = "insert"
	EntityKindText     EntityKind = "text"
	EntityKindUnknown  EntityKind = "unknown"
)

// Point2D is a coordinate in drawing units.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// RawEntity is a single drawing entity as read from the entity stream.
// It is immutable once read; the reader hands ownership to the classifier.
type RawEntity struct {
	Kind       EntityKind        `json:"kind"`
	Layer      string            `json:"layer"`
	Points     []Point2D         `json:"points"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Closed     bool              `json:"closed,omitempty"` // polyline closed flag
	Line       int               `json:"-"`                // source line for diagnostics
}

// Role is the semantic role assigned to an entity by the classifier.
type Role string

const (
	RoleWall         Role = "wall"
	RoleDoor         Role = "door"
	RoleWindow       Role = "window"
	RoleRoomBoundary Role = "roomBoundary"
	RoleFurniture    Role = "furniture"
	RoleAnnotation   Role = "annotation"
	RoleIgnored      Role = "ignored"
)

// ClassifiedElement is a raw entity tagged with its semantic role.
// Exactly one classified element per raw entity.
type ClassifiedElement struct {
	Entity RawEntity `json:"entity"`
	Role   Role      `json:"role"`
}
