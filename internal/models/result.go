package models

// SourceType identifies which extraction path produced a result.
type SourceType string

const (
	SourceTypeDXF      SourceType = "DXF"
	SourceTypeFallback SourceType = "DXF-FALLBACK"
)

// CADMetadata carries diagnostic information about the source drawing.
type CADMetadata struct {
	FileName string `json:"fileName"`
	Entities int    `json:"entities"`
}

// FloorPlanSummary is the condensed plan view in the result envelope.
type FloorPlanSummary struct {
	TotalArea float64 `json:"totalArea"`
	Bounds    Bounds  `json:"bounds"`
	Scale     float64 `json:"scale"`
}

// ParseResult is the output contract consumed by rendering and UI
// collaborators.
type ParseResult struct {
	Success     bool             `json:"success"`
	SourceType  SourceType       `json:"sourceType"`
	CADMetadata CADMetadata      `json:"cadMetadata"`
	FloorPlan   FloorPlanSummary `json:"floorPlan"`
	Rooms       []Room           `json:"rooms"`
	Walls       []Wall           `json:"walls"`
	HealthCheck HealthReport     `json:"healthCheck"`
}
