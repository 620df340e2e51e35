package parser

import (
	"github.com/floorplan-studio/backend/internal/models"
)

// FindingKind classifies a structural problem for penalty scoring.
type FindingKind string

const (
	FindingUnclosedRoom  FindingKind = "unclosedRoom"
	FindingZeroAreaRoom  FindingKind = "zeroAreaRoom"
	FindingShortWall     FindingKind = "shortWall"
	FindingUnknownLayer  FindingKind = "unknownLayer"
	FindingLowConfidence FindingKind = "lowConfidenceScale"
	FindingDegraded      FindingKind = "degradedPath"
)

// Finding is one structural observation emitted by a pipeline stage.
type Finding struct {
	Kind            FindingKind
	Message         string
	RelatedEntityID string
}

// Penalties holds the per-class score deductions. Read-only after
// construction.
type Penalties struct {
	UnclosedRoom    int `xml:"UnclosedRoomPenalty"`
	UnclosedRoomCap int `xml:"UnclosedRoomPenaltyCap"`
	ZeroAreaRoom    int `xml:"ZeroAreaRoomPenalty"`
	ShortWall       int `xml:"ShortWallPenalty"`
	UnknownLayer    int `xml:"UnknownLayerPenalty"`
}

// DefaultPenalties returns the standard deduction weights.
func DefaultPenalties() Penalties {
	return Penalties{
		UnclosedRoom:    10,
		UnclosedRoomCap: 40,
		ZeroAreaRoom:    15,
		ShortWall:       2,
		UnknownLayer:    5,
	}
}

// Scorer turns findings into a 0-100 health report. The score is advisory:
// it never gates the result.
type Scorer struct {
	penalties Penalties
}

// NewScorer creates a Scorer with the given weights.
func NewScorer(penalties Penalties) *Scorer {
	return &Scorer{penalties: penalties}
}

// Score starts at 100 and subtracts fixed penalties per finding class,
// flooring at 0. Every deduction appends a structured issue; findings that
// carry no penalty (info-grade) still surface as issues.
func (s *Scorer) Score(findings []Finding) *models.HealthReport {
	report := models.NewHealthReport()

	unclosedTotal := 0
	for _, f := range findings {
		severity := models.SeverityWarning
		penalty := 0

		switch f.Kind {
		case FindingUnclosedRoom:
			penalty = s.penalties.UnclosedRoom
			if unclosedTotal+penalty > s.penalties.UnclosedRoomCap {
				penalty = s.penalties.UnclosedRoomCap - unclosedTotal
				if penalty < 0 {
					penalty = 0
				}
			}
			unclosedTotal += penalty
		case FindingZeroAreaRoom:
			severity = models.SeverityError
			penalty = s.penalties.ZeroAreaRoom
		case FindingShortWall:
			penalty = s.penalties.ShortWall
		case FindingUnknownLayer:
			penalty = s.penalties.UnknownLayer
		case FindingLowConfidence:
			severity = models.SeverityInfo
		case FindingDegraded:
			severity = models.SeverityWarning
		}

		report.Score -= penalty
		report.Issues = append(report.Issues, models.HealthIssue{
			Severity:        severity,
			Message:         f.Message,
			RelatedEntityID: f.RelatedEntityID,
		})
	}

	if report.Score < 0 {
		report.Score = 0
	}
	return report
}
