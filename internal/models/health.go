package models

// Severity grades a health issue.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// HealthIssue describes one structural problem found during extraction.
type HealthIssue struct {
	Severity        Severity `json:"severity"`
	Message         string   `json:"message"`
	RelatedEntityID string   `json:"relatedEntityId,omitempty"`
}

// HealthReport summarizes structural completeness of an extracted plan.
// The score is advisory: a plan with score 0 is still returned.
type HealthReport struct {
	Score  int           `json:"score"` // 0-100
	Issues []HealthIssue `json:"issues"`
}

// NewHealthReport returns a report with a perfect score and no issues.
func NewHealthReport() *HealthReport {
	return &HealthReport{
		Score:  100,
		Issues: make([]HealthIssue, 0),
	}
}
