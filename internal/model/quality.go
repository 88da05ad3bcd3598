package model

import "time"

// IssueType classifies a data_quality_log entry.
type IssueType string

const (
	IssueGap        IssueType = "gap"
	IssueOutlier    IssueType = "outlier"
	IssueIncomplete IssueType = "incomplete"
	IssueInvalid    IssueType = "invalid"
	IssueFetchError IssueType = "fetch_error"
)

// ValidIssueTypes lists the accepted issue_type values.
var ValidIssueTypes = map[IssueType]bool{
	IssueGap:        true,
	IssueOutlier:    true,
	IssueIncomplete: true,
	IssueInvalid:    true,
	IssueFetchError: true,
}

// Severity is an ordered anomaly severity.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from 1 (low) to 4 (critical). Unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// QualityAnomaly is one append-only data_quality_log record.
type QualityAnomaly struct {
	ID          int64     `json:"id"`
	Symbol      string    `json:"symbol"`
	Date        time.Time `json:"date"`
	IssueType   IssueType `json:"issueType"`
	Severity    Severity  `json:"severity"`
	Description string    `json:"description"`
	DetectedAt  time.Time `json:"detectedAt"`
}

// DateKey returns the anomaly date in storage format.
func (a QualityAnomaly) DateKey() string {
	return a.Date.Format(DateLayout)
}

// QualityFilters narrows data_quality_log queries.
type QualityFilters struct {
	Symbol    string
	IssueType IssueType
	Limit     int
}
