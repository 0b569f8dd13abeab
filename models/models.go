package models

import (
	"fmt"
	"strings"
)

// Row is one data row of the planning spreadsheet
type Row struct {
	RowNumber      int // sheet row number, header is row 1
	ProjectName    string
	FinalDoD       string
	QuarterDoD     string
	ProjectManager string
	IssueType      string
	Description    string
	Lead           string
	Parent         string
}

// ID returns the identifier used for the row in logs and the summary
func (r Row) ID() string {
	return fmt.Sprintf("Row %d", r.RowNumber)
}

// IssueKind selects the field mapping rules applied to a row
type IssueKind string

const (
	KindEpic    IssueKind = "Epic"
	KindQBV     IssueKind = "QBV"
	KindProject IssueKind = "Project"
	KindOnGoing IssueKind = "On-going"
)

// ParseIssueKind matches an "Issue type" cell against the recognized kinds
func ParseIssueKind(value string) (IssueKind, bool) {
	v := strings.ToLower(strings.TrimSpace(value))
	switch v {
	case "epic":
		return KindEpic, true
	case "qbv":
		return KindQBV, true
	case "project":
		return KindProject, true
	case "on-going", "ongoing", "on going":
		return KindOnGoing, true
	}
	return "", false
}

// IssuePayload is the Jira representation built from a single row
type IssuePayload struct {
	Kind        IssueKind
	Project     string
	IssueType   string
	IssueTypeID string
	Summary     string
	Fields      map[string]interface{}

	// FollowUps are applied one by one after the issue exists
	FollowUps map[string]interface{}
}

// CreateFields returns the "fields" object for an issue create request
func (p *IssuePayload) CreateFields() map[string]interface{} {
	fields := make(map[string]interface{}, len(p.Fields)+3)
	for k, v := range p.Fields {
		fields[k] = v
	}

	fields["project"] = map[string]string{"key": p.Project}
	fields["summary"] = p.Summary
	if p.IssueTypeID != "" {
		fields["issuetype"] = map[string]string{"id": p.IssueTypeID}
	} else {
		fields["issuetype"] = map[string]string{"name": p.IssueType}
	}

	return fields
}

// UpdateFields returns the fields that may be sent to an existing issue.
// Project and issue type cannot change through an edit.
func (p *IssuePayload) UpdateFields() map[string]interface{} {
	fields := make(map[string]interface{}, len(p.Fields)+1)
	for k, v := range p.Fields {
		fields[k] = v
	}
	fields["summary"] = p.Summary

	return fields
}

// OutcomeKind is the summary bucket a record belongs to
type OutcomeKind string

const (
	OutcomeCreated              OutcomeKind = "created"
	OutcomeUpdated              OutcomeKind = "updated"
	OutcomeSkipped              OutcomeKind = "skipped"
	OutcomeFailedCreation       OutcomeKind = "failed-creation"
	OutcomeFailedUserAssignment OutcomeKind = "failed-user-assignment"
	OutcomeFailedFieldUpdate    OutcomeKind = "failed-field-update"
)

// OutcomeKinds lists the buckets in report order
var OutcomeKinds = []OutcomeKind{
	OutcomeCreated,
	OutcomeUpdated,
	OutcomeSkipped,
	OutcomeFailedCreation,
	OutcomeFailedUserAssignment,
	OutcomeFailedFieldUpdate,
}

// Primary reports whether the kind is a row's final state rather than a note
func (k OutcomeKind) Primary() bool {
	switch k {
	case OutcomeCreated, OutcomeUpdated, OutcomeSkipped, OutcomeFailedCreation:
		return true
	}
	return false
}

// Failure reports whether the kind counts as a failure
func (k OutcomeKind) Failure() bool {
	switch k {
	case OutcomeFailedCreation, OutcomeFailedUserAssignment, OutcomeFailedFieldUpdate:
		return true
	}
	return false
}

// OutcomeRecord is the result of processing one row
type OutcomeRecord struct {
	Kind      OutcomeKind
	Row       string
	IssueType string
	Summary   string
	IssueKey  string
	Message   string
}

func (r OutcomeRecord) String() string {
	s := fmt.Sprintf("%s: %s", r.Row, r.Summary)
	if r.IssueType != "" {
		s = fmt.Sprintf("%s: %s: %s", r.Row, r.IssueType, r.Summary)
	}
	if r.IssueKey != "" {
		s += fmt.Sprintf(" (%s)", r.IssueKey)
	}
	if r.Message != "" {
		s += " - " + r.Message
	}
	return s
}

// RunSummary accumulates outcome records for one run
type RunSummary struct {
	buckets map[OutcomeKind][]OutcomeRecord
	primary int
}

// NewRunSummary returns an empty summary
func NewRunSummary() *RunSummary {
	return &RunSummary{buckets: make(map[OutcomeKind][]OutcomeRecord)}
}

// Add appends a record to its bucket
func (s *RunSummary) Add(rec OutcomeRecord) {
	s.buckets[rec.Kind] = append(s.buckets[rec.Kind], rec)
	if rec.Kind.Primary() {
		s.primary++
	}
}

// Records returns the records of one bucket in insertion order
func (s *RunSummary) Records(kind OutcomeKind) []OutcomeRecord {
	out := make([]OutcomeRecord, len(s.buckets[kind]))
	copy(out, s.buckets[kind])
	return out
}

// Count returns the number of records in a bucket
func (s *RunSummary) Count(kind OutcomeKind) int {
	return len(s.buckets[kind])
}

// Rows returns the number of rows that reached a final state
func (s *RunSummary) Rows() int {
	return s.primary
}

// HasFailures reports whether any failure bucket has records
func (s *RunSummary) HasFailures() bool {
	for _, kind := range OutcomeKinds {
		if kind.Failure() && s.Count(kind) > 0 {
			return true
		}
	}
	return false
}

// User is a Jira account
type User struct {
	AccountID    string `json:"accountId"`
	AccountType  string `json:"accountType,omitempty"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress,omitempty"`
	Active       bool   `json:"active"`
}

// EmailLocalPart returns the address part before '@'
func (u User) EmailLocalPart() string {
	local, _, _ := strings.Cut(u.EmailAddress, "@")
	return local
}

// FieldOption is an allowed value of a select-list field
type FieldOption struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

// Quarter is a calendar quarter label, Q1..Q4
type Quarter string

// ParseQuarter validates a quarter label
func ParseQuarter(value string) (Quarter, error) {
	q := Quarter(strings.ToUpper(strings.TrimSpace(value)))
	switch q {
	case "Q1", "Q2", "Q3", "Q4":
		return q, nil
	}
	return "", fmt.Errorf("invalid quarter %q: expected one of Q1, Q2, Q3, Q4", value)
}

// NextQuarter returns the quarter after the one containing month (1-12).
// The bool is true when the next quarter falls in the following year.
func NextQuarter(month int) (Quarter, bool) {
	current := (month-1)/3 + 1
	next := current%4 + 1
	return Quarter(fmt.Sprintf("Q%d", next)), next == 1
}
