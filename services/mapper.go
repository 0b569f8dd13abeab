package services

import (
	"errors"
	"fmt"
	"strings"

	"excel2jira/config"
	"excel2jira/models"
)

// ErrMissingSummary is returned for rows without a project name
var ErrMissingSummary = errors.New("project name is empty")

// UnsupportedIssueTypeError is returned for rows whose issue type has no mapping
type UnsupportedIssueTypeError struct {
	Value string
}

func (e *UnsupportedIssueTypeError) Error() string {
	return fmt.Sprintf("unknown issue type '%s'", e.Value)
}

// FieldMapper turns spreadsheet rows into Jira payloads
type FieldMapper struct {
	config  *config.Config
	options *FieldOptions
}

// NewFieldMapper creates a mapper using the resolved option ids
func NewFieldMapper(cfg *config.Config, options *FieldOptions) *FieldMapper {
	if options == nil {
		options = &FieldOptions{}
	}
	return &FieldMapper{
		config:  cfg,
		options: options,
	}
}

// Validate classifies the row without building a payload
func (m *FieldMapper) Validate(row models.Row) (models.IssueKind, error) {
	kind, ok := models.ParseIssueKind(row.IssueType)
	if !ok {
		return "", &UnsupportedIssueTypeError{Value: row.IssueType}
	}
	if row.ProjectName == "" {
		return kind, ErrMissingSummary
	}
	return kind, nil
}

// Map builds the payload for row. manager is the resolved project manager, or nil.
func (m *FieldMapper) Map(row models.Row, manager *models.User) (*models.IssuePayload, error) {
	kind, err := m.Validate(row)
	if err != nil {
		return nil, err
	}

	summary := strings.ReplaceAll(row.ProjectName, `"`, "'")

	payload := &models.IssuePayload{
		Kind:      kind,
		Summary:   summary,
		Fields:    map[string]interface{}{},
		FollowUps: map[string]interface{}{},
	}

	description := buildDescription(row, manager)

	switch kind {
	case models.KindEpic, models.KindProject:
		m.mapPlanned(payload, row, description)
	case models.KindQBV:
		m.mapQBV(payload, row, description)
	case models.KindOnGoing:
		m.mapOnGoing(payload, row, description)
	}

	return payload, nil
}

// mapPlanned fills Epic and Project payloads, which share one shape
func (m *FieldMapper) mapPlanned(p *models.IssuePayload, row models.Row, description string) {
	cfg := m.config
	f := cfg.Fields

	p.Project = cfg.ProjectKey
	p.IssueType = string(p.Kind)

	p.Fields["description"] = description
	setText(p.Fields, f.DoD, row.FinalDoD)
	p.Fields[f.RequestedByGroup] = optionRef(m.options.RequestedByGroup)
	p.Fields[f.DestinationTeam] = valueRef(cfg.DestinationTeam)
	p.Fields[f.Year] = optionRef(m.options.Year)
	p.Fields[f.Quarter] = optionRef(m.options.Quarter)
	p.Fields[f.InQuarterPlan] = optionRef(m.options.InQuarterPlan)
	p.Fields["labels"] = m.labels()

	if row.Parent != "" {
		p.FollowUps["parent"] = map[string]string{"key": row.Parent}
	}
}

func (m *FieldMapper) mapQBV(p *models.IssuePayload, row models.Row, description string) {
	cfg := m.config
	f := cfg.Fields

	p.Project = cfg.QBVProject
	p.IssueType = string(models.KindQBV)
	p.IssueTypeID = cfg.QBVIssueTypeID

	p.Fields["description"] = description
	p.Fields[f.DestinationTeam] = valueRef(cfg.DestinationTeam)
	p.Fields[f.Year] = optionRef(m.options.Year)
	p.Fields[f.Quarter] = optionRef(m.options.Quarter)
	p.Fields[f.QBVGroup] = optionRef(m.options.QBVGroup)
	setText(p.Fields, f.DoDNew, row.QuarterDoD)
	p.Fields["labels"] = m.labels()
}

func (m *FieldMapper) mapOnGoing(p *models.IssuePayload, row models.Row, description string) {
	cfg := m.config
	f := cfg.Fields

	p.Project = cfg.ProjectKey
	p.IssueType = "Story"

	p.Fields["description"] = description
	p.Fields["parent"] = map[string]string{"key": cfg.OngoingParent}
	setText(p.Fields, f.DoDNew, row.QuarterDoD)
	p.Fields[f.DestinationTeam] = valueRef(cfg.DestinationTeam)
	p.Fields["labels"] = m.labels()
}

func (m *FieldMapper) labels() []string {
	labels := make([]string, 0, len(m.config.Labels))
	for _, l := range m.config.Labels {
		if l = strings.TrimSpace(l); l != "" {
			labels = append(labels, l)
		}
	}
	return labels
}

// buildDescription appends the final DoD and a project manager mention to the row description
func buildDescription(row models.Row, manager *models.User) string {
	var parts []string
	if row.Description != "" {
		parts = append(parts, row.Description)
	}

	var details []string
	if row.FinalDoD != "" {
		details = append(details, "*Final DoD:* "+row.FinalDoD)
	}
	if mention := managerMention(row.ProjectManager, manager); mention != "" {
		details = append(details, "*Project Manager:* "+mention)
	}
	if len(details) > 0 {
		parts = append(parts, strings.Join(details, "\n"))
	}

	return strings.Join(parts, "\n\n")
}

func managerMention(name string, manager *models.User) string {
	if manager != nil && manager.AccountID != "" {
		return fmt.Sprintf("[~accountid:%s]", manager.AccountID)
	}
	if name != "" {
		return "@" + name
	}
	return ""
}

func setText(fields map[string]interface{}, fieldID, value string) {
	if value != "" {
		fields[fieldID] = value
	}
}

func optionRef(id string) map[string]string {
	return map[string]string{"id": id}
}

func valueRef(value string) map[string]string {
	return map[string]string{"value": value}
}
