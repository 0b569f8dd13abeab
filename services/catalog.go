package services

import (
	"context"
	"fmt"
	"strings"

	"excel2jira/config"
	"excel2jira/models"
	"excel2jira/utils"
)

// OptionSource lists the allowed values of a select-list field
type OptionSource interface {
	AllowedValues(ctx context.Context, project, issueType, fieldID string) ([]models.FieldOption, error)
}

// FieldOptions holds the option ids of the select-list fields used in payloads
type FieldOptions struct {
	RequestedByGroup string
	Year             string
	Quarter          string
	InQuarterPlan    string
	QBVGroup         string
}

// FieldCatalog resolves configured option values to Jira option ids
type FieldCatalog struct {
	config *config.Config
	source OptionSource
}

// NewFieldCatalog creates a catalog backed by Jira create metadata
func NewFieldCatalog(cfg *config.Config, source OptionSource) *FieldCatalog {
	return &FieldCatalog{
		config: cfg,
		source: source,
	}
}

// Resolve looks up every option id once. Any miss is fatal for the run.
func (c *FieldCatalog) Resolve(ctx context.Context) (*FieldOptions, error) {
	cfg := c.config
	fields := cfg.Fields
	year := fmt.Sprintf("%d", cfg.Year)

	options := &FieldOptions{}
	lookups := []struct {
		project   string
		issueType string
		fieldID   string
		value     string
		target    *string
	}{
		{cfg.ProjectKey, string(models.KindEpic), fields.RequestedByGroup, cfg.RequestedByGroup, &options.RequestedByGroup},
		{cfg.ProjectKey, string(models.KindEpic), fields.Year, year, &options.Year},
		{cfg.ProjectKey, string(models.KindEpic), fields.Quarter, string(cfg.Quarter), &options.Quarter},
		{cfg.ProjectKey, string(models.KindEpic), fields.InQuarterPlan, cfg.InQuarterPlan, &options.InQuarterPlan},
		{cfg.QBVProject, string(models.KindQBV), fields.QBVGroup, cfg.QBVGroup, &options.QBVGroup},
	}

	for _, l := range lookups {
		id, err := c.lookup(ctx, l.project, l.issueType, l.fieldID, l.value)
		if err != nil {
			return nil, err
		}
		*l.target = id
	}

	utils.LogInfo("Resolved field values: year=%s quarter=%s", year, cfg.Quarter)
	return options, nil
}

func (c *FieldCatalog) lookup(ctx context.Context, project, issueType, fieldID, value string) (string, error) {
	options, err := c.source.AllowedValues(ctx, project, issueType, fieldID)
	if err != nil {
		return "", fmt.Errorf("field %s: %w", fieldID, err)
	}

	id, ok := findOption(options, value)
	if !ok {
		allowed := make([]string, len(options))
		for i, o := range options {
			allowed[i] = o.Value
		}
		return "", fmt.Errorf("value '%s' not found for field '%s'. Allowed values: [%s]", value, fieldID, strings.Join(allowed, ", "))
	}

	utils.LogDebug("Field %s: '%s' -> option %s", fieldID, value, id)
	return id, nil
}

// findOption matches an option value ignoring case
func findOption(options []models.FieldOption, value string) (string, bool) {
	for _, o := range options {
		if strings.EqualFold(strings.TrimSpace(o.Value), strings.TrimSpace(value)) {
			return o.ID, true
		}
	}
	return "", false
}
