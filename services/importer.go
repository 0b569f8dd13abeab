package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"excel2jira/config"
	"excel2jira/models"
	"excel2jira/utils"
)

// IssueTracker is the subset of the Jira API the importer drives
type IssueTracker interface {
	FindExisting(ctx context.Context, project, summary string) (string, bool, error)
	CreateIssue(ctx context.Context, fields map[string]interface{}) (string, error)
	UpdateIssue(ctx context.Context, key string, fields map[string]interface{}) error
	GetIssueFields(ctx context.Context, key string, names []string) (map[string]json.RawMessage, error)
	AssignIssue(ctx context.Context, key, accountID string) error
}

// Importer processes spreadsheet rows against Jira one at a time
type Importer struct {
	config  *config.Config
	tracker IssueTracker
	mapper  *FieldMapper
	users   *UserResolver
}

// NewImporter creates an importer
func NewImporter(cfg *config.Config, tracker IssueTracker, mapper *FieldMapper, users *UserResolver) *Importer {
	return &Importer{
		config:  cfg,
		tracker: tracker,
		mapper:  mapper,
		users:   users,
	}
}

// Run processes rows in order and returns the outcome of each.
// A failing row never stops the run. Cancelling ctx stops before the next row.
func (im *Importer) Run(ctx context.Context, rows []models.Row) *models.RunSummary {
	startTime := time.Now()
	defer utils.TrackTime(startTime, "Import")

	summary := models.NewRunSummary()
	utils.LogInfo("Processing %d rows", len(rows))

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			utils.LogWarn("Import interrupted, %d of %d rows not processed", len(rows)-i, len(rows))
			break
		}
		im.processRow(ctx, row, summary)
	}

	return summary
}

// processRow records exactly one primary outcome for row, plus any
// follow-up notes for an issue that was created or updated.
func (im *Importer) processRow(ctx context.Context, row models.Row, summary *models.RunSummary) {
	record := models.OutcomeRecord{
		Row:       row.ID(),
		IssueType: row.IssueType,
		Summary:   row.ProjectName,
	}

	if _, err := im.mapper.Validate(row); err != nil {
		var unsupported *UnsupportedIssueTypeError
		if errors.As(err, &unsupported) {
			utils.LogWarn("%s: skipped, %v", row.ID(), err)
			record.Kind = models.OutcomeSkipped
		} else {
			utils.LogError("%s: %v", row.ID(), err)
			record.Kind = models.OutcomeFailedCreation
		}
		record.Message = err.Error()
		summary.Add(record)
		return
	}

	manager := im.resolveManager(ctx, row)

	payload, err := im.mapper.Map(row, manager)
	if err != nil {
		record.Kind = models.OutcomeFailedCreation
		record.Message = err.Error()
		summary.Add(record)
		return
	}
	record.IssueType = string(payload.Kind)
	record.Summary = payload.Summary

	key, exists, err := im.tracker.FindExisting(ctx, payload.Project, payload.Summary)
	if err != nil {
		utils.LogError("%s: duplicate check failed: %v", row.ID(), err)
		record.Kind = models.OutcomeFailedCreation
		record.Message = err.Error()
		summary.Add(record)
		return
	}

	pending := writePlan{
		followUps: payload.FollowUps,
		assign:    row.Lead != "",
	}

	switch {
	case exists && !im.config.UpdateMode:
		utils.LogInfo("%s: %s already exists as %s, skipping", row.ID(), payload.Summary, key)
		record.Kind = models.OutcomeSkipped
		record.IssueKey = key
		record.Message = "already exists"
		summary.Add(record)
		return

	case exists:
		record.IssueKey = key
		plan, err := im.update(ctx, key, row, payload)
		if err != nil {
			utils.LogError("%s: failed to update %s: %v", row.ID(), key, err)
			record.Kind = models.OutcomeFailedCreation
			record.Message = err.Error()
			summary.Add(record)
			return
		}
		if plan.empty() {
			utils.LogInfo("%s: %s has no empty fields to fill, skipping", row.ID(), key)
			record.Kind = models.OutcomeSkipped
			record.Message = "no empty fields to fill"
			summary.Add(record)
			return
		}
		utils.LogInfo("%s: %s updated: %s", row.ID(), payload.Kind, key)
		record.Kind = models.OutcomeUpdated
		pending = plan

	default:
		key, err = im.tracker.CreateIssue(ctx, payload.CreateFields())
		if err != nil {
			utils.LogError("%s: failed to create %s '%s': %v", row.ID(), payload.Kind, payload.Summary, err)
			record.Kind = models.OutcomeFailedCreation
			record.Message = err.Error()
			summary.Add(record)
			return
		}
		utils.LogInfo("%s: %s created: %s", row.ID(), payload.Kind, key)
		record.Kind = models.OutcomeCreated
		record.IssueKey = key
	}

	summary.Add(record)

	im.applyFollowUps(ctx, key, row, payload, pending.followUps, summary)
	if pending.assign {
		im.assignLead(ctx, key, row, payload, summary)
	}
}

// writePlan is what an existing issue still receives after its update
type writePlan struct {
	fields    map[string]interface{}
	followUps map[string]interface{}
	assign    bool
}

func (p writePlan) empty() bool {
	return len(p.fields) == 0 && len(p.followUps) == 0 && !p.assign
}

// update sends the payload to an existing issue and returns what is left to
// apply afterwards. With fill-empty, fields, follow-ups and the assignee that
// already hold a value on the issue are left alone.
func (im *Importer) update(ctx context.Context, key string, row models.Row, payload *models.IssuePayload) (writePlan, error) {
	plan := writePlan{
		fields:    payload.UpdateFields(),
		followUps: payload.FollowUps,
		assign:    row.Lead != "",
	}

	if im.config.FillEmpty {
		names := fieldNames(plan.fields, plan.followUps)
		if plan.assign {
			names = append(names, "assignee")
		}
		sort.Strings(names)

		current, err := im.tracker.GetIssueFields(ctx, key, names)
		if err != nil {
			return writePlan{}, err
		}

		plan.fields = onlyEmpty(plan.fields, current)
		plan.followUps = onlyEmpty(plan.followUps, current)
		plan.assign = plan.assign && isEmptyValue(current["assignee"])

		if plan.empty() {
			return plan, nil
		}
		utils.LogDebug("Filling %d empty fields on %s", len(plan.fields)+len(plan.followUps), key)
	}

	if len(plan.fields) > 0 {
		if err := im.tracker.UpdateIssue(ctx, key, plan.fields); err != nil {
			return writePlan{}, err
		}
	}
	return plan, nil
}

func fieldNames(sets ...map[string]interface{}) []string {
	var names []string
	for _, set := range sets {
		for name := range set {
			names = append(names, name)
		}
	}
	return names
}

// onlyEmpty keeps the entries of fields whose current value is empty
func onlyEmpty(fields map[string]interface{}, current map[string]json.RawMessage) map[string]interface{} {
	kept := make(map[string]interface{}, len(fields))
	for name, value := range fields {
		if isEmptyValue(current[name]) {
			kept[name] = value
		}
	}
	return kept
}

func (im *Importer) resolveManager(ctx context.Context, row models.Row) *models.User {
	if row.ProjectManager == "" || im.users == nil {
		return nil
	}
	user, _, err := im.users.Resolve(ctx, row.ProjectManager)
	if err != nil {
		utils.LogWarn("%s: project manager '%s' not resolved, mentioning by name", row.ID(), row.ProjectManager)
		return nil
	}
	return user
}

func (im *Importer) applyFollowUps(ctx context.Context, key string, row models.Row, payload *models.IssuePayload, followUps map[string]interface{}, summary *models.RunSummary) {
	names := fieldNames(followUps)
	sort.Strings(names)

	for _, name := range names {
		err := im.tracker.UpdateIssue(ctx, key, map[string]interface{}{name: followUps[name]})
		if err != nil {
			utils.LogError("%s: failed to set %s on %s: %v", row.ID(), name, key, err)
			summary.Add(models.OutcomeRecord{
				Kind:      models.OutcomeFailedFieldUpdate,
				Row:       row.ID(),
				IssueType: string(payload.Kind),
				Summary:   payload.Summary,
				IssueKey:  key,
				Message:   fmt.Sprintf("field %s: %v", name, err),
			})
			continue
		}
		utils.LogDebug("%s: %s set on %s", row.ID(), name, key)
	}
}

func (im *Importer) assignLead(ctx context.Context, key string, row models.Row, payload *models.IssuePayload, summary *models.RunSummary) {
	fail := func(msg string) {
		utils.LogWarn("%s: could not assign %s: %s", row.ID(), key, msg)
		summary.Add(models.OutcomeRecord{
			Kind:      models.OutcomeFailedUserAssignment,
			Row:       row.ID(),
			IssueType: string(payload.Kind),
			Summary:   payload.Summary,
			IssueKey:  key,
			Message:   msg,
		})
	}

	if im.users == nil {
		fail(fmt.Sprintf("no user directory to resolve lead '%s'", row.Lead))
		return
	}

	user, _, err := im.users.Resolve(ctx, row.Lead)
	if err != nil {
		fail(err.Error())
		return
	}

	if err := im.tracker.AssignIssue(ctx, key, user.AccountID); err != nil {
		fail(fmt.Sprintf("assign to %s: %v", user.DisplayName, err))
		return
	}
	utils.LogInfo("%s: %s assigned to %s", row.ID(), key, user.DisplayName)
}

// isEmptyValue reports whether a raw Jira field value carries no data
func isEmptyValue(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	switch string(v) {
	case "", "null", `""`, "[]", "{}":
		return true
	}
	return false
}
