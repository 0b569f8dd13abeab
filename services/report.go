package services

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"excel2jira/models"
	"excel2jira/utils"
)

var bucketTitles = map[models.OutcomeKind]string{
	models.OutcomeCreated:              "Created",
	models.OutcomeUpdated:              "Updated",
	models.OutcomeSkipped:              "Skipped",
	models.OutcomeFailedCreation:       "Failed creation",
	models.OutcomeFailedUserAssignment: "Failed user assignment",
	models.OutcomeFailedFieldUpdate:    "Failed field update",
}

// PrintSummary writes bucket totals followed by the records of every non-empty bucket
func PrintSummary(w io.Writer, s *models.RunSummary) {
	totals := table.NewWriter()
	totals.SetOutputMirror(w)
	totals.SetTitle(fmt.Sprintf("Import summary (%d rows)", s.Rows()))
	totals.AppendHeader(table.Row{"Outcome", "Count"})
	for _, kind := range models.OutcomeKinds {
		totals.AppendRow(table.Row{bucketTitles[kind], s.Count(kind)})
	}
	totals.Render()

	for _, kind := range models.OutcomeKinds {
		records := s.Records(kind)
		if len(records) == 0 {
			continue
		}

		tw := table.NewWriter()
		tw.SetOutputMirror(w)
		tw.SetTitle(bucketTitles[kind])
		tw.AppendHeader(table.Row{"Row", "Type", "Summary", "Issue", "Message"})
		for _, r := range records {
			tw.AppendRow(table.Row{r.Row, r.IssueType, r.Summary, r.IssueKey, r.Message})
		}
		tw.Render()
	}

	if !s.HasFailures() {
		utils.LogInfo("All rows processed without failures")
	}
}
