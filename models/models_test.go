package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextQuarter(t *testing.T) {
	tests := []struct {
		month    int
		want     Quarter
		rollover bool
	}{
		{1, "Q2", false},
		{3, "Q2", false},
		{4, "Q3", false},
		{6, "Q3", false},
		{7, "Q4", false},
		{9, "Q4", false},
		{10, "Q1", true},
		{12, "Q1", true},
	}

	for _, tt := range tests {
		got, rollover := NextQuarter(tt.month)
		assert.Equal(t, tt.want, got, "month %d", tt.month)
		assert.Equal(t, tt.rollover, rollover, "month %d", tt.month)
	}
}

func TestParseQuarter(t *testing.T) {
	q, err := ParseQuarter(" q3 ")
	require.NoError(t, err)
	assert.Equal(t, Quarter("Q3"), q)

	for _, bad := range []string{"Q5", "Q0", "3", "", "quarter"} {
		_, err := ParseQuarter(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseIssueKind(t *testing.T) {
	tests := map[string]IssueKind{
		"Epic":     KindEpic,
		"epic":     KindEpic,
		" QBV ":    KindQBV,
		"Project":  KindProject,
		"On-going": KindOnGoing,
		"ongoing":  KindOnGoing,
		"On going": KindOnGoing,
	}
	for in, want := range tests {
		got, ok := ParseIssueKind(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"Bug", "", "Story"} {
		_, ok := ParseIssueKind(bad)
		assert.False(t, ok, bad)
	}
}

func TestPayloadFields(t *testing.T) {
	p := &IssuePayload{
		Project:   "ITDVPS",
		IssueType: "Epic",
		Summary:   "Migrate DB",
		Fields:    map[string]interface{}{"description": "text"},
	}

	create := p.CreateFields()
	assert.Equal(t, map[string]string{"key": "ITDVPS"}, create["project"])
	assert.Equal(t, map[string]string{"name": "Epic"}, create["issuetype"])
	assert.Equal(t, "Migrate DB", create["summary"])
	assert.Equal(t, "text", create["description"])

	p.IssueTypeID = "10400"
	assert.Equal(t, map[string]string{"id": "10400"}, p.CreateFields()["issuetype"])

	update := p.UpdateFields()
	assert.NotContains(t, update, "project")
	assert.NotContains(t, update, "issuetype")
	assert.Equal(t, "Migrate DB", update["summary"])

	// the payload's own field map is not modified
	assert.Len(t, p.Fields, 1)
}

func TestRunSummary(t *testing.T) {
	s := NewRunSummary()
	assert.False(t, s.HasFailures())

	s.Add(OutcomeRecord{Kind: OutcomeCreated, Row: "Row 2", Summary: "A", IssueKey: "ITDVPS-1"})
	s.Add(OutcomeRecord{Kind: OutcomeFailedUserAssignment, Row: "Row 2", Summary: "A", Message: "no user"})
	s.Add(OutcomeRecord{Kind: OutcomeSkipped, Row: "Row 3", Summary: "B"})

	assert.Equal(t, 2, s.Rows())
	assert.Equal(t, 1, s.Count(OutcomeCreated))
	assert.Equal(t, 1, s.Count(OutcomeFailedUserAssignment))
	assert.Equal(t, 0, s.Count(OutcomeUpdated))
	assert.True(t, s.HasFailures())

	records := s.Records(OutcomeCreated)
	require.Len(t, records, 1)
	records[0].Summary = "changed"
	assert.Equal(t, "A", s.Records(OutcomeCreated)[0].Summary)
}

func TestOutcomeRecordString(t *testing.T) {
	r := OutcomeRecord{Row: "Row 4", IssueType: "Epic", Summary: "Migrate DB", IssueKey: "ITDVPS-7", Message: "already exists"}
	assert.Equal(t, "Row 4: Epic: Migrate DB (ITDVPS-7) - already exists", r.String())

	assert.Equal(t, "Row 5: X", OutcomeRecord{Row: "Row 5", Summary: "X"}.String())
}

func TestEmailLocalPart(t *testing.T) {
	assert.Equal(t, "jon.smith", User{EmailAddress: "jon.smith@example.com"}.EmailLocalPart())
	assert.Equal(t, "", User{}.EmailLocalPart())
}
