package services

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"excel2jira/utils"
)

var googleSheetURL = regexp.MustCompile(`^https://docs\.google\.com/spreadsheets/d/([a-zA-Z0-9_-]+)(?:/.*)?$`)

func isGoogleSheetURL(path string) bool {
	return strings.HasPrefix(path, "https://docs.google.com/spreadsheets/")
}

// spreadsheetID extracts the document id from a Google Sheets URL
func spreadsheetID(sheetURL string) (string, error) {
	match := googleSheetURL.FindStringSubmatch(sheetURL)
	if len(match) < 2 {
		return "", fmt.Errorf("invalid spreadsheet URL - expected something like 'https://docs.google.com/spreadsheets/d/<id>'")
	}
	return match[1], nil
}

// readGoogleSheet downloads a worksheet (or A1 range) with a service account.
// An empty area selects the first worksheet.
func readGoogleSheet(ctx context.Context, sheetURL, area, credentialsFile string) ([][]string, error) {
	id, err := spreadsheetID(sheetURL)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(credentialsFile) == "" {
		return nil, fmt.Errorf("--credentials is required to read a Google Sheets document")
	}

	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	creds, err := google.CredentialsFromJSON(ctx, data, sheets.SpreadsheetsReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	service, err := sheets.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets client (%w)", err)
	}

	if area == "" {
		doc, err := service.Spreadsheets.Get(id).Fields("sheets.properties.title").Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("unable to retrieve spreadsheet (%w)", err)
		}
		if len(doc.Sheets) == 0 || doc.Sheets[0].Properties == nil {
			return nil, fmt.Errorf("spreadsheet has no worksheets")
		}
		area = doc.Sheets[0].Properties.Title
	}

	utils.LogDebug("Spreadsheet - ID:%s  range:%s", id, area)

	response, err := service.Spreadsheets.Values.Get(id, area).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve data from sheet (%w)", err)
	}

	return valuesToTable(response.Values), nil
}

// valuesToTable converts the loosely typed cells of a value range to text
func valuesToTable(values [][]interface{}) [][]string {
	table := make([][]string, len(values))
	for i, row := range values {
		table[i] = make([]string, len(row))
		for j, v := range row {
			if v != nil {
				table[i][j] = fmt.Sprint(v)
			}
		}
	}
	return table
}
