package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tealeg/xlsx"

	"excel2jira/config"
	"excel2jira/models"
	"excel2jira/utils"
)

// ErrMissingColumns is wrapped by FileError when required headers are absent
var ErrMissingColumns = errors.New("required columns missing")

// FileError reports an input spreadsheet that cannot be used
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("spreadsheet %s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

type column int

const (
	colProjectName column = iota
	colFinalDoD
	colQuarterDoD
	colProjectManager
	colIssueType
	colDescription
	colLead
	colParent
	columnCount
)

var columnNames = [columnCount]string{
	"Project name",
	"Final DoD",
	"Q2 DoD",
	"Project Manager",
	"Issue type",
	"Description",
	"lead",
	"parent",
}

var quarterDoDHeader = regexp.MustCompile(`^q[1-4] dod$`)

// SpreadsheetReader loads planning rows from xlsx, csv or Google Sheets
type SpreadsheetReader struct {
	config *config.Config
}

// NewSpreadsheetReader creates a reader for the configured data source
func NewSpreadsheetReader(cfg *config.Config) *SpreadsheetReader {
	return &SpreadsheetReader{
		config: cfg,
	}
}

// ReadRows loads every data row of the configured source in sheet order
func (r *SpreadsheetReader) ReadRows(ctx context.Context) ([]models.Row, error) {
	path := r.config.DataPath
	utils.LogInfo("Loading spreadsheet '%s'", path)

	table, err := r.readTable(ctx, path)
	if err != nil {
		var fileErr *FileError
		if errors.As(err, &fileErr) {
			return nil, err
		}
		return nil, &FileError{Path: path, Err: err}
	}

	rows, err := parseRows(table)
	if err != nil {
		return nil, &FileError{Path: path, Err: err}
	}

	utils.LogInfo("Loaded %d rows from '%s'", len(rows), path)
	return rows, nil
}

func (r *SpreadsheetReader) readTable(ctx context.Context, path string) ([][]string, error) {
	if isGoogleSheetURL(path) {
		return readGoogleSheet(ctx, path, r.config.Sheet, r.config.CredentialsFile)
	}

	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return readXLSX(path, r.config.Sheet)
	case ".csv":
		return readCSV(path)
	default:
		return nil, fmt.Errorf("unsupported file type %q: expected .xlsx, .csv or a Google Sheets URL", filepath.Ext(path))
	}
}

func readXLSX(path, sheetName string) ([][]string, error) {
	file, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}

	if len(file.Sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	sheet := file.Sheets[0]
	if sheetName != "" {
		s, ok := file.Sheet[sheetName]
		if !ok {
			return nil, fmt.Errorf("sheet %q not found", sheetName)
		}
		sheet = s
	}

	table := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		var values []string
		if row != nil {
			values = make([]string, len(row.Cells))
			for i, cell := range row.Cells {
				if cell != nil {
					values[i] = cell.String()
				}
			}
		}
		table = append(table, values)
	}

	return table, nil
}

func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	// Excel exports start with a UTF-8 BOM
	if len(records) > 0 && len(records[0]) > 0 {
		records[0][0] = strings.TrimPrefix(records[0][0], "\ufeff")
	}

	return records, nil
}

// parseRows validates the header and converts the remaining lines to rows
func parseRows(table [][]string) ([]models.Row, error) {
	if len(table) == 0 {
		return nil, fmt.Errorf("sheet is empty")
	}

	index, err := headerIndex(table[0])
	if err != nil {
		return nil, err
	}

	rows := make([]models.Row, 0, len(table)-1)
	for i, record := range table[1:] {
		if isBlank(record) {
			continue
		}

		get := func(c column) string {
			ix := index[c]
			if ix >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[ix])
		}

		rows = append(rows, models.Row{
			RowNumber:      i + 2,
			ProjectName:    get(colProjectName),
			FinalDoD:       get(colFinalDoD),
			QuarterDoD:     get(colQuarterDoD),
			ProjectManager: get(colProjectManager),
			IssueType:      get(colIssueType),
			Description:    get(colDescription),
			Lead:           get(colLead),
			Parent:         get(colParent),
		})
	}

	return rows, nil
}

func headerIndex(header []string) ([columnCount]int, error) {
	var index [columnCount]int
	for c := range index {
		index[c] = -1
	}

	for i, h := range header {
		name := normalizeHeader(h)
		for c := column(0); c < columnCount; c++ {
			if index[c] != -1 {
				continue
			}
			if name == normalizeHeader(columnNames[c]) || (c == colQuarterDoD && quarterDoDHeader.MatchString(name)) {
				index[c] = i
			}
		}
	}

	var missing []string
	for c := column(0); c < columnCount; c++ {
		if index[c] == -1 {
			missing = append(missing, columnNames[c])
		}
	}
	if len(missing) > 0 {
		return index, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	return index, nil
}

func normalizeHeader(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
