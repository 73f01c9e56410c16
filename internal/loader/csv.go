package loader

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/models"
)

const byteOrderMark = "\uFEFF"

// ParseCSV reads a headed CSV payload into a RawTable. Column labels are
// trimmed, a column whose every non-empty cell is a float becomes numeric and
// empty cells become nil.
func ParseCSV(r io.Reader) (*models.RawTable, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.NewDataLoadError(errors.CodeParseFailed, "dataset is empty")
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeDataLoad, errors.CodeParseFailed, "failed to read CSV header")
	}

	columns := normalizeLabels(header)

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeDataLoad, errors.CodeParseFailed, "failed to read CSV record")
		}
		if isBlankRecord(record) {
			continue
		}
		records = append(records, record)
	}

	numeric := make([]bool, len(columns))
	for i := range columns {
		numeric[i] = columnIsNumeric(records, i)
	}

	rows := make([]map[string]interface{}, 0, len(records))
	for _, record := range records {
		row := make(map[string]interface{}, len(columns))
		for i, name := range columns {
			cell := ""
			if i < len(record) {
				cell = strings.TrimSpace(record[i])
			}
			switch {
			case cell == "":
				row[name] = nil
			case numeric[i]:
				v, _ := strconv.ParseFloat(cell, 64)
				row[name] = v
			default:
				row[name] = cell
			}
		}
		rows = append(rows, row)
	}

	return &models.RawTable{Columns: columns, Rows: rows}, nil
}

// normalizeLabels trims labels and disambiguates duplicates with a .N suffix
func normalizeLabels(header []string) []string {
	seen := make(map[string]int, len(header))
	columns := make([]string, len(header))
	for i, label := range header {
		label = strings.TrimSpace(strings.TrimPrefix(label, byteOrderMark))
		if label == "" {
			label = fmt.Sprintf("Unnamed: %d", i)
		}
		if n, dup := seen[label]; dup {
			seen[label] = n + 1
			label = fmt.Sprintf("%s.%d", label, n+1)
		} else {
			seen[label] = 0
		}
		columns[i] = label
	}
	return columns
}

func columnIsNumeric(records [][]string, col int) bool {
	seen := false
	for _, record := range records {
		if col >= len(record) {
			continue
		}
		cell := strings.TrimSpace(record[col])
		if cell == "" {
			continue
		}
		if _, err := strconv.ParseFloat(cell, 64); err != nil {
			return false
		}
		seen = true
	}
	return seen
}

func isBlankRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
