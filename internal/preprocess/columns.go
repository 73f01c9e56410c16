package preprocess

import (
	"strings"

	"github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/models"
)

var (
	dateTokens  = []string{"date", "time", "day", "month", "year"}
	valueTokens = []string{"sales", "revenue", "amount", "value", "price", "quantity"}
)

// DetectDateColumn returns hint when present, else the first column whose
// label looks temporal
func DetectDateColumn(table *models.RawTable, hint string) (string, error) {
	if hint != "" && table.HasColumn(hint) {
		return hint, nil
	}

	for _, col := range table.Columns {
		if labelMatches(col, dateTokens) {
			return col, nil
		}
	}

	return "", errors.NewSchemaError(errors.CodeMissingDateColumn, "no date-like column found").
		WithContext("columns", table.Columns)
}

// DetectValueColumn returns hint when present. Otherwise, among sales-like
// labels it prefers a numeric column, then a text column holding currency
// formatted cells, then the first match. With no match it falls back to the
// literal "sales", which must exist.
func DetectValueColumn(table *models.RawTable, hint, dateColumn string) (string, error) {
	if hint != "" && table.HasColumn(hint) {
		return hint, nil
	}

	var candidates []string
	for _, col := range table.Columns {
		if col != dateColumn && labelMatches(col, valueTokens) {
			candidates = append(candidates, col)
		}
	}

	for _, col := range candidates {
		if table.IsNumeric(col) {
			return col, nil
		}
	}

	for _, col := range candidates {
		if looksLikeCurrency(table, col) {
			return col, nil
		}
	}

	if len(candidates) > 0 {
		return candidates[0], nil
	}

	if table.HasColumn("sales") {
		return "sales", nil
	}

	return "", errors.NewSchemaError(errors.CodeMissingValueColumn, "no sales-like value column found").
		WithContext("columns", table.Columns)
}

func labelMatches(label string, tokens []string) bool {
	lower := strings.ToLower(label)
	for _, token := range tokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

// looksLikeCurrency reports whether any text cell carries a currency sign,
// thousands separator or digit
func looksLikeCurrency(table *models.RawTable, col string) bool {
	for _, row := range table.Rows {
		s, ok := row[col].(string)
		if !ok {
			continue
		}
		if strings.ContainsAny(s, "$,0123456789") {
			return true
		}
	}
	return false
}
