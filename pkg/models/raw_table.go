package models

// RawTable is the schema-less tabular payload fetched from a data source.
// Cells hold float64, string or nil. Snapshots stored in a cache are treated
// as immutable; consumers copy before mutating.
type RawTable struct {
	Columns []string                 `json:"columns"`
	Rows    []map[string]interface{} `json:"rows"`
}

// Len returns the number of rows
func (t *RawTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// HasColumn reports whether a column label exists
func (t *RawTable) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// IsNumeric reports whether every non-null cell of a column is numeric
func (t *RawTable) IsNumeric(column string) bool {
	seen := false
	for _, row := range t.Rows {
		switch row[column].(type) {
		case nil:
			continue
		case float64, float32, int, int64, int32:
			seen = true
		default:
			return false
		}
	}
	return seen
}

// Column returns the cells of one column in row order
func (t *RawTable) Column(name string) []interface{} {
	cells := make([]interface{}, len(t.Rows))
	for i, row := range t.Rows {
		cells[i] = row[name]
	}
	return cells
}
