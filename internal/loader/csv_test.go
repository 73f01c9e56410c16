package loader

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/tsforecast/pkg/errors"
)

func TestParseCSV(t *testing.T) {
	payload := "\uFEFF Date ,Sales Amount,units\n2024-01-01,\"$1,200.50\",3\n2024-01-02,$80,\n"

	table, err := ParseCSV(strings.NewReader(payload))
	require.NoError(t, err)

	assert.Equal(t, []string{"Date", "Sales Amount", "units"}, table.Columns)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "2024-01-01", table.Rows[0]["Date"])
	assert.Equal(t, "$1,200.50", table.Rows[0]["Sales Amount"])
	assert.Equal(t, 3.0, table.Rows[0]["units"])
	assert.Nil(t, table.Rows[1]["units"])
	assert.True(t, table.IsNumeric("units"))
	assert.False(t, table.IsNumeric("Sales Amount"))
}

func TestParseCSVNumericInference(t *testing.T) {
	payload := "date,sales,code\n2024-01-01,10,A1\n2024-01-02,2.5,7\n2024-01-03,,8\n"

	table, err := ParseCSV(strings.NewReader(payload))
	require.NoError(t, err)

	assert.True(t, table.IsNumeric("sales"))
	assert.False(t, table.IsNumeric("code"))
	assert.Equal(t, "7", table.Rows[1]["code"])
	assert.Nil(t, table.Rows[2]["sales"])
}

func TestParseCSVDuplicateAndBlankLabels(t *testing.T) {
	table, err := ParseCSV(strings.NewReader("date,sales,sales,\n2024-01-01,1,2,3\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"date", "sales", "sales.1", "Unnamed: 3"}, table.Columns)
	assert.Equal(t, 2.0, table.Rows[0]["sales.1"])
}

func TestParseCSVSkipsBlankLinesAndRaggedRows(t *testing.T) {
	table, err := ParseCSV(strings.NewReader("date,sales\n2024-01-01,1\n,\n2024-01-02\n"))
	require.NoError(t, err)

	require.Len(t, table.Rows, 2)
	assert.Nil(t, table.Rows[1]["sales"])
}

func TestParseCSVEmpty(t *testing.T) {
	_, err := ParseCSV(strings.NewReader(""))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeDataLoad))
}

func TestParseCSVHeaderOnly(t *testing.T) {
	table, err := ParseCSV(strings.NewReader("date,sales\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())
}
