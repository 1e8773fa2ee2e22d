package output

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *Report {
	return &Report{
		Source:     "http://localhost:3000",
		TotalKeys:  2,
		DailyLimit: 900,
		LastReset:  "Fri Mar 14 2025",
		Keys: []KeyReport{
			{KeyNumber: 1, CallsMade: 900, CallsRemaining: 0, PercentageUsed: 100},
			{KeyNumber: 2, Label: "abcd****", CallsMade: 45, CallsRemaining: 855, PercentageUsed: 5},
		},
	}
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{
		"":         FormatTable,
		"table":    FormatTable,
		"JSON":     FormatJSON,
		"yml":      FormatYAML,
		"markdown": FormatMarkdown,
	}
	for in, want := range cases {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseFormat("csv")
	require.Error(t, err)
}

func TestReportTotals(t *testing.T) {
	report := sampleReport()

	made, remaining := report.Totals()
	assert.Equal(t, 945, made)
	assert.Equal(t, 855, remaining)
	assert.False(t, report.Exhausted())

	report.Keys[1].CallsRemaining = 0
	assert.True(t, report.Exhausted())
}

func TestFormatters(t *testing.T) {
	report := sampleReport()

	table, err := NewFormatter(FormatTable).FormatReport(report)
	require.NoError(t, err)
	assert.Contains(t, table, "CALLS MADE")
	assert.Contains(t, table, "#2 (abcd****)")
	assert.Contains(t, table, "exhausted")
	assert.Contains(t, strings.ToLower(table), "limit 900", "footer")
	assert.Contains(t, table, "Last reset: Fri Mar 14 2025")

	jsonRendered, err := NewFormatter(FormatJSON).FormatReport(report)
	require.NoError(t, err)
	assert.Contains(t, jsonRendered, `"totalKeys": 2`)
	assert.Contains(t, jsonRendered, `"callsRemaining": 855`)

	yamlRendered, err := NewFormatter(FormatYAML).FormatReport(report)
	require.NoError(t, err)
	assert.Contains(t, yamlRendered, "daily_limit: 900")
	assert.Contains(t, yamlRendered, "label: abcd****")

	markdown, err := NewFormatter(FormatMarkdown).FormatReport(report)
	require.NoError(t, err)
	assert.Contains(t, markdown, "| Key | Calls Made | Remaining | Used | State |")
	assert.Contains(t, markdown, "| #1 | 900 | 0 | 100% | exhausted |")
	assert.True(t, strings.HasPrefix(markdown, "## Credential usage (http://localhost:3000)"))
}

func TestFormattersHandleNil(t *testing.T) {
	for _, format := range []Format{FormatTable, FormatJSON, FormatYAML, FormatMarkdown} {
		rendered, err := NewFormatter(format).FormatReport(nil)
		require.NoError(t, err)
		assert.Empty(t, rendered)
	}
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "json", FormatJSON.Extension())
	assert.Equal(t, "yaml", FormatYAML.Extension())
	assert.Equal(t, "md", FormatMarkdown.Extension())
	assert.Equal(t, "txt", FormatTable.Extension())
}
