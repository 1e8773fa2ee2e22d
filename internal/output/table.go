package output

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// TableFormatter renders reports as an ASCII table.
type TableFormatter struct{}

// FormatReport renders a usage report as a table.
func (f *TableFormatter) FormatReport(report *Report) (string, error) {
	if report == nil {
		return "", nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	if report.Source != "" {
		t.SetTitle(report.Source)
	}
	t.AppendHeader(table.Row{"Key", "Calls Made", "Remaining", "Used", "State"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})

	for _, k := range report.Keys {
		t.AppendRow(table.Row{
			keyName(k),
			k.CallsMade,
			k.CallsRemaining,
			fmt.Sprintf("%d%%", k.PercentageUsed),
			keyState(k),
		})
	}

	made, remaining := report.Totals()
	t.AppendFooter(table.Row{
		fmt.Sprintf("%d keys", report.TotalKeys),
		made,
		remaining,
		fmt.Sprintf("limit %d", report.DailyLimit),
		"",
	})

	rendered := t.Render()
	if report.LastReset != "" {
		rendered += fmt.Sprintf("\nLast reset: %s", report.LastReset)
	}
	if report.ServerTime != "" {
		rendered += fmt.Sprintf("\nServer time: %s", report.ServerTime)
	}
	return rendered, nil
}
