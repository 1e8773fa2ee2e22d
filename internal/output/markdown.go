package output

import (
	"fmt"
	"strings"
)

// MarkdownFormatter renders reports as a markdown table.
type MarkdownFormatter struct{}

// FormatReport renders a usage report as Markdown.
func (f *MarkdownFormatter) FormatReport(report *Report) (string, error) {
	if report == nil {
		return "", nil
	}

	var sb strings.Builder
	title := "Credential usage"
	if report.Source != "" {
		title += " (" + escapeMarkdownCell(report.Source) + ")"
	}
	sb.WriteString("## " + title + "\n\n")
	sb.WriteString("| Key | Calls Made | Remaining | Used | State |\n")
	sb.WriteString("|-----|-----------:|----------:|-----:|-------|\n")

	for _, k := range report.Keys {
		sb.WriteString(fmt.Sprintf("| %s | %d | %d | %d%% | %s |\n",
			escapeMarkdownCell(keyName(k)),
			k.CallsMade,
			k.CallsRemaining,
			k.PercentageUsed,
			keyState(k),
		))
	}

	made, remaining := report.Totals()
	sb.WriteString(fmt.Sprintf("\n**Daily limit**: %d per key, %d made, %d remaining\n", report.DailyLimit, made, remaining))
	if report.LastReset != "" {
		sb.WriteString(fmt.Sprintf("**Last reset**: %s\n", report.LastReset))
	}
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
