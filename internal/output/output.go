// Package output renders credential usage reports for the CLI.
package output

import (
	"fmt"
	"strings"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
)

// Report is a snapshot of daily credential usage, either fetched from a
// running proxy's /status route or built from local configuration.
type Report struct {
	Source     string      `json:"source,omitempty" yaml:"source,omitempty"`
	TotalKeys  int         `json:"totalKeys" yaml:"total_keys"`
	DailyLimit int         `json:"dailyLimit" yaml:"daily_limit"`
	LastReset  string      `json:"lastReset,omitempty" yaml:"last_reset,omitempty"`
	ServerTime string      `json:"serverTime,omitempty" yaml:"server_time,omitempty"`
	Keys       []KeyReport `json:"usage" yaml:"usage"`
}

// KeyReport is one credential's line in a Report. Label is a redacted form
// of the credential and is only known for local reports.
type KeyReport struct {
	KeyNumber      int    `json:"keyNumber" yaml:"key_number"`
	Label          string `json:"label,omitempty" yaml:"label,omitempty"`
	CallsMade      int    `json:"callsMade" yaml:"calls_made"`
	CallsRemaining int    `json:"callsRemaining" yaml:"calls_remaining"`
	PercentageUsed int    `json:"percentageUsed" yaml:"percentage_used"`
}

// Totals sums calls made and remaining across all keys.
func (r *Report) Totals() (made, remaining int) {
	for _, k := range r.Keys {
		made += k.CallsMade
		remaining += k.CallsRemaining
	}
	return made, remaining
}

// Exhausted reports whether no key has calls remaining.
func (r *Report) Exhausted() bool {
	for _, k := range r.Keys {
		if k.CallsRemaining > 0 {
			return false
		}
	}
	return true
}

// Formatter renders reports.
type Formatter interface {
	FormatReport(report *Report) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatYAML), "yml":
		return FormatYAML, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// Extension returns the file extension used when writing format to disk.
func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	case FormatMarkdown:
		return "md"
	default:
		return "txt"
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatYAML:
		return &YAMLFormatter{}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

func keyName(k KeyReport) string {
	if k.Label != "" {
		return fmt.Sprintf("#%d (%s)", k.KeyNumber, k.Label)
	}
	return fmt.Sprintf("#%d", k.KeyNumber)
}

func keyState(k KeyReport) string {
	switch {
	case k.CallsRemaining <= 0:
		return "exhausted"
	case k.PercentageUsed >= 80:
		return "low"
	default:
		return "ok"
	}
}
