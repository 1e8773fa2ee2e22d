package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"

	"github.com/weatherproxy/weatherproxy/internal/config"
	"github.com/weatherproxy/weatherproxy/internal/output"
	"github.com/weatherproxy/weatherproxy/internal/rotation"
	"github.com/weatherproxy/weatherproxy/internal/server/handlers"
)

var (
	statusServer  string
	statusOutput  string
	statusOut     string
	statusTimeout time.Duration

	keysOutput string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show credential usage of a running proxy",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(statusOutput)
		if err != nil {
			return err
		}

		baseURL := strings.TrimSpace(statusServer)
		if baseURL == "" {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			baseURL = fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
		}

		client := &http.Client{Timeout: statusTimeout}
		report, err := fetchStatus(cmd.Context(), client, baseURL)
		if err != nil {
			return err
		}

		sink, err := openSink(statusOut)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		return writeReport(sink.writer, format, report)
	},
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List configured credentials (redacted)",
	Long: `List the credentials the proxy would rotate through, in order, with
their daily budget. Keys are redacted. Counters are those of a fresh process.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(keysOutput)
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		rotator := rotation.New(rotation.Options{
			Credentials: cfg.Quota.Keys,
			DailyLimit:  cfg.Quota.DailyLimit,
		})
		return writeReport(cmd.OutOrStdout(), format, localReport(rotator.Status(), cfg.Quota.Keys))
	},
}

// fetchStatus reads GET {baseURL}/status.
func fetchStatus(ctx context.Context, client *http.Client, baseURL string) (*output.Report, error) {
	endpoint := strings.TrimSuffix(baseURL, "/") + "/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("query %s: status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var status handlers.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return remoteReport(baseURL, status), nil
}

func remoteReport(source string, status handlers.StatusResponse) *output.Report {
	report := &output.Report{
		Source:     source,
		TotalKeys:  status.TotalKeys,
		DailyLimit: status.DailyLimit,
		LastReset:  status.LastReset,
		ServerTime: status.ServerTime,
		Keys:       make([]output.KeyReport, 0, len(status.Usage)),
	}
	for _, u := range status.Usage {
		report.Keys = append(report.Keys, output.KeyReport{
			KeyNumber:      u.KeyNumber,
			CallsMade:      u.CallsMade,
			CallsRemaining: u.CallsRemaining,
			PercentageUsed: u.PercentageUsed,
		})
	}
	return report
}

func localReport(status rotation.Status, keys []string) *output.Report {
	report := &output.Report{
		Source:     "local configuration",
		TotalKeys:  status.TotalKeys,
		DailyLimit: status.DailyLimit,
		LastReset:  status.LastResetString(),
		Keys:       make([]output.KeyReport, 0, len(status.Usage)),
	}
	for _, u := range status.Usage {
		line := output.KeyReport{
			KeyNumber:      u.Number(),
			CallsMade:      u.CallsMade,
			CallsRemaining: u.CallsRemaining,
			PercentageUsed: u.PercentageUsed,
		}
		if u.Index < len(keys) {
			line.Label = config.RedactKey(keys[u.Index])
		}
		report.Keys = append(report.Keys, line)
	}
	return report
}

func writeReport(w io.Writer, format output.Format, report *output.Report) error {
	rendered, err := output.NewFormatter(format).FormatReport(report)
	if err != nil {
		return err
	}

	if format == output.FormatTable {
		_, _ = fmt.Fprint(w, ascii.DrawBox(strings.Join(reportSummary(report), "\n"), 0))
		if len(report.Keys) == 0 {
			return nil
		}
	}
	_, err = fmt.Fprintln(w, rendered)
	return err
}

func reportSummary(report *output.Report) []string {
	made, remaining := report.Totals()
	lines := []string{"Credential Usage", ""}
	if len(report.Keys) == 0 {
		return append(lines, "(no credentials configured)")
	}

	state := "available"
	if report.Exhausted() {
		state = "exhausted until midnight UTC"
	}
	return append(lines,
		fmt.Sprintf("Keys: %d  Limit: %d/key/day", report.TotalKeys, report.DailyLimit),
		fmt.Sprintf("Calls today: %d  Remaining: %d", made, remaining),
		"State: "+state,
	)
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(keysCmd)

	statusCmd.Flags().StringVar(&statusServer, "server", "", "proxy base URL (default http://127.0.0.1:<server.port>)")
	statusCmd.Flags().StringVar(&statusOutput, "output-format", string(output.FormatTable), "Output format: table|json|yaml|markdown")
	statusCmd.Flags().StringVar(&statusOut, "out", "", "Write output to a file (default stdout)")
	statusCmd.Flags().DurationVar(&statusTimeout, "timeout", 10*time.Second, "request timeout")

	keysCmd.Flags().StringVar(&keysOutput, "output-format", string(output.FormatTable), "Output format: table|json|yaml|markdown")
}
