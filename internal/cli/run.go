package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"blockminds/internal/domain"
	"blockminds/internal/pipeline"

	"github.com/spf13/cobra"
)

var runAssets []string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one collection and publication cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		p := a.Pipeline
		if len(runAssets) > 0 {
			p = a.PipelineFor(runAssets)
		}
		report, err := p.Run(cmd.Context())
		if report.RunID != "" {
			if encErr := writeReport(cmd, report); encErr != nil {
				return encErr
			}
		}
		return err
	},
}

func init() {
	runCmd.Flags().StringSliceVar(&runAssets, "asset", nil, "Asset ids to collect instead of the portfolio (repeatable)")
}

func writeReport(cmd *cobra.Command, report domain.RunReport) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the asset catalog",
}

var catalogSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch the upstream coin list and upsert it into the catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := getApp().Pipeline.SyncCatalog(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "catalog entries upserted: %d\n", n)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Manage stored price history",
}

var historyRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Replace the hourly price history of every portfolio asset",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := getApp().Pipeline.RefreshHourlyHistory(cmd.Context())
		if err != nil {
			return err
		}
		printHistoryReport(cmd, report)
		return nil
	},
}

func printHistoryReport(cmd *cobra.Command, report pipeline.HistoryReport) {
	fmt.Fprintf(cmd.OutOrStdout(), "hourly history refreshed: %d\n", report.Refreshed)
	if len(report.Failed) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "failed: %s\n", strings.Join(report.Failed, ", "))
	}
}

func init() {
	catalogCmd.AddCommand(catalogSyncCmd)
	historyCmd.AddCommand(historyRefreshCmd)
}
