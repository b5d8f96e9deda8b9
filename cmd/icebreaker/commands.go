package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/icebreaker/internal/collect"
	"github.com/kalambet/icebreaker/internal/config"
	"github.com/kalambet/icebreaker/internal/storage"
)

func refsFromArgs(args []string) []collect.ProfileRef {
	refs := make([]collect.ProfileRef, len(args))
	for i, a := range args {
		refs[i] = collect.ProfileRef{URL: a}
	}
	return refs
}

// --- compare ---

var compareCmd = &cobra.Command{
	Use:   "compare <profile-url> <profile-url>",
	Short: "Compare two profiles and print icebreakers",
	Long: `Compare two LinkedIn profiles end to end: trigger collection, wait for the
snapshot, analyze it and print the result.

Examples:
  icebreaker compare https://www.linkedin.com/in/ada https://www.linkedin.com/in/grace
  icebreaker compare --async https://www.linkedin.com/in/ada https://www.linkedin.com/in/grace`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		async, _ := cmd.Flags().GetBool("async")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		body := map[string]any{"urls": refsFromArgs(args)}

		if async {
			resp, err := client.post(cmd.Context(), "/api/runs", body)
			if err != nil {
				return err
			}
			var result map[string]string
			if err := decodeJSON(resp, &result); err != nil {
				return err
			}
			printSuccess("Queued run %s", result["run_id"])
			printStep("Check progress with: icebreaker runs show %s", result["run_id"])
			return nil
		}

		printStep("Collecting profiles and generating insights, this can take a couple of minutes...")
		resp, err := client.post(cmd.Context(), "/api/compare", body)
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Run %s (snapshot %s)", result["run_id"], result["snapshot_id"])
		fmt.Println(result["insights"])
		return nil
	},
}

func init() {
	compareCmd.Flags().Bool("async", false, "queue the run and return immediately")
}

// --- trigger / snapshot / analyze ---

var triggerCmd = &cobra.Command{
	Use:   "trigger <profile-url> <profile-url>",
	Short: "Start a collection job and print its snapshot ID",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/api/trigger", map[string]any{"urls": refsFromArgs(args)})
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Triggered snapshot %s", result["snapshot_id"])
		fmt.Println(result["snapshot_id"])
		return nil
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot <snapshot-id>",
	Short: "Wait for a snapshot and print the collected data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Waiting for snapshot %s...", args[0])
		resp, err := client.get(cmd.Context(), "/api/snapshot/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var data any
		if err := decodeJSON(resp, &data); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <snapshot-id>",
	Short: "Analyze a fetched snapshot and print icebreakers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/api/analyze", map[string]string{"snapshotId": args[0]})
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result["insights"])
		return nil
	},
}

// --- runs ---

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recorded comparison runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/api/runs?limit=%d&offset=%d", limit, offset))
		if err != nil {
			return err
		}
		var runs []storage.Run
		if err := decodeJSON(resp, &runs); err != nil {
			return err
		}

		if len(runs) == 0 {
			printStatus("Runs", "none")
			return nil
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTATE\tSNAPSHOT\tCREATED")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, stateLabel(r.State, r.ErrorKind), r.JobID, r.CreatedAt.Local().Format(time.DateTime))
		}
		return tw.Flush()
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run and its result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/runs/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var run storage.Run
		if err := decodeJSON(resp, &run); err != nil {
			return err
		}

		printStatus("Run", "%s", run.ID)
		printStatus("State", "%s", stateLabel(run.State, ""))
		if run.JobID != "" {
			printStatus("Snapshot", "%s", run.JobID)
		}
		if run.Error != "" {
			printError("%s: %s", run.ErrorKind, run.Error)
		}
		if run.Insight != "" {
			fmt.Println(run.Insight)
		}
		return nil
	},
}

func init() {
	runsListCmd.Flags().Int("limit", 20, "maximum number of runs")
	runsListCmd.Flags().Int("offset", 0, "number of runs to skip")
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tVALUE\tENV")
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", k.Key, k.Value, k.EnvVar)
		}
		return tw.Flush()
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}
