package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/credit-risk-cli/internal/model"
	"github.com/sells-group/credit-risk-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect pipeline run history",
	Long:  "Commands for listing, viewing, and summarizing prepare, train and predict runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pipeline runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("runs"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stage, _ := cmd.Flags().GetString("stage")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		format, _ := cmd.Flags().GetString("format")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Stage:  model.Stage(stage),
			Status: model.RunStatus(status),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		switch format {
		case "json":
			if runs == nil {
				runs = []model.Run{}
			}
			return writeJSON(cmd.OutOrStdout(), runs)
		case "table", "":
		default:
			return eris.Errorf("runs list: unknown format %q (table, json)", format)
		}

		if len(runs) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No runs found.")
			return nil
		}
		formatRunsList(cmd.OutOrStdout(), runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("runs"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		return writeJSON(cmd.OutOrStdout(), run)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics per stage",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("runs"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := st.ListRuns(ctx, store.RunFilter{Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		formatRunStats(cmd.OutOrStdout(), computeRunStats(runs))
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("stage", "", "filter by stage (prepare, train, predict)")
	runsListCmd.Flags().String("status", "", "filter by run status (running, complete, failed)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")
	runsListCmd.Flags().String("format", "table", "output format (table, json)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// stageStats holds aggregate statistics for one stage.
type stageStats struct {
	Stage      model.Stage
	Total      int
	Complete   int
	Failed     int
	Running    int
	AvgDurSecs float64
	LastAcc    *float64
}

// computeRunStats aggregates runs per stage in prepare, train, predict order.
// Runs are expected newest first, as ListRuns returns them.
func computeRunStats(runs []model.Run) []stageStats {
	order := []model.Stage{model.StagePrepare, model.StageTrain, model.StagePredict}
	byStage := make(map[model.Stage]*stageStats, len(order))
	for _, s := range order {
		byStage[s] = &stageStats{Stage: s}
	}

	durs := make(map[model.Stage]time.Duration)
	for _, r := range runs {
		s, ok := byStage[r.Stage]
		if !ok {
			continue
		}
		s.Total++
		switch r.Status {
		case model.RunStatusComplete:
			s.Complete++
			durs[r.Stage] += r.Duration()
			if s.LastAcc == nil && r.Result != nil && r.Result.Accuracy != nil {
				s.LastAcc = r.Result.Accuracy
			}
		case model.RunStatusFailed:
			s.Failed++
		default:
			s.Running++
		}
	}

	out := make([]stageStats, 0, len(order))
	for _, st := range order {
		s := byStage[st]
		if s.Complete > 0 {
			s.AvgDurSecs = durs[st].Seconds() / float64(s.Complete)
		}
		out = append(out, *s)
	}
	return out
}

// formatRunStats writes per-stage stats to w.
func formatRunStats(out io.Writer, stats []stageStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STAGE\tTOTAL\tCOMPLETE\tFAILED\tRUNNING\tAVG_DURATION\tLAST_ACCURACY")
	for _, s := range stats {
		acc := "-"
		if s.LastAcc != nil {
			acc = fmt.Sprintf("%.4f", *s.LastAcc)
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%.1fs\t%s\n",
			s.Stage, s.Total, s.Complete, s.Failed, s.Running, s.AvgDurSecs, acc)
	}
	_ = w.Flush()
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTAGE\tSTATUS\tCONFIG\tSTARTED\tDURATION\tDETAIL")
	_, _ = fmt.Fprintln(w, "--\t-----\t------\t------\t-------\t--------\t------")

	for _, r := range runs {
		dur := "-"
		if r.CompletedAt != nil {
			dur = r.Duration().Round(time.Millisecond).String()
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.Stage,
			r.Status,
			truncateID(r.ConfigHash),
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
			runDetail(r),
		)
	}
	_ = w.Flush()
}

// runDetail summarizes a run's outcome in one short cell.
func runDetail(r model.Run) string {
	if r.Status == model.RunStatusFailed {
		msg := r.Error
		if len(msg) > 40 {
			msg = msg[:37] + "..."
		}
		return msg
	}
	if r.Result == nil {
		return ""
	}
	if r.Result.Accuracy != nil {
		return fmt.Sprintf("accuracy=%.4f", *r.Result.Accuracy)
	}
	if r.Result.Rows > 0 {
		return fmt.Sprintf("rows=%d", r.Result.Rows)
	}
	return ""
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
