package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/recall/internal/client"
	"github.com/lazypower/recall/internal/engine"
)

var lifecycleDaysOld int

var lifecycleCmd = &cobra.Command{
	Use:   "lifecycle",
	Short: "Summarize, archive and reinforce old memories",
}

var lifecycleRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one lifecycle pass now",
	Long: "Group records older than the cutoff by project and month, summarize each group, " +
		"archive the originals and raise their retention boost.",
	Args: cobra.NoArgs,
	RunE: runLifecycle,
}

func init() {
	lifecycleRunCmd.Flags().IntVar(&lifecycleDaysOld, "days-old", 0, "Age cutoff in days (0 uses config)")
	addRemoteFlag(lifecycleRunCmd)
	lifecycleCmd.AddCommand(lifecycleRunCmd)
}

func runLifecycle(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Minute)
	defer cancel()

	var (
		report *engine.Report
		runErr error
	)
	err := withBackend(ctx, func(c *client.Client) error {
		res, err := c.RunLifecycle(ctx, lifecycleDaysOld)
		if err != nil {
			return err
		}
		report = res.Report
		if res.Error != "" {
			runErr = errors.New(res.Error)
		}
		return nil
	}, func(st *stack) error {
		report, runErr = st.engine.Lifecycle.RunOlderThan(ctx, lifecycleDaysOld)
		if errors.Is(runErr, engine.ErrRunInProgress) {
			return runErr
		}
		return nil
	})
	if errors.Is(err, engine.ErrRunInProgress) {
		return fmt.Errorf("lifecycle: a run is already in progress")
	}
	if err != nil {
		return fmt.Errorf("lifecycle: %w", err)
	}

	if report != nil {
		printReport(cmd.OutOrStdout(), report)
	}
	if runErr != nil {
		return fmt.Errorf("lifecycle finished with errors: %w", runErr)
	}
	return nil
}

func printReport(w io.Writer, r *engine.Report) {
	fmt.Fprintf(w, "run %s: scanned %d, eligible %d, malformed %d\n", r.RunID, r.Scanned, r.Eligible, r.Malformed)
	fmt.Fprintf(w, "groups %d: summarized %d, archived %d, reinforced %d, skipped %d, resumed %d\n",
		r.Groups, r.Summarized, r.Archived, r.Reinforced, r.Skipped, r.Resumed)
	if r.Interrupted {
		fmt.Fprintln(w, "interrupted: pending groups resume on the next run")
	}
	for _, o := range r.Outcomes {
		status := string(o.Stage)
		switch {
		case o.Error != "":
			status = "error: " + o.Error
		case o.Skipped:
			status = "skipped"
		case o.Resumed:
			status += " (resumed)"
		}
		fmt.Fprintf(w, "  %-30s %3d records  %s\n", o.Key, o.Records, status)
	}
}
