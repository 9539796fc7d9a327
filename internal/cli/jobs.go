package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"roserade/internal/indexer"
	"roserade/internal/scheduler"
	"roserade/internal/store"
)

var (
	jobsAddRecursive bool
	jobsAddForce     bool
	jobsAddExclude   []string
	jobsListJSON     bool
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage recurring indexing jobs",
}

var jobsAddCmd = &cobra.Command{
	Use:   "add [name] [path] [schedule]",
	Short: "Register a recurring indexing job",
	Long: `Registers a named job that indexes the given path on a cron
schedule (standard five-field syntax, e.g. "0 2 * * *" for daily at 02:00).
Jobs run through "jobs run" or the "jobs daemon" loop.`,
	Args: cobra.ExactArgs(3),
	RunE: runJobsAdd,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered jobs",
	Args:  cobra.NoArgs,
	RunE:  runJobsList,
}

var jobsRemoveCmd = &cobra.Command{
	Use:   "remove [name]",
	Short: "Remove a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsRemove,
}

var jobsEnableCmd = &cobra.Command{
	Use:   "enable [name]",
	Short: "Enable a job",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setJobEnabled(cmd, args[0], true) },
}

var jobsDisableCmd = &cobra.Command{
	Use:   "disable [name]",
	Short: "Disable a job",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setJobEnabled(cmd, args[0], false) },
}

var jobsRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run all due jobs once",
	Args:  cobra.NoArgs,
	RunE:  runJobsRun,
}

var jobsDaemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Poll for due jobs until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runJobsDaemon,
}

func init() {
	jobsAddCmd.Flags().BoolVarP(&jobsAddRecursive, "recursive", "r", false, "descend into subdirectories")
	jobsAddCmd.Flags().BoolVarP(&jobsAddForce, "force", "f", false, "reindex even if unchanged")
	jobsAddCmd.Flags().StringArrayVar(&jobsAddExclude, "exclude", nil, "glob pattern to exclude (repeatable)")
	jobsListCmd.Flags().BoolVar(&jobsListJSON, "json", false, "output as JSON")

	jobsCmd.AddCommand(jobsAddCmd, jobsListCmd, jobsRemoveCmd, jobsEnableCmd, jobsDisableCmd, jobsRunCmd, jobsDaemonCmd)
	rootCmd.AddCommand(jobsCmd)
}

// newScheduler wires a Scheduler whose runs go through the indexing pipeline.
// A run where any file fails counts as a failed run.
func newScheduler(app *app) *scheduler.Scheduler {
	run := func(ctx context.Context, job store.Job) error {
		res, err := app.indexer.IndexPath(ctx, job.Path, indexer.Options{
			Recursive:       job.Options.Recursive,
			Force:           job.Options.Force,
			ExcludePatterns: job.Options.ExcludePatterns,
		})
		if err != nil {
			return err
		}
		if res.Failed > 0 {
			return failedRunError(res.Failed)
		}
		return nil
	}
	return scheduler.New(app.store, run, cfg.Scheduler, logger)
}

func runJobsAdd(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	job, err := newScheduler(app).Register(cmd.Context(), args[0], args[1], args[2], store.JobOptions{
		Recursive:       jobsAddRecursive,
		Force:           jobsAddForce,
		ExcludePatterns: jobsAddExclude,
	})
	if err != nil {
		return err
	}
	cmd.Printf("Registered job %q, next run %s\n", job.Name, job.NextRun.Local().Format(time.RFC3339))
	return nil
}

func runJobsList(cmd *cobra.Command, _ []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	jobs, err := newScheduler(app).List(cmd.Context())
	if err != nil {
		return err
	}

	if jobsListJSON {
		return printJobsJSON(cmd, jobs)
	}
	printJobsTable(cmd, jobs)
	return nil
}

type jobJSON struct {
	Name         string     `json:"name"`
	Path         string     `json:"path"`
	Schedule     string     `json:"schedule"`
	Enabled      bool       `json:"enabled"`
	NextRun      *time.Time `json:"next_run,omitempty"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	LastSuccess  *time.Time `json:"last_success,omitempty"`
	FailureCount int        `json:"failure_count"`
}

func printJobsJSON(cmd *cobra.Command, jobs []store.Job) error {
	out := make([]jobJSON, len(jobs))
	for i, j := range jobs {
		out[i] = jobJSON{
			Name:         j.Name,
			Path:         j.Path,
			Schedule:     j.Schedule,
			Enabled:      j.Enabled,
			NextRun:      j.NextRun,
			LastRun:      j.LastRun,
			LastSuccess:  j.LastSuccess,
			FailureCount: j.FailureCount,
		}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal jobs: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func printJobsTable(cmd *cobra.Command, jobs []store.Job) {
	if len(jobs) == 0 {
		cmd.Println("No jobs registered.")
		return
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPATH\tSCHEDULE\tENABLED\tNEXT RUN\tFAILURES")
	for _, j := range jobs {
		next := "-"
		if j.NextRun != nil {
			next = j.NextRun.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%d\n", j.Name, j.Path, j.Schedule, j.Enabled, next, j.FailureCount)
	}
	_ = w.Flush()
}

func runJobsRemove(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	if err := newScheduler(app).Deregister(cmd.Context(), args[0]); err != nil {
		return err
	}
	cmd.Printf("Removed job %q\n", args[0])
	return nil
}

func setJobEnabled(cmd *cobra.Command, name string, enabled bool) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	if err := newScheduler(app).SetEnabled(cmd.Context(), name, enabled); err != nil {
		return err
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	cmd.Printf("Job %q %s\n", name, state)
	return nil
}

func runJobsRun(cmd *cobra.Command, _ []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	outcomes, err := newScheduler(app).RunDue(cmd.Context(), time.Now())
	if err != nil {
		return err
	}
	if len(outcomes) == 0 {
		cmd.Println("No jobs due.")
		return nil
	}
	var failed int
	for _, o := range outcomes {
		cmd.Printf("%s: %s\n", o.Name, o.Outcome)
		if o.Outcome == scheduler.OutcomeFailed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d job(s) failed", failed)
	}
	return nil
}

func runJobsDaemon(cmd *cobra.Command, _ []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	err = newScheduler(app).Daemon(cmd.Context(), time.Duration(cfg.Scheduler.PollInterval))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
