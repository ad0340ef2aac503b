package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/cuongbtq/pdf-gateway/internal/api/domain"
	"github.com/cuongbtq/pdf-gateway/internal/api/model"
	"github.com/cuongbtq/pdf-gateway/internal/api/storage"
	"github.com/spf13/cobra"
)

const maxJobPage = 500

// InitJobCommands registers the jobs command group
func InitJobCommands(rootCmd *cobra.Command, open EnvOpener) {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and requeue jobs",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := open()
			if err != nil {
				return err
			}
			defer env.Close()
			return listJobs(cmd, env)
		},
	}
	listCmd.Flags().String("user", "", "Only jobs owned by this user")
	listCmd.Flags().String("status", "", "Only jobs in this status")
	listCmd.Flags().String("type", "", "Only jobs of this type")
	listCmd.Flags().Int("limit", 50, "Maximum number of jobs")

	requeueCmd := &cobra.Command{
		Use:   "requeue",
		Short: "Republish PENDING jobs and reset RUNNING jobs whose worker went quiet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := open()
			if err != nil {
				return err
			}
			defer env.Close()
			return requeueJobs(cmd, env)
		},
	}
	requeueCmd.Flags().Duration("stale-after", 0, "Heartbeat age after which a RUNNING job is reset (defaults to worker.stale_after)")
	requeueCmd.Flags().Bool("dry-run", false, "Only print what would be requeued")

	jobsCmd.AddCommand(listCmd, requeueCmd)
	rootCmd.AddCommand(jobsCmd)
}

func listJobs(cmd *cobra.Command, env *Env) error {
	flags := cmd.Flags()
	userID, _ := flags.GetString("user")
	status, _ := flags.GetString("status")
	jobType, _ := flags.GetString("type")
	limit, _ := flags.GetInt("limit")
	if limit <= 0 || limit > maxJobPage {
		return fmt.Errorf("limit must be between 1 and %d", maxJobPage)
	}

	jobs, err := env.Jobs.ListJobs(cmd.Context(), storage.JobFilter{
		UserID:   userID,
		Status:   status,
		JobType:  jobType,
		PageSize: limit,
	})
	if err != nil {
		return err
	}
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB ID\tUSER\tTYPE\tSTATUS\tRETRIES\tCREATED\tWORKER")
	for _, j := range jobs {
		worker := "-"
		if j.WorkerID != nil {
			worker = *j.WorkerID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			j.JobID, j.UserID, j.JobType, j.Status, j.RetryCount, j.MaxRetries,
			j.CreatedAt.UTC().Format(time.RFC3339), worker)
	}
	return tw.Flush()
}

func requeueJobs(cmd *cobra.Command, env *Env) error {
	ctx := cmd.Context()
	staleAfter, _ := cmd.Flags().GetDuration("stale-after")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	if staleAfter <= 0 {
		staleAfter = env.StaleAfter
	}
	if staleAfter <= 0 {
		return errors.New("stale-after must be positive")
	}
	staleBefore := time.Now().Add(-staleAfter)

	pending, err := allJobs(cmd, env, domain.JobStatusPending)
	if err != nil {
		return err
	}
	running, err := allJobs(cmd, env, domain.JobStatusRunning)
	if err != nil {
		return err
	}

	requeued := 0
	for _, job := range pending {
		if dryRun {
			fmt.Fprintf(cmd.OutOrStdout(), "would republish %s\n", job.JobID)
			continue
		}
		if err := publishJob(cmd, env, job.JobID); err != nil {
			return err
		}
		requeued++
	}

	for _, job := range running {
		if dryRun {
			fmt.Fprintf(cmd.OutOrStdout(), "would reset %s if its heartbeat is older than %s\n", job.JobID, staleAfter)
			continue
		}
		err := env.Jobs.ResetStaleJob(ctx, job.JobID, staleBefore)
		if errors.Is(err, domain.ErrJobStateConflict) {
			// still heartbeating, or finished meanwhile
			continue
		}
		if err != nil {
			return err
		}
		if err := publishJob(cmd, env, job.JobID); err != nil {
			return err
		}
		requeued++
	}

	env.Logger.Info("Requeue finished",
		slog.Int("pending", len(pending)),
		slog.Int("running", len(running)),
		slog.Int("requeued", requeued),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "requeued %d job(s)\n", requeued)
	return nil
}

// allJobs pages through every job in status, oldest pages last
func allJobs(cmd *cobra.Command, env *Env, status string) ([]model.Job, error) {
	var (
		out    []model.Job
		cursor *storage.JobCursor
	)
	for {
		page, err := env.Jobs.ListJobs(cmd.Context(), storage.JobFilter{
			Status:   status,
			PageSize: maxJobPage,
			Cursor:   cursor,
		})
		if err != nil {
			return nil, err
		}
		if len(page) <= maxJobPage {
			return append(out, page...), nil
		}
		page = page[:maxJobPage]
		out = append(out, page...)
		last := page[len(page)-1]
		cursor = &storage.JobCursor{CreatedAt: last.CreatedAt, JobID: last.JobID}
	}
}

func publishJob(cmd *cobra.Command, env *Env, jobID string) error {
	body, err := json.Marshal(map[string]string{"job_id": jobID})
	if err != nil {
		return err
	}
	if err := env.Publisher.Publish(cmd.Context(), body, "application/json"); err != nil {
		return fmt.Errorf("failed to publish job %s: %w", jobID, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "republished %s\n", jobID)
	return nil
}
