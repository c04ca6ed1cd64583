package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/opsdash/scheduler/internal/handler"
	"github.com/opsdash/scheduler/internal/model"
)

func jobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Manage scheduled jobs",
	}
	cmd.AddCommand(jobInfoCmd())
	cmd.AddCommand(jobRemoveCmd())
	cmd.AddCommand(jobBlockCmd())
	cmd.AddCommand(jobForceCmd())
	cmd.AddCommand(jobActivateCmd())
	return cmd
}

func jobInfoCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "info [name]",
		Short: "Show a job, its tags, recent tasks, and alert recipients",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			h, closeFn, err := newHandler(cmd.Context())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			defer closeFn()

			info, err := h.InfoJob(cmd.Context(), args[0], limit)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			printJobInfo(info)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max recent tasks to show")
	return cmd
}

func printJobInfo(info *handler.JobInfo) {
	job := info.Job
	fmt.Printf("%s  [%s]  operator=%s  active=%v  status=%s\n", job.Name, job.Timezone, job.Operator, job.Active, job.Status)
	fmt.Printf("  command: %s\n", job.Command)
	fmt.Printf("  next_run_local_ts: %s\n", job.NextRunLocalTS.Format(time.DateTime))

	tagNames := make([]string, len(info.Tags))
	for i, t := range info.Tags {
		tagNames[i] = t.Name
	}
	fmt.Printf("  tags: %v\n", tagNames)
	fmt.Printf("  alert recipients: %v\n", info.Alerts)

	fmt.Println("  recent tasks:")
	printTasks(info.Tasks)
}

func jobRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove [name]",
		Short: "Remove a job and cascade-delete its tags, tasks, and alerts",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			h, closeFn, err := newHandler(cmd.Context())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			defer closeFn()

			if err := h.RemoveJob(cmd.Context(), args[0]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			fmt.Printf("removed job %s\n", args[0])
		},
	}
}

func jobBlockCmd() *cobra.Command {
	var till, msg, email string
	cmd := &cobra.Command{
		Use:   "block [name]",
		Short: "Block a job from dispatching until a given time",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			h, closeFn, err := newHandler(cmd.Context())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			defer closeFn()

			t, err := time.Parse(time.RFC3339, till)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: invalid --till timestamp: %s\n", err)
				os.Exit(1)
			}

			var errs []error
			if err := h.BlockJobTill(cmd.Context(), args[0], t, msg, email, &errs); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			fmt.Printf("blocked job %s until %s\n", args[0], t)
		},
	}
	cmd.Flags().StringVar(&till, "till", "", "RFC3339 timestamp to block until")
	cmd.Flags().StringVar(&msg, "msg", "", "block reason")
	cmd.Flags().StringVar(&email, "by", "", "email of the operator applying the block")
	return cmd
}

func jobForceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force [name]",
		Short: "Force-schedule a job to run immediately",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			h, closeFn, err := newHandler(cmd.Context())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			defer closeFn()

			task, err := h.ForceScheduleForJob(cmd.Context(), args[0], time.Now())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			if task == nil {
				fmt.Printf("job %s not found\n", args[0])
				return
			}
			fmt.Printf("scheduled task %s for job %s at %s\n", task.ID, args[0], task.ExecutionDate)
		},
	}
}

func jobActivateCmd() *cobra.Command {
	var deactivate bool
	cmd := &cobra.Command{
		Use:   "activate [name]",
		Short: "Activate or deactivate a job",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			h, closeFn, err := newHandler(cmd.Context())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			defer closeFn()

			reason, err := h.ChangeJobStatus(cmd.Context(), args[0], deactivate)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			if reason != "" {
				fmt.Println(reason)
				return
			}
			fmt.Printf("job %s updated\n", args[0])
		},
	}
	cmd.Flags().BoolVar(&deactivate, "deactivate", false, "deactivate instead of activate")
	return cmd
}

// printTasks renders tasks newest-first via a tabwriter, matching the
// teacher's cron_cmd.go display convention.
func printTasks(tasks []model.TaskInstance) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "EXECUTION\tSTATE\tRESULT\n")
	for _, t := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", t.ExecutionDate.Format(time.DateTime), t.State, truncate(t.Result, 40))
	}
	tw.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
