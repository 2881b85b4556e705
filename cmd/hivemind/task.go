package main

import (
	"fmt"
	"io"
	"net/url"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fentz26/hivemind/internal/models"
)

var completeCmd = &cobra.Command{
	Use:   "complete <task-id>",
	Short: "Mark a running task as completed or failed",
	Args:  cobra.ExactArgs(1),
	RunE:  runComplete,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Cancel a queued or running task",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Inspect tasks",
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE:  runTaskList,
}

var taskShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show task details",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var (
	completeResult string
	completeFailed bool
	cancelReason   string
	taskStatus     string
	taskBranch     string
)

func init() {
	taskCmd.AddCommand(taskListCmd, taskShowCmd)

	completeCmd.Flags().StringVar(&completeResult, "result", "", "Result text, or the error when --failed")
	completeCmd.Flags().BoolVar(&completeFailed, "failed", false, "Mark the task as failed")

	cancelCmd.Flags().StringVar(&cancelReason, "reason", "", "Why the task is cancelled")

	taskListCmd.Flags().StringVar(&taskStatus, "status", "", "Filter by status (queued, running, completed, failed, cancelled)")
	taskListCmd.Flags().StringVar(&taskBranch, "branch", "", "Filter by branch")
}

func runComplete(cmd *cobra.Command, args []string) error {
	body := map[string]any{
		"result":  completeResult,
		"success": !completeFailed,
	}

	var task models.ParallelTask
	if err := apiPost("/tasks/"+url.PathEscape(args[0])+"/complete", body, &task); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Task %s %s\n", task.ID, task.Status)
	return nil
}

func runCancel(cmd *cobra.Command, args []string) error {
	var task models.ParallelTask
	if err := apiPost("/tasks/"+url.PathEscape(args[0])+"/cancel", map[string]string{"reason": cancelReason}, &task); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Task %s %s\n", task.ID, task.Status)
	return nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	q := url.Values{}
	if taskStatus != "" {
		q.Set("status", taskStatus)
	}
	if taskBranch != "" {
		q.Set("branch", taskBranch)
	}
	path := "/tasks"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var tasks []models.ParallelTask
	if err := apiGet(path, &tasks); err != nil {
		return err
	}

	if len(tasks) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No tasks found")
		return nil
	}
	printTasks(cmd.OutOrStdout(), tasks)
	return nil
}

func printTasks(out io.Writer, tasks []models.ParallelTask) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tPRIORITY\tTYPE\tBRANCH\tDESCRIPTION")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", t.ID, t.Status, t.Priority, t.TaskType, t.BranchID, truncate(t.Description, 40))
	}
	w.Flush()
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	var task models.ParallelTask
	if err := apiGet("/tasks/"+url.PathEscape(args[0]), &task); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:          %s\n", task.ID)
	fmt.Fprintf(out, "Description: %s\n", task.Description)
	fmt.Fprintf(out, "Type:        %s\n", task.TaskType)
	fmt.Fprintf(out, "Priority:    %s\n", task.Priority)
	fmt.Fprintf(out, "Branch:      %s\n", task.BranchID)
	fmt.Fprintf(out, "Status:      %s\n", task.Status)
	fmt.Fprintf(out, "Created:     %s\n", task.CreatedAt.Format(time.RFC3339))
	if task.StartedAt != nil {
		fmt.Fprintf(out, "Started:     %s\n", task.StartedAt.Format(time.RFC3339))
	}
	if task.CompletedAt != nil {
		fmt.Fprintf(out, "Finished:    %s\n", task.CompletedAt.Format(time.RFC3339))
	}
	if task.Result != "" {
		fmt.Fprintf(out, "Result:      %s\n", task.Result)
	}
	if task.Error != "" {
		fmt.Fprintf(out, "Error:       %s\n", task.Error)
	}

	return nil
}
