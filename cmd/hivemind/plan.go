package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fentz26/hivemind/internal/controlplane"
	"github.com/fentz26/hivemind/internal/models"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Create an execution plan for a batch of tasks",
	Long: `Registers a batch of tasks with the daemon. As many as the host resources allow
start right away, the rest are queued.

Tasks are given as repeated --task "description|type|priority" flags or as a
YAML or JSON file holding a list of {description, type, priority, metadata}.`,
	Example: `  hivemind plan --task "search auth code|search|HIGH" --task "run unit tests|test"
  hivemind plan --file tasks.yaml --branch feature-x --mode adaptive`,
	RunE: runPlan,
}

var (
	planTasks  []string
	planFile   string
	planBranch string
	planMode   string
)

func init() {
	planCmd.Flags().StringArrayVar(&planTasks, "task", nil, `Task as "description|type|priority" (repeatable)`)
	planCmd.Flags().StringVar(&planFile, "file", "", "YAML or JSON file with a list of tasks")
	planCmd.Flags().StringVar(&planBranch, "branch", "", "Branch the tasks belong to (default main)")
	planCmd.Flags().StringVar(&planMode, "mode", "auto", "Execution mode (auto, parallel, sequential, adaptive)")
}

// parseTaskFlag parses "description|type|priority". Type and priority are
// optional.
func parseTaskFlag(s string) (models.TaskDescriptor, error) {
	parts := strings.Split(s, "|")
	if len(parts) > 3 {
		return models.TaskDescriptor{}, fmt.Errorf("task %q: expected description|type|priority", s)
	}

	d := models.TaskDescriptor{Description: strings.TrimSpace(parts[0])}
	if d.Description == "" {
		return models.TaskDescriptor{}, fmt.Errorf("task %q: description is required", s)
	}
	if len(parts) > 1 {
		d.Type = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 {
		d.Priority = strings.TrimSpace(parts[2])
	}
	return d, nil
}

// loadTaskFile reads a list of tasks from a JSON file, or YAML for any other
// extension.
func loadTaskFile(path string) ([]models.TaskDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tasks: %w", err)
	}

	var descs []models.TaskDescriptor
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &descs)
	} else {
		err = yaml.Unmarshal(data, &descs)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return descs, nil
}

func collectTasks(flags []string, file string) ([]models.TaskDescriptor, error) {
	var descs []models.TaskDescriptor
	if file != "" {
		fromFile, err := loadTaskFile(file)
		if err != nil {
			return nil, err
		}
		descs = append(descs, fromFile...)
	}
	for _, f := range flags {
		d, err := parseTaskFlag(f)
		if err != nil {
			return nil, err
		}
		descs = append(descs, d)
	}
	if len(descs) == 0 {
		return nil, fmt.Errorf("no tasks given, use --task or --file")
	}
	return descs, nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	descs, err := collectTasks(planTasks, planFile)
	if err != nil {
		return err
	}

	var plan models.ExecutionPlan
	req := controlplane.PlanRequest{Tasks: descs, BranchID: planBranch, Mode: planMode}
	if err := apiPost("/plans", req, &plan); err != nil {
		return err
	}

	printPlan(cmd.OutOrStdout(), plan)
	return nil
}

func printPlan(out io.Writer, plan models.ExecutionPlan) {
	st := plan.ResourceStatus
	fmt.Fprintf(out, "Strategy: %s (%s)\n", plan.Strategy, plan.Mode)
	fmt.Fprintf(out, "Branch:   %s\n", plan.BranchID)
	fmt.Fprintf(out, "Zone:     %s, %d/%d agents (%s)\n", st.Zone, st.CurrentAgents, st.MaxAgents, st.Reason)
	fmt.Fprintf(out, "%s\n\n", plan.Description)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tPRIORITY\tTYPE\tDESCRIPTION")
	for _, t := range plan.ParallelTasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Status, t.Priority, t.TaskType, truncate(t.Description, 50))
	}
	for _, t := range plan.QueuedTasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Status, t.Priority, t.TaskType, truncate(t.Description, 50))
	}
	w.Flush()

	fmt.Fprintf(out, "\n%d running, %d queued of %d tasks\n", len(plan.ParallelTasks), len(plan.QueuedTasks), plan.TotalTasks)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
