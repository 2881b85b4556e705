package main

import (
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fentz26/hivemind/internal/controlplane"
	"github.com/fentz26/hivemind/internal/models"
	"github.com/fentz26/hivemind/internal/resource"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show task counts and the resource status",
	RunE:  runStats,
}

var learningsCmd = &cobra.Command{
	Use:   "learnings",
	Short: "Show parallelization learnings per task type",
	RunE:  runLearnings,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent execution history",
	RunE:  runHistory,
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show decision records",
	RunE:  runAudit,
}

var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "Show the resource zone and agent budget",
	Long:  `Shows the resource zone and agent budget from the daemon, or with --local samples this host directly without a daemon.`,
	RunE:  runResources,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the daemon health",
	RunE:  runStatus,
}

var (
	historyLimit   int
	auditTaskID    string
	auditLimit     int
	resourcesLocal bool
	resourcesCount int
)

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of records (0 for all)")

	auditCmd.Flags().StringVar(&auditTaskID, "task", "", "Only records for this task")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 20, "Number of records")

	resourcesCmd.Flags().BoolVar(&resourcesLocal, "local", false, "Sample this host without a daemon")
	resourcesCmd.Flags().IntVar(&resourcesCount, "current", -1, "Agents already running (default: the daemon's running tasks)")
}

func runStats(cmd *cobra.Command, args []string) error {
	var stats models.TaskStats
	if err := apiGet("/stats", &stats); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printResourceStatus(out, stats.ResourceStatus)
	fmt.Fprintf(out, "\nTasks: %d total, %d running, %d queued, %d completed, %d failed, %d cancelled\n",
		stats.Total, stats.Running, stats.Queued, stats.Completed, stats.Failed, stats.Cancelled)

	active := append(stats.RunningTasks, stats.QueuedTasks...)
	if len(active) > 0 {
		fmt.Fprintln(out)
		printTasks(out, active)
	}
	return nil
}

func runLearnings(cmd *cobra.Command, args []string) error {
	var l models.Learnings
	if err := apiGet("/learnings", &l); err != nil {
		return err
	}

	printLearnings(cmd.OutOrStdout(), l)
	return nil
}

func printLearnings(out io.Writer, l models.Learnings) {
	if len(l.ByType) == 0 {
		fmt.Fprintln(out, l.Message)
		return
	}

	types := make([]string, 0, len(l.ByType))
	for k := range l.ByType {
		types = append(types, k)
	}
	sort.Strings(types)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tRUNS\tSUCCESS\tAVG (s)\tSCORE\tRECOMMENDATION")
	for _, k := range types {
		v := l.ByType[k]
		avg := "-"
		if v.HasDurationData {
			avg = strconv.FormatFloat(v.AvgDuration, 'f', 1, 64)
		}
		fmt.Fprintf(w, "%s\t%d\t%.0f%%\t%s\t%.2f\t%s\n", k, v.Executions, v.SuccessRate*100, avg, v.BenefitScore, v.Recommendation)
	}
	w.Flush()
}

func runHistory(cmd *cobra.Command, args []string) error {
	var recs []models.HistoryRecord
	if err := apiGet("/history?limit="+strconv.Itoa(historyLimit), &recs); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(recs) == 0 {
		fmt.Fprintln(out, "No execution history yet")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tTYPE\tBRANCH\tSUCCESS\tDURATION\tCOMPLETED")
	for _, r := range recs {
		duration, completed := "-", "-"
		if r.DurationSeconds != nil {
			duration = fmt.Sprintf("%.1fs", *r.DurationSeconds)
		}
		if r.CompletedAt != nil {
			completed = r.CompletedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\n", r.TaskID, r.TaskType, r.BranchID, r.Success, duration, completed)
	}
	w.Flush()
	return nil
}

func runAudit(cmd *cobra.Command, args []string) error {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(auditLimit))
	if auditTaskID != "" {
		q.Set("task_id", auditTaskID)
	}

	var entries []models.PDREntry
	if err := apiGet("/audit?"+q.Encode(), &entries); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No decision records")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tOUTCOME\tTASK\tDETAILS")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Timestamp.Format(time.RFC3339), e.Action, e.Outcome, e.TaskID, truncate(e.Details, 60))
	}
	w.Flush()
	return nil
}

func runResources(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if !resourcesLocal {
		path := "/resources"
		if resourcesCount >= 0 {
			path += "?current=" + strconv.Itoa(resourcesCount)
		}
		var resp controlplane.ResourcesResponse
		if err := apiGet(path, &resp); err != nil {
			return err
		}
		printResourceStatus(out, resp.Status)
		fmt.Fprintln(out, resp.Message)
		return nil
	}

	sampler, err := newSampler(cfg.Resources, nil, logger)
	if err != nil {
		return err
	}

	st := sampler.GetResourceStatus(cmd.Context(), max(0, resourcesCount))
	printResourceStatus(out, st)
	_, msg := resource.AgentLimit(st)
	fmt.Fprintln(out, msg)

	info, err := sampler.GetSystemInfo(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nCPU: %d cores, %.1f%%\n", info.CPU.Count, info.CPU.Percent)
	fmt.Fprintf(out, "RAM: %.1f GB available of %.1f GB (%.1f%% used)\n", info.RAM.AvailableGB, info.RAM.TotalGB, info.RAM.Percent)
	t := info.Thresholds
	fmt.Fprintf(out, "Thresholds: cpu %.0f%%/%.0f%%, ram %.0f%%/%.0f%%, max %d agents\n",
		t.CPUWarning*100, t.CPUDanger*100, t.RAMWarning*100, t.RAMDanger*100, t.MaxAgents)
	return nil
}

func printResourceStatus(out io.Writer, st models.ResourceStatus) {
	fmt.Fprintf(out, "Zone:   %s\n", st.Zone)
	if st.Sampled {
		fmt.Fprintf(out, "CPU:    %.1f%%\n", st.CPUUtilization*100)
		fmt.Fprintf(out, "RAM:    %.1f%%\n", st.RAMUtilization*100)
	}
	fmt.Fprintf(out, "Agents: %d/%d\n", st.CurrentAgents, st.MaxAgents)
	fmt.Fprintf(out, "Reason: %s\n", st.Reason)
}

func runStatus(cmd *cobra.Command, args []string) error {
	health, err := CheckHealth()
	if health != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Daemon:  %s\nVersion: %s\nDB:      %s\nTime:    %s\n", apiAddr, health.Version, health.DB, health.Time)
	}
	return err
}
