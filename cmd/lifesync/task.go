package main

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"lifesync/internal/appstate"
	"lifesync/internal/core"
	"lifesync/internal/export"
	"lifesync/internal/normalize"
	"lifesync/internal/projection"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Track tasks, subtasks and time spent",
}

var (
	taskPriority string
	taskDue      string
	taskTags     string
	taskNote     string
	taskSubtask  string
	taskDate     string
	taskAll      bool
	taskTag      string
	taskDays     int
)

var taskAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a task",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTaskAdd,
}

var taskLogCmd = &cobra.Command{
	Use:   "log <task-id> <minutes>",
	Short: "Log time on a task or one of its subtasks",
	Args:  cobra.ExactArgs(2),
	RunE:  runTaskLog,
}

var taskSubtaskCmd = &cobra.Command{
	Use:   "subtask <task-id> <title>",
	Short: "Add a subtask",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runTaskSubtask,
}

var taskCheckCmd = &cobra.Command{
	Use:   "check <task-id> <subtask-id>",
	Short: "Mark a subtask done",
	Args:  cobra.ExactArgs(2),
	RunE:  runTaskCheck,
}

var taskStatusCmd = &cobra.Command{
	Use:   "status <task-id> <open|in_progress|done>",
	Short: "Change a task's status",
	Args:  cobra.ExactArgs(2),
	RunE:  runTaskStatus,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List open tasks with time spent",
	Args:  cobra.NoArgs,
	RunE:  runTaskList,
}

var taskWeeklyCmd = &cobra.Command{
	Use:   "weekly",
	Short: "Minutes logged per day over the last days",
	Args:  cobra.NoArgs,
	RunE:  runTaskWeekly,
}

var taskTagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "List tags in use",
	Args:  cobra.NoArgs,
	RunE:  runTaskTags,
}

func init() {
	taskAddCmd.Flags().StringVar(&taskPriority, "priority", string(core.PriorityMedium), "low, medium, high or urgent")
	taskAddCmd.Flags().StringVar(&taskDue, "due", "", "Due date YYYY-MM-DD")
	taskAddCmd.Flags().StringVar(&taskTags, "tags", "", "Comma-separated tags")

	taskLogCmd.Flags().StringVar(&taskNote, "note", "", "What was done")
	taskLogCmd.Flags().StringVar(&taskSubtask, "subtask", "", "Log on this subtask instead of the task")
	taskLogCmd.Flags().StringVar(&taskDate, "date", "", "Date YYYY-MM-DD (default today)")

	taskListCmd.Flags().BoolVar(&taskAll, "all", false, "Include done tasks")
	taskListCmd.Flags().StringVar(&taskTag, "tag", "", "Only tasks with this tag")

	taskWeeklyCmd.Flags().IntVar(&taskDays, "days", 7, "Number of days, today inclusive")

	taskCmd.AddCommand(taskAddCmd, taskLogCmd, taskSubtaskCmd, taskCheckCmd, taskStatusCmd,
		taskListCmd, taskWeeklyCmd, taskTagsCmd)
}

func splitTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	s, err := openApp(cmd, core.AppTasks)
	if err != nil {
		return err
	}
	t := core.Task{
		Title:    strings.Join(args, " "),
		Priority: core.Priority(taskPriority),
		Tags:     splitTags(taskTags),
	}
	if taskDue != "" {
		due, err := dayFlag(taskDue)
		if err != nil {
			return err
		}
		t.DueDate = due.String()
	}
	id, err := s.gw.CreateTask(cmd.Context(), t)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created task %s\n", id)
	return nil
}

func runTaskLog(cmd *cobra.Command, args []string) error {
	s, err := openApp(cmd, core.AppTasks)
	if err != nil {
		return err
	}
	minutes, err := strconv.Atoi(args[1])
	if err != nil || minutes <= 0 {
		return core.NewValidationError("minutes", "must be a positive whole number")
	}
	day, err := dayFlag(taskDate)
	if err != nil {
		return err
	}
	entry := core.TimeLog{Minutes: minutes, Note: taskNote, Date: day.String()}
	if err := s.gw.LogTime(cmd.Context(), args[0], taskSubtask, entry); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged %s on %s\n", formatMinutes(minutes), day)
	return nil
}

func runTaskSubtask(cmd *cobra.Command, args []string) error {
	s, err := openApp(cmd, core.AppTasks)
	if err != nil {
		return err
	}
	id, err := s.gw.AddSubtask(cmd.Context(), args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added subtask %s\n", id)
	return nil
}

func runTaskCheck(cmd *cobra.Command, args []string) error {
	s, err := openApp(cmd, core.AppTasks)
	if err != nil {
		return err
	}
	return s.gw.SetSubtaskDone(cmd.Context(), args[0], args[1], true)
}

func runTaskStatus(cmd *cobra.Command, args []string) error {
	s, err := openApp(cmd, core.AppTasks)
	if err != nil {
		return err
	}
	return s.gw.SetTaskStatus(cmd.Context(), args[0], core.TaskStatus(args[1]))
}

func loadTasks(cmd *cobra.Command, s *session) ([]core.Task, error) {
	docs, err := s.docs(cmd.Context(), core.CollectionTasks)
	if err != nil {
		return nil, err
	}
	return normalize.All(docs, s.gw.Normalizer().Task), nil
}

func runTaskList(cmd *cobra.Command, _ []string) error {
	s, err := openApp(cmd, core.AppTasks)
	if err != nil {
		return err
	}
	tasks, err := loadTasks(cmd, s)
	if err != nil {
		return err
	}
	view := projection.Filter(tasks, func(t core.Task) bool {
		if !taskAll && t.Status == core.TaskDone {
			return false
		}
		return taskTag == "" || slices.Contains(t.Tags, taskTag)
	})
	out := cmd.OutOrStdout()
	if err := printTable(out, export.Tasks("tasks", view, projection.TaskMinutes)); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nTotal time: %s\n", formatMinutes(projection.TotalMinutes(view)))
	for _, t := range projection.Overdue(view, today()) {
		fmt.Fprintf(out, "Overdue since %s: %s (%s)\n", t.DueDate, t.Title, t.ID)
	}
	for _, t := range view {
		if done, total := projection.SubtaskProgress(t); total > 0 {
			fmt.Fprintf(out, "%s: %d/%d subtasks done\n", t.Title, done, total)
		}
	}
	return nil
}

func runTaskWeekly(cmd *cobra.Command, _ []string) error {
	s, err := openApp(cmd, core.AppTasks)
	if err != nil {
		return err
	}
	if s.state, err = s.state.Show(appstate.ViewSummary); err != nil {
		return err
	}
	tasks, err := loadTasks(cmd, s)
	if err != nil {
		return err
	}
	entries := projection.TimeLoggedByDay(tasks)
	series := projection.DailySeries(entries,
		func(e projection.TimeEntry) string { return e.Date },
		func(e projection.TimeEntry) float64 { return float64(e.Minutes) },
		today(), taskDays)
	return printTable(cmd.OutOrStdout(), export.Series("minutes per day", series))
}

func runTaskTags(cmd *cobra.Command, _ []string) error {
	s, err := openApp(cmd, core.AppTasks)
	if err != nil {
		return err
	}
	tasks, err := loadTasks(cmd, s)
	if err != nil {
		return err
	}
	for _, tag := range projection.UniqueMulti(tasks, func(t core.Task) []string { return t.Tags }) {
		fmt.Fprintln(cmd.OutOrStdout(), tag)
	}
	return nil
}
