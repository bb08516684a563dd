package projection

import "lifesync/internal/core"

// TimeEntry is one flattened time log.
type TimeEntry struct {
	TaskID    string
	SubtaskID string
	Date      string
	Minutes   int
}

// TaskMinutes is the logged time of a task including every subtask's logs.
func TaskMinutes(t core.Task) int {
	total := 0
	for _, l := range t.TimeLogs {
		total += l.Minutes
	}
	for _, s := range t.Subtasks {
		for _, l := range s.TimeLogs {
			total += l.Minutes
		}
	}
	return total
}

// TotalMinutes sums TaskMinutes over tasks.
func TotalMinutes(tasks []core.Task) int {
	total := 0
	for _, t := range tasks {
		total += TaskMinutes(t)
	}
	return total
}

// TimeLoggedByDay flattens task and subtask logs into entries, task logs
// first, in stored order.
func TimeLoggedByDay(tasks []core.Task) []TimeEntry {
	var out []TimeEntry
	for _, t := range tasks {
		for _, l := range t.TimeLogs {
			out = append(out, TimeEntry{TaskID: t.ID, Date: l.Date, Minutes: l.Minutes})
		}
		for _, s := range t.Subtasks {
			for _, l := range s.TimeLogs {
				out = append(out, TimeEntry{TaskID: t.ID, SubtaskID: s.ID, Date: l.Date, Minutes: l.Minutes})
			}
		}
	}
	return out
}

// WeeklyMinutes is the seven-day logged-minutes series for tasks.
func WeeklyMinutes(tasks []core.Task, today core.Day) []core.DayPoint {
	return WeeklySeries(TimeLoggedByDay(tasks),
		func(e TimeEntry) string { return e.Date },
		func(e TimeEntry) float64 { return float64(e.Minutes) },
		today)
}

// SubtaskProgress returns done and total subtask counts.
func SubtaskProgress(t core.Task) (done, total int) {
	for _, s := range t.Subtasks {
		if s.Done {
			done++
		}
	}
	return done, len(t.Subtasks)
}

// Overdue keeps unfinished tasks whose due date is before today.
func Overdue(tasks []core.Task, today core.Day) []core.Task {
	return Filter(tasks, func(t core.Task) bool {
		if t.Status == core.TaskDone {
			return false
		}
		d, err := core.ParseDay(t.DueDate)
		return err == nil && d.Before(today)
	})
}
