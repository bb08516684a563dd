package gateway

import (
	"context"
	"fmt"

	"lifesync/internal/core"
	"lifesync/internal/log"
	"lifesync/internal/projection"
	"lifesync/internal/store"
)

func (g *Gateway) loadTask(ctx context.Context, id string) (core.Task, error) {
	doc, err := g.store.Get(ctx, g.path(core.CollectionTasks), id)
	if err != nil {
		return core.Task{}, err
	}
	return g.norm.Task(doc), nil
}

// LogTime appends a time log to a task, or to one of its subtasks when
// subtaskID is set, and keeps timeSpent equal to the logged total.
func (g *Gateway) LogTime(ctx context.Context, taskID, subtaskID string, entry core.TimeLog) error {
	if err := core.ValidateTimeLog(entry); err != nil {
		return g.fail(ctx, log.OpUpdate, core.CollectionTasks, taskID, err)
	}
	if entry.Date == "" {
		return g.fail(ctx, log.OpUpdate, core.CollectionTasks, taskID, core.NewValidationError("date", "required"))
	}
	t, err := g.loadTask(ctx, taskID)
	if err != nil {
		return g.fail(ctx, log.OpUpdate, core.CollectionTasks, taskID, err)
	}
	if subtaskID == "" {
		t.TimeLogs = append(t.TimeLogs, entry)
	} else {
		i := subtaskIndex(t, subtaskID)
		if i < 0 {
			return g.fail(ctx, log.OpUpdate, core.CollectionTasks, taskID,
				fmt.Errorf("subtask %s: %w", subtaskID, core.ErrNotFound))
		}
		t.Subtasks[i].TimeLogs = append(t.Subtasks[i].TimeLogs, entry)
	}
	return g.update(ctx, core.CollectionTasks, taskID, map[string]any{
		"timeLogs":  encodeTimeLogs(t.TimeLogs),
		"subtasks":  encodeSubtasks(t.Subtasks),
		"timeSpent": projection.TaskMinutes(t),
	})
}

// AddSubtask appends an open subtask and returns its id.
func (g *Gateway) AddSubtask(ctx context.Context, taskID, title string) (string, error) {
	if title == "" {
		return "", g.fail(ctx, log.OpUpdate, core.CollectionTasks, taskID, core.NewValidationError("title", "required"))
	}
	t, err := g.loadTask(ctx, taskID)
	if err != nil {
		return "", g.fail(ctx, log.OpUpdate, core.CollectionTasks, taskID, err)
	}
	sub := core.Subtask{ID: store.NewID(), Title: title, TimeLogs: []core.TimeLog{}}
	t.Subtasks = append(t.Subtasks, sub)
	if err := g.update(ctx, core.CollectionTasks, taskID, map[string]any{"subtasks": encodeSubtasks(t.Subtasks)}); err != nil {
		return "", err
	}
	return sub.ID, nil
}

func (g *Gateway) SetSubtaskDone(ctx context.Context, taskID, subtaskID string, done bool) error {
	t, err := g.loadTask(ctx, taskID)
	if err != nil {
		return g.fail(ctx, log.OpUpdate, core.CollectionTasks, taskID, err)
	}
	i := subtaskIndex(t, subtaskID)
	if i < 0 {
		return g.fail(ctx, log.OpUpdate, core.CollectionTasks, taskID,
			fmt.Errorf("subtask %s: %w", subtaskID, core.ErrNotFound))
	}
	t.Subtasks[i].Done = done
	return g.update(ctx, core.CollectionTasks, taskID, map[string]any{"subtasks": encodeSubtasks(t.Subtasks)})
}

func (g *Gateway) SetTaskStatus(ctx context.Context, taskID string, status core.TaskStatus) error {
	if !status.Valid() {
		return g.fail(ctx, log.OpUpdate, core.CollectionTasks, taskID,
			core.NewValidationError("status", "unknown status "+string(status)))
	}
	return g.update(ctx, core.CollectionTasks, taskID, map[string]any{"status": string(status)})
}

func subtaskIndex(t core.Task, id string) int {
	for i, s := range t.Subtasks {
		if s.ID == id {
			return i
		}
	}
	return -1
}
