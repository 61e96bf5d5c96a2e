// Package googletasks exposes the Google Tasks API as worker tools.
package googletasks

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentdesk/core"
	"github.com/hupe1980/agentdesk/tool"
	"github.com/hupe1980/agentdesk/toolkit"
	"google.golang.org/api/tasks/v1"
)

// WorkerName is the agents file entry bound to this toolkit.
const WorkerName = "google_tasks"

// TaskList is the model-facing view of a task list.
type TaskList struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Updated string `json:"updated,omitempty"`
}

// Task is the model-facing view of a task.
type Task struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Notes     string `json:"notes,omitempty"`
	Status    string `json:"status"`
	Due       string `json:"due,omitempty"`
	Completed string `json:"completed,omitempty"`
	Parent    string `json:"parent,omitempty"`
}

// Toolkit wraps a Tasks service.
type Toolkit struct {
	svc  *tasks.Service
	opts toolkit.Options
}

// New creates a toolkit using credentials from opts (or ADC).
func New(ctx context.Context, optFns ...func(o *toolkit.Options)) (*Toolkit, error) {
	opts := toolkit.DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	svc, err := tasks.NewService(ctx, opts.Client()...)
	if err != nil {
		return nil, fmt.Errorf("googletasks: create service: %w", err)
	}

	return &Toolkit{svc: svc, opts: opts}, nil
}

type taskListArgs struct {
	TaskListID string `json:"task_list_id" jsonschema:"required,description=Task list identifier"`
}

type titleArgs struct {
	Title string `json:"title" jsonschema:"required,description=Title of the task list"`
}

type updateTaskListArgs struct {
	TaskListID string `json:"task_list_id" jsonschema:"required,description=Task list identifier"`
	Title      string `json:"title" jsonschema:"required,description=New title"`
}

type listTasksArgs struct {
	TaskListID    string `json:"task_list_id" jsonschema:"required,description=Task list identifier"`
	ShowCompleted *bool  `json:"show_completed,omitempty" jsonschema:"description=Include completed tasks (default true)"`
	DueMin        string `json:"due_min,omitempty" jsonschema:"description=Lower bound for due date (RFC 3339 or YYYY-MM-DD)"`
	DueMax        string `json:"due_max,omitempty" jsonschema:"description=Upper bound for due date (RFC 3339 or YYYY-MM-DD)"`
}

type taskArgs struct {
	TaskListID string `json:"task_list_id" jsonschema:"required,description=Task list identifier"`
	TaskID     string `json:"task_id" jsonschema:"required,description=Task identifier"`
}

type insertTaskArgs struct {
	TaskListID string `json:"task_list_id" jsonschema:"required,description=Task list identifier"`
	Title      string `json:"title" jsonschema:"required,description=Task title"`
	Notes      string `json:"notes,omitempty" jsonschema:"description=Task notes"`
	Due        string `json:"due,omitempty" jsonschema:"description=Due date (RFC 3339 or YYYY-MM-DD)"`
	Parent     string `json:"parent,omitempty" jsonschema:"description=Parent task identifier for subtasks"`
}

type updateTaskArgs struct {
	TaskListID string `json:"task_list_id" jsonschema:"required,description=Task list identifier"`
	TaskID     string `json:"task_id" jsonschema:"required,description=Task identifier"`
	Title      string `json:"title,omitempty" jsonschema:"description=New title"`
	Notes      string `json:"notes,omitempty" jsonschema:"description=New notes"`
	Due        string `json:"due,omitempty" jsonschema:"description=New due date (RFC 3339 or YYYY-MM-DD)"`
	Status     string `json:"status,omitempty" jsonschema:"enum=needsAction,enum=completed"`
}

// Tools returns the task list and task operations.
func (tk *Toolkit) Tools() []tool.Tool {
	return []tool.Tool{
		tool.MustTypedTool("list_task_lists", "List all of the user's task lists.", tk.listTaskLists),
		tool.MustTypedTool("get_task_list", "Get a task list by id.", tk.getTaskList),
		tool.MustTypedTool("insert_task_list", "Create a new task list.", tk.insertTaskList),
		tool.MustTypedTool("update_task_list", "Rename a task list.", tk.updateTaskList),
		tool.MustTypedTool("delete_task_list", "Delete a task list and all of its tasks.", tk.deleteTaskList),
		tool.MustTypedTool("list_tasks", "List the tasks of a task list.", tk.listTasks),
		tool.MustTypedTool("get_task", "Get a task by id.", tk.getTask),
		tool.MustTypedTool("insert_task", "Create a task in a task list.", tk.insertTask),
		tool.MustTypedTool("update_task", "Update fields of a task. Omitted fields are left unchanged.", tk.updateTask),
		tool.MustTypedTool("complete_task", "Mark a task as completed.", tk.completeTask),
		tool.MustTypedTool("delete_task", "Delete a task.", tk.deleteTask),
		tool.MustTypedTool("clear_tasks", "Remove all completed tasks from a task list.", tk.clearTasks),
	}
}

func (tk *Toolkit) listTaskLists(tc *core.ToolContext, _ struct{}) (any, error) {
	out := []TaskList{}
	token := ""
	for page := 0; page < tk.opts.MaxPages; page++ {
		call := tk.svc.Tasklists.List().MaxResults(tk.opts.PageSize).Context(tc.Context())
		if token != "" {
			call = call.PageToken(token)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, toolkit.APIError("list_task_lists", err)
		}
		for _, tl := range resp.Items {
			out = append(out, toTaskList(tl))
		}
		if token = resp.NextPageToken; token == "" {
			break
		}
	}
	return out, nil
}

func (tk *Toolkit) getTaskList(tc *core.ToolContext, args taskListArgs) (any, error) {
	tl, err := tk.svc.Tasklists.Get(args.TaskListID).Context(tc.Context()).Do()
	if err != nil {
		return nil, toolkit.APIError("get_task_list", err)
	}
	return toTaskList(tl), nil
}

func (tk *Toolkit) insertTaskList(tc *core.ToolContext, args titleArgs) (any, error) {
	tl, err := tk.svc.Tasklists.Insert(&tasks.TaskList{Title: args.Title}).Context(tc.Context()).Do()
	if err != nil {
		return nil, toolkit.APIError("insert_task_list", err)
	}
	return toTaskList(tl), nil
}

func (tk *Toolkit) updateTaskList(tc *core.ToolContext, args updateTaskListArgs) (any, error) {
	tl, err := tk.svc.Tasklists.Patch(args.TaskListID, &tasks.TaskList{Title: args.Title}).Context(tc.Context()).Do()
	if err != nil {
		return nil, toolkit.APIError("update_task_list", err)
	}
	return toTaskList(tl), nil
}

func (tk *Toolkit) deleteTaskList(tc *core.ToolContext, args taskListArgs) (any, error) {
	if err := tk.svc.Tasklists.Delete(args.TaskListID).Context(tc.Context()).Do(); err != nil {
		return nil, toolkit.APIError("delete_task_list", err)
	}
	return map[string]any{"deleted": args.TaskListID}, nil
}

func (tk *Toolkit) listTasks(tc *core.ToolContext, args listTasksArgs) (any, error) {
	dueMin, err := toolkit.NormalizeTime(args.DueMin)
	if err != nil {
		return nil, err
	}
	dueMax, err := toolkit.NormalizeTime(args.DueMax)
	if err != nil {
		return nil, err
	}

	showCompleted := true
	if args.ShowCompleted != nil {
		showCompleted = *args.ShowCompleted
	}

	out := []Task{}
	token := ""
	for page := 0; page < tk.opts.MaxPages; page++ {
		call := tk.svc.Tasks.List(args.TaskListID).
			ShowCompleted(showCompleted).
			ShowHidden(showCompleted).
			MaxResults(tk.opts.PageSize).
			Context(tc.Context())
		if dueMin != "" {
			call = call.DueMin(dueMin)
		}
		if dueMax != "" {
			call = call.DueMax(dueMax)
		}
		if token != "" {
			call = call.PageToken(token)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, toolkit.APIError("list_tasks", err)
		}
		for _, t := range resp.Items {
			out = append(out, toTask(t))
		}
		if token = resp.NextPageToken; token == "" {
			break
		}
	}
	return out, nil
}

func (tk *Toolkit) getTask(tc *core.ToolContext, args taskArgs) (any, error) {
	t, err := tk.svc.Tasks.Get(args.TaskListID, args.TaskID).Context(tc.Context()).Do()
	if err != nil {
		return nil, toolkit.APIError("get_task", err)
	}
	return toTask(t), nil
}

func (tk *Toolkit) insertTask(tc *core.ToolContext, args insertTaskArgs) (any, error) {
	due, err := toolkit.NormalizeTime(args.Due)
	if err != nil {
		return nil, err
	}

	call := tk.svc.Tasks.Insert(args.TaskListID, &tasks.Task{
		Title: args.Title,
		Notes: args.Notes,
		Due:   due,
	}).Context(tc.Context())
	if args.Parent != "" {
		call = call.Parent(args.Parent)
	}

	t, err := call.Do()
	if err != nil {
		return nil, toolkit.APIError("insert_task", err)
	}
	return toTask(t), nil
}

func (tk *Toolkit) updateTask(tc *core.ToolContext, args updateTaskArgs) (any, error) {
	due, err := toolkit.NormalizeTime(args.Due)
	if err != nil {
		return nil, err
	}

	patch := &tasks.Task{
		Title:  args.Title,
		Notes:  args.Notes,
		Due:    due,
		Status: args.Status,
	}
	t, err := tk.svc.Tasks.Patch(args.TaskListID, args.TaskID, patch).Context(tc.Context()).Do()
	if err != nil {
		return nil, toolkit.APIError("update_task", err)
	}
	return toTask(t), nil
}

func (tk *Toolkit) completeTask(tc *core.ToolContext, args taskArgs) (any, error) {
	t, err := tk.svc.Tasks.Patch(args.TaskListID, args.TaskID, &tasks.Task{Status: "completed"}).Context(tc.Context()).Do()
	if err != nil {
		return nil, toolkit.APIError("complete_task", err)
	}
	return toTask(t), nil
}

func (tk *Toolkit) deleteTask(tc *core.ToolContext, args taskArgs) (any, error) {
	if err := tk.svc.Tasks.Delete(args.TaskListID, args.TaskID).Context(tc.Context()).Do(); err != nil {
		return nil, toolkit.APIError("delete_task", err)
	}
	return map[string]any{"deleted": args.TaskID}, nil
}

func (tk *Toolkit) clearTasks(tc *core.ToolContext, args taskListArgs) (any, error) {
	if err := tk.svc.Tasks.Clear(args.TaskListID).Context(tc.Context()).Do(); err != nil {
		return nil, toolkit.APIError("clear_tasks", err)
	}
	return map[string]any{"cleared": args.TaskListID}, nil
}

func toTaskList(tl *tasks.TaskList) TaskList {
	return TaskList{ID: tl.Id, Title: tl.Title, Updated: tl.Updated}
}

func toTask(t *tasks.Task) Task {
	out := Task{
		ID:     t.Id,
		Title:  t.Title,
		Notes:  t.Notes,
		Status: t.Status,
		Due:    t.Due,
		Parent: t.Parent,
	}
	if t.Completed != nil {
		out.Completed = *t.Completed
	}
	return out
}
