package main

import (
	"github.com/spf13/cobra"

	"github.com/steveyegge/planner/internal/ops"
)

func newAddCmd(a *app) *cobra.Command {
	var in ops.NewTask
	cmd := &cobra.Command{
		Use:     "add",
		Short:   "Create a task",
		GroupID: GroupTasks,
		Args:    cobra.NoArgs,
		Example: `  planner add --title "Ship v2" --plan Roadmap --bucket "To Do" --due 2026-11-02 --assignee "iman@contoso.com" --labels Label1,Label3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Plan = a.plan(in.Plan)
			in.Bucket = a.bucket(in.Bucket)
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			created, err := svc.CreateTask(cmd.Context(), in)
			if err != nil {
				return err
			}
			return outputJSON(a.out, created)
		},
	}
	cmd.Flags().StringVar(&in.Title, "title", "", "Task title")
	cmd.Flags().StringVar(&in.Plan, "plan", "", "Plan name or ID")
	cmd.Flags().StringVar(&in.Bucket, "bucket", "", "Bucket name or ID")
	cmd.Flags().StringVar(&in.Description, "desc", "", "Task description")
	cmd.Flags().StringVar(&in.Due, "due", "", "Due date (YYYY-MM-DD, +3d or e.g. \"next friday\")")
	cmd.Flags().StringVar(&in.Assignees, "assignee", "", "Comma-separated emails, names or user IDs")
	cmd.Flags().StringVar(&in.Labels, "labels", "", "Comma-separated labels (e.g. Label1,Label3)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newListTasksCmd(a *app) *cobra.Command {
	var f ops.TaskFilter
	cmd := &cobra.Command{
		Use:     "list-tasks",
		Short:   "List the tasks of a plan or bucket",
		GroupID: GroupTasks,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Plan = a.plan(f.Plan)
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			tasks, err := svc.ListTasks(cmd.Context(), f)
			if err != nil {
				return err
			}
			return outputJSON(a.out, tasks)
		},
	}
	cmd.Flags().StringVar(&f.Plan, "plan", "", "Plan name or ID")
	cmd.Flags().StringVar(&f.Bucket, "bucket", "", "Bucket name or ID")
	cmd.Flags().BoolVar(&f.Incomplete, "incomplete", false, "Show only incomplete tasks")
	return cmd
}

func newFindTaskCmd(a *app) *cobra.Command {
	var plan, bucket string
	cmd := &cobra.Command{
		Use:     "find-task <task>",
		Short:   "Resolve a task title or ID",
		GroupID: GroupTasks,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			if bucket != "" {
				t, err := svc.ResolveTaskInBucket(cmd.Context(), a.plan(plan), bucket, args[0])
				if err != nil {
					return err
				}
				return outputJSON(a.out, t)
			}
			t, err := svc.ResolveTask(cmd.Context(), a.plan(plan), args[0])
			if err != nil {
				return err
			}
			return outputJSON(a.out, t)
		},
	}
	cmd.Flags().StringVar(&plan, "plan", "", "Plan name or ID")
	cmd.Flags().StringVar(&bucket, "bucket", "", "Only look in this bucket")
	return cmd
}

func newGetTaskCmd(a *app) *cobra.Command {
	var plan string
	cmd := &cobra.Command{
		Use:     "get-task <task>",
		Short:   "Show a task with its description, labels and subtasks",
		GroupID: GroupTasks,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			view, err := svc.GetTask(cmd.Context(), a.plan(plan), args[0])
			if err != nil {
				return err
			}
			return outputJSON(a.out, view)
		},
	}
	cmd.Flags().StringVar(&plan, "plan", "", "Plan name or ID")
	return cmd
}

func newUpdateTaskCmd(a *app) *cobra.Command {
	var plan, title, desc, labels string
	cmd := &cobra.Command{
		Use:     "update-task <task>",
		Short:   "Change a task's title, description or labels",
		GroupID: GroupTasks,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var u ops.TaskUpdate
			if cmd.Flags().Changed("title") {
				u.Title = &title
			}
			if cmd.Flags().Changed("desc") {
				u.Description = &desc
			}
			if cmd.Flags().Changed("labels") {
				u.Labels = &labels
			}
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.UpdateTask(cmd.Context(), a.plan(plan), args[0], u)
			if err != nil {
				return err
			}
			return outputJSON(a.out, res)
		},
	}
	cmd.Flags().StringVar(&plan, "plan", "", "Plan name or ID")
	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVar(&desc, "desc", "", "New description")
	cmd.Flags().StringVar(&labels, "labels", "", `Replace labels (e.g. Label1,Label3; "" clears)`)
	return cmd
}

// taskCommand builds the commands that act on one task and print a result.
func taskCommand(a *app, use, short string, run func(cmd *cobra.Command, svc *ops.Service, plan, task string) (any, error)) *cobra.Command {
	var plan string
	cmd := &cobra.Command{
		Use:     use,
		Short:   short,
		GroupID: GroupTasks,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			res, err := run(cmd, svc, a.plan(plan), args[0])
			if err != nil {
				return err
			}
			return outputJSON(a.out, res)
		},
	}
	cmd.Flags().StringVar(&plan, "plan", "", "Plan name or ID")
	return cmd
}

func newCompleteTaskCmd(a *app) *cobra.Command {
	return taskCommand(a, "complete-task <task>", "Mark a task complete",
		func(cmd *cobra.Command, svc *ops.Service, plan, task string) (any, error) {
			return svc.CompleteTask(cmd.Context(), plan, task)
		})
}

func newDeleteTaskCmd(a *app) *cobra.Command {
	return taskCommand(a, "delete-task <task>", "Delete a task",
		func(cmd *cobra.Command, svc *ops.Service, plan, task string) (any, error) {
			return svc.DeleteTask(cmd.Context(), plan, task)
		})
}

func newMoveTaskCmd(a *app) *cobra.Command {
	var to string
	cmd := taskCommand(a, "move-task <task>", "Move a task to another bucket",
		func(cmd *cobra.Command, svc *ops.Service, plan, task string) (any, error) {
			return svc.MoveTask(cmd.Context(), plan, task, to)
		})
	cmd.Flags().StringVar(&to, "to-bucket", "", "Target bucket name or ID")
	_ = cmd.MarkFlagRequired("to-bucket")
	return cmd
}

func newSetLabelsCmd(a *app) *cobra.Command {
	var labels string
	cmd := taskCommand(a, "set-labels <task>", "Replace a task's labels",
		func(cmd *cobra.Command, svc *ops.Service, plan, task string) (any, error) {
			return svc.SetLabels(cmd.Context(), plan, task, labels)
		})
	cmd.Flags().StringVar(&labels, "labels", "", `Labels (e.g. Label1,Label3; "" clears)`)
	return cmd
}

func newAssignCmd(a *app) *cobra.Command {
	var assignee string
	cmd := taskCommand(a, "assign <task>", "Add assignees to a task",
		func(cmd *cobra.Command, svc *ops.Service, plan, task string) (any, error) {
			return svc.AssignTask(cmd.Context(), plan, task, assignee)
		})
	cmd.Flags().StringVar(&assignee, "assignee", "", "Comma-separated emails, names or user IDs")
	_ = cmd.MarkFlagRequired("assignee")
	return cmd
}
