package main

import (
	"github.com/spf13/cobra"

	"github.com/steveyegge/planner/internal/ops"
)

func newSubtaskCmd(a *app) *cobra.Command {
	subtaskCmd := &cobra.Command{
		Use:     "subtask",
		Short:   "Manage a task's checklist",
		GroupID: GroupTasks,
	}

	var title string
	add := taskCommand(a, "add <task>", "Append a checklist item",
		func(cmd *cobra.Command, svc *ops.Service, plan, task string) (any, error) {
			return svc.AddSubtask(cmd.Context(), plan, task, title)
		})
	add.Flags().StringVar(&title, "title", "", "Subtask title")
	_ = add.MarkFlagRequired("title")

	list := taskCommand(a, "list <task>", "List checklist items in board order",
		func(cmd *cobra.Command, svc *ops.Service, plan, task string) (any, error) {
			return svc.ListSubtasks(cmd.Context(), plan, task)
		})

	var done string
	complete := taskCommand(a, "complete <task>", "Check a checklist item by title",
		func(cmd *cobra.Command, svc *ops.Service, plan, task string) (any, error) {
			return svc.CompleteSubtask(cmd.Context(), plan, task, done)
		})
	complete.Flags().StringVar(&done, "title", "", "Subtask title (case-insensitive)")
	_ = complete.MarkFlagRequired("title")

	for _, c := range []*cobra.Command{add, list, complete} {
		c.GroupID = ""
		subtaskCmd.AddCommand(c)
	}
	return subtaskCmd
}

func newCommentsCmd(a *app) *cobra.Command {
	commentsCmd := &cobra.Command{
		Use:     "comments",
		Short:   "Read and add task comments",
		GroupID: GroupTasks,
	}

	list := taskCommand(a, "list <task>", "List a task's comments",
		func(cmd *cobra.Command, svc *ops.Service, plan, task string) (any, error) {
			return svc.ListComments(cmd.Context(), plan, task)
		})

	var text string
	add := taskCommand(a, "add <task>", "Comment on a task",
		func(cmd *cobra.Command, svc *ops.Service, plan, task string) (any, error) {
			return svc.AddComment(cmd.Context(), plan, task, text)
		})
	add.Flags().StringVar(&text, "text", "", "Comment text")
	_ = add.MarkFlagRequired("text")

	for _, c := range []*cobra.Command{list, add} {
		c.GroupID = ""
		commentsCmd.AddCommand(c)
	}
	return commentsCmd
}

func newUserCmd(a *app) *cobra.Command {
	userCmd := &cobra.Command{
		Use:     "user",
		Short:   "Search and resolve directory users",
		GroupID: GroupPeople,
	}
	userCmd.AddCommand(
		&cobra.Command{
			Use:   "search <prefix>",
			Short: "Find users whose display name starts with prefix",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				svc, err := a.service(cmd.Context())
				if err != nil {
					return err
				}
				users, err := svc.SearchUsers(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return outputJSON(a.out, users)
			},
		},
		&cobra.Command{
			Use:   "resolve <identifiers>",
			Short: "Resolve comma-separated emails, names or IDs to user IDs",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				svc, err := a.service(cmd.Context())
				if err != nil {
					return err
				}
				ids, err := svc.ResolveUsers(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return outputJSON(a.out, map[string]any{"userIds": ids})
			},
		},
	)
	return userCmd
}
