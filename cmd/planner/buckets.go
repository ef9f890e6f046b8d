package main

import (
	"github.com/spf13/cobra"
)

func newListPlansCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list-plans",
		Short:   "List your plans",
		GroupID: GroupBuckets,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			plans, err := svc.ListPlans(cmd.Context())
			if err != nil {
				return err
			}
			return outputJSON(a.out, plans)
		},
	}
}

func newListBucketsCmd(a *app) *cobra.Command {
	var plan string
	cmd := &cobra.Command{
		Use:     "list-buckets",
		Short:   "List the buckets of a plan",
		GroupID: GroupBuckets,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			buckets, err := svc.ListBuckets(cmd.Context(), a.plan(plan))
			if err != nil {
				return err
			}
			return outputJSON(a.out, buckets)
		},
	}
	cmd.Flags().StringVar(&plan, "plan", "", "Plan name or ID")
	return cmd
}

func newBucketCmd(a *app) *cobra.Command {
	bucketCmd := &cobra.Command{
		Use:     "bucket",
		Short:   "Create, rename, delete or empty buckets",
		GroupID: GroupBuckets,
	}
	bucketCmd.AddCommand(
		newBucketCreateCmd(a, "create"),
		newBucketRenameCmd(a, "rename"),
		newBucketDeleteCmd(a, "delete"),
		newBucketMoveTasksCmd(a, "move-tasks"),
		newBucketCompleteTasksCmd(a, "complete-tasks"),
	)
	return bucketCmd
}

// addBucketAliases registers the flat command names older scripts use.
func addBucketAliases(rootCmd *cobra.Command, a *app) {
	for _, cmd := range []*cobra.Command{
		newBucketCreateCmd(a, "create-bucket"),
		newBucketRenameCmd(a, "rename-bucket"),
		newBucketDeleteCmd(a, "delete-bucket"),
		newBucketMoveTasksCmd(a, "move-bucket-tasks"),
	} {
		cmd.Hidden = true
		rootCmd.AddCommand(cmd)
	}
}

func newBucketCreateCmd(a *app, use string) *cobra.Command {
	var plan, name string
	cmd := &cobra.Command{
		Use:   use,
		Short: "Create a bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			b, err := svc.CreateBucket(cmd.Context(), a.plan(plan), name)
			if err != nil {
				return err
			}
			return outputJSON(a.out, b)
		},
	}
	cmd.Flags().StringVar(&plan, "plan", "", "Plan name or ID")
	cmd.Flags().StringVar(&name, "name", "", "Bucket name")
	return cmd
}

func newBucketRenameCmd(a *app, use string) *cobra.Command {
	var plan, bucket, name string
	cmd := &cobra.Command{
		Use:   use,
		Short: "Rename a bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.RenameBucket(cmd.Context(), a.plan(plan), bucket, name)
			if err != nil {
				return err
			}
			return outputJSON(a.out, res)
		},
	}
	cmd.Flags().StringVar(&plan, "plan", "", "Plan name or ID")
	cmd.Flags().StringVar(&bucket, "bucket", "", "Bucket name or ID")
	cmd.Flags().StringVar(&name, "name", "", "New bucket name")
	return cmd
}

func newBucketDeleteCmd(a *app, use string) *cobra.Command {
	var plan, bucket string
	cmd := &cobra.Command{
		Use:   use,
		Short: "Delete a bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			id, err := svc.DeleteBucket(cmd.Context(), a.plan(plan), bucket)
			if err != nil {
				return err
			}
			return outputJSON(a.out, map[string]any{"ok": true, "bucketId": id})
		},
	}
	cmd.Flags().StringVar(&plan, "plan", "", "Plan name or ID")
	cmd.Flags().StringVar(&bucket, "bucket", "", "Bucket name or ID")
	return cmd
}

func newBucketMoveTasksCmd(a *app, use string) *cobra.Command {
	var plan, from, to string
	cmd := &cobra.Command{
		Use:   use,
		Short: "Move every task of one bucket into another",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			out, err := svc.MoveBucketTasks(cmd.Context(), a.plan(plan), from, to)
			if err != nil {
				return err
			}
			return outputJSON(a.out, out)
		},
	}
	cmd.Flags().StringVar(&plan, "plan", "", "Plan name or ID")
	cmd.Flags().StringVar(&from, "from", "", "Source bucket name or ID")
	cmd.Flags().StringVar(&to, "to", "", "Target bucket name or ID")
	return cmd
}

func newBucketCompleteTasksCmd(a *app, use string) *cobra.Command {
	var plan, bucket string
	cmd := &cobra.Command{
		Use:   use,
		Short: "Mark every open task of a bucket complete",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			out, err := svc.CompleteBucketTasks(cmd.Context(), a.plan(plan), a.bucket(bucket))
			if err != nil {
				return err
			}
			return outputJSON(a.out, out)
		},
	}
	cmd.Flags().StringVar(&plan, "plan", "", "Plan name or ID")
	cmd.Flags().StringVar(&bucket, "bucket", "", "Bucket name or ID")
	return cmd
}
