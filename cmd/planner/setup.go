package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/steveyegge/planner/internal/auth"
	"github.com/steveyegge/planner/internal/config"
	"github.com/steveyegge/planner/internal/ops"
	"github.com/steveyegge/planner/internal/ui"
)

// statusResult is the reply of commands that only report success.
type statusResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func newInitAuthCmd(a *app) *cobra.Command {
	var tenant, client string
	cmd := &cobra.Command{
		Use:     "init-auth",
		Short:   "Save tenant and client IDs, then sign in with a device code",
		GroupID: GroupSetup,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if tenant != "" || client != "" {
				if _, err := config.Update(func(c *config.Config) {
					if tenant != "" {
						c.TenantID = tenant
					}
					if client != "" {
						c.ClientID = client
					}
				}); err != nil {
					return err
				}
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				a.cfg = cfg
			}
			return login(cmd, a)
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "Azure AD tenant ID (saved to config)")
	cmd.Flags().StringVar(&client, "client", "", "App registration client ID (saved to config)")
	return cmd
}

func newLoginCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "login",
		Short:   "Sign in with a device code",
		GroupID: GroupSetup,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return login(cmd, a)
		},
	}
}

func login(cmd *cobra.Command, a *app) error {
	authn, err := auth.New(a.cfg)
	if err != nil {
		return err
	}
	if _, err := authn.Login(cmd.Context(), a.errOut); err != nil {
		return err
	}
	ui.NewHinter(a.errOut).Success("Authentication successful")
	return outputJSON(a.out, statusResult{OK: true, Message: "Authentication successful"})
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "logout",
		Short:   "Forget the cached sign-in",
		GroupID: GroupSetup,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			authn, err := auth.New(a.cfg)
			if err != nil {
				return err
			}
			if err := authn.Logout(); err != nil {
				return err
			}
			return outputJSON(a.out, statusResult{OK: true})
		},
	}
}

func newSetDefaultsCmd(a *app) *cobra.Command {
	var plan, bucket string
	cmd := &cobra.Command{
		Use:     "set-defaults",
		Short:   "Save the plan and bucket used when --plan or --bucket is omitted",
		GroupID: GroupSetup,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(plan) == "" && strings.TrimSpace(bucket) == "" {
				return &ops.InputError{
					Code:    ops.CodeInvalidInput,
					Message: "Nothing to save: pass --plan and/or --bucket",
				}
			}
			saved, err := config.Update(func(c *config.Config) {
				if plan != "" {
					c.DefaultPlan = plan
				}
				if bucket != "" {
					c.DefaultBucket = bucket
				}
			})
			if err != nil {
				return err
			}
			return outputJSON(a.out, map[string]any{
				"ok":            true,
				"message":       "Defaults saved",
				"defaultPlan":   saved.DefaultPlan,
				"defaultBucket": saved.DefaultBucket,
			})
		},
	}
	cmd.Flags().StringVar(&plan, "plan", "", "Default plan name or ID")
	cmd.Flags().StringVar(&bucket, "bucket", "", "Default bucket name or ID")
	return cmd
}

func newConfigCmd(a *app) *cobra.Command {
	configCmd := &cobra.Command{
		Use:     "config",
		Short:   "Inspect configuration",
		GroupID: GroupSetup,
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return outputJSON(a.out, map[string]any{
				"path":   config.Path(),
				"config": a.cfg,
			})
		},
	})
	return configCmd
}
