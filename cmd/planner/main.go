package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/steveyegge/planner"
	"github.com/steveyegge/planner/internal/config"
	"github.com/steveyegge/planner/internal/debug"
	"github.com/steveyegge/planner/internal/ops"
	"github.com/steveyegge/planner/internal/telemetry"
)

var (
	// Version is the current version of planner (overridden by ldflags at build time)
	Version = "0.1.0"
	// Build can be set via ldflags at compile time
	Build = "dev"
)

// Command groups for help output
const (
	GroupTasks   = "tasks"
	GroupBuckets = "buckets"
	GroupPeople  = "people"
	GroupSetup   = "setup"
)

// app carries the state of one CLI invocation.
type app struct {
	out    io.Writer
	errOut io.Writer

	verboseFlag bool
	quietFlag   bool

	cfg     *config.Config
	planner *planner.Planner
}

// service opens the Planner connection on first use.
func (a *app) service(ctx context.Context) (*ops.Service, error) {
	if a.planner == nil {
		p, err := planner.Open(ctx, a.cfg)
		if err != nil {
			return nil, err
		}
		a.planner = p
	}
	return a.planner.Service(), nil
}

// plan returns the --plan value or the configured default.
func (a *app) plan(flag string) string {
	if strings.TrimSpace(flag) != "" || a.cfg == nil {
		return flag
	}
	return a.cfg.DefaultPlan
}

// bucket returns the --bucket value or the configured default.
func (a *app) bucket(flag string) string {
	if strings.TrimSpace(flag) != "" || a.cfg == nil {
		return flag
	}
	return a.cfg.DefaultBucket
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "planner",
		Short:         "planner - Microsoft Planner from the command line",
		Long:          `Create and manage Microsoft Planner tasks by name. Plans, buckets, tasks and people are looked up from what you type; every result is printed as JSON.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug.SetVerbose(a.verboseFlag)
			debug.SetQuiet(a.quietFlag)

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg

			if err := telemetry.Init(cmd.Context(), "planner", Version); err != nil {
				debug.Logf("telemetry init failed: %v\n", err)
			}
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}
	rootCmd.SetOut(a.out)
	rootCmd.SetErr(a.errOut)

	rootCmd.PersistentFlags().BoolVarP(&a.verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&a.quietFlag, "quiet", "q", false, "Suppress non-essential output (errors only)")

	rootCmd.AddGroup(
		&cobra.Group{ID: GroupTasks, Title: "Working With Tasks:"},
		&cobra.Group{ID: GroupBuckets, Title: "Plans & Buckets:"},
		&cobra.Group{ID: GroupPeople, Title: "People:"},
		&cobra.Group{ID: GroupSetup, Title: "Setup & Configuration:"},
	)

	rootCmd.AddCommand(
		newInitAuthCmd(a), newLoginCmd(a), newLogoutCmd(a), newSetDefaultsCmd(a), newConfigCmd(a), newVersionCmd(a),
		newListPlansCmd(a), newListBucketsCmd(a), newBucketCmd(a),
		newAddCmd(a), newListTasksCmd(a), newFindTaskCmd(a), newGetTaskCmd(a), newUpdateTaskCmd(a),
		newCompleteTaskCmd(a), newMoveTaskCmd(a), newDeleteTaskCmd(a), newSetLabelsCmd(a), newAssignCmd(a),
		newSubtaskCmd(a), newCommentsCmd(a),
		newUserCmd(a),
	)
	addBucketAliases(rootCmd, a)
	return rootCmd
}

// run executes one invocation and returns the process exit code.
func run(ctx context.Context, args []string, out, errOut io.Writer) int {
	a := &app{out: out, errOut: errOut}
	rootCmd := newRootCmd(a)
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(ctx)
	telemetry.Shutdown(context.Background())
	if err != nil {
		return reportError(out, errOut, err)
	}
	return 0
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Print version information",
		GroupID: GroupSetup,
		RunE: func(cmd *cobra.Command, args []string) error {
			return outputJSON(a.out, map[string]string{"version": Version, "build": Build})
		},
	}
}
