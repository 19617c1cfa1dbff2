// Package cli implements the taskpad command-line interface.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/taskpad/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	jsonMode  bool
}

// NewRootCmd creates the top-level "taskpad" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "taskpad",
		Short: "A durable local task list",
		Long: "taskpad keeps an ordered list of tasks in a JSON file, saving changes in the\n" +
			"background with rotating backups and recovering from them on corruption.",
		// Do not print usage on errors returned by subcommands.
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "data directory (default: platform data dir)")
	root.PersistentFlags().BoolVar(&flags.jsonMode, "json", false, "output in JSON format")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(flags),
		newAddCmd(flags),
		newListCmd(flags),
		newShowCmd(flags),
		newUpdateCmd(flags),
		newDoneCmd(flags, true),
		newDoneCmd(flags, false),
		newDeleteCmd(flags),
		newMoveCmd(flags),
		newClearCmd(flags),
		newStatsCmd(flags),
		newExportCmd(flags),
		newImportCmd(flags),
		newBackupCmd(flags),
		newServeCmd(flags),
	)
	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	os.Exit(Run(os.Args[1:], os.Stdout, os.Stderr))
}

// Run executes the command line in args and returns the exit code.
func Run(args []string, stdout, stderr io.Writer) int {
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(stderr, "taskpad:", err)
		return exitCode(err)
	}
	return exitSuccess
}

// usageError marks a bad command line.
type usageError struct{ error }

func (e usageError) Unwrap() error { return e.error }

// systemError marks a failure of the environment rather than the input:
// an unusable data directory, a failed write.
type systemError struct{ error }

func (e systemError) Unwrap() error { return e.error }

func sysErr(err error) error {
	if err == nil {
		return nil
	}
	return systemError{err}
}

func exitCode(err error) int {
	var se systemError
	if errors.As(err, &se) || errors.Is(err, types.ErrPersistence) || errors.Is(err, types.ErrRecovery) {
		return exitSysError
	}
	return exitUserError
}

// args wraps a cobra argument validator so its failures count as usage
// errors.
func args(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, a []string) error {
		if err := fn(cmd, a); err != nil {
			return usageError{err}
		}
		return nil
	}
}
