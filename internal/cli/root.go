package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	storage "github.com/sispop-dev/storage"
)

// exitError carries a process exit code other than 1.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

type runFunc func(cmd *cobra.Command, o *Options) error

func newRootCommand(run runFunc) *cobra.Command {
	o := defaultOptions()
	cmd := &cobra.Command{
		Use:   "sispop-storage <ip> <port>",
		Short: "Sispop storage server",
		Long: `sispop-storage keeps the X25519 channel keys of a Sispop service node
and tests the reachability of the other service nodes, reporting those that
stay unreachable to the local sispopd.

Log Levels:
  ` + strings.Join(storage.LogLevelNames(), "\n  "),
		Args:          positionalArgs(o),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.complete(cmd); err != nil {
				return err
			}
			return run(cmd, o)
		},
	}
	bindFlags(cmd, o)
	return cmd
}

// Parse parses args without starting the server.
func Parse(args []string) (*Options, error) {
	var parsed *Options
	cmd := newRootCommand(func(_ *cobra.Command, o *Options) error {
		parsed = o
		return nil
	})
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	if err := cmd.Execute(); err != nil {
		return nil, err
	}
	if parsed == nil {
		// --help
		return defaultOptions(), nil
	}
	return parsed, nil
}

// Execute runs the server with args and returns the process exit code.
func Execute(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCommand(run)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintln(stderr, "Error:", err)
	if !errors.Is(err, errStartup) {
		fmt.Fprintln(stderr, cmd.UsageString())
	}
	return 1
}
