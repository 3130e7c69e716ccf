// Package cli wires the cobra command tree named in §6: db, ftp, nfs, smb,
// local, review, report. Connection flags and rule-file loading live here;
// the subcommands themselves are thin adapters over internal/coordinator,
// internal/driver and internal/config.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/smartshare/hunter/internal/logging"
	"github.com/spf13/cobra"
)

// Exit codes per §6: 0 clean, 2 misuse/bad args, 3 unrecoverable database
// error, 4 all drivers failed to start, 130 on cancellation signal.
const (
	ExitOK               = 0
	ExitMisuse           = 2
	ExitDatabaseError    = 3
	ExitAllDriversFailed = 4
	ExitCancelled        = 130
)

// exitError carries the exit code a subcommand wants main() to return,
// distinct from cobra's own usage-error exit handling.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func failWith(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

var (
	workspace string
	ruleFile  string
	dbPath    string
	dbDSN     string
	engine    string
	verbose   bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "hunter",
		Short:         "sensitive-file hunter collection engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				logging.Base.SetLevel(logrus.DebugLevel)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace name")
	root.PersistentFlags().StringVar(&ruleFile, "rules", "rules.yaml", "path to the rule configuration file")
	root.PersistentFlags().StringVar(&dbPath, "db", "hunter.db", "embedded store path (bbolt engine)")
	root.PersistentFlags().StringVar(&dbDSN, "dsn", "", "server store DSN (postgres engine); overrides --db when set")
	root.PersistentFlags().StringVar(&engine, "engine", "bbolt", "store engine: bbolt or postgres")
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "debug logging")

	root.AddCommand(newDBCmd())
	root.AddCommand(newCollectCmd(protocolFTP))
	root.AddCommand(newCollectCmd(protocolNFS))
	root.AddCommand(newCollectCmd(protocolSMB))
	root.AddCommand(newCollectCmd(protocolLocal))
	root.AddCommand(newReviewCmd())
	root.AddCommand(newReportCmd())
	return root
}

// Execute runs the CLI and returns the process exit code, honoring the
// signal-driven cancellation path (130) alongside the coordinator's own
// exit-code classification.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	root.SetContext(ctx)

	err := root.Execute()
	if err == nil {
		return ExitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		fmt.Fprintln(os.Stderr, "hunter:", ee.err)
		return ee.code
	}
	if ctx.Err() != nil {
		return ExitCancelled
	}
	fmt.Fprintln(os.Stderr, "hunter:", err)
	return ExitMisuse
}
