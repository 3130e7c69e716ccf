package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// review and report are explicitly out of scope (§1 Non-goals: interactive
// review UI, report rendering); these stubs exist only so the command tree
// named in §6 is complete and exits 0 uniformly rather than "unknown
// command".

func newReviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "review -w <workspace>",
		Short: "hand off to the external reviewer (not implemented here)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("review: not implemented by this engine; use the external reviewer tool")
			return nil
		},
	}
}

func newReportCmd() *cobra.Command {
	var csv, xlsx bool
	var out string
	cmd := &cobra.Command{
		Use:   "report -w <workspace> [--csv | --xlsx] -o <path>",
		Short: "hand off to the external reporter (not implemented here)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("report: not implemented by this engine; use the external reporter tool")
			return nil
		},
	}
	cmd.Flags().BoolVar(&csv, "csv", false, "csv format (unused, external reporter only)")
	cmd.Flags().BoolVar(&xlsx, "xlsx", false, "xlsx format (unused, external reporter only)")
	cmd.Flags().StringVarP(&out, "output", "o", "", "output path (unused, external reporter only)")
	return cmd
}
