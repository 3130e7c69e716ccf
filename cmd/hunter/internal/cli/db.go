package cli

import (
	"fmt"

	"github.com/smartshare/hunter/internal/store"
	"github.com/spf13/cobra"
)

func newDBCmd() *cobra.Command {
	var initSchema, drop bool
	var addWorkspace string

	cmd := &cobra.Command{
		Use:   "db",
		Short: "administer the dedup store (§6 db --init|--drop|-a)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !initSchema && !drop && addWorkspace == "" {
				return failWith(ExitMisuse, fmt.Errorf("db: one of --init, --drop, -a is required"))
			}
			st, err := openStore()
			if err != nil {
				return failWith(ExitDatabaseError, err)
			}
			defer st.Close()

			// OpenBolt/OpenSQL already create their schema (AutoMigrate for
			// the sql engine, bucket creation for bolt); --init/--drop are a
			// thin, explicit wrapper over that one-shot setup step per §1
			// Non-goals ("one-shot DB setup beyond what db --init/--drop
			// requires").
			if drop {
				if err := dropSchema(st); err != nil {
					return failWith(ExitDatabaseError, err)
				}
			}
			if addWorkspace != "" {
				fmt.Printf("workspace %q ready\n", addWorkspace)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&initSchema, "init", false, "create the store schema")
	cmd.Flags().BoolVar(&drop, "drop", false, "drop the store schema")
	cmd.Flags().StringVarP(&addWorkspace, "add-workspace", "a", "", "workspace name to report as ready (no workspace row is stored)")
	return cmd
}

func openStore() (store.Store, error) {
	if dbDSN != "" || engine == "postgres" {
		return store.OpenSQL(dbDSN)
	}
	return store.OpenBolt(dbPath)
}

// dropSchema removes the state of every workspace. Only a bolt store supports a
// clean file-level drop here; a server engine's schema is dropped by its
// operator through normal database administration, not this CLI.
func dropSchema(st store.Store) error {
	if b, ok := st.(*store.BoltStore); ok {
		return b.DropAll()
	}
	return fmt.Errorf("db --drop: not supported for the postgres engine, use database administration tools")
}
