package cmd

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/alexander-bruun/vitrine/models"
)

// NewMigrateCmd creates the migrate command
func NewMigrateCmd(dataDirectory *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(
		newMigrateUpCmd(dataDirectory),
		newMigrateDownCmd(dataDirectory),
		newMigrateStatusCmd(dataDirectory),
	)

	return cmd
}

// parseMigrationTarget maps "all" to 0 and anything else to a version number.
func parseMigrationTarget(arg string) (int, error) {
	if arg == "all" {
		return 0, nil
	}
	return strconv.Atoi(arg)
}

func newMigrateUpCmd(dataDirectory *string) *cobra.Command {
	return &cobra.Command{
		Use:   "up [version|all]",
		Short: "Run migrations up to a specific version or all pending migrations",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			version, err := parseMigrationTarget(args[0])
			if err != nil {
				cmd.PrintErrf("Invalid version number: %s\n", args[0])
				exit(1)
				return
			}

			withDB(resolveDataDirectory(*dataDirectory), cmd, func() error {
				if err := models.MigrateUp(version); err != nil {
					return err
				}
				if version == 0 {
					cmd.Println("All pending migrations applied successfully")
				} else {
					cmd.Printf("Migration up %d completed successfully\n", version)
				}
				return nil
			})
		},
	}
}

func newMigrateDownCmd(dataDirectory *string) *cobra.Command {
	return &cobra.Command{
		Use:   "down [version|all]",
		Short: "Rollback migrations down to a specific version or rollback all migrations",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			version, err := parseMigrationTarget(args[0])
			if err != nil {
				cmd.PrintErrf("Invalid version number: %s\n", args[0])
				exit(1)
				return
			}

			withDB(resolveDataDirectory(*dataDirectory), cmd, func() error {
				if err := models.MigrateDown(version); err != nil {
					return err
				}
				if version == 0 {
					cmd.Println("All migrations rolled back successfully")
				} else {
					cmd.Printf("Migration down %d completed successfully\n", version)
				}
				return nil
			})
		},
	}
}

func newMigrateStatusCmd(dataDirectory *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the current schema version",
		Run: func(cmd *cobra.Command, args []string) {
			withDB(resolveDataDirectory(*dataDirectory), cmd, func() error {
				version, err := models.CurrentVersion()
				if err != nil {
					return err
				}
				cmd.Printf("Schema version: %d\n", version)
				return nil
			})
		},
	}
}
