package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the vitrine command tree
func NewRootCmd(version string) *cobra.Command {
	var dataDirectory string
	var logLevel string

	root := &cobra.Command{
		Use:          "vitrine",
		Short:        "Internalize and serve product images",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setLogLevel(logLevel)
		},
	}

	root.PersistentFlags().StringVar(&dataDirectory, "data-directory", "", "Path to the data directory (default $VITRINE_DATA_DIR or ~/vitrine)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", os.Getenv("LOG_LEVEL"), "Set the log level (debug, info, warn, error)")

	root.AddCommand(
		NewServeCmd(version, &dataDirectory),
		NewSyncCmd(&dataDirectory),
		NewImportCmd(&dataDirectory),
		NewMigrateCmd(&dataDirectory),
		NewVersionCmd(version),
	)

	return root
}
