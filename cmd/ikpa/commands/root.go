package commands

import (
	"github.com/spf13/cobra"

	"ikpa/internal/cli"
)

func Execute() error {
	root := &cobra.Command{
		Use:           "ikpa",
		Short:         "Ikpa personal finance API and background workers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cli.LoadEnvFile()
		},
	}

	root.AddCommand(serveCmd(), workerCmd(), migrateCmd(), simulateCmd(), seedCmd())
	return root.Execute()
}
