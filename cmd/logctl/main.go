package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globalFlags struct {
	provider string
	dsn      string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "logctl",
		Short:         "logctl administers the logreplay access log store",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.provider, "provider", "", "override database.provider")
	root.PersistentFlags().StringVar(&flags.dsn, "dsn", "", "override database.connection_string")

	root.AddCommand(
		newInitStoreCmd(flags),
		newCreateAdminCmd(flags),
		newListAdminsCmd(flags),
		newPurgeCmd(flags),
		newHashPasswordCmd(),
		newTailCmd(),
	)
	return root
}
