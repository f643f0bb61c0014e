// Package cli is the command line entry point of the order service.
package cli

import "github.com/spf13/cobra"

var (
	version = "dev"
	commit  = "none"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "bookstore-orders",
		Short:         "Bookstore order and payment service",
		Long:          "bookstore-orders places orders against the book catalog's stock, takes payment for them and tracks them until delivery.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "bookstore.yaml", "path to the YAML config file")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))
	return cmd
}

func Execute() error {
	return newRootCmd().Execute()
}
