package main

import (
	"os"

	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8080"

type rootOptions struct {
	configPath string
	server     string
	actor      string
	jsonOutput bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "whalewatcher",
		Short:         "Underwriting case state store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	server := os.Getenv("WHALEWATCHER_SERVER")
	if server == "" {
		server = defaultServer
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&opts.server, "server", server, "server base URL for client commands")
	root.PersistentFlags().StringVar(&opts.actor, "actor", os.Getenv("USER"), "user the actions are attributed to")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "print JSON instead of tables")

	root.AddCommand(
		newServeCmd(opts),
		newCasesCmd(opts),
		newAdvanceCmd(opts),
		newGapCmd(opts),
		newDemoCmd(opts),
		newExportCmd(opts),
	)
	return root
}
