package main

import (
	"github.com/spf13/cobra"

	"github.com/arborfield/actorcore/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "actorctl",
	Short: "Administrative CLI for the actorcore library",
	Long: `actorctl exercises actorcore's wire codec, table-actor storage mapping,
shared/exclusive lock, placement registry, and invocation engine end to
end, without a real cluster.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.Initialize()
	},
}

func init() {
	rootCmd.AddCommand(wireCmd)
	rootCmd.AddCommand(tableCmd)
	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(placementCmd)
	rootCmd.AddCommand(invokeCmd)
}
