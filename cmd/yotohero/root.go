package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var tokenFileFlag string
	var logLevelFlag string

	ctx := newCommandContext(&configFlag, &tokenFileFlag, &logLevelFlag)

	rootCmd := &cobra.Command{
		Use:           "yotohero",
		Short:         "Narrate stories onto the shared story card",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&tokenFileFlag, "token-file", "", "Where the token pair is stored (default ~/.config/yotohero/tokens.json)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Override logging.level")

	rootCmd.AddCommand(newAuthCommand(ctx))
	rootCmd.AddCommand(newStoryCommand(ctx))
	rootCmd.AddCommand(newCardCommand(ctx))
	rootCmd.AddCommand(newCacheCommand(ctx))
	rootCmd.AddCommand(newConfigCommand())

	return rootCmd
}
