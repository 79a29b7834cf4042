package cli

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "recall",
	Short: "Relevance scoring and lifecycle for agent memory logs",
	Long: "Recall fuses semantic, temporal and relational retrieval into one ranked context " +
		"and keeps the store lean by summarizing and archiving old memories.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.recall/config.toml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(answerCmd)
	rootCmd.AddCommand(lifecycleCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(boostCmd)
	rootCmd.AddCommand(reindexCmd)
	rootCmd.AddCommand(configCmd)
}
