package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/technikum29/t29-inventory-server/internal/config"
)

var (
	verbose    bool
	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "inventoryd",
	Short: "A coordination server for a shared, git-versioned inventory",
	Long: `Inventoryd lets multiple devices annotate items in a shared inventory.
Changes are staged per author as JSON patches, committed to a git-backed
dataset, and broadcast live to every connected client.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}

		opts := &slog.HandlerOptions{
			Level: level,
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func loadConfig() config.Config {
	if configPath == "" {
		return config.Default()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fatal("Failed to load config", err)
	}
	return cfg
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a JSON or YAML config file")
}
