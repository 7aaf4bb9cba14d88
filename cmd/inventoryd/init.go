package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	inventoryserver "github.com/technikum29/t29-inventory-server"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the inventory repository (git init + empty document)",
	Long: `Create the inventory repository if it does not exist yet: run 'git init',
seed an empty inventory document and record the initial commit.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		sys := inventoryserver.New(cfg.Paths.Repository, cfg.Paths.Patches,
			inventoryserver.WithInventoryFile(cfg.Paths.InventoryFile),
			inventoryserver.WithLogger(slog.Default()),
		)
		if err := sys.Initialize(cmd.Context()); err != nil {
			fatal("Failed to initialize repository", err)
		}

		fmt.Printf("Initialized inventory repository in %s\n", cfg.Paths.Repository)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
