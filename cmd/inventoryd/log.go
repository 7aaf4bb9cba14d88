package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	inventoryserver "github.com/technikum29/t29-inventory-server"
)

var logMaxItems int

// logCmd represents the log command
var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Print the revision history of the inventory",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		sys := inventoryserver.New(cfg.Paths.Repository, cfg.Paths.Patches,
			inventoryserver.WithInventoryFile(cfg.Paths.InventoryFile),
			inventoryserver.WithAutoInit(false),
			inventoryserver.WithMustExist(true),
			inventoryserver.WithLogger(slog.Default()),
		)
		if err := sys.Initialize(cmd.Context()); err != nil {
			fatal("Failed to open repository", err)
		}

		entries, err := sys.Service.Log(cmd.Context(), logMaxItems)
		if err != nil {
			fatal("Failed to read log", err)
		}

		for _, e := range entries {
			fmt.Printf("%s  %s  %s  %s\n", e.ID[:12], e.Date, e.Author, e.Message)
		}
	},
}

func init() {
	rootCmd.AddCommand(logCmd)
	logCmd.Flags().IntVarP(&logMaxItems, "max-items", "n", 0, "Maximum number of entries (0 uses the server default)")
}
