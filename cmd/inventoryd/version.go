package main

import (
	"fmt"

	"github.com/spf13/cobra"

	inventoryserver "github.com/technikum29/t29-inventory-server"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of inventoryd",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("inventoryd version %s\n", inventoryserver.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
