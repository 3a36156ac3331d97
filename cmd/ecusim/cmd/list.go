package cmd

import (
	"fmt"

	"github.com/fucytech/fuzzcan"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered adapters",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, info := range fuzzcan.ListAdapters() {
			serial := ""
			if info.RequiresSerialPort {
				serial = " (serial)"
			}
			fmt.Printf("%s%s\n\t%s\n", info.Name, serial, info.Description)
		}
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
