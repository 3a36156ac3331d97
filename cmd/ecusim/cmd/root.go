package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "ecusim",
	Short:        "FuzzCAN bench ECU emulator",
	Long:         `Emulates a body control unit: decodes instrument cluster telemetry and answers ReadDataByIdentifier requests over the bus.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) {
	rootCmd.ExecuteContext(ctx)
}

const (
	flagPort     = "port"
	flagBaudrate = "baudrate"
	flagCANRate  = "canrate"
	flagDebug    = "debug"
	flagAdapter  = "adapter"
	flagConfig   = "config"
)

func init() {
	log.SetFlags(log.Lshortfile | log.LstdFlags)

	pf := rootCmd.PersistentFlags()
	pf.StringP(flagPort, "p", "", "serial port for adapters that need one")
	pf.IntP(flagBaudrate, "b", 115200, "serial port baudrate")
	pf.Float64P(flagCANRate, "r", 500, "CAN bitrate in kbit/s")
	pf.BoolP(flagDebug, "d", false, "debug mode")
	pf.StringP(flagAdapter, "a", "vbus", "adapter to use, see the list command")
	pf.StringP(flagConfig, "c", "", "TOML config file")
}
