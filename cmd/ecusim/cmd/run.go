package cmd

import (
	"context"
	"log"

	"github.com/avast/retry-go"
	"github.com/fucytech/fuzzcan"
	"github.com/fucytech/fuzzcan/pkg/ecu"
	"github.com/fucytech/fuzzcan/pkg/uds"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the ECU emulator on a CAN adapter",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		configPath, _ := cmd.Flags().GetString(flagConfig)
		cfg, err := loadECUConfig(configPath)
		if err != nil {
			return err
		}

		cl, err := openClient(ctx, cmd)
		if err != nil {
			return err
		}
		defer cl.Close()

		cfg.OnEvent = func(ev uds.Event) {
			if ev.Found {
				log.Printf("served identifier 0x%04X", ev.Identifier)
				return
			}
			log.Printf("rejected identifier 0x%04X", ev.Identifier)
		}

		e := ecu.New(ctx, cl, cfg)
		defer e.Close()

		log.Printf("ECU up, requests on 0x%03X, responses on 0x%03X", cfg.RequestID, cfg.ResponseID)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return e.Run(gctx)
		})
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case err := <-cl.Err():
					log.Println(err)
				}
			}
		})
		if err := g.Wait(); err != context.Canceled {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// openClient creates a client on the adapter named by the flags, retrying
// once since serial adapters commonly need a settle after replug.
func openClient(ctx context.Context, cmd *cobra.Command) (*fuzzcan.Client, error) {
	adapterName, _ := cmd.Flags().GetString(flagAdapter)
	port, _ := cmd.Flags().GetString(flagPort)
	baudrate, _ := cmd.Flags().GetInt(flagBaudrate)
	canRate, _ := cmd.Flags().GetFloat64(flagCANRate)
	debug, _ := cmd.Flags().GetBool(flagDebug)

	var cl *fuzzcan.Client
	err := retry.Do(func() error {
		var err error
		cl, err = fuzzcan.New(ctx, adapterName, &fuzzcan.AdapterConfig{
			Debug:        debug,
			Port:         port,
			PortBaudrate: baudrate,
			CANRate:      canRate,
		})
		return err
	},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("failed to open adapter %s, retrying: %v", adapterName, err)
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return cl, nil
}
