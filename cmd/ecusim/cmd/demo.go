package cmd

import (
	"context"
	"log"
	"time"

	"github.com/fucytech/fuzzcan"
	"github.com/fucytech/fuzzcan/pkg/ecu"
	"github.com/fucytech/fuzzcan/pkg/uds"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the ECU and a traffic generator on the virtual bus",
	Long:  `Spins up the emulator and a second node on the in-process bus. The generator ramps the speed, toggles the blinkers, opens and closes doors and reads the VIN every few seconds while the decoded state is printed.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		configPath, _ := cmd.Flags().GetString(flagConfig)
		cfg, err := loadECUConfig(configPath)
		if err != nil {
			return err
		}
		cfg.OnEvent = func(ev uds.Event) {
			log.Printf("diagnostic request for 0x%04X, found=%v", ev.Identifier, ev.Found)
		}

		ecuClient, err := fuzzcan.New(ctx, "vbus", nil)
		if err != nil {
			return err
		}
		defer ecuClient.Close()

		gen, err := fuzzcan.New(ctx, "vbus", nil)
		if err != nil {
			return err
		}
		defer gen.Close()

		e := ecu.New(ctx, ecuClient, cfg)
		defer e.Close()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return e.Run(gctx) })
		g.Go(func() error { return generateTraffic(gctx, gen, cfg) })
		g.Go(func() error { return printState(gctx, e) })
		if err := g.Wait(); err != context.Canceled {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
}

// generateTraffic plays a scripted drive: the speed saws between 0 and the
// dial maximum, the blinkers alternate and the driver door opens now and then.
func generateTraffic(ctx context.Context, cl *fuzzcan.Client, cfg ecu.Config) error {
	t := time.NewTicker(100 * time.Millisecond)
	defer t.Stop()

	var (
		tick     int
		speed    int
		climbing = true
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		tick++

		if climbing {
			speed += 3
		} else {
			speed -= 3
		}
		if speed >= int(cfg.Cluster.MaxSpeed) || speed <= 0 {
			climbing = !climbing
		}
		if err := cl.Send(cfg.Cluster.SpeedID, []byte{byte(speed)}, fuzzcan.Outgoing); err != nil {
			return err
		}

		// alternate left and right every second, off in between
		switch (tick / 10) % 4 {
		case 0:
			cl.Send(cfg.Cluster.BlinkerID, []byte{0x01}, fuzzcan.Outgoing)
		case 2:
			cl.Send(cfg.Cluster.BlinkerID, []byte{0x02}, fuzzcan.Outgoing)
		default:
			cl.Send(cfg.Cluster.BlinkerID, []byte{0x00}, fuzzcan.Outgoing)
		}

		if tick%30 == 0 {
			door := byte(0)
			if (tick/30)%2 == 0 {
				door = 1
			}
			cl.Send(cfg.Cluster.DoorsID, []byte{door, 0x00, 0x00, 0x00}, fuzzcan.Outgoing)
		}

		if tick%50 == 0 {
			if err := readVIN(ctx, cl, cfg); err != nil {
				log.Println(err)
			}
		}
	}
}

// readVIN sends a ReadDataByIdentifier for 0xF190 and logs the first frame of
// the segmented answer.
func readVIN(ctx context.Context, cl *fuzzcan.Client, cfg ecu.Config) error {
	req := fuzzcan.NewFrame(cfg.RequestID, []byte{0x03, 0x22, 0xF1, 0x90, 0xAA, 0xAA, 0xAA, 0xAA}, fuzzcan.ResponseRequired)
	resp, err := cl.SendAndWait(ctx, req, time.Second, cfg.ResponseID)
	if err != nil {
		return err
	}
	log.Println(resp.ColorString())
	return nil
}

func printState(ctx context.Context, e *ecu.ECU) error {
	t := time.NewTicker(500 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s := e.State()
			log.Printf("speed=%3.0f left=%-5v right=%-5v doors=%v", s.TargetSpeed, s.LeftSignal, s.RightSignal, s.Doors)
		}
	}
}
