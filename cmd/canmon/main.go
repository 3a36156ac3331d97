// canmon dumps every frame seen on the bus and keeps per-identifier counters
// across runs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fucytech/fuzzcan"
	"github.com/fucytech/fuzzcan/pkg/stats"
)

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

func main() {
	adapterName := flag.String("adapter", "vbus", "adapter to use")
	port := flag.String("port", "", "serial port for adapters that need one")
	baudrate := flag.Int("baudrate", 115200, "serial port baudrate")
	canRate := flag.Float64("canrate", 500, "CAN bitrate in kbit/s")
	dbPath := flag.String("db", "canmon.db", "counter database")
	reset := flag.Bool("reset", false, "drop persisted counters and exit")
	flag.Parse()

	store, err := stats.Open(*dbPath)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	if *reset {
		if err := store.Reset(); err != nil {
			log.Fatal(err)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	cl, err := fuzzcan.New(ctx, *adapterName, &fuzzcan.AdapterConfig{
		Port:         *port,
		PortBaudrate: *baudrate,
		CANRate:      *canRate,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer cl.Close()

	sub := cl.Subscribe(ctx)
	defer sub.Close()

	for {
		select {
		case s := <-sigChan:
			log.Println("shutting down,", s)
			printTotals(store)
			return
		case err := <-cl.Err():
			log.Println(err)
		case frame := <-sub.Chan():
			total, err := store.Count(frame.Identifier)
			if err != nil {
				log.Println(err)
				continue
			}
			fmt.Printf("%s seen %d\n", frame.ColorString(), total)
		case <-ctx.Done():
			return
		}
	}
}

func printTotals(store *stats.Store) {
	snap, err := store.Snapshot()
	if err != nil {
		log.Println(err)
		return
	}
	for id, n := range snap {
		fmt.Printf("0x%03X: %d\n", id, n)
	}
}
