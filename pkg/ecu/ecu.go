// Package ecu wires the telemetry decoder and the diagnostic dispatcher to a
// bus transport, emulating a body control unit on the FuzzCAN bench.
package ecu

import (
	"context"
	"time"

	"github.com/fucytech/fuzzcan"
	"github.com/fucytech/fuzzcan/pkg/cluster"
	"github.com/fucytech/fuzzcan/pkg/isotp"
	"github.com/fucytech/fuzzcan/pkg/uds"
)

type Config struct {
	Cluster cluster.Config

	// RequestID and ResponseID are the fixed diagnostic identifiers.
	RequestID  uint32
	ResponseID uint32

	// MaxFramesPerTick bounds how many frames one Poll drains so a flooded
	// bus cannot stall the host's refresh loop. Undrained frames stay queued
	// in the transport.
	MaxFramesPerTick int

	TickInterval time.Duration

	// Pacing for multi-frame responses.
	SeparationTime time.Duration
	GrantDelay     time.Duration

	Registry *uds.Registry
	OnEvent  func(uds.Event)
}

func DefaultConfig() Config {
	return Config{
		Cluster:          cluster.DefaultConfig(),
		RequestID:        0x7E0,
		ResponseID:       0x7E8,
		MaxFramesPerTick: 10,
		TickInterval:     16 * time.Millisecond,
		SeparationTime:   2 * time.Millisecond,
		GrantDelay:       2 * time.Millisecond,
	}
}

type ECU struct {
	cfg        Config
	client     *fuzzcan.Client
	sub        *fuzzcan.Subscriber
	decoder    *cluster.Decoder
	tx         *isotp.Transmitter
	dispatcher *uds.Dispatcher
}

func New(ctx context.Context, client *fuzzcan.Client, cfg Config) *ECU {
	def := DefaultConfig()
	if cfg.RequestID == 0 {
		cfg.RequestID = def.RequestID
	}
	if cfg.ResponseID == 0 {
		cfg.ResponseID = def.ResponseID
	}
	if cfg.MaxFramesPerTick <= 0 {
		cfg.MaxFramesPerTick = def.MaxFramesPerTick
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.Cluster == (cluster.Config{}) {
		cfg.Cluster = def.Cluster
	}
	if cfg.Registry == nil {
		cfg.Registry = uds.DefaultRegistry()
	}

	e := &ECU{
		cfg:     cfg,
		client:  client,
		decoder: cluster.NewDecoder(cfg.Cluster),
	}
	e.tx = isotp.NewTransmitter(client, cfg.ResponseID,
		isotp.WithSeparationTime(cfg.SeparationTime),
		isotp.WithGrantDelay(cfg.GrantDelay),
	)
	var opts []uds.Option
	if cfg.OnEvent != nil {
		opts = append(opts, uds.WithEventFunc(cfg.OnEvent))
	}
	e.dispatcher = uds.NewDispatcher(cfg.Registry, e.tx, opts...)
	e.sub = client.Subscribe(ctx,
		cfg.Cluster.SpeedID,
		cfg.Cluster.BlinkerID,
		cfg.Cluster.DoorsID,
		cfg.RequestID,
	)
	return e
}

// Poll drains at most MaxFramesPerTick pending frames and routes each to the
// telemetry decoder or the diagnostic dispatcher. It never blocks and returns
// the number of frames handled.
func (e *ECU) Poll() int {
	handled := 0
	for handled < e.cfg.MaxFramesPerTick {
		select {
		case frame, ok := <-e.sub.Chan():
			if !ok {
				return handled
			}
			e.route(frame)
			handled++
		default:
			return handled
		}
	}
	return handled
}

func (e *ECU) route(frame *fuzzcan.CANFrame) {
	if frame.Identifier == e.cfg.RequestID {
		e.dispatcher.Handle(frame)
		return
	}
	e.decoder.Decode(frame)
}

// Run polls on a ticker until the context is done.
func (e *ECU) Run(ctx context.Context) error {
	t := time.NewTicker(e.cfg.TickInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			e.Poll()
		}
	}
}

// State returns a copy of the decoded vehicle state.
func (e *ECU) State() cluster.State {
	return e.decoder.Snapshot()
}

// LastEvent returns the most recent diagnostic event, if any.
func (e *ECU) LastEvent() (uds.Event, bool) {
	return e.dispatcher.LastEvent()
}

func (e *ECU) Close() {
	e.sub.Close()
	e.tx.Close()
}
