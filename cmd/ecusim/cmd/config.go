package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fucytech/fuzzcan/pkg/ecu"
	"github.com/fucytech/fuzzcan/pkg/uds"
)

// ecusim config.toml key mapping to ECU runtime settings. CAN identifiers may
// be written as hex integers (0x7E0). The [identifiers] table maps hex data
// identifiers to the ASCII record the emulator serves, e.g. "0xF190" = "VIN".
type fileConfig struct {
	RequestID        uint32            `toml:"request_id"`
	ResponseID       uint32            `toml:"response_id"`
	MaxFramesPerTick int               `toml:"max_frames_per_tick"`
	TickIntervalMs   int               `toml:"tick_interval_ms"`
	SeparationUs     int               `toml:"separation_time_us"`
	GrantDelayUs     int               `toml:"grant_delay_us"`
	Telemetry        telemetryConfig   `toml:"telemetry"`
	Identifiers      map[string]string `toml:"identifiers"`
}

type telemetryConfig struct {
	SpeedID   uint32  `toml:"speed_id"`
	BlinkerID uint32  `toml:"blinker_id"`
	DoorsID   uint32  `toml:"doors_id"`
	MaxSpeed  float64 `toml:"max_speed"`
}

// loadECUConfig overlays a TOML file, when given, on the default ECU config.
func loadECUConfig(path string) (ecu.Config, error) {
	cfg := ecu.DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return ecu.Config{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("request_id") {
		cfg.RequestID = raw.RequestID
	}
	if meta.IsDefined("response_id") {
		cfg.ResponseID = raw.ResponseID
	}
	if meta.IsDefined("max_frames_per_tick") {
		cfg.MaxFramesPerTick = raw.MaxFramesPerTick
	}
	if meta.IsDefined("tick_interval_ms") {
		cfg.TickInterval = time.Duration(raw.TickIntervalMs) * time.Millisecond
	}
	if meta.IsDefined("separation_time_us") {
		cfg.SeparationTime = time.Duration(raw.SeparationUs) * time.Microsecond
	}
	if meta.IsDefined("grant_delay_us") {
		cfg.GrantDelay = time.Duration(raw.GrantDelayUs) * time.Microsecond
	}
	if meta.IsDefined("telemetry", "speed_id") {
		cfg.Cluster.SpeedID = raw.Telemetry.SpeedID
	}
	if meta.IsDefined("telemetry", "blinker_id") {
		cfg.Cluster.BlinkerID = raw.Telemetry.BlinkerID
	}
	if meta.IsDefined("telemetry", "doors_id") {
		cfg.Cluster.DoorsID = raw.Telemetry.DoorsID
	}
	if meta.IsDefined("telemetry", "max_speed") {
		cfg.Cluster.MaxSpeed = raw.Telemetry.MaxSpeed
	}

	if len(raw.Identifiers) > 0 {
		entries := make(map[uint16][]byte, len(raw.Identifiers))
		for key, value := range raw.Identifiers {
			id, err := strconv.ParseUint(key, 0, 16)
			if err != nil {
				return ecu.Config{}, fmt.Errorf("load config: bad data identifier %q: %w", key, err)
			}
			entries[uint16(id)] = []byte(value)
		}
		cfg.Registry = uds.NewRegistry(entries)
	}
	return cfg, nil
}
