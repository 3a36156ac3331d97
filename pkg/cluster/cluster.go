// Package cluster decodes periodic body telemetry frames into instrument
// cluster state: vehicle speed, turn signals and door status.
package cluster

import (
	"sync"

	"github.com/fucytech/fuzzcan"
)

// Door indexes into State.Doors.
const (
	DoorFrontLeft = iota
	DoorFrontRight
	DoorRearLeft
	DoorRearRight
)

// State is the decoded vehicle state. Each field holds the value of the most
// recent valid frame; smoothing and animation are the display's problem.
type State struct {
	TargetSpeed float64
	LeftSignal  bool
	RightSignal bool
	Doors       [4]bool
}

type Config struct {
	SpeedID   uint32
	BlinkerID uint32
	DoorsID   uint32
	MaxSpeed  float64
}

func DefaultConfig() Config {
	return Config{
		SpeedID:   0x244,
		BlinkerID: 0x188,
		DoorsID:   0x19B,
		MaxSpeed:  240,
	}
}

// Decoder owns a State and mutates it as matching frames arrive. Decode runs
// on a single goroutine; Snapshot may be called from any.
type Decoder struct {
	cfg Config

	mu    sync.RWMutex
	state State
}

func NewDecoder(cfg Config) *Decoder {
	if cfg.MaxSpeed <= 0 {
		cfg.MaxSpeed = DefaultConfig().MaxSpeed
	}
	return &Decoder{cfg: cfg}
}

// Decode updates the state from a telemetry frame. Unknown identifiers and
// malformed payloads are ignored, the bus carries plenty of unrelated traffic.
func (d *Decoder) Decode(frame *fuzzcan.CANFrame) {
	switch frame.Identifier {
	case d.cfg.SpeedID:
		d.decodeSpeed(frame.Data)
	case d.cfg.BlinkerID:
		d.decodeBlinker(frame.Data)
	case d.cfg.DoorsID:
		d.decodeDoors(frame.Data)
	}
}

func (d *Decoder) decodeSpeed(data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(data) >= 1 {
		speed := float64(data[0])
		if speed > d.cfg.MaxSpeed {
			speed = d.cfg.MaxSpeed
		}
		d.state.TargetSpeed = speed
		return
	}
	// Legacy 2-byte/100-scaled encoding. Unreachable: the 1-byte rule above
	// accepts any non-empty payload and an empty payload fails both guards.
	// Kept to match the original decoder, do not extend.
	if len(data) >= 4 {
		d.state.TargetSpeed = float64(uint16(data[2])<<8|uint16(data[3])) / 100
	}
}

func (d *Decoder) decodeBlinker(data []byte) {
	if len(data) < 1 {
		return
	}
	d.mu.Lock()
	d.state.LeftSignal = data[0]&0x01 != 0
	d.state.RightSignal = data[0]&0x02 != 0
	d.mu.Unlock()
}

// decodeDoors updates one door per payload byte. A short payload leaves the
// remaining doors untouched.
func (d *Decoder) decodeDoors(data []byte) {
	n := len(data)
	if n > 4 {
		n = 4
	}
	d.mu.Lock()
	for i := 0; i < n; i++ {
		d.state.Doors[i] = data[i]&0x01 != 0
	}
	d.mu.Unlock()
}

// Snapshot returns a copy of the current state for the presentation layer.
func (d *Decoder) Snapshot() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}
