// Package uds services ReadDataByIdentifier requests against a fixed
// identifier registry, answering over segmented transport frames.
package uds

import (
	"encoding/binary"
	"sync"

	"github.com/fucytech/fuzzcan"
	"github.com/fucytech/fuzzcan/pkg/isotp"
)

const (
	// ServiceReadDataByID is the only service the emulator implements.
	ServiceReadDataByID = 0x22

	// positiveOffset is added to the request service id in positive responses.
	positiveOffset = 0x40

	// negativeResponseSID leads every negative response.
	negativeResponseSID = 0x7F

	// NRCRequestOutOfRange rejects identifiers missing from the registry.
	NRCRequestOutOfRange = 0x31
)

// Event reports one resolved request to whoever renders diagnostics activity.
// Indicator hold times are the display's business, not ours.
type Event struct {
	Identifier uint16
	Found      bool
}

// Responder carries a fully built response payload to the wire.
type Responder interface {
	Send(payload []byte) error
}

// Dispatcher parses inbound request frames and answers them. It keeps no
// state between requests; Handle is safe to call frame after frame.
type Dispatcher struct {
	reg     *Registry
	tx      Responder
	onEvent func(Event)

	mu       sync.Mutex
	last     Event
	haveLast bool
}

type Option func(*Dispatcher)

// WithEventFunc registers a callback invoked for every resolved request.
func WithEventFunc(fn func(Event)) Option {
	return func(d *Dispatcher) { d.onEvent = fn }
}

func NewDispatcher(reg *Registry, tx Responder, opts ...Option) *Dispatcher {
	d := &Dispatcher{reg: reg, tx: tx}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle services one request frame. Malformed requests and unsupported
// services are dropped without a response; only an unknown identifier on a
// well-formed 0x22 request earns a negative response.
//
// Multi-frame requests are not reassembled, and unsupported services get no
// serviceNotSupported negative response. Both are known limitations.
func (d *Dispatcher) Handle(frame *fuzzcan.CANFrame) error {
	if len(frame.Data) == 0 {
		return nil
	}
	payload, ok := isotp.ParseSingle(frame.Data)
	if !ok {
		return nil
	}
	if payload[0] != ServiceReadDataByID {
		return nil
	}
	if len(payload) < 3 {
		return nil
	}
	id := binary.BigEndian.Uint16(payload[1:3])

	data, found := d.reg.Lookup(id)
	var resp []byte
	if found {
		resp = make([]byte, 0, 3+len(data))
		resp = append(resp, ServiceReadDataByID+positiveOffset, byte(id>>8), byte(id))
		resp = append(resp, data...)
	} else {
		resp = []byte{negativeResponseSID, ServiceReadDataByID, NRCRequestOutOfRange}
	}
	err := d.tx.Send(resp)
	d.emit(Event{Identifier: id, Found: found})
	return err
}

func (d *Dispatcher) emit(ev Event) {
	d.mu.Lock()
	d.last = ev
	d.haveLast = true
	d.mu.Unlock()
	if d.onEvent != nil {
		d.onEvent(ev)
	}
}

// LastEvent returns the most recently emitted event, if any.
func (d *Dispatcher) LastEvent() (Event, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last, d.haveLast
}
