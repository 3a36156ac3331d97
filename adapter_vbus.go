package fuzzcan

import (
	"context"
	"sync"
)

// VirtualBus is an in-process CAN bus. Every frame written on one endpoint is
// delivered to all other endpoints, like nodes sharing a physical bus. Used
// for the emulator demo mode and for tests.
type VirtualBus struct {
	mu        sync.RWMutex
	endpoints []*VBusEndpoint
}

// DefaultBus is joined by adapters created through the registry under "vbus".
var DefaultBus = NewVirtualBus()

func init() {
	if err := RegisterAdapter(&AdapterInfo{
		Name:               "vbus",
		Description:        "in-process virtual CAN bus",
		RequiresSerialPort: false,
		New: func(cfg *AdapterConfig) (Adapter, error) {
			return DefaultBus.Endpoint("vbus", cfg), nil
		},
	}); err != nil {
		panic(err)
	}
}

func NewVirtualBus() *VirtualBus {
	return &VirtualBus{}
}

// Endpoint attaches a new node to the bus.
func (b *VirtualBus) Endpoint(name string, cfg *AdapterConfig) *VBusEndpoint {
	ep := &VBusEndpoint{
		BaseAdapter: NewBaseAdapter(name, cfg),
		bus:         b,
	}
	b.mu.Lock()
	b.endpoints = append(b.endpoints, ep)
	b.mu.Unlock()
	return ep
}

func (b *VirtualBus) detach(ep *VBusEndpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, e := range b.endpoints {
		if e == ep {
			b.endpoints = append(b.endpoints[:i], b.endpoints[i+1:]...)
			return
		}
	}
}

func (b *VirtualBus) broadcast(src *VBusEndpoint, frame *CANFrame) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ep := range b.endpoints {
		if ep == src {
			continue
		}
		in := NewFrame(frame.Identifier, frame.Data, Incoming)
		in.Extended = frame.Extended
		select {
		case ep.recvChan <- in:
		default:
			ep.SetError(ErrDroppedFrame)
		}
	}
}

type VBusEndpoint struct {
	BaseAdapter
	bus *VirtualBus
}

func (ep *VBusEndpoint) Open(ctx context.Context) error {
	go ep.sendManager(ctx)
	return nil
}

func (ep *VBusEndpoint) Close() error {
	ep.BaseAdapter.Close()
	ep.bus.detach(ep)
	return nil
}

func (ep *VBusEndpoint) sendManager(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ep.closeChan:
			return
		case frame := <-ep.sendChan:
			ep.bus.broadcast(ep, frame)
		}
	}
}
