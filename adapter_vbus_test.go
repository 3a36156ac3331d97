package fuzzcan

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestVirtualBusBroadcast(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewVirtualBus()

	a, err := NewWithAdapter(ctx, bus.Endpoint("a", nil))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := NewWithAdapter(ctx, bus.Endpoint("b", nil))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	sub := b.Subscribe(ctx, 0x123)
	defer sub.Close()

	if err := a.Send(0x123, []byte{0xDE, 0xAD}, Outgoing); err != nil {
		t.Fatal(err)
	}

	waitCtx, waitCancel := context.WithTimeout(ctx, time.Second)
	defer waitCancel()
	f, err := sub.Wait(waitCtx)
	if err != nil {
		t.Fatal(err)
	}
	if f.Identifier != 0x123 || !bytes.Equal(f.Data, []byte{0xDE, 0xAD}) {
		t.Errorf("got %s", f.String())
	}
	if f.FrameType != Incoming {
		t.Errorf("frame type = %v, want Incoming", f.FrameType)
	}
}

func TestVirtualBusNoEcho(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewVirtualBus()
	a, err := NewWithAdapter(ctx, bus.Endpoint("a", nil))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	sub := a.Subscribe(ctx, 0x100)
	defer sub.Close()

	a.Send(0x100, []byte{0x01}, Outgoing)

	select {
	case f := <-sub.Chan():
		t.Fatalf("sender received its own frame: %s", f.String())
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscriberFilter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewVirtualBus()
	a, err := NewWithAdapter(ctx, bus.Endpoint("a", nil))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := NewWithAdapter(ctx, bus.Endpoint("b", nil))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	sub := b.Subscribe(ctx, 0x244)
	defer sub.Close()

	a.Send(0x188, []byte{0x03}, Outgoing)
	a.Send(0x244, []byte{0x42}, Outgoing)

	waitCtx, waitCancel := context.WithTimeout(ctx, time.Second)
	defer waitCancel()
	f, err := sub.Wait(waitCtx)
	if err != nil {
		t.Fatal(err)
	}
	if f.Identifier != 0x244 {
		t.Errorf("filter leaked identifier 0x%03X", f.Identifier)
	}
}

func TestSendAndWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewVirtualBus()
	a, err := NewWithAdapter(ctx, bus.Endpoint("a", nil))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := NewWithAdapter(ctx, bus.Endpoint("b", nil))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	// b answers 0x123 with 0x124
	respond := b.SubscribeFunc(ctx, func(f *CANFrame) {
		b.Send(0x124, []byte("pong"), Outgoing)
	}, 0x123)
	defer respond.Close()

	resp, err := a.SendAndWait(ctx, NewFrame(0x123, []byte("ping"), ResponseRequired), time.Second, 0x124)
	if err != nil {
		t.Fatal(err)
	}
	if string(resp.Data) != "pong" {
		t.Errorf("response = %q", resp.Data)
	}
}

func TestSendAndWaitTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewVirtualBus()
	a, err := NewWithAdapter(ctx, bus.Endpoint("a", nil))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	_, err = a.SendAndWait(ctx, NewFrame(0x123, []byte{0x00}, ResponseRequired), 20*time.Millisecond, 0x124)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if _, ok := err.(*TimeoutError); !ok {
		t.Errorf("error type = %T, want *TimeoutError", err)
	}
}
