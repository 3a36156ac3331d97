package fuzzcan

import (
	"context"
	"fmt"
	"time"
)

type Client struct {
	fh      *handler
	adapter Adapter
}

// New creates a client on a registered adapter and opens it.
func New(ctx context.Context, adapterName string, cfg *AdapterConfig) (*Client, error) {
	adapter, err := NewAdapter(adapterName, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithAdapter(ctx, adapter)
}

// NewWithAdapter creates a client on an already constructed adapter.
func NewWithAdapter(ctx context.Context, adapter Adapter) (*Client, error) {
	if adapter == nil {
		return nil, ErrNilAdapter
	}
	if err := adapter.Open(ctx); err != nil {
		return nil, fmt.Errorf("failed to open adapter %s: %w", adapter.Name(), err)
	}
	c := &Client{
		fh:      newHandler(adapter),
		adapter: adapter,
	}
	go c.fh.run(ctx)
	return c, nil
}

func (c *Client) Adapter() Adapter {
	return c.adapter
}

func (c *Client) Err() <-chan error {
	return c.adapter.Err()
}

func (c *Client) Close() error {
	c.fh.Close()
	return c.adapter.Close()
}

// Send a standard 11bit frame
func (c *Client) Send(identifier uint32, data []byte, typ CANFrameType) error {
	return c.SendFrame(NewFrame(identifier, data, typ))
}

func (c *Client) SendFrame(frame *CANFrame) error {
	select {
	case c.adapter.Send() <- frame:
		return nil
	case <-time.After(5 * time.Second):
		return ErrSendTimeout
	}
}

// Subscribe returns a subscriber receiving frames matching the given
// identifiers. No identifiers means all frames.
func (c *Client) Subscribe(ctx context.Context, identifiers ...uint32) *Subscriber {
	sub := &Subscriber{
		cl:           c,
		identifiers:  make(map[uint32]struct{}, len(identifiers)),
		responseChan: make(chan *CANFrame, 100),
	}
	for _, id := range identifiers {
		sub.identifiers[id] = struct{}{}
	}
	c.fh.registerSub(sub)
	return sub
}

// SubscribeFunc calls fn for every matching frame until the subscriber is
// closed or the context is done.
func (c *Client) SubscribeFunc(ctx context.Context, fn func(*CANFrame), identifiers ...uint32) *Subscriber {
	sub := c.Subscribe(ctx, identifiers...)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case frame, ok := <-sub.responseChan:
				if !ok {
					return
				}
				fn(frame)
			}
		}
	}()
	return sub
}

// SendAndWait sends a frame and waits for the first frame on responseID.
func (c *Client) SendAndWait(ctx context.Context, frame *CANFrame, timeout time.Duration, responseID uint32) (*CANFrame, error) {
	sub := c.Subscribe(ctx, responseID)
	defer sub.Close()
	if err := c.SendFrame(frame); err != nil {
		return nil, err
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	resp, err := sub.Wait(waitCtx)
	if err != nil {
		return nil, &TimeoutError{Timeout: timeout.Milliseconds(), Frames: []uint32{responseID}}
	}
	return resp, nil
}
