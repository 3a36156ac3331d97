package fuzzcan

import (
	"context"
	"fmt"
	"sync"
)

type Subscriber struct {
	cl           *Client
	identifiers  map[uint32]struct{}
	responseChan chan *CANFrame
	closeOnce    sync.Once
}

func (s *Subscriber) Close() {
	s.closeOnce.Do(func() {
		s.cl.fh.unregisterSub(s)
	})
}

func (s *Subscriber) Chan() <-chan *CANFrame {
	return s.responseChan
}

func (s *Subscriber) Wait(ctx context.Context) (*CANFrame, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("timeout: %w", ctx.Err())
	case frame, ok := <-s.responseChan:
		if !ok {
			return nil, ErrResponseChannelClosed
		}
		return frame, nil
	}
}
