package fuzzcan

import (
	"errors"
	"fmt"
)

var (
	ErrNilAdapter            = errors.New("adapter is nil")
	ErrDroppedFrame          = errors.New("adapter incoming channel full")
	ErrSendTimeout           = errors.New("timeout sending frame")
	ErrResponseChannelClosed = errors.New("response channel closed")
)

type TimeoutError struct {
	Timeout int64
	Frames  []uint32
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout (%dms) waiting for frame 0x%03X", e.Timeout, e.Frames)
}
