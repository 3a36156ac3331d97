// Package isotp implements the transmit side of ISO-TP style segmentation
// over 8-byte CAN frames: single frames for payloads up to 7 bytes, first
// plus consecutive frames beyond that.
package isotp

import (
	"errors"
	"sync"
	"time"

	"github.com/fucytech/fuzzcan"
)

// PCI frame type markers, high nibble of byte 0.
const (
	FrameSingle      = 0x0
	FrameFirst       = 0x1
	FrameConsecutive = 0x2
	FrameFlowControl = 0x3
)

// Filler pads every outbound frame to 8 bytes.
const Filler = 0xAA

const (
	frameLen  = 8
	sfMaxLen  = 7    // single frame payload capacity
	ffDataLen = 6    // payload bytes carried by a first frame
	cfDataLen = 7    // payload bytes carried by a consecutive frame
	maxLen    = 4095 // 12-bit first frame length field
)

var (
	ErrEmptyPayload    = errors.New("isotp: empty payload")
	ErrPayloadTooLarge = errors.New("isotp: payload exceeds 4095 bytes")
	ErrQueueFull       = errors.New("isotp: transmit queue full")
	ErrClosed          = errors.New("isotp: transmitter closed")
)

// Segment splits a payload into 8-byte frame payloads. Consecutive frame
// sequence numbers start at 1 and wrap to 0 after 15.
func Segment(payload []byte) ([][]byte, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	if len(payload) > maxLen {
		return nil, ErrPayloadTooLarge
	}

	if len(payload) <= sfMaxLen {
		sf := make([]byte, frameLen)
		sf[0] = FrameSingle<<4 | byte(len(payload))
		n := copy(sf[1:], payload)
		fill(sf[1+n:])
		return [][]byte{sf}, nil
	}

	total := len(payload)
	ff := make([]byte, frameLen)
	ff[0] = FrameFirst<<4 | byte(total>>8)&0x0F
	ff[1] = byte(total)
	copy(ff[2:], payload[:ffDataLen])
	out := [][]byte{ff}

	seq := byte(1)
	for rest := payload[ffDataLen:]; len(rest) > 0; seq = (seq + 1) & 0x0F {
		cf := make([]byte, frameLen)
		cf[0] = FrameConsecutive<<4 | seq
		n := copy(cf[1:], rest)
		fill(cf[1+n:])
		out = append(out, cf)
		rest = rest[n:]
	}
	return out, nil
}

func fill(b []byte) {
	for i := range b {
		b[i] = Filler
	}
}

// ParseSingle extracts the payload of a single frame. Anything else, a bad
// length nibble included, returns false.
func ParseSingle(data []byte) ([]byte, bool) {
	if len(data) == 0 || data[0]>>4 != FrameSingle {
		return nil, false
	}
	n := int(data[0] & 0x0F)
	if n == 0 || n > len(data)-1 {
		return nil, false
	}
	return data[1 : 1+n], true
}

// Sender is the outbound half of the bus transport.
type Sender interface {
	Send(identifier uint32, data []byte, typ fuzzcan.CANFrameType) error
}

// Transmitter emits segmented responses on a fixed identifier. Frame pacing
// happens on the transmitter's own goroutine so Send never stalls the
// caller's tick loop.
//
// No flow control frame is read before consecutive frames go out: the peer is
// assumed ready after GrantDelay. Good enough for a bench emulator, wrong for
// a picky real tester.
type Transmitter struct {
	tx         Sender
	responseID uint32
	sepTime    time.Duration
	grantDelay time.Duration

	queue     chan []byte
	closeChan chan struct{}
	closeOnce sync.Once
}

type Option func(*Transmitter)

// WithSeparationTime sets the gap between consecutive frames.
func WithSeparationTime(d time.Duration) Option {
	return func(t *Transmitter) { t.sepTime = d }
}

// WithGrantDelay sets the assumed flow control grant delay after a first frame.
func WithGrantDelay(d time.Duration) Option {
	return func(t *Transmitter) { t.grantDelay = d }
}

func NewTransmitter(tx Sender, responseID uint32, opts ...Option) *Transmitter {
	t := &Transmitter{
		tx:         tx,
		responseID: responseID,
		sepTime:    2 * time.Millisecond,
		grantDelay: 2 * time.Millisecond,
		queue:      make(chan []byte, 8),
		closeChan:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	go t.emitLoop()
	return t
}

func (t *Transmitter) Close() {
	t.closeOnce.Do(func() {
		close(t.closeChan)
	})
}

// Send queues a payload for segmented emission on the response identifier.
// Only the length is validated here; framing happens on the emit goroutine.
func (t *Transmitter) Send(payload []byte) error {
	if len(payload) == 0 {
		return ErrEmptyPayload
	}
	if len(payload) > maxLen {
		return ErrPayloadTooLarge
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	select {
	case <-t.closeChan:
		return ErrClosed
	case t.queue <- cp:
		return nil
	default:
		return ErrQueueFull
	}
}

func (t *Transmitter) emitLoop() {
	for {
		select {
		case <-t.closeChan:
			return
		case payload := <-t.queue:
			t.emit(payload)
		}
	}
}

func (t *Transmitter) emit(payload []byte) {
	segments, err := Segment(payload)
	if err != nil {
		return
	}
	for i, seg := range segments {
		switch i {
		case 0:
		case 1:
			if !t.wait(t.grantDelay) {
				return
			}
		default:
			if !t.wait(t.sepTime) {
				return
			}
		}
		if err := t.tx.Send(t.responseID, seg, fuzzcan.Outgoing); err != nil {
			return
		}
	}
}

func (t *Transmitter) wait(d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-t.closeChan:
		return false
	case <-time.After(d):
		return true
	}
}
