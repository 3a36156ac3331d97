package fuzzcan

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"strconv"
	"time"

	"go.bug.st/serial"
)

// SLCan talks the Lawicel ASCII protocol to a Canable style adapter over a
// serial port.
type SLCan struct {
	BaseAdapter
	port   serial.Port
	closed bool
}

func init() {
	if err := RegisterAdapter(&AdapterInfo{
		Name:               "slcan",
		Description:        "Canable SLCan adapter",
		RequiresSerialPort: true,
		New:                NewSLCan,
	}); err != nil {
		panic(err)
	}
}

func NewSLCan(cfg *AdapterConfig) (Adapter, error) {
	return &SLCan{
		BaseAdapter: NewBaseAdapter("slcan", cfg),
	}, nil
}

func (sl *SLCan) Open(ctx context.Context) error {
	mode := &serial.Mode{
		BaudRate: sl.cfg.PortBaudrate,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(sl.cfg.Port, mode)
	if err != nil {
		return fmt.Errorf("failed to open com port %q : %v", sl.cfg.Port, err)
	}
	p.SetReadTimeout(3 * time.Millisecond)
	sl.port = p

	p.ResetOutputBuffer()
	p.ResetInputBuffer()

	go sl.sendManager(ctx)
	go sl.recvManager(ctx)

	if code, ok := slcanRate(sl.cfg.CANRate); ok {
		p.Write([]byte(code + "\r"))
	} else {
		sl.cfg.OnMessage(fmt.Sprintf("unsupported CAN rate %.3f, leaving adapter default", sl.cfg.CANRate))
	}
	time.Sleep(10 * time.Millisecond)
	p.Write([]byte("O\r"))
	return nil
}

func slcanRate(kbit float64) (string, bool) {
	switch kbit {
	case 10:
		return "S0", true
	case 20:
		return "S1", true
	case 50:
		return "S2", true
	case 100:
		return "S3", true
	case 125:
		return "S4", true
	case 250:
		return "S5", true
	case 500:
		return "S6", true
	case 750:
		return "S7", true
	case 1000:
		return "S8", true
	}
	return "", false
}

func (sl *SLCan) Close() error {
	sl.BaseAdapter.Close()
	sl.closed = true
	time.Sleep(10 * time.Millisecond)
	sl.port.Write([]byte("C\r"))
	time.Sleep(10 * time.Millisecond)
	return sl.port.Close()
}

func (sl *SLCan) sendManager(ctx context.Context) {
	outBuf := make([]byte, 0, 32)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sl.closeChan:
			return
		case frame := <-sl.sendChan:
			outBuf = sl.encodeFrame(outBuf[:0], frame)
			if _, err := sl.port.Write(outBuf); err != nil {
				sl.SetError(fmt.Errorf("failed to write to com port: %w", err))
			}
			if sl.cfg.Debug {
				log.Println(">> " + string(outBuf))
			}
		}
	}
}

// encodeFrame renders a standard 11-bit frame in SLCAN form:
// 't' + 3 hex digit id + length nibble + data hex + '\r'
func (sl *SLCan) encodeFrame(buf []byte, frame *CANFrame) []byte {
	id := frame.Identifier & 0x7FF
	buf = append(buf, 't',
		hexNibble(byte(id>>8)&0xF),
		hexNibble(byte(id>>4)&0xF),
		hexNibble(byte(id)&0xF),
		hexNibble(byte(frame.Length())&0xF),
	)
	for _, b := range frame.Data {
		buf = append(buf, hexNibble(b>>4), hexNibble(b&0xF))
	}
	return append(buf, '\r')
}

func hexNibble(n byte) byte {
	if n < 10 {
		return '0' + n
	}
	return 'A' + (n - 10)
}

func (sl *SLCan) recvManager(ctx context.Context) {
	buf := make([]byte, 0, 1024)
	readBuf := make([]byte, 16)
	for ctx.Err() == nil {
		n, err := sl.port.Read(readBuf)
		if err != nil {
			if !sl.closed {
				sl.SetError(fmt.Errorf("failed to read com port: %w", err))
			}
			return
		}
		if n == 0 {
			continue
		}
		buf = sl.parse(ctx, buf, readBuf[:n])
	}
}

// parse consumes read bytes and returns any remaining partial message.
func (sl *SLCan) parse(ctx context.Context, buf, readBuf []byte) []byte {
	for _, b := range readBuf {
		if b != '\r' {
			buf = append(buf, b)
			continue
		}
		if len(buf) == 0 {
			continue
		}
		switch buf[0] {
		case 't':
			if sl.cfg.Debug {
				log.Printf("<< %s", string(buf))
			}
			f, err := sl.decodeFrame(buf)
			if err != nil {
				sl.cfg.OnMessage(fmt.Sprintf("%v: %X", err, buf))
				buf = buf[:0]
				continue
			}
			select {
			case sl.recvChan <- f:
			case <-ctx.Done():
				return buf[:0]
			default:
				sl.SetError(ErrDroppedFrame)
			}
		default:
			sl.cfg.OnMessage("unknown>> " + string(buf))
		}
		buf = buf[:0]
	}
	return buf
}

func (*SLCan) decodeFrame(buf []byte) (*CANFrame, error) {
	if len(buf) < 5 {
		return nil, fmt.Errorf("truncated frame")
	}
	id, err := strconv.ParseUint(string(buf[1:4]), 16, 32)
	if err != nil {
		return nil, fmt.Errorf("failed to decode identifier: %v", err)
	}
	dataLen, err := strconv.ParseUint(string(buf[4:5]), 16, 8)
	if err != nil {
		return nil, fmt.Errorf("failed to decode data length: %v", err)
	}
	if dataLen > 8 || len(buf) < 5+int(dataLen*2) {
		return nil, fmt.Errorf("invalid data length: %d", dataLen)
	}
	data, err := hex.DecodeString(string(buf[5 : 5+dataLen*2]))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame body: %v", err)
	}
	return NewFrame(uint32(id), data, Incoming), nil
}
