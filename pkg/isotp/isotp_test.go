package isotp

import (
	"bytes"
	"testing"
	"time"

	"github.com/fucytech/fuzzcan"
)

func TestSegmentSingleFrame(t *testing.T) {
	for length := 1; length <= 7; length++ {
		payload := make([]byte, length)
		for i := range payload {
			payload[i] = byte(i + 1)
		}
		segments, err := Segment(payload)
		if err != nil {
			t.Fatalf("Segment(%d bytes) error: %v", length, err)
		}
		if len(segments) != 1 {
			t.Fatalf("Segment(%d bytes) = %d frames, want 1", length, len(segments))
		}
		sf := segments[0]
		if len(sf) != 8 {
			t.Fatalf("frame length = %d, want 8", len(sf))
		}
		if sf[0] != byte(length) {
			t.Errorf("PCI = 0x%02X, want 0x%02X", sf[0], length)
		}
		if !bytes.Equal(sf[1:1+length], payload) {
			t.Errorf("payload = % X, want % X", sf[1:1+length], payload)
		}
		for _, b := range sf[1+length:] {
			if b != Filler {
				t.Errorf("padding byte = 0x%02X, want 0x%02X", b, Filler)
			}
		}
	}
}

func TestSegmentMultiFrameRoundTrip(t *testing.T) {
	for _, length := range []int{8, 13, 14, 20, 21, 62, 100, 4095} {
		payload := make([]byte, length)
		for i := range payload {
			payload[i] = byte(i)
		}
		segments, err := Segment(payload)
		if err != nil {
			t.Fatalf("Segment(%d bytes) error: %v", length, err)
		}
		wantFrames := 1 + (length-6+6)/7 // 1 + ceil((length-6)/7)
		if len(segments) != wantFrames {
			t.Fatalf("Segment(%d bytes) = %d frames, want %d", length, len(segments), wantFrames)
		}

		ff := segments[0]
		if ff[0]>>4 != FrameFirst {
			t.Fatalf("first frame marker = 0x%X", ff[0]>>4)
		}
		gotLen := int(ff[0]&0x0F)<<8 | int(ff[1])
		if gotLen != length {
			t.Fatalf("first frame length = %d, want %d", gotLen, length)
		}

		reassembled := append([]byte{}, ff[2:]...)
		wantSeq := byte(1)
		for _, cf := range segments[1:] {
			if cf[0]>>4 != FrameConsecutive {
				t.Fatalf("consecutive frame marker = 0x%X", cf[0]>>4)
			}
			if cf[0]&0x0F != wantSeq {
				t.Fatalf("sequence number = %d, want %d", cf[0]&0x0F, wantSeq)
			}
			wantSeq = (wantSeq + 1) & 0x0F
			reassembled = append(reassembled, cf[1:]...)
		}
		if !bytes.Equal(reassembled[:length], payload) {
			t.Errorf("reassembled payload differs for length %d", length)
		}
		for _, b := range reassembled[length:] {
			if b != Filler {
				t.Errorf("trailer byte = 0x%02X, want 0x%02X", b, Filler)
			}
		}
	}
}

func TestSegmentSequenceWrapsAfter15(t *testing.T) {
	// 6 + 16*7 = 118 bytes: first frame plus 16 consecutive frames,
	// the last one wrapping to sequence number 0
	segments, err := Segment(make([]byte, 118))
	if err != nil {
		t.Fatal(err)
	}
	if len(segments) != 17 {
		t.Fatalf("got %d frames, want 17", len(segments))
	}
	last := segments[16]
	if last[0] != FrameConsecutive<<4|0x0 {
		t.Errorf("wrapped PCI = 0x%02X, want 0x20", last[0])
	}
	if segments[15][0] != FrameConsecutive<<4|0xF {
		t.Errorf("frame 15 PCI = 0x%02X, want 0x2F", segments[15][0])
	}
}

func TestSegmentRejects(t *testing.T) {
	if _, err := Segment(nil); err != ErrEmptyPayload {
		t.Errorf("Segment(nil) error = %v, want ErrEmptyPayload", err)
	}
	if _, err := Segment(make([]byte, 4096)); err != ErrPayloadTooLarge {
		t.Errorf("Segment(4096) error = %v, want ErrPayloadTooLarge", err)
	}
}

func TestParseSingle(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want []byte
		ok   bool
	}{
		{"empty", nil, nil, false},
		{"plain request", []byte{0x03, 0x22, 0xF1, 0x90, 0xAA, 0xAA, 0xAA, 0xAA}, []byte{0x22, 0xF1, 0x90}, true},
		{"unpadded", []byte{0x02, 0x3E, 0x00}, []byte{0x3E, 0x00}, true},
		{"first frame", []byte{0x10, 0x15, 0x62, 0xF1, 0x90, 0x46, 0x55, 0x43}, nil, false},
		{"consecutive frame", []byte{0x21, 0x59, 0x54, 0x45, 0x43, 0x48, 0x2D, 0x56}, nil, false},
		{"length nibble zero", []byte{0x00, 0x22, 0xF1, 0x90}, nil, false},
		{"length exceeds data", []byte{0x05, 0x22, 0xF1}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseSingle(tt.data)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && !bytes.Equal(got, tt.want) {
				t.Errorf("payload = % X, want % X", got, tt.want)
			}
		})
	}
}

type captureSender struct {
	frames chan *fuzzcan.CANFrame
}

func (c *captureSender) Send(identifier uint32, data []byte, typ fuzzcan.CANFrameType) error {
	c.frames <- fuzzcan.NewFrame(identifier, data, typ)
	return nil
}

func (c *captureSender) collect(t *testing.T, n int) []*fuzzcan.CANFrame {
	t.Helper()
	out := make([]*fuzzcan.CANFrame, 0, n)
	for len(out) < n {
		select {
		case f := <-c.frames:
			out = append(out, f)
		case <-time.After(time.Second):
			t.Fatalf("timed out after %d of %d frames", len(out), n)
		}
	}
	return out
}

func TestTransmitterEmitsInOrder(t *testing.T) {
	sender := &captureSender{frames: make(chan *fuzzcan.CANFrame, 32)}
	tx := NewTransmitter(sender, 0x7E8, WithSeparationTime(0), WithGrantDelay(0))
	defer tx.Close()

	payload := []byte{0x62, 0xF1, 0x90, 'F', 'U', 'C', 'Y', 'T', 'E', 'C', 'H'}
	if err := tx.Send(payload); err != nil {
		t.Fatal(err)
	}

	frames := sender.collect(t, 2)
	for _, f := range frames {
		if f.Identifier != 0x7E8 {
			t.Errorf("identifier = 0x%03X, want 0x7E8", f.Identifier)
		}
		if f.Length() != 8 {
			t.Errorf("frame length = %d, want 8", f.Length())
		}
	}
	if frames[0].Data[0]>>4 != FrameFirst {
		t.Errorf("first emitted frame marker = 0x%X", frames[0].Data[0]>>4)
	}
	if frames[1].Data[0] != FrameConsecutive<<4|1 {
		t.Errorf("second emitted frame PCI = 0x%02X, want 0x21", frames[1].Data[0])
	}
}

func TestTransmitterSingleFrame(t *testing.T) {
	sender := &captureSender{frames: make(chan *fuzzcan.CANFrame, 4)}
	tx := NewTransmitter(sender, 0x7E8)
	defer tx.Close()

	if err := tx.Send([]byte{0x7F, 0x22, 0x31}); err != nil {
		t.Fatal(err)
	}
	f := sender.collect(t, 1)[0]
	want := []byte{0x03, 0x7F, 0x22, 0x31, Filler, Filler, Filler, Filler}
	if !bytes.Equal(f.Data, want) {
		t.Errorf("frame = % X, want % X", f.Data, want)
	}
}

func TestTransmitterSendRejects(t *testing.T) {
	sender := &captureSender{frames: make(chan *fuzzcan.CANFrame, 4)}
	tx := NewTransmitter(sender, 0x7E8)
	if err := tx.Send(nil); err != ErrEmptyPayload {
		t.Errorf("Send(nil) error = %v, want ErrEmptyPayload", err)
	}
	tx.Close()
	if err := tx.Send([]byte{0x01}); err != ErrClosed {
		t.Errorf("Send after Close error = %v, want ErrClosed", err)
	}
}
