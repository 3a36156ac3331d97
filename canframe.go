package fuzzcan

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
)

type CANFrameType struct {
	Type      int
	Responses int
}

var (
	Incoming = CANFrameType{Type: 0, Responses: 0}
	Outgoing = CANFrameType{Type: 1, Responses: 0}
	// Marks a frame the sender expects a reply to, consumed by SendAndWait
	ResponseRequired = CANFrameType{Type: 2, Responses: 1}
)

type CANFrame struct {
	Identifier uint32
	Extended   bool
	Data       []byte
	FrameType  CANFrameType
}

// NewFrame creates a new CANFrame and copies the data slice
func NewFrame(identifier uint32, data []byte, frameType CANFrameType) *CANFrame {
	d := make([]byte, len(data))
	copy(d, data)
	return &CANFrame{
		Identifier: identifier,
		Data:       d,
		FrameType:  frameType,
	}
}

// NewExtendedFrame creates a new 29-bit CANFrame and copies the data slice
func NewExtendedFrame(identifier uint32, data []byte, frameType CANFrameType) *CANFrame {
	frame := NewFrame(identifier, data, frameType)
	frame.Extended = true
	return frame
}

// Length returns the number of data bytes (DLC)
func (f *CANFrame) Length() int {
	return len(f.Data)
}

var (
	idColor   = color.New(color.FgGreen).SprintfFunc()
	binColor  = color.New(color.FgRed).SprintfFunc()
	charColor = color.New(color.FgHiBlue).SprintfFunc()
)

func (f *CANFrame) String() string {
	return f.format(fmt.Sprintf, fmt.Sprintf, fmt.Sprintf)
}

func (f *CANFrame) ColorString() string {
	return f.format(idColor, binColor, charColor)
}

func (f *CANFrame) format(id, bin, chars func(string, ...interface{}) string) string {
	var out strings.Builder
	switch f.FrameType.Type {
	case 0:
		out.WriteString("<i> || ")
	case 1:
		out.WriteString("<o> || ")
	case 2:
		out.WriteString("<r> || ")
	}
	out.WriteString(id("0x%03X", f.Identifier) + " || ")
	out.WriteString(strconv.Itoa(len(f.Data)) + " || ")

	var hexView strings.Builder
	for i, b := range f.Data {
		hexView.WriteString(fmt.Sprintf("%02X", b))
		if i != len(f.Data)-1 {
			hexView.WriteString(" ")
		}
	}
	out.WriteString(fmt.Sprintf("%-23s", hexView.String()))
	out.WriteString(" || ")

	var binView strings.Builder
	for i, b := range f.Data {
		binView.WriteString(fmt.Sprintf("%08b", b))
		if i != len(f.Data)-1 {
			binView.WriteString(" ")
		}
	}
	out.WriteString(bin("%-72s", binView.String()))
	out.WriteString(" || ")
	out.WriteString(chars("%s", onlyPrintable(f.Data)))
	return out.String()
}

func onlyPrintable(data []byte) string {
	var out strings.Builder
	for _, b := range data {
		if b < 32 || b > 127 {
			out.WriteString("·")
		} else {
			out.WriteByte(b)
		}
	}
	return out.String()
}
