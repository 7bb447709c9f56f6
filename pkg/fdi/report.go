package fdi

import (
	"fmt"
	"io"
	"strings"
)

// PrintDevice writes the identity lines of a discovered device
func PrintDevice(w io.Writer, dev DeviceRecord) {
	fmt.Fprintf(w, "Device name = %s\n", dev.Name)
	fmt.Fprintf(w, "Device id = 0x%04x\n", dev.DeviceID)
	fmt.Fprintf(w, "Vendor id = 0x%04x\n", dev.VendorID)
}

// PrintReadData writes the length of data followed by one line per byte:
// the zero-padded index, the hex value and the byte as a raw character code.
// Non-printable bytes are written as-is.
func PrintReadData(w io.Writer, data []byte) {
	fmt.Fprintf(w, "Read data length: %d\n", len(data))
	for i, b := range data {
		fmt.Fprintf(w, "[%03d] %02x %c\n", i, b, rune(b))
	}
}

// HexDump returns a hex dump of data, 16 bytes per line.
//
//	0000: 00 20 00 38 01 00 00 2A  36 45 53 37 20 31 35 31  . .8...*6ES7 151
func HexDump(data []byte) string {
	if len(data) == 0 {
		return "    (empty)"
	}

	var sb strings.Builder
	for offset := 0; offset < len(data); offset += 16 {
		sb.WriteString(fmt.Sprintf("    %04X: ", offset))

		for i := 0; i < 16; i++ {
			if i == 8 {
				sb.WriteString(" ")
			}
			if offset+i < len(data) {
				sb.WriteString(fmt.Sprintf("%02X ", data[offset+i]))
			} else {
				sb.WriteString("   ")
			}
		}
		sb.WriteString(" ")

		for i := 0; i < 16 && offset+i < len(data); i++ {
			b := data[offset+i]
			if b >= 32 && b < 127 {
				sb.WriteByte(b)
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteString("\n")
	}

	return strings.TrimSuffix(sb.String(), "\n")
}
