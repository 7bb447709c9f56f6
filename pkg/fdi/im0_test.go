package fdi

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
)

// buildIM0 builds a raw I&M0 record
func buildIM0(orderID, serial string) []byte {
	data := make([]byte, IM0BlockLength)
	binary.BigEndian.PutUint16(data[0:], IM0BlockType)
	binary.BigEndian.PutUint16(data[2:], IM0BlockLength-4)
	data[4], data[5] = 1, 0

	p := data[6:]
	binary.BigEndian.PutUint16(p[0:], 0x002a)
	copy(p[2:22], []byte(orderID+strings.Repeat(" ", 20-len(orderID))))
	copy(p[22:38], []byte(serial+strings.Repeat(" ", 16-len(serial))))
	binary.BigEndian.PutUint16(p[38:], 3)
	p[40], p[41], p[42], p[43] = 'V', 2, 9, 1
	binary.BigEndian.PutUint16(p[44:], 7)
	binary.BigEndian.PutUint16(p[46:], 0xf600)
	binary.BigEndian.PutUint16(p[48:], 0x0004)
	p[50], p[51] = 1, 1
	binary.BigEndian.PutUint16(p[52:], 0x001e)
	return data
}

func TestDecodeIM0(t *testing.T) {
	im, err := DecodeIM0(buildIM0("6ES7 151-3BA23-0AB0", "S C-X4U421302009"))
	if err != nil {
		t.Fatalf("Failed to decode I&M0: %v", err)
	}

	if im.VendorID != 0x002a {
		t.Errorf("Expected vendor id 0x002a, got %#04x", im.VendorID)
	}
	if im.OrderID != "6ES7 151-3BA23-0AB0" {
		t.Errorf("Unexpected order id %q", im.OrderID)
	}
	if im.SerialNumber != "S C-X4U421302009" {
		t.Errorf("Unexpected serial number %q", im.SerialNumber)
	}
	if im.HardwareRevision != 3 {
		t.Errorf("Expected hardware revision 3, got %d", im.HardwareRevision)
	}
	if im.SoftwareRevision.String() != "V2.9.1" {
		t.Errorf("Expected software revision V2.9.1, got %s", im.SoftwareRevision)
	}
	if im.RevisionCounter != 7 || im.ProfileID != 0xf600 || im.ProfileSpecificType != 4 {
		t.Errorf("Unexpected counters %+v", im)
	}
	if im.IMVersion != [2]uint8{1, 1} || im.IMSupported != 0x001e {
		t.Errorf("Unexpected I&M version/supported %+v", im)
	}

	var buf bytes.Buffer
	im.Print(&buf)
	if !strings.Contains(buf.String(), "I&M0 order id = 6ES7 151-3BA23-0AB0\n") {
		t.Errorf("Unexpected summary:\n%s", buf.String())
	}
}

func TestDecodeIM0Errors(t *testing.T) {
	if _, err := DecodeIM0([]byte{0x00, 0x20}); err == nil {
		t.Error("Expected error for short record")
	}

	data := buildIM0("x", "y")
	data[1] = 0x21
	if _, err := DecodeIM0(data); err == nil {
		t.Error("Expected error for wrong block type")
	}
}
