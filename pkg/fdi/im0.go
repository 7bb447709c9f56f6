package fdi

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// I&M0 block constants
const (
	IM0BlockType   = 0x0020
	IM0BlockLength = 60 // header (6) + payload (54)
)

// IM0 is the decoded Identification & Maintenance 0 record of a PROFINET device
type IM0 struct {
	BlockType           uint16
	BlockVersion        [2]uint8
	VendorID            uint16
	OrderID             string
	SerialNumber        string
	HardwareRevision    uint16
	SoftwareRevision    SoftwareRevision
	RevisionCounter     uint16
	ProfileID           uint16
	ProfileSpecificType uint16
	IMVersion           [2]uint8
	IMSupported         uint16
}

// SoftwareRevision is the prefix letter and three revision numbers, e.g. V2.3.1
type SoftwareRevision struct {
	Prefix     byte
	Functional uint8
	BugFix     uint8
	Internal   uint8
}

func (r SoftwareRevision) String() string {
	return fmt.Sprintf("%c%d.%d.%d", r.Prefix, r.Functional, r.BugFix, r.Internal)
}

// DecodeIM0 decodes a raw I&M0 record, starting with its block header
func DecodeIM0(data []byte) (*IM0, error) {
	if len(data) < IM0BlockLength {
		return nil, fmt.Errorf("I&M0 record too short: %d bytes", len(data))
	}

	blockType, _ := decodeUint16(data[0:])
	if blockType != IM0BlockType {
		return nil, fmt.Errorf("unexpected block type %#04x", blockType)
	}

	im := &IM0{BlockType: blockType}
	im.BlockVersion = [2]uint8{data[4], data[5]}

	p := data[6:]
	im.VendorID, _ = decodeUint16(p[0:])
	im.OrderID = decodeVisibleString(p[2:22])
	im.SerialNumber = decodeVisibleString(p[22:38])
	im.HardwareRevision, _ = decodeUint16(p[38:])
	im.SoftwareRevision = SoftwareRevision{
		Prefix:     p[40],
		Functional: p[41],
		BugFix:     p[42],
		Internal:   p[43],
	}
	im.RevisionCounter, _ = decodeUint16(p[44:])
	im.ProfileID, _ = decodeUint16(p[46:])
	im.ProfileSpecificType, _ = decodeUint16(p[48:])
	im.IMVersion = [2]uint8{p[50], p[51]}
	im.IMSupported, _ = decodeUint16(p[52:])

	return im, nil
}

// Print writes a human-readable summary of the record
func (im *IM0) Print(w io.Writer) {
	fmt.Fprintf(w, "I&M0 vendor id = 0x%04x\n", im.VendorID)
	fmt.Fprintf(w, "I&M0 order id = %s\n", im.OrderID)
	fmt.Fprintf(w, "I&M0 serial number = %s\n", im.SerialNumber)
	fmt.Fprintf(w, "I&M0 hardware revision = %d\n", im.HardwareRevision)
	fmt.Fprintf(w, "I&M0 software revision = %s\n", im.SoftwareRevision)
	fmt.Fprintf(w, "I&M0 revision counter = %d\n", im.RevisionCounter)
	fmt.Fprintf(w, "I&M0 profile id = 0x%04x/0x%04x\n", im.ProfileID, im.ProfileSpecificType)
	fmt.Fprintf(w, "I&M0 version = %d.%d\n", im.IMVersion[0], im.IMVersion[1])
	fmt.Fprintf(w, "I&M0 supported = 0x%04x\n", im.IMSupported)
}

// decodeUint16 decodes a big-endian PROFINET Unsigned16
func decodeUint16(data []byte) (uint16, error) {
	if len(data) < 2 {
		return 0, errors.New("not enough data to decode uint16")
	}
	return binary.BigEndian.Uint16(data), nil
}

// decodeVisibleString trims the blank padding of a fixed-size VisibleString
func decodeVisibleString(data []byte) string {
	return strings.TrimRight(string(data), " \x00")
}
