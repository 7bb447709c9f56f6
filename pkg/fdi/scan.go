package fdi

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// XML element and attribute names of a scan result
const (
	tagConnectionPoint = "ConnectionPoint"
	tagIdentification  = "Identification"
	attrDNSName        = "DNSName"
	attrDeviceID       = "DeviceID"
	attrVendorID       = "VendorID"
)

// DeviceRecord identifies one PROFINET device found by a scan
type DeviceRecord struct {
	Name     string
	DeviceID uint16
	VendorID uint16
}

// ConnectionReference returns the crId used to correlate Connect, Transfer
// and Disconnect for a device: the bytes of "cr_" + name.
func ConnectionReference(name string) []byte {
	return []byte("cr_" + name)
}

// MalformedScanResultError describes a ConnectionPoint that could not be turned into a DeviceRecord
type MalformedScanResultError struct {
	Position int    // 0-based position among ConnectionPoint elements
	Name     string // DNSName, if present
	Reason   string
}

func (e *MalformedScanResultError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("malformed connection point %d (%s): %s", e.Position, e.Name, e.Reason)
	}
	return fmt.Sprintf("malformed connection point %d: %s", e.Position, e.Reason)
}

// ScanErrors collects the per-device defects of one scan result
type ScanErrors []*MalformedScanResultError

func (e ScanErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// xmlNode is a generic element: name, attributes and element children
type xmlNode struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []xmlNode  `xml:",any"`
}

func (n *xmlNode) attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// ParseScanResult extracts the devices of a scan result document in document order.
//
// A document that is not well-formed XML is an error and no records are
// returned. ConnectionPoint elements that lack a name, an Identification
// child or valid ids are skipped and reported through a ScanErrors value,
// while the remaining records are still returned.
func ParseScanResult(doc []byte) ([]DeviceRecord, error) {
	var root xmlNode
	dec := xml.NewDecoder(bytes.NewReader(doc))
	dec.CharsetReader = passThroughCharset
	if err := dec.Decode(&root); err != nil {
		return nil, errors.Wrap(err, "parse scan result")
	}

	var (
		records []DeviceRecord
		defects ScanErrors
		pos     int
	)
	for i := range root.Children {
		cp := &root.Children[i]
		if cp.XMLName.Local != tagConnectionPoint {
			continue
		}

		rec, err := parseConnectionPoint(pos, cp)
		pos++
		if err != nil {
			defects = append(defects, err)
			continue
		}
		records = append(records, rec)
	}

	if len(defects) > 0 {
		return records, defects
	}
	return records, nil
}

// passThroughCharset ignores the declared encoding. The document arrives as
// an OPC-UA String, which is already UTF-8.
func passThroughCharset(_ string, input io.Reader) (io.Reader, error) {
	return input, nil
}

func parseConnectionPoint(pos int, cp *xmlNode) (DeviceRecord, *MalformedScanResultError) {
	name, ok := cp.attr(attrDNSName)
	if !ok {
		return DeviceRecord{}, &MalformedScanResultError{Position: pos, Reason: "missing " + attrDNSName + " attribute"}
	}
	malformed := func(format string, args ...interface{}) *MalformedScanResultError {
		return &MalformedScanResultError{Position: pos, Name: name, Reason: fmt.Sprintf(format, args...)}
	}

	// only the first Identification child counts
	var ident *xmlNode
	for i := range cp.Children {
		if cp.Children[i].XMLName.Local == tagIdentification {
			ident = &cp.Children[i]
			break
		}
	}
	if ident == nil {
		return DeviceRecord{}, malformed("missing %s element", tagIdentification)
	}

	deviceID, err := hexAttr(ident, attrDeviceID)
	if err != nil {
		return DeviceRecord{}, malformed("%v", err)
	}
	vendorID, err := hexAttr(ident, attrVendorID)
	if err != nil {
		return DeviceRecord{}, malformed("%v", err)
	}

	return DeviceRecord{Name: name, DeviceID: deviceID, VendorID: vendorID}, nil
}

// hexAttr parses a base-16 attribute such as "00a1" or "0x00A1" into 16 bits
func hexAttr(n *xmlNode, name string) (uint16, error) {
	raw, ok := n.attr(name)
	if !ok {
		return 0, fmt.Errorf("missing %s attribute", name)
	}

	s := strings.TrimSpace(raw)
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}

	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return uint16(v), nil
}
