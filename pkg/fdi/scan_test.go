package fdi

import (
	"bytes"
	"errors"
	"testing"
)

func TestParseScanResult(t *testing.T) {
	devices, err := ParseScanResult([]byte(twoDeviceScan))
	if err != nil {
		t.Fatalf("Failed to parse scan result: %v", err)
	}

	expected := []DeviceRecord{
		{Name: "PN-Device-1", DeviceID: 0x00a1, VendorID: 0x002b},
		{Name: "PN-Device-2", DeviceID: 0x0102, VendorID: 0x002a},
	}
	if len(devices) != len(expected) {
		t.Fatalf("Expected %d devices, got %d", len(expected), len(devices))
	}
	for i := range expected {
		if devices[i] != expected[i] {
			t.Errorf("Device %d: expected %+v, got %+v", i, expected[i], devices[i])
		}
	}
}

func TestParseScanResultIdentification(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		expected DeviceRecord
	}{
		{
			"lower case hex",
			`<N><ConnectionPoint DNSName="PN-Device-1"><Identification DeviceID="00a1" VendorID="002b"/></ConnectionPoint></N>`,
			DeviceRecord{"PN-Device-1", 0x00a1, 0x002b},
		},
		{
			"upper case hex with prefix",
			`<N><ConnectionPoint DNSName="dev"><Identification DeviceID="0xFFFF" VendorID=" 0A "/></ConnectionPoint></N>`,
			DeviceRecord{"dev", 0xffff, 0x000a},
		},
		{
			"first identification wins",
			`<N><ConnectionPoint DNSName="dev"><Other/><Identification DeviceID="1" VendorID="2"/><Identification DeviceID="3" VendorID="4"/></ConnectionPoint></N>`,
			DeviceRecord{"dev", 1, 2},
		},
		{
			"name used verbatim",
			`<N><ConnectionPoint DNSName=" Dev.Name_1 "><Identification DeviceID="10" VendorID="20"/></ConnectionPoint></N>`,
			DeviceRecord{" Dev.Name_1 ", 0x10, 0x20},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			devices, err := ParseScanResult([]byte(tc.doc))
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if len(devices) != 1 {
				t.Fatalf("Expected 1 device, got %d", len(devices))
			}
			if devices[0] != tc.expected {
				t.Errorf("Expected %+v, got %+v", tc.expected, devices[0])
			}
		})
	}
}

func TestParseScanResultDeclaredEncoding(t *testing.T) {
	for _, enc := range []string{"ISO-8859-1", "windows-1252", "UTF-8"} {
		doc := `<?xml version="1.0" encoding="` + enc + `"?>
<Network><ConnectionPoint DNSName="Gerät-1"><Identification DeviceID="00a1" VendorID="002b"/></ConnectionPoint></Network>`

		devices, err := ParseScanResult([]byte(doc))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", enc, err)
		}
		expected := DeviceRecord{Name: "Gerät-1", DeviceID: 0x00a1, VendorID: 0x002b}
		if len(devices) != 1 || devices[0] != expected {
			t.Errorf("%s: expected %+v, got %v", enc, expected, devices)
		}
	}
}

func TestParseScanResultEmpty(t *testing.T) {
	devices, err := ParseScanResult([]byte(`<Network><Gateway/></Network>`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(devices) != 0 {
		t.Errorf("Expected no devices, got %v", devices)
	}
}

func TestParseScanResultNotXML(t *testing.T) {
	for _, doc := range []string{"", "not xml", "<Network><ConnectionPoint>"} {
		devices, err := ParseScanResult([]byte(doc))
		if err == nil {
			t.Errorf("Expected error for %q", doc)
		}
		if devices != nil {
			t.Errorf("Expected no devices for %q, got %v", doc, devices)
		}
		var defects ScanErrors
		if errors.As(err, &defects) {
			t.Errorf("Document error for %q should not be a ScanErrors", doc)
		}
	}
}

func TestParseScanResultMalformedDevices(t *testing.T) {
	doc := `<Network>
  <ConnectionPoint><Identification DeviceID="1" VendorID="2"/></ConnectionPoint>
  <ConnectionPoint DNSName="no-ident"/>
  <ConnectionPoint DNSName="good"><Identification DeviceID="1" VendorID="2"/></ConnectionPoint>
  <ConnectionPoint DNSName="no-vendor"><Identification DeviceID="1"/></ConnectionPoint>
  <ConnectionPoint DNSName="bad-hex"><Identification DeviceID="zz" VendorID="2"/></ConnectionPoint>
  <ConnectionPoint DNSName="too-big"><Identification DeviceID="10000" VendorID="2"/></ConnectionPoint>
</Network>`

	devices, err := ParseScanResult([]byte(doc))
	if len(devices) != 1 || devices[0].Name != "good" {
		t.Errorf("Expected only the good device, got %v", devices)
	}

	var defects ScanErrors
	if !errors.As(err, &defects) {
		t.Fatalf("Expected ScanErrors, got %v", err)
	}
	if len(defects) != 5 {
		t.Fatalf("Expected 5 defects, got %d: %v", len(defects), defects)
	}

	expectedPositions := []int{0, 1, 3, 4, 5}
	for i, d := range defects {
		if d.Position != expectedPositions[i] {
			t.Errorf("Defect %d: expected position %d, got %d", i, expectedPositions[i], d.Position)
		}
	}
	if defects[1].Name != "no-ident" {
		t.Errorf("Expected defect name no-ident, got %q", defects[1].Name)
	}
}

func TestConnectionReference(t *testing.T) {
	crID := ConnectionReference("PN-Device-1")
	if !bytes.Equal(crID, []byte("cr_PN-Device-1")) {
		t.Errorf("Expected cr_PN-Device-1, got %q", crID)
	}

	// Deterministic
	if !bytes.Equal(crID, ConnectionReference("PN-Device-1")) {
		t.Error("Connection reference is not deterministic")
	}
}
