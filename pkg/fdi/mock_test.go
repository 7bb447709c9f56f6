package fdi

import (
	"context"
	"fmt"

	"github.com/gopcua/opcua/ua"
)

// mockCall records one remote method call
type mockCall struct {
	object string
	method string
	args   []*ua.Variant
}

// mockConn implements Conn for testing
type mockConn struct {
	namespaces map[string]uint16
	responses  map[string]func(args []*ua.Variant) ([]*ua.Variant, error)
	calls      []mockCall
	closed     int
	closeErr   error
}

func newMockConn() *mockConn {
	return &mockConn{
		namespaces: map[string]uint16{
			NamespaceSmartLink: 2,
			NamespaceFDI7:      3,
		},
		responses: make(map[string]func(args []*ua.Variant) ([]*ua.Variant, error)),
	}
}

// respond makes method return the given outputs
func (m *mockConn) respond(method string, outputs ...interface{}) {
	m.responses[method] = func([]*ua.Variant) ([]*ua.Variant, error) {
		out := make([]*ua.Variant, len(outputs))
		for i, o := range outputs {
			out[i] = ua.MustVariant(o)
		}
		return out, nil
	}
}

// fail makes method return err
func (m *mockConn) fail(method string, err error) {
	m.responses[method] = func([]*ua.Variant) ([]*ua.Variant, error) {
		return nil, err
	}
}

// succeed sets up a server where every method returns success
func (m *mockConn) succeed(scanDoc string, readData []byte) {
	m.respond(MethodInitialize, int32(0))
	m.respond(MethodScan, scanDoc, int32(0))
	m.respond(MethodConnect, int32(0))
	m.respond(MethodTransfer, readData, []int32{0}, int32(0))
	m.respond(MethodDisconnect, int32(0))
}

// NamespaceIndex looks uri up in the namespace array built from m.namespaces
func (m *mockConn) NamespaceIndex(ctx context.Context, uri string) (uint16, error) {
	nsa := []string{"http://opcfoundation.org/UA/"}
	for ns, idx := range m.namespaces {
		for len(nsa) <= int(idx) {
			nsa = append(nsa, "")
		}
		nsa[idx] = ns
	}
	return findNamespace(nsa, uri)
}

func (m *mockConn) CallMethod(ctx context.Context, object *ua.NodeID, method *ua.QualifiedName, args ...*ua.Variant) ([]*ua.Variant, error) {
	m.calls = append(m.calls, mockCall{object: object.String(), method: method.Name, args: args})
	if method.NamespaceIndex != m.namespaces[NamespaceFDI7] {
		return nil, fmt.Errorf("method %s in namespace %d", method.Name, method.NamespaceIndex)
	}
	resp, ok := m.responses[method.Name]
	if !ok {
		return nil, ua.StatusBadMethodInvalid
	}
	return resp(args)
}

func (m *mockConn) Close(ctx context.Context) error {
	m.closed++
	return m.closeErr
}

// methods returns the names of the recorded calls in order
func (m *mockConn) methods() []string {
	names := make([]string, len(m.calls))
	for i, c := range m.calls {
		names[i] = c.method
	}
	return names
}

func dialMock(m *mockConn) Dialer {
	return func(ctx context.Context) (Conn, error) {
		return m, nil
	}
}

const twoDeviceScan = `<Network>
  <ConnectionPoint DNSName="PN-Device-1">
    <Identification DeviceID="00a1" VendorID="002b"/>
  </ConnectionPoint>
  <Gateway Name="ignored"/>
  <ConnectionPoint DNSName="PN-Device-2">
    <Identification DeviceID="0102" VendorID="002a"/>
  </ConnectionPoint>
</Network>`
