package fdi

import (
	"context"
	"fmt"
	"reflect"

	"github.com/gopcua/opcua/ua"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"golang.org/x/time/rate"
)

// Status is a service-level result code returned by an FDI method. Zero is success.
type Status int32

// OK reports whether the status is success
func (s Status) OK() bool { return s == 0 }

// Transfer operations
const (
	OperationRead  = "READ"
	OperationWrite = "WRITE"
)

// Record address of I&M0
const (
	IM0Slot    uint16 = 0
	IM0Subslot uint16 = 1
	IM0Index   uint16 = 0xAFF0
	IM0API     uint32 = 0
)

// ScanResult is the output of the Scan method
type ScanResult struct {
	Document string
	Status   Status
}

// TransferRequest addresses one record of a connected device
type TransferRequest struct {
	CRID      []byte
	Operation string
	Slot      uint16
	Subslot   uint16
	Index     uint16
	API       uint32
	WriteData []byte
}

// IM0Request returns a READ of the I&M0 record
func IM0Request(crID []byte) TransferRequest {
	return TransferRequest{
		CRID:      crID,
		Operation: OperationRead,
		Slot:      IM0Slot,
		Subslot:   IM0Subslot,
		Index:     IM0Index,
		API:       IM0API,
	}
}

// TransferResult is the output of the Transfer method
type TransferResult struct {
	Data        []byte
	ResultCodes []int32
	Status      Status
}

// Client issues the FDI methods against the resolved service nodes
type Client struct {
	caller  Caller
	nodes   *ServiceNodes
	log     logrus.FieldLogger
	limiter *rate.Limiter
}

// NewClient creates a new FDI method client.
// A nil limiter means calls are not paced.
func NewClient(caller Caller, nodes *ServiceNodes, log logrus.FieldLogger, limiter *rate.Limiter) *Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Client{
		caller:  caller,
		nodes:   nodes,
		log:     log,
		limiter: limiter,
	}
}

// Initialize prepares the communication server
func (c *Client) Initialize(ctx context.Context) (Status, error) {
	out, err := c.call(ctx, c.nodes.CommunicationServer, MethodInitialize)
	if err != nil {
		return 0, err
	}
	return statusOutput(MethodInitialize, out, 1)
}

// Scan asks the communication device for the devices on the network
func (c *Client) Scan(ctx context.Context) (*ScanResult, error) {
	out, err := c.call(ctx, c.nodes.CommDevice, MethodScan)
	if err != nil {
		return nil, err
	}
	status, err := statusOutput(MethodScan, out, 2)
	if err != nil {
		return nil, err
	}
	doc, err := documentOutput(out[0])
	if err != nil {
		return nil, &CommunicationError{Op: MethodScan, Kind: ErrCommunication, Err: err}
	}
	return &ScanResult{Document: doc, Status: status}, nil
}

// Connect establishes the connection identified by crID to a device
func (c *Client) Connect(ctx context.Context, crID []byte, dev DeviceRecord) (Status, error) {
	out, err := c.call(ctx, c.nodes.ServiceProvider, MethodConnect,
		ua.MustVariant(crID),
		ua.MustVariant(dev.Name),
		ua.MustVariant(dev.DeviceID),
		ua.MustVariant(dev.VendorID),
	)
	if err != nil {
		return 0, err
	}
	return statusOutput(MethodConnect, out, 1)
}

// Transfer reads or writes a record over an established connection
func (c *Client) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	writeData := req.WriteData
	if writeData == nil {
		writeData = []byte{}
	}

	out, err := c.call(ctx, c.nodes.ServiceProvider, MethodTransfer,
		ua.MustVariant(req.CRID),
		ua.MustVariant(req.Operation),
		ua.MustVariant(req.Slot),
		ua.MustVariant(req.Subslot),
		ua.MustVariant(req.Index),
		ua.MustVariant(req.API),
		ua.MustVariant(writeData),
	)
	if err != nil {
		return nil, err
	}

	status, err := statusOutput(MethodTransfer, out, 3)
	if err != nil {
		return nil, err
	}

	data, err := bytesOutput(out[0])
	if err != nil {
		return nil, &CommunicationError{Op: MethodTransfer, Kind: ErrCommunication, Err: err}
	}
	codes, err := codesOutput(out[1])
	if err != nil {
		return nil, &CommunicationError{Op: MethodTransfer, Kind: ErrCommunication, Err: err}
	}

	return &TransferResult{Data: data, ResultCodes: codes, Status: status}, nil
}

// Disconnect releases the connection identified by crID
func (c *Client) Disconnect(ctx context.Context, crID []byte) (Status, error) {
	out, err := c.call(ctx, c.nodes.ServiceProvider, MethodDisconnect, ua.MustVariant(crID))
	if err != nil {
		return 0, err
	}
	return statusOutput(MethodDisconnect, out, 1)
}

func (c *Client) call(ctx context.Context, object *ua.NodeID, method string, args ...*ua.Variant) ([]*ua.Variant, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, classify(method, err)
	}

	c.log.WithFields(logrus.Fields{
		"method": method,
		"object": object.String(),
		"args":   len(args),
	}).Debug("calling method")

	out, err := c.caller.CallMethod(ctx, object, c.nodes.Method(method), args...)
	if err != nil {
		return nil, classify(method, err)
	}

	c.log.WithFields(logrus.Fields{
		"method":  method,
		"outputs": len(out),
	}).Debug("method returned")
	return out, nil
}

// statusOutput checks the output count and converts the last output to a Status
func statusOutput(method string, out []*ua.Variant, want int) (Status, error) {
	if len(out) < want {
		return 0, &CommunicationError{
			Op:   method,
			Kind: ErrCommunication,
			Err:  fmt.Errorf("expected %d output arguments, got %d", want, len(out)),
		}
	}
	status, err := toStatus(variantValue(out[len(out)-1]))
	if err != nil {
		return 0, &CommunicationError{Op: method, Kind: ErrCommunication, Err: err}
	}
	return status, nil
}

func variantValue(v *ua.Variant) interface{} {
	if v == nil {
		return nil
	}
	return v.Value()
}

// toStatus converts any integer typed value to a Status
func toStatus(v interface{}) (Status, error) {
	switch s := v.(type) {
	case nil:
		return 0, fmt.Errorf("missing status output")
	case ua.StatusCode:
		return Status(int32(uint32(s))), nil
	case uint32:
		return Status(int32(s)), nil
	case bool, string, []byte:
		return 0, fmt.Errorf("status output has type %T", v)
	}
	n, err := cast.ToInt32E(v)
	if err != nil {
		return 0, fmt.Errorf("status output: %w", err)
	}
	return Status(n), nil
}

func documentOutput(v *ua.Variant) (string, error) {
	switch d := variantValue(v).(type) {
	case string:
		return d, nil
	case ua.XMLElement:
		return string(d), nil
	case []byte:
		return string(d), nil
	case *ua.LocalizedText:
		if d == nil {
			return "", nil
		}
		return d.Text, nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("scan output has type %T", d)
	}
}

func bytesOutput(v *ua.Variant) ([]byte, error) {
	switch d := variantValue(v).(type) {
	case []byte:
		return d, nil
	case nil:
		return nil, nil
	case string:
		return []byte(d), nil
	default:
		return nil, fmt.Errorf("read data has type %T", d)
	}
}

func codesOutput(v *ua.Variant) ([]int32, error) {
	raw := variantValue(v)
	if raw == nil {
		return nil, nil
	}
	items := reflect.ValueOf(raw)
	if items.Kind() != reflect.Slice {
		return nil, fmt.Errorf("result codes have type %T", raw)
	}
	codes := make([]int32, 0, items.Len())
	for i := 0; i < items.Len(); i++ {
		s, err := toStatus(items.Index(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("result codes: %w", err)
		}
		codes = append(codes, int32(s))
	}
	return codes, nil
}
