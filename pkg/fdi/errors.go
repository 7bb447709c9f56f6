package fdi

import (
	"context"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/gopcua/opcua/ua"
	"github.com/pkg/errors"
)

// Error classes for transport and session failures
var (
	// ErrConnection reports a refused or unreachable endpoint
	ErrConnection = errors.New("connection failed")
	// ErrTimeout reports an exceeded connect or request deadline
	ErrTimeout = errors.New("timeout")
	// ErrCommunication reports any other transport or protocol fault
	ErrCommunication = errors.New("communication error")
)

// ErrNamespaceNotFound reports a namespace URI missing from the server's
// namespace array. It is not a transport error.
var ErrNamespaceNotFound = errors.New("namespace not found")

// CommunicationError wraps a transport failure with the operation that caused it.
type CommunicationError struct {
	Op   string
	Kind error
	Err  error
}

func (e *CommunicationError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *CommunicationError) Unwrap() error { return e.Err }

// Is matches the error class sentinel.
func (e *CommunicationError) Is(target error) bool { return target == e.Kind }

// classify wraps err into a CommunicationError of the matching class.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *CommunicationError
	if errors.As(err, &ce) {
		return err
	}
	return &CommunicationError{Op: op, Kind: errorKind(err), Err: err}
}

func errorKind(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ua.StatusBadTimeout) {
		return ErrTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return ErrConnection
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return ErrConnection
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrConnection
	}

	// gopcua reports some dial failures only as text
	if strings.Contains(err.Error(), "connection refused") {
		return ErrConnection
	}

	return ErrCommunication
}

// IsTransportError reports whether err belongs to one of the transport error classes.
func IsTransportError(err error) bool {
	return errors.Is(err, ErrConnection) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrCommunication)
}
