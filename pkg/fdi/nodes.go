package fdi

import (
	"context"

	"github.com/gopcua/opcua/ua"
	"github.com/pkg/errors"
)

// Namespace URIs registered by the smartLink FDI communication server
const (
	NamespaceSmartLink = "urn://linkhost/Softing/smartLinkHW-PN"
	NamespaceFDI7      = "http://fdi-cooperation.com/OPCUA/FDI7/"
)

// String identifiers of the FDI service objects in the smartLink namespace
const (
	NodeCommunicationServer = "FDI:CS|MS"
	NodeCommDevice          = "FDI:CS|SD|CD|MS"
	NodeServiceProvider     = "FDI:CS|SD|CD|SP|MS"
)

// Method browse names in the FDI7 namespace
const (
	MethodInitialize = "Initialize"
	MethodScan       = "Scan"
	MethodConnect    = "Connect"
	MethodTransfer   = "Transfer"
	MethodDisconnect = "Disconnect"
)

// ServiceNodes holds the resolved object nodes and the namespace index
// used to qualify method names. Valid only while the session is open.
type ServiceNodes struct {
	CommunicationServer *ua.NodeID
	CommDevice          *ua.NodeID
	ServiceProvider     *ua.NodeID
	MethodNamespace     uint16
}

// NamespaceResolver maps a namespace URI to the server's namespace index.
type NamespaceResolver interface {
	NamespaceIndex(ctx context.Context, uri string) (uint16, error)
}

// ResolveServiceNodes looks up both namespaces and builds the service node IDs.
func ResolveServiceNodes(ctx context.Context, r NamespaceResolver) (*ServiceNodes, error) {
	nsSmartLink, err := r.NamespaceIndex(ctx, NamespaceSmartLink)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve namespace %s", NamespaceSmartLink)
	}

	nsFDI7, err := r.NamespaceIndex(ctx, NamespaceFDI7)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve namespace %s", NamespaceFDI7)
	}

	return &ServiceNodes{
		CommunicationServer: ua.NewStringNodeID(nsSmartLink, NodeCommunicationServer),
		CommDevice:          ua.NewStringNodeID(nsSmartLink, NodeCommDevice),
		ServiceProvider:     ua.NewStringNodeID(nsSmartLink, NodeServiceProvider),
		MethodNamespace:     nsFDI7,
	}, nil
}

// Method returns the qualified browse name of an FDI method.
func (n *ServiceNodes) Method(name string) *ua.QualifiedName {
	return &ua.QualifiedName{NamespaceIndex: n.MethodNamespace, Name: name}
}
