package fdi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"
	"github.com/pkg/errors"
)

// DefaultCloseTimeout bounds the session teardown
const DefaultCloseTimeout = 5 * time.Second

// Options configures a session to an FDI communication server
type Options struct {
	Endpoint       string
	DialTimeout    time.Duration
	RequestTimeout time.Duration
	SecurityPolicy string
	SecurityMode   string
	Username       string
	Password       string
}

// Caller invokes a method of an object node and returns its output arguments.
type Caller interface {
	CallMethod(ctx context.Context, object *ua.NodeID, method *ua.QualifiedName, args ...*ua.Variant) ([]*ua.Variant, error)
}

// Conn is an open session as seen by the run sequence.
type Conn interface {
	Caller
	NamespaceResolver
	Close(ctx context.Context) error
}

// Session is an OPC-UA session to one FDI communication server
type Session struct {
	client   *opcua.Client
	endpoint string

	mu      sync.Mutex
	methods map[string]*ua.NodeID

	closeOnce sync.Once
	closeErr  error
}

// Dial opens a session to the endpoint in opts
func Dial(ctx context.Context, opts Options) (*Session, error) {
	if opts.Endpoint == "" {
		return nil, errors.Wrap(ErrConnection, "no endpoint")
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 10 * time.Second
	}

	client, err := opcua.NewClient(opts.Endpoint, clientOptions(opts)...)
	if err != nil {
		return nil, errors.Wrap(err, "create client")
	}

	dialCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()

	if err := client.Connect(dialCtx); err != nil {
		return nil, classify("connect "+opts.Endpoint, err)
	}

	return &Session{
		client:   client,
		endpoint: opts.Endpoint,
		methods:  make(map[string]*ua.NodeID),
	}, nil
}

func clientOptions(opts Options) []opcua.Option {
	policy := opts.SecurityPolicy
	if policy == "" {
		policy = ua.SecurityPolicyURINone
	}
	mode := opts.SecurityMode
	if mode == "" {
		mode = "None"
	}

	o := []opcua.Option{
		opcua.SecurityPolicy(policy),
		opcua.SecurityModeString(mode),
		opcua.DialTimeout(opts.DialTimeout),
		opcua.AutoReconnect(false),
	}
	if opts.RequestTimeout > 0 {
		o = append(o, opcua.RequestTimeout(opts.RequestTimeout))
	}
	if opts.Username != "" {
		o = append(o, opcua.AuthUsername(opts.Username, opts.Password))
	} else {
		o = append(o, opcua.AuthAnonymous())
	}
	return o
}

// Endpoint returns the URL the session is connected to
func (s *Session) Endpoint() string {
	return s.endpoint
}

// NamespaceIndex returns the server's index for a namespace URI
func (s *Session) NamespaceIndex(ctx context.Context, uri string) (uint16, error) {
	nsa, err := s.client.NamespaceArray(ctx)
	if err != nil {
		return 0, classify("read namespace array", err)
	}
	return findNamespace(nsa, uri)
}

// findNamespace returns the position of uri in a namespace array
func findNamespace(nsa []string, uri string) (uint16, error) {
	for i, ns := range nsa {
		if ns == uri {
			return uint16(i), nil
		}
	}
	return 0, errors.Wrap(ErrNamespaceNotFound, uri)
}

// CallMethod resolves the method below object by browse name and calls it.
func (s *Session) CallMethod(ctx context.Context, object *ua.NodeID, method *ua.QualifiedName, args ...*ua.Variant) ([]*ua.Variant, error) {
	methodID, err := s.methodNode(ctx, object, method)
	if err != nil {
		return nil, err
	}

	req := &ua.CallMethodRequest{
		ObjectID:       object,
		MethodID:       methodID,
		InputArguments: args,
	}

	res, err := s.client.Call(ctx, req)
	if err != nil {
		return nil, classify(method.Name, err)
	}
	if res.StatusCode != ua.StatusOK {
		return nil, &CommunicationError{Op: method.Name, Kind: ErrCommunication, Err: res.StatusCode}
	}
	return res.OutputArguments, nil
}

func (s *Session) methodNode(ctx context.Context, object *ua.NodeID, method *ua.QualifiedName) (*ua.NodeID, error) {
	key := fmt.Sprintf("%s/%d:%s", object.String(), method.NamespaceIndex, method.Name)

	s.mu.Lock()
	id, ok := s.methods[key]
	s.mu.Unlock()
	if ok {
		return id, nil
	}

	id, err := s.client.Node(object).TranslateBrowsePathsToNodeIDs(ctx, []*ua.QualifiedName{method})
	if err != nil {
		return nil, classify("resolve method "+method.Name, err)
	}

	s.mu.Lock()
	s.methods[key] = id
	s.mu.Unlock()
	return id, nil
}

// Close closes the session. Only the first call reaches the server.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		if err := s.client.Close(ctx); err != nil {
			s.closeErr = classify("close", err)
		}
	})
	return s.closeErr
}

// Dialer opens a Conn to an endpoint
type Dialer func(ctx context.Context) (Conn, error)

// SessionDialer returns a Dialer backed by Dial
func SessionDialer(opts Options) Dialer {
	return func(ctx context.Context) (Conn, error) {
		s, err := Dial(ctx, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Execute opens a session, runs fn against it and closes the session on
// every exit path, including a panic in fn. The close uses a context that
// survives cancellation of ctx.
func Execute(ctx context.Context, dial Dialer, fn func(ctx context.Context, conn Conn) error) (err error) {
	conn, err := dial(ctx)
	if err != nil {
		return err
	}

	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultCloseTimeout)
		defer cancel()
		closeErr := conn.Close(closeCtx)
		if err == nil && closeErr != nil {
			err = closeErr
		}
	}()

	return fn(ctx, conn)
}
