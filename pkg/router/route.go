package router

import (
	"context"
	"regexp"
	"slices"
)

// Handler supplies the declarations a Router registers for it.
type Handler interface {
	Declare() []Declaration
}

// HandlerFunc adapts a function returning declarations to Handler.
type HandlerFunc func() []Declaration

// Declare calls f.
func (f HandlerFunc) Declare() []Declaration {
	return f()
}

// Param describes one declared handler parameter.
type Param struct {
	Name       string
	Type       Type
	Default    any
	HasDefault bool
	// Request binds the originating packet instead of a named field.
	Request bool
}

// Arg declares a required parameter.
func Arg(name string, t Type) Param {
	return Param{Name: name, Type: t}
}

// Opt declares a parameter that falls back to def when the packet lacks it.
func Opt(name string, t Type, def any) Param {
	return Param{Name: name, Type: t, Default: def, HasDefault: true}
}

// RequestArg declares a parameter that receives the whole *packet.Packet.
func RequestArg(name string) Param {
	return Param{Name: name, Request: true}
}

// Invoker calls a handler method with bound arguments.
type Invoker func(call *Call, args []any) error

// Method is a routable handler operation.
type Method struct {
	Name   string
	Params []Param
	Invoke Invoker
}

// Kind distinguishes route declarations from lifecycle callbacks.
type Kind int

const (
	KindRoute Kind = iota
	KindConnect
	KindDisconnect
)

func (k Kind) String() string {
	switch k {
	case KindRoute:
		return "route"
	case KindConnect:
		return "connect"
	case KindDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// ConnectFunc is invoked when a connection is established.
type ConnectFunc func(ctx context.Context, conn Connection) error

// DisconnectFunc is invoked when a connection ends.
type DisconnectFunc func(ctx context.Context, reason DisconnectReason) error

// Declaration is one entry of a handler's registration table.
type Declaration struct {
	Kind   Kind
	Method Method
	// Rule is a regular expression matched against the packet action.
	// Empty means an exact match on Method.Name.
	Rule  string
	Index int

	Connect    ConnectFunc
	Disconnect DisconnectFunc
}

// RouteOption customizes a route declaration.
type RouteOption func(*Declaration)

// WithRule sets an explicit match pattern.
func WithRule(pattern string) RouteOption {
	return func(d *Declaration) {
		d.Rule = pattern
	}
}

// WithIndex sets the ordering priority. Lower runs first.
func WithIndex(index int) RouteOption {
	return func(d *Declaration) {
		d.Index = index
	}
}

// Route declares a routed method.
func Route(m Method, opts ...RouteOption) Declaration {
	d := Declaration{Kind: KindRoute, Method: m}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// OnConnect declares a connect callback.
func OnConnect(name string, fn ConnectFunc) Declaration {
	return Declaration{Kind: KindConnect, Method: Method{Name: name}, Connect: fn}
}

// OnDisconnect declares a disconnect callback.
func OnDisconnect(name string, fn DisconnectFunc) Declaration {
	return Declaration{Kind: KindDisconnect, Method: Method{Name: name}, Disconnect: fn}
}

// RouteEntry is a registered route. Entries are not modified after
// registration; Router.Routes hands out copies.
type RouteEntry struct {
	Rule    string
	Index   int
	Handler Handler
	Method  Method

	re *regexp.Regexp
}

// Name returns the target method name.
func (e RouteEntry) Name() string {
	return e.Method.Name
}

// Matches reports whether the entry's rule matches action.
func (e RouteEntry) Matches(action string) bool {
	if e.re == nil {
		return false
	}
	return e.re.MatchString(action)
}

func (e RouteEntry) clone() RouteEntry {
	e.Method.Params = slices.Clone(e.Method.Params)
	return e
}

// defaultRule matches exactly the method name.
func defaultRule(name string) string {
	return "^" + regexp.QuoteMeta(name) + "$"
}
