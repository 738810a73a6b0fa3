package router

import (
	"cmp"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
)

const registrarLogPrefix = "router:registrar"

type lifecycleEntry struct {
	name       string
	handler    Handler
	connect    ConnectFunc
	disconnect DisconnectFunc
}

// AddHandler registers h's routes and lifecycle callbacks, then re-sorts the
// whole route table by index. A handler with no declarations is accepted.
func (r *Router) AddHandler(h Handler) error {
	return r.AddHandlers(h)
}

// AddHandlers registers several handlers and sorts the table once.
// On error nothing is registered.
func (r *Router) AddHandlers(handlers ...Handler) error {
	var (
		routes      []*RouteEntry
		connects    []lifecycleEntry
		disconnects []lifecycleEntry
	)
	for _, h := range handlers {
		if h == nil {
			return &RouteError{Code: CodeInvalidDeclaration, Message: "nil handler"}
		}
		for _, d := range h.Declare() {
			switch d.Kind {
			case KindRoute:
				e, err := newRouteEntry(h, d)
				if err != nil {
					return err
				}
				routes = append(routes, e)
			case KindConnect:
				if d.Connect == nil {
					return invalidDeclaration(d, "connect callback is nil")
				}
				connects = append(connects, lifecycleEntry{name: d.Method.Name, handler: h, connect: d.Connect})
			case KindDisconnect:
				if d.Disconnect == nil {
					return invalidDeclaration(d, "disconnect callback is nil")
				}
				disconnects = append(disconnects, lifecycleEntry{name: d.Method.Name, handler: h, disconnect: d.Disconnect})
			default:
				return invalidDeclaration(d, fmt.Sprintf("unknown kind %d", d.Kind))
			}
		}
	}

	r.routes = append(r.routes, routes...)
	r.connects = append(r.connects, connects...)
	r.disconnects = append(r.disconnects, disconnects...)
	slices.SortStableFunc(r.routes, func(a, b *RouteEntry) int {
		return cmp.Compare(a.Index, b.Index)
	})

	slog.Debug(fmt.Sprintf("%s - registered %d routes, %d connect, %d disconnect callbacks (table size %d)",
		registrarLogPrefix, len(routes), len(connects), len(disconnects), len(r.routes)))
	return nil
}

// Routes returns a snapshot of the route table in dispatch order.
func (r *Router) Routes() []RouteEntry {
	out := make([]RouteEntry, len(r.routes))
	for i, e := range r.routes {
		out[i] = e.clone()
	}
	return out
}

func newRouteEntry(h Handler, d Declaration) (*RouteEntry, error) {
	m := d.Method
	if m.Name == "" {
		return nil, invalidDeclaration(d, "route method has no name")
	}
	if m.Invoke == nil {
		return nil, invalidDeclaration(d, "route method has no invoker")
	}
	rule := d.Rule
	if rule == "" {
		rule = defaultRule(m.Name)
	}
	re, err := regexp.Compile(rule)
	if err != nil {
		return nil, &RouteError{
			Code:    CodeInvalidRule,
			Message: fmt.Sprintf("method %s: invalid rule %q", m.Name, rule),
			Method:  m.Name,
			Err:     err,
		}
	}
	m.Params = slices.Clone(m.Params)
	return &RouteEntry{
		Rule:    rule,
		Index:   d.Index,
		Handler: h,
		Method:  m,
		re:      re,
	}, nil
}

func invalidDeclaration(d Declaration, msg string) *RouteError {
	return &RouteError{
		Code:    CodeInvalidDeclaration,
		Message: fmt.Sprintf("%s %q: %s", d.Kind, d.Method.Name, msg),
		Method:  d.Method.Name,
	}
}
