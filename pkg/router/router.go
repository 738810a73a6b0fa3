// Package router matches packets against registered route rules, binds
// packet fields to handler parameters and invokes the handlers.
//
// A Router is not safe for concurrent use. Register every handler before
// the first Process call; one Router serves one connection, whose packets
// are processed sequentially.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/morezero/packet-router/pkg/packet"
)

const logPrefix = "router:router"

// Router owns an ordered route table and the lifecycle callbacks of its handlers.
type Router struct {
	routes      []*RouteEntry
	connects    []lifecycleEntry
	disconnects []lifecycleEntry
}

// New creates an empty Router.
func New() *Router {
	return &Router{}
}

// Call is the per-Process dispatch state handed to every invoked method.
type Call struct {
	ctx        context.Context
	packet     *packet.Packet
	entry      *RouteEntry
	terminated bool
	replies    []any
}

// Context returns the context passed to Process.
func (c *Call) Context() context.Context {
	return c.ctx
}

// Packet returns the packet being processed.
func (c *Call) Packet() *packet.Packet {
	return c.packet
}

// Route returns the entry currently being invoked.
func (c *Call) Route() RouteEntry {
	if c.entry == nil {
		return RouteEntry{}
	}
	return c.entry.clone()
}

// Terminate stops matching further routes for this Process call.
func (c *Call) Terminate() {
	c.terminated = true
}

// Terminated reports whether a handler called Terminate.
func (c *Call) Terminated() bool {
	return c.terminated
}

// Reply records a value to return to the caller of Process.
func (c *Call) Reply(v any) {
	c.replies = append(c.replies, v)
}

// Result summarizes one Process call.
type Result struct {
	Matched    int
	Invoked    int
	Terminated bool
	Replies    []any
}

// Process routes p through the table. Every matching entry runs in table
// order until a handler terminates the call. The first bind or handler
// error aborts processing and is returned.
func (r *Router) Process(ctx context.Context, p *packet.Packet) (*Result, error) {
	call := &Call{ctx: ctx, packet: p}
	res := &Result{}
	defer func() {
		res.Terminated = call.terminated
		res.Replies = call.replies
	}()

	for _, e := range r.routes {
		if call.terminated {
			break
		}
		if !e.re.MatchString(p.Action()) {
			continue
		}
		res.Matched++

		args, err := bindArgs(e.Method, p)
		if err != nil {
			slog.Debug(fmt.Sprintf("%s - bind failed action=%s method=%s: %v", logPrefix, p.Action(), e.Method.Name, err))
			return res, err
		}
		call.entry = e
		if err := invoke(call, e, args); err != nil {
			slog.Debug(fmt.Sprintf("%s - invoke failed action=%s method=%s: %v", logPrefix, p.Action(), e.Method.Name, err))
			return res, err
		}
		res.Invoked++
	}
	return res, nil
}

func invoke(call *Call, e *RouteEntry, args []any) error {
	err := e.Method.Invoke(call, args)
	if err == nil {
		return nil
	}
	var re *RouteError
	if errors.As(err, &re) {
		if re.Method != "" {
			return err
		}
		switch re.Code {
		case CodeParameterCountMismatch:
			return countMismatch(e.Method.Name, re.Produced, re.Expected)
		case CodeCoercionFailure:
			out := &RouteError{
				Code:    re.Code,
				Message: fmt.Sprintf("method %s: %s", e.Method.Name, re.Message),
				Method:  e.Method.Name,
				Err:     re.Err,
			}
			if re.arg > 0 && re.arg <= len(e.Method.Params) {
				out.Parameter = e.Method.Params[re.arg-1].Name
			}
			return out
		}
		return err
	}
	return &RouteError{
		Code:    CodeHandlerError,
		Message: fmt.Sprintf("method %s: %v", e.Method.Name, err),
		Method:  e.Method.Name,
		Err:     err,
	}
}

// OnConnect runs every connect callback in registration order. All callbacks
// run; their errors are joined.
func (r *Router) OnConnect(ctx context.Context, conn Connection) error {
	var errs []error
	for _, l := range r.connects {
		if err := l.connect(ctx, conn); err != nil {
			errs = append(errs, fmt.Errorf("%s - connect callback %s: %w", logPrefix, l.name, err))
		}
	}
	return errors.Join(errs...)
}

// OnDisconnect runs every disconnect callback in registration order. All
// callbacks run; their errors are joined.
func (r *Router) OnDisconnect(ctx context.Context, reason DisconnectReason) error {
	var errs []error
	for _, l := range r.disconnects {
		if err := l.disconnect(ctx, reason); err != nil {
			errs = append(errs, fmt.Errorf("%s - disconnect callback %s: %w", logPrefix, l.name, err))
		}
	}
	return errors.Join(errs...)
}
