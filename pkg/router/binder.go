package router

import (
	"github.com/morezero/packet-router/pkg/packet"
)

// bindArgs resolves every declared parameter of m against p, in order.
func bindArgs(m Method, p *packet.Packet) ([]any, error) {
	view := fieldView(m, p)
	args := make([]any, 0, len(m.Params))
	for _, prm := range m.Params {
		v, err := resolveParam(m.Name, prm, p, view)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return args, nil
}

// resolveParam applies, in order: default fallback, request injection,
// existence check, coercion. The first step that applies decides the value.
func resolveParam(method string, prm Param, req, view *packet.Packet) (any, error) {
	present := view.Has(prm.Name)

	if !present && prm.HasDefault {
		return prm.Default, nil
	}
	if prm.Request {
		return req, nil
	}
	if !present {
		return nil, missingParameter(method, prm.Name)
	}

	raw, err := view.Get(prm.Name)
	if err != nil {
		return nil, &RouteError{
			Code:      CodeFieldNotFound,
			Message:   err.Error(),
			Method:    method,
			Parameter: prm.Name,
			Err:       err,
		}
	}
	v, err := prm.Type.Coerce(raw)
	if err != nil {
		return nil, coercionFailure(method, prm.Name, prm.Type, raw, err)
	}
	return v, nil
}

// fieldView returns the packet to read named fields from. Packets with
// positional arguments get a fresh view per invocation: named fields are
// copied and positional values are zipped onto the declared parameter
// names that are still unset. Request parameters take no positional slot.
// The original packet is never modified.
func fieldView(m Method, p *packet.Packet) *packet.Packet {
	if !p.HasArgs() {
		return p
	}
	view := packet.New(p.Action())
	for k, v := range p.Fields() {
		view.Set(k, v)
	}
	args := p.Args()
	i := 0
	for _, prm := range m.Params {
		if prm.Request {
			continue
		}
		if i >= len(args) {
			break
		}
		if !view.Has(prm.Name) {
			view.Set(prm.Name, args[i])
		}
		i++
	}
	return view
}
