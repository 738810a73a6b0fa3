package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/morezero/packet-router/pkg/packet"
	"github.com/morezero/packet-router/pkg/router"
)

const logPrefix = "dispatcher:dispatch"

// Processor is the part of *router.Router the dispatcher needs.
type Processor interface {
	Process(ctx context.Context, p *packet.Packet) (*router.Result, error)
}

// Dispatcher runs requests through a Processor.
type Dispatcher struct {
	proc Processor
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(proc Processor) *Dispatcher {
	return &Dispatcher{proc: proc}
}

// Dispatch processes a request and returns a response. It never returns nil.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) *Response {
	slog.Debug(fmt.Sprintf("%s - action=%s id=%s session=%s", logPrefix, req.Packet.Action, req.ID, req.Session))

	if req.Packet.Action == "" {
		return ErrorResponse(req.ID, CodeInvalidRequest, "packet action is required", false)
	}

	res, err := d.proc.Process(ctx, req.Packet.Packet())
	if err != nil {
		return ErrorToResponse(req.ID, err)
	}
	return &Response{
		ID: req.ID,
		Ok: true,
		Result: &Result{
			Matched:    res.Matched,
			Invoked:    res.Invoked,
			Terminated: res.Terminated,
			Replies:    res.Replies,
		},
	}
}

// --- helpers ---

// ErrorResponse builds a failed response.
func ErrorResponse(id, code, message string, retryable bool) *Response {
	return &Response{
		ID: id,
		Ok: false,
		Error: &ErrorDetail{
			Code:      code,
			Message:   message,
			Retryable: retryable,
		},
	}
}

// ErrorToResponse maps a dispatch error to a failed response. Binding and
// registration errors are not retryable; deadline errors are.
func ErrorToResponse(id string, err error) *Response {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorResponse(id, CodeTimeout, err.Error(), true)
	}
	var re *router.RouteError
	if errors.As(err, &re) {
		return &Response{
			ID: id,
			Ok: false,
			Error: &ErrorDetail{
				Code:      re.Code,
				Message:   re.Message,
				Details:   routeErrorDetails(re),
				Retryable: false,
			},
		}
	}
	return ErrorResponse(id, CodeInternal, err.Error(), true)
}

func routeErrorDetails(re *router.RouteError) interface{} {
	details := map[string]interface{}{}
	if re.Method != "" {
		details["method"] = re.Method
	}
	if re.Parameter != "" {
		details["parameter"] = re.Parameter
	}
	if re.Code == router.CodeParameterCountMismatch {
		details["produced"] = re.Produced
		details["expected"] = re.Expected
	}
	if len(details) == 0 {
		return nil
	}
	return details
}
