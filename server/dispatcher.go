package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/hjlabs/hjmcpsse/protocol"
	"github.com/hjlabs/hjmcpsse/schema"
)

// Status is the outcome of one invocation.
type Status string

// Invocation outcomes.
const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Invocation is one request to run a capability.
type Invocation struct {
	RequestID json.RawMessage
	Kind      Kind
	Name      string
	// URI addresses a resource; when set, Name is ignored and the
	// arguments come from the matching URI template.
	URI       string
	Arguments map[string]any
}

// Result is the single outcome of an Invocation.
type Result struct {
	RequestID  json.RawMessage
	Descriptor *Descriptor
	Status     Status
	// Payload is the variant's output: *Evaluation, *ResourceContent,
	// *PromptText or *TemplateText.
	Payload any
	Err     error
}

// Error converts a failed result into its wire error.
func (r Result) Error() *protocol.Error {
	if r.Err == nil {
		return nil
	}
	return protocol.FromError(r.Err)
}

// Observer is notified after every invocation.
type Observer interface {
	ObserveInvocation(kind Kind, name string, status Status, errKind protocol.Kind, d time.Duration)
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(l *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithObserver adds an invocation observer.
func WithObserver(o Observer) DispatcherOption {
	return func(d *Dispatcher) {
		d.observers = append(d.observers, o)
	}
}

// Dispatcher validates invocations and runs their handlers.
type Dispatcher struct {
	reg       *Registry
	logger    *zap.Logger
	observers []Observer
}

// NewDispatcher creates a dispatcher over a sealed registry.
func NewDispatcher(reg *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{reg: reg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the registry the dispatcher reads from.
func (d *Dispatcher) Registry() *Registry {
	return d.reg
}

// Handle runs one invocation to completion. It never panics and always
// returns exactly one Result for the invocation's request id.
func (d *Dispatcher) Handle(ctx context.Context, inv Invocation) (res Result) {
	start := time.Now()
	res = Result{RequestID: inv.RequestID}

	defer func() {
		if res.Err != nil {
			res.Status = StatusError
			res.Payload = nil
		} else {
			res.Status = StatusSuccess
		}
		kind, name := inv.Kind, inv.Name
		if res.Descriptor != nil {
			kind, name = res.Descriptor.Kind, res.Descriptor.Name
		}
		errKind := protocol.KindOf(res.Err)
		elapsed := time.Since(start)
		for _, o := range d.observers {
			o.ObserveInvocation(kind, name, res.Status, errKind, elapsed)
		}
		if res.Err != nil {
			d.logger.Debug("invocation failed",
				zap.String("kind", string(kind)),
				zap.String("name", name),
				zap.String("error_kind", string(errKind)),
				zap.Error(res.Err),
			)
		}
	}()

	desc, args, err := d.resolve(inv)
	if err != nil {
		res.Err = err
		return res
	}
	res.Descriptor = desc

	if desc.Kind == KindPrompt {
		args = desc.Input.Coerce(args)
	}
	args = desc.Input.ApplyDefaults(desc.Input.Normalize(args))
	if err := desc.Input.Validate(args); err != nil {
		res.Err = err
		return res
	}

	res.Payload, res.Err = d.invoke(ctx, desc, inv.URI, args)
	return res
}

func (d *Dispatcher) resolve(inv Invocation) (*Descriptor, map[string]any, error) {
	if inv.Kind == KindResource {
		desc, params, err := d.reg.MatchResource(inv.URI)
		if err != nil {
			return nil, nil, err
		}
		return desc, params, nil
	}
	desc, err := d.reg.Lookup(inv.Kind, inv.Name)
	if err != nil {
		return nil, nil, err
	}
	args := inv.Arguments
	if args == nil {
		args = map[string]any{}
	}
	return desc, args, nil
}

func (d *Dispatcher) invoke(ctx context.Context, desc *Descriptor, uri string, args map[string]any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panic",
				zap.String("name", desc.Name),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			out = nil
			err = errors.Mark(errors.Newf("handler %s panicked: %s", desc.Name, fmt.Sprint(r)), protocol.ErrHandler)
		}
	}()

	switch h := desc.Handler.(type) {
	case EvaluateFunc:
		var a EvaluateArgs
		if err := schema.Decode(args, &a); err != nil {
			return nil, err
		}
		return nilable(h(ctx, a))
	case ResolveFunc:
		var a ResourceArgs
		if err := schema.Decode(args, &a); err != nil {
			return nil, err
		}
		return nilable(h(ctx, uri, a))
	case PromptFunc:
		var a PromptArgs
		if err := schema.Decode(args, &a); err != nil {
			return nil, err
		}
		return nilable(h(ctx, a))
	case TemplateFunc:
		var a TemplateArgs
		if err := schema.Decode(args, &a); err != nil {
			return nil, err
		}
		return nilable(h(ctx, a))
	}
	return nil, errors.Mark(errors.Newf("unsupported handler %T", desc.Handler), protocol.ErrHandler)
}

// nilable rejects a nil payload from a handler that reported success.
func nilable[T any](v *T, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, errors.Mark(errors.New("handler returned no result"), protocol.ErrHandler)
	}
	return v, nil
}
