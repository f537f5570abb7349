// ABOUTME: The dispatcher: raw bytes in, exactly one response envelope out.
// ABOUTME: Decode, lookup, validate, route, then execute locally or forward.

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/2389/drawbridge/internal/config"
	"github.com/2389/drawbridge/internal/envelope"
	"github.com/2389/drawbridge/internal/forward"
	"github.com/2389/drawbridge/internal/registry"
	"github.com/2389/drawbridge/internal/store"
)

// Dispatcher executes requests against the method registry and route table.
// All fields are set at construction and never mutated; Dispatch is safe for
// concurrent use.
type Dispatcher struct {
	registry  *registry.Registry
	routes    config.RoutesConfig
	forwarder *forward.Client
	store     store.Store
	metrics   *Metrics
	locks     *KeyedMutex
	logger    *slog.Logger
}

// New creates a dispatcher. The store and metrics may be nil (call logging
// and instrumentation off); the forwarder may be nil only when every method
// routes locally.
func New(reg *registry.Registry, routes config.RoutesConfig, forwarder *forward.Client, st store.Store, metrics *Metrics, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry:  reg,
		routes:    routes,
		forwarder: forwarder,
		store:     st,
		metrics:   metrics,
		locks:     NewKeyedMutex(),
		logger:    logger.With("component", "dispatch"),
	}
}

// Dispatch runs one request through decode → lookup → validate → route →
// execute and always returns a response envelope. Failures before the id is
// known respond with an empty id; nothing is dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) *envelope.Response {
	done := d.metrics.trackInFlight()
	defer done()

	start := time.Now()

	req, err := envelope.DecodeRequest(raw)
	if err != nil {
		if errors.Is(err, envelope.ErrUnsupportedEncoding) {
			return envelope.NewError("", envelope.CodeParseError, err.Error())
		}
		return envelope.NewError("", envelope.CodeInvalidRequest, err.Error())
	}

	spec, err := d.registry.Lookup(req.Method)
	if err != nil {
		d.logger.Debug("unknown method", "method", req.Method, "id", req.ID)
		return d.finish(ctx, req, store.RoutedLocal, start,
			envelope.NewError(req.ID, envelope.CodeMethodNotFound, err.Error()))
	}

	params, err := req.ParamsMap()
	if err != nil {
		return d.finish(ctx, req, store.RoutedLocal, start,
			envelope.NewError(req.ID, envelope.CodeInvalidRequest, err.Error()))
	}
	if err := spec.ValidateParams(params); err != nil {
		return d.finish(ctx, req, store.RoutedLocal, start,
			envelope.NewError(req.ID, envelope.CodeInvalidParams, err.Error()))
	}

	decision := Route(spec, d.routes)
	if decision.Local {
		resp := d.execLocal(ctx, spec, req, params, decision.Policy.Timeout)
		return d.finish(ctx, req, store.RoutedLocal, start, resp)
	}

	forwardStart := time.Now()
	remote, err := d.forwarder.Call(ctx, decision.Endpoint, req, decision.Policy)
	d.metrics.observeForward(time.Since(forwardStart))
	if err == nil {
		// A received envelope — result or error — is the answer. Pass the raw
		// result through untouched.
		resp := &envelope.Response{ID: req.ID, Error: remote.Error}
		if remote.Error == nil {
			resp.Result = remote.Result
		}
		return d.finish(ctx, req, store.RoutedRemote, start, resp)
	}

	if decision.FallbackLocal && errors.Is(err, forward.ErrUnreachable) && spec.Handler != nil {
		d.logger.Warn("endpoint unreachable, falling back to local handler",
			"method", req.Method, "endpoint", decision.Endpoint, "error", err)
		resp := d.execLocal(ctx, spec, req, params, decision.Policy.Timeout)
		return d.finish(ctx, req, store.RoutedFallbackLocal, start, resp)
	}

	d.logger.Error("forward call failed", "method", req.Method, "endpoint", decision.Endpoint, "error", err)
	return d.finish(ctx, req, store.RoutedRemote, start,
		envelope.NewError(req.ID, envelope.CodeInternalError, err.Error()))
}

// execLocal runs the in-process handler under the route timeout, serialized
// per target document for automation methods. A panic becomes an internal
// error response; the request's id survives.
func (d *Dispatcher) execLocal(ctx context.Context, spec *registry.MethodSpec, req *envelope.Request, params map[string]any, timeout time.Duration) (resp *envelope.Response) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panicked",
				"method", req.Method, "id", req.ID, "panic", r, "stack", string(debug.Stack()))
			resp = envelope.NewError(req.ID, envelope.CodeInternalError,
				fmt.Sprintf("internal error in %s", req.Method))
		}
	}()

	if spec.Domain == registry.DomainAutomation {
		// An automation call already mutating state must not be aborted by the
		// caller hanging up; only response delivery stops. The timeout still
		// applies.
		ctx = context.WithoutCancel(ctx)

		doc, _ := params["document"].(string)
		unlock := d.locks.Lock(doc)
		defer unlock()
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := spec.Handler(ctx, req)
	if err != nil {
		var rpcErr *envelope.RPCErr
		if errors.As(err, &rpcErr) {
			return envelope.NewError(req.ID, rpcErr.Code, rpcErr.Message)
		}
		return envelope.NewError(req.ID, envelope.CodeInternalError, err.Error())
	}
	return envelope.NewResult(req.ID, result)
}

// finish records the call and returns resp unchanged. The call log is
// best-effort: a store failure is logged, never surfaced.
func (d *Dispatcher) finish(ctx context.Context, req *envelope.Request, routed string, start time.Time, resp *envelope.Response) *envelope.Response {
	code := 0
	if resp.Error != nil {
		code = resp.Error.Code
	}
	duration := time.Since(start)

	d.metrics.observeRequest(req.Method, code, routed)

	if d.store != nil {
		rec := &store.CallRecord{
			ID:        uuid.New().String(),
			RequestID: req.ID,
			Method:    req.Method,
			Routed:    routed,
			Code:      code,
			Duration:  duration,
			CreatedAt: time.Now(),
		}
		if err := d.store.Append(context.WithoutCancel(ctx), rec); err != nil {
			d.logger.Warn("call log append failed", "method", req.Method, "error", err)
		}
	}

	d.logger.Debug("dispatched", "method", req.Method, "id", req.ID,
		"routed", routed, "code", code, "duration", duration)
	return resp
}
