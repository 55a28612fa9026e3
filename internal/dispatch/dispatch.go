// Package dispatch routes each command or query to the single handler
// registered for its kind. Registration happens once at startup; every
// dispatch then passes through the configured middleware chain.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrNoHandler        = errors.New("no handler registered")
	ErrDuplicateHandler = errors.New("handler already registered")
	ErrUnexpectedResult = errors.New("unexpected handler result type")
)

// Request is implemented by every command and query.
type Request interface {
	Kind() string
}

// HandlerFunc is the type-erased form of a registered handler.
type HandlerFunc func(ctx context.Context, req Request) (any, error)

// Middleware decorates every dispatch.
type Middleware func(next HandlerFunc) HandlerFunc

// Dispatcher holds the dispatch table. It is safe for concurrent use once
// registration is complete.
type Dispatcher struct {
	mu         sync.RWMutex
	handlers   map[string]HandlerFunc
	middleware []Middleware
}

// New creates a dispatcher; middleware runs in the given order, the first
// one being outermost.
func New(middleware ...Middleware) *Dispatcher {
	return &Dispatcher{
		handlers:   make(map[string]HandlerFunc),
		middleware: middleware,
	}
}

// Register binds fn to the kind of Req. Registering the same kind twice is
// an error.
func Register[Req Request, Res any](d *Dispatcher, fn func(context.Context, Req) (Res, error)) error {
	var zero Req
	kind := zero.Kind()

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.handlers[kind]; exists {
		return fmt.Errorf("%s: %w", kind, ErrDuplicateHandler)
	}

	var h HandlerFunc = func(ctx context.Context, req Request) (any, error) {
		typed, ok := req.(Req)
		if !ok {
			return nil, fmt.Errorf("%s: request type %T: %w", kind, req, ErrUnexpectedResult)
		}
		return fn(ctx, typed)
	}
	for i := len(d.middleware) - 1; i >= 0; i-- {
		h = d.middleware[i](h)
	}
	d.handlers[kind] = h
	return nil
}

// Send dispatches req to its handler and returns the typed response.
func Send[Res any](ctx context.Context, d *Dispatcher, req Request) (Res, error) {
	var zero Res

	d.mu.RLock()
	h, ok := d.handlers[req.Kind()]
	d.mu.RUnlock()
	if !ok {
		return zero, fmt.Errorf("%s: %w", req.Kind(), ErrNoHandler)
	}

	out, err := h(ctx, req)
	if err != nil {
		return zero, err
	}
	res, ok := out.(Res)
	if !ok {
		return zero, fmt.Errorf("%s: got %T: %w", req.Kind(), out, ErrUnexpectedResult)
	}
	return res, nil
}

// Kinds lists the registered request kinds.
func (d *Dispatcher) Kinds() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	kinds := make([]string, 0, len(d.handlers))
	for k := range d.handlers {
		kinds = append(kinds, k)
	}
	return kinds
}
