// Package lifecycle dispatches install, activate and fetch events to
// registered handlers.
//
// Handlers extend an event with WaitUntil; the dispatch call returns once
// every extension has finished. A fetch handler may supply the response with
// RespondWith. When no handler responds, the dispatcher performs the default
// network fetch.
package lifecycle

import (
	"context"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mtlprog/offlinecache/internal/domain"
)

// Fetcher performs a live network fetch.
type Fetcher interface {
	Fetch(ctx context.Context, req *http.Request) (*domain.Response, error)
}

// ExtendableEvent is an install or activate event.
type ExtendableEvent struct {
	Type domain.EventType

	ctx   context.Context
	group errgroup.Group
}

func newExtendableEvent(ctx context.Context, t domain.EventType) *ExtendableEvent {
	return &ExtendableEvent{Type: t, ctx: ctx}
}

// WaitUntil extends the event until fn returns. Extensions run concurrently;
// the dispatch reports the first error.
func (e *ExtendableEvent) WaitUntil(fn func(ctx context.Context) error) {
	e.group.Go(func() error {
		return fn(e.ctx)
	})
}

func (e *ExtendableEvent) wait() error {
	return e.group.Wait()
}

// FetchEvent is dispatched for each intercepted request.
type FetchEvent struct {
	ExtendableEvent
	Request *http.Request

	mu        sync.Mutex
	responder func(ctx context.Context) (*domain.Response, error)
}

// RespondWith supplies the response for the request. Only the first call counts.
func (e *FetchEvent) RespondWith(fn func(ctx context.Context) (*domain.Response, error)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.responder != nil {
		return domain.ErrAlreadyResponded
	}
	e.responder = fn
	return nil
}

func (e *FetchEvent) takeResponder() func(ctx context.Context) (*domain.Response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.responder
}

// Dispatcher holds registered handlers and dispatches events to them.
type Dispatcher struct {
	network Fetcher

	mu       sync.RWMutex
	install  []func(*ExtendableEvent)
	activate []func(*ExtendableEvent)
	fetch    []func(*FetchEvent)

	// lifecycleMu keeps install and activate from overlapping.
	lifecycleMu sync.Mutex
}

// NewDispatcher creates a Dispatcher whose default fetch goes to network.
func NewDispatcher(network Fetcher) *Dispatcher {
	return &Dispatcher{network: network}
}

// OnInstall registers an install handler.
func (d *Dispatcher) OnInstall(fn func(*ExtendableEvent)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.install = append(d.install, fn)
}

// OnActivate registers an activate handler.
func (d *Dispatcher) OnActivate(fn func(*ExtendableEvent)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.activate = append(d.activate, fn)
}

// OnFetch registers a fetch handler.
func (d *Dispatcher) OnFetch(fn func(*FetchEvent)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fetch = append(d.fetch, fn)
}

// DispatchInstall runs install handlers and waits for their extensions.
func (d *Dispatcher) DispatchInstall(ctx context.Context) error {
	d.mu.RLock()
	handlers := append([]func(*ExtendableEvent){}, d.install...)
	d.mu.RUnlock()

	return d.dispatchLifecycle(ctx, domain.EventTypeInstall, handlers)
}

// DispatchActivate runs activate handlers and waits for their extensions.
func (d *Dispatcher) DispatchActivate(ctx context.Context) error {
	d.mu.RLock()
	handlers := append([]func(*ExtendableEvent){}, d.activate...)
	d.mu.RUnlock()

	return d.dispatchLifecycle(ctx, domain.EventTypeActivate, handlers)
}

func (d *Dispatcher) dispatchLifecycle(ctx context.Context, t domain.EventType, handlers []func(*ExtendableEvent)) error {
	d.lifecycleMu.Lock()
	defer d.lifecycleMu.Unlock()

	event := newExtendableEvent(ctx, t)
	for _, h := range handlers {
		h(event)
	}
	return event.wait()
}

// DispatchFetch runs fetch handlers for req. It returns the response of the
// first handler that called RespondWith, or the live network response when
// none did. A nil response with a nil error means no response is available.
func (d *Dispatcher) DispatchFetch(ctx context.Context, req *http.Request) (*domain.Response, error) {
	d.mu.RLock()
	handlers := append([]func(*FetchEvent){}, d.fetch...)
	d.mu.RUnlock()

	event := &FetchEvent{
		ExtendableEvent: ExtendableEvent{Type: domain.EventTypeFetch, ctx: ctx},
		Request:         req,
	}
	for _, h := range handlers {
		h(event)
	}

	var resp *domain.Response
	var err error
	if responder := event.takeResponder(); responder != nil {
		resp, err = responder(ctx)
	} else if d.network != nil {
		resp, err = d.network.Fetch(ctx, req)
	}

	if waitErr := event.wait(); err == nil {
		err = waitErr
	}
	return resp, err
}
