package bot

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/Proton-105/frostbank/internal/bot/handlers"
)

// ErrUnknownCommand is returned by Route for unregistered commands.
var ErrUnknownCommand = errors.New("unknown command")

// Router dispatches commands through the middleware chain.
type Router struct {
	mu          sync.RWMutex
	commands    map[string]handlers.Handler
	middlewares []handlers.Middleware
	log         *slog.Logger
}

// NewRouter builds a Router with empty registries.
func NewRouter(log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}

	return &Router{
		commands:    make(map[string]handlers.Handler),
		middlewares: make([]handlers.Middleware, 0),
		log:         log,
	}
}

// RegisterCommand registers a handler for a command name.
func (r *Router) RegisterCommand(cmd string, h handlers.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[cmd] = h
}

// Use appends a middleware to the chain. The first middleware added is the outermost.
func (r *Router) Use(mw handlers.Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = append(r.middlewares, mw)
}

// Commands lists the registered command names in sorted order.
func (r *Router) Commands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Route runs the handler registered for req.Command.
func (r *Router) Route(ctx context.Context, req *handlers.Request, res handlers.Responder) error {
	if req == nil || res == nil {
		return nil
	}

	handler := r.getCommandHandler(req.Command)
	if handler == nil {
		r.log.Info("no command handler found", slog.String("command", req.Command))
		return ErrUnknownCommand
	}

	return r.applyMiddlewares(handler)(ctx, req, res)
}

func (r *Router) getCommandHandler(cmd string) handlers.Handler {
	r.mu.RLock()
	handler := r.commands[cmd]
	r.mu.RUnlock()
	return handler
}

// applyMiddlewares wraps the handler with all registered middlewares.
func (r *Router) applyMiddlewares(h handlers.Handler) handlers.Handler {
	middlewares := r.middlewaresSnapshot()
	wrapped := h
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}

	return wrapped
}

func (r *Router) middlewaresSnapshot() []handlers.Middleware {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.middlewares) == 0 {
		return nil
	}

	snapshot := make([]handlers.Middleware, len(r.middlewares))
	copy(snapshot, r.middlewares)
	return snapshot
}
