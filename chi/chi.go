// Package chi serves Chi routes from request scopes of a dicore container.
//
// ScopeMiddleware opens one scope per request and attaches it to the request
// context. Handle and HandleWithParams resolve a controller from that scope
// and call one of its methods.
//
//	c := dicore.New()
//	_ = c.Scoped(NewUserController)
//
//	r := chi.NewRouter()
//	r.Use(dichi.ScopeMiddleware(c))
//	r.Get("/users/{id}", dichi.Handle((*UserController).GetByID))
package chi

import (
	"log/slog"
	"net/http"

	chirouter "github.com/go-chi/chi/v5"

	"github.com/junioryono/dicore"
)

// Config holds the configuration for the scope middleware.
type Config struct {
	// ErrorHandler is called when the scope cannot be opened or a hook fails.
	// If nil, a default handler returning 500 Internal Server Error is used.
	ErrorHandler func(http.ResponseWriter, *http.Request, error)

	// CloseErrorHandler is called when closing the scope fails.
	// If nil, errors are logged with slog.
	CloseErrorHandler func(error)

	// Hooks run in order after the scope is opened and before the handler.
	Hooks []func(*dicore.Scope, *http.Request) error
}

// Option configures the scope middleware.
type Option func(*Config)

// WithErrorHandler sets the handler for scope and hook failures.
func WithErrorHandler(h func(http.ResponseWriter, *http.Request, error)) Option {
	return func(c *Config) {
		c.ErrorHandler = h
	}
}

// WithCloseErrorHandler sets the handler for scope close failures.
func WithCloseErrorHandler(h func(error)) Option {
	return func(c *Config) {
		c.CloseErrorHandler = h
	}
}

// WithHook adds a function run after the scope is opened, for example to
// warm request services. Hooks run in the order they are added.
func WithHook(hook func(*dicore.Scope, *http.Request) error) Option {
	return func(c *Config) {
		c.Hooks = append(c.Hooks, hook)
	}
}

func defaultConfig() *Config {
	return &Config{
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		},
		CloseErrorHandler: func(err error) {
			slog.Error("failed to close request scope", "error", err)
		},
	}
}

// ScopeMiddleware opens a scope of c for each request and closes it when the
// request completes. The scope is found with dicore.FromContext.
func ScopeMiddleware(c *dicore.Container, opts ...Option) func(http.Handler) http.Handler {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope, err := c.BeginScope(r.Context())
			if err != nil {
				cfg.ErrorHandler(w, r, err)
				return
			}

			defer func() {
				if err := scope.Close(); err != nil {
					cfg.CloseErrorHandler(err)
				}
			}()

			r = r.WithContext(scope.Context())

			for _, hook := range cfg.Hooks {
				if err := hook(scope, r); err != nil {
					cfg.ErrorHandler(w, r, err)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// HandlerConfig holds configuration for the Handle wrappers.
type HandlerConfig struct {
	// PanicRecovery enables panic recovery in the handler.
	PanicRecovery bool

	// PanicHandler is called when a panic occurs (if PanicRecovery is true).
	PanicHandler func(http.ResponseWriter, *http.Request, any)

	// ScopeErrorHandler is called when the request has no open scope.
	ScopeErrorHandler func(http.ResponseWriter, *http.Request, error)

	// ResolutionErrorHandler is called when the controller cannot be resolved.
	ResolutionErrorHandler func(http.ResponseWriter, *http.Request, error)
}

// HandlerOption configures the Handle wrappers.
type HandlerOption func(*HandlerConfig)

// WithPanicRecovery enables or disables panic recovery in the handler.
func WithPanicRecovery(enabled bool) HandlerOption {
	return func(c *HandlerConfig) {
		c.PanicRecovery = enabled
	}
}

// WithPanicHandler sets the handler for panics.
func WithPanicHandler(h func(http.ResponseWriter, *http.Request, any)) HandlerOption {
	return func(c *HandlerConfig) {
		c.PanicHandler = h
	}
}

// WithScopeErrorHandler sets the handler for requests without a scope.
func WithScopeErrorHandler(h func(http.ResponseWriter, *http.Request, error)) HandlerOption {
	return func(c *HandlerConfig) {
		c.ScopeErrorHandler = h
	}
}

// WithResolutionErrorHandler sets the handler for resolution failures.
func WithResolutionErrorHandler(h func(http.ResponseWriter, *http.Request, error)) HandlerOption {
	return func(c *HandlerConfig) {
		c.ResolutionErrorHandler = h
	}
}

func defaultHandlerConfig() *HandlerConfig {
	return &HandlerConfig{
		PanicHandler: func(w http.ResponseWriter, r *http.Request, v any) {
			slog.Error("panic in handler", "panic", v)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		},
		ScopeErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			slog.Error("failed to get scope from context", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		},
		ResolutionErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			slog.Error("failed to resolve controller", "error", err)
			if dicore.IsNotFound(err) {
				http.Error(w, "Not Found", http.StatusNotFound)
				return
			}
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		},
	}
}

// Handle resolves the controller T from the request scope and calls method.
//
//	r.Get("/users", dichi.Handle((*UserController).List))
func Handle[T any](method func(T, http.ResponseWriter, *http.Request), opts ...HandlerOption) http.HandlerFunc {
	return handle(method, nil, opts)
}

// HandleWithParams is like Handle but builds T with the route's URL
// parameters as constructor overrides, keyed by parameter name. T must be
// transient for the overrides to reach its constructor.
//
//	_ = c.Transient(NewUserPage, dicore.WithParamNames("id", "store"))
//	r.Get("/users/{id}", dichi.HandleWithParams((*UserPage).Render))
func HandleWithParams[T any](method func(T, http.ResponseWriter, *http.Request), opts ...HandlerOption) http.HandlerFunc {
	return handle(method, URLParams, opts)
}

// URLParams returns the URL parameters chi matched for r.
func URLParams(r *http.Request) map[string]any {
	rctx := chirouter.RouteContext(r.Context())
	if rctx == nil {
		return nil
	}

	params := make(map[string]any, len(rctx.URLParams.Keys))
	for i, key := range rctx.URLParams.Keys {
		if key == "*" || i >= len(rctx.URLParams.Values) {
			continue
		}
		params[key] = rctx.URLParams.Values[i]
	}
	return params
}

func handle[T any](method func(T, http.ResponseWriter, *http.Request), overrides func(*http.Request) map[string]any, opts []HandlerOption) http.HandlerFunc {
	cfg := defaultHandlerConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.PanicRecovery {
			defer func() {
				if v := recover(); v != nil {
					cfg.PanicHandler(w, r, v)
				}
			}()
		}

		scope, err := dicore.FromContext(r.Context())
		if err != nil {
			cfg.ScopeErrorHandler(w, r, err)
			return
		}

		var controller T
		if overrides == nil {
			controller, err = dicore.Resolve[T](scope)
		} else {
			controller, err = dicore.MakeWith[T](scope, overrides(r))
		}
		if err != nil {
			cfg.ResolutionErrorHandler(w, r, err)
			return
		}

		method(controller, w, r)
	}
}
