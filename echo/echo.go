// Package echo serves Echo routes from request scopes of a dicore container.
//
//	c := dicore.New()
//	_ = c.Scoped(NewUserController)
//
//	e := echo.New()
//	e.Use(diecho.ScopeMiddleware(c))
//	e.GET("/users/:id", diecho.Handle((*UserController).GetByID))
package echo

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/junioryono/dicore"
)

// Config holds the configuration for the scope middleware.
type Config struct {
	// ErrorHandler is called when the scope cannot be opened or a hook fails.
	ErrorHandler func(echo.Context, error) error

	// CloseErrorHandler is called when closing the scope fails.
	CloseErrorHandler func(error)

	// Hooks run in order after the scope is opened.
	Hooks []func(*dicore.Scope, echo.Context) error
}

// Option configures the scope middleware.
type Option func(*Config)

// WithErrorHandler sets the handler for scope and hook failures.
func WithErrorHandler(h func(echo.Context, error) error) Option {
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

// WithHook adds a function run after the scope is opened.
func WithHook(hook func(*dicore.Scope, echo.Context) error) Option {
	return func(c *Config) {
		c.Hooks = append(c.Hooks, hook)
	}
}

func defaultConfig() *Config {
	return &Config{
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusInternalServerError, "Internal Server Error")
		},
		CloseErrorHandler: func(err error) {
			slog.Error("failed to close request scope", "error", err)
		},
	}
}

// ScopeMiddleware opens a scope of container for each request and closes it
// when the request completes. The scope is found with dicore.FromContext on
// the request context.
func ScopeMiddleware(container *dicore.Container, opts ...Option) echo.MiddlewareFunc {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			scope, err := container.BeginScope(c.Request().Context())
			if err != nil {
				return cfg.ErrorHandler(c, err)
			}

			defer func() {
				if err := scope.Close(); err != nil {
					cfg.CloseErrorHandler(err)
				}
			}()

			c.SetRequest(c.Request().WithContext(scope.Context()))

			for _, hook := range cfg.Hooks {
				if err := hook(scope, c); err != nil {
					return cfg.ErrorHandler(c, err)
				}
			}

			return next(c)
		}
	}
}

// HandlerConfig holds configuration for the Handle wrappers.
type HandlerConfig struct {
	PanicRecovery bool

	PanicHandler func(echo.Context, any) error

	ScopeErrorHandler func(echo.Context, error) error

	ResolutionErrorHandler func(echo.Context, error) error
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
func WithPanicHandler(h func(echo.Context, any) error) HandlerOption {
	return func(c *HandlerConfig) {
		c.PanicHandler = h
	}
}

// WithScopeErrorHandler sets the handler for requests without a scope.
func WithScopeErrorHandler(h func(echo.Context, error) error) HandlerOption {
	return func(c *HandlerConfig) {
		c.ScopeErrorHandler = h
	}
}

// WithResolutionErrorHandler sets the handler for resolution failures.
func WithResolutionErrorHandler(h func(echo.Context, error) error) HandlerOption {
	return func(c *HandlerConfig) {
		c.ResolutionErrorHandler = h
	}
}

func defaultHandlerConfig() *HandlerConfig {
	return &HandlerConfig{
		PanicHandler: func(c echo.Context, v any) error {
			slog.Error("panic in handler", "panic", v)
			return echo.NewHTTPError(http.StatusInternalServerError, "Internal Server Error")
		},
		ScopeErrorHandler: func(c echo.Context, err error) error {
			slog.Error("failed to get scope from context", "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "Internal Server Error")
		},
		ResolutionErrorHandler: func(c echo.Context, err error) error {
			slog.Error("failed to resolve controller", "error", err)
			if dicore.IsNotFound(err) {
				return echo.NewHTTPError(http.StatusNotFound, "Not Found")
			}
			return echo.NewHTTPError(http.StatusInternalServerError, "Internal Server Error")
		},
	}
}

// Handle resolves the controller T from the request scope and calls method.
func Handle[T any](method func(T, echo.Context) error, opts ...HandlerOption) echo.HandlerFunc {
	return handle(method, nil, opts)
}

// HandleWithParams is like Handle but builds T with the route's path
// parameters as constructor overrides. T must be transient.
func HandleWithParams[T any](method func(T, echo.Context) error, opts ...HandlerOption) echo.HandlerFunc {
	return handle(method, PathParams, opts)
}

// PathParams returns the path parameters Echo matched for c.
func PathParams(c echo.Context) map[string]any {
	names, values := c.ParamNames(), c.ParamValues()
	params := make(map[string]any, len(names))
	for i, name := range names {
		if name == "*" || i >= len(values) {
			continue
		}
		params[name] = values[i]
	}
	return params
}

func handle[T any](method func(T, echo.Context) error, overrides func(echo.Context) map[string]any, opts []HandlerOption) echo.HandlerFunc {
	cfg := defaultHandlerConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return func(c echo.Context) (err error) {
		if cfg.PanicRecovery {
			defer func() {
				if v := recover(); v != nil {
					err = cfg.PanicHandler(c, v)
				}
			}()
		}

		scope, err := dicore.FromContext(c.Request().Context())
		if err != nil {
			return cfg.ScopeErrorHandler(c, err)
		}

		var controller T
		if overrides == nil {
			controller, err = dicore.Resolve[T](scope)
		} else {
			controller, err = dicore.MakeWith[T](scope, overrides(c))
		}
		if err != nil {
			return cfg.ResolutionErrorHandler(c, err)
		}

		return method(controller, c)
	}
}
