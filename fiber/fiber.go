// Package fiber serves Fiber routes from request scopes of a dicore
// container.
//
//	c := dicore.New()
//	_ = c.Scoped(NewUserController)
//
//	app := fiber.New()
//	app.Use(difiber.ScopeMiddleware(c))
//	app.Get("/users/:id", difiber.Handle((*UserController).GetByID))
package fiber

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/junioryono/dicore"
)

// scopeKey is the fiber.Ctx.Locals key holding the request scope.
const scopeKey = "dicore_scope"

// Config holds the configuration for the scope middleware.
type Config struct {
	// ErrorHandler is called when the scope cannot be opened or a hook fails.
	ErrorHandler func(*fiber.Ctx, error) error

	// CloseErrorHandler is called when closing the scope fails.
	CloseErrorHandler func(error)

	// Hooks run in order after the scope is opened.
	Hooks []func(*dicore.Scope, *fiber.Ctx) error
}

// Option configures the scope middleware.
type Option func(*Config)

// WithErrorHandler sets the handler for scope and hook failures.
func WithErrorHandler(h func(*fiber.Ctx, error) error) Option {
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
func WithHook(hook func(*dicore.Scope, *fiber.Ctx) error) Option {
	return func(c *Config) {
		c.Hooks = append(c.Hooks, hook)
	}
}

func respond(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": message})
}

func defaultConfig() *Config {
	return &Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return respond(c, fiber.StatusInternalServerError, "Internal Server Error")
		},
		CloseErrorHandler: func(err error) {
			slog.Error("failed to close request scope", "error", err)
		},
	}
}

// ScopeMiddleware opens a scope of container for each request. The scope is
// stored in fiber.Ctx.Locals and its context becomes the UserContext. It is
// closed after the handler chain returns.
func ScopeMiddleware(container *dicore.Container, opts ...Option) fiber.Handler {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return func(c *fiber.Ctx) error {
		scope, err := container.BeginScope(c.UserContext())
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}

		defer func() {
			if err := scope.Close(); err != nil {
				cfg.CloseErrorHandler(err)
			}
		}()

		c.SetUserContext(scope.Context())
		c.Locals(scopeKey, scope)

		for _, hook := range cfg.Hooks {
			if err := hook(scope, c); err != nil {
				return cfg.ErrorHandler(c, err)
			}
		}

		return c.Next()
	}
}

// HandlerConfig holds configuration for the Handle wrappers.
type HandlerConfig struct {
	PanicRecovery bool

	PanicHandler func(*fiber.Ctx, any) error

	ScopeErrorHandler func(*fiber.Ctx, error) error

	ResolutionErrorHandler func(*fiber.Ctx, error) error
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
func WithPanicHandler(h func(*fiber.Ctx, any) error) HandlerOption {
	return func(c *HandlerConfig) {
		c.PanicHandler = h
	}
}

// WithScopeErrorHandler sets the handler for requests without a scope.
func WithScopeErrorHandler(h func(*fiber.Ctx, error) error) HandlerOption {
	return func(c *HandlerConfig) {
		c.ScopeErrorHandler = h
	}
}

// WithResolutionErrorHandler sets the handler for resolution failures.
func WithResolutionErrorHandler(h func(*fiber.Ctx, error) error) HandlerOption {
	return func(c *HandlerConfig) {
		c.ResolutionErrorHandler = h
	}
}

func defaultHandlerConfig() *HandlerConfig {
	return &HandlerConfig{
		PanicHandler: func(c *fiber.Ctx, v any) error {
			slog.Error("panic in handler", "panic", v)
			return respond(c, fiber.StatusInternalServerError, "Internal Server Error")
		},
		ScopeErrorHandler: func(c *fiber.Ctx, err error) error {
			slog.Error("failed to get scope from context", "error", err)
			return respond(c, fiber.StatusInternalServerError, "Internal Server Error")
		},
		ResolutionErrorHandler: func(c *fiber.Ctx, err error) error {
			slog.Error("failed to resolve controller", "error", err)
			if dicore.IsNotFound(err) {
				return respond(c, fiber.StatusNotFound, "Not Found")
			}
			return respond(c, fiber.StatusInternalServerError, "Internal Server Error")
		},
	}
}

// Handle resolves the controller T from the request scope and calls method.
func Handle[T any](method func(T, *fiber.Ctx) error, opts ...HandlerOption) fiber.Handler {
	return handle(method, nil, opts)
}

// HandleWithParams is like Handle but builds T with the route's path
// parameters as constructor overrides. T must be transient.
func HandleWithParams[T any](method func(T, *fiber.Ctx) error, opts ...HandlerOption) fiber.Handler {
	return handle(method, PathParams, opts)
}

// PathParams returns the path parameters Fiber matched for c.
func PathParams(c *fiber.Ctx) map[string]any {
	all := c.AllParams()
	params := make(map[string]any, len(all))
	for k, v := range all {
		params[k] = v
	}
	return params
}

func handle[T any](method func(T, *fiber.Ctx) error, overrides func(*fiber.Ctx) map[string]any, opts []HandlerOption) fiber.Handler {
	cfg := defaultHandlerConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return func(c *fiber.Ctx) (err error) {
		if cfg.PanicRecovery {
			defer func() {
				if v := recover(); v != nil {
					err = cfg.PanicHandler(c, v)
				}
			}()
		}

		scope := FromContext(c)
		if scope == nil {
			return cfg.ScopeErrorHandler(c, dicore.ErrScopeNotInContext)
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

// FromContext returns the request scope stored by ScopeMiddleware, or nil.
//
//	scope := difiber.FromContext(c)
//	users := dicore.MustResolve[*UserService](scope)
func FromContext(c *fiber.Ctx) *dicore.Scope {
	scope, _ := c.Locals(scopeKey).(*dicore.Scope)
	return scope
}
