// Package gin serves Gin routes from request scopes of a dicore container.
//
//	c := dicore.New()
//	_ = c.Scoped(NewUserController)
//
//	g := gin.New()
//	g.Use(digin.ScopeMiddleware(c))
//	g.GET("/users/:id", digin.Handle((*UserController).GetByID))
package gin

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/junioryono/dicore"
)

// Config holds the configuration for the scope middleware.
type Config struct {
	// ErrorHandler is called when the scope cannot be opened or a hook fails.
	// It must abort the request.
	ErrorHandler func(*gin.Context, error)

	// CloseErrorHandler is called when closing the scope fails.
	CloseErrorHandler func(error)

	// Hooks run in order after the scope is opened.
	//
	//	digin.ScopeMiddleware(c,
	//	    digin.WithHook(func(scope *dicore.Scope, ctx *gin.Context) error {
	//	        session := dicore.MustResolve[*Session](scope)
	//	        session.UserID = ctx.GetHeader("X-User-ID")
	//	        return nil
	//	    }),
	//	)
	Hooks []func(*dicore.Scope, *gin.Context) error
}

// Option configures the scope middleware.
type Option func(*Config)

// WithErrorHandler sets the handler for scope and hook failures.
func WithErrorHandler(h func(*gin.Context, error)) Option {
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
func WithHook(hook func(*dicore.Scope, *gin.Context) error) Option {
	return func(c *Config) {
		c.Hooks = append(c.Hooks, hook)
	}
}

func abortInternal(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error": "Internal Server Error",
	})
}

func defaultConfig() *Config {
	return &Config{
		ErrorHandler: func(c *gin.Context, err error) {
			abortInternal(c)
		},
		CloseErrorHandler: func(err error) {
			slog.Error("failed to close request scope", "error", err)
		},
	}
}

// ScopeMiddleware opens a scope of container for each request and closes it
// after the remaining handlers ran. The scope is found with
// dicore.FromContext on the request context.
func ScopeMiddleware(container *dicore.Container, opts ...Option) gin.HandlerFunc {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return func(c *gin.Context) {
		scope, err := container.BeginScope(c.Request.Context())
		if err != nil {
			cfg.ErrorHandler(c, err)
			return
		}

		defer func() {
			if err := scope.Close(); err != nil {
				cfg.CloseErrorHandler(err)
			}
		}()

		c.Request = c.Request.WithContext(scope.Context())

		for _, hook := range cfg.Hooks {
			if err := hook(scope, c); err != nil {
				cfg.ErrorHandler(c, err)
				return
			}
		}

		c.Next()
	}
}

// HandlerConfig holds configuration for the Handle wrappers.
type HandlerConfig struct {
	// PanicRecovery enables panic recovery in the handler.
	PanicRecovery bool

	PanicHandler func(*gin.Context, any)

	ScopeErrorHandler func(*gin.Context, error)

	// ResolutionErrorHandler defaults to 404 for unknown controllers and 500
	// otherwise.
	ResolutionErrorHandler func(*gin.Context, error)
}

// HandlerOption configures the Handle wrappers.
type HandlerOption func(*HandlerConfig)

// WithPanicRecovery enables or disables panic recovery in the handler.
func WithPanicRecovery(enabled bool) HandlerOption {
	return func(c *HandlerConfig) {
		c.PanicRecovery = enabled
	}
}

// WithPanicHandler sets the handler for panics (requires WithPanicRecovery(true)).
func WithPanicHandler(h func(*gin.Context, any)) HandlerOption {
	return func(c *HandlerConfig) {
		c.PanicHandler = h
	}
}

// WithScopeErrorHandler sets the handler for requests without a scope.
func WithScopeErrorHandler(h func(*gin.Context, error)) HandlerOption {
	return func(c *HandlerConfig) {
		c.ScopeErrorHandler = h
	}
}

// WithResolutionErrorHandler sets the handler for resolution failures.
func WithResolutionErrorHandler(h func(*gin.Context, error)) HandlerOption {
	return func(c *HandlerConfig) {
		c.ResolutionErrorHandler = h
	}
}

func defaultHandlerConfig() *HandlerConfig {
	return &HandlerConfig{
		PanicHandler: func(c *gin.Context, r any) {
			slog.Error("panic in handler", "panic", r)
			abortInternal(c)
		},
		ScopeErrorHandler: func(c *gin.Context, err error) {
			slog.Error("failed to get scope from context", "error", err)
			abortInternal(c)
		},
		ResolutionErrorHandler: func(c *gin.Context, err error) {
			slog.Error("failed to resolve controller", "error", err)
			if dicore.IsNotFound(err) {
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Not Found"})
				return
			}
			abortInternal(c)
		},
	}
}

// Handle resolves the controller T from the request scope and calls method.
func Handle[T any](method func(T, *gin.Context), opts ...HandlerOption) gin.HandlerFunc {
	return handle(method, nil, opts)
}

// HandleWithParams is like Handle but builds T with the route's path
// parameters as constructor overrides. T must be transient.
func HandleWithParams[T any](method func(T, *gin.Context), opts ...HandlerOption) gin.HandlerFunc {
	return handle(method, PathParams, opts)
}

// PathParams returns the path parameters Gin matched for c.
func PathParams(c *gin.Context) map[string]any {
	params := make(map[string]any, len(c.Params))
	for _, p := range c.Params {
		params[p.Key] = p.Value
	}
	return params
}

func handle[T any](method func(T, *gin.Context), overrides func(*gin.Context) map[string]any, opts []HandlerOption) gin.HandlerFunc {
	cfg := defaultHandlerConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return func(c *gin.Context) {
		if cfg.PanicRecovery {
			defer func() {
				if r := recover(); r != nil {
					cfg.PanicHandler(c, r)
				}
			}()
		}

		scope, err := dicore.FromContext(c.Request.Context())
		if err != nil {
			cfg.ScopeErrorHandler(c, err)
			return
		}

		var controller T
		if overrides == nil {
			controller, err = dicore.Resolve[T](scope)
		} else {
			controller, err = dicore.MakeWith[T](scope, overrides(c))
		}
		if err != nil {
			cfg.ResolutionErrorHandler(c, err)
			return
		}

		method(controller, c)
	}
}
