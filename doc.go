// Package dicore is a dependency injection container whose resolutions run
// through an ordered pipeline of steps over a per-call resolution context.
//
// # Overview
//
// Every call to Get, Make, Inject or Call runs the same chain:
//
//	RetrieveFromScope → DepthGuard → CircularDependencyCheck → GuardPolicy →
//	EnsureDefinitionExists → AnalyzePrototype → ResolveInstance →
//	InjectDependencies → ApplyExtenders → InvokePostConstruct → StoreLifecycle
//
// followed, in dev mode, by CollectDiagnostics. Nested dependencies run the
// same chain in a child context, so depth limits, cycle detection and policies
// apply at every level.
//
// # Basic Usage
//
//	c := dicore.New()
//	defer c.Close()
//
//	_ = c.Singleton(NewLogger)
//	_ = c.Scoped(NewUserService)
//
//	svc, err := dicore.Resolve[*UserService](c)
//
// Services are identified by strings. Types registered through constructors
// use their type name, as returned by NameOf:
//
//	dicore.NameOf[*UserService]() // "*example.com/app.UserService"
//
// # Lifetimes
//
//   - Singleton: one instance for the container; io.Closer singletons are closed by Close
//   - Scoped: one instance per scope; io.Closer instances are closed with the scope
//   - Transient: a new instance on every resolution
//
// Custom lifetimes are added with WithLifecycleStrategy.
//
// # Bindings
//
// Interfaces and arbitrary ids are bound to classes, factories or instances:
//
//	_ = dicore.BindType[Logger, *FileLogger](c, dicore.Singleton)
//	_ = c.Factory("clock", func(r dicore.Resolver, _ map[string]any) (any, error) {
//	    return time.Now, nil
//	}, dicore.Transient)
//	_ = c.Instance("config", cfg)
//
// # Injection Metadata
//
// Constructor parameters resolve, in order, from overrides passed to Make, from
// services of their type, from defaults and finally to their zero value when
// nullable:
//
//	_ = c.Transient(NewMailer,
//	    dicore.WithParamNames("logger", "host", "port"),
//	    dicore.WithParamDefault("port", 25),
//	)
//	m, err := c.Make(dicore.NameOf[*Mailer](), map[string]any{"host": "smtp.local"})
//
// Exported struct fields tagged `inject:""` are populated after construction;
// `inject:"id"` selects a service id and `inject:",optional"` leaves the field
// unset when nothing resolves. WithSetter and WithPostConstruct, or a method
// named PostConstruct, run once injection is done.
//
// # Extenders and Tags
//
//	_ = c.Extend(dicore.NameOf[Logger](), func(l any, _ dicore.Resolver) (any, error) {
//	    return &prefixLogger{inner: l.(Logger)}, nil
//	})
//	_ = c.Tag("reports", dicore.NameOf[*SalesReport](), dicore.NameOf[*StockReport]())
//	reports, err := dicore.ResolveTagged[Report](c, "reports")
//
// # Scopes
//
//	scope, err := c.BeginScope(r.Context())
//	if err != nil {
//	    return err
//	}
//	defer scope.Close()
//
//	svc, err := dicore.Resolve[*UserService](scope)
//
// The chi sub-package opens one scope per HTTP request.
//
// # Strict Mode
//
// In strict mode, analysis failures and non-instantiable classes fail the
// resolution and auto-definition is off. Otherwise invalid injection points are
// dropped with a warning and unregistered classes seen as dependencies are built
// as transient services.
//
// # Ahead-of-time Checks
//
// Compile analyzes every bound class and reports failures and dependency cycles
// without stopping at the first one:
//
//	report, err := c.Compile(ctx)
//	if err == nil && !report.OK() {
//	    log.Printf("%d failed, cycles: %v", report.Failed, report.Cycles)
//	}
//
// # Error Handling
//
// Failures are typed and wrap sentinel errors, so both errors.As and errors.Is
// work:
//   - ResolutionError (ErrServiceNotFound, ErrAnalysis, ErrNotInstantiable)
//   - CircularDependencyError (ErrCircularDependency)
//   - DepthExceededError (ErrMaxDepthExceeded)
//   - PolicyViolationError (ErrPolicyViolation)
//   - InstantiationError (ErrInstantiation)
//
// # Thread Safety
//
// Containers and scopes may be used from multiple goroutines. Concurrent
// resolutions of one singleton agree on a single instance.
package dicore
