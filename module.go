package dicore

// ModuleOption is a registration action within a module.
type ModuleOption func(*Container) error

// NewModule groups related registrations under a name. Modules nest, and a
// failing registration is reported as a ModuleError naming the module.
//
//	var StorageModule = dicore.NewModule("storage",
//	    dicore.AddSingleton(NewDatabase),
//	    dicore.AddScoped(NewUserRepository),
//	)
//
//	var AppModule = dicore.NewModule("app",
//	    StorageModule,
//	    dicore.AddTransient(NewUserHandler),
//	    dicore.AddExtender(dicore.Wildcard, traceExtender),
//	)
//
//	err := c.AddModules(AppModule)
func NewModule(name string, builders ...ModuleOption) ModuleOption {
	return func(c *Container) error {
		for _, builder := range builders {
			if builder == nil {
				continue
			}

			if err := builder(c); err != nil {
				return ModuleError{Module: name, Cause: err}
			}
		}

		return nil
	}
}

// AddModules applies modules in order and stops at the first failure.
func (c *Container) AddModules(modules ...ModuleOption) error {
	for _, module := range modules {
		if module == nil {
			continue
		}
		if err := module(c); err != nil {
			return err
		}
	}
	return nil
}

// AddSingleton creates a ModuleOption registering a singleton constructor.
func AddSingleton(constructor any, opts ...ClassOption) ModuleOption {
	return func(c *Container) error {
		return c.Singleton(constructor, opts...)
	}
}

// AddScoped creates a ModuleOption registering a scoped constructor.
func AddScoped(constructor any, opts ...ClassOption) ModuleOption {
	return func(c *Container) error {
		return c.Scoped(constructor, opts...)
	}
}

// AddTransient creates a ModuleOption registering a transient constructor.
func AddTransient(constructor any, opts ...ClassOption) ModuleOption {
	return func(c *Container) error {
		return c.Transient(constructor, opts...)
	}
}

// AddProvider creates a ModuleOption providing a class without binding it.
func AddProvider(constructor any, opts ...ClassOption) ModuleOption {
	return func(c *Container) error {
		return c.Provide(constructor, opts...)
	}
}

// AddBinding creates a ModuleOption binding id to concrete.
func AddBinding(id string, concrete Concrete, lifetime Lifetime, opts ...BindOption) ModuleOption {
	return func(c *Container) error {
		return c.Bind(id, concrete, lifetime, opts...)
	}
}

// AddInstance creates a ModuleOption binding a pre-built value.
func AddInstance(id string, value any, opts ...BindOption) ModuleOption {
	return func(c *Container) error {
		return c.Instance(id, value, opts...)
	}
}

// AddFactory creates a ModuleOption binding id to a factory.
func AddFactory(id string, fn Factory, lifetime Lifetime, opts ...BindOption) ModuleOption {
	return func(c *Container) error {
		return c.Factory(id, fn, lifetime, opts...)
	}
}

// AddExtender creates a ModuleOption registering an extender.
func AddExtender(id string, fn Extender) ModuleOption {
	return func(c *Container) error {
		return c.Extend(id, fn)
	}
}

// AddTag creates a ModuleOption tagging already registered services.
func AddTag(tag string, ids ...string) ModuleOption {
	return func(c *Container) error {
		return c.Tag(tag, ids...)
	}
}
