package dicore_test

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/junioryono/dicore"
)

type Logger interface {
	Log(msg string)
}

type ConsoleLogger struct {
	Prefix string
}

func (l *ConsoleLogger) Log(msg string) {
	fmt.Println(l.Prefix + msg)
}

type User struct {
	ID   int
	Name string
}

type UserStore struct {
	users map[int]User
}

func NewUserStore() *UserStore {
	return &UserStore{users: map[int]User{1: {ID: 1, Name: "John Doe"}}}
}

type UserService struct {
	Store  *UserStore
	Logger Logger `inject:""`
}

func NewUserService(store *UserStore) *UserService {
	return &UserService{Store: store}
}

func (s *UserService) GetUser(id int) User {
	s.Logger.Log(fmt.Sprintf("loading user %d", id))
	return s.Store.users[id]
}

func quietContainer(opts ...dicore.Option) *dicore.Container {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return dicore.New(append([]dicore.Option{dicore.WithLogger(logger)}, opts...)...)
}

// Example demonstrates registration and resolution.
func Example() {
	c := quietContainer()
	defer c.Close()

	if err := c.Instance(dicore.NameOf[Logger](), Logger(&ConsoleLogger{Prefix: "[app] "})); err != nil {
		log.Fatal(err)
	}
	if err := c.Singleton(NewUserStore); err != nil {
		log.Fatal(err)
	}
	if err := c.Scoped(NewUserService); err != nil {
		log.Fatal(err)
	}

	svc, err := dicore.Resolve[*UserService](c)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(svc.GetUser(1).Name)
	// Output:
	// [app] loading user 1
	// John Doe
}

// ExampleBindType binds an interface to a class.
func ExampleBindType() {
	c := quietContainer()
	defer c.Close()

	_ = dicore.BindType[Logger, *ConsoleLogger](c, dicore.Singleton)

	logger, err := dicore.Resolve[Logger](c)
	if err != nil {
		log.Fatal(err)
	}
	logger.Log("bound")
	// Output: bound
}

// ExampleContainer_BeginScope shows scoped instances shared within a scope
// and isolated between scopes.
func ExampleContainer_BeginScope() {
	c := quietContainer()
	defer c.Close()

	_ = c.Singleton(NewUserStore)
	_ = c.Scoped(NewUserService)
	_ = dicore.BindType[Logger, *ConsoleLogger](c, dicore.Singleton)

	first, _ := c.BeginScope(context.Background())
	defer first.Close()
	second, _ := c.BeginScope(context.Background())
	defer second.Close()

	a1 := dicore.MustResolve[*UserService](first)
	a2 := dicore.MustResolve[*UserService](first)
	b1 := dicore.MustResolve[*UserService](second)

	fmt.Println(a1 == a2, a1 == b1, a1.Store == b1.Store)
	// Output: true false true
}

type Greeter struct {
	Message string
}

func NewGreeter(greeting, name string) *Greeter {
	return &Greeter{Message: greeting + ", " + name}
}

// ExampleMakeWith passes constructor arguments by name.
func ExampleMakeWith() {
	c := quietContainer()
	defer c.Close()

	_ = c.Transient(NewGreeter,
		dicore.WithParamNames("greeting", "name"),
		dicore.WithParamDefault("greeting", "Hello"),
	)

	g, err := dicore.MakeWith[*Greeter](c, map[string]any{"name": "Ada"})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(g.Message)
	// Output: Hello, Ada
}

// ExampleContainer_Factory binds a closure.
func ExampleContainer_Factory() {
	c := quietContainer()
	defer c.Close()

	_ = c.Factory("greeting", func(r dicore.Resolver, params map[string]any) (any, error) {
		name, _ := params["name"].(string)
		if name == "" {
			name = "world"
		}
		return "Hello, " + name, nil
	}, dicore.Transient)

	plain, _ := c.Get("greeting")
	custom, _ := c.Make("greeting", map[string]any{"name": "Ada"})
	fmt.Println(plain)
	fmt.Println(custom)
	// Output:
	// Hello, world
	// Hello, Ada
}

// ExampleContainer_Extend decorates every instance of a service.
func ExampleContainer_Extend() {
	c := quietContainer()
	defer c.Close()

	_ = c.Instance("motd", "welcome")
	_ = c.Extend("motd", func(instance any, _ dicore.Resolver) (any, error) {
		return strings.ToUpper(instance.(string)), nil
	})

	motd, _ := dicore.ResolveID[string](c, "motd")
	fmt.Println(motd)
	// Output: WELCOME
}

// ExampleContainer_Tagged resolves a group of services.
func ExampleContainer_Tagged() {
	c := quietContainer()
	defer c.Close()

	_ = c.Instance("check.db", "database ok", dicore.WithTags("health"))
	_ = c.Instance("check.cache", "cache ok", dicore.WithTags("health"))

	checks, _ := dicore.ResolveTagged[string](c, "health")
	for _, check := range checks {
		fmt.Println(check)
	}
	// Output:
	// database ok
	// cache ok
}

// ExampleNewModule groups registrations.
func ExampleNewModule() {
	storage := dicore.NewModule("storage",
		dicore.AddSingleton(NewUserStore),
	)
	app := dicore.NewModule("app",
		storage,
		dicore.AddTransient(NewUserService),
		dicore.AddInstance(dicore.NameOf[Logger](), Logger(&ConsoleLogger{})),
	)

	c := quietContainer()
	defer c.Close()

	if err := c.AddModules(app); err != nil {
		log.Fatal(err)
	}

	fmt.Println(dicore.MustResolve[*UserService](c).Store.users[1].Name)
	// Output: John Doe
}

type Chicken struct{ Egg *Egg }
type Egg struct{ Chicken *Chicken }

func NewChicken(e *Egg) *Chicken { return &Chicken{Egg: e} }
func NewEgg(c *Chicken) *Egg     { return &Egg{Chicken: c} }

// ExampleResolutionPath reports the chain that led to a failure.
func ExampleResolutionPath() {
	c := quietContainer()
	defer c.Close()

	_ = c.Transient(NewChicken)
	_ = c.Transient(NewEgg)

	_, err := dicore.Resolve[*Chicken](c)
	fmt.Println(dicore.IsCircularDependency(err))
	fmt.Println(dicore.FormatPath(dicore.ResolutionPath(err)))
	// Output:
	// true
	// *github.com/junioryono/dicore_test.Chicken -> *github.com/junioryono/dicore_test.Egg -> *github.com/junioryono/dicore_test.Chicken
}

// ExampleContainer_Compile validates registrations ahead of time.
func ExampleContainer_Compile() {
	c := quietContainer()
	defer c.Close()

	_ = c.Singleton(NewUserStore)
	_ = c.Transient(NewChicken)
	_ = c.Transient(NewEgg)

	report, err := c.Compile(context.Background())
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(report.Compiled, report.Failed, len(report.Cycles), report.OK())
	// Output: 3 0 1 false
}

// ExampleWithDenyPatterns refuses services by id.
func ExampleWithDenyPatterns() {
	c := quietContainer(dicore.WithDenyPatterns("secret.*"))
	defer c.Close()

	_ = c.Instance("secret.token", "t0k3n")

	_, err := c.Get("secret.token")
	fmt.Println(errors.Is(err, dicore.ErrPolicyViolation))
	// Output: true
}
