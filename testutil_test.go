package dicore

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// ============================================================================
// Shared Test Types
// ============================================================================

// Logger is the interface most fixtures depend on.
type Logger interface {
	Log(msg string)
}

// MemoryLogger records messages.
type MemoryLogger struct {
	mu    sync.Mutex
	Lines []string
}

func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{}
}

func (l *MemoryLogger) Log(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Lines = append(l.Lines, msg)
}

// Database is an io.Closer dependency.
type Database struct {
	DSN     string
	closed  atomic.Bool
	onClose func()
}

func NewDatabase() *Database {
	return &Database{DSN: "mem://test"}
}

func (d *Database) Close() error {
	if d.closed.Swap(true) {
		return errors.New("database already closed")
	}
	if d.onClose != nil {
		d.onClose()
	}
	return nil
}

func (d *Database) IsClosed() bool {
	return d.closed.Load()
}

// UserRepository depends on a concrete type and an interface.
type UserRepository struct {
	DB     *Database
	Logger Logger
}

func NewUserRepository(db *Database, logger Logger) *UserRepository {
	return &UserRepository{DB: db, Logger: logger}
}

// UserService uses constructor, property and setter injection plus a
// post-construct hook.
type UserService struct {
	Repo   *UserRepository
	Logger Logger   `inject:""`
	Audit  *Auditor `inject:",optional"`

	mailer *Mailer
	ready  bool
}

func NewUserService(repo *UserRepository) *UserService {
	return &UserService{Repo: repo}
}

func (s *UserService) SetMailer(m *Mailer) {
	s.mailer = m
}

func (s *UserService) PostConstruct() {
	s.ready = true
	s.Logger.Log("user service ready")
}

// Mailer takes builtin parameters configured through class options.
type Mailer struct {
	Host string
	Port int
}

func NewMailer(host string, port int) *Mailer {
	return &Mailer{Host: host, Port: port}
}

// Auditor is never bound; it can only be auto-defined.
type Auditor struct {
	Logger Logger `inject:""`
}

// Counter counts constructions.
type Counter struct {
	N int64
}

var counterSeq atomic.Int64

func NewCounter() *Counter {
	return &Counter{N: counterSeq.Add(1)}
}

// CycleA and CycleB depend on each other.
type CycleA struct{ B *CycleB }
type CycleB struct{ A *CycleA }

func NewCycleA(b *CycleB) *CycleA { return &CycleA{B: b} }
func NewCycleB(a *CycleA) *CycleB { return &CycleB{A: a} }

// SelfRef depends on itself.
type SelfRef struct{ Next *SelfRef }

func NewSelfRef(next *SelfRef) *SelfRef { return &SelfRef{Next: next} }

// Closer records its close order.
type Closer struct {
	Name  string
	order *[]string
	mu    *sync.Mutex
	err   error
}

func (c *Closer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	*c.order = append(*c.order, c.Name)
	return c.err
}

// closeRecorder builds closers sharing one order log.
type closeRecorder struct {
	mu    sync.Mutex
	order []string
}

func (r *closeRecorder) closer(name string, err error) *Closer {
	return &Closer{Name: name, order: &r.order, mu: &r.mu, err: err}
}

func (r *closeRecorder) closed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// ============================================================================
// Helpers
// ============================================================================

// newTestContainer creates a container logging into a buffer.
func newTestContainer(t *testing.T, opts ...Option) (*Container, *bytes.Buffer) {
	t.Helper()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c := New(append([]Option{WithLogger(logger)}, opts...)...)
	t.Cleanup(func() { _ = c.Close() })
	return c, &buf
}

// registerApp registers the user service graph.
func registerApp(t *testing.T, c *Container) {
	t.Helper()

	require.NoError(t, BindType[Logger, *MemoryLogger](c, Singleton))
	require.NoError(t, c.Singleton(NewDatabase))
	require.NoError(t, c.Transient(NewUserRepository))
	require.NoError(t, c.Scoped(NewUserService, WithSetter("SetMailer", "mailer")))
	require.NoError(t, c.Singleton(NewMailer,
		WithParamNames("host", "port"),
		WithParamDefault("host", "localhost"),
		WithParamDefault("port", 25),
	))
}

// chainFactory binds ids "chain0".."chain<n-1>", each resolving the next.
func chainFactory(t *testing.T, c *Container, n int) {
	t.Helper()

	for i := 0; i < n; i++ {
		next := fmt.Sprintf("chain%d", i+1)
		last := i == n-1
		require.NoError(t, c.Factory(fmt.Sprintf("chain%d", i), func(r Resolver, _ map[string]any) (any, error) {
			if last {
				return "end", nil
			}
			return r.Resolve(next)
		}, Transient))
	}
}
