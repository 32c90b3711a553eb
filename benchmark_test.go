package dicore

import (
	"context"
	"log/slog"
	"testing"

	"go.uber.org/dig"
)

// Benchmark service types
type BenchService struct {
	Name string
}

type BenchDep1 struct{ Value int }
type BenchDep2 struct{ Value int }
type BenchDep3 struct{ Value int }

type BenchServiceWith3Deps struct {
	Dep1 *BenchDep1
	Dep2 *BenchDep2
	Dep3 *BenchDep3
}

func NewBenchService() *BenchService {
	return &BenchService{Name: "bench"}
}

func NewBenchDep1() *BenchDep1 { return &BenchDep1{Value: 1} }
func NewBenchDep2() *BenchDep2 { return &BenchDep2{Value: 2} }
func NewBenchDep3() *BenchDep3 { return &BenchDep3{Value: 3} }

func NewBenchServiceWith3Deps(dep1 *BenchDep1, dep2 *BenchDep2, dep3 *BenchDep3) *BenchServiceWith3Deps {
	return &BenchServiceWith3Deps{Dep1: dep1, Dep2: dep2, Dep3: dep3}
}

func newBenchContainer(b *testing.B, lifetime Lifetime) *Container {
	b.Helper()

	c := New(WithLogger(slog.New(slog.DiscardHandler)))
	b.Cleanup(func() { _ = c.Close() })

	for _, ctor := range []any{NewBenchService, NewBenchDep1, NewBenchDep2, NewBenchDep3, NewBenchServiceWith3Deps} {
		if err := c.Register(ctor, lifetime); err != nil {
			b.Fatal(err)
		}
	}
	return c
}

func BenchmarkResolution(b *testing.B) {
	cases := []struct {
		name     string
		lifetime Lifetime
	}{
		{"Singleton", Singleton},
		{"Scoped", Scoped},
		{"Transient", Transient},
	}

	for _, tc := range cases {
		b.Run(tc.name, func(b *testing.B) {
			c := newBenchContainer(b, tc.lifetime)
			scope, err := c.BeginScope(context.Background())
			if err != nil {
				b.Fatal(err)
			}
			defer scope.Close()

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := Resolve[*BenchServiceWith3Deps](scope); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkConcurrentResolution(b *testing.B) {
	c := newBenchContainer(b, Singleton)

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := Resolve[*BenchServiceWith3Deps](c); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

func BenchmarkScopeCreation(b *testing.B) {
	c := newBenchContainer(b, Scoped)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		scope, err := c.BeginScope(context.Background())
		if err != nil {
			b.Fatal(err)
		}
		if _, err := Resolve[*BenchService](scope); err != nil {
			b.Fatal(err)
		}
		_ = scope.Close()
	}
}

func BenchmarkCompile(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		c := newBenchContainer(b, Transient)
		if _, err := c.Compile(context.Background()); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkDig measures the same graph built with go.uber.org/dig, which
// caches every constructed value like a singleton.
func BenchmarkDig(b *testing.B) {
	b.Run("Singleton", func(b *testing.B) {
		c := dig.New()
		for _, ctor := range []any{NewBenchService, NewBenchDep1, NewBenchDep2, NewBenchDep3, NewBenchServiceWith3Deps} {
			if err := c.Provide(ctor); err != nil {
				b.Fatal(err)
			}
		}

		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			if err := c.Invoke(func(*BenchServiceWith3Deps) {}); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("Transient", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			c := dig.New()
			for _, ctor := range []any{NewBenchDep1, NewBenchDep2, NewBenchDep3, NewBenchServiceWith3Deps} {
				if err := c.Provide(ctor); err != nil {
					b.Fatal(err)
				}
			}
			if err := c.Invoke(func(*BenchServiceWith3Deps) {}); err != nil {
				b.Fatal(err)
			}
		}
	})
}

// TestDigParity checks that both containers build the same graph.
func TestDigParity(t *testing.T) {
	d := dig.New()
	for _, ctor := range []any{NewBenchDep1, NewBenchDep2, NewBenchDep3, NewBenchServiceWith3Deps} {
		if err := d.Provide(ctor); err != nil {
			t.Fatal(err)
		}
	}

	var fromDig *BenchServiceWith3Deps
	if err := d.Invoke(func(s *BenchServiceWith3Deps) { fromDig = s }); err != nil {
		t.Fatal(err)
	}

	c, _ := newTestContainer(t)
	for _, ctor := range []any{NewBenchDep1, NewBenchDep2, NewBenchDep3, NewBenchServiceWith3Deps} {
		if err := c.Singleton(ctor); err != nil {
			t.Fatal(err)
		}
	}
	fromContainer, err := Resolve[*BenchServiceWith3Deps](c)
	if err != nil {
		t.Fatal(err)
	}

	if *fromDig.Dep1 != *fromContainer.Dep1 || *fromDig.Dep2 != *fromContainer.Dep2 || *fromDig.Dep3 != *fromContainer.Dep3 {
		t.Fatalf("graphs differ: dig %+v, container %+v", fromDig, fromContainer)
	}
}
