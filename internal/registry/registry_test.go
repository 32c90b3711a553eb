package registry_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/junioryono/dicore/internal/registry"
)

func TestLifetime(t *testing.T) {
	t.Run("String", func(t *testing.T) {
		tests := []struct {
			lifetime registry.Lifetime
			expected string
		}{
			{registry.Singleton, "Singleton"},
			{registry.Scoped, "Scoped"},
			{registry.Transient, "Transient"},
			{registry.Lifetime(42), "Unknown(42)"},
		}

		for _, tt := range tests {
			if got := tt.lifetime.String(); got != tt.expected {
				t.Errorf("lifetime %d: expected %q, got %q", tt.lifetime, tt.expected, got)
			}
		}
	})

	t.Run("Name", func(t *testing.T) {
		if got := registry.Scoped.Name(); got != "scoped" {
			t.Errorf("expected scoped, got %q", got)
		}
	})

	t.Run("Parse", func(t *testing.T) {
		for _, s := range []string{"singleton", "SINGLETON", " Singleton "} {
			lt, err := registry.ParseLifetime(s)
			if err != nil || lt != registry.Singleton {
				t.Errorf("ParseLifetime(%q) = %v, %v", s, lt, err)
			}
		}

		_, err := registry.ParseLifetime("forever")
		var lifetimeErr registry.LifetimeError
		if !errors.As(err, &lifetimeErr) {
			t.Fatalf("expected LifetimeError, got %v", err)
		}
	})

	t.Run("JSON", func(t *testing.T) {
		data, err := json.Marshal(registry.Transient)
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != `"Transient"` {
			t.Errorf("unexpected JSON %s", data)
		}

		var lt registry.Lifetime
		if err := json.Unmarshal([]byte(`"scoped"`), &lt); err != nil {
			t.Fatal(err)
		}
		if lt != registry.Scoped {
			t.Errorf("expected Scoped, got %v", lt)
		}

		if _, err := json.Marshal(registry.Lifetime(9)); err == nil {
			t.Error("expected error marshalling invalid lifetime")
		}
	})
}

func TestConcrete(t *testing.T) {
	none := registry.Concrete{}
	if none.Kind() != registry.ConcreteNone || none.ClassName("Logger") != "Logger" {
		t.Errorf("zero concrete should resolve to the abstract id")
	}

	class := registry.Class("FileLogger")
	if class.ClassName("Logger") != "FileLogger" {
		t.Errorf("class concrete should name its class")
	}

	factory := registry.FactoryOf(func(registry.Resolver, map[string]any) (any, error) { return 1, nil })
	if factory.Kind() != registry.ConcreteFactory || factory.ClassName("x") != "" {
		t.Errorf("factory concrete should not name a class")
	}

	instance := registry.InstanceOf("value")
	if instance.Instance() != "value" {
		t.Errorf("instance concrete should hold its value")
	}
}

func TestDefinitionValidate(t *testing.T) {
	tests := []struct {
		name string
		def  registry.Definition
		want error
	}{
		{"empty id", registry.Definition{}, registry.ErrAbstractIDEmpty},
		{"empty class", registry.Definition{AbstractID: "a", Concrete: registry.Class("")}, registry.ErrClassNameEmpty},
		{"nil factory", registry.Definition{AbstractID: "a", Concrete: registry.FactoryOf(nil)}, registry.ErrFactoryNil},
		{"valid", registry.Definition{AbstractID: "a", Lifetime: registry.Scoped}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate()
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	invalid := registry.Definition{AbstractID: "a", Lifetime: registry.Lifetime(7)}
	var lifetimeErr registry.LifetimeError
	if !errors.As(invalid.Validate(), &lifetimeErr) {
		t.Error("expected LifetimeError for invalid lifetime")
	}
}

func TestStore(t *testing.T) {
	store := registry.NewStore()

	for _, id := range []string{"c", "a", "b"} {
		if err := store.Add(&registry.Definition{AbstractID: id, Tags: []string{"letters"}}); err != nil {
			t.Fatal(err)
		}
	}

	// Replacing keeps the original position.
	if err := store.Add(&registry.Definition{AbstractID: "a", Lifetime: registry.Singleton}); err != nil {
		t.Fatal(err)
	}

	all := store.All()
	if len(all) != 3 || all[0].AbstractID != "c" || all[1].AbstractID != "a" || all[2].AbstractID != "b" {
		t.Fatalf("unexpected order: %v", all)
	}

	if def, ok := store.Get("a"); !ok || def.Lifetime != registry.Singleton {
		t.Errorf("expected replaced definition for a")
	}

	if got := store.Tagged("letters"); len(got) != 2 {
		t.Errorf("expected 2 tagged definitions, got %d", len(got))
	}

	store.Remove("c")
	if store.Has("c") || store.Len() != 2 {
		t.Error("remove did not drop the definition")
	}
}

func TestStoreExtenders(t *testing.T) {
	store := registry.NewStore()
	var calls []string

	record := func(name string) registry.Extender {
		return func(instance any, _ registry.Resolver) (any, error) {
			calls = append(calls, name)
			return instance, nil
		}
	}

	_ = store.AddExtender(registry.Wildcard, record("wild"))
	_ = store.AddExtender("svc", record("first"))
	_ = store.AddExtender("svc", record("second"))

	for _, ext := range store.Extenders("svc") {
		_, _ = ext(nil, nil)
	}

	expected := []string{"first", "second", "wild"}
	if len(calls) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, calls)
	}
	for i := range expected {
		if calls[i] != expected[i] {
			t.Errorf("position %d: expected %s, got %s", i, expected[i], calls[i])
		}
	}

	if err := store.AddExtender("svc", nil); !errors.Is(err, registry.ErrExtenderNil) {
		t.Errorf("expected ErrExtenderNil, got %v", err)
	}
}
