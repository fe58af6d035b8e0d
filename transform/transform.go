// Package transform provides the pure text mappings applied by the stage.
// Any pure text-to-text mapping can be substituted without changing the
// stage contract; transformers are selected by name through the registry.
package transform

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// DefaultName is the transformer applied when none is configured.
const DefaultName = "uppercase"

// Transformer is a pure text-to-text mapping. Apply must be deterministic
// and free of side effects: the same input always yields the same output.
type Transformer interface {
	Name() string
	Apply(text string) string
}

// Uppercase maps all characters to their upper case.
type Uppercase struct{}

func (Uppercase) Name() string { return "uppercase" }
func (Uppercase) Apply(text string) string { return strings.ToUpper(text) }

// Lowercase maps all characters to their lower case.
type Lowercase struct{}

func (Lowercase) Name() string { return "lowercase" }
func (Lowercase) Apply(text string) string { return strings.ToLower(text) }

// Func adapts a plain function into a Transformer.
type Func struct {
	FuncName string
	Fn       func(string) string
}

func (f Func) Name() string { return f.FuncName }
func (f Func) Apply(text string) string { return f.Fn(text) }

var (
	registryMu sync.RWMutex
	registry   = map[string]Transformer{}
)

func init() {
	Register(Uppercase{})
	Register(Lowercase{})
}

// Register adds a transformer to the registry under its name, replacing any
// previous registration.
func Register(t Transformer) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[t.Name()] = t
}

// Lookup resolves a transformer by name. An empty name resolves to
// DefaultName.
func Lookup(name string) (Transformer, error) {
	if name == "" {
		name = DefaultName
	}
	registryMu.RLock()
	defer registryMu.RUnlock()
	t, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown transform %q (registered: %s)",
			name, strings.Join(names(), ", "))
	}
	return t, nil
}

// Registered reports whether a transformer name is known. An empty name is
// valid and resolves to the default.
func Registered(name string) bool {
	if name == "" {
		return true
	}
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[name]
	return ok
}

// names must be called with registryMu held.
func names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
