// services/backplane/internal/registry/registry.go
package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"backplane-go/errcode"
	"backplane-go/services/backplane/internal/core"
	"backplane-go/services/backplane/internal/platform"
)

// BuildInput is passed to a module builder.
type BuildInput struct {
	Board  *platform.Board
	Kind   string
	Params yaml.Node // zero when the setup gave none
	Log    *slog.Logger
}

// Decode unmarshals Params into v. Missing params leave v unchanged.
func (in BuildInput) Decode(v any) error {
	if in.Params.Kind == 0 {
		return nil
	}
	if err := in.Params.Decode(v); err != nil {
		return &errcode.E{C: errcode.InvalidParams, Op: "decode params", Msg: in.Kind, Err: err}
	}
	return nil
}

// Builder creates a module from its setup entry.
type Builder interface {
	Build(in BuildInput) (core.Module, error)
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(in BuildInput) (core.Module, error)

func (f BuilderFunc) Build(in BuildInput) (core.Module, error) { return f(in) }

var (
	mu       sync.RWMutex
	builders = map[string]Builder{}
)

func RegisterBuilder(kind string, b Builder) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := builders[kind]; exists {
		panic(fmt.Sprintf("module builder already registered for kind %q", kind))
	}
	builders[kind] = b
}

func Lookup(kind string) (Builder, bool) {
	mu.RLock()
	defer mu.RUnlock()
	b, ok := builders[kind]
	return b, ok
}

// Kinds lists registered kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(builders))
	for k := range builders {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Build looks up in.Kind and runs its builder.
func Build(in BuildInput) (core.Module, error) {
	b, ok := Lookup(in.Kind)
	if !ok {
		return nil, &errcode.E{C: errcode.UnknownKind, Op: "build", Msg: in.Kind}
	}
	return b.Build(in)
}
