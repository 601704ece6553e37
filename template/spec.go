package template

import (
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/Readm/mmu_sim/mmu"
)

// LoadSpec evaluates a subsystem script.
func LoadSpec(src string) (*mmu.Spec, error) {
	return LoadSpecContext(context.Background(), src)
}

// LoadSpecContext is LoadSpec with a context that stops the script.
func LoadSpecContext(ctx context.Context, src string) (*mmu.Spec, error) {
	L := newState(ctx)
	defer L.Close()

	b := mmu.NewBuilder()
	declare(L, "variable", func(L *lua.LState, t *lua.LTable) {
		b.Variable(stringField(L, t, "name", true), intField(L, t, "width", 0, true))
	})
	declare(L, "address", func(L *lua.LState, t *lua.LTable) {
		name := stringField(L, t, "name", true)
		variable := stringField(L, t, "variable", false)
		if variable == "" {
			variable = name
		}
		b.Address(name, variable)
	})
	declare(L, "buffer", func(L *lua.LState, t *lua.LTable) {
		sets := intField(L, t, "sets", 1, false)
		if sets < 1 {
			L.RaiseError("field \"sets\" must be positive, got %d", sets)
		}
		b.Buffer(mmu.BufferConfig{
			Name:        stringField(L, t, "name", true),
			Address:     stringField(L, t, "address", true),
			Ways:        intField(L, t, "ways", 0, true),
			Sets:        uint64(sets),
			Policy:      stringField(L, t, "policy", true),
			Replaceable: boolField(L, t, "replaceable"),
			Parent:      stringField(L, t, "parent", false),
			Tag:         stringField(L, t, "tag", true),
			Index:       stringField(L, t, "index", false),
			Offset:      stringField(L, t, "offset", false),
		})
	})

	if err := L.DoString(src); err != nil {
		return nil, fmt.Errorf("subsystem script: %w", err)
	}
	return b.Build()
}
