package template

import (
	"context"
	"errors"
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/Readm/mmu_sim/constraint"
	"github.com/Readm/mmu_sim/engine"
	"github.com/Readm/mmu_sim/memory"
	"github.com/Readm/mmu_sim/mmu"
)

// LoadTemplate evaluates a template script against spec.
func LoadTemplate(src string, spec *mmu.Spec) (engine.Template, error) {
	return LoadTemplateContext(context.Background(), src, spec)
}

// LoadTemplateContext is LoadTemplate with a context that stops the script.
func LoadTemplateContext(ctx context.Context, src string, spec *mmu.Spec) (engine.Template, error) {
	if spec == nil {
		return engine.Template{}, errors.New("memory subsystem cannot be nil")
	}
	L := newState(ctx)
	defer L.Close()

	var (
		accesses []memory.Access
		targets  []int
		errs     []error
	)
	cb := constraint.NewBuilder(spec)

	declare(L, "access", func(L *lua.LState, t *lua.LTable) {
		op, err := memory.ParseOperation(stringField(L, t, "op", true))
		if err != nil {
			L.RaiseError("%v", err)
		}
		path, err := parsePath(L, spec, t)
		if err != nil {
			errs = append(errs, fmt.Errorf("access %d: %w", len(accesses), err))
			return
		}
		count := intField(L, t, "count", 1, false)
		if count < 1 {
			L.RaiseError("field \"count\" must be positive, got %d", count)
		}
		for i := 0; i < count; i++ {
			accesses = append(accesses, memory.Access{Op: op, Path: path})
		}
	})
	declare(L, "constrain", func(L *lua.LState, t *lua.LTable) {
		access := intField(L, t, "access", constraint.AllAccesses, false)
		bias := intField(L, t, "bias", 100, false)
		cb.Variable(access, stringField(L, t, "field", true), distribution(L, t), bias)
		targets = append(targets, access)
	})
	declare(L, "events", func(L *lua.LState, t *lua.LTable) {
		cb.Events(stringField(L, t, "buffer", true), stringList(L, t, "allow")...)
	})

	if err := L.DoString(src); err != nil {
		return engine.Template{}, fmt.Errorf("template script: %w", err)
	}
	for _, a := range targets {
		if a >= len(accesses) {
			errs = append(errs, fmt.Errorf("constraint targets access %d of %d", a, len(accesses)))
		}
	}
	set, err := cb.Build()
	if err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return engine.Template{}, err
	}
	return engine.Template{Accesses: accesses, Constraints: set}, nil
}

// parsePath reads path entries written as "L1:HIT" or { buffer = "L1", event = "HIT" }.
func parsePath(L *lua.LState, spec *mmu.Spec, t *lua.LTable) (memory.Path, error) {
	list, ok := t.RawGetString("path").(*lua.LTable)
	if !ok {
		L.RaiseError("field \"path\" must be a list")
	}
	var (
		entries []memory.PathEntry
		errs    []error
	)
	for i := 1; i <= list.Len(); i++ {
		var name, event string
		switch item := list.RawGetInt(i).(type) {
		case lua.LString:
			var found bool
			name, event, found = strings.Cut(string(item), ":")
			if !found {
				L.RaiseError("path[%d]: expected \"buffer:event\", got %q", i, string(item))
			}
		case *lua.LTable:
			name = stringField(L, item, "buffer", true)
			event = stringField(L, item, "event", true)
		default:
			L.RaiseError("path[%d]: expected a string or a table", i)
		}
		buf, err := spec.Buffer(strings.TrimSpace(name))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		e, err := memory.ParseEvent(event)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		entries = append(entries, memory.PathEntry{Buffer: buf.ID, Event: e})
	}
	if err := errors.Join(errs...); err != nil {
		return memory.Path{}, err
	}
	return memory.NewPath(entries...)
}
