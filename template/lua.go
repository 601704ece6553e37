// Package template loads memory subsystem descriptions and test templates
// written in Lua.
//
// A subsystem script declares its pieces with table calls:
//
//	variable { name = "pa", width = 36 }
//	address  { name = "PA", variable = "pa" }
//	buffer   { name = "L1", address = "PA", ways = 4, sets = 128, policy = "LRU",
//	           replaceable = true, tag = "pa[35:12]", index = "pa[11:5]", offset = "pa[4:0]" }
//
// A template script lists accesses and constraints. Access numbers start at 0
// in declaration order; a constraint without an access applies to all of
// them:
//
//	access    { op = "LOAD", path = { "L1:MISS" } }
//	access    { op = "STORE", path = { { buffer = "L1", event = "HIT" } } }
//	constrain { access = 0, field = "pa[35:12]", range = { 0x100, 0x1ff }, bias = 50 }
//	events    { buffer = "L1", allow = { "HIT", "MISS" } }
package template

import (
	"context"
	"math"
	"math/big"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/Readm/mmu_sim/integer"
)

// newState opens the libraries a declaration script may use. File access is
// not available.
func newState(ctx context.Context) *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	for _, name := range []string{"dofile", "loadfile"} {
		L.SetGlobal(name, lua.LNil)
	}
	if ctx != nil {
		L.SetContext(ctx)
	}
	return L
}

// declare registers a function taking one declaration table.
func declare(L *lua.LState, name string, fn func(L *lua.LState, t *lua.LTable)) {
	L.SetGlobal(name, L.NewFunction(func(L *lua.LState) int {
		fn(L, L.CheckTable(1))
		return 0
	}))
}

func stringField(L *lua.LState, t *lua.LTable, key string, required bool) string {
	v := t.RawGetString(key)
	switch v.Type() {
	case lua.LTNil:
		if required {
			L.RaiseError("missing field %q", key)
		}
		return ""
	case lua.LTString:
		return string(v.(lua.LString))
	}
	L.RaiseError("field %q must be a string, got %s", key, v.Type())
	return ""
}

func intField(L *lua.LState, t *lua.LTable, key string, def int, required bool) int {
	v := t.RawGetString(key)
	if v == lua.LNil {
		if required {
			L.RaiseError("missing field %q", key)
		}
		return def
	}
	n, ok := v.(lua.LNumber)
	if !ok || float64(n) != math.Trunc(float64(n)) {
		L.RaiseError("field %q must be an integer, got %s", key, v.String())
	}
	return int(n)
}

func boolField(L *lua.LState, t *lua.LTable, key string) bool {
	v := t.RawGetString(key)
	switch v.Type() {
	case lua.LTNil:
		return false
	case lua.LTBool:
		return bool(v.(lua.LBool))
	}
	L.RaiseError("field %q must be a boolean, got %s", key, v.Type())
	return false
}

// stringList accepts a single string or an array of strings.
func stringList(L *lua.LState, t *lua.LTable, key string) []string {
	v := t.RawGetString(key)
	switch v := v.(type) {
	case lua.LString:
		return []string{string(v)}
	case *lua.LTable:
		out := make([]string, 0, v.Len())
		for i := 1; i <= v.Len(); i++ {
			s, ok := v.RawGetInt(i).(lua.LString)
			if !ok {
				L.RaiseError("%s[%d] must be a string", key, i)
			}
			out = append(out, string(s))
		}
		return out
	}
	if v == lua.LNil {
		L.RaiseError("missing field %q", key)
	}
	L.RaiseError("field %q must be a string or a list of strings", key)
	return nil
}

// value converts a number or a numeric string ("0x1f", "0b101", "1_000") to
// a non-negative integer. Strings carry values wider than 53 bits.
func value(L *lua.LState, v lua.LValue, what string) *big.Int {
	switch v := v.(type) {
	case lua.LNumber:
		f := float64(v)
		if f < 0 || f != math.Trunc(f) || f > 1<<53 {
			L.RaiseError("%s: %s is not a non-negative integer below 2^53, use a string", what, v.String())
		}
		return big.NewInt(int64(f))
	case lua.LString:
		n, ok := new(big.Int).SetString(strings.TrimSpace(string(v)), 0)
		if !ok || n.Sign() < 0 {
			L.RaiseError("%s: malformed value %q", what, string(v))
		}
		return n
	}
	L.RaiseError("%s: expected a number or a string, got %s", what, v.Type())
	return nil
}

func interval(L *lua.LState, v lua.LValue, what string) integer.Interval {
	t, ok := v.(*lua.LTable)
	if !ok || t.Len() != 2 {
		L.RaiseError("%s: expected { min, max }", what)
	}
	r, err := integer.NewRange(value(L, t.RawGetInt(1), what), value(L, t.RawGetInt(2), what))
	if err != nil {
		L.RaiseError("%s: %v", what, err)
	}
	return integer.Interval{Range: r}
}

// distribution reads exactly one of value, range, values or weighted.
func distribution(L *lua.LState, t *lua.LTable) integer.Distribution {
	var d integer.Distribution
	keys := 0
	if v := t.RawGetString("value"); v != lua.LNil {
		d = integer.Single{Value: value(L, v, "value")}
		keys++
	}
	if v := t.RawGetString("range"); v != lua.LNil {
		d = interval(L, v, "range")
		keys++
	}
	if v := t.RawGetString("values"); v != lua.LNil {
		d = composite(L, v)
		keys++
	}
	if v := t.RawGetString("weighted"); v != lua.LNil {
		d = weighted(L, v)
		keys++
	}
	if keys != 1 {
		L.RaiseError("a distribution takes exactly one of value, range, values or weighted")
	}
	return d
}

func composite(L *lua.LState, v lua.LValue) integer.Distribution {
	t, ok := v.(*lua.LTable)
	if !ok || t.Len() == 0 {
		L.RaiseError("values: expected a non-empty list")
	}
	parts := make([]integer.Distribution, 0, t.Len())
	for i := 1; i <= t.Len(); i++ {
		item := t.RawGetInt(i)
		if _, isTable := item.(*lua.LTable); isTable {
			parts = append(parts, interval(L, item, "values"))
			continue
		}
		parts = append(parts, integer.Single{Value: value(L, item, "values")})
	}
	return integer.Composite{Parts: parts}
}

func weighted(L *lua.LState, v lua.LValue) integer.Distribution {
	t, ok := v.(*lua.LTable)
	if !ok {
		L.RaiseError("weighted: expected a list of { weight = w, ... }")
	}
	items := make([]integer.WeightedItem, 0, t.Len())
	for i := 1; i <= t.Len(); i++ {
		item, ok := t.RawGetInt(i).(*lua.LTable)
		if !ok {
			L.RaiseError("weighted[%d]: expected a table", i)
		}
		items = append(items, integer.WeightedItem{
			Weight: intField(L, item, "weight", 0, true),
			Value:  distribution(L, item),
		})
	}
	d, err := integer.NewWeighted(items...)
	if err != nil {
		L.RaiseError("weighted: %v", err)
	}
	return d
}
