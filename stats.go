package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/Readm/mmu_sim/engine"
	"github.com/Readm/mmu_sim/mmu"
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// PrintResult writes a generation result. table aligns the accesses in
// columns; otherwise one line is written per access.
func PrintResult(w io.Writer, spec *mmu.Spec, res *engine.Result, table bool) {
	if res == nil {
		fmt.Fprintln(w, "No result available")
		return
	}
	s := res.Stats
	fmt.Fprintf(w, "=== Attempt %s ===\n", res.Attempt)
	if res.Found {
		fmt.Fprintf(w, "Structure %d realized\n", res.Index)
	} else {
		fmt.Fprintln(w, "No structure realized")
	}
	fmt.Fprintf(w, "Considered: %d, Filtered: %d, Unsolved: %d, Mismatched: %d, Relaxed: %d\n",
		s.Considered, s.Filtered, s.Unsolved, s.Mismatched, s.Relaxed)
	if s.Truncated {
		fmt.Fprintln(w, "Structure enumeration was truncated by the budget")
	}
	if len(s.Rejections) > 0 {
		names := make([]string, 0, len(s.Rejections))
		for name := range s.Rejections {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Filter Rejections ===")
		for _, name := range names {
			fmt.Fprintf(w, "%s: %d\n", name, s.Rejections[name])
		}
	}
	if !res.Found {
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Structure ===")
	fmt.Fprint(w, res.Structure.String())

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Accesses ===")
	if !table {
		for i, a := range res.Accesses {
			fmt.Fprintf(w, "%d: %s\n", i, a)
		}
		return
	}
	families := spec.Addresses()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := []string{"#", "OP"}
	for _, f := range families {
		header = append(header, f.Name)
	}
	fmt.Fprintln(tw, strings.Join(append(header, "TRACE"), "\t"))
	for i, a := range res.Accesses {
		row := []string{fmt.Sprint(i), a.Op}
		for _, f := range families {
			if v, ok := a.Addresses[f.Name]; ok {
				row = append(row, fmt.Sprintf("%#x", v))
			} else {
				row = append(row, "-")
			}
		}
		steps := make([]string, 0, len(a.Trace))
		for _, step := range a.Trace {
			steps = append(steps, step.String())
		}
		fmt.Fprintln(tw, strings.Join(append(row, strings.Join(steps, "; ")), "\t"))
	}
	tw.Flush()
}

// PrintConfigs lists the predefined memory subsystems.
func PrintConfigs(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, cfg := range GetPredefinedConfigs() {
		fmt.Fprintf(tw, "%s\t%s\n", cfg.Name, cfg.Description)
	}
	tw.Flush()
}
