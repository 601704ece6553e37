package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Readm/mmu_sim/engine"
)

func TestValidateOptionsDefaults(t *testing.T) {
	opts := Options{}
	if err := ValidateOptions(&opts); err != nil {
		t.Fatalf("ValidateOptions: %v", err)
	}
	if opts.Config != DefaultConfig {
		t.Errorf("Expected config %q, got %q", DefaultConfig, opts.Config)
	}
	if opts.Workers != 1 || opts.LogLevel != "info" || opts.Retries != engine.DefaultRetries {
		t.Errorf("Unexpected defaults %+v", opts)
	}
}

func TestValidateOptionsErrors(t *testing.T) {
	dir := t.TempDir()
	spec := filepath.Join(dir, "spec.lua")
	if err := os.WriteFile(spec, []byte(`variable { name = "pa", width = 8 }`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cases := map[string]Options{
		"both sources":   {Config: "simple", SpecFile: spec},
		"negative":       {Workers: -1},
		"structures":     {MaxStructures: -1},
		"variants":       {MaxVariants: -2},
		"log level":      {LogLevel: "loud"},
		"unknown config": {Config: "nope"},
		"spec only":      {SpecFile: spec},
		"missing file":   {SpecFile: spec, TemplateFile: filepath.Join(dir, "missing.lua")},
		"serve+template": {Serve: ":0", TemplateFile: spec},
	}
	for name, opts := range cases {
		opts := opts
		if err := ValidateOptions(&opts); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
	if err := ValidateOptions(nil); err == nil {
		t.Errorf("Expected an error for nil options")
	}
}
