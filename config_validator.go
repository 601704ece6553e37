package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/Readm/mmu_sim/engine"
	"github.com/Readm/mmu_sim/logger"
)

// DefaultConfig is used when neither -config nor -spec is given.
const DefaultConfig = "simple"

// Options are the command line settings.
type Options struct {
	Config        string
	SpecFile      string
	TemplateFile  string
	List          bool
	Seed          int64
	Workers       int
	MaxStructures int
	MaxVariants   int
	Retries       int
	LogLevel      string
	Serve         string
	Watch         []string
}

// ValidateOptions applies structural checks to Options and populates defaults
// where required.
func ValidateOptions(opts *Options) error {
	if opts == nil {
		return errors.New("options are nil")
	}

	if opts.Config != "" && opts.SpecFile != "" {
		return errors.New("-config and -spec are mutually exclusive")
	}
	if opts.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", opts.Workers)
	}
	if opts.MaxStructures < 0 {
		return fmt.Errorf("max-structures must be non-negative, got %d", opts.MaxStructures)
	}
	if opts.MaxVariants < 0 {
		return fmt.Errorf("max-variants must be non-negative, got %d", opts.MaxVariants)
	}
	if opts.LogLevel == "" {
		opts.LogLevel = "info"
	}
	if _, err := logger.ParseLevel(opts.LogLevel); err != nil {
		return err
	}

	if opts.Config == "" && opts.SpecFile == "" {
		opts.Config = DefaultConfig
	}
	if opts.Config != "" && GetConfigByName(opts.Config) == nil {
		return fmt.Errorf("unknown configuration %q", opts.Config)
	}
	if opts.SpecFile != "" && opts.TemplateFile == "" {
		return errors.New("-spec needs -template")
	}
	if opts.Serve != "" && opts.TemplateFile != "" {
		return errors.New("-serve takes templates from requests, not from -template")
	}
	for _, path := range []string{opts.SpecFile, opts.TemplateFile} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("cannot read %s: %w", path, err)
		}
	}

	if opts.Workers == 0 {
		opts.Workers = 1
	}
	if opts.Retries == 0 {
		opts.Retries = engine.DefaultRetries
	}

	return nil
}

// Budget converts the numeric options.
func (o *Options) Budget() engine.Budget {
	return engine.Budget{MaxStructures: o.MaxStructures, MaxVariants: o.MaxVariants, Retries: o.Retries}
}
