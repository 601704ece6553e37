package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/Readm/mmu_sim/engine"
	"github.com/Readm/mmu_sim/hooks"
	"github.com/Readm/mmu_sim/logger"
	"github.com/Readm/mmu_sim/mmu"
	"github.com/Readm/mmu_sim/plugins/instrumentation"
	"github.com/Readm/mmu_sim/template"
)

func main() {
	var opts Options
	var watch string
	flag.StringVar(&opts.Config, "config", "", "Predefined memory subsystem (e.g., 'simple', 'plru', 'mips')")
	flag.StringVar(&opts.SpecFile, "spec", "", "Lua file describing the memory subsystem")
	flag.StringVar(&opts.TemplateFile, "template", "", "Lua file with the access template (default: the sample template of -config)")
	flag.BoolVar(&opts.List, "list", false, "List the predefined memory subsystems and exit")
	flag.Int64Var(&opts.Seed, "seed", 0, "Seed for sampled addresses")
	flag.IntVar(&opts.Workers, "workers", 1, "Structures filtered and solved in parallel")
	flag.IntVar(&opts.MaxStructures, "max-structures", engine.DefaultMaxStructures, "Structures enumerated per relaxation round")
	flag.IntVar(&opts.MaxVariants, "max-variants", engine.DefaultMaxVariants, "Disjunction variants tried per structure")
	flag.IntVar(&opts.Retries, "retries", engine.DefaultRetries, "Extra samplings per solvable structure")
	flag.StringVar(&opts.LogLevel, "log-level", "info", "Log level: error, warn, info, debug")
	flag.StringVar(&opts.Serve, "serve", "", "Serve the inspector on this address (e.g., ':8080') instead of generating once")
	flag.StringVar(&watch, "watch", "", "Comma-separated buffers whose hazards are logged at debug level")
	flag.Parse()
	opts.Watch = splitList(watch)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// run executes the command line with validated options.
func run(ctx context.Context, opts Options, out io.Writer) error {
	if opts.List {
		PrintConfigs(out)
		return nil
	}
	if err := ValidateOptions(&opts); err != nil {
		return err
	}
	level, _ := logger.ParseLevel(opts.LogLevel)
	log := logger.New(level, "[MMU] ")
	logger.SetDefault(log)

	if opts.Serve != "" {
		return serve(ctx, opts, log)
	}

	spec, tplSrc, err := loadInputs(opts)
	if err != nil {
		return err
	}
	tpl, err := template.LoadTemplateContext(ctx, tplSrc, spec)
	if err != nil {
		return err
	}

	reg := hooks.NewRegistry(spec, hooks.NewPluginBroker())
	counters := instrumentation.NewCounters(log, 5*time.Second)
	if err := instrumentation.Register(reg, counters, log); err != nil {
		return err
	}
	sel := hooks.Selection{Global: []string{instrumentation.CountersPlugin}, Buffers: make(map[string][]string)}
	for _, name := range opts.Watch {
		sel.Buffers[name] = []string{instrumentation.WatchPlugin}
	}
	if err := reg.Load(sel); err != nil {
		return fmt.Errorf("plugins: %w", err)
	}

	e, err := engine.New(spec,
		engine.WithBroker(reg.Broker()),
		engine.WithLogger(log),
		engine.WithBudget(opts.Budget()),
		engine.WithWorkers(opts.Workers),
		engine.WithSeed(opts.Seed),
	)
	if err != nil {
		return err
	}
	res, err := e.Generate(ctx, tpl)
	if err != nil {
		return err
	}
	PrintResult(out, spec, res, isTerminal(out))
	if !res.Found {
		return errors.New("no realizable structure")
	}
	return nil
}

// loadInputs reads the subsystem and template scripts selected by opts.
func loadInputs(opts Options) (*mmu.Spec, string, error) {
	specSrc, tplSrc := "", ""
	if opts.Config != "" {
		cfg := GetConfigByName(opts.Config)
		specSrc, tplSrc = cfg.Spec, cfg.Template
	}
	if opts.SpecFile != "" {
		data, err := os.ReadFile(opts.SpecFile)
		if err != nil {
			return nil, "", err
		}
		specSrc = string(data)
	}
	if opts.TemplateFile != "" {
		data, err := os.ReadFile(opts.TemplateFile)
		if err != nil {
			return nil, "", err
		}
		tplSrc = string(data)
	}
	spec, err := template.LoadSpec(specSrc)
	if err != nil {
		return nil, "", err
	}
	return spec, tplSrc, nil
}

func serve(ctx context.Context, opts Options, log *logger.Logger) error {
	server := NewWebServer(opts.Serve, opts, log)
	if err := server.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
