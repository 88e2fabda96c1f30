package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/adapter-harness/internal/adaptermock"
	"github.com/GriffinCanCode/adapter-harness/internal/fixtures"
	"github.com/GriffinCanCode/adapter-harness/internal/harness"
	"github.com/GriffinCanCode/adapter-harness/internal/infrastructure/config"
	"github.com/GriffinCanCode/adapter-harness/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/adapter-harness/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/adapter-harness/internal/logging"
	"github.com/GriffinCanCode/adapter-harness/internal/sandbox"
)

// unloadTimeout bounds the wait for an adapter's unload callback.
const unloadTimeout = 5 * time.Second

// result is the JSON record printed for each adapter file.
type result struct {
	File    string             `json:"file"`
	Outcome *harness.Outcome   `json:"outcome,omitempty"`
	Error   string             `json:"error,omitempty"`
	States  int                `json:"states"`
	Console []sandbox.LogEntry `json:"console,omitempty"`
}

// report is the complete output of a run.
type report struct {
	Results []result           `json:"results"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.LoadOrDefault()

	// Flags override environment
	name := flag.String("name", cfg.Adapter.Name, "Adapter name")
	instance := flag.Int("instance", cfg.Adapter.Instance, "Adapter instance number")
	compact := flag.Bool("compact", cfg.Adapter.Compact, "Run adapters in compact mode")
	hostDep := flag.String("host-dependency", cfg.Adapter.HostDependency, "Specifier of the host library")
	fixtureDir := flag.String("fixtures", cfg.Run.Fixtures, "Directory of object fixtures")
	timeout := flag.Duration("timeout", cfg.Run.Timeout, "Per-adapter timeout (0 for none)")
	forward := flag.Bool("forward-changes", cfg.Run.ForwardChanges, "Deliver subscribed store changes to handlers")
	native := flag.String("config", "", "Native adapter configuration as JSON")
	parallel := flag.Int("parallel", 4, "Number of adapters started concurrently")
	logLevel := flag.String("log-level", cfg.Logging.Level, "Log level")
	dev := flag.Bool("dev", cfg.Logging.Development, "Development logging")
	metricsOn := flag.Bool("metrics", cfg.Metrics.Enabled, "Include metrics in the output")
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "usage: harness [flags] <adapter-main.js>...")
		flag.PrintDefaults()
		return 2
	}

	logger, err := logging.New(logging.Config{Level: *logLevel, Development: *dev})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	opts := harness.Options{
		Name:           *name,
		Instance:       *instance,
		Compact:        *compact,
		HostDependency: *hostDep,
		ForwardChanges: *forward,
	}
	if *native != "" {
		if err := sonic.UnmarshalString(*native, &opts.AdapterConfig); err != nil {
			logger.Error("Invalid native configuration", zap.Error(err))
			return 1
		}
	}
	if *fixtureDir != "" {
		objects, err := fixtures.Load(*fixtureDir)
		if err != nil {
			logger.Error("Failed to load fixtures", zap.String("dir", *fixtureDir), zap.Error(err))
			return 1
		}
		opts.Objects = objects
		logger.Info("Fixtures loaded", zap.Int("objects", len(objects)))
	}

	var metrics *monitoring.Metrics
	if *metricsOn {
		metrics = monitoring.NewMetrics()
	}

	tracer := tracing.New("harness", logger.Logger, 0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	size := *parallel
	if size > len(files) {
		size = len(files)
	}
	pool, err := sandbox.NewPool(sandbox.DefaultConfig(), size, logger)
	if err != nil {
		logger.Error("Failed to create sandbox pool", zap.Error(err))
		return 1
	}
	defer pool.Close()

	results := make([]result, len(files))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < size; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = startOne(ctx, pool, files[i], opts, *timeout, logger, metrics, tracer)
			}
		}()
	}
	for i := range files {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	out := report{Results: results, Metrics: gatherCounters(metrics)}
	data, err := sonic.ConfigStd.MarshalIndent(out, "", "  ")
	if err != nil {
		logger.Error("Failed to encode results", zap.Error(err))
		return 1
	}
	fmt.Println(string(data))

	return exitCode(results)
}

// startOne starts one adapter on a pooled host and unloads it when it came
// up successfully.
func startOne(ctx context.Context, pool *sandbox.Pool, file string, opts harness.Options, timeout time.Duration, logger *logging.Logger, metrics *monitoring.Metrics, tracer *tracing.Tracer) result {
	res := result{File: file}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err := pool.Execute(ctx, func(ctx context.Context, host *sandbox.Host) error {
		h := harness.New(host, opts, harness.WithLogger(logger), harness.WithMetrics(metrics), harness.WithTracer(tracer))
		defer func() {
			if st := h.Store(); st != nil {
				res.States = len(st.StateIDs())
			}
			res.Console = host.Console()
		}()

		outcome, err := h.StartAdapter(ctx, file)
		if err != nil {
			return err
		}
		res.Outcome = outcome
		if !outcome.Success() {
			return nil
		}

		unloadCtx, cancel := context.WithTimeout(ctx, unloadTimeout)
		defer cancel()
		if err := h.Unload(unloadCtx); err != nil && !errors.Is(err, adaptermock.ErrNoHandler) {
			logger.Warn("Adapter unload failed", zap.String("file", file), zap.Error(err))
		}
		return nil
	})
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

// exitCode is 1 when any start failed, otherwise the first non-zero
// classified exit code.
func exitCode(results []result) int {
	for _, res := range results {
		if res.Error != "" {
			return 1
		}
	}
	for _, res := range results {
		if res.Outcome != nil && res.Outcome.ExitCode != 0 {
			return res.Outcome.ExitCode
		}
	}
	return 0
}

// gatherCounters flattens the counters of metrics into name{labels} keys.
func gatherCounters(metrics *monitoring.Metrics) map[string]float64 {
	if metrics == nil {
		return nil
	}
	families, err := metrics.Registry().Gather()
	if err != nil {
		return nil
	}

	out := make(map[string]float64)
	for _, family := range families {
		for _, m := range family.GetMetric() {
			if m.GetCounter() == nil {
				continue
			}
			key := family.GetName()
			for _, label := range m.GetLabel() {
				key += fmt.Sprintf("{%s=%s}", label.GetName(), label.GetValue())
			}
			out[key] = m.GetCounter().GetValue()
		}
	}
	return out
}
