package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dd0wney/procline/pkg/config"
	"github.com/dd0wney/procline/pkg/layout"
	"github.com/dd0wney/procline/pkg/logging"
	"github.com/dd0wney/procline/pkg/metrics"
	"github.com/dd0wney/procline/pkg/propagation"
	"github.com/dd0wney/procline/pkg/report"
)

type options struct {
	layoutPath  string
	from        string
	rate        float64
	rateSet     bool
	configPath  string
	metricsAddr string
	writePath   string
}

func main() {
	var opts options
	flag.StringVar(&opts.layoutPath, "layout", "", "Layout file (YAML or JSON)")
	flag.StringVar(&opts.from, "from", "", "Name of the step whose rate is fixed")
	flag.Float64Var(&opts.rate, "rate", 0, "Rate of the starting step (default: its saved rate, or 1)")
	flag.StringVar(&opts.configPath, "config", "", "Engine configuration file (YAML)")
	flag.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address until interrupted")
	flag.StringVar(&opts.writePath, "write", "", "Write the layout with computed rates and flows to this file")
	flag.Parse()
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "rate" {
			opts.rateSet = true
		}
	})

	if opts.layoutPath == "" || opts.from == "" {
		fmt.Fprintln(os.Stderr, "usage: procline -layout file.yaml -from <step> [-rate r] [-config cfg.yaml] [-metrics-addr :9100] [-write out.yaml]")
		os.Exit(2)
	}

	cfg := config.DefaultEngineConfig()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "procline: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	logger := logging.NewJSONLogger(os.Stderr, logging.ParseLevel(cfg.LogLevel))
	logging.SetDefaultLogger(logger)
	registry := metrics.NewRegistry()

	if err := run(opts, cfg, logger, registry); err != nil {
		logger.Error("procline failed", logging.Error(err))
		os.Exit(1)
	}

	if opts.metricsAddr != "" {
		if err := serveMetrics(opts.metricsAddr, registry, logger); err != nil {
			logger.Error("metrics server failed", logging.Error(err))
			os.Exit(1)
		}
	}
}

func run(opts options, cfg config.EngineConfig, logger logging.Logger, registry *metrics.Registry) error {
	doc, err := layout.Load(opts.layoutPath)
	if err != nil {
		return err
	}
	net, idx, err := layout.Reconstruct(doc)
	if err != nil {
		return err
	}
	logger.Info("layout loaded", logging.Path(opts.layoutPath), logging.Count(net.Len()))

	id, ok := idx[opts.from]
	if !ok {
		return fmt.Errorf("no node named %q in %s", opts.from, opts.layoutPath)
	}
	start, err := net.Node(id)
	if err != nil {
		return err
	}
	rate := opts.rate
	if !opts.rateSet {
		rate = start.Rate
		if rate == 0 {
			rate = 1
		}
	}

	engine, err := propagation.NewEngine(net,
		propagation.WithConfig(cfg),
		propagation.WithLogger(logger),
		propagation.WithMetrics(registry))
	if err != nil {
		return err
	}
	if _, err := engine.DetectGroups(); err != nil {
		return err
	}
	res, err := engine.PropagateFrom(id, rate)
	if err != nil {
		return err
	}

	fmt.Print(report.Render(report.Summarize(net, res)))

	if opts.writePath != "" {
		if err := res.Apply(net); err != nil {
			return err
		}
		if err := layout.Save(opts.writePath, layout.FromNetwork(net)); err != nil {
			return err
		}
		logger.Info("layout written", logging.Path(opts.writePath))
	}
	return nil
}

func serveMetrics(addr string, registry *metrics.Registry, logger logging.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", registry.Handler())
	server := &http.Server{
		Addr:           addr,
		Handler:        mux,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving metrics", logging.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
