// Command qmonitor samples queue length and contention metrics of the system under test once a
// second and publishes them to the configured sinks.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/pkg/errors"
	"github.com/ramonsmits/qload/dummytransport"
	"github.com/ramonsmits/qload/loader"
	"github.com/ramonsmits/qload/monitor"
	"github.com/ramonsmits/qload/redistransport"
	"github.com/ramonsmits/qload/servicebustransport"
	"github.com/ramonsmits/qload/sink"
	"github.com/ramonsmits/qload/sqltransport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var transports = map[string]func() loader.Transport{
	"dummy":      dummytransport.New,
	"sql":        sqltransport.New,
	"redis":      redistransport.New,
	"servicebus": servicebustransport.New,
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	// trap Ctrl+C and call cancel on the context
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		select {
		case <-c:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := run(ctx)
	signal.Stop(c)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {

	config, err := monitor.LoadConfig()
	if err != nil {
		return err
	}
	if err := config.Validate(); err != nil {
		return err
	}

	logger, err := loader.NewLogger(config.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() // nolint

	newTransport, ok := transports[config.Transport]
	if !ok {
		return errors.Errorf("transport type %s can't be monitored", config.Transport)
	}
	transport := newTransport()
	source, ok := transport.(monitor.Source)
	if !ok {
		return errors.Errorf("transport type %s has no telemetry", config.Transport)
	}

	options := map[string]interface{}{}
	for k, v := range config.TransportOptions {
		options[k] = v
	}
	if config.ConnectionString != "" {
		options["connection-string"] = config.ConnectionString
	}
	if s, ok := transport.(loader.Starter); ok {
		if err := s.Start(ctx, options); err != nil {
			return errors.Wrap(err, "starting transport")
		}
	}
	if s, ok := transport.(loader.Stopper); ok {
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.Stop(stopCtx); err != nil {
				logger.Warn("stopping transport", zap.Error(err))
			}
		}()
	}

	probes := config.ProbeList()
	resetQuery := config.ResetQuery
	if provider, ok := transport.(monitor.ProbeProvider); ok {
		if len(probes) == 0 {
			probes = provider.DefaultProbes(config.Destination)
		}
		if resetQuery == "" {
			resetQuery = provider.DefaultResetQuery()
		}
	}
	if resetQuery == "-" {
		resetQuery = ""
	}

	var sinks sink.Multi
	var server *http.Server
	for _, name := range config.Sinks {
		switch name {
		case monitor.SinkRegistry:
			sinks = append(sinks, sink.NewRegistry(os.Stdout))
		case monitor.SinkPrometheus:
			p := sink.NewPrometheus(config.TelemetryKey)
			mux := http.NewServeMux()
			mux.Handle("/metrics", p.Handler())
			server = &http.Server{Addr: config.PrometheusAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
			sinks = append(sinks, p)
		case monitor.SinkCSV:
			csv, err := sink.NewCSV(ctx, config.CSVPath, config.TelemetryKey)
			if err != nil {
				return err
			}
			defer csv.Close() // nolint
			sinks = append(sinks, csv)
		}
	}

	reporter := monitor.New(source, sinks, probes)
	reporter.Interval = config.SampleInterval()
	reporter.ResetQuery = resetQuery
	reporter.SetLogger(logger)
	reporter.SetOutput(os.Stdout)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return reporter.Run(gctx)
	})
	if server != nil {
		logger.Info("serving metrics", zap.String("addr", server.Addr))
		g.Go(func() error {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return errors.WithStack(err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return errors.WithStack(server.Shutdown(shutdownCtx))
		})
	}
	return g.Wait()
}
