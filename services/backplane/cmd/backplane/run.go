package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"backplane-go/bus"
	"backplane-go/services/backplane"
	"backplane-go/services/backplane/config"
)

type runOptions struct {
	ticks       uint64
	metricsAddr string
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scan loop until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScan(cmd, root, opts)
		},
	}
	cmd.Flags().Uint64Var(&opts.ticks, "ticks", 0, "stop after this many scan ticks (0 = until interrupted)")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "override the setup's metrics listen address")
	return cmd
}

func runScan(cmd *cobra.Command, root *rootOptions, opts *runOptions) error {
	log, err := root.logger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	setup, bp, err := root.open(log)
	if err != nil {
		return err
	}
	defer func() {
		if err := bp.Close(); err != nil {
			log.Warn("close failed", "err", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics := backplane.NewMetrics(reg)

	b := bus.NewBus(64)
	conn := b.NewConnection("backplane")
	defer conn.Disconnect()
	config.Publish(conn, setup)

	svc := backplane.NewService(bp, conn, backplane.ServiceOptions{
		Period:   setup.ScanPeriod,
		MaxTicks: opts.ticks,
		Metrics:  metrics,
		Logger:   log,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)
	runCtx, finished := context.WithCancel(ctx)

	g.Go(func() error {
		defer finished()
		return svc.Run(runCtx)
	})

	addr := setup.MetricsAddr
	if opts.metricsAddr != "" {
		addr = opts.metricsAddr
	}
	if addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			log.Info("metrics listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-runCtx.Done()
			shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return srv.Shutdown(shutdown)
		})
	}
	return g.Wait()
}
