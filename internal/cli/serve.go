package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/recall/internal/feed"
	"github.com/roach88/recall/internal/httpsync"
	"github.com/roach88/recall/internal/metrics"
	"github.com/roach88/recall/internal/replica"
	pebblestore "github.com/roach88/recall/internal/store/pebble"
)

// ShutdownTimeout bounds how long serve waits for in-flight requests.
const ShutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen string // overrides server.listen
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve this device's streams to syncing peers",
		Long: `Serve this device's streams over HTTP so other devices can sync with it.

Accepted events are published to the change feed (Kafka when configured)
and counted in Prometheus metrics at /metrics.

Example:
  recall serve
  recall serve --listen 0.0.0.0:7420 --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides server.listen)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	a, err := loadApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	if ps, ok := a.backend.(*pebblestore.Store); ok {
		reg.MustRegister(ps.Collector())
	}

	notifier, err := a.notifier()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to connect change feed", err)
	}
	dispatcher := feed.NewDispatcher(notifier, a.logger)

	if err := a.start(replica.WithMetrics(m), replica.WithNotifier(dispatcher)); err != nil {
		return err
	}

	serverOpts := []httpsync.ServerOption{httpsync.WithServerLogger(a.logger)}
	if a.cfg.Server.Metrics {
		serverOpts = append(serverOpts, httpsync.WithGatherer(reg))
	}
	srv := &http.Server{
		Handler:           httpsync.NewServer(a.replica, serverOpts...).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	listen := opts.Listen
	if listen == "" {
		listen = a.cfg.Server.Listen
	}
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := dispatcher.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	a.logger.Info("serving", "device", a.device, "addr", ln.Addr().String(), "backend", a.cfg.Store.Backend)
	fmt.Fprintf(cmd.OutOrStdout(), "Serving device %s on http://%s\n", a.device, ln.Addr())

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}
	a.logger.Info("server stopped gracefully")
	return nil
}
