package cmd

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/malwarebo/orderbridge/breaker"
	"github.com/malwarebo/orderbridge/httpapi"
	"github.com/malwarebo/orderbridge/metrics"
	"github.com/malwarebo/orderbridge/scheduler"
)

func newRunCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the polling scheduler and ops HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner()

			registry := prometheus.NewRegistry()
			metrics.Register(registry)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sched := scheduler.New(scheduler.Config{
				MinInterval:       a.cfg.MinIntervalDuration(),
				ReconcileInterval: a.cfg.ReconcileInterval(),
				ShutdownGrace:     a.cfg.ShutdownGrace(),
				HTTPTimeout:       a.cfg.HTTPTimeout(),
				BreakerConfig: breaker.Config{
					FailureThreshold:     a.cfg.CBFailureThreshold,
					RecoveryTimeout:      a.cfg.CBRecoveryTimeout(),
					HalfOpenSuccessCount: a.cfg.CBHalfOpenSuccesses,
				},
				RetryMaxAttempts: a.cfg.RetryMaxAttempts,
			}, a.connections, a.sentOrders, a.retryItems, a.syncLogs)

			opsServer := httpapi.New(a.db, registry)
			httpSrv := &http.Server{Addr: a.cfg.MetricsAddr, Handler: opsServer.Router()}

			go func() {
				printInfo("ops http server listening on " + a.cfg.MetricsAddr)
				if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					printError("ops http server failed: " + err.Error())
				}
			}()

			printSuccess("scheduler starting")
			err := sched.Run(ctx)

			printWarning("shutting down ops http server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownGrace())
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)

			if err != nil {
				return err
			}
			printSuccess("shutdown complete")
			return nil
		},
	}
}
