// Command fraudmeshd runs the fraud-mesh decisioning daemon: the streaming
// engine's retention sweep, the three stream processors, both autonomous
// agent schedulers, the help-request router, and the HTTP/WebSocket API, all
// under one errgroup supervising shutdown via context cancellation.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/marketwatch/fraudmesh/internal/api"
	"github.com/marketwatch/fraudmesh/internal/platform/container"
	"github.com/marketwatch/fraudmesh/internal/streamproc"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "fraudmeshd",
		Short: "Marketplace fraud-detection decisioning daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), v)
		},
	}

	flags := cmd.Flags()
	flags.String("addr", ":8080", "HTTP listen address")
	flags.String("log-level", "info", "zerolog level")
	flags.Bool("log-pretty", false, "console-writer logging instead of JSON")
	flags.String("cross-domain-scan-interval", "5s", "cross-domain agent scan cadence")
	flags.Int("cross-domain-event-threshold", 20, "event count that triggers an accelerated cross-domain scan")
	flags.String("policy-evolution-scan-interval", "30s", "policy-evolution agent scan cadence")
	flags.Int("policy-evolution-event-threshold", 50, "event count that triggers an accelerated policy-evolution scan")

	_ = v.BindPFlags(flags)
	v.SetEnvPrefix("FRAUDMESH")
	v.AutomaticEnv()

	return cmd
}

func run(ctx context.Context, v *viper.Viper) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := container.New(container.Config{
		LogLevel:                      v.GetString("log-level"),
		LogPretty:                     v.GetBool("log-pretty"),
		CrossDomainScanInterval:       v.GetString("cross-domain-scan-interval"),
		CrossDomainEventThreshold:     v.GetInt("cross-domain-event-threshold"),
		PolicyEvolutionScanInterval:   v.GetString("policy-evolution-scan-interval"),
		PolicyEvolutionEventThreshold: v.GetInt("policy-evolution-event-threshold"),
	})
	if err != nil {
		return err
	}

	velocity := streamproc.NewVelocityProcessor(c.Engine, c.Store, c.Log)
	riskAgg := streamproc.NewRiskSignalAggregator(c.Engine, c.Store, c.Log)
	materialization := streamproc.NewMaterializationProcessor(c.Engine, c.Store, c.Log)

	server := api.NewServer(c.Engine, c.Store, c.Graph, c.RiskEngine, c.Orchestrator, c.Metrics, c.Log,
		c.CrossDomainAgent, c.PolicyEvolutionAgent,
		func() (string, bool, string) { return "streaming-engine", true, "" },
		func() (string, bool, string) { return "feature-store", true, "" },
	)

	httpServer := &http.Server{
		Addr:    v.GetString("addr"),
		Handler: server.Router(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		c.Engine.RunRetention(gctx)
		return nil
	})
	g.Go(func() error { return velocity.Run(gctx) })
	g.Go(func() error { return riskAgg.Run(gctx) })
	g.Go(func() error { return materialization.Run(gctx) })
	g.Go(func() error {
		c.CrossDomainScheduler.Run(gctx)
		return nil
	})
	g.Go(func() error {
		c.PolicyEvolutionScheduler.Run(gctx)
		return nil
	})
	g.Go(func() error {
		c.Orchestrator.RunHelpRouting(gctx)
		return nil
	})

	g.Go(func() error {
		c.Log.Info().Str("addr", httpServer.Addr).Msg("starting HTTP API")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
