// Command gateway runs the LLM Agent Gateway: it wires the identity
// store, quota limiter, sentiment scorer, provider adapter, orchestrator,
// admin surface, and HTTP framing together and serves them over HTTP.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/agentkernel/gateway/internal/admin"
	"github.com/agentkernel/gateway/internal/config"
	"github.com/agentkernel/gateway/internal/gateway"
	"github.com/agentkernel/gateway/internal/httpapi"
	"github.com/agentkernel/gateway/internal/identity"
	"github.com/agentkernel/gateway/internal/provider"
	"github.com/agentkernel/gateway/internal/quota"
	"github.com/agentkernel/gateway/internal/sentiment"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Str("component", "main").Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	store := identity.NewStore(filepath.Join(cfg.DataDir, "identities.json"), log)
	limiter := quota.New()
	scorer := sentiment.New()
	adapter := provider.NewHTTPAdapter(log)

	gw := gateway.New(store, limiter, scorer, adapter, log)
	adminSurface := admin.New(store, log)
	server := httpapi.New(gw, adminSurface, log)

	janitor := startAggregateJanitor(adminSurface, log)
	defer janitor.Stop()

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Info().Str("addr", addr).Msg("gateway listening")

	httpServer := &http.Server{Addr: addr, Handler: server}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server exited unexpectedly")
		}
	}()

	waitForShutdown(log, httpServer)
}

// startAggregateJanitor runs a background job that logs the admin
// aggregate rollup once an hour, so operators have a cheap liveness
// signal without scraping the stats endpoint (SPEC_FULL.md §C
// "background aggregate-stats janitor"). robfig/cron/v3 is already the
// pack's scheduling library (pkg/cron/schedule.go); this is its plain
// cron.Cron scheduler rather than the pack's own at/every/cron-kind
// abstraction, since the gateway only needs one fixed interval.
func startAggregateJanitor(adminSurface *admin.Admin, log zerolog.Logger) *cron.Cron {
	c := cron.New()
	janitorLog := log.With().Str("component", "main.aggregateJanitor").Logger()
	_, err := c.AddFunc("@hourly", func() {
		agg := adminSurface.Aggregate()
		janitorLog.Info().
			Int("totalIdentities", agg.TotalIdentities).
			Int("callsTotal", agg.CallsTotal).
			Int("callsToday", agg.CallsToday).
			Msg("aggregate stats snapshot")
	})
	if err != nil {
		janitorLog.Error().Err(err).Msg("failed to schedule aggregate janitor")
	}
	c.Start()
	return c
}

func waitForShutdown(log zerolog.Logger, httpServer *http.Server) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")
	_ = httpServer.Close()
}
