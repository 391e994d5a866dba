// Program sigpipe-pipeline is the daemon entrypoint: wires every
// internal/* collaborator into a Pipeline and serves /healthz and
// /metrics alongside it, generalizing the teacher's main.go boot
// sequence (load env -> build Config -> wire broker/trader -> start HTTP
// server -> run the loop -> graceful shutdown) from a single-product
// trader to the full signal-to-order pipeline.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/example/sigpipe/internal/alert"
	"github.com/example/sigpipe/internal/audit"
	"github.com/example/sigpipe/internal/broker"
	"github.com/example/sigpipe/internal/clock"
	"github.com/example/sigpipe/internal/config"
	"github.com/example/sigpipe/internal/llm"
	"github.com/example/sigpipe/internal/log"
	"github.com/example/sigpipe/internal/pipeline"
	"github.com/example/sigpipe/internal/quote"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	config.LoadEnv()
	cfg := config.LoadFromEnv()
	log.Init(cfg.TestMode)
	logger := log.With("main")

	cal, err := clock.NewCalendar(cfg.ExchangeTimezone, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid exchange timezone")
	}

	var br broker.Broker
	var provider quote.Provider
	switch strings.ToLower(cfg.Broker) {
	case "paper", "":
		br = broker.NewPaper(100000)
		provider = quote.NewPaper(time.Now().UnixNano())
	case "bridge":
		br = broker.NewBridgeBroker(cfg.BridgeURL, cfg.BrokerTimeout)
		provider = quote.NewBridge(cfg.BridgeURL, cfg.QuoteTimeout)
	default:
		logger.Fatal().Str("broker", cfg.Broker).Msg("unsupported broker (only paper and bridge are wired; see DESIGN.md)")
	}

	var llmSvc llm.Service = llm.NewStub()
	alerter := alert.For(cfg.SlackWebhook)

	auditStore, err := audit.Open(cfg.AuditDBPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("open audit store")
	}
	defer auditStore.Close()

	p := pipeline.New(cfg, clock.RealClock{}, cal, provider, br, llmSvc, auditStore, alerter)
	if err := p.Restore(); err != nil {
		logger.Fatal().Err(err).Msg("restore persisted state")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: mux}
	go func() {
		logger.Info().Int("port", cfg.Port).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server")
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	stop := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(stop)
	}()
	p.Run(ctx, stop)

	shutdownCtx, c := context.WithTimeout(context.Background(), 2*time.Second)
	defer c()
	_ = srv.Shutdown(shutdownCtx)
}
