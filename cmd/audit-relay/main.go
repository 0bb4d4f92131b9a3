package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-audit-connector/internal/audit"
	"github.com/xela07ax/spaceai-audit-connector/internal/connectors"
	"github.com/xela07ax/spaceai-audit-connector/internal/httpaudit"
	"github.com/xela07ax/spaceai-audit-connector/internal/infra"
	"github.com/xela07ax/spaceai-audit-connector/internal/relay"
)

func main() {
	// 1. Конфиг и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	// Метрики
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := audit.NewMetrics(reg)

	// 2. Приемники datastream (одиночные и merged события) + запасной лог
	singleHandler := connectors.NewDatastreamHandler(cfg.Auditing.SingleEventHandlerConfig(), logger, metrics)
	mergedHandler := connectors.NewDatastreamHandler(cfg.Auditing.MergedEventHandlerConfig(), logger, metrics)
	fallback := audit.NewLoggingHandler(logger)

	// 3. Core: коннектор и аудитор исходящих вызовов
	connector := audit.NewConnector(cfg.Auditing.ConnectorConfig(), singleHandler, mergedHandler, fallback, logger, metrics)
	connector.Start()

	auditor, err := httpaudit.NewAuditor(cfg.Auditing.AuditorConfig(), connector, logger)
	if err != nil {
		logger.Fatal("failed to build http auditor", zap.Error(err))
	}
	outbound := auditor.Client(&http.Client{Timeout: 10 * time.Second})

	// Probe — только по явному флагу и на хосты из allowlist
	var probe *relay.ProbeHandler
	if cfg.Server.ProbeEnabled {
		probe = relay.NewProbeHandler(outbound, cfg.Server.ProbeAllowedHosts, logger)
	}

	// 4. HTTP Server
	srv := &http.Server{
		Addr: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: relay.NewRelayServer(
			logger,
			relay.NewEventHandler(connector, cfg.Auditing.RequestTimeout, logger),
			probe,
			reg,
		),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 5. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("audit relay started",
			zap.String("addr", srv.Addr),
			zap.Bool("auditing_enabled", connector.IsEnabled()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop // Ждем сигнал
	logger.Info("audit relay stopping...")

	// Даем 5 секунд на завершение запросов и досылку очереди
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	if err := connector.Stop(shutdownCtx); err != nil {
		logger.Error("audit queue not fully drained", zap.Error(err))
	}
	logger.Info("audit relay exited properly")
}
