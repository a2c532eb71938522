package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fee-ledger/internal/audit"
	"fee-ledger/internal/auth"
	cataloghttp "fee-ledger/internal/catalog/interfaces/http"
	catalogrepo "fee-ledger/internal/catalog/infrastructure/postgres"
	"fee-ledger/internal/config"
	"fee-ledger/internal/eventing"
	eventingrepo "fee-ledger/internal/eventing/infrastructure/postgres"
	"fee-ledger/internal/ledger/application"
	"fee-ledger/internal/ledger/application/events"
	ledgerrepo "fee-ledger/internal/ledger/infrastructure/postgres"
	ledgerinterfaces "fee-ledger/internal/ledger/interfaces"
	ledgerhttp "fee-ledger/internal/ledger/interfaces/http"
	"fee-ledger/internal/observability/metrics"
	studentrepo "fee-ledger/internal/students/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ledgerStore := ledgerrepo.NewStore(db, ledgerrepo.WithLockTimeout(cfg.LockTimeout), ledgerrepo.WithLogger(logger))
	catalogRepo := catalogrepo.NewRepository(db)
	directory := studentrepo.NewDirectory(db)
	auditRepo := audit.NewRepository(db)

	registry := eventing.NewRegistry()
	registry.Register(events.All()...)
	bus := eventing.NewInMemoryBus()
	outbox := eventingrepo.NewOutboxStore(db)
	processed := eventingrepo.NewProcessedStore(db)
	dlq := eventingrepo.NewDLQStore(db)
	publisher := eventing.NewPublisher(outbox, bus)

	consumer := ledgerinterfaces.NewLoggingConsumer(logger)
	if err := consumer.Register(bus, processed); err != nil {
		logger.Fatalf("event consumer init error: %v", err)
	}

	dispatcher := eventing.NewDispatcher(bus, outbox, registry, dlq, eventing.WithMaxAttempts(cfg.Outbox.MaxAttempts))
	go dispatcher.Run(ctx, cfg.Outbox.DispatchInterval, cfg.Outbox.DispatchBatch, logger)

	engine, err := application.NewEngine(
		ledgerStore,
		directory,
		catalogRepo,
		application.WithPublisher(ledgerinterfaces.NewOutboxPublisher(publisher)),
		application.WithAuditLogger(auditRepo),
		application.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("ledger engine init error: %v", err)
	}

	sweeper, err := application.NewOverdueSweeper(engine, cfg.Sweep.DailyAt, cfg.Sweep.Batch, logger)
	if err != nil {
		logger.Fatalf("overdue sweeper init error: %v", err)
	}
	sweeper.Start(ctx)

	ledgerHandler, err := ledgerhttp.NewHandler(
		engine,
		ledgerhttp.WithStudentDirectory(directory),
		ledgerhttp.WithStatementHeader(cfg.SchoolName, cfg.Currency),
		ledgerhttp.WithAuditLogger(auditRepo),
		ledgerhttp.WithAuditReader(auditRepo),
		ledgerhttp.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("ledger handler init error: %v", err)
	}
	catalogHandler, err := cataloghttp.NewHandler(catalogRepo, auditRepo, logger)
	if err != nil {
		logger.Fatalf("catalog handler init error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/ledger/", ledgerHandler)
	mux.Handle("/api/v1/catalog/", catalogHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("db unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(authMiddleware.Wrap(mux), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Printf("http shutdown error: %v", err)
		}
	}()

	logger.Printf("fee ledger listening on %s", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("http server error: %v", err)
	}
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		logger.Printf("http %s %s status=%d duration=%s", r.Method, r.URL.Path, sw.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
