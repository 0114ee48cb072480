package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pribylovaa/auth-system/internal/config"
	"github.com/pribylovaa/auth-system/internal/metrics"
	"github.com/pribylovaa/auth-system/internal/service"
	"github.com/pribylovaa/auth-system/internal/token"
	"github.com/pribylovaa/auth-system/internal/tracing"
	authhttp "github.com/pribylovaa/auth-system/internal/transport/http"
)

// Константы для определения окружения.
const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting application", "env", cfg.Env, "storage", cfg.Storage.Driver)

	if err := run(cfg, log); err != nil {
		log.Error("service_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	log.Info("service_stopped")
}

func run(cfg *config.Config, log *slog.Logger) error {
	// Корневой контекст по сигналам.
	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	shutdownTracing, err := tracing.Setup(rootCtx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Shutdown)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.Warn("tracing_shutdown_failed", slog.String("err", err.Error()))
		}
	}()

	// Подключение к хранилищу c таймаутом.
	dbCtx, dbCancel := context.WithTimeout(rootCtx, 10*time.Second)
	str, err := openStorage(dbCtx, cfg.Storage)
	dbCancel()
	if err != nil {
		return err
	}
	defer str.Close()
	log.Info("storage_connected", slog.String("driver", cfg.Storage.Driver))

	// Метрики.
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// Сервис.
	tokens, err := token.New(cfg.Auth)
	if err != nil {
		return err
	}

	creds, err := service.NewCredentialStore(str, cfg.Password.BcryptCost)
	if err != nil {
		return err
	}

	srvc := service.New(creds, tokens, cfg.Password)
	srvc.SetMetrics(m)
	log.Info("service_initialized")

	// Фоновая очистка просроченных refresh-токенов.
	startRefreshJanitor(rootCtx, creds, m, log, cfg.Storage.JanitorInterval)

	var ready atomic.Bool
	opsSrv := &http.Server{
		Addr:              cfg.Metrics.Addr(),
		Handler:           opsMux(&ready, str, reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	apiSrv := &http.Server{
		Addr: cfg.HTTP.Addr(),
		Handler: authhttp.NewRouter(srvc, srvc, authhttp.Options{
			Logger:   log,
			Metrics:  m,
			Timeout:  cfg.Timeouts.Service,
			BasePath: authhttp.DefaultBasePath,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErrCh := make(chan error, 2)
	for _, srv := range []*http.Server{opsSrv, apiSrv} {
		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			return err
		}
		log.Info("http_listen_start", slog.String("addr", srv.Addr))

		go func(srv *http.Server, ln net.Listener) {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErrCh <- err
			}
		}(srv, ln)
	}

	ready.Store(true)
	log.Info("service_ready")

	// Ожидание сигнала завершения или фатальной ошибки сервера.
	var serveErr error
	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case serveErr = <-serveErrCh:
		log.Error("http_serve_failed", slog.String("err", serveErr.Error()))
	}

	ready.Store(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Timeouts.Shutdown)
	defer shutdownCancel()

	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_shutdown_incomplete", slog.String("err", err.Error()))
	} else {
		log.Info("http_stopped")
	}
	_ = opsSrv.Shutdown(shutdownCtx)

	return serveErr
}

// opsMux — служебные маршруты: liveness, readiness с проверкой хранилища и метрики.
func opsMux(ready *atomic.Bool, st interface{ Ping(context.Context) error }, gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !ready.Load() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := st.Ping(ctx); err != nil {
			http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return mux
}

// setupLogger настраивает slog по окружению.
func setupLogger(env string) *slog.Logger {
	switch env {
	case envLocal:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}

// refreshCleaner очищает просроченные refresh-слоты.
type refreshCleaner interface {
	ClearExpiredRefreshTokens(ctx context.Context) (int64, error)
}

// startRefreshJanitor периодически очищает просроченные refresh-токены,
// пока не отменён ctx.
func startRefreshJanitor(ctx context.Context, c refreshCleaner, m *metrics.Metrics, log *slog.Logger, period time.Duration) {
	if period <= 0 {
		return
	}

	go func() {
		t := time.NewTicker(period)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				sweepRefreshTokens(ctx, c, m, log)
			}
		}
	}()
}

// sweepRefreshTokens — один прогон очистки.
func sweepRefreshTokens(ctx context.Context, c refreshCleaner, m *metrics.Metrics, log *slog.Logger) {
	n, err := c.ClearExpiredRefreshTokens(ctx)
	m.ObserveJanitor(n, err)

	if err != nil {
		log.Error("refresh_janitor_failed", slog.String("err", err.Error()))
		return
	}

	if n > 0 {
		log.Info("refresh_janitor_cleared", slog.Int64("count", n))
	}
}
