package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"auth-gateway/internal/config"
	apihttp "auth-gateway/internal/http"
	"auth-gateway/internal/metrics"
	"auth-gateway/internal/provider"
	"auth-gateway/internal/provider/supabase"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	gin.SetMode(cfg.GinMode)

	var (
		collector      *metrics.Collector
		metricsHandler http.Handler
		observer       provider.Observer
	)
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		collector = metrics.NewCollector(reg)
		metricsHandler = metrics.Handler(reg)
		observer = collector
	}

	factory := supabase.NewFactory(supabase.Config{
		URL:     cfg.SupabaseURL,
		APIKey:  cfg.SupabaseAnonKey,
		Timeout: cfg.AuthHTTPTimeout,
		Cookies: supabase.CookieConfig{
			Domain:      cfg.CookieDomain,
			Secure:      cfg.CookieSecure,
			AccessName:  cfg.AccessCookieName,
			RefreshName: cfg.RefreshCookieName,
			RefreshTTL:  cfg.RefreshCookieTTL,
		},
	}, nil, logger)
	clients := provider.InstrumentFactory(factory, observer)

	authHandler := apihttp.NewAuthHandler(logger, clients)
	router := apihttp.NewRouter(logger, authHandler, collector, metricsHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}
