// Package main はAPIサーバーのエントリポイント。
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"aura-identity-service/config"
	"aura-identity-service/internal/handler"
	"aura-identity-service/internal/infra"
	"aura-identity-service/internal/middleware"
	"aura-identity-service/internal/ports"
	"aura-identity-service/internal/repository"
	"aura-identity-service/internal/usecase"
)

func main() {
	ctx := context.Background()

	// .envファイルを読み込む（存在しない場合は無視）
	// 既存の環境変数は上書きしない
	_ = godotenv.Load()

	cfg := config.Load()

	// トレーサー初期化（ロガー設定の前に実行）
	tp, err := infra.InitTracer(ctx, cfg)
	if err != nil {
		slog.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(ctx); err != nil {
				slog.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}

	// トレース情報付きロガーを設定
	infra.SetupLogger(cfg)

	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		slog.Error("failed to load recovery policy", "error", err)
		os.Exit(1)
	}

	// DB初期化
	db, err := infra.NewDB(cfg)
	if err != nil {
		slog.Error("failed to init database", "error", err)
		os.Exit(1)
	}
	// mysql は auractl migrate up でスキーマを作る
	if cfg.DatabaseDriver == "sqlite" {
		if err := repository.AutoMigrate(db); err != nil {
			slog.Error("failed to migrate sqlite schema", "error", err)
			os.Exit(1)
		}
	}

	// KMSによるシェアの暗号化（鍵名が未設定なら平文で保存）
	var sealer ports.ShareSealer
	if cfg.KMSKeyName != "" {
		kms, err := infra.NewKMSSealer(ctx, cfg.KMSKeyName)
		if err != nil {
			slog.Error("failed to init KMS client", "error", err)
			os.Exit(1)
		}
		defer func() {
			if closeErr := kms.Close(); closeErr != nil {
				slog.Error("failed to close KMS client", "error", closeErr)
			}
		}()
		sealer = kms
	} else {
		slog.Warn("KMS_KEY_NAME is not set; trustee shares are stored unsealed")
	}

	// DI
	store := repository.NewStore(db)
	service := usecase.NewIdentityService(store, sealer, policy)
	metrics := middleware.NewMetrics()
	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	h := handler.NewHandler(service, metrics)
	router := handler.NewRouter(h, metrics, limiter)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		<-sigCh

		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("starting server",
		"port", cfg.Port,
		"driver", cfg.DatabaseDriver,
		"min_threshold", policy.MinThreshold,
		"max_trustees", policy.MaxTrustees,
		"recovery_delay", policy.RecoveryDelay,
	)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
