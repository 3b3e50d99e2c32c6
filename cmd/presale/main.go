// Package main запускает HTTP-сервер сервиса пресейла WUSLE.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/wusle-presale/internal/chain"
	"github.com/mmeshcher/wusle-presale/internal/config"
	"github.com/mmeshcher/wusle-presale/internal/handler"
	"github.com/mmeshcher/wusle-presale/internal/middleware"
	"github.com/mmeshcher/wusle-presale/internal/repository"
	"github.com/mmeshcher/wusle-presale/internal/service"
	"github.com/mmeshcher/wusle-presale/internal/ws"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	// Без адреса RPC-узла платежи не сверяются с сетью — режим разработки.
	var verifier service.TransferVerifier
	if cfg.SolanaRPCAddress != "" {
		verifier = chain.NewClient(cfg.SolanaRPCAddress, cfg.USDTDecimals)
	} else {
		sugar.Warn("solana RPC address is empty, on-chain payment verification disabled")
	}

	svc := service.NewService(repo, verifier, service.Options{
		TreasuryAddress:     cfg.TreasuryAddress,
		TreasuryUSDTAccount: cfg.TreasuryUSDTAccount,
		USDTMint:            cfg.USDTMint,
		TotalWusleSupply:    cfg.TotalWusleSupply,
		LiquidityAtLaunch:   cfg.LiquidityAtLaunch,
		SOLPriceUSD:         cfg.SOLPriceUSD,
	})
	defer svc.Close()

	hub := ws.NewHub(svc, logger, ws.DefaultInterval)

	authMiddleware := middleware.NewAuthMiddleware(os.Getenv("SESSION_SECRET"))
	h := handler.NewHandler(svc, logger, authMiddleware, hub)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск рассылки снимков пресейла подключённым клиентам
	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting presale server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
