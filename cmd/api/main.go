package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	_ "github.com/jhoicas/stock-ledger/docs"
	"github.com/jhoicas/stock-ledger/pkg/config"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

// @title                       Stock Ledger API
// @version                     1.0
// @description                 Libro de stock con conciliación de inventario y escrituras resilientes a la pérdida de conexión.
// @BasePath                    /
// @securityDefinitions.apikey  Bearer
// @in                          header
// @name                        Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("remote", cfg.Remote.Driver).
		Msg("iniciando aplicación")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, cleanup, err := wire(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Remote.Driver).Msg("arranque")
	}
	defer cleanup()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		svc.scheduler.Start(gctx)
		<-gctx.Done()
		svc.scheduler.Stop()
		return nil
	})
	g.Go(func() error {
		return svc.app.Listen(cfg.HTTP.Addr())
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("señal de apagado recibida, cerrando servidor...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return svc.app.ShutdownWithContext(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("servidor finalizado con error")
	}

	// Última pasada para no dejar pendientes que el remoto ya puede aceptar.
	flushCtx, cancel := context.WithTimeout(context.Background(), cfg.Remote.WriteTimeout)
	defer cancel()
	if report, err := svc.scheduler.RunOnce(flushCtx); err != nil {
		log.Warn().Err(err).Msg("sincronización final")
	} else if report.Remaining > 0 {
		log.Warn().Int("remaining", report.Remaining).Msg("quedan operaciones pendientes en la cola local")
	}

	log.Info().Msg("aplicación detenida")
}
