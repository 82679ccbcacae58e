// Package app wires the service together with fx.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/debulol/dota2-inhouse/internal/config"
	"github.com/debulol/dota2-inhouse/internal/constants"
	"github.com/debulol/dota2-inhouse/internal/database"
	"github.com/debulol/dota2-inhouse/internal/httpapi"
	"github.com/debulol/dota2-inhouse/internal/hub"
	"github.com/debulol/dota2-inhouse/internal/logger"
	"github.com/debulol/dota2-inhouse/internal/relay"
	"github.com/debulol/dota2-inhouse/internal/store"
)

var Module = fx.Options(
	config.Module,
	logger.Module,
	database.Module,
	fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
		return &fxevent.ZapLogger{Logger: log.Named("fx")}
	}),
	// realtime
	fx.Provide(NewHub),
	fx.Provide(NewRelay),
	fx.Provide(NewPublisher),
	// domain
	fx.Provide(NewStore),
	fx.Provide(NewAPI),
)

func NewHub(lc fx.Lifecycle, log *zap.Logger) *hub.Hub {
	h := hub.NewHub(context.Background(), log)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			h.Shutdown()
			return nil
		},
	})
	return h
}

// NewRelay returns nil when REDIS_ADDR is unset; notifications then stay
// inside this process.
func NewRelay(cfg *config.Config, h *hub.Hub, log *zap.Logger) (*relay.Relay, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}
	client, err := relay.Dial(cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		return nil, err
	}
	log.Info("redis relay enabled", zap.String("addr", cfg.RedisAddr))
	return relay.New(client, h, log), nil
}

func NewPublisher(h *hub.Hub, r *relay.Relay) store.Publisher {
	if r != nil {
		return r
	}
	return h
}

func NewStore(db *gorm.DB, pub store.Publisher, cfg *config.Config, log *zap.Logger) *store.Store {
	return store.New(db, log, store.WithPublisher(pub), store.WithRoomTTL(cfg.RoomTTL))
}

func NewAPI(s *store.Store, h *hub.Hub, log *zap.Logger) *httpapi.API {
	return httpapi.New(s, h, log)
}

// Run starts the HTTP server, the expiry sweeper and, when configured, the
// relay subscriber. A failure in any of them stops the application.
func Run(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	cfg *config.Config,
	api *httpapi.API,
	s *store.Store,
	rl *relay.Relay,
	db *gorm.DB,
	log *zap.Logger,
) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Routes(cfg.CORSOrigins),
		ReadHeaderTimeout: constants.RequestTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				cancel()
				return err
			}
			log.Info("server starting", zap.String("addr", ln.Addr().String()))

			g.Go(func() error {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error { return s.RunSweeper(gctx, cfg.SweepInterval) })
			if rl != nil {
				g.Go(func() error { return rl.Run(gctx) })
			}

			go func() {
				<-gctx.Done()
				if ctx.Err() == nil {
					// a worker failed rather than being stopped
					log.Error("background worker stopped, shutting down")
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			log.Info("shutting down server")
			shutdownCtx, done := context.WithTimeout(stopCtx, constants.ShutdownTimeout)
			defer done()

			err := srv.Shutdown(shutdownCtx)
			cancel()
			err = multierr.Append(err, g.Wait())
			if rl != nil {
				err = multierr.Append(err, rl.Close())
			}
			if sqlDB, dbErr := db.DB(); dbErr == nil {
				err = multierr.Append(err, sqlDB.Close())
			}
			if err != nil {
				log.Error("shutdown finished with errors", zap.Error(err))
				return err
			}
			log.Info("server stopped gracefully")
			return nil
		},
	})
}
