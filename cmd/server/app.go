package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	router "github.com/dkeye/confsfu/internal/adapters/http"
	"github.com/dkeye/confsfu/internal/adapters/signal"
	"github.com/dkeye/confsfu/internal/app"
	"github.com/dkeye/confsfu/internal/app/orch"
	"github.com/dkeye/confsfu/internal/config"
	"github.com/dkeye/confsfu/internal/core"
	"github.com/dkeye/confsfu/internal/media"
	"github.com/dkeye/confsfu/internal/media/memory"
	"github.com/dkeye/confsfu/internal/media/ortc"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
)

const shutdownTimeout = 10 * time.Second

// run starts the app and blocks until SIGINT or SIGTERM.
func run(cfg *config.Config) error {
	a := newApp(cfg)
	if err := a.Err(); err != nil {
		return err
	}
	startCtx, cancel := context.WithTimeout(context.Background(), a.StartTimeout())
	defer cancel()
	if err := a.Start(startCtx); err != nil {
		return err
	}
	sig := <-a.Wait()
	log.Info().Stringer("signal", sig.Signal).Msg("stopping")
	stopCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout+a.StopTimeout())
	defer stop()
	if err := a.Stop(stopCtx); err != nil {
		return err
	}
	log.Info().Msg("server exited gracefully")
	return nil
}

func newApp(cfg *config.Config) *fx.App {
	return fx.New(
		fx.Supply(cfg),
		fx.WithLogger(func() fxevent.Logger { return fxLogger{} }),
		mediaModule,
		roomModule,
		httpModule,
	)
}

var mediaModule = fx.Module("media",
	fx.Provide(newEngine, newPool),
)

var roomModule = fx.Module("room",
	fx.Provide(newRegistry, app.NewSessions, newOrchestrator),
)

var httpModule = fx.Module("http",
	fx.Provide(newRateLimiter, newSignalController, newRouter),
	fx.Invoke(serveHTTP),
)

func newEngine(cfg *config.Config) (media.Engine, error) {
	switch cfg.Media.Engine {
	case "ortc":
		return ortc.New(), nil
	case "memory":
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unknown media engine %q", cfg.Media.Engine)
}

func newPool(lc fx.Lifecycle, cfg *config.Config, engine media.Engine) (*app.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool, err := app.CreatePool(ctx, engine, cfg.Media.NumWorkers, cfg.Media.Worker)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(pool.Close))
	return pool, nil
}

func newRegistry(cfg *config.Config, pool *app.Pool) (*app.Registry, error) {
	hp, err := core.HostPolicyByName(cfg.Room.HostPolicy)
	if err != nil {
		return nil, err
	}
	return app.NewRegistry(pool, app.RoomSettings{
		HostPolicy: hp,
		Router:     cfg.Media.RouterOptions(),
		Transport:  cfg.Media.TransportOptions(),
		Observer:   cfg.Media.ObserverOptions(),
	}), nil
}

func newOrchestrator(lc fx.Lifecycle, cfg *config.Config, pool *app.Pool, rooms *app.Registry, sessions *app.Sessions) *orch.Orchestrator {
	o := &orch.Orchestrator{
		Pool:           pool,
		Rooms:          rooms,
		Sessions:       sessions,
		Policy:         app.PolicyByName(cfg.Room.Backpressure),
		CloseWhenEmpty: cfg.Room.CloseWhenEmpty,
	}
	lc.Append(fx.Hook{OnStop: o.Shutdown})
	return o
}

func newRateLimiter(lc fx.Lifecycle, cfg *config.Config) *signal.RoomRateLimiter {
	rl := signal.NewRoomRateLimiter(cfg.Room.JoinRate.Limit, cfg.Room.JoinRate.Interval)
	if cfg.Room.JoinRate.Limit <= 0 || cfg.Room.JoinRate.Interval <= 0 {
		return rl
	}
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				ticker := time.NewTicker(cfg.Room.JoinRate.Interval)
				defer ticker.Stop()
				for {
					select {
					case <-done:
						return
					case <-ticker.C:
						rl.Prune()
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			close(done)
			return nil
		},
	})
	return rl
}

func newSignalController(cfg *config.Config, o *orch.Orchestrator, rl *signal.RoomRateLimiter) *signal.SignalWSController {
	return signal.NewSignalWSController(o, rl, signal.Settings{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		SendBuffer: cfg.SendBuffer,
	})
}

// newRouter builds the gin engine. Signaling connections hang off a context
// that is canceled when the app stops, which closes them after the listener.
func newRouter(lc fx.Lifecycle, cfg *config.Config, o *orch.Orchestrator, ctrl *signal.SignalWSController) *gin.Engine {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.StopHook(cancel))
	return router.SetupRouter(ctx, cfg, o, ctrl)
}

func serveHTTP(lc fx.Lifecycle, cfg *config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info().Str("module", "http").Str("addr", srv.Addr).Str("engine", cfg.Media.Engine).Msg("server started")
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error().Str("module", "http").Err(err).Msg("server error")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info().Str("module", "http").Msg("shutting down")
			ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	})
}

// fxLogger sends container events to zerolog.
type fxLogger struct{}

func (fxLogger) LogEvent(event fxevent.Event) {
	l := log.With().Str("module", "fx").Logger()
	switch e := event.(type) {
	case *fxevent.Provided:
		if e.Err != nil {
			l.Error().Err(e.Err).Str("constructor", e.ConstructorName).Msg("provide failed")
		}
	case *fxevent.Invoked:
		if e.Err != nil {
			l.Error().Err(e.Err).Str("function", e.FunctionName).Msg("invoke failed")
		}
	case *fxevent.OnStartExecuted:
		if e.Err != nil {
			l.Error().Err(e.Err).Str("caller", e.CallerName).Msg("start hook failed")
		}
	case *fxevent.OnStopExecuted:
		if e.Err != nil {
			l.Error().Err(e.Err).Str("caller", e.CallerName).Msg("stop hook failed")
		}
	case *fxevent.Started:
		if e.Err != nil {
			l.Error().Err(e.Err).Msg("start failed")
		} else {
			l.Debug().Msg("started")
		}
	case *fxevent.Stopped:
		if e.Err != nil {
			l.Error().Err(e.Err).Msg("stop failed")
		}
	}
}
