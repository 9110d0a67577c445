package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/django/v3"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	mflash "github.com/goliatone/go-router/middleware/flash"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/time/rate"

	"github.com/goliatone/go-portal"
	"github.com/goliatone/go-portal/activitymap"
	"github.com/goliatone/go-portal/backend"
	"github.com/goliatone/go-portal/config"
	"github.com/goliatone/go-portal/middleware/csrf"
	"github.com/goliatone/go-portal/redisstore"
	"github.com/goliatone/go-portal/repository"
)

type App struct {
	config  *config.BaseConfig
	logger  *glog.BaseLogger
	storage portal.Storage
	pruner  func(ctx context.Context) error
	closers []func() error
	manager *portal.Manager
	guard   *portal.RouteGuard
	srv     router.Server[*fiber.App]
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

func main() {
	cfg, err := config.Load(config.WithFile(os.Getenv("PORTAL_CONFIG")))
	if err != nil {
		panic(err)
	}

	level := glog.Info
	if cfg.GetApp().Debug {
		level = glog.Trace
	}

	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(level),
		glog.WithName("portal"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)

	if cfg.GetApp().Debug {
		fmt.Println("============")
		fmt.Println(print.MaybeHighlightJSON(cfg))
		fmt.Println("============")
	}

	app := &App{
		config: cfg,
		logger: lgr,
	}
	defer app.Close()

	ctx := context.Background()

	if err := WithStorage(ctx, app); err != nil {
		panic(err)
	}

	if err := WithSessions(ctx, app); err != nil {
		panic(err)
	}

	if err := WithHTTPServer(ctx, app); err != nil {
		panic(err)
	}

	stop := make(chan struct{})
	go Sweeper(app, stop)

	addr := cfg.GetServer().Addr
	app.GetLogger("app").Info("portal listening", "addr", addr, "backend", cfg.GetBackend().BaseURL)
	go func() {
		if err := app.srv.Serve(addr); err != nil {
			app.GetLogger("app").Error("server stopped", "error", err)
		}
	}()

	sig := WaitExitSignal()
	app.GetLogger("app").Info("shutting down", "signal", sig.String())
	close(stop)

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.GetServer().GetShutdownTimeout())
	defer cancel()
	if err := app.srv.Shutdown(shutdownCtx); err != nil {
		app.GetLogger("app").Error("server shutdown", "error", err)
	}
}

func WithStorage(ctx context.Context, app *App) error {
	scfg := app.config.GetStorage()
	lgr := app.GetLogger("storage")

	switch scfg.Driver {
	case config.DriverSQLite:
		db, err := sql.Open(sqliteshim.ShimName, scfg.DSN)
		if err != nil {
			return err
		}
		bunDB := bun.NewDB(db, sqlitedialect.New())

		store := repository.NewCredentialStorage(bunDB)
		store.MustValidate()
		if err := store.CreateSchema(ctx); err != nil {
			return err
		}

		ttl := scfg.GetTTL()
		app.pruner = func(ctx context.Context) error {
			n, err := store.Prune(ctx, ttl)
			if n > 0 {
				lgr.Info("pruned storage entries", "count", n)
			}
			return err
		}
		app.storage = store
		app.closers = append(app.closers, bunDB.Close)

	case config.DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     scfg.RedisAddr,
			Password: scfg.RedisPassword,
			DB:       scfg.RedisDB,
		})

		store := redisstore.New(client,
			redisstore.WithPrefix(scfg.RedisPrefix),
			redisstore.WithTTL(scfg.GetTTL()),
		)
		if err := store.Ping(ctx); err != nil {
			return err
		}
		app.storage = store
		app.closers = append(app.closers, client.Close)

	default:
		lgr.Warn("using process memory storage, sessions are lost on restart")
		app.storage = portal.NewMemoryStorage()
	}

	lgr.Info("storage ready", "driver", scfg.Driver)
	return nil
}

func WithSessions(_ context.Context, app *App) error {
	bcfg := app.config.GetBackend()
	acfg := app.config.GetAuth()

	api := backend.New(bcfg.BaseURL,
		backend.WithTimeout(bcfg.GetTimeout()),
		backend.WithLogger(app.GetLogger("backend")),
		backend.WithDebug(bcfg.Debug),
	)

	var inspectorOpts []portal.TokenInspectorOption
	if bcfg.JWKSURL != "" {
		kf, err := portal.NewJWKSKeyfunc(bcfg.JWKSURL, app.GetLogger("jwks"))
		if err != nil {
			return err
		}
		inspectorOpts = append(inspectorOpts, portal.WithKeyfunc(kf))
	}

	activity := app.GetLogger("activity")

	app.manager = portal.NewManager(app.storage, api,
		portal.WithManagerLogger(app.GetLogger("sessions")),
		portal.WithActivitySink(portal.ActivitySinkFunc(func(_ context.Context, e portal.ActivityEvent) error {
			rec := activitymap.Normalize(e)
			activity.Info(rec.Verb,
				"actor", rec.ActorID,
				"object_type", rec.ObjectType,
				"object_id", rec.ObjectID,
				"metadata", rec.Metadata,
			)
			return nil
		})),
		portal.WithManagerConfig(acfg),
		portal.WithInspector(portal.NewTokenInspector(inspectorOpts...)),
		portal.WithLoginRateLimit(rate.Limit(acfg.LoginRateLimit), acfg.LoginBurst),
	)
	app.closers = append(app.closers, func() error {
		app.manager.Close()
		return nil
	})

	app.guard = portal.NewRouteGuard(app.manager, acfg)
	app.guard.Logger = app.GetLogger("guard")

	return nil
}

func WithHTTPServer(_ context.Context, app *App) error {
	engine := django.NewFileSystem(http.FS(portal.GetViewsFS()), ".html")
	helpers := portal.TemplateHelpers()
	// request values come from the handlers and locals
	delete(helpers, "csrf_token")
	delete(helpers, "csrf_field")
	engine.AddFuncMap(helpers)
	engine.AddFunc("app_name", app.config.GetApp().Name)
	engine.Reload(app.config.GetApp().Debug)

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:      true,
			EnablePrintRoutes: app.config.GetApp().Debug,
			StrictRouting:     false,
			PassLocalsToViews: true,
			Views:             engine,
		}))
	})

	r := srv.Router()
	r.WithLogger(app.GetLogger("router"))

	r.Use(mflash.New(mflash.ConfigDefault))
	r.Use(app.guard.ClientIdentity())
	r.Use(csrf.New(csrf.Config{
		Storage: app.manager.Storage(),
	}))

	portal.RegisterPortalRoutes(r,
		portal.WithControllerManager(app.manager),
		portal.WithControllerGuard(app.guard),
		portal.WithControllerLogger(app.GetLogger("portal")),
		portal.WithControllerDebug(app.config.GetApp().Debug),
	)

	app.srv = srv
	return nil
}

// Sweeper drops idle in-memory sessions and prunes stale durable entries
func Sweeper(app *App, stop <-chan struct{}) {
	idle := app.config.GetAuth().GetSweepIdle()
	lgr := app.GetLogger("sweeper")
	if idle <= 0 {
		lgr.Warn("idle sweep disabled")
		return
	}

	ticker := time.NewTicker(idle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if n := app.manager.Sweep(idle); n > 0 {
				lgr.Debug("swept idle clients", "count", n)
			}
			if app.pruner != nil {
				if err := app.pruner(context.Background()); err != nil {
					lgr.Error("prune storage", "error", err)
				}
			}
		}
	}
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.GetLogger("app").Error("close", "error", err)
		}
	}
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
