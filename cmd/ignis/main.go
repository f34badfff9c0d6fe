// Package main runs an ignis engine configured from a YAML file.
package main

import (
	"flag"
	"io"
	"os"

	"github.com/albertbausili/ignis/pkg/ignis"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	staticRoot := flag.String("static", "", "directory served under /static/")
	development := flag.Bool("dev", false, "use the development logger")
	flag.Parse()

	var logger *zap.Logger
	var err error
	if *development {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	opts := ignis.DefaultOptions()
	if *configPath != "" {
		if opts, err = ignis.LoadOptions(*configPath); err != nil {
			logger.Fatal("load configuration", zap.String("path", *configPath), zap.Error(err))
		}
	}
	opts.Logger = logger

	done := make(chan struct{})
	opts.OnEvent = func(ev ignis.Event) {
		logger.Info("engine event", zap.Stringer("type", ev.Type), zap.String("detail", ev.Detail))
		if ev.Type == ignis.EventSignal {
			close(done)
		}
	}

	engine, err := ignis.New(opts)
	if err != nil {
		logger.Fatal("create engine", zap.Error(err))
	}

	engine.Use(
		ignis.RequestID(),
		ignis.Logger(ignis.LoggerConfig{Logger: logger, SkipPaths: []string{"/health", "/metrics"}}),
		ignis.Metrics(),
		ignis.Tracing(),
		ignis.Cookies(),
		ignis.CORS(ignis.DefaultCORSConfig()),
		ignis.Compress(ignis.DefaultCompressConfig()),
		ignis.Health(ignis.HealthConfig{}),
		ignis.Handler("/metrics", ignis.MetricsHandler()),
	)
	if *staticRoot != "" {
		engine.Use(ignis.Static(ignis.StaticConfig{Prefix: "/static/", Root: *staticRoot}))
	}
	engine.Use(newRouter())

	if err := engine.Start(); err != nil {
		logger.Fatal("start engine", zap.Error(err))
	}
	for _, name := range []string{"http", "https"} {
		if addr := engine.Addr(name); addr != nil {
			logger.Info("serving", zap.String("listener", name), zap.Stringer("addr", addr))
		}
	}

	if !opts.General.HandleSignals {
		select {}
	}
	<-done
	if err := engine.Dispose(); err != nil {
		logger.Error("dispose engine", zap.Error(err))
		os.Exit(1)
	}
}

func newRouter() *ignis.Router {
	router := ignis.NewRouter()
	router.ErrorHandler(ignis.DefaultErrorHandler)

	router.GET("/", func(ctx *ignis.Context) error {
		return ctx.String(200, "ignis %s (%s)\n", ignis.Version, ctx.Kind())
	})
	router.GET("/hello/:name", func(ctx *ignis.Context) error {
		return ctx.JSON(200, map[string]string{
			"message": "Hello, " + ctx.Param("name") + "!",
			"method":  ctx.Request.Method,
			"path":    ctx.Request.URLPath(),
		})
	})
	router.POST("/echo", func(ctx *ignis.Context) error {
		if ct := ctx.Request.Headers.Get("content-type"); ct != "" {
			ctx.Response.SetHeader("content-type", ct)
		}
		ctx.Response.SetStatus(200)
		return ctx.Response.Stream(ctx.Request.Body, ctx.Request.ContentLength)
	})
	router.GET("/stream", func(ctx *ignis.Context) error {
		ctx.Response.SetHeader("content-type", "text/plain; charset=utf-8")
		for i := 0; i < 5; i++ {
			if _, err := io.WriteString(&ctx.Response, "tick\n"); err != nil {
				return err
			}
		}
		return ctx.Response.End()
	})

	api := router.Group("/api/v1")
	api.GET("/users/:id", func(ctx *ignis.Context) error {
		id := ctx.Param("id")
		if id == "0" {
			return ignis.NewHTTPError(404, "user not found").WithDetails(map[string]string{"id": id})
		}
		return ctx.JSON(200, map[string]string{"id": id, "name": "User " + id})
	})
	return router
}
