package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mtlprog/offlinecache/internal/config"
	"github.com/mtlprog/offlinecache/internal/handler"
	"github.com/mtlprog/offlinecache/internal/logger"
)

func main() {
	app := &cli.App{
		Name:  "offlinecache",
		Usage: "Network-first offline cache for a web origin",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "database-url",
				Aliases: []string{"d"},
				Value:   config.DefaultDatabaseURL,
				Usage:   "PostgreSQL database URL for cache storage",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "sqlite-path",
				Usage:   "SQLite file for cache storage (used when no database URL is set)",
				EnvVars: []string{"SQLITE_PATH"},
			},
		},
		Before: func(c *cli.Context) error {
			// Commands that print to stdout keep it clean of log lines.
			logger.SetupWriter(os.Stderr, logger.ParseLevel(c.String("log-level")))
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Install, activate and serve the offline cache proxy",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "port",
						Aliases: []string{"p"},
						Value:   config.DefaultPort,
						Usage:   "HTTP server port",
						EnvVars: []string{"PORT"},
					},
				},
				Action: runServe,
			},
			{
				Name:   "install",
				Usage:  "Dispatch an install event once",
				Action: runInstall,
			},
			{
				Name:   "activate",
				Usage:  "Dispatch an activate event once, deleting stale caches",
				Action: runActivate,
			},
			{
				Name:   "caches",
				Usage:  "List cache containers and their entries",
				Action: runCaches,
			},
		},
		Action: runServe,
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func runServe(c *cli.Context) error {
	ctx := c.Context

	port := c.String("port")
	if port == "" {
		port = config.DefaultPort
	}

	rt, err := newRuntime(ctx, c)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.dispatcher.DispatchInstall(ctx); err != nil {
		return fmt.Errorf("install: %w", err)
	}
	if err := rt.dispatcher.DispatchActivate(ctx); err != nil {
		return fmt.Errorf("activate: %w", err)
	}

	h, err := handler.New(handler.Params{
		Dispatcher: rt.dispatcher,
		Worker:     rt.worker,
		Backend:    rt.backend,
		AdminToken: rt.cfg.AdminToken,
	})
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      rt.cfg.FetchTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server",
			"server_addr", "http://localhost:"+port,
			"origin", rt.cfg.OriginURL,
			"cache_name", rt.cfg.CacheName,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-done:
		slog.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

func runInstall(c *cli.Context) error {
	rt, err := newRuntime(c.Context, c)
	if err != nil {
		return err
	}
	defer rt.Close()

	return rt.dispatcher.DispatchInstall(c.Context)
}

func runActivate(c *cli.Context) error {
	rt, err := newRuntime(c.Context, c)
	if err != nil {
		return err
	}
	defer rt.Close()

	return rt.dispatcher.DispatchActivate(c.Context)
}

func runCaches(c *cli.Context) error {
	rt, err := newRuntime(c.Context, c)
	if err != nil {
		return err
	}
	defer rt.Close()

	return printCaches(c.Context, c.App.Writer, rt.backend.Caches, rt.cfg.CacheName)
}
