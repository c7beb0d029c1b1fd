package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"gocloud.dev/server/health"

	"github.com/sudo-init-do/tasking/internal/api"
	"github.com/sudo-init-do/tasking/internal/config"
	"github.com/sudo-init-do/tasking/internal/demo"
	"github.com/sudo-init-do/tasking/internal/messaging"
	"github.com/sudo-init-do/tasking/internal/ordering"
	"github.com/sudo-init-do/tasking/internal/search"
	"github.com/sudo-init-do/tasking/internal/store"
	"github.com/sudo-init-do/tasking/internal/tasks"
)

const (
	searchTimeout     = 5 * time.Minute
	searchConcurrency = 10
	shutdownTimeout   = 15 * time.Second
)

func registerServeCmd(ctx context.Context, cfg *config.Config, rootCmd *cobra.Command) {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tasking API",
		RunE: func(*cobra.Command, []string) error {
			return serve(ctx, *cfg)
		},
	}
	serveCmd.Flags().StringVar(&cfg.Port, "port", cfg.Port, "port to listen on")
	serveCmd.Flags().StringVar(&cfg.CatalogPath, "catalog", cfg.CatalogPath, "product catalog YAML; the built-in catalog when empty")
	rootCmd.AddCommand(serveCmd)
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	s, err := store.Open(openCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreType, err)
	}
	return s, nil
}

func serve(ctx context.Context, cfg config.Config) error {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			slog.Error("closing store", "error", err)
		}
	}()

	hub := messaging.NewHub()
	orders := ordering.NewManager(st, ordering.WithNotifier(hub))
	engine := search.NewEngine(st)

	if cfg.RedisAddr != "" {
		q, err := tasks.Start(cfg.RedisAddr, searchConcurrency, engine.Process)
		if err != nil {
			return err
		}
		defer q.Close()
		engine.UseDispatcher(q)
	} else {
		d := search.NewGoDispatcher(engine.Process, searchTimeout)
		defer d.Wait()
		engine.UseDispatcher(d)
	}

	cat, err := demo.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return err
	}
	registry, err := demo.Backend{Orders: orders, Searches: engine}.Registry(cat)
	if err != nil {
		return err
	}

	opts := api.Options{
		Title:       "Tasking API",
		Description: "Order satellite collects and search for tasking opportunities.",
		BaseURL:     cfg.BaseURL,
		Hub:         hub,
		HealthChecks: []health.Checker{health.CheckerFunc(func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return st.Ping(pingCtx)
		})},
	}
	if cfg.AsyncSearch {
		opts.SearchRecords = engine
	}
	srv, err := api.New(registry, orders, opts)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	errc := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", httpServer.Addr, "store", cfg.StoreType, "async", srv.Async(), "products", len(registry.Products()))
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
