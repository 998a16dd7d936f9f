package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gyaneshwarpardhi/clientrules/internal/action"
	"github.com/gyaneshwarpardhi/clientrules/internal/action/formula"
	"github.com/gyaneshwarpardhi/clientrules/internal/api"
	"github.com/gyaneshwarpardhi/clientrules/internal/audit"
	"github.com/gyaneshwarpardhi/clientrules/internal/category"
	"github.com/gyaneshwarpardhi/clientrules/internal/config"
	"github.com/gyaneshwarpardhi/clientrules/internal/engine"
	"github.com/gyaneshwarpardhi/clientrules/internal/store"
)

func main() {
	cfgPath := flag.String("config", "configs/clientrules.yaml", "Path to service YAML config")
	addr := flag.String("addr", "", "HTTP listen address (overrides server.addr)")
	flag.Parse()

	// ── Load config ──────────────────────────────────────────────────────────
	loader, err := config.NewLoader(*cfgPath, nil)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	cfg := loader.Config()
	if err := config.Validate(cfg); err != nil {
		slog.Error("config validation failed", "err", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	// ── Audit log ─────────────────────────────────────────────────────────────
	var auditOpts []audit.Option
	var sink *audit.FileSink
	if cfg.Audit.File != "" {
		sink, err = audit.OpenFileSink(cfg.Audit.File, logger)
		if err != nil {
			slog.Error("failed to open audit file", "path", cfg.Audit.File, "err", err)
			os.Exit(1)
		}
		auditOpts = append(auditOpts, audit.WithSink(sink))
	}
	auditLog := audit.New(logger, auditOpts...)

	// ── Action registry ───────────────────────────────────────────────────────
	fc, err := formula.NewCompiler()
	if err != nil {
		slog.Error("failed to build formula environment", "err", err)
		os.Exit(1)
	}
	reg := action.NewDefaultRegistry(fc, action.NewCustomFuncs())

	// ── Store + categories ────────────────────────────────────────────────────
	st := store.New(auditLog, logger, store.WithValidator(engine.RuleValidator(reg)))
	cats, err := category.NewStatic(cfg.CategoryTable())
	if err != nil {
		slog.Error("invalid client categories", "err", err)
		os.Exit(1)
	}

	// ── Engine ────────────────────────────────────────────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := engine.New(ctx, st, auditLog, cats, reg, cfg.Engine, logger)

	if cfg.Rules.SeedFile != "" {
		seed(eng, cfg.Rules.SeedFile)
	}

	// ── Hot-reload watcher ────────────────────────────────────────────────────
	loader.OnChange(func(newCfg *config.Config) {
		r, err := category.NewStatic(newCfg.CategoryTable())
		if err != nil {
			slog.Warn("hot-reload skipped: client categories invalid", "err", err)
			return
		}
		eng.SwapCategories(r)
		slog.Info("client categories hot-reloaded", "count", len(newCfg.ClientCategories))
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.New(eng, loader, logger),
		ReadTimeout:  cfg.Server.ReadTimeout(),
		WriteTimeout: cfg.Server.WriteTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Server.Addr, "rules", len(eng.GetAllRules()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down…")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	cancel() // stop worker pools
	eng.Shutdown()
	if sink != nil {
		if err := sink.Close(); err != nil {
			slog.Warn("audit file close failed", "err", err)
		}
	}
	slog.Info("goodbye")
}

func newLogger(conf config.LoggingConf) *slog.Logger {
	level, err := config.ParseLevel(conf.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if conf.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// seed imports an exported rule set at startup. Rejected records are logged
// and skipped.
func seed(eng *engine.Engine, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("seed file unreadable, starting empty", "path", path, "err", err)
		return
	}
	rep := eng.ImportRulesFromJSON(data, "seed")
	if !rep.OK {
		for _, e := range rep.Errors {
			slog.Warn("seed record rejected", "err", e)
		}
	}
	slog.Info("rules seeded", "path", path, "created", rep.Created, "updated", rep.Updated)
}
