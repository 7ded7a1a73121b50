package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/exambot/internal/bot"
	"github.com/pavelanni/exambot/internal/catalog"
	"github.com/pavelanni/exambot/internal/evaluator"
	"github.com/pavelanni/exambot/internal/handler"
	appI18n "github.com/pavelanni/exambot/internal/i18n"
	"github.com/pavelanni/exambot/internal/llm"
	"github.com/pavelanni/exambot/internal/llm/prompts"
	"github.com/pavelanni/exambot/internal/lock"
	"github.com/pavelanni/exambot/internal/model"
	"github.com/pavelanni/exambot/internal/questions"
	"github.com/pavelanni/exambot/internal/store"
	"github.com/pavelanni/exambot/internal/telegram"
	"github.com/pavelanni/exambot/internal/vk"
)

func openStore(v *viper.Viper) (*store.Store, error) {
	db, err := store.Open(v.GetString("db-driver"), v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func loadCatalog(v *viper.Viper) (*catalog.Catalog, error) {
	if path := v.GetString("catalog"); path != "" {
		return catalog.Load(path)
	}
	return catalog.Default(v.GetString("lang"))
}

// app is the wiring shared by the webhook and polling transports.
type app struct {
	db     *store.Store
	redis  *redis.Client
	engine *bot.Engine
	config model.BotConfig
}

func newApp(ctx context.Context, v *viper.Viper) (*app, error) {
	cfg := model.BotConfig{
		Lang:             v.GetString("lang"),
		ConfirmationCode: v.GetString("vk-confirmation"),
		Secret:           v.GetString("vk-secret"),
		PromptVariant:    strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant"))),
	}
	if !prompts.IsValidVariant(cfg.PromptVariant) {
		slog.Warn("invalid prompt-variant, using strict", "variant", cfg.PromptVariant)
		cfg.PromptVariant = string(prompts.PromptStrict)
	}

	if err := appI18n.Init(cfg.Lang); err != nil {
		return nil, fmt.Errorf("init i18n: %w", err)
	}
	cat, err := loadCatalog(v)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	db, err := openStore(v)
	if err != nil {
		return nil, err
	}
	a := &app{db: db, config: cfg}

	if paths := v.GetStringSlice("questions"); len(paths) > 0 {
		if _, err := questions.NewImporter(db, cat).Import(ctx, paths); err != nil {
			a.Close()
			return nil, fmt.Errorf("load questions: %w", err)
		}
	}

	llmCfg := llm.DefaultConfig()
	llmCfg.Provider = v.GetString("llm-provider")
	llmCfg.BaseURL = v.GetString("llm-url")
	llmCfg.APIKey = v.GetString("llm-key")
	llmCfg.Model = v.GetString("llm-model")
	llmCfg.Timeout = v.GetDuration("llm-timeout")
	gen, err := llm.NewGenerator(ctx, llmCfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create LLM client: %w", err)
	}

	var locker lock.Locker = lock.NewLocal()
	if addr := v.GetString("redis-addr"); addr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: addr})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to redis %s: %w", addr, err)
		}
		locker = lock.NewRedis(a.redis, 0)
		slog.Info("using redis user locks", "addr", addr)
	}

	machine := bot.NewMachine(cat,
		questions.New(db, gen, cat, cfg.Lang),
		evaluator.New(gen, cat, cfg.PromptVariant, cfg.Lang),
	)
	a.engine = bot.NewEngine(machine, db, locker, v.GetDuration("lock-timeout"))

	slog.Info("bot ready",
		"lang", cfg.Lang,
		"llm_provider", llmCfg.Provider,
		"model", gen.ModelID(),
		"prompt_variant", cfg.PromptVariant,
		"db_driver", v.GetString("db-driver"),
	)
	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			slog.Warn("close redis", "error", err)
		}
	}
	if err := a.db.Close(); err != nil {
		slog.Warn("close database", "error", err)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, v)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.config.ConfirmationCode == "" {
		slog.Warn("vk-confirmation is empty; VK server confirmation will fail")
	}
	h := handler.New(a.engine, vk.NewClient(v.GetString("vk-token"), v.GetString("vk-api-url")), a.config)

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(a.config.Lang))
	if basePath != "" {
		r.Route(basePath, h.Routes)
	} else {
		h.Routes(r)
	}

	srv := &http.Server{
		Addr:              v.GetString("addr"),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("starting server", "addr", srv.Addr, "base_path", basePath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func runPoll(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	token := v.GetString("telegram-token")
	if token == "" {
		return fmt.Errorf("telegram token is required: set --telegram-token or EXAMBOT_TELEGRAM_TOKEN")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, v)
	if err != nil {
		return err
	}
	defer a.Close()

	tg, err := telegram.New(telegram.Options{
		Token:       token,
		PollTimeout: v.GetDuration("poll-timeout"),
	}, a.engine, a.config.Lang)
	if err != nil {
		return err
	}
	tg.Run(ctx)
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	if len(args) == 0 {
		return fmt.Errorf("at least one questions file is required")
	}

	cat, err := loadCatalog(v)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	results, err := questions.NewImporter(db, cat).Import(cmd.Context(), args)
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: imported %d, skipped %v\n", r.Path, r.Imported, r.Skipped)
	}
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	export, err := db.ExportAnswers(cmd.Context())
	if err != nil {
		return fmt.Errorf("export answers: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)
	return nil
}

func runReset(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	userID := v.GetString("user")
	if err := db.ClearSession(cmd.Context(), userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no session for user %s", userID)
		}
		return err
	}
	slog.Info("session reset", "user_id", userID)
	return nil
}
