package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pavelanni/exambot/internal/llm"
	"github.com/pavelanni/exambot/internal/llm/prompts"
	"github.com/pavelanni/exambot/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("error reading .env file", "error", err)
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "exambot",
		Short: "Exam practice chat bot for VK and Telegram",
	}

	serve := serveCmd()
	root.AddCommand(serve, pollCmd(), importCmd(), exportCmd(), resetCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `exambot --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the VK callback webhook",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /bot)")
	f.String("vk-token", "", "VK community access token")
	f.String("vk-confirmation", "", "Confirmation code returned to VK")
	f.String("vk-secret", "", "VK callback secret (empty disables the check)")
	f.String("vk-api-url", "", "VK API base URL (default https://api.vk.com/method)")
	botFlags(f)
	storeFlags(f)
	logFlags(f)
	return cmd
}

func pollCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Run the bot over Telegram long polling",
		RunE:  runPoll,
	}
	f := cmd.Flags()
	f.String("telegram-token", "", "Telegram bot token")
	f.Duration("poll-timeout", 0, "Telegram long polling timeout (0 = default)")
	botFlags(f)
	storeFlags(f)
	logFlags(f)
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [files...]",
		Short: "Import local question bank files",
		RunE:  runImport,
	}
	f := cmd.Flags()
	f.StringP("lang", "l", "en", "Catalog language (en, ru)")
	f.String("catalog", "", "Catalog file (YAML, JSON or TOML); embedded default when empty")
	storeFlags(f)
	logFlags(f)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the answer log and per-user stats as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	storeFlags(f)
	logFlags(f)
	return cmd
}

func resetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear a user's selections and pending question",
		RunE:  runReset,
	}
	f := cmd.Flags()
	f.String("user", "", "User id, e.g. vk:123 or tg:456 (required)")
	storeFlags(f)
	logFlags(f)
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func botFlags(f *pflag.FlagSet) {
	def := llm.DefaultConfig()
	f.StringSliceP("questions", "q", nil, "Question bank JSON files imported at startup (repeatable)")
	f.String("llm-provider", def.Provider, "LLM provider (openai, anthropic, gemini, mock)")
	f.String("llm-url", "", "OpenAI-compatible API base URL")
	f.String("llm-key", "", "API key for LLM")
	f.String("llm-model", def.Model, "LLM model name")
	f.Duration("llm-timeout", def.Timeout, "Timeout for one LLM call")
	f.StringP("lang", "l", "en", "UI language (en, ru)")
	f.String("catalog", "", "Catalog file (YAML, JSON or TOML); embedded default when empty")
	f.String("prompt-variant", string(prompts.PromptStrict), "Judge prompt variant (strict, standard, lenient)")
	f.String("redis-addr", "", "Redis address for per-user locks across instances (empty = in-process)")
	f.Duration("lock-timeout", 0, "How long a message waits for the same user's previous message (0 = default)")
}

func storeFlags(f *pflag.FlagSet) {
	f.String("db-driver", store.DriverSQLite, "Database driver (sqlite, postgres)")
	f.String("db", "exambot.db", "SQLite database path or PostgreSQL DSN")
}

func logFlags(f *pflag.FlagSet) {
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("EXAMBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("exambot")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/exambot")
	v.AddConfigPath("/etc/exambot")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}
