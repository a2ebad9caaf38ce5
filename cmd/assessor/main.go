package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/cataid/assessor/internal/catalog"
	"github.com/cataid/assessor/internal/engine"
	"github.com/cataid/assessor/internal/handler"
	appI18n "github.com/cataid/assessor/internal/i18n"
	"github.com/cataid/assessor/internal/llm"
	"github.com/cataid/assessor/internal/llm/prompts"
	"github.com/cataid/assessor/internal/model"
	"github.com/cataid/assessor/internal/notify"
	"github.com/cataid/assessor/internal/recommend"
	"github.com/cataid/assessor/internal/report"
	"github.com/cataid/assessor/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "assessor",
		Short:        "CAT-AID assessment scoring and reporting service",
		SilenceUsage: true,
	}

	serve := serveCmd()
	root.AddCommand(serve,
		scoreCmd(),
		rescoreCmd(),
		reportCmd(),
		compareCmd(),
		exportCmd(),
		importCmd(),
		catalogCmd(),
	)

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `assessor --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

// commonFlags registers the flags every command needs to open the store and
// build the scoring engine.
func commonFlags(f *pflag.FlagSet) {
	f.String("db", "assessor.db", "SQLite database path")
	f.String("catalog", "", "Question catalog file, YAML or JSON (empty = built-in)")
	f.String("advice", "", "Advice table file, YAML (empty = built-in)")
	f.Bool("strict-reports", false, "Fail report assembly when a recommendation names an unknown section")
	f.StringP("lang", "l", "en", "Language for user-facing messages (en, hi)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP assessment server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	commonFlags(f)
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("llm-url", "", "OpenAI-compatible API base URL (empty disables drafted summaries)")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("summary-variant", string(prompts.PromptStandard), "Summary prompt variant (standard, plain)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /cat)")
	return cmd
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

	v.SetEnvPrefix("ASSESSOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("assessor")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/assessor")
	v.AddConfigPath("/etc/assessor")
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

// loadEngine reads the catalog and advice table named by the flags, falling
// back to the built-in definitions. Any load failure is fatal to startup.
func loadEngine(v *viper.Viper) (*engine.Engine, error) {
	var (
		c   *catalog.Catalog
		err error
	)
	if path := v.GetString("catalog"); path != "" {
		c, err = catalog.Load(path)
	} else {
		c, err = catalog.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	var advice *recommend.AdviceTable
	if path := v.GetString("advice"); path != "" {
		advice, err = recommend.LoadAdvice(path)
	} else {
		advice, err = recommend.DefaultAdvice()
	}
	if err != nil {
		return nil, fmt.Errorf("load advice: %w", err)
	}

	slog.Debug("catalog loaded",
		"version", c.Version(),
		"sections", c.Len(),
		"max_score", c.TotalMax(),
		"advice_categories", advice.Len(),
	)
	return engine.New(c, advice, report.Strict(v.GetBool("strict-reports"))), nil
}

// openStore opens the database and warns when cached scores were computed
// against a different catalog version. A fresh database records the
// current version on first open.
func openStore(v *viper.Viper, e *engine.Engine) (*store.Store, error) {
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := checkCatalogVersion(db, e.Catalog().Version()); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func checkCatalogVersion(db *store.Store, current string) error {
	stored, err := db.CatalogVersion()
	if err != nil {
		return fmt.Errorf("read catalog version: %w", err)
	}
	switch {
	case stored == "":
		if err := db.SetCatalogVersion(current); err != nil {
			return fmt.Errorf("record catalog version: %w", err)
		}
	case stored != current:
		slog.Warn("catalog changed since last rescore", "stored", stored, "current", current)
	}

	stale, err := db.StaleScoreCount(current)
	if err != nil {
		return fmt.Errorf("count stale scores: %w", err)
	}
	if stale > 0 {
		slog.Warn("cached scores use another catalog version, run rescore",
			"count", stale, "current", current)
	}
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	eng, err := loadEngine(v)
	if err != nil {
		return err
	}

	db, err := openStore(v, eng)
	if err != nil {
		return err
	}
	defer db.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	variant := strings.ToLower(strings.TrimSpace(v.GetString("summary-variant")))
	if !prompts.IsValidVariant(variant) {
		slog.Warn("invalid summary-variant, using standard", "variant", variant)
		variant = string(prompts.PromptStandard)
	}

	// Drafted summaries are optional; without an endpoint the route answers 503.
	var drafter handler.Drafter
	if llmURL := v.GetString("llm-url"); llmURL != "" {
		llmClient, err := llm.New(llmURL, v.GetString("llm-key"), v.GetString("llm-model"), variant)
		if err != nil {
			return fmt.Errorf("create LLM client: %w", err)
		}
		if err := llmClient.Ping(context.Background()); err != nil {
			return fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "url", llmURL, "model", v.GetString("llm-model"))
		drafter = llmClient
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	cfg := model.AssessmentConfig{
		Lang:     lang,
		BasePath: basePath,
	}

	h, err := handler.New(db, eng, drafter, notify.NewLog(nil), cfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"catalog_version", eng.Catalog().Version(),
		"lang", lang,
		"strict_reports", v.GetBool("strict-reports"),
		"summary_variant", variant,
		"drafts", drafter != nil,
		"base_path", basePath,
	)
	return http.ListenAndServe(addr, r)
}
