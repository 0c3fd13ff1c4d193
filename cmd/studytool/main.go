package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/studytool/internal/generate"
	"github.com/pavelanni/studytool/internal/grading"
	"github.com/pavelanni/studytool/internal/handler"
	appI18n "github.com/pavelanni/studytool/internal/i18n"
	"github.com/pavelanni/studytool/internal/jobs"
	"github.com/pavelanni/studytool/internal/llm"
	"github.com/pavelanni/studytool/internal/llm/prompts"
	"github.com/pavelanni/studytool/internal/model"
	"github.com/pavelanni/studytool/internal/store"
	"github.com/pavelanni/studytool/internal/worker"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "studytool",
		Short: "Study exam grading backend",
	}

	serve := serveCmd()
	root.AddCommand(serve, importCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `studytool --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addStoreFlags(f interface {
	String(name, value, usage string) *string
}) {
	f.String("db-driver", string(store.DriverSQLite), "Database driver (sqlite, postgres)")
	f.String("db", "studytool.db", "SQLite database path or Postgres URL")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP grading server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	addStoreFlags(f)
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.StringSliceP("questions", "q", nil, "Question JSON files to import on startup (repeatable)")
	f.String("llm-provider", llm.ProviderOpenAI, "LLM provider (openai, gemini)")
	f.String("llm-url", "", "OpenAI-compatible API base URL (empty for the OpenAI default)")
	f.String("llm-key", "", "Server-side LLM API key used when a request sends none")
	f.String("llm-model", "", "LLM model name (empty for the provider default)")
	f.Bool("llm-ping", false, "Check the LLM endpoint at startup")
	f.String("prompt-variant", string(prompts.Standard), "Semantic check prompt variant (strict, standard, lenient)")
	f.Duration("oracle-timeout", grading.DefaultOracleTimeout, "Timeout for a single semantic check")
	f.Duration("duplicate-window", grading.DefaultDuplicateWindow, "Window in which a repeated submission returns the stored report")
	f.Int("workers", 4, "Background worker pool size")
	f.StringSlice("cors-origins", []string{"*"}, "Allowed CORS origins")
	f.StringP("lang", "l", "en", "Default message language (en, ru)")
	f.String("admin-password", "", "Password for admin endpoints (or set STUDYTOOL_ADMIN_PASSWORD)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import questions from a JSON file",
		RunE:  runImport,
	}
	f := cmd.Flags()
	addStoreFlags(f)
	f.StringP("file", "f", "", "Questions JSON file (required)")
	f.String("name", "", "Upload name (defaults to the file name)")
	f.Bool("exam", false, "Also create an exam holding every imported question")
	f.Bool("force", false, "Import even if the file was imported before")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")

	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export graded attempts as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	addStoreFlags(f)
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func setupLogging(v *viper.Viper) {
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

	v.SetEnvPrefix("STUDYTOOL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("studytool")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/studytool")
	v.AddConfigPath("/etc/studytool")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func openStore(v *viper.Viper) (*store.Store, error) {
	db, err := store.New(store.Driver(strings.ToLower(v.GetString("db-driver"))), v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	if err := prompts.Load(prompts.Templates); err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}
	promptVariant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
	if !prompts.IsValidVariant(promptVariant) {
		slog.Warn("invalid prompt-variant, using standard", "variant", promptVariant)
		promptVariant = string(prompts.Standard)
	}

	llmCfg := llm.Config{
		Provider: strings.ToLower(v.GetString("llm-provider")),
		BaseURL:  v.GetString("llm-url"),
		APIKey:   v.GetString("llm-key"),
		Model:    v.GetString("llm-model"),
		Variant:  prompts.Variant(promptVariant),
	}
	if v.GetBool("llm-ping") {
		if err := pingLLM(cmd.Context(), llmCfg); err != nil {
			return fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "provider", llmCfg.Provider, "model", llmCfg.DefaultModel())
	}

	pool := worker.New(v.GetInt("workers"))
	svc := grading.New(db, pool, oracleFactory(llmCfg), grading.Options{
		DuplicateWindow: v.GetDuration("duplicate-window"),
		OracleTimeout:   v.GetDuration("oracle-timeout"),
	})

	if err := loadQuestions(cmd.Context(), db, svc, v.GetStringSlice("questions")); err != nil {
		return fmt.Errorf("load questions: %w", err)
	}

	jm := jobs.NewManager()
	pipeline := generate.NewPipeline(db, jm, pool, generatorFactory(llmCfg))

	h, err := handler.New(svc, pipeline, jm, handler.Config{
		AdminPassword: v.GetString("admin-password"),
		CORSOrigins:   v.GetStringSlice("cors-origins"),
	})
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", addr,
			"db_driver", v.GetString("db-driver"),
			"llm_provider", llmCfg.Provider,
			"model", llmCfg.DefaultModel(),
			"prompt_variant", promptVariant,
			"workers", v.GetInt("workers"),
			"lang", lang,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		slog.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "error", err)
	}
	if err := pool.Shutdown(shutdownCtx); err != nil {
		slog.Warn("worker pool shutdown", "error", err)
	}
	return nil
}

func pingLLM(ctx context.Context, cfg llm.Config) error {
	gen, err := cfg.NewGenerator(ctx, "")
	if err != nil {
		return err
	}
	defer gen.Close()
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	return gen.Ping(ctx)
}

// oracleFactory builds a fresh oracle per validation batch. Errors are
// returned with a nil interface so callers never see a typed nil.
func oracleFactory(cfg llm.Config) grading.OracleFactory {
	return func(ctx context.Context, credential string) (grading.Oracle, error) {
		o, err := cfg.NewOracle(ctx, credential)
		if err != nil {
			return nil, err
		}
		return o, nil
	}
}

func generatorFactory(cfg llm.Config) generate.GeneratorFactory {
	return func(ctx context.Context, credential string) (generate.Generator, error) {
		o, err := cfg.NewOracle(ctx, credential)
		if err != nil {
			return nil, err
		}
		return o, nil
	}
}

func runImport(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := grading.New(db, nil, nil, grading.Options{})
	path := v.GetString("file")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if !v.GetBool("force") {
		stored, err := db.GetImportedFileHash(cmd.Context(), path)
		if err != nil {
			return fmt.Errorf("check import status for %s: %w", path, err)
		}
		if stored == sha256sum(data) {
			slog.Info("questions file unchanged, skipping", "path", path)
			return nil
		}
	}

	name := v.GetString("name")
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	res, err := importFile(cmd.Context(), db, svc, path, name, data, v.GetBool("exam"))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d questions (upload %d", res.Imported, res.UploadID)
	if res.ExamID != 0 {
		fmt.Fprintf(cmd.OutOrStdout(), ", exam %d", res.ExamID)
	}
	fmt.Fprintln(cmd.OutOrStdout(), ")")
	return nil
}

// loadQuestions imports each file once. A file whose content changed since
// its last import is skipped so existing exams keep their questions.
func loadQuestions(ctx context.Context, db *store.Store, svc *grading.Service, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		hash := sha256sum(data)
		storedHash, err := db.GetImportedFileHash(ctx, path)
		if err != nil {
			return fmt.Errorf("check import status for %s: %w", path, err)
		}
		if storedHash == hash {
			slog.Info("questions file unchanged, skipping", "path", path)
			continue
		}
		if storedHash != "" {
			slog.Warn("questions file changed since last import, skipping to avoid breaking existing exams",
				"path", path)
			continue
		}

		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if _, err := importFile(ctx, db, svc, path, name, data, true); err != nil {
			return err
		}
	}
	return nil
}

func importFile(ctx context.Context, db *store.Store, svc *grading.Service, path, name string, data []byte, withExam bool) (grading.ImportResult, error) {
	var questions []model.QuestionImport
	if err := json.Unmarshal(data, &questions); err != nil {
		return grading.ImportResult{}, fmt.Errorf("parse %s: %w", path, err)
	}
	res, err := svc.Import(ctx, grading.ImportRequest{
		Name:      name,
		FileType:  "json",
		Questions: questions,
		WithExam:  withExam,
	})
	if err != nil {
		return grading.ImportResult{}, fmt.Errorf("import %s: %w", path, err)
	}
	if err := db.SetImportedFileHash(ctx, path, sha256sum(data)); err != nil {
		return grading.ImportResult{}, fmt.Errorf("record import for %s: %w", path, err)
	}
	slog.Info("imported questions", "path", path, "count", res.Imported,
		"upload_id", res.UploadID, "exam_id", res.ExamID)
	return res, nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	results, err := db.ExportAllAttempts(cmd.Context())
	if err != nil {
		return fmt.Errorf("export attempts: %w", err)
	}
	if results == nil {
		results = []model.AttemptResult{}
	}

	data, err := json.MarshalIndent(model.AttemptsExport{
		ExportedAt: time.Now().UTC(),
		Attempts:   results,
	}, "", "  ")
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

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
