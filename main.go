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

	"storybook/api"
	"storybook/config"
	"storybook/fetch"
	"storybook/imagehost"
	"storybook/lib/sl"
	"storybook/middleware"
	"storybook/orchestrator"
	"storybook/providers"
	"storybook/resilience"
	"storybook/storage"

	"golang.org/x/time/rate"
)

const (
	envProd = "prod"

	shutdownTimeout = 30 * time.Second
)

func main() {
	configPath := flag.String("conf", "conf.yml", "path to config file")
	flag.Parse()

	conf, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("loading configuration", sl.Err(err))
		os.Exit(1)
	}
	log := setupLogger(conf.Env)
	log.With(
		slog.String("config", *configPath),
		slog.String("env", conf.Env),
		slog.String("describer", conf.Providers.Describer),
		slog.String("storage", conf.Storage.Driver),
	).Info("starting storybook api")

	ctx := context.Background()

	deps, err := buildProviders(ctx, conf, log)
	if err != nil {
		log.Error("creating providers", sl.Err(err))
		os.Exit(1)
	}

	store := openStorage(conf, log)
	deps.Catalog = store
	deps.History = store
	deps.Fetcher = fetch.NewFetcher(conf.Cache.TTL, conf.Cache.Cleanup, conf.Providers.HTTPTimeout, log)
	deps.Retrier = resilience.NewRetrier(conf.Orchestrator.MaxRetries, conf.Orchestrator.InitialDelay, log)
	if conf.BucketEnabled() {
		deps.Bucket = imagehost.NewBucketClient(conf.Bucket.URL, conf.Bucket.ServiceKey, conf.Bucket.Name, log)
		deps.Archive = conf.Settings.ArchiveGenerated
		log.Info("object storage enabled", slog.String("bucket", conf.Bucket.Name), sl.Secret(conf.Bucket.ServiceKey))
	} else {
		log.Info("object storage disabled; SUPABASE_URL or SUPABASE_SERVICE_ROLE_KEY not set")
	}

	orch := orchestrator.New(deps, log)
	orch.BatchDelay = conf.Orchestrator.BatchDelay
	orch.MaxDescription = conf.Orchestrator.MaxDescriptionLen
	orch.MaxPrimaryPrompt = conf.Orchestrator.MaxPrimaryPrompt

	auth := middleware.NewAuth(conf.Settings, conf.APIKeys.Service, log)
	router := api.NewRouter(api.NewHandler(orch, log), auth, log)

	srv := &http.Server{
		Addr:              conf.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("listening", slog.String("addr", conf.Listen))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped with error", sl.Err(err))
			sigChan <- syscall.SIGTERM
		}
	}()

	sig := <-sigChan
	log.Info("received signal, shutting down", slog.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", sl.Err(err))
	}
	orch.Wait()
	if err := store.Close(); err != nil {
		log.Error("closing storage", sl.Err(err))
	}
	log.Info("shutdown complete")
}

// buildProviders creates the AI backends. The configured describer also
// answers text calls; Pollinations is always the fallback synthesizer.
func buildProviders(ctx context.Context, conf *config.Config, log *slog.Logger) (orchestrator.Deps, error) {
	var deps orchestrator.Deps

	var limiter *rate.Limiter
	if rpm := conf.Providers.RequestsPerMin; rpm > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
	}
	client := &http.Client{Timeout: conf.Providers.HTTPTimeout}

	var openai *providers.OpenAIProvider
	if conf.APIKeys.OpenAI != "" {
		openai = providers.NewOpenAIProvider(conf.APIKeys.OpenAI, log)
		openai.BaseURL = conf.Providers.OpenAIBaseURL
		openai.Client = client
		openai.Limiter = limiter
		openai.DefaultModel = conf.Providers.OpenAIModel
		log.Info("openai enabled", sl.Secret(conf.APIKeys.OpenAI))

		if !conf.Providers.DisablePrimary {
			dalle := providers.NewDalleProvider(conf.APIKeys.OpenAI, log)
			dalle.BaseURL = conf.Providers.OpenAIBaseURL
			dalle.Client = client
			dalle.Limiter = limiter
			dalle.MaxPromptLength = conf.Orchestrator.MaxPrimaryPrompt
			deps.Primary = dalle
		}
	}

	var gemini *providers.GeminiProvider
	if conf.APIKeys.Gemini != "" {
		gc, err := providers.NewGeminiClient(ctx, conf.APIKeys.Gemini)
		if err != nil {
			return deps, err
		}
		gemini = providers.NewGeminiProvider(gc, log)
		gemini.DefaultModel = conf.Providers.GeminiModel
		log.Info("gemini enabled", sl.Secret(conf.APIKeys.Gemini))
	}

	switch conf.Providers.Describer {
	case "gemini":
		if gemini == nil {
			return deps, errors.New("describe provider gemini requires GEMINI_API_KEY")
		}
		deps.Describer = gemini
		deps.Text = gemini
		deps.TextDefaultModel = conf.Providers.GeminiModel
		if openai != nil {
			deps.Describers = append(deps.Describers, openai)
		}
	default:
		if openai == nil {
			return deps, errors.New("describe provider openai requires OPENAI_API_KEY")
		}
		deps.Describer = openai
		deps.Text = openai
		if gemini != nil {
			deps.Describers = append(deps.Describers, gemini)
		}
	}

	pollinations := providers.NewPollinationsAIProvider(log)
	pollinations.BaseURL = conf.Providers.PollinationsURL
	pollinations.MaxURLLength = conf.Orchestrator.MaxURLLength
	deps.Fallback = pollinations

	if deps.Primary == nil {
		log.Warn("primary image synthesis disabled, using pollinations only")
	}
	return deps, nil
}

// openStorage opens the configured backend and falls back to memory when
// it is unreachable.
func openStorage(conf *config.Config, log *slog.Logger) storage.Store {
	var (
		store storage.Store
		err   error
	)
	switch conf.Storage.Driver {
	case "sqlite":
		store, err = storage.NewSQLiteStorage(conf.Storage.SQLitePath, log)
	case "mongo":
		store, err = storage.NewMongoStorage(conf.Storage.MongoURI, conf.Storage.MongoDB, log)
	default:
		log.Info("using in-memory storage")
		return storage.NewMemoryStorage()
	}
	if err != nil {
		log.With(slog.String("driver", conf.Storage.Driver)).Error("falling back to memory", sl.Err(err))
		return storage.NewMemoryStorage()
	}
	log.Info("storage ready", slog.String("driver", conf.Storage.Driver))
	return store
}

// setupLogger logs JSON at info level in prod and text at debug level
// everywhere else.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}

	return log
}
