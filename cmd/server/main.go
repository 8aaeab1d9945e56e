package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"rx-reader/handler"
	"rx-reader/internal/config"
	"rx-reader/internal/integrations/gemini"
	"rx-reader/internal/integrations/imagestore"
	"rx-reader/internal/integrations/openai"
	"rx-reader/internal/integrations/paramstore"
	"rx-reader/internal/knowledge"
	"rx-reader/internal/medication"
	"rx-reader/internal/metrics"
	"rx-reader/internal/repository"
	"rx-reader/internal/usecase"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	// ---- AWS SDK config (only when something needs it) ----
	var awsCfg aws.Config
	if cfg.ParamPrefix != "" || cfg.StoreBackend == config.BackendDynamoDB || cfg.ImageBucket != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			fatal(logger, "failed to load AWS config", err)
		}
	}

	// ---- Model collaborator ----
	tokens, err := tokenProvider(cfg, awsCfg, logger)
	if err != nil {
		fatal(logger, "failed to create token provider", err)
	}
	llm, closeLLM, err := modelClient(cfg, tokens)
	if err != nil {
		fatal(logger, "failed to create model client", err)
	}
	defer closeLLM()

	// ---- Knowledge base ----
	kb, err := knowledgeBase(cfg)
	if err != nil {
		fatal(logger, "failed to load dosage table", err)
	}

	// ---- Persistence ----
	store, closeStore, err := newStore(ctx, cfg, awsCfg, logger)
	if err != nil {
		fatal(logger, "failed to create store", err)
	}
	defer closeStore()

	var (
		archive usecase.ImageArchiver
		images  handler.ImageFetcher
	)
	if cfg.ImageBucket != "" {
		imgStore, err := imagestore.NewStore(awss3.NewFromConfig(awsCfg), cfg.ImageBucket, logger)
		if err != nil {
			fatal(logger, "failed to create image store", err)
		}
		archive, images = imgStore, imgStore
	}

	// ---- Services ----
	opts := usecase.Options{
		Model:            cfg.Model(),
		ModelTimeout:     cfg.ModelTimeout,
		MaxImageBytes:    cfg.MaxImageBytes,
		MaxMessageLength: cfg.MaxMessageLength,
		Logger:           logger,
		Metrics:          metrics.NewAnalysisMetrics(prometheus.DefaultRegisterer),
	}
	extractor, err := usecase.NewExtractor(llm, medication.NewValidator(kb), kb.Abbreviations(), opts)
	if err != nil {
		fatal(logger, "failed to create extractor", err)
	}
	analyzer, err := usecase.NewAnalyzeService(llm, extractor, store, archive, opts)
	if err != nil {
		fatal(logger, "failed to create analyze service", err)
	}
	chat, err := usecase.NewChatService(llm, store, opts)
	if err != nil {
		fatal(logger, "failed to create chat service", err)
	}
	feedback, err := usecase.NewFeedbackService(store, opts)
	if err != nil {
		fatal(logger, "failed to create feedback service", err)
	}

	// ---- HTTP ----
	router, err := handler.NewRouter(handler.Config{
		Analyzer:       analyzer,
		Chat:           chat,
		Feedback:       feedback,
		Images:         images,
		Gatherer:       prometheus.DefaultGatherer,
		Logger:         logger,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		MaxBodyBytes:   cfg.MaxBodyBytes(),
	})
	if err != nil {
		fatal(logger, "failed to create router", err)
	}

	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		lh, err := handler.NewLambdaHandler(router)
		if err != nil {
			fatal(logger, "failed to create lambda handler", err)
		}
		lambda.Start(lh.Handle)
		return
	}

	if err := serve(ctx, cfg, router, logger); err != nil {
		fatal(logger, "server stopped", err)
	}
}

func serve(ctx context.Context, cfg *config.Config, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.ModelTimeout*2 + 30*time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr, "provider", cfg.LLMProvider, "store", cfg.StoreBackend)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// tokenProvider reads the key from SSM when PARAM_PREFIX is set, otherwise
// from the environment. A missing key only fails model calls.
func tokenProvider(cfg *config.Config, awsCfg aws.Config, logger *slog.Logger) (paramstore.TokenProvider, error) {
	if cfg.ParamPrefix != "" {
		ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			return nil, err
		}
		return paramstore.NewTokenSource(ssmClient, paramstore.TokenName(cfg.ParamPrefix, cfg.TokenParameter()))
	}
	if cfg.APIKey() == "" {
		logger.Warn("model API key is not set; analysis requests will fail", "provider", cfg.LLMProvider)
	}
	return paramstore.StaticToken(cfg.APIKey()), nil
}

func modelClient(cfg *config.Config, tokens paramstore.TokenProvider) (usecase.LLMClient, func(), error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		c, err := gemini.NewClient(tokens)
		if err != nil {
			return nil, nil, err
		}
		return c, func() { _ = c.Close() }, nil
	default:
		c, err := openai.NewClient(tokens, openai.WithBaseURL(cfg.OpenAIBaseURL))
		if err != nil {
			return nil, nil, err
		}
		return c, func() {}, nil
	}
}

func knowledgeBase(cfg *config.Config) (*knowledge.Base, error) {
	if cfg.DosageTablePath != "" {
		return knowledge.LoadFile(cfg.DosageTablePath)
	}
	return knowledge.Default()
}

func newStore(ctx context.Context, cfg *config.Config, awsCfg aws.Config, logger *slog.Logger) (repository.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendDynamoDB:
		s, err := repository.NewDynamoStore(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis ping failed; continuing", "addr", cfg.RedisAddr, "err", err)
		}
		s, err := repository.NewRedisStore(client)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return s, func() { _ = client.Close() }, nil
	default:
		logger.Warn("using in-memory store; data is lost on restart")
		return repository.NewMemoryStore(), func() {}, nil
	}
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "err", err)
	os.Exit(1)
}
