package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"nutrimeal"
	"nutrimeal/pipeline"
	"nutrimeal/setup"
	"nutrimeal/tools"
	"nutrimeal/tools/storage"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("Failed to load .env: %s", err)
	}

	var providerConfig nutrimeal.ProviderConfig
	if err := envdecode.Decode(&providerConfig); err != nil {
		log.Fatalf("Failed to decode: %s", err)
	}

	var pipelineConfig nutrimeal.PipelineConfig
	if err := envdecode.Decode(&pipelineConfig); err != nil {
		log.Fatalf("Failed to decode: %s", err)
	}

	var storageConfig nutrimeal.StorageConfig
	if err := envdecode.Decode(&storageConfig); err != nil {
		log.Fatalf("Failed to decode: %s", err)
	}

	var serverConfig nutrimeal.ServerConfig
	if err := envdecode.Decode(&serverConfig); err != nil {
		log.Fatalf("Failed to decode: %s", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	credState, refState, err := newStates(ctx, storageConfig)
	if err != nil {
		log.Fatalf("Failed to set up storage: %s", err)
	}
	creds, err := storage.LoadCredentials(ctx, credState)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("Failed to load credentials: %s", err)
	}
	refs, err := storage.LoadReferences(ctx, refState)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("Failed to load references: %s", err)
	}

	components, err := setup.Build(ctx, setup.Options{
		Providers:   providerConfig,
		Pipeline:    pipelineConfig,
		Credentials: creds,
		References:  refs,
		Logger:      nutrimeal.NewStdoutResolutionLogger(),
	})
	if err != nil {
		log.Fatalf("Failed to build pipeline: %s", err)
	}

	var resolver tools.Resolver = components.Resolver
	if serverConfig.EnableOtel {
		telemetry, err := nutrimeal.InitOtel(ctx)
		if err != nil {
			log.Fatalf("Failed to initialize OpenTelemetry: %s", err)
		}
		defer func() {
			if err := telemetry.Shutdown(context.Background()); err != nil {
				slog.Error("SETUP: Failed to shutdown OpenTelemetry", "error", err)
			}
		}()
		resolver = pipeline.NewInstrumentedResolver(components.Resolver, telemetry.Tracer, telemetry.Meter)
	}

	registry, err := tools.NewRegistry(resolver)
	if err != nil {
		log.Fatalf("Failed to create tool registry: %s", err)
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:    serverConfig.Addr,
		Handler: setupRouter(registry, func() any { return componentStats(components) }),
	}

	go func() {
		slog.Info("SETUP: Listening", "addr", serverConfig.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %s", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Failed to shut down server", "error", err)
	}
}

// newStates reads credentials and references from S3 when a bucket is configured, from files otherwise.
func newStates(ctx context.Context, sc nutrimeal.StorageConfig) (storage.CredentialState, storage.ReferenceState, error) {
	if sc.ArtifactsBucket == "" {
		return storage.NewFileCredentialState(sc.CredentialsPath), storage.NewFileReferenceState(sc.ReferencesPath), nil
	}
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, nil, err
	}
	s3Client := s3.NewFromConfig(awsCfg)
	return storage.NewS3CredentialState(s3Client, sc.ArtifactsBucket, sc.CredentialsKey),
		storage.NewS3ReferenceState(s3Client, sc.ArtifactsBucket, sc.ReferencesKey), nil
}

func componentStats(c *setup.Components) map[string]any {
	rotators := make(map[string]any, len(c.Rotators))
	for name, r := range c.Rotators {
		rotators[name] = r.Stats()
	}
	return map[string]any{
		"cache":     c.Cache.Stats(),
		"rotators":  rotators,
		"vision":    c.Vision != nil,
		"nutrients": len(c.Nutrients),
		"barcodes":  len(c.Barcodes),
	}
}
