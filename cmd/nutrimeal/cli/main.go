package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"nutrimeal"
	"nutrimeal/concept"
	"nutrimeal/pipeline"
	"nutrimeal/setup"
	"nutrimeal/tools"
	"nutrimeal/tools/storage"
)

func main() {
	var (
		envFile     = flag.String("env", ".env", "dotenv file to load if present")
		ingredients = flag.String("ingredients", "", `ingredients separated by ";", e.g. "150 g chicken;1 cup rice"`)
		concepts    = flag.String("concepts", "", `vision concepts as name:confidence pairs, e.g. "arepa:0.92,queso:0.85"`)
		code        = flag.String("code", "", "product barcode")
		imagePath   = flag.String("image", "", "meal photo to label with the configured vision provider")
		dump        = flag.Bool("dump", false, "dump the full result with go-spew")
		withOtel    = flag.Bool("otel", false, "export traces and metrics over OTLP")
	)
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("Failed to load %s: %s", *envFile, err)
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

	req, err := buildRequest(*ingredients, *concepts, *code, *imagePath, flag.Args())
	if err != nil {
		log.Fatalf("Invalid input: %s", err)
	}
	req.RequestID = uuid.NewString()

	ctx := context.Background()

	creds, err := storage.LoadCredentials(ctx, storage.NewFileCredentialState(storageConfig.CredentialsPath))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("Failed to load credentials: %s", err)
	}
	refs, err := storage.LoadReferences(ctx, storage.NewFileReferenceState(storageConfig.ReferencesPath))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("Failed to load references: %s", err)
	}
	slog.Info("SETUP: Local state loaded", "stored_credentials", !creds.Empty(), "reference_overrides", len(refs))

	logger, cleanup, err := newResolutionLogger(pipelineConfig.TraceLogDir, req.RequestID)
	if err != nil {
		slog.Error("SETUP: Failed to create resolution logger", "error", err)
		return
	}
	defer func() {
		if err := cleanup(); err != nil {
			slog.Error("Failed to flush resolution log", "error", err)
		}
	}()

	components, err := setup.Build(ctx, setup.Options{
		Providers:   providerConfig,
		Pipeline:    pipelineConfig,
		Credentials: creds,
		References:  refs,
		Logger:      logger,
	})
	if err != nil {
		log.Fatalf("Failed to build pipeline: %s", err)
	}

	var resolver tools.Resolver = components.Resolver
	if *withOtel {
		telemetry, err := nutrimeal.InitOtel(ctx)
		if err != nil {
			slog.Error("SETUP: Failed to initialize OpenTelemetry", "error", err)
			return
		}
		defer func() {
			if err := telemetry.Shutdown(ctx); err != nil {
				slog.Error("SETUP: Failed to shutdown OpenTelemetry", "error", err)
			}
		}()
		resolver = pipeline.NewInstrumentedResolver(components.Resolver, telemetry.Tracer, telemetry.Meter)
	}

	res, err := resolver.Resolve(ctx, req)
	if err == nil {
		err = res.Err()
	}
	if err != nil {
		slog.Error("RESULT: Resolution failed", "status", pipeline.StatusCode(err), "error", err)
	}
	if res == nil {
		return
	}

	if *dump {
		nutrimeal.Dump(res)
	}
	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		slog.Error("RESULT: Failed to encode result", "error", err)
		return
	}
	fmt.Println(string(out))

	for name, rot := range components.Rotators {
		stats := rot.Stats()
		slog.Info("RESULT: Credential usage", "source", name, "stats", stats)
	}
	stats := components.Cache.Stats()
	slog.Info("RESULT: Cache usage", "hits", stats.Hits, "misses", stats.Misses)
}

func buildRequest(ingredients, concepts, code, imagePath string, args []string) (pipeline.Request, error) {
	var req pipeline.Request
	for _, text := range strings.Split(ingredients, ";") {
		if text = strings.TrimSpace(text); text != "" {
			req.Ingredients = append(req.Ingredients, text)
		}
	}
	req.Ingredients = append(req.Ingredients, args...)

	for _, pair := range strings.Split(concepts, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		c := concept.Candidate{Name: pair, Confidence: 1}
		if i := strings.LastIndex(pair, ":"); i > 0 {
			conf, err := strconv.ParseFloat(pair[i+1:], 64)
			if err != nil {
				return req, fmt.Errorf("concept %q: %w", pair, err)
			}
			c = concept.Candidate{Name: pair[:i], Confidence: conf}
		}
		req.Concepts = append(req.Concepts, c)
	}

	req.Code = strings.TrimSpace(code)

	if imagePath != "" {
		image, err := os.ReadFile(imagePath)
		if err != nil {
			return req, fmt.Errorf("read image: %w", err)
		}
		req.Image = image
	}
	return req, nil
}

func newResolutionLogger(dir, requestID string) (nutrimeal.ResolutionLogger, func() error, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, func() error { return err }, fmt.Errorf("failed to create log dir: %w", err)
	}
	logFilePath := nutrimeal.NewResolutionLogFilePath(dir, requestID)
	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, func() error { return err }, fmt.Errorf("failed to open log file: %w", err)
	}

	logger := nutrimeal.NewFileResolutionLogger(logFile)
	cleanup := func() error {
		return errors.Join(logger.Flush(), logFile.Close())
	}
	return logger, cleanup, nil
}
