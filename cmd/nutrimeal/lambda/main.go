package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"sync"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joeshaw/envdecode"

	"nutrimeal"
	"nutrimeal/concept"
	"nutrimeal/nutrient"
	"nutrimeal/pipeline"
	"nutrimeal/setup"
	"nutrimeal/tools"
	"nutrimeal/tools/storage"
)

type Params struct {
	RequestID   string              `json:"request_id,omitempty"`
	Concepts    []concept.Candidate `json:"concepts,omitempty"`
	Ingredients []string            `json:"ingredients,omitempty"`
	Code        string              `json:"code,omitempty"`
	// Image is base64, optionally as a data URL.
	Image string `json:"image,omitempty"`
}

type Results struct {
	StatusCode int              `json:"status_code"`
	Output     *pipeline.Result `json:"output,omitempty"`
	Error      string           `json:"error,omitempty"`
}

func main() {
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

	// Built on the first invocation and kept for the life of the container, cache included.
	var (
		once     sync.Once
		resolver tools.Resolver
		initErr  error
	)

	fn := func(ctx context.Context, params Params) (Results, error) {
		once.Do(func() {
			resolver, initErr = newResolver(ctx, providerConfig, pipelineConfig, storageConfig)
		})
		if initErr != nil {
			return Results{}, initErr
		}

		image, err := tools.DecodeImage(params.Image)
		if err != nil {
			return Results{StatusCode: 400, Error: err.Error()}, nil
		}

		res, err := resolver.Resolve(ctx, pipeline.Request{
			RequestID:   params.RequestID,
			Concepts:    params.Concepts,
			Ingredients: params.Ingredients,
			Code:        params.Code,
			Image:       image,
		})
		if err == nil {
			err = res.Err()
		}
		if err != nil {
			slog.Error("RESULT: Resolution failed", "error", err)
			return Results{StatusCode: pipeline.StatusCode(err), Output: res, Error: err.Error()}, nil
		}
		return Results{StatusCode: 200, Output: res}, nil
	}

	lambda.Start(fn)
}

func newResolver(ctx context.Context, pc nutrimeal.ProviderConfig, plc nutrimeal.PipelineConfig, sc nutrimeal.StorageConfig) (tools.Resolver, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRetryMaxAttempts(5))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var creds storage.Credentials
	var refs []nutrient.Reference
	if sc.ArtifactsBucket != "" {
		s3Client := s3.NewFromConfig(awsCfg)
		creds, err = storage.LoadCredentials(ctx, storage.NewS3CredentialState(s3Client, sc.ArtifactsBucket, sc.CredentialsKey))
		if err != nil {
			slog.Error("SETUP: Failed to load credentials from S3", "error", err)
			return nil, err
		}
		refs, err = storage.LoadReferences(ctx, storage.NewS3ReferenceState(s3Client, sc.ArtifactsBucket, sc.ReferencesKey))
		if err != nil {
			slog.Warn("SETUP: No reference overrides loaded from S3", "error", err)
			refs = nil
		}
		slog.Info("SETUP: S3 state loaded", "bucket", sc.ArtifactsBucket, "reference_overrides", len(refs))
	}

	components, err := setup.Build(ctx, setup.Options{
		Providers:   pc,
		Pipeline:    plc,
		Credentials: creds,
		References:  refs,
		Logger:      nutrimeal.NewStdoutResolutionLogger(),
		AWS:         func(context.Context) (aws.Config, error) { return awsCfg, nil },
	})
	if err != nil {
		return nil, err
	}

	// Telemetry is best effort here: a frozen container may drop buffered spans.
	telemetry, err := nutrimeal.InitOtel(ctx)
	if err != nil {
		slog.Error("SETUP: Failed to initialize OpenTelemetry", "error", err)
		return components.Resolver, nil
	}
	return pipeline.NewInstrumentedResolver(components.Resolver, telemetry.Tracer, telemetry.Meter), nil
}
