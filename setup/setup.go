// Package setup builds a Resolver from environment configuration, credential pools and reference
// overrides. The cli, lambda and server mains share it.
package setup

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	awsrekognition "github.com/aws/aws-sdk-go-v2/service/rekognition"

	"nutrimeal"
	"nutrimeal/cache"
	"nutrimeal/concept"
	"nutrimeal/credential"
	"nutrimeal/nutrient"
	"nutrimeal/pipeline"
	"nutrimeal/provider/bedrock"
	"nutrimeal/provider/clarifai"
	"nutrimeal/provider/logmeal"
	"nutrimeal/provider/mock"
	"nutrimeal/provider/nutritionix"
	"nutrimeal/provider/ollama"
	"nutrimeal/provider/openfoodfacts"
	"nutrimeal/provider/rekognition"
	"nutrimeal/tools/storage"
)

const (
	VisionLogMeal     = "logmeal"
	VisionClarifai    = "clarifai"
	VisionRekognition = "rekognition"
	VisionBedrock     = "bedrock"
	VisionOllama      = "ollama"
	VisionMock        = "mock"
	VisionNone        = "none"
)

type Options struct {
	Providers nutrimeal.ProviderConfig
	Pipeline  nutrimeal.PipelineConfig
	// Credentials are merged after the pools from Providers.
	Credentials storage.Credentials
	References  []nutrient.Reference
	Logger      nutrimeal.ResolutionLogger
	HTTPClient  nutrimeal.HTTPClient
	// AWS loads the AWS config. Only the rekognition and bedrock vision providers call it.
	AWS func(ctx context.Context) (aws.Config, error)
}

// Components are the pieces of a built pipeline, exposed so mains can report on them.
type Components struct {
	Resolver   *pipeline.Resolver
	Cache      *cache.Store
	Vision     nutrimeal.ConceptSource
	Nutrients  []nutrimeal.NutrientSource
	Barcodes   []nutrimeal.BarcodeSource
	References *nutrient.ReferenceTable
	Rotators   map[string]*credential.Rotator
}

// Build wires every configured provider into a Resolver. A vision provider that is selected but has no
// credentials is an error; optional providers without credentials are skipped.
func Build(ctx context.Context, opts Options) (*Components, error) {
	if opts.AWS == nil {
		opts.AWS = func(ctx context.Context) (aws.Config, error) {
			return config.LoadDefaultConfig(ctx, config.WithRetryMaxAttempts(5))
		}
	}

	pc := opts.Providers
	creds := storage.Credentials{
		LogMeal:     credential.ParsePool(pc.LogMealTokens),
		Nutritionix: credential.ParsePool(pc.NutritionixKeys),
		Clarifai:    credential.ParsePool(pc.ClarifaiKeys),
	}.Merge(opts.Credentials)

	c := &Components{
		Cache:      cache.New(opts.Pipeline.CacheTTL),
		References: nutrient.NewReferenceTable(opts.References...),
		Rotators:   map[string]*credential.Rotator{},
	}

	var lm *logmeal.Client
	if len(creds.LogMeal) > 0 {
		var err error
		lm, err = logmeal.NewClient(logmeal.ClientOpts{
			BaseURL:    pc.LogMealBaseURL,
			Tokens:     creds.LogMeal,
			HTTPClient: opts.HTTPClient,
			Timeout:    pc.UpstreamTimeout,
			Cache:      c.Cache,
		})
		if err != nil {
			return nil, fmt.Errorf("logmeal: %w", err)
		}
		c.Rotators[logmeal.SourceName] = lm.Rotator()
	}

	provider := strings.ToLower(strings.TrimSpace(pc.VisionProvider))
	vision, err := newVision(ctx, provider, opts, creds, lm, c)
	if err != nil {
		return nil, err
	}
	c.Vision = vision

	if len(creds.Nutritionix) > 0 {
		nx, err := nutritionix.NewClient(nutritionix.ClientOpts{
			BaseURL:    pc.NutritionixBaseURL,
			Keys:       creds.Nutritionix,
			HTTPClient: opts.HTTPClient,
			Timeout:    pc.UpstreamTimeout,
			Cache:      c.Cache,
		})
		if err != nil {
			return nil, fmt.Errorf("nutritionix: %w", err)
		}
		c.Rotators[nutritionix.SourceName] = nx.Rotator()
		c.Nutrients = append(c.Nutrients, nx)
	}

	c.Barcodes = append(c.Barcodes, openfoodfacts.NewClient(openfoodfacts.ClientOpts{
		Hosts:      pc.Hosts(),
		HTTPClient: opts.HTTPClient,
		Timeout:    pc.UpstreamTimeout,
		Cache:      c.Cache,
	}))
	if lm != nil {
		c.Barcodes = append(c.Barcodes, lm)
	}

	if provider == VisionMock {
		c.Nutrients = append(c.Nutrients, mock.NewNutrients(c.References))
		c.Barcodes = append([]nutrimeal.BarcodeSource{mock.NewBarcodes()}, c.Barcodes...)
	}

	c.Resolver = pipeline.NewResolver(pipeline.ResolverOpts{
		Vision:                 c.Vision,
		Nutrients:              c.Nutrients,
		Barcodes:               c.Barcodes,
		Gate:                   concept.NewGate(concept.GateOpts{MaxIngredients: opts.Pipeline.MaxIngredients}),
		References:             c.References,
		ReferenceMinConfidence: opts.Pipeline.ReferenceMinConfidence,
		Logger:                 opts.Logger,
	})

	slog.Info("SETUP: Pipeline ready",
		"vision", sourceName(c.Vision),
		"nutrient_sources", len(c.Nutrients),
		"barcode_sources", len(c.Barcodes),
		"references", c.References.Len(),
		"cache_ttl", opts.Pipeline.CacheTTL,
	)
	return c, nil
}

func newVision(ctx context.Context, provider string, opts Options, creds storage.Credentials, lm *logmeal.Client, c *Components) (nutrimeal.ConceptSource, error) {
	pc := opts.Providers
	switch provider {
	case VisionLogMeal:
		if lm == nil {
			return nil, fmt.Errorf("vision provider %q: %w", provider, credential.ErrNoCredentials)
		}
		return lm, nil
	case VisionClarifai:
		cf, err := clarifai.NewClient(clarifai.ClientOpts{
			BaseURL:    pc.ClarifaiBaseURL,
			UserID:     pc.ClarifaiUserID,
			AppID:      pc.ClarifaiAppID,
			WorkflowID: pc.ClarifaiWorkflowID,
			Keys:       creds.Clarifai,
			HTTPClient: opts.HTTPClient,
			Timeout:    pc.UpstreamTimeout,
			Cache:      c.Cache,
		})
		if err != nil {
			return nil, fmt.Errorf("vision provider %q: %w", provider, err)
		}
		c.Rotators[clarifai.SourceName] = cf.Rotator()
		return cf, nil
	case VisionRekognition:
		awsCfg, err := opts.AWS(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		return rekognition.NewLabelClient(awsrekognition.NewFromConfig(awsCfg), rekognition.LabelOptions{
			MinConfidence: pc.RekognitionMinConfidence,
			Timeout:       pc.UpstreamTimeout,
		}), nil
	case VisionBedrock:
		awsCfg, err := opts.AWS(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		return bedrock.NewVisionClient(bedrockruntime.NewFromConfig(awsCfg), bedrock.VisionOptions{
			ModelID: pc.BedrockModelID,
			Timeout: pc.UpstreamTimeout,
			Cache:   c.Cache,
		}), nil
	case VisionOllama:
		return ollama.NewVisionClient(ollama.VisionOpts{
			BaseEndpoint: pc.OllamaBaseURL,
			ModelID:      pc.OllamaModel,
			HTTPClient:   opts.HTTPClient,
			Cache:        c.Cache,
		}), nil
	case VisionMock:
		return mock.NewVision(), nil
	case VisionNone, "":
		slog.Warn("SETUP: No vision provider, image requests will fail")
		return nil, nil
	}
	return nil, fmt.Errorf("unknown vision provider %q", provider)
}

func sourceName(s nutrimeal.ConceptSource) string {
	if s == nil {
		return VisionNone
	}
	return s.Name()
}
