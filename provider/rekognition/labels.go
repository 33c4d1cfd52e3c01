// Package rekognition labels meal photos with Amazon Rekognition DetectLabels.
package rekognition

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"nutrimeal/concept"
)

const (
	SourceName = "rekognition"

	defaultMinConfidence = 40
	defaultMaxLabels     = 25
	defaultTimeout       = 12 * time.Second

	foodCategory = "Food and Beverage"
)

type rekognitionClient interface {
	DetectLabels(context.Context, *rekognition.DetectLabelsInput, ...func(*rekognition.Options)) (*rekognition.DetectLabelsOutput, error)
}

type LabelOptions struct {
	// MinConfidence is on Rekognition's 0-100 scale.
	MinConfidence float32
	MaxLabels     int32
	// Timeout bounds each DetectLabels call. Defaults to 12s.
	Timeout       time.Duration
}

type LabelClient struct {
	rc   rekognitionClient
	opts LabelOptions
}

func NewLabelClient(rc rekognitionClient, opts LabelOptions) *LabelClient {
	if opts.MinConfidence <= 0 {
		opts.MinConfidence = defaultMinConfidence
	}
	if opts.MaxLabels <= 0 {
		opts.MaxLabels = defaultMaxLabels
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &LabelClient{rc: rc, opts: opts}
}

func (c *LabelClient) Name() string { return SourceName }

// Concepts returns food labels with confidences scaled to [0,1]. When Rekognition reports categories,
// labels outside the food category are dropped.
func (c *LabelClient) Concepts(ctx context.Context, image []byte) ([]concept.Candidate, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.Timeout)
	defer cancel()

	out, err := c.rc.DetectLabels(ctx, &rekognition.DetectLabelsInput{
		Image:         &types.Image{Bytes: image},
		MinConfidence: aws.Float32(c.opts.MinConfidence),
		MaxLabels:     aws.Int32(c.opts.MaxLabels),
	})
	if err != nil {
		slog.Error("REKOGNITION: DetectLabels failed", "error", err)
		return nil, err
	}

	var candidates []concept.Candidate
	for _, l := range out.Labels {
		name := aws.ToString(l.Name)
		if name == "" || !isFood(l) {
			continue
		}
		candidates = append(candidates, concept.Candidate{
			Name:       strings.ToLower(name),
			Confidence: float64(aws.ToFloat32(l.Confidence)) / 100,
		})
	}
	slog.Info("REKOGNITION: Labels detected", "labels", len(out.Labels), "food_labels", len(candidates))
	return candidates, nil
}

func isFood(l types.Label) bool {
	if len(l.Categories) == 0 {
		return true
	}
	for _, cat := range l.Categories {
		if aws.ToString(cat.Name) == foodCategory {
			return true
		}
	}
	return false
}
