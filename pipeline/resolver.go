// Package pipeline runs one meal through the resolution state machine:
// RAW, CONCEPTS_OR_INGREDIENTS, NORMALIZED, AGGREGATED, RECONCILED and FINAL.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"nutrimeal"
	"nutrimeal/concept"
	"nutrimeal/nutrient"
)

const (
	BasePer = "100g"

	// DefaultReferenceMinConfidence is the top-candidate confidence a food identification needs before its
	// reference profile may fill gaps.
	DefaultReferenceMinConfidence = 0.7

	// SourceReference marks items that came from the fallback table instead of an upstream.
	SourceReference = "reference"
)

var errNoVision = errors.New("no vision source configured")

// Resolver turns a Request into a Result. It holds no per-request state and is safe for concurrent use
// as long as its logger is.
type Resolver struct {
	vision                 nutrimeal.ConceptSource
	nutrients              []nutrimeal.NutrientSource
	barcodes               []nutrimeal.BarcodeSource
	gate                   *concept.Gate
	references             *nutrient.ReferenceTable
	referenceMinConfidence float64
	logger                 nutrimeal.ResolutionLogger
	now                    func() time.Time
}

type ResolverOpts struct {
	// Vision labels images. Requests with an image fail their image step without it.
	Vision nutrimeal.ConceptSource
	// Nutrients are tried in order per ingredient; the first usable answer wins.
	Nutrients []nutrimeal.NutrientSource
	// Barcodes are tried in order for a code.
	Barcodes               []nutrimeal.BarcodeSource
	Gate                   *concept.Gate
	References             *nutrient.ReferenceTable
	ReferenceMinConfidence float64
	Logger                 nutrimeal.ResolutionLogger
	Now                    func() time.Time
}

func NewResolver(opts ResolverOpts) *Resolver {
	if opts.Gate == nil {
		opts.Gate = concept.NewGate(concept.GateOpts{})
	}
	if opts.References == nil {
		opts.References = nutrient.NewReferenceTable()
	}
	if opts.ReferenceMinConfidence <= 0 {
		opts.ReferenceMinConfidence = DefaultReferenceMinConfidence
	}
	if opts.Logger == nil {
		opts.Logger = nutrimeal.NewNoOpResolutionLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Resolver{
		vision:                 opts.Vision,
		nutrients:              opts.Nutrients,
		barcodes:               opts.Barcodes,
		gate:                   opts.Gate,
		references:             opts.References,
		referenceMinConfidence: opts.ReferenceMinConfidence,
		logger:                 opts.Logger,
		now:                    opts.Now,
	}
}

// resolved is the outcome of looking one ingredient or product up.
type resolved struct {
	label    string
	items    []nutrient.Item
	source   string
	upstream []nutrimeal.UpstreamLog
	errs     []error
}

// Resolve runs the request to FINAL. It fails only for an empty request; upstream failures are recorded
// on the result and surface through Result.Err when they left the meal entirely unknown.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Result, error) {
	ctx, span := otel.Tracer(nutrimeal.TracerNameResolver).Start(ctx, "Resolver.Resolve")
	defer span.End()

	if req.empty() {
		return nil, ErrEmptyInput
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	span.SetAttributes(attribute.String("request_id", req.RequestID))

	res := &Result{RequestID: req.RequestID, BasePer: BasePer, IngredientsResolved: []string{}, Sources: []string{}}
	r.logStage(req.RequestID, nutrimeal.StageRaw, map[string]any{
		"concepts":    req.Concepts,
		"ingredients": req.Ingredients,
		"code":        req.Code,
		"image_bytes": len(req.Image),
	}, nil, nil)

	specs := r.specs(ctx, req, res)
	r.logStage(req.RequestID, nutrimeal.StageConcepts, nil, specs, res.Upstream)
	slog.Info("RESOLVER: Ingredients gated", "request_id", req.RequestID, "specs", len(specs), "code", req.Code != "")

	var all []resolved
	if code := strings.TrimSpace(req.Code); code != "" {
		all = append(all, r.resolveCode(ctx, code))
	}
	all = append(all, r.resolveSpecs(ctx, specs)...)

	var items []nutrient.Item
	normalized := make(map[string]any, len(all))
	var stageUpstream []nutrimeal.UpstreamLog
	for _, rv := range all {
		res.Upstream = append(res.Upstream, rv.upstream...)
		stageUpstream = append(stageUpstream, rv.upstream...)
		res.errs = append(res.errs, rv.errs...)
		res.IngredientsResolved = append(res.IngredientsResolved, rv.label)
		if len(rv.items) == 0 {
			normalized[rv.label] = nil
			continue
		}
		res.addSource(rv.source)
		items = append(items, rv.items...)
		normalized[rv.label] = rv.items
	}
	r.logStage(req.RequestID, nutrimeal.StageNormalized, nil, normalized, stageUpstream)

	total := nutrient.Aggregate(items)
	res.TotalGrams = nutrient.TotalGrams(items)
	base := nutrient.PerHundredGrams(total, res.TotalGrams)
	r.logStage(req.RequestID, nutrimeal.StageAggregated, nil, map[string]any{"total": total, "total_grams": res.TotalGrams, "per_100g": base}, nil)

	ref, refName := r.reference(req, specs, all)
	rec := nutrient.ReconcileDetailed(base, ref)
	res.Adjustments = Adjustments{
		Clamped:          fieldNames(rec.Clamped),
		Filled:           fieldNames(rec.Filled),
		EnergyRecomputed: rec.EnergyRecomputed,
		Reference:        refName,
	}
	if len(rec.Filled) > 0 {
		res.addSource(SourceReference)
	}
	r.logStage(req.RequestID, nutrimeal.StageReconciled, nil, map[string]any{"profile": rec.Profile, "adjustments": res.Adjustments}, nil)

	res.Base = rec.Profile.Round(1)
	if res.TotalGrams > 0 && !res.Base.IsEmpty() {
		meal := rec.Profile.Scale(res.TotalGrams / 100).Round(1)
		res.Meal = &meal
	}

	var errText string
	if err := res.Err(); err != nil {
		errText = err.Error()
	}
	r.logStage(req.RequestID, nutrimeal.StageFinal, nil, res, nil, errText)

	span.SetAttributes(
		attribute.Int("ingredients", len(res.IngredientsResolved)),
		attribute.Bool("empty", res.Base.IsEmpty()),
	)
	slog.Info("RESOLVER: Resolution complete",
		"request_id", req.RequestID,
		"ingredients", len(res.IngredientsResolved),
		"total_grams", res.TotalGrams,
		"sources", res.Sources,
		"empty", res.Base.IsEmpty(),
	)
	return res, nil
}

// specs gathers ingredient specs from caller ingredients, caller concepts and image concepts, in that order.
func (r *Resolver) specs(ctx context.Context, req Request, res *Result) []concept.IngredientSpec {
	var specs []concept.IngredientSpec
	for _, text := range req.Ingredients {
		if strings.TrimSpace(text) == "" {
			continue
		}
		spec := concept.ParseIngredient(text)
		spec.Confidence = 1
		specs = append(specs, spec)
	}

	concepts := slices.Clip(req.Concepts)
	if len(req.Image) > 0 {
		concepts = append(concepts, r.imageConcepts(ctx, req.Image, res)...)
	}
	if len(concepts) > 0 {
		specs = append(specs, r.gate.Gate(concepts)...)
	}
	return specs
}

func (r *Resolver) imageConcepts(ctx context.Context, image []byte, res *Result) []concept.Candidate {
	ctx, span := otel.Tracer(nutrimeal.TracerNameResolver).Start(ctx, "Resolver.imageConcepts")
	defer span.End()

	if r.vision == nil {
		res.fail(nutrimeal.UpstreamLog{Source: "vision"}, errNoVision)
		return nil
	}
	up := nutrimeal.UpstreamLog{Source: r.vision.Name(), Query: fmt.Sprintf("image:%d bytes", len(image))}
	concepts, err := r.vision.Concepts(ctx, image)
	if err != nil {
		slog.Warn("RESOLVER: Vision failed", "source", r.vision.Name(), "error", err)
		res.fail(up, err)
		return nil
	}
	up.Items = len(concepts)
	res.Upstream = append(res.Upstream, up)
	return concepts
}

func (r *Resolver) resolveCode(ctx context.Context, code string) resolved {
	ctx, span := otel.Tracer(nutrimeal.TracerNameResolver).Start(ctx, "Resolver.resolveCode")
	defer span.End()

	rv := resolved{label: code}
	for _, src := range r.barcodes {
		up := nutrimeal.UpstreamLog{Source: src.Name(), Query: code}
		lookup, err := src.Product(ctx, code)
		if err != nil {
			slog.Warn("RESOLVER: Barcode lookup failed", "source", src.Name(), "code", code, "error", err)
			up.Error = err.Error()
			rv.upstream = append(rv.upstream, up)
			rv.errs = append(rv.errs, err)
			continue
		}
		if lookup == nil {
			rv.upstream = append(rv.upstream, up)
			continue
		}
		items := toItems([]nutrimeal.Lookup{*lookup}, nil)
		up.Items = len(items)
		rv.upstream = append(rv.upstream, up)
		if len(items) > 0 {
			if lookup.Name != "" {
				rv.label = lookup.Name
			}
			rv.items, rv.source = items, src.Name()
			return rv
		}
	}
	return rv
}

// resolveSpecs looks every spec up concurrently. Results keep the order of specs.
func (r *Resolver) resolveSpecs(ctx context.Context, specs []concept.IngredientSpec) []resolved {
	out := make([]resolved, len(specs))
	var wg sync.WaitGroup
	for i, spec := range specs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out[i] = r.resolveSpec(ctx, spec)
		}()
	}
	wg.Wait()
	return out
}

// resolveSpec tries each nutrient source in order and falls back to the reference table when none of them
// had usable data. The fallback only applies to trusted identifications.
func (r *Resolver) resolveSpec(ctx context.Context, spec concept.IngredientSpec) resolved {
	ctx, span := otel.Tracer(nutrimeal.TracerNameResolver).Start(ctx, "Resolver.resolveSpec")
	defer span.End()
	span.SetAttributes(attribute.String("ingredient", spec.String()))

	query := spec.String()
	rv := resolved{label: query}
	for _, src := range r.nutrients {
		up := nutrimeal.UpstreamLog{Source: src.Name(), Query: query}
		lookups, err := src.Nutrients(ctx, query)
		if err != nil {
			slog.Warn("RESOLVER: Nutrient lookup failed", "source", src.Name(), "query", query, "error", err)
			up.Error = err.Error()
			rv.upstream = append(rv.upstream, up)
			rv.errs = append(rv.errs, err)
			continue
		}
		items := toItems(lookups, spec.Grams)
		up.Items = len(items)
		rv.upstream = append(rv.upstream, up)
		if len(items) > 0 {
			rv.items, rv.source = items, src.Name()
			return rv
		}
	}

	if spec.Confidence <= r.referenceMinConfidence {
		return rv
	}
	if ref, ok := r.references.Lookup(spec.Name); ok {
		slog.Info("RESOLVER: Using reference profile", "ingredient", spec.Name, "reference", ref.Name)
		profile := ref.Profile
		rv.items = []nutrient.Item{{Name: ref.Name, Profile: &profile, Grams: spec.Grams}}
		rv.source = SourceReference
	}
	return rv
}

// toItems normalizes lookups into per-100g items. An upstream-reported mass wins over the estimate,
// which only applies when the upstream returned a single food.
func toItems(lookups []nutrimeal.Lookup, estimate *float64) []nutrient.Item {
	var items []nutrient.Item
	for _, l := range lookups {
		p := nutrient.Normalize(l.Payload)
		if p == nil {
			continue
		}
		per100 := p.Scale(l.Per100Factor())
		grams := l.Grams
		if grams == nil && len(lookups) == 1 {
			grams = estimate
		}
		items = append(items, nutrient.Item{Name: l.Name, Profile: &per100, Grams: grams})
	}
	return items
}

// reference picks the profile offered to the sanity pass: the fallback entry for the most confident
// identification, when that identification clears the confidence gate. A resolved product name counts as certain.
func (r *Resolver) reference(req Request, specs []concept.IngredientSpec, all []resolved) (*nutrient.Profile, string) {
	name, confidence := "", 0.0
	if strings.TrimSpace(req.Code) != "" && len(all) > 0 && len(all[0].items) > 0 {
		name, confidence = all[0].label, 1
	}
	for _, s := range specs {
		if s.Confidence > confidence {
			name, confidence = s.Name, s.Confidence
		}
	}
	if name == "" || confidence <= r.referenceMinConfidence {
		return nil, ""
	}
	ref, ok := r.references.Lookup(name)
	if !ok {
		return nil, ""
	}
	return &ref.Profile, ref.Name
}

func (r *Resolver) logStage(requestID string, stage nutrimeal.Stage, input, output any, upstream []nutrimeal.UpstreamLog, errText ...string) {
	entry := nutrimeal.StageLog{
		RequestID: requestID,
		Stage:     stage,
		Timestamp: r.now(),
		Input:     input,
		Output:    output,
		Upstream:  upstream,
	}
	if len(errText) > 0 {
		entry.Error = errText[0]
	}
	if err := r.logger.LogStage(entry); err != nil {
		slog.Error("RESOLVER: Failed to log stage", "stage", stage, "error", err)
	}
}

func fieldNames(fields []nutrient.Field) []string {
	if len(fields) == 0 {
		return nil
	}
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.String()
	}
	return out
}
