package concept

import (
	"log/slog"
	"sort"
)

const (
	// DefaultMaxIngredients bounds downstream lookups and keeps noise concepts from diluting the meal.
	DefaultMaxIngredients = 8

	// ProteinRescueFloor is the absolute confidence a below-threshold protein must exceed to be rescued
	// when a grain passed but no protein did.
	ProteinRescueFloor = 0.05
)

// CategoryRule is the per-category confidence threshold and default serving.
type CategoryRule struct {
	Threshold float64
	// Quantity is prepended to the name, e.g. "1 cup". Empty means the bare name is used.
	Quantity string
}

// DefaultRules are the category thresholds. Proteins are deliberately low because vision models
// under-report them on plated meals.
var DefaultRules = map[Category]CategoryRule{
	CategoryGrain:     {Threshold: 0.15, Quantity: "1 cup"},
	CategoryProtein:   {Threshold: 0.08, Quantity: "150 g"},
	CategoryVegetable: {Threshold: 0.12},
	CategoryDairy:     {Threshold: 0.12, Quantity: "30 g"},
	CategoryDish:      {Threshold: 0.20},
	CategoryCondiment: {Threshold: 0.12},
}

// DefaultCategories is the allowlist of recognizable foods. Names not listed are dropped.
var DefaultCategories = map[string]Category{
	"rice": CategoryGrain, "brown rice": CategoryGrain, "white rice": CategoryGrain, "pilaf": CategoryGrain,
	"risotto": CategoryGrain, "quinoa": CategoryGrain, "couscous": CategoryGrain, "oatmeal": CategoryGrain,
	"pasta": CategoryGrain, "noodles": CategoryGrain, "bread": CategoryGrain, "tortilla": CategoryGrain,
	"arepa": CategoryGrain, "potato": CategoryGrain,

	"chicken": CategoryProtein, "beef": CategoryProtein, "pork": CategoryProtein, "turkey": CategoryProtein,
	"lamb": CategoryProtein, "bacon": CategoryProtein, "ham": CategoryProtein, "fish": CategoryProtein,
	"salmon": CategoryProtein, "tuna": CategoryProtein, "shrimp": CategoryProtein, "egg": CategoryProtein,
	"beans": CategoryProtein, "lentils": CategoryProtein, "chickpea": CategoryProtein, "tofu": CategoryProtein,

	"tomato": CategoryVegetable, "onion": CategoryVegetable, "garlic": CategoryVegetable, "pepper": CategoryVegetable,
	"lettuce": CategoryVegetable, "spinach": CategoryVegetable, "carrot": CategoryVegetable, "corn": CategoryVegetable,
	"cauliflower": CategoryVegetable, "broccoli": CategoryVegetable, "cabbage": CategoryVegetable,
	"mushroom": CategoryVegetable, "zucchini": CategoryVegetable, "pea": CategoryVegetable, "avocado": CategoryVegetable,

	"cheese": CategoryDairy, "mozzarella": CategoryDairy, "parmesan": CategoryDairy, "blue cheese": CategoryDairy,
	"yogurt": CategoryDairy, "butter": CategoryDairy, "milk": CategoryDairy,

	"pizza": CategoryDish, "burger": CategoryDish, "sandwich": CategoryDish, "soup": CategoryDish,
	"porridge": CategoryDish, "stew": CategoryDish, "salad": CategoryDish, "taco": CategoryDish,

	"oil": CategoryCondiment, "olive oil": CategoryCondiment, "salt": CategoryCondiment, "sugar": CategoryCondiment,
}

// DefaultSynonyms fold labels onto allowlisted names before dedup. Spanish labels are common from LogMeal.
var DefaultSynonyms = map[string]string{
	"meat":        "beef",
	"eggs":        "egg",
	"bell pepper": "pepper",
	"huevo":       "egg",
	"huevos":      "egg",
	"carne":       "beef",
	"res":         "beef",
	"pollo":       "chicken",
	"cerdo":       "pork",
	"jamón":       "ham",
	"jamon":       "ham",
	"tocino":      "bacon",
	"pescado":     "fish",
	"atún":        "tuna",
	"atun":        "tuna",
	"arroz":       "rice",
	"pan":         "bread",
	"papa":        "potato",
	"papas":       "potato",
	"frijoles":    "beans",
	"queso":       "cheese",
	"leche":       "milk",
	"tomate":      "tomato",
	"cebolla":     "onion",
	"lechuga":     "lettuce",
	"aguacate":    "avocado",
	"sopa":        "soup",
	"potatoes":    "potato",
	"tomatoes":    "tomato",
	"mushrooms":   "mushroom",
}

// quantityOverrides replace the category default for foods served by the piece.
var quantityOverrides = map[string]string{
	"bread":    "1 slice",
	"tortilla": "1 slice",
	"arepa":    "1",
	"potato":   "1",
	"egg":      "1",
	"butter":   "1 tbsp",
	"milk":     "1 cup",
}

// Gate turns raw vision concepts into ingredient specs using category-specific confidence thresholds.
type Gate struct {
	rules          map[Category]CategoryRule
	categories     map[string]Category
	synonyms       map[string]string
	maxIngredients int
}

type GateOpts struct {
	Rules          map[Category]CategoryRule
	Categories     map[string]Category
	Synonyms       map[string]string
	MaxIngredients int
}

func NewGate(opts GateOpts) *Gate {
	if opts.Rules == nil {
		opts.Rules = DefaultRules
	}
	if opts.Categories == nil {
		opts.Categories = DefaultCategories
	}
	if opts.Synonyms == nil {
		opts.Synonyms = DefaultSynonyms
	}
	if opts.MaxIngredients <= 0 {
		opts.MaxIngredients = DefaultMaxIngredients
	}
	return &Gate{
		rules:          opts.Rules,
		categories:     opts.Categories,
		synonyms:       opts.Synonyms,
		maxIngredients: opts.MaxIngredients,
	}
}

type gated struct {
	name       string
	category   Category
	confidence float64
}

// Gate filters concepts and returns specs ordered by confidence, highest first, capped at the max.
//
// If a grain passed but no protein did, the highest-confidence protein above
// ProteinRescueFloor is accepted anyway so a meal shot at an angle is not reported as protein-free.
func (g *Gate) Gate(concepts []Candidate) []IngredientSpec {
	var passed, rescuable []gated
	grainPassed, proteinPassed := false, false

	for _, c := range concepts {
		name := g.fold(c.Name)
		cat, ok := g.categories[name]
		if !ok {
			continue
		}
		item := gated{name: name, category: cat, confidence: c.Confidence}
		if c.Confidence >= g.rules[cat].Threshold {
			passed = append(passed, item)
			grainPassed = grainPassed || cat == CategoryGrain
			proteinPassed = proteinPassed || cat == CategoryProtein
			continue
		}
		if cat == CategoryProtein && c.Confidence > ProteinRescueFloor {
			rescuable = append(rescuable, item)
		}
	}

	if grainPassed && !proteinPassed && len(rescuable) > 0 {
		best := rescuable[0]
		for _, r := range rescuable[1:] {
			if r.confidence > best.confidence {
				best = r
			}
		}
		slog.Info("GATE: Rescued protein below threshold", "name", best.name, "confidence", best.confidence)
		passed = append(passed, best)
	}

	passed = dedup(passed)
	sort.SliceStable(passed, func(i, j int) bool { return passed[i].confidence > passed[j].confidence })
	if len(passed) > g.maxIngredients {
		passed = passed[:g.maxIngredients]
	}

	specs := make([]IngredientSpec, 0, len(passed))
	for _, p := range passed {
		specs = append(specs, g.spec(p))
	}
	return specs
}

// Category reports the category of a concept name after synonym folding.
func (g *Gate) Category(name string) (Category, bool) {
	cat, ok := g.categories[g.fold(name)]
	return cat, ok
}

func (g *Gate) fold(name string) string {
	name = normalizeName(name)
	if s, ok := g.synonyms[name]; ok {
		return s
	}
	return name
}

func (g *Gate) spec(p gated) IngredientSpec {
	qty, ok := quantityOverrides[p.name]
	if !ok {
		qty = g.rules[p.category].Quantity
	}
	spec := IngredientSpec{Name: p.name, QuantityText: qty, Confidence: p.confidence}
	if qty != "" {
		parsed := ParseIngredient(spec.String())
		spec.Grams = parsed.Grams
	}
	return spec
}

// dedup keeps the highest confidence per name, preserving first-seen order.
func dedup(items []gated) []gated {
	index := make(map[string]int, len(items))
	out := make([]gated, 0, len(items))
	for _, it := range items {
		if i, ok := index[it.name]; ok {
			if it.confidence > out[i].confidence {
				out[i].confidence = it.confidence
			}
			continue
		}
		index[it.name] = len(out)
		out = append(out, it)
	}
	return out
}
