// Package mock provides deterministic vision, nutrient and barcode sources for local runs and tests.
// Nothing here touches the network, and the same input always gets the same answer.
package mock

import (
	"context"
	"encoding/json"
	"log/slog"

	"nutrimeal"
	"nutrimeal/concept"
	"nutrimeal/nutrient"
)

const SourceName = "mock"

// Concepts is what the vision mock reports for any image: a plate of arepa with cheese, ham and meat.
var Concepts = []concept.Candidate{
	{Name: "arepa", Confidence: 0.92},
	{Name: "queso", Confidence: 0.85},
	{Name: "jamón", Confidence: 0.80},
	{Name: "carne", Confidence: 0.78},
}

// ProductCode is the one barcode the mock knows.
const ProductCode = "7702001000001"

// spanishLabels name each field the way a Spanish-language nutrition table would.
var spanishLabels = map[nutrient.Field]string{
	nutrient.Calories:  "Energía",
	nutrient.Protein:   "Proteínas",
	nutrient.Carbs:     "Carbohidratos",
	nutrient.Fat:       "Grasas totales",
	nutrient.Fiber:     "Fibra",
	nutrient.Sugars:    "Azúcares",
	nutrient.Sodium:    "Sodio",
	nutrient.Potassium: "Potasio",
	nutrient.Calcium:   "Calcio",
	nutrient.Iron:      "Hierro",
	nutrient.VitaminD:  "Vitamina D",
}

type Vision struct{}

func NewVision() *Vision { return &Vision{} }

func (v *Vision) Name() string { return SourceName }

func (v *Vision) Concepts(ctx context.Context, image []byte) ([]concept.Candidate, error) {
	slog.Info("MOCK: Returning canned concepts", "bytes", len(image))
	out := make([]concept.Candidate, len(Concepts))
	copy(out, Concepts)
	return out, nil
}

// Nutrients answers from a reference table, rendered as a Spanish record list so lookups go through
// the same normalization as a real upstream.
type Nutrients struct {
	table *nutrient.ReferenceTable
}

func NewNutrients(table *nutrient.ReferenceTable) *Nutrients {
	if table == nil {
		table = nutrient.NewReferenceTable()
	}
	return &Nutrients{table: table}
}

func (n *Nutrients) Name() string { return SourceName }

func (n *Nutrients) Nutrients(ctx context.Context, query string) ([]nutrimeal.Lookup, error) {
	ref, ok := n.table.Lookup(query)
	if !ok {
		slog.Debug("MOCK: No reference for query", "query", query)
		return nil, nil
	}
	payload, err := records(ref.Name, ref.Profile)
	if err != nil {
		return nil, err
	}
	return []nutrimeal.Lookup{{Source: SourceName, Name: ref.Name, Payload: payload}}, nil
}

func records(food string, p nutrient.Profile) ([]byte, error) {
	type entry struct {
		Name  string  `json:"name"`
		Value float64 `json:"value"`
		Unit  string  `json:"unit"`
	}
	var list []entry
	for _, f := range nutrient.Fields {
		v, ok := p.Get(f)
		if !ok {
			continue
		}
		list = append(list, entry{Name: spanishLabels[f], Value: v, Unit: string(f.Unit())})
	}
	return json.Marshal(map[string]any{"alimento": food, "nutrientes": list})
}

// Barcodes knows a single cheese product, returned as an Open Food Facts style nutriments object.
type Barcodes struct{}

func NewBarcodes() *Barcodes { return &Barcodes{} }

func (b *Barcodes) Name() string { return SourceName }

func (b *Barcodes) Product(ctx context.Context, code string) (*nutrimeal.Lookup, error) {
	if code != ProductCode {
		return nil, nil
	}
	payload := []byte(`{"energy-kcal_100g":250,"energy_100g":1046,"proteins_100g":13,` +
		`"carbohydrates_100g":1.1,"sugars_100g":1.1,"fat_100g":20,"salt_100g":1.0,"calcium_100g":0.6}`)
	return &nutrimeal.Lookup{Source: SourceName, Name: "Queso campesino", Payload: payload}, nil
}
