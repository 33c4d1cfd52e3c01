package nutrient

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		want      map[Field]float64
		wantShape Shape
		wantScope string
	}{
		{
			name:      "scoped camel case with unit strings and comma decimals",
			payload:   `{"perHundredGrams":{"proteins":"13 g","carbohydrates":"1,1"}}`,
			want:      map[Field]float64{Protein: 13, Carbs: 1.1},
			wantShape: ShapeScoped,
			wantScope: "$.perHundredGrams",
		},
		{
			name: "per 100g scope preferred over serving and root",
			payload: `{
				"per_serving": {"calories": 500, "protein": 40},
				"per_100g": {"calories": 200, "protein": 16},
				"calories": 999
			}`,
			want:      map[Field]float64{Calories: 200, Protein: 16},
			wantShape: ShapeScoped,
			wantScope: "$.per_100g",
		},
		{
			name:      "empty scope is skipped in favor of the root",
			payload:   `{"per100":{"note":"n/a"},"calories":120,"fat":"3,5 g"}`,
			want:      map[Field]float64{Calories: 120, Fat: 3.5},
			wantShape: ShapeFlat,
			wantScope: "$",
		},
		{
			name: "open food facts product",
			payload: `{
				"code": "7702001",
				"status": 1,
				"product": {
					"product_name": "Queso campesino",
					"nutriments": {
						"energy-kcal_100g": 250,
						"energy_100g": 1046,
						"proteins_100g": 13,
						"proteins": 12,
						"proteins_unit": "g",
						"carbohydrates_100g": 1.1,
						"fat_100g": 20,
						"saturated-fat_100g": 12,
						"sugars_100g": 0.5,
						"fiber_100g": 0,
						"salt_100g": 1.0,
						"calcium_100g": 0.7,
						"iron_100g": 0.0004,
						"vitamin-d_100g": 0.0000005
					},
					"nutriscore_data": {"proteins": 3, "energy": 5}
				}
			}`,
			want: map[Field]float64{
				Calories: 250, Protein: 13, Carbs: 1.1, Fat: 20, Sugars: 0.5, Fiber: 0,
				Sodium: 393, Calcium: 700, Iron: 0.4, VitaminD: 20,
			},
			wantShape: ShapeFlat,
			wantScope: "$",
		},
		{
			name:      "energy in kilojoules only",
			payload:   `{"energy_100g": 1046, "proteins_100g": 5}`,
			want:      map[Field]float64{Calories: 1046 * 0.239, Protein: 5},
			wantShape: ShapeFlat,
			wantScope: "$",
		},
		{
			name:      "kilojoule value string on a kcal key",
			payload:   `{"calories": "418 kJ"}`,
			want:      map[Field]float64{Calories: 418 * 0.239},
			wantShape: ShapeFlat,
			wantScope: "$",
		},
		{
			name: "spanish records with mixed label and value keys",
			payload: `{"nutrients": [
				{"name": "Energía", "value": "250", "unit": "kcal"},
				{"label": "Proteínas", "amount": "13 g"},
				{"tag": "grasas", "qty": 2},
				{"name": "Sodio", "value": 0.5, "unit": "g"}
			]}`,
			want:      map[Field]float64{Calories: 250, Protein: 13, Fat: 2, Sodium: 500},
			wantShape: ShapeRecords,
			wantScope: "$",
		},
		{
			name: "edamam style map of records",
			payload: `{"totalNutrients": {
				"ENERC_KCAL": {"label": "Energy", "quantity": 52, "unit": "kcal"},
				"PROCNT": {"label": "Protein", "quantity": 0.26, "unit": "g"},
				"FAT": {"label": "Fat", "quantity": 0.17, "unit": "g"},
				"FASAT": {"label": "Saturated", "quantity": 0.03, "unit": "g"},
				"CHOCDF": {"label": "Carbs", "quantity": 13.8, "unit": "g"},
				"NA": {"label": "Sodium", "quantity": 1, "unit": "mg"}
			}}`,
			want:      map[Field]float64{Calories: 52, Protein: 0.26, Fat: 0.17, Carbs: 13.8, Sodium: 1},
			wantShape: ShapeRecords,
			wantScope: "$",
		},
		{
			name: "usda nested nutrient objects",
			payload: `{"foodNutrients": [
				{"nutrient": {"name": "Protein", "unitName": "G"}, "amount": 31},
				{"nutrient": {"name": "Total lipid (fat)", "unitName": "G"}, "amount": 3.6},
				{"nutrient": {"name": "Vitamin D (D2 + D3)", "unitName": "µg"}, "amount": 0.1}
			]}`,
			want:      map[Field]float64{Protein: 31, Fat: 3.6, VitaminD: 4},
			wantShape: ShapeRecords,
			wantScope: "$",
		},
		{
			name:      "saturated and camel case totals",
			payload:   `{"saturatedFat": 5, "totalFat": 12, "caloriesFromFat": 108, "nf_calories": 160}`,
			want:      map[Field]float64{Fat: 12, Calories: 160},
			wantShape: ShapeFlat,
			wantScope: "$",
		},
		{
			name:      "shallower key wins",
			payload:   `{"detail": {"inner": {"protein": 1}}, "protein": 2}`,
			want:      map[Field]float64{Protein: 2},
			wantShape: ShapeFlat,
			wantScope: "$",
		},
		{
			name:      "product name with a nutrient word is not a record label",
			payload:   `{"name": "Protein shake", "kcal": 120}`,
			want:      map[Field]float64{Calories: 120},
			wantShape: ShapeFlat,
			wantScope: "$",
		},
		{
			name:      "product name mentioning salt keeps its own fields",
			payload:   `{"name": "Sea salt crackers", "kcal": 450, "protein": 9}`,
			want:      map[Field]float64{Calories: 450, Protein: 9},
			wantShape: ShapeFlat,
			wantScope: "$",
		},
		{
			name:      "serving keys are ignored",
			payload:   `{"serving_size_g": 30, "servings": {"protein": 9}, "carbs": 40}`,
			want:      map[Field]float64{Carbs: 40},
			wantShape: ShapeFlat,
			wantScope: "$",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NormalizeBytes([]byte(tt.payload))
			require.NoError(t, err)
			require.NotNil(t, m)
			assert.Equal(t, tt.wantShape, m.Shape)
			assert.Equal(t, tt.wantScope, m.Scope)

			for _, f := range Fields {
				got, ok := m.Profile.Get(f)
				want, wantOK := tt.want[f]
				if !wantOK {
					assert.False(t, ok, "%s should be unknown, got %v", f, got)
					continue
				}
				if assert.True(t, ok, "%s should be known", f) {
					assert.InDelta(t, want, got, 0.0001, f.String())
				}
			}
		})
	}
}

func TestNormalize_NoUsableData(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "empty object", payload: `{}`},
		{name: "empty array", payload: `[]`},
		{name: "null", payload: `null`},
		{name: "number", payload: `42`},
		{name: "micronutrients only", payload: `{"sodium_mg": 120, "iron_mg": 1}`},
		{name: "non numeric values", payload: `{"calories": "unknown", "protein": "trace"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NormalizeBytes([]byte(tt.payload))
			require.NoError(t, err)
			assert.Nil(t, m)
			assert.Nil(t, Normalize([]byte(tt.payload)))
		})
	}
}

func TestNormalize_Malformed(t *testing.T) {
	for _, payload := range []string{"", "   ", "not json", `{"calories":`} {
		_, err := NormalizeBytes([]byte(payload))
		assert.ErrorIs(t, err, ErrMalformedPayload, payload)
		assert.Nil(t, Normalize([]byte(payload)))
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	profiles := []Profile{
		{
			Calories: Float(143), ProteinG: Float(12.6), CarbsG: Float(0.7), FatG: Float(9.5),
			FiberG: Float(0), SugarsG: Float(0.4), SodiumMg: Float(142), PotassiumMg: Float(138),
			CalciumMg: Float(56), IronMg: Float(1.75), VitaminDIU: Float(82),
		},
		{Calories: Float(56.4), ProteinG: Float(13), CarbsG: Float(1.1)},
		{FatG: Float(0)},
	}

	for _, p := range profiles {
		raw, err := json.Marshal(p)
		require.NoError(t, err)

		once := Normalize(raw)
		require.NotNil(t, once)
		assert.Equal(t, p, *once)

		again, err := json.Marshal(once)
		require.NoError(t, err)
		twice := Normalize(again)
		require.NotNil(t, twice)
		assert.Equal(t, *once, *twice)
	}
}

func TestNormalize_Sources(t *testing.T) {
	m, err := NormalizeBytes([]byte(`{"item": {"protein_g": 3}, "per_100g": {"kcal": 90, "carbs": 20}}`))
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "$.per_100g.kcal", m.Sources[Calories])
	assert.Equal(t, "$.per_100g.carbs", m.Sources[Carbs])
	assert.NotContains(t, m.Sources, Protein)
}

func TestPatterns(t *testing.T) {
	langs := map[Language]bool{}
	for _, p := range Patterns(Calories) {
		langs[p.Language] = true
	}
	assert.True(t, langs[English])
	assert.True(t, langs[Spanish])
	assert.True(t, langs[Symbol])

	for _, f := range Fields {
		assert.NotEmpty(t, Patterns(f), f.String())
	}
}

func TestIsScopeKey(t *testing.T) {
	for _, k := range []string{"per_100g", "100g", "per100", "perHundredGrams", "por_100_gramos", "Per 100 g"} {
		assert.True(t, isScopeKey(k), k)
	}
	for _, k := range []string{"per_serving", "energy_100g", "nutriments", "100ml"} {
		assert.False(t, isScopeKey(k), k)
	}
}
