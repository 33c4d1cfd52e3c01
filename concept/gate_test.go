package concept

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_Gate(t *testing.T) {
	tests := []struct {
		name     string
		concepts []Candidate
		want     []string
	}{
		{
			name: "rice and chicken both pass their thresholds",
			concepts: []Candidate{
				{Name: "rice", Confidence: 0.3},
				{Name: "chicken", Confidence: 0.1},
			},
			want: []string{"1 cup rice", "150 g chicken"},
		},
		{
			name: "protein rescued when grain passed but no protein did",
			concepts: []Candidate{
				{Name: "rice", Confidence: 0.6},
				{Name: "beef", Confidence: 0.06},
				{Name: "chicken", Confidence: 0.07},
				{Name: "tuna", Confidence: 0.04},
			},
			want: []string{"1 cup rice", "150 g chicken"},
		},
		{
			name: "no rescue below absolute floor",
			concepts: []Candidate{
				{Name: "rice", Confidence: 0.6},
				{Name: "chicken", Confidence: 0.049},
			},
			want: []string{"1 cup rice"},
		},
		{
			name: "no rescue exactly at the floor",
			concepts: []Candidate{
				{Name: "rice", Confidence: 0.6},
				{Name: "chicken", Confidence: 0.05},
			},
			want: []string{"1 cup rice"},
		},
		{
			name: "no rescue without a passing grain",
			concepts: []Candidate{
				{Name: "tomato", Confidence: 0.9},
				{Name: "chicken", Confidence: 0.07},
			},
			want: []string{"tomato"},
		},
		{
			name: "no rescue when a protein already passed",
			concepts: []Candidate{
				{Name: "rice", Confidence: 0.5},
				{Name: "pork", Confidence: 0.4},
				{Name: "chicken", Confidence: 0.07},
			},
			want: []string{"1 cup rice", "150 g pork"},
		},
		{
			name: "category thresholds differ",
			concepts: []Candidate{
				{Name: "pizza", Confidence: 0.19},
				{Name: "soup", Confidence: 0.2},
				{Name: "quinoa", Confidence: 0.14},
				{Name: "spinach", Confidence: 0.12},
				{Name: "cheese", Confidence: 0.11},
			},
			want: []string{"soup", "spinach"},
		},
		{
			name: "synonyms fold before dedup keeping highest confidence",
			concepts: []Candidate{
				{Name: "Meat", Confidence: 0.4},
				{Name: "beef", Confidence: 0.9},
				{Name: "eggs", Confidence: 0.5},
				{Name: "huevo", Confidence: 0.3},
			},
			want: []string{"150 g beef", "1 egg"},
		},
		{
			name: "unknown concepts are dropped",
			concepts: []Candidate{
				{Name: "plate", Confidence: 0.99},
				{Name: "food", Confidence: 0.98},
				{Name: "bread", Confidence: 0.5},
			},
			want: []string{"1 slice bread"},
		},
		{
			name: "spanish labels",
			concepts: []Candidate{
				{Name: "arepa", Confidence: 0.92},
				{Name: "queso", Confidence: 0.85},
				{Name: "jamón", Confidence: 0.80},
				{Name: "carne", Confidence: 0.78},
			},
			want: []string{"1 arepa", "30 g cheese", "150 g ham", "150 g beef"},
		},
		{
			name:     "empty input",
			concepts: nil,
			want:     []string{},
		},
	}

	gate := NewGate(GateOpts{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := gate.Gate(tt.concepts)
			assert.Equal(t, tt.want, Strings(got))
		})
	}
}

func TestGate_OrderAndCap(t *testing.T) {
	names := []string{"rice", "chicken", "tomato", "onion", "garlic", "lettuce", "carrot", "corn", "broccoli", "cabbage"}
	concepts := make([]Candidate, 0, len(names))
	for i, n := range names {
		concepts = append(concepts, Candidate{Name: n, Confidence: 0.2 + float64(i)*0.05})
	}

	got := NewGate(GateOpts{}).Gate(concepts)
	require.Len(t, got, DefaultMaxIngredients)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Confidence, got[i].Confidence, fmt.Sprintf("position %d", i))
	}
	assert.Equal(t, "cabbage", got[0].Name)

	t.Run("custom cap", func(t *testing.T) {
		got := NewGate(GateOpts{MaxIngredients: 2}).Gate(concepts)
		assert.Len(t, got, 2)
	})
}

func TestGate_Grams(t *testing.T) {
	got := NewGate(GateOpts{}).Gate([]Candidate{
		{Name: "rice", Confidence: 0.3},
		{Name: "chicken", Confidence: 0.2},
		{Name: "tomato", Confidence: 0.15},
	})
	require.Len(t, got, 3)

	require.NotNil(t, got[0].Grams)
	assert.InDelta(t, 158, *got[0].Grams, 0.001)
	require.NotNil(t, got[1].Grams)
	assert.InDelta(t, 150, *got[1].Grams, 0.001)
	assert.Nil(t, got[2].Grams, "bare names have unknown mass")
}

func TestGate_Category(t *testing.T) {
	gate := NewGate(GateOpts{})

	cat, ok := gate.Category("Pollo")
	require.True(t, ok)
	assert.Equal(t, CategoryProtein, cat)

	_, ok = gate.Category("table")
	assert.False(t, ok)
}
