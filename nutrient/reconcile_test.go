package nutrient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile(t *testing.T) {
	tests := []struct {
		name        string
		profile     *Profile
		ref         *Profile
		want        Profile
		recomputed  bool
		wantClamped []Field
		wantFilledN int
	}{
		{
			name:       "partial macros derive energy",
			profile:    &Profile{ProteinG: Float(13), CarbsG: Float(1.1)},
			want:       Profile{Calories: Float(56.4), ProteinG: Float(13), CarbsG: Float(1.1)},
			recomputed: true,
		},
		{
			name:       "energy far from atwater is replaced",
			profile:    &Profile{Calories: Float(900), ProteinG: Float(10), CarbsG: Float(20), FatG: Float(5)},
			want:       Profile{Calories: Float(165), ProteinG: Float(10), CarbsG: Float(20), FatG: Float(5)},
			recomputed: true,
		},
		{
			name:    "energy within tolerance is kept",
			profile: &Profile{Calories: Float(180), ProteinG: Float(10), CarbsG: Float(20), FatG: Float(5)},
			want:    Profile{Calories: Float(180), ProteinG: Float(10), CarbsG: Float(20), FatG: Float(5)},
		},
		{
			name:    "out of range values are clamped",
			profile: &Profile{Calories: Float(0), ProteinG: Float(-3), CarbsG: Float(140), FatG: Float(0), SodiumMg: Float(9000), IronMg: Float(45)},
			want: Profile{
				Calories: Float(400), ProteinG: Float(0), CarbsG: Float(100), FatG: Float(0),
				SodiumMg: Float(3500), IronMg: Float(30),
			},
			recomputed:  true,
			wantClamped: []Field{Protein, Carbs, Sodium, Iron},
		},
		{
			name:        "reference fills missing fields",
			profile:     &Profile{ProteinG: Float(30)},
			ref:         &Profile{Calories: Float(165), ProteinG: Float(31), CarbsG: Float(0), FatG: Float(3.6), SodiumMg: Float(74)},
			want:        Profile{Calories: Float(165), ProteinG: Float(30), CarbsG: Float(0), FatG: Float(3.6), SodiumMg: Float(74)},
			wantFilledN: 4,
		},
		{
			name:    "reference ignored when profile is complete and plausible",
			profile: &Profile{Calories: Float(130), ProteinG: Float(2.7), CarbsG: Float(28.2), FatG: Float(0.3)},
			ref:     &Profile{Calories: Float(130), ProteinG: Float(2.7), CarbsG: Float(28.2), FatG: Float(0.3), SodiumMg: Float(1)},
			want:    Profile{Calories: Float(130), ProteinG: Float(2.7), CarbsG: Float(28.2), FatG: Float(0.3)},
		},
		{
			name:        "nil profile with reference takes the reference",
			profile:     nil,
			ref:         &Profile{Calories: Float(52), ProteinG: Float(0.3), CarbsG: Float(13.8), FatG: Float(0.2)},
			want:        Profile{Calories: Float(52), ProteinG: Float(0.3), CarbsG: Float(13.8), FatG: Float(0.2)},
			wantFilledN: 4,
		},
		{
			name:       "fat heavy energy above 900 keeps the atwater value",
			profile:    &Profile{Calories: Float(900), ProteinG: Float(20), CarbsG: Float(60), FatG: Float(100)},
			want:       Profile{Calories: Float(1220), ProteinG: Float(20), CarbsG: Float(60), FatG: Float(100)},
			recomputed: true,
		},
		{
			name:    "nil profile without reference stays unknown",
			profile: nil,
			want:    Profile{},
		},
		{
			name:    "micronutrients only stay without energy",
			profile: &Profile{SodiumMg: Float(200)},
			want:    Profile{SodiumMg: Float(200)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ReconcileDetailed(tt.profile, tt.ref)
			assertProfile(t, tt.want, rec.Profile)
			assert.Equal(t, tt.recomputed, rec.EnergyRecomputed)
			assert.Equal(t, tt.wantClamped, rec.Clamped)
			assert.Len(t, rec.Filled, tt.wantFilledN)
		})
	}
}

func TestReconcile_EmptyPayloadYieldsAllNull(t *testing.T) {
	got := Reconcile(Normalize([]byte(`{}`)), nil)
	assert.True(t, got.IsEmpty())

	m := got.Map()
	require.Len(t, m, len(Fields))
	for k, v := range m {
		assert.Nil(t, v, k)
	}
}

func TestReconcile_ScopedPayloadScenario(t *testing.T) {
	got := Reconcile(Normalize([]byte(`{"perHundredGrams":{"proteins":"13 g","carbohydrates":"1,1"}}`)), nil)
	assertProfile(t, Profile{Calories: Float(56.4), ProteinG: Float(13), CarbsG: Float(1.1)}, got)
}

func TestReconcile_Invariants(t *testing.T) {
	inputs := []*Profile{
		{Calories: Float(2000), ProteinG: Float(50), CarbsG: Float(50), FatG: Float(50)},
		{Calories: Float(-5), ProteinG: Float(101), CarbsG: Float(-1), FatG: Float(12)},
		{Calories: Float(500), FatG: Float(55)},
		{ProteinG: Float(0), CarbsG: Float(0), FatG: Float(0), Calories: Float(30)},
		{ProteinG: Float(20), CarbsG: Float(60), FatG: Float(100)},
		{ProteinG: Float(100), CarbsG: Float(100), FatG: Float(100), Calories: Float(100)},
		{ProteinG: Float(40), CarbsG: Float(150), FatG: Float(120), Calories: Float(5000)},
	}
	for _, in := range inputs {
		got := Reconcile(in, nil)
		for _, f := range Fields {
			v, ok := got.Get(f)
			if !ok {
				continue
			}
			b := Bounds[f]
			assert.GreaterOrEqual(t, v, b.Min, f.String())
			assert.LessOrEqual(t, v, b.Max, f.String())
		}
		if computed, ok := Atwater(got); ok {
			cal, _ := got.Get(Calories)
			assert.InDelta(t, computed, cal, AtwaterTolerance*computed+0.05)
		}
	}
}

func TestNeedsReference(t *testing.T) {
	assert.True(t, NeedsReference(Profile{}))
	assert.True(t, NeedsReference(Profile{ProteinG: Float(1), CarbsG: Float(1), FatG: Float(1)}))
	assert.True(t, NeedsReference(Profile{Calories: Float(100), ProteinG: Float(1), CarbsG: Float(1)}))
	assert.True(t, NeedsReference(Profile{Calories: Float(600), ProteinG: Float(1), CarbsG: Float(1), FatG: Float(1)}))
	assert.False(t, NeedsReference(Profile{Calories: Float(600), ProteinG: Float(10), CarbsG: Float(10), FatG: Float(55)}))
	assert.False(t, NeedsReference(Profile{Calories: Float(165), ProteinG: Float(31), CarbsG: Float(0), FatG: Float(3.6)}))
}

func assertProfile(t *testing.T, want, got Profile) {
	t.Helper()
	for _, f := range Fields {
		w, wok := want.Get(f)
		g, gok := got.Get(f)
		if !assert.Equal(t, wok, gok, "%s known", f) || !wok {
			continue
		}
		assert.InDelta(t, w, g, 0.001, f.String())
	}
}
