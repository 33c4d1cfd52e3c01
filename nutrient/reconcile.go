package nutrient

import "math"

const (
	// AtwaterTolerance is the relative deviation from 4P+4C+9F above which energy is replaced.
	AtwaterTolerance = 0.20

	// UnsupportedEnergyCeiling is the kcal/100g above which energy without all three macros is distrusted.
	UnsupportedEnergyCeiling = 420.0
)

// Range is an inclusive physiological range for one field, per 100 g.
type Range struct {
	Min, Max float64
}

// Bounds are the ranges Clamp enforces. Energy has no ceiling of its own: with every macro in range
// it is held to the Atwater value instead.
var Bounds = map[Field]Range{
	Calories:  {0, math.Inf(1)},
	Protein:   {0, 100},
	Carbs:     {0, 100},
	Fat:       {0, 100},
	Fiber:     {0, 100},
	Sugars:    {0, 100},
	Sodium:    {0, 3500},
	Potassium: {0, 2500},
	Calcium:   {0, 1500},
	Iron:      {0, 30},
	VitaminD:  {0, math.Inf(1)},
}

// Reconciliation is the outcome of Reconcile with a record of what changed.
type Reconciliation struct {
	Profile Profile
	// Clamped lists fields pulled back into range.
	Clamped []Field
	// Filled lists fields copied from the reference profile.
	Filled []Field
	// EnergyRecomputed is set when calories were replaced by the Atwater value.
	EnergyRecomputed bool
}

// Atwater returns 4P + 4C + 9F. It reports false unless all three macros are known.
func Atwater(p Profile) (float64, bool) {
	if !p.HasMacros() {
		return 0, false
	}
	return atwater(p), true
}

// atwater treats unknown macros as zero.
func atwater(p Profile) float64 {
	pr, _ := p.Get(Protein)
	c, _ := p.Get(Carbs)
	f, _ := p.Get(Fat)
	return 4*pr + 4*c + 9*f
}

// Clamp pulls every known field into its Bounds and returns the fields that changed.
func Clamp(p Profile) (Profile, []Field) {
	out := p.Clone()
	var changed []Field
	for _, f := range Fields {
		v, ok := out.Get(f)
		if !ok {
			continue
		}
		if math.IsNaN(v) {
			out.Clear(f)
			changed = append(changed, f)
			continue
		}
		if c := clampField(f, v); c != v {
			out.Set(f, c)
			changed = append(changed, f)
		}
	}
	return out, changed
}

// NeedsReference reports whether a profile is incomplete or implausible enough to be filled from a
// reference: a core macro or energy is missing, or energy is above UnsupportedEnergyCeiling and the
// macros do not account for it.
func NeedsReference(p Profile) bool {
	cal, hasCal := p.Get(Calories)
	if !hasCal || !p.HasMacros() {
		return true
	}
	return cal > UnsupportedEnergyCeiling && deviates(cal, atwater(p))
}

// Reconcile runs the sanity pass over p. A nil p is treated as all-unknown. ref, when non-nil, fills
// missing fields; callers only pass one when the food identification is trusted.
func Reconcile(p *Profile, ref *Profile) Profile {
	return ReconcileDetailed(p, ref).Profile
}

// ReconcileDetailed is Reconcile with a record of which steps changed the profile.
//
// The steps run in order: clamp, fill from ref, then recompute energy. With all three macros known,
// calories are replaced when missing or off by more than AtwaterTolerance. With only some macros known
// and no energy at all, calories are derived from the macros that are present.
func ReconcileDetailed(p *Profile, ref *Profile) Reconciliation {
	var base Profile
	if p != nil {
		base = *p
	}
	out, clamped := Clamp(base)
	rec := Reconciliation{Clamped: clamped}

	if ref != nil && NeedsReference(out) {
		safeRef, _ := Clamp(*ref)
		for _, f := range Fields {
			if out.Has(f) {
				continue
			}
			if v, ok := safeRef.Get(f); ok {
				out.Set(f, v)
				rec.Filled = append(rec.Filled, f)
			}
		}
	}

	cal, hasCal := out.Get(Calories)
	switch {
	case out.HasMacros():
		computed := atwater(out)
		if !hasCal || deviates(cal, computed) {
			out.Set(Calories, round(computed, 1))
			rec.EnergyRecomputed = true
		}
	case !hasCal && anyMacro(out):
		out.Set(Calories, round(atwater(out), 1))
		rec.EnergyRecomputed = true
	}

	rec.Profile = out
	return rec
}

func deviates(cal, computed float64) bool {
	if computed == 0 {
		return cal != 0
	}
	return math.Abs(cal-computed) > AtwaterTolerance*computed
}

func anyMacro(p Profile) bool {
	for _, f := range CoreMacros {
		if p.Has(f) {
			return true
		}
	}
	return false
}

func clampField(f Field, v float64) float64 {
	r := Bounds[f]
	return math.Min(math.Max(v, r.Min), r.Max)
}
