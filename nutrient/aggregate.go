package nutrient

// DefaultGrams is the mass assumed for an item whose mass is unknown.
const DefaultGrams = 100.0

// Item is one resolved ingredient: a per-100g profile and the mass eaten, if known.
type Item struct {
	Name    string
	Profile *Profile
	Grams   *float64
}

func (it Item) grams() float64 {
	if it.Grams == nil || *it.Grams <= 0 {
		return DefaultGrams
	}
	return *it.Grams
}

// Aggregate sums the items' profiles scaled by grams/100 into meal totals. A field stays unknown when no
// item reports it. Items without a profile are skipped. It returns nil when nothing contributed.
func Aggregate(items []Item) *Profile {
	var total Profile
	contributed := false
	for _, it := range items {
		if it.Profile == nil {
			continue
		}
		contributed = true
		factor := it.grams() / 100
		for _, f := range Fields {
			v, ok := it.Profile.Get(f)
			if !ok {
				continue
			}
			sum, _ := total.Get(f)
			total.Set(f, sum+v*factor)
		}
	}
	if !contributed {
		return nil
	}
	return &total
}

// TotalGrams returns the combined mass of items that have a profile, counting unknown masses as DefaultGrams.
func TotalGrams(items []Item) float64 {
	var total float64
	for _, it := range items {
		if it.Profile != nil {
			total += it.grams()
		}
	}
	return total
}

// PerHundredGrams rebases meal totals over totalGrams onto a per-100g profile.
func PerHundredGrams(total *Profile, totalGrams float64) *Profile {
	if total == nil || totalGrams <= 0 {
		return nil
	}
	p := total.Scale(100 / totalGrams)
	return &p
}
