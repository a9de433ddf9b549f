package recipe

import "math"

// Tiers names the voltage tiers in ascending order. Tier n carries 32*4^n EU/t per amp.
var Tiers = []string{
	"LV", "MV", "HV", "EV",
	"IV", "LuV", "ZPM", "UV",
	"UHV", "UEV", "UIV", "UMV",
}

// PowerTier maps a draw in EU/t to the lowest tier that can carry it and the
// number of amps needed at that tier.
func PowerTier(eut float64) (amps float64, tier int) {
	m := eut / 32
	for tier < len(Tiers)-1 && math.Pow(4, float64(tier)) < m {
		tier++
	}
	return m / math.Pow(4, float64(tier)), tier
}

// SurgeEUt is the worst-case draw of a step running r at the given rate: one
// amp of whichever is higher, the tier its actual draw needs or the minimum
// tier the recipe itself requires.
func SurgeEUt(r *Recipe, rate float64) float64 {
	_, tier := PowerTier(r.Power * rate)
	_, minTier := PowerTier(r.Power)
	if minTier > tier {
		tier = minTier
	}
	return 32 * math.Pow(4, float64(tier))
}

// TierName returns the display name of a tier index.
func TierName(tier int) string {
	if tier < 0 || tier >= len(Tiers) {
		return "?"
	}
	return Tiers[tier]
}
