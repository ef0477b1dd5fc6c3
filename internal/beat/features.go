// SPDX-License-Identifier: MIT
package beat

// BandCount is the number of frequency bands in a feature vector.
const BandCount = 6

// Band is a named frequency range used for band-energy features.
type Band struct {
	Name   string
	LowHz  float64
	HighHz float64
}

// Bands are the six overlapping analysis bands, low to very high.
var Bands = [BandCount]Band{
	{Name: "low", LowHz: 20, HighHz: 150},
	{Name: "midLow", LowHz: 100, HighHz: 400},
	{Name: "mid", LowHz: 300, HighHz: 1000},
	{Name: "midHigh", LowHz: 800, HighHz: 3000},
	{Name: "high", LowHz: 2000, HighHz: 8000},
	{Name: "veryHigh", LowHz: 6000, HighHz: 20000},
}

// Features describes one onset. Band energies are normalized to the
// loudest band of the analysis window.
type Features struct {
	Low         float64 `json:"lowEnergy"`
	MidLow      float64 `json:"midLowEnergy"`
	Mid         float64 `json:"midEnergy"`
	MidHigh     float64 `json:"midHighEnergy"`
	High        float64 `json:"highEnergy"`
	VeryHigh    float64 `json:"veryHighEnergy"`
	Noisiness   float64 `json:"noisiness"`   // Zero-crossing rate, 0-1.
	Duration    float64 `json:"duration"`    // Seconds, capped at 0.5.
	CrestFactor float64 `json:"crestFactor"` // Peak / RMS.
	AttackTime  float64 `json:"attackTime"`  // Seconds to 80% of peak.
	DecayRatio  float64 `json:"decayRatio"`  // Tail / sustain, 0-1.
}

// Bands returns the six band energies in Bands order.
func (f Features) Bands() [BandCount]float64 {
	return [BandCount]float64{f.Low, f.MidLow, f.Mid, f.MidHigh, f.High, f.VeryHigh}
}

// SetBands assigns the six band energies in Bands order.
func (f *Features) SetBands(b [BandCount]float64) {
	f.Low, f.MidLow, f.Mid, f.MidHigh, f.High, f.VeryHigh = b[0], b[1], b[2], b[3], b[4], b[5]
}

// Ratios returns the band energies divided by their sum. ok is false when
// the sum is zero.
func (f Features) Ratios() (r [BandCount]float64, ok bool) {
	b := f.Bands()
	var total float64
	for _, v := range b {
		total += v
	}
	if total == 0 {
		return r, false
	}
	for i, v := range b {
		r[i] = v / total
	}
	return r, true
}

// Add returns the field-wise sum of f and g.
func (f Features) Add(g Features) Features {
	return Features{
		Low:         f.Low + g.Low,
		MidLow:      f.MidLow + g.MidLow,
		Mid:         f.Mid + g.Mid,
		MidHigh:     f.MidHigh + g.MidHigh,
		High:        f.High + g.High,
		VeryHigh:    f.VeryHigh + g.VeryHigh,
		Noisiness:   f.Noisiness + g.Noisiness,
		Duration:    f.Duration + g.Duration,
		CrestFactor: f.CrestFactor + g.CrestFactor,
		AttackTime:  f.AttackTime + g.AttackTime,
		DecayRatio:  f.DecayRatio + g.DecayRatio,
	}
}

// Scale multiplies every field by k and rounds to the given decimals.
func (f Features) Scale(k float64, decimals int) Features {
	return Features{
		Low:         Round(f.Low*k, decimals),
		MidLow:      Round(f.MidLow*k, decimals),
		Mid:         Round(f.Mid*k, decimals),
		MidHigh:     Round(f.MidHigh*k, decimals),
		High:        Round(f.High*k, decimals),
		VeryHigh:    Round(f.VeryHigh*k, decimals),
		Noisiness:   Round(f.Noisiness*k, decimals),
		Duration:    Round(f.Duration*k, decimals),
		CrestFactor: Round(f.CrestFactor*k, decimals),
		AttackTime:  Round(f.AttackTime*k, decimals),
		DecayRatio:  Round(f.DecayRatio*k, decimals),
	}
}
