package models

// FeatureDim is the dimensionality of the market-behavior feature vector.
// It matches the offline training pipeline: volatility 5/10/20d, trend slope
// 10/20d, drawdown 20d, volume ratio 10/20d, range compression 10d,
// momentum 5/10d.
const FeatureDim = 11

// FeatureVector is one scaled observation in feature space.
type FeatureVector [FeatureDim]float64

// Pattern is one of the nine precomputed market-regime clusters. Patterns
// label the regime a trade was entered in, for retrospective explanation
// only, never prediction.
type Pattern struct {
	ID              string       `json:"patternId"`
	Name            string       `json:"name"`
	Description     string       `json:"description"`
	Characteristics []string     `json:"characteristics"`
	Risks           []string     `json:"risks"`
	Centroid        []float64    `json:"centroid"`
	Stats           PatternStats `json:"stats"`
}

// PatternStats holds training-time statistics for a pattern.
type PatternStats struct {
	SampleCount       int     `json:"sampleCount"`
	Percentage        float64 `json:"percentage"`
	HistoricalWinRate float64 `json:"historicalWinRate"`
}
