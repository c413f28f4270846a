package pattern

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"trade-journal/internal/models"
)

func writeTestArtifact(t *testing.T, centroids map[string][]float64) string {
	t.Helper()

	patterns := make(map[string]models.Pattern, len(PatternOrder))
	for _, id := range PatternOrder {
		centroid := centroids[id]
		if centroid == nil {
			centroid = make([]float64, models.FeatureDim)
			// Spread the remaining centroids out so they never interfere
			// with the probe vectors used in the tests.
			for i := range centroid {
				centroid[i] = 100 + float64(len(id))
			}
		}
		patterns[id] = models.Pattern{
			ID:       id,
			Name:     "pattern " + id,
			Centroid: centroid,
		}
	}

	mean := make([]float64, models.FeatureDim)
	std := make([]float64, models.FeatureDim)
	for i := range std {
		std[i] = 1
	}

	artifact := Artifact{
		Patterns:       patterns,
		FeatureColumns: FeatureColumns[:],
		Scaler:         Scaler{Mean: mean, Std: std},
	}

	data, err := json.Marshal(artifact)
	if err != nil {
		t.Fatalf("marshal artifact: %v", err)
	}

	path := filepath.Join(t.TempDir(), "patterns.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}

func newTestClassifier(t *testing.T, centroids map[string][]float64, threshold float64) *Classifier {
	t.Helper()
	c, err := NewClassifier(writeTestArtifact(t, centroids), threshold, zerolog.Nop())
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}
	return c
}

func TestClassifyNearestCentroidWins(t *testing.T) {
	centroids := map[string][]float64{
		"P3": {0, 0, 0, 1, 1, 0, 0, 0, 0, 1, 1},
		"P4": {0, 0, 0, -1, -1, 0, 0, 0, 0, -1, -1},
	}
	c := newTestClassifier(t, centroids, 5.0)

	var probe models.FeatureVector
	probe[idxSlope10] = 1
	probe[idxSlope20] = 1
	probe[idxMom5] = 1
	probe[idxMom10] = 1

	result, err := c.Classify(probe)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if result.PatternID != "P3" {
		t.Errorf("pattern = %s, want P3", result.PatternID)
	}
	if result.Fallback {
		t.Error("fallback = true, want centroid match")
	}
	if result.Distance != 0 {
		t.Errorf("distance = %v, want 0 for exact match", result.Distance)
	}
}

func TestClassifyTieBreaksToFirstInOrder(t *testing.T) {
	// P2 and P5 equidistant from the origin probe; P1 sits far away so
	// the tie is strictly between the two.
	shared := []float64{2, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	mirrored := []float64{-2, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	centroids := map[string][]float64{
		"P2": shared,
		"P5": mirrored,
	}
	c := newTestClassifier(t, centroids, 5.0)

	var probe models.FeatureVector
	for i := 0; i < 10; i++ {
		result, err := c.Classify(probe)
		if err != nil {
			t.Fatalf("classify: %v", err)
		}
		if result.PatternID != "P2" {
			t.Fatalf("run %d: pattern = %s, want P2 (first encountered at equal distance)", i, result.PatternID)
		}
	}
}

func TestClassifyFarVectorTriggersFallback(t *testing.T) {
	c := newTestClassifier(t, nil, 5.0)

	// All centroids sit near 100 in every dimension; a zero vector is far
	// beyond the threshold from each of them.
	var probe models.FeatureVector

	result, err := c.Classify(probe)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if !result.Fallback {
		t.Fatal("fallback = false, want rule-based path for a far vector")
	}
	if result.Distance <= 5.0 {
		t.Errorf("distance = %v, expected beyond the threshold", result.Distance)
	}
	if result.PatternID == "" {
		t.Error("fallback returned empty pattern id")
	}
}

func TestFallbackDefaultsToMeanReversion(t *testing.T) {
	// A neutral scaled vector trips no rule branch.
	var v models.FeatureVector
	got := classifyByRules(v, DefaultFallbackThresholds())
	if got != DefaultPatternID {
		t.Errorf("pattern = %s, want %s", got, DefaultPatternID)
	}
}

func TestFallbackRuleBranches(t *testing.T) {
	th := DefaultFallbackThresholds()

	cases := []struct {
		name string
		set  func(*models.FeatureVector)
		want string
	}{
		{"high vol flat momentum is whipsaw", func(v *models.FeatureVector) {
			v[idxVol10] = 2
		}, "P5"},
		{"high vol with momentum is expansion", func(v *models.FeatureVector) {
			v[idxVol10] = 2
			v[idxMom10] = 1
		}, "P2"},
		{"volume spike with deep drawdown is exhaustion", func(v *models.FeatureVector) {
			v[idxVolumeRatio10] = 2
			v[idxDrawdown20] = -2
		}, "P7"},
		{"strong positive slope is trending up", func(v *models.FeatureVector) {
			v[idxSlope10] = 1.5
			v[idxMom10] = 0.5
		}, "P3"},
		{"strong negative slope is trending down", func(v *models.FeatureVector) {
			v[idxSlope10] = -1.5
			v[idxMom10] = -0.5
		}, "P4"},
		{"starved volume is illiquid", func(v *models.FeatureVector) {
			v[idxVolumeRatio10] = -2
		}, "P9"},
		{"low vol tight range is compression", func(v *models.FeatureVector) {
			v[idxVol10] = -1
			v[idxRangeComp10] = -1
		}, "P6"},
		{"low vol flat slope is range-bound", func(v *models.FeatureVector) {
			v[idxVol10] = -1
		}, "P1"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var v models.FeatureVector
			tc.set(&v)
			if got := classifyByRules(v, th); got != tc.want {
				t.Errorf("pattern = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestReloadRejectsBadArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.json")
	if err := os.WriteFile(path, []byte(`{"patterns": {}}`), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := NewClassifier(path, 5.0, zerolog.Nop()); err == nil {
		t.Fatal("expected error for artifact with no centroids")
	}
}

func TestBuildFeaturesInsufficientHistory(t *testing.T) {
	candles := makeCandles(19, 100)
	if _, err := BuildFeatures(candles, MinObservations); err == nil {
		t.Fatal("expected error for fewer than 20 candles")
	}
}

func TestBuildFeaturesTrendingSeries(t *testing.T) {
	candles := makeCandles(30, 100)
	// Steady 1% daily rise
	price := 100.0
	for i := range candles {
		candles[i].Open = price
		candles[i].Close = price * 1.01
		candles[i].High = candles[i].Close * 1.005
		candles[i].Low = candles[i].Open * 0.995
		price = candles[i].Close
	}

	fv, err := BuildFeatures(candles, MinObservations)
	if err != nil {
		t.Fatalf("build features: %v", err)
	}

	if fv[idxSlope10] <= 0 {
		t.Errorf("slope10 = %v, want positive for a rising series", fv[idxSlope10])
	}
	if fv[idxMom10] <= 0 {
		t.Errorf("momentum10 = %v, want positive for a rising series", fv[idxMom10])
	}
	if fv[idxDrawdown20] > 0 {
		t.Errorf("drawdown = %v, must never be positive", fv[idxDrawdown20])
	}
	// Constant log returns have zero dispersion
	if fv[idxVol10] > 1e-9 {
		t.Errorf("volatility10 = %v, want ~0 for constant returns", fv[idxVol10])
	}
}

func makeCandles(n int, base float64) []models.Candle {
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]models.Candle, n)
	for i := range candles {
		candles[i] = models.Candle{
			Timestamp: start.AddDate(0, 0, i),
			Open:      base,
			High:      base * 1.01,
			Low:       base * 0.99,
			Close:     base,
			Volume:    10000,
		}
	}
	return candles
}
