// Package pattern classifies recent market behavior for a symbol into one of
// nine fixed regime labels using centroids trained offline, with a rule
// fallback for vectors the training universe does not cover.
package pattern

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/rs/zerolog"

	apperrors "trade-journal/internal/errors"
	"trade-journal/internal/models"
)

// PatternOrder is the fixed centroid iteration order. Ties in distance break
// to the earliest entry, so repeated calls on the same vector always agree.
var PatternOrder = []string{"P1", "P2", "P3", "P4", "P5", "P6", "P7", "P8", "P9"}

// DefaultPatternID is the fallback classifier's unconditional last branch.
const DefaultPatternID = "P8"

// Artifact is the offline training output loaded from patterns.json.
type Artifact struct {
	Patterns       map[string]models.Pattern `json:"patterns"`
	FeatureColumns []string                  `json:"featureColumns"`
	Scaler         Scaler                    `json:"scaler"`
	TrainedAt      string                    `json:"trainedAt,omitempty"`
}

// Scaler holds the standardization parameters the centroids were trained
// under. Raw feature vectors are transformed to (x - mean) / std before any
// distance is computed.
type Scaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// FallbackThresholds parameterize the rule fallback. Values are in scaled
// (z-score) units.
type FallbackThresholds struct {
	VolatilityHigh  float64
	VolatilityLow   float64
	TrendStrong     float64
	TrendFlat       float64
	VolumeHigh      float64
	VolumeLow       float64
	DrawdownDeep    float64
	RangeCompressed float64
}

// DefaultFallbackThresholds returns the stock rule thresholds.
func DefaultFallbackThresholds() FallbackThresholds {
	return FallbackThresholds{
		VolatilityHigh:  1.0,
		VolatilityLow:   -0.5,
		TrendStrong:     0.75,
		TrendFlat:       0.25,
		VolumeHigh:      1.0,
		VolumeLow:       -1.0,
		DrawdownDeep:    1.0,
		RangeCompressed: -0.5,
	}
}

// Result is the outcome of a classification.
type Result struct {
	PatternID string
	Distance  float64
	Fallback  bool
}

// Classifier maps feature vectors to pattern labels. It is safe for
// concurrent use; Reload swaps the artifact atomically under the lock.
type Classifier struct {
	mu         sync.RWMutex
	artifact   *Artifact
	path       string
	threshold  float64
	thresholds FallbackThresholds
	logger     zerolog.Logger
}

// NewClassifier loads the artifact at path and returns a ready classifier.
// distanceThreshold is the maximum centroid distance accepted before the
// rule fallback takes over.
func NewClassifier(path string, distanceThreshold float64, logger zerolog.Logger) (*Classifier, error) {
	c := &Classifier{
		path:       path,
		threshold:  distanceThreshold,
		thresholds: DefaultFallbackThresholds(),
		logger:     logger,
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the artifact from disk. The previous artifact stays in
// effect if the load fails.
func (c *Classifier) Reload() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("failed to read pattern artifact: %w", err)
	}

	var artifact Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return fmt.Errorf("failed to parse pattern artifact: %w", err)
	}

	if err := validateArtifact(&artifact); err != nil {
		return err
	}

	c.mu.Lock()
	c.artifact = &artifact
	c.mu.Unlock()

	c.logger.Info().
		Str("path", c.path).
		Int("patterns", len(artifact.Patterns)).
		Msg("pattern artifact loaded")

	return nil
}

func validateArtifact(a *Artifact) error {
	if len(a.Patterns) == 0 {
		return apperrors.ErrCentroidsMissing
	}
	for _, id := range PatternOrder {
		p, ok := a.Patterns[id]
		if !ok {
			return fmt.Errorf("pattern artifact missing %s: %w", id, apperrors.ErrCentroidsMissing)
		}
		if len(p.Centroid) != models.FeatureDim {
			return fmt.Errorf("pattern %s centroid has %d dimensions, want %d", id, len(p.Centroid), models.FeatureDim)
		}
	}
	if len(a.Scaler.Mean) != models.FeatureDim || len(a.Scaler.Std) != models.FeatureDim {
		return fmt.Errorf("scaler dimensions do not match feature vector: %w", apperrors.ErrConfigInvalid)
	}
	if len(a.FeatureColumns) != models.FeatureDim {
		return fmt.Errorf("artifact lists %d feature columns, want %d", len(a.FeatureColumns), models.FeatureDim)
	}
	for i, col := range a.FeatureColumns {
		if col != FeatureColumns[i] {
			return fmt.Errorf("artifact feature column %d is %q, want %q", i, col, FeatureColumns[i])
		}
	}
	return nil
}

// Pattern returns the metadata for a pattern label, or nil when unknown.
func (c *Classifier) Pattern(id string) *models.Pattern {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.artifact == nil {
		return nil
	}
	if p, ok := c.artifact.Patterns[id]; ok {
		return &p
	}
	return nil
}

// SetFallbackThresholds overrides the rule fallback thresholds.
func (c *Classifier) SetFallbackThresholds(t FallbackThresholds) {
	c.mu.Lock()
	c.thresholds = t
	c.mu.Unlock()
}

// Classify maps a raw (unscaled) feature vector to exactly one pattern
// label. The vector is standardized with the artifact's scaler, compared to
// each centroid in PatternOrder, and the nearest match within the distance
// threshold wins. Beyond the threshold the rule fallback decides; its last
// branch is unconditional, so a label is always returned.
func (c *Classifier) Classify(raw models.FeatureVector) (Result, error) {
	c.mu.RLock()
	artifact := c.artifact
	thresholds := c.thresholds
	c.mu.RUnlock()

	if artifact == nil {
		return Result{}, apperrors.ErrCentroidsMissing
	}

	scaled := scale(raw, artifact.Scaler)

	bestID := ""
	bestDist := math.Inf(1)
	for _, id := range PatternOrder {
		d := euclidean(scaled, artifact.Patterns[id].Centroid)
		if d < bestDist {
			bestDist = d
			bestID = id
		}
	}

	if bestDist > c.threshold {
		return Result{
			PatternID: classifyByRules(scaled, thresholds),
			Distance:  bestDist,
			Fallback:  true,
		}, nil
	}

	return Result{PatternID: bestID, Distance: bestDist}, nil
}

func scale(raw models.FeatureVector, s Scaler) models.FeatureVector {
	var out models.FeatureVector
	for i := 0; i < models.FeatureDim; i++ {
		std := s.Std[i]
		if std == 0 {
			std = 1
		}
		out[i] = (raw[i] - s.Mean[i]) / std
	}
	return out
}

func euclidean(v models.FeatureVector, centroid []float64) float64 {
	sum := 0.0
	for i := 0; i < models.FeatureDim; i++ {
		d := v[i] - centroid[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// classifyByRules is the ordered rule fallback over scaled features. The
// branch order matters: extreme regimes are checked before milder ones, and
// the final branch assigns the mean-reversion label unconditionally.
func classifyByRules(v models.FeatureVector, t FallbackThresholds) string {
	vol := v[idxVol10]
	slope := v[idxSlope10]
	volumeRatio := v[idxVolumeRatio10]
	rangeComp := v[idxRangeComp10]
	mom10 := v[idxMom10]
	dd := v[idxDrawdown20]

	switch {
	case vol > t.VolatilityHigh && math.Abs(mom10) < t.TrendFlat:
		return "P5"
	case vol > t.VolatilityHigh:
		return "P2"
	case volumeRatio > t.VolumeHigh && math.Abs(dd) > t.DrawdownDeep:
		return "P7"
	case slope > t.TrendStrong && mom10 > 0:
		return "P3"
	case slope < -t.TrendStrong && mom10 < 0:
		return "P4"
	case volumeRatio < t.VolumeLow:
		return "P9"
	case vol < t.VolatilityLow && rangeComp < t.RangeCompressed:
		return "P6"
	case vol < t.VolatilityLow && math.Abs(slope) < t.TrendFlat:
		return "P1"
	default:
		return DefaultPatternID
	}
}
