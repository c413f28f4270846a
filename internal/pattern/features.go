package pattern

import (
	"math"

	apperrors "trade-journal/internal/errors"
	"trade-journal/internal/models"
)

// MinObservations is the minimum number of trailing daily candles required
// to build a feature vector. Below this the windows are too short to carry
// signal and classification is skipped rather than defaulted.
const MinObservations = 20

// FeatureColumns names the vector dimensions in training column order. The
// artifact carries the same list so a layout drift between trainer and
// classifier is detectable at load time.
var FeatureColumns = [models.FeatureDim]string{
	"volatility_5d",
	"volatility_10d",
	"volatility_20d",
	"trend_slope_10d",
	"trend_slope_20d",
	"drawdown_20d",
	"volume_ratio_10d",
	"volume_ratio_20d",
	"range_compression_10d",
	"momentum_5d",
	"momentum_10d",
}

// Feature vector indexes, matching FeatureColumns.
const (
	idxVol5 = iota
	idxVol10
	idxVol20
	idxSlope10
	idxSlope20
	idxDrawdown20
	idxVolumeRatio10
	idxVolumeRatio20
	idxRangeComp10
	idxMom5
	idxMom10
)

// BuildFeatures constructs the raw (unscaled) feature vector from trailing
// daily candles, oldest first. Returns ErrDataNotFound wrapped as a data
// error when fewer than minObs candles are supplied.
func BuildFeatures(candles []models.Candle, minObs int) (models.FeatureVector, error) {
	var fv models.FeatureVector
	if minObs < MinObservations {
		minObs = MinObservations
	}
	if len(candles) < minObs {
		return fv, apperrors.NewDataError("candles", "", "insufficient history for feature construction", apperrors.ErrDataNotFound)
	}

	closes := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	ranges := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		volumes[i] = float64(c.Volume)
		ranges[i] = c.High - c.Low
	}

	returns := logReturns(closes)

	fv[idxVol5] = stdev(tail(returns, 5))
	fv[idxVol10] = stdev(tail(returns, 10))
	fv[idxVol20] = stdev(tail(returns, 20))
	fv[idxSlope10] = regressionSlope(tail(closes, 10))
	fv[idxSlope20] = regressionSlope(tail(closes, 20))
	fv[idxDrawdown20] = drawdown(tail(closes, 20))
	fv[idxVolumeRatio10] = lastOverMean(tail(volumes, 10))
	fv[idxVolumeRatio20] = lastOverMean(tail(volumes, 20))
	fv[idxRangeComp10] = lastOverMean(tail(ranges, 10))
	fv[idxMom5] = sum(tail(returns, 5))
	fv[idxMom10] = sum(tail(returns, 10))

	return fv, nil
}

// tail returns the last n elements, or the whole slice when shorter.
func tail(v []float64, n int) []float64 {
	if len(v) <= n {
		return v
	}
	return v[len(v)-n:]
}

func logReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, math.Log(closes[i]/closes[i-1]))
	}
	return returns
}

func sum(v []float64) float64 {
	total := 0.0
	for _, x := range v {
		total += x
	}
	return total
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return sum(v) / float64(len(v))
}

// stdev is the sample standard deviation, matching the trainer's estimator.
func stdev(v []float64) float64 {
	if len(v) < 2 {
		return 0
	}
	m := mean(v)
	ss := 0.0
	for _, x := range v {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(v)-1))
}

// regressionSlope fits y = a + b*x over x = 0..n-1 and returns b.
func regressionSlope(y []float64) float64 {
	n := float64(len(y))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXSq float64
	for i, v := range y {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXSq += x * x
	}
	denom := n*sumXSq - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

// drawdown is the distance of the last close below the window maximum, as a
// fraction of that maximum. Zero or negative values only.
func drawdown(closes []float64) float64 {
	if len(closes) == 0 {
		return 0
	}
	peak := closes[0]
	for _, c := range closes {
		if c > peak {
			peak = c
		}
	}
	if peak == 0 {
		return 0
	}
	return (closes[len(closes)-1] - peak) / peak
}

// lastOverMean is the last element relative to the window average.
func lastOverMean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	m := mean(v)
	if m == 0 {
		return 0
	}
	return v[len(v)-1] / m
}
