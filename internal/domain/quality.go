package domain

import (
	"math"
	"time"
)

const (
	// MinAcceptableQuality es el score mínimo para usar una serie en un backtest.
	MinAcceptableQuality = 0.60

	gapMultiplier        = 1.5  // hueco = intervalo > 1.5× el timeframe
	priceAnomalyPct      = 0.10 // salto de cierre > 10%
	volumeAnomalyMult    = 5.0  // volumen > 5× la media
	maxAcceptableGapHour = 48.0
)

// QualityReport resume la calidad de una serie histórica.
type QualityReport struct {
	Score           float64 // [0, 1]
	Completeness    float64 // velas presentes / velas esperadas
	Gaps            int
	MaxGapHours     float64
	PriceAnomalies  int
	VolumeAnomalies int
	InvalidRows     int // filas OHLCV descartadas al construir la serie
}

// Acceptable devuelve true si el score supera el umbral dado.
func (q QualityReport) Acceptable(threshold float64) bool {
	return q.Score >= threshold
}

// AssessQuality evalúa una serie ya ordenada.
//
//	score = 0.4·completeness + 0.3·gapScore + 0.3·anomalyScore
func AssessQuality(bars []Bar, tf Timeframe) QualityReport {
	n := len(bars)
	if n == 0 {
		return QualityReport{}
	}
	interval := tf.Duration()
	if interval <= 0 {
		interval = time.Hour
	}

	var q QualityReport

	span := bars[n-1].Timestamp.Sub(bars[0].Timestamp)
	expected := float64(span/interval) + 1
	q.Completeness = math.Min(1, float64(n)/expected)

	var volSum float64
	for _, b := range bars {
		volSum += b.Volume
	}
	volMean := volSum / float64(n)

	for i := 1; i < n; i++ {
		gap := bars[i].Timestamp.Sub(bars[i-1].Timestamp)
		if float64(gap) > gapMultiplier*float64(interval) {
			q.Gaps++
			q.MaxGapHours = math.Max(q.MaxGapHours, gap.Hours())
		}
		prev := bars[i-1].Close
		if prev > 0 && math.Abs(bars[i].Close/prev-1) > priceAnomalyPct {
			q.PriceAnomalies++
		}
	}
	if volMean > 0 {
		for _, b := range bars {
			if b.Volume > volumeAnomalyMult*volMean {
				q.VolumeAnomalies++
			}
		}
	}

	fn := float64(n)
	gapPenalty := math.Min(1, float64(q.Gaps)/(fn*0.01))
	maxGapPenalty := math.Min(1, q.MaxGapHours/maxAcceptableGapHour)
	gapScore := 1 - (0.5*gapPenalty + 0.5*maxGapPenalty)

	pricePenalty := math.Min(1, float64(q.PriceAnomalies)/(fn*0.001))
	volumePenalty := math.Min(1, float64(q.VolumeAnomalies)/(fn*0.01))
	anomalyScore := 1 - (0.7*pricePenalty + 0.3*volumePenalty)

	q.Score = 0.4*q.Completeness + 0.3*gapScore + 0.3*anomalyScore
	return q
}
