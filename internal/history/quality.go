package history

import (
	"math"
	"time"

	"signalbot/internal/indicator"
	"signalbot/internal/model"
)

// QualityLevel grades how usable a window is for short-term signals.
type QualityLevel string

const (
	QualityInsufficient QualityLevel = "INSUFFICIENT"
	QualityPoor         QualityLevel = "POOR"
	QualityFair         QualityLevel = "FAIR"
	QualityGood         QualityLevel = "GOOD"
	QualityExcellent    QualityLevel = "EXCELLENT"
)

// QualityStats are the raw measurements behind a Quality score.
type QualityStats struct {
	DataPoints        int           `json:"data_points"`
	Duration          time.Duration `json:"duration"`
	AvgInterval       time.Duration `json:"avg_interval"`
	VolatilityPercent float64       `json:"volatility_percent"`
	RangePercent      float64       `json:"range_percent"`
}

// Quality is the result of AnalyzeQuality.
type Quality struct {
	Score          int          `json:"score"` // 0..100
	Level          QualityLevel `json:"level"`
	Factors        []string     `json:"factors"`
	Recommendation string       `json:"recommendation"`
	Stats          QualityStats `json:"stats"`
}

// AnalyzeQuality scores a window on quantity (30), span (25), sampling
// regularity (25) and market activity (20).
func AnalyzeQuality(samples []model.PriceSample) Quality {
	q := Quality{Stats: QualityStats{DataPoints: len(samples)}}
	if len(samples) < 10 {
		q.Level = QualityInsufficient
		q.Factors = []string{"not enough data to analyze"}
		q.Recommendation = "collect at least 10 data points"
		return q
	}

	prices := make([]float64, len(samples))
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, s := range samples {
		prices[i] = s.Price
		lo = math.Min(lo, s.Price)
		hi = math.Max(hi, s.Price)
	}
	st := &q.Stats
	st.Duration = samples[len(samples)-1].TS.Sub(samples[0].TS)
	st.AvgInterval = st.Duration / time.Duration(len(samples)-1)
	if mean := indicator.Mean(prices); mean > 0 {
		sd, _ := indicator.StdDev(prices, len(prices))
		st.VolatilityPercent = sd / mean * 100
	}
	if lo > 0 {
		st.RangePercent = (hi - lo) / lo * 100
	}

	add := func(points int, factor string) {
		q.Score += points
		q.Factors = append(q.Factors, factor)
	}

	switch n := st.DataPoints; {
	case n >= 1000:
		add(30, "data points: excellent (1000+)")
	case n >= 500:
		add(20, "data points: good (500+)")
	case n >= 100:
		add(10, "data points: fair (100+)")
	default:
		add(0, "data points: poor (<100)")
	}

	switch d := st.Duration; {
	case d >= 7*24*time.Hour:
		add(25, "duration: excellent (1+ week)")
	case d >= 3*24*time.Hour:
		add(15, "duration: good (3+ days)")
	case d >= 24*time.Hour:
		add(10, "duration: fair (1+ day)")
	default:
		add(0, "duration: poor (<1 day)")
	}

	switch iv := st.AvgInterval; {
	case iv <= 10*time.Second:
		add(25, "interval: excellent (<=10s)")
	case iv <= 30*time.Second:
		add(15, "interval: good (<=30s)")
	case iv <= time.Minute:
		add(10, "interval: fair (<=1m)")
	default:
		add(0, "interval: poor (>1m)")
	}

	switch v := st.VolatilityPercent; {
	case v >= 1.0:
		add(20, "volatility: active market")
	case v >= 0.5:
		add(15, "volatility: moderate")
	default:
		add(5, "volatility: low activity")
	}

	switch {
	case q.Score >= 80:
		q.Level, q.Recommendation = QualityExcellent, "window is well suited to scalping"
	case q.Score >= 60:
		q.Level, q.Recommendation = QualityGood, "window is usable, keep collecting"
	case q.Score >= 40:
		q.Level, q.Recommendation = QualityFair, "more data needed for reliable signals"
	default:
		q.Level, q.Recommendation = QualityPoor, "window needs more time to build"
	}
	return q
}
