// Package indicators wraps markcheno/go-talib to feed GridEngine's
// optional auxiliary buy-signal gate and the /api/grid/indicators/{symbol}
// endpoint.
package indicators

import (
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"
)

// Snapshot is the set of indicator values computed from one symbol's
// recent daily closes.
type Snapshot struct {
	RSI14         *float64
	EMA200        *float64
	BollingerPos  *BollingerPosition // position of the latest close within the bands
	Volatility20D *float64           // annualized stddev of daily returns, trailing 20 sessions
}

// BollingerPosition reports where the latest close sits within the bands,
// 0.0 at the lower band, 1.0 at the upper band.
type BollingerPosition struct {
	Position float64
	Upper    float64
	Middle   float64
	Lower    float64
}

func isNaN(f float64) bool { return f != f }

// RSI returns the latest RSI(length) value, or nil if closes is too short.
func RSI(closes []float64, length int) *float64 {
	if len(closes) < length+1 {
		return nil
	}
	rsi := talib.Rsi(closes, length)
	if v := rsi[len(rsi)-1]; !isNaN(v) {
		return &v
	}
	return nil
}

// EMA returns the latest EMA(length) value, falling back to a simple mean
// when there isn't enough history for a proper exponential average.
func EMA(closes []float64, length int) *float64 {
	if len(closes) == 0 {
		return nil
	}
	if len(closes) < length {
		v := mean(closes)
		return &v
	}
	ema := talib.Ema(closes, length)
	if v := ema[len(ema)-1]; !isNaN(v) {
		return &v
	}
	v := mean(closes[len(closes)-length:])
	return &v
}

// Bollinger returns the Bollinger Bands position of the latest close
// within a length-period, stdDevMultiplier-wide band.
func Bollinger(closes []float64, length int, stdDevMultiplier float64) *BollingerPosition {
	if len(closes) < length {
		return nil
	}
	upper, middle, lower := talib.BBands(closes, length, stdDevMultiplier, stdDevMultiplier, 0)
	u, m, l := upper[len(upper)-1], middle[len(middle)-1], lower[len(lower)-1]
	if isNaN(u) || isNaN(l) {
		return nil
	}
	current := closes[len(closes)-1]
	width := u - l
	pos := 0.5
	if width != 0 {
		pos = (current - l) / width
		if pos < 0 {
			pos = 0
		}
		if pos > 1 {
			pos = 1
		}
	}
	return &BollingerPosition{Position: pos, Upper: u, Middle: m, Lower: l}
}

// Compute builds a full Snapshot from one symbol's close history.
func Compute(closes []float64) Snapshot {
	return Snapshot{
		RSI14:         RSI(closes, 14),
		EMA200:        EMA(closes, 200),
		BollingerPos:  Bollinger(closes, 20, 2),
		Volatility20D: Volatility(closes, 20),
	}
}

// tradingDaysPerYear annualizes a daily-return stddev.
const tradingDaysPerYear = 252

// Volatility returns the annualized standard deviation of daily returns
// over the trailing window sessions, or nil if closes is too short. Used
// to surface a volatility figure alongside RSI/EMA/Bollinger on
// /api/grid/indicators/{symbol} — GridEngine's own sizing and risk
// thresholds are fixed by GridConfig, so this is informational rather
// than feeding back into a trading decision.
func Volatility(closes []float64, window int) *float64 {
	if len(closes) < window+1 {
		return nil
	}
	recent := closes[len(closes)-window-1:]
	returns := make([]float64, 0, window)
	for i := 1; i < len(recent); i++ {
		if recent[i-1] == 0 {
			continue
		}
		returns = append(returns, (recent[i]-recent[i-1])/recent[i-1])
	}
	if len(returns) < 2 {
		return nil
	}
	daily := stat.StdDev(returns, nil)
	annualized := daily * math.Sqrt(tradingDaysPerYear)
	return &annualized
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// OverboughtGate reports whether RSI14 clears the overbought threshold,
// used by GridEngine to optionally suppress grid BUY signals when the
// auxiliary gate is enabled (spec §2 added indicators component).
func OverboughtGate(closes []float64, threshold float64) bool {
	rsi := RSI(closes, 14)
	if rsi == nil {
		return false
	}
	return *rsi >= threshold
}
