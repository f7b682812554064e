// Package analysis holds the numeric routines behind the stock tools:
// technical indicators, period statistics, PE history and valuation models.
//
// Indicator functions follow TA-Lib conventions. Outputs have the same length
// as the input and are NaN until enough data has been seen.
package analysis

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMA is the simple moving average over period values.
func SMA(x []float64, period int) []float64 {
	out := nanSlice(len(x))
	if period <= 0 {
		return out
	}
	for i := period - 1; i < len(x); i++ {
		out[i] = stat.Mean(x[i-period+1:i+1], nil)
	}
	return out
}

// EMA is the exponential moving average seeded with the SMA of the first
// period valid values. Leading NaNs in x are skipped.
func EMA(x []float64, period int) []float64 {
	out := nanSlice(len(x))
	if period <= 0 {
		return out
	}
	start := 0
	for start < len(x) && math.IsNaN(x[start]) {
		start++
	}
	seed := start + period - 1
	if seed >= len(x) {
		return out
	}
	k := 2 / float64(period+1)
	out[seed] = stat.Mean(x[start:seed+1], nil)
	for i := seed + 1; i < len(x); i++ {
		out[i] = x[i]*k + out[i-1]*(1-k)
	}
	return out
}

// RSI is Wilder's relative strength index.
func RSI(x []float64, period int) []float64 {
	out := nanSlice(len(x))
	if period <= 0 || len(x) <= period {
		return out
	}
	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := x[i] - x[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	gain /= float64(period)
	loss /= float64(period)
	out[period] = rsiValue(gain, loss)

	for i := period + 1; i < len(x); i++ {
		d := x[i] - x[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		gain = (gain*float64(period-1) + g) / float64(period)
		loss = (loss*float64(period-1) + l) / float64(period)
		out[i] = rsiValue(gain, loss)
	}
	return out
}

func rsiValue(gain, loss float64) float64 {
	if gain+loss == 0 {
		return 0
	}
	return 100 * gain / (gain + loss)
}

// MACDResult holds the MACD line, its signal line and the histogram.
type MACDResult struct {
	MACD, Signal, Hist []float64
}

// MACD computes the moving average convergence divergence. All three series
// start at the first index where the signal line is defined.
func MACD(x []float64, fast, slow, signal int) MACDResult {
	n := len(x)
	res := MACDResult{MACD: nanSlice(n), Signal: nanSlice(n), Hist: nanSlice(n)}
	if fast <= 0 || slow <= 0 || signal <= 0 {
		return res
	}
	fe, se := EMA(x, fast), EMA(x, slow)
	line := nanSlice(n)
	for i := range x {
		if !math.IsNaN(fe[i]) && !math.IsNaN(se[i]) {
			line[i] = fe[i] - se[i]
		}
	}
	sig := EMA(line, signal)
	for i := range x {
		if math.IsNaN(sig[i]) {
			continue
		}
		res.MACD[i] = line[i]
		res.Signal[i] = sig[i]
		res.Hist[i] = line[i] - sig[i]
	}
	return res
}

// BandsResult holds Bollinger bands.
type BandsResult struct {
	Upper, Middle, Lower []float64
}

// Bollinger computes bands of k population standard deviations around the SMA.
func Bollinger(x []float64, period int, k float64) BandsResult {
	n := len(x)
	res := BandsResult{Upper: nanSlice(n), Middle: nanSlice(n), Lower: nanSlice(n)}
	if period <= 0 {
		return res
	}
	for i := period - 1; i < n; i++ {
		mean, std := stat.PopMeanStdDev(x[i-period+1:i+1], nil)
		res.Middle[i] = mean
		res.Upper[i] = mean + k*std
		res.Lower[i] = mean - k*std
	}
	return res
}

// StochResult holds the slow stochastic oscillator lines.
type StochResult struct {
	K, D []float64
}

// Stoch computes the slow stochastic oscillator with simple moving average
// smoothing for both slowK and slowD.
func Stoch(high, low, close []float64, fastK, slowK, slowD int) StochResult {
	n := len(close)
	res := StochResult{K: nanSlice(n), D: nanSlice(n)}
	if fastK <= 0 || slowK <= 0 || slowD <= 0 || len(high) != n || len(low) != n {
		return res
	}
	raw := nanSlice(n)
	for i := fastK - 1; i < n; i++ {
		hh := floats.Max(high[i-fastK+1 : i+1])
		ll := floats.Min(low[i-fastK+1 : i+1])
		if hh-ll > 0 {
			raw[i] = 100 * (close[i] - ll) / (hh - ll)
		} else {
			raw[i] = 0
		}
	}
	k := smaValid(raw, slowK)
	d := smaValid(k, slowD)
	for i := range d {
		if !math.IsNaN(d[i]) {
			res.K[i] = k[i]
			res.D[i] = d[i]
		}
	}
	return res
}

// smaValid is SMA over a series with a NaN prefix.
func smaValid(x []float64, period int) []float64 {
	out := nanSlice(len(x))
	start := 0
	for start < len(x) && math.IsNaN(x[start]) {
		start++
	}
	for i := start + period - 1; i < len(x); i++ {
		out[i] = stat.Mean(x[i-period+1:i+1], nil)
	}
	return out
}

// WilliamsR computes Williams %R, ranging from -100 to 0.
func WilliamsR(high, low, close []float64, period int) []float64 {
	n := len(close)
	out := nanSlice(n)
	if period <= 0 || len(high) != n || len(low) != n {
		return out
	}
	for i := period - 1; i < n; i++ {
		hh := floats.Max(high[i-period+1 : i+1])
		ll := floats.Min(low[i-period+1 : i+1])
		if hh-ll > 0 {
			out[i] = -100 * (hh - close[i]) / (hh - ll)
		} else {
			out[i] = 0
		}
	}
	return out
}

// CCI computes the commodity channel index with the 0.015 constant.
func CCI(high, low, close []float64, period int) []float64 {
	n := len(close)
	out := nanSlice(n)
	if period <= 0 || len(high) != n || len(low) != n {
		return out
	}
	tp := make([]float64, n)
	for i := range tp {
		tp[i] = (high[i] + low[i] + close[i]) / 3
	}
	dev := make([]float64, period)
	for i := period - 1; i < n; i++ {
		window := tp[i-period+1 : i+1]
		mean := stat.Mean(window, nil)
		for j, v := range window {
			dev[j] = math.Abs(v - mean)
		}
		md := stat.Mean(dev, nil)
		if md == 0 {
			out[i] = 0
			continue
		}
		out[i] = (tp[i] - mean) / (0.015 * md)
	}
	return out
}

// Last returns the final value of x, or nil when it is missing or NaN.
func Last(x []float64) *float64 {
	if len(x) == 0 {
		return nil
	}
	return Value(x[len(x)-1])
}

// Value returns a pointer to v, or nil when v is NaN or infinite.
func Value(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Tail returns the defined values among the last n entries of x.
func Tail(x []float64, n int) []float64 {
	if n > len(x) {
		n = len(x)
	}
	out := make([]float64, 0, n)
	for _, v := range x[len(x)-n:] {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}
