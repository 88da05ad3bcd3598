package indicator

// SMA returns the simple moving average of values.
func SMA(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// EMA returns the exponential moving average of values with the given period.
// The first period values seed the average with their SMA; the remaining values
// are smoothed with alpha = 2 / (period + 1).
//
// Only the values passed in contribute. The registry passes a fixed trailing
// window (80 bars for ema20), so the result is a truncated EMA that depends on
// that window alone, not the full-history EMA a charting tool would show. With
// 60 smoothing steps the seed's weight is (1-alpha)^60, about 0.25% for period 20.
func EMA(values []float64, period int) float64 {
	ema := SMA(values[:period])
	alpha := 2.0 / float64(period+1)
	for _, v := range values[period:] {
		ema = alpha*v + (1-alpha)*ema
	}
	return ema
}

// RSI returns the Wilder-smoothed relative strength index of values.
// The first period changes seed the average gain and loss.
func RSI(values []float64, period int) float64 {
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(values); i++ {
		change := values[i] - values[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50.0
		}
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - 100.0/(1.0+rs)
}
