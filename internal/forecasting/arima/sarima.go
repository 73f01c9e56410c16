package arima

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// Order is the non-seasonal (p, d, q) order
type Order struct {
	P int `json:"p"`
	D int `json:"d"`
	Q int `json:"q"`
}

// SeasonalOrder is the seasonal (P, D, Q, s) order; Period 0 means none
type SeasonalOrder struct {
	P      int `json:"p"`
	D      int `json:"d"`
	Q      int `json:"q"`
	Period int `json:"period"`
}

// IsSeasonal reports whether the order carries a seasonal component
func (s SeasonalOrder) IsSeasonal() bool {
	return s.Period > 1
}

// Model is a multiplicative SARIMA model estimated by conditional sum of squares
type Model struct {
	Order         Order         `json:"order"`
	SeasonalOrder SeasonalOrder `json:"seasonal_order"`
	AR            []float64     `json:"ar"`
	MA            []float64     `json:"ma"`
	SeasonalAR    []float64     `json:"seasonal_ar"`
	SeasonalMA    []float64     `json:"seasonal_ma"`
	Mean          float64       `json:"mean"`
	Sigma2        float64       `json:"sigma2"`
	Iterations    int           `json:"iterations"`

	includeMean bool
	levels      [][]float64 // levels[k] is the series after k regular differences
	seasonalIn  []float64   // input to the seasonal differences
	work        []float64   // fully differenced series the ARMA part is fit on
	residuals   []float64
	arPoly      []float64 // expanded AR lag coefficients, arPoly[k-1] for lag k
	maPoly      []float64
}

// Fit estimates a SARIMA model on data with at most maxIter Nelder-Mead iterations
func Fit(data []float64, order Order, seasonal SeasonalOrder, maxIter int) (*Model, error) {
	if order.P < 0 || order.D < 0 || order.Q < 0 || seasonal.P < 0 || seasonal.D < 0 || seasonal.Q < 0 {
		return nil, fmt.Errorf("negative model order")
	}
	if !seasonal.IsSeasonal() {
		seasonal = SeasonalOrder{}
	}

	for _, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("series contains non-finite values")
		}
	}

	m := &Model{
		Order:         order,
		SeasonalOrder: seasonal,
		includeMean:   order.D == 0 && seasonal.D == 0,
	}

	m.levels = make([][]float64, order.D+1)
	m.levels[0] = data
	for k := 1; k <= order.D; k++ {
		m.levels[k] = difference(m.levels[k-1], 1)
	}
	m.seasonalIn = m.levels[order.D]
	m.work = m.seasonalIn
	for k := 0; k < seasonal.D; k++ {
		m.work = difference(m.work, seasonal.Period)
	}

	nParams := order.P + order.Q + seasonal.P + seasonal.Q
	if m.includeMean {
		nParams++
	}
	maxLag := order.P + seasonal.P*seasonal.Period
	if len(m.work)-maxLag <= nParams+1 {
		return nil, fmt.Errorf("%d observations after differencing are too few for %d parameters and lag %d",
			len(m.work), nParams, maxLag)
	}

	x0 := m.initialParams()
	if len(x0) == 0 {
		m.unpack(nil)
		m.Sigma2 = m.css()
		return m, nil
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			m.unpack(x)
			sse := m.css()
			if math.IsNaN(sse) || math.IsInf(sse, 0) {
				return math.MaxFloat64 / 4
			}
			return sse
		},
	}

	settings := &optimize.Settings{
		MajorIterations: maxIter,
		FuncEvaluations: maxIter * 20,
	}

	result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if result == nil || !allFinite(result.X) {
		if err == nil {
			err = fmt.Errorf("optimizer returned no usable solution")
		}
		return nil, fmt.Errorf("css estimation failed: %w", err)
	}

	m.unpack(result.X)
	m.Sigma2 = m.css()
	m.Iterations = result.Stats.MajorIterations
	if math.IsNaN(m.Sigma2) || math.IsInf(m.Sigma2, 0) {
		return nil, fmt.Errorf("css estimation diverged")
	}

	return m, nil
}

// Forecast produces horizon predictions on the original scale, setting
// future innovations to zero
func (m *Model) Forecast(horizon int) []float64 {
	if horizon <= 0 {
		return []float64{}
	}

	n := len(m.work)
	w := make([]float64, n+horizon)
	copy(w, m.work)
	e := make([]float64, n+horizon)
	copy(e, m.residuals)

	for t := n; t < n+horizon; t++ {
		v := m.Mean
		for k, c := range m.arPoly {
			if c != 0 && t-k-1 >= 0 {
				v += c * (w[t-k-1] - m.Mean)
			}
		}
		for k, c := range m.maPoly {
			if c != 0 && t-k-1 >= 0 {
				v += c * e[t-k-1]
			}
		}
		w[t] = v
	}
	future := w[n:]

	// undo seasonal differencing
	if m.SeasonalOrder.D > 0 {
		future = integrateSeasonal(m.seasonalIn, future, m.SeasonalOrder.Period, m.SeasonalOrder.D)
	}

	// undo regular differencing, innermost level first
	for k := m.Order.D; k > 0; k-- {
		future = integrate(m.levels[k-1], future)
	}

	return future
}

// css returns the mean squared one-step residual, conditioning on the first
// maxLag observations
func (m *Model) css() float64 {
	n := len(m.work)
	start := len(m.arPoly)
	if m.residuals == nil || len(m.residuals) != n {
		m.residuals = make([]float64, n)
	}
	for i := range m.residuals {
		m.residuals[i] = 0
	}

	sse := 0.0
	for t := start; t < n; t++ {
		pred := m.Mean
		for k, c := range m.arPoly {
			if c != 0 {
				pred += c * (m.work[t-k-1] - m.Mean)
			}
		}
		for k, c := range m.maPoly {
			if c != 0 && t-k-1 >= 0 {
				pred += c * m.residuals[t-k-1]
			}
		}
		r := m.work[t] - pred
		m.residuals[t] = r
		sse += r * r
	}
	return sse / float64(n-start)
}

func (m *Model) initialParams() []float64 {
	var x0 []float64
	acf := Autocorrelation(m.work, 1+m.SeasonalOrder.Period)
	phi := 0.0
	if len(acf) > 1 {
		phi = clamp(acf[1], -0.9, 0.9)
	}
	for i := 0; i < m.Order.P; i++ {
		if i == 0 {
			x0 = append(x0, phi)
		} else {
			x0 = append(x0, 0)
		}
	}
	for i := 0; i < m.Order.Q; i++ {
		x0 = append(x0, 0.1)
	}
	seasonalPhi := 0.0
	if m.SeasonalOrder.IsSeasonal() && m.SeasonalOrder.Period < len(acf) {
		seasonalPhi = clamp(acf[m.SeasonalOrder.Period], -0.9, 0.9)
	}
	for i := 0; i < m.SeasonalOrder.P; i++ {
		if i == 0 {
			x0 = append(x0, seasonalPhi)
		} else {
			x0 = append(x0, 0)
		}
	}
	for i := 0; i < m.SeasonalOrder.Q; i++ {
		x0 = append(x0, 0.1)
	}
	if m.includeMean {
		x0 = append(x0, stat.Mean(m.work, nil))
	}
	return x0
}

// unpack copies a parameter vector into the model and expands the
// multiplicative lag polynomials
func (m *Model) unpack(x []float64) {
	i := 0
	take := func(k int) []float64 {
		out := make([]float64, k)
		copy(out, x[i:i+k])
		i += k
		return out
	}
	m.AR = take(m.Order.P)
	m.MA = take(m.Order.Q)
	m.SeasonalAR = take(m.SeasonalOrder.P)
	m.SeasonalMA = take(m.SeasonalOrder.Q)
	m.Mean = 0
	if m.includeMean {
		m.Mean = x[i]
	}

	s := m.SeasonalOrder.Period
	// (1 - sum ar B^i)(1 - sum sar B^is) expressed as 1 - sum arPoly B^k
	arLeft := polynomial(m.AR, 1, -1)
	arRight := polynomial(m.SeasonalAR, s, -1)
	m.arPoly = negateTail(multiply(arLeft, arRight))
	// (1 + sum ma B^i)(1 + sum sma B^is) expressed as 1 + sum maPoly B^k
	maLeft := polynomial(m.MA, 1, 1)
	maRight := polynomial(m.SeasonalMA, s, 1)
	m.maPoly = multiply(maLeft, maRight)[1:]
}

// polynomial builds 1 + sign*sum coef[i] B^((i+1)*step)
func polynomial(coef []float64, step int, sign float64) []float64 {
	if len(coef) == 0 || step <= 0 {
		return []float64{1}
	}
	p := make([]float64, len(coef)*step+1)
	p[0] = 1
	for i, c := range coef {
		p[(i+1)*step] = sign * c
	}
	return p
}

func multiply(a, b []float64) []float64 {
	out := make([]float64, len(a)+len(b)-1)
	for i, x := range a {
		if x == 0 {
			continue
		}
		for j, y := range b {
			out[i+j] += x * y
		}
	}
	return out
}

func negateTail(p []float64) []float64 {
	out := make([]float64, len(p)-1)
	for i := range out {
		out[i] = -p[i+1]
	}
	return out
}

// difference returns x[t] - x[t-lag]
func difference(data []float64, lag int) []float64 {
	if lag <= 0 || len(data) <= lag {
		return []float64{}
	}
	out := make([]float64, len(data)-lag)
	for i := lag; i < len(data); i++ {
		out[i-lag] = data[i] - data[i-lag]
	}
	return out
}

// integrate inverts a first difference given the undifferenced history
func integrate(history, diffs []float64) []float64 {
	out := make([]float64, len(diffs))
	prev := 0.0
	if len(history) > 0 {
		prev = history[len(history)-1]
	}
	for i, d := range diffs {
		prev += d
		out[i] = prev
	}
	return out
}

// integrateSeasonal inverts times rounds of seasonal differencing
func integrateSeasonal(history, diffs []float64, period, times int) []float64 {
	levels := make([][]float64, times+1)
	levels[0] = history
	for k := 1; k <= times; k++ {
		levels[k] = difference(levels[k-1], period)
	}

	future := diffs
	for k := times; k > 0; k-- {
		base := levels[k-1]
		extended := make([]float64, len(base)+len(future))
		copy(extended, base)
		for i, d := range future {
			t := len(base) + i
			extended[t] = d + extended[t-period]
		}
		future = extended[len(base):]
	}
	return future
}

func allFinite(x []float64) bool {
	if len(x) == 0 {
		return false
	}
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func historicalMax(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return floats.Max(data)
}
