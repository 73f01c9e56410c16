package arima

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// MacKinnon (1994) response surface for the constant-only Dickey-Fuller
// distribution with a single series
var (
	adfTauMax    = 2.74
	adfTauMin    = -18.83
	adfTauStar   = -1.61
	adfSmallPoly = []float64{2.1659, 1.4412, 0.038269}
	adfLargePoly = []float64{1.7339, 0.93202, -0.12745, -0.010368}
)

// ADFResult holds the outcome of an augmented Dickey-Fuller test
type ADFResult struct {
	Statistic float64 `json:"statistic"`
	PValue    float64 `json:"p_value"`
	UsedLag   int     `json:"used_lag"`
	NObs      int     `json:"nobs"`
}

// ADFTest runs the augmented Dickey-Fuller unit root test with a constant,
// choosing the lag order by AIC up to 12*(n/100)^(1/4)
func ADFTest(data []float64) (*ADFResult, error) {
	n := len(data)
	maxLag := int(math.Ceil(12 * math.Pow(float64(n)/100, 0.25)))
	if limit := n/2 - 2; maxLag > limit {
		maxLag = limit
	}
	if maxLag < 0 {
		return nil, fmt.Errorf("adf: series of length %d is too short", n)
	}

	diff := difference(data, 1)

	bestLag, bestAIC := 0, math.Inf(1)
	for lag := 0; lag <= maxLag; lag++ {
		fit, err := adfRegression(data, diff, maxLag, lag)
		if err != nil {
			continue
		}
		if fit.aic < bestAIC {
			bestAIC, bestLag = fit.aic, lag
		}
	}
	if math.IsInf(bestAIC, 1) {
		return nil, fmt.Errorf("adf: no lag order could be estimated")
	}

	fit, err := adfRegression(data, diff, bestLag, bestLag)
	if err != nil {
		return nil, err
	}

	return &ADFResult{
		Statistic: fit.tstat,
		PValue:    mackinnonPValue(fit.tstat),
		UsedLag:   bestLag,
		NObs:      fit.nobs,
	}, nil
}

type olsFit struct {
	tstat float64
	aic   float64
	nobs  int
}

// adfRegression regresses diff[t] on a constant, the lagged level and lag
// lagged differences, over the sample that leaves room for trimLag lags
func adfRegression(levels, diff []float64, trimLag, lag int) (*olsFit, error) {
	nobs := len(diff) - trimLag
	k := 2 + lag
	if nobs <= k {
		return nil, fmt.Errorf("adf: %d observations for %d regressors", nobs, k)
	}

	x := mat.NewDense(nobs, k, nil)
	y := mat.NewVecDense(nobs, nil)
	for r := 0; r < nobs; r++ {
		t := trimLag + r
		y.SetVec(r, diff[t])
		x.Set(r, 0, 1)
		x.Set(r, 1, levels[t])
		for j := 1; j <= lag; j++ {
			x.Set(r, 1+j, diff[t-j])
		}
	}

	var beta mat.VecDense
	if err := beta.SolveVec(x, y); err != nil {
		return nil, fmt.Errorf("adf: least squares failed: %w", err)
	}

	var fitted, resid mat.VecDense
	fitted.MulVec(x, &beta)
	resid.SubVec(y, &fitted)
	rss := mat.Dot(&resid, &resid)
	if rss <= 0 || math.IsNaN(rss) {
		return nil, fmt.Errorf("adf: degenerate regression")
	}

	var xtx, inv mat.Dense
	xtx.Mul(x.T(), x)
	if err := inv.Inverse(&xtx); err != nil {
		return nil, fmt.Errorf("adf: singular design: %w", err)
	}

	sigma2 := rss / float64(nobs-k)
	se := math.Sqrt(sigma2 * inv.At(1, 1))
	if se == 0 || math.IsNaN(se) {
		return nil, fmt.Errorf("adf: zero standard error")
	}

	fn := float64(nobs)
	llf := -fn / 2 * (math.Log(2*math.Pi) + math.Log(rss/fn) + 1)

	return &olsFit{
		tstat: beta.AtVec(1) / se,
		aic:   -2*llf + 2*float64(k),
		nobs:  nobs,
	}, nil
}

// mackinnonPValue maps a Dickey-Fuller statistic to its approximate p-value
func mackinnonPValue(tau float64) float64 {
	if tau > adfTauMax {
		return 1
	}
	if tau < adfTauMin {
		return 0
	}
	poly := adfLargePoly
	if tau <= adfTauStar {
		poly = adfSmallPoly
	}
	z, pow := 0.0, 1.0
	for _, c := range poly {
		z += c * pow
		pow *= tau
	}
	return distuv.UnitNormal.CDF(z)
}
