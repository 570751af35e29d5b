// Copyright 2025
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package portfolio

import (
	"math"
	"sort"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear is the annualization constant for daily return series.
// Every annualized metric in this package scales by this value or its square
// root; callers working with non-daily data must rescale themselves.
const TradingDaysPerYear = 252

// Metrics with fewer observations than their documented minimum return NaN.
// Sortino is the one exception where the defined result is +Inf.

// Returns computes simple period-over-period returns from a price series.
// The result has one fewer element than the input. A zero previous price has
// no defined return; the pair is skipped with a warning rather than
// propagating Inf into downstream statistics.
func Returns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	rets := make([]float64, 0, len(prices)-1)
	for idx := 1; idx < len(prices); idx++ {
		prev := prices[idx-1]
		if prev == 0 {
			log.Warn().Int("Index", idx).Msg("zero price; skipping undefined return")
			continue
		}
		rets = append(rets, (prices[idx]-prev)/prev)
	}

	return rets
}

// Variance is the Bessel-corrected (n-1) sample variance of the return
// series. Requires at least 2 observations.
func Variance(returns []float64) float64 {
	if len(returns) < 2 {
		return math.NaN()
	}
	return stat.Variance(returns, nil)
}

// Volatility is the Bessel-corrected sample standard deviation of the return
// series. Requires at least 2 observations.
func Volatility(returns []float64) float64 {
	if len(returns) < 2 {
		return math.NaN()
	}
	return stat.StdDev(returns, nil)
}

// AnnualizedVolatility scales the per-period volatility by √252
func AnnualizedVolatility(returns []float64) float64 {
	return Volatility(returns) * math.Sqrt(TradingDaysPerYear)
}

// AnnualizedReturn scales the mean per-period return by 252. Requires at
// least 1 observation.
func AnnualizedReturn(returns []float64) float64 {
	if len(returns) < 1 {
		return math.NaN()
	}
	return stat.Mean(returns, nil) * TradingDaysPerYear
}

// MaxDrawdown computes the largest peak-to-trough decline of a price series:
// min over t of (p_t - peak_t) / peak_t where peak_t is the running maximum.
// The result is <= 0; more negative is worse. Requires at least 2 prices; a
// single price has no trough to measure.
func MaxDrawdown(prices []float64) float64 {
	if len(prices) < 2 {
		return math.NaN()
	}

	peak := prices[0]
	maxDD := 0.0
	for _, price := range prices {
		peak = math.Max(peak, price)
		if peak > 0 {
			dd := (price - peak) / peak
			if dd < maxDD {
				maxDD = dd
			}
		}
	}

	return maxDD
}

// SharpeRatio computes the annualized risk-adjusted excess return
// sharpe = (mean(r) - rf/252) / std(r) * √252
// A constant return series has zero deviation and an undefined ratio; NaN is
// returned rather than dividing by zero. Requires at least 2 observations.
func SharpeRatio(returns []float64, riskFreeRate float64) float64 {
	if len(returns) < 2 {
		return math.NaN()
	}

	sigma := stat.StdDev(returns, nil)
	if sigma == 0 {
		return math.NaN()
	}

	excess := stat.Mean(returns, nil) - riskFreeRate/TradingDaysPerYear
	return excess / sigma * math.Sqrt(TradingDaysPerYear)
}

// SortinoRatio is like Sharpe but penalizes only downside deviation, the
// standard deviation of the sub-zero returns. A series with no negative
// returns has no downside and the defined result is +Inf. A single downside
// observation has no sample deviation and yields NaN. Requires at least 2
// observations overall.
func SortinoRatio(returns []float64, riskFreeRate float64) float64 {
	if len(returns) < 2 {
		return math.NaN()
	}

	downside := make([]float64, 0, len(returns))
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}

	if len(downside) == 0 {
		return math.Inf(1)
	}

	sigma := stat.StdDev(downside, nil)
	if sigma == 0 || math.IsNaN(sigma) {
		return math.NaN()
	}

	excess := stat.Mean(returns, nil) - riskFreeRate/TradingDaysPerYear
	return excess / sigma * math.Sqrt(TradingDaysPerYear)
}

// ValueAtRisk computes the empirical (1-c)-quantile of the return series by
// direct sort-and-index: sorted[floor((1-c)*n)], clamped to a valid index.
// The result keeps the sign of the return (a loss is negative). Requires at
// least 1 observation.
func ValueAtRisk(returns []float64, confidence float64) float64 {
	if len(returns) < 1 {
		return math.NaN()
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	idx := int(math.Floor((1 - confidence) * float64(len(sorted))))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}

	return sorted[idx]
}

// ConditionalValueAtRisk is the mean of all returns at or below the VaR
// threshold, the expected loss in the tail. Requires at least 1 observation.
func ConditionalValueAtRisk(returns []float64, confidence float64) float64 {
	if len(returns) < 1 {
		return math.NaN()
	}

	threshold := ValueAtRisk(returns, confidence)
	tail := make([]float64, 0, len(returns))
	for _, r := range returns {
		if r <= threshold {
			tail = append(tail, r)
		}
	}

	if len(tail) == 0 {
		return math.NaN()
	}

	return stat.Mean(tail, nil)
}

// Beta measures sensitivity to the market
// β = cov(r, r_market) / var(r_market)
// The slices must already be aligned date-for-date. Requires at least 2
// observations; a flat market has zero variance and yields NaN.
func Beta(returns, marketReturns []float64) float64 {
	if len(returns) < 2 || len(returns) != len(marketReturns) {
		return math.NaN()
	}

	marketVar := stat.Variance(marketReturns, nil)
	if marketVar == 0 {
		return math.NaN()
	}

	return stat.Covariance(returns, marketReturns, nil) / marketVar
}

// Alpha is the annualized CAPM excess return
// α = mean(r)*252 - (rf + β * (mean(r_market)*252 - rf))
// where rf is the annual risk free rate; both legs are annualized so alpha is
// reported on the same scale as AnnualizedReturn. Requires at least 2 aligned
// observations.
func Alpha(returns, marketReturns []float64, riskFreeRate float64) float64 {
	beta := Beta(returns, marketReturns)
	if math.IsNaN(beta) {
		return math.NaN()
	}

	annualized := stat.Mean(returns, nil) * TradingDaysPerYear
	marketAnnualized := stat.Mean(marketReturns, nil) * TradingDaysPerYear
	return annualized - (riskFreeRate + beta*(marketAnnualized-riskFreeRate))
}

// InformationRatio measures the consistency of active return
// ir = mean(r - r_benchmark) / std(r - r_benchmark)
// Requires at least 2 aligned observations; a zero tracking error yields NaN.
func InformationRatio(returns, benchmarkReturns []float64) float64 {
	if len(returns) < 2 || len(returns) != len(benchmarkReturns) {
		return math.NaN()
	}

	active := make([]float64, len(returns))
	for idx := range returns {
		active[idx] = returns[idx] - benchmarkReturns[idx]
	}

	sigma := stat.StdDev(active, nil)
	if sigma == 0 {
		return math.NaN()
	}

	return stat.Mean(active, nil) / sigma
}
