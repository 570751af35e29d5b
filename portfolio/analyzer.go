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

// Package portfolio computes return, correlation, and risk statistics over
// normalized USD price histories.
package portfolio

import (
	"context"
	"math"
	"time"

	"github.com/goccy/go-json"
	"github.com/nathanielng/portfolio-analyzer/dataframe"
	"github.com/nathanielng/portfolio-analyzer/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"gonum.org/v1/gonum/stat"
)

// DefaultConfidence is the confidence level for VaR and CVaR
const DefaultConfidence = 0.95

// MetricNames lists every per-symbol metric in a risk report, in report
// column order.
var MetricNames = []string{
	"AnnualizedReturn",
	"AnnualizedVolatility",
	"Variance",
	"MaxDrawdown",
	"SharpeRatio",
	"SortinoRatio",
	"VaR95",
	"CVaR95",
	"Beta",
	"Alpha",
	"InformationRatio",
}

// CorrelationMatrix is a symmetric Pearson correlation matrix over the
// pairwise-aligned return series of each symbol. The diagonal is exactly 1.0
// and pairs with fewer than 2 overlapping dates are NaN.
type CorrelationMatrix struct {
	Symbols []string    `json:"symbols"`
	Values  [][]float64 `json:"values"`
}

// RiskReport is the complete output of one analysis run. Metrics maps
// symbol to metric name to value; it is never mutated after construction.
type RiskReport struct {
	GeneratedAt  time.Time                     `json:"generatedAt"`
	RiskFreeRate float64                       `json:"riskFreeRate"`
	Benchmark    string                        `json:"benchmark"`
	Symbols      []string                      `json:"symbols"`
	Metrics      map[string]map[string]float64 `json:"metrics"`
	Correlation  *CorrelationMatrix            `json:"correlation"`
}

// finiteOrNull maps a metric value to its wire representation. JSON has no
// NaN or Inf tokens; non-finite values mark below-minimum samples and are
// rendered as null.
func finiteOrNull(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func (matrix *CorrelationMatrix) MarshalJSON() ([]byte, error) {
	values := make([][]*float64, len(matrix.Values))
	for ii, row := range matrix.Values {
		values[ii] = make([]*float64, len(row))
		for jj, val := range row {
			values[ii][jj] = finiteOrNull(val)
		}
	}

	return json.Marshal(&struct {
		Symbols []string     `json:"symbols"`
		Values  [][]*float64 `json:"values"`
	}{
		Symbols: matrix.Symbols,
		Values:  values,
	})
}

func (report *RiskReport) MarshalJSON() ([]byte, error) {
	metrics := make(map[string]map[string]*float64, len(report.Metrics))
	for symbol, symbolMetrics := range report.Metrics {
		row := make(map[string]*float64, len(symbolMetrics))
		for name, val := range symbolMetrics {
			row[name] = finiteOrNull(val)
		}
		metrics[symbol] = row
	}

	return json.Marshal(&struct {
		GeneratedAt  time.Time                      `json:"generatedAt"`
		RiskFreeRate float64                        `json:"riskFreeRate"`
		Benchmark    string                         `json:"benchmark"`
		Symbols      []string                       `json:"symbols"`
		Metrics      map[string]map[string]*float64 `json:"metrics"`
		Correlation  *CorrelationMatrix             `json:"correlation"`
	}{
		GeneratedAt:  report.GeneratedAt,
		RiskFreeRate: report.RiskFreeRate,
		Benchmark:    report.Benchmark,
		Symbols:      report.Symbols,
		Metrics:      metrics,
		Correlation:  report.Correlation,
	})
}

// Analyzer computes risk reports from aligned price and return frames
type Analyzer struct {
	RiskFreeRate float64
	Confidence   float64
	Benchmark    string
}

func NewAnalyzer(riskFreeRate float64, benchmark string) *Analyzer {
	return &Analyzer{
		RiskFreeRate: riskFreeRate,
		Confidence:   DefaultConfidence,
		Benchmark:    benchmark,
	}
}

// pairwiseAligned returns the rows of a and b where both are valid, the
// inner join of the two columns on date.
func pairwiseAligned(a, b []float64) ([]float64, []float64) {
	alignedA := make([]float64, 0, len(a))
	alignedB := make([]float64, 0, len(a))
	for idx := range a {
		if math.IsNaN(a[idx]) || math.IsNaN(b[idx]) {
			continue
		}
		alignedA = append(alignedA, a[idx])
		alignedB = append(alignedB, b[idx])
	}
	return alignedA, alignedB
}

// Correlation computes the Pearson correlation matrix of every column pair
// in the return frame. Columns are aligned pairwise on date so one symbol's
// short history never shrinks another pair's overlap.
func (analyzer *Analyzer) Correlation(returns *dataframe.DataFrame) *CorrelationMatrix {
	n := returns.ColCount()
	matrix := &CorrelationMatrix{
		Symbols: make([]string, n),
		Values:  make([][]float64, n),
	}
	copy(matrix.Symbols, returns.ColNames)

	for ii := 0; ii < n; ii++ {
		matrix.Values[ii] = make([]float64, n)
		matrix.Values[ii][ii] = 1.0
	}

	for ii := 0; ii < n; ii++ {
		for jj := ii + 1; jj < n; jj++ {
			a, b := pairwiseAligned(returns.Vals[ii], returns.Vals[jj])
			corr := math.NaN()
			if len(a) >= 2 {
				corr = stat.Correlation(a, b, nil)
			}
			matrix.Values[ii][jj] = corr
			matrix.Values[jj][ii] = corr
		}
	}

	return matrix
}

// GenerateRiskReport computes the full metric set for every column of the
// return frame. prices must carry the same columns as returns; market
// holds the benchmark's return series aligned to the same date index and may
// be nil, in which case the market-relative metrics are NaN.
func (analyzer *Analyzer) GenerateRiskReport(ctx context.Context, returns, prices *dataframe.DataFrame, market []float64) *RiskReport {
	_, span := otel.Tracer(opentelemetry.Name).Start(ctx, "portfolio.GenerateRiskReport")
	defer span.End()

	report := &RiskReport{
		GeneratedAt:  time.Now(),
		RiskFreeRate: analyzer.RiskFreeRate,
		Benchmark:    analyzer.Benchmark,
		Symbols:      make([]string, 0, returns.ColCount()),
		Metrics:      make(map[string]map[string]float64, returns.ColCount()),
	}

	for colIdx, symbol := range returns.ColNames {
		subLog := log.With().Str("Symbol", symbol).Logger()

		rets := dropNaN(returns.Vals[colIdx])
		symbolPrices := dropNaN(prices.Col(symbol))

		metrics := map[string]float64{
			"AnnualizedReturn":     AnnualizedReturn(rets),
			"AnnualizedVolatility": AnnualizedVolatility(rets),
			"Variance":             Variance(rets),
			"MaxDrawdown":          MaxDrawdown(symbolPrices),
			"SharpeRatio":          SharpeRatio(rets, analyzer.RiskFreeRate),
			"SortinoRatio":         SortinoRatio(rets, analyzer.RiskFreeRate),
			"VaR95":                ValueAtRisk(rets, analyzer.Confidence),
			"CVaR95":               ConditionalValueAtRisk(rets, analyzer.Confidence),
		}

		if market != nil {
			assetAligned, marketAligned := pairwiseAligned(returns.Vals[colIdx], market)
			metrics["Beta"] = Beta(assetAligned, marketAligned)
			metrics["Alpha"] = Alpha(assetAligned, marketAligned, analyzer.RiskFreeRate)
			metrics["InformationRatio"] = InformationRatio(assetAligned, marketAligned)
		} else {
			metrics["Beta"] = math.NaN()
			metrics["Alpha"] = math.NaN()
			metrics["InformationRatio"] = math.NaN()
		}

		if len(rets) < 2 {
			subLog.Warn().Int("NumReturns", len(rets)).Msg("insufficient history; most metrics undefined")
		}

		report.Symbols = append(report.Symbols, symbol)
		report.Metrics[symbol] = metrics
	}

	report.Correlation = analyzer.Correlation(returns)
	return report
}

func dropNaN(vals []float64) []float64 {
	res := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) {
			res = append(res, v)
		}
	}
	return res
}
