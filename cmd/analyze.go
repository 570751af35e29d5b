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

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nathanielng/portfolio-analyzer/common"
	"github.com/nathanielng/portfolio-analyzer/csvio"
	"github.com/nathanielng/portfolio-analyzer/portfolio"
	"github.com/nathanielng/portfolio-analyzer/provider"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	analyzeBegin string
	analyzeEnd   string
)

func init() {
	analyzeCmd.Flags().StringVar(&analyzeBegin, "begin", "", "Start of the analysis window (YYYY-MM-DD); default one year before end")
	analyzeCmd.Flags().StringVar(&analyzeEnd, "end", "", "End of the analysis window (YYYY-MM-DD); default today")
	analyzeCmd.Flags().Bool("log-returns", false, "Compute log returns instead of simple returns")
	viper.BindPFlag("analyze.log_returns", analyzeCmd.Flags().Lookup("log-returns"))
	rootCmd.AddCommand(analyzeCmd)
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [symbol...]",
	Short: "Compute risk metrics for the portfolio",
	Long: `Fetch price histories for each holding and the benchmark, normalize
to USD, and compute return, correlation, and risk statistics. Reports are
written as CSV files alongside the configured output file.`,
	Run: func(cmd *cobra.Command, args []string) {
		common.SetupLogging()
		ctx := context.Background()

		begin, end := analysisWindow()
		symbols := loadSymbols(args)
		benchmark := viper.GetString("analyze.benchmark")

		fetcher := buildFetcher("")
		converter := buildConverter()

		fetchList := symbols
		if indexOf(symbols, benchmark) == -1 {
			fetchList = append(append([]string{}, symbols...), benchmark)
		}

		results := fetcher.FetchHistory(ctx, fetchList, begin, end)

		seriesBySymbol := make(map[string]*provider.PriceSeries, len(results))
		for symbol, result := range results {
			if result.Err != nil {
				log.Error().Err(result.Err).Str("Symbol", symbol).Msg("could not fetch history; excluding from analysis")
				continue
			}

			series, ok := converter.ToUSDSeries(ctx, result.Series)
			if !ok {
				log.Warn().Str("Symbol", symbol).Msg("series partially unconverted; values remain in listing currency")
			}
			seriesBySymbol[symbol] = series
		}

		if _, ok := seriesBySymbol[benchmark]; !ok {
			log.Warn().Str("Benchmark", benchmark).Msg("benchmark history unavailable; market-relative metrics will be undefined")
		}

		if len(seriesBySymbol) == 0 {
			log.Fatal().Msg("no price histories fetched")
		}

		// providers may return bars just outside the requested window
		prices := portfolio.PriceFrame(seriesBySymbol).Trim(begin, end)

		returns := prices.PctChange()
		if viper.GetBool("analyze.log_returns") {
			returns = prices.LogReturns()
		}

		market := returns.Col(benchmark)

		// the benchmark is only a holding when explicitly listed
		if indexOf(symbols, benchmark) == -1 {
			prices = prices.Select(symbols...)
			returns = returns.Select(symbols...)
		}

		analyzer := portfolio.NewAnalyzer(viper.GetFloat64("analyze.risk_free_rate"), benchmark)
		report := analyzer.GenerateRiskReport(ctx, returns, prices, market)

		outputDir := filepath.Dir(viper.GetString("portfolio.output_file"))
		reportFile := filepath.Join(outputDir, "risk_report.csv")
		correlationFile := filepath.Join(outputDir, "correlation_matrix.csv")
		returnsFile := filepath.Join(outputDir, "daily_returns.csv")
		pricesFile := filepath.Join(outputDir, "historical_prices.csv")

		if err := csvio.WriteFrame(pricesFile, prices); err != nil {
			log.Fatal().Err(err).Str("PricesFile", pricesFile).Msg("could not write historical prices")
		}
		if err := csvio.WriteRiskReport(reportFile, report); err != nil {
			log.Fatal().Err(err).Str("ReportFile", reportFile).Msg("could not write risk report")
		}
		if err := csvio.WriteCorrelation(correlationFile, report.Correlation); err != nil {
			log.Fatal().Err(err).Str("CorrelationFile", correlationFile).Msg("could not write correlation matrix")
		}
		if err := csvio.WriteFrame(returnsFile, returns); err != nil {
			log.Fatal().Err(err).Str("ReturnsFile", returnsFile).Msg("could not write daily returns")
		}

		printRiskReport(report)

		log.Info().
			Time("Begin", begin).
			Time("End", end).
			Int("NumSymbols", len(report.Symbols)).
			Str("ReportFile", reportFile).
			Msg("analysis complete")
	},
}

func analysisWindow() (time.Time, time.Time) {
	tz := common.GetTimezone()

	end := time.Now().In(tz)
	if analyzeEnd != "" {
		var err error
		end, err = time.ParseInLocation(common.DateFormat, analyzeEnd, tz)
		if err != nil {
			log.Fatal().Err(err).Str("End", analyzeEnd).Msg("could not parse end date")
		}
	}

	begin := end.AddDate(-1, 0, 0)
	if analyzeBegin != "" {
		var err error
		begin, err = time.ParseInLocation(common.DateFormat, analyzeBegin, tz)
		if err != nil {
			log.Fatal().Err(err).Str("Begin", analyzeBegin).Msg("could not parse begin date")
		}
	}

	if end.Before(begin) {
		log.Fatal().Time("Begin", begin).Time("End", end).Msg("end date must be after begin date")
	}

	return begin, end
}

func indexOf(haystack []string, needle string) int {
	for idx, val := range haystack {
		if val == needle {
			return idx
		}
	}
	return -1
}

func printRiskReport(report *portfolio.RiskReport) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(append([]string{"Symbol"}, portfolio.MetricNames...))
	table.SetBorder(false)

	for _, symbol := range report.Symbols {
		row := make([]string, 0, len(portfolio.MetricNames)+1)
		row = append(row, symbol)
		for _, name := range portfolio.MetricNames {
			row = append(row, fmt.Sprintf("%.4f", report.Metrics[symbol][name]))
		}
		table.Append(row)
	}

	table.Render()
}
