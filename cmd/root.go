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
	"fmt"
	"os"
	"time"

	"github.com/nathanielng/portfolio-analyzer/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	// Polygon.io credentials; when absent the fallback chain is Yahoo only
	viper.BindEnv("polygon.api_key", "POLYGON_API_KEY")
	rootCmd.PersistentFlags().String("polygon-api-key", "", "Polygon.io API key")
	viper.BindPFlag("polygon.api_key", rootCmd.PersistentFlags().Lookup("polygon-api-key"))

	// Portfolio input / output
	viper.BindEnv("portfolio.stocks_csv", "STOCKS_CSV")
	rootCmd.PersistentFlags().String("stocks-csv", "data/stocks.csv", "CSV file listing portfolio holdings")
	viper.BindPFlag("portfolio.stocks_csv", rootCmd.PersistentFlags().Lookup("stocks-csv"))

	viper.BindEnv("portfolio.output_file", "OUTPUT_FILE")
	rootCmd.PersistentFlags().String("output-file", "output/stock_prices.csv", "File to write fetched prices to")
	viper.BindPFlag("portfolio.output_file", rootCmd.PersistentFlags().Lookup("output-file"))

	// Fetch behavior
	viper.BindEnv("fetch.max_retries", "FETCH_MAX_RETRIES")
	rootCmd.PersistentFlags().Int("max-retries", 3, "Attempts per backend before falling through")
	viper.BindPFlag("fetch.max_retries", rootCmd.PersistentFlags().Lookup("max-retries"))

	viper.BindEnv("fetch.base_delay", "FETCH_BASE_DELAY")
	rootCmd.PersistentFlags().Duration("base-delay", 1*time.Second, "Initial retry backoff delay")
	viper.BindPFlag("fetch.base_delay", rootCmd.PersistentFlags().Lookup("base-delay"))

	viper.BindEnv("fetch.max_delay", "FETCH_MAX_DELAY")
	rootCmd.PersistentFlags().Duration("max-delay", 60*time.Second, "Maximum retry backoff delay")
	viper.BindPFlag("fetch.max_delay", rootCmd.PersistentFlags().Lookup("max-delay"))

	viper.BindEnv("fetch.timeout", "FETCH_TIMEOUT")
	rootCmd.PersistentFlags().Duration("timeout", 10*time.Second, "Per-call HTTP timeout")
	viper.BindPFlag("fetch.timeout", rootCmd.PersistentFlags().Lookup("timeout"))

	viper.BindEnv("fetch.workers", "FETCH_WORKERS")
	rootCmd.PersistentFlags().Int("workers", 1, "Symbols fetched concurrently; retries for one symbol stay serialized")
	viper.BindPFlag("fetch.workers", rootCmd.PersistentFlags().Lookup("workers"))

	// Analysis parameters
	viper.BindEnv("analyze.risk_free_rate", "RISK_FREE_RATE")
	rootCmd.PersistentFlags().Float64("risk-free-rate", 0.04, "Annual risk free rate used by risk-adjusted metrics")
	viper.BindPFlag("analyze.risk_free_rate", rootCmd.PersistentFlags().Lookup("risk-free-rate"))

	viper.BindEnv("analyze.benchmark", "BENCHMARK")
	rootCmd.PersistentFlags().String("benchmark", "SPY", "Benchmark symbol for market-relative metrics")
	viper.BindPFlag("analyze.benchmark", rootCmd.PersistentFlags().Lookup("benchmark"))

	// Logging configuration
	viper.BindEnv("log.level", "LOG_LEVEL")
	rootCmd.PersistentFlags().String("log-level", "info", "Logging level")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	viper.BindEnv("log.output", "LOG_OUTPUT")
	rootCmd.PersistentFlags().String("log-output", "stdout", "Write logs to specified output one of: file path, `stdout`, or `stderr`")
	viper.BindPFlag("log.output", rootCmd.PersistentFlags().Lookup("log-output"))

	viper.BindEnv("log.pretty", "LOG_PRETTY")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "Print logs in human readable format")
	viper.BindPFlag("log.pretty", rootCmd.PersistentFlags().Lookup("log-pretty"))
}

var rootCmd = &cobra.Command{
	Use:     "portfolio-analyzer",
	Version: common.CurrentVersion.String(),
	Short:   "Fetch equity prices and compute portfolio risk metrics",
	Long: `portfolio-analyzer fetches closing prices from multiple market data
providers with retry and fallback, normalizes them to USD, and computes
return, correlation, and risk statistics for a portfolio of holdings.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
