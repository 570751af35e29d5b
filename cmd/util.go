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
	"github.com/nathanielng/portfolio-analyzer/csvio"
	"github.com/nathanielng/portfolio-analyzer/currency"
	"github.com/nathanielng/portfolio-analyzer/provider"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// buildFetcher assembles the backend fallback chain. Polygon leads when
// credentials are configured; Yahoo is always present as the last resort.
// A non-empty `only` restricts the chain to the named backend.
func buildFetcher(only string) *provider.Fetcher {
	providers := []provider.Provider{}

	if apikey := viper.GetString("polygon.api_key"); apikey != "" {
		polygon, err := provider.NewPolygon(apikey)
		if err != nil {
			log.Fatal().Err(err).Msg("could not construct polygon provider")
		}
		providers = append(providers, polygon)
	} else {
		log.Info().Msg("POLYGON_API_KEY not set; using yahoo only")
	}

	providers = append(providers, provider.NewYahoo())

	if only != "" {
		filtered := []provider.Provider{}
		for _, p := range providers {
			if p.Name() == only {
				filtered = append(filtered, p)
			}
		}
		if len(filtered) == 0 {
			log.Fatal().Str("Backend", only).Msg("requested backend is not available")
		}
		providers = filtered
	}

	return provider.NewFetcher(providers,
		provider.WithMaxRetries(viper.GetInt("fetch.max_retries")),
		provider.WithBaseDelay(viper.GetDuration("fetch.base_delay")),
		provider.WithMaxDelay(viper.GetDuration("fetch.max_delay")),
		provider.WithWorkers(viper.GetInt("fetch.workers")),
	)
}

func buildConverter() *currency.Converter {
	return currency.NewConverter(currency.NewFrankfurter(),
		currency.WithMaxRetries(viper.GetInt("fetch.max_retries")),
		currency.WithBaseDelay(viper.GetDuration("fetch.base_delay")),
		currency.WithMaxDelay(viper.GetDuration("fetch.max_delay")),
	)
}

// loadSymbols returns the symbols to operate on: command-line args when
// given, otherwise the holdings file.
func loadSymbols(args []string) []string {
	if len(args) > 0 {
		return args
	}

	stocksCSV := viper.GetString("portfolio.stocks_csv")
	holdings, err := csvio.ReadStocks(stocksCSV)
	if err != nil {
		log.Fatal().Err(err).Str("StocksCSV", stocksCSV).Msg("could not read holdings file")
	}

	if len(holdings) == 0 {
		log.Fatal().Str("StocksCSV", stocksCSV).Msg("holdings file is empty")
	}

	return csvio.Symbols(holdings)
}
