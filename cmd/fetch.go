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
	"sort"
	"time"

	"github.com/nathanielng/portfolio-analyzer/common"
	"github.com/nathanielng/portfolio-analyzer/csvio"
	"github.com/nathanielng/portfolio-analyzer/provider"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	fetchDate    string
	fetchBackend string
)

func init() {
	fetchCmd.Flags().StringVar(&fetchDate, "date", "", "Fetch closing prices for a specific date (YYYY-MM-DD); default is the most recent close")
	fetchCmd.Flags().StringVar(&fetchBackend, "backend", "", "Restrict fetching to a single backend (yahoo or polygon)")
	rootCmd.AddCommand(fetchCmd)
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [symbol...]",
	Short: "Fetch closing prices for the portfolio",
	Long: `Fetch closing prices for each symbol through the provider fallback
chain, normalize to USD, and write them to the output file. With no
arguments the symbols are read from the holdings file.`,
	Run: func(cmd *cobra.Command, args []string) {
		common.SetupLogging()
		ctx := context.Background()

		var date time.Time
		if fetchDate != "" {
			var err error
			date, err = time.ParseInLocation(common.DateFormat, fetchDate, common.GetTimezone())
			if err != nil {
				log.Fatal().Err(err).Str("Date", fetchDate).Msg("could not parse date")
			}
		}

		symbols := loadSymbols(args)
		fetcher := buildFetcher(fetchBackend)
		converter := buildConverter()

		results := fetcher.FetchPrices(ctx, symbols, date)

		observations := make(map[string]*provider.PriceObservation, len(results))
		unconverted := 0
		for symbol, result := range results {
			if result.Err != nil {
				log.Error().Err(result.Err).Str("Symbol", symbol).Msg("could not fetch price")
				continue
			}

			obs, ok := converter.ToUSD(ctx, result.Observation)
			if !ok {
				unconverted++
			}
			observations[symbol] = obs
		}

		if len(observations) == 0 {
			log.Fatal().Msg("no prices fetched")
		}

		outputFile := viper.GetString("portfolio.output_file")
		if err := csvio.WriteSpotPrices(outputFile, observations); err != nil {
			log.Fatal().Err(err).Str("OutputFile", outputFile).Msg("could not write prices")
		}

		printPriceTable(observations)

		log.Info().
			Int("NumRequested", len(symbols)).
			Int("NumFetched", len(observations)).
			Int("NumUnconverted", unconverted).
			Str("OutputFile", outputFile).
			Msg("fetch complete")
	},
}

func printPriceTable(observations map[string]*provider.PriceObservation) {
	symbols := make([]string, 0, len(observations))
	for symbol := range observations {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Symbol", "Date", "Price", "Currency"})
	table.SetBorder(false)
	for _, symbol := range symbols {
		obs := observations[symbol]
		table.Append([]string{
			obs.Symbol,
			obs.Date.Format(common.DateFormat),
			fmt.Sprintf("%.2f", obs.Close),
			obs.Currency,
		})
	}
	table.Render()
}
