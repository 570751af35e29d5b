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
	"sort"

	"github.com/nathanielng/portfolio-analyzer/dataframe"
	"github.com/nathanielng/portfolio-analyzer/provider"
)

// SeriesFrame converts a single price series to a one-column dataframe
func SeriesFrame(series *provider.PriceSeries) *dataframe.DataFrame {
	return &dataframe.DataFrame{
		Dates:    series.Dates(),
		ColNames: []string{series.Symbol},
		Vals:     [][]float64{series.Closes()},
	}
}

// PriceFrame assembles one dataframe from many symbols' histories. Dates are
// the union across symbols; cells where a symbol has no bar are forward then
// back filled so listing gaps and different IPO dates do not poison the
// frame. Column order is sorted by symbol for deterministic output.
func PriceFrame(seriesBySymbol map[string]*provider.PriceSeries) *dataframe.DataFrame {
	symbols := make([]string, 0, len(seriesBySymbol))
	for symbol := range seriesBySymbol {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	frames := make([]*dataframe.DataFrame, 0, len(symbols))
	for _, symbol := range symbols {
		frames = append(frames, SeriesFrame(seriesBySymbol[symbol]))
	}

	return dataframe.OuterJoin(frames...).ForwardFill().BackFill()
}
